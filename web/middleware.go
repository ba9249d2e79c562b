package web

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/agentuity/storefront/authentication"
	"github.com/agentuity/storefront/logger"
	"github.com/agentuity/storefront/sys"
	"github.com/google/uuid"
)

// RequestIDHeader carries the id assigned to each request.
const RequestIDHeader = "X-Request-Id"

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		rec := &statusRecorder{ResponseWriter: w}
		started := time.Now()
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		log := logger.WithKV(s.log, "request_id", id)
		if rec.status >= 500 {
			log.Warn("%s %s %d %dB %s", r.Method, r.URL.Path, rec.status, rec.bytes, time.Since(started))
		} else {
			log.Debug("%s %s %d %dB %s", r.Method, r.URL.Path, rec.status, rec.bytes, time.Since(started))
		}
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := sys.Recovered(recover()); err != nil {
				s.log.Error("%s %s: %s", r.Method, r.URL.Path, err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// requireAdmin admits a session that logged in, or a request carrying a
// valid bearer token.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := bearerToken(r); ok {
			if err := authentication.ValidateToken(s.secret, token); err != nil {
				s.log.Debug("rejected bearer token: %s", err)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
			return
		}
		sess := s.session(r)
		if !sess.Admin {
			sess.AddFlash("warning", "Please log in")
			s.redirect(w, r, sess, "/admin/login")
			return
		}
		next.ServeHTTP(w, withSession(r, sess))
	})
}

func checkPassword(want, got string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
