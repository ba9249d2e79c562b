package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/agentuity/storefront/menu"
	"github.com/agentuity/storefront/session"
	"github.com/agentuity/storefront/settings"
	"github.com/cockroachdb/errors"
)

//go:embed templates/*.html
var templateFS embed.FS

var funcs = template.FuncMap{
	"price": menu.FormatPrice,
	"itemPrice": func(i menu.Item) string {
		if i.Price == nil {
			return ""
		}
		return menu.FormatPrice(*i.Price)
	},
	"deref": menu.Deref,
	"datetime": func(t interface{ Format(string) string }) string {
		return t.Format("2006-01-02 15:04:05")
	},
}

type templates struct {
	pages map[string]*template.Template
}

func loadTemplates() (*templates, error) {
	names, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, errors.Wrap(err, "list templates")
	}
	t := &templates{pages: make(map[string]*template.Template)}
	for _, name := range names {
		base := path.Base(name)
		if base == "layout.html" {
			continue
		}
		page, err := template.New(base).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", name)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s", base)
		}
		t.pages[strings.TrimSuffix(base, ".html")] = page
	}
	return t, nil
}

// view is the data passed to every page.
type view struct {
	Site      settings.Site
	Title     string
	Flashes   []session.Flash
	Admin     bool
	CartCount int
	Page      any
}

type sessionKey struct{}

func withSession(r *http.Request, sess *session.Session) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess))
}

// session returns the request's session, loading it on first use. A backend
// failure is logged and yields an empty session.
func (s *Server) session(r *http.Request) *session.Session {
	if sess, ok := r.Context().Value(sessionKey{}).(*session.Session); ok {
		return sess
	}
	sess, err := s.sessions.Load(r)
	if err != nil {
		s.log.Warn("session load failed: %s", err)
	}
	return sess
}

func (s *Server) save(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := s.sessions.Save(w, r, sess); err != nil {
		s.log.Error("session save failed: %s", err)
	}
}

// redirect saves the session and sends a 303 to location.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request, sess *session.Session, location string) {
	s.save(w, r, sess)
	http.Redirect(w, r, location, http.StatusSeeOther)
}

// render executes page inside the layout. Queued flashes are consumed.
func (s *Server) render(w http.ResponseWriter, r *http.Request, sess *session.Session, status int, page, title string, data any) {
	tmpl, ok := s.templates.pages[page]
	if !ok {
		s.log.Error("unknown template %s", page)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	v := view{
		Site:      s.settings.Site(r.Context()),
		Title:     title,
		Flashes:   sess.PopFlashes(),
		Admin:     sess.Admin,
		CartCount: sess.Cart.Len(),
		Page:      data,
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", v); err != nil {
		s.log.Error("render %s: %s", page, err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	s.save(w, r, sess)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		r.Header.Get("X-Requested-With") == "XMLHttpRequest"
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) || strings.HasPrefix(r.URL.Path, "/api/") {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	s.render(w, r, s.session(r), http.StatusNotFound, "notfound", "Not found", nil)
}
