// Package web serves the public menu, the session cart with WhatsApp checkout
// and the admin pages.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/agentuity/storefront/catalog"
	"github.com/agentuity/storefront/logger"
	"github.com/agentuity/storefront/session"
	"github.com/agentuity/storefront/settings"
	"github.com/agentuity/storefront/store"
	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"
)

// MaxUploadSize bounds logo and item image uploads.
const MaxUploadSize = 5 << 20

// Options are the dependencies of a Server.
type Options struct {
	Log      logger.Logger
	Catalog  *catalog.Catalog
	Mirror   *catalog.Mirror
	Store    store.Store
	Settings *settings.Service
	Sessions *session.Manager
	// Assets serves uploaded objects when the store keeps them locally.
	Assets store.AssetReader
	// Secret verifies admin bearer tokens.
	Secret        string
	AdminPassword string
	Now           func() time.Time
}

// Server is the HTTP front end.
type Server struct {
	log       logger.Logger
	catalog   *catalog.Catalog
	mirror    *catalog.Mirror
	store     store.Store
	settings  *settings.Service
	sessions  *session.Manager
	assets    store.AssetReader
	secret    string
	password  string
	now       func() time.Time
	templates *templates
	router    *mux.Router
}

// New builds a Server and its routes.
func New(opts Options) (*Server, error) {
	if opts.Catalog == nil || opts.Mirror == nil || opts.Store == nil || opts.Settings == nil || opts.Sessions == nil {
		return nil, errors.New("catalog, mirror, store, settings and sessions are required")
	}
	tmpl, err := loadTemplates()
	if err != nil {
		return nil, err
	}
	s := &Server{
		log:       opts.Log.WithPrefix("[web]"),
		catalog:   opts.Catalog,
		mirror:    opts.Mirror,
		store:     opts.Store,
		settings:  opts.Settings,
		sessions:  opts.Sessions,
		assets:    opts.Assets,
		secret:    opts.Secret,
		password:  opts.AdminPassword,
		now:       opts.Now,
		templates: tmpl,
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := mux.NewRouter()
	r.Use(s.requestLogger, s.recoverer)
	r.NotFoundHandler = http.HandlerFunc(s.notFound)

	r.HandleFunc("/", s.index).Methods(http.MethodGet)
	r.HandleFunc("/category/{slug}", s.category).Methods(http.MethodGet)
	r.HandleFunc("/api/menu", s.apiMenu).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	r.HandleFunc("/storage/v1/object/public/{bucket}/{path:.+}", s.asset).Methods(http.MethodGet)

	r.HandleFunc("/cart", s.cartView).Methods(http.MethodGet)
	r.HandleFunc("/cart/add", s.cartAdd).Methods(http.MethodPost)
	r.HandleFunc("/cart/remove", s.cartRemove).Methods(http.MethodPost)
	r.HandleFunc("/cart/status", s.cartStatus).Methods(http.MethodGet)
	r.HandleFunc("/cart/checkout", s.cartCheckout).Methods(http.MethodPost)

	r.HandleFunc("/admin/login", s.loginForm).Methods(http.MethodGet)
	r.HandleFunc("/admin/login", s.login).Methods(http.MethodPost)
	r.HandleFunc("/admin/logout", s.logout).Methods(http.MethodPost)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(s.requireAdmin)
	admin.HandleFunc("", s.dashboard).Methods(http.MethodGet)
	admin.HandleFunc("/settings", s.saveSettings).Methods(http.MethodPost)
	admin.HandleFunc("/branding", s.uploadBranding).Methods(http.MethodPost)
	admin.HandleFunc("/categories", s.createCategory).Methods(http.MethodPost)
	admin.HandleFunc("/categories/{id:[0-9]+}", s.updateCategory).Methods(http.MethodPost)
	admin.HandleFunc("/categories/{id:[0-9]+}/delete", s.deleteCategory).Methods(http.MethodPost)
	admin.HandleFunc("/items", s.createItem).Methods(http.MethodPost)
	admin.HandleFunc("/items/{id:[0-9]+}", s.updateItem).Methods(http.MethodPost)
	admin.HandleFunc("/items/{id:[0-9]+}/delete", s.deleteItem).Methods(http.MethodPost)
	admin.HandleFunc("/sync/refresh", s.syncRefresh).Methods(http.MethodPost)
	admin.HandleFunc("/sync/requeue", s.syncRequeue).Methods(http.MethodPost)
	admin.HandleFunc("/sync/discard", s.syncDiscard).Methods(http.MethodPost)

	s.router = r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	errs := make(chan error, 1)
	go func() {
		s.log.Info("listening on %s", addr)
		errs <- srv.ListenAndServe()
	}()
	select {
	case err := <-errs:
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http shutdown")
	}
	s.log.Info("http server stopped")
	return nil
}
