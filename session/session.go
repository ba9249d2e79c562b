// Package session keeps per-visitor state (cart, flash messages, admin flag)
// in a cache backend keyed by an id carried in a signed cookie.
package session

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/agentuity/storefront/authentication"
	"github.com/agentuity/storefront/cache"
	"github.com/agentuity/storefront/cart"
	"github.com/agentuity/storefront/logger"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// CookieName is the name of the session cookie.
const CookieName = "storefront_session"

// DefaultTTL is how long an idle session is kept.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "session:"

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Category string `msgpack:"category" json:"category"`
	Message  string `msgpack:"message" json:"message"`
}

// Data is the persisted part of a session.
type Data struct {
	Cart            cart.Cart `msgpack:"cart"`
	Flashes         []Flash   `msgpack:"flashes"`
	Admin           bool      `msgpack:"admin"`
	CheckoutSuccess bool      `msgpack:"checkout_success"`
}

func (d Data) clone() Data {
	d.Cart = d.Cart.Clone()
	d.Flashes = slices.Clone(d.Flashes)
	return d
}

// Session is the state for one request. Changes are kept only after Save.
type Session struct {
	Data
	id     string
	isNew  bool
	oldIDs []string
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// IsNew reports whether the session was created for this request.
func (s *Session) IsNew() bool { return s.isNew }

// AddFlash queues a message for the next page.
func (s *Session) AddFlash(category, message string) {
	s.Flashes = append(s.Flashes, Flash{Category: category, Message: message})
}

// PopFlashes returns and clears the queued messages.
func (s *Session) PopFlashes() []Flash {
	flashes := s.Flashes
	s.Flashes = nil
	return flashes
}

// Regenerate assigns a new id, keeping the data. The old record is removed
// on the next Save. Used on privilege changes.
func (s *Session) Regenerate() {
	if !s.isNew {
		s.oldIDs = append(s.oldIDs, s.id)
	}
	s.id = uuid.NewString()
	s.isNew = true
}

// Manager loads and saves sessions.
type Manager struct {
	log    logger.Logger
	store  cache.Cache
	secret string
	ttl    time.Duration
	secure bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets the idle lifetime of a session.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithSecureCookie marks the cookie Secure.
func WithSecureCookie(secure bool) Option {
	return func(m *Manager) { m.secure = secure }
}

// NewManager returns a Manager storing sessions in store. secret signs the
// cookie.
func NewManager(log logger.Logger, store cache.Cache, secret string, opts ...Option) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("session secret is required")
	}
	m := &Manager{
		log:    log.WithPrefix("[session]"),
		store:  store,
		secret: secret,
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// TTL returns the idle lifetime of a session.
func (m *Manager) TTL() time.Duration { return m.ttl }

func (m *Manager) fresh() *Session {
	return &Session{id: uuid.NewString(), isNew: true, Data: Data{Cart: cart.New()}}
}

// Load returns the session named by the request cookie. A missing, forged or
// expired cookie yields a new empty session. Backend errors are returned
// together with a usable new session.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return m.fresh(), nil
	}
	id, err := authentication.Nonce(m.secret, cookie.Value)
	if err != nil {
		m.log.Debug("ignoring session cookie: %s", err)
		return m.fresh(), nil
	}
	found, data, err := cache.Get[Data](r.Context(), m.store, keyPrefix+id)
	if err != nil {
		return m.fresh(), errors.Wrap(err, "load session")
	}
	if !found {
		return m.fresh(), nil
	}
	data = data.clone()
	if data.Cart == nil {
		data.Cart = cart.New()
	}
	return &Session{id: id, Data: data}, nil
}

// Save persists the session and refreshes the cookie. It must be called
// before the response body is written.
func (m *Manager) Save(w http.ResponseWriter, r *http.Request, s *Session) error {
	ctx := r.Context()
	if err := m.store.Set(ctx, keyPrefix+s.id, s.Data.clone(), m.ttl); err != nil {
		return errors.Wrap(err, "save session")
	}
	m.forget(ctx, s)
	token, err := authentication.NewBearerToken(m.secret, authentication.WithNonce(s.id))
	if err != nil {
		return errors.Wrap(err, "sign session")
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl / time.Second),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	s.isNew = false
	return nil
}

// Destroy removes the session and clears the cookie.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request, s *Session) error {
	ctx := r.Context()
	m.forget(ctx, s)
	if _, err := m.store.Delete(ctx, keyPrefix+s.id); err != nil {
		return errors.Wrap(err, "destroy session")
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (m *Manager) forget(ctx context.Context, s *Session) {
	for _, id := range s.oldIDs {
		if _, err := m.store.Delete(ctx, keyPrefix+id); err != nil {
			m.log.Warn("failed to remove replaced session: %s", err)
		}
	}
	s.oldIDs = nil
}
