// Package settings reads and writes the site settings table through a short
// lived read-through cache.
package settings

import (
	"context"
	"strings"
	"time"

	"github.com/agentuity/storefront/cache"
	"github.com/agentuity/storefront/logger"
	"github.com/agentuity/storefront/menu"
	"github.com/cockroachdb/errors"
)

// Setting keys.
const (
	SiteName      = "site_name"
	WhatsAppPhone = "whatsapp_phone"
	LogoURL       = "logo_url"
	PrimaryColor  = "primary_color"
	ShowPrices    = "show_prices"
	Tagline       = "tagline"
)

// Keys lists every setting the admin page can edit.
var Keys = []string{SiteName, WhatsAppPhone, LogoURL, PrimaryColor, ShowPrices, Tagline}

// DefaultTTL is how long a looked up value is reused.
const DefaultTTL = 30 * time.Second

var defaults = map[string]string{
	SiteName:     "Our Menu",
	PrimaryColor: "#0d6efd",
	ShowPrices:   "1",
}

// Remote is the part of the store the service needs.
type Remote interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Site is the resolved set of settings used to render pages.
type Site struct {
	Name          string
	WhatsAppPhone string
	LogoURL       string
	PrimaryColor  string
	ShowPrices    bool
	Tagline       string
}

// CheckoutEnabled reports whether a WhatsApp number is configured.
func (s Site) CheckoutEnabled() bool {
	return strings.TrimSpace(s.WhatsAppPhone) != ""
}

type value struct {
	Value string
	Set   bool
}

// Service caches settings lookups. Lookup failures are logged and treated as
// unset so pages still render.
type Service struct {
	log    logger.Logger
	remote Remote
	cache  cache.Cache
	ttl    time.Duration
}

// New returns a Service. A zero ttl uses DefaultTTL.
func New(log logger.Logger, remote Remote, c cache.Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{log: log.WithPrefix("[settings]"), remote: remote, cache: c, ttl: ttl}
}

func cacheKey(key string) string { return "setting:" + key }

// Lookup returns the stored value and whether the key is set.
func (s *Service) Lookup(ctx context.Context, key string) (string, bool, error) {
	_, v, err := cache.Exec(ctx, cache.CacheConfig{Key: cacheKey(key), Expires: s.ttl}, s.cache,
		func(ctx context.Context) (value, bool, error) {
			val, ok, err := s.remote.GetSetting(ctx, key)
			if err != nil {
				return value{}, false, err
			}
			return value{Value: val, Set: ok}, true, nil
		})
	if err != nil {
		return "", false, errors.Wrapf(err, "lookup setting %s", key)
	}
	return v.Value, v.Set, nil
}

// Get returns the value of key, its default when unset, or the default when
// the lookup fails.
func (s *Service) Get(ctx context.Context, key string) string {
	val, ok, err := s.Lookup(ctx, key)
	if err != nil {
		s.log.Warn("%s", err)
	}
	if !ok {
		return defaults[key]
	}
	return val
}

// All returns every known setting with defaults applied.
func (s *Service) All(ctx context.Context) map[string]string {
	out := make(map[string]string, len(Keys))
	for _, key := range Keys {
		out[key] = s.Get(ctx, key)
	}
	return out
}

// Site resolves the settings used by page templates.
func (s *Service) Site(ctx context.Context) Site {
	all := s.All(ctx)
	return Site{
		Name:          all[SiteName],
		WhatsAppPhone: strings.TrimSpace(all[WhatsAppPhone]),
		LogoURL:       all[LogoURL],
		PrimaryColor:  all[PrimaryColor],
		ShowPrices:    menu.ParseBool(all[ShowPrices]),
		Tagline:       all[Tagline],
	}
}

// Set writes key remotely and drops the cached value.
func (s *Service) Set(ctx context.Context, key, val string) error {
	if err := s.remote.SetSetting(ctx, key, val); err != nil {
		return errors.Wrapf(err, "save setting %s", key)
	}
	if _, err := s.cache.Delete(ctx, cacheKey(key)); err != nil {
		s.log.Warn("failed to invalidate setting %s: %s", key, err)
	}
	return nil
}

// SetAll writes each value, stopping at the first failure.
func (s *Service) SetAll(ctx context.Context, values map[string]string) error {
	for _, key := range Keys {
		val, ok := values[key]
		if !ok {
			continue
		}
		if err := s.Set(ctx, key, val); err != nil {
			return err
		}
	}
	return nil
}
