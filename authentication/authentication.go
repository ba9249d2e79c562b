// Package authentication issues and checks the HMAC-signed tokens used for
// the admin bearer token and the session cookie.
package authentication

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/xhit/go-str2duration/v2"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrInvalidToken = errors.New("invalid token")
)

// MaxTokenLifetime bounds WithExpiration and WithTTL.
const MaxTokenLifetime = 365 * 24 * time.Hour

var now = time.Now

type TokenOpt func(*tokenOpts) error

type tokenOpts struct {
	nonce string
	ttl   time.Duration
}

// WithTTL makes the token expire ttl after issue. The lifetime is rounded to
// the minute.
func WithTTL(ttl time.Duration) TokenOpt {
	return func(opts *tokenOpts) error {
		if ttl <= 0 {
			return errors.New("expiration time is in the past")
		}
		if ttl > MaxTokenLifetime {
			return errors.New("expiration time exceeds maximum of 1 year")
		}
		opts.ttl = max(ttl.Round(time.Minute), time.Minute)
		return nil
	}
}

// WithExpiration makes the token expire at expiration.
func WithExpiration(expiration time.Time) TokenOpt {
	return WithTTL(expiration.Sub(now()))
}

// WithNonce sets the signed value of a non-expiring token.
func WithNonce(nonce string) TokenOpt {
	return func(opts *tokenOpts) error {
		if nonce == "" || strings.Contains(nonce, ".") {
			return errors.New("nonce must be non-empty and must not contain '.'")
		}
		opts.nonce = nonce
		return nil
	}
}

func mac(sharedSecret, value string) string {
	h := hmac.New(sha256.New, []byte(sharedSecret))
	h.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// NewBearerToken returns "<nonce>.<signature>" for a non-expiring token or
// "<ttl>.<issued unix>.<signature>" when a lifetime is set. Without options
// the nonce is random.
func NewBearerToken(sharedSecret string, opts ...TokenOpt) (string, error) {
	if sharedSecret == "" {
		return "", errors.New("shared secret is required")
	}
	var o tokenOpts
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return "", err
		}
	}
	nonce := o.nonce
	switch {
	case o.ttl > 0:
		nonce = str2duration.String(o.ttl) + "." + strconv.FormatInt(now().Unix(), 10)
	case nonce == "":
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return "", errors.Wrap(err, "generate nonce")
		}
		nonce = fmt.Sprintf("%x", buf)
	}
	return nonce + "." + mac(sharedSecret, nonce), nil
}

// ValidateToken checks the signature and, for expiring tokens, the lifetime.
func ValidateToken(sharedSecret string, token string) error {
	_, err := parse(sharedSecret, token)
	return err
}

// Nonce validates token and returns the value it signs.
func Nonce(sharedSecret string, token string) (string, error) {
	return parse(sharedSecret, token)
}

func parse(sharedSecret, token string) (string, error) {
	if sharedSecret == "" || len(token) < 32 {
		return "", ErrInvalidToken
	}
	parts := strings.Split(token, ".")

	var signed, signature string
	var expiration time.Time
	switch len(parts) {
	case 2:
		signed, signature = parts[0], parts[1]
	case 3:
		ttl, err := str2duration.ParseDuration(parts[0])
		if err != nil || ttl <= 0 {
			return "", ErrInvalidToken
		}
		issued, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return "", ErrInvalidToken
		}
		expiration = time.Unix(issued, 0).Add(ttl)
		signed, signature = parts[0]+"."+parts[1], parts[2]
	default:
		return "", ErrInvalidToken
	}
	if signed == "" {
		return "", ErrInvalidToken
	}
	if subtle.ConstantTimeCompare([]byte(mac(sharedSecret, signed)), []byte(signature)) == 0 {
		return "", ErrInvalidToken
	}
	if !expiration.IsZero() && !now().Before(expiration) {
		return "", ErrTokenExpired
	}
	return signed, nil
}
