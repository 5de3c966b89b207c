// Package cookiestore persists values in cookies scoped to a root domain so
// every subdomain of the product family reads the same values.
package cookiestore

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Cookie names shared by the vibz.world subdomains.
const (
	ReturnURLCookie = "vibz_return_url"
	UsernameCookie  = "vibz_username"
	IDCookie        = "vibz_id"
)

const defaultMaxAge = 365 * 24 * time.Hour

// Jar is the cookie surface of one request/response exchange.
type Jar interface {
	Cookie(name string) (string, bool)
	SetCookie(cookie *http.Cookie)
}

// Store reads and writes domain-wide cookies through a Jar.
type Store struct {
	domain string
	secure bool
	maxAge time.Duration
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithSecure sets the Secure attribute on written cookies.
func WithSecure(secure bool) Option {
	return func(s *Store) {
		s.secure = secure
	}
}

// WithMaxAge overrides the 365 day lifetime.
func WithMaxAge(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.maxAge = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a Store for rootDomain, e.g. ".vibz.world". An empty root
// domain writes host-only cookies.
func New(rootDomain string, opts ...Option) *Store {
	s := &Store{
		domain: strings.TrimSpace(rootDomain),
		secure: true,
		maxAge: defaultMaxAge,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Domain returns the configured root domain.
func (s *Store) Domain() string {
	return s.domain
}

// Get returns the value stored under key. A missing or empty cookie is
// reported as absent.
func (s *Store) Get(jar Jar, key string) (string, bool) {
	raw, ok := jar.Cookie(key)
	if !ok || raw == "" {
		return "", false
	}
	value, err := url.PathUnescape(raw)
	if err != nil {
		return raw, true
	}
	return value, true
}

// Set writes key under the root domain, path "/", SameSite=Lax.
func (s *Store) Set(jar Jar, key, value string) {
	jar.SetCookie(&http.Cookie{
		Name:     key,
		Value:    url.PathEscape(value),
		Domain:   s.domain,
		Path:     "/",
		MaxAge:   int(s.maxAge / time.Second),
		Expires:  s.now().Add(s.maxAge).UTC(),
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Remove expires key under every attribute combination it may have been
// written with. Browsers ignore a deletion whose Domain or Path differ from
// the stored cookie, so three variants are sent: domain and path, path
// only, and no attributes.
func (s *Store) Remove(jar Jar, key string) {
	for _, c := range s.removalCookies(key) {
		jar.SetCookie(c)
	}
}

// RemoveAll removes every key.
func (s *Store) RemoveAll(jar Jar, keys ...string) {
	for _, key := range keys {
		s.Remove(jar, key)
	}
}

func (s *Store) removalCookies(key string) []*http.Cookie {
	expired := time.Unix(0, 0).UTC()
	return []*http.Cookie{
		{
			Name:     key,
			Domain:   s.domain,
			Path:     "/",
			MaxAge:   -1,
			Expires:  expired,
			Secure:   s.secure,
			SameSite: http.SameSiteLaxMode,
		},
		{
			Name:    key,
			Path:    "/",
			MaxAge:  -1,
			Expires: expired,
		},
		{
			Name:    key,
			MaxAge:  -1,
			Expires: expired,
		},
	}
}
