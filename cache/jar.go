package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

const jarWriteTimeout = 5 * time.Second

// Jar is an http.CookieJar that also persists the cookies the server sets,
// so an HTTP-only refresh cookie outlives the process. Only cookies set by
// the origin host are persisted.
type Jar struct {
	jar    *cookiejar.Jar
	store  Store
	key    string
	origin *url.URL
	logger *slog.Logger

	mu sync.Mutex
}

// JarOption configures a Jar
type JarOption func(*Jar)

// WithJarLogger sets the logger for persistence failures
func WithJarLogger(l *slog.Logger) JarOption {
	return func(j *Jar) {
		if l != nil {
			j.logger = l
		}
	}
}

// NewJar creates a jar for origin and replays the unexpired cookies cached
// under key.
func NewJar(ctx context.Context, store Store, key, origin string, opts ...JarOption) (*Jar, error) {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid cookie origin %q", origin)
	}

	inner, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	j := &Jar{
		jar:    inner,
		store:  store,
		key:    key,
		origin: &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(j)
	}

	entry, err := store.Load(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		j.logger.Warn("failed to load cached cookies", "error", err)
	default:
		now := time.Now()
		var restored []*http.Cookie
		for _, c := range entry.Cookies {
			if !c.Expires.IsZero() && !now.Before(c.Expires) {
				continue
			}
			restored = append(restored, c.toHTTP())
		}
		inner.SetCookies(j.origin, restored)
	}

	return j, nil
}

// Cookies implements http.CookieJar
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	return j.jar.Cookies(u)
}

// SetCookies implements http.CookieJar
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.jar.SetCookies(u, cookies)
	if len(cookies) == 0 || !strings.EqualFold(u.Host, j.origin.Host) {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), jarWriteTimeout)
	defer cancel()

	now := time.Now()
	err := j.store.Update(ctx, j.key, func(e *Entry) error {
		for _, hc := range cookies {
			e.Cookies = mergeCookie(e.Cookies, hc, now)
		}
		return nil
	})
	if err != nil {
		j.logger.Warn("failed to persist cookies", "error", err)
	}
}

// HasCookies reports whether the jar would send any cookie to rawURL.
func (j *Jar) HasCookies(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return len(j.jar.Cookies(u)) > 0
}

// mergeCookie replaces the cookie with the same name and path, or drops it
// when the server expired it.
func mergeCookie(cookies []Cookie, hc *http.Cookie, now time.Time) []Cookie {
	out := cookies[:0:0]
	for _, c := range cookies {
		if c.Name == hc.Name && c.Path == hc.Path {
			continue
		}
		out = append(out, c)
	}

	c := fromHTTP(hc, now)
	if hc.MaxAge < 0 || (!c.Expires.IsZero() && !now.Before(c.Expires)) {
		return out
	}
	return append(out, c)
}

func fromHTTP(hc *http.Cookie, now time.Time) Cookie {
	c := Cookie{
		Name:     hc.Name,
		Value:    hc.Value,
		Path:     hc.Path,
		Domain:   hc.Domain,
		Expires:  hc.Expires,
		Secure:   hc.Secure,
		HttpOnly: hc.HttpOnly,
		SameSite: hc.SameSite,
	}
	if hc.MaxAge > 0 {
		c.Expires = now.Add(time.Duration(hc.MaxAge) * time.Second)
	}
	return c
}

func (c Cookie) toHTTP() *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		Expires:  c.Expires,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
		SameSite: c.SameSite,
	}
}
