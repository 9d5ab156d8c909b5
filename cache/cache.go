// Package cache persists the parts of a dashboard session that should
// survive a restart: the last access token, the cached user and restaurant
// profile, and the cookies the backend set (including the HTTP-only refresh
// cookie). Everything here is best effort; the backend stays authoritative.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound is returned by Load when nothing is cached for a key.
var ErrNotFound = errors.New("no cached session")

// Entry is everything cached for one server.
type Entry struct {
	AccessToken string          `json:"access_token,omitempty"`
	User        json.RawMessage `json:"user,omitempty"`
	Restaurant  json.RawMessage `json:"restaurant,omitempty"`
	Cookies     []Cookie        `json:"cookies,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Empty reports whether the entry holds nothing worth keeping.
func (e *Entry) Empty() bool {
	return e.AccessToken == "" && len(e.User) == 0 && len(e.Restaurant) == 0 && len(e.Cookies) == 0
}

func (e *Entry) clone() *Entry {
	out := *e
	out.User = append(json.RawMessage(nil), e.User...)
	out.Restaurant = append(json.RawMessage(nil), e.Restaurant...)
	out.Cookies = append([]Cookie(nil), e.Cookies...)
	return &out
}

// Cookie is the persisted form of an http.Cookie.
type Cookie struct {
	Name     string        `json:"name"`
	Value    string        `json:"value"`
	Path     string        `json:"path,omitempty"`
	Domain   string        `json:"domain,omitempty"`
	Expires  time.Time     `json:"expires,omitzero"`
	Secure   bool          `json:"secure,omitempty"`
	HttpOnly bool          `json:"http_only,omitempty"`
	SameSite http.SameSite `json:"same_site,omitempty"`
}

// Store is a keyed session cache. Update is an atomic read-modify-write:
// fn sees the current entry (zero if none) and its changes are saved; an
// entry left empty is deleted.
type Store interface {
	Load(ctx context.Context, key string) (*Entry, error)
	Update(ctx context.Context, key string, fn func(*Entry) error) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// KeyFor normalises a server URL into a cache key.
func KeyFor(serverURL string) string {
	u, err := url.Parse(serverURL)
	if err != nil || u.Host == "" {
		return strings.TrimRight(serverURL, "/")
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + strings.TrimRight(u.Path, "/")
}

// apply runs fn against current (nil meaning absent) and reports the entry
// to save, or nil when it should be deleted.
func apply(current *Entry, fn func(*Entry) error) (*Entry, error) {
	e := &Entry{}
	if current != nil {
		e = current.clone()
	}
	if err := fn(e); err != nil {
		return nil, err
	}
	if e.Empty() {
		return nil, nil
	}
	e.UpdatedAt = time.Now().UTC()
	return e, nil
}
