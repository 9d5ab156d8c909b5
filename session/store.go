// Package session holds the authenticated side of the dashboard client: the
// process-wide access token, the single-flight refresh against the backend's
// cookie-based refresh endpoint, and the request executor that retries once
// after a refresh.
package session

import (
	"log/slog"
	"sync"
)

// TokenMirror receives a best-effort copy of every token write.
// An empty token means the token was cleared.
type TokenMirror interface {
	MirrorToken(token string) error
}

// TokenStore is the single source of truth for the current access token.
// One instance is created per process and shared by reference.
type TokenStore struct {
	mu      sync.RWMutex
	token   string
	expired bool

	mirrorMu sync.Mutex
	mirror   TokenMirror
	logger   *slog.Logger
}

// StoreOption configures a TokenStore
type StoreOption func(*TokenStore)

// WithMirror mirrors every token write to m. Mirror errors are logged, never returned.
func WithMirror(m TokenMirror) StoreOption {
	return func(s *TokenStore) {
		s.mirror = m
	}
}

// WithStoreLogger sets the logger used for mirror failures
func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *TokenStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewTokenStore creates an empty store.
func NewTokenStore(opts ...StoreOption) *TokenStore {
	s := &TokenStore{logger: discardLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the current token, or "" when none is held.
func (s *TokenStore) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Set replaces the stored token. The value is not parsed or verified.
// Setting "" is equivalent to Clear without marking the session expired.
func (s *TokenStore) Set(token string) {
	s.mu.Lock()
	changed := s.token != token
	s.token = token
	if token != "" {
		s.expired = false
	}
	s.mu.Unlock()

	if changed {
		s.mirrorWrite()
	}
}

// Clear drops the token, e.g. on logout.
func (s *TokenStore) Clear() {
	s.Set("")
}

// Expire drops the token and records that the session could not be renewed.
// Requests that need a token fail fast until a new token is Set.
func (s *TokenStore) Expire() {
	s.mu.Lock()
	changed := s.token != ""
	s.token = ""
	s.expired = true
	s.mu.Unlock()

	if changed {
		s.mirrorWrite()
	}
}

// Expired reports whether the last refresh failed and no token was set since.
func (s *TokenStore) Expired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expired
}

// mirrorWrite copies the latest value, so racing writers leave the mirror
// holding whatever the store holds.
func (s *TokenStore) mirrorWrite() {
	if s.mirror == nil {
		return
	}
	s.mirrorMu.Lock()
	defer s.mirrorMu.Unlock()
	if err := s.mirror.MirrorToken(s.Get()); err != nil {
		s.logger.Warn("failed to mirror access token", "error", err)
	}
}
