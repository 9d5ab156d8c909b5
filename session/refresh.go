package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	defaultRefreshTimeout = 10 * time.Second

	// refreshKey is the only singleflight key: there is one session per process.
	refreshKey = "refresh"
)

// Doer sends a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// refreshResponse is the body of a successful POST /auth/refresh.
type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

// Refresher renews the access token using the refresh credential the
// transport attaches on its own (an HTTP-only cookie). Concurrent callers
// share one outstanding refresh.
type Refresher struct {
	store    *TokenStore
	doer     Doer
	url      string
	timeout  time.Duration
	group    singleflight.Group
	notifier Notifier
	logger   *slog.Logger
}

// RefresherOption configures a Refresher
type RefresherOption func(*Refresher)

// WithRefreshTimeout bounds a single refresh call
func WithRefreshTimeout(d time.Duration) RefresherOption {
	return func(r *Refresher) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRefreshNotifier reports refresh progress to n
func WithRefreshNotifier(n Notifier) RefresherOption {
	return func(r *Refresher) {
		if n != nil {
			r.notifier = n
		}
	}
}

// WithRefreshLogger sets the diagnostic logger
func WithRefreshLogger(l *slog.Logger) RefresherOption {
	return func(r *Refresher) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRefresher creates a Refresher that posts to refreshURL through doer.
// doer must be the plain transport, never a Client, or a 401 from the refresh
// endpoint would recurse.
func NewRefresher(store *TokenStore, doer Doer, refreshURL string, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		store:    store,
		doer:     doer,
		url:      refreshURL,
		timeout:  defaultRefreshTimeout,
		notifier: NoopNotifier{},
		logger:   discardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh returns a freshly issued access token. If a refresh is already in
// flight the caller waits for that one instead of starting another.
//
// On failure the store is expired and every waiter receives the same error.
// ctx only bounds this caller's wait; the shared refresh keeps running for
// the other waiters.
func (r *Refresher) Refresh(ctx context.Context) (string, error) {
	return r.shared(ctx, r.refresh)
}

// RefreshFrom refreshes unless the store already moved past stale, in which
// case the newer token is returned without another call to the backend. If
// a refresh already failed since stale was read, ErrSessionExpired is
// returned without trying again.
func (r *Refresher) RefreshFrom(ctx context.Context, stale string) (string, error) {
	if token, ok, err := r.settled(stale); ok {
		return token, err
	}
	return r.shared(ctx, func(ctx context.Context) (string, error) {
		return r.refreshUnlessSettled(ctx, stale)
	})
}

func (r *Refresher) shared(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	detached := context.WithoutCancel(ctx)
	ch := r.group.DoChan(refreshKey, func() (any, error) {
		return fn(detached)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// refreshUnlessSettled runs inside the shared flight. A refresh that finished
// between the caller's first look at the store and the flight starting must
// not be followed by a second one.
func (r *Refresher) refreshUnlessSettled(ctx context.Context, stale string) (string, error) {
	if token, ok, err := r.settled(stale); ok {
		return token, err
	}
	return r.refresh(ctx)
}

// settled reports whether the store has moved on from stale, either to a
// newer token or to expired.
func (r *Refresher) settled(stale string) (string, bool, error) {
	current := r.store.Get()
	if current != "" && current != stale {
		r.logger.Debug("token already refreshed by another caller", "token", tokenPreview(current))
		return current, true, nil
	}
	if current == "" && stale != "" && r.store.Expired() {
		return "", true, ErrSessionExpired
	}
	return "", false, nil
}

// refresh runs once per outstanding operation. singleflight forgets the key
// as soon as this returns, whatever the outcome.
func (r *Refresher) refresh(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.notifier.Refreshing()
	r.logger.Debug("refreshing access token", "url", r.url)

	token, err := r.requestToken(ctx)
	if err != nil {
		r.store.Expire()
		r.notifier.RefreshFailed(err)
		r.logger.Warn("token refresh failed", "error", err)
		return "", err
	}

	r.store.Set(token)
	r.notifier.RefreshOK()
	r.logger.Debug("access token refreshed", "token", tokenPreview(token))
	return token, nil
}

func (r *Refresher) requestToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, strings.NewReader("{}"))
	if err != nil {
		return "", fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.doer.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read refresh response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("refresh failed with status %d: %w", resp.StatusCode, &oauth2.RetrieveError{
			Response: resp,
			Body:     body,
		})
	}

	var tokenResp refreshResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse refresh response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", errors.New("refresh response has no accessToken")
	}

	return tokenResp.AccessToken, nil
}

// TokenSource adapts the store and refresher to oauth2.TokenSource for
// consumers that speak that interface. A missing token triggers a refresh.
func (r *Refresher) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &refresherTokenSource{ctx: ctx, r: r}
}

type refresherTokenSource struct {
	ctx context.Context
	r   *Refresher
}

func (s *refresherTokenSource) Token() (*oauth2.Token, error) {
	token := s.r.store.Get()
	if token == "" {
		if s.r.store.Expired() {
			return nil, ErrSessionExpired
		}
		var err error
		if token, err = s.r.Refresh(s.ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSessionExpired, err)
		}
	}

	tok := &oauth2.Token{AccessToken: token, TokenType: "Bearer"}
	if exp, ok := tokenExpiry(token); ok {
		tok.Expiry = exp
	}
	return tok, nil
}
