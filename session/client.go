package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	defaultRefreshPath = "/auth/refresh"

	// RequestIDHeader carries one id per logical call; the retry reuses it.
	RequestIDHeader = "X-Request-ID"

	// maxUnauthorizedBody bounds how much of a 401 body is inspected.
	maxUnauthorizedBody = 64 << 10
)

// Client executes requests against the dashboard API with the current access
// token, refreshing it and retrying once when the backend reports it expired.
type Client struct {
	baseURL     *url.URL
	doer        Doer
	authDoer    Doer
	store       *TokenStore
	refresher   *Refresher
	refreshPath string
	notifier    Notifier
	logger      *slog.Logger

	// hasRefreshCredential tells a cold start whether a refresh is worth trying.
	hasRefreshCredential func() bool
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithTokenStore shares an existing store with the client
func WithTokenStore(s *TokenStore) ClientOption {
	return func(c *Client) {
		c.store = s
	}
}

// WithAuthDoer sends the refresh and login calls through d instead of the
// request transport. Those calls are not idempotent, so d must never retry.
func WithAuthDoer(d Doer) ClientOption {
	return func(c *Client) {
		c.authDoer = d
	}
}

// WithRefreshPath overrides the refresh endpoint, relative to the base URL
func WithRefreshPath(path string) ClientOption {
	return func(c *Client) {
		c.refreshPath = path
	}
}

// WithNotifier reports rejection, refresh and retry events to n
func WithNotifier(n Notifier) ClientOption {
	return func(c *Client) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithLogger sets the diagnostic logger
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRefreshCredentialCheck reports whether a refresh credential is likely
// present, so that a request without a token refreshes before it is sent.
func WithRefreshCredentialCheck(fn func() bool) ClientOption {
	return func(c *Client) {
		c.hasRefreshCredential = fn
	}
}

// NewClient creates a client for the API rooted at baseURL. doer is the plain
// transport; it must send cookies so the refresh credential reaches the backend.
func NewClient(baseURL string, doer Doer, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL must be absolute, got: %s", baseURL)
	}
	if doer == nil {
		doer = http.DefaultClient
	}

	c := &Client{
		baseURL:     u,
		doer:        doer,
		refreshPath: defaultRefreshPath,
		notifier:    NoopNotifier{},
		logger:      discardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.store == nil {
		c.store = NewTokenStore(WithStoreLogger(c.logger))
	}
	if c.authDoer == nil {
		c.authDoer = doer
	}
	refreshURL, err := c.resolve(c.refreshPath)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh path: %w", err)
	}
	c.refresher = NewRefresher(c.store, c.authDoer, refreshURL,
		WithRefreshNotifier(c.notifier),
		WithRefreshLogger(c.logger),
	)
	if c.hasRefreshCredential == nil {
		c.hasRefreshCredential = c.jarHasRefreshCookie
	}

	return c, nil
}

// BaseURL returns the API root this client resolves paths against
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Store returns the shared token store
func (c *Client) Store() *TokenStore {
	return c.store
}

// Refresher returns the shared refresher
func (c *Client) Refresher() *Refresher {
	return c.refresher
}

// AuthDoer returns the transport for refresh and login, without authentication
func (c *Client) AuthDoer() Doer {
	return c.authDoer
}

// NewRequest builds a request for path, which is resolved against the base
// URL unless it is absolute.
func (c *Client) NewRequest(
	ctx context.Context,
	method, path string,
	body io.Reader,
) (*http.Request, error) {
	target, err := c.resolve(path)
	if err != nil {
		return nil, fmt.Errorf("invalid request path %q: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return req, nil
}

// Do sends req with the current access token.
//
// A 401 with an empty body is taken to mean the token expired: the token is
// refreshed (shared with any concurrent caller) and the request is sent one
// more time. Whatever the retry returns is returned as is. A 401 that carries
// a body is a real authorization failure and is returned without a refresh.
// Every other response is returned unmodified. If the refresh fails the error
// matches ErrSessionExpired.
//
// req is not modified; its body is read at most once and closed.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	getBody, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	requestID := req.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	token, err := c.currentToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(req, getBody, token, requestID)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	body, err := peekBody(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read 401 response: %w", err)
	}
	if !isEmptyBody(body) {
		c.logger.Debug("401 with body, not refreshing",
			"method", req.Method, "url", req.URL.Redacted(), "request_id", requestID)
		return resp, nil
	}
	resp.Body.Close()

	c.notifier.AccessTokenRejected()
	c.logger.Debug("access token rejected",
		"method", req.Method, "url", req.URL.Redacted(), "request_id", requestID)

	newToken, err := c.refresher.RefreshFrom(ctx, token)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, ErrSessionExpired):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}

	c.notifier.TokenRefreshedRetrying()
	return c.send(req, getBody, newToken, requestID)
}

// currentToken returns the token to send. An empty token with no error means
// the request goes out unauthenticated.
func (c *Client) currentToken(ctx context.Context) (string, error) {
	if token := c.store.Get(); token != "" {
		return token, nil
	}
	if c.store.Expired() {
		return "", ErrSessionExpired
	}
	if !c.hasRefreshCredential() {
		return "", nil
	}

	// Cold start: only the refresh credential survived.
	token, err := c.refresher.Refresh(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	return token, nil
}

func (c *Client) send(
	req *http.Request,
	getBody func() (io.ReadCloser, error),
	token, requestID string,
) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.Body = nil
	if getBody != nil {
		body, err := getBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		out.Body = body
		out.GetBody = getBody
	}

	out.Header.Set(RequestIDHeader, requestID)
	if token != "" {
		(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(out)
	} else {
		out.Header.Del("Authorization")
	}

	resp, err := c.doer.Do(out)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", req.Method, req.URL.Redacted(), err)
	}
	return resp, nil
}

// resolve joins ref onto the base URL unless ref is absolute.
func (c *Client) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if u.IsAbs() {
		return u.String(), nil
	}

	out := *c.baseURL
	out.Path = strings.TrimRight(c.baseURL.Path, "/") + "/" + strings.TrimLeft(u.Path, "/")
	out.RawPath = ""
	out.RawQuery = u.RawQuery
	out.Fragment = ""
	return out.String(), nil
}

// jarHasRefreshCookie is the default refresh-credential check: any cookie the
// jar would send to the refresh endpoint.
func (c *Client) jarHasRefreshCookie() bool {
	hc, ok := c.authDoer.(*http.Client)
	if !ok || hc.Jar == nil {
		return false
	}
	refreshURL, err := c.resolve(c.refreshPath)
	if err != nil {
		return false
	}
	u, err := url.Parse(refreshURL)
	if err != nil {
		return false
	}
	return len(hc.Jar.Cookies(u)) > 0
}

// Transport exposes the client as an http.RoundTripper.
func (c *Client) Transport() http.RoundTripper {
	return roundTripperFunc(c.Do)
}

// HTTPClient returns an *http.Client whose requests go through Do.
func (c *Client) HTTPClient() *http.Client {
	return &http.Client{Transport: c.Transport()}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// replayableBody returns a function that yields a fresh copy of the request
// body for every send, or nil when there is no body. Bodies without GetBody
// are buffered once.
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		req.Body.Close()
		return req.GetBody, nil
	}

	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to buffer request body: %w", err)
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, nil
}

// peekBody reads up to maxUnauthorizedBody bytes and puts them back so the
// caller still sees the full body.
func peekBody(resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxUnauthorizedBody))
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	resp.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(data), resp.Body), resp.Body}
	return data, nil
}

// FetchJSON sends a JSON request through c and decodes the JSON response
// into T. in is marshalled as the body unless nil. Non-2xx responses become
// *HTTPError carrying the backend's message.
func FetchJSON[T any](ctx context.Context, c *Client, method, path string, in any) (T, error) {
	var zero T

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return zero, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.NewRequest(ctx, method, path, body)
	if err != nil {
		return zero, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	if err != nil {
		return zero, err
	}
	return DecodeJSON[T](resp)
}

// DecodeJSON reads and closes resp, decoding a 2xx body into T. Empty bodies
// decode to the zero value.
func DecodeJSON[T any](resp *http.Response) (T, error) {
	var out T
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, newHTTPError(resp.StatusCode, data)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to parse response: %w", err)
	}
	return out, nil
}

// CheckResponse drains and closes resp, turning a non-2xx status into
// *HTTPError. For calls whose success body is irrelevant.
func CheckResponse(resp *http.Response) error {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newHTTPError(resp.StatusCode, data)
	}
	return nil
}

// IsSessionExpired reports whether err means the user must log in again.
func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}
