package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/redis/go-redis/v9"

	"github.com/go-authgate/dashboard-cli/cache"
	"github.com/go-authgate/dashboard-cli/dashboard"
	"github.com/go-authgate/dashboard-cli/session"
	"github.com/go-authgate/dashboard-cli/tui"
)

const redisPingTimeout = 3 * time.Second

// errNoCredentials is returned when a command needs a session, none could be
// restored, and no email/password are configured.
var errNoCredentials = fmt.Errorf(
	"%w: run `dashboard-cli login` or set DASHBOARD_EMAIL and DASHBOARD_PASSWORD",
	session.ErrNotAuthenticated,
)

// app holds everything a command needs.
type app struct {
	cfg    *Config
	d      tui.Displayer
	logger *slog.Logger
	out    io.Writer

	store   cache.Store
	jar     *cache.Jar
	client  *session.Client
	session *session.Session
	api     *dashboard.Service
}

// newApp wires the cache, cookie jar, HTTP transport and session together.
// The returned cleanup closes the cache.
func newApp(ctx context.Context, cfg *Config, d tui.Displayer, logger *slog.Logger, out io.Writer) (*app, func(), error) {
	store, err := openCache(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close session cache", "error", err)
		}
	}

	key := cache.KeyFor(cfg.ServerURL)
	jar, err := cache.NewJar(ctx, store, key, cfg.ServerURL, cache.WithJarLogger(logger))
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	doer, authDoer, err := newHTTPDoer(cfg, jar, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	tokens := session.NewTokenStore(
		session.WithMirror(cache.NewMirror(store, key)),
		session.WithStoreLogger(logger),
	)
	refreshURL := cfg.ServerURL + "/auth/refresh"
	client, err := session.NewClient(cfg.ServerURL, doer,
		session.WithTokenStore(tokens),
		session.WithAuthDoer(authDoer),
		session.WithNotifier(d),
		session.WithLogger(logger),
		session.WithRefreshCredentialCheck(func() bool {
			return jar.HasCookies(refreshURL)
		}),
	)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return &app{
		cfg:     cfg,
		d:       d,
		logger:  logger,
		out:     out,
		store:   store,
		jar:     jar,
		client:  client,
		session: session.NewSession(client, store, session.WithSessionLogger(logger)),
		api:     dashboard.New(client),
	}, cleanup, nil
}

// openCache returns the configured session cache backend.
func openCache(ctx context.Context, cfg *Config, logger *slog.Logger) (cache.Store, error) {
	switch cfg.CacheBackend {
	case cacheSQLite:
		return cache.OpenSQLite(cfg.SQLitePath)
	case cacheRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return cache.NewRedisStore(rdb, ""), nil
	case cacheNone:
		return cache.NewMemoryStore(), nil
	default:
		return cache.NewFileStore(cfg.CacheFile, cache.WithFileLogger(logger)), nil
	}
}

// retryDoer sends idempotent requests through the retry client and
// everything else through the plain one, so a POST is never re-sent.
type retryDoer struct {
	plain *http.Client
	retry *retry.Client
}

func (r retryDoer) Do(req *http.Request) (*http.Response, error) {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return r.retry.DoWithContext(req.Context(), req)
	default:
		return r.plain.Do(req)
	}
}

// newHTTPDoer builds the transports. The cookie-aware http.Client is returned
// as is for refresh and login; requests go through go-httpretry, which only
// retries idempotent methods.
func newHTTPDoer(cfg *Config, jar http.CookieJar, logger *slog.Logger) (session.Doer, *http.Client, error) {
	baseHTTPClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
		Jar:     jar,
		Timeout: cfg.Timeout,
	}

	rc, err := retry.NewBackgroundClient(
		retry.WithHTTPClient(baseHTTPClient),
		retry.WithMaxRetries(cfg.Retries),
		retry.WithLogger(retry.NewSlogAdapter(logger)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create retry client: %w", err)
	}
	return retryDoer{plain: baseHTTPClient, retry: rc}, baseHTTPClient, nil
}

// newLogger returns the diagnostic logger. Under the TUI, logs go nowhere
// unless a log file is configured, so they cannot corrupt the screen.
func newLogger(cfg *Config, tty bool) (*slog.Logger, func(), error) {
	opts := &slog.HandlerOptions{Level: cfg.logLevel}

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return slog.New(slog.NewTextHandler(f, opts)), func() { f.Close() }, nil
	}

	var w io.Writer = os.Stderr
	if tty {
		w = io.Discard
	}
	return slog.New(slog.NewTextHandler(w, opts)), func() {}, nil
}

// ensureSession restores the session and, if that leaves it
// unauthenticated, logs in with the configured credentials.
func (a *app) ensureSession(ctx context.Context) error {
	a.d.Bootstrapping()
	if a.session.Bootstrap(ctx) == session.StatusAuthenticated {
		a.d.SessionRestored(userLabel(a.session.User()), a.session.Degraded())
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	a.d.SessionMissing()

	if a.cfg.Email == "" || a.cfg.Password == "" {
		return errNoCredentials
	}
	return a.login(ctx)
}

func (a *app) login(ctx context.Context) error {
	if a.cfg.Email == "" || a.cfg.Password == "" {
		return errors.New("login needs -email and -password (or DASHBOARD_EMAIL and DASHBOARD_PASSWORD)")
	}

	a.d.LoggingIn(a.cfg.Email)
	user, err := a.session.Login(ctx, session.Credentials{
		Email:    a.cfg.Email,
		Password: a.cfg.Password,
	})
	if err != nil {
		a.d.LoginFailed(err)
		return err
	}
	a.d.LoginOK(userLabel(user))
	return nil
}

// restaurantID picks the explicit id or falls back to the session's.
func (a *app) restaurantID(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if id := a.session.RestaurantID(); id != "" {
		return id, nil
	}
	return "", errors.New("restaurant id unknown: pass -restaurant")
}

// fetch reports progress around one API call.
func fetch[T any](a *app, what string, fn func() (T, error)) (T, error) {
	a.d.Fetching(what)
	v, err := fn()
	if err != nil {
		return v, err
	}
	a.d.FetchOK(what)
	return v, nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func userLabel(u *session.User) string {
	if u == nil {
		return ""
	}
	if u.Name != "" {
		return fmt.Sprintf("%s <%s>", u.Name, u.Email)
	}
	return u.Email
}
