// Package proxy serves the dashboard API on a local address, authenticated
// with the CLI's session. Local tools can call it without handling tokens.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/go-authgate/dashboard-cli/session"
)

const (
	apiPrefix       = "/api/"
	shutdownTimeout = 5 * time.Second
)

// errorBody is the JSON body returned when the upstream call fails.
type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type options struct {
	logger *slog.Logger
}

// Option configures the proxy handler
type Option func(*options)

// WithLogger logs each proxied request at debug level and failures at warn.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// New returns a handler that forwards /api/{path} to target/{path}, keeping
// method, query and body. rt performs the upstream call; pass
// session.Client.Transport() so requests carry the access token.
func New(target string, rt http.RoundTripper, opts ...Option) (http.Handler, error) {
	base, err := url.Parse(strings.TrimRight(target, "/"))
	if err != nil {
		return nil, err
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.New("proxy target must be an absolute URL")
	}

	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			rewrite(pr, base)
		},
		Transport: rt,
		ModifyResponse: func(resp *http.Response) error {
			// The session owns the server's cookies.
			resp.Header.Del("Set-Cookie")
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			o.logger.Warn("upstream request failed",
				"method", r.Method, "path", r.URL.Path, "error", err)
			writeUpstreamError(w, err)
		},
	}

	r := mux.NewRouter()
	r.Use(logRequests(o.logger))
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet, http.MethodHead)
	r.PathPrefix(apiPrefix).Handler(rp)

	return r, nil
}

// rewrite maps /api/<path>?<query> onto the target, dropping the caller's
// credentials so only the session's are sent.
func rewrite(pr *httputil.ProxyRequest, base *url.URL) {
	rest := strings.TrimPrefix(pr.In.URL.Path, apiPrefix)

	out := *base
	out.Path = base.Path + "/" + rest
	out.RawPath = ""
	out.RawQuery = pr.In.URL.RawQuery
	pr.Out.URL = &out
	pr.Out.Host = ""

	pr.Out.Header.Del("Authorization")
	pr.Out.Header.Del("Cookie")
	pr.Out.Header.Del("Content-Length")
}

func writeUpstreamError(w http.ResponseWriter, err error) {
	if session.IsSessionExpired(err) {
		writeJSON(w, http.StatusUnauthorized, errorBody{
			Message: session.ErrSessionExpired.Error(),
		})
		return
	}
	writeJSON(w, http.StatusBadGateway, errorBody{
		Message: "Upstream API request failed",
		Details: err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func logRequests(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug("proxied request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start))
		})
	}
}

// Serve runs handler on addr until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	if logger != nil {
		logger.Info("proxy listening", "addr", addr)
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
