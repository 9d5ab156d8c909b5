package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// mirrorRecorder records every mirrored value.
type mirrorRecorder struct {
	mu     sync.Mutex
	tokens []string
	err    error
}

func (m *mirrorRecorder) MirrorToken(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = append(m.tokens, token)
	return m.err
}

func (m *mirrorRecorder) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tokens) == 0 {
		return "<none>"
	}
	return m.tokens[len(m.tokens)-1]
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestTokenStore(t *testing.T) {
	m := &mirrorRecorder{}
	s := NewTokenStore(WithMirror(m))

	assert.Empty(t, s.Get())
	assert.False(t, s.Expired())

	s.Set("t1")
	assert.Equal(t, "t1", s.Get())
	assert.Equal(t, "t1", m.last())

	s.Expire()
	assert.Empty(t, s.Get())
	assert.True(t, s.Expired())
	assert.Equal(t, "", m.last())

	s.Set("t2")
	assert.False(t, s.Expired(), "a new token clears the expired flag")

	s.Clear()
	assert.Empty(t, s.Get())
	assert.False(t, s.Expired(), "logout is not an expiry")

	// Unchanged writes are not mirrored again.
	n := len(m.tokens)
	s.Clear()
	assert.Len(t, m.tokens, n)
}

func TestTokenStore_MirrorErrorsAreSwallowed(t *testing.T) {
	m := &mirrorRecorder{err: errors.New("disk full")}
	s := NewTokenStore(WithMirror(m))

	s.Set("t1")
	assert.Equal(t, "t1", s.Get())
}

func TestTokenStore_ConcurrentWritersLeaveMirrorConsistent(t *testing.T) {
	m := &mirrorRecorder{}
	s := NewTokenStore(WithMirror(m))

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Set(string(rune('a' + i)))
		}()
	}
	wg.Wait()

	assert.Equal(t, s.Get(), m.last())
}

func TestRefresher_PostsWithCookie(t *testing.T) {
	var mu sync.Mutex
	var gotMethod, gotBody, gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		defer mu.Unlock()
		gotMethod = r.Method
		gotBody = string(data)
		if c, err := r.Cookie("refreshToken"); err == nil {
			gotCookie = c.Value
		}
		io.WriteString(w, `{"accessToken":"from-cookie"}`)
	}))
	defer srv.Close()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	u, _ := url.Parse(srv.URL)
	jar.SetCookies(u, []*http.Cookie{{Name: "refreshToken", Value: "r1", Path: "/"}})
	hc := &http.Client{Jar: jar}

	store := NewTokenStore()
	r := NewRefresher(store, hc, srv.URL+"/api/auth/refresh")

	token, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-cookie", token)
	assert.Equal(t, "from-cookie", store.Get())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "{}", gotBody)
	assert.Equal(t, "r1", gotCookie)
}

func TestRefresher_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr func(t *testing.T, err error)
	}{
		{
			name:   "rejected",
			status: http.StatusUnauthorized,
			body:   `{"message":"Invalid refresh token"}`,
			wantErr: func(t *testing.T, err error) {
				var re *oauth2.RetrieveError
				require.ErrorAs(t, err, &re)
				assert.Equal(t, http.StatusUnauthorized, re.Response.StatusCode)
			},
		},
		{
			name:   "no token",
			status: http.StatusOK,
			body:   `{"accessToken":""}`,
			wantErr: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "no accessToken")
			},
		},
		{
			name:   "garbage",
			status: http.StatusOK,
			body:   `<html>`,
			wantErr: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "failed to parse refresh response")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			store := NewTokenStore()
			store.Set("old")
			r := NewRefresher(store, srv.Client(), srv.URL)

			_, err := r.Refresh(context.Background())
			require.Error(t, err)
			tt.wantErr(t, err)
			assert.True(t, store.Expired())
			assert.Empty(t, store.Get())
		})
	}
}

func TestRefresher_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		io.WriteString(w, `{"accessToken":"late"}`)
	}))
	defer srv.Close()
	defer close(release)

	store := NewTokenStore()
	store.Set("old")
	r := NewRefresher(store, srv.Client(), srv.URL, WithRefreshTimeout(50*time.Millisecond))

	_, err := r.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, store.Expired())
}

func TestRefresher_RefreshFromSkipsWhenAlreadyRefreshed(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		io.WriteString(w, `{"accessToken":"t3"}`)
	}))
	defer srv.Close()

	store := NewTokenStore()
	store.Set("t2")
	r := NewRefresher(store, srv.Client(), srv.URL)

	token, err := r.RefreshFrom(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "t2", token)
	assert.Equal(t, int32(0), calls.Load())

	token, err = r.RefreshFrom(context.Background(), "t2")
	require.NoError(t, err)
	assert.Equal(t, "t3", token)
	assert.Equal(t, int32(1), calls.Load())

	store.Expire()
	_, err = r.RefreshFrom(context.Background(), "t3")
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, int32(1), calls.Load(), "a failed refresh is not retried by late callers")
}

// The store can move on after RefreshFrom's first look but before the shared
// flight starts. The flight itself must notice and skip the backend.
func TestRefresher_FlightRechecksStaleToken(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		io.WriteString(w, `{"accessToken":"t3"}`)
	}))
	defer srv.Close()

	store := NewTokenStore()
	store.Set("t1")
	r := NewRefresher(store, srv.Client(), srv.URL)

	// Another caller's refresh lands in between.
	store.Set("t2")
	token, err := r.refreshUnlessSettled(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "t2", token)

	store.Expire()
	_, err = r.refreshUnlessSettled(context.Background(), "t2")
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, int32(0), calls.Load())

	store.Set("t2")
	token, err = r.refreshUnlessSettled(context.Background(), "t2")
	require.NoError(t, err)
	assert.Equal(t, "t3", token)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRefresher_TokenSource(t *testing.T) {
	exp := time.Now().Add(15 * time.Minute).Truncate(time.Second)
	jwtToken := signedToken(t, jwt.MapClaims{"sub": "42", "exp": exp.Unix()})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"accessToken":"`+jwtToken+`"}`)
	}))
	defer srv.Close()

	store := NewTokenStore()
	r := NewRefresher(store, srv.Client(), srv.URL)
	ts := r.TokenSource(context.Background())

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, jwtToken, tok.AccessToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.True(t, tok.Expiry.Equal(exp))

	store.Set("opaque")
	tok, err = ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "opaque", tok.AccessToken)
	assert.True(t, tok.Expiry.IsZero())

	store.Expire()
	_, err = ts.Token()
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestTokenExpiredAt(t *testing.T) {
	now := time.Now()
	expired := signedToken(t, jwt.MapClaims{"exp": now.Add(-time.Minute).Unix()})
	valid := signedToken(t, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()})
	noExp := signedToken(t, jwt.MapClaims{"sub": "1"})

	assert.True(t, tokenExpiredAt(expired, now))
	assert.False(t, tokenExpiredAt(valid, now))
	assert.False(t, tokenExpiredAt(noExp, now))
	assert.False(t, tokenExpiredAt("opaque-token", now))
	assert.False(t, tokenExpiredAt("", now))
}

func TestTokenMatchesUser(t *testing.T) {
	user := &User{ID: "42", Email: "chef@example.com"}

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"opaque", "opaque-token", true},
		{"no identity", signedToken(t, jwt.MapClaims{"iat": 1}), true},
		{"subject is id", signedToken(t, jwt.MapClaims{"sub": "42"}), true},
		{"subject is email", signedToken(t, jwt.MapClaims{"sub": "chef@example.com"}), true},
		{"email claim", signedToken(t, jwt.MapClaims{"sub": "x", "email": "chef@example.com"}), true},
		{"other user", signedToken(t, jwt.MapClaims{"sub": "7"}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tokenMatchesUser(tt.token, user))
		})
	}
	assert.False(t, tokenMatchesUser("opaque-token", nil))
}
