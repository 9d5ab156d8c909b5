package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-authgate/dashboard-cli/cache"
)

// authServer fakes the /auth endpoints.
type authServer struct {
	refreshOK   bool
	refreshWith string
	login       http.HandlerFunc

	refreshes atomic.Int32
	logouts   atomic.Int32
	logoutJWT atomic.Value // Authorization header seen by logout
}

func (a *authServer) start(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/refresh", func(w http.ResponseWriter, _ *http.Request) {
		a.refreshes.Add(1)
		if !a.refreshOK {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprintf(w, `{"accessToken":%q}`, a.refreshWith)
	})
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		a.login(w, r)
	})
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		a.logouts.Add(1)
		a.logoutJWT.Store(r.Header.Get("Authorization"))
		io.WriteString(w, `{"success":true}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// newTestSession wires a session the way the CLI does: the token store
// mirrors into the same cache the session reads its profile from.
func newTestSession(t *testing.T, srv *httptest.Server, store cache.Store) *Session {
	t.Helper()
	if store == nil {
		store = cache.NewMemoryStore()
	}
	baseURL := srv.URL + "/api"
	tokens := NewTokenStore(WithMirror(cache.NewMirror(store, cache.KeyFor(baseURL))))
	c, err := NewClient(baseURL, srv.Client(), WithTokenStore(tokens))
	require.NoError(t, err)
	return NewSession(c, store)
}

func cacheProfile(t *testing.T, store cache.Store, key, token, user, restaurant string) {
	t.Helper()
	err := store.Update(context.Background(), key, func(e *cache.Entry) error {
		e.AccessToken = token
		e.User = json.RawMessage(user)
		if restaurant != "" {
			e.Restaurant = json.RawMessage(restaurant)
		}
		return nil
	})
	require.NoError(t, err)
}

const cachedUser = `{"id":"42","email":"chef@example.com","name":"Chef","role":"RESTAURANT_ADMIN","restaurantId":"9"}`

func TestSession_BootstrapRefreshSucceeds(t *testing.T) {
	a := &authServer{refreshOK: true, refreshWith: "fresh-token"}
	srv := a.start(t)
	store := cache.NewMemoryStore()
	key := cache.KeyFor(srv.URL + "/api")
	cacheProfile(t, store, key, "old-token", cachedUser, `{"id":9,"name":"Dar Tajine"}`)

	s := newTestSession(t, srv, store)
	assert.Equal(t, StatusLoading, s.Status())

	status := s.Bootstrap(context.Background())
	assert.Equal(t, StatusAuthenticated, status)
	assert.False(t, s.Degraded())
	assert.Equal(t, "fresh-token", s.Client().Store().Get())

	require.NotNil(t, s.User())
	assert.Equal(t, "chef@example.com", s.User().Email)
	require.NotNil(t, s.Restaurant())
	assert.Equal(t, ID("9"), s.Restaurant().ID)
	assert.Equal(t, "9", s.RestaurantID())

	e, err := store.Load(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", e.AccessToken, "the refreshed token is mirrored")
}

func TestSession_BootstrapRunsOnce(t *testing.T) {
	a := &authServer{refreshOK: true, refreshWith: "fresh-token"}
	srv := a.start(t)
	s := newTestSession(t, srv, nil)

	s.Bootstrap(context.Background())
	s.Bootstrap(context.Background())
	assert.Equal(t, int32(1), a.refreshes.Load())
}

func TestSession_BootstrapWithoutProfileIsAuthenticated(t *testing.T) {
	a := &authServer{refreshOK: true, refreshWith: "fresh-token"}
	srv := a.start(t)
	s := newTestSession(t, srv, nil)

	assert.Equal(t, StatusAuthenticated, s.Bootstrap(context.Background()))
	assert.Nil(t, s.User())
	assert.Empty(t, s.RestaurantID())
}

func TestSession_BootstrapFallsBackToCachedToken(t *testing.T) {
	a := &authServer{refreshOK: false}
	srv := a.start(t)
	store := cache.NewMemoryStore()
	key := cache.KeyFor(srv.URL + "/api")
	cached := signedToken(t, jwt.MapClaims{"sub": "42", "exp": time.Now().Add(time.Hour).Unix()})
	cacheProfile(t, store, key, cached, cachedUser, "")

	s := newTestSession(t, srv, store)
	assert.Equal(t, StatusAuthenticated, s.Bootstrap(context.Background()))
	assert.True(t, s.Degraded())
	assert.Equal(t, cached, s.Client().Store().Get())
	assert.False(t, s.Client().Store().Expired())
	assert.Equal(t, "9", s.RestaurantID())
}

func TestSession_BootstrapRejectsUnusableCache(t *testing.T) {
	tests := []struct {
		name  string
		token func(t *testing.T) string
		user  string
	}{
		{
			name:  "no cache",
			token: func(*testing.T) string { return "" },
		},
		{
			name:  "token without profile",
			token: func(*testing.T) string { return "opaque" },
		},
		{
			name: "expired token",
			token: func(t *testing.T) string {
				return signedToken(t, jwt.MapClaims{"sub": "42", "exp": time.Now().Add(-time.Minute).Unix()})
			},
			user: cachedUser,
		},
		{
			name: "token of another user",
			token: func(t *testing.T) string {
				return signedToken(t, jwt.MapClaims{"sub": "7"})
			},
			user: cachedUser,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &authServer{refreshOK: false}
			srv := a.start(t)
			store := cache.NewMemoryStore()
			key := cache.KeyFor(srv.URL + "/api")
			if token := tt.token(t); token != "" || tt.user != "" {
				cacheProfile(t, store, key, token, tt.user, "")
			}

			s := newTestSession(t, srv, store)
			assert.Equal(t, StatusUnauthenticated, s.Bootstrap(context.Background()))
			assert.Nil(t, s.User())
			assert.Empty(t, s.Client().Store().Get())
		})
	}
}

func TestSession_BootstrapClearsCorruptCache(t *testing.T) {
	a := &authServer{refreshOK: false}
	srv := a.start(t)
	store := cache.NewMemoryStore()
	key := cache.KeyFor(srv.URL + "/api")
	cacheProfile(t, store, key, "opaque", `[1,2,3]`, "")

	s := newTestSession(t, srv, store)
	assert.Equal(t, StatusUnauthenticated, s.Bootstrap(context.Background()))

	_, err := store.Load(context.Background(), key)
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestSession_BootstrapCanceled(t *testing.T) {
	a := &authServer{refreshOK: true, refreshWith: "fresh-token"}
	srv := a.start(t)
	s := newTestSession(t, srv, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, StatusUnauthenticated, s.Bootstrap(ctx))
}

func TestSession_Login(t *testing.T) {
	gotCreds := make(chan Credentials, 1)
	a := &authServer{login: func(w http.ResponseWriter, r *http.Request) {
		var c Credentials
		_ = json.NewDecoder(r.Body).Decode(&c)
		gotCreds <- c
		http.SetCookie(w, &http.Cookie{Name: "refreshToken", Value: "r1", Path: "/", HttpOnly: true})
		io.WriteString(w, `{
			"accessToken": "login-token",
			"user": {"id": 42, "email": "chef@example.com", "name": "Chef", "role": "restaurant_admin"},
			"restaurant": {"id": 9, "name": "Dar Tajine", "images": ["a.jpg"]}
		}`)
	}}
	srv := a.start(t)
	store := cache.NewMemoryStore()
	s := newTestSession(t, srv, store)
	s.Client().Store().Expire()

	user, err := s.Login(context.Background(), Credentials{Email: "chef@example.com", Password: "secret"})
	require.NoError(t, err)

	assert.Equal(t, Credentials{Email: "chef@example.com", Password: "secret"}, <-gotCreds)
	assert.Equal(t, &User{
		ID:           "42",
		Email:        "chef@example.com",
		Name:         "Chef",
		Role:         RoleRestaurantAdmin,
		RestaurantID: "9",
	}, user)
	assert.Equal(t, StatusAuthenticated, s.Status())
	assert.Equal(t, "login-token", s.Client().Store().Get())
	assert.False(t, s.Client().Store().Expired())
	assert.Equal(t, []string{"a.jpg"}, s.Restaurant().Images)

	e, err := store.Load(context.Background(), cache.KeyFor(srv.URL+"/api"))
	require.NoError(t, err)
	assert.Equal(t, "login-token", e.AccessToken)
	assert.Contains(t, string(e.User), "chef@example.com")
	assert.Contains(t, string(e.Restaurant), "Dar Tajine")
}

func TestSession_LoginFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantMsg  string
		wantCred bool
	}{
		{"bad password", http.StatusUnauthorized, `{"message":"Bad credentials"}`, "Bad credentials", true},
		{"server error without message", http.StatusInternalServerError, ``, "login failed", false},
		{"missing token", http.StatusOK, `{"user":{"id":1}}`, "login failed", false},
		{"missing user", http.StatusOK, `{"accessToken":"t"}`, "login failed", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &authServer{login: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}}
			srv := a.start(t)
			s := newTestSession(t, srv, nil)

			user, err := s.Login(context.Background(), Credentials{Email: "a@b.c", Password: "x"})
			require.Error(t, err)
			assert.Nil(t, user)
			assert.EqualError(t, err, tt.wantMsg)
			assert.Equal(t, tt.wantCred, errors.Is(err, ErrInvalidCredentials))
			assert.Empty(t, s.Client().Store().Get())
			assert.NotEqual(t, StatusAuthenticated, s.Status())
		})
	}
}

func TestSession_Logout(t *testing.T) {
	a := &authServer{refreshOK: true, refreshWith: "fresh-token"}
	srv := a.start(t)
	store := cache.NewMemoryStore()
	key := cache.KeyFor(srv.URL + "/api")
	cacheProfile(t, store, key, "old-token", cachedUser, "")

	s := newTestSession(t, srv, store)
	require.Equal(t, StatusAuthenticated, s.Bootstrap(context.Background()))

	require.NoError(t, s.Logout(context.Background()))
	assert.Equal(t, int32(1), a.logouts.Load())
	assert.Equal(t, "Bearer fresh-token", a.logoutJWT.Load())

	assert.Equal(t, StatusUnauthenticated, s.Status())
	assert.Nil(t, s.User())
	assert.Empty(t, s.Client().Store().Get())

	_, err := store.Load(context.Background(), key)
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestSession_LogoutClearsStateWhenBackendIsDown(t *testing.T) {
	a := &authServer{refreshOK: true, refreshWith: "fresh-token"}
	srv := a.start(t)
	s := newTestSession(t, srv, nil)
	require.Equal(t, StatusAuthenticated, s.Bootstrap(context.Background()))

	srv.Close()
	err := s.Logout(context.Background())
	assert.Error(t, err)
	assert.Equal(t, StatusUnauthenticated, s.Status())
	assert.Empty(t, s.Client().Store().Get())
}

func TestNormalizeUser(t *testing.T) {
	tests := []struct {
		name       string
		raw        rawUser
		restaurant *Restaurant
		want       User
	}{
		{
			name: "lowercase role",
			raw:  rawUser{ID: "1", Role: "super_admin"},
			want: User{ID: "1", Role: RoleSuperAdmin, RestaurantID: "1"},
		},
		{
			name: "unknown role",
			raw:  rawUser{ID: "1", Role: "OWNER", RestaurantID: "5"},
			want: User{ID: "1", Role: RoleRestaurantAdmin, RestaurantID: "5"},
		},
		{
			name:       "restaurant wins",
			raw:        rawUser{ID: "1", Role: "ADMIN", RestaurantID: "5"},
			restaurant: &Restaurant{ID: "9"},
			want:       User{ID: "1", Role: RoleAdmin, RestaurantID: "9"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, &tt.want, normalizeUser(&tt.raw, tt.restaurant))
		})
	}
}

func TestNormalizeRestaurant(t *testing.T) {
	assert.Nil(t, normalizeRestaurant(nil))
	assert.Nil(t, normalizeRestaurant(json.RawMessage(`null`)))
	assert.Nil(t, normalizeRestaurant(json.RawMessage(`{}`)))
	assert.Nil(t, normalizeRestaurant(json.RawMessage(`{"name":"no id"}`)))
	assert.Nil(t, normalizeRestaurant(json.RawMessage(`"text"`)))

	r := normalizeRestaurant(json.RawMessage(`{"id":9,"name":"Dar Tajine","rating":4.5}`))
	require.NotNil(t, r)
	assert.Equal(t, ID("9"), r.ID)
	require.NotNil(t, r.Rating)
	assert.InDelta(t, 4.5, *r.Rating, 0.001)
}

func TestID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    ID
		wantErr bool
	}{
		{`42`, "42", false},
		{`"42"`, "42", false},
		{`null`, "", false},
		{`"abc-1"`, "abc-1", false},
		{`true`, "", true},
		{`{}`, "", true},
	}
	for _, tt := range tests {
		var id ID
		err := json.Unmarshal([]byte(tt.in), &id)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, id, tt.in)
	}
}

func TestStatus_MarshalText(t *testing.T) {
	data, err := json.Marshal(map[string]Status{"status": StatusAuthenticated})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"authenticated"}`, string(data))
}
