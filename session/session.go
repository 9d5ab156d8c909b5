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
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/go-authgate/dashboard-cli/cache"
)

const (
	loginPath  = "/auth/login"
	logoutPath = "/auth/logout"

	defaultLoginFailure = "login failed"
)

// Status is the authentication state of a Session.
type Status int

const (
	StatusLoading Status = iota
	StatusAuthenticated
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// MarshalText lets Status print as a word in JSON output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Role is a dashboard user role
type Role string

const (
	RoleAdmin           Role = "ADMIN"
	RoleRestaurantAdmin Role = "RESTAURANT_ADMIN"
	RoleSuperAdmin      Role = "SUPER_ADMIN"
)

func (r Role) valid() bool {
	switch r {
	case RoleAdmin, RoleRestaurantAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// ID is an identifier the backend sends either as a JSON number or a string.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s", data)
	}
	*id = ID(n.String())
	return nil
}

// User is the signed-in dashboard user.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Role         Role   `json:"role"`
	RestaurantID string `json:"restaurantId,omitempty"`
}

// Restaurant is the restaurant the user manages, as returned at login.
type Restaurant struct {
	ID             ID       `json:"id"`
	Name           string   `json:"name"`
	NameEn         string   `json:"nameEn,omitempty"`
	NameFr         string   `json:"nameFr,omitempty"`
	NameAr         string   `json:"nameAr,omitempty"`
	Description    string   `json:"description,omitempty"`
	DescriptionEn  string   `json:"descriptionEn,omitempty"`
	DescriptionFr  string   `json:"descriptionFr,omitempty"`
	DescriptionAr  string   `json:"descriptionAr,omitempty"`
	Rating         *float64 `json:"rating,omitempty"`
	ImageURL       string   `json:"imageUrl,omitempty"`
	IconURL        string   `json:"iconUrl,omitempty"`
	Images         []string `json:"images"`
	Address        string   `json:"address,omitempty"`
	ManuallyClosed *bool    `json:"manuallyClosed,omitempty"`
	Sponsored      *bool    `json:"sponsored,omitempty"`
	Phone          string   `json:"phone,omitempty"`
	LicenseNumber  string   `json:"licenseNumber,omitempty"`
	TaxID          string   `json:"taxId,omitempty"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
}

// Credentials are the email and password sent to the login endpoint
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// rawUser accepts both the login response and the cached form.
type rawUser struct {
	ID           ID     `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	RestaurantID ID     `json:"restaurantId"`
}

type loginResponse struct {
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	User         *rawUser        `json:"user"`
	Restaurant   json.RawMessage `json:"restaurant"`
}

// Session tracks who is signed in against one dashboard backend and keeps the
// profile cache in step with the token store.
type Session struct {
	client   *Client
	cache    cache.Store
	key      string
	logger   *slog.Logger
	now      func() time.Time
	bootOnce sync.Once

	mu         sync.RWMutex
	status     Status
	user       *User
	restaurant *Restaurant
	degraded   bool
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithSessionLogger sets the logger used for cache and bootstrap diagnostics
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSession creates a session in the loading state. store may be nil, in
// which case nothing is persisted.
func NewSession(client *Client, store cache.Store, opts ...SessionOption) *Session {
	if store == nil {
		store = cache.NewMemoryStore()
	}
	s := &Session{
		client: client,
		cache:  store,
		key:    cache.KeyFor(client.BaseURL()),
		logger: discardLogger(),
		now:    time.Now,
		status: StatusLoading,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client returns the request executor the session authenticates.
func (s *Session) Client() *Client {
	return s.client
}

// Bootstrap restores the session once per process. It always attempts a
// refresh first. If that fails, the cached token and profile are used as a
// degraded fallback; requests will still fail with ErrSessionExpired once
// the backend rejects that token. Without a usable fallback the session ends
// up unauthenticated. Later calls return immediately.
func (s *Session) Bootstrap(ctx context.Context) Status {
	s.bootOnce.Do(func() {
		s.bootstrap(ctx)
	})
	return s.Status()
}

func (s *Session) bootstrap(ctx context.Context) {
	// Read the cache before refreshing: a failed refresh clears the mirrored token.
	entry, err := s.cache.Load(ctx, s.key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			s.logger.Warn("failed to load session cache", "error", err)
		}
		entry = &cache.Entry{}
	}

	token, refreshErr := s.client.Refresher().Refresh(ctx)
	if refreshErr == nil {
		user, restaurant, err := decodeProfile(entry)
		if err != nil {
			s.logger.Warn("discarding unreadable cached profile", "error", err)
			s.forgetProfile(ctx)
			user, restaurant = nil, nil
		}
		if user != nil && !tokenMatchesUser(token, user) {
			s.logger.Info("cached profile belongs to another user, ignoring it")
			user, restaurant = nil, nil
		}
		s.setState(StatusAuthenticated, user, restaurant, false)
		return
	}

	s.logger.Debug("bootstrap refresh failed", "error", refreshErr)
	if ctx.Err() != nil {
		s.setState(StatusUnauthenticated, nil, nil, false)
		return
	}

	cached := entry.AccessToken
	if cached == "" || len(entry.User) == 0 {
		s.setState(StatusUnauthenticated, nil, nil, false)
		return
	}

	user, restaurant, err := decodeProfile(entry)
	if err != nil || user == nil {
		s.logger.Warn("cached session is unreadable, clearing it", "error", err)
		if err := s.cache.Delete(ctx, s.key); err != nil {
			s.logger.Warn("failed to clear session cache", "error", err)
		}
		s.setState(StatusUnauthenticated, nil, nil, false)
		return
	}
	if tokenExpiredAt(cached, s.now()) || !tokenMatchesUser(cached, user) {
		s.logger.Info("cached access token is not usable")
		s.setState(StatusUnauthenticated, nil, nil, false)
		return
	}

	s.client.Store().Set(cached)
	s.setState(StatusAuthenticated, user, restaurant, true)
}

// Login exchanges credentials for a session. The backend sets the refresh
// cookie on the response; the access token goes into the token store.
func (s *Session) Login(ctx context.Context, creds Credentials) (*User, error) {
	payload, err := json.Marshal(creds)
	if err != nil {
		return nil, err
	}
	req, err := s.client.NewRequest(ctx, http.MethodPost, loginPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.AuthDoer().Do(req)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read login response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		herr := newHTTPError(resp.StatusCode, body)
		if herr.Message == fmt.Sprintf("HTTP %d", resp.StatusCode) {
			herr.Message = defaultLoginFailure
		}
		return nil, herr
	}

	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return nil, fmt.Errorf("failed to parse login response: %w", err)
	}
	if lr.AccessToken == "" || lr.User == nil {
		return nil, errors.New(defaultLoginFailure)
	}

	restaurant := normalizeRestaurant(lr.Restaurant)
	user := normalizeUser(lr.User, restaurant)

	s.client.Store().Set(lr.AccessToken)
	s.setState(StatusAuthenticated, user, restaurant, false)
	s.saveProfile(ctx, user, restaurant)

	return cloneUser(user), nil
}

// Logout tells the backend to end the session and always forgets the local
// state, even if that call fails. The returned error is informational.
func (s *Session) Logout(ctx context.Context) error {
	var callErr error
	req, err := s.client.NewRequest(ctx, http.MethodPost, logoutPath, nil)
	if err == nil {
		req.Header.Set("Accept", "application/json")
		resp, doErr := s.client.send(req, nil, s.client.Store().Get(), uuid.NewString())
		if doErr != nil {
			callErr = doErr
		} else {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				callErr = fmt.Errorf("logout returned status %d", resp.StatusCode)
			}
		}
	} else {
		callErr = err
	}

	s.client.Store().Clear()
	s.setState(StatusUnauthenticated, nil, nil, false)
	if err := s.cache.Delete(context.WithoutCancel(ctx), s.key); err != nil {
		s.logger.Warn("failed to clear session cache", "error", err)
	}
	return callErr
}

// Status returns the current authentication state
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// User returns a copy of the signed-in user, or nil.
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneUser(s.user)
}

// Restaurant returns a copy of the user's restaurant, or nil.
func (s *Session) Restaurant() *Restaurant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.restaurant == nil {
		return nil
	}
	r := *s.restaurant
	r.Images = append([]string(nil), s.restaurant.Images...)
	return &r
}

// Degraded reports whether the session runs on a cached token because the
// bootstrap refresh failed.
func (s *Session) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// RestaurantID returns the restaurant the user manages, or "" when unknown.
func (s *Session) RestaurantID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.restaurant != nil && s.restaurant.ID != "" {
		return string(s.restaurant.ID)
	}
	if s.user != nil {
		return s.user.RestaurantID
	}
	return ""
}

func (s *Session) setState(status Status, user *User, restaurant *Restaurant, degraded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.user = user
	s.restaurant = restaurant
	s.degraded = degraded
}

func (s *Session) saveProfile(ctx context.Context, user *User, restaurant *Restaurant) {
	userJSON, err := json.Marshal(user)
	if err != nil {
		s.logger.Warn("failed to encode user profile", "error", err)
		return
	}
	var restaurantJSON json.RawMessage
	if restaurant != nil {
		if restaurantJSON, err = json.Marshal(restaurant); err != nil {
			s.logger.Warn("failed to encode restaurant profile", "error", err)
			return
		}
	}

	err = s.cache.Update(ctx, s.key, func(e *cache.Entry) error {
		e.User = userJSON
		e.Restaurant = restaurantJSON
		return nil
	})
	if err != nil {
		s.logger.Warn("failed to cache profile", "error", err)
	}
}

func (s *Session) forgetProfile(ctx context.Context) {
	err := s.cache.Update(ctx, s.key, func(e *cache.Entry) error {
		e.User = nil
		e.Restaurant = nil
		return nil
	})
	if err != nil {
		s.logger.Warn("failed to clear cached profile", "error", err)
	}
}

// decodeProfile reads the cached user and restaurant. A missing user yields
// nil without error.
func decodeProfile(e *cache.Entry) (*User, *Restaurant, error) {
	if len(e.User) == 0 {
		return nil, nil, nil
	}
	var ru rawUser
	if err := json.Unmarshal(e.User, &ru); err != nil {
		return nil, nil, fmt.Errorf("cached user: %w", err)
	}

	var restaurant *Restaurant
	if len(e.Restaurant) > 0 {
		var r Restaurant
		if err := json.Unmarshal(e.Restaurant, &r); err != nil {
			return nil, nil, fmt.Errorf("cached restaurant: %w", err)
		}
		if r.ID != "" {
			restaurant = &r
		}
	}
	return normalizeUser(&ru, restaurant), restaurant, nil
}

// normalizeUser upper-cases the role, maps unknown roles to RESTAURANT_ADMIN
// and resolves the restaurant id from the restaurant, the user's own
// restaurantId, or finally the user id.
func normalizeUser(ru *rawUser, restaurant *Restaurant) *User {
	role := Role(strings.ToUpper(strings.TrimSpace(ru.Role)))
	if !role.valid() {
		role = RoleRestaurantAdmin
	}

	restaurantID := string(ru.RestaurantID)
	if restaurant != nil && restaurant.ID != "" {
		restaurantID = string(restaurant.ID)
	}
	if restaurantID == "" {
		restaurantID = string(ru.ID)
	}

	return &User{
		ID:           string(ru.ID),
		Email:        ru.Email,
		Name:         ru.Name,
		Role:         role,
		RestaurantID: restaurantID,
	}
}

// normalizeRestaurant returns nil unless raw is an object with an id.
func normalizeRestaurant(raw json.RawMessage) *Restaurant {
	if len(raw) == 0 || isEmptyBody(raw) {
		return nil
	}
	var r Restaurant
	if err := json.Unmarshal(raw, &r); err != nil || r.ID == "" {
		return nil
	}
	return &r
}

func cloneUser(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// String formats an ID for display
func (id ID) String() string {
	return string(id)
}

