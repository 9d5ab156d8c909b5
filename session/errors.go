package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrSessionExpired indicates that the access token could not be renewed
	// and the user has to log in again.
	ErrSessionExpired = errors.New("session expired, please login again")

	// ErrInvalidCredentials indicates a 401 that carried an error body, i.e. a
	// genuine authorization failure rather than an expired token.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNotAuthenticated is returned by operations that need a logged-in session.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// HTTPError is a non-2xx response from a JSON call.
type HTTPError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *HTTPError) Error() string {
	return e.Message
}

// Is makes a 401 that carried an error body match ErrInvalidCredentials.
func (e *HTTPError) Is(target error) bool {
	return target == ErrInvalidCredentials &&
		e.StatusCode == http.StatusUnauthorized &&
		!isEmptyBody(e.Body)
}

// apiMessage is the error envelope returned by the backend.
type apiMessage struct {
	Message string `json:"message"`
	Success *bool  `json:"success,omitempty"`
}

// newHTTPError builds an error from the body's message field, falling back to
// a status-based message when the body is not a JSON object with a message.
func newHTTPError(status int, body []byte) *HTTPError {
	msg := fmt.Sprintf("HTTP %d", status)
	var parsed apiMessage
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		msg = parsed.Message
	}
	return &HTTPError{StatusCode: status, Message: msg, Body: body}
}

// isEmptyBody reports whether a 401 body carries no information. The backend
// omits the body when the access token merely expired.
func isEmptyBody(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))
	switch trimmed {
	case "", "null", "{}", `""`:
		return true
	}
	return false
}
