package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenClaims are the access token claims the client cares about. The token
// is never verified here; the backend does that on every request.
type tokenClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// inspectToken decodes the claims of a JWT access token without verifying
// the signature. Opaque tokens report ok=false.
func inspectToken(token string) (*tokenClaims, bool) {
	if token == "" {
		return nil, false
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, &tokenClaims{})
	if err != nil {
		return nil, false
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	return claims, ok
}

// tokenExpiry returns the exp claim, if any.
func tokenExpiry(token string) (time.Time, bool) {
	claims, ok := inspectToken(token)
	if !ok || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// tokenExpiredAt reports whether the token is known to be expired at now.
// Tokens without a readable exp claim are assumed usable.
func tokenExpiredAt(token string, now time.Time) bool {
	exp, ok := tokenExpiry(token)
	return ok && !now.Before(exp)
}

// tokenMatchesUser checks that a cached profile belongs to the token's
// subject. Tokens that identify nobody match any profile.
func tokenMatchesUser(token string, u *User) bool {
	if u == nil {
		return false
	}
	claims, ok := inspectToken(token)
	if !ok {
		return true
	}
	if claims.Subject == "" && claims.Email == "" {
		return true
	}
	if claims.Email != "" && claims.Email == u.Email {
		return true
	}
	return claims.Subject != "" && (claims.Subject == u.ID || claims.Subject == u.Email)
}
