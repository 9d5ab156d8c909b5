package tui

import (
	"time"
)

// MsgBanner signals that the banner/title should be displayed.
type MsgBanner struct{ Server string }

// MsgBootstrapping signals that the cached session is being restored.
type MsgBootstrapping struct{}

// MsgSessionRestored signals that a session is available. Degraded means the
// refresh failed and a cached token is being used.
type MsgSessionRestored struct {
	User     string
	Degraded bool
}

// MsgSessionMissing signals that no session could be restored.
type MsgSessionMissing struct{}

// MsgLoggingIn signals that a password login is in progress.
type MsgLoggingIn struct{ Email string }

// MsgLoginOK signals a successful login.
type MsgLoginOK struct{ User string }

// MsgLoginFailed signals that the login was rejected.
type MsgLoginFailed struct{ Err error }

// MsgLoggedOut signals that the local session was cleared.
type MsgLoggedOut struct{}

// MsgRefreshing signals that a token refresh is in progress.
type MsgRefreshing struct{}

// MsgRefreshOK signals that the token was refreshed successfully.
type MsgRefreshOK struct{}

// MsgRefreshFailed signals that token refresh failed.
type MsgRefreshFailed struct{ Err error }

// MsgAccessTokenRejected signals that the access token was rejected (401).
type MsgAccessTokenRejected struct{}

// MsgTokenRefreshedRetrying signals that the token was refreshed and a retry is starting.
type MsgTokenRefreshedRetrying struct{}

// MsgFetching signals that an API call for what has started.
type MsgFetching struct{ What string }

// MsgFetchOK signals that the API call for what succeeded.
type MsgFetchOK struct{ What string }

// MsgProxyListening signals that the local proxy is serving.
type MsgProxyListening struct {
	Addr  string
	Since time.Time
}

// MsgDone signals successful completion of the command.
type MsgDone struct{ Summary string }

// MsgFatal signals a fatal error that should terminate the command.
type MsgFatal struct{ Err error }
