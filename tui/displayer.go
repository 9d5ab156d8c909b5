package tui

import (
	"fmt"
	"io"
	"time"

	tea "charm.land/bubbletea/v2"
)

// Displayer abstracts all progress output of the CLI. It also receives the
// session's refresh and retry events (session.Notifier).
type Displayer interface {
	Banner(server string)
	Bootstrapping()
	SessionRestored(user string, degraded bool)
	SessionMissing()
	LoggingIn(email string)
	LoginOK(user string)
	LoginFailed(err error)
	LoggedOut()
	Refreshing()
	RefreshOK()
	RefreshFailed(err error)
	AccessTokenRejected()
	TokenRefreshedRetrying()
	Fetching(what string)
	FetchOK(what string)
	ProxyListening(addr string)
	Done(summary string)
	Fatal(err error)
}

// PlainDisplayer writes plain text progress to w.
// Used when stderr is not a TTY (pipes, CI, SSH without pty).
type PlainDisplayer struct {
	w io.Writer
}

// NewPlainDisplayer creates a PlainDisplayer that writes to w.
func NewPlainDisplayer(w io.Writer) *PlainDisplayer {
	return &PlainDisplayer{w: w}
}

func (p *PlainDisplayer) Banner(server string) {
	fmt.Fprintf(p.w, "=== Restaurant Dashboard CLI (%s) ===\n", server)
	fmt.Fprintln(p.w)
}

func (p *PlainDisplayer) Bootstrapping() {
	fmt.Fprintln(p.w, "Restoring session...")
}

func (p *PlainDisplayer) SessionRestored(user string, degraded bool) {
	if degraded {
		fmt.Fprintf(p.w, "Using cached session for %s (refresh failed)\n", orUnknown(user))
		return
	}
	fmt.Fprintf(p.w, "Session restored for %s\n", orUnknown(user))
}

func (p *PlainDisplayer) SessionMissing() {
	fmt.Fprintln(p.w, "No active session")
}

func (p *PlainDisplayer) LoggingIn(email string) {
	fmt.Fprintf(p.w, "Logging in as %s...\n", email)
}

func (p *PlainDisplayer) LoginOK(user string) {
	fmt.Fprintf(p.w, "Logged in as %s\n", user)
}

func (p *PlainDisplayer) LoginFailed(err error) {
	fmt.Fprintf(p.w, "Login failed: %v\n", err)
}

func (p *PlainDisplayer) LoggedOut() {
	fmt.Fprintln(p.w, "Logged out")
}

func (p *PlainDisplayer) Refreshing() {
	fmt.Fprintln(p.w, "Refreshing access token...")
}

func (p *PlainDisplayer) RefreshOK() {
	fmt.Fprintln(p.w, "Token refreshed successfully!")
}

func (p *PlainDisplayer) RefreshFailed(err error) {
	fmt.Fprintf(p.w, "Refresh failed: %v\n", err)
}

func (p *PlainDisplayer) AccessTokenRejected() {
	fmt.Fprintln(p.w, "Access token rejected (401), refreshing...")
}

func (p *PlainDisplayer) TokenRefreshedRetrying() {
	fmt.Fprintln(p.w, "Token refreshed, retrying API call...")
}

func (p *PlainDisplayer) Fetching(what string) {
	fmt.Fprintf(p.w, "Fetching %s...\n", what)
}

func (p *PlainDisplayer) FetchOK(what string) {
	fmt.Fprintf(p.w, "Fetched %s\n", what)
}

func (p *PlainDisplayer) ProxyListening(addr string) {
	fmt.Fprintf(p.w, "Proxy listening on http://%s/api/ (Ctrl+C to stop)\n", addr)
}

func (p *PlainDisplayer) Done(summary string) {
	if summary != "" {
		fmt.Fprintln(p.w, summary)
	}
}

func (p *PlainDisplayer) Fatal(err error) {
	fmt.Fprintf(p.w, "Error: %v\n", err)
}

func orUnknown(user string) string {
	if user == "" {
		return "unknown user"
	}
	return user
}

// NoopDisplayer is a no-op implementation used in tests.
type NoopDisplayer struct{}

func (NoopDisplayer) Banner(_ string)                  {}
func (NoopDisplayer) Bootstrapping()                   {}
func (NoopDisplayer) SessionRestored(_ string, _ bool) {}
func (NoopDisplayer) SessionMissing()                  {}
func (NoopDisplayer) LoggingIn(_ string)               {}
func (NoopDisplayer) LoginOK(_ string)                 {}
func (NoopDisplayer) LoginFailed(_ error)              {}
func (NoopDisplayer) LoggedOut()                       {}
func (NoopDisplayer) Refreshing()                      {}
func (NoopDisplayer) RefreshOK()                       {}
func (NoopDisplayer) RefreshFailed(_ error)            {}
func (NoopDisplayer) AccessTokenRejected()             {}
func (NoopDisplayer) TokenRefreshedRetrying()          {}
func (NoopDisplayer) Fetching(_ string)                {}
func (NoopDisplayer) FetchOK(_ string)                 {}
func (NoopDisplayer) ProxyListening(_ string)          {}
func (NoopDisplayer) Done(_ string)                    {}
func (NoopDisplayer) Fatal(_ error)                    {}

// ProgramDisplayer sends BubbleTea messages to a running tea.Program.
type ProgramDisplayer struct {
	p *tea.Program
}

// NewProgramDisplayer creates a ProgramDisplayer that sends messages to p.
func NewProgramDisplayer(p *tea.Program) *ProgramDisplayer {
	return &ProgramDisplayer{p: p}
}

func (t *ProgramDisplayer) Banner(server string) {
	t.p.Send(MsgBanner{Server: server})
}

func (t *ProgramDisplayer) Bootstrapping() {
	t.p.Send(MsgBootstrapping{})
}

func (t *ProgramDisplayer) SessionRestored(user string, degraded bool) {
	t.p.Send(MsgSessionRestored{User: user, Degraded: degraded})
}

func (t *ProgramDisplayer) SessionMissing() {
	t.p.Send(MsgSessionMissing{})
}

func (t *ProgramDisplayer) LoggingIn(email string) {
	t.p.Send(MsgLoggingIn{Email: email})
}

func (t *ProgramDisplayer) LoginOK(user string) {
	t.p.Send(MsgLoginOK{User: user})
}

func (t *ProgramDisplayer) LoginFailed(err error) {
	t.p.Send(MsgLoginFailed{Err: err})
}

func (t *ProgramDisplayer) LoggedOut() {
	t.p.Send(MsgLoggedOut{})
}

func (t *ProgramDisplayer) Refreshing() {
	t.p.Send(MsgRefreshing{})
}

func (t *ProgramDisplayer) RefreshOK() {
	t.p.Send(MsgRefreshOK{})
}

func (t *ProgramDisplayer) RefreshFailed(err error) {
	t.p.Send(MsgRefreshFailed{Err: err})
}

func (t *ProgramDisplayer) AccessTokenRejected() {
	t.p.Send(MsgAccessTokenRejected{})
}

func (t *ProgramDisplayer) TokenRefreshedRetrying() {
	t.p.Send(MsgTokenRefreshedRetrying{})
}

func (t *ProgramDisplayer) Fetching(what string) {
	t.p.Send(MsgFetching{What: what})
}

func (t *ProgramDisplayer) FetchOK(what string) {
	t.p.Send(MsgFetchOK{What: what})
}

func (t *ProgramDisplayer) ProxyListening(addr string) {
	t.p.Send(MsgProxyListening{Addr: addr, Since: time.Now()})
}

func (t *ProgramDisplayer) Done(summary string) {
	t.p.Send(MsgDone{Summary: summary})
}

func (t *ProgramDisplayer) Fatal(err error) {
	t.p.Send(MsgFatal{Err: err})
}
