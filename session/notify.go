package session

import (
	"io"
	"log/slog"
)

// Notifier receives progress events from the refresh and retry path.
// tui.Displayer implementations satisfy it.
type Notifier interface {
	Refreshing()
	RefreshOK()
	RefreshFailed(err error)
	AccessTokenRejected()
	TokenRefreshedRetrying()
}

// NoopNotifier discards all events.
type NoopNotifier struct{}

func (NoopNotifier) Refreshing()             {}
func (NoopNotifier) RefreshOK()              {}
func (NoopNotifier) RefreshFailed(_ error)   {}
func (NoopNotifier) AccessTokenRejected()    {}
func (NoopNotifier) TokenRefreshedRetrying() {}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// tokenPreview keeps log lines free of usable tokens.
func tokenPreview(token string) string {
	if len(token) > 8 {
		return token[:8] + "..."
	}
	if token == "" {
		return "<none>"
	}
	return "***"
}
