package tui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{-time.Second, "0s"},
		{400 * time.Millisecond, "0s"},
		{42 * time.Second, "42s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 5*time.Minute + 9*time.Second, "2h 5m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestModel_StatusLogIsCapped(t *testing.T) {
	m := NewModel()
	for range maxStatusLines + 10 {
		updated, _ := m.Update(MsgFetchOK{What: "menu"})
		m = updated.(Model)
	}
	if len(m.statusLines) != maxStatusLines {
		t.Errorf("status lines = %d, want %d", len(m.statusLines), maxStatusLines)
	}
}

func TestModel_StateTransitions(t *testing.T) {
	m := NewModel()
	step := func(msg any) {
		t.Helper()
		updated, _ := m.Update(msg)
		m = updated.(Model)
	}

	step(MsgBootstrapping{})
	if m.state != stateBootstrapping {
		t.Fatalf("state = %v, want bootstrapping", m.state)
	}

	step(MsgSessionRestored{User: "chef@example.com", Degraded: true})
	if !m.degraded || m.user != "chef@example.com" {
		t.Errorf("degraded/user = %v/%q", m.degraded, m.user)
	}
	if m.statusLines[len(m.statusLines)-1].kind != statusWarn {
		t.Error("a degraded restore should be a warning")
	}

	step(MsgLoginOK{User: "chef@example.com"})
	if m.degraded {
		t.Error("a fresh login clears the degraded flag")
	}

	step(MsgProxyListening{Addr: "127.0.0.1:8087", Since: time.Now()})
	if m.state != stateServing || m.proxyAddr != "127.0.0.1:8087" {
		t.Errorf("state/addr = %v/%q", m.state, m.proxyAddr)
	}

	step(MsgFatal{Err: errors.New("session expired")})
	if m.state != stateError || m.errMsg != "session expired" {
		t.Errorf("state/errMsg = %v/%q", m.state, m.errMsg)
	}
}

func TestPlainDisplayer(t *testing.T) {
	var buf bytes.Buffer
	d := NewPlainDisplayer(&buf)

	d.SessionRestored("", false)
	d.SessionRestored("chef", true)
	d.AccessTokenRejected()
	d.Done("")
	d.Fatal(errors.New("boom"))

	want := "Session restored for unknown user\n" +
		"Using cached session for chef (refresh failed)\n" +
		"Access token rejected (401), refreshing...\n" +
		"Error: boom\n"
	if got := buf.String(); got != want {
		t.Errorf("output:\n%s\nwant:\n%s", got, want)
	}
	if strings.Contains(buf.String(), "\n\n") {
		t.Error("an empty summary should print nothing")
	}
}
