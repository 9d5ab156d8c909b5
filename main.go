package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	tea "charm.land/bubbletea/v2"
	"github.com/go-authgate/dashboard-cli/session"
	"github.com/go-authgate/dashboard-cli/tui"
)

func init() {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()
}

// isTTY reports whether stderr is a character device (interactive terminal).
// We check stderr because the TUI renders to stderr, allowing stdout to be piped.
func isTTY() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func main() {
	cfg, err := initConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	cmd, ok := lookupCommand(cfg.Command)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", cfg.Command)
		usage()
		os.Exit(2)
	}

	// Warn if using HTTP instead of HTTPS
	if cfg.insecure() {
		fmt.Fprintln(
			os.Stderr,
			"⚠️  WARNING: Using HTTP instead of HTTPS. Tokens will be transmitted in plaintext!",
		)
		fmt.Fprintln(os.Stderr)
	}

	tty := isTTY()
	logger, closeLog, err := newLogger(cfg, tty)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	defer closeLog()

	if tty {
		// Run TUI program on stderr so stdout pipes are not corrupted
		m := tui.NewModel()
		// WithInput(nil): disable stdin/keyboard input so BubbleTea skips terminal
		// capability queries (?2026/?2027). Ctrl+C is handled by signal.NotifyContext.
		p := tea.NewProgram(m, tea.WithOutput(os.Stderr), tea.WithInput(nil))

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Run(); err != nil {
				fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
			}
		}()

		d := tui.NewProgramDisplayer(p)
		d.Banner(cfg.ServerURL)
		runErr := run(cfg, cmd, d, logger, os.Stdout)
		p.Quit() // let BubbleTea drain terminal query responses before exiting
		wg.Wait()
		if runErr != nil {
			closeLog()
			os.Exit(1)
		}
	} else {
		d := tui.NewPlainDisplayer(os.Stderr)
		d.Banner(cfg.ServerURL)
		if err := run(cfg, cmd, d, logger, os.Stdout); err != nil {
			closeLog()
			os.Exit(1)
		}
	}
}

func run(cfg *Config, cmd command, d tui.Displayer, logger *slog.Logger, out io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := execute(ctx, cfg, cmd, d, logger, out)
	if err != nil {
		d.Fatal(friendlyError(err))
	}
	return err
}

// execute runs cmd against a freshly wired app and prints its result.
func execute(
	ctx context.Context,
	cfg *Config,
	cmd command,
	d tui.Displayer,
	logger *slog.Logger,
	out io.Writer,
) error {
	a, cleanup, err := newApp(ctx, cfg, d, logger, out)
	if err != nil {
		return err
	}
	defer cleanup()

	if cmd.auth {
		if err := a.ensureSession(ctx); err != nil {
			return err
		}
	}

	result, summary, err := cmd.run(ctx, a, cfg.Args)
	if err != nil {
		return err
	}
	if result != nil {
		if err := a.printJSON(result); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	d.Done(summary)
	return nil
}

// friendlyError trims wrapped transport detail off a session expiry.
func friendlyError(err error) error {
	if session.IsSessionExpired(err) {
		return session.ErrSessionExpired
	}
	return err
}
