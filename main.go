package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	tea "charm.land/bubbletea/v2"
	"github.com/rs/zerolog"

	"github.com/d361120041/health-log/config"
	"github.com/d361120041/health-log/logging"
	"github.com/d361120041/health-log/tui"
)

const appName = "healthlog"

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
	cfg, args, err := config.Load(appName, os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage(os.Stderr)
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	// Warn if tokens would cross the network in plaintext
	if cfg.InsecureRemote() {
		fmt.Fprintln(
			os.Stderr,
			"⚠️  WARNING: Using HTTP instead of HTTPS. Tokens will be transmitted in plaintext!",
		)
		fmt.Fprintln(
			os.Stderr,
			"⚠️  This is only safe for local development. Use HTTPS in production.",
		)
		fmt.Fprintln(os.Stderr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if isTTY() {
		// The TUI owns stderr, so log lines are dropped unless JSON was asked for
		logOut := io.Discard
		if cfg.LogFormat == "json" {
			logOut = os.Stderr
		}
		logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, logOut)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}

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

		// Command output is held back until the TUI has released the terminal
		var out bytes.Buffer
		d := tui.NewProgramDisplayer(p)
		d.Banner()
		runErr := run(ctx, d, cfg, logger, args, &out)
		p.Quit() // let BubbleTea drain terminal query responses before exiting
		wg.Wait()
		io.Copy(os.Stdout, &out)
		exit(runErr)
	} else {
		logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		d := tui.NewPlainDisplayer(os.Stderr)
		d.Banner()
		exit(run(ctx, d, cfg, logger, args, os.Stdout))
	}
}

func exit(err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, ErrUsage):
		printUsage(os.Stderr)
		os.Exit(2)
	default:
		os.Exit(1)
	}
}

// run executes one command: it enters the command's route through the
// guards, logging in when the guards ask for it, runs the command and
// closes the session.
func run(
	ctx context.Context,
	d tui.Displayer,
	cfg *config.Config,
	logger zerolog.Logger,
	args []string,
	out io.Writer,
) error {
	cmd, rest, err := lookup(args)
	if err != nil {
		d.Fatal(err)
		return err
	}

	a, err := newApp(cfg, logger, d, out)
	if err != nil {
		d.Fatal(err)
		return err
	}
	defer a.logout(ctx)

	return a.execute(ctx, cmd, rest)
}
