package tui

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/common-nighthawk/go-figure"

	"github.com/d361120041/health-log/apiclient"
)

// Displayer abstracts all status output of a command. It also receives
// the API client's error events.
type Displayer interface {
	apiclient.Notifier

	Banner()
	LoggingIn(email string)
	LoginOK(email, role string)
	LoginFailed(err error)
	Navigated(path string)
	Working(task string)
	TaskDone(task string)
	LoggedOut(err error)
	Done(summary string, elapsed time.Duration)
	Fatal(err error)
}

// PlainDisplayer writes plain text status lines to w.
// Used when stderr is not a TTY (pipes, CI, SSH without pty).
type PlainDisplayer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPlainDisplayer creates a PlainDisplayer that writes to w.
func NewPlainDisplayer(w io.Writer) *PlainDisplayer {
	return &PlainDisplayer{w: w}
}

func (p *PlainDisplayer) Banner() {
	fmt.Fprintln(p.w, figure.NewFigure("health-log", "small", true).String())
}

func (p *PlainDisplayer) LoggingIn(email string) {
	fmt.Fprintf(p.w, "Logging in as %s...\n", email)
}

func (p *PlainDisplayer) LoginOK(email, role string) {
	if role == "" {
		fmt.Fprintf(p.w, "Logged in as %s\n", email)
		return
	}
	fmt.Fprintf(p.w, "Logged in as %s (%s)\n", email, role)
}

func (p *PlainDisplayer) LoginFailed(err error) {
	fmt.Fprintf(p.w, "Login failed: %s\n", userMessage(err))
}

func (p *PlainDisplayer) Navigated(path string) {
	fmt.Fprintf(p.w, "-> %s\n", path)
}

func (p *PlainDisplayer) Working(task string) {
	fmt.Fprintf(p.w, "%s...\n", task)
}

func (p *PlainDisplayer) TaskDone(task string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s: done\n", task)
}

// APIError may be called from concurrent requests.
func (p *PlainDisplayer) APIError(err *apiclient.Error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "Warning: %s\n", userMessage(err))
}

func (p *PlainDisplayer) LoggedOut(err error) {
	if err != nil {
		fmt.Fprintf(p.w, "Logged out locally (server logout failed: %s)\n", userMessage(err))
		return
	}
	fmt.Fprintln(p.w, "Logged out")
}

func (p *PlainDisplayer) Done(summary string, elapsed time.Duration) {
	fmt.Fprintf(p.w, "%s (%s)\n", summary, formatDuration(elapsed))
}

func (p *PlainDisplayer) Fatal(err error) {
	fmt.Fprintf(p.w, "Error: %s\n", userMessage(err))
}

// NoopDisplayer is a no-op implementation used in tests.
type NoopDisplayer struct{}

func (NoopDisplayer) Banner()                        {}
func (NoopDisplayer) LoggingIn(_ string)             {}
func (NoopDisplayer) LoginOK(_, _ string)            {}
func (NoopDisplayer) LoginFailed(_ error)            {}
func (NoopDisplayer) Navigated(_ string)             {}
func (NoopDisplayer) Working(_ string)               {}
func (NoopDisplayer) TaskDone(_ string)              {}
func (NoopDisplayer) APIError(_ *apiclient.Error)    {}
func (NoopDisplayer) LoggedOut(_ error)              {}
func (NoopDisplayer) Done(_ string, _ time.Duration) {}
func (NoopDisplayer) Fatal(_ error)                  {}

// ProgramDisplayer sends BubbleTea messages to a running tea.Program.
type ProgramDisplayer struct {
	p *tea.Program
}

// NewProgramDisplayer creates a ProgramDisplayer that sends messages to p.
func NewProgramDisplayer(p *tea.Program) *ProgramDisplayer {
	return &ProgramDisplayer{p: p}
}

func (t *ProgramDisplayer) Banner() {
	t.p.Send(MsgBanner{})
}

func (t *ProgramDisplayer) LoggingIn(email string) {
	t.p.Send(MsgLoggingIn{Email: email})
}

func (t *ProgramDisplayer) LoginOK(email, role string) {
	t.p.Send(MsgLoginOK{Email: email, Role: role})
}

func (t *ProgramDisplayer) LoginFailed(err error) {
	t.p.Send(MsgLoginFailed{Err: err})
}

func (t *ProgramDisplayer) Navigated(path string) {
	t.p.Send(MsgNavigated{Path: path})
}

func (t *ProgramDisplayer) Working(task string) {
	t.p.Send(MsgWorking{Task: task, Start: time.Now()})
}

func (t *ProgramDisplayer) TaskDone(task string) {
	t.p.Send(MsgTaskDone{Task: task})
}

func (t *ProgramDisplayer) APIError(err *apiclient.Error) {
	t.p.Send(MsgAPIError{Err: err})
}

func (t *ProgramDisplayer) LoggedOut(err error) {
	t.p.Send(MsgLoggedOut{Err: err})
}

func (t *ProgramDisplayer) Done(summary string, elapsed time.Duration) {
	t.p.Send(MsgDone{Summary: summary, Elapsed: elapsed})
}

func (t *ProgramDisplayer) Fatal(err error) {
	t.p.Send(MsgFatal{Err: err})
}

// userMessage prefers the user-facing message of an API error.
func userMessage(err error) string {
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
