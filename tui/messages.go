package tui

import (
	"time"

	"github.com/d361120041/health-log/apiclient"
)

// MsgBanner signals that the banner/title should be displayed.
type MsgBanner struct{}

// MsgLoggingIn signals that a login for Email has started.
type MsgLoggingIn struct{ Email string }

// MsgLoginOK signals a successful login.
type MsgLoginOK struct {
	Email string
	Role  string
}

// MsgLoginFailed signals that the login was rejected.
type MsgLoginFailed struct{ Err error }

// MsgNavigated signals that the router moved to Path.
type MsgNavigated struct{ Path string }

// MsgWorking signals that a command started running.
type MsgWorking struct {
	Task  string
	Start time.Time
}

// MsgTaskDone signals that one part of a command finished.
type MsgTaskDone struct{ Task string }

// MsgAPIError carries an error event raised by the API client.
type MsgAPIError struct{ Err *apiclient.Error }

// MsgLoggedOut signals that the session was closed.
type MsgLoggedOut struct{ Err error }

// MsgDone signals successful completion of the command.
type MsgDone struct {
	Summary string
	Elapsed time.Duration
}

// MsgFatal signals a fatal error that should terminate the command.
type MsgFatal struct{ Err error }
