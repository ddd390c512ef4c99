package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Kind classifies a failed call.
type Kind int

const (
	KindUnknown      Kind = iota // no classifiable response
	KindNetwork                  // no response received
	KindTimeout                  // request deadline exceeded
	KindServer                   // 5xx
	KindUnauthorized             // 401 after the refresh path, or refresh failure
	KindForbidden                // 403
	KindNotFound                 // 404
	KindBadRequest               // 400
	KindUnknownHTTP              // any other non-2xx status
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "NetworkError"
	case KindTimeout:
		return "TimeoutError"
	case KindServer:
		return "ServerError"
	case KindUnauthorized:
		return "Unauthorized"
	case KindForbidden:
		return "Forbidden"
	case KindNotFound:
		return "NotFound"
	case KindBadRequest:
		return "BadRequest"
	case KindUnknownHTTP:
		return "UnknownHttpError"
	default:
		return "UnknownError"
	}
}

// User-facing messages per kind.
const (
	msgTimeout        = "request timed out, check your connection and retry later"
	msgNetwork        = "connection failed, the server could not be reached"
	msgServer         = "server error, please try again later"
	msgSessionExpired = "session expired, please log in again"
	msgUnauthorized   = "authentication required"
	msgForbidden      = "you do not have permission to perform this action"
	msgNotFound       = "the requested resource was not found"
	msgBadRequest     = "the request was rejected as invalid"
	msgUnknown        = "an unexpected error occurred"
)

// Sentinels for errors.Is matching on Kind.
var (
	ErrNetwork      = &Error{Kind: KindNetwork}
	ErrTimeout      = &Error{Kind: KindTimeout}
	ErrServer       = &Error{Kind: KindServer}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrBadRequest   = &Error{Kind: KindBadRequest}
)

// Error is returned by every failed call made through Client.
type Error struct {
	Kind          Kind
	Status        int    // HTTP status, 0 when no response was received
	Message       string // safe to show to the user
	ServerMessage string // message from the response body, if any
	RequestID     string
	Method        string
	Path          string
	Err           error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Method != "" {
		fmt.Fprintf(&b, "%s %s: ", e.Method, e.Path)
	}
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same Kind, and the same Status when
// the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Status == 0 || t.Status == e.Status)
}

// KindOf returns the Kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// ErrorResponse is the error body shape used by the API.
type ErrorResponse struct {
	Status           int    `json:"status"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// serverMessage extracts a human readable message from an error body.
func serverMessage(body []byte) string {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		return ""
	}
	switch {
	case errResp.Message != "":
		return errResp.Message
	case errResp.ErrorDescription != "":
		return errResp.ErrorDescription
	default:
		return errResp.Error
	}
}

// statusError classifies a non-2xx response.
func statusError(status int, body []byte) *Error {
	e := &Error{
		Status:        status,
		ServerMessage: serverMessage(body),
	}

	var fallback string
	switch {
	case status == http.StatusBadRequest:
		e.Kind, fallback = KindBadRequest, msgBadRequest
	case status == http.StatusUnauthorized:
		e.Kind, fallback = KindUnauthorized, msgUnauthorized
	case status == http.StatusForbidden:
		e.Kind, fallback = KindForbidden, msgForbidden
	case status == http.StatusNotFound:
		e.Kind, fallback = KindNotFound, msgNotFound
	case status >= 500:
		e.Kind, fallback = KindServer, msgServer
	default:
		e.Kind, fallback = KindUnknownHTTP, fmt.Sprintf("request failed with status %d", status)
	}

	e.Message = e.ServerMessage
	if e.Message == "" {
		e.Message = fallback
	}
	return e
}

// transportError classifies a failure where no response was received.
func transportError(err error) *Error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return &Error{Kind: KindTimeout, Message: msgTimeout, Err: err}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindUnknown, Message: "request cancelled", Err: err}
	default:
		return &Error{Kind: KindNetwork, Message: msgNetwork, Err: err}
	}
}

// sessionExpired wraps a refresh failure.
func sessionExpired(err error) *Error {
	e := &Error{Kind: KindUnauthorized, Message: msgSessionExpired, Err: err}
	var cause *Error
	if errors.As(err, &cause) {
		e.Status = cause.Status
		e.ServerMessage = cause.ServerMessage
	}
	return e
}
