package wssession

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrConnectionClosed = errors.New("connection has been closed")
	ErrCannotConnect    = errors.New("connection cannot be established")
	ErrRateLimit        = errors.New("rate limit exceeded")
	ErrCancelled        = errors.New("connection cancelled")
	ErrPongTimeout      = errors.New("pong not received within ping interval")
	ErrCloseTimeout     = errors.New("peer did not answer the close frame in time")
	ErrTerminated       = errors.New("controller terminated")
	ErrEmptyURL         = errors.New("server url must not be empty")
	ErrNotImplemented   = errors.New("method not implemented")
	ErrInvalidArgument  = errors.New("invalid method call argument")
)

// failureLabels gives every connection-level sentinel the short name reported as the
// throwable type of a Failure event.
var failureLabels = []struct {
	kind  error
	label string
}{
	{ErrRateLimit, "RateLimit"},
	{ErrCannotConnect, "CannotConnect"},
	{ErrCancelled, "Cancelled"},
	{ErrPongTimeout, "PongTimeout"},
	{ErrCloseTimeout, "CloseTimeout"},
	{ErrConnectionClosed, "ConnectionClosed"},
}

// ConnectionError is a connection-level failure reported by a transport. Kind is one of the
// sentinels above, Err the underlying cause (may be nil).
type ConnectionError struct {
	Kind error
	Err  error
	URL  string
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (%s)", e.Kind, e.URL)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Cause returns the underlying error, or nil when the failure has no deeper cause.
func (e *ConnectionError) Cause() error { return e.Err }

func (e *ConnectionError) FailureType() string {
	for _, l := range failureLabels {
		if errors.Is(e.Kind, l.kind) {
			return l.label
		}
	}
	return "ConnectionError"
}

func newConnectionError(kind error, err error, url string) *ConnectionError {
	return &ConnectionError{Kind: kind, Err: err, URL: url}
}

// CommandError is the error half of a method call answered through the command bridge.
type CommandError struct {
	Code    string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

var (
	errSendText   = &CommandError{Code: "01", Message: "Unable to send text message!"}
	errSendBinary = &CommandError{Code: "02", Message: "Unable to send binary message!"}
)
