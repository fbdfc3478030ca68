package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies the kind of failure. Callers branch on the code, never on
// the rendered message.
type Code string

// Error codes for categorizing errors
const (
	ErrConfig        Code = "CONFIG"
	ErrUnreachable   Code = "UNREACHABLE"
	ErrAuth          Code = "AUTH"
	ErrTimeout       Code = "TIMEOUT"
	ErrNotFound      Code = "NOT_FOUND"
	ErrRemoteCommand Code = "REMOTE_COMMAND"
	ErrParse         Code = "PARSE"
	ErrStorage       Code = "STORAGE"

	// ErrSSH is the catch-all for transport errors the classifier couldn't place.
	ErrSSH Code = "SSH"
)

// Error represents a structured error with code, message, suggestion, and optional cause.
// Rendered as:
//
//	✗ <What failed>
//
//	  <Why it failed - technical details>
//
//	  <How to fix it - actionable steps>
type Error struct {
	Code       Code
	Message    string
	Suggestion string
	Cause      error
}

// New creates a new structured error with the given code, message, and suggestion.
func New(code Code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

// Wrap wraps an existing error with a message, defaulting to ErrSSH code.
func Wrap(err error, message string) *Error {
	return &Error{
		Code:    ErrSSH,
		Message: message,
		Cause:   err,
	}
}

// WrapWithCode wraps an existing error with a specific code, message, and suggestion.
func WrapWithCode(err error, code Code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		Cause:      err,
	}
}

// NotFound builds the error returned when an operation names a session that
// has no registered handle.
func NotFound(sessionID string) *Error {
	return &Error{
		Code:       ErrNotFound,
		Message:    fmt.Sprintf("session '%s' not found", sessionID),
		Suggestion: "Connect the device first, or check 'orion device list'",
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("✗ %s\n", e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Cause.Error()))
	}

	if e.Suggestion != "" {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Suggestion))
	}

	return b.String()
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode checks if an error is a structured Error with the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code && code != ""
}

// CodeOf returns the code of the outermost structured Error in err's chain,
// or an empty code if there is none.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ExitError carries a process exit code up to main without printing anything.
// `orion exec` uses it to mirror the remote command's exit status.
type ExitError struct {
	Code int
}

// NewExitError creates an ExitError for the given code.
func NewExitError(code int) *ExitError {
	return &ExitError{Code: code}
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// GetExitCode extracts the exit code from an ExitError in err's chain.
func GetExitCode(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}
