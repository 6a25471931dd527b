// Package apperrors defines the machine-readable error codes surfaced to
// REST callers and WebSocket acknowledgements.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable error identifier shared by every transport.
type Code string

const (
	CodeActivePollExists Code = "ACTIVE_POLL_EXISTS"
	CodeDurationTooLong  Code = "DURATION_TOO_LONG"
	CodePollNotFound     Code = "POLL_NOT_FOUND"
	CodePollEnded        Code = "POLL_ENDED"
	CodeStudentKicked    Code = "STUDENT_KICKED"
	CodeOptionNotFound   Code = "OPTION_NOT_FOUND"
	CodeAlreadyVoted     Code = "ALREADY_VOTED"
	CodeDBUnavailable    Code = "DB_UNAVAILABLE"
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeServerError      Code = "SERVER_ERROR"
	CodeInvalidMessage   Code = "INVALID_MESSAGE"
	CodeForbidden        Code = "FORBIDDEN"
)

var statusByCode = map[Code]int{
	CodeActivePollExists: http.StatusConflict,
	CodeDurationTooLong:  http.StatusBadRequest,
	CodePollNotFound:     http.StatusNotFound,
	CodePollEnded:        http.StatusConflict,
	CodeStudentKicked:    http.StatusForbidden,
	CodeOptionNotFound:   http.StatusNotFound,
	CodeAlreadyVoted:     http.StatusConflict,
	CodeDBUnavailable:    http.StatusServiceUnavailable,
	CodeValidation:       http.StatusBadRequest,
	CodeServerError:      http.StatusInternalServerError,
	CodeInvalidMessage:   http.StatusBadRequest,
	CodeForbidden:        http.StatusForbidden,
}

// Error is a domain error with a code, an HTTP status and a human message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new Error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on code so errors.Is(err, apperrors.New(CodeX, "")) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Status returns the HTTP status for the error's code.
func (e *Error) Status() int {
	if s, ok := statusByCode[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// From extracts an *Error from err. Anything unrecognised becomes SERVER_ERROR
// with a generic message so internals never leak to clients.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(CodeServerError, "Something went wrong.", err)
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}
