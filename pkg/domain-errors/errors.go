// Package domainerrors provides coded errors for domain logic.
//
// Services attach a Code to every rejection so transports can translate
// uniformly and tests can assert on failure class instead of message text.
// Infrastructure facts (pkg/platform/sentinel) get wrapped with a code at the
// service layer.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeFailedPrecondition Code = "failed_precondition"
	CodeUnavailable        Code = "unavailable"
	CodeInternal           Code = "internal_error"
	// CodeInvariantViolation marks states that should be unreachable. Seeing
	// one in production means a bug, not bad input.
	CodeInvariantViolation Code = "invariant_violation"
)

// Error is a coded domain error. Compare with errors.Is against package-level
// error values, or classify with HasCode.
type Error struct {
	code    Code
	message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}
	return e.message
}

func (e *Error) Unwrap() error {
	return e.err
}

// Code returns the classification of this error.
func (e *Error) Code() Code {
	return e.code
}

// Message returns the human-readable description without wrapped causes.
func (e *Error) Message() string {
	return e.message
}

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches a code and message to an underlying error. The cause stays
// reachable through errors.Is / errors.As.
func Wrap(err error, code Code, message string) *Error {
	return &Error{code: code, message: message, err: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for e := err; e != nil; {
		if errors.As(e, &de) {
			if de.code == code {
				return true
			}
			e = de.Unwrap()
			continue
		}
		return false
	}
	return false
}

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.code
	}
	return CodeInternal
}

// HTTPStatus maps a code to the status the transport layer should emit.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeBadRequest, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeFailedPrecondition:
		return http.StatusUnprocessableEntity
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
