package controller

import (
	"errors"
	"fmt"
)

// Operation names used in errors and logs.
const (
	OpRegister  = "register"
	OpState     = "state"
	OpTelemetry = "telemetry"
)

// Kind classifies a controller failure. Every kind is retryable.
type Kind string

const (
	KindTransport       Kind = "transport"
	KindStatus          Kind = "status"
	KindInvalidResponse Kind = "invalid_response"
)

// Sentinels matched by errors.Is against *Error.
var (
	ErrTransport       = errors.New("controller transport failure")
	ErrStatus          = errors.New("controller returned non-success status")
	ErrInvalidResponse = errors.New("controller returned invalid response")
)

// Error is returned by every Client call.
type Error struct {
	Op         string
	Kind       Kind
	StatusCode int // Set for KindStatus
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindStatus && e.Err != nil:
		return fmt.Sprintf("%s: unexpected status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.Kind == KindStatus:
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrStatus:
		return e.Kind == KindStatus
	case ErrInvalidResponse:
		return e.Kind == KindInvalidResponse
	}
	return false
}

func transportError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindTransport, Err: err}
}

func statusError(op string, code int, body string) *Error {
	e := &Error{Op: op, Kind: KindStatus, StatusCode: code}
	if body != "" {
		e.Err = errors.New(body)
	}
	return e
}

func invalidResponse(op string, err error) *Error {
	return &Error{Op: op, Kind: KindInvalidResponse, Err: err}
}
