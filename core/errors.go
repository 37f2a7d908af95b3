package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the failure taxonomy. A QueryError matches the sentinel
// of its Kind via errors.Is.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrSessionOpen        = errors.New("session open failed")
	ErrTimeout            = errors.New("timeout")
	ErrBackend            = errors.New("backend error")
	ErrNoResponse         = errors.New("no response received")
	ErrCanceled           = errors.New("canceled")
	ErrInternal           = errors.New("internal error")
)

// ErrorKind classifies why a query failed.
type ErrorKind string

const (
	// KindBackendUnavailable means no usable connection to the backend exists.
	KindBackendUnavailable ErrorKind = "backend_unavailable"
	// KindSessionOpen means session construction failed for a reachable backend.
	KindSessionOpen ErrorKind = "session_open"
	// KindTimeout means the terminal wait exceeded the configured duration.
	KindTimeout ErrorKind = "timeout"
	// KindBackendError means the backend explicitly reported a failure.
	KindBackendError ErrorKind = "backend_error"
	// KindNoResponse means a non-streaming call returned nothing.
	KindNoResponse ErrorKind = "no_response"
	// KindCanceled means the caller's context was canceled.
	KindCanceled ErrorKind = "canceled"
	// KindInternal means an unexpected fault was recovered inside the executor.
	KindInternal ErrorKind = "internal"
)

var kindSentinels = map[ErrorKind]error{
	KindBackendUnavailable: ErrBackendUnavailable,
	KindSessionOpen:        ErrSessionOpen,
	KindTimeout:            ErrTimeout,
	KindBackendError:       ErrBackend,
	KindNoResponse:         ErrNoResponse,
	KindCanceled:           ErrCanceled,
	KindInternal:           ErrInternal,
}

// QueryError is the failure reason stored in a Result. It is data, not a
// control-flow signal: executors never return it past their boundary.
type QueryError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	cause   error
}

// NewQueryError builds a QueryError of the given kind. The cause (optional)
// stays reachable through errors.Unwrap.
func NewQueryError(kind ErrorKind, message string, cause error) *QueryError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &QueryError{Kind: kind, Message: message, cause: cause}
}

// TimeoutError builds the failure reported when a query exceeds d.
func TimeoutError(d time.Duration) *QueryError {
	return NewQueryError(KindTimeout, fmt.Sprintf("timeout after %s", d), context.DeadlineExceeded)
}

// Error implements error.
func (e *QueryError) Error() string { return e.Message }

// Unwrap exposes the underlying cause.
func (e *QueryError) Unwrap() error { return e.cause }

// Is matches the sentinel associated with the error kind.
func (e *QueryError) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

// AsQueryError converts an arbitrary error into a QueryError. Errors already
// carrying a QueryError keep their kind; sentinel matches map to their kind;
// everything else is classified with fallback.
func AsQueryError(err error, fallback ErrorKind) *QueryError {
	if err == nil {
		return nil
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return NewQueryError(kind, err.Error(), err)
		}
	}
	switch {
	case errors.Is(err, context.Canceled):
		return NewQueryError(KindCanceled, err.Error(), err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewQueryError(KindTimeout, err.Error(), err)
	}
	return NewQueryError(fallback, err.Error(), err)
}
