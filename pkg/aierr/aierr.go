// Package aierr defines the closed failure taxonomy shared by the backends,
// the retry handler and the coordinator, plus normalization of arbitrary
// failures into it.
package aierr

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind is the category of an AI failure.
type Kind string

const (
	// KindNetwork covers transport failures. Retryable on the same backend.
	KindNetwork Kind = "network"
	// KindRateLimit means the backend asked us to slow down. Retryable on the same backend.
	KindRateLimit Kind = "rate_limit"
	// KindAPIUnavailable means the backend cannot serve requests. Only fallback helps.
	KindAPIUnavailable Kind = "api_unavailable"
	// KindInvalidInput means the request itself is wrong. Never retried.
	KindInvalidInput Kind = "invalid_input"
	// KindProcessingFailed covers everything else. Only fallback helps.
	KindProcessingFailed Kind = "processing_failed"
)

// UnknownMessage replaces the message of failures that carry no error value.
const UnknownMessage = "unknown error"

// Retryable reports whether failures of this kind may be retried against the
// same backend.
func (k Kind) Retryable() bool {
	return k == KindNetwork || k == KindRateLimit
}

// Error is a normalized AI failure.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Cause     error
}

// New creates an Error whose retryability is derived from kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Retryable: kind.Retryable()}
}

// Wrap creates an Error of the given kind around cause.
func Wrap(cause error, kind Kind, msg string) *Error {
	e := New(kind, msg)
	e.Cause = cause
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Network creates a network error.
func Network(msg string, cause error) *Error {
	return Wrap(cause, KindNetwork, msg)
}

// RateLimit creates a rate limit error.
func RateLimit(msg string) *Error {
	return New(KindRateLimit, msg)
}

// APIUnavailable creates an api unavailable error.
func APIUnavailable(msg string) *Error {
	return New(KindAPIUnavailable, msg)
}

// InvalidInput creates an invalid input error.
func InvalidInput(msg string) *Error {
	return New(KindInvalidInput, msg)
}

// ProcessingFailed creates a processing failure.
func ProcessingFailed(msg string, cause error) *Error {
	return Wrap(cause, KindProcessingFailed, msg)
}

// Normalize turns any failure into an *Error. Errors already in the taxonomy
// are returned unchanged; network and deadline errors become KindNetwork;
// everything else becomes a non-retryable KindProcessingFailed that keeps
// the original message.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}
	var aiErr *Error
	if errors.As(err, &aiErr) {
		return aiErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Network("request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Network(err.Error(), err)
	}
	return ProcessingFailed(err.Error(), err)
}

// FromPanic normalizes a recovered panic value.
func FromPanic(v any) *Error {
	if err, ok := v.(error); ok {
		return Normalize(err)
	}
	return ProcessingFailed(UnknownMessage, nil)
}

// KindOf returns the kind of err, or KindProcessingFailed for errors outside
// the taxonomy.
func KindOf(err error) Kind {
	var aiErr *Error
	if errors.As(err, &aiErr) {
		return aiErr.Kind
	}
	return KindProcessingFailed
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var aiErr *Error
	return errors.As(err, &aiErr) && aiErr.Kind == kind
}
