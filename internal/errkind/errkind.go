// Package errkind defines the small, shallow error taxonomy used across
// the host: each subsystem converts its internal errors to one of these
// kinds before they cross the control-plane boundary, per the
// propagation rule that every reply is a CtlResponse, never a panic.
package errkind

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v5"
)

// Kind classifies an error for the purpose of control-plane reporting
// and retry policy. It never carries a stack; one human message is
// attached by the wrapping error.
type Kind string

const (
	// Validation errors are never retried: bad reference, bad JWT, bad config.
	Validation Kind = "validation"
	// Policy errors are denials from the policy decision service.
	Policy Kind = "policy"
	// Transient covers bus/IO errors eligible for bounded retry.
	Transient Kind = "transient"
	// Guest covers a Wasm trap or interface-level error from a component.
	Guest Kind = "guest"
	// Fatal covers impossible invariants; the host drains and exits(1).
	Fatal Kind = "fatal"
)

// Error wraps an underlying cause with a Kind for classification at the
// control-plane boundary.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an existing error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the Kind of err if it (or something it wraps) is an
// *Error, and Transient otherwise: unclassified errors default to the
// retryable bucket rather than silently becoming fatal.
func KindOf(err error) Kind {
	var e *Error
	if asError(err, &e) {
		return e.Kind
	}
	return Transient
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Retry runs op, retrying only Transient failures with exponential
// backoff up to a small try ceiling, per spec.md §7: "Transient bus /
// IO: NATS publish, OCI fetch → retried with exponential backoff up to
// a small ceiling, then surfaced." Any other Kind stops retrying
// immediately and surfaces as-is.
func Retry[T any](ctx context.Context, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && KindOf(err) != Transient {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(5))
}

// Named validation error kinds from spec.md §4.1.
var (
	ErrExpiredToken    = New(Validation, "token expired")
	ErrNotYetValid     = New(Validation, "token not yet valid")
	ErrBadSignature    = New(Validation, "bad signature")
	ErrUnsignedArtifact = New(Validation, "artifact has no embedded JWT")
)
