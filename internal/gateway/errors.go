package gateway

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a downstream failure by what it tells us about the order.
type Kind int

const (
	// Rejected means the downstream answered and refused the order.
	Rejected Kind = iota + 1
	// Unavailable means the request never reached the downstream, so no
	// order can have been created.
	Unavailable
	// UnknownOutcome means the request may have been applied downstream
	// (timeout, cancellation, broken transport after send).
	UnknownOutcome
)

func (k Kind) String() string {
	switch k {
	case Rejected:
		return "rejected"
	case Unavailable:
		return "unavailable"
	case UnknownOutcome:
		return "unknown_outcome"
	default:
		return "unknown"
	}
}

// Error is the typed failure returned by the gateway.
type Error struct {
	Kind Kind
	Err  error
}

// NewError wraps err with a kind.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "downstream " + e.Kind.String()
	}
	return fmt.Sprintf("downstream %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a gateway error. Unclassified errors count as
// UnknownOutcome.
func KindOf(err error) Kind {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return UnknownOutcome
}

// Summary is the caller-safe description of a gateway failure. It never
// includes downstream diagnostics.
func Summary(err error) string {
	switch KindOf(err) {
	case Rejected:
		return "downstream system rejected the order"
	case Unavailable:
		return "downstream system unavailable; resubmit later"
	default:
		return "downstream commit outcome unknown; resubmit to retry"
	}
}

// CountsAgainstBreaker reports whether err indicates an unhealthy
// downstream. Business rejections prove the downstream is up.
func CountsAgainstBreaker(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return KindOf(err) != Rejected
}
