package source

import (
	"errors"
	"fmt"
)

// Kind classifies a fetch failure. The retry policy keys off this value,
// so classification happens where the failure is observed, not by
// heuristics downstream.
type Kind int

// Failure kinds. Transport and RateLimited are transient; the rest are
// terminal for the operation that produced them.
const (
	KindUnknown Kind = iota
	KindTransport
	KindRateLimited
	KindNotFound
	KindAuth
	KindMalformed
	KindContent
)

// String returns the lowercase label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindAuth:
		return "auth"
	case KindMalformed:
		return "malformed"
	case KindContent:
		return "content"
	default:
		return "unknown"
	}
}

// Error carries a failure kind alongside the wrapped cause. Op names the
// failing operation ("fetch catalog", "get") and Ref the identifier or
// locator involved.
type Error struct {
	Kind Kind
	Op   string
	Ref  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Ref, e.Kind)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Ref, e.Kind, e.Err)
}

// Unwrap exposes the cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a classified error.
func NewError(kind Kind, op, ref string, err error) *Error {
	return &Error{Kind: kind, Op: op, Ref: ref, Err: err}
}

// KindOf extracts the Kind from err, or KindUnknown when err carries none.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given failure kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
