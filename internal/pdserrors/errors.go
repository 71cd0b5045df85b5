// Package pdserrors defines the uniform error type surfaced by every
// component of the private data service. The privacy proof requires that a
// failure to deduct from one filter never exposes the state of another, so
// every error path in this module funnels through Error rather than ad-hoc
// fmt.Errorf or leaking backend-specific error text.
package pdserrors

import (
	"fmt"
	"strings"
)

// Kind classifies why an operation failed. See spec §7.
type Kind int

const (
	// KindStorageFailure is an I/O or corruption failure in a host-supplied
	// Filter/Event Storage backend. The operation is aborted; already
	// committed filter writes from earlier epochs in the same request are
	// not rolled back.
	KindStorageFailure Kind = iota

	// KindInvariantViolation is a Phase-2 deduction failure after Phase-1
	// succeeded, or any other internal contract breach. Fatal: the caller
	// should treat it as a bug, never as a privacy event.
	KindInvariantViolation

	// KindMisconfiguration is a constructor-time rejection: epsilon <= 0,
	// a non-positive sensitivity cap, histogram_size == 0, a multi-querier
	// request, or similar.
	KindMisconfiguration
)

func (k Kind) String() string {
	switch k {
	case KindStorageFailure:
		return "storage_failure"
	case KindInvariantViolation:
		return "invariant_violation"
	case KindMisconfiguration:
		return "misconfiguration"
	default:
		return "unknown"
	}
}

// Error is the uniform error type for this module. Component and Operation
// give a host enough context to log or alert on, without ever including
// the values (URIs, event ids) that the privacy proof says must stay on
// the device.
type Error struct {
	Kind      Kind
	Operation string
	Component string
	Cause     error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Kind, e.Operation)
	if e.Component != "" {
		fmt.Fprintf(&b, " (component: %s)", e.Component)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// StorageFailure wraps a backend error without leaking its payload beyond
// the operation name: callers that need to surface this to a host should
// log e.Cause server-side, not forward it into an OOB response.
func StorageFailure(component, operation string, cause error) *Error {
	return &Error{Kind: KindStorageFailure, Operation: operation, Component: component, Cause: cause}
}

// InvariantViolation reports a fatal internal contract breach, e.g. a
// Phase-2 commit failing after Phase-1 reported sufficient budget.
func InvariantViolation(operation string, cause error) *Error {
	return &Error{Kind: KindInvariantViolation, Operation: operation, Cause: cause}
}

// Misconfiguration reports a rejected construction-time configuration.
func Misconfiguration(operation string, cause error) *Error {
	return &Error{Kind: KindMisconfiguration, Operation: operation, Cause: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !asError(err, &e) {
		return false
	}
	return e.Kind == kind
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
