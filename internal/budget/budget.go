// Package budget implements the scalar pure-DP budget arithmetic: a single
// filter tracking how much epsilon has been consumed against a capacity,
// with support for an infinite (disabled) filter.
package budget

import (
	"math"

	"go.uber.org/zap"
)

// Budget is a pure-DP epsilon value. NaN is normalized to +Inf by
// Normalize and is treated as "unlimited" everywhere in this package.
type Budget float64

// Infinite returns the budget representing a disabled, unlimited filter.
func Infinite() Budget {
	return Budget(math.Inf(1))
}

// IsInfinite reports whether b represents an unlimited budget.
func (b Budget) IsInfinite() bool {
	return math.IsInf(float64(b), 1)
}

// Normalize maps NaN to +Inf; every other value passes through unchanged.
// Capacities are expected to be normalized once at construction time so
// downstream arithmetic never has to special-case NaN.
func (b Budget) Normalize() Budget {
	if math.IsNaN(float64(b)) {
		return Infinite()
	}
	return b
}

// Status is the result of a consume attempt against a Filter.
type Status int

const (
	// Continue means the filter had enough remaining budget.
	Continue Status = iota
	// OutOfBudget means consuming would have exceeded capacity; the
	// filter's state is left untouched.
	OutOfBudget
)

func (s Status) String() string {
	if s == Continue {
		return "continue"
	}
	return "out_of_budget"
}

// nearEquality is the threshold below which a remaining/requested budget
// difference is considered numerically suspicious rather than a clean
// OutOfBudget, mirroring the diagnostic in the reference filter.
const nearEquality = 1e-9

// Filter tracks consumption against a single capacity. The zero value is
// not usable; construct with NewFilter.
type Filter struct {
	Consumed Budget
	Capacity Budget // Infinite() means unlimited.
}

// NewFilter creates a filter with zero consumption and the given capacity.
// capacity is normalized (NaN -> infinite) before being stored.
func NewFilter(capacity Budget) Filter {
	return Filter{Consumed: 0, Capacity: capacity.Normalize()}
}

// Remaining returns the unconsumed budget. Infinite capacity yields
// Infinite(). This is for local visualization/testing only — its output
// must never be shared outside the device, since it reveals filter state.
func (f Filter) Remaining() Budget {
	if f.Capacity.IsInfinite() {
		return Infinite()
	}
	return f.Capacity - f.Consumed
}

// CanConsume reports whether requested budget can be consumed without
// mutating the filter. logger may be nil; when non-nil, a near-equality
// diagnostic is logged at Warn (the raw values, never the caller's URIs,
// since this package has no notion of URIs).
func (f Filter) CanConsume(requested Budget, logger *zap.Logger) Status {
	if f.Capacity.IsInfinite() {
		return Continue
	}
	remaining := f.Capacity - f.Consumed
	diff := math.Abs(float64(remaining - requested))
	if diff < nearEquality && diff > 0 && logger != nil {
		logger.Warn("can_consume: remaining and requested budget are nearly equal",
			zap.Float64("remaining", float64(remaining)),
			zap.Float64("requested", float64(requested)),
			zap.Float64("diff", diff),
		)
	}
	if f.Consumed+requested > f.Capacity {
		return OutOfBudget
	}
	return Continue
}

// TryConsume attempts to deduct requested from f, returning the resulting
// status. On OutOfBudget, f is left unmodified.
func (f *Filter) TryConsume(requested Budget, logger *zap.Logger) Status {
	status := f.CanConsume(requested, logger)
	if status == Continue {
		f.Consumed += requested
	}
	return status
}
