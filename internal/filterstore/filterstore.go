// Package filterstore defines the Filter Storage contract (C2): a
// filter-id keyed map with default-materialize-on-read semantics, and the
// derived helpers every backend gets for free.
package filterstore

import (
	"context"

	"github.com/columbia/pdslib-firefox/internal/budget"
	"github.com/columbia/pdslib-firefox/internal/filterid"
)

// Capacities supplies the default capacity assigned to a filter-id the
// first time it is materialized.
type Capacities interface {
	Capacity(id filterid.ID) budget.Budget
}

// Store is the Filter Storage contract. Implementations must guarantee
// that Get always returns exactly what the most recent Set stored for
// that id — the privacy proof depends on it. A missing filter-id returns
// (Filter{}, false, nil), never an error.
type Store interface {
	// Get returns the stored filter for id, or ok=false if none has been
	// set yet.
	Get(ctx context.Context, id filterid.ID) (f budget.Filter, ok bool, err error)

	// Set persists f under id, overwriting any previous value.
	Set(ctx context.Context, id filterid.ID, f budget.Filter) error

	// Capacities returns the capacity table this store was constructed
	// with.
	Capacities() Capacities
}

// GetOrNew returns the filter stored under id, or a freshly constructed
// one at that id's default capacity if none exists yet. It does not
// persist the new filter — callers that want it persisted regardless of
// consumption outcome should do so explicitly, as TryConsume does.
func GetOrNew(ctx context.Context, s Store, id filterid.ID) (budget.Filter, error) {
	f, ok, err := s.Get(ctx, id)
	if err != nil {
		return budget.Filter{}, err
	}
	if ok {
		return f, nil
	}
	return budget.NewFilter(s.Capacities().Capacity(id)), nil
}

// TryConsume materializes the filter at id (creating it at default
// capacity if absent), attempts to deduct requested, and persists the
// filter's resulting state regardless of whether consumption succeeded —
// a freshly materialized filter must be visible to subsequent reads even
// when this particular request was rejected.
func TryConsume(ctx context.Context, s Store, id filterid.ID, requested budget.Budget) (budget.Status, error) {
	f, err := GetOrNew(ctx, s, id)
	if err != nil {
		return budget.OutOfBudget, err
	}
	status := f.TryConsume(requested, nil)
	if err := s.Set(ctx, id, f); err != nil {
		return budget.OutOfBudget, err
	}
	return status, nil
}
