// Package memstore is the in-process, map-backed Filter Storage reference
// backend: the default used by unit tests and by single-process hosts that
// don't need cross-process durability.
package memstore

import (
	"context"
	"sync"

	"github.com/columbia/pdslib-firefox/internal/budget"
	"github.com/columbia/pdslib-firefox/internal/filterid"
	"github.com/columbia/pdslib-firefox/internal/filterstore"
)

// Store is a sync.Mutex-guarded map of filterid.ID to budget.Filter. The
// core itself is single-threaded per instance (see internal/pds), but this
// backend is safe to share across goroutines that each hold their own core
// instance against disjoint epoch ranges.
type Store struct {
	mu         sync.Mutex
	capacities filterid.StaticCapacities
	filters    map[filterid.ID]budget.Filter
}

// New creates an empty filter store using capacities as the default
// capacity for any filter-id materialized for the first time.
func New(capacities filterid.StaticCapacities) *Store {
	return &Store{
		capacities: capacities,
		filters:    make(map[filterid.ID]budget.Filter),
	}
}

func (s *Store) Get(_ context.Context, id filterid.ID) (budget.Filter, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.filters[id]
	return f, ok, nil
}

func (s *Store) Set(_ context.Context, id filterid.ID, f budget.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters[id] = f
	return nil
}

func (s *Store) Capacities() filterstore.Capacities {
	return capacitiesAdapter{s.capacities}
}

type capacitiesAdapter struct {
	c filterid.StaticCapacities
}

func (a capacitiesAdapter) Capacity(id filterid.ID) budget.Budget {
	return a.c.Capacity(id)
}
