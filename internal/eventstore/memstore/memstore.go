// Package memstore is the in-process Event Storage reference backend: an
// append-only per-epoch event log guarded by a mutex.
package memstore

import (
	"context"
	"sync"

	"github.com/columbia/pdslib-firefox/internal/eventstore"
)

// Store is a map of epoch id to an append-only slice of events, in
// insertion order — the order the histogram engine's last-touch scan
// depends on.
type Store struct {
	mu     sync.Mutex
	events map[uint64][]eventstore.Event
}

// New creates an empty event store.
func New() *Store {
	return &Store{events: make(map[uint64][]eventstore.Event)}
}

func (s *Store) AddEvent(_ context.Context, e eventstore.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.EpochID] = append(s.events[e.EpochID], e)
	return nil
}

func (s *Store) EventsForEpoch(_ context.Context, epochID uint64) ([]eventstore.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.events[epochID]
	out := make([]eventstore.Event, len(events))
	copy(out, events)
	return out, nil
}
