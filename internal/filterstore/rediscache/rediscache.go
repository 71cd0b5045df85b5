// Package rediscache is a Redis-backed filterstore.Store, storing each
// filter as a small JSON-encoded string value under a key derived from its
// filter id, behind a circuit breaker.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/columbia/pdslib-firefox/internal/budget"
	"github.com/columbia/pdslib-firefox/internal/filterid"
	"github.com/columbia/pdslib-firefox/internal/filterstore"
	"github.com/columbia/pdslib-firefox/internal/pdserrors"
	"github.com/columbia/pdslib-firefox/internal/resilience"
)

const component = "rediscache"

// Store is a filterstore.Store backed by a redis.Client.
type Store struct {
	client     *redis.Client
	capacities filterstore.Capacities
	breaker    *resilience.Manager
	keyPrefix  string
}

// New constructs a Store. keyPrefix namespaces keys in a shared Redis
// instance (e.g. "pds:filters:"); breaker may be nil to run uncircuited.
func New(client *redis.Client, capacities filterstore.Capacities, breaker *resilience.Manager, keyPrefix string) *Store {
	return &Store{client: client, capacities: capacities, breaker: breaker, keyPrefix: keyPrefix}
}

// EnsureConnection pings the backing client, surfacing a
// pdserrors.StorageFailure on failure rather than a bare redis error.
func (s *Store) EnsureConnection(ctx context.Context) error {
	return s.do(ctx, "ensure_connection", func(ctx context.Context) error {
		return s.client.Ping(ctx).Err()
	})
}

func (s *Store) do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if s.breaker == nil {
		if err := fn(ctx); err != nil {
			return pdserrors.StorageFailure(component, operation, err)
		}
		return nil
	}
	return resilience.Do(ctx, s.breaker, component, operation, fn)
}

func (s *Store) key(id filterid.ID) string {
	return s.keyPrefix + id.String()
}

type filterValue struct {
	Consumed float64 `json:"consumed"`
	Capacity float64 `json:"capacity"`
}

// Get returns the stored filter for id, or ok=false if the key is absent.
func (s *Store) Get(ctx context.Context, id filterid.ID) (budget.Filter, bool, error) {
	var raw string
	var found bool
	err := s.do(ctx, "get", func(ctx context.Context) error {
		var err error
		raw, err = s.client.Get(ctx, s.key(id)).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err == nil {
			found = true
		}
		return err
	})
	if err != nil {
		return budget.Filter{}, false, err
	}
	if !found {
		return budget.Filter{}, false, nil
	}
	var v filterValue
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return budget.Filter{}, false, pdserrors.StorageFailure(component, "get", err)
	}
	return budget.Filter{Consumed: budget.Budget(v.Consumed), Capacity: budget.Budget(v.Capacity)}, true, nil
}

// Set persists f under id with no expiry: filter budgets live for the
// lifetime of their epoch, which this package has no opinion on.
func (s *Store) Set(ctx context.Context, id filterid.ID, f budget.Filter) error {
	data, err := json.Marshal(filterValue{Consumed: float64(f.Consumed), Capacity: float64(f.Capacity)})
	if err != nil {
		return pdserrors.StorageFailure(component, "set", err)
	}
	return s.do(ctx, "set", func(ctx context.Context) error {
		return s.client.Set(ctx, s.key(id), data, 0).Err()
	})
}

// Capacities returns the capacity table this store was constructed with.
func (s *Store) Capacities() filterstore.Capacities {
	return s.capacities
}
