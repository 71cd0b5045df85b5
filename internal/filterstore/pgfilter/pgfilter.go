// Package pgfilter is a Postgres-backed filterstore.Store, keyed by the
// filter id's (kind, epoch, uri) triple, behind a circuit breaker.
package pgfilter

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/columbia/pdslib-firefox/internal/budget"
	"github.com/columbia/pdslib-firefox/internal/filterid"
	"github.com/columbia/pdslib-firefox/internal/filterstore"
	"github.com/columbia/pdslib-firefox/internal/pdserrors"
	"github.com/columbia/pdslib-firefox/internal/resilience"
)

const component = "pgfilter"

// Store is a filterstore.Store backed by a `filters` Postgres table. Wrap
// db with sqlx.NewDb(sql.OpenDB(pgx/v5/stdlib...), "pgx") the way the
// reference integration harness connects pgx through sqlx.
type Store struct {
	db         *sqlx.DB
	capacities filterstore.Capacities
	breaker    *resilience.Manager
}

// New constructs a Store. breaker may be nil, in which case calls run
// directly against db with no circuit breaking.
func New(db *sqlx.DB, capacities filterstore.Capacities, breaker *resilience.Manager) *Store {
	return &Store{db: db, capacities: capacities, breaker: breaker}
}

type filterRow struct {
	Consumed float64 `db:"consumed"`
	Capacity float64 `db:"capacity"`
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

// Get returns the stored filter for id, or ok=false if no row exists.
func (s *Store) Get(ctx context.Context, id filterid.ID) (budget.Filter, bool, error) {
	var row filterRow
	var found bool
	err := s.do(ctx, "get", func(ctx context.Context) error {
		err := s.db.GetContext(ctx, &row,
			`SELECT consumed, capacity FROM filters WHERE kind = $1 AND epoch = $2 AND uri = $3`,
			id.Kind.String(), id.Epoch, id.URI,
		)
		if errors.Is(err, sql.ErrNoRows) {
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
	return budget.Filter{Consumed: budget.Budget(row.Consumed), Capacity: budget.Budget(row.Capacity)}, true, nil
}

// Set upserts f under id.
func (s *Store) Set(ctx context.Context, id filterid.ID, f budget.Filter) error {
	return s.do(ctx, "set", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO filters (kind, epoch, uri, consumed, capacity)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (kind, epoch, uri)
			 DO UPDATE SET consumed = EXCLUDED.consumed, capacity = EXCLUDED.capacity`,
			id.Kind.String(), id.Epoch, id.URI, float64(f.Consumed), float64(f.Capacity),
		)
		return err
	})
}

// Capacities returns the capacity table this store was constructed with.
func (s *Store) Capacities() filterstore.Capacities {
	return s.capacities
}
