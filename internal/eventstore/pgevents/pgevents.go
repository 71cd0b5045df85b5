// Package pgevents is a Postgres-backed eventstore.Store, appending
// impressions to an `events` table partitioned logically by epoch_id,
// behind a circuit breaker.
package pgevents

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/columbia/pdslib-firefox/internal/eventstore"
	"github.com/columbia/pdslib-firefox/internal/resilience"
)

const component = "pgevents"

// Store is an eventstore.Store backed by an `events` Postgres table.
type Store struct {
	db      *sqlx.DB
	breaker *resilience.Manager
}

// New constructs a Store. breaker may be nil to run uncircuited.
func New(db *sqlx.DB, breaker *resilience.Manager) *Store {
	return &Store{db: db, breaker: breaker}
}

type eventRow struct {
	ID               uint64   `db:"id"`
	Timestamp        uint64   `db:"ts"`
	EpochID          uint64   `db:"epoch_id"`
	HistogramIndex   uint64   `db:"histogram_index"`
	FilterData       uint64   `db:"filter_data"`
	SourceURI        string   `db:"source_uri"`
	TriggerURIs      []string `db:"trigger_uris"`
	IntermediaryURIs []string `db:"intermediary_uris"`
	QuerierURIs      []string `db:"querier_uris"`
}

func (s *Store) do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if s.breaker == nil {
		return fn(ctx)
	}
	return resilience.Do(ctx, s.breaker, component, operation, fn)
}

// AddEvent appends e to the events table.
func (s *Store) AddEvent(ctx context.Context, e eventstore.Event) error {
	return s.do(ctx, "add_event", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO events
			 (id, ts, epoch_id, histogram_index, filter_data, source_uri, trigger_uris, intermediary_uris, querier_uris)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			e.ID, e.Timestamp, e.EpochID, e.HistogramIndex, e.FilterData,
			e.URIs.SourceURI, e.URIs.TriggerURIs, e.URIs.IntermediaryURIs, e.URIs.QuerierURIs,
		)
		return err
	})
}

// EventsForEpoch returns every event recorded for epochID, ordered by event
// id. This matches insertion order only when ids are assigned in increasing
// order; the table keeps no separate insertion sequence.
func (s *Store) EventsForEpoch(ctx context.Context, epochID uint64) ([]eventstore.Event, error) {
	var rows []eventRow
	err := s.do(ctx, "events_for_epoch", func(ctx context.Context) error {
		return s.db.SelectContext(ctx, &rows,
			`SELECT id, ts, epoch_id, histogram_index, filter_data, source_uri, trigger_uris, intermediary_uris, querier_uris
			 FROM events WHERE epoch_id = $1 ORDER BY id ASC`,
			epochID,
		)
	})
	if err != nil {
		return nil, err
	}
	events := make([]eventstore.Event, len(rows))
	for i, row := range rows {
		events[i] = eventstore.Event{
			ID:             row.ID,
			Timestamp:      row.Timestamp,
			EpochID:        row.EpochID,
			HistogramIndex: row.HistogramIndex,
			FilterData:     row.FilterData,
			URIs: eventstore.EventUris{
				SourceURI:        row.SourceURI,
				TriggerURIs:      row.TriggerURIs,
				IntermediaryURIs: row.IntermediaryURIs,
				QuerierURIs:      row.QuerierURIs,
			},
		}
	}
	return events, nil
}
