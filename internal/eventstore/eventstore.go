// Package eventstore defines the Event Storage contract (C3): append-only
// per-epoch event logs, plus relevant-event selection for a set of epochs.
package eventstore

import "context"

// EventUris carries every URI role an event touches: the source that
// registered it, the triggers that can cause a report to be computed, the
// intermediaries embedded in source/trigger sites, and the queriers that
// receive reports.
type EventUris struct {
	SourceURI        string
	TriggerURIs      []string
	IntermediaryURIs []string
	QuerierURIs      []string
}

// Event is a single impression. HistogramIndex and FilterData are opaque
// to this package; they exist so a RelevantEventSelector and a histogram
// engine can interpret them without this package knowing their shape.
type Event struct {
	ID             uint64
	Timestamp      uint64
	EpochID        uint64
	HistogramIndex uint64
	FilterData     uint64
	URIs           EventUris
}

// RelevantEventSelector decides whether a single event is relevant to a
// particular report request. Implementations may carry their own
// immutable state (e.g. a target querier URI, a filter-data mask).
type RelevantEventSelector interface {
	IsRelevant(e Event) bool
}

// Store is the Event Storage contract. A missing epoch returns an empty
// slice, never an error.
type Store interface {
	AddEvent(ctx context.Context, e Event) error
	EventsForEpoch(ctx context.Context, epochID uint64) ([]Event, error)
}

// RelevantEvents holds, for a fixed set of epochs, the events from those
// epochs that passed a RelevantEventSelector.
type RelevantEvents struct {
	eventsPerEpoch map[uint64][]Event
}

// FromStore fetches events_for_epoch for each id in epochIDs and keeps
// only those selector judges relevant.
func FromStore(ctx context.Context, store Store, epochIDs []uint64, selector RelevantEventSelector) (RelevantEvents, error) {
	perEpoch := make(map[uint64][]Event, len(epochIDs))
	for _, epochID := range epochIDs {
		events, err := store.EventsForEpoch(ctx, epochID)
		if err != nil {
			return RelevantEvents{}, err
		}
		var relevant []Event
		for _, e := range events {
			if selector.IsRelevant(e) {
				relevant = append(relevant, e)
			}
		}
		perEpoch[epochID] = relevant
	}
	return RelevantEvents{eventsPerEpoch: perEpoch}, nil
}

// FromMapping builds a RelevantEvents directly from a precomputed mapping,
// e.g. for tests that don't want to go through a Store.
func FromMapping(eventsPerEpoch map[uint64][]Event) RelevantEvents {
	return RelevantEvents{eventsPerEpoch: eventsPerEpoch}
}

// ForEpoch returns the relevant events for epochID, or nil if none.
func (r RelevantEvents) ForEpoch(epochID uint64) []Event {
	return r.eventsPerEpoch[epochID]
}

// SourcesForEpoch returns the set of distinct source URIs among the
// relevant events of epochID.
func (r RelevantEvents) SourcesForEpoch(epochID uint64) map[string]struct{} {
	sources := make(map[string]struct{})
	for _, e := range r.ForEpoch(epochID) {
		sources[e.URIs.SourceURI] = struct{}{}
	}
	return sources
}

// DropEpoch forgets an epoch and all of its relevant events, e.g. after
// the core has determined that epoch is out of budget.
func (r RelevantEvents) DropEpoch(epochID uint64) {
	delete(r.eventsPerEpoch, epochID)
}
