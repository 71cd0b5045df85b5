// Package simple implements the single-bucket last-touch attribution
// variant used by the non-PPA demo workflow: at most one (bucket, value)
// pair is attributed, keyed directly by an event's own index, with
// relevance decided by plain source/trigger URI equality (no querier or
// filter-data matching, unlike ppa).
package simple

import (
	"github.com/columbia/pdslib-firefox/internal/eventstore"
	"github.com/columbia/pdslib-firefox/internal/histogram"
	"github.com/columbia/pdslib-firefox/internal/pdserrors"
)

// RelevantEventSelector selects events whose source URI matches one of
// ReportRequestURIs.SourceURIs and whose trigger URIs contain the
// request's trigger URI.
type RelevantEventSelector struct {
	ReportRequestURIs histogram.ReportRequestUris
}

func (s RelevantEventSelector) IsRelevant(e eventstore.Event) bool {
	sourceMatch := false
	for _, uri := range s.ReportRequestURIs.SourceURIs {
		if uri == e.URIs.SourceURI {
			sourceMatch = true
			break
		}
	}
	triggerMatch := false
	for _, uri := range e.URIs.TriggerURIs {
		if uri == s.ReportRequestURIs.TriggerURI {
			triggerMatch = true
			break
		}
	}
	return sourceMatch && triggerMatch
}

// Config bundles the construction-time parameters of a Request.
type Config struct {
	StartEpoch              uint64
	EndEpoch                uint64
	ReportGlobalSensitivity float64
	QueryGlobalSensitivity  float64
	RequestedEpsilon        float64
}

// Bin is the null-or-single-bin view of a Report: a convenience
// projection for callers that don't want to deal with a bucket map when
// this variant only ever fills at most one bucket.
type Bin struct {
	// HasValue is false for the null report (no attribution found).
	HasValue  bool
	BucketKey uint64
	Value     float64
}

// Request is a single-bucket last-touch histogram request: the last
// relevant event from the first non-empty epoch in the requested range
// (most recent epoch first) is attributed the full ReportGlobalSensitivity
// value, bucketed by its own index. It implements histogram.Request so it
// can run through the same accounting core as ppa.Request.
type Request struct {
	cfg      Config
	selector RelevantEventSelector
}

// New constructs a Request, validating requested_epsilon > 0 and
// start_epoch <= end_epoch. selector.ReportRequestURIs.QuerierURIs must
// name exactly the one querier this report is for.
func New(cfg Config, selector RelevantEventSelector) (*Request, error) {
	if cfg.RequestedEpsilon <= 0 {
		return nil, pdserrors.Misconfiguration("simple.new_request", configError("requested_epsilon must be greater than 0"))
	}
	if cfg.StartEpoch > cfg.EndEpoch {
		return nil, pdserrors.Misconfiguration("simple.new_request", configError("start_epoch must not be greater than end_epoch"))
	}
	return &Request{cfg: cfg, selector: selector}, nil
}

type configError string

func (e configError) Error() string { return string(e) }

func (r *Request) RelevantEventSelector() eventstore.RelevantEventSelector {
	return r.selector
}

// EpochIDs returns the requested epoch range, most recent first.
func (r *Request) EpochIDs() []uint64 {
	ids := make([]uint64, 0, r.cfg.EndEpoch-r.cfg.StartEpoch+1)
	for e := r.cfg.EndEpoch; ; e-- {
		ids = append(ids, e)
		if e == r.cfg.StartEpoch {
			break
		}
	}
	return ids
}

// AttributableValue caps the single contribution this variant ever makes;
// since at most one event is ever attributed, the cap equals the flat
// per-event value itself.
func (r *Request) AttributableValue() float64 {
	return r.cfg.ReportGlobalSensitivity
}

// BucketKey uses the event's own index as its bucket, there being no
// separate histogram_index/histogram_size concept in this variant.
func (r *Request) BucketKey(e eventstore.Event) uint64 {
	return e.HistogramIndex
}

// EventValues returns at most one (event, value) pair: the last relevant
// event of the first non-empty epoch scanning most-recent-first. Later
// epochs are never inspected once one contributes, matching the reference
// "return on first match" behavior.
func (r *Request) EventValues(relevant eventstore.RelevantEvents) []histogram.EventValue {
	for _, epochID := range r.EpochIDs() {
		events := relevant.ForEpoch(epochID)
		if len(events) == 0 {
			continue
		}
		last := events[len(events)-1]
		return []histogram.EventValue{{Event: last, Value: r.cfg.ReportGlobalSensitivity}}
	}
	return nil
}

func (r *Request) ReportURIs() histogram.ReportRequestUris {
	return r.selector.ReportRequestURIs
}

// BucketIntermediaryMap is always nil: this variant has no intermediary
// fan-out support.
func (r *Request) BucketIntermediaryMap() map[uint64]string {
	return nil
}

// FilterReportForIntermediary always reports no visible buckets: this
// variant has no intermediary fan-out support.
func (r *Request) FilterReportForIntermediary(_ histogram.Report, _ string) (histogram.Report, bool) {
	return histogram.Report{}, false
}

func (r *Request) SingleEpochIndividualSensitivity(report histogram.Report, normType histogram.NormType) float64 {
	return histogram.SingleEpochIndividualSensitivity(report, normType)
}

func (r *Request) SingleEpochSourceIndividualSensitivity(report histogram.Report, normType histogram.NormType) float64 {
	return histogram.SingleEpochSourceIndividualSensitivity(report, normType)
}

func (r *Request) ReportGlobalSensitivity() float64 {
	return r.cfg.ReportGlobalSensitivity
}

// LaplaceNoiseScale is the scale of the noise the aggregator will add;
// this module never samples it, it only reports the scale.
func (r *Request) LaplaceNoiseScale() float64 {
	return r.cfg.QueryGlobalSensitivity / r.cfg.RequestedEpsilon
}

// AsBin projects a generic histogram.Report down to this variant's
// single-bin view, for callers that don't want to deal with a bucket map.
func AsBin(report histogram.Report) Bin {
	for key, value := range report.BinValues {
		return Bin{HasValue: true, BucketKey: key, Value: value}
	}
	return Bin{}
}
