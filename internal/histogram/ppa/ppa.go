// Package ppa implements the PPA-style histogram request: last-touch
// attribution keyed by an event's histogram_index, with relevance decided
// by source/querier/trigger URI matching plus an opaque filter-data
// predicate.
package ppa

import (
	"go.uber.org/zap"

	"github.com/columbia/pdslib-firefox/internal/eventstore"
	"github.com/columbia/pdslib-firefox/internal/histogram"
	"github.com/columbia/pdslib-firefox/internal/pdserrors"
)

// RelevantEventSelector implements eventstore.RelevantEventSelector for
// PPA requests: an event is relevant when its source URI is one of the
// request's allowed sources, every requested querier URI is present on
// the event, its trigger URIs contain the request's trigger URI, and the
// caller-supplied predicate over FilterData holds.
type RelevantEventSelector struct {
	ReportRequestURIs histogram.ReportRequestUris
	IsMatchingEvent   func(filterData uint64) bool
}

func (s RelevantEventSelector) IsRelevant(e eventstore.Event) bool {
	sourceMatch := containsString(s.ReportRequestURIs.SourceURIs, e.URIs.SourceURI)

	querierMatch := true
	for _, uri := range s.ReportRequestURIs.QuerierURIs {
		if !containsString(e.URIs.QuerierURIs, uri) {
			querierMatch = false
			break
		}
	}

	triggerMatch := containsString(e.URIs.TriggerURIs, s.ReportRequestURIs.TriggerURI)

	matchingEvent := true
	if s.IsMatchingEvent != nil {
		matchingEvent = s.IsMatchingEvent(e.FilterData)
	}

	return sourceMatch && querierMatch && triggerMatch && matchingEvent
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// Config bundles the construction-time parameters of a Request. See
// Request.New for the validation it must pass.
type Config struct {
	StartEpoch              uint64
	EndEpoch                uint64
	ReportGlobalSensitivity float64
	QueryGlobalSensitivity  float64
	RequestedEpsilon        float64
	HistogramSize           uint64
}

// Request is a last-touch PPA histogram request: one bucket per
// histogram_index, attributed value capped by ReportGlobalSensitivity per
// contributing event, subject to the AttributableValue cap overall.
type Request struct {
	cfg                       Config
	selector                  RelevantEventSelector
	bucketIntermediaryMapping map[uint64]string
	logger                    *zap.Logger
}

// New constructs a Request, validating cfg: requested_epsilon > 0, both
// sensitivities > 0, histogram_size > 0, start_epoch <= end_epoch.
func New(cfg Config, selector RelevantEventSelector, bucketIntermediaryMapping map[uint64]string, logger *zap.Logger) (*Request, error) {
	if err := validate(cfg); err != nil {
		return nil, pdserrors.Misconfiguration("ppa.new_request", err)
	}
	return &Request{cfg: cfg, selector: selector, bucketIntermediaryMapping: bucketIntermediaryMapping, logger: logger}, nil
}

func validate(cfg Config) error {
	switch {
	case cfg.RequestedEpsilon <= 0:
		return errInvalidConfig("requested_epsilon must be greater than 0")
	case cfg.ReportGlobalSensitivity <= 0 || cfg.QueryGlobalSensitivity <= 0:
		return errInvalidConfig("sensitivity values must be greater than 0")
	case cfg.HistogramSize == 0:
		return errInvalidConfig("histogram_size must be greater than 0")
	case cfg.StartEpoch > cfg.EndEpoch:
		return errInvalidConfig("start_epoch must not be greater than end_epoch")
	}
	return nil
}

type configError string

func (e configError) Error() string { return string(e) }

func errInvalidConfig(msg string) error { return configError(msg) }

// RelevantEventSelector returns the selector used to filter events
// retrieved from event storage for this request.
func (r *Request) RelevantEventSelector() eventstore.RelevantEventSelector {
	return r.selector
}

// SingleEpochIndividualSensitivity is the L1/L2 individual sensitivity of
// report when it was computed over a single epoch.
func (r *Request) SingleEpochIndividualSensitivity(report histogram.Report, normType histogram.NormType) float64 {
	return histogram.SingleEpochIndividualSensitivity(report, normType)
}

// SingleEpochSourceIndividualSensitivity is the single-epoch-single-source
// variant; for last-touch attribution it coincides with the epoch-level one.
func (r *Request) SingleEpochSourceIndividualSensitivity(report histogram.Report, normType histogram.NormType) float64 {
	return histogram.SingleEpochSourceIndividualSensitivity(report, normType)
}

// EpochIDs returns the requested epoch range, most recent epoch first —
// the order last-touch attribution depends on.
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

func (r *Request) AttributableValue() float64 {
	return r.cfg.ReportGlobalSensitivity
}

func (r *Request) RequestedEpsilon() float64 {
	return r.cfg.RequestedEpsilon
}

func (r *Request) QueryGlobalSensitivity() float64 {
	return r.cfg.QueryGlobalSensitivity
}

func (r *Request) ReportGlobalSensitivity() float64 {
	return r.cfg.ReportGlobalSensitivity
}

// LaplaceNoiseScale is the scale of the noise the aggregator will add;
// this module never samples it, it only reports the scale.
func (r *Request) LaplaceNoiseScale() float64 {
	return r.cfg.QueryGlobalSensitivity / r.cfg.RequestedEpsilon
}

func (r *Request) BucketKey(e eventstore.Event) uint64 {
	if e.HistogramIndex >= r.cfg.HistogramSize && r.logger != nil {
		r.logger.Warn("bucket key exceeds histogram size",
			zap.Uint64("histogram_index", e.HistogramIndex),
			zap.Uint64("histogram_size", r.cfg.HistogramSize),
			zap.Uint64("event_id", e.ID),
		)
	}
	return e.HistogramIndex
}

// EventValues implements last-touch attribution: for every epoch in the
// request's range, only the most recent relevant event (the last one
// stored for that epoch) contributes, at a flat value of
// ReportGlobalSensitivity. Events whose bucket falls outside the
// histogram are dropped rather than attributed.
func (r *Request) EventValues(relevant eventstore.RelevantEvents) []histogram.EventValue {
	var out []histogram.EventValue
	for _, epochID := range r.EpochIDs() {
		events := relevant.ForEpoch(epochID)
		if len(events) == 0 {
			continue
		}
		last := events[len(events)-1]
		if last.HistogramIndex < r.cfg.HistogramSize {
			out = append(out, histogram.EventValue{Event: last, Value: r.cfg.ReportGlobalSensitivity})
		} else if r.logger != nil {
			r.logger.Error("dropping event with invalid bucket key",
				zap.Uint64("event_id", last.ID),
				zap.Uint64("histogram_index", last.HistogramIndex),
			)
		}
	}
	return out
}

func (r *Request) ReportURIs() histogram.ReportRequestUris {
	return r.selector.ReportRequestURIs
}

func (r *Request) BucketIntermediaryMap() map[uint64]string {
	return r.bucketIntermediaryMapping
}

// FilterReportForIntermediary restricts report to the buckets mapped to
// intermediaryURI. ok=false (no visible buckets) signals the caller
// should substitute the null report rather than an empty-but-present one.
func (r *Request) FilterReportForIntermediary(report histogram.Report, intermediaryURI string) (histogram.Report, bool) {
	buckets := make(map[uint64]struct{})
	for bucketID, uri := range r.bucketIntermediaryMapping {
		if uri == intermediaryURI {
			buckets[bucketID] = struct{}{}
		}
	}
	if len(buckets) == 0 {
		return histogram.Report{}, false
	}
	filtered := histogram.NewReport()
	for key, value := range report.BinValues {
		if _, ok := buckets[key]; ok {
			filtered.BinValues[key] = value
		}
	}
	return filtered, true
}
