// Package histogram defines the generic report/request shapes shared by
// every attribution query (C4): the bucketed report, the global/individual
// sensitivity interface the accounting core consumes, and the last-touch +
// contribution-cap computation all histogram variants reuse.
package histogram

import (
	"math"

	"github.com/columbia/pdslib-firefox/internal/eventstore"
)

// NormType selects the norm used to compute individual sensitivity.
type NormType int

const (
	NormL1 NormType = iota
	NormL2
)

// ReportRequestUris mirrors the URI roles carried by a single report
// request: one trigger, many sources, many intermediaries, many queriers.
type ReportRequestUris struct {
	TriggerURI       string
	SourceURIs       []string
	IntermediaryURIs []string
	QuerierURIs      []string
}

// Report is a histogram: attributed value per bucket key. A report with
// an empty BinValues is the null report — every query must be able to
// produce one, so that devices with no budget left or no attribution are
// indistinguishable from devices that did attribute something, once
// reports leave the device encrypted.
type Report struct {
	BinValues map[uint64]float64
}

// NewReport returns the null report.
func NewReport() Report {
	return Report{BinValues: make(map[uint64]float64)}
}

// Clone returns a deep copy of r, since downstream fan-out filtering must
// not mutate the original report in place.
func (r Report) Clone() Report {
	out := make(map[uint64]float64, len(r.BinValues))
	for k, v := range r.BinValues {
		out[k] = v
	}
	return Report{BinValues: out}
}

// QueryComputeResult is what a single compute_report invocation returns:
// a bucket-key-to-intermediary-uri mapping (used to fan reports out to
// embedded intermediaries) and a per-destination-uri report mapping.
type QueryComputeResult struct {
	BucketIntermediaryMap map[uint64]string
	URIReportMap          map[string]Report
}

// EventValue pairs a relevant event with the value attributed to it by a
// request's attribution logic.
type EventValue struct {
	Event eventstore.Event
	Value float64
}

// Request is the generic contract every histogram-style query satisfies.
// A concrete request (ppa.Request, simple.Request) supplies the
// attribution logic (EventValues) and bucketing (BucketKey); this package
// supplies the shared aggregation, sensitivity, and fan-out filtering.
type Request interface {
	// AttributableValue is the maximum total value (sum) attributable to
	// all events of this conversion, across every epoch (A^max).
	AttributableValue() float64

	// BucketKey returns the histogram bucket an event belongs to.
	BucketKey(e eventstore.Event) uint64

	// EventValues attributes a value to each relevant event, in the order
	// they should be summed; early-stop at the contribution cap depends
	// on this order.
	EventValues(relevant eventstore.RelevantEvents) []EventValue

	ReportURIs() ReportRequestUris

	// BucketIntermediaryMap maps a bucket key to the one intermediary URI
	// allowed to see it, or nil if no such mapping applies.
	BucketIntermediaryMap() map[uint64]string

	// FilterReportForIntermediary restricts report to only the buckets
	// intermediaryURI is allowed to see. ok=false means the intermediary
	// has no visible buckets and should receive the null report.
	FilterReportForIntermediary(report Report, intermediaryURI string) (filtered Report, ok bool)
}

// ComputeReport attributes values to relevant events, sums by bucket
// stopping at the first value that would exceed AttributableValue, and
// fans the resulting report out to every querier and intermediary URI.
func ComputeReport(req Request, relevant eventstore.RelevantEvents) QueryComputeResult {
	eventValues := req.EventValues(relevant)

	binValues := make(map[uint64]float64)
	var totalValue float64
	report := NewReport()

	for _, ev := range eventValues {
		totalValue += ev.Value
		if totalValue > req.AttributableValue() {
			// Partial attribution: keep what accumulated before the cap
			// was crossed and stop, same as the reference implementation.
			report = Report{BinValues: copyMap(binValues)}
			break
		}
		bin := req.BucketKey(ev.Event)
		binValues[bin] += ev.Value
		report = Report{BinValues: copyMap(binValues)}
	}

	uris := req.ReportURIs()
	siteToReport := make(map[string]Report)
	if len(uris.QuerierURIs) > 0 {
		siteToReport[uris.QuerierURIs[0]] = report
	}

	for _, intermediaryURI := range uris.IntermediaryURIs {
		filtered, ok := req.FilterReportForIntermediary(report, intermediaryURI)
		if ok {
			siteToReport[intermediaryURI] = filtered
		} else {
			siteToReport[intermediaryURI] = NewReport()
		}
	}

	bucketMap := req.BucketIntermediaryMap()
	if bucketMap == nil {
		bucketMap = map[uint64]string{}
	}
	return QueryComputeResult{BucketIntermediaryMap: bucketMap, URIReportMap: siteToReport}
}

func copyMap(m map[uint64]float64) map[uint64]float64 {
	out := make(map[uint64]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// SingleEpochIndividualSensitivity computes the per-epoch individual
// sensitivity of report under norm_type.
func SingleEpochIndividualSensitivity(report Report, normType NormType) float64 {
	switch normType {
	case NormL2:
		var sumSquares float64
		for _, v := range report.BinValues {
			sumSquares += v * v
		}
		return math.Sqrt(sumSquares)
	default:
		var sum float64
		for _, v := range report.BinValues {
			sum += v
		}
		return sum
	}
}

// SingleEpochSourceIndividualSensitivity is the per-(epoch, source)
// variant; for the reference attribution logics it coincides with the
// per-epoch sensitivity.
func SingleEpochSourceIndividualSensitivity(report Report, normType NormType) float64 {
	return SingleEpochIndividualSensitivity(report, normType)
}
