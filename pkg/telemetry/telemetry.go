// Package telemetry provides the Prometheus collectors and OpenTelemetry
// span helpers wrapped around the core's ComputeReport and
// AccountForPassivePrivacyLoss operations. Labels are restricted to filter
// kind and ComputeReport outcome; URIs and event ids never become a label or
// span attribute, matching the error-hygiene rule the core itself follows.
package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	// FilterConsumedTotal counts every committed budget deduction, labeled
	// by filter kind only.
	FilterConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pds_filter_consumed_total",
		Help: "Total number of committed filter budget deductions.",
	}, []string{"filter_kind"})

	// OOBTotal counts out-of-budget filters found when dropping epochs: one
	// increment per rejecting filter, labeled by that filter's kind.
	OOBTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pds_oob_total",
		Help: "Total number of filters that rejected an epoch for being out of budget, by filter kind.",
	}, []string{"filter_kind"})

	// ComputeReportDuration observes wall-clock latency of ComputeReport
	// calls, labeled by outcome ("ok", "error").
	ComputeReportDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pds_compute_report_duration_seconds",
		Help:    "Latency of ComputeReport calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
)

// RecordFilterConsumed increments FilterConsumedTotal for filterKind.
func RecordFilterConsumed(filterKind string) {
	FilterConsumedTotal.WithLabelValues(filterKind).Inc()
}

// RecordOOB increments OOBTotal for filterKind.
func RecordOOB(filterKind string) {
	OOBTotal.WithLabelValues(filterKind).Inc()
}

// ObserveComputeReport records a ComputeReport call's duration, in seconds,
// against outcome ("ok" or "error").
func ObserveComputeReport(outcome string, seconds float64) {
	ComputeReportDuration.WithLabelValues(outcome).Observe(seconds)
}

var tracer = otel.Tracer("github.com/columbia/pdslib-firefox/pds")

// StartComputeReportSpan starts a span around one ComputeReport call,
// tagged only with the epoch count, never a URI.
func StartComputeReportSpan(ctx context.Context, numEpochs int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "pds.compute_report", trace.WithAttributes(
		attribute.Int("pds.num_epochs", numEpochs),
	))
}

// StartPassiveLossSpan starts a span around one
// AccountForPassivePrivacyLoss call.
func StartPassiveLossSpan(ctx context.Context, numEpochs int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "pds.account_for_passive_privacy_loss", trace.WithAttributes(
		attribute.Int("pds.num_epochs", numEpochs),
	))
}
