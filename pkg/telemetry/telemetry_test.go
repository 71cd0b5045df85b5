package telemetry_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/columbia/pdslib-firefox/pkg/telemetry"
)

func TestTelemetry(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Telemetry Suite")
}

var _ = Describe("RecordFilterConsumed", func() {
	It("increments the counter for the given filter kind", func() {
		initial := testutil.ToFloat64(telemetry.FilterConsumedTotal.WithLabelValues("c"))
		telemetry.RecordFilterConsumed("c")
		Expect(testutil.ToFloat64(telemetry.FilterConsumedTotal.WithLabelValues("c"))).To(Equal(initial + 1.0))
	})

	It("keeps separate totals per filter kind", func() {
		telemetry.RecordFilterConsumed("nc")
		initialNC := testutil.ToFloat64(telemetry.FilterConsumedTotal.WithLabelValues("nc"))
		initialC := testutil.ToFloat64(telemetry.FilterConsumedTotal.WithLabelValues("c"))

		telemetry.RecordFilterConsumed("nc")
		Expect(testutil.ToFloat64(telemetry.FilterConsumedTotal.WithLabelValues("nc"))).To(Equal(initialNC + 1.0))
		Expect(testutil.ToFloat64(telemetry.FilterConsumedTotal.WithLabelValues("c"))).To(Equal(initialC))
	})
})

var _ = Describe("RecordOOB", func() {
	It("increments the counter for the filter kind that tripped", func() {
		initial := testutil.ToFloat64(telemetry.OOBTotal.WithLabelValues("qtrigger"))
		telemetry.RecordOOB("qtrigger")
		Expect(testutil.ToFloat64(telemetry.OOBTotal.WithLabelValues("qtrigger"))).To(Equal(initial + 1.0))
	})
})

var _ = Describe("ObserveComputeReport", func() {
	It("records a sample against the given outcome", func() {
		telemetry.ObserveComputeReport("ok", 0.05)

		metric := &dto.Metric{}
		Expect(telemetry.ComputeReportDuration.WithLabelValues("ok").Write(metric)).To(Succeed())
		Expect(metric.GetHistogram().GetSampleCount()).To(BeNumerically(">", uint64(0)))
	})
})

var _ = Describe("span helpers", func() {
	It("start and end without error for ComputeReport", func() {
		ctx, span := telemetry.StartComputeReportSpan(context.Background(), 3)
		Expect(ctx).NotTo(BeNil())
		span.End()
	})

	It("start and end without error for AccountForPassivePrivacyLoss", func() {
		ctx, span := telemetry.StartPassiveLossSpan(context.Background(), 2)
		Expect(ctx).NotTo(BeNil())
		span.End()
	})
})
