package simple_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/columbia/pdslib-firefox/internal/eventstore"
	"github.com/columbia/pdslib-firefox/internal/histogram"
	"github.com/columbia/pdslib-firefox/internal/histogram/simple"
)

func TestSimple(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Simple Suite")
}

func validConfig() simple.Config {
	return simple.Config{
		StartEpoch:              1,
		EndEpoch:                3,
		ReportGlobalSensitivity: 1,
		QueryGlobalSensitivity:  1,
		RequestedEpsilon:        1,
	}
}

func selector() simple.RelevantEventSelector {
	return simple.RelevantEventSelector{
		ReportRequestURIs: histogram.ReportRequestUris{
			TriggerURI:  "trigger",
			SourceURIs:  []string{"source"},
			QuerierURIs: []string{"q"},
		},
	}
}

var _ = Describe("New", func() {
	It("rejects a non-positive requested epsilon", func() {
		cfg := validConfig()
		cfg.RequestedEpsilon = 0
		_, err := simple.New(cfg, selector())
		Expect(err).To(HaveOccurred())
	})

	It("rejects start_epoch > end_epoch", func() {
		cfg := validConfig()
		cfg.StartEpoch, cfg.EndEpoch = 3, 1
		_, err := simple.New(cfg, selector())
		Expect(err).To(HaveOccurred())
	})

	It("accepts a valid config", func() {
		_, err := simple.New(validConfig(), selector())
		Expect(err).NotTo(HaveOccurred())
	})
})

var _ = Describe("EventValues", func() {
	It("returns only the last event of the first non-empty epoch, most recent first", func() {
		req, err := simple.New(validConfig(), selector())
		Expect(err).NotTo(HaveOccurred())

		relevant := eventstore.FromMapping(map[uint64][]eventstore.Event{
			2: {
				{ID: 1, HistogramIndex: 0},
				{ID: 2, HistogramIndex: 1},
			},
			1: {
				{ID: 3, HistogramIndex: 2},
			},
		})

		values := req.EventValues(relevant)
		Expect(values).To(HaveLen(1))
		Expect(values[0].Event.ID).To(Equal(uint64(2)))
	})

	It("returns nil when no epoch in range has a relevant event", func() {
		req, err := simple.New(validConfig(), selector())
		Expect(err).NotTo(HaveOccurred())
		Expect(req.EventValues(eventstore.RelevantEvents{})).To(BeNil())
	})
})

var _ = Describe("AsBin", func() {
	It("projects a single-bin report to HasValue=true", func() {
		report := histogram.Report{BinValues: map[uint64]float64{5: 2.5}}
		bin := simple.AsBin(report)
		Expect(bin.HasValue).To(BeTrue())
		Expect(bin.BucketKey).To(Equal(uint64(5)))
		Expect(bin.Value).To(Equal(2.5))
	})

	It("reports HasValue=false for the null report", func() {
		bin := simple.AsBin(histogram.NewReport())
		Expect(bin.HasValue).To(BeFalse())
	})
})
