package filterid

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/columbia/pdslib-firefox/internal/budget"
)

func TestFilterID(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "FilterID Suite")
}

var _ = Describe("ID", func() {
	DescribeTable("String rendering",
		func(id ID, expected string) {
			Expect(id.String()).To(Equal(expected))
		},
		Entry("NC", NC(3, "https://example.com"), "Nc(3, https://example.com)"),
		Entry("C", C(3), "C(3)"),
		Entry("QTrigger", QTrigger(3, "https://trigger.example"), "QTrigger(3, https://trigger.example)"),
		Entry("QSource", QSource(3, "https://source.example"), "QSource(3, https://source.example)"),
	)
})

var _ = Describe("StaticCapacities", func() {
	capacities := StaticCapacities{
		NC:       budget.Budget(1),
		C:        budget.Budget(20),
		QTrigger: budget.Budget(1.5),
		QSource:  budget.Budget(4),
	}

	DescribeTable("Capacity returns the field matching an id's Kind",
		func(id ID, expected budget.Budget) {
			Expect(capacities.Capacity(id)).To(Equal(expected))
		},
		Entry("NC", NC(1, "q"), budget.Budget(1)),
		Entry("C", C(1), budget.Budget(20)),
		Entry("QTrigger", QTrigger(1, "t"), budget.Budget(1.5)),
		Entry("QSource", QSource(1, "s"), budget.Budget(4)),
	)
})
