package filterstore_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/columbia/pdslib-firefox/internal/budget"
	"github.com/columbia/pdslib-firefox/internal/filterid"
	"github.com/columbia/pdslib-firefox/internal/filterstore"
	"github.com/columbia/pdslib-firefox/internal/filterstore/memstore"
)

func TestFilterStore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "FilterStore Suite")
}

var _ = Describe("GetOrNew and TryConsume", func() {
	var (
		ctx        context.Context
		store      *memstore.Store
		capacities filterid.StaticCapacities
		id         filterid.ID
	)

	BeforeEach(func() {
		ctx = context.Background()
		capacities = filterid.StaticCapacities{NC: budget.Budget(2)}
		store = memstore.New(capacities)
		id = filterid.NC(1, "https://querier.example")
	})

	It("materializes a new filter at the id's default capacity", func() {
		f, err := filterstore.GetOrNew(ctx, store, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(f.Capacity).To(Equal(budget.Budget(2)))
		Expect(f.Consumed).To(Equal(budget.Budget(0)))
	})

	It("does not persist a newly materialized filter on its own", func() {
		_, err := filterstore.GetOrNew(ctx, store, id)
		Expect(err).NotTo(HaveOccurred())

		_, ok, err := store.Get(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("persists the filter after TryConsume regardless of outcome", func() {
		status, err := filterstore.TryConsume(ctx, store, id, budget.Budget(5))
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(budget.OutOfBudget))

		f, ok, err := store.Get(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(f.Consumed).To(Equal(budget.Budget(0)))
	})

	It("deducts on a successful commit and is visible on the next Get", func() {
		status, err := filterstore.TryConsume(ctx, store, id, budget.Budget(1.5))
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(budget.Continue))

		f, ok, err := store.Get(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(f.Consumed).To(Equal(budget.Budget(1.5)))
	})
})
