package memstore_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/columbia/pdslib-firefox/internal/eventstore"
	"github.com/columbia/pdslib-firefox/internal/eventstore/memstore"
)

func TestMemstore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Eventstore Memstore Suite")
}

var _ = Describe("Store", func() {
	It("returns events for an epoch in insertion order", func() {
		ctx := context.Background()
		store := memstore.New()

		Expect(store.AddEvent(ctx, eventstore.Event{ID: 1, EpochID: 1})).To(Succeed())
		Expect(store.AddEvent(ctx, eventstore.Event{ID: 2, EpochID: 1})).To(Succeed())

		events, err := store.EventsForEpoch(ctx, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(2))
		Expect(events[0].ID).To(Equal(uint64(1)))
		Expect(events[1].ID).To(Equal(uint64(2)))
	})

	It("returns an empty slice, never an error, for an unknown epoch", func() {
		events, err := memstore.New().EventsForEpoch(context.Background(), 42)
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(BeEmpty())
	})

	It("returns a defensive copy so callers can't mutate internal state", func() {
		ctx := context.Background()
		store := memstore.New()
		Expect(store.AddEvent(ctx, eventstore.Event{ID: 1, EpochID: 1})).To(Succeed())

		events, _ := store.EventsForEpoch(ctx, 1)
		events[0].ID = 999

		fresh, _ := store.EventsForEpoch(ctx, 1)
		Expect(fresh[0].ID).To(Equal(uint64(1)))
	})
})
