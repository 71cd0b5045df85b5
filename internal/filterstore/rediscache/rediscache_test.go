package rediscache_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"github.com/columbia/pdslib-firefox/internal/budget"
	"github.com/columbia/pdslib-firefox/internal/filterid"
	"github.com/columbia/pdslib-firefox/internal/filterstore/rediscache"
)

func TestRediscache(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Rediscache Suite")
}

var _ = Describe("Store", func() {
	var (
		ctx       context.Context
		miniRedis *miniredis.Miniredis
		client    *redis.Client
		store     *rediscache.Store
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		miniRedis, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())

		client = redis.NewClient(&redis.Options{Addr: miniRedis.Addr()})
		store = rediscache.New(client, filterid.StaticCapacities{NC: budget.Budget(10)}, nil, "pds:filters:")

		Expect(store.EnsureConnection(ctx)).To(Succeed())
	})

	AfterEach(func() {
		_ = client.Close()
		miniRedis.Close()
	})

	It("returns ok=false for an absent key", func() {
		_, ok, err := store.Get(ctx, filterid.NC(1, "https://q.example"))
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("round-trips a filter through Set and Get", func() {
		id := filterid.NC(1, "https://q.example")
		f := budget.Filter{Consumed: 2.5, Capacity: 10}

		Expect(store.Set(ctx, id, f)).To(Succeed())

		got, ok, err := store.Get(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(got).To(Equal(f))
	})

	It("overwrites the previous value on a second Set", func() {
		id := filterid.C(3)
		Expect(store.Set(ctx, id, budget.Filter{Consumed: 1, Capacity: 10})).To(Succeed())
		Expect(store.Set(ctx, id, budget.Filter{Consumed: 4, Capacity: 10})).To(Succeed())

		got, _, err := store.Get(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Consumed).To(Equal(budget.Budget(4)))
	})

	It("namespaces keys under the configured prefix", func() {
		id := filterid.C(7)
		Expect(store.Set(ctx, id, budget.Filter{Consumed: 1, Capacity: 10})).To(Succeed())
		Expect(miniRedis.Exists("pds:filters:" + id.String())).To(BeTrue())
	})

	It("wraps a connection failure as a storage failure", func() {
		miniRedis.Close()
		err := store.EnsureConnection(ctx)
		Expect(err).To(HaveOccurred())
	})

	It("returns the capacities table the store was constructed with", func() {
		Expect(store.Capacities().Capacity(filterid.NC(1, "x"))).To(Equal(budget.Budget(10)))
	})
})
