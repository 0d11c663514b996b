package recent_test

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/memory/recent"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newItem(content string, importance float64) *memory.Item {
	item, err := memory.NewItem(content, memory.TypeEpisodic, importance)
	Expect(err).NotTo(HaveOccurred())
	return item
}

var _ = Describe("Recent Tier", func() {
	var (
		tier  *recent.Tier
		clock *fakeClock
		ctx   context.Context
	)

	BeforeEach(func() {
		clock = &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

		var err error
		tier, err = recent.New(recent.Config{
			DBPath:   ":memory:",
			TTL:      24 * time.Hour,
			Capacity: 5,
			Clock:    clock.Now,
		})
		Expect(err).NotTo(HaveOccurred())

		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(tier.Close()).To(Succeed())
	})

	Describe("New", func() {
		It("requires a database path", func() {
			_, err := recent.New(recent.Config{})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("database path is required"))
		})
	})

	Describe("ShouldStore", func() {
		It("accepts everything at the default floor", func() {
			Expect(tier.ShouldStore(newItem("anything", 0.0))).To(BeTrue())
		})

		It("applies a configured floor", func() {
			gated, err := recent.New(recent.Config{
				DBPath:          ":memory:",
				ImportanceFloor: 0.3,
			})
			Expect(err).NotTo(HaveOccurred())
			defer gated.Close()

			Expect(gated.ShouldStore(newItem("low", 0.1))).To(BeFalse())
			Expect(gated.ShouldStore(newItem("high", 0.5))).To(BeTrue())
		})
	})

	Describe("Store", func() {
		It("appends and round-trips an item", func() {
			item := newItem("user prefers dark mode", 0.9)
			item.Metadata = map[string]string{"subject": "ui.theme"}

			inserted, err := tier.Store(ctx, item)
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())

			got, err := tier.Get(ctx, item.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Content).To(Equal("user prefers dark mode"))
			Expect(got.Type).To(Equal(memory.TypeEpisodic))
			Expect(got.Metadata).To(HaveKeyWithValue("subject", "ui.theme"))
		})

		It("is idempotent for an id already in the log", func() {
			item := newItem("once", 0.5)

			inserted, err := tier.Store(ctx, item)
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())

			inserted, err = tier.Store(ctx, item)
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeFalse())

			n, err := tier.Len(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
		})

		It("evicts oldest entries first on overflow, independent of importance", func() {
			first := newItem("first and most important", 1.0)
			_, err := tier.Store(ctx, first)
			Expect(err).NotTo(HaveOccurred())

			for i := range 5 {
				clock.Advance(time.Second)
				_, err := tier.Store(ctx, newItem(fmt.Sprintf("later %d", i), 0.1))
				Expect(err).NotTo(HaveOccurred())
			}

			n, err := tier.Len(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(5))

			_, err = tier.Get(ctx, first.ID)
			Expect(err).To(MatchError(memory.ErrNotFound))
		})
	})

	Describe("Retrieve", func() {
		It("keyword-matches live entries, newest first", func() {
			a := newItem("deploy went fine", 0.5)
			_, err := tier.Store(ctx, a)
			Expect(err).NotTo(HaveOccurred())

			clock.Advance(time.Second)

			b := newItem("deploy rolled back", 0.5)
			_, err = tier.Store(ctx, b)
			Expect(err).NotTo(HaveOccurred())

			hits, err := tier.Retrieve(ctx, memory.Query{Text: "deploy", Limit: 10})
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(HaveLen(2))
			Expect(hits[0].Item.ID).To(Equal(b.ID))
			Expect(hits[1].Item.ID).To(Equal(a.ID))
		})

		It("never returns expired entries", func() {
			_, err := tier.Store(ctx, newItem("yesterday's news", 0.5))
			Expect(err).NotTo(HaveOccurred())

			clock.Advance(25 * time.Hour)

			hits, err := tier.Retrieve(ctx, memory.Query{Text: "news"})
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(BeEmpty())
		})
	})

	Describe("RetrieveRange", func() {
		It("returns entries created inside the window, oldest first", func() {
			a := newItem("first", 0.5)
			a.CreatedAt = clock.Now()
			_, err := tier.Store(ctx, a)
			Expect(err).NotTo(HaveOccurred())

			clock.Advance(10 * time.Minute)

			b := newItem("second", 0.5)
			b.CreatedAt = clock.Now()
			_, err = tier.Store(ctx, b)
			Expect(err).NotTo(HaveOccurred())

			items, err := tier.RetrieveRange(ctx,
				clock.Now().Add(-time.Hour), clock.Now().Add(time.Hour), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(2))
			Expect(items[0].ID).To(Equal(a.ID))
			Expect(items[1].ID).To(Equal(b.ID))
		})

		It("compares sub-second timestamps numerically", func() {
			early := newItem("first write", 0.5)
			early.CreatedAt = clock.Now().Add(500 * time.Millisecond)
			_, err := tier.Store(ctx, early)
			Expect(err).NotTo(HaveOccurred())

			late := newItem("second write", 0.5)
			late.CreatedAt = clock.Now().Add(512300 * time.Microsecond)
			_, err = tier.Store(ctx, late)
			Expect(err).NotTo(HaveOccurred())

			start := clock.Now().Add(510 * time.Millisecond)
			items, err := tier.RetrieveRange(ctx, start, start.Add(time.Second), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(1))
			Expect(items[0].ID).To(Equal(late.ID))
		})
	})

	Describe("Scan", func() {
		It("lists promotion candidates above the importance floor", func() {
			_, err := tier.Store(ctx, newItem("minor detail", 0.2))
			Expect(err).NotTo(HaveOccurred())

			keeper := newItem("user prefers dark mode", 0.9)
			_, err = tier.Store(ctx, keeper)
			Expect(err).NotTo(HaveOccurred())

			items, err := tier.Scan(ctx, 0.5, 100)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(1))
			Expect(items[0].ID).To(Equal(keeper.ID))
		})
	})
})
