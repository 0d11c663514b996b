package working_test

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/events"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/memory/working"
)

// fakeClock is a manually advanced clock for TTL tests.
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

// capturePublisher records every published event.
type capturePublisher struct {
	published []*events.Event
}

func (p *capturePublisher) Publish(_ context.Context, event *events.Event) error {
	p.published = append(p.published, event)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

var _ = Describe("Working Tier", func() {
	var (
		tier  *working.Tier
		clock *fakeClock
		ctx   context.Context
	)

	BeforeEach(func() {
		clock = &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
		tier = working.New(working.Config{
			TTL:      10 * time.Minute,
			Capacity: 3,
			Clock:    clock.Now,
		})
		ctx = context.Background()
	})

	Describe("Store", func() {
		It("inserts a new item", func() {
			inserted, err := tier.Store(ctx, newItem("user prefers dark mode", 0.9))
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())
		})

		It("refreshes an existing item without duplicating it", func() {
			item := newItem("hello", 0.5)

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

		It("rejects invalid items", func() {
			_, err := tier.Store(ctx, &memory.Item{ID: "x", Content: ""})
			Expect(err).To(HaveOccurred())

			var verr *memory.ValidationError
			Expect(err).To(BeAssignableToTypeOf(verr))
		})

		It("emits a stored event on insert but not on refresh", func() {
			publisher := &capturePublisher{}
			published := working.New(working.Config{
				Clock:     clock.Now,
				Publisher: publisher,
			})
			defer published.Close()

			item := newItem("pipeline is green", 0.5)

			inserted, err := published.Store(ctx, item)
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())

			Expect(publisher.published).To(HaveLen(1))
			event := publisher.published[0]
			Expect(event.EventType).To(Equal(events.EventTypeMemoryStored))
			Expect(event.Memory).NotTo(BeNil())
			Expect(event.Memory.ItemID).To(Equal(item.ID))
			Expect(event.Memory.Tier).To(Equal("working"))
			Expect(event.Memory.Importance).To(Equal(0.5))

			_, err = published.Store(ctx, item)
			Expect(err).NotTo(HaveOccurred())
			Expect(publisher.published).To(HaveLen(1))
		})

		It("evicts the oldest item on overflow regardless of importance", func() {
			oldest := newItem("oldest but most important", 1.0)
			_, err := tier.Store(ctx, oldest)
			Expect(err).NotTo(HaveOccurred())

			for i := range 3 {
				clock.Advance(time.Second)
				_, err := tier.Store(ctx, newItem(fmt.Sprintf("filler %d", i), 0.1))
				Expect(err).NotTo(HaveOccurred())
			}

			n, err := tier.Len(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(3))

			_, err = tier.Get(ctx, oldest.ID)
			Expect(err).To(MatchError(memory.ErrNotFound))
		})
	})

	Describe("Get", func() {
		It("round-trips content and memory type", func() {
			item := newItem("round trip", 0.4)
			_, err := tier.Store(ctx, item)
			Expect(err).NotTo(HaveOccurred())

			got, err := tier.Get(ctx, item.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Content).To(Equal("round trip"))
			Expect(got.Type).To(Equal(memory.TypeEpisodic))
		})

		It("records accesses", func() {
			item := newItem("counted", 0.4)
			_, err := tier.Store(ctx, item)
			Expect(err).NotTo(HaveOccurred())

			for range 3 {
				_, err := tier.Get(ctx, item.ID)
				Expect(err).NotTo(HaveOccurred())
			}

			got, err := tier.Get(ctx, item.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.AccessCount).To(Equal(4))
		})

		It("never returns an expired item", func() {
			item := newItem("short lived", 0.4)
			_, err := tier.Store(ctx, item)
			Expect(err).NotTo(HaveOccurred())

			clock.Advance(10 * time.Minute)

			_, err = tier.Get(ctx, item.ID)
			Expect(err).To(MatchError(memory.ErrNotFound))
		})
	})

	Describe("Retrieve", func() {
		It("matches substrings case-insensitively, most recent first", func() {
			first := newItem("user prefers dark mode", 0.9)
			_, err := tier.Store(ctx, first)
			Expect(err).NotTo(HaveOccurred())

			clock.Advance(time.Second)

			second := newItem("user Prefers tabs over spaces", 0.5)
			_, err = tier.Store(ctx, second)
			Expect(err).NotTo(HaveOccurred())

			hits, err := tier.Retrieve(ctx, memory.Query{Text: "prefers"})
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(HaveLen(2))
			Expect(hits[0].Item.ID).To(Equal(second.ID))
			Expect(hits[1].Item.ID).To(Equal(first.ID))
		})

		It("filters by memory type", func() {
			_, err := tier.Store(ctx, newItem("episodic entry", 0.5))
			Expect(err).NotTo(HaveOccurred())

			hits, err := tier.Retrieve(ctx, memory.Query{Types: []memory.Type{memory.TypeProcedural}})
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(BeEmpty())
		})

		It("omits expired items", func() {
			_, err := tier.Store(ctx, newItem("will expire", 0.5))
			Expect(err).NotTo(HaveOccurred())

			clock.Advance(11 * time.Minute)

			hits, err := tier.Retrieve(ctx, memory.Query{Text: "expire"})
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(BeEmpty())
		})
	})

	Describe("RetrieveRange", func() {
		It("returns items created inside the window, oldest first", func() {
			a := newItem("first", 0.5)
			a.CreatedAt = clock.Now()
			_, err := tier.Store(ctx, a)
			Expect(err).NotTo(HaveOccurred())

			clock.Advance(time.Minute)

			b := newItem("second", 0.5)
			b.CreatedAt = clock.Now()
			_, err = tier.Store(ctx, b)
			Expect(err).NotTo(HaveOccurred())

			start := clock.Now().Add(-2 * time.Minute)
			end := clock.Now().Add(time.Minute)

			items, err := tier.RetrieveRange(ctx, start, end, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(2))
			Expect(items[0].ID).To(Equal(a.ID))
			Expect(items[1].ID).To(Equal(b.ID))
		})
	})

	Describe("Scan", func() {
		It("applies the importance floor", func() {
			_, err := tier.Store(ctx, newItem("low", 0.2))
			Expect(err).NotTo(HaveOccurred())

			high := newItem("high", 0.9)
			_, err = tier.Store(ctx, high)
			Expect(err).NotTo(HaveOccurred())

			items, err := tier.Scan(ctx, 0.5, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(1))
			Expect(items[0].ID).To(Equal(high.ID))
		})
	})
})
