package retrieval_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/memory/working"
	"github.com/papercomputeco/strata/pkg/retrieval"
)

// fakeTier serves canned hits so ranking behavior can be pinned down
// exactly.
type fakeTier struct {
	name string
	hits []memory.Hit
	err  error
}

func (t *fakeTier) Name() string { return t.name }

func (t *fakeTier) Store(context.Context, *memory.Item) (bool, error) { return false, nil }

func (t *fakeTier) Get(context.Context, string) (*memory.Item, error) {
	return nil, memory.ErrNotFound
}

func (t *fakeTier) Retrieve(context.Context, memory.Query) ([]memory.Hit, error) {
	if t.err != nil {
		return nil, t.err
	}

	return t.hits, nil
}

func (t *fakeTier) ShouldStore(*memory.Item) bool { return true }

func (t *fakeTier) Len(context.Context) (int, error) { return len(t.hits), nil }

func (t *fakeTier) Close() error { return nil }

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func item(content string, importance float64, age time.Duration, accesses int) *memory.Item {
	it, err := memory.NewItem(content, memory.TypeEpisodic, importance)
	Expect(err).NotTo(HaveOccurred())

	it.CreatedAt = baseTime.Add(-age)
	it.AccessCount = accesses
	if accesses > 0 {
		it.LastAccessed = it.CreatedAt.Add(time.Minute)
	}

	return it
}

func hit(it *memory.Item, similarity float32) memory.Hit {
	return memory.Hit{Item: it, Similarity: similarity}
}

var _ = Describe("Coordinator", func() {
	ctx := context.Background()

	Describe("New", func() {
		It("requires at least one tier", func() {
			_, err := retrieval.New(retrieval.Config{})
			Expect(err).To(HaveOccurred())
		})

		It("rejects negative weights", func() {
			_, err := retrieval.New(retrieval.Config{
				Tiers:   []memory.Tier{&fakeTier{name: "working"}},
				Weights: retrieval.Weights{Importance: -1},
			})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Search", func() {
		It("returns at most MaxResults distinct ids, highest scored first", func() {
			items := []*memory.Item{
				item("deploy notes one", 0.9, time.Hour, 5),
				item("deploy notes two", 0.7, time.Hour, 5),
				item("deploy notes three", 0.5, time.Hour, 5),
				item("deploy notes four", 0.3, time.Hour, 5),
				item("deploy notes five", 0.1, time.Hour, 5),
			}

			// The third item appears in both tiers under the same id.
			t1 := &fakeTier{name: "working", hits: []memory.Hit{
				hit(items[0], 0), hit(items[2], 0), hit(items[4], 0),
			}}
			t2 := &fakeTier{name: "semantic", hits: []memory.Hit{
				hit(items[1], 0), hit(items[2], 0), hit(items[3], 0),
			}}

			coord, err := retrieval.New(retrieval.Config{Tiers: []memory.Tier{t1, t2}})
			Expect(err).NotTo(HaveOccurred())

			results, err := coord.Search(ctx, retrieval.Request{
				Query:      "deploy",
				MaxResults: 3,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(3))

			seen := map[string]bool{}
			for _, r := range results {
				Expect(seen[r.Item.ID]).To(BeFalse())
				seen[r.Item.ID] = true
			}

			Expect(results[0].Item.Importance).To(Equal(0.9))
			Expect(results[0].Score).To(BeNumerically(">=", results[1].Score))
			Expect(results[1].Score).To(BeNumerically(">=", results[2].Score))
		})

		It("scores higher importance higher, all else equal", func() {
			low := item("same shape", 0.2, time.Hour, 3)
			high := item("same shape", 0.8, time.Hour, 3)
			high.LastAccessed = low.LastAccessed

			tier := &fakeTier{name: "working", hits: []memory.Hit{
				hit(low, 0.5), hit(high, 0.5),
			}}

			coord, err := retrieval.New(retrieval.Config{Tiers: []memory.Tier{tier}})
			Expect(err).NotTo(HaveOccurred())

			results, err := coord.Search(ctx, retrieval.Request{Query: "same"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].Item.ID).To(Equal(high.ID))
			Expect(results[0].Score).To(BeNumerically(">", results[1].Score))
		})

		It("honors injected weights", func() {
			near := item("close match", 0.1, time.Hour, 0)
			far := item("weak match", 0.9, time.Hour, 0)

			tier := &fakeTier{name: "semantic", hits: []memory.Hit{
				hit(near, 0.95), hit(far, 0.05),
			}}

			coord, err := retrieval.New(retrieval.Config{
				Tiers:   []memory.Tier{tier},
				Weights: retrieval.Weights{Similarity: 1},
			})
			Expect(err).NotTo(HaveOccurred())

			results, err := coord.Search(ctx, retrieval.Request{Query: "match"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results[0].Item.ID).To(Equal(near.ID))
		})

		It("keeps the most recently accessed copy when deduping", func() {
			stale := item("shared fact", 0.5, 2*time.Hour, 1)
			fresh := stale.Clone()
			fresh.AccessCount = 4
			fresh.LastAccessed = baseTime.Add(-time.Minute)

			t1 := &fakeTier{name: "working", hits: []memory.Hit{hit(stale, 0)}}
			t2 := &fakeTier{name: "semantic", hits: []memory.Hit{hit(fresh, 0.7)}}

			coord, err := retrieval.New(retrieval.Config{Tiers: []memory.Tier{t1, t2}})
			Expect(err).NotTo(HaveOccurred())

			results, err := coord.Search(ctx, retrieval.Request{Query: "shared"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Tier).To(Equal("semantic"))
			Expect(results[0].Item.AccessCount).To(Equal(4))
			Expect(results[0].Similarity).To(Equal(float32(0.7)))
		})

		It("degrades when one tier fails", func() {
			healthy := &fakeTier{name: "working", hits: []memory.Hit{
				hit(item("still here", 0.5, time.Hour, 0), 0),
			}}
			broken := &fakeTier{name: "semantic", err: errors.New("backend down")}

			coord, err := retrieval.New(retrieval.Config{
				Tiers: []memory.Tier{healthy, broken},
			})
			Expect(err).NotTo(HaveOccurred())

			results, err := coord.Search(ctx, retrieval.Request{Query: "still"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
		})

		It("fails only when every tier fails", func() {
			coord, err := retrieval.New(retrieval.Config{
				Tiers: []memory.Tier{
					&fakeTier{name: "working", err: errors.New("down")},
					&fakeTier{name: "recent", err: errors.New("down")},
				},
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = coord.Search(ctx, retrieval.Request{Query: "anything"})
			Expect(err).To(HaveOccurred())
		})

		It("restricts the recent strategy to working and recent tiers", func() {
			older := item("first note", 0.2, time.Hour, 0)
			newer := item("second note", 0.1, time.Minute, 0)

			t1 := &fakeTier{name: "working", hits: []memory.Hit{hit(older, 0), hit(newer, 0)}}
			t3 := &fakeTier{name: "semantic", hits: []memory.Hit{
				hit(item("should not appear", 0.99, time.Minute, 9), 0.99),
			}}

			coord, err := retrieval.New(retrieval.Config{Tiers: []memory.Tier{t1, t3}})
			Expect(err).NotTo(HaveOccurred())

			results, err := coord.Search(ctx, retrieval.Request{
				Query:    "note",
				Strategy: retrieval.StrategyRecent,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].Item.ID).To(Equal(newer.ID))
			Expect(results[0].Score).To(BeZero())
		})
	})

	Describe("RecentWindow", func() {
		It("returns window items oldest first from range-capable tiers", func() {
			clock := struct{ now time.Time }{now: baseTime}

			tier := working.New(working.Config{
				Clock: func() time.Time { return clock.now },
			})
			defer tier.Close()

			first := item("window start", 0.5, 30*time.Minute, 0)
			second := item("window end", 0.5, 5*time.Minute, 0)

			for _, it := range []*memory.Item{second, first} {
				_, err := tier.Store(ctx, it)
				Expect(err).NotTo(HaveOccurred())
			}

			coord, err := retrieval.New(retrieval.Config{
				Tiers: []memory.Tier{tier},
				Clock: func() time.Time { return clock.now },
			})
			Expect(err).NotTo(HaveOccurred())

			items, err := coord.RecentWindow(ctx, baseTime.Add(-time.Hour), 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(2))
			Expect(items[0].ID).To(Equal(first.ID))
			Expect(items[1].ID).To(Equal(second.ID))
		})
	})
})
