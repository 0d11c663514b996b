package consolidation_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/strata/pkg/consolidation"
	"github.com/papercomputeco/strata/pkg/embeddings/hashed"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/memory/durable"
	"github.com/papercomputeco/strata/pkg/memory/recent"
	"github.com/papercomputeco/strata/pkg/memory/semantic"
	"github.com/papercomputeco/strata/pkg/memory/working"
	"github.com/papercomputeco/strata/pkg/vector/sqlitevec"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// ladder is a full four-tier stack on in-memory backends sharing one clock.
type ladder struct {
	working  *working.Tier
	recent   *recent.Tier
	semantic *semantic.Tier
	durable  *durable.Tier
}

func newLadder(clock *fakeClock) *ladder {
	w := working.New(working.Config{Clock: clock.Now})

	r, err := recent.New(recent.Config{DBPath: ":memory:", Clock: clock.Now})
	Expect(err).NotTo(HaveOccurred())

	vec, err := sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
		DBPath:     ":memory:",
		Dimensions: 64,
	}, zap.NewNop())
	Expect(err).NotTo(HaveOccurred())

	s, err := semantic.New(semantic.Config{
		DBPath:   ":memory:",
		Embedder: hashed.NewEmbedder(64),
		Vector:   vec,
		Clock:    clock.Now,
	})
	Expect(err).NotTo(HaveOccurred())

	d, err := durable.NewSQLite(durable.SQLiteConfig{
		DBPath: ":memory:",
		Config: durable.Config{Clock: clock.Now},
	})
	Expect(err).NotTo(HaveOccurred())

	return &ladder{working: w, recent: r, semantic: s, durable: d}
}

func (l *ladder) close() {
	Expect(l.working.Close()).To(Succeed())
	Expect(l.recent.Close()).To(Succeed())
	Expect(l.semantic.Close()).To(Succeed())
	Expect(l.durable.Close()).To(Succeed())
}

func (l *ladder) scheduler(clock *fakeClock) *consolidation.Scheduler {
	s, err := consolidation.New(consolidation.Config{
		Working:  l.working,
		Recent:   l.recent,
		Semantic: l.semantic,
		Durable:  l.durable,
		Clock:    clock.Now,
	})
	Expect(err).NotTo(HaveOccurred())

	return s
}

func newItem(content string, importance float64) *memory.Item {
	item, err := memory.NewItem(content, memory.TypeEpisodic, importance)
	Expect(err).NotTo(HaveOccurred())
	return item
}

var _ = Describe("Scheduler", func() {
	var (
		clock *fakeClock
		tiers *ladder
		sched *consolidation.Scheduler
		ctx   context.Context
	)

	BeforeEach(func() {
		clock = &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
		tiers = newLadder(clock)
		sched = tiers.scheduler(clock)
		ctx = context.Background()
	})

	AfterEach(func() {
		tiers.close()
	})

	Describe("New", func() {
		It("requires all four tiers", func() {
			_, err := consolidation.New(consolidation.Config{Working: tiers.working})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("RunPass", func() {
		It("promotes an important item up the whole ladder in one pass", func() {
			item := newItem("user prefers dark mode", 0.9)
			item.CreatedAt = clock.Now()

			_, err := tiers.working.Store(ctx, item)
			Expect(err).NotTo(HaveOccurred())

			report := sched.RunPass(ctx)
			Expect(report.Stages).To(HaveLen(3))
			for _, stage := range report.Stages {
				Expect(stage.Err).NotTo(HaveOccurred())
				Expect(stage.Promoted).To(Equal(1))
			}

			// Past the recent tier's TTL only the upper tiers still hold
			// the item.
			clock.Advance(25 * time.Hour)
			sched.RunPass(ctx)

			_, err = tiers.recent.Get(ctx, item.ID)
			Expect(err).To(MatchError(memory.ErrNotFound))

			hits, err := tiers.semantic.Retrieve(ctx, memory.Query{Text: "dark mode preferences"})
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).NotTo(BeEmpty())
			Expect(hits[0].Item.ID).To(Equal(item.ID))

			got, err := tiers.durable.Get(ctx, item.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Content).To(Equal("user prefers dark mode"))
		})

		It("leaves the source copy in place when promoting", func() {
			item := newItem("keep both copies", 0.9)

			_, err := tiers.working.Store(ctx, item)
			Expect(err).NotTo(HaveOccurred())

			sched.RunPass(ctx)

			_, err = tiers.working.Get(ctx, item.ID)
			Expect(err).NotTo(HaveOccurred())
			_, err = tiers.recent.Get(ctx, item.ID)
			Expect(err).NotTo(HaveOccurred())
		})

		It("does not promote items below the target gates", func() {
			item := newItem("ephemeral chatter", 0.2)

			_, err := tiers.working.Store(ctx, item)
			Expect(err).NotTo(HaveOccurred())

			report := sched.RunPass(ctx)

			// The recent tier accepts it, the gated tiers do not.
			Expect(report.Stages[0].Promoted).To(Equal(1))
			Expect(report.Stages[1].Promoted).To(BeZero())
			Expect(report.Stages[2].Promoted).To(BeZero())
		})

		It("is idempotent across passes", func() {
			item := newItem("promoted exactly once", 0.9)

			_, err := tiers.working.Store(ctx, item)
			Expect(err).NotTo(HaveOccurred())

			sched.RunPass(ctx)
			report := sched.RunPass(ctx)

			for _, stage := range report.Stages {
				Expect(stage.Promoted).To(BeZero())
			}

			n, err := tiers.durable.Len(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
		})

		It("keeps running later stages when an earlier stage fails", func() {
			item := newItem("survives stage failure", 0.9)
			_, err := tiers.recent.Store(ctx, item)
			Expect(err).NotTo(HaveOccurred())

			broken, err := consolidation.New(consolidation.Config{
				Working:  &failingTier{name: "working"},
				Recent:   tiers.recent,
				Semantic: tiers.semantic,
				Durable:  tiers.durable,
				Clock:    clock.Now,
			})
			Expect(err).NotTo(HaveOccurred())

			report := broken.RunPass(ctx)
			Expect(report.Stages[0].Err).To(HaveOccurred())
			Expect(report.Stages[1].Promoted).To(Equal(1))
			Expect(report.Stages[2].Promoted).To(Equal(1))
		})
	})

	Describe("Stop", func() {
		It("drains cleanly when idle", func() {
			Expect(sched.Start()).To(Succeed())
			Expect(sched.Stop(ctx)).To(Succeed())
		})

		It("is a no-op before Start", func() {
			Expect(sched.Stop(ctx)).To(Succeed())
		})

		It("waits for an in-flight pass to commit before returning", func() {
			slow := &blockingTier{
				Tier:    tiers.working,
				entered: make(chan struct{}),
				release: make(chan struct{}),
			}

			draining, err := consolidation.New(consolidation.Config{
				Working:  slow,
				Recent:   tiers.recent,
				Semantic: tiers.semantic,
				Durable:  tiers.durable,
				// Cron rounds sub-second intervals up to one second.
				Interval: time.Second,
				Clock:    clock.Now,
			})
			Expect(err).NotTo(HaveOccurred())

			item := newItem("written mid-shutdown", 0.9)
			_, err = tiers.working.Store(ctx, item)
			Expect(err).NotTo(HaveOccurred())

			Expect(draining.Start()).To(Succeed())
			Eventually(slow.entered, 3*time.Second).Should(BeClosed())

			stopped := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				stopped <- draining.Stop(ctx)
			}()

			// Stop must block while the pass is still inside Scan.
			Consistently(stopped, 100*time.Millisecond).ShouldNot(Receive())

			close(slow.release)
			Eventually(stopped, 3*time.Second).Should(Receive(BeNil()))

			// The drained pass finished its promotion into recent.
			got, err := tiers.recent.Get(ctx, item.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Content).To(Equal(item.Content))
		})
	})
})

// blockingTier stalls Scan until released, so a pass can be caught in
// flight.
type blockingTier struct {
	*working.Tier

	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (t *blockingTier) Scan(ctx context.Context, minImportance float64, limit int) ([]*memory.Item, error) {
	t.once.Do(func() { close(t.entered) })

	select {
	case <-t.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return t.Tier.Scan(ctx, minImportance, limit)
}

// failingTier always fails its scan.
type failingTier struct {
	name string
}

func (t *failingTier) Name() string { return t.name }

func (t *failingTier) Store(context.Context, *memory.Item) (bool, error) { return false, nil }

func (t *failingTier) Get(context.Context, string) (*memory.Item, error) {
	return nil, memory.ErrNotFound
}

func (t *failingTier) Retrieve(context.Context, memory.Query) ([]memory.Hit, error) {
	return nil, nil
}

func (t *failingTier) ShouldStore(*memory.Item) bool { return true }

func (t *failingTier) Len(context.Context) (int, error) { return 0, nil }

func (t *failingTier) Close() error { return nil }

func (t *failingTier) Scan(context.Context, float64, int) ([]*memory.Item, error) {
	return nil, errors.New("backend down")
}
