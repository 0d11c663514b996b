package semantic_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/strata/pkg/embeddings/hashed"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/memory/semantic"
	"github.com/papercomputeco/strata/pkg/vector/sqlitevec"
)

func newTier() *semantic.Tier {
	embedder := hashed.NewEmbedder(64)

	vec, err := sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
		DBPath:     ":memory:",
		Dimensions: 64,
	}, zap.NewNop())
	Expect(err).NotTo(HaveOccurred())

	tier, err := semantic.New(semantic.Config{
		DBPath:   ":memory:",
		Embedder: embedder,
		Vector:   vec,
	})
	Expect(err).NotTo(HaveOccurred())

	return tier
}

func newItem(content string, typ memory.Type, importance float64) *memory.Item {
	item, err := memory.NewItem(content, typ, importance)
	Expect(err).NotTo(HaveOccurred())
	return item
}

var _ = Describe("Semantic Tier", func() {
	var (
		tier *semantic.Tier
		ctx  context.Context
	)

	BeforeEach(func() {
		tier = newTier()
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(tier.Close()).To(Succeed())
	})

	Describe("New", func() {
		It("requires an embedder and a vector driver", func() {
			_, err := semantic.New(semantic.Config{DBPath: ":memory:"})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ShouldStore", func() {
		It("gates at the default importance floor of one half", func() {
			Expect(tier.ShouldStore(newItem("low", memory.TypeSemantic, 0.49))).To(BeFalse())
			Expect(tier.ShouldStore(newItem("high", memory.TypeSemantic, 0.5))).To(BeTrue())
		})
	})

	Describe("Store", func() {
		It("round-trips content and memory type", func() {
			item := newItem("user prefers dark mode", memory.TypeSemantic, 0.9)

			inserted, err := tier.Store(ctx, item)
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())

			got, err := tier.Get(ctx, item.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Content).To(Equal("user prefers dark mode"))
			Expect(got.Type).To(Equal(memory.TypeSemantic))
		})

		It("is idempotent for an id already indexed", func() {
			item := newItem("once only", memory.TypeSemantic, 0.7)

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
	})

	Describe("Retrieve", func() {
		BeforeEach(func() {
			for _, content := range []string{
				"user prefers dark mode in every editor",
				"user prefers spaces over tabs",
				"the deployment pipeline runs nightly at two",
			} {
				_, err := tier.Store(ctx, newItem(content, memory.TypeSemantic, 0.8))
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("returns the nearest items by meaning with similarity scores", func() {
			hits, err := tier.Retrieve(ctx, memory.Query{Text: "user prefers dark mode", Limit: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(HaveLen(2))
			Expect(hits[0].Item.Content).To(ContainSubstring("dark mode"))
			Expect(hits[0].Similarity).To(BeNumerically(">", 0))
			Expect(hits[0].Similarity).To(BeNumerically(">=", hits[1].Similarity))
		})

		It("filters by memory type", func() {
			proc := newItem("procedure: always check the user theme first", memory.TypeProcedural, 0.8)
			_, err := tier.Store(ctx, proc)
			Expect(err).NotTo(HaveOccurred())

			hits, err := tier.Retrieve(ctx, memory.Query{
				Text:  "user theme",
				Types: []memory.Type{memory.TypeProcedural},
				Limit: 5,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).NotTo(BeEmpty())
			for _, hit := range hits {
				Expect(hit.Item.Type).To(Equal(memory.TypeProcedural))
			}
		})
	})

	Describe("Delete", func() {
		It("removes an item explicitly", func() {
			item := newItem("remove me", memory.TypeSemantic, 0.8)
			_, err := tier.Store(ctx, item)
			Expect(err).NotTo(HaveOccurred())

			Expect(tier.Delete(ctx, item.ID)).To(Succeed())

			_, err = tier.Get(ctx, item.ID)
			Expect(err).To(MatchError(memory.ErrNotFound))
		})
	})

	Describe("Scan", func() {
		It("lists promotion candidates above the floor", func() {
			_, err := tier.Store(ctx, newItem("medium fact", memory.TypeSemantic, 0.6))
			Expect(err).NotTo(HaveOccurred())

			keeper := newItem("critical fact", memory.TypeSemantic, 0.95)
			_, err = tier.Store(ctx, keeper)
			Expect(err).NotTo(HaveOccurred())

			items, err := tier.Scan(ctx, 0.8, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(1))
			Expect(items[0].ID).To(Equal(keeper.ID))
		})
	})
})
