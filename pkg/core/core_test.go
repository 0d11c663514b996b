package core_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/config"
	"github.com/papercomputeco/strata/pkg/core"
	"github.com/papercomputeco/strata/pkg/memory"
)

var _ = Describe("Core", func() {
	var (
		ctx context.Context
		cfg *config.Config
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = config.NewDefaultConfig()
	})

	Describe("New", func() {
		It("requires settings", func() {
			_, err := core.New(ctx, core.Config{})
			Expect(err).To(HaveOccurred())
		})

		It("assembles an in-memory stack from the defaults", func() {
			cr, err := core.New(ctx, core.Config{Settings: cfg})
			Expect(err).ToNot(HaveOccurred())
			defer cr.Close()

			Expect(cr.Working).ToNot(BeNil())
			Expect(cr.Recent).ToNot(BeNil())
			Expect(cr.Semantic).ToNot(BeNil())
			Expect(cr.Durable).ToNot(BeNil())
			Expect(cr.Coordinator).ToNot(BeNil())
			Expect(cr.Executor).ToNot(BeNil())
			Expect(cr.Publisher).ToNot(BeNil())
		})

		It("orders the ladder from working to durable", func() {
			cr, err := core.New(ctx, core.Config{Settings: cfg})
			Expect(err).ToNot(HaveOccurred())
			defer cr.Close()

			names := []string{}
			for _, tier := range cr.Tiers() {
				names = append(names, tier.Name())
			}
			Expect(names).To(Equal([]string{"working", "recent", "semantic", "durable"}))
		})

		It("registers the builtin tools", func() {
			cr, err := core.New(ctx, core.Config{Settings: cfg})
			Expect(err).ToNot(HaveOccurred())
			defer cr.Close()

			names := []string{}
			for _, tool := range cr.Executor.Catalog() {
				names = append(names, tool.Name())
			}
			Expect(names).To(ContainElements("memory_search", "memory_store", "clock"))
		})

		It("rejects an unknown embedding provider", func() {
			cfg.Embedding.Provider = "mystery"

			_, err := core.New(ctx, core.Config{Settings: cfg})
			Expect(err).To(HaveOccurred())
		})

		It("rejects an unknown vector store provider", func() {
			cfg.VectorStore.Provider = "mystery"

			_, err := core.New(ctx, core.Config{Settings: cfg})
			Expect(err).To(HaveOccurred())
		})

		It("rejects an unknown events provider", func() {
			cfg.Events.Provider = "mystery"

			_, err := core.New(ctx, core.Config{Settings: cfg})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("stored items flow through the assembled ladder", func() {
		It("stores to working and retrieves through the coordinator", func() {
			cr, err := core.New(ctx, core.Config{Settings: cfg})
			Expect(err).ToNot(HaveOccurred())
			defer cr.Close()

			item, err := memory.NewItem("deployed build 42 to staging", memory.TypeEpisodic, 0.6)
			Expect(err).ToNot(HaveOccurred())

			inserted, err := cr.Working.Store(ctx, item)
			Expect(err).ToNot(HaveOccurred())
			Expect(inserted).To(BeTrue())

			got, err := cr.Working.Get(ctx, item.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(got.Content).To(Equal(item.Content))
		})
	})

	Describe("NewConsolidator", func() {
		It("builds a scheduler from the configured interval", func() {
			cr, err := core.New(ctx, core.Config{Settings: cfg})
			Expect(err).ToNot(HaveOccurred())
			defer cr.Close()

			scheduler, err := cr.NewConsolidator(cfg)
			Expect(err).ToNot(HaveOccurred())
			Expect(scheduler).ToNot(BeNil())
		})

		It("rejects a malformed interval", func() {
			cr, err := core.New(ctx, core.Config{Settings: cfg})
			Expect(err).ToNot(HaveOccurred())
			defer cr.Close()

			cfg.Consolidation.Interval = "whenever"

			_, err = cr.NewConsolidator(cfg)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("NewProvider", func() {
		It("rejects an unknown reasoning provider", func() {
			cfg.Reasoning.Provider = "mystery"

			_, err := core.NewProvider(cfg)
			Expect(err).To(HaveOccurred())
		})
	})
})
