package sqlitevec_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/strata/pkg/vector"
	"github.com/papercomputeco/strata/pkg/vector/sqlitevec"
)

var _ = Describe("SQLiteVecDriver", func() {
	var logger *zap.Logger

	BeforeEach(func() {
		logger = zap.NewNop()
	})

	Describe("NewSQLiteVecDriver", func() {
		It("should return an error when DBPath is empty", func() {
			_, err := sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{DBPath: ""}, logger)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("database path is required"))
		})

		It("should create a driver with an in-memory database", func() {
			driver, err := sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
				DBPath:     ":memory:",
				Dimensions: 4,
			}, logger)
			Expect(err).NotTo(HaveOccurred())
			Expect(driver).NotTo(BeNil())
			Expect(driver.Close()).To(Succeed())
		})

		It("should error when dimension not specified", func() {
			_, err := sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
				DBPath: ":memory:",
			}, logger)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Interface compliance", func() {
		It("should implement vector.Driver interface", func() {
			var _ vector.Driver = (*sqlitevec.SQLiteVecDriver)(nil)
		})
	})

	Describe("Add and Query", func() {
		var (
			driver *sqlitevec.SQLiteVecDriver
			ctx    context.Context
		)

		BeforeEach(func() {
			var err error
			driver, err = sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
				DBPath:     ":memory:",
				Dimensions: 4,
			}, logger)
			Expect(err).NotTo(HaveOccurred())
			ctx = context.Background()
		})

		AfterEach(func() {
			Expect(driver.Close()).To(Succeed())
		})

		It("should do nothing when given empty docs", func() {
			Expect(driver.Add(ctx, []vector.Document{})).To(Succeed())
		})

		It("should round-trip a document with metadata", func() {
			docs := []vector.Document{
				{
					ID:        "doc-1",
					Embedding: []float32{0.1, 0.2, 0.3, 0.4},
					Metadata:  map[string]string{"memory_type": "semantic"},
				},
			}
			Expect(driver.Add(ctx, docs)).To(Succeed())

			got, err := driver.Get(ctx, []string{"doc-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(1))
			Expect(got[0].Embedding).To(Equal([]float32{0.1, 0.2, 0.3, 0.4}))
			Expect(got[0].Metadata).To(HaveKeyWithValue("memory_type", "semantic"))
		})

		It("should update on re-add of the same ID without duplicating", func() {
			doc := vector.Document{
				ID:        "doc-1",
				Embedding: []float32{0.1, 0.2, 0.3, 0.4},
			}
			Expect(driver.Add(ctx, []vector.Document{doc})).To(Succeed())

			doc.Embedding = []float32{0.9, 0.8, 0.7, 0.6}
			Expect(driver.Add(ctx, []vector.Document{doc})).To(Succeed())

			got, err := driver.Get(ctx, []string{"doc-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(1))
			Expect(got[0].Embedding).To(Equal([]float32{0.9, 0.8, 0.7, 0.6}))
		})

		It("should rank the nearest neighbor first", func() {
			docs := []vector.Document{
				{ID: "north", Embedding: []float32{1, 0, 0, 0}},
				{ID: "east", Embedding: []float32{0, 1, 0, 0}},
				{ID: "near-north", Embedding: []float32{0.9, 0.1, 0, 0}},
			}
			Expect(driver.Add(ctx, docs)).To(Succeed())

			results, err := driver.Query(ctx, []float32{1, 0, 0, 0}, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].ID).To(Equal("north"))
			Expect(results[1].ID).To(Equal("near-north"))
			Expect(results[0].Score).To(BeNumerically(">=", results[1].Score))
		})

		It("should delete documents by id", func() {
			Expect(driver.Add(ctx, []vector.Document{
				{ID: "doc-1", Embedding: []float32{1, 0, 0, 0}},
			})).To(Succeed())

			Expect(driver.Delete(ctx, []string{"doc-1"})).To(Succeed())

			got, err := driver.Get(ctx, []string{"doc-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeEmpty())
		})
	})
})
