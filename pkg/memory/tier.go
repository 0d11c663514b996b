package memory

import (
	"context"
	"time"
)

// Query describes a retrieval request against a single tier.
type Query struct {
	// Text is matched against item content. An empty text matches
	// everything, bounded by Limit.
	Text string

	// Types optionally restricts results to the given memory types.
	Types []Type

	// Limit bounds the number of results. Zero means the tier default.
	Limit int
}

// WantsType reports whether the query admits the given memory type.
func (q Query) WantsType(t Type) bool {
	if len(q.Types) == 0 {
		return true
	}

	for _, want := range q.Types {
		if want == t {
			return true
		}
	}

	return false
}

// Hit is one retrieval result. Similarity is populated only by tiers with
// vector support; all others report zero.
type Hit struct {
	Item       *Item
	Similarity float32
}

// Tier is the contract every storage tier implements. Tiers own their
// storage exclusively and must tolerate concurrent Store/Retrieve calls.
// A write is visible to any retrieve issued afterward in the same process.
type Tier interface {
	// Name returns the canonical tier name ("working", "recent",
	// "semantic", "durable").
	Name() string

	// Store persists a copy of the item. Returns true if the item was
	// newly inserted, false if an item with the same id was already
	// present (idempotent no-op, mirroring content-addressed puts).
	Store(ctx context.Context, item *Item) (bool, error)

	// Get retrieves an item by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Item, error)

	// Retrieve returns items matching the query. An expired item is
	// never returned.
	Retrieve(ctx context.Context, q Query) ([]Hit, error)

	// ShouldStore reports whether the item passes this tier's promotion
	// gate. The consolidation scheduler consults this before promoting.
	ShouldStore(item *Item) bool

	// Len returns the number of live items in the tier.
	Len(ctx context.Context) (int, error)

	// Close releases tier resources.
	Close() error
}

// RangeRetriever is implemented by tiers that support time-range queries
// (the working and recent tiers).
type RangeRetriever interface {
	// RetrieveRange returns items created in [start, end), oldest first.
	RetrieveRange(ctx context.Context, start, end time.Time, limit int) ([]*Item, error)
}

// Scanner is implemented by tiers the consolidation scheduler reads from.
// Scan lists live items with importance at or above the floor, most recent
// first, bounded by limit.
type Scanner interface {
	Scan(ctx context.Context, minImportance float64, limit int) ([]*Item, error)
}
