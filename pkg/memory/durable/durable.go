// Package durable implements the durable tier (T4): the system of record
// for high-confidence facts. Facts persist indefinitely with no TTL and no
// automatic eviction, and support predicate plus text queries.
//
// Two backends are provided: an embedded SQLite store (the default) and a
// PostgreSQL store for shared deployments.
//
// Conflicting facts about the same subject (matching "subject" metadata)
// are resolved highest-importance-wins: both copies are kept, the loser is
// flagged with the winner's id, and queries order by importance so the
// winner surfaces first.
package durable

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/strata/pkg/memory"
)

const (
	// DefaultImportanceGate is the promotion floor for this tier.
	DefaultImportanceGate = 0.8

	defaultRetrieveLimit = 20

	// SubjectKey is the metadata key that identifies what a fact is
	// about, used for conflict detection.
	SubjectKey = "subject"
)

// Filter describes a structured query against the durable tier.
type Filter struct {
	// Text is matched against fact content (full-text where the backend
	// supports it).
	Text string

	// Types optionally restricts results to the given memory types.
	Types []memory.Type

	// Subject restricts results to facts about one subject.
	Subject string

	// IncludeConflicted includes facts that lost a conflict resolution.
	IncludeConflicted bool

	// Limit bounds the number of results. Zero means the tier default.
	Limit int
}

// fact is a stored row: the item plus tier-local conflict bookkeeping.
type fact struct {
	item         *memory.Item
	subject      string
	conflictWith string
}

// backend is the storage contract shared by the SQLite and Postgres stores.
type backend interface {
	put(ctx context.Context, f *fact) (bool, error)
	get(ctx context.Context, id string) (*fact, error)
	query(ctx context.Context, filter Filter) ([]*fact, error)
	// winner returns the highest-importance unconflicted fact for a
	// subject, or nil.
	winner(ctx context.Context, subject string) (*fact, error)
	markConflict(ctx context.Context, loserID, winnerID string) error
	touch(ctx context.Context, id string, now time.Time) error
	count(ctx context.Context) (int, error)
	close() error
}

// Config holds shared configuration for the durable tier.
type Config struct {
	// ImportanceGate overrides DefaultImportanceGate when positive.
	ImportanceGate float64

	// Clock overrides time.Now for tests.
	Clock func() time.Time

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

func (c *Config) fill() {
	if c.ImportanceGate <= 0 {
		c.ImportanceGate = DefaultImportanceGate
	}

	if c.Clock == nil {
		c.Clock = time.Now
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Tier implements memory.Tier over a structured backend.
type Tier struct {
	store  backend
	gate   float64
	clock  func() time.Time
	logger *zap.Logger
}

// Name returns "durable".
func (t *Tier) Name() string { return "durable" }

// ShouldStore gates on the importance floor.
func (t *Tier) ShouldStore(item *memory.Item) bool {
	return item != nil && item.Importance >= t.gate
}

// Store persists the fact, resolving subject conflicts
// highest-importance-wins. Re-storing a known id is a no-op.
func (t *Tier) Store(ctx context.Context, item *memory.Item) (bool, error) {
	if item == nil {
		return false, &memory.ValidationError{Field: "item", Reason: "must not be nil"}
	}

	if err := item.Validate(); err != nil {
		return false, err
	}

	f := &fact{item: item.Clone(), subject: item.Metadata[SubjectKey]}

	inserted := false
	err := memory.WithRetry(ctx, t.Name(), func() error {
		var loserID string

		if f.subject != "" {
			existing, err := t.store.winner(ctx, f.subject)
			if err != nil {
				return err
			}

			if existing != nil && existing.item.ID != item.ID {
				if existing.item.Importance >= item.Importance {
					f.conflictWith = existing.item.ID
				} else {
					loserID = existing.item.ID
				}
			}
		}

		var err error
		inserted, err = t.store.put(ctx, f)
		if err != nil {
			return err
		}

		if inserted && loserID != "" {
			return t.store.markConflict(ctx, loserID, item.ID)
		}

		return nil
	})
	if err != nil {
		return false, err
	}

	if inserted {
		t.logger.Debug("persisted fact in durable tier",
			zap.String("id", item.ID),
			zap.String("subject", f.subject),
			zap.Bool("conflicted", f.conflictWith != ""),
		)
	}

	return inserted, nil
}

// Get retrieves a fact by id and records the access.
func (t *Tier) Get(ctx context.Context, id string) (*memory.Item, error) {
	now := t.clock().UTC()

	var item *memory.Item
	err := memory.WithRetry(ctx, t.Name(), func() error {
		f, err := t.store.get(ctx, id)
		if err != nil {
			return err
		}

		item = f.item
		return t.store.touch(ctx, id, now)
	})
	if err != nil {
		return nil, err
	}

	item.Touch(now)

	return item, nil
}

// Retrieve maps the tier query onto a text filter, winners first.
func (t *Tier) Retrieve(ctx context.Context, q memory.Query) ([]memory.Hit, error) {
	items, err := t.Query(ctx, Filter{
		Text:  q.Text,
		Types: q.Types,
		Limit: q.Limit,
	})
	if err != nil {
		return nil, err
	}

	hits := make([]memory.Hit, 0, len(items))
	for _, item := range items {
		hits = append(hits, memory.Hit{Item: item})
	}

	return hits, nil
}

// Query runs a structured predicate/text query ordered by importance, then
// recency.
func (t *Tier) Query(ctx context.Context, filter Filter) ([]*memory.Item, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultRetrieveLimit
	}

	now := t.clock().UTC()

	var items []*memory.Item
	err := memory.WithRetry(ctx, t.Name(), func() error {
		facts, err := t.store.query(ctx, filter)
		if err != nil {
			return err
		}

		items = items[:0]
		for _, f := range facts {
			if err := t.store.touch(ctx, f.item.ID, now); err != nil {
				return err
			}

			f.item.Touch(now)
			items = append(items, f.item)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return items, nil
}

// ConflictWith reports which fact superseded the given one, or empty when
// the fact is unconflicted.
func (t *Tier) ConflictWith(ctx context.Context, id string) (string, error) {
	var winnerID string
	err := memory.WithRetry(ctx, t.Name(), func() error {
		f, err := t.store.get(ctx, id)
		if err != nil {
			return err
		}

		winnerID = f.conflictWith
		return nil
	})
	if err != nil {
		return "", err
	}

	return winnerID, nil
}

// Len returns the number of stored facts.
func (t *Tier) Len(ctx context.Context) (int, error) {
	var n int
	err := memory.WithRetry(ctx, t.Name(), func() error {
		var err error
		n, err = t.store.count(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}

	return n, nil
}

// Close closes the backend.
func (t *Tier) Close() error {
	return t.store.close()
}

func newTier(store backend, c Config) *Tier {
	c.fill()

	return &Tier{
		store:  store,
		gate:   c.ImportanceGate,
		clock:  c.Clock,
		logger: c.Logger,
	}
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", memory.ErrNotFound, id)
}
