// Package working implements the working tier (T1): a bounded, short-TTL,
// in-process store for the immediate conversational window.
//
// The tier is a pure recency cache. On capacity overflow the oldest item is
// evicted regardless of importance. Expiry is lazy: expired entries are
// pruned on access and are never returned.
package working

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/strata/pkg/events"
	"github.com/papercomputeco/strata/pkg/memory"
)

const (
	// DefaultTTL is how long an item stays live in the working tier.
	DefaultTTL = 600 * time.Second

	// DefaultCapacity is the global item bound.
	DefaultCapacity = 100

	defaultRetrieveLimit = 10
)

// Config holds configuration for the working tier.
type Config struct {
	// TTL overrides DefaultTTL when positive.
	TTL time.Duration

	// Capacity overrides DefaultCapacity when positive.
	Capacity int

	// Clock overrides time.Now for tests.
	Clock func() time.Time

	// Publisher receives memory.stored events for new inserts. Nil
	// disables emission. The working tier carries the publisher because
	// it is where every memory enters the system; upward copies emit
	// consolidation events instead.
	Publisher events.Publisher

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

type entry struct {
	item     *memory.Item
	storedAt time.Time
}

// Tier implements memory.Tier using an in-memory map guarded by a RWMutex.
type Tier struct {
	mu      sync.RWMutex
	entries map[string]*entry

	ttl       time.Duration
	capacity  int
	clock     func() time.Time
	publisher events.Publisher
	logger    *zap.Logger
}

// New creates a working tier.
func New(c Config) *Tier {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}

	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}

	if c.Clock == nil {
		c.Clock = time.Now
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	return &Tier{
		entries:   make(map[string]*entry),
		ttl:       c.TTL,
		capacity:  c.Capacity,
		clock:     c.Clock,
		publisher: c.Publisher,
		logger:    c.Logger,
	}
}

// Name returns "working".
func (t *Tier) Name() string { return "working" }

// ShouldStore always returns true; T1 accepts everything.
func (t *Tier) ShouldStore(_ *memory.Item) bool { return true }

// Store inserts the item or refreshes its TTL if already present. A new
// insert emits a memory.stored event.
func (t *Tier) Store(ctx context.Context, item *memory.Item) (bool, error) {
	if item == nil {
		return false, &memory.ValidationError{Field: "item", Reason: "must not be nil"}
	}

	if err := item.Validate(); err != nil {
		return false, err
	}

	now := t.clock()

	inserted := func() bool {
		t.mu.Lock()
		defer t.mu.Unlock()

		t.pruneLocked(now)

		if e, ok := t.entries[item.ID]; ok {
			e.storedAt = now
			return false
		}

		for len(t.entries) >= t.capacity {
			t.evictOldestLocked()
		}

		t.entries[item.ID] = &entry{item: item.Clone(), storedAt: now}
		return true
	}()

	if !inserted {
		return false, nil
	}

	t.logger.Debug("stored item in working tier",
		zap.String("id", item.ID),
		zap.String("memory_type", string(item.Type)),
	)

	// Emit outside the lock; a slow publisher must not stall the tier.
	t.emitStored(ctx, item)

	return true, nil
}

// emitStored publishes a memory.stored event; publish failures are logged,
// never surfaced to the caller.
func (t *Tier) emitStored(ctx context.Context, item *memory.Item) {
	if t.publisher == nil {
		return
	}

	event := events.New(events.EventTypeMemoryStored, "working")
	event.Memory = &events.MemoryMeta{
		ItemID:     item.ID,
		Tier:       t.Name(),
		MemoryType: string(item.Type),
		Importance: item.Importance,
	}

	if err := t.publisher.Publish(ctx, event); err != nil {
		t.logger.Warn("failed to publish stored event", zap.Error(err))
	}
}

// Get retrieves an item by id and records the access.
func (t *Tier) Get(_ context.Context, id string) (*memory.Item, error) {
	now := t.clock()

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok || t.expired(e, now) {
		delete(t.entries, id)
		return nil, memory.ErrNotFound
	}

	e.item.Touch(now)

	return e.item.Clone(), nil
}

// Retrieve does a case-insensitive substring match over live items,
// most recently stored first.
func (t *Tier) Retrieve(_ context.Context, q memory.Query) ([]memory.Hit, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultRetrieveLimit
	}

	needle := strings.ToLower(q.Text)
	now := t.clock()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked(now)

	matched := make([]*entry, 0, len(t.entries))
	for _, e := range t.entries {
		if !q.WantsType(e.item.Type) {
			continue
		}

		if needle != "" && !strings.Contains(strings.ToLower(e.item.Content), needle) {
			continue
		}

		matched = append(matched, e)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].storedAt.After(matched[j].storedAt)
	})

	if len(matched) > limit {
		matched = matched[:limit]
	}

	hits := make([]memory.Hit, 0, len(matched))
	for _, e := range matched {
		e.item.Touch(now)
		hits = append(hits, memory.Hit{Item: e.item.Clone()})
	}

	return hits, nil
}

// RetrieveRange returns live items created in [start, end), oldest first.
func (t *Tier) RetrieveRange(_ context.Context, start, end time.Time, limit int) ([]*memory.Item, error) {
	now := t.clock()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked(now)

	var items []*memory.Item
	for _, e := range t.entries {
		created := e.item.CreatedAt
		if created.Before(start) || !created.Before(end) {
			continue
		}

		items = append(items, e.item.Clone())
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	return items, nil
}

// Scan lists live items with importance at or above the floor, most
// recently stored first.
func (t *Tier) Scan(_ context.Context, minImportance float64, limit int) ([]*memory.Item, error) {
	now := t.clock()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked(now)

	matched := make([]*entry, 0, len(t.entries))
	for _, e := range t.entries {
		if e.item.Importance < minImportance {
			continue
		}

		matched = append(matched, e)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].storedAt.After(matched[j].storedAt)
	})

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	items := make([]*memory.Item, 0, len(matched))
	for _, e := range matched {
		items = append(items, e.item.Clone())
	}

	return items, nil
}

// Len returns the number of live items.
func (t *Tier) Len(_ context.Context) (int, error) {
	now := t.clock()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked(now)

	return len(t.entries), nil
}

// Close is a no-op for the in-memory tier.
func (t *Tier) Close() error { return nil }

func (t *Tier) expired(e *entry, now time.Time) bool {
	return now.Sub(e.storedAt) >= t.ttl
}

func (t *Tier) pruneLocked(now time.Time) {
	for id, e := range t.entries {
		if t.expired(e, now) {
			delete(t.entries, id)
		}
	}
}

func (t *Tier) evictOldestLocked() {
	var oldestID string
	var oldestAt time.Time

	for id, e := range t.entries {
		if oldestID == "" || e.storedAt.Before(oldestAt) {
			oldestID = id
			oldestAt = e.storedAt
		}
	}

	if oldestID != "" {
		delete(t.entries, oldestID)
		t.logger.Debug("evicted oldest item from working tier",
			zap.String("id", oldestID),
		)
	}
}
