// Package retrieval coordinates multi-tier memory search: it fans a query
// out across the tiers concurrently, merges and dedupes the candidates, and
// ranks them by a weighted blend of importance, recency, access frequency,
// and similarity.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/strata/pkg/events"
	"github.com/papercomputeco/strata/pkg/memory"
)

// Strategy selects how a search is executed.
type Strategy string

const (
	// StrategyRecent searches only the working and recent tiers and
	// returns hits time-ordered without re-ranking.
	StrategyRecent Strategy = "recent"

	// StrategyComprehensive searches every tier and ranks the merged
	// candidate set.
	StrategyComprehensive Strategy = "comprehensive"

	// DefaultMaxResults bounds a search when the request does not.
	DefaultMaxResults = 10
)

// Weights blends the ranking signals. They are expected to sum to 1 but the
// ranking only depends on their relative sizes.
type Weights struct {
	Importance float64
	Recency    float64
	Frequency  float64
	Similarity float64
}

// DefaultWeights is the standard signal blend.
var DefaultWeights = Weights{
	Importance: 0.4,
	Recency:    0.3,
	Frequency:  0.2,
	Similarity: 0.1,
}

func (w Weights) validate() error {
	if w.Importance < 0 || w.Recency < 0 || w.Frequency < 0 || w.Similarity < 0 {
		return fmt.Errorf("ranking weights must not be negative")
	}

	return nil
}

func (w Weights) zero() bool {
	return w.Importance == 0 && w.Recency == 0 && w.Frequency == 0 && w.Similarity == 0
}

// Request describes one search.
type Request struct {
	// Query is the free-text query.
	Query string

	// Types optionally restricts results to the given memory types.
	Types []memory.Type

	// Strategy defaults to StrategyComprehensive.
	Strategy Strategy

	// MaxResults defaults to DefaultMaxResults.
	MaxResults int
}

// Result is one ranked hit.
type Result struct {
	Item *memory.Item

	// Tier names the tier the surviving copy came from.
	Tier string

	// Similarity is the vector similarity where the source tier supports
	// it, zero otherwise.
	Similarity float32

	// Score is the blended ranking score. Zero under StrategyRecent,
	// which does not re-rank.
	Score float64
}

// Config holds configuration for the coordinator.
type Config struct {
	// Tiers are searched in the order given; order only matters for
	// logging, ranking is order-independent.
	Tiers []memory.Tier

	// Weights overrides DefaultWeights when non-zero.
	Weights Weights

	// Publisher receives memory.retrieved events. Nil disables emission.
	Publisher events.Publisher

	// Clock overrides time.Now for tests.
	Clock func() time.Time

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// Coordinator fans queries out across the memory tiers.
type Coordinator struct {
	tiers     []memory.Tier
	weights   Weights
	publisher events.Publisher
	clock     func() time.Time
	logger    *zap.Logger
}

// New creates a coordinator over the given tiers.
func New(c Config) (*Coordinator, error) {
	if len(c.Tiers) == 0 {
		return nil, fmt.Errorf("at least one tier is required")
	}

	if err := c.Weights.validate(); err != nil {
		return nil, err
	}

	if c.Weights.zero() {
		c.Weights = DefaultWeights
	}

	if c.Clock == nil {
		c.Clock = time.Now
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	return &Coordinator{
		tiers:     c.Tiers,
		weights:   c.Weights,
		publisher: c.Publisher,
		clock:     c.Clock,
		logger:    c.Logger,
	}, nil
}

// Search runs the request against the tiers the strategy selects. A failing
// tier is logged and skipped; the search only fails when every tier fails.
func (c *Coordinator) Search(ctx context.Context, req Request) ([]Result, error) {
	if req.MaxResults <= 0 {
		req.MaxResults = DefaultMaxResults
	}

	if req.Strategy == "" {
		req.Strategy = StrategyComprehensive
	}

	tiers := c.tiers
	if req.Strategy == StrategyRecent {
		tiers = c.recentTiers()
	}

	candidates, err := c.fanOut(ctx, tiers, memory.Query{
		Text:  req.Query,
		Types: req.Types,
		Limit: req.MaxResults,
	})
	if err != nil {
		return nil, err
	}

	results := dedupe(candidates)

	switch req.Strategy {
	case StrategyRecent:
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Item.Recency().After(results[j].Item.Recency())
		})
	default:
		c.rank(results)
	}

	if len(results) > req.MaxResults {
		results = results[:req.MaxResults]
	}

	c.emitRetrieved(ctx, len(results))

	return results, nil
}

// RecentWindow returns items created since the given time from the working
// and recent tiers, oldest first. The reasoning context builder uses this to
// reconstruct the current interaction window.
func (c *Coordinator) RecentWindow(ctx context.Context, since time.Time, limit int) ([]*memory.Item, error) {
	now := c.clock().UTC()

	seen := make(map[string]bool)
	var items []*memory.Item

	for _, tier := range c.recentTiers() {
		ranger, ok := tier.(memory.RangeRetriever)
		if !ok {
			continue
		}

		got, err := ranger.RetrieveRange(ctx, since, now, limit)
		if err != nil {
			c.logger.Warn("tier failed during recent window scan",
				zap.String("tier", tier.Name()),
				zap.Error(err),
			)
			continue
		}

		for _, item := range got {
			if seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			items = append(items, item)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})

	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}

	return items, nil
}

type candidate struct {
	hit  memory.Hit
	tier string
}

// fanOut queries the tiers concurrently and merges whatever succeeds.
func (c *Coordinator) fanOut(ctx context.Context, tiers []memory.Tier, q memory.Query) ([]candidate, error) {
	var (
		mu         sync.Mutex
		wg         sync.WaitGroup
		candidates []candidate
		failures   int
		lastErr    error
	)

	for _, tier := range tiers {
		wg.Add(1)

		go func(tier memory.Tier) {
			defer wg.Done()

			hits, err := tier.Retrieve(ctx, q)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				failures++
				lastErr = err
				c.logger.Warn("tier failed during search, degrading",
					zap.String("tier", tier.Name()),
					zap.Error(err),
				)
				return
			}

			for _, hit := range hits {
				candidates = append(candidates, candidate{hit: hit, tier: tier.Name()})
			}
		}(tier)
	}

	wg.Wait()

	if failures == len(tiers) && failures > 0 {
		return nil, fmt.Errorf("all tiers failed: %w", lastErr)
	}

	return candidates, nil
}

// dedupe collapses per-id copies down to the most recently accessed one,
// carrying the best similarity seen for the id.
func dedupe(candidates []candidate) []Result {
	byID := make(map[string]*Result)
	var order []string

	for _, cand := range candidates {
		item := cand.hit.Item

		existing, ok := byID[item.ID]
		if !ok {
			byID[item.ID] = &Result{
				Item:       item,
				Tier:       cand.tier,
				Similarity: cand.hit.Similarity,
			}
			order = append(order, item.ID)
			continue
		}

		if cand.hit.Similarity > existing.Similarity {
			existing.Similarity = cand.hit.Similarity
		}

		if item.Recency().After(existing.Item.Recency()) {
			existing.Item = item
			existing.Tier = cand.tier
		}
	}

	results := make([]Result, 0, len(order))
	for _, id := range order {
		results = append(results, *byID[id])
	}

	return results
}

// rank scores the candidate set and sorts it best first. Recency and
// frequency are min-max normalized over the set so the blend is scale-free.
func (c *Coordinator) rank(results []Result) {
	if len(results) == 0 {
		return
	}

	minRec, maxRec := results[0].Item.Recency(), results[0].Item.Recency()
	minFreq, maxFreq := results[0].Item.AccessCount, results[0].Item.AccessCount

	for _, r := range results[1:] {
		rec := r.Item.Recency()
		if rec.Before(minRec) {
			minRec = rec
		}
		if rec.After(maxRec) {
			maxRec = rec
		}

		if r.Item.AccessCount < minFreq {
			minFreq = r.Item.AccessCount
		}
		if r.Item.AccessCount > maxFreq {
			maxFreq = r.Item.AccessCount
		}
	}

	recSpan := maxRec.Sub(minRec).Seconds()
	freqSpan := float64(maxFreq - minFreq)

	for i := range results {
		r := &results[i]

		recency := 1.0
		if recSpan > 0 {
			recency = r.Item.Recency().Sub(minRec).Seconds() / recSpan
		}

		frequency := 1.0
		if freqSpan > 0 {
			frequency = float64(r.Item.AccessCount-minFreq) / freqSpan
		}

		r.Score = c.weights.Importance*r.Item.Importance +
			c.weights.Recency*recency +
			c.weights.Frequency*frequency +
			c.weights.Similarity*float64(r.Similarity)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}

		return results[i].Item.Recency().After(results[j].Item.Recency())
	})
}

func (c *Coordinator) recentTiers() []memory.Tier {
	var out []memory.Tier
	for _, tier := range c.tiers {
		switch tier.Name() {
		case "working", "recent":
			out = append(out, tier)
		}
	}

	return out
}

func (c *Coordinator) emitRetrieved(ctx context.Context, hits int) {
	if c.publisher == nil {
		return
	}

	event := events.New(events.EventTypeMemoryRetrieved, "retrieval")
	event.Memory = &events.MemoryMeta{Hits: hits}

	if err := c.publisher.Publish(ctx, event); err != nil {
		c.logger.Warn("failed to publish retrieval event", zap.Error(err))
	}
}
