// Package builtin provides the tools every strata deployment registers:
// memory search, memory store, and a clock.
package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/retrieval"
)

// MemorySearch searches the memory tiers through the retrieval coordinator.
type MemorySearch struct {
	coordinator *retrieval.Coordinator
}

// NewMemorySearch creates the memory_search tool.
func NewMemorySearch(coordinator *retrieval.Coordinator) *MemorySearch {
	return &MemorySearch{coordinator: coordinator}
}

// Name returns "memory_search".
func (t *MemorySearch) Name() string { return "memory_search" }

// Description describes the tool for the provider catalog.
func (t *MemorySearch) Description() string {
	return "Search long-term memory for items matching a free-text query."
}

// Category returns "memory".
func (t *MemorySearch) Category() string { return "memory" }

// Schema returns the argument schema.
func (t *MemorySearch) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Free-text query.",
			},
			"max_results": map[string]any{
				"type":    "integer",
				"minimum": 1,
				"maximum": 50,
			},
		},
		"required":             []string{"query"},
		"additionalProperties": false,
	}
}

// Execute runs a comprehensive search and renders the hits as an
// observation.
func (t *MemorySearch) Execute(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)

	maxResults := 0
	if n, ok := args["max_results"].(float64); ok {
		maxResults = int(n)
	}

	results, err := t.coordinator.Search(ctx, retrieval.Request{
		Query:      query,
		MaxResults: maxResults,
	})
	if err != nil {
		return "", fmt.Errorf("searching memory: %w", err)
	}

	if len(results) == 0 {
		return "no memories matched the query", nil
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. [%s, importance %.2f] %s\n",
			i+1, r.Item.Type, r.Item.Importance, r.Item.Content)
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

// MemoryStore writes a new item into the working tier.
type MemoryStore struct {
	tier memory.Tier
}

// NewMemoryStore creates the memory_store tool over the given entry tier.
func NewMemoryStore(tier memory.Tier) *MemoryStore {
	return &MemoryStore{tier: tier}
}

// Name returns "memory_store".
func (t *MemoryStore) Name() string { return "memory_store" }

// Description describes the tool for the provider catalog.
func (t *MemoryStore) Description() string {
	return "Store a new memory item with a type and an importance in [0,1]."
}

// Category returns "memory".
func (t *MemoryStore) Category() string { return "memory" }

// Schema returns the argument schema.
func (t *MemoryStore) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{
				"type":      "string",
				"minLength": 1,
			},
			"memory_type": map[string]any{
				"type": "string",
				"enum": []string{"episodic", "semantic", "procedural", "working"},
			},
			"importance": map[string]any{
				"type":    "number",
				"minimum": 0,
				"maximum": 1,
			},
		},
		"required":             []string{"content"},
		"additionalProperties": false,
	}
}

// Execute stores the item and reports its id.
func (t *MemoryStore) Execute(ctx context.Context, args map[string]any) (string, error) {
	content, _ := args["content"].(string)

	typ := memory.TypeEpisodic
	if s, ok := args["memory_type"].(string); ok && s != "" {
		typ = memory.Type(s)
	}

	importance := 0.5
	if f, ok := args["importance"].(float64); ok {
		importance = f
	}

	item, err := memory.NewItem(content, typ, importance)
	if err != nil {
		return "", err
	}

	if _, err := t.tier.Store(ctx, item); err != nil {
		return "", fmt.Errorf("storing memory: %w", err)
	}

	return fmt.Sprintf("stored memory %s", item.ID), nil
}

// Clock reports the current time.
type Clock struct {
	now func() time.Time
}

// NewClock creates the clock tool. A nil now falls back to time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}

	return &Clock{now: now}
}

// Name returns "clock".
func (t *Clock) Name() string { return "clock" }

// Description describes the tool for the provider catalog.
func (t *Clock) Description() string {
	return "Report the current date and time, optionally in a named timezone."
}

// Category returns "time".
func (t *Clock) Category() string { return "information" }

// Schema returns the argument schema.
func (t *Clock) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tz": map[string]any{
				"type":        "string",
				"description": "IANA timezone name, defaults to UTC.",
			},
		},
		"additionalProperties": false,
	}
}

// Execute reports the time in the requested zone.
func (t *Clock) Execute(_ context.Context, args map[string]any) (string, error) {
	loc := time.UTC
	if tz, ok := args["tz"].(string); ok && tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			return "", fmt.Errorf("unknown timezone %q: %w", tz, err)
		}
		loc = parsed
	}

	return t.now().In(loc).Format(time.RFC3339), nil
}
