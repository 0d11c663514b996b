// Package memory defines the shared memory item model and the tier contract
// for the strata system.
//
// Items are immutable after creation: only access metadata (AccessCount,
// LastAccessed) and tier membership may change. Promotion between tiers
// copies an item; it never moves it. Each tier owns its storage exclusively
// and copies correlate only by id.
package memory

import (
	"time"

	"github.com/google/uuid"
)

// TimeLayout is the fixed-width UTC layout tiers persist timestamps in.
// RFC3339Nano drops trailing fractional zeros, which mis-orders
// lexicographic TEXT comparison of stored timestamps.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// Type classifies a memory item.
type Type string

const (
	// TypeEpisodic marks memories of specific interactions and events.
	TypeEpisodic Type = "episodic"

	// TypeSemantic marks distilled knowledge and facts.
	TypeSemantic Type = "semantic"

	// TypeProcedural marks learned procedures and strategies.
	TypeProcedural Type = "procedural"

	// TypeWorking marks transient items scoped to the current window.
	TypeWorking Type = "working"
)

// ValidTypes is the set of allowed memory types.
var ValidTypes = map[Type]bool{
	TypeEpisodic:   true,
	TypeSemantic:   true,
	TypeProcedural: true,
	TypeWorking:    true,
}

// Item is one remembered unit of content. The id is assigned centrally by
// NewItem and is never reused; tiers must treat it as the sole identity key.
type Item struct {
	ID           string            `json:"id"`
	Content      string            `json:"content"`
	Type         Type              `json:"memory_type"`
	Importance   float64           `json:"importance"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Source       string            `json:"source,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	AccessCount  int               `json:"access_count"`
	LastAccessed time.Time         `json:"last_accessed,omitzero"`
	Embedding    []float32         `json:"embedding,omitempty"`
}

// NewItem creates an item with a freshly assigned id. This is the only place
// ids are minted, which makes id collisions structurally impossible.
func NewItem(content string, typ Type, importance float64) (*Item, error) {
	item := &Item{
		ID:         uuid.NewString(),
		Content:    content,
		Type:       typ,
		Importance: importance,
		CreatedAt:  time.Now().UTC(),
	}

	if err := item.Validate(); err != nil {
		return nil, err
	}

	return item, nil
}

// Validate checks the item against the store contract.
func (i *Item) Validate() error {
	if i.ID == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}

	if i.Content == "" {
		return &ValidationError{Field: "content", Reason: "must not be empty"}
	}

	if !ValidTypes[i.Type] {
		return &ValidationError{Field: "memory_type", Reason: "unknown type " + string(i.Type)}
	}

	if i.Importance < 0 || i.Importance > 1 {
		return &ValidationError{Field: "importance", Reason: "must be in [0,1]"}
	}

	return nil
}

// Touch records one access at the given time.
func (i *Item) Touch(now time.Time) {
	i.AccessCount++
	i.LastAccessed = now
}

// Clone returns a deep copy. Tiers hand out and retain clones so that no
// mutable state is shared across tier boundaries.
func (i *Item) Clone() *Item {
	out := *i

	if i.Metadata != nil {
		out.Metadata = make(map[string]string, len(i.Metadata))
		for k, v := range i.Metadata {
			out.Metadata[k] = v
		}
	}

	if i.Embedding != nil {
		out.Embedding = make([]float32, len(i.Embedding))
		copy(out.Embedding, i.Embedding)
	}

	return &out
}

// Recency returns the most recent of LastAccessed and CreatedAt. Ranking
// treats an item that was never accessed as recent as its creation.
func (i *Item) Recency() time.Time {
	if i.LastAccessed.After(i.CreatedAt) {
		return i.LastAccessed
	}

	return i.CreatedAt
}
