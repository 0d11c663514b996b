// Package events defines transport-neutral lifecycle event payloads for
// memory and reasoning activity, and the publisher contract for shipping
// them to an event stream backend.
package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeMemoryStored is emitted after an item is stored in a tier.
	EventTypeMemoryStored = "strata.memory.stored"

	// EventTypeMemoryRetrieved is emitted after a retrieval request completes.
	EventTypeMemoryRetrieved = "strata.memory.retrieved"

	// EventTypeMemoryConsolidated is emitted after a consolidation pass.
	EventTypeMemoryConsolidated = "strata.memory.consolidated"

	// EventTypeReasoningIteration is emitted after each reasoning iteration.
	EventTypeReasoningIteration = "strata.reasoning.iteration"

	// EventTypeReasoningCompleted is emitted when a reasoning session ends.
	EventTypeReasoningCompleted = "strata.reasoning.completed"
)

// Event is a transport-neutral lifecycle event. Exactly one of the Meta
// fields is set, matching the event type.
type Event struct {
	SchemaVersion int            `json:"schema_version"`
	EventType     string         `json:"event_type"`
	EventID       string         `json:"event_id"`
	EmittedAt     time.Time      `json:"emitted_at"`
	Source        EventSource    `json:"source"`
	Memory        *MemoryMeta    `json:"memory,omitempty"`
	Reasoning     *ReasoningMeta `json:"reasoning,omitempty"`
}

// EventSource identifies where the event originated.
type EventSource struct {
	Project   string `json:"project,omitempty"`
	Component string `json:"component"`
}

// MemoryMeta captures memory lifecycle metadata.
type MemoryMeta struct {
	ItemID     string  `json:"item_id,omitempty"`
	Tier       string  `json:"tier,omitempty"`
	MemoryType string  `json:"memory_type,omitempty"`
	Importance float64 `json:"importance,omitempty"`

	// Promoted maps tier names to promotion counts for consolidation
	// events.
	Promoted map[string]int `json:"promoted,omitempty"`

	// Hits is the result count for retrieval events.
	Hits int `json:"hits,omitempty"`
}

// ReasoningMeta captures reasoning session metadata.
type ReasoningMeta struct {
	SessionID  string `json:"session_id"`
	Iteration  int    `json:"iteration,omitempty"`
	State      string `json:"state,omitempty"`
	Tool       string `json:"tool,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// New creates an event envelope with a fresh id and the current time.
func New(eventType, component string) *Event {
	return &Event{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        EventSource{Component: component},
	}
}
