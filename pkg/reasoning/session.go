// Package reasoning runs the bounded think/decide/act/observe/learn loop
// that answers a query using the memory tiers and the tool executor.
package reasoning

import (
	"time"

	"github.com/google/uuid"
)

// State is a session's terminal state.
type State string

const (
	// StateRunning marks a session still inside the loop.
	StateRunning State = "running"

	// StateCompleted marks a session that produced a final answer.
	StateCompleted State = "completed"

	// StateIterationLimit marks a session that hit the iteration cap
	// without a respond decision.
	StateIterationLimit State = "iteration_limit_reached"

	// StateError marks a session terminated by a provider error or
	// cancellation.
	StateError State = "error"
)

// Action is what one iteration did.
type Action string

const (
	// ActionRespond produced the final answer.
	ActionRespond Action = "respond"

	// ActionInvokeTool executed a tool.
	ActionInvokeTool Action = "invoke_tool"

	// ActionDelegate routed a sub-prompt back to the provider.
	ActionDelegate Action = "delegate"
)

// Iteration is one loop step. Iterations are append-only: once recorded
// they are never rewritten.
type Iteration struct {
	Index       int            `json:"index"`
	Thought     string         `json:"thought"`
	Action      Action         `json:"action"`
	Tool        string         `json:"tool,omitempty"`
	Args        map[string]any `json:"args,omitempty"`
	Observation string         `json:"observation"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Session is one bounded execution of the loop for a single query.
type Session struct {
	ID          string      `json:"id"`
	Query       string      `json:"query"`
	Iterations  []Iteration `json:"iterations"`
	State       State       `json:"state"`
	Answer      string      `json:"answer,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt time.Time   `json:"completed_at,omitzero"`
}

// NewSession starts a session record for the query.
func NewSession(query string, now time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Query:     query,
		State:     StateRunning,
		StartedAt: now,
	}
}

// Append records one finished iteration.
func (s *Session) Append(it Iteration) {
	it.Index = len(s.Iterations) + 1
	s.Iterations = append(s.Iterations, it)
}

// Last returns the most recent iteration, or a zero value for an empty
// session.
func (s *Session) Last() Iteration {
	if len(s.Iterations) == 0 {
		return Iteration{}
	}

	return s.Iterations[len(s.Iterations)-1]
}

// Duration reports how long the session ran.
func (s *Session) Duration() time.Duration {
	if s.CompletedAt.IsZero() {
		return 0
	}

	return s.CompletedAt.Sub(s.StartedAt)
}
