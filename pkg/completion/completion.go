// Package completion defines the provider contract the reasoning loop uses
// to think and decide. A provider turns a prompt plus assembled context into
// a Resolution: a thought and one decision about what to do next.
package completion

import (
	"context"
	"errors"
	"fmt"
)

// Decision is what the provider wants the loop to do next.
type Decision string

const (
	// DecisionRespond ends the session with a final answer.
	DecisionRespond Decision = "respond"

	// DecisionInvokeTool asks the loop to execute a tool.
	DecisionInvokeTool Decision = "invoke_tool"

	// DecisionDelegate routes a sub-prompt back through the provider.
	DecisionDelegate Decision = "delegate"
)

// ErrNoResolution indicates the provider produced no usable decision.
var ErrNoResolution = errors.New("provider returned no resolution")

// Request is one completion call.
type Request struct {
	// Prompt is the question or sub-prompt being reasoned about.
	Prompt string

	// Context is the assembled memory and tool context.
	Context string

	// Constraints are hard instructions the provider must honor.
	Constraints []string
}

// Resolution is the provider's decision for one iteration.
type Resolution struct {
	// Thought is the provider's reasoning trace for this step.
	Thought string `json:"thought"`

	// Decision selects the next action.
	Decision Decision `json:"decision"`

	// ToolName names the tool when Decision is invoke_tool.
	ToolName string `json:"tool,omitempty"`

	// Args are the tool arguments when Decision is invoke_tool, or the
	// sub-prompt parameters when delegating.
	Args map[string]any `json:"args,omitempty"`

	// Text is the final answer when Decision is respond, or the
	// sub-prompt when Decision is delegate.
	Text string `json:"text,omitempty"`
}

// Validate checks the resolution is internally consistent.
func (r *Resolution) Validate() error {
	switch r.Decision {
	case DecisionRespond:
		if r.Text == "" {
			return fmt.Errorf("respond decision requires text")
		}
	case DecisionInvokeTool:
		if r.ToolName == "" {
			return fmt.Errorf("invoke_tool decision requires a tool name")
		}
	case DecisionDelegate:
		if r.Text == "" {
			return fmt.Errorf("delegate decision requires a sub-prompt")
		}
	default:
		return fmt.Errorf("unknown decision %q", r.Decision)
	}

	return nil
}

// Provider produces resolutions for the reasoning loop.
type Provider interface {
	// Name returns the canonical provider name (e.g. "ollama", "static").
	Name() string

	// Complete runs one think/decide step.
	Complete(ctx context.Context, req Request) (*Resolution, error)

	// Close releases resources held by the provider.
	Close() error
}
