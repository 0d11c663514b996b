// Package tools defines the tool contract and the executor the reasoning
// loop acts through. The executor validates arguments against each tool's
// JSON schema, enforces authorization, bounds execution time, and keeps
// per-tool call statistics.
package tools

import "context"

// Tool is one discrete capability the reasoning loop may invoke.
type Tool interface {
	// Name returns the unique tool name.
	Name() string

	// Description explains what the tool does, for the provider's tool
	// catalog.
	Description() string

	// Category groups related tools: information, computation,
	// filesystem, network, memory, or delegation.
	Category() string

	// Schema returns the JSON schema for the tool's arguments. An empty
	// schema skips validation.
	Schema() map[string]any

	// Execute runs the tool and returns its observation text.
	Execute(ctx context.Context, args map[string]any) (string, error)
}
