package tools

import "fmt"

// Authorizer gates tool calls before they execute.
type Authorizer interface {
	// Authorize returns an error when the call must not proceed.
	Authorize(tool string, args map[string]any) error

	// Sanitize may rewrite arguments (strip secrets, clamp limits)
	// before validation and execution.
	Sanitize(tool string, args map[string]any) map[string]any
}

// AllowAll authorizes every call unchanged.
type AllowAll struct{}

// Authorize always permits the call.
func (AllowAll) Authorize(string, map[string]any) error { return nil }

// Sanitize returns the arguments unchanged.
func (AllowAll) Sanitize(_ string, args map[string]any) map[string]any { return args }

// Allowlist authorizes only the named tools.
type Allowlist map[string]bool

// Authorize permits only tools present in the list.
func (a Allowlist) Authorize(tool string, _ map[string]any) error {
	if !a[tool] {
		return fmt.Errorf("tool %s is not allowlisted", tool)
	}

	return nil
}

// Sanitize returns the arguments unchanged.
func (a Allowlist) Sanitize(_ string, args map[string]any) map[string]any { return args }
