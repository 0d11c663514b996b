package tools

import "fmt"

// FailureKind classifies why a tool call failed.
type FailureKind string

const (
	// FailureValidation marks unknown tools or schema-invalid arguments.
	FailureValidation FailureKind = "validation"

	// FailurePermission marks calls the authorizer refused.
	FailurePermission FailureKind = "permission"

	// FailureExecution marks tools that ran and returned an error.
	FailureExecution FailureKind = "execution"

	// FailureTimeout marks tools that exceeded the execution bound.
	FailureTimeout FailureKind = "timeout"
)

// Failure describes a failed tool call. The reasoning loop records failures
// as observations rather than aborting the session.
type Failure struct {
	Tool string
	Kind FailureKind
	Err  error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("tool %s %s failure: %v", f.Tool, f.Kind, f.Err)
}

// Unwrap returns the underlying error.
func (f *Failure) Unwrap() error {
	return f.Err
}
