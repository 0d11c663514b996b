package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrNotFound is returned when an item doesn't exist in a tier.
var ErrNotFound = errors.New("item not found")

// ValidationError reports malformed store or retrieve input. The operation
// is rejected locally with no state change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// BackendUnavailable wraps a backing-store or provider failure after
// retries exhausted. Callers skip the affected backend for the operation
// and proceed in degraded mode with whatever remains.
type BackendUnavailable struct {
	Backend string
	Err     error
}

func (e *BackendUnavailable) Error() string {
	return fmt.Sprintf("%s backend unavailable: %v", e.Backend, e.Err)
}

func (e *BackendUnavailable) Unwrap() error {
	return e.Err
}

const (
	retryInitialInterval = 50 * time.Millisecond
	retryMaxAttempts     = 3
)

// WithRetry runs op with bounded exponential backoff. Validation errors and
// ErrNotFound are permanent and returned immediately; anything else is
// retried up to retryMaxAttempts times and then wrapped in
// BackendUnavailable under the given backend name.
func WithRetry(ctx context.Context, backend string, op func() error) error {
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}

		var verr *ValidationError
		if errors.As(err, &verr) || errors.Is(err, ErrNotFound) {
			return backoff.Permanent(err)
		}

		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryInitialInterval

	err := backoff.Retry(wrapped, backoff.WithContext(
		backoff.WithMaxRetries(bo, retryMaxAttempts), ctx))
	if err == nil {
		return nil
	}

	var verr *ValidationError
	if errors.As(err, &verr) || errors.Is(err, ErrNotFound) {
		return err
	}

	return &BackendUnavailable{Backend: backend, Err: err}
}
