package events

import "context"

// Publisher publishes lifecycle events to an event stream backend.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}
