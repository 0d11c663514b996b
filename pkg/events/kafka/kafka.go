// Package kafka publishes lifecycle events to a Kafka topic as JSON
// messages keyed by event type.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/papercomputeco/strata/pkg/events"
)

// Config holds configuration for the Kafka publisher.
type Config struct {
	// Brokers is the list of bootstrap broker addresses.
	Brokers []string

	// Topic is the destination topic.
	Topic string

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// Publisher implements events.Publisher over a Kafka topic.
type Publisher struct {
	writer *kafkago.Writer
	logger *zap.Logger
}

// NewPublisher creates a Kafka-backed events publisher. The connection is
// established lazily on the first publish.
func NewPublisher(c Config) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker address is required")
	}

	if c.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(c.Brokers...),
		Topic:        c.Topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
	}

	c.Logger.Info("kafka events publisher initialized",
		zap.Strings("brokers", c.Brokers),
		zap.String("topic", c.Topic),
	)

	return &Publisher{writer: writer, logger: c.Logger}, nil
}

// Publish marshals the event to JSON and writes it keyed by event type so
// consumers see per-type ordering.
func (p *Publisher) Publish(ctx context.Context, event *events.Event) error {
	if event == nil {
		return events.ErrNilEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event %s: %w", event.EventID, err)
	}

	if err := p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(event.EventType),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("publishing event %s: %w", event.EventID, err)
	}

	p.logger.Debug("published event",
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType),
	)

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
