package domain

import "context"

// Topics published by the pipeline for external audit consumers.
const (
	TopicPhase = "carrierwatch.pipeline.phase"
	TopicRule  = "carrierwatch.ledger.rule"
)

// Event is a pipeline audit message.
type Event struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp int64             `json:"timestamp"` // unix nanos
}

// EventHandler processes a received event.
type EventHandler func(ctx context.Context, ev *Event) error

// EventBus publishes pipeline audit events. Publishing is best-effort:
// a slow or absent consumer never blocks the batch run.
type EventBus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) (Subscription, error)
	Ping(ctx context.Context) error
	Close() error
}

// Subscription represents an active topic subscription.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}
