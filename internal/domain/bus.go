package domain

import (
	"context"
)

// EventBus defines the interface for streaming generated records.
// Supports Go channels (in-process) or NATS.
// All methods require runID so consumers can follow a single run.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, runID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, runID string, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	RunID     string            `json:"runId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `json:"type" env:"TYPE"`

	// Channel settings
	ChannelBufferSize int `json:"channelBufferSize" env:"CHANNEL_BUFFER_SIZE"`

	// NATS settings
	NATSUrl           string `json:"natsUrl" env:"NATS_URL"`
	NATSToken         string `json:"-" env:"NATS_TOKEN"`
	NATSMaxReconnects int    `json:"natsMaxReconnects" env:"NATS_MAX_RECONNECTS"`
	NATSReconnectWait int    `json:"natsReconnectWait" env:"NATS_RECONNECT_WAIT"` // seconds
}

// Standard topic names for streamed datasets.
const (
	TopicTransactionGenerated = "transaction.generated"
	TopicAlertRaised          = "alert.raised"
	TopicRunCompleted         = "run.completed"
)
