// Package publisher streams generated records to Kafka.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"github.com/opensource-finance/fraudgen/internal/domain"
)

// RetryConfig controls publish retries.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

// RetryConfigFrom extracts the retry settings of cfg, filling defaults.
func RetryConfigFrom(cfg domain.KafkaConfig) RetryConfig {
	rc := RetryConfig{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		Jitter:      cfg.RetryJitter,
	}
	if rc.MaxAttempts <= 0 {
		rc.MaxAttempts = 5
	}
	if rc.BaseDelay <= 0 {
		rc.BaseDelay = 100 * time.Millisecond
	}
	if rc.MaxDelay <= 0 {
		rc.MaxDelay = 10 * time.Second
	}
	return rc
}

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes JSON records to one writer per topic.
type KafkaPublisher struct {
	writers map[string]messageWriter
	retry   RetryConfig
}

// NewKafkaPublisher creates writers for the transaction and alert topics.
func NewKafkaPublisher(cfg domain.KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}

	writers := make(map[string]messageWriter)
	for _, topic := range []string{cfg.TransactionTopic, cfg.AlertTopic} {
		if topic == "" {
			continue
		}
		writers[topic] = &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		}
	}

	return &KafkaPublisher{
		writers: writers,
		retry:   RetryConfigFrom(cfg),
	}, nil
}

// Message is one keyed record.
type Message struct {
	Key   string
	Value any
}

// Publish writes msgs to topic as one batch. Keys decide the partition, so
// records sharing a key keep their order.
func (p *KafkaPublisher) Publish(ctx context.Context, runID, topic string, msgs ...Message) error {
	writer, ok := p.writers[topic]
	if !ok {
		return fmt.Errorf("no writer configured for topic %s", topic)
	}

	batch := make([]kafka.Message, len(msgs))
	for i, m := range msgs {
		data, err := json.Marshal(m.Value)
		if err != nil {
			return fmt.Errorf("error marshaling message: %w", err)
		}
		batch[i] = kafka.Message{
			Key:     []byte(m.Key),
			Value:   data,
			Headers: []kafka.Header{{Key: "run_id", Value: []byte(runID)}},
		}
	}

	return p.publishWithRetry(ctx, writer, batch, topic)
}

func (p *KafkaPublisher) publishWithRetry(ctx context.Context, writer messageWriter, batch []kafka.Message, topic string) error {
	var lastErr error

	for attempt := 0; attempt < p.retry.MaxAttempts; attempt++ {
		err := writer.WriteMessages(ctx, batch...)
		if err == nil {
			if attempt > 0 {
				slog.Info("kafka batch published after retry",
					"topic", topic,
					"attempts", attempt+1,
				)
			}
			return nil
		}

		lastErr = err
		if attempt == p.retry.MaxAttempts-1 {
			break
		}

		delay := p.backoff(attempt)
		slog.Warn("kafka publish failed, retrying",
			"topic", topic,
			"attempt", attempt+1,
			"max_attempts", p.retry.MaxAttempts,
			"delay", delay,
			"error", err,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}

	return fmt.Errorf("failed to publish to topic '%s' after %d attempts: %w",
		topic, p.retry.MaxAttempts, lastErr)
}

// backoff returns the delay before retry attempt+1: exponential from
// BaseDelay, capped at MaxDelay, with up to ±15% jitter.
func (p *KafkaPublisher) backoff(attempt int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * p.retry.BaseDelay
	if delay > p.retry.MaxDelay {
		delay = p.retry.MaxDelay
	}

	if p.retry.Jitter {
		jitter := time.Duration(rand.Float64() * float64(delay) * 0.3)
		delay = delay + jitter - time.Duration(float64(delay)*0.15)
	}
	return delay
}

// Close closes every writer.
func (p *KafkaPublisher) Close() error {
	var firstErr error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close writer for %s: %w", topic, err)
		}
	}
	return firstErr
}
