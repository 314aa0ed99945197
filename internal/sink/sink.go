// Package sink delivers finished datasets to their configured destinations.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opensource-finance/fraudgen/internal/bus"
	"github.com/opensource-finance/fraudgen/internal/cache"
	"github.com/opensource-finance/fraudgen/internal/domain"
	"github.com/opensource-finance/fraudgen/internal/export"
	"github.com/opensource-finance/fraudgen/internal/publisher"
)

// Sink receives a complete dataset.
type Sink interface {
	Name() string
	Write(ctx context.Context, ds *domain.Dataset) error
}

// Deps are the shared components sinks write through. Only the ones the
// selected sinks need must be set.
type Deps struct {
	Repo   domain.Repository
	Bus    domain.EventBus
	Cache  domain.Cache
	Kafka  KafkaPublisher
	Config *domain.Config
}

// KafkaPublisher is the part of publisher.KafkaPublisher the Kafka sink uses.
type KafkaPublisher interface {
	Publish(ctx context.Context, runID, topic string, msgs ...publisher.Message) error
}

// Build returns the sinks named in names, in order.
func Build(names []string, deps Deps) ([]Sink, error) {
	cfg := deps.Config
	if cfg == nil {
		cfg = domain.DefaultConfig()
	}

	sinks := make([]Sink, 0, len(names))
	for _, name := range names {
		switch strings.TrimSpace(name) {
		case domain.SinkCSV:
			sinks = append(sinks, &CSVSink{Dir: cfg.Output.Dir})
		case domain.SinkSQL:
			if deps.Repo == nil {
				return nil, fmt.Errorf("sink %s: no repository", name)
			}
			sinks = append(sinks, &SQLSink{Repo: deps.Repo})
		case domain.SinkBus:
			if deps.Bus == nil {
				return nil, fmt.Errorf("sink %s: no event bus", name)
			}
			sinks = append(sinks, &BusSink{Bus: deps.Bus})
		case domain.SinkKafka:
			if deps.Kafka == nil {
				return nil, fmt.Errorf("sink %s: no kafka publisher", name)
			}
			sinks = append(sinks, &KafkaSink{
				Publisher:        deps.Kafka,
				TransactionTopic: cfg.Kafka.TransactionTopic,
				AlertTopic:       cfg.Kafka.AlertTopic,
			})
		case domain.SinkCache:
			if deps.Cache == nil {
				return nil, fmt.Errorf("sink %s: no cache", name)
			}
			sinks = append(sinks, &CacheSink{Cache: deps.Cache, TTL: cfg.Cache.SignalsTTL})
		default:
			return nil, fmt.Errorf("unknown sink: %q", name)
		}
	}
	return sinks, nil
}

// WriteAll writes ds to every sink in order and stops at the first error.
func WriteAll(ctx context.Context, sinks []Sink, ds *domain.Dataset) error {
	for _, s := range sinks {
		start := time.Now()
		if err := s.Write(ctx, ds); err != nil {
			return fmt.Errorf("sink %s: %w", s.Name(), err)
		}
		slog.Info("dataset written",
			"run_id", ds.RunID,
			"sink", s.Name(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return nil
}

// CSVSink writes the six tables into Dir.
type CSVSink struct {
	Dir string
}

func (s *CSVSink) Name() string { return domain.SinkCSV }

func (s *CSVSink) Write(ctx context.Context, ds *domain.Dataset) error {
	return export.WriteDir(s.Dir, ds)
}

// SQLSink stores the dataset in the repository.
type SQLSink struct {
	Repo domain.Repository
}

func (s *SQLSink) Name() string { return domain.SinkSQL }

func (s *SQLSink) Write(ctx context.Context, ds *domain.Dataset) error {
	return s.Repo.SaveDataset(ctx, ds)
}

// BusSink publishes every transaction and alert, then the run summary.
type BusSink struct {
	Bus domain.EventBus
}

func (s *BusSink) Name() string { return domain.SinkBus }

func (s *BusSink) Write(ctx context.Context, ds *domain.Dataset) error {
	for i := range ds.Transactions {
		if err := bus.PublishJSON(ctx, s.Bus, ds.RunID, domain.TopicTransactionGenerated, &ds.Transactions[i]); err != nil {
			return err
		}
	}
	for i := range ds.Alerts {
		if err := bus.PublishJSON(ctx, s.Bus, ds.RunID, domain.TopicAlertRaised, &ds.Alerts[i]); err != nil {
			return err
		}
	}
	return bus.PublishJSON(ctx, s.Bus, ds.RunID, domain.TopicRunCompleted, ds)
}

// KafkaBatchSize bounds the records sent per write.
const KafkaBatchSize = 500

// KafkaSink streams transactions keyed by card and alerts keyed by user.
type KafkaSink struct {
	Publisher        KafkaPublisher
	TransactionTopic string
	AlertTopic       string
}

func (s *KafkaSink) Name() string { return domain.SinkKafka }

func (s *KafkaSink) Write(ctx context.Context, ds *domain.Dataset) error {
	txs := make([]publisher.Message, len(ds.Transactions))
	for i := range ds.Transactions {
		txs[i] = publisher.Message{Key: ds.Transactions[i].CardID, Value: &ds.Transactions[i]}
	}
	if err := s.publish(ctx, ds.RunID, s.TransactionTopic, txs); err != nil {
		return err
	}

	if s.AlertTopic == "" {
		return nil
	}
	alerts := make([]publisher.Message, len(ds.Alerts))
	for i := range ds.Alerts {
		alerts[i] = publisher.Message{Key: ds.Alerts[i].UserID, Value: &ds.Alerts[i]}
	}
	return s.publish(ctx, ds.RunID, s.AlertTopic, alerts)
}

func (s *KafkaSink) publish(ctx context.Context, runID, topic string, msgs []publisher.Message) error {
	for start := 0; start < len(msgs); start += KafkaBatchSize {
		end := min(start+KafkaBatchSize, len(msgs))
		if err := s.Publisher.Publish(ctx, runID, topic, msgs[start:end]...); err != nil {
			return err
		}
	}
	return nil
}

// CacheSink warms per-user signals for downstream scorers.
type CacheSink struct {
	Cache domain.Cache
	TTL   time.Duration
}

func (s *CacheSink) Name() string { return domain.SinkCache }

func (s *CacheSink) Write(ctx context.Context, ds *domain.Dataset) error {
	n, err := cache.Warm(ctx, s.Cache, ds.RunID, ds.Transactions, s.TTL)
	if err != nil {
		return err
	}
	slog.Debug("signals warmed", "run_id", ds.RunID, "users", n)
	return nil
}
