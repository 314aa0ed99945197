package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/fraudgen/internal/bus"
	"github.com/opensource-finance/fraudgen/internal/cache"
	"github.com/opensource-finance/fraudgen/internal/domain"
	"github.com/opensource-finance/fraudgen/internal/export"
	"github.com/opensource-finance/fraudgen/internal/publisher"
	"github.com/opensource-finance/fraudgen/internal/repository"
)

func testDataset(n int) *domain.Dataset {
	ts := time.Date(2025, 7, 4, 10, 0, 0, 0, time.UTC)
	ds := &domain.Dataset{RunID: "run-sink", Seed: 9, CreatedAt: ts}
	ds.Users = []domain.User{{UserID: "user_00001", Country: domain.DefaultCountry, DateOfBirth: ts, RegistrationDate: ts}}
	for i := 0; i < n; i++ {
		ds.Transactions = append(ds.Transactions, domain.Transaction{
			TransactionID:    fmt.Sprintf("txn_%07d", i+1),
			CardID:           "card_user_00001_01",
			UserID:           "user_00001",
			MerchantCategory: domain.CategoryRetail,
			Amount:           float64(i + 1),
			Currency:         domain.DefaultCurrency,
			TransactionTime:  ts.Add(time.Duration(i) * time.Minute),
			Location:         domain.LocationAustin,
			FraudProbability: 0.1,
			CreatedAt:        ts,
		})
	}
	ds.Alerts = []domain.Alert{{AlertID: "alert_1", TransactionID: "txn_1", UserID: "user_00001", RiskLevel: domain.RiskLevelMedium, CreatedAt: ts}}
	ds.Summary = domain.Summary{Users: 1, Requested: n, Accepted: n, Attempts: n, AlertCount: 1}
	return ds
}

type fakePublisher struct {
	batches map[string][]int
	fail    bool
}

func (p *fakePublisher) Publish(ctx context.Context, runID, topic string, msgs ...publisher.Message) error {
	if p.fail {
		return errors.New("broker down")
	}
	if p.batches == nil {
		p.batches = make(map[string][]int)
	}
	p.batches[topic] = append(p.batches[topic], len(msgs))
	return nil
}

func TestBuild(t *testing.T) {
	cfg := domain.DefaultConfig()

	t.Run("CSVNeedsNothing", func(t *testing.T) {
		sinks, err := Build([]string{"csv"}, Deps{Config: cfg})
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if len(sinks) != 1 || sinks[0].Name() != domain.SinkCSV {
			t.Errorf("unexpected sinks: %v", sinks)
		}
	})

	t.Run("MissingDependency", func(t *testing.T) {
		for _, name := range []string{"sql", "bus", "kafka", "cache"} {
			if _, err := Build([]string{name}, Deps{Config: cfg}); err == nil {
				t.Errorf("expected error for %s without dependency", name)
			}
		}
	})

	t.Run("Unknown", func(t *testing.T) {
		if _, err := Build([]string{"s3"}, Deps{Config: cfg}); err == nil {
			t.Error("expected error for unknown sink")
		}
	})

	t.Run("Order", func(t *testing.T) {
		sinks, err := Build([]string{"cache", " csv"}, Deps{Config: cfg, Cache: cache.NewLRUCache(10)})
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if sinks[0].Name() != domain.SinkCache || sinks[1].Name() != domain.SinkCSV {
			t.Errorf("sinks out of order: %s, %s", sinks[0].Name(), sinks[1].Name())
		}
	})
}

func TestCSVSink(t *testing.T) {
	dir := t.TempDir()
	if err := WriteAll(context.Background(), []Sink{&CSVSink{Dir: dir}}, testDataset(3)); err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}
	for _, name := range export.Files {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func TestSQLSink(t *testing.T) {
	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "sink.db")})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ds := testDataset(2)
	if err := (&SQLSink{Repo: repo}).Write(context.Background(), ds); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	run, err := repo.GetRun(context.Background(), ds.RunID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.Summary.Accepted != 2 {
		t.Errorf("expected 2 accepted, got %d", run.Summary.Accepted)
	}
}

func TestBusSink(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	ctx := context.Background()
	ds := testDataset(4)

	var mu sync.Mutex
	counts := make(map[string]int)
	var wg sync.WaitGroup
	wg.Add(4 + 1 + 1)

	for _, topic := range []string{domain.TopicTransactionGenerated, domain.TopicAlertRaised, domain.TopicRunCompleted} {
		_, err := eventBus.Subscribe(ctx, ds.RunID, topic, func(ctx context.Context, msg *domain.Message) error {
			mu.Lock()
			counts[msg.Topic]++
			mu.Unlock()
			wg.Done()
			return nil
		})
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
	}

	if err := (&BusSink{Bus: eventBus}).Write(ctx, ds); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for messages")
	}

	mu.Lock()
	defer mu.Unlock()
	if counts[domain.TopicTransactionGenerated] != 4 || counts[domain.TopicAlertRaised] != 1 || counts[domain.TopicRunCompleted] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestKafkaSink(t *testing.T) {
	pub := &fakePublisher{}
	s := &KafkaSink{Publisher: pub, TransactionTopic: "txs", AlertTopic: "alerts"}

	if err := s.Write(context.Background(), testDataset(KafkaBatchSize+10)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := pub.batches["txs"]; len(got) != 2 || got[0] != KafkaBatchSize || got[1] != 10 {
		t.Errorf("expected batches [%d 10], got %v", KafkaBatchSize, got)
	}
	if got := pub.batches["alerts"]; len(got) != 1 || got[0] != 1 {
		t.Errorf("expected one alert batch, got %v", got)
	}

	pub.fail = true
	err := WriteAll(context.Background(), []Sink{s}, testDataset(1))
	if err == nil {
		t.Fatal("expected publish error")
	}
}

func TestCacheSink(t *testing.T) {
	lru := cache.NewLRUCache(100)
	defer lru.Close()

	ds := testDataset(3)
	if err := (&CacheSink{Cache: lru, TTL: time.Hour}).Write(context.Background(), ds); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	sig, err := lru.GetSignals(context.Background(), ds.RunID, "user_00001")
	if err != nil || sig == nil {
		t.Fatalf("expected signals, got %v (err %v)", sig, err)
	}
	if sig.TxnCount != 3 || sig.TotalAmount != 6 {
		t.Errorf("unexpected signals: %+v", sig)
	}
}
