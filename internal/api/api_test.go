package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/fraudgen/internal/cache"
	"github.com/opensource-finance/fraudgen/internal/domain"
	"github.com/opensource-finance/fraudgen/internal/metrics"
	"github.com/opensource-finance/fraudgen/internal/pipeline"
	"github.com/opensource-finance/fraudgen/internal/repository"
	"github.com/opensource-finance/fraudgen/internal/sink"
)

var clock = time.Date(2025, 8, 15, 18, 0, 0, 0, time.UTC)

// createTestServer creates a server backed by a temporary SQLite database
// and an in-memory cache that is warmed on every generated dataset.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	lru := cache.NewLRUCache(1000)
	t.Cleanup(func() { lru.Close() })

	defaults := domain.DefaultConfig().Generation
	defaults.Users = 30
	defaults.Merchants = 15
	defaults.Transactions = 200

	cfg := domain.ServerConfig{
		Host:            "localhost",
		Port:            8080,
		ReadTimeout:     30,
		WriteTimeout:    30,
		MaxTransactions: 1000,
		MaxUsers:        500,
		MaxMerchants:    200,
	}
	deps := Deps{
		Repo:     repo,
		Cache:    lru,
		Pipeline: pipeline.New(pipeline.WithClock(func() time.Time { return clock })),
		Sinks:    []sink.Sink{&sink.CacheSink{Cache: lru, TTL: time.Hour}},
		Defaults: defaults,
	}
	return NewServer(cfg, deps, metrics.New(), "test-v1")
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	return rr
}

func createDataset(t *testing.T, s *Server, body any) DatasetResponse {
	t.Helper()

	rr := do(t, s, http.MethodPost, "/datasets", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp DatasetResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return resp
}

func TestCreateDataset(t *testing.T) {
	server := createTestServer(t)

	t.Run("Defaults", func(t *testing.T) {
		resp := createDataset(t, server, nil)
		if resp.RunID == "" {
			t.Error("expected run id")
		}
		if resp.Seed != 42 {
			t.Errorf("expected default seed 42, got %d", resp.Seed)
		}
		if resp.Summary.Users != 30 || resp.Summary.Requested != 200 {
			t.Errorf("defaults not applied: %+v", resp.Summary)
		}
		if resp.Metadata.Version != "test-v1" {
			t.Errorf("expected version test-v1, got %s", resp.Metadata.Version)
		}
	})

	t.Run("Overrides", func(t *testing.T) {
		resp := createDataset(t, server, map[string]any{"seed": 7, "transactions": 50, "checks": true})
		if resp.Seed != 7 || resp.Summary.Requested != 50 {
			t.Errorf("overrides not applied: %+v", resp)
		}
		if resp.Summary.ChecksFailed != 0 {
			t.Errorf("expected checks to pass, %d failed", resp.Summary.ChecksFailed)
		}
	})

	t.Run("Validation", func(t *testing.T) {
		tests := []struct {
			name string
			body any
			code int
		}{
			{"OverLimit", map[string]any{"transactions": 5000}, http.StatusBadRequest},
			{"TooManyUsers", map[string]any{"users": 1000000000, "transactions": 0}, http.StatusBadRequest},
			{"TooManyMerchants", map[string]any{"merchants": 201}, http.StatusBadRequest},
			{"AttemptMultiplierOverLimit", map[string]any{"attemptMultiplier": 1000000}, http.StatusBadRequest},
			{"WorkersOverLimit", map[string]any{"workers": 10000}, http.StatusBadRequest},
			{"NegativeTransactions", map[string]any{"transactions": -1}, http.StatusBadRequest},
			{"NoUsers", map[string]any{"users": 0}, http.StatusBadRequest},
			{"ReversedWindow", map[string]any{"start": "2025-05-01", "end": "2025-04-01"}, http.StatusUnprocessableEntity},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rr := do(t, server, http.MethodPost, "/datasets", tt.body)
				if rr.Code != tt.code {
					t.Errorf("expected %d, got %d: %s", tt.code, rr.Code, rr.Body.String())
				}
			})
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/datasets", strings.NewReader("{not json"))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})
}

func TestDatasetRoutes(t *testing.T) {
	server := createTestServer(t)
	resp := createDataset(t, server, map[string]any{"transactions": 300})
	base := "/datasets/" + resp.RunID

	t.Run("GetDataset", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, base, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		var ds domain.Dataset
		json.Unmarshal(rr.Body.Bytes(), &ds)
		if ds.Summary.Accepted != resp.Summary.Accepted {
			t.Errorf("summary mismatch: %+v vs %+v", ds.Summary, resp.Summary)
		}
	})

	t.Run("ListDatasets", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, "/datasets", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), resp.RunID) {
			t.Error("expected run in listing")
		}
	})

	var tx domain.Transaction
	t.Run("GetTransaction", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, base+"/transactions/txn_0000001", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &tx); err != nil {
			t.Fatalf("failed to parse transaction: %v", err)
		}
		if tx.TransactionID != "txn_0000001" || tx.SecondsSincePrevTx != nil {
			t.Errorf("unexpected first transaction: %+v", tx)
		}
	})

	t.Run("CardTransactionsAndVelocity", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, base+"/cards/"+tx.CardID+"/transactions", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		var list struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &list)
		if list.Count < 1 {
			t.Errorf("expected at least one transaction for %s", tx.CardID)
		}

		at := tx.TransactionTime.Format(time.RFC3339)
		rr = do(t, server, http.MethodGet, base+"/cards/"+tx.CardID+"/velocity?window=60&at="+at, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var v VelocityResponse
		json.Unmarshal(rr.Body.Bytes(), &v)
		if v.Count < 1 || v.WindowSeconds != 60 {
			t.Errorf("expected the transaction itself to count, got %+v", v)
		}

		for _, window := range []string{"-5", "0", "9223372037", "31708800"} {
			rr = do(t, server, http.MethodGet, base+"/cards/"+tx.CardID+"/velocity?window="+window, nil)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("window %s: expected 400, got %d", window, rr.Code)
			}
		}

		rr = do(t, server, http.MethodGet, base+"/cards/"+tx.CardID+"/velocity?window=31622400", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected a one-year window to be accepted, got %d", rr.Code)
		}
	})

	t.Run("Alerts", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, base+"/alerts?level=high", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		var list struct {
			Alerts []domain.Alert `json:"alerts"`
		}
		json.Unmarshal(rr.Body.Bytes(), &list)
		for _, a := range list.Alerts {
			if a.RiskLevel != domain.RiskLevelHigh {
				t.Errorf("filter leaked %s alert", a.RiskLevel)
			}
		}

		rr = do(t, server, http.MethodGet, base+"/alerts?level=critical", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for unknown level, got %d", rr.Code)
		}
	})

	t.Run("PointsAndSignals", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, base+"/points/"+tx.UserID, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}

		rr = do(t, server, http.MethodGet, base+"/signals/"+tx.UserID, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		var sig domain.Signals
		json.Unmarshal(rr.Body.Bytes(), &sig)
		if sig.TxnCount < 1 {
			t.Errorf("expected warmed signals, got %+v", sig)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		for _, path := range []string{
			"/datasets/missing",
			base + "/transactions/txn_9999999",
			base + "/points/user_99999",
			base + "/signals/user_99999",
		} {
			rr := do(t, server, http.MethodGet, path, nil)
			if rr.Code != http.StatusNotFound {
				t.Errorf("%s: expected 404, got %d", path, rr.Code)
			}
		}
	})
}

func TestHealthEndpoints(t *testing.T) {
	server := createTestServer(t)

	rr := do(t, server, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
	var resp map[string]string
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["status"] != "healthy" {
		t.Errorf("expected healthy, got %s", resp["status"])
	}
	if resp["version"] != "test-v1" {
		t.Errorf("expected version test-v1, got %s", resp["version"])
	}

	rr = do(t, server, http.MethodGet, "/ready", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := createTestServer(t)
	do(t, server, http.MethodGet, "/health", nil)

	rr := do(t, server, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `fraudgen_http_requests_total{method="GET",route="/health",status="200"} 1`) {
		t.Errorf("expected request counter for /health, got:\n%s", rr.Body.String())
	}
}

func TestNoRepository(t *testing.T) {
	server := NewServer(domain.ServerConfig{}, Deps{}, nil, "test-v1")

	rr := do(t, server, http.MethodGet, "/ready", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rr.Code)
	}
	rr = do(t, server, http.MethodPost, "/datasets", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rr.Code)
	}
}

func TestTracingHeaders(t *testing.T) {
	server := createTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Header().Get(RequestIDHeader) != "req-123" {
		t.Errorf("expected request id echoed, got %q", rr.Header().Get(RequestIDHeader))
	}
	// Without a tracer provider the trace id falls back to the request id.
	if rr.Header().Get(TraceIDHeader) != "req-123" {
		t.Errorf("expected trace id req-123, got %q", rr.Header().Get(TraceIDHeader))
	}
}

func TestDefaultLimits(t *testing.T) {
	h := NewHandler(Deps{}, domain.ServerConfig{MaxUsers: 10}, "test-v1")
	def := domain.DefaultConfig().Server

	if h.limits.MaxUsers != 10 {
		t.Errorf("expected explicit MaxUsers 10, got %d", h.limits.MaxUsers)
	}
	if h.limits.MaxTransactions != def.MaxTransactions || h.limits.MaxMerchants != def.MaxMerchants ||
		h.limits.MaxAttemptMultiplier != def.MaxAttemptMultiplier || h.limits.MaxWorkers != def.MaxWorkers {
		t.Errorf("unset limits should take defaults, got %+v", h.limits)
	}

	cfg := domain.GenerationConfig{Users: 11, Merchants: 1, Transactions: 1}
	if msg := h.validateRequest(&cfg); msg == "" {
		t.Error("expected users over the limit to be rejected")
	}
}

func TestRequestLogFields(t *testing.T) {
	server := createTestServer(t)
	resp := createDataset(t, server, map[string]any{"transactions": 20})

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	do(t, server, http.MethodGet, "/datasets/"+resp.RunID+"/points/user_99999", nil)

	var entry map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var e map[string]any
		if err := json.Unmarshal(line, &e); err == nil && e["msg"] == "http request" {
			entry = e
		}
	}
	if entry == nil {
		t.Fatalf("no request log line in:\n%s", buf.String())
	}

	want := map[string]any{
		"level":   "WARN",
		"route":   "/datasets/{id}/points/{userId}",
		"run_id":  resp.RunID,
		"user_id": "user_99999",
		"status":  float64(http.StatusNotFound),
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("log field %s = %v, want %v", k, entry[k], v)
		}
	}
	if _, ok := entry["card_id"]; ok {
		t.Error("unexpected card_id on a points request")
	}
}
