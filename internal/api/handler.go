package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/fraudgen/internal/domain"
	"github.com/opensource-finance/fraudgen/internal/pipeline"
	"github.com/opensource-finance/fraudgen/internal/repository"
	"github.com/opensource-finance/fraudgen/internal/sink"
	"github.com/opensource-finance/fraudgen/internal/synth"
	"github.com/opensource-finance/fraudgen/internal/velocity"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	gen      *pipeline.Pipeline
	sinks    []sink.Sink
	velocity *velocity.Service

	defaults domain.GenerationConfig
	limits   domain.ServerConfig
	version  string
}

// Deps are the components a Handler serves from. Repo is required for
// every dataset route; the rest are optional.
type Deps struct {
	Repo     domain.Repository
	Cache    domain.Cache
	Pipeline *pipeline.Pipeline

	// Sinks run after a generated dataset has been stored.
	Sinks []sink.Sink

	// Defaults fill fields a generation request leaves out.
	Defaults domain.GenerationConfig
}

// NewHandler creates a new API handler. Request limits come from the Max*
// fields of limits; unset ones take the DefaultConfig values.
func NewHandler(deps Deps, limits domain.ServerConfig, version string) *Handler {
	gen := deps.Pipeline
	if gen == nil {
		gen = pipeline.New()
	}
	return &Handler{
		repo:            deps.Repo,
		cache:           deps.Cache,
		gen:             gen,
		sinks:           deps.Sinks,
		velocity:        velocity.NewService(deps.Repo, deps.Cache),
		defaults: deps.Defaults,
		limits:   withDefaultLimits(limits),
		version:  version,
	}
}

func withDefaultLimits(l domain.ServerConfig) domain.ServerConfig {
	def := domain.DefaultConfig().Server
	if l.MaxTransactions <= 0 {
		l.MaxTransactions = def.MaxTransactions
	}
	if l.MaxUsers <= 0 {
		l.MaxUsers = def.MaxUsers
	}
	if l.MaxMerchants <= 0 {
		l.MaxMerchants = def.MaxMerchants
	}
	if l.MaxAttemptMultiplier <= 0 {
		l.MaxAttemptMultiplier = def.MaxAttemptMultiplier
	}
	if l.MaxWorkers <= 0 {
		l.MaxWorkers = def.MaxWorkers
	}
	return l
}

// DatasetResponse describes a stored run.
type DatasetResponse struct {
	RunID     string         `json:"runId"`
	Seed      int64          `json:"seed"`
	CreatedAt time.Time      `json:"createdAt"`
	Summary   domain.Summary `json:"summary"`
	Metadata  struct {
		TraceID string `json:"traceId,omitempty"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

func (h *Handler) datasetResponse(r *http.Request, ds *domain.Dataset, start time.Time) DatasetResponse {
	resp := DatasetResponse{
		RunID:     ds.RunID,
		Seed:      ds.Seed,
		CreatedAt: ds.CreatedAt,
		Summary:   ds.Summary,
	}
	resp.Metadata.TraceID = GetTraceID(r.Context())
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version
	return resp
}

// CreateDataset handles POST /datasets. The body is a partial
// GenerationConfig; omitted fields take the server defaults.
func (h *Handler) CreateDataset(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	if !h.requireRepo(w) {
		return
	}

	cfg := h.defaults
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON request body")
			return
		}
	}
	// Server-side files are never read on behalf of a client.
	cfg.RiskTablePath = h.defaults.RiskTablePath

	if msg := h.validateRequest(&cfg); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	ds, err := h.gen.Run(ctx, cfg)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNoUsers) || errors.Is(err, domain.ErrNoMerchants) ||
			errors.Is(err, domain.ErrNoActiveCards) || errors.Is(err, synth.ErrInvalidParams) {
			status = http.StatusUnprocessableEntity
		}
		slog.Error("generation failed", "error", err)
		writeError(w, status, err.Error())
		return
	}

	if err := h.repo.SaveDataset(ctx, ds); err != nil {
		slog.Error("failed to save dataset", "run_id", ds.RunID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save dataset")
		return
	}
	if err := sink.WriteAll(ctx, h.sinks, ds); err != nil {
		// The dataset is stored; downstream delivery is best effort.
		slog.Error("failed to deliver dataset", "run_id", ds.RunID, "error", err)
	}

	writeJSON(w, http.StatusCreated, h.datasetResponse(r, ds, start))
}

func (h *Handler) validateRequest(cfg *domain.GenerationConfig) string {
	l := h.limits
	switch {
	case cfg.Transactions < 0:
		return "transactions must not be negative"
	case cfg.Transactions > l.MaxTransactions:
		return "transactions exceeds the server limit of " + strconv.Itoa(l.MaxTransactions)
	case cfg.Users <= 0:
		return "users must be positive"
	case cfg.Users > l.MaxUsers:
		return "users exceeds the server limit of " + strconv.Itoa(l.MaxUsers)
	case cfg.Merchants <= 0:
		return "merchants must be positive"
	case cfg.Merchants > l.MaxMerchants:
		return "merchants exceeds the server limit of " + strconv.Itoa(l.MaxMerchants)
	case cfg.AttemptMultiplier < 0:
		return "attemptMultiplier must not be negative"
	case cfg.AttemptMultiplier > l.MaxAttemptMultiplier:
		return "attemptMultiplier exceeds the server limit of " + strconv.Itoa(l.MaxAttemptMultiplier)
	case cfg.Workers < 0:
		return "workers must not be negative"
	case cfg.Workers > l.MaxWorkers:
		return "workers exceeds the server limit of " + strconv.Itoa(l.MaxWorkers)
	}
	return ""
}

// ListDatasets handles GET /datasets.
func (h *Handler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}

	runs, err := h.repo.ListRuns(r.Context())
	if err != nil {
		slog.Error("failed to list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list datasets")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"datasets": runs,
		"count":    len(runs),
	})
}

// GetDataset handles GET /datasets/{id}.
func (h *Handler) GetDataset(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	runID := chi.URLParam(r, "id")

	ds, err := h.repo.GetRun(r.Context(), runID)
	if err != nil {
		h.lookupError(w, "dataset", runID, err)
		return
	}

	writeJSON(w, http.StatusOK, ds)
}

// GetTransaction handles GET /datasets/{id}/transactions/{txId}.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	runID := chi.URLParam(r, "id")
	txID := chi.URLParam(r, "txId")

	tx, err := h.repo.GetTransaction(r.Context(), runID, txID)
	if err != nil {
		h.lookupError(w, "transaction", txID, err)
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// ListCardTransactions handles GET /datasets/{id}/cards/{cardId}/transactions.
func (h *Handler) ListCardTransactions(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	runID := chi.URLParam(r, "id")
	cardID := chi.URLParam(r, "cardId")

	txs, err := h.repo.ListTransactionsByCard(r.Context(), runID, cardID)
	if err != nil {
		h.lookupError(w, "card", cardID, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": txs,
		"count":        len(txs),
	})
}

// VelocityResponse is the response for the card velocity route.
type VelocityResponse struct {
	CardID        string    `json:"cardId"`
	At            time.Time `json:"at"`
	WindowSeconds int       `json:"windowSeconds"`
	Count         int64     `json:"count"`
}

// maxVelocityWindowSecs bounds the velocity window to one year.
const maxVelocityWindowSecs = 366 * 24 * 60 * 60

// GetCardVelocity handles GET /datasets/{id}/cards/{cardId}/velocity.
// Query: at (RFC3339, default the run's creation time), window (seconds,
// default 3600).
func (h *Handler) GetCardVelocity(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	ctx := r.Context()
	runID := chi.URLParam(r, "id")
	cardID := chi.URLParam(r, "cardId")

	windowSecs := int(velocity.DefaultWindow / time.Second)
	if v := r.URL.Query().Get("window"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxVelocityWindowSecs {
			writeError(w, http.StatusBadRequest,
				"window must be between 1 and "+strconv.Itoa(maxVelocityWindowSecs)+" seconds")
			return
		}
		windowSecs = n
	}

	var at time.Time
	if v := r.URL.Query().Get("at"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "at must be an RFC3339 timestamp")
			return
		}
		at = t
	} else {
		run, err := h.repo.GetRun(ctx, runID)
		if err != nil {
			h.lookupError(w, "dataset", runID, err)
			return
		}
		at = run.CreatedAt
	}

	count, err := h.velocity.CardCount(ctx, runID, cardID, at, time.Duration(windowSecs)*time.Second)
	if err != nil {
		h.lookupError(w, "card", cardID, err)
		return
	}

	writeJSON(w, http.StatusOK, VelocityResponse{
		CardID:        cardID,
		At:            at,
		WindowSeconds: windowSecs,
		Count:         count,
	})
}

// ListAlerts handles GET /datasets/{id}/alerts?level=high|medium.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	runID := chi.URLParam(r, "id")

	level := domain.RiskLevel(r.URL.Query().Get("level"))
	switch level {
	case "", domain.RiskLevelHigh, domain.RiskLevelMedium:
	default:
		writeError(w, http.StatusBadRequest, "level must be high or medium")
		return
	}

	alerts, err := h.repo.ListAlerts(r.Context(), runID, level)
	if err != nil {
		h.lookupError(w, "dataset", runID, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// GetPoints handles GET /datasets/{id}/points/{userId}.
func (h *Handler) GetPoints(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	runID := chi.URLParam(r, "id")
	userID := chi.URLParam(r, "userId")

	p, err := h.repo.GetPoints(r.Context(), runID, userID)
	if err != nil {
		h.lookupError(w, "points", userID, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// GetSignals handles GET /datasets/{id}/signals/{userId}, serving the
// behaviour signals warmed into the cache.
func (h *Handler) GetSignals(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "cache not available")
		return
	}
	runID := chi.URLParam(r, "id")
	userID := chi.URLParam(r, "userId")

	sig, err := h.cache.GetSignals(r.Context(), runID, userID)
	if err != nil {
		slog.Error("failed to get signals", "run_id", runID, "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read signals")
		return
	}
	if sig == nil {
		writeError(w, http.StatusNotFound, "signals not found")
		return
	}

	writeJSON(w, http.StatusOK, sig)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready handles GET /ready.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func (h *Handler) requireRepo(w http.ResponseWriter) bool {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return false
	}
	return true
}

func (h *Handler) lookupError(w http.ResponseWriter, what, id string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, repository.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("lookup failed", "kind", what, "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
