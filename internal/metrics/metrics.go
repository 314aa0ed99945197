// Package metrics exposes Prometheus metrics for generation runs and the
// HTTP API.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensource-finance/fraudgen/internal/domain"
)

const namespace = "fraudgen"

// Metrics owns a registry and every collector fraudgen records to.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal          *prometheus.CounterVec
	TransactionsTotal  *prometheus.CounterVec
	AttemptsTotal      prometheus.Counter
	DiscardedTotal     prometheus.Counter
	AlertsTotal        *prometheus.CounterVec
	CheckFailures      *prometheus.CounterVec
	TransactionAmounts *prometheus.HistogramVec
	FraudProbability   prometheus.Histogram
	RunDuration        prometheus.Histogram

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on a fresh registry,
// together with the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Generation runs by outcome.",
		}, []string{"status"}),

		TransactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Accepted transactions by label.",
		}, []string{"label"}),

		AttemptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Candidate draws made by the synthesizer.",
		}),

		DiscardedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discarded_total",
			Help:      "Candidate draws that produced no transaction.",
		}),

		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Derived alerts by risk level.",
		}, []string{"risk_level"}),

		CheckFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "check_failures_total",
			Help:      "Quality check failures by check.",
		}, []string{"check_id"}),

		TransactionAmounts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transaction_amounts",
			Help:      "Distribution of transaction amounts.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 9),
		}, []string{"label"}),

		FraudProbability: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fraud_probability",
			Help:      "Distribution of fraud probability scores.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),

		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of generation runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RunsTotal,
		m.TransactionsTotal,
		m.AttemptsTotal,
		m.DiscardedTotal,
		m.AlertsTotal,
		m.CheckFailures,
		m.TransactionAmounts,
		m.FraudProbability,
		m.RunDuration,
		m.HTTPRequests,
		m.HTTPRequestDuration,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(ds *domain.Dataset, elapsed time.Duration) {
	status := "complete"
	if ds.Summary.Short {
		status = "short"
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.AttemptsTotal.Add(float64(ds.Summary.Attempts))
	m.DiscardedTotal.Add(float64(ds.Summary.Discarded))
	m.RunDuration.Observe(elapsed.Seconds())

	for i := range ds.Transactions {
		tx := &ds.Transactions[i]
		label := Label(tx.IsFraud)
		m.TransactionsTotal.WithLabelValues(label).Inc()
		m.TransactionAmounts.WithLabelValues(label).Observe(tx.Amount)
		m.FraudProbability.Observe(tx.FraudProbability)
	}
	for i := range ds.Alerts {
		m.AlertsTotal.WithLabelValues(string(ds.Alerts[i].RiskLevel)).Inc()
	}
}

// ObserveFailedRun records a run that returned an error.
func (m *Metrics) ObserveFailedRun() {
	m.RunsTotal.WithLabelValues("failed").Inc()
}

// ObserveCheckFailures adds per-check failure counts.
func (m *Metrics) ObserveCheckFailures(failures map[string]int) {
	for id, n := range failures {
		m.CheckFailures.WithLabelValues(id).Add(float64(n))
	}
}

// Label names a transaction's ground-truth class.
func Label(isFraud bool) string {
	if isFraud {
		return "fraud"
	}
	return "normal"
}
