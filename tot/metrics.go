package tot

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Search outcomes recorded in searches_total.
const (
	OutcomeFinalized   = "finalized"
	OutcomeSynthesized = "synthesized"
	OutcomeNoSolution  = "no_solution"
	OutcomeFailed      = "failed"
)

// PrometheusMetrics collects search metrics.
//
// Metrics exposed (namespace "branchchat"):
//
//  1. oracle_latency_ms (histogram): Oracle call duration.
//     Labels: role (generator, evaluator, finalize_check, synthesizer),
//     status (success, error).
//  2. candidates_total (counter): Candidate thoughts considered.
//     Labels: outcome (kept, discarded).
//  3. searches_total (counter): Completed search invocations.
//     Labels: outcome (finalized, synthesized, no_solution, failed).
//  4. frontier_size (histogram): Frontier size after pruning, per level.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := tot.NewPrometheusMetrics(registry)
//	engine, _ := tot.New(gen, eval, synth, tot.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// A nil *PrometheusMetrics is valid and records nothing.
type PrometheusMetrics struct {
	oracleLatency *prometheus.HistogramVec
	candidates    *prometheus.CounterVec
	searches      *prometheus.CounterVec
	frontierSize  prometheus.Histogram

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates the search metrics and registers them with
// registry. A nil registry means prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		enabled: true,
		oracleLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "branchchat",
			Name:      "oracle_latency_ms",
			Help:      "Oracle call duration in milliseconds",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"role", "status"}),
		candidates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "branchchat",
			Name:      "candidates_total",
			Help:      "Candidate thoughts considered by the search, by retention outcome",
		}, []string{"outcome"}),
		searches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "branchchat",
			Name:      "searches_total",
			Help:      "Search invocations by outcome",
		}, []string{"outcome"}),
		frontierSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "branchchat",
			Name:      "frontier_size",
			Help:      "Number of frontier nodes after pruning a level",
			Buckets:   []float64{0, 1, 2, 4, 8, 16},
		}),
	}
}

// RecordOracleCall observes one oracle call.
func (pm *PrometheusMetrics) RecordOracleCall(role string, latency time.Duration, err error) {
	if !pm.isEnabled() {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	pm.oracleLatency.WithLabelValues(role, status).Observe(float64(latency.Milliseconds()))
}

// RecordCandidate counts one candidate retention decision.
func (pm *PrometheusMetrics) RecordCandidate(kept bool) {
	if !pm.isEnabled() {
		return
	}
	outcome := "discarded"
	if kept {
		outcome = "kept"
	}
	pm.candidates.WithLabelValues(outcome).Inc()
}

// RecordSearch counts one finished search with the given Outcome* value.
func (pm *PrometheusMetrics) RecordSearch(outcome string) {
	if !pm.isEnabled() {
		return
	}
	pm.searches.WithLabelValues(outcome).Inc()
}

// ObserveFrontier records the frontier size after a level.
func (pm *PrometheusMetrics) ObserveFrontier(size int) {
	if !pm.isEnabled() {
		return
	}
	pm.frontierSize.Observe(float64(size))
}

// Disable stops recording until Enable is called.
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable resumes recording.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

func (pm *PrometheusMetrics) isEnabled() bool {
	if pm == nil {
		return false
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}
