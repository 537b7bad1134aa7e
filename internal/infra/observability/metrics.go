package observability

import (
	"time"

	"github.com/boddenberg/finanzas-bfa-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Savings outcomes used as the "outcome" label.
const (
	OutcomeApplied = "applied"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Metrics holds all Prometheus metrics for the BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration   *prometheus.HistogramVec
	externalErrors    *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	savingsEvents     *prometheus.CounterVec
	savingsAmount     *prometheus.CounterVec
	categorySeeds     prometheus.Counter
	duplicatesRemoved prometheus.Counter
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finanzas_request_duration_seconds",
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finanzas_external_errors_total",
				Help: "Total errors from backend calls.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finanzas_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finanzas_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		savingsEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finanzas_savings_events_total",
				Help: "Automated savings rule evaluations by rule and outcome.",
			},
			[]string{"rule", "outcome"},
		),
		savingsAmount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finanzas_savings_amount_total",
				Help: "Total amount moved to savings by rule.",
			},
			[]string{"rule"},
		),
		categorySeeds: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "finanzas_category_seeds_total",
				Help: "Default category catalog seeding runs.",
			},
		),
		duplicatesRemoved: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "finanzas_category_duplicates_removed_total",
				Help: "Duplicate categories deleted by cleanup.",
			},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordSavings records one rule evaluation. amount is only added for
// applied outcomes.
func (m *Metrics) RecordSavings(rule, outcome string, amount float64) {
	m.savingsEvents.WithLabelValues(rule, outcome).Inc()
	if outcome == OutcomeApplied && amount > 0 {
		m.savingsAmount.WithLabelValues(rule).Add(amount)
	}
}

// IncrCategorySeed counts a seeding run.
func (m *Metrics) IncrCategorySeed() {
	m.categorySeeds.Inc()
}

// AddDuplicatesRemoved counts deleted duplicate categories.
func (m *Metrics) AddDuplicatesRemoved(n int) {
	m.duplicatesRemoved.Add(float64(n))
}

// GetSavingsSnapshot returns a snapshot of savings-related metrics for
// GET /v1/metrics/savings.
func (m *Metrics) GetSavingsSnapshot() *domain.SavingsMetrics {
	roundUp := counterValue(m.savingsEvents.WithLabelValues("round_up", OutcomeApplied))
	retention := counterValue(m.savingsEvents.WithLabelValues("retention", OutcomeApplied))
	failed := counterValue(m.savingsEvents.WithLabelValues("round_up", OutcomeFailed)) +
		counterValue(m.savingsEvents.WithLabelValues("retention", OutcomeFailed))
	amount := counterValue(m.savingsAmount.WithLabelValues("round_up")) +
		counterValue(m.savingsAmount.WithLabelValues("retention"))

	hits := counterValue(m.cacheHits.WithLabelValues("savings_category"))
	misses := counterValue(m.cacheMisses.WithLabelValues("savings_category"))
	hitPct := float64(0)
	if hits+misses > 0 {
		hitPct = hits / (hits + misses) * 100
	}

	return &domain.SavingsMetrics{
		RoundUpApplied:     int64(roundUp),
		RetentionApplied:   int64(retention),
		Failed:             int64(failed),
		AmountSaved:        amount,
		CategorySeeds:      int64(counterValue(m.categorySeeds)),
		DuplicatesRemoved:  int64(counterValue(m.duplicatesRemoved)),
		SavingsCacheHitPct: hitPct,
	}
}

// counterValue extracts the current float64 value from a counter.
func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
