package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Decision sources recorded on every authorization.
const (
	SourceOverride = "override"
	SourceRole     = "role"
	SourceDefault  = "default"
	SourceCache    = "cache"
	SourceInactive = "inactive"
	SourceError    = "error"
)

// Metrics provides observability for the RBAC module.
type Metrics struct {
	Decisions         *prometheus.CounterVec
	AuthorizeDuration prometheus.Histogram
	Mutations         *prometheus.CounterVec
	CacheErrors       prometheus.Counter
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg; tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regflow_authz_decisions_total",
			Help: "Authorization decisions by outcome and deciding source",
		}, []string{"result", "source"}),
		AuthorizeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "regflow_authz_duration_seconds",
			Help:    "Duration of Authorize calls",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		Mutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regflow_rbac_mutations_total",
			Help: "RBAC administrative changes by operation",
		}, []string{"operation"}),
		CacheErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "regflow_authz_cache_errors_total",
			Help: "Authorization cache read/write failures (decision falls through to the store)",
		}),
	}
}

func (m *Metrics) ObserveDecision(granted bool, source string, start time.Time) {
	result := "deny"
	if granted {
		result = "allow"
	}
	m.Decisions.WithLabelValues(result, source).Inc()
	m.AuthorizeDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementMutation(operation string) {
	m.Mutations.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncrementCacheError() {
	m.CacheErrors.Inc()
}
