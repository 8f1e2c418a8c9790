package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Transition outcomes.
const (
	OutcomeApplied          = "applied"
	OutcomeIllegal          = "illegal_transition"
	OutcomeInsufficientRole = "insufficient_role"
	OutcomeConflict         = "concurrency_conflict"
	OutcomeNotFound         = "not_found"
	OutcomeError            = "error"
)

// LabelInvalid stands in for a target status that does not parse, keeping
// the "to" label bounded.
const LabelInvalid = "invalid"

// Metrics provides observability for the registration workflow.
type Metrics struct {
	Transitions          *prometheus.CounterVec
	TransitionDuration   prometheus.Histogram
	Created              prometheus.Counter
	NotificationFailures prometheus.Counter
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regflow_registration_transitions_total",
			Help: "Requested status transitions by source, target and outcome",
		}, []string{"from", "to", "outcome"}),
		TransitionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "regflow_registration_transition_duration_seconds",
			Help:    "Time to process a transition request",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		Created: f.NewCounter(prometheus.CounterOpts{
			Name: "regflow_registrations_created_total",
			Help: "Registrations created",
		}),
		NotificationFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "regflow_registration_notification_delivery_failed_total",
			Help: "Transition notifications that could not be delivered",
		}),
	}
}

func (m *Metrics) ObserveTransition(from, to, outcome string, start time.Time) {
	m.Transitions.WithLabelValues(from, to, outcome).Inc()
	m.TransitionDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementCreated() {
	m.Created.Inc()
}

func (m *Metrics) IncrementNotificationFailure() {
	m.NotificationFailures.Inc()
}
