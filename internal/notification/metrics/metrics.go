package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for notification delivery.
type Metrics struct {
	Sent            *prometheus.CounterVec
	PublishFailures prometheus.Counter
	BreakerOpen     prometheus.Gauge
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Sent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regflow_notifications_sent_total",
			Help: "Notifications stored, by event",
		}, []string{"event"}),
		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "regflow_notification_publish_failures_total",
			Help: "Notifications stored but not published to the broker",
		}),
		BreakerOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "regflow_notification_publisher_breaker_open",
			Help: "1 while the broker circuit breaker is open",
		}),
	}
}

func (m *Metrics) IncrementSent(event string) {
	m.Sent.WithLabelValues(event).Inc()
}

func (m *Metrics) IncrementPublishFailure() {
	m.PublishFailures.Inc()
}

func (m *Metrics) SetBreakerOpen(open bool) {
	if open {
		m.BreakerOpen.Set(1)
		return
	}
	m.BreakerOpen.Set(0)
}
