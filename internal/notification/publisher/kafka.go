// Package publisher pushes stored notifications to downstream delivery.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"regflow/internal/notification/metrics"
	"regflow/internal/notification/models"
	"regflow/pkg/platform/circuit"
	"regflow/pkg/platform/sentinel"
)

// Producer is the slice of *kgo.Client the publisher uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Kafka publishes notifications as JSON records keyed by recipient, so one
// recipient's messages stay ordered within a partition. A circuit breaker
// stops calls to an unreachable broker until its cooldown elapses.
type Kafka struct {
	producer Producer
	topic    string
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

type Option func(*Kafka)

func WithBreaker(b *circuit.Breaker) Option {
	return func(k *Kafka) { k.breaker = b }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(k *Kafka) { k.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(k *Kafka) { k.logger = l }
}

func NewKafka(producer Producer, topic string, opts ...Option) *Kafka {
	k := &Kafka{
		producer: producer,
		topic:    topic,
		breaker:  circuit.New("kafka-notifications", circuit.WithFailureThreshold(3), circuit.WithCooldown(30*time.Second)),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

func (k *Kafka) Publish(ctx context.Context, n *models.Notification) error {
	if !k.breaker.Allow(k.now()) {
		return fmt.Errorf("publish notification %s: breaker %s open: %w", n.ID, k.breaker.Name(), sentinel.ErrUnavailable)
	}
	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(n.RecipientID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event", Value: []byte(n.Event)},
		},
	}
	if err := k.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		if k.breaker.Failure(k.now()) {
			k.logger.WarnContext(ctx, "notification broker breaker opened", "breaker", k.breaker.Name(), "error", err)
			k.setBreakerGauge(true)
		}
		return fmt.Errorf("produce notification %s: %w", n.ID, err)
	}
	if k.breaker.Success() {
		k.logger.InfoContext(ctx, "notification broker breaker closed", "breaker", k.breaker.Name())
		k.setBreakerGauge(false)
	}
	return nil
}

func (k *Kafka) setBreakerGauge(open bool) {
	if k.metrics != nil {
		k.metrics.SetBreakerOpen(open)
	}
}

// Log stands in for the broker when none is configured.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Publish(ctx context.Context, n *models.Notification) error {
	l.logger.InfoContext(ctx, "notification",
		"notification_id", n.ID.String(),
		"recipient_id", n.RecipientID.String(),
		"event", n.Event,
		"subject", n.Subject,
	)
	return nil
}
