// Package publisher fans audit events from services into an audit.Store.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	audit "regflow/pkg/platform/audit"
)

// ErrBufferFull is returned by Emit in async mode when the buffer cannot take
// another event.
var ErrBufferFull = errors.New("audit buffer full")

// Publisher writes inline by default. With WithAsyncBuffer it hands events
// to a single drain goroutine; Close flushes it.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger
	lost   *prometheus.CounterVec

	buffer chan audit.Event
	wg     sync.WaitGroup
	once   sync.Once
}

type Option func(*Publisher)

func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.buffer = make(chan audit.Event, size)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// WithLostEvents counts events that never reached the store, labelled
// "reason" ("buffer_full" or "append_failed").
func WithLostEvents(c *prometheus.CounterVec) Option {
	return func(p *Publisher) { p.lost = c }
}

// NewLostEventsCounter registers the counter WithLostEvents expects.
func NewLostEventsCounter(reg prometheus.Registerer) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "regflow_audit_events_lost_total",
		Help: "Audit events dropped before reaching the store",
	}, []string{"reason"})
	reg.MustRegister(c)
	return c
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit derives Category from Action and stamps a zero Timestamp with the
// current time.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Category = audit.AuditEvent(event.Action).Category()

	if p.buffer == nil {
		if err := p.store.Append(ctx, event); err != nil {
			p.countLost("append_failed")
			return err
		}
		return nil
	}
	select {
	case p.buffer <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.logger.WarnContext(ctx, "audit event dropped", "action", event.Action, "category", event.Category)
		p.countLost("buffer_full")
		return ErrBufferFull
	}
}

func (p *Publisher) Close() {
	p.once.Do(func() {
		if p.buffer != nil {
			close(p.buffer)
			p.wg.Wait()
		}
	})
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.buffer {
		if err := p.store.Append(context.Background(), event); err != nil {
			p.logger.Error("audit append failed", "action", event.Action, "error", err)
			p.countLost("append_failed")
		}
	}
}

func (p *Publisher) countLost(reason string) {
	if p.lost != nil {
		p.lost.WithLabelValues(reason).Inc()
	}
}
