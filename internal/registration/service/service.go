// Package service hosts the registration use cases: creating and editing
// registrations, and moving them through the workflow.
package service

//go:generate mockgen -destination=mocks/mocks.go -package=mocks regflow/internal/registration/service RoleResolver,Notifier

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	notifmodels "regflow/internal/notification/models"
	rbac "regflow/internal/rbac/models"
	"regflow/internal/registration/metrics"
	"regflow/internal/registration/models"
	id "regflow/pkg/domain"
	dErrors "regflow/pkg/domain-errors"
	"regflow/pkg/platform/audit"
	"regflow/pkg/platform/sentinel"
	"regflow/pkg/requestcontext"
)

// Store persists registrations and their status history.
type Store interface {
	Create(ctx context.Context, reg *models.Registration, initial *models.StatusLog) error
	FindByID(ctx context.Context, regID id.RegistrationID) (*models.Registration, error)
	List(ctx context.Context, f models.Filter) ([]*models.Registration, error)
	Update(ctx context.Context, reg *models.Registration, expectedVersion int64) error
	Transition(ctx context.Context, reg *models.Registration, expectedVersion int64, log *models.StatusLog) error
	History(ctx context.Context, regID id.RegistrationID) ([]*models.StatusLog, error)
}

// RoleResolver returns the system names of a user's active roles. Unknown
// and inactive users are NotFound.
type RoleResolver interface {
	RoleNamesForUser(ctx context.Context, userID id.UserID) ([]rbac.SystemRole, error)
}

// Notifier delivers workflow notifications.
type Notifier interface {
	Send(ctx context.Context, req notifmodels.SendRequest) error
}

const defaultNotifyTimeout = 3 * time.Second

type config struct {
	logger        *slog.Logger
	metrics       *metrics.Metrics
	auditor       audit.Emitter
	notifier      Notifier
	notifyTimeout time.Duration
	tracer        trace.Tracer
}

type Option func(*config)

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

func WithAuditEmitter(e audit.Emitter) Option {
	return func(c *config) { c.auditor = e }
}

// WithNotifier enables workflow notifications to the registration's creator.
func WithNotifier(n Notifier) Option {
	return func(c *config) { c.notifier = n }
}

// WithNotifyTimeout bounds how long a committed transition waits on the
// notifier.
func WithNotifyTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.notifyTimeout = d
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(c *config) { c.tracer = t }
}

func buildConfig(opts []Option) *config {
	c := &config{notifyTimeout: defaultNotifyTimeout}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.tracer == nil {
		c.tracer = noop.NewTracerProvider().Tracer("regflow/registration")
	}
	return c
}

func (c *config) emit(ctx context.Context, event audit.Event) {
	if c.auditor == nil {
		return
	}
	if actor := requestcontext.UserID(ctx); !actor.IsNil() {
		event.ActorID = actor.String()
	}
	event.ResourceType = "registration"
	event.RequestID = requestcontext.RequestID(ctx)
	event.ClientIP = requestcontext.ClientIP(ctx)
	if err := c.auditor.Emit(ctx, event); err != nil {
		c.logger.ErrorContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"request_id", event.RequestID,
			"error", err,
		)
	}
}

// load fetches a registration, translating store errors.
func load(ctx context.Context, store Store, regID id.RegistrationID) (*models.Registration, error) {
	reg, err := store.FindByID(ctx, regID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "registration not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration")
	}
	return reg, nil
}

// writeError translates a versioned write failure.
func writeError(err error, op string) error {
	switch {
	case errors.Is(err, sentinel.ErrStaleVersion):
		return dErrors.New(dErrors.CodeConcurrencyConflict, "registration was modified concurrently; reload and retry")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "registration not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+op)
	}
}
