package service

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"regflow/internal/localization"
	"regflow/internal/notification/metrics"
	"regflow/internal/notification/models"
	id "regflow/pkg/domain"
	dErrors "regflow/pkg/domain-errors"
	"regflow/pkg/platform/sentinel"
	"regflow/pkg/requestcontext"
)

type Store interface {
	Save(ctx context.Context, n *models.Notification) error
	ListForRecipient(ctx context.Context, recipient id.UserID, f models.ListFilter) ([]*models.Notification, error)
	MarkRead(ctx context.Context, recipient id.UserID, nid id.NotificationID, readAt time.Time) error
}

type Publisher interface {
	Publish(ctx context.Context, n *models.Notification) error
}

// Renderer turns message keys into text.
type Renderer interface {
	MessageIn(tag language.Tag, key string, args ...any) string
}

// Service stores notifications in the recipient's inbox and hands them to
// the publisher.
type Service struct {
	store     Store
	publisher Publisher
	renderer  Renderer
	language  language.Tag
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLanguage sets the language notifications are rendered in.
func WithLanguage(tag language.Tag) Option {
	return func(s *Service) { s.language = tag }
}

func New(store Store, publisher Publisher, renderer Renderer, opts ...Option) *Service {
	s := &Service{
		store:     store,
		publisher: publisher,
		renderer:  renderer,
		language:  language.English,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send renders, stores and publishes one notification. A publish failure is
// returned after the notification is already in the inbox.
func (s *Service) Send(ctx context.Context, req models.SendRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	channel := req.Channel
	if channel == "" {
		channel = models.ChannelInApp
	}
	n := &models.Notification{
		ID:             id.NotificationID(uuid.New()),
		RecipientID:    req.RecipientID,
		RegistrationID: req.RegistrationID,
		Event:          req.Event,
		Channel:        channel,
		Subject:        s.renderer.MessageIn(s.language, localization.SubjectKey(req.MessageKey)),
		Body:           s.renderer.MessageIn(s.language, req.MessageKey, req.MessageArgs...),
		Tokens:         maps.Clone(req.Tokens),
		CreatedAt:      requestcontext.Now(ctx),
	}
	if !req.TriggeredBy.IsNil() {
		by := req.TriggeredBy
		n.TriggeredBy = &by
	}
	if err := s.store.Save(ctx, n); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store notification")
	}
	if s.metrics != nil {
		s.metrics.IncrementSent(n.Event)
	}
	if err := s.publisher.Publish(ctx, n); err != nil {
		if s.metrics != nil {
			s.metrics.IncrementPublishFailure()
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to publish notification")
	}
	return nil
}

func (s *Service) List(ctx context.Context, recipient id.UserID, f models.ListFilter) ([]*models.Notification, error) {
	out, err := s.store.ListForRecipient(ctx, recipient, f)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list notifications")
	}
	return out, nil
}

func (s *Service) MarkRead(ctx context.Context, recipient id.UserID, nid id.NotificationID) error {
	if err := s.store.MarkRead(ctx, recipient, nid, requestcontext.Now(ctx)); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "notification not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark notification read")
	}
	return nil
}
