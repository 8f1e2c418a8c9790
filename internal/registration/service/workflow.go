package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"regflow/internal/localization"
	notifmodels "regflow/internal/notification/models"
	"regflow/internal/registration/metrics"
	"regflow/internal/registration/models"
	"regflow/internal/registration/workflow"
	id "regflow/pkg/domain"
	dErrors "regflow/pkg/domain-errors"
	"regflow/pkg/platform/audit"
	"regflow/pkg/platform/strings"
	"regflow/pkg/requestcontext"
)

// TransitionRequest asks to move a registration to Target on behalf of
// ActingUserID.
type TransitionRequest struct {
	RegistrationID id.RegistrationID
	Target         models.Status
	ActingUserID   id.UserID
	Remarks        string
	SubStatuses    workflow.SubStatuses
}

// WorkflowService applies status transitions. Rules decide legality, the
// actor's roles decide permission, and the store's version check decides
// which of two concurrent writers wins.
type WorkflowService struct {
	store Store
	roles RoleResolver
	cfg   *config
}

func NewWorkflowService(store Store, roles RoleResolver, opts ...Option) *WorkflowService {
	return &WorkflowService{store: store, roles: roles, cfg: buildConfig(opts)}
}

// RequestTransition validates and applies one transition. The status update
// and its history row are written together; notification happens after the
// write and never undoes it.
func (s *WorkflowService) RequestTransition(ctx context.Context, req TransitionRequest) (*models.Registration, error) {
	start := time.Now()
	ctx, span := s.cfg.tracer.Start(ctx, "registration.RequestTransition",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("registration.id", req.RegistrationID.String()),
			attribute.String("registration.target", req.Target.String()),
			attribute.String("registration.actor", req.ActingUserID.String()),
		),
	)
	defer span.End()

	reg, from, outcome, err := s.transition(ctx, req)
	span.SetAttributes(
		attribute.String("registration.from", from.String()),
		attribute.String("registration.outcome", outcome),
	)
	if err != nil {
		span.SetStatus(codes.Error, outcome)
	}
	if s.cfg.metrics != nil {
		to := req.Target.String()
		if !req.Target.IsValid() {
			to = metrics.LabelInvalid
		}
		s.cfg.metrics.ObserveTransition(from.String(), to, outcome, start)
	}
	return reg, err
}

func (s *WorkflowService) transition(ctx context.Context, req TransitionRequest) (*models.Registration, models.Status, string, error) {
	if req.ActingUserID.IsNil() {
		return nil, "", metrics.OutcomeError, dErrors.New(dErrors.CodeUnauthorized, "acting user is required")
	}
	if !req.Target.IsValid() {
		return nil, "", metrics.OutcomeError, dErrors.New(dErrors.CodeBadRequest, "unknown target status "+req.Target.String())
	}
	if err := req.SubStatuses.Validate(); err != nil {
		return nil, "", metrics.OutcomeError, err
	}

	current, err := load(ctx, s.store, req.RegistrationID)
	if err != nil {
		outcome := metrics.OutcomeError
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			outcome = metrics.OutcomeNotFound
		}
		return nil, "", outcome, err
	}
	from := current.Status

	if !workflow.CanTransition(from, req.Target) {
		return nil, from, metrics.OutcomeIllegal, dErrors.New(dErrors.CodeIllegalTransition,
			"cannot move registration from "+from.String()+" to "+req.Target.String())
	}

	roles, err := s.roles.RoleNamesForUser(ctx, req.ActingUserID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, from, metrics.OutcomeNotFound, dErrors.New(dErrors.CodeNotFound, "acting user not found")
		}
		return nil, from, metrics.OutcomeError, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve roles")
	}
	if !strings.Intersects(roles, workflow.AllowedRolesFor(from, req.Target)) {
		s.cfg.emit(ctx, audit.Event{
			Action:     string(audit.EventTransitionDenied),
			UserID:     req.ActingUserID,
			ResourceID: current.ID.String(),
			Decision:   "denied",
			Reason:     from.String() + "->" + req.Target.String(),
		})
		return nil, from, metrics.OutcomeInsufficientRole, dErrors.New(dErrors.CodeInsufficientRole,
			"your roles do not allow moving a registration from "+from.String()+" to "+req.Target.String())
	}

	if err := req.SubStatuses.CheckApproval(current, req.Target); err != nil {
		return nil, from, metrics.OutcomeError, err
	}
	if field := req.SubStatuses.Unpermitted(roles); field != "" {
		s.cfg.emit(ctx, audit.Event{
			Action:     string(audit.EventTransitionDenied),
			UserID:     req.ActingUserID,
			ResourceID: current.ID.String(),
			Decision:   "denied",
			Reason:     field,
		})
		return nil, from, metrics.OutcomeInsufficientRole, dErrors.New(dErrors.CodeInsufficientRole,
			"your roles do not allow setting "+field)
	}

	next, log := workflow.Apply(current, req.Target, req.SubStatuses, req.ActingUserID, requestcontext.Now(ctx), req.Remarks)
	if err := s.store.Transition(ctx, next, current.Version, log); err != nil {
		err = writeError(err, "apply transition")
		outcome := metrics.OutcomeError
		switch {
		case dErrors.HasCode(err, dErrors.CodeConcurrencyConflict):
			outcome = metrics.OutcomeConflict
		case dErrors.HasCode(err, dErrors.CodeNotFound):
			outcome = metrics.OutcomeNotFound
		}
		return nil, from, outcome, err
	}

	s.cfg.logger.InfoContext(ctx, "registration transitioned",
		"registration_id", next.ID.String(),
		"from", from.String(),
		"to", next.Status.String(),
		"user_id", req.ActingUserID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	s.notify(ctx, next, from, req)
	s.cfg.emit(ctx, audit.Event{
		Action:     string(audit.EventRegistrationTransitioned),
		UserID:     req.ActingUserID,
		ResourceID: next.ID.String(),
		Decision:   next.Status.String(),
		Reason:     req.Remarks,
	})
	return next, from, metrics.OutcomeApplied, nil
}

// AllowedTransitions lists the targets userID may move the registration to
// from its current status.
func (s *WorkflowService) AllowedTransitions(ctx context.Context, regID id.RegistrationID, userID id.UserID) ([]models.Status, error) {
	reg, err := load(ctx, s.store, regID)
	if err != nil {
		return nil, err
	}
	roles, err := s.roles.RoleNamesForUser(ctx, userID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve roles")
	}
	out := []models.Status{}
	for _, to := range workflow.AllowedTargets(reg.Status) {
		if strings.Intersects(roles, workflow.AllowedRolesFor(reg.Status, to)) {
			out = append(out, to)
		}
	}
	return out, nil
}

var notificationKeys = map[workflow.Event]string{
	workflow.EventRegistrationSubmitted:       localization.KeyRegistrationSubmitted,
	workflow.EventRegistrationUnderReview:     localization.KeyRegistrationUnderReview,
	workflow.EventRegistrationApproved:        localization.KeyRegistrationApproved,
	workflow.EventRegistrationRejected:        localization.KeyRegistrationRejected,
	workflow.EventRegistrationReturnedForEdit: localization.KeyRegistrationReturnedForEdit,
	workflow.EventRegistrationReopened:        localization.KeyRegistrationReopened,
	workflow.EventRegistrationArchived:        localization.KeyRegistrationArchived,
}

func (s *WorkflowService) notify(ctx context.Context, reg *models.Registration, from models.Status, req TransitionRequest) {
	if s.cfg.notifier == nil {
		return
	}
	event := workflow.EventFor(reg.Status)
	key, args := notificationKeys[event], []any{reg.ID.String(), reg.Institution.Name}
	if key == "" {
		key = localization.KeyRegistrationStatusChanged
		args = append(args, from.String(), reg.Status.String())
	}
	// Delivery ignores the caller's cancellation but is bounded by notifyTimeout.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.notifyTimeout)
	defer cancel()
	regID := reg.ID
	err := s.cfg.notifier.Send(sendCtx, notifmodels.SendRequest{
		RegistrationID: &regID,
		Event:          string(event),
		TriggeredBy:    req.ActingUserID,
		RecipientID:    reg.CreatedBy,
		Channel:        notifmodels.ChannelInApp,
		Tokens: map[string]string{
			"registration_id":  reg.ID.String(),
			"institution_name": reg.Institution.Name,
			"from":             from.String(),
			"to":               reg.Status.String(),
			"remarks":          req.Remarks,
		},
		MessageKey:  key,
		MessageArgs: args,
	})
	if err != nil {
		s.cfg.logger.WarnContext(ctx, "notification_delivery_failed",
			"registration_id", reg.ID.String(),
			"event", string(event),
			"recipient_id", reg.CreatedBy.String(),
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		if s.cfg.metrics != nil {
			s.cfg.metrics.IncrementNotificationFailure()
		}
	}
}

