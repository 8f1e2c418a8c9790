package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"regflow/internal/registration/models"
	"regflow/internal/registration/workflow"
	id "regflow/pkg/domain"
	dErrors "regflow/pkg/domain-errors"
	"regflow/pkg/platform/audit"
	"regflow/pkg/platform/sentinel"
	"regflow/pkg/requestcontext"
)

// UpdateInput replaces a registration's institution details. A zero Version
// writes against whatever version is loaded.
type UpdateInput struct {
	Institution models.Institution
	Version     int64
}

type RegistrationService struct {
	store Store
	cfg   *config
}

func NewRegistrationService(store Store, opts ...Option) *RegistrationService {
	return &RegistrationService{store: store, cfg: buildConfig(opts)}
}

// Create stores a new Draft registration and its first history row.
func (s *RegistrationService) Create(ctx context.Context, inst models.Institution, createdBy id.UserID, remarks string) (*models.Registration, error) {
	reg, err := models.NewRegistration(id.RegistrationID(uuid.New()), inst, createdBy, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, reg, workflow.InitialLog(reg, remarks)); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "registration already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create registration")
	}

	s.cfg.logger.InfoContext(ctx, "registration created",
		"registration_id", reg.ID.String(),
		"user_id", createdBy.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.cfg.metrics != nil {
		s.cfg.metrics.IncrementCreated()
	}
	s.cfg.emit(ctx, audit.Event{
		Action:     string(audit.EventRegistrationCreated),
		UserID:     createdBy,
		ResourceID: reg.ID.String(),
		Subject:    reg.Institution.Name,
	})
	return reg, nil
}

func (s *RegistrationService) Get(ctx context.Context, regID id.RegistrationID) (*models.Registration, error) {
	return load(ctx, s.store, regID)
}

func (s *RegistrationService) List(ctx context.Context, f models.Filter) ([]*models.Registration, error) {
	if f.Status != "" && !f.Status.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown registration status "+f.Status.String())
	}
	out, err := s.store.List(ctx, f)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list registrations")
	}
	return out, nil
}

// UpdateDetails edits the institution details. Only Draft and
// ReturnedForEdit registrations are editable; status is never changed here.
func (s *RegistrationService) UpdateDetails(ctx context.Context, regID id.RegistrationID, in UpdateInput, actor id.UserID) (*models.Registration, error) {
	inst := in.Institution
	inst.Normalize()
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	reg, err := load(ctx, s.store, regID)
	if err != nil {
		return nil, err
	}
	if !reg.Status.Editable() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "registration is not editable in status "+reg.Status.String())
	}
	expected := reg.Version
	if in.Version != 0 {
		expected = in.Version
	}

	next := reg.Clone()
	next.Institution = inst
	next.UpdatedAt = requestcontext.Now(ctx)
	next.UpdatedBy = &actor
	if err := s.store.Update(ctx, next, expected); err != nil {
		return nil, writeError(err, "update registration")
	}

	s.cfg.emit(ctx, audit.Event{
		Action:     string(audit.EventRegistrationUpdated),
		UserID:     actor,
		ResourceID: next.ID.String(),
		Subject:    next.Institution.Name,
	})
	return next, nil
}

// History returns the registration's status log, oldest first.
func (s *RegistrationService) History(ctx context.Context, regID id.RegistrationID) ([]*models.StatusLog, error) {
	logs, err := s.store.History(ctx, regID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "registration not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load history")
	}
	return logs, nil
}
