package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	rbacmetrics "regflow/internal/rbac/metrics"
	id "regflow/pkg/domain"
	"regflow/pkg/platform/sentinel"
)

// AccessService answers "may user U exercise permission P". It never returns
// an error: every failure resolves to a denial.
type AccessService struct {
	store AccessStore
	cfg   *config
}

func NewAccessService(store AccessStore, opts ...Option) *AccessService {
	return &AccessService{store: store, cfg: buildConfig(opts)}
}

// Authorize resolves a permission in this order:
//  1. unknown or inactive permission denies
//  2. unknown or inactive user denies
//  3. an override for (user, permission) decides alone
//  4. otherwise any active role granting the permission allows
//  5. nothing matched denies
func (s *AccessService) Authorize(ctx context.Context, userID id.UserID, permission string) bool {
	start := time.Now()
	ctx, span := s.cfg.tracer.Start(ctx, "rbac.Authorize",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("rbac.user_id", userID.String()),
			attribute.String("rbac.permission", permission),
		),
	)
	defer span.End()

	granted, source := s.authorize(ctx, userID, permission)

	span.SetAttributes(
		attribute.Bool("rbac.granted", granted),
		attribute.String("rbac.source", source),
	)
	if s.cfg.metrics != nil {
		s.cfg.metrics.ObserveDecision(granted, source, start)
	}
	return granted
}

func (s *AccessService) authorize(ctx context.Context, userID id.UserID, permission string) (bool, string) {
	if userID.IsNil() || permission == "" {
		return false, rbacmetrics.SourceDefault
	}

	cacheable := false
	var generation int64
	if s.cfg.cache != nil {
		granted, found, gen, err := s.cfg.cache.Get(ctx, userID, permission)
		switch {
		case err != nil:
			s.cacheError(ctx, "read", err)
		case found:
			return granted, rbacmetrics.SourceCache
		default:
			cacheable, generation = true, gen
		}
	}

	granted, source := s.resolve(ctx, userID, permission)
	if cacheable && source != rbacmetrics.SourceError {
		if err := s.cfg.cache.Set(ctx, generation, userID, permission, granted); err != nil {
			s.cacheError(ctx, "write", err)
		}
	}
	return granted, source
}

func (s *AccessService) resolve(ctx context.Context, userID id.UserID, permission string) (bool, string) {
	perm, err := s.store.FindPermissionBySystemName(ctx, permission)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, rbacmetrics.SourceInactive
		}
		return s.storeError(ctx, "load permission", err, userID, permission)
	}
	if !perm.IsActive {
		return false, rbacmetrics.SourceInactive
	}

	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, rbacmetrics.SourceInactive
		}
		return s.storeError(ctx, "load user", err, userID, permission)
	}
	if !user.IsActive {
		return false, rbacmetrics.SourceInactive
	}

	override, err := s.store.FindOverride(ctx, userID, perm.ID)
	switch {
	case err == nil:
		return override.IsGranted, rbacmetrics.SourceOverride
	case !errors.Is(err, sentinel.ErrNotFound):
		return s.storeError(ctx, "load override", err, userID, permission)
	}

	granted, err := s.store.HasRoleGrant(ctx, userID, perm.ID)
	if err != nil {
		return s.storeError(ctx, "load role grants", err, userID, permission)
	}
	if granted {
		return true, rbacmetrics.SourceRole
	}
	return false, rbacmetrics.SourceDefault
}

func (s *AccessService) storeError(ctx context.Context, op string, err error, userID id.UserID, permission string) (bool, string) {
	s.cfg.logger.ErrorContext(ctx, "authorization lookup failed, denying",
		"op", op,
		"error", err,
		"user_id", userID.String(),
		"permission", permission,
	)
	return false, rbacmetrics.SourceError
}

func (s *AccessService) cacheError(ctx context.Context, op string, err error) {
	s.cfg.logger.WarnContext(ctx, "authorization cache "+op+" failed", "error", err)
	if s.cfg.metrics != nil {
		s.cfg.metrics.IncrementCacheError()
	}
}
