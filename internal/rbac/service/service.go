package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	rbacmetrics "regflow/internal/rbac/metrics"
	"regflow/internal/rbac/models"
	id "regflow/pkg/domain"
	"regflow/pkg/platform/audit"
)

// AccessStore is the read side Authorize needs.
type AccessStore interface {
	FindUserByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindPermissionBySystemName(ctx context.Context, systemName string) (*models.Permission, error)
	FindOverride(ctx context.Context, userID id.UserID, permID id.PermissionID) (*models.UserPermissionOverride, error)
	HasRoleGrant(ctx context.Context, userID id.UserID, permID id.PermissionID) (bool, error)
}

// Store is the full RBAC persistence contract.
type Store interface {
	AccessStore

	CreateUser(ctx context.Context, user *models.User) error
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	SetUserActive(ctx context.Context, userID id.UserID, active bool) error

	CreateRole(ctx context.Context, role *models.Role) error
	FindRoleByID(ctx context.Context, roleID id.RoleID) (*models.Role, error)
	FindRoleBySystemName(ctx context.Context, systemName string) (*models.Role, error)
	ListRoles(ctx context.Context) ([]*models.Role, error)
	SetRoleActive(ctx context.Context, roleID id.RoleID, active bool) error

	UpsertPermission(ctx context.Context, perm *models.Permission) error
	ListPermissions(ctx context.Context) ([]*models.Permission, error)
	SetPermissionActive(ctx context.Context, permID id.PermissionID, active bool) error

	GrantRolePermission(ctx context.Context, roleID id.RoleID, permID id.PermissionID) error
	ReplaceRolePermissions(ctx context.Context, roleID id.RoleID, permIDs []id.PermissionID) error
	ListRolePermissions(ctx context.Context, roleID id.RoleID) ([]*models.Permission, error)

	AssignRole(ctx context.Context, userID id.UserID, roleID id.RoleID) error
	RemoveRole(ctx context.Context, userID id.UserID, roleID id.RoleID) error
	ListActiveRolesForUser(ctx context.Context, userID id.UserID) ([]*models.Role, error)

	UpsertOverride(ctx context.Context, o *models.UserPermissionOverride) error
	DeleteOverride(ctx context.Context, userID id.UserID, permID id.PermissionID) error
	ListOverridesForUser(ctx context.Context, userID id.UserID) ([]*models.UserPermissionOverride, error)
}

// DecisionCache memoizes Authorize results. Invalidate drops every cached
// decision; it is called after any RBAC change. Get returns the cache
// generation it read so Set can refuse to store a decision computed before
// an invalidation.
type DecisionCache interface {
	Get(ctx context.Context, userID id.UserID, permission string) (granted bool, found bool, generation int64, err error)
	Set(ctx context.Context, generation int64, userID id.UserID, permission string, granted bool) error
	Invalidate(ctx context.Context) error
}

type config struct {
	logger  *slog.Logger
	metrics *rbacmetrics.Metrics
	cache   DecisionCache
	auditor audit.Emitter
	tracer  trace.Tracer
}

type Option func(*config)

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

func WithMetrics(m *rbacmetrics.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

func WithCache(cache DecisionCache) Option {
	return func(c *config) { c.cache = cache }
}

func WithAuditEmitter(e audit.Emitter) Option {
	return func(c *config) { c.auditor = e }
}

func WithTracer(t trace.Tracer) Option {
	return func(c *config) { c.tracer = t }
}

func buildConfig(opts []Option) *config {
	c := &config{}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.tracer == nil {
		c.tracer = noop.NewTracerProvider().Tracer("regflow/rbac")
	}
	return c
}
