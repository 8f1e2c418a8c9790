package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	rbacmetrics "regflow/internal/rbac/metrics"
	"regflow/internal/rbac/models"
	"regflow/internal/rbac/permissions"
	"regflow/internal/rbac/store"
	id "regflow/pkg/domain"
	dErrors "regflow/pkg/domain-errors"
	"regflow/pkg/platform/audit"
	"regflow/pkg/platform/audit/publisher"
	auditmemory "regflow/pkg/platform/audit/store/memory"
	"regflow/pkg/requestcontext"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeCache is an in-process DecisionCache with the same generation rules as
// the Redis implementation.
type fakeCache struct {
	mu      sync.Mutex
	gen     int64
	entries map[string]bool
	getErr  error
}

func newFakeCache() *fakeCache { return &fakeCache{entries: map[string]bool{}} }

func (c *fakeCache) key(gen int64, u id.UserID, p string) string {
	return strconv.FormatInt(gen, 10) + "|" + u.String() + "|" + p
}

func (c *fakeCache) Get(_ context.Context, u id.UserID, p string) (bool, bool, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return false, false, 0, c.getErr
	}
	v, ok := c.entries[c.key(c.gen, u, p)]
	return v, ok, c.gen, nil
}

func (c *fakeCache) Set(_ context.Context, gen int64, u id.UserID, p string, granted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.gen {
		c.entries[c.key(gen, u, p)] = granted
	}
	return nil
}

func (c *fakeCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	return nil
}

// failingStore breaks one lookup to exercise the deny-on-error path.
type failingStore struct {
	*store.InMemory
}

func (f failingStore) HasRoleGrant(context.Context, id.UserID, id.PermissionID) (bool, error) {
	return false, errors.New("connection reset")
}

type RBACServiceSuite struct {
	suite.Suite
	ctx     context.Context
	store   *store.InMemory
	cache   *fakeCache
	audit   *auditmemory.InMemoryStore
	metrics *rbacmetrics.Metrics
	perms   *PermissionService
	access  *AccessService
	admin   *models.User
}

func TestRBACServiceSuite(t *testing.T) {
	suite.Run(t, new(RBACServiceSuite))
}

func (s *RBACServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.cache = newFakeCache()
	s.audit = auditmemory.NewInMemoryStore()
	s.metrics = rbacmetrics.NewWithRegisterer(prometheus.NewRegistry())
	opts := []Option{
		WithLogger(discard),
		WithCache(s.cache),
		WithMetrics(s.metrics),
		WithAuditEmitter(publisher.NewPublisher(s.audit, publisher.WithLogger(discard))),
	}
	s.perms = NewPermissionService(s.store, opts...).WithBcryptCost(bcrypt.MinCost)
	s.access = NewAccessService(s.store, opts...)

	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	s.Require().NoError(s.perms.EnsureCatalog(s.ctx))
	s.admin = s.newUserWithRole("admin", models.RoleAdmin)
	s.ctx = requestcontext.WithUserID(s.ctx, s.admin.ID)
}

func (s *RBACServiceSuite) newUser(name string) *models.User {
	u, err := s.perms.CreateUser(s.ctx, CreateUserInput{Username: name, Password: "correct-horse"})
	s.Require().NoError(err)
	return u
}

func (s *RBACServiceSuite) newUserWithRole(name string, role models.SystemRole) *models.User {
	u := s.newUser(name)
	r, err := s.store.FindRoleBySystemName(s.ctx, role.String())
	s.Require().NoError(err)
	s.Require().NoError(s.perms.AssignRole(s.ctx, u.ID, r.ID))
	return u
}

func (s *RBACServiceSuite) TestEnsureCatalogIsIdempotent() {
	s.Require().NoError(s.perms.EnsureCatalog(s.ctx))

	perms, err := s.perms.ListPermissions(s.ctx)
	s.Require().NoError(err)
	s.Len(perms, len(permissions.All()))

	roles, err := s.perms.ListRoles(s.ctx)
	s.Require().NoError(err)
	s.Len(roles, len(models.SystemRoles))
	for _, r := range roles {
		s.True(r.IsSystem)
		s.ElementsMatch(permissions.DefaultGrants(models.SystemRole(r.SystemName)), r.Permissions)
	}
}

func (s *RBACServiceSuite) TestAuthorize_RoleGrant() {
	maker := s.newUserWithRole("maker", models.RoleMaker)

	s.True(s.access.Authorize(s.ctx, maker.ID, permissions.RegistrationSubmit))
	s.False(s.access.Authorize(s.ctx, maker.ID, permissions.RegistrationApprove))
}

func (s *RBACServiceSuite) TestAuthorize_DenyOverrideBeatsRoleGrant() {
	maker := s.newUserWithRole("maker", models.RoleMaker)
	s.Require().True(s.access.Authorize(s.ctx, maker.ID, permissions.RegistrationSubmit))

	_, err := s.perms.SetOverride(s.ctx, maker.ID, permissions.RegistrationSubmit, false, "suspended")
	s.Require().NoError(err)

	s.False(s.access.Authorize(s.ctx, maker.ID, permissions.RegistrationSubmit))
	s.True(s.access.Authorize(s.ctx, maker.ID, permissions.RegistrationCreate), "other grants unaffected")
}

func (s *RBACServiceSuite) TestAuthorize_GrantOverrideWithoutRole() {
	nobody := s.newUser("nobody")
	s.False(s.access.Authorize(s.ctx, nobody.ID, permissions.AuditView))

	_, err := s.perms.SetOverride(s.ctx, nobody.ID, permissions.AuditView, true, "external auditor")
	s.Require().NoError(err)
	s.True(s.access.Authorize(s.ctx, nobody.ID, permissions.AuditView))

	s.Require().NoError(s.perms.ClearOverride(s.ctx, nobody.ID, permissions.AuditView))
	s.False(s.access.Authorize(s.ctx, nobody.ID, permissions.AuditView))
}

func (s *RBACServiceSuite) TestAuthorize_DefaultDeny() {
	nobody := s.newUser("nobody")
	for _, def := range permissions.All() {
		s.False(s.access.Authorize(s.ctx, nobody.ID, def.SystemName), def.SystemName)
	}
}

func (s *RBACServiceSuite) TestAuthorize_UnknownOrInactivePermission() {
	s.False(s.access.Authorize(s.ctx, s.admin.ID, "Registration.Teleport"))
	s.False(s.access.Authorize(s.ctx, s.admin.ID, ""))

	s.Require().True(s.access.Authorize(s.ctx, s.admin.ID, permissions.RegistrationArchive))
	s.Require().NoError(s.perms.SetPermissionActive(s.ctx, permissions.RegistrationArchive, false))

	s.False(s.access.Authorize(s.ctx, s.admin.ID, permissions.RegistrationArchive))

	_, err := s.perms.SetOverride(s.ctx, s.admin.ID, permissions.RegistrationArchive, true, "")
	s.Require().NoError(err)
	s.False(s.access.Authorize(s.ctx, s.admin.ID, permissions.RegistrationArchive), "override cannot revive an inactive permission")
}

func (s *RBACServiceSuite) TestAuthorize_InactiveUserOrRole() {
	checker := s.newUserWithRole("checker", models.RoleChecker)
	s.Require().True(s.access.Authorize(s.ctx, checker.ID, permissions.RegistrationReview))

	role, err := s.store.FindRoleBySystemName(s.ctx, models.RoleChecker.String())
	s.Require().NoError(err)
	s.Require().NoError(s.perms.SetRoleActive(s.ctx, role.ID, false))
	s.False(s.access.Authorize(s.ctx, checker.ID, permissions.RegistrationReview))

	s.Require().NoError(s.perms.SetRoleActive(s.ctx, role.ID, true))
	s.True(s.access.Authorize(s.ctx, checker.ID, permissions.RegistrationReview))

	s.Require().NoError(s.perms.SetUserActive(s.ctx, checker.ID, false))
	s.False(s.access.Authorize(s.ctx, checker.ID, permissions.RegistrationReview))
	_, err = s.perms.Authenticate(s.ctx, "checker", "correct-horse")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	s.False(s.access.Authorize(s.ctx, id.UserID(uuid.New()), permissions.RegistrationReview))
}

func (s *RBACServiceSuite) TestAuthorize_StoreErrorDenies() {
	access := NewAccessService(failingStore{s.store}, WithLogger(discard), WithMetrics(s.metrics))
	s.False(access.Authorize(s.ctx, s.admin.ID, permissions.RegistrationView))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Decisions.WithLabelValues("deny", rbacmetrics.SourceError)))
}

func (s *RBACServiceSuite) TestAuthorize_CacheInvalidatedByMutation() {
	maker := s.newUserWithRole("maker", models.RoleMaker)
	s.True(s.access.Authorize(s.ctx, maker.ID, permissions.RegistrationSubmit))
	s.True(s.access.Authorize(s.ctx, maker.ID, permissions.RegistrationSubmit))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Decisions.WithLabelValues("allow", rbacmetrics.SourceCache)))

	role, err := s.store.FindRoleBySystemName(s.ctx, models.RoleMaker.String())
	s.Require().NoError(err)
	s.Require().NoError(s.perms.RemoveRole(s.ctx, maker.ID, role.ID))

	s.False(s.access.Authorize(s.ctx, maker.ID, permissions.RegistrationSubmit))
}

func (s *RBACServiceSuite) TestAuthorize_CacheReadErrorFallsThrough() {
	s.cache.getErr = errors.New("redis down")
	s.True(s.access.Authorize(s.ctx, s.admin.ID, permissions.RolesManage))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CacheErrors))
}

func (s *RBACServiceSuite) TestSetRolePermissions() {
	role, err := s.perms.CreateRole(s.ctx, CreateRoleInput{SystemName: "Auditor", Name: "Auditor"})
	s.Require().NoError(err)

	s.Run("unknown permission is a validation error", func() {
		err := s.perms.SetRolePermissions(s.ctx, role.ID, []string{"Audit.View", "Nope.Nope"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("dedupes and replaces", func() {
		s.Require().NoError(s.perms.SetRolePermissions(s.ctx, role.ID, []string{" Audit.View", "Audit.View", "Registration.View"}))
		roles, err := s.perms.ListRoles(s.ctx)
		s.Require().NoError(err)
		for _, r := range roles {
			if r.ID == role.ID {
				s.Equal([]string{"Audit.View", "Registration.View"}, r.Permissions)
			}
		}
	})

	s.Run("unknown role is not found", func() {
		err := s.perms.SetRolePermissions(s.ctx, id.RoleID(uuid.New()), []string{"Audit.View"})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("duplicate role is a conflict", func() {
		_, err := s.perms.CreateRole(s.ctx, CreateRoleInput{SystemName: "Auditor"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *RBACServiceSuite) TestEffectivePermissions() {
	maker := s.newUserWithRole("maker", models.RoleMaker)
	_, err := s.perms.SetOverride(s.ctx, maker.ID, permissions.RegistrationEdit, false, "")
	s.Require().NoError(err)
	_, err = s.perms.SetOverride(s.ctx, maker.ID, permissions.AuditView, true, "")
	s.Require().NoError(err)

	got, err := s.perms.EffectivePermissions(s.ctx, maker.ID)
	s.Require().NoError(err)
	s.Equal([]string{
		permissions.AuditView,
		permissions.RegistrationCreate,
		permissions.RegistrationSubmit,
		permissions.RegistrationView,
		permissions.RegistrationViewHistory,
	}, got)

	for _, def := range permissions.All() {
		s.Equal(s.access.Authorize(s.ctx, maker.ID, def.SystemName), contains(got, def.SystemName), def.SystemName)
	}
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func (s *RBACServiceSuite) TestRoleNamesForUser() {
	u := s.newUserWithRole("dual", models.RoleChecker)
	reg, err := s.store.FindRoleBySystemName(s.ctx, models.RoleRegulator.String())
	s.Require().NoError(err)
	s.Require().NoError(s.perms.AssignRole(s.ctx, u.ID, reg.ID))

	names, err := s.perms.RoleNamesForUser(s.ctx, u.ID)
	s.Require().NoError(err)
	s.ElementsMatch([]models.SystemRole{models.RoleChecker, models.RoleRegulator}, names)

	_, err = s.perms.RoleNamesForUser(s.ctx, id.UserID(uuid.New()))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	s.Require().NoError(s.store.SetUserActive(s.ctx, u.ID, false))
	_, err = s.perms.RoleNamesForUser(s.ctx, u.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *RBACServiceSuite) TestCreateUserAndAuthenticate() {
	s.Run("short password rejected", func() {
		_, err := s.perms.CreateUser(s.ctx, CreateUserInput{Username: "short", Password: "123"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("duplicate username conflicts", func() {
		_, err := s.perms.CreateUser(s.ctx, CreateUserInput{Username: "ADMIN", Password: "long-enough"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("authenticate", func() {
		u, err := s.perms.Authenticate(s.ctx, "admin", "correct-horse")
		s.Require().NoError(err)
		s.Equal(s.admin.ID, u.ID)

		_, err = s.perms.Authenticate(s.ctx, "admin", "wrong-horse")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

		_, err = s.perms.Authenticate(s.ctx, "ghost", "correct-horse")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *RBACServiceSuite) TestMutationsAreAudited() {
	u := s.newUser("audited")
	_, err := s.perms.SetOverride(s.ctx, u.ID, permissions.AuditView, true, "temp")
	s.Require().NoError(err)

	events, err := s.audit.ListByUser(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(string(audit.EventUserCreated), events[0].Action)
	s.Equal(string(audit.EventOverrideSet), events[1].Action)
	s.Equal(audit.CategoryCompliance, events[1].Category)
	s.Equal(s.admin.ID.String(), events[1].ActorID)
	s.Equal("granted", events[1].Decision)
}

func (s *RBACServiceSuite) TestSetActive_Errors() {
	s.Run("cannot deactivate yourself", func() {
		err := s.perms.SetUserActive(s.ctx, s.admin.ID, false)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.True(s.access.Authorize(s.ctx, s.admin.ID, permissions.UsersManage))
	})

	s.Run("unknown targets", func() {
		s.True(dErrors.HasCode(s.perms.SetUserActive(s.ctx, id.UserID(uuid.New()), false), dErrors.CodeNotFound))
		s.True(dErrors.HasCode(s.perms.SetRoleActive(s.ctx, id.RoleID(uuid.New()), false), dErrors.CodeNotFound))
		s.True(dErrors.HasCode(s.perms.SetPermissionActive(s.ctx, "Registration.Teleport", false), dErrors.CodeValidation))
	})
}

func (s *RBACServiceSuite) TestSetActive_AuditedAndCounted() {
	u := s.newUser("suspended")
	s.Require().NoError(s.perms.SetUserActive(s.ctx, u.ID, false))
	s.Require().NoError(s.perms.SetPermissionActive(s.ctx, permissions.AuditView, false))

	events, err := s.audit.ListByResource(s.ctx, "user", u.ID.String())
	s.Require().NoError(err)
	s.Require().NotEmpty(events)
	last := events[len(events)-1]
	s.Equal(string(audit.EventActivationChanged), last.Action)
	s.Equal("deactivated", last.Decision)
	s.Equal(s.admin.ID.String(), last.ActorID)
	s.Equal(audit.CategoryCompliance, last.Category)

	events, err = s.audit.ListByResource(s.ctx, "permission", permissions.AuditView)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal("deactivated", events[0].Decision)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.Mutations.WithLabelValues("set_user_active")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Mutations.WithLabelValues("set_permission_active")))
}

func TestAuthorize_NilUserDenied(t *testing.T) {
	access := NewAccessService(store.NewInMemory())
	assert.False(t, access.Authorize(context.Background(), id.UserID{}, permissions.RegistrationView))
}

func TestAuthorize_IsSafeForConcurrentUse(t *testing.T) {
	st := store.NewInMemory()
	perms := NewPermissionService(st, WithLogger(discard)).WithBcryptCost(bcrypt.MinCost)
	ctx := context.Background()
	require.NoError(t, perms.EnsureCatalog(ctx))
	u, err := perms.CreateUser(ctx, CreateUserInput{Username: "reg", Password: "long-enough"})
	require.NoError(t, err)
	role, err := st.FindRoleBySystemName(ctx, models.RoleRegulator.String())
	require.NoError(t, err)
	require.NoError(t, perms.AssignRole(ctx, u.ID, role.ID))

	access := NewAccessService(st, WithLogger(discard), WithCache(newFakeCache()))
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, access.Authorize(ctx, u.ID, permissions.RegistrationApprove))
			assert.False(t, access.Authorize(ctx, u.ID, permissions.RolesManage))
		}()
	}
	wg.Wait()
}
