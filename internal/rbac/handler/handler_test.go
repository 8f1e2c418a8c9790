package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/language"

	"regflow/internal/localization"
	"regflow/internal/platform/jwt"
	rbacmetrics "regflow/internal/rbac/metrics"
	"regflow/internal/rbac/models"
	"regflow/internal/rbac/permissions"
	"regflow/internal/rbac/service"
	"regflow/internal/rbac/store"
	"regflow/pkg/platform/audit/publisher"
	auditmemory "regflow/pkg/platform/audit/store/memory"
	"regflow/pkg/platform/middleware/auth"
	langmw "regflow/pkg/platform/middleware/language"
	"regflow/pkg/testutil"
)

type RBACHandlerSuite struct {
	suite.Suite
	router http.Handler
	store  *store.InMemory
	perms  *service.PermissionService
	audit  *auditmemory.InMemoryStore
	tokens *jwt.Service
	admin  *models.User
	maker  *models.User
}

func TestRBACHandlerSuite(t *testing.T) {
	suite.Run(t, new(RBACHandlerSuite))
}

func (s *RBACHandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	s.store = store.NewInMemory()
	s.audit = auditmemory.NewInMemoryStore()
	emitter := publisher.NewPublisher(s.audit, publisher.WithLogger(logger))
	opts := []service.Option{
		service.WithLogger(logger),
		service.WithMetrics(rbacmetrics.NewWithRegisterer(prometheus.NewRegistry())),
		service.WithAuditEmitter(emitter),
	}
	s.perms = service.NewPermissionService(s.store, opts...).WithBcryptCost(bcrypt.MinCost)
	access := service.NewAccessService(s.store, opts...)
	s.Require().NoError(s.perms.EnsureCatalog(ctx))

	s.admin = s.userWithRole("root", models.RoleAdmin)
	s.maker = s.userWithRole("mia", models.RoleMaker)

	catalog, err := localization.New(language.English)
	s.Require().NoError(err)
	s.tokens = jwt.NewService("test-signing-key", "regflow")

	h := New(s.perms, access, s.tokens, time.Hour, logger,
		WithAuditReader(s.audit),
		WithAuditEmitter(emitter),
		WithLocalizer(catalog),
	)
	r := chi.NewRouter()
	r.Use(langmw.Middleware(localization.Supported))
	h.RegisterPublic(r)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(s.tokens, logger))
		h.Register(r)
	})
	s.router = r
}

func (s *RBACHandlerSuite) userWithRole(name string, role models.SystemRole) *models.User {
	ctx := context.Background()
	u, err := s.perms.CreateUser(ctx, service.CreateUserInput{Username: name, Password: "password-123"})
	s.Require().NoError(err)
	r, err := s.store.FindRoleBySystemName(ctx, role.String())
	s.Require().NoError(err)
	s.Require().NoError(s.perms.AssignRole(ctx, u.ID, r.ID))
	return u
}

func (s *RBACHandlerSuite) do(user *models.User, method, path string, body any) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), method, path, body)
	if user != nil {
		token, err := s.tokens.GenerateAccessToken(user.ID, time.Hour)
		s.Require().NoError(err)
		testutil.WithBearer(req, token)
	}
	return testutil.DoRequest(s.router, req)
}

func (s *RBACHandlerSuite) decode(rr *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func (s *RBACHandlerSuite) TestIssueToken() {
	rr := s.do(nil, http.MethodPost, "/auth/token", TokenRequest{Username: "mia", Password: "password-123"})
	s.Require().Equal(http.StatusOK, rr.Code)
	body := s.decode(rr)
	s.Equal("Bearer", body["token_type"])

	claims, err := s.tokens.ValidateToken(body["access_token"].(string))
	s.Require().NoError(err)
	s.Equal(s.maker.ID.String(), claims.UserID)

	rr = s.do(nil, http.MethodPost, "/auth/token", TokenRequest{Username: "mia", Password: "nope-nope"})
	s.Equal(http.StatusUnauthorized, rr.Code)
}

func (s *RBACHandlerSuite) TestRequiresBearerToken() {
	rr := s.do(nil, http.MethodGet, "/me/permissions", nil)
	s.Equal(http.StatusUnauthorized, rr.Code)
}

func (s *RBACHandlerSuite) TestMyPermissions() {
	rr := s.do(s.maker, http.MethodGet, "/me/permissions", nil)
	s.Require().Equal(http.StatusOK, rr.Code)
	body := s.decode(rr)
	s.ElementsMatch([]any{"Maker"}, body["roles"])
	s.Contains(body["permissions"], permissions.RegistrationSubmit)
	s.NotContains(body["permissions"], permissions.RegistrationApprove)
}

func (s *RBACHandlerSuite) TestAdminGate() {
	rr := s.do(s.maker, http.MethodGet, "/admin/roles", nil)
	s.Equal(http.StatusForbidden, rr.Code)
	s.Equal("forbidden", testutil.ErrorCode(s.T(), rr))

	events, err := s.audit.ListByUser(context.Background(), s.maker.ID)
	s.Require().NoError(err)
	s.Equal("access_denied", events[len(events)-1].Action)

	rr = s.do(s.admin, http.MethodGet, "/admin/roles", nil)
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Len(s.decode(rr)["roles"], len(models.SystemRoles))
}

func (s *RBACHandlerSuite) TestOverrideLifecycle() {
	path := "/admin/users/" + s.maker.ID.String() + "/overrides/" + permissions.RegistrationSubmit
	granted := false

	rr := s.do(s.admin, http.MethodPut, path, SetOverrideRequest{Granted: &granted, Reason: "on leave"})
	s.Require().Equal(http.StatusOK, rr.Code)

	rr = s.do(s.maker, http.MethodGet, "/me/permissions", nil)
	s.NotContains(s.decode(rr)["permissions"], permissions.RegistrationSubmit)

	rr = s.do(s.admin, http.MethodDelete, path, nil)
	s.Require().Equal(http.StatusNoContent, rr.Code)

	rr = s.do(s.maker, http.MethodGet, "/me/permissions", nil)
	s.Contains(s.decode(rr)["permissions"], permissions.RegistrationSubmit)

	rr = s.do(s.admin, http.MethodDelete, path, nil)
	s.Equal(http.StatusNotFound, rr.Code)
}

func (s *RBACHandlerSuite) TestCreateRoleAndGrant() {
	rr := s.do(s.admin, http.MethodPost, "/admin/roles", CreateRoleRequest{SystemName: "Auditor"})
	s.Require().Equal(http.StatusCreated, rr.Code)
	roleID := s.decode(rr)["id"].(string)

	rr = s.do(s.admin, http.MethodPut, "/admin/roles/"+roleID+"/permissions",
		SetRolePermissionsRequest{Permissions: []string{permissions.AuditView}})
	s.Require().Equal(http.StatusNoContent, rr.Code)

	rr = s.do(s.admin, http.MethodPut, "/admin/roles/"+roleID+"/permissions",
		SetRolePermissionsRequest{Permissions: []string{"Audit.Delete"}})
	s.Equal(http.StatusBadRequest, rr.Code)

	rr = s.do(s.admin, http.MethodPost, "/admin/users/"+s.maker.ID.String()+"/roles/"+roleID, nil)
	s.Require().Equal(http.StatusNoContent, rr.Code)

	rr = s.do(s.maker, http.MethodGet, "/admin/audit?user_id="+s.maker.ID.String(), nil)
	s.Require().Equal(http.StatusOK, rr.Code)
	s.NotEmpty(s.decode(rr)["events"])
}

func (s *RBACHandlerSuite) TestCreateUser() {
	rr := s.do(s.admin, http.MethodPost, "/admin/users", CreateUserRequest{Username: "Nadia", Password: "password-123", Email: "nadia@example.org"})
	s.Require().Equal(http.StatusCreated, rr.Code)
	body := s.decode(rr)
	s.Equal("nadia", body["username"])
	s.NotContains(body, "password_hash")

	rr = s.do(s.admin, http.MethodPost, "/admin/users", CreateUserRequest{Username: "nadia", Password: "password-123"})
	s.Equal(http.StatusConflict, rr.Code)
}

func (s *RBACHandlerSuite) TestBadPathIDs() {
	rr := s.do(s.admin, http.MethodPost, "/admin/users/not-a-uuid/roles/also-not", nil)
	s.Equal(http.StatusBadRequest, rr.Code)
	s.Equal("invalid_input", testutil.ErrorCode(s.T(), rr))
}

func (s *RBACHandlerSuite) TestErrorsAreLocalized() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/token", TokenRequest{Username: "mia", Password: "wrong-password"})
	req.Header.Set("Accept-Language", "fr-CA, en;q=0.5")

	rr := testutil.DoRequest(s.router, req)
	s.Equal(http.StatusUnauthorized, rr.Code)
	s.Equal("fr", rr.Header().Get("Content-Language"))
	s.Equal("Une authentification est requise.", s.decode(rr)["error_description"])
}

func (s *RBACHandlerSuite) TestSetUserActive() {
	path := "/admin/users/" + s.maker.ID.String() + "/active"
	off, on := false, true

	rr := s.do(s.maker, http.MethodPut, path, SetActiveRequest{Active: &off})
	s.Equal(http.StatusForbidden, rr.Code)

	rr = s.do(s.admin, http.MethodPut, path, map[string]any{})
	s.Equal(http.StatusBadRequest, rr.Code)

	rr = s.do(s.admin, http.MethodPut, path, SetActiveRequest{Active: &off})
	s.Require().Equal(http.StatusNoContent, rr.Code)

	rr = s.do(s.maker, http.MethodGet, "/me/permissions", nil)
	s.Equal(http.StatusNotFound, rr.Code)
	rr = s.do(nil, http.MethodPost, "/auth/token", TokenRequest{Username: "mia", Password: "password-123"})
	s.Equal(http.StatusUnauthorized, rr.Code)

	rr = s.do(s.admin, http.MethodPut, path, SetActiveRequest{Active: &on})
	s.Require().Equal(http.StatusNoContent, rr.Code)
	rr = s.do(s.maker, http.MethodGet, "/me/permissions", nil)
	s.Equal(http.StatusOK, rr.Code)

	rr = s.do(s.admin, http.MethodPut, "/admin/users/"+s.admin.ID.String()+"/active", SetActiveRequest{Active: &off})
	s.Equal(http.StatusBadRequest, rr.Code)
}

func (s *RBACHandlerSuite) TestSetRoleActive() {
	role, err := s.store.FindRoleBySystemName(context.Background(), models.RoleMaker.String())
	s.Require().NoError(err)
	off := false

	rr := s.do(s.maker, http.MethodPut, "/admin/roles/"+role.ID.String()+"/active", SetActiveRequest{Active: &off})
	s.Equal(http.StatusForbidden, rr.Code)

	rr = s.do(s.admin, http.MethodPut, "/admin/roles/"+role.ID.String()+"/active", SetActiveRequest{Active: &off})
	s.Require().Equal(http.StatusNoContent, rr.Code)

	rr = s.do(s.maker, http.MethodGet, "/me/permissions", nil)
	s.Require().Equal(http.StatusOK, rr.Code)
	body := s.decode(rr)
	s.Empty(body["roles"])
	s.NotContains(body["permissions"], permissions.RegistrationSubmit)

	rr = s.do(s.admin, http.MethodPut, "/admin/roles/not-a-uuid/active", SetActiveRequest{Active: &off})
	s.Equal(http.StatusBadRequest, rr.Code)
}

func (s *RBACHandlerSuite) TestSetPermissionActive() {
	off := false

	rr := s.do(s.maker, http.MethodPut, "/admin/permissions/"+permissions.RegistrationSubmit+"/active", SetActiveRequest{Active: &off})
	s.Equal(http.StatusForbidden, rr.Code)

	rr = s.do(s.admin, http.MethodPut, "/admin/permissions/"+permissions.RegistrationSubmit+"/active", SetActiveRequest{Active: &off})
	s.Require().Equal(http.StatusNoContent, rr.Code)

	rr = s.do(s.maker, http.MethodGet, "/me/permissions", nil)
	s.Require().Equal(http.StatusOK, rr.Code)
	s.NotContains(s.decode(rr)["permissions"], permissions.RegistrationSubmit)

	rr = s.do(s.admin, http.MethodPut, "/admin/permissions/Registration.Teleport/active", SetActiveRequest{Active: &off})
	s.Equal(http.StatusBadRequest, rr.Code)

	events, err := s.audit.ListByResource(context.Background(), "permission", permissions.RegistrationSubmit)
	s.Require().NoError(err)
	s.Require().NotEmpty(events)
	s.Equal("deactivated", events[len(events)-1].Decision)
}
