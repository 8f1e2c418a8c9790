package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"regflow/internal/rbac/models"
	"regflow/internal/rbac/permissions"
	"regflow/internal/rbac/service"
	id "regflow/pkg/domain"
	dErrors "regflow/pkg/domain-errors"
	"regflow/pkg/platform/audit"
	"regflow/pkg/platform/httputil"
	"regflow/pkg/platform/middleware/auth"
	"regflow/pkg/requestcontext"
)

// Admin is the administrative surface of the permission service.
type Admin interface {
	ListPermissions(ctx context.Context) ([]*models.Permission, error)
	CreateRole(ctx context.Context, in service.CreateRoleInput) (*models.Role, error)
	ListRoles(ctx context.Context) ([]service.RoleWithPermissions, error)
	SetRolePermissions(ctx context.Context, roleID id.RoleID, names []string) error
	CreateUser(ctx context.Context, in service.CreateUserInput) (*models.User, error)
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
	AssignRole(ctx context.Context, userID id.UserID, roleID id.RoleID) error
	RemoveRole(ctx context.Context, userID id.UserID, roleID id.RoleID) error
	SetOverride(ctx context.Context, userID id.UserID, permission string, granted bool, reason string) (*models.UserPermissionOverride, error)
	ClearOverride(ctx context.Context, userID id.UserID, permission string) error
	SetUserActive(ctx context.Context, userID id.UserID, active bool) error
	SetRoleActive(ctx context.Context, roleID id.RoleID, active bool) error
	SetPermissionActive(ctx context.Context, permission string, active bool) error
	EffectivePermissions(ctx context.Context, userID id.UserID) ([]string, error)
	RoleNamesForUser(ctx context.Context, userID id.UserID) ([]models.SystemRole, error)
}

// TokenIssuer mints bearer tokens for authenticated users.
type TokenIssuer interface {
	GenerateAccessToken(userID id.UserID, expiresIn time.Duration) (string, error)
}

// AuditReader serves the audit trail query endpoint.
type AuditReader interface {
	ListByUser(ctx context.Context, userID id.UserID) ([]audit.Event, error)
	ListByResource(ctx context.Context, resourceType, resourceID string) ([]audit.Event, error)
}

// Handler serves token issuance, the /admin RBAC endpoints and /me/permissions.
type Handler struct {
	admin     Admin
	authz     auth.Authorizer
	tokens    TokenIssuer
	auditLog  AuditReader
	auditor   audit.Emitter
	localizer httputil.ErrorLocalizer
	logger    *slog.Logger
	tokenTTL  time.Duration
}

type Option func(*Handler)

func WithAuditReader(r AuditReader) Option {
	return func(h *Handler) { h.auditLog = r }
}

func WithAuditEmitter(e audit.Emitter) Option {
	return func(h *Handler) { h.auditor = e }
}

func WithLocalizer(l httputil.ErrorLocalizer) Option {
	return func(h *Handler) { h.localizer = l }
}

func New(admin Admin, authz auth.Authorizer, tokens TokenIssuer, tokenTTL time.Duration, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		admin:    admin,
		authz:    authz,
		tokens:   tokens,
		tokenTTL: tokenTTL,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterPublic mounts routes that need no bearer token.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/auth/token", h.HandleToken)
}

// Register mounts authenticated routes. r must already run auth.RequireAuth.
func (h *Handler) Register(r chi.Router) {
	r.Get("/me/permissions", h.HandleMyPermissions)

	r.Route("/admin", func(r chi.Router) {
		r.With(h.gate(permissions.PermissionsView)).Get("/permissions", h.HandleListPermissions)
		r.With(h.gate(permissions.RolesView)).Get("/roles", h.HandleListRoles)
		r.With(h.gate(permissions.RolesManage)).Post("/roles", h.HandleCreateRole)
		r.With(h.gate(permissions.RolesManage)).Put("/roles/{id}/permissions", h.HandleSetRolePermissions)
		r.With(h.gate(permissions.RolesManage)).Put("/roles/{id}/active", h.HandleSetRoleActive)
		r.With(h.gate(permissions.PermissionsManage)).Put("/permissions/{permission}/active", h.HandleSetPermissionActive)
		r.With(h.gate(permissions.UsersManage)).Post("/users", h.HandleCreateUser)
		r.With(h.gate(permissions.UsersManage)).Put("/users/{id}/active", h.HandleSetUserActive)
		r.With(h.gate(permissions.UsersManage)).Post("/users/{id}/roles/{roleID}", h.HandleAssignRole)
		r.With(h.gate(permissions.UsersManage)).Delete("/users/{id}/roles/{roleID}", h.HandleRemoveRole)
		r.With(h.gate(permissions.PermissionsManage)).Put("/users/{id}/overrides/{permission}", h.HandleSetOverride)
		r.With(h.gate(permissions.PermissionsManage)).Delete("/users/{id}/overrides/{permission}", h.HandleClearOverride)
		if h.auditLog != nil {
			r.With(h.gate(permissions.AuditView)).Get("/audit", h.HandleListAudit)
		}
	})
}

func (h *Handler) gate(permission string) func(http.Handler) http.Handler {
	return auth.RequirePermission(h.authz, permission, h.logger, h.onDenied)
}

func (h *Handler) onDenied(ctx context.Context, userID id.UserID, permission string) {
	if h.auditor == nil {
		return
	}
	err := h.auditor.Emit(ctx, audit.Event{
		Action:       string(audit.EventAccessDenied),
		UserID:       userID,
		ActorID:      userID.String(),
		ResourceType: "permission",
		ResourceID:   permission,
		Decision:     "denied",
		RequestID:    requestcontext.RequestID(ctx),
		ClientIP:     requestcontext.ClientIP(ctx),
		Timestamp:    requestcontext.Now(ctx),
	})
	if err != nil {
		h.logger.WarnContext(ctx, "audit emit failed", "error", err)
	}
}

func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[TokenRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	user, err := h.admin.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	token, err := h.tokens.GenerateAccessToken(user.ID, h.tokenTTL)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue token",
			"request_id", requestID,
			"user_id", user.ID.String(),
			"error", err,
		)
		h.writeError(w, r, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.tokenTTL.Seconds()),
	})
}

func (h *Handler) HandleMyPermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)
	perms, err := h.admin.EffectivePermissions(ctx, userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	roles, err := h.admin.RoleNamesForUser(ctx, userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if perms == nil {
		perms = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"roles":       roles,
		"permissions": perms,
	})
}

func (h *Handler) HandleListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.admin.ListPermissions(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *Handler) HandleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.admin.ListRoles(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) HandleCreateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateRoleRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	role, err := h.admin.CreateRole(ctx, service.CreateRoleInput{
		SystemName:  req.SystemName,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, role)
}

func (h *Handler) HandleSetRolePermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roleID, err := id.ParseRoleID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[SetRolePermissionsRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.admin.SetRolePermissions(ctx, roleID, req.Permissions); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateUserRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	user, err := h.admin.CreateUser(ctx, service.CreateUserInput{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, user)
}

func (h *Handler) HandleAssignRole(w http.ResponseWriter, r *http.Request) {
	userID, roleID, err := userAndRole(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.admin.AssignRole(r.Context(), userID, roleID); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handler) HandleRemoveRole(w http.ResponseWriter, r *http.Request) {
	userID, roleID, err := userAndRole(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.admin.RemoveRole(r.Context(), userID, roleID); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handler) HandleSetOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[SetOverrideRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	o, err := h.admin.SetOverride(ctx, userID, chi.URLParam(r, "permission"), *req.Granted, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) HandleClearOverride(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.admin.ClearOverride(r.Context(), userID, chi.URLParam(r, "permission")); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handler) HandleSetUserActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[SetActiveRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.admin.SetUserActive(ctx, userID, *req.Active); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handler) HandleSetRoleActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roleID, err := id.ParseRoleID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[SetActiveRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.admin.SetRoleActive(ctx, roleID, *req.Active); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// HandleSetPermissionActive addresses the permission by system name.
func (h *Handler) HandleSetPermissionActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[SetActiveRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.admin.SetPermissionActive(ctx, chi.URLParam(r, "permission"), *req.Active); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// HandleListAudit answers ?user_id= or ?resource_type=&resource_id=.
func (h *Handler) HandleListAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	var (
		events []audit.Event
		err    error
	)
	switch {
	case q.Get("user_id") != "":
		var userID id.UserID
		userID, err = id.ParseUserID(q.Get("user_id"))
		if err == nil {
			events, err = h.auditLog.ListByUser(ctx, userID)
		}
	case q.Get("resource_type") != "" && q.Get("resource_id") != "":
		events, err = h.auditLog.ListByResource(ctx, q.Get("resource_type"), q.Get("resource_id"))
	default:
		err = dErrors.New(dErrors.CodeBadRequest, "user_id or resource_type and resource_id are required")
	}
	if err != nil {
		if dErrors.GetCode(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "failed to list audit events", "error", err)
		}
		h.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteLocalizedError(w, r, h.localizer, err)
}

func userAndRole(r *http.Request) (id.UserID, id.RoleID, error) {
	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		return id.UserID{}, id.RoleID{}, err
	}
	roleID, err := id.ParseRoleID(chi.URLParam(r, "roleID"))
	if err != nil {
		return id.UserID{}, id.RoleID{}, err
	}
	return userID, roleID, nil
}
