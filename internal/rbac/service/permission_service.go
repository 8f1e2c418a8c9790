package service

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"regflow/internal/rbac/models"
	"regflow/internal/rbac/permissions"
	id "regflow/pkg/domain"
	dErrors "regflow/pkg/domain-errors"
	"regflow/pkg/platform/audit"
	"regflow/pkg/platform/sentinel"
	platformstrings "regflow/pkg/platform/strings"
	"regflow/pkg/requestcontext"
)

const minPasswordLength = 8

// PermissionService administers users, roles, grants and overrides.
type PermissionService struct {
	store      Store
	cfg        *config
	bcryptCost int
}

func NewPermissionService(store Store, opts ...Option) *PermissionService {
	return &PermissionService{store: store, cfg: buildConfig(opts), bcryptCost: bcrypt.DefaultCost}
}

// WithBcryptCost lowers hashing cost in tests.
func (s *PermissionService) WithBcryptCost(cost int) *PermissionService {
	s.bcryptCost = cost
	return s
}

// EnsureCatalog seeds the permission catalog, the built-in roles and their
// default grants. It is idempotent and never removes grants added later.
func (s *PermissionService) EnsureCatalog(ctx context.Context) error {
	byName := make(map[string]id.PermissionID)
	for _, def := range permissions.All() {
		p := &models.Permission{
			ID:          id.PermissionID(uuid.New()),
			SystemName:  def.SystemName,
			Category:    def.Category,
			Description: def.Description,
			IsActive:    true,
		}
		if err := s.store.UpsertPermission(ctx, p); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to seed permission catalog")
		}
		byName[p.SystemName] = p.ID
	}

	now := requestcontext.Now(ctx)
	for _, sys := range models.SystemRoles {
		role, err := s.store.FindRoleBySystemName(ctx, sys.String())
		if errors.Is(err, sentinel.ErrNotFound) {
			role = &models.Role{
				ID:          id.RoleID(uuid.New()),
				SystemName:  sys.String(),
				Name:        sys.String(),
				Description: "Built-in " + sys.String() + " role",
				IsSystem:    true,
				IsActive:    true,
				CreatedAt:   now,
			}
			err = s.store.CreateRole(ctx, role)
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to seed system role")
		}
		for _, name := range permissions.DefaultGrants(sys) {
			if err := s.store.GrantRolePermission(ctx, role.ID, byName[name]); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to seed default grants")
			}
		}
	}
	s.invalidate(ctx)
	return nil
}

func (s *PermissionService) ListPermissions(ctx context.Context) ([]*models.Permission, error) {
	perms, err := s.store.ListPermissions(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list permissions")
	}
	return perms, nil
}

type CreateRoleInput struct {
	SystemName  string
	Name        string
	Description string
}

func (s *PermissionService) CreateRole(ctx context.Context, in CreateRoleInput) (*models.Role, error) {
	role, err := models.NewRole(id.RoleID(uuid.New()), in.SystemName, in.Name, in.Description, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateRole(ctx, role); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "role system_name must be unique")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create role")
	}
	s.record(ctx, "create_role", audit.Event{
		Action:       string(audit.EventRoleCreated),
		ResourceType: "role",
		ResourceID:   role.ID.String(),
		Subject:      role.SystemName,
	})
	return role, nil
}

// RoleWithPermissions pairs a role with its granted permission names.
type RoleWithPermissions struct {
	*models.Role
	Permissions []string `json:"permissions"`
}

func (s *PermissionService) ListRoles(ctx context.Context) ([]RoleWithPermissions, error) {
	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list roles")
	}
	out := make([]RoleWithPermissions, 0, len(roles))
	for _, r := range roles {
		perms, err := s.store.ListRolePermissions(ctx, r.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list role permissions")
		}
		names := make([]string, 0, len(perms))
		for _, p := range perms {
			names = append(names, p.SystemName)
		}
		out = append(out, RoleWithPermissions{Role: r, Permissions: names})
	}
	return out, nil
}

// SetRolePermissions replaces the role's grants with the named permissions.
// Every name must exist in the catalog.
func (s *PermissionService) SetRolePermissions(ctx context.Context, roleID id.RoleID, names []string) error {
	names = platformstrings.DedupeAndTrim(names)
	permIDs := make([]id.PermissionID, 0, len(names))
	for _, name := range names {
		p, err := s.lookupPermission(ctx, name)
		if err != nil {
			return err
		}
		permIDs = append(permIDs, p.ID)
	}
	if err := s.store.ReplaceRolePermissions(ctx, roleID, permIDs); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "role not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to set role permissions")
	}
	s.record(ctx, "set_role_permissions", audit.Event{
		Action:       string(audit.EventRolePermissionsChanged),
		ResourceType: "role",
		ResourceID:   roleID.String(),
		Reason:       strings.Join(names, ","),
	})
	return nil
}

type CreateUserInput struct {
	Username string
	Email    string
	FullName string
	Password string
}

func (s *PermissionService) CreateUser(ctx context.Context, in CreateUserInput) (*models.User, error) {
	if len(in.Password) < minPasswordLength {
		return nil, dErrors.New(dErrors.CodeValidation, "password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "password cannot be hashed")
	}
	user, err := models.NewUser(id.UserID(uuid.New()), in.Username, in.Email, in.FullName, string(hash), requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "username is already taken")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}
	s.record(ctx, "create_user", audit.Event{
		Action:       string(audit.EventUserCreated),
		UserID:       user.ID,
		ResourceType: "user",
		ResourceID:   user.ID.String(),
		Subject:      user.Username,
	})
	return user, nil
}

// Authenticate checks a username/password pair. Unknown users, inactive users
// and wrong passwords are indistinguishable to the caller.
func (s *PermissionService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	invalid := dErrors.New(dErrors.CodeUnauthorized, "invalid username or password")
	user, err := s.store.FindUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.emit(ctx, audit.Event{Action: string(audit.EventAuthFailed), Subject: username})
			return nil, invalid
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if !user.IsActive || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.emit(ctx, audit.Event{Action: string(audit.EventAuthFailed), UserID: user.ID, Subject: username})
		return nil, invalid
	}
	s.emit(ctx, audit.Event{Action: string(audit.EventTokenIssued), UserID: user.ID, Subject: username})
	return user, nil
}

func (s *PermissionService) AssignRole(ctx context.Context, userID id.UserID, roleID id.RoleID) error {
	if err := s.store.AssignRole(ctx, userID, roleID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "user or role not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to assign role")
	}
	s.record(ctx, "assign_role", audit.Event{
		Action:       string(audit.EventRoleAssigned),
		UserID:       userID,
		ResourceType: "role",
		ResourceID:   roleID.String(),
	})
	return nil
}

func (s *PermissionService) RemoveRole(ctx context.Context, userID id.UserID, roleID id.RoleID) error {
	if err := s.store.RemoveRole(ctx, userID, roleID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "role assignment not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove role")
	}
	s.record(ctx, "remove_role", audit.Event{
		Action:       string(audit.EventRoleRemoved),
		UserID:       userID,
		ResourceType: "role",
		ResourceID:   roleID.String(),
	})
	return nil
}

// SetOverride grants or revokes one permission for one user, replacing any
// previous override for the pair.
func (s *PermissionService) SetOverride(ctx context.Context, userID id.UserID, permission string, granted bool, reason string) (*models.UserPermissionOverride, error) {
	p, err := s.lookupPermission(ctx, permission)
	if err != nil {
		return nil, err
	}
	o := &models.UserPermissionOverride{
		UserID:       userID,
		PermissionID: p.ID,
		IsGranted:    granted,
		Reason:       strings.TrimSpace(reason),
		GrantedBy:    requestcontext.UserID(ctx),
		CreatedAt:    requestcontext.Now(ctx),
	}
	if err := s.store.UpsertOverride(ctx, o); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to set override")
	}
	decision := "revoked"
	if granted {
		decision = "granted"
	}
	s.record(ctx, "set_override", audit.Event{
		Action:       string(audit.EventOverrideSet),
		UserID:       userID,
		ResourceType: "permission",
		ResourceID:   permission,
		Decision:     decision,
		Reason:       o.Reason,
	})
	return o, nil
}

func (s *PermissionService) ClearOverride(ctx context.Context, userID id.UserID, permission string) error {
	p, err := s.lookupPermission(ctx, permission)
	if err != nil {
		return err
	}
	if err := s.store.DeleteOverride(ctx, userID, p.ID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "override not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear override")
	}
	s.record(ctx, "clear_override", audit.Event{
		Action:       string(audit.EventOverrideCleared),
		UserID:       userID,
		ResourceType: "permission",
		ResourceID:   permission,
	})
	return nil
}

// SetUserActive enables or disables a login. Inactive users fail
// authentication and every authorization check. Callers cannot deactivate
// themselves.
func (s *PermissionService) SetUserActive(ctx context.Context, userID id.UserID, active bool) error {
	if !active && userID == requestcontext.UserID(ctx) {
		return dErrors.New(dErrors.CodeValidation, "you cannot deactivate your own account")
	}
	if err := s.store.SetUserActive(ctx, userID, active); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update user")
	}
	s.record(ctx, "set_user_active", audit.Event{
		Action:       string(audit.EventActivationChanged),
		UserID:       userID,
		ResourceType: "user",
		ResourceID:   userID.String(),
		Decision:     activation(active),
	})
	return nil
}

// SetRoleActive enables or disables a role. Grants held only through an
// inactive role stop counting.
func (s *PermissionService) SetRoleActive(ctx context.Context, roleID id.RoleID, active bool) error {
	if err := s.store.SetRoleActive(ctx, roleID, active); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "role not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update role")
	}
	s.record(ctx, "set_role_active", audit.Event{
		Action:       string(audit.EventActivationChanged),
		ResourceType: "role",
		ResourceID:   roleID.String(),
		Decision:     activation(active),
	})
	return nil
}

// SetPermissionActive enables or disables a catalog permission by system
// name. An inactive permission is denied to everyone, overrides included.
func (s *PermissionService) SetPermissionActive(ctx context.Context, permission string, active bool) error {
	p, err := s.lookupPermission(ctx, permission)
	if err != nil {
		return err
	}
	if err := s.store.SetPermissionActive(ctx, p.ID, active); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "permission not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update permission")
	}
	s.record(ctx, "set_permission_active", audit.Event{
		Action:       string(audit.EventActivationChanged),
		ResourceType: "permission",
		ResourceID:   p.SystemName,
		Decision:     activation(active),
	})
	return nil
}

func activation(active bool) string {
	if active {
		return "activated"
	}
	return "deactivated"
}

// EffectivePermissions lists every active permission the user currently
// holds, applying overrides over role grants exactly as Authorize does.
func (s *PermissionService) EffectivePermissions(ctx context.Context, userID id.UserID) ([]string, error) {
	if _, err := s.activeUser(ctx, userID); err != nil {
		return nil, err
	}
	all, err := s.store.ListPermissions(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list permissions")
	}
	overrides, err := s.store.ListOverridesForUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list overrides")
	}
	overridden := make(map[id.PermissionID]bool, len(overrides))
	for _, o := range overrides {
		overridden[o.PermissionID] = o.IsGranted
	}
	roles, err := s.store.ListActiveRolesForUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list roles")
	}
	fromRoles := make(map[id.PermissionID]struct{})
	for _, r := range roles {
		perms, err := s.store.ListRolePermissions(ctx, r.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list role permissions")
		}
		for _, p := range perms {
			fromRoles[p.ID] = struct{}{}
		}
	}

	var out []string
	for _, p := range all {
		if !p.IsActive {
			continue
		}
		if granted, ok := overridden[p.ID]; ok {
			if granted {
				out = append(out, p.SystemName)
			}
			continue
		}
		if _, ok := fromRoles[p.ID]; ok {
			out = append(out, p.SystemName)
		}
	}
	slices.Sort(out)
	return out, nil
}

// RoleNamesForUser returns the system names of the user's active roles.
// Unknown and inactive users are NotFound.
func (s *PermissionService) RoleNamesForUser(ctx context.Context, userID id.UserID) ([]models.SystemRole, error) {
	if _, err := s.activeUser(ctx, userID); err != nil {
		return nil, err
	}
	roles, err := s.store.ListActiveRolesForUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list roles")
	}
	out := make([]models.SystemRole, 0, len(roles))
	for _, r := range roles {
		out = append(out, models.SystemRole(r.SystemName))
	}
	return out, nil
}

func (s *PermissionService) activeUser(ctx context.Context, userID id.UserID) (*models.User, error) {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if !user.IsActive {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	return user, nil
}

func (s *PermissionService) lookupPermission(ctx context.Context, name string) (*models.Permission, error) {
	name = strings.TrimSpace(name)
	p, err := s.store.FindPermissionBySystemName(ctx, name)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeValidation, "unknown permission "+name)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load permission")
	}
	return p, nil
}

// record finishes a successful mutation: cache invalidation, metric, audit.
func (s *PermissionService) record(ctx context.Context, operation string, event audit.Event) {
	s.invalidate(ctx)
	if s.cfg.metrics != nil {
		s.cfg.metrics.IncrementMutation(operation)
	}
	s.emit(ctx, event)
}

func (s *PermissionService) invalidate(ctx context.Context) {
	if s.cfg.cache == nil {
		return
	}
	if err := s.cfg.cache.Invalidate(ctx); err != nil {
		s.cfg.logger.ErrorContext(ctx, "authorization cache invalidation failed", "error", err)
		if s.cfg.metrics != nil {
			s.cfg.metrics.IncrementCacheError()
		}
	}
}

func (s *PermissionService) emit(ctx context.Context, event audit.Event) {
	if s.cfg.auditor == nil {
		return
	}
	if actor := requestcontext.UserID(ctx); !actor.IsNil() {
		event.ActorID = actor.String()
	}
	event.RequestID = requestcontext.RequestID(ctx)
	event.ClientIP = requestcontext.ClientIP(ctx)
	event.Timestamp = requestcontext.Now(ctx)
	if err := s.cfg.auditor.Emit(ctx, event); err != nil {
		s.cfg.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}
