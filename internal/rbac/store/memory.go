package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"regflow/internal/rbac/models"
	id "regflow/pkg/domain"
	"regflow/pkg/platform/sentinel"
)

type overrideKey struct {
	user id.UserID
	perm id.PermissionID
}

// InMemory is a mutex-guarded RBAC store for tests and database-less runs.
type InMemory struct {
	mu sync.RWMutex

	users           map[id.UserID]*models.User
	roles           map[id.RoleID]*models.Role
	permissions     map[id.PermissionID]*models.Permission
	rolePermissions map[id.RoleID]map[id.PermissionID]struct{}
	userRoles       map[id.UserID]map[id.RoleID]struct{}
	overrides       map[overrideKey]*models.UserPermissionOverride
}

func NewInMemory() *InMemory {
	return &InMemory{
		users:           make(map[id.UserID]*models.User),
		roles:           make(map[id.RoleID]*models.Role),
		permissions:     make(map[id.PermissionID]*models.Permission),
		rolePermissions: make(map[id.RoleID]map[id.PermissionID]struct{}),
		userRoles:       make(map[id.UserID]map[id.RoleID]struct{}),
		overrides:       make(map[overrideKey]*models.UserPermissionOverride),
	}
}

// Users

func (s *InMemory) CreateUser(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, user.Username) {
			return fmt.Errorf("username %q: %w", user.Username, sentinel.ErrConflict)
		}
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *InMemory) FindUserByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *InMemory) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) SetUserActive(ctx context.Context, userID id.UserID, active bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	u.IsActive = active
	return nil
}

// Roles

func (s *InMemory) CreateRole(ctx context.Context, role *models.Role) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.SystemName == role.SystemName {
			return fmt.Errorf("role %q: %w", role.SystemName, sentinel.ErrConflict)
		}
	}
	cp := *role
	s.roles[role.ID] = &cp
	return nil
}

func (s *InMemory) FindRoleByID(ctx context.Context, roleID id.RoleID) (*models.Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[roleID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *InMemory) FindRoleBySystemName(ctx context.Context, systemName string) (*models.Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r.SystemName == systemName {
			cp := *r
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) ListRoles(ctx context.Context) ([]*models.Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Role, 0, len(s.roles))
	for _, r := range s.roles {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SystemName < out[j].SystemName })
	return out, nil
}

func (s *InMemory) SetRoleActive(ctx context.Context, roleID id.RoleID, active bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[roleID]
	if !ok {
		return sentinel.ErrNotFound
	}
	r.IsActive = active
	return nil
}

// Permissions

// UpsertPermission inserts by SystemName or refreshes category and
// description of an existing entry. The stored permission is written back.
func (s *InMemory) UpsertPermission(ctx context.Context, perm *models.Permission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.permissions {
		if p.SystemName == perm.SystemName {
			p.Category = perm.Category
			p.Description = perm.Description
			*perm = *p
			return nil
		}
	}
	cp := *perm
	s.permissions[perm.ID] = &cp
	return nil
}

func (s *InMemory) FindPermissionBySystemName(ctx context.Context, systemName string) (*models.Permission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.permissions {
		if p.SystemName == systemName {
			cp := *p
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) ListPermissions(ctx context.Context) ([]*models.Permission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SystemName < out[j].SystemName })
	return out, nil
}

func (s *InMemory) SetPermissionActive(ctx context.Context, permID id.PermissionID, active bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.permissions[permID]
	if !ok {
		return sentinel.ErrNotFound
	}
	p.IsActive = active
	return nil
}

// Role permissions

func (s *InMemory) GrantRolePermission(ctx context.Context, roleID id.RoleID, permID id.PermissionID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return fmt.Errorf("role: %w", sentinel.ErrNotFound)
	}
	if _, ok := s.permissions[permID]; !ok {
		return fmt.Errorf("permission: %w", sentinel.ErrNotFound)
	}
	set, ok := s.rolePermissions[roleID]
	if !ok {
		set = make(map[id.PermissionID]struct{})
		s.rolePermissions[roleID] = set
	}
	set[permID] = struct{}{}
	return nil
}

// ReplaceRolePermissions swaps the role's grants for exactly permIDs.
func (s *InMemory) ReplaceRolePermissions(ctx context.Context, roleID id.RoleID, permIDs []id.PermissionID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return fmt.Errorf("role: %w", sentinel.ErrNotFound)
	}
	set := make(map[id.PermissionID]struct{}, len(permIDs))
	for _, pid := range permIDs {
		if _, ok := s.permissions[pid]; !ok {
			return fmt.Errorf("permission: %w", sentinel.ErrNotFound)
		}
		set[pid] = struct{}{}
	}
	s.rolePermissions[roleID] = set
	return nil
}

func (s *InMemory) ListRolePermissions(ctx context.Context, roleID id.RoleID) ([]*models.Permission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Permission
	for pid := range s.rolePermissions[roleID] {
		cp := *s.permissions[pid]
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SystemName < out[j].SystemName })
	return out, nil
}

// User roles

func (s *InMemory) AssignRole(ctx context.Context, userID id.UserID, roleID id.RoleID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return fmt.Errorf("user: %w", sentinel.ErrNotFound)
	}
	if _, ok := s.roles[roleID]; !ok {
		return fmt.Errorf("role: %w", sentinel.ErrNotFound)
	}
	set, ok := s.userRoles[userID]
	if !ok {
		set = make(map[id.RoleID]struct{})
		s.userRoles[userID] = set
	}
	set[roleID] = struct{}{}
	return nil
}

func (s *InMemory) RemoveRole(ctx context.Context, userID id.UserID, roleID id.RoleID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.userRoles[userID]
	if _, ok := set[roleID]; !ok {
		return fmt.Errorf("role assignment: %w", sentinel.ErrNotFound)
	}
	delete(set, roleID)
	return nil
}

// ListActiveRolesForUser returns the user's roles whose IsActive flag is set.
func (s *InMemory) ListActiveRolesForUser(ctx context.Context, userID id.UserID) ([]*models.Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Role
	for rid := range s.userRoles[userID] {
		r := s.roles[rid]
		if r == nil || !r.IsActive {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SystemName < out[j].SystemName })
	return out, nil
}

// HasRoleGrant reports whether any active role of the user grants permID.
func (s *InMemory) HasRoleGrant(ctx context.Context, userID id.UserID, permID id.PermissionID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for rid := range s.userRoles[userID] {
		r := s.roles[rid]
		if r == nil || !r.IsActive {
			continue
		}
		if _, ok := s.rolePermissions[rid][permID]; ok {
			return true, nil
		}
	}
	return false, nil
}

// Overrides

func (s *InMemory) UpsertOverride(ctx context.Context, o *models.UserPermissionOverride) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[o.UserID]; !ok {
		return fmt.Errorf("user: %w", sentinel.ErrNotFound)
	}
	if _, ok := s.permissions[o.PermissionID]; !ok {
		return fmt.Errorf("permission: %w", sentinel.ErrNotFound)
	}
	cp := *o
	s.overrides[overrideKey{o.UserID, o.PermissionID}] = &cp
	return nil
}

func (s *InMemory) DeleteOverride(ctx context.Context, userID id.UserID, permID id.PermissionID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := overrideKey{userID, permID}
	if _, ok := s.overrides[key]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.overrides, key)
	return nil
}

func (s *InMemory) FindOverride(ctx context.Context, userID id.UserID, permID id.PermissionID) (*models.UserPermissionOverride, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.overrides[overrideKey{userID, permID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *InMemory) ListOverridesForUser(ctx context.Context, userID id.UserID) ([]*models.UserPermissionOverride, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.UserPermissionOverride
	for k, o := range s.overrides {
		if k.user == userID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}
