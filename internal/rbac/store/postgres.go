package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"regflow/internal/platform/postgres"
	"regflow/internal/rbac/models"
	id "regflow/pkg/domain"
	"regflow/pkg/platform/sentinel"
	txcontext "regflow/pkg/platform/tx"
)

// Postgres persists RBAC entities in the users/roles/permissions tables.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) q(ctx context.Context) queryer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func requireAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
	}
	return nil
}

// Users

const userColumns = `id, username, email, full_name, password_hash, is_active, created_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var (
		u   models.User
		uid uuid.UUID
	)
	if err := row.Scan(&uid, &u.Username, &u.Email, &u.FullName, &u.PasswordHash, &u.IsActive, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.ID = id.UserID(uid)
	return &u, nil
}

func (s *Postgres) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.UUID(user.ID), user.Username, user.Email, user.FullName, user.PasswordHash, user.IsActive, user.CreatedAt)
	return postgres.MapError(err, "insert user")
}

func (s *Postgres) FindUserByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	u, err := scanUser(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, uuid.UUID(userID)))
	if err != nil {
		return nil, postgres.MapError(err, "find user")
	}
	return u, nil
}

func (s *Postgres) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	u, err := scanUser(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, username))
	if err != nil {
		return nil, postgres.MapError(err, "find user by username")
	}
	return u, nil
}

func (s *Postgres) SetUserActive(ctx context.Context, userID id.UserID, active bool) error {
	res, err := s.q(ctx).ExecContext(ctx, `UPDATE users SET is_active = $2 WHERE id = $1`, uuid.UUID(userID), active)
	if err != nil {
		return postgres.MapError(err, "update user")
	}
	return requireAffected(res, "update user")
}

// Roles

const roleColumns = `id, system_name, name, description, is_system, is_active, created_at`

func scanRole(row interface{ Scan(...any) error }) (*models.Role, error) {
	var (
		r   models.Role
		rid uuid.UUID
	)
	if err := row.Scan(&rid, &r.SystemName, &r.Name, &r.Description, &r.IsSystem, &r.IsActive, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.ID = id.RoleID(rid)
	return &r, nil
}

func (s *Postgres) listRoles(ctx context.Context, op, query string, args ...any) ([]*models.Role, error) {
	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, postgres.MapError(err, op)
	}
	defer rows.Close()
	var out []*models.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", op, err)
	}
	return out, nil
}

func (s *Postgres) CreateRole(ctx context.Context, role *models.Role) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO roles (`+roleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.UUID(role.ID), role.SystemName, role.Name, role.Description, role.IsSystem, role.IsActive, role.CreatedAt)
	return postgres.MapError(err, "insert role")
}

func (s *Postgres) FindRoleByID(ctx context.Context, roleID id.RoleID) (*models.Role, error) {
	r, err := scanRole(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE id = $1`, uuid.UUID(roleID)))
	if err != nil {
		return nil, postgres.MapError(err, "find role")
	}
	return r, nil
}

func (s *Postgres) FindRoleBySystemName(ctx context.Context, systemName string) (*models.Role, error) {
	r, err := scanRole(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE system_name = $1`, systemName))
	if err != nil {
		return nil, postgres.MapError(err, "find role by system name")
	}
	return r, nil
}

func (s *Postgres) ListRoles(ctx context.Context) ([]*models.Role, error) {
	return s.listRoles(ctx, "list roles", `SELECT `+roleColumns+` FROM roles ORDER BY system_name`)
}

func (s *Postgres) SetRoleActive(ctx context.Context, roleID id.RoleID, active bool) error {
	res, err := s.q(ctx).ExecContext(ctx, `UPDATE roles SET is_active = $2 WHERE id = $1`, uuid.UUID(roleID), active)
	if err != nil {
		return postgres.MapError(err, "update role")
	}
	return requireAffected(res, "update role")
}

// Permissions

const permissionColumns = `id, system_name, category, description, is_active`

func scanPermission(row interface{ Scan(...any) error }) (*models.Permission, error) {
	var (
		p   models.Permission
		pid uuid.UUID
	)
	if err := row.Scan(&pid, &p.SystemName, &p.Category, &p.Description, &p.IsActive); err != nil {
		return nil, err
	}
	p.ID = id.PermissionID(pid)
	return &p, nil
}

func (s *Postgres) UpsertPermission(ctx context.Context, perm *models.Permission) error {
	stored, err := scanPermission(s.q(ctx).QueryRowContext(ctx, `
		INSERT INTO permissions (`+permissionColumns+`)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (system_name) DO UPDATE
		SET category = EXCLUDED.category, description = EXCLUDED.description
		RETURNING `+permissionColumns,
		uuid.UUID(perm.ID), perm.SystemName, perm.Category, perm.Description, perm.IsActive))
	if err != nil {
		return postgres.MapError(err, "upsert permission")
	}
	*perm = *stored
	return nil
}

func (s *Postgres) FindPermissionBySystemName(ctx context.Context, systemName string) (*models.Permission, error) {
	p, err := scanPermission(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+permissionColumns+` FROM permissions WHERE system_name = $1`, systemName))
	if err != nil {
		return nil, postgres.MapError(err, "find permission")
	}
	return p, nil
}

func (s *Postgres) listPermissions(ctx context.Context, op, query string, args ...any) ([]*models.Permission, error) {
	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, postgres.MapError(err, op)
	}
	defer rows.Close()
	var out []*models.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", op, err)
	}
	return out, nil
}

func (s *Postgres) ListPermissions(ctx context.Context) ([]*models.Permission, error) {
	return s.listPermissions(ctx, "list permissions",
		`SELECT `+permissionColumns+` FROM permissions ORDER BY system_name`)
}

func (s *Postgres) SetPermissionActive(ctx context.Context, permID id.PermissionID, active bool) error {
	res, err := s.q(ctx).ExecContext(ctx, `UPDATE permissions SET is_active = $2 WHERE id = $1`, uuid.UUID(permID), active)
	if err != nil {
		return postgres.MapError(err, "update permission")
	}
	return requireAffected(res, "update permission")
}

// Role permissions

func (s *Postgres) GrantRolePermission(ctx context.Context, roleID id.RoleID, permID id.PermissionID) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO role_permissions (role_id, permission_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, uuid.UUID(roleID), uuid.UUID(permID))
	return postgres.MapError(err, "grant role permission")
}

// ReplaceRolePermissions swaps the role's grants for exactly permIDs inside
// one transaction.
func (s *Postgres) ReplaceRolePermissions(ctx context.Context, roleID id.RoleID, permIDs []id.PermissionID) error {
	return txcontext.RunInTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, uuid.UUID(roleID)).Scan(&exists); err != nil {
			return postgres.MapError(err, "check role")
		}
		if !exists {
			return fmt.Errorf("role: %w", sentinel.ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, uuid.UUID(roleID)); err != nil {
			return postgres.MapError(err, "clear role permissions")
		}
		for _, pid := range permIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, uuid.UUID(roleID), uuid.UUID(pid)); err != nil {
				return postgres.MapError(err, "insert role permission")
			}
		}
		return nil
	})
}

func (s *Postgres) ListRolePermissions(ctx context.Context, roleID id.RoleID) ([]*models.Permission, error) {
	return s.listPermissions(ctx, "list role permissions", `
		SELECT p.id, p.system_name, p.category, p.description, p.is_active
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.system_name
	`, uuid.UUID(roleID))
}

// User roles

func (s *Postgres) AssignRole(ctx context.Context, userID id.UserID, roleID id.RoleID) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, uuid.UUID(userID), uuid.UUID(roleID))
	return postgres.MapError(err, "assign role")
}

func (s *Postgres) RemoveRole(ctx context.Context, userID id.UserID, roleID id.RoleID) error {
	res, err := s.q(ctx).ExecContext(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, uuid.UUID(userID), uuid.UUID(roleID))
	if err != nil {
		return postgres.MapError(err, "remove role")
	}
	return requireAffected(res, "remove role")
}

func (s *Postgres) ListActiveRolesForUser(ctx context.Context, userID id.UserID) ([]*models.Role, error) {
	return s.listRoles(ctx, "list user roles", `
		SELECT r.id, r.system_name, r.name, r.description, r.is_system, r.is_active, r.created_at
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1 AND r.is_active
		ORDER BY r.system_name
	`, uuid.UUID(userID))
}

func (s *Postgres) HasRoleGrant(ctx context.Context, userID id.UserID, permID id.PermissionID) (bool, error) {
	var granted bool
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM user_roles ur
			JOIN roles r ON r.id = ur.role_id AND r.is_active
			JOIN role_permissions rp ON rp.role_id = r.id
			WHERE ur.user_id = $1 AND rp.permission_id = $2
		)
	`, uuid.UUID(userID), uuid.UUID(permID)).Scan(&granted)
	if err != nil {
		return false, postgres.MapError(err, "check role grant")
	}
	return granted, nil
}

// Overrides

const overrideColumns = `user_id, permission_id, is_granted, reason, granted_by, created_at`

func scanOverride(row interface{ Scan(...any) error }) (*models.UserPermissionOverride, error) {
	var (
		o         models.UserPermissionOverride
		uid, pid  uuid.UUID
		grantedBy uuid.NullUUID
	)
	if err := row.Scan(&uid, &pid, &o.IsGranted, &o.Reason, &grantedBy, &o.CreatedAt); err != nil {
		return nil, err
	}
	o.UserID = id.UserID(uid)
	o.PermissionID = id.PermissionID(pid)
	if grantedBy.Valid {
		o.GrantedBy = id.UserID(grantedBy.UUID)
	}
	return &o, nil
}

func (s *Postgres) UpsertOverride(ctx context.Context, o *models.UserPermissionOverride) error {
	grantedBy := uuid.NullUUID{UUID: uuid.UUID(o.GrantedBy), Valid: !o.GrantedBy.IsNil()}
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO user_permission_overrides (`+overrideColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, permission_id) DO UPDATE
		SET is_granted = EXCLUDED.is_granted,
		    reason = EXCLUDED.reason,
		    granted_by = EXCLUDED.granted_by,
		    created_at = EXCLUDED.created_at
	`, uuid.UUID(o.UserID), uuid.UUID(o.PermissionID), o.IsGranted, o.Reason, grantedBy, o.CreatedAt)
	return postgres.MapError(err, "upsert override")
}

func (s *Postgres) DeleteOverride(ctx context.Context, userID id.UserID, permID id.PermissionID) error {
	res, err := s.q(ctx).ExecContext(ctx,
		`DELETE FROM user_permission_overrides WHERE user_id = $1 AND permission_id = $2`,
		uuid.UUID(userID), uuid.UUID(permID))
	if err != nil {
		return postgres.MapError(err, "delete override")
	}
	return requireAffected(res, "delete override")
}

func (s *Postgres) FindOverride(ctx context.Context, userID id.UserID, permID id.PermissionID) (*models.UserPermissionOverride, error) {
	o, err := scanOverride(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+overrideColumns+` FROM user_permission_overrides WHERE user_id = $1 AND permission_id = $2`,
		uuid.UUID(userID), uuid.UUID(permID)))
	if err != nil {
		return nil, postgres.MapError(err, "find override")
	}
	return o, nil
}

func (s *Postgres) ListOverridesForUser(ctx context.Context, userID id.UserID) ([]*models.UserPermissionOverride, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+overrideColumns+` FROM user_permission_overrides WHERE user_id = $1`, uuid.UUID(userID))
	if err != nil {
		return nil, postgres.MapError(err, "list overrides")
	}
	defer rows.Close()
	var out []*models.UserPermissionOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("list overrides: scan: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list overrides: iterate: %w", err)
	}
	return out, nil
}
