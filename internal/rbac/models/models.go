package models

import (
	"strings"
	"time"

	id "regflow/pkg/domain"
	dErrors "regflow/pkg/domain-errors"
	mail "regflow/pkg/email"
)

// SystemRole is the role vocabulary the registration workflow gates on.
// A Role whose SystemName equals one of these constants carries that meaning.
type SystemRole string

const (
	RoleMaker     SystemRole = "Maker"
	RoleChecker   SystemRole = "Checker"
	RoleRegulator SystemRole = "Regulator"
	RoleAdmin     SystemRole = "Admin"
)

// SystemRoles lists the built-in roles in seeding order.
var SystemRoles = []SystemRole{RoleMaker, RoleChecker, RoleRegulator, RoleAdmin}

func (r SystemRole) String() string { return string(r) }

const (
	maxSystemNameLength = 64
	maxNameLength       = 128
	maxUsernameLength   = 64
)

type Role struct {
	ID          id.RoleID `json:"id"`
	SystemName  string    `json:"system_name"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsSystem    bool      `json:"is_system"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewRole validates and builds an active, non-system role.
func NewRole(roleID id.RoleID, systemName, name, description string, now time.Time) (*Role, error) {
	systemName = strings.TrimSpace(systemName)
	name = strings.TrimSpace(name)
	if systemName == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "role system_name is required")
	}
	if len(systemName) > maxSystemNameLength || strings.ContainsAny(systemName, " \t\n") {
		return nil, dErrors.New(dErrors.CodeValidation, "role system_name must be a single word of at most 64 characters")
	}
	if name == "" {
		name = systemName
	}
	if len(name) > maxNameLength {
		return nil, dErrors.New(dErrors.CodeValidation, "role name must be 128 characters or less")
	}
	return &Role{
		ID:          roleID,
		SystemName:  systemName,
		Name:        name,
		Description: strings.TrimSpace(description),
		IsActive:    true,
		CreatedAt:   now,
	}, nil
}

// Permission is a named capability. SystemName is the unique key, e.g.
// "Registration.Approve".
type Permission struct {
	ID          id.PermissionID `json:"id"`
	SystemName  string          `json:"system_name"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	IsActive    bool            `json:"is_active"`
}

type RolePermission struct {
	RoleID       id.RoleID
	PermissionID id.PermissionID
}

// UserPermissionOverride grants or revokes one permission for one user
// regardless of role membership. It takes precedence over role grants.
type UserPermissionOverride struct {
	UserID       id.UserID       `json:"user_id"`
	PermissionID id.PermissionID `json:"permission_id"`
	IsGranted    bool            `json:"is_granted"`
	Reason       string          `json:"reason,omitempty"`
	GrantedBy    id.UserID       `json:"granted_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

type User struct {
	ID           id.UserID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewUser(userID id.UserID, username, email, fullName, passwordHash string, now time.Time) (*User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "username is required")
	}
	if len(username) > maxUsernameLength {
		return nil, dErrors.New(dErrors.CodeValidation, "username must be 64 characters or less")
	}
	email = strings.TrimSpace(email)
	if email != "" && !strings.Contains(email, "@") {
		return nil, dErrors.New(dErrors.CodeValidation, "email is invalid")
	}
	fullName = strings.TrimSpace(fullName)
	if fullName == "" && email != "" {
		fullName = mail.DisplayName(email)
	}
	return &User{
		ID:           userID,
		Username:     username,
		Email:        email,
		FullName:     fullName,
		PasswordHash: passwordHash,
		IsActive:     true,
		CreatedAt:    now,
	}, nil
}

// UserRole assigns a role to a user.
type UserRole struct {
	UserID id.UserID
	RoleID id.RoleID
}
