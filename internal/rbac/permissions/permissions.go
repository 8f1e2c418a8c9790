// Package permissions is the static catalog of permission system names,
// grouped by feature area, plus the default grants for the built-in roles.
package permissions

import (
	"slices"

	"regflow/internal/rbac/models"
)

const (
	CategoryRegistration = "Registration"
	CategoryRoles        = "Roles"
	CategoryUsers        = "Users"
	CategoryPermissions  = "Permissions"
	CategoryAudit        = "Audit"
)

// Registration
const (
	RegistrationCreate        = "Registration.Create"
	RegistrationView          = "Registration.View"
	RegistrationEdit          = "Registration.Edit"
	RegistrationSubmit        = "Registration.Submit"
	RegistrationReview        = "Registration.Review"
	RegistrationApprove       = "Registration.Approve"
	RegistrationReject        = "Registration.Reject"
	RegistrationReturnForEdit = "Registration.ReturnForEdit"
	RegistrationArchive       = "Registration.Archive"
	RegistrationViewHistory   = "Registration.ViewHistory"
)

// Administration
const (
	RolesView         = "Roles.View"
	RolesManage       = "Roles.Manage"
	UsersView         = "Users.View"
	UsersManage       = "Users.Manage"
	PermissionsView   = "Permissions.View"
	PermissionsManage = "Permissions.Manage"
	AuditView         = "Audit.View"
)

// Definition describes one catalog entry.
type Definition struct {
	SystemName  string
	Category    string
	Description string
}

var catalog = []Definition{
	{RegistrationCreate, CategoryRegistration, "Create registration drafts"},
	{RegistrationView, CategoryRegistration, "View registrations"},
	{RegistrationEdit, CategoryRegistration, "Edit registration details while in draft"},
	{RegistrationSubmit, CategoryRegistration, "Submit a draft for review"},
	{RegistrationReview, CategoryRegistration, "Move a submitted registration under review"},
	{RegistrationApprove, CategoryRegistration, "Approve a registration"},
	{RegistrationReject, CategoryRegistration, "Reject a registration"},
	{RegistrationReturnForEdit, CategoryRegistration, "Return a registration to its maker"},
	{RegistrationArchive, CategoryRegistration, "Archive a registration"},
	{RegistrationViewHistory, CategoryRegistration, "View registration status history"},

	{RolesView, CategoryRoles, "List roles and their permissions"},
	{RolesManage, CategoryRoles, "Create roles and change their permissions"},
	{UsersView, CategoryUsers, "List users"},
	{UsersManage, CategoryUsers, "Create users and assign roles"},
	{PermissionsView, CategoryPermissions, "List the permission catalog"},
	{PermissionsManage, CategoryPermissions, "Grant or revoke per-user permission overrides"},
	{AuditView, CategoryAudit, "Read the audit trail"},
}

// All returns the catalog in declaration order. The slice is a copy.
func All() []Definition {
	return slices.Clone(catalog)
}

// ByCategory groups the catalog by feature area.
func ByCategory() map[string][]Definition {
	out := make(map[string][]Definition)
	for _, d := range catalog {
		out[d.Category] = append(out[d.Category], d)
	}
	return out
}

func IsKnown(systemName string) bool {
	return slices.ContainsFunc(catalog, func(d Definition) bool { return d.SystemName == systemName })
}

var registrationRead = []string{RegistrationView, RegistrationViewHistory}

var defaultGrants = map[models.SystemRole][]string{
	models.RoleMaker: append([]string{
		RegistrationCreate, RegistrationEdit, RegistrationSubmit,
	}, registrationRead...),
	models.RoleChecker: append([]string{
		RegistrationEdit, RegistrationSubmit, RegistrationReview, RegistrationReturnForEdit,
	}, registrationRead...),
	models.RoleRegulator: append([]string{
		RegistrationApprove, RegistrationReject, RegistrationReturnForEdit, AuditView,
	}, registrationRead...),
}

// DefaultGrants returns the permissions seeded for a built-in role. Admin
// receives the whole catalog.
func DefaultGrants(role models.SystemRole) []string {
	if role == models.RoleAdmin {
		out := make([]string, 0, len(catalog))
		for _, d := range catalog {
			out = append(out, d.SystemName)
		}
		return out
	}
	return slices.Clone(defaultGrants[role])
}
