package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "regflow/pkg/domain-errors"
)

// Typed identifiers. Each wraps a UUID so that a RoleID can never be passed
// where a UserID is expected.
type (
	UserID         uuid.UUID
	RoleID         uuid.UUID
	PermissionID   uuid.UUID
	RegistrationID uuid.UUID
	StatusLogID    uuid.UUID
	NotificationID uuid.UUID
)

// maxIDLength bounds parser input before handing it to uuid.Parse.
const maxIDLength = 64

func parseID(kind, s string) (uuid.UUID, error) {
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is too long")
	}
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" must not be nil")
	}
	return u, nil
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseID("user_id", s)
	return UserID(u), err
}

func ParseRoleID(s string) (RoleID, error) {
	u, err := parseID("role_id", s)
	return RoleID(u), err
}

func ParsePermissionID(s string) (PermissionID, error) {
	u, err := parseID("permission_id", s)
	return PermissionID(u), err
}

func ParseRegistrationID(s string) (RegistrationID, error) {
	u, err := parseID("registration_id", s)
	return RegistrationID(u), err
}

func ParseNotificationID(s string) (NotificationID, error) {
	u, err := parseID("notification_id", s)
	return NotificationID(u), err
}

func (id UserID) String() string         { return uuid.UUID(id).String() }
func (id RoleID) String() string         { return uuid.UUID(id).String() }
func (id PermissionID) String() string   { return uuid.UUID(id).String() }
func (id RegistrationID) String() string { return uuid.UUID(id).String() }
func (id StatusLogID) String() string    { return uuid.UUID(id).String() }
func (id NotificationID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id RoleID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id PermissionID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id RegistrationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id NotificationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// Text marshalling keeps JSON payloads in canonical UUID form.

func (id UserID) MarshalText() ([]byte, error)         { return uuid.UUID(id).MarshalText() }
func (id RoleID) MarshalText() ([]byte, error)         { return uuid.UUID(id).MarshalText() }
func (id PermissionID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id RegistrationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id StatusLogID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id NotificationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *RoleID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *PermissionID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *RegistrationID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *StatusLogID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *NotificationID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}
