package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "regflow/pkg/domain"
	dErrors "regflow/pkg/domain-errors"
)

func TestNewRole(t *testing.T) {
	now := time.Now()

	role, err := NewRole(id.RoleID(uuid.New()), " Auditor ", "", "reads history", now)
	require.NoError(t, err)
	assert.Equal(t, "Auditor", role.SystemName)
	assert.Equal(t, "Auditor", role.Name, "name defaults to system name")
	assert.True(t, role.IsActive)
	assert.False(t, role.IsSystem)

	_, err = NewRole(id.RoleID(uuid.New()), "", "x", "", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = NewRole(id.RoleID(uuid.New()), "two words", "x", "", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestNewUser(t *testing.T) {
	now := time.Now()

	u, err := NewUser(id.UserID(uuid.New()), "  Alice ", "alice@example.com", "Alice A", "hash", now)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.True(t, u.IsActive)
	assert.Equal(t, "Alice A", u.FullName)

	derived, err := NewUser(id.UserID(uuid.New()), "jdoe", "jane.doe@bank.example", "", "hash", now)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", derived.FullName)

	_, err = NewUser(id.UserID(uuid.New()), "bob", "not-an-email", "", "", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = NewUser(id.UserID(uuid.New()), "   ", "", "", "", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
