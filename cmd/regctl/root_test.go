package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"regflow/internal/platform/jwt"
	"regflow/internal/rbac/models"
	rbacservice "regflow/internal/rbac/service"
	rbacstore "regflow/internal/rbac/store"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestToken_IssuesVerifiableToken(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY", "cli-test-key")
	t.Setenv("JWT_ISSUER", "regflow")
	userID := uuid.NewString()

	out, err := execute(t, "token", "--user", userID, "--ttl", "5m")
	require.NoError(t, err)

	claims, err := jwt.NewService("cli-test-key", "regflow").ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
}

func TestToken_RejectsBadUser(t *testing.T) {
	_, err := execute(t, "token", "--user", "nobody")
	assert.Error(t, err)

	_, err = execute(t, "token")
	assert.Error(t, err, "--user is required")
}

func TestStorageCommandsNeedDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REGFLOW_ADMIN_PASSWORD", "password-123")
	for _, args := range [][]string{{"migrate", "up"}, {"migrate", "version"}, {"seed"}} {
		_, err := execute(t, args...)
		assert.ErrorIs(t, err, errNoDatabase, "%v", args)
	}
}

func TestSeedAdmin_IsRepeatable(t *testing.T) {
	ctx := context.Background()
	store := rbacstore.NewInMemory()
	perms := rbacservice.NewPermissionService(store).WithBcryptCost(bcrypt.MinCost)
	in := rbacservice.CreateUserInput{Username: "admin", Password: "password-123"}

	var out bytes.Buffer
	require.NoError(t, seedAdmin(ctx, store, perms, in, &out))
	require.NoError(t, seedAdmin(ctx, store, perms, in, &out))
	assert.Contains(t, out.String(), "already exists")

	user, err := store.FindUserByUsername(ctx, "admin")
	require.NoError(t, err)
	roles, err := perms.RoleNamesForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.SystemRole{models.RoleAdmin}, roles)
}
