package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"regflow/internal/rbac/models"
	rbacservice "regflow/internal/rbac/service"
	rbacstore "regflow/internal/rbac/store"
	dErrors "regflow/pkg/domain-errors"
)

func newSeedCmd() *cobra.Command {
	var username, email string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the permission catalog and an administrator",
		Long: `Seed the permission catalog, the built-in roles and one user holding the
Admin role. The password is read from REGFLOW_ADMIN_PASSWORD. Running seed
again is safe: an existing user keeps its password and is granted Admin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password := os.Getenv("REGFLOW_ADMIN_PASSWORD")
			if password == "" {
				return fmt.Errorf("REGFLOW_ADMIN_PASSWORD is not set")
			}
			db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			store := rbacstore.NewPostgres(db)
			return seedAdmin(cmd.Context(), store, rbacservice.NewPermissionService(store),
				rbacservice.CreateUserInput{Username: username, Email: email, FullName: "Administrator", Password: password},
				cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&username, "username", "admin", "administrator username")
	cmd.Flags().StringVar(&email, "email", "", "administrator email")
	return cmd
}

func seedAdmin(ctx context.Context, store rbacservice.Store, perms *rbacservice.PermissionService, in rbacservice.CreateUserInput, out io.Writer) error {
	if err := perms.EnsureCatalog(ctx); err != nil {
		return err
	}
	user, err := perms.CreateUser(ctx, in)
	switch {
	case dErrors.HasCode(err, dErrors.CodeConflict):
		if user, err = store.FindUserByUsername(ctx, in.Username); err != nil {
			return err
		}
		fmt.Fprintf(out, "user %s already exists\n", in.Username)
	case err != nil:
		return err
	}
	role, err := store.FindRoleBySystemName(ctx, models.RoleAdmin.String())
	if err != nil {
		return err
	}
	if err := perms.AssignRole(ctx, user.ID, role.ID); err != nil {
		return err
	}
	fmt.Fprintf(out, "admin %s (%s) ready\n", user.Username, user.ID)
	return nil
}
