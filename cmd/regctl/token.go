package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"regflow/internal/platform/config"
	"regflow/internal/platform/jwt"
	id "regflow/pkg/domain"
)

func newTokenCmd() *cobra.Command {
	var (
		user string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user",
		Long: `Mint a bearer token signed with JWT_SIGNING_KEY for the given user ID.

Examples:
  regctl token --user 3f1c2a4e-...            # default lifetime
  regctl token --user 3f1c2a4e-... --ttl 15m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := id.ParseUserID(user)
			if err != nil {
				return err
			}
			auth := config.FromEnv().Auth
			if ttl <= 0 {
				ttl = auth.TokenTTL
			}
			token, err := jwt.NewService(auth.JWTSigningKey, auth.JWTIssuer).GenerateAccessToken(userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user ID the token is issued for")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default JWT_TOKEN_TTL)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
