package main

import (
	"fmt"
	"strings"

	"shopfront/internal/domain"
	"shopfront/internal/repository"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set-role <email> <role>",
		Short: "Change the role of an account (user, moderator, admin)",
		Long: `Change the role of an account. Roles are never derived from the email
address; promoting an administrator is an explicit operation.

Examples:
  storectl users set-role jane@example.com admin
  storectl users set-role mod@example.com moderator`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := strings.ToLower(strings.TrimSpace(args[0]))
			role := domain.Role(strings.ToLower(args[1]))
			if !role.Valid() {
				return fmt.Errorf("unknown role %q", args[1])
			}

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			users := repository.NewUserRepository(e.db.DB(), e.cfg.Database.QueryTimeout)
			if err := users.SetRole(cmd.Context(), email, role); err != nil {
				return fmt.Errorf("failed to set role: %w", err)
			}

			e.logger.Info("Role updated", zap.String("email", email), zap.String("role", string(role)))
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", email, role)
			return nil
		},
	})

	return cmd
}
