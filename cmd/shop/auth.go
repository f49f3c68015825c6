package main

import (
	"errors"
	"fmt"
	"os"

	"shopfront/internal/domain"
	"shopfront/internal/storefront"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				password = os.Getenv("SHOP_PASSWORD")
			}
			if email == "" || password == "" {
				return errors.New("--email and --password (or SHOP_PASSWORD) are required")
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			auth, err := a.client.Login(cmd.Context(), email, password)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			session := storefront.SessionFromAuth(auth)
			if err := a.sessions.Save(session); err != nil {
				return err
			}

			fmt.Fprintf(a.out, "signed in as %s\n", session.Email)
			return nil
		},
	}

	cmd.Flags().String("email", "", "account email")
	cmd.Flags().String("password", "", "account password")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out, revoke the tokens and empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if a.session != nil {
				err := a.client.Logout(cmd.Context(), a.session.RefreshToken)
				// an expired or revoked token is already signed out server-side
				if err != nil && !errors.Is(err, domain.ErrUnauthorized) {
					a.logger.Warn("Server logout failed, clearing local session anyway", zap.Error(err))
				}
			}

			if err := a.sessions.Clear(); err != nil {
				return err
			}
			if err := a.cart.Clear(); err != nil {
				return err
			}

			fmt.Fprintln(a.out, "signed out")
			return nil
		},
	}
}
