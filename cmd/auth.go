package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clipcast/clipcast/internal/auth"
	"github.com/clipcast/clipcast/internal/platform"
	"github.com/clipcast/clipcast/internal/services"
	"github.com/clipcast/clipcast/internal/utils"
)

var authPlatform string

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage platform credentials and cached sessions",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with a platform and cache the session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := platform.NewRegistry()
		services.RegisterAll(registry)

		p, err := registry.Get(authPlatform)
		if err != nil {
			return err
		}
		if !p.IsConfigured() {
			return fmt.Errorf("%s: %w", authPlatform, platform.ErrNotConfigured)
		}

		if err := p.Authenticate(cmd.Context()); err != nil {
			return fmt.Errorf("failed to authenticate with %s: %w", authPlatform, err)
		}

		utils.LogSuccess("Authenticated with %s", authPlatform)
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show credential and session state for every platform",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := platform.NewRegistry()
		services.RegisterAll(registry)

		storage, err := auth.NewTokenStorage()
		if err != nil {
			return err
		}

		for _, p := range registry.List() {
			name := p.Name()

			credentials := "not configured"
			if p.IsConfigured() {
				credentials = "configured"
			}

			session := "no cached token"
			if token, err := storage.LoadToken(name); err != nil {
				session = "unreadable token"
			} else if token != nil {
				session = "expired token"
				if token.Valid() {
					session = "valid token"
				}
			}

			utils.LogInfo("%-10s %s, %s", name, credentials, session)
		}
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Delete a platform's cached session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := platform.NewRegistry()
		services.RegisterAll(registry)

		// Reject unknown names before touching storage.
		if _, err := registry.Get(authPlatform); err != nil {
			return err
		}

		storage, err := auth.NewTokenStorage()
		if err != nil {
			return err
		}
		if err := storage.DeleteToken(authPlatform); err != nil {
			return fmt.Errorf("failed to delete token for %s: %w", authPlatform, err)
		}

		utils.LogSuccess("Removed cached token for %s", authPlatform)
		return nil
	},
}

func init() {
	authLoginCmd.Flags().StringVarP(&authPlatform, "platform", "p", "", "Platform to authenticate with (required)")
	_ = authLoginCmd.MarkFlagRequired("platform")

	authLogoutCmd.Flags().StringVarP(&authPlatform, "platform", "p", "", "Platform to log out of (required)")
	_ = authLogoutCmd.MarkFlagRequired("platform")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authLogoutCmd)
	rootCmd.AddCommand(authCmd)
}
