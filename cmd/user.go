/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/steward-platform/apiserver/config"
	"github.com/steward-platform/apiserver/internal/db"
	"github.com/steward-platform/apiserver/internal/logging"
	"github.com/steward-platform/apiserver/internal/services"
	"github.com/steward-platform/apiserver/internal/store"
	"github.com/steward-platform/apiserver/types"
)

var (
	newUserEmail    string
	newUserPassword string
	newUserRole     string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users directly in the database",
}

// userCreateCmd bootstraps active users, typically the first admin, which
// self-registration cannot create.
var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an active user",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(os.Stderr, cfg.LogLevel)

		conn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer conn.Close()

		users := services.NewUserService(store.NewUserRepository(conn), logger)
		user, err := users.Create(cmd.Context(), newUserEmail, newUserPassword, types.Role(newUserRole), types.UserActive)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s user %d (%s)\n", user.Role, user.ID, user.Email)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd)

	userCreateCmd.Flags().StringVar(&newUserEmail, "email", "", "email address")
	userCreateCmd.Flags().StringVar(&newUserPassword, "password", "", "password, at least 8 characters")
	userCreateCmd.Flags().StringVar(&newUserRole, "role", string(types.RoleAdmin), "owner, manager or admin")
	_ = userCreateCmd.MarkFlagRequired("email")
	_ = userCreateCmd.MarkFlagRequired("password")
}
