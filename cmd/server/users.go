package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"aruba-auth/internal/config"
	"aruba-auth/internal/repository/sqlite"
	"aruba-auth/internal/service"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Inspect the user directory",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Database.Driver != config.DriverSQLite {
			return fmt.Errorf("users list needs the %s driver; the %s directory lives only inside a running server", config.DriverSQLite, cfg.Database.Driver)
		}

		repo, closeRepo, err := buildUserRepository(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer closeRepo()

		svc, err := service.NewUserService(repo, service.Options{Logger: logger})
		if err != nil {
			return err
		}
		users, err := svc.ListUsers(cmd.Context())
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tEMAIL\tNAME\tROLE\tVERIFIED\tFAILED\tLOCKED UNTIL\tCREATED")
		for _, u := range users {
			locked := "-"
			if u.AccountLockedUntil != nil {
				locked = u.AccountLockedUntil.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%d\t%s\t%s\n",
				u.ID, u.Email, u.Name, u.Role, u.EmailVerified, u.FailedLoginAttempts, locked, u.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the sqlite schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		if err := sqlite.Migrate(cmd.Context(), db, logger); err != nil {
			return err
		}
		logger.Infof("migrations applied to %s", cfg.Database.Path)
		return nil
	},
}

func init() {
	usersCmd.AddCommand(usersListCmd)
	rootCmd.AddCommand(usersCmd, migrateCmd)
}
