// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command authctl is the operator tool for the Gatekeeper database.
//
// It reads the same environment as the API server.
//
//	authctl migrate up
//	authctl migrate down --steps 1
//	authctl migrate version
//	authctl unlock --email user@example.com
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/taibuivan/gatekeeper/internal/platform/config"
	"github.com/taibuivan/gatekeeper/internal/platform/constants"
	"github.com/taibuivan/gatekeeper/internal/platform/events"
	"github.com/taibuivan/gatekeeper/internal/platform/migration"
	pgstore "github.com/taibuivan/gatekeeper/internal/platform/postgres"
	"github.com/taibuivan/gatekeeper/internal/users/admin"
	"github.com/taibuivan/gatekeeper/internal/users/auth"
	"github.com/taibuivan/gatekeeper/internal/users/lockout"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "authctl",
		Short:         "Operator utility for the Gatekeeper auth service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newUnlockCommand())
	return cmd
}

// # Migrations

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Schema migration operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			return migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, logger)
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return errors.New("--steps must be at least 1")
			}
			cfg, logger, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			return migration.RunDown(cfg.DatabaseURL, cfg.MigrationPath, steps, logger)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			version, dirty, err := migration.Version(cfg.DatabaseURL, cfg.MigrationPath, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
			return nil
		},
	})

	return cmd
}

// # Lockout Administration

// cliActor is recorded as the operator of unlocks issued from the command line.
const cliActor = "authctl"

func newUnlockCommand() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Lift the lockout of an account and reset its failed attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(cmd)
			if err != nil {
				return err
			}

			ctx := commandContext(cmd)
			pool, err := pgstore.NewPool(ctx, cfg.DatabaseURL, cfg.Database, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			guard := lockout.NewGuard(lockout.NewPostgresStore(pool), events.NewLogPublisher(logger), cfg.Lockout)
			service := admin.NewService(auth.NewUserRepository(pool), guard)

			status, err := service.UnlockByEmail(ctx, cliActor, email)
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(status)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address of the account to unlock")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// # Helpers

// bootstrap loads configuration and a stderr logger so stdout stays machine readable.
func bootstrap(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn})).
		With(slog.String("app", constants.AppName+"-ctl"))
	return cfg, logger, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
