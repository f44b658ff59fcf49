// Package timeliner builds the timeliner command tree.
package timeliner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	entrypoint "github.com/learning-layers/Timeliner/internal/platform/cmd"
	"github.com/learning-layers/Timeliner/internal/platform/logging"
	"github.com/learning-layers/Timeliner/internal/services/timeline/app"
	"github.com/learning-layers/Timeliner/internal/services/timeline/storage/sqlite"
)

// ParseConfig reads .env files and TIMELINER_* variables.
func ParseConfig() (app.Config, error) {
	var cfg app.Config
	if err := entrypoint.ParseConfig(&cfg, ".env"); err != nil {
		return app.Config{}, err
	}
	return cfg, nil
}

// NewRootCommand returns the timeliner command with its subcommands.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "timeliner",
		Short:         "Project timeline collaboration server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newMigrateCommand(), newAdminCommand())
	return root
}

func newServeCommand() *cobra.Command {
	var httpAddr, dbPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and websocket hub",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ParseConfig()
			if err != nil {
				return err
			}
			if httpAddr != "" {
				cfg.HTTPAddr = httpAddr
			}
			if dbPath != "" {
				cfg.DatabasePath = dbPath
			}
			return Serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address (overrides TIMELINER_HTTP_ADDR)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (overrides TIMELINER_DB_PATH)")
	return cmd
}

// Serve runs the server with tracing until ctx ends.
func Serve(ctx context.Context, cfg app.Config) error {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	return entrypoint.RunWithTelemetryAndOptions(ctx, entrypoint.ServiceTimeline, cfg.Telemetry, entrypoint.RunOptions{Logger: logger}, func(ctx context.Context) error {
		return app.Run(ctx, cfg, logger)
	})
}

func newMigrateCommand() *cobra.Command {
	var dbPath string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dbPath == "" {
				cfg, err := ParseConfig()
				if err != nil {
					return err
				}
				dbPath = cfg.DatabasePath
			}
			names, err := Migrate(cmd.Context(), dbPath, dryRun)
			if err != nil {
				return err
			}
			verb := "applied"
			if dryRun {
				verb = "pending"
			}
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (overrides TIMELINER_DB_PATH)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list pending migrations without applying them")
	return cmd
}

// Migrate applies, or with dryRun only lists, the pending migrations.
func Migrate(ctx context.Context, dbPath string, dryRun bool) ([]string, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	store, err := sqlite.OpenWithoutMigrations(dbPath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if dryRun {
		return store.PendingMigrations(ctx)
	}
	return store.Migrate(ctx)
}

func newAdminCommand() *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrators",
	}
	admin.AddCommand(&cobra.Command{
		Use:   "grant <email>",
		Short: "Grant admin rights to a registered user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ParseConfig()
			if err != nil {
				return err
			}
			core, err := app.OpenCore(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer core.Close()

			user, err := core.Service.GrantAdminByEmail(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted admin to %s (%s)\n", user.Email, user.ID)
			return nil
		},
	})
	return admin
}
