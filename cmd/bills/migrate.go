package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/the-bills-must-flow/internal/cli"
	"github.com/Veraticus/the-bills-must-flow/internal/config"
	"github.com/Veraticus/the-bills-must-flow/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

This command creates the window catalog, obligation, transaction and period
record tables the engine needs.`,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("status", false, "Show current migration status without applying changes")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	statusOnly, _ := cmd.Flags().GetBool("status")

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	slog.Info("Starting database migration",
		"database", cfg.DatabasePath,
		"status_only", statusOnly)

	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if statusOnly {
		current, err := store.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		content := fmt.Sprintf("Database: %s\nCurrent version: %d\nLatest version: %d",
			cfg.DatabasePath, current, storage.ExpectedSchemaVersion)
		fmt.Fprintln(out, cli.RenderBox("📊 Database Migration Status", content))
		if current < storage.ExpectedSchemaVersion {
			fmt.Fprintln(out, cli.FormatWarning("Run `bills migrate` to apply pending migrations."))
		}
		return nil
	}

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Fprintln(out, cli.FormatSuccess("Database migrations completed successfully!"))
	return nil
}
