package cmd

import (
	"finlern/internal/logging"
	"finlern/internal/repo"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or refresh the database schema",
	Long: `Create the enrollments table and its append-only triggers.

The schema is idempotent; running it again only refreshes the triggers.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	ctx := cmd.Context()

	pool, err := repo.Open(ctx, cfg.DB(), logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	created, err := repo.Migrate(ctx, pool)
	if err != nil {
		return err
	}
	if created {
		logger.Info(ctx, "schema created", "database", cfg.Database.Name)
	} else {
		logger.Info(ctx, "schema already present, triggers refreshed", "database", cfg.Database.Name)
	}
	return nil
}
