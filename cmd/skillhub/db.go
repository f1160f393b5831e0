package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillhub/pkg/db"
	"github.com/jingkaihe/skillhub/pkg/db/migrations"
	"github.com/jingkaihe/skillhub/pkg/presenter"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Review log database commands",
	Long:  `Commands for managing the review log database (migrations, status, etc.)`,
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database migration status",
	Long:  `Shows the current database migration status, including applied and pending migrations.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		path, err := getDatabasePath()
		if err != nil {
			return err
		}
		sqlDB, err := db.Open(ctx, path)
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		statuses, err := db.NewMigrationRunner(sqlDB).Status(ctx, migrations.All())
		if err != nil {
			return errors.Wrap(err, "failed to get migration status")
		}

		fmt.Println("Database Migration Status")
		fmt.Println("=========================")
		fmt.Printf("Database: %s\n\n", path)

		appliedCount := 0
		for _, s := range statuses {
			mark := "[ ]"
			applied := ""
			if s.Applied() {
				mark = "[✓]"
				applied = "  (" + s.AppliedAt.Format("2006-01-02 15:04:05") + ")"
				appliedCount++
			}
			fmt.Printf("%s %d - %s%s\n", mark, s.Version, s.Description, applied)
		}

		fmt.Printf("\nApplied: %d/%d migrations\n", appliedCount, len(statuses))
		return nil
	},
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		path, err := getDatabasePath()
		if err != nil {
			return err
		}
		sqlDB, err := db.OpenAndMigrate(ctx, path, migrations.All())
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		presenter.Success(fmt.Sprintf("Database %s is up to date", path))
		return nil
	},
}

var dbRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Rollback the last database migration",
	Long:  `Rolls back the most recently applied database migration. Useful for testing or downgrading skillhub.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		path, err := getDatabasePath()
		if err != nil {
			return err
		}
		sqlDB, err := db.Open(ctx, path)
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		all := migrations.All()
		version, err := db.NewMigrationRunner(sqlDB).Rollback(ctx, all)
		if err != nil {
			return errors.Wrap(err, "failed to rollback migration")
		}
		if version == 0 {
			presenter.Warning("No migrations to rollback")
			return nil
		}

		var description string
		for _, m := range all {
			if m.Version == version {
				description = m.Description
				break
			}
		}
		presenter.Success(fmt.Sprintf("Successfully rolled back migration %d: %s", version, description))
		return nil
	},
}

// getDatabasePath is the configured review log, or the default location.
func getDatabasePath() (string, error) {
	if cfg.ReviewLog.Path != "" {
		return cfg.ReviewLog.Path, nil
	}
	return db.DefaultDBPath()
}

func init() {
	dbCmd.AddCommand(dbStatusCmd)
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbRollbackCmd)
}
