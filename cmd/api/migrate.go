package main

import (
	"fmt"

	"github.com/SergeiKhy/tinyurl/internal/config"
	"github.com/SergeiKhy/tinyurl/internal/repository"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back database migrations",
	Long:      `Connects to DATABASE_URL and applies the embedded schema migrations. "down" rolls back every migration.`,
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		direction := "up"
		if len(args) == 1 {
			direction = args[0]
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		db, err := repository.NewPostgresDB(cmd.Context(), cfg.DB)
		if err != nil {
			return err
		}
		defer db.Close()

		if direction == "down" {
			err = repository.MigrateDown(db)
		} else {
			err = repository.MigrateUp(db)
		}
		if err != nil {
			return err
		}

		cmd.Printf("Migrations applied: %s\n", direction)
		return nil
	},
}
