package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dukerupert/taskpay/internal/config"
	"github.com/dukerupert/taskpay/internal/database"
	"github.com/dukerupert/taskpay/internal/logging"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and print the schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(envFile)
		if err != nil {
			return err
		}
		logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

		db, err := database.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		version, err := database.Version(db)
		if err != nil {
			return err
		}
		logger.Info("migrations applied", "db", cfg.DBPath, "version", version)
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
		return nil
	},
}
