package cli

import (
	"helpdesk/internal/app"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := app.OpenDatabase(cfg.Database, false)
		if err != nil {
			return err
		}
		logrus.Info("Starting database migration...")
		if err := app.Migrate(db); err != nil {
			return err
		}
		logrus.Info("Database migration completed successfully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
