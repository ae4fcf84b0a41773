package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bytesec/byte/db"
	"github.com/bytesec/byte/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(*cobra.Command, []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return db.Migrate(cfg.DatabaseURL(), newLogger())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
