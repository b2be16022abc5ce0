package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agoradao/agora/pkg/config"
	"github.com/agoradao/agora/pkg/storage/sqlite"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQLite schema migrations",
		RunE:  runMigrate,
	}
	cmd.Flags().String("path", "", "SQLite database path (overrides config)")
	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("path")
	if path == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Storage.Driver != config.DriverSQLite {
			return fmt.Errorf("storage driver is %q, migrations only apply to %q", cfg.Storage.Driver, config.DriverSQLite)
		}
		path = cfg.Storage.Path
	}
	if path == "" {
		return errors.New("no database path: set --path or storage.path")
	}

	applied, err := sqlite.Migrate(cmd.Context(), path)
	if err != nil {
		return fmt.Errorf("migrate %s: %w", path, err)
	}
	out := cmd.OutOrStdout()
	if len(applied) == 0 {
		fmt.Fprintln(out, "schema is up to date")
		return nil
	}
	for _, name := range applied {
		fmt.Fprintf(out, "applied %s\n", name)
	}
	return nil
}
