package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/soaringjerry/Pollen/internal/docstore"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply SQLite schema migrations and exit",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.SQLitePath == "" {
		return errors.New("sqlite path is required")
	}
	store, err := docstore.OpenSQLite(cfg.Store.SQLitePath, cfg.Store.MigrationsDir)
	if err != nil {
		return fmt.Errorf("migrate %s: %w", cfg.Store.SQLitePath, err)
	}
	slog.Info("migrations applied", slog.String("path", cfg.Store.SQLitePath))
	return store.Close()
}
