package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/jonesrussell/darc-connector/internal/config"
)

// MigrateUp applies all pending schema migrations.
func MigrateUp(cfg *config.DatabaseConfig) error {
	return runMigration(cfg, func(m *migrate.Migrate) error { return m.Up() })
}

// MigrateDown rolls back all schema migrations.
func MigrateDown(cfg *config.DatabaseConfig) error {
	return runMigration(cfg, func(m *migrate.Migrate) error { return m.Down() })
}

func runMigration(cfg *config.DatabaseConfig, fn func(*migrate.Migrate) error) error {
	url := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode,
	)

	m, newErr := migrate.New(cfg.MigrationsPath, url)
	if newErr != nil {
		return fmt.Errorf("create migrate instance: %w", newErr)
	}
	defer func() { _, _ = m.Close() }()

	if err := fn(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migration: %w", err)
	}

	return nil
}
