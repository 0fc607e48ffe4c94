// Package database provides PostgreSQL connectivity and the record store.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/jonesrussell/darc-connector/internal/config"
)

const pingTimeout = 5 * time.Second

// Connect opens a PostgreSQL connection pool and verifies it.
func Connect(cfg *config.DatabaseConfig) (*sqlx.DB, error) {
	db, connErr := sqlx.Open("postgres", cfg.DSN())
	if connErr != nil {
		return nil, fmt.Errorf("open database: %w", connErr)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnectionMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	return db, nil
}
