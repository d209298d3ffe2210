// Package db opens the audit database and checks that migrations have run.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Pool settings. The service writes one row per event, so a small pool suffices.
const (
	DefaultMaxOpenConns    = 10
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 30 * time.Minute
)

// RequiredTables are created by the migrations in migrations/.
var RequiredTables = []string{"audit_records", "ingest_state"}

// ErrMissingTables is returned by CheckSchema when migrations have not been applied.
var ErrMissingTables = errors.New("required tables are missing; run migrations")

// tableQuery reports whether a table exists in the current schema search path.
const tableQuery = "SELECT to_regclass($1) IS NOT NULL"

// Open connects to databaseURL and verifies the connection with a ping.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(DefaultMaxOpenConns)
	conn.SetMaxIdleConns(DefaultMaxIdleConns)
	conn.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return conn, nil
}

// CheckSchema returns ErrMissingTables, naming the absent tables, when any of
// RequiredTables does not exist.
func CheckSchema(ctx context.Context, conn *sql.DB) error {
	var missing []string
	for _, table := range RequiredTables {
		var exists bool
		if err := conn.QueryRowContext(ctx, tableQuery, table).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check table %s: %w", table, err)
		}
		if !exists {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingTables, strings.Join(missing, ", "))
	}
	return nil
}
