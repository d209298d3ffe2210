package health

import (
	"context"
	"database/sql"
	"fmt"
)

// dbPinger is the subset of *sql.DB used by DBChecker.
type dbPinger interface {
	PingContext(ctx context.Context) error
}

// DBChecker implements health checking for the audit database.
type DBChecker struct {
	db dbPinger
}

// NewDBChecker creates a new database health checker.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck pings the database.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	return nil
}
