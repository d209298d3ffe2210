//go:build integration

// Package testdb starts the PostgreSQL and Redis backends used by integration
// tests.
//
// When DATABASE_URL is set that database is used as-is and is expected to have
// the migrations applied. Otherwise a disposable container is started with
// testcontainers and the SQL files under migrations/ are run as init scripts.
package testdb

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/onnwee/docaudit/internal/db"
)

const image = "postgres:16-alpine"

// Open returns a connection to a migrated database and registers cleanup on t.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = startContainer(t)
	}

	conn, err := db.Open(context.Background(), dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func startContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, image,
		postgres.WithDatabase("docaudit"),
		postgres.WithUsername("docaudit"),
		postgres.WithPassword("docaudit"),
		postgres.WithInitScripts(upMigrations(t)...),
		postgres.BasicWaitStrategies(),
	)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}

	dbURL, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	return dbURL
}

func upMigrations(t *testing.T) []string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot locate migrations directory")
	}
	dir := filepath.Join(filepath.Dir(file), "..", "..", "migrations")
	files, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil || len(files) == 0 {
		t.Fatalf("no migrations found in %s: %v", dir, err)
	}
	sort.Strings(files)
	return files
}
