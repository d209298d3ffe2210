package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/onnwee/docaudit/internal/tracing"
)

// CursorTracker stores the time_us of the last processed message so a
// reconnecting client can resume where it stopped.
type CursorTracker interface {
	// LastCursor returns the last recorded cursor, or 0 if none exists.
	LastCursor(ctx context.Context) (int64, error)

	// Advance records cursor if it is greater than the stored value.
	Advance(ctx context.Context, cursor int64) error
}

// PostgresCursorTracker keeps one row per source in the ingest_state table.
type PostgresCursorTracker struct {
	db     *sql.DB
	source string
	logger *slog.Logger
}

// NewPostgresCursorTracker creates a tracker for source.
func NewPostgresCursorTracker(db *sql.DB, source string, logger *slog.Logger) *PostgresCursorTracker {
	if logger == nil {
		logger = slog.Default()
	}
	if source == "" {
		source = DefaultSource
	}
	return &PostgresCursorTracker{
		db:     db,
		source: source,
		logger: logger,
	}
}

// LastCursor reads the stored cursor.
func (t *PostgresCursorTracker) LastCursor(ctx context.Context) (cursor int64, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "ingest_state", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	err = t.db.QueryRowContext(ctx,
		`SELECT cursor FROM ingest_state WHERE source = $1`, t.source).Scan(&cursor)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get last cursor: %w", err)
	}
	return cursor, nil
}

// Advance upserts the cursor. GREATEST keeps it monotonic.
func (t *PostgresCursorTracker) Advance(ctx context.Context, cursor int64) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "ingest_state", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	_, err = t.db.ExecContext(ctx, `
		INSERT INTO ingest_state (source, cursor, last_updated)
		VALUES ($1, $2, NOW())
		ON CONFLICT (source) DO UPDATE
		SET cursor = GREATEST(ingest_state.cursor, EXCLUDED.cursor),
		    last_updated = NOW()`,
		t.source, cursor)
	if err != nil {
		return fmt.Errorf("failed to advance cursor: %w", err)
	}

	t.logger.Debug("advanced stream cursor",
		slog.String("source", t.source),
		slog.Int64("cursor", cursor))
	return nil
}

// InMemoryCursorTracker keeps the cursor in memory. Useful for development
// and tests; the cursor is lost on restart.
type InMemoryCursorTracker struct {
	mu     sync.RWMutex
	cursor int64
}

// NewInMemoryCursorTracker creates an empty tracker.
func NewInMemoryCursorTracker() *InMemoryCursorTracker {
	return &InMemoryCursorTracker{}
}

// LastCursor returns the stored cursor.
func (t *InMemoryCursorTracker) LastCursor(ctx context.Context) (int64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cursor, nil
}

// Advance stores cursor if it is greater than the current value.
func (t *InMemoryCursorTracker) Advance(ctx context.Context, cursor int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cursor > t.cursor {
		t.cursor = cursor
	}
	return nil
}
