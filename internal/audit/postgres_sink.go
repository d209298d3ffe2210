package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/onnwee/docaudit/internal/tracing"
)

// recordsTable is created by migrations/000001_create_audit_records.up.sql.
const recordsTable = "audit_records"

const insertRecordQuery = `
	INSERT INTO audit_records (
		id, collection, operation, doc_id, updated_at, updated_by,
		field, prev_value, new_value, data, metadata, recorded_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

// PostgresSink persists records in the audit_records table. Value columns are
// JSONB; fields that are absent from the record are stored as NULL.
type PostgresSink struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresSink creates a PostgresSink on an open database handle.
func NewPostgresSink(db *sql.DB, logger *slog.Logger) *PostgresSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSink{
		db:     db,
		logger: logger,
	}
}

// Emit inserts rec. Duplicate IDs are rejected by the primary key.
func (s *PostgresSink) Emit(ctx context.Context, rec Record) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, recordsTable, tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	args, err := insertArgs(rec)
	if err != nil {
		return err
	}

	if _, err = s.db.ExecContext(ctx, insertRecordQuery, args...); err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}

	s.logger.Debug("stored audit record",
		slog.String("record_id", rec.ID),
		slog.String("collection", rec.Collection),
		slog.String("operation", string(rec.Operation)))
	return nil
}

// insertArgs returns the positional arguments for insertRecordQuery.
func insertArgs(rec Record) ([]any, error) {
	updatedBy, err := jsonParam(rec.UpdatedBy)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal updatedBy: %w", err)
	}
	// Update rows store a null prev/new as JSON null, not SQL NULL.
	valueParam := jsonParam
	if rec.Operation == OperationUpdate && !rec.IsStorage() {
		valueParam = jsonValue
	}
	prev, err := valueParam(rec.Prev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal prev: %w", err)
	}
	next, err := valueParam(rec.New)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal new: %w", err)
	}
	var data, metadata any
	if rec.Data != nil {
		if data, err = jsonParam(map[string]any(rec.Data)); err != nil {
			return nil, fmt.Errorf("failed to marshal data: %w", err)
		}
	}
	if rec.Metadata != nil {
		if metadata, err = jsonParam(rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	return []any{
		rec.ID,
		nullString(rec.Collection),
		string(rec.Operation),
		nullString(rec.DocID),
		nullString(rec.UpdatedAt),
		updatedBy,
		nullString(rec.Field),
		prev,
		next,
		data,
		metadata,
		rec.RecordedAt,
	}, nil
}

// jsonParam encodes v for a JSONB parameter. lib/pq sends []byte as bytea, so
// the encoded document is passed as text.
func jsonParam(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return jsonValue(v)
}

func jsonValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
