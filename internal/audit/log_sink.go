package audit

import (
	"context"
	"log/slog"
)

// LogMessage is the message attached to every audit log line.
const LogMessage = "audit"

// LogSink writes records as structured log lines. This is the default sink;
// shipping and retention are left to whatever collects the process output.
type LogSink struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogSink creates a LogSink that logs at Info level.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{
		logger: logger,
		level:  slog.LevelInfo,
	}
}

// Emit logs rec. Fields are left out exactly when the record's JSON form
// leaves them out.
func (s *LogSink) Emit(ctx context.Context, rec Record) error {
	s.logger.LogAttrs(ctx, s.level, LogMessage, recordAttrs(rec)...)
	return nil
}

func recordAttrs(rec Record) []slog.Attr {
	attrs := make([]slog.Attr, 0, 10)
	if rec.Collection != "" {
		attrs = append(attrs, slog.String("collection", rec.Collection))
	}
	attrs = append(attrs, slog.String("operation", string(rec.Operation)))
	if rec.DocID != "" {
		attrs = append(attrs, slog.String("docId", rec.DocID))
	}
	if rec.UpdatedAt != "" {
		attrs = append(attrs, slog.String("updatedAt", rec.UpdatedAt))
	}
	if rec.UpdatedBy != nil {
		attrs = append(attrs, slog.Any("updatedBy", rec.UpdatedBy))
	}
	if rec.Field != "" {
		attrs = append(attrs, slog.String("field", rec.Field))
	}
	if rec.Prev != nil || rec.Operation == OperationUpdate {
		attrs = append(attrs, slog.Any("prev", rec.Prev))
	}
	if rec.New != nil || rec.Operation == OperationUpdate {
		attrs = append(attrs, slog.Any("new", rec.New))
	}
	if rec.Data != nil {
		attrs = append(attrs, slog.Any("data", rec.Data))
	}
	if rec.Metadata != nil {
		attrs = append(attrs, slog.Any("metadata", rec.Metadata))
	}
	return attrs
}
