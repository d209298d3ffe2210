package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/docaudit/internal/classify"
	"github.com/onnwee/docaudit/internal/snapshot"
)

var (
	// ErrNilSink is returned when a Recorder is created without a sink.
	ErrNilSink = errors.New("audit sink cannot be nil")
	// ErrInvalidCollection is returned when a document record has no collection.
	ErrInvalidCollection = errors.New("collection cannot be empty")
	// ErrInvalidDocumentID is returned when a document record has no document ID.
	ErrInvalidDocumentID = errors.New("document ID cannot be empty")
	// ErrInvalidOperation is returned for storage operations other than Finalize and Delete.
	ErrInvalidOperation = errors.New("unsupported storage operation")
	// ErrMissingUpdatedAt is returned when a created or updated document has no
	// readable updatedAt timestamp.
	ErrMissingUpdatedAt = errors.New("document has no updatedAt timestamp")
)

// Recorder turns document and storage change events into audit records and
// hands each one to its Sink exactly once.
//
// Error handling: the sink's error is returned to the caller unchanged (wrapped).
// Nothing is retried here; redelivery is the event source's job.
type Recorder struct {
	sink   Sink
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock overrides the clock used for RecordedAt.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		r.now = now
	}
}

// WithIDGenerator overrides the record ID generator.
func WithIDGenerator(newID func() string) RecorderOption {
	return func(r *Recorder) {
		r.newID = newID
	}
}

// NewRecorder creates a Recorder writing to sink.
func NewRecorder(sink Sink, logger *slog.Logger, opts ...RecorderOption) (*Recorder, error) {
	if sink == nil {
		return nil, ErrNilSink
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		sink:   sink,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RecordCreate records a newly created document.
func (r *Recorder) RecordCreate(ctx context.Context, collection, docID string, data snapshot.Snapshot) (Record, error) {
	if err := validateDocument(collection, docID); err != nil {
		return Record{}, err
	}
	updatedAt, err := requireUpdatedAt(collection, docID, data)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		Collection: collection,
		Operation:  OperationCreate,
		DocID:      docID,
		UpdatedAt:  updatedAt,
		UpdatedBy:  data.UpdatedBy(),
		Data:       data,
	}
	return r.emit(ctx, rec)
}

// RecordUpdate classifies the change between prev and next using descriptors
// and records the first changed field. Timestamp and actor are taken from next.
func (r *Recorder) RecordUpdate(ctx context.Context, collection, docID string, prev, next snapshot.Snapshot, descriptors []classify.Descriptor) (Record, error) {
	if err := validateDocument(collection, docID); err != nil {
		return Record{}, err
	}
	updatedAt, err := requireUpdatedAt(collection, docID, next)
	if err != nil {
		return Record{}, err
	}

	c := classify.Classify(prev, next, descriptors)
	if c.IsFallback() {
		r.logger.DebugContext(ctx, "no configured field changed, recording whole document",
			slog.String("collection", collection),
			slog.String("doc_id", docID))
	}

	rec := Record{
		Collection: collection,
		Operation:  OperationUpdate,
		DocID:      docID,
		UpdatedAt:  updatedAt,
		UpdatedBy:  next.UpdatedBy(),
		Field:      c.Field,
		Prev:       c.Prev,
		New:        c.New,
	}
	return r.emit(ctx, rec)
}

// RecordDelete records a deleted document with its last known contents.
func (r *Recorder) RecordDelete(ctx context.Context, collection, docID string, data snapshot.Snapshot) (Record, error) {
	if err := validateDocument(collection, docID); err != nil {
		return Record{}, err
	}

	rec := Record{
		Collection: collection,
		Operation:  OperationDelete,
		DocID:      docID,
		Data:       data,
	}
	return r.emit(ctx, rec)
}

// RecordStorage forwards storage object metadata for a Finalize or Delete
// notification. No comparison is made.
func (r *Recorder) RecordStorage(ctx context.Context, op Operation, metadata map[string]any) (Record, error) {
	if op != OperationFinalize && op != OperationDelete {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidOperation, op)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	rec := Record{
		Operation: op,
		Metadata:  metadata,
	}
	return r.emit(ctx, rec)
}

func (r *Recorder) emit(ctx context.Context, rec Record) (Record, error) {
	rec = rec.jsonSafe()
	rec.ID = r.newID()
	rec.RecordedAt = r.now().UTC()

	if err := r.sink.Emit(ctx, rec); err != nil {
		r.logger.ErrorContext(ctx, "failed to emit audit record",
			slog.String("error", err.Error()),
			slog.String("record_id", rec.ID),
			slog.String("collection", rec.Collection),
			slog.String("operation", string(rec.Operation)),
			slog.String("doc_id", rec.DocID))
		return rec, fmt.Errorf("emit audit record: %w", err)
	}
	return rec, nil
}

func validateDocument(collection, docID string) error {
	if collection == "" {
		return ErrInvalidCollection
	}
	if docID == "" {
		return ErrInvalidDocumentID
	}
	return nil
}

func requireUpdatedAt(collection, docID string, data snapshot.Snapshot) (string, error) {
	ts, ok := data.UpdatedAt()
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrMissingUpdatedAt, collection, docID)
	}
	return snapshot.FormatTimestamp(ts), nil
}
