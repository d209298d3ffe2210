package audit

import (
	"context"
	"errors"
	"sync"
)

// Sink accepts finished audit records. Implementations must be safe for
// concurrent use. A Sink does not retry; a failed Emit is reported to the
// caller as is.
type Sink interface {
	Emit(ctx context.Context, rec Record) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, rec Record) error

// Emit calls f(ctx, rec).
func (f SinkFunc) Emit(ctx context.Context, rec Record) error {
	return f(ctx, rec)
}

// MultiSink fans a record out to every wrapped sink. All sinks are attempted;
// their errors are joined.
type MultiSink []Sink

// Emit hands rec to every sink in order.
func (m MultiSink) Emit(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// InMemorySink keeps every emitted record in memory.
// Used for testing and development. Thread-safe via RWMutex.
type InMemorySink struct {
	mu      sync.RWMutex
	records []Record
}

// NewInMemorySink creates an empty in-memory sink.
func NewInMemorySink() *InMemorySink {
	return &InMemorySink{
		records: make([]Record, 0),
	}
}

// Emit appends rec.
func (s *InMemorySink) Emit(_ context.Context, rec Record) error {
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
	return nil
}

// Records returns a copy of the emitted records in emission order.
func (s *InMemorySink) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of emitted records.
func (s *InMemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
