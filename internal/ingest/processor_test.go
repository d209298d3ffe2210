package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/gorilla/websocket"
	dto "github.com/prometheus/client_model/go"

	"github.com/onnwee/docaudit/internal/audit"
	"github.com/onnwee/docaudit/internal/dispatch"
)

// newTestLogger creates a logger that discards all output to reduce test noise
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDispatcher(t *testing.T, sink audit.Sink) *dispatch.Dispatcher {
	t.Helper()
	rec, err := audit.NewRecorder(sink, newTestLogger())
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}
	d, err := dispatch.New(rec, dispatch.WithLogger(newTestLogger()))
	if err != nil {
		t.Fatalf("dispatch.New() error = %v", err)
	}
	return d
}

func counter(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return m.GetCounter().GetValue()
}

type failingTracker struct{ err error }

func (f failingTracker) LastCursor(context.Context) (int64, error) { return 0, f.err }
func (f failingTracker) Advance(context.Context, int64) error     { return f.err }

func TestProcessor_Handle(t *testing.T) {
	sink := audit.NewInMemorySink()
	cursors := NewInMemoryCursorTracker()
	metrics := NewMetrics()
	p := NewProcessor(newTestDispatcher(t, sink), cursors, metrics, newTestLogger())
	ctx := context.Background()

	frames := []string{
		`{"kind":"document","time_us":100,"document":{"collection":"Users","id":"u-1","operation":"create","after":{"name":"A","updatedAt":"2024-01-01T00:00:00Z"}}}`,
		`{"kind":"document","time_us":200,"document":{"collection":"Users","id":"u-1","operation":"update",
			"before":{"name":"A","updatedAt":"2024-01-01T00:00:00Z"},
			"after":{"name":"B","updatedAt":"2024-01-02T00:00:00Z"}}}`,
		`{"kind":"object","time_us":300,"object":{"operation":"delete","metadata":{"name":"x.png"}}}`,
	}
	for _, f := range frames {
		if err := p.Handle(ctx, websocket.TextMessage, []byte(f)); err != nil {
			t.Fatalf("Handle() error = %v", err)
		}
	}

	records := sink.Records()
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if records[1].Field != "name" || records[1].New != "B" {
		t.Errorf("update record = %+v", records[1])
	}
	if cursor, _ := cursors.LastCursor(ctx); cursor != 300 {
		t.Errorf("cursor = %d, want 300", cursor)
	}
	if got := counter(t, metrics.messagesProcessed); got != 3 {
		t.Errorf("processed = %v, want 3", got)
	}
}

func TestProcessor_SkipsBadMessages(t *testing.T) {
	sink := audit.NewInMemorySink()
	cursors := NewInMemoryCursorTracker()
	metrics := NewMetrics()
	p := NewProcessor(newTestDispatcher(t, sink), cursors, metrics, newTestLogger())
	ctx := context.Background()

	// Undecodable: no cursor to advance.
	if err := p.Handle(ctx, websocket.TextMessage, []byte(`{oops`)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	// Decodable but invalid: cursor advances past it.
	if err := p.Handle(ctx, websocket.TextMessage, []byte(`{"kind":"document","time_us":10}`)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	// Create without updatedAt fails to record and is not retried.
	bad := `{"kind":"document","time_us":20,"document":{"collection":"Users","id":"u","operation":"create","after":{"name":"A"}}}`
	if err := p.Handle(ctx, websocket.TextMessage, []byte(bad)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	// Unrouted collection is skipped.
	unrouted := `{"kind":"document","time_us":30,"document":{"collection":"Scenes","id":"s","operation":"delete","before":{}}}`
	if err := p.Handle(ctx, websocket.TextMessage, []byte(unrouted)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if sink.Len() != 0 {
		t.Errorf("sink received %d records, want 0", sink.Len())
	}
	if got := counter(t, metrics.messagesError); got != 3 {
		t.Errorf("errors = %v, want 3", got)
	}
	if got := counter(t, metrics.messagesSkipped); got != 1 {
		t.Errorf("skipped = %v, want 1", got)
	}
	if cursor, _ := cursors.LastCursor(ctx); cursor != 30 {
		t.Errorf("cursor = %d, want 30", cursor)
	}
}

func TestProcessor_CursorFailureIsReturned(t *testing.T) {
	trackerErr := errors.New("db down")
	p := NewProcessor(newTestDispatcher(t, audit.NewInMemorySink()), failingTracker{trackerErr}, nil, newTestLogger())

	frame := `{"kind":"object","time_us":5,"object":{"operation":"finalize"}}`
	if err := p.Handle(context.Background(), websocket.TextMessage, []byte(frame)); !errors.Is(err, trackerErr) {
		t.Errorf("Handle() error = %v, want %v", err, trackerErr)
	}
}

func TestInMemoryCursorTracker_Monotonic(t *testing.T) {
	tr := NewInMemoryCursorTracker()
	ctx := context.Background()

	for _, c := range []int64{5, 10, 7} {
		if err := tr.Advance(ctx, c); err != nil {
			t.Fatalf("Advance() error = %v", err)
		}
	}
	if got, _ := tr.LastCursor(ctx); got != 10 {
		t.Errorf("LastCursor() = %d, want 10", got)
	}
}
