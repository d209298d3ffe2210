// Package dispatch routes change events to the audit recorder.
//
// Routes are fixed at construction: one per (collection, operation) pair for
// every audited collection, plus Finalize and Delete for storage objects.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/onnwee/docaudit/internal/audit"
	"github.com/onnwee/docaudit/internal/classify"
	"github.com/onnwee/docaudit/internal/collections"
	"github.com/onnwee/docaudit/internal/snapshot"
	"github.com/onnwee/docaudit/internal/tracing"
)

// Storage is the route collection for storage object notifications.
const Storage = "storage"

var (
	// ErrUnknownRoute is returned for a (collection, operation) pair with no handler.
	ErrUnknownRoute = errors.New("no route for event")

	// ErrMissingSnapshot is returned when an event lacks a snapshot its
	// operation needs.
	ErrMissingSnapshot = errors.New("event is missing a document snapshot")
)

// Recorder builds and emits audit records. *audit.Recorder implements it.
type Recorder interface {
	RecordCreate(ctx context.Context, collection, docID string, data snapshot.Snapshot) (audit.Record, error)
	RecordUpdate(ctx context.Context, collection, docID string, prev, next snapshot.Snapshot, descriptors []classify.Descriptor) (audit.Record, error)
	RecordDelete(ctx context.Context, collection, docID string, data snapshot.Snapshot) (audit.Record, error)
	RecordStorage(ctx context.Context, op audit.Operation, metadata map[string]any) (audit.Record, error)
}

// Event is a single change notification.
type Event struct {
	Collection string
	DocID      string
	Operation  audit.Operation

	// Before is required for Update and Delete, After for Create and Update.
	Before snapshot.Snapshot
	After  snapshot.Snapshot

	// Metadata is the storage object description for storage events.
	Metadata map[string]any
}

// StorageEvent returns an event for a storage object notification.
func StorageEvent(op audit.Operation, metadata map[string]any) Event {
	return Event{
		Collection: Storage,
		Operation:  op,
		Metadata:   metadata,
	}
}

// Route identifies a handler.
type Route struct {
	Collection string
	Operation  audit.Operation
}

func (r Route) String() string {
	return r.Collection + "." + string(r.Operation)
}

type handler func(ctx context.Context, ev Event) (audit.Record, error)

// Dispatcher looks up the handler for an event and runs it.
// It is safe for concurrent use.
type Dispatcher struct {
	routes  map[Route]handler
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics records dispatch metrics on m.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New builds the route table for every audited collection.
func New(rec Recorder, opts ...Option) (*Dispatcher, error) {
	if rec == nil {
		return nil, errors.New("recorder cannot be nil")
	}

	d := &Dispatcher{
		routes: make(map[Route]handler),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}

	for _, name := range collections.Names() {
		descriptors, _ := collections.Descriptors(name)
		d.addDocumentRoutes(rec, name, descriptors)
	}

	storage := func(ctx context.Context, ev Event) (audit.Record, error) {
		return rec.RecordStorage(ctx, ev.Operation, ev.Metadata)
	}
	d.routes[Route{Storage, audit.OperationFinalize}] = storage
	d.routes[Route{Storage, audit.OperationDelete}] = storage

	return d, nil
}

func (d *Dispatcher) addDocumentRoutes(rec Recorder, collection string, descriptors []classify.Descriptor) {
	d.routes[Route{collection, audit.OperationCreate}] = func(ctx context.Context, ev Event) (audit.Record, error) {
		if ev.After == nil {
			return audit.Record{}, ErrMissingSnapshot
		}
		return rec.RecordCreate(ctx, collection, ev.DocID, ev.After)
	}
	d.routes[Route{collection, audit.OperationUpdate}] = func(ctx context.Context, ev Event) (audit.Record, error) {
		if ev.Before == nil || ev.After == nil {
			return audit.Record{}, ErrMissingSnapshot
		}
		return rec.RecordUpdate(ctx, collection, ev.DocID, ev.Before, ev.After, descriptors)
	}
	d.routes[Route{collection, audit.OperationDelete}] = func(ctx context.Context, ev Event) (audit.Record, error) {
		if ev.Before == nil {
			return audit.Record{}, ErrMissingSnapshot
		}
		return rec.RecordDelete(ctx, collection, ev.DocID, ev.Before)
	}
}

// Routes returns every registered route, sorted.
func (d *Dispatcher) Routes() []Route {
	out := make([]Route, 0, len(d.routes))
	for r := range d.routes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Collection != out[j].Collection {
			return out[i].Collection < out[j].Collection
		}
		return out[i].Operation < out[j].Operation
	})
	return out
}

// Handles reports whether a route exists for collection and op.
func (d *Dispatcher) Handles(collection string, op audit.Operation) bool {
	_, ok := d.routes[Route{collection, op}]
	return ok
}

// Dispatch records ev through its route.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (rec audit.Record, err error) {
	route := Route{Collection: ev.Collection, Operation: ev.Operation}

	ctx, endSpan := tracing.StartDispatchSpan(ctx, route.Collection, string(route.Operation), ev.DocID)
	defer func() { endSpan(err) }()

	h, ok := d.routes[route]
	if !ok {
		d.metrics.fail(route, ReasonUnknownRoute)
		return audit.Record{}, fmt.Errorf("%w: %s", ErrUnknownRoute, route)
	}

	start := d.now()
	rec, err = h(ctx, ev)
	if err != nil {
		reason := ReasonRecord
		if errors.Is(err, ErrMissingSnapshot) {
			reason = ReasonMissingSnapshot
			err = fmt.Errorf("%w: %s", err, route)
		}
		d.metrics.fail(route, reason)
		d.logger.WarnContext(ctx, "failed to record change event",
			slog.String("route", route.String()),
			slog.String("doc_id", ev.DocID),
			slog.String("error", err.Error()))
		return rec, err
	}

	d.metrics.observe(route, rec.Field, d.now().Sub(start).Seconds())
	if rec.Field != "" {
		tracing.SetField(ctx, rec.Field)
	}
	if rec.Field == classify.FieldAll {
		tracing.AddEvent(ctx, tracing.EventClassificationFallback,
			tracing.AttrCollection.String(route.Collection))
	}
	return rec, nil
}
