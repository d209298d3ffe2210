package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/docaudit/internal/audit"
	"github.com/onnwee/docaudit/internal/dispatch"
	"github.com/onnwee/docaudit/internal/firestore"
	"github.com/onnwee/docaudit/internal/middleware"
)

// MaxEventBodyBytes caps the size of a pushed trigger payload.
const MaxEventBodyBytes = 1 << 20

const (
	firestorePrefix = "/events/firestore/"
	storagePrefix   = "/events/storage/"
)

// Dispatcher records a change event. *dispatch.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev dispatch.Event) (audit.Record, error)
}

// EventResponse is returned for every recorded event.
type EventResponse struct {
	RecordID   string `json:"recordId"`
	Collection string `json:"collection,omitempty"`
	Operation  string `json:"operation"`
	DocID      string `json:"docId,omitempty"`
	Field      string `json:"field,omitempty"`
}

// EventHandlers receives trigger pushes and hands them to the dispatcher.
type EventHandlers struct {
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewEventHandlers creates a new EventHandlers instance.
func NewEventHandlers(d Dispatcher, logger *slog.Logger) *EventHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHandlers{dispatcher: d, logger: logger}
}

// FirestoreEvent handles POST /events/firestore/{collection}.
//
// The body is a Firestore document trigger payload. The collection segment of
// the URL must match the collection named by the document.
func (h *EventHandlers) FirestoreEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	collection := strings.Trim(strings.TrimPrefix(r.URL.Path, firestorePrefix), "/")
	if collection == "" || strings.Contains(collection, "/") {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Collection not specified")
		return
	}

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	ev, err := firestore.Parse(body)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	change, err := ev.Change()
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	if change.Collection != collection {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation,
			fmt.Sprintf("Document belongs to %s, not %s", change.Collection, collection))
		return
	}

	h.dispatch(w, r, dispatch.Event{
		Collection: change.Collection,
		DocID:      change.DocID,
		Operation:  change.Operation,
		Before:     change.Before,
		After:      change.After,
	})
}

// StorageEvent handles POST /events/storage/{finalize|delete}. The body is
// the object metadata and is passed through unchanged.
func (h *EventHandlers) StorageEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var op audit.Operation
	switch strings.Trim(strings.TrimPrefix(r.URL.Path, storagePrefix), "/") {
	case "finalize":
		op = audit.OperationFinalize
	case "delete":
		op = audit.OperationDelete
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeUnknownRoute)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeUnknownRoute, "Unknown storage operation")
		return
	}

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	var metadata map[string]any
	if err := json.Unmarshal(body, &metadata); err != nil || metadata == nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Request body must be a JSON object")
		return
	}

	h.dispatch(w, r, dispatch.StorageEvent(op, metadata))
}

func (h *EventHandlers) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxEventBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusRequestEntityTooLarge, ErrCodeValidation, "Request body too large")
			return nil, false
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Failed to read request body")
		return nil, false
	}
	return body, true
}

// dispatch records ev and maps failures to status codes. Emission failures
// return 500 so the platform redelivers the event.
func (h *EventHandlers) dispatch(w http.ResponseWriter, r *http.Request, ev dispatch.Event) {
	rec, err := h.dispatcher.Dispatch(r.Context(), ev)
	if err != nil {
		code := classifyError(err)
		status := StatusCodeMapping(code)
		ctx := middleware.SetErrorCode(r.Context(), code)
		if status >= http.StatusInternalServerError {
			h.logger.ErrorContext(ctx, "failed to record event",
				slog.String("collection", ev.Collection),
				slog.String("operation", string(ev.Operation)),
				slog.String("doc_id", ev.DocID),
				slog.String("error", err.Error()))
			WriteError(w, ctx, status, code, "Failed to record event")
			return
		}
		WriteError(w, ctx, status, code, err.Error())
		return
	}

	resp := EventResponse{
		RecordID:   rec.ID,
		Collection: rec.Collection,
		Operation:  string(rec.Operation),
		DocID:      rec.DocID,
		Field:      rec.Field,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to encode event response", slog.String("error", err.Error()))
	}
}

// classifyError maps a dispatch failure to its error code.
func classifyError(err error) string {
	switch {
	case errors.Is(err, dispatch.ErrUnknownRoute):
		return ErrCodeUnknownRoute
	case errors.Is(err, dispatch.ErrMissingSnapshot),
		errors.Is(err, audit.ErrInvalidCollection),
		errors.Is(err, audit.ErrInvalidDocumentID),
		errors.Is(err, audit.ErrInvalidOperation):
		return ErrCodeValidation
	default:
		// Includes audit.ErrMissingUpdatedAt and sink failures.
		return ErrCodeRecordFailed
	}
}
