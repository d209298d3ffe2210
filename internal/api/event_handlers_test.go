package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/onnwee/docaudit/internal/audit"
	"github.com/onnwee/docaudit/internal/dispatch"
)

const userDoc = "projects/p/databases/(default)/documents/Users/u-1"

func newTestEventHandlers(t *testing.T, sink audit.Sink) *EventHandlers {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec, err := audit.NewRecorder(sink, logger, audit.WithIDGenerator(func() string { return "rec-1" }))
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}
	d, err := dispatch.New(rec, dispatch.WithLogger(logger))
	if err != nil {
		t.Fatalf("dispatch.New() error = %v", err)
	}
	return NewEventHandlers(d, logger)
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse error body: %v, body: %s", err, w.Body.String())
	}
	return resp
}

func TestFirestoreEvent_Update(t *testing.T) {
	sink := audit.NewInMemorySink()
	h := newTestEventHandlers(t, sink)

	body := `{
		"oldValue": {"name": "` + userDoc + `", "fields": {
			"name": {"stringValue": "Alice"},
			"updatedAt": {"timestampValue": "2024-01-01T00:00:00Z"}
		}},
		"value": {"name": "` + userDoc + `", "fields": {
			"name": {"stringValue": "Alicia"},
			"updatedAt": {"timestampValue": "2024-01-02T10:20:30.456Z"},
			"updatedBy": {"stringValue": "admin"}
		}}
	}`
	req := httptest.NewRequest(http.MethodPost, "/events/firestore/Users", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.FirestoreEvent(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp EventResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.RecordID != "rec-1" || resp.Operation != "Update" || resp.Field != "name" || resp.DocID != "u-1" {
		t.Errorf("unexpected response: %+v", resp)
	}

	records := sink.Records()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	got := records[0]
	if got.Prev != "Alice" || got.New != "Alicia" {
		t.Errorf("prev/new = %v/%v", got.Prev, got.New)
	}
	if got.UpdatedAt != "2024-01-02T10:20:30.456Z" {
		t.Errorf("updatedAt = %q", got.UpdatedAt)
	}
	if got.UpdatedBy != "admin" {
		t.Errorf("updatedBy = %v", got.UpdatedBy)
	}
}

func TestFirestoreEvent_CreateAndDelete(t *testing.T) {
	sink := audit.NewInMemorySink()
	h := newTestEventHandlers(t, sink)

	doc := `{"name": "projects/p/databases/(default)/documents/Weapons/w-1", "fields": {
		"name": {"stringValue": "Bow"},
		"updatedAt": {"timestampValue": "2024-01-01T00:00:00Z"}
	}}`

	for _, body := range []string{`{"value": ` + doc + `}`, `{"oldValue": ` + doc + `, "value": {}}`} {
		req := httptest.NewRequest(http.MethodPost, "/events/firestore/Weapons", strings.NewReader(body))
		w := httptest.NewRecorder()
		h.FirestoreEvent(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
	}

	records := sink.Records()
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Operation != audit.OperationCreate || records[1].Operation != audit.OperationDelete {
		t.Errorf("operations = %s, %s", records[0].Operation, records[1].Operation)
	}
	if records[1].Data["name"] != "Bow" {
		t.Errorf("delete data = %v", records[1].Data)
	}
}

func TestFirestoreEvent_Errors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "wrong method",
			method:     http.MethodGet,
			path:       "/events/firestore/Users",
			wantStatus: http.StatusMethodNotAllowed,
			wantCode:   ErrCodeBadRequest,
		},
		{
			name:       "missing collection",
			method:     http.MethodPost,
			path:       "/events/firestore/",
			body:       `{}`,
			wantStatus: http.StatusNotFound,
			wantCode:   ErrCodeNotFound,
		},
		{
			name:       "invalid json",
			method:     http.MethodPost,
			path:       "/events/firestore/Users",
			body:       `{nope`,
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeBadRequest,
		},
		{
			name:       "empty event",
			method:     http.MethodPost,
			path:       "/events/firestore/Users",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeValidation,
		},
		{
			name:       "collection mismatch",
			method:     http.MethodPost,
			path:       "/events/firestore/Weapons",
			body:       `{"value": {"name": "` + userDoc + `", "fields": {"name": {"stringValue": "A"}}}}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeValidation,
		},
		{
			name:       "unaudited collection",
			method:     http.MethodPost,
			path:       "/events/firestore/Scenes",
			body:       `{"value": {"name": "Scenes/s-1", "fields": {"updatedAt": {"timestampValue": "2024-01-01T00:00:00Z"}}}}`,
			wantStatus: http.StatusNotFound,
			wantCode:   ErrCodeUnknownRoute,
		},
		{
			name:       "missing updatedAt",
			method:     http.MethodPost,
			path:       "/events/firestore/Users",
			body:       `{"value": {"name": "` + userDoc + `", "fields": {"name": {"stringValue": "A"}}}}`,
			wantStatus: http.StatusInternalServerError,
			wantCode:   ErrCodeRecordFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := audit.NewInMemorySink()
			h := newTestEventHandlers(t, sink)

			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.FirestoreEvent(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if resp := decodeError(t, w); resp.Error.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, resp.Error.Code)
			}
			if sink.Len() != 0 {
				t.Errorf("expected no records, got %d", sink.Len())
			}
		})
	}
}

func TestFirestoreEvent_BodyTooLarge(t *testing.T) {
	h := newTestEventHandlers(t, audit.NewInMemorySink())

	body := `{"value": {"name": "` + strings.Repeat("x", MaxEventBodyBytes) + `"}}`
	req := httptest.NewRequest(http.MethodPost, "/events/firestore/Users", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.FirestoreEvent(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected status 413, got %d", w.Code)
	}
}

func TestFirestoreEvent_SinkFailure(t *testing.T) {
	h := newTestEventHandlers(t, audit.SinkFunc(func(context.Context, audit.Record) error {
		return errors.New("stream unavailable")
	}))

	body := `{"oldValue": {"name": "` + userDoc + `", "fields": {"name": {"stringValue": "A"}}}}`
	req := httptest.NewRequest(http.MethodPost, "/events/firestore/Users", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.FirestoreEvent(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", w.Code)
	}
	resp := decodeError(t, w)
	if resp.Error.Code != ErrCodeRecordFailed {
		t.Errorf("expected code %s, got %s", ErrCodeRecordFailed, resp.Error.Code)
	}
	if strings.Contains(resp.Error.Message, "stream unavailable") {
		t.Error("sink error details should not leak to the caller")
	}
}

func TestStorageEvent(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantOp     audit.Operation
	}{
		{"finalize", "/events/storage/finalize", `{"name": "img/a.png", "size": "1024"}`, http.StatusOK, audit.OperationFinalize},
		{"delete", "/events/storage/delete", `{"name": "img/a.png"}`, http.StatusOK, audit.OperationDelete},
		{"unknown operation", "/events/storage/archive", `{}`, http.StatusNotFound, ""},
		{"not an object", "/events/storage/finalize", `["a"]`, http.StatusBadRequest, ""},
		{"null body", "/events/storage/finalize", `null`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := audit.NewInMemorySink()
			h := newTestEventHandlers(t, sink)

			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.StorageEvent(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				if sink.Len() != 0 {
					t.Errorf("expected no records, got %d", sink.Len())
				}
				return
			}

			records := sink.Records()
			if len(records) != 1 {
				t.Fatalf("expected 1 record, got %d", len(records))
			}
			if records[0].Operation != tt.wantOp {
				t.Errorf("operation = %s, want %s", records[0].Operation, tt.wantOp)
			}
			if records[0].Metadata["name"] != "img/a.png" {
				t.Errorf("metadata = %v", records[0].Metadata)
			}
			if !records[0].IsStorage() {
				t.Error("expected a storage record")
			}
		})
	}
}

func TestStorageEvent_MethodNotAllowed(t *testing.T) {
	h := newTestEventHandlers(t, audit.NewInMemorySink())

	req := httptest.NewRequest(http.MethodPut, "/events/storage/finalize", nil)
	w := httptest.NewRecorder()
	h.StorageEvent(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
}
