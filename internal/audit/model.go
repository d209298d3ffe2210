// Package audit builds change records for audited documents and storage
// objects and hands them to a Sink.
package audit

import (
	"encoding/json"
	"math"
	"time"

	"github.com/onnwee/docaudit/internal/snapshot"
)

// Operation is the kind of change an audit record describes.
type Operation string

// Supported operations. Finalize only applies to storage objects.
const (
	OperationCreate   Operation = "Create"
	OperationUpdate   Operation = "Update"
	OperationDelete   Operation = "Delete"
	OperationFinalize Operation = "Finalize"
)

// Record is a single audit entry. Records are written once and never mutated
// after they have been handed to a Sink.
type Record struct {
	// ID and RecordedAt are assigned by the Recorder and are not part of the
	// logged payload.
	ID         string    `json:"-"`
	RecordedAt time.Time `json:"-"`

	Collection string    `json:"collection,omitempty"`
	Operation  Operation `json:"operation"`
	DocID      string    `json:"docId,omitempty"`

	// UpdatedAt and UpdatedBy come from the document itself (Create/Update).
	UpdatedAt string `json:"updatedAt,omitempty"`
	UpdatedBy any    `json:"updatedBy,omitempty"`

	// Update only. Prev and New are always present in an Update record, as
	// null when the field was null or missing.
	Field string `json:"field,omitempty"`
	Prev  any    `json:"prev,omitempty"`
	New   any    `json:"new,omitempty"`

	// Create and Delete carry the whole document.
	Data snapshot.Snapshot `json:"data,omitempty"`

	// Storage object metadata, passed through as received.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IsStorage reports whether the record describes a storage object rather than
// a document.
func (r Record) IsStorage() bool {
	return r.Collection == "" && r.Metadata != nil
}

// MarshalJSON keeps explicit null prev/new values on Update records.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	if r.Operation != OperationUpdate || r.IsStorage() {
		return json.Marshal(plain(r))
	}
	return json.Marshal(struct {
		plain
		Prev any `json:"prev"`
		New  any `json:"new"`
	}{plain(r), r.Prev, r.New})
}

// jsonSafe returns a copy of r whose document values can be JSON encoded.
func (r Record) jsonSafe() Record {
	r.UpdatedBy = finite(r.UpdatedBy)
	r.Prev = finite(r.Prev)
	r.New = finite(r.New)
	if r.Data != nil {
		r.Data = finiteMap(r.Data)
	}
	if r.Metadata != nil {
		r.Metadata = finiteMap(r.Metadata)
	}
	return r
}

// finite replaces NaN and the infinities, which JSON cannot represent, with
// the strings JavaScript prints for them. Maps and slices are copied.
func finite(v any) any {
	switch x := v.(type) {
	case float64:
		return finiteFloat(x, v)
	case float32:
		return finiteFloat(float64(x), v)
	case snapshot.Snapshot:
		return snapshot.Snapshot(finiteMap(x))
	case map[string]any:
		return finiteMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = finite(e)
		}
		return out
	default:
		return v
	}
}

func finiteMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = finite(v)
	}
	return out
}

func finiteFloat(f float64, orig any) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	default:
		return orig
	}
}
