// Package snapshot provides the read-only document view handed to the audit
// handlers for a single change event.
package snapshot

import (
	"reflect"
	"strings"
	"time"
)

// Well-known bookkeeping fields written by the admin tooling on every save.
const (
	FieldUpdatedAt = "updatedAt"
	FieldUpdatedBy = "updatedBy"
)

// ISOLayout matches JavaScript's Date.prototype.toISOString output.
const ISOLayout = "2006-01-02T15:04:05.000Z"

// Snapshot is one version (before or after) of a document, keyed by field name.
// Snapshots are owned by the caller and must not be mutated by handlers.
type Snapshot map[string]any

// Get returns the raw value of field, or nil when the field is absent.
// It is safe to call on a nil Snapshot.
func (s Snapshot) Get(field string) any {
	if s == nil {
		return nil
	}
	return s[field]
}

// Has reports whether field is present, even if its value is nil.
func (s Snapshot) Has(field string) bool {
	if s == nil {
		return false
	}
	_, ok := s[field]
	return ok
}

// Sequence returns field as a generic sequence.
// A missing or nil field yields an empty sequence. A value that is not a slice
// or array is returned as a one-element sequence, so a type change between
// versions still reads as a difference.
func (s Snapshot) Sequence(field string) []any {
	return AsSequence(s.Get(field))
}

// AsSequence converts v to []any using the same rules as Snapshot.Sequence.
func AsSequence(v any) []any {
	switch vv := v.(type) {
	case nil:
		return []any{}
	case []any:
		return vv
	case []string:
		out := make([]any, len(vv))
		for i, e := range vv {
			out[i] = e
		}
		return out
	case []map[string]any:
		out := make([]any, len(vv))
		for i, e := range vv {
			out[i] = e
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any{}
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = rv.Index(i).Interface()
		}
		return out
	default:
		return []any{v}
	}
}

// UpdatedAt returns the document's updatedAt timestamp.
// Supported encodings are time.Time, RFC 3339 strings and the seconds/nanos
// maps produced by Firestore client libraries ({seconds,nanos} or
// {_seconds,_nanoseconds}).
func (s Snapshot) UpdatedAt() (time.Time, bool) {
	return ParseTimestamp(s.Get(FieldUpdatedAt))
}

// UpdatedBy returns the raw updatedBy value, or nil when absent.
func (s Snapshot) UpdatedBy() any {
	return s.Get(FieldUpdatedBy)
}

// ParseTimestamp interprets v as a point in time.
func ParseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, false
		}
		return *t, true
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return time.Time{}, false
		}
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	case map[string]any:
		if sec, ok := toInt64(t["seconds"]); ok {
			nanos, _ := toInt64(t["nanos"])
			return time.Unix(sec, nanos), true
		}
		if sec, ok := toInt64(t["_seconds"]); ok {
			nanos, _ := toInt64(t["_nanoseconds"])
			return time.Unix(sec, nanos), true
		}
	}
	return time.Time{}, false
}

// FormatTimestamp renders t in UTC with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(ISOLayout)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	default:
		return 0, false
	}
}
