// Package firestore decodes Firestore document trigger payloads into plain
// snapshots.
//
// A trigger delivers the document before and after the write. Either side may
// be missing (creates have no oldValue, deletes have no value), and field
// values use Firestore's typed JSON encoding, e.g. {"stringValue": "x"}.
package firestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/onnwee/docaudit/internal/audit"
	"github.com/onnwee/docaudit/internal/snapshot"
)

// ErrEmptyEvent is returned when an event has neither an old nor a new document.
var ErrEmptyEvent = errors.New("firestore event has no document")

// ErrInvalidDocumentName is returned when a document name has no ID segment.
var ErrInvalidDocumentName = errors.New("invalid firestore document name")

// Event is the payload of a Firestore document trigger.
type Event struct {
	OldValue   *Document   `json:"oldValue,omitempty"`
	Value      *Document   `json:"value,omitempty"`
	UpdateMask *UpdateMask `json:"updateMask,omitempty"`
}

// UpdateMask lists the field paths touched by an update.
type UpdateMask struct {
	FieldPaths []string `json:"fieldPaths"`
}

// Document is one version of a Firestore document.
type Document struct {
	Name       string           `json:"name"`
	Fields     map[string]Value `json:"fields"`
	CreateTime time.Time        `json:"createTime"`
	UpdateTime time.Time        `json:"updateTime"`
}

// Change is a decoded trigger event.
type Change struct {
	Collection string
	DocID      string
	Operation  audit.Operation
	Before     snapshot.Snapshot
	After      snapshot.Snapshot
}

// Parse decodes a raw trigger payload.
func Parse(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to decode firestore event: %w", err)
	}
	return ev, nil
}

// exists reports whether d carries a document. Triggers send an empty object
// rather than omitting the side that does not exist.
func (d *Document) exists() bool {
	return d != nil && (d.Name != "" || len(d.Fields) > 0)
}

// Operation derives the change kind from which sides of the event are present.
func (e Event) Operation() (audit.Operation, error) {
	oldExists, newExists := e.OldValue.exists(), e.Value.exists()
	switch {
	case oldExists && newExists:
		return audit.OperationUpdate, nil
	case newExists:
		return audit.OperationCreate, nil
	case oldExists:
		return audit.OperationDelete, nil
	default:
		return "", ErrEmptyEvent
	}
}

// Change decodes both sides of the event.
func (e Event) Change() (Change, error) {
	op, err := e.Operation()
	if err != nil {
		return Change{}, err
	}

	ref := e.Value
	if !ref.exists() {
		ref = e.OldValue
	}
	collection, id, err := SplitName(ref.Name)
	if err != nil {
		return Change{}, err
	}

	c := Change{
		Collection: collection,
		DocID:      id,
		Operation:  op,
	}
	if e.OldValue.exists() {
		if c.Before, err = e.OldValue.Snapshot(); err != nil {
			return Change{}, fmt.Errorf("oldValue: %w", err)
		}
	}
	if e.Value.exists() {
		if c.After, err = e.Value.Snapshot(); err != nil {
			return Change{}, fmt.Errorf("value: %w", err)
		}
	}
	return c, nil
}

// Snapshot decodes the document's typed fields.
func (d *Document) Snapshot() (snapshot.Snapshot, error) {
	s := make(snapshot.Snapshot, len(d.Fields))
	for name, v := range d.Fields {
		decoded, err := v.Decode()
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		s[name] = decoded
	}
	return s, nil
}

// SplitName returns the collection and document ID from a full document name
// such as projects/p/databases/(default)/documents/Users/abc. For documents
// in subcollections the innermost collection is returned.
func SplitName(name string) (collection, id string, err error) {
	segments := strings.Split(strings.Trim(name, "/"), "/")
	if len(segments) < 2 || segments[len(segments)-1] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidDocumentName, name)
	}
	return segments[len(segments)-2], segments[len(segments)-1], nil
}
