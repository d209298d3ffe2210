package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"

	"github.com/onnwee/docaudit/internal/audit"
	"github.com/onnwee/docaudit/internal/dispatch"
	"github.com/onnwee/docaudit/internal/snapshot"
)

// Message kinds.
const (
	KindDocument = "document"
	KindObject   = "object"
)

// Message decoding errors.
var (
	ErrInvalidMessage    = errors.New("invalid change message")
	ErrUnsupportedKind   = errors.New("unsupported message kind")
	ErrUnsupportedFrame  = errors.New("unsupported websocket frame type")
	ErrMissingChange     = errors.New("message has no change body")
	ErrMissingCollection = errors.New("document change has no collection")
	ErrMissingDocumentID = errors.New("document change has no id")
	ErrUnknownOperation  = errors.New("unknown change operation")
)

// Message is one entry of the change stream. Text frames carry JSON, binary
// frames carry CBOR with the same field names.
type Message struct {
	Kind     string          `json:"kind" cbor:"kind"`
	TimeUS   int64           `json:"time_us" cbor:"time_us"`
	Document *DocumentChange `json:"document,omitempty" cbor:"document,omitempty"`
	Object   *ObjectChange   `json:"object,omitempty" cbor:"object,omitempty"`
}

// DocumentChange describes a document write.
type DocumentChange struct {
	Collection string         `json:"collection" cbor:"collection"`
	ID         string         `json:"id" cbor:"id"`
	Operation  string         `json:"operation" cbor:"operation"`
	Before     map[string]any `json:"before,omitempty" cbor:"before,omitempty"`
	After      map[string]any `json:"after,omitempty" cbor:"after,omitempty"`
}

// ObjectChange describes a storage object notification.
type ObjectChange struct {
	Operation string         `json:"operation" cbor:"operation"`
	Metadata  map[string]any `json:"metadata,omitempty" cbor:"metadata,omitempty"`
}

// cborDecMode decodes nested maps with string keys so snapshots look the
// same whichever encoding the producer used.
var cborDecMode = mustDecMode(cbor.DecOptions{
	DefaultMapType:   reflect.TypeOf(map[string]any(nil)),
	MapKeyByteString: cbor.MapKeyByteStringAllowed,
})

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	dm, err := opts.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}

// DecodeMessage decodes a frame according to its WebSocket message type.
func DecodeMessage(messageType int, payload []byte) (*Message, error) {
	switch messageType {
	case websocket.TextMessage:
		return DecodeJSONMessage(payload)
	case websocket.BinaryMessage:
		return DecodeCBORMessage(payload)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFrame, messageType)
	}
}

// DecodeJSONMessage decodes a JSON change message.
func DecodeJSONMessage(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, ErrInvalidMessage
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return &msg, nil
}

// DecodeCBORMessage decodes a CBOR change message.
func DecodeCBORMessage(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, ErrInvalidMessage
	}
	var msg Message
	if err := cborDecMode.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.Document != nil {
		msg.Document.Before = stringKeyed(msg.Document.Before)
		msg.Document.After = stringKeyed(msg.Document.After)
	}
	if msg.Object != nil {
		msg.Object.Metadata = stringKeyed(msg.Object.Metadata)
	}
	return &msg, nil
}

// EncodeCBOR encodes a value to CBOR bytes.
func EncodeCBOR(v any) ([]byte, error) {
	b, err := cbor.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode CBOR: %w", err)
	}
	return b, nil
}

// Event converts the message to a dispatcher event.
func (m *Message) Event() (dispatch.Event, error) {
	switch m.Kind {
	case KindDocument:
		d := m.Document
		if d == nil {
			return dispatch.Event{}, ErrMissingChange
		}
		if d.Collection == "" {
			return dispatch.Event{}, ErrMissingCollection
		}
		if d.ID == "" {
			return dispatch.Event{}, ErrMissingDocumentID
		}
		op, err := parseOperation(d.Operation)
		if err != nil {
			return dispatch.Event{}, err
		}
		return dispatch.Event{
			Collection: d.Collection,
			DocID:      d.ID,
			Operation:  op,
			Before:     toSnapshot(d.Before),
			After:      toSnapshot(d.After),
		}, nil
	case KindObject:
		o := m.Object
		if o == nil {
			return dispatch.Event{}, ErrMissingChange
		}
		op, err := parseOperation(o.Operation)
		if err != nil {
			return dispatch.Event{}, err
		}
		return dispatch.StorageEvent(op, o.Metadata), nil
	default:
		return dispatch.Event{}, fmt.Errorf("%w: %q", ErrUnsupportedKind, m.Kind)
	}
}

// parseOperation accepts lower- or title-case operation names.
func parseOperation(s string) (audit.Operation, error) {
	switch s {
	case "create", "Create":
		return audit.OperationCreate, nil
	case "update", "Update":
		return audit.OperationUpdate, nil
	case "delete", "Delete":
		return audit.OperationDelete, nil
	case "finalize", "Finalize":
		return audit.OperationFinalize, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, s)
	}
}

func toSnapshot(m map[string]any) snapshot.Snapshot {
	if m == nil {
		return nil
	}
	return snapshot.Snapshot(m)
}

// stringKeyed converts nested map[any]any values left by CBOR into
// map[string]any.
func stringKeyed(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = convertToStringKeyedMaps(v)
	}
	return out
}

func convertToStringKeyedMaps(data any) any {
	switch v := data.(type) {
	case map[any]any:
		result := make(map[string]any, len(v))
		for key, value := range v {
			var strKey string
			switch k := key.(type) {
			case string:
				strKey = k
			case []byte:
				strKey = string(k)
			default:
				strKey = fmt.Sprintf("%v", k)
			}
			result[strKey] = convertToStringKeyedMaps(value)
		}
		return result
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, value := range v {
			result[key] = convertToStringKeyedMaps(value)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = convertToStringKeyedMaps(item)
		}
		return result
	default:
		return v
	}
}
