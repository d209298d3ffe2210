package firestore

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrUnknownValueType is returned for a value with none of the known type keys.
var ErrUnknownValueType = errors.New("unknown firestore value type")

// Value is a Firestore typed value. Exactly one member is set.
type Value struct {
	NullValue      json.RawMessage `json:"nullValue,omitempty"`
	BooleanValue   *bool           `json:"booleanValue,omitempty"`
	IntegerValue   *json.Number    `json:"integerValue,omitempty"`
	DoubleValue    json.RawMessage `json:"doubleValue,omitempty"`
	TimestampValue *time.Time      `json:"timestampValue,omitempty"`
	StringValue    *string         `json:"stringValue,omitempty"`
	BytesValue     *string         `json:"bytesValue,omitempty"`
	ReferenceValue *string         `json:"referenceValue,omitempty"`
	GeoPointValue  *GeoPoint       `json:"geoPointValue,omitempty"`
	ArrayValue     *ArrayValue     `json:"arrayValue,omitempty"`
	MapValue       *MapValue       `json:"mapValue,omitempty"`
}

// GeoPoint is a latitude/longitude pair.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ArrayValue holds the elements of an array field. Values is omitted for an
// empty array.
type ArrayValue struct {
	Values []Value `json:"values"`
}

// MapValue holds the fields of a map field.
type MapValue struct {
	Fields map[string]Value `json:"fields"`
}

// Decode converts v to a plain Go value:
//
//	nullValue      -> nil
//	booleanValue   -> bool
//	integerValue   -> int64
//	doubleValue    -> float64
//	timestampValue -> time.Time
//	stringValue    -> string
//	bytesValue     -> []byte
//	referenceValue -> string
//	geoPointValue  -> map[string]any{"latitude", "longitude"}
//	arrayValue     -> []any
//	mapValue       -> map[string]any
func (v Value) Decode() (any, error) {
	switch {
	case v.NullValue != nil:
		return nil, nil
	case v.BooleanValue != nil:
		return *v.BooleanValue, nil
	case v.IntegerValue != nil:
		n, err := v.IntegerValue.Int64()
		if err != nil {
			return nil, fmt.Errorf("invalid integerValue %q: %w", v.IntegerValue.String(), err)
		}
		return n, nil
	case v.DoubleValue != nil:
		return decodeDouble(v.DoubleValue)
	case v.TimestampValue != nil:
		return v.TimestampValue.UTC(), nil
	case v.StringValue != nil:
		return *v.StringValue, nil
	case v.BytesValue != nil:
		b, err := base64.StdEncoding.DecodeString(*v.BytesValue)
		if err != nil {
			return nil, fmt.Errorf("invalid bytesValue: %w", err)
		}
		return b, nil
	case v.ReferenceValue != nil:
		return *v.ReferenceValue, nil
	case v.GeoPointValue != nil:
		return map[string]any{
			"latitude":  v.GeoPointValue.Latitude,
			"longitude": v.GeoPointValue.Longitude,
		}, nil
	case v.ArrayValue != nil:
		out := make([]any, len(v.ArrayValue.Values))
		for i, e := range v.ArrayValue.Values {
			d, err := e.Decode()
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = d
		}
		return out, nil
	case v.MapValue != nil:
		out := make(map[string]any, len(v.MapValue.Fields))
		for k, e := range v.MapValue.Fields {
			d, err := e.Decode()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = d
		}
		return out, nil
	default:
		return nil, ErrUnknownValueType
	}
}

// decodeDouble accepts a JSON number or one of the quoted special values
// "NaN", "Infinity" and "-Infinity".
func decodeDouble(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("invalid doubleValue %s", raw)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid doubleValue %q: %w", s, err)
	}
	return f, nil
}
