// Package classify decides which single field of a document changed between
// two versions of it.
package classify

import (
	"math"
	"reflect"
	"time"

	"github.com/onnwee/docaudit/internal/snapshot"
)

// Ability attribute sub-fields compared by AbilityAttributesChanged.
const (
	attrType         = "type"
	attrValue        = "value"
	attrIsStepEffect = "isStepEffect"
)

// AbilityAttribute is one element of the Abilities "attributes" array.
type AbilityAttribute struct {
	Type         any `json:"type"`
	Value        any `json:"value"`
	IsStepEffect any `json:"isStepEffect"`
}

// ValuesEqual reports whether two decoded document values are the same.
//
// Numbers compare numerically regardless of their Go type, time.Time values by
// instant, and comparable values of the same type with ==. Decoded maps and
// sequences are compared element by element under the same rules; other
// composites fall back to deep equality. Values of different kinds are never
// equal.
func ValuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}

	if na, ok := toNumber(a); ok {
		nb, ok := toNumber(b)
		return ok && na.equal(nb)
	}

	switch va := a.(type) {
	case map[string]any:
		vb, ok := b.(map[string]any)
		return ok && mapsEqual(va, vb)
	case []any:
		vb, ok := b.([]any)
		return ok && !ArrayChanged(va, vb)
	}

	typeA := reflect.TypeOf(a)
	if typeA != reflect.TypeOf(b) {
		return false
	}
	switch typeA.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Interface, reflect.Func:
		return reflect.DeepEqual(a, b)
	default:
		return a == b
	}
}

func mapsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok || !ValuesEqual(va, vb) {
			return false
		}
	}
	return true
}

// ArrayChanged reports whether a and b differ in length or in any element at
// the same index. Order matters: a permutation counts as a change.
func ArrayChanged(a, b []any) bool {
	if len(a) != len(b) {
		return true
	}
	for i := range a {
		if !ValuesEqual(a[i], b[i]) {
			return true
		}
	}
	return false
}

// AbilityAttributesChanged reports whether two ability attribute lists differ in
// length or in the type, value or isStepEffect of any element at the same index.
func AbilityAttributesChanged(a, b []AbilityAttribute) bool {
	if len(a) != len(b) {
		return true
	}
	for i := range a {
		switch {
		case !ValuesEqual(a[i].Type, b[i].Type):
			return true
		case !ValuesEqual(a[i].Value, b[i].Value):
			return true
		case !ValuesEqual(a[i].IsStepEffect, b[i].IsStepEffect):
			return true
		}
	}
	return false
}

// AbilityAttributesFrom converts a decoded attributes array into typed
// elements. Elements that are not objects read as attributes with every
// sub-field unset.
func AbilityAttributesFrom(seq []any) []AbilityAttribute {
	out := make([]AbilityAttribute, len(seq))
	for i, elem := range seq {
		switch e := elem.(type) {
		case AbilityAttribute:
			out[i] = e
		case map[string]any:
			out[i] = AbilityAttribute{
				Type:         e[attrType],
				Value:        e[attrValue],
				IsStepEffect: e[attrIsStepEffect],
			}
		case snapshot.Snapshot:
			out[i] = AbilityAttribute{
				Type:         e[attrType],
				Value:        e[attrValue],
				IsStepEffect: e[attrIsStepEffect],
			}
		}
	}
	return out
}

// number holds a decoded numeric value as an integer when it is one.
type number struct {
	i     int64
	f     float64
	isInt bool
}

func (n number) equal(o number) bool {
	if n.isInt && o.isInt {
		return n.i == o.i
	}
	return n.float() == o.float()
}

func (n number) float() float64 {
	if n.isInt {
		return float64(n.i)
	}
	return n.f
}

func toNumber(v any) (number, bool) {
	switch n := v.(type) {
	case int:
		return number{i: int64(n), isInt: true}, true
	case int8:
		return number{i: int64(n), isInt: true}, true
	case int16:
		return number{i: int64(n), isInt: true}, true
	case int32:
		return number{i: int64(n), isInt: true}, true
	case int64:
		return number{i: n, isInt: true}, true
	case uint:
		return fromUint(uint64(n)), true
	case uint8:
		return number{i: int64(n), isInt: true}, true
	case uint16:
		return number{i: int64(n), isInt: true}, true
	case uint32:
		return number{i: int64(n), isInt: true}, true
	case uint64:
		return fromUint(n), true
	case float32:
		return number{f: float64(n)}, true
	case float64:
		return number{f: n}, true
	default:
		return number{}, false
	}
}

func fromUint(u uint64) number {
	if u > math.MaxInt64 {
		return number{f: float64(u)}
	}
	return number{i: int64(u), isInt: true}
}
