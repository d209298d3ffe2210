package classify

import (
	"testing"
	"time"
)

func TestArrayChanged(t *testing.T) {
	tests := []struct {
		name string
		a    []any
		b    []any
		want bool
	}{
		{name: "identical", a: []any{1, 2, 3}, b: []any{1, 2, 3}, want: false},
		{name: "order matters", a: []any{1, 2}, b: []any{2, 1}, want: true},
		{name: "length matters", a: []any{1, 2}, b: []any{1, 2, 3}, want: true},
		{name: "both empty", a: []any{}, b: []any{}, want: false},
		{name: "nil and empty", a: nil, b: []any{}, want: false},
		{name: "element differs", a: []any{"a", "b"}, b: []any{"a", "c"}, want: true},
		{name: "int and float same value", a: []any{int64(7)}, b: []any{7.0}, want: false},
		{name: "string and number", a: []any{"1"}, b: []any{1}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ArrayChanged(tt.a, tt.b); got != tt.want {
				t.Errorf("ArrayChanged(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestAbilityAttributesChanged(t *testing.T) {
	base := []AbilityAttribute{
		{Type: "attack", Value: 10.0, IsStepEffect: false},
		{Type: "heal", Value: 5.0, IsStepEffect: true},
	}

	clone := func() []AbilityAttribute {
		out := make([]AbilityAttribute, len(base))
		copy(out, base)
		return out
	}

	t.Run("identical", func(t *testing.T) {
		if AbilityAttributesChanged(base, clone()) {
			t.Error("expected no change for identical lists")
		}
	})

	t.Run("only isStepEffect differs", func(t *testing.T) {
		other := clone()
		other[0].IsStepEffect = true
		if !AbilityAttributesChanged(base, other) {
			t.Error("expected change when only isStepEffect differs")
		}
	})

	t.Run("value differs", func(t *testing.T) {
		other := clone()
		other[1].Value = 6.0
		if !AbilityAttributesChanged(base, other) {
			t.Error("expected change when value differs")
		}
	})

	t.Run("type differs", func(t *testing.T) {
		other := clone()
		other[1].Type = "buff"
		if !AbilityAttributesChanged(base, other) {
			t.Error("expected change when type differs")
		}
	})

	t.Run("reordered", func(t *testing.T) {
		other := []AbilityAttribute{base[1], base[0]}
		if !AbilityAttributesChanged(base, other) {
			t.Error("expected change when elements are reordered")
		}
	})

	t.Run("length differs", func(t *testing.T) {
		if !AbilityAttributesChanged(base, base[:1]) {
			t.Error("expected change when lengths differ")
		}
	})

	t.Run("both empty", func(t *testing.T) {
		if AbilityAttributesChanged(nil, []AbilityAttribute{}) {
			t.Error("expected no change for two empty lists")
		}
	})
}

func TestAbilityAttributesFrom(t *testing.T) {
	got := AbilityAttributesFrom([]any{
		map[string]any{"type": "attack", "value": 3.0, "isStepEffect": true, "extra": "ignored"},
		"not an object",
	})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Type != "attack" || got[0].Value != 3.0 || got[0].IsStepEffect != true {
		t.Errorf("first element = %+v", got[0])
	}
	if got[1] != (AbilityAttribute{}) {
		t.Errorf("non-object element = %+v, want zero attribute", got[1])
	}
}

func TestValuesEqual(t *testing.T) {
	ts := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{name: "nil nil", a: nil, b: nil, want: true},
		{name: "nil vs value", a: nil, b: "x", want: false},
		{name: "value vs nil", a: "x", b: nil, want: false},
		{name: "strings", a: "a", b: "a", want: true},
		{name: "different strings", a: "a", b: "b", want: false},
		{name: "bools", a: true, b: true, want: true},
		{name: "int kinds", a: int32(4), b: int64(4), want: true},
		{name: "int vs float", a: 4, b: 4.0, want: true},
		{name: "float fraction", a: 4, b: 4.5, want: false},
		{name: "number vs string", a: 4, b: "4", want: false},
		{name: "times same instant", a: ts, b: ts.In(time.FixedZone("X", 3600)), want: true},
		{name: "times differ", a: ts, b: ts.Add(time.Second), want: false},
		{name: "time vs string", a: ts, b: ts.String(), want: false},
		{name: "maps deep", a: map[string]any{"k": 1.0}, b: map[string]any{"k": 1.0}, want: true},
		{name: "maps differ", a: map[string]any{"k": 1.0}, b: map[string]any{"k": 2.0}, want: false},
		{name: "slices deep", a: []any{"a"}, b: []any{"a"}, want: true},
		{name: "nested int vs float", a: map[string]any{"k": int64(1)}, b: map[string]any{"k": 1.0}, want: true},
		{name: "nested slice numbers", a: []any{map[string]any{"v": int64(10)}}, b: []any{map[string]any{"v": 10.0}}, want: true},
		{name: "nested times", a: map[string]any{"at": ts}, b: map[string]any{"at": ts.In(time.FixedZone("X", 3600))}, want: true},
		{name: "map missing key", a: map[string]any{"k": nil}, b: map[string]any{"j": nil}, want: false},
		{name: "map vs slice", a: map[string]any{}, b: []any{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValuesEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("ValuesEqual(%#v, %#v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
