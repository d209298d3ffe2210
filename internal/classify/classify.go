package classify

import (
	"github.com/onnwee/docaudit/internal/snapshot"
)

// FieldAll is reported when none of the configured fields differ. The
// classification then carries the two whole snapshots.
const FieldAll = "all"

// Kind selects the comparison applied to a field.
type Kind int

const (
	// Scalar compares the raw values with ValuesEqual.
	Scalar Kind = iota
	// OrderedArray compares element by element with ArrayChanged.
	OrderedArray
	// AbilityAttributes compares type, value and isStepEffect per element.
	AbilityAttributes
)

// String returns the kind name used in logs and the CLI.
func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case OrderedArray:
		return "array"
	case AbilityAttributes:
		return "ability-attributes"
	default:
		return "unknown"
	}
}

// Descriptor names a field and how to compare it.
type Descriptor struct {
	Field string
	Kind  Kind
}

// ScalarField returns a scalar descriptor for field.
func ScalarField(field string) Descriptor {
	return Descriptor{Field: field, Kind: Scalar}
}

// ArrayField returns an ordered-array descriptor for field.
func ArrayField(field string) Descriptor {
	return Descriptor{Field: field, Kind: OrderedArray}
}

// AbilityAttributesField returns an ability-attributes descriptor for field.
func AbilityAttributesField(field string) Descriptor {
	return Descriptor{Field: field, Kind: AbilityAttributes}
}

// Changed reports whether the descriptor's field differs between prev and next.
// Array-valued fields that are missing on either side read as empty.
func (d Descriptor) Changed(prev, next snapshot.Snapshot) bool {
	switch d.Kind {
	case OrderedArray:
		return ArrayChanged(prev.Sequence(d.Field), next.Sequence(d.Field))
	case AbilityAttributes:
		return AbilityAttributesChanged(
			AbilityAttributesFrom(prev.Sequence(d.Field)),
			AbilityAttributesFrom(next.Sequence(d.Field)),
		)
	default:
		return !ValuesEqual(prev.Get(d.Field), next.Get(d.Field))
	}
}

// Classification is the outcome of Classify.
type Classification struct {
	Field string
	Prev  any
	New   any
}

// IsFallback reports whether no configured field was found to differ.
func (c Classification) IsFallback() bool {
	return c.Field == FieldAll
}

// Classify walks descriptors in order and returns the first field that differs
// between prev and next, together with its old and new values. Later
// descriptors are not evaluated once a difference is found. When nothing
// differs the result is FieldAll with both snapshots.
func Classify(prev, next snapshot.Snapshot, descriptors []Descriptor) Classification {
	for _, d := range descriptors {
		if d.Changed(prev, next) {
			return Classification{
				Field: d.Field,
				Prev:  prev.Get(d.Field),
				New:   next.Get(d.Field),
			}
		}
	}
	return Classification{
		Field: FieldAll,
		Prev:  prev,
		New:   next,
	}
}
