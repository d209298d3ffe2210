// Package collections holds the field-priority tables for every audited
// document collection.
//
// Fields are listed roughly in order of how often editors touch them: names
// first, then categorical fields, then reference arrays. When a single write
// changes several fields only the first one in this order is reported.
package collections

import (
	"sort"

	"github.com/onnwee/docaudit/internal/classify"
)

// Audited collection names, as they appear in document paths.
const (
	Users         = "Users"
	Abilities     = "Abilities"
	CharacterTags = "CharacterTags"
	Characters    = "Characters"
	Facilities    = "Facilities"
	Illustrators  = "Illustrators"
	VoiceActors   = "VoiceActors"
	Weapons       = "Weapons"
)

var (
	scalar = classify.ScalarField
	array  = classify.ArrayField
)

var tables = map[string][]classify.Descriptor{
	Users: {
		scalar("name"),
		array("characters"),
	},
	Abilities: {
		scalar("name"),
		scalar("type"),
		scalar("cost"),
		scalar("interval"),
		array("descriptions"),
		array("tokenLayouts"),
		classify.AbilityAttributesField("attributes"),
	},
	CharacterTags: {
		scalar("name"),
	},
	Characters: {
		scalar("name"),
		scalar("type"),
		scalar("subType"),
		scalar("rarerity"),
		scalar("cost"),
		scalar("costKai"),
		scalar("weaponType"),
		array("geographTypes"),
		scalar("region"),
		array("voiceActors"),
		array("illustrators"),
		array("tags"),
		array("internalTags"),
		array("motifWeapons"),
		array("motifFacilities"),
		array("abilities"),
		array("abilitiesKai"),
	},
	Facilities: {
		scalar("name"),
		scalar("type"),
		scalar("rarerity"),
	},
	Illustrators: {
		scalar("name"),
	},
	VoiceActors: {
		scalar("name"),
	},
	Weapons: {
		scalar("name"),
		scalar("type"),
		scalar("rarerity"),
	},
}

// Descriptors returns a copy of the ordered descriptor list for collection.
func Descriptors(collection string) ([]classify.Descriptor, bool) {
	table, ok := tables[collection]
	if !ok {
		return nil, false
	}
	out := make([]classify.Descriptor, len(table))
	copy(out, table)
	return out, true
}

// Known reports whether collection is audited.
func Known(collection string) bool {
	_, ok := tables[collection]
	return ok
}

// Names returns the audited collection names in lexical order.
func Names() []string {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
