// Package ner provides medical named entity extraction over external NER
// models, with confidence filtering and a ranked fallback chain that keeps
// the pipeline alive when the preferred model is unavailable.
package ner

import (
	"fmt"
	"strings"
)

// Entity is one extracted medical term. Confidence is always a plain float64
// regardless of the numeric type the source model emitted; Start/End are
// character offsets into the source text. Entities are never mutated after
// creation.
type Entity struct {
	Term       string  `json:"term"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
}

// NoEntitiesSentinel is returned by FormatForReport for an empty entity set.
const NoEntitiesSentinel = "No significant medical entities detected."

// FilterByThreshold keeps entities with confidence at or above threshold.
// Filtering is monotonic: raising the threshold never admits new entities.
func FilterByThreshold(entities []Entity, threshold float64) []Entity {
	kept := make([]Entity, 0, len(entities))
	for _, e := range entities {
		if e.Confidence >= threshold {
			kept = append(kept, e)
		}
	}
	return kept
}

// FormatForReport groups entities by type and renders one "TYPE: term, term"
// line per group. Group order follows the first entity seen of each type and
// duplicate terms within a group are dropped, preserving first-seen order.
func FormatForReport(entities []Entity) string {
	if len(entities) == 0 {
		return NoEntitiesSentinel
	}

	groupOrder := make([]string, 0)
	groups := make(map[string][]string)
	seen := make(map[string]map[string]bool)

	for _, e := range entities {
		if _, ok := groups[e.Type]; !ok {
			groupOrder = append(groupOrder, e.Type)
			groups[e.Type] = nil
			seen[e.Type] = make(map[string]bool)
		}
		if seen[e.Type][e.Term] {
			continue
		}
		seen[e.Type][e.Term] = true
		groups[e.Type] = append(groups[e.Type], e.Term)
	}

	lines := make([]string, 0, len(groupOrder))
	for _, typ := range groupOrder {
		lines = append(lines, fmt.Sprintf("%s: %s", typ, strings.Join(groups[typ], ", ")))
	}
	return strings.Join(lines, "\n")
}

// FormatInline renders entities as a comma-joined "term (type)" list for
// prompt interpolation.
func FormatInline(entities []Entity) string {
	parts := make([]string, 0, len(entities))
	for _, e := range entities {
		parts = append(parts, fmt.Sprintf("%s (%s)", e.Term, e.Type))
	}
	return strings.Join(parts, ", ")
}
