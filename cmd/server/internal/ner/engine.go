package ner

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/clinscribe/clinscribe/cmd/server/internal/metrics"
)

// DefaultThreshold is the confidence floor applied by the public entrypoint.
const DefaultThreshold = 0.7

// rawFloor is the looser floor applied during raw span filtering, keeping
// more candidates around before the stricter threshold pass.
const rawFloor = 0.5

// minTermLen is the shortest term kept after marker stripping; terms must be
// strictly longer.
const minTermLen = 2

// markerTokens are model-specific sub-word markers stripped from token text.
var markerTokens = []string{"Ġ", "##", "▁"}

// medicalLabels is the heuristic allowlist of span labels treated as likely
// medical terms. General-purpose NER models surface medical vocabulary under
// MISC/ORG; biomedical models use explicit clinical labels.
var medicalLabels = map[string]bool{
	"MISC":       true,
	"ORG":        true,
	"B-MISC":     true,
	"I-MISC":     true,
	"DISEASE":    true,
	"SYMPTOM":    true,
	"DIAGNOSIS":  true,
	"TREATMENT":  true,
	"MEDICATION": true,
	"DRUG":       true,
	"CHEMICAL":   true,
}

// Engine extracts medical entities with a ranked fallback chain.
//
// The chain is an immutable ordered model list: chain[0] is the primary and
// the rest are fallbacks in preference order. Fallback selection is strictly
// per call: a call that fails over to chain[i] does not affect where the next
// call starts, so concurrent runs never observe each other's degradation.
type Engine struct {
	chain      []string
	serviceURL string

	clientOnce sync.Once
	client     Extractor
}

// NewEngine creates an extraction engine. primary must be non-empty;
// fallbacks may be empty, in which case primary failure yields an empty
// entity set immediately.
func NewEngine(serviceURL, primary string, fallbacks []string) *Engine {
	chain := make([]string, 0, 1+len(fallbacks))
	chain = append(chain, primary)
	chain = append(chain, fallbacks...)
	return &Engine{chain: chain, serviceURL: serviceURL}
}

// NewEngineWithExtractor creates an engine with an injected extractor,
// bypassing the lazy HTTP client. Used by tests and by callers that share a
// transport.
func NewEngineWithExtractor(ex Extractor, primary string, fallbacks []string) *Engine {
	e := NewEngine("", primary, fallbacks)
	e.client = ex
	e.clientOnce.Do(func() {})
	return e
}

// getClient returns the extractor handle, building it on first use. The
// handle is process-lifetime scoped and safe for concurrent use.
func (e *Engine) getClient() Extractor {
	e.clientOnce.Do(func() {
		e.client = NewClient(e.serviceURL)
	})
	return e.client
}

// ExtractMedicalEntities runs extraction with threshold filtering, walking
// the fallback chain on failure. Exhausting every model is not an error:
// callers receive an empty set and the pipeline continues.
func (e *Engine) ExtractMedicalEntities(ctx context.Context, text string, threshold float64) []Entity {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	client := e.getClient()

	for i, model := range e.chain {
		spans, err := client.Extract(ctx, text, model)
		if err != nil {
			if i+1 < len(e.chain) {
				next := e.chain[i+1]
				slog.Warn("extraction model failed, falling back",
					"model", model, "next", next, "error", err.Error())
				metrics.RecordNERFallback(next)
				continue
			}
			slog.Error("extraction fallback chain exhausted, returning no entities",
				"models_tried", len(e.chain), "error", err.Error())
			return []Entity{}
		}
		if i > 0 {
			slog.Info("extraction succeeded on fallback model", "model", model)
		}
		return FilterByThreshold(e.filterSpans(spans), threshold)
	}
	return []Entity{}
}

// filterSpans applies the raw floor, the medical label heuristic and marker
// stripping, producing immutable entities.
func (e *Engine) filterSpans(spans []Span) []Entity {
	entities := make([]Entity, 0, len(spans))
	for _, s := range spans {
		if s.Score < rawFloor {
			continue
		}
		if !medicalLabels[s.Label] {
			continue
		}
		term := stripMarkers(s.Word)
		if len([]rune(term)) <= minTermLen {
			continue
		}
		entities = append(entities, Entity{
			Term:       term,
			Type:       s.Label,
			Confidence: s.Score,
			Start:      s.Start,
			End:        s.End,
		})
	}
	return entities
}

func stripMarkers(word string) string {
	for _, m := range markerTokens {
		word = strings.ReplaceAll(word, m, "")
	}
	return strings.TrimSpace(word)
}

// Chain exposes the configured model chain for status reporting.
func (e *Engine) Chain() []string {
	out := make([]string, len(e.chain))
	copy(out, e.chain)
	return out
}
