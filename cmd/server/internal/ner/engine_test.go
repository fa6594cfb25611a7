package ner

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinscribe/clinscribe/cmd/server/internal/metrics"
)

// scriptedExtractor fails or succeeds per model name and records call order.
type scriptedExtractor struct {
	fail  map[string]bool
	calls []string
	spans []Span
}

func (s *scriptedExtractor) Extract(ctx context.Context, text, model string) ([]Span, error) {
	s.calls = append(s.calls, model)
	if s.fail[model] {
		return nil, errors.New("model load failed: " + model)
	}
	return s.spans, nil
}

func sampleSpans() []Span {
	return []Span{
		{Label: "MISC", Word: "Ġhypertension", Score: 0.95, Start: 16, End: 28},
		{Label: "MISC", Word: "diabetes", Score: 0.88, Start: 33, End: 41},
		{Label: "ORG", Word: "lisinopril", Score: 0.72, Start: 70, End: 80},
		{Label: "PER", Word: "Smith", Score: 0.99, Start: 0, End: 5},     // non-medical label
		{Label: "MISC", Word: "##flu", Score: 0.91, Start: 50, End: 53},  // too short after stripping
		{Label: "MISC", Word: "fatigue", Score: 0.45, Start: 55, End: 62}, // below raw floor
	}
}

func TestExtractFiltersAndNormalizes(t *testing.T) {
	ex := &scriptedExtractor{spans: sampleSpans()}
	engine := NewEngineWithExtractor(ex, "primary", nil)

	entities := engine.ExtractMedicalEntities(context.Background(), "text", 0.7)

	require.Len(t, entities, 3)
	assert.Equal(t, "hypertension", entities[0].Term, "marker characters must be stripped")
	assert.Equal(t, "MISC", entities[0].Type)
	assert.InDelta(t, 0.95, entities[0].Confidence, 1e-9)
	assert.Equal(t, 16, entities[0].Start)
	assert.Equal(t, "diabetes", entities[1].Term)
	assert.Equal(t, "lisinopril", entities[2].Term)
}

func TestExtractThresholdMonotonic(t *testing.T) {
	ex := &scriptedExtractor{spans: sampleSpans()}
	engine := NewEngineWithExtractor(ex, "primary", nil)

	loose := engine.ExtractMedicalEntities(context.Background(), "text", 0.6)
	strict := engine.ExtractMedicalEntities(context.Background(), "text", 0.9)

	require.NotEmpty(t, loose)
	looseTerms := make(map[string]bool)
	for _, e := range loose {
		looseTerms[e.Term] = true
	}
	for _, e := range strict {
		assert.True(t, looseTerms[e.Term], "entity kept at strict threshold must be kept at loose one")
	}
	assert.Less(t, len(strict), len(loose))
}

func TestFallbackChainDescent(t *testing.T) {
	ex := &scriptedExtractor{
		fail:  map[string]bool{"primary": true},
		spans: sampleSpans(),
	}
	engine := NewEngineWithExtractor(ex, "primary", []string{"fallback-1", "fallback-2"})

	before := testutil.ToFloat64(metrics.NERFallbackTotal.WithLabelValues("fallback-1"))
	entities := engine.ExtractMedicalEntities(context.Background(), "text", 0.7)
	require.NotEmpty(t, entities)
	assert.Equal(t, []string{"primary", "fallback-1"}, ex.calls,
		"first fallback must be tried immediately after primary failure")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.NERFallbackTotal.WithLabelValues("fallback-1")),
		"chain descent must count the activated fallback model")
}

func TestFallbackNotSticky(t *testing.T) {
	ex := &scriptedExtractor{
		fail:  map[string]bool{"primary": true},
		spans: sampleSpans(),
	}
	engine := NewEngineWithExtractor(ex, "primary", []string{"fallback-1"})

	engine.ExtractMedicalEntities(context.Background(), "text", 0.7)

	// Primary recovers; the next call must start at primary again.
	ex.fail["primary"] = false
	ex.calls = nil
	engine.ExtractMedicalEntities(context.Background(), "text", 0.7)
	assert.Equal(t, []string{"primary"}, ex.calls, "fallback must be per-call, not sticky")
}

func TestFallbackExhaustedReturnsEmpty(t *testing.T) {
	ex := &scriptedExtractor{
		fail: map[string]bool{"primary": true, "fallback-1": true, "fallback-2": true},
	}
	engine := NewEngineWithExtractor(ex, "primary", []string{"fallback-1", "fallback-2"})

	before1 := testutil.ToFloat64(metrics.NERFallbackTotal.WithLabelValues("fallback-1"))
	before2 := testutil.ToFloat64(metrics.NERFallbackTotal.WithLabelValues("fallback-2"))
	entities := engine.ExtractMedicalEntities(context.Background(), "text", 0.7)
	assert.NotNil(t, entities)
	assert.Empty(t, entities, "exhausted chain degrades to an empty set, never an error")
	assert.Equal(t, []string{"primary", "fallback-1", "fallback-2"}, ex.calls)
	assert.Equal(t, before1+1, testutil.ToFloat64(metrics.NERFallbackTotal.WithLabelValues("fallback-1")))
	assert.Equal(t, before2+1, testutil.ToFloat64(metrics.NERFallbackTotal.WithLabelValues("fallback-2")))
}

func TestFormatForReport(t *testing.T) {
	entities := []Entity{
		{Term: "headache", Type: "SYMPTOM", Confidence: 0.95},
		{Term: "migraine", Type: "DIAGNOSIS", Confidence: 0.85},
		{Term: "nausea", Type: "SYMPTOM", Confidence: 0.92},
		{Term: "headache", Type: "SYMPTOM", Confidence: 0.90}, // duplicate term
	}

	got := FormatForReport(entities)
	want := "SYMPTOM: headache, nausea\nDIAGNOSIS: migraine"
	assert.Equal(t, want, got, "groups in first-seen order, duplicates dropped")
}

func TestFormatForReportEmpty(t *testing.T) {
	assert.Equal(t, NoEntitiesSentinel, FormatForReport(nil))
	assert.Equal(t, NoEntitiesSentinel, FormatForReport([]Entity{}))
}

func TestFormatInline(t *testing.T) {
	entities := []Entity{
		{Term: "headache", Type: "SYMPTOM"},
		{Term: "migraine", Type: "DIAGNOSIS"},
	}
	assert.Equal(t, "headache (SYMPTOM), migraine (DIAGNOSIS)", FormatInline(entities))
	assert.Equal(t, "", FormatInline(nil))
}
