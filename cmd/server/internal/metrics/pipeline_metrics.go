package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageTotal counts pipeline stage executions.
	// Labels: stage (transcribe/ner/summarize/generate/render/index), status (success/error/degraded)
	StageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinscribe_pipeline_stage_total",
			Help: "Total number of pipeline stage executions by stage and status",
		},
		[]string{"stage", "status"},
	)

	// StageDuration observes stage latency in seconds.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clinscribe_pipeline_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds by stage",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	// NERFallbackTotal counts descents through the extraction fallback chain.
	// Labels: model (the fallback model activated)
	NERFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinscribe_ner_fallback_total",
			Help: "Total number of NER fallback activations by fallback model",
		},
		[]string{"model"},
	)

	// GenerationRetriesTotal counts report generation retry sleeps.
	GenerationRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clinscribe_generation_retries_total",
			Help: "Total number of report generation retries",
		},
	)

	// GenerationDegradedTotal counts generation calls that exhausted retries.
	GenerationDegradedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clinscribe_generation_degraded_total",
			Help: "Total number of generation calls that returned the degraded sentinel",
		},
	)

	// KBIndexBuildsTotal counts knowledge index rebuilds.
	// Labels: status (success/error)
	KBIndexBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinscribe_kb_index_builds_total",
			Help: "Total number of knowledge index builds by status",
		},
		[]string{"status"},
	)
)

// RecordStage records one stage execution outcome.
func RecordStage(stage string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	StageTotal.WithLabelValues(stage, status).Inc()
}

// RecordStageDegraded records a stage that completed with a degraded result.
func RecordStageDegraded(stage string) {
	StageTotal.WithLabelValues(stage, "degraded").Inc()
}

// RecordStageDuration records stage latency in seconds.
func RecordStageDuration(stage string, seconds float64) {
	StageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordNERFallback records activation of a fallback extraction model.
func RecordNERFallback(model string) {
	NERFallbackTotal.WithLabelValues(model).Inc()
}

// RecordKBIndexBuild records a knowledge index rebuild outcome.
func RecordKBIndexBuild(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	KBIndexBuildsTotal.WithLabelValues(status).Inc()
}
