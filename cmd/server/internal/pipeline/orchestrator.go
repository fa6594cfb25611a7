// Package pipeline sequences the processing stages into end-to-end runs:
// transcription, entity extraction, summarization, report synthesis, PDF
// rendering, plus the non-blocking knowledge indexing side channel.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/clinscribe/clinscribe/cmd/server/internal/knowledge"
	"github.com/clinscribe/clinscribe/cmd/server/internal/metrics"
	"github.com/clinscribe/clinscribe/cmd/server/internal/ner"
	"github.com/clinscribe/clinscribe/cmd/server/internal/report"
	"github.com/clinscribe/clinscribe/cmd/server/internal/summarize"
	"github.com/clinscribe/clinscribe/cmd/server/internal/transcribe"
	"github.com/clinscribe/clinscribe/pkg/logger"
)

// Input names exactly one source for a pipeline run. When both fields are
// set, AudioPath wins and Text is ignored; this precedence is deliberate
// since an uploaded recording is the stronger signal of caller intent.
type Input struct {
	AudioPath string
	Text      string
}

// RunResult is the complete outcome of one full pipeline run.
type RunResult struct {
	Transcription string        `json:"transcription"`
	Entities      []ner.Entity  `json:"entities"`
	Summary       string        `json:"summary"`
	Report        report.Result `json:"report"`
	ReportID      string        `json:"report_id"`
	ArtifactPath  string        `json:"artifact_path"`
}

// Orchestrator owns the stage adapters. Every adapter handle is built once
// and reused across runs; all are safe for concurrent use, so concurrent
// pipeline runs never serialize on each other.
type Orchestrator struct {
	transcriber transcribe.Transcriber
	extractor   *ner.Engine
	summarizer  summarize.Summarizer
	reporter    *report.Engine
	kb          *knowledge.Base

	threshold  float64
	reportsDir string

	// spawn dispatches background work; tests replace it to run inline.
	spawn func(fn func())
}

// New creates an orchestrator over the given stage adapters.
func New(
	transcriber transcribe.Transcriber,
	extractor *ner.Engine,
	summarizer summarize.Summarizer,
	reporter *report.Engine,
	kb *knowledge.Base,
	threshold float64,
	reportsDir string,
) *Orchestrator {
	if threshold <= 0 {
		threshold = ner.DefaultThreshold
	}
	if reportsDir == "" {
		reportsDir = "./temp"
	}
	return &Orchestrator{
		transcriber: transcriber,
		extractor:   extractor,
		summarizer:  summarizer,
		reporter:    reporter,
		kb:          kb,
		threshold:   threshold,
		reportsDir:  reportsDir,
		spawn:       func(fn func()) { go fn() },
	}
}

// Transcribe converts one audio file to text.
func (o *Orchestrator) Transcribe(ctx context.Context, audioPath string) (*transcribe.Result, error) {
	start := time.Now()
	result, err := o.transcriber.Transcribe(ctx, audioPath, nil)
	o.recordStage("transcribe", start, err)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, NewInputNotFoundError(fmt.Sprintf("audio file not found: %s", audioPath))
		}
		return nil, NewModelUnavailableError("transcription", err)
	}
	return result, nil
}

// ExtractEntities extracts medical entities at the configured threshold.
// Fallback exhaustion degrades to an empty set inside the engine, so this
// never fails a run.
func (o *Orchestrator) ExtractEntities(ctx context.Context, text string) []ner.Entity {
	start := time.Now()
	entities := o.extractor.ExtractMedicalEntities(ctx, text, o.threshold)
	o.recordStage("ner", start, nil)
	return entities
}

// Summarize produces the conversation summary.
func (o *Orchestrator) Summarize(ctx context.Context, text string) (string, error) {
	start := time.Now()
	summary, err := o.summarizer.SummarizeConversation(ctx, text)
	o.recordStage("summarize", start, err)
	if err != nil {
		return "", NewModelUnavailableError("summarization", err)
	}
	return summary, nil
}

// GenerateReport synthesizes report text and renders the PDF artifact. The
// artifact is rendered for degraded results too: the sentinel text is part of
// the user-facing contract. The returned id keys the download route.
func (o *Orchestrator) GenerateReport(ctx context.Context, entities []ner.Entity, summary string) (report.Result, string, string, error) {
	start := time.Now()
	res := o.reporter.GenerateReport(ctx, entities, summary)
	if res.OK() {
		o.recordStage("generate", start, nil)
	} else {
		metrics.RecordStageDuration("generate", time.Since(start).Seconds())
		metrics.RecordStageDegraded("generate")
		logger.LogStage(logger.L(), "generate", "degraded", time.Since(start).Milliseconds(), "")
	}

	reportID := uuid.NewString()
	artifactPath, err := o.render(res.Text, reportID)
	if err != nil {
		return res, "", "", err
	}
	return res, reportID, artifactPath, nil
}

// ExplainTerms generates plain-language explanations of medical terms.
func (o *Orchestrator) ExplainTerms(ctx context.Context, terms string) report.Result {
	return o.reporter.ExplainTerms(ctx, terms)
}

// QueryKnowledge queries the knowledge base.
func (o *Orchestrator) QueryKnowledge(ctx context.Context, query string, k int) ([]knowledge.ScoredChunk, error) {
	chunks, err := o.kb.Query(ctx, query, k)
	if err != nil {
		return nil, NewModelUnavailableError("knowledge query", err)
	}
	return chunks, nil
}

// NERChain exposes the configured extraction model chain, primary first.
func (o *Orchestrator) NERChain() []string {
	return o.extractor.Chain()
}

// TranscriberHealthy reports whether the transcription collaborator answers
// its health probe.
func (o *Orchestrator) TranscriberHealthy(ctx context.Context) bool {
	ok, err := o.transcriber.HealthCheck(ctx)
	return err == nil && ok
}

// ArtifactPath resolves the artifact location for a report id.
func (o *Orchestrator) ArtifactPath(reportID string) string {
	return filepath.Join(o.reportsDir, "report_"+reportID+".pdf")
}

// RunFull executes the whole pipeline on one input.
//
// Sequencing: transcription (when audio) first; entity extraction and
// summarization concurrently, joined before report synthesis; rendering
// last. Knowledge indexing is dispatched fire-and-forget off the raw
// transcript and neither its ordering nor its failure affects the run.
func (o *Orchestrator) RunFull(ctx context.Context, input Input) (*RunResult, error) {
	transcript, err := o.resolveTranscript(ctx, input)
	if err != nil {
		return nil, err
	}

	var entities []ner.Entity
	var summary string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		entities = o.ExtractEntities(gctx, transcript)
		return nil
	})
	g.Go(func() error {
		var serr error
		summary, serr = o.Summarize(gctx, transcript)
		return serr
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Index the transcript off the critical path. The background task uses
	// its own context: the run (and the HTTP request behind it) finishing
	// must not cancel indexing.
	o.spawn(func() {
		o.indexTranscript(context.Background(), transcript)
	})

	reportRes, reportID, artifactPath, err := o.GenerateReport(ctx, entities, summary)
	if err != nil {
		return nil, err
	}

	return &RunResult{
		Transcription: transcript,
		Entities:      entities,
		Summary:       summary,
		Report:        reportRes,
		ReportID:      reportID,
		ArtifactPath:  artifactPath,
	}, nil
}

// resolveTranscript picks the transcript source: audio when present, caller
// text otherwise.
func (o *Orchestrator) resolveTranscript(ctx context.Context, input Input) (string, error) {
	switch {
	case input.AudioPath != "":
		result, err := o.Transcribe(ctx, input.AudioPath)
		if err != nil {
			return "", err
		}
		return result.Text, nil
	case input.Text != "":
		return input.Text, nil
	default:
		return "", NewInputNotFoundError("either audio file or text must be provided")
	}
}

// render writes the PDF artifact for one report id.
func (o *Orchestrator) render(reportText, reportID string) (string, error) {
	start := time.Now()
	if err := os.MkdirAll(o.reportsDir, 0o755); err != nil {
		o.recordStage("render", start, err)
		return "", NewRenderError(err)
	}
	path := o.ArtifactPath(reportID)
	if err := report.RenderPDF(reportText, path); err != nil {
		o.recordStage("render", start, err)
		return "", NewRenderError(err)
	}
	o.recordStage("render", start, nil)
	return path, nil
}

// indexTranscript rebuilds the knowledge index. Failures are logged and
// counted only; nothing is surfaced to the caller.
func (o *Orchestrator) indexTranscript(ctx context.Context, transcript string) {
	start := time.Now()
	err := o.kb.CreateIndex(ctx, transcript)
	metrics.RecordStageDuration("index", time.Since(start).Seconds())
	metrics.RecordKBIndexBuild(err == nil)
	if err != nil {
		logger.LogStage(logger.L(), "index", "error", time.Since(start).Milliseconds(), string(MODEL_UNAVAILABLE))
		logger.L().Error("background knowledge indexing failed", "error", err.Error())
		return
	}
	logger.LogStage(logger.L(), "index", "success", time.Since(start).Milliseconds(), "")
}

func (o *Orchestrator) recordStage(stage string, start time.Time, err error) {
	duration := time.Since(start)
	metrics.RecordStageDuration(stage, duration.Seconds())
	metrics.RecordStage(stage, err == nil)

	action := "success"
	code := ""
	if err != nil {
		action = "error"
		code = string(stageErrorCode(stage, err))
	}
	logger.LogStage(logger.L(), stage, action, duration.Milliseconds(), code)
	if err != nil {
		logger.L().Error("pipeline stage failed", "stage", stage, "error", err.Error())
	}
}

// stageErrorCode classifies a raw stage error before the caller wraps it.
func stageErrorCode(stage string, err error) ErrorCode {
	var perr *PipeError
	switch {
	case errors.As(err, &perr):
		return perr.Code
	case errors.Is(err, os.ErrNotExist):
		return INPUT_NOT_FOUND
	case stage == "render":
		return RENDER_FAILED
	default:
		return MODEL_UNAVAILABLE
	}
}
