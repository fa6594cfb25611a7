// Package report builds clinical reports from extracted entities and
// conversation summaries via an external generative model, and renders the
// resulting free text into PDF artifacts.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/clinscribe/clinscribe/cmd/server/internal/metrics"
	"github.com/clinscribe/clinscribe/cmd/server/internal/ner"
)

// Status tags a generation outcome so callers cannot mistake a degraded
// sentinel for model output without checking.
type Status string

const (
	// StatusOK marks genuine model output.
	StatusOK Status = "ok"

	// StatusDegraded marks a sentinel substituted after all retries failed.
	StatusDegraded Status = "degraded"

	// StatusNotConfigured marks the short-circuit taken when no API key was
	// configured; no network call or sleep happens in this state.
	StatusNotConfigured Status = "not_configured"
)

// Result is one generation outcome. Text always holds user-facing content:
// either model output or the sentinel matching Status.
type Result struct {
	Status Status `json:"status"`
	Text   string `json:"text"`
}

// OK reports whether the result carries genuine model output.
func (r Result) OK() bool { return r.Status == StatusOK }

// Sentinel strings carried on degraded results. These are part of the wire
// contract: existing clients inspect content, not only the status field.
const (
	DegradedSentinel      = "Service is temporarily unavailable. Please try again later."
	NotConfiguredSentinel = "Error: Gemini model not initialized. Check API key."
)

// Generator is the external generative-model collaborator.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Engine builds prompts and calls the generator with bounded retry.
type Engine struct {
	gen        Generator
	configured bool
	retries    int
	delay      time.Duration

	// sleep is swapped in tests to count retry delays without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates a report engine. A nil generator leaves the engine
// unconfigured: every call short-circuits to StatusNotConfigured.
func NewEngine(gen Generator, retries int, delay time.Duration) *Engine {
	if retries < 1 {
		retries = 3
	}
	if delay <= 0 {
		delay = 5 * time.Second
	}
	return &Engine{
		gen:        gen,
		configured: gen != nil,
		retries:    retries,
		delay:      delay,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Configured reports whether a generator was supplied at construction.
func (e *Engine) Configured() bool { return e.configured }

// GenerateReport produces a structured clinical report from entities and the
// conversation summary. Failures degrade to a sentinel rather than erroring,
// so the pipeline still returns transcription, entities and summary.
func (e *Engine) GenerateReport(ctx context.Context, entities []ner.Entity, summary string) Result {
	prompt := buildReportPrompt(ner.FormatInline(entities), summary)
	return e.generate(ctx, prompt)
}

// ExplainTerms produces plain-language explanations of medical terms.
func (e *Engine) ExplainTerms(ctx context.Context, text string) Result {
	return e.generate(ctx, buildExplainPrompt(text))
}

// generate runs the bounded retry loop: retries attempts with a fixed delay
// between them. A call that succeeds on attempt n sleeps exactly n-1 times.
func (e *Engine) generate(ctx context.Context, prompt string) Result {
	if !e.configured {
		slog.Error("generative model not configured, short-circuiting")
		return Result{Status: StatusNotConfigured, Text: NotConfiguredSentinel}
	}

	var lastErr error
	for attempt := 1; attempt <= e.retries; attempt++ {
		text, err := e.gen.Generate(ctx, prompt)
		if err == nil {
			return Result{Status: StatusOK, Text: text}
		}
		lastErr = err

		if attempt < e.retries {
			slog.Error("generation failed, retrying",
				"attempt", attempt, "max", e.retries, "delay", e.delay, "error", err.Error())
			metrics.GenerationRetriesTotal.Inc()
			if serr := e.sleep(ctx, e.delay); serr != nil {
				break
			}
		}
	}

	slog.Error("generation attempts exhausted, returning degraded sentinel",
		"attempts", e.retries, "error", fmt.Sprintf("%v", lastErr))
	metrics.GenerationDegradedTotal.Inc()
	return Result{Status: StatusDegraded, Text: DegradedSentinel}
}

func buildReportPrompt(entitiesText, summary string) string {
	var b strings.Builder
	b.WriteString("You are an expert medical assistant tasked with generating a detailed and structured clinical report. ")
	b.WriteString("Based on the extracted medical entities and summarized findings from a doctor-patient conversation, provide a well-formatted report. Follow this structure:\n\n")
	b.WriteString("### **Patient Clinical Report**\n")
	b.WriteString("**Patient Information:**\n")
	b.WriteString("- Name: [If available]\n- Age: [If available]\n- Gender: [If available]\n- Date of Visit: [Today's Date]\n- Physician: [If available]\n\n")
	b.WriteString("### **Chief Complaint & History:**\n")
	b.WriteString("- **Primary Symptoms:** " + entitiesText + "\n")
	b.WriteString("- **Medical History:** [Include relevant history if mentioned]\n- **Medications:** [Any current medications]\n- **Allergies:** [List allergies if specified]\n\n")
	b.WriteString("### **Examination Findings & Observations:**\n")
	b.WriteString("- **Vital Signs:** [If available, include BP, HR, Temperature, etc.]\n- **Physical Examination Findings:** [Summarized key observations]\n- **Lab & Imaging Results:** [If applicable, summarize any relevant findings]\n\n")
	b.WriteString("### **Assessment & Diagnosis:**\n")
	b.WriteString("- **Provisional Diagnosis:** [Provide likely diagnosis based on the data]\n- **Differential Diagnosis:** [Mention other possible conditions]\n")
	b.WriteString("- **Clinical Justification:** " + summary + "\n\n")
	b.WriteString("### **Treatment Plan & Recommendations:**\n")
	b.WriteString("- **Medications Prescribed:** [List medicines with dosage]\n- **Diagnostic Tests Advised:** [Any further tests recommended]\n- **Lifestyle & Dietary Recommendations:** [If applicable]\n- **Follow-up Instructions:** [Next steps and monitoring plan]\n\n")
	b.WriteString("### **Additional Notes & Explanations:**\n")
	b.WriteString("- Provide **simple explanations** for complex medical terms in the report.\n")
	return b.String()
}

func buildExplainPrompt(text string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Explain the following medical terms in a simple and easy-to-understand way: %q.\n\n", text))
	b.WriteString("**Requirements:**\n")
	b.WriteString("- Provide a concise yet informative definition.\n")
	b.WriteString("- Explain in layman's terms (avoid medical jargon).\n")
	b.WriteString("- If applicable, include causes, symptoms, and common treatments.\n")
	b.WriteString("- If multiple terms exist, list explanations separately.\n")
	b.WriteString("- Keep it structured and formatted properly.\n\n")
	b.WriteString("Example:\n**Term:** Hypertension\n")
	b.WriteString("**Explanation:** Hypertension (high blood pressure) occurs when the force of blood against artery walls is too high. It can be caused by stress, poor diet, or genetics. It increases the risk of heart disease and stroke. Treatments include lifestyle changes and medication.\n")
	return b.String()
}
