// Package api exposes the processing pipeline over HTTP. Handlers are thin:
// they parse the request, delegate to the orchestrator and shape the
// response; all stage semantics live below.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clinscribe/clinscribe/cmd/server/internal/knowledge"
	"github.com/clinscribe/clinscribe/cmd/server/internal/ner"
	"github.com/clinscribe/clinscribe/cmd/server/internal/pipeline"
)

// HandleRoot returns the welcome payload.
// GET /
func HandleRoot() gin.HandlerFunc {
	return func(c *gin.Context) {
		successResponse(c, gin.H{
			"message": "Welcome to the Medical Transcription Analysis Application",
		})
	}
}

// HandleTranscribe transcribes one uploaded audio file.
// POST /transcribe
func HandleTranscribe(orc *pipeline.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tempPath, cleanup, err := saveUpload(c, "file")
		if err != nil {
			badRequestResponse(c, fmt.Sprintf("failed to read uploaded file: %v", err))
			return
		}
		defer cleanup()

		start := time.Now()
		result, err := orc.Transcribe(c.Request.Context(), tempPath)
		if err != nil {
			errorResponse(c, pipeErrorStatus(err), fmt.Sprintf("Transcription error: %v", err))
			return
		}

		successResponse(c, gin.H{
			"transcription":    result.Text,
			"duration_seconds": time.Since(start).Seconds(),
		})
	}
}

// HandleExtractEntities extracts medical entities from text.
// POST /extract_entities
func HandleExtractEntities(orc *pipeline.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Text string `json:"text" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequestResponse(c, err.Error())
			return
		}

		entities := orc.ExtractEntities(c.Request.Context(), req.Text)
		successResponse(c, gin.H{"entities": entities})
	}
}

// HandleSummarize summarizes medical text.
// POST /summarize
func HandleSummarize(orc *pipeline.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Text string `json:"text" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequestResponse(c, err.Error())
			return
		}

		summary, err := orc.Summarize(c.Request.Context(), req.Text)
		if err != nil {
			errorResponse(c, pipeErrorStatus(err), fmt.Sprintf("Summarization error: %v", err))
			return
		}
		successResponse(c, gin.H{"summary": summary})
	}
}

// HandleGenerateReport synthesizes a report from entities and a summary,
// rendering the PDF artifact alongside. Degraded generation is still a 200:
// the response carries the sentinel text plus a status the caller can branch
// on.
// POST /generate_report
func HandleGenerateReport(orc *pipeline.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Entities []ner.Entity `json:"entities"`
			Summary  string       `json:"summary" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequestResponse(c, err.Error())
			return
		}

		res, reportID, _, err := orc.GenerateReport(c.Request.Context(), req.Entities, req.Summary)
		if err != nil {
			errorResponse(c, pipeErrorStatus(err), fmt.Sprintf("Report generation error: %v", err))
			return
		}

		successResponse(c, gin.H{
			"report":        res.Text,
			"report_status": res.Status,
			"report_url":    "/download_report/" + reportID,
		})
	}
}

// HandleDownloadReport serves a rendered report PDF.
// GET /download_report/:report_id
func HandleDownloadReport(orc *pipeline.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		reportID := c.Param("report_id")
		path := orc.ArtifactPath(reportID)
		if _, err := os.Stat(path); err != nil {
			notFoundResponse(c, "report")
			return
		}
		c.FileAttachment(path, "clinical_report.pdf")
	}
}

// HandleProcess runs the full pipeline on uploaded audio or form text.
// POST /process
func HandleProcess(orc *pipeline.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input pipeline.Input

		if _, err := c.FormFile("file"); err == nil {
			tempPath, cleanup, err := saveUpload(c, "file")
			if err != nil {
				badRequestResponse(c, fmt.Sprintf("failed to read uploaded file: %v", err))
				return
			}
			defer cleanup()
			input.AudioPath = tempPath
		} else if text := c.PostForm("text"); text != "" {
			input.Text = text
		} else {
			badRequestResponse(c, "Either audio file or text must be provided")
			return
		}

		result, err := orc.RunFull(c.Request.Context(), input)
		if err != nil {
			errorResponse(c, pipeErrorStatus(err), fmt.Sprintf("Processing error: %v", err))
			return
		}

		successResponse(c, gin.H{
			"transcription": result.Transcription,
			"entities":      result.Entities,
			"summary":       result.Summary,
			"report":        result.Report.Text,
			"report_status": result.Report.Status,
			"report_url":    "/download_report/" + result.ReportID,
		})
	}
}

// HandleQueryKnowledgeBase answers a question from the indexed transcript.
// POST /query_knowledge_base
func HandleQueryKnowledgeBase(orc *pipeline.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Query string `json:"query" binding:"required"`
			K     int    `json:"k"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequestResponse(c, err.Error())
			return
		}

		chunks, err := orc.QueryKnowledge(c.Request.Context(), req.Query, req.K)
		if err != nil {
			errorResponse(c, pipeErrorStatus(err), fmt.Sprintf("Knowledge base query error: %v", err))
			return
		}
		successResponse(c, gin.H{"results": knowledge.FormatResults(chunks)})
	}
}

// HandleExplainTerms explains medical terms in plain language.
// POST /explain_medical_terms
func HandleExplainTerms(orc *pipeline.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Terms string `json:"terms" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequestResponse(c, err.Error())
			return
		}

		res := orc.ExplainTerms(c.Request.Context(), req.Terms)
		successResponse(c, gin.H{
			"explanations": res.Text,
			"status":       res.Status,
		})
	}
}

// HandleHealthz reports liveness plus collaborator reachability.
// GET /healthz
func HandleHealthz(orc *pipeline.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		transcriberOK := orc.TranscriberHealthy(c.Request.Context())
		overall := "ok"
		if !transcriberOK {
			overall = "degraded"
		}
		c.JSON(http.StatusOK, gin.H{
			"status": overall,
			"checks": gin.H{
				"transcriber": transcriberOK,
			},
			"ner_chain": orc.NERChain(),
			"timestamp": time.Now().UTC(),
		})
	}
}

// saveUpload writes the named multipart file to a temp path. The returned
// cleanup removes the file and must run after the handler finishes with it.
func saveUpload(c *gin.Context, field string) (string, func(), error) {
	file, err := c.FormFile(field)
	if err != nil {
		return "", nil, err
	}

	tmp, err := os.CreateTemp("", "upload-*.wav")
	if err != nil {
		return "", nil, err
	}
	tempPath := tmp.Name()
	tmp.Close()

	if err := c.SaveUploadedFile(file, tempPath); err != nil {
		os.Remove(tempPath)
		return "", nil, err
	}
	return tempPath, func() { os.Remove(tempPath) }, nil
}

// pipeErrorStatus maps pipeline failures to HTTP status codes: missing
// inputs are 404, everything else aborting is 500.
func pipeErrorStatus(err error) int {
	var perr *pipeline.PipeError
	if errors.As(err, &perr) && perr.Code == pipeline.INPUT_NOT_FOUND {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
