package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinscribe/clinscribe/cmd/server/internal/knowledge"
	"github.com/clinscribe/clinscribe/cmd/server/internal/ner"
	"github.com/clinscribe/clinscribe/cmd/server/internal/pipeline"
	"github.com/clinscribe/clinscribe/cmd/server/internal/report"
	"github.com/clinscribe/clinscribe/cmd/server/internal/summarize"
	"github.com/clinscribe/clinscribe/cmd/server/internal/transcribe"
	"github.com/clinscribe/clinscribe/pkg/logger"
)

type stubTranscriber struct{ text string }

func (s *stubTranscriber) Transcribe(ctx context.Context, audioPath string, options *transcribe.Options) (*transcribe.Result, error) {
	return &transcribe.Result{Text: s.text, Language: "en"}, nil
}
func (s *stubTranscriber) HealthCheck(ctx context.Context) (bool, error) { return true, nil }
func (s *stubTranscriber) Name() string                                 { return "stub" }

type stubExtractor struct{}

func (stubExtractor) Extract(ctx context.Context, text, model string) ([]ner.Span, error) {
	return []ner.Span{{Label: "DIAGNOSIS", Word: "migraine", Score: 0.9, Start: 0, End: 8}}, nil
}

type stubSummarizer struct{}

func (stubSummarizer) Summarize(ctx context.Context, text string, params summarize.Params) (string, error) {
	return "summary", nil
}
func (stubSummarizer) SummarizeConversation(ctx context.Context, text string) (string, error) {
	return "summary", nil
}

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return "### **Patient Clinical Report**\nFindings here.", nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1, 0, 0}
	}
	return out, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *pipeline.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if _, err := logger.Init(logger.Config{Level: "debug", Environment: "test"}); err != nil {
		t.Fatalf("logger init failed: %v", err)
	}

	dir := t.TempDir()
	kb := knowledge.NewBase(stubEmbedder{}, filepath.Join(dir, "faiss_index"), 200, 50)
	extractor := ner.NewEngineWithExtractor(stubExtractor{}, "primary", nil)
	reporter := report.NewEngine(stubGenerator{}, 1, time.Millisecond)

	orc := pipeline.New(&stubTranscriber{text: "patient has migraine"}, extractor, stubSummarizer{}, reporter, kb, 0.7, filepath.Join(dir, "reports"))

	r := gin.New()
	RegisterRoutes(r, orc)
	return r, orc
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	return payload
}

func TestHandleRoot(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	payload := decodeBody(t, w)
	assert.Contains(t, payload["message"], "Medical Transcription")
}

func TestHandleExtractEntities(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodPost, "/extract_entities", gin.H{"text": "patient has migraine"})
	require.Equal(t, http.StatusOK, w.Code)

	payload := decodeBody(t, w)
	entities, ok := payload["entities"].([]interface{})
	require.True(t, ok)
	require.Len(t, entities, 1)
	first := entities[0].(map[string]interface{})
	assert.Equal(t, "migraine", first["term"])
	assert.Equal(t, "DIAGNOSIS", first["type"])
}

func TestHandleExtractEntitiesMissingText(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodPost, "/extract_entities", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSummarize(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodPost, "/summarize", gin.H{"text": "long conversation"})
	require.Equal(t, http.StatusOK, w.Code)
	payload := decodeBody(t, w)
	assert.Equal(t, "summary", payload["summary"])
}

func TestHandleGenerateReportAndDownload(t *testing.T) {
	r, orc := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/generate_report", gin.H{
		"entities": []gin.H{{"term": "migraine", "type": "DIAGNOSIS", "confidence": 0.9}},
		"summary":  "patient has migraine",
	})
	require.Equal(t, http.StatusOK, w.Code)

	payload := decodeBody(t, w)
	assert.Contains(t, payload["report"], "Patient Clinical Report")
	assert.Equal(t, string(report.StatusOK), payload["report_status"])

	url, ok := payload["report_url"].(string)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(url, "/download_report/"))

	reportID := strings.TrimPrefix(url, "/download_report/")
	_, err := os.Stat(orc.ArtifactPath(reportID))
	require.NoError(t, err)

	dw := httptest.NewRecorder()
	r.ServeHTTP(dw, httptest.NewRequest(http.MethodGet, url, nil))
	require.Equal(t, http.StatusOK, dw.Code)
	assert.True(t, bytes.HasPrefix(dw.Body.Bytes(), []byte("%PDF-")))
}

func TestHandleTranscribe(t *testing.T) {
	r, _ := newTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "visit.wav")
	require.NoError(t, err)
	_, err = fw.Write([]byte("fake audio bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/transcribe", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	payload := decodeBody(t, w)
	assert.Equal(t, "patient has migraine", payload["transcription"])
	_, ok := payload["duration_seconds"].(float64)
	assert.True(t, ok)
}

func TestHandleTranscribeNoFile(t *testing.T) {
	r, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/transcribe", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleDownloadReportMissing(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/download_report/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleProcessWithText(t *testing.T) {
	r, _ := newTestRouter(t)

	form := "text=patient+reports+migraine"
	req := httptest.NewRequest(http.MethodPost, "/process", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	payload := decodeBody(t, w)
	assert.Equal(t, "patient reports migraine", payload["transcription"])
	assert.Equal(t, "summary", payload["summary"])
	assert.Contains(t, payload["report"], "Patient Clinical Report")
	assert.Contains(t, payload["report_url"], "/download_report/")
}

func TestHandleProcessWithAudio(t *testing.T) {
	r, _ := newTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "visit.wav")
	require.NoError(t, err)
	_, err = fw.Write([]byte("fake audio bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/process", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	payload := decodeBody(t, w)
	assert.Equal(t, "patient has migraine", payload["transcription"])
}

func TestHandleProcessNoInput(t *testing.T) {
	r, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/process", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleQueryKnowledgeBaseEmptyIndex(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodPost, "/query_knowledge_base", gin.H{"query": "dosage", "k": 2})
	require.Equal(t, http.StatusOK, w.Code)
	payload := decodeBody(t, w)
	assert.Equal(t, knowledge.NoResultsSentinel, payload["results"])
}

func TestHandleExplainTerms(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodPost, "/explain_medical_terms", gin.H{"terms": "hypertension"})
	require.Equal(t, http.StatusOK, w.Code)
	payload := decodeBody(t, w)
	assert.NotEmpty(t, payload["explanations"])
	assert.Equal(t, string(report.StatusOK), payload["status"])
}

func TestHandleHealthz(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	payload := decodeBody(t, w)
	assert.Equal(t, "ok", payload["status"])

	chain, ok := payload["ner_chain"].([]interface{})
	require.True(t, ok)
	require.Len(t, chain, 1)
	assert.Equal(t, "primary", chain[0])
}
