package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultMaxDuration bounds how much audio is decoded per request when the
// caller does not override it (42 minutes).
const DefaultMaxDuration = 2520 * time.Second

// WhisperHTTP implements Transcriber against a whisper HTTP service.
// Requests are multipart/form-data uploads; responses are JSON.
type WhisperHTTP struct {
	apiURL      string
	model       string
	maxDuration time.Duration
	httpClient  *http.Client
}

// NewWhisperHTTP creates a whisper HTTP client. The client timeout is
// generous because transcription time roughly tracks audio duration.
func NewWhisperHTTP(apiURL, model string, maxDuration time.Duration) *WhisperHTTP {
	if model == "" {
		model = "base"
	}
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDuration
	}
	return &WhisperHTTP{
		apiURL:      apiURL,
		model:       model,
		maxDuration: maxDuration,
		httpClient:  &http.Client{Timeout: 10 * time.Minute},
	}
}

// Transcribe uploads the audio file and returns the parsed transcription.
// The audio path is verified locally first so a missing file never produces
// a network round trip.
func (w *WhisperHTTP) Transcribe(ctx context.Context, audioPath string, options *Options) (*Result, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return nil, fmt.Errorf("audio file not found: %s: %w", audioPath, err)
	}

	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to copy file data: %w", err)
	}

	model := w.model
	if options != nil && options.Model != "" {
		model = options.Model
	}
	if err := writer.WriteField("model", model); err != nil {
		return nil, fmt.Errorf("failed to write model field: %w", err)
	}
	if err := writer.WriteField("response_format", "json"); err != nil {
		return nil, fmt.Errorf("failed to write response_format field: %w", err)
	}

	maxDur := w.maxDuration
	if options != nil && options.MaxDuration > 0 {
		maxDur = options.MaxDuration
	}
	if err := writer.WriteField("duration", strconv.Itoa(int(maxDur.Seconds()))); err != nil {
		return nil, fmt.Errorf("failed to write duration field: %w", err)
	}

	if options != nil && options.Language != "" {
		if err := writer.WriteField("language", options.Language); err != nil {
			return nil, fmt.Errorf("failed to write language field: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/whisper/transcribe", w.apiURL)
	slog.Info("sending transcription request", "endpoint", endpoint, "audio", audioPath, "model", model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	client := w.httpClient
	if options != nil && options.Timeout > 0 {
		client = &http.Client{Timeout: options.Timeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("whisper API returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse whisper response: %w", err)
	}

	return &result, nil
}

// HealthCheck probes the service health endpoint.
func (w *WhisperHTTP) HealthCheck(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.apiURL+"/health", nil)
	if err != nil {
		return false, err
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// Name identifies this implementation.
func (w *WhisperHTTP) Name() string {
	return "whisper-http"
}
