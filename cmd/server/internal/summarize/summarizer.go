// Package summarize wraps the external sequence-to-sequence summarization
// model behind a small adapter with task-specific prompting.
package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxInputChars bounds the text sent to the model so the tokenizer on the
// other side never overflows.
const maxInputChars = 50000

// conversationPrefix steers the model toward clinically relevant content.
const conversationPrefix = "Summarize the following medical conversation, focusing on symptoms, diagnoses, and treatments: "

// Params are the generation parameters for one summarization call.
type Params struct {
	MaxLength     int     `json:"max_length"`
	MinLength     int     `json:"min_length"`
	LengthPenalty float64 `json:"length_penalty"`
	NumBeams      int     `json:"num_beams"`
}

// DefaultParams returns the generic summarization parameters.
func DefaultParams() Params {
	return Params{MaxLength: 1024, MinLength: 50, LengthPenalty: 2.0, NumBeams: 4}
}

// ConversationParams returns the tighter parameters used for doctor-patient
// conversations: shorter summaries, lower length penalty.
func ConversationParams() Params {
	return Params{MaxLength: 200, MinLength: 30, LengthPenalty: 1.5, NumBeams: 4}
}

// Summarizer produces a bounded-length summary of text.
type Summarizer interface {
	Summarize(ctx context.Context, text string, params Params) (string, error)
	SummarizeConversation(ctx context.Context, text string) (string, error)
}

// Client is the HTTP Summarizer against the NLP sidecar service.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient creates a summarization client.
func NewClient(baseURL, model string) *Client {
	return &Client{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

type summarizeRequest struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
	Params
}

type summarizeResponse struct {
	Summary string `json:"summary"`
}

// Summarize sends text with explicit generation parameters.
func (c *Client) Summarize(ctx context.Context, text string, params Params) (string, error) {
	text = truncateRunes(text, maxInputChars)

	payload, err := json.Marshal(summarizeRequest{Text: text, Model: c.model, Params: params})
	if err != nil {
		return "", fmt.Errorf("failed to marshal summarize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/summarize", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create summarize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("summarize request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("summarize service returned status %d: %s", resp.StatusCode, string(body))
	}

	var out summarizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to parse summarize response: %w", err)
	}
	return out.Summary, nil
}

// SummarizeConversation summarizes a doctor-patient conversation with the
// medical-focus prefix and conversation parameters.
func (c *Client) SummarizeConversation(ctx context.Context, text string) (string, error) {
	return c.Summarize(ctx, conversationPrefix+text, ConversationParams())
}

// truncateRunes cuts text to at most max characters, never splitting a
// multi-byte character.
func truncateRunes(text string, max int) string {
	if len(text) <= max {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
