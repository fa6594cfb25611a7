package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Span is the normalized form of one raw model span. Different extraction
// models expose different output shapes (some use "entity", grouped pipelines
// use "entity_group"; scores may arrive as JSON numbers or as stringified
// tensor scalars). Normalization happens here, at the collaborator boundary,
// so nothing downstream ever branches on source-model shape.
type Span struct {
	Label string
	Word  string
	Score float64
	Start int
	End   int
}

// Extractor runs one raw extraction call against a named model.
type Extractor interface {
	Extract(ctx context.Context, text, model string) ([]Span, error)
}

// rawSpan mirrors the wire shape of a single model span before normalization.
type rawSpan struct {
	Entity      string    `json:"entity"`
	EntityGroup string    `json:"entity_group"`
	Word        string    `json:"word"`
	Score       flexFloat `json:"score"`
	Confidence  flexFloat `json:"confidence"`
	Start       int       `json:"start"`
	End         int       `json:"end"`
}

// flexFloat decodes a confidence value that may be a JSON number or a string
// (numpy/tensor scalars serialize as strings in some model servers).
type flexFloat struct {
	value float64
	set   bool
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	var num json.Number
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&num); err != nil {
		// Retry as a quoted string.
		var s string
		if err2 := json.Unmarshal(data, &s); err2 != nil {
			return err
		}
		num = json.Number(s)
	}
	v, err := num.Float64()
	if err != nil {
		return err
	}
	f.value = v
	f.set = true
	return nil
}

func (r rawSpan) normalize() Span {
	label := r.EntityGroup
	if label == "" {
		label = r.Entity
	}
	score := r.Score.value
	if !r.Score.set {
		score = r.Confidence.value
	}
	return Span{
		Label: label,
		Word:  r.Word,
		Score: score,
		Start: r.Start,
		End:   r.End,
	}
}

// Client calls the NER endpoint of the NLP sidecar service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an NER client for the NLP service at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

type nerRequest struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

// Extract requests raw entity spans from the named model and normalizes them.
func (c *Client) Extract(ctx context.Context, text, model string) ([]Span, error) {
	payload, err := json.Marshal(nerRequest{Text: text, Model: model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal NER request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ner", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create NER request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("NER request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("NER service returned status %d: %s", resp.StatusCode, string(body))
	}

	var raw []rawSpan
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse NER response: %w", err)
	}

	spans := make([]Span, 0, len(raw))
	for _, r := range raw {
		spans = append(spans, r.normalize())
	}
	return spans, nil
}
