package transcribe

import (
	"context"
	"log/slog"
)

// Mock is the degraded-mode Transcriber. It returns an empty result without
// blocking, so the rest of the service keeps working when no whisper backend
// is reachable.
type Mock struct{}

// NewMock creates a Mock transcriber.
func NewMock() *Mock {
	return &Mock{}
}

// Transcribe returns an empty result and never errors, so downstream stages
// see "no speech" rather than a hard failure.
func (m *Mock) Transcribe(ctx context.Context, audioPath string, options *Options) (*Result, error) {
	slog.Warn("mock transcriber invoked, whisper backend unavailable", "audio", audioPath)
	return &Result{
		Segments: []Segment{},
		Text:     "",
		Language: "unknown",
		Duration: 0,
	}, nil
}

// HealthCheck always reports unhealthy: the mock existing at all means the
// real backend is gone.
func (m *Mock) HealthCheck(ctx context.Context) (bool, error) {
	return false, nil
}

// Name identifies this implementation.
func (m *Mock) Name() string {
	return "mock-degraded"
}
