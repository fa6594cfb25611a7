// Package transcribe provides the abstraction layer over external
// speech-to-text services. It defines the standard interface and data
// structures so that multiple backends (whisper HTTP service, mock fallback)
// can be swapped without touching the pipeline.
package transcribe

import (
	"context"
	"time"
)

// Segment is one continuous speech interval in the audio.
type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is the complete outcome of one transcription call.
type Result struct {
	Segments []Segment `json:"segments"`
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
}

// Options are optional per-call transcription parameters. All fields are
// optional; implementations provide defaults.
type Options struct {
	// Model selects the whisper model (e.g. "base", "small"). Default "base".
	Model string

	// Language forces a transcription language (ISO 639-1). Empty means
	// auto-detection.
	Language string

	// MaxDuration bounds how much audio the backend decodes. Zero means the
	// configured default (42 minutes, matching the service cutoff).
	MaxDuration time.Duration

	// Timeout overrides the HTTP client timeout for this call.
	Timeout time.Duration
}

// Transcriber is the standard interface for audio transcription backends.
//
// Implementations must respect context cancellation, wrap external errors
// with context, and return a valid empty Result rather than an error when
// the audio contains no speech.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, options *Options) (*Result, error)

	// HealthCheck reports whether the backend is ready to transcribe.
	HealthCheck(ctx context.Context) (bool, error)

	// Name identifies the implementation in logs and monitoring.
	Name() string
}
