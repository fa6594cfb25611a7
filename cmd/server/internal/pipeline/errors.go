package pipeline

import (
	"fmt"
	"time"
)

// ErrorCode classifies pipeline failures for the boundary layer.
type ErrorCode string

const (
	// INPUT_NOT_FOUND means a referenced input was missing or absent.
	INPUT_NOT_FOUND ErrorCode = "INPUT_NOT_FOUND"

	// MODEL_UNAVAILABLE means an external model failed to initialize or run.
	MODEL_UNAVAILABLE ErrorCode = "MODEL_UNAVAILABLE"

	// CONFIG_MISSING means a required credential or setting was absent.
	CONFIG_MISSING ErrorCode = "CONFIG_MISSING"

	// RENDER_FAILED means the document artifact could not be written.
	RENDER_FAILED ErrorCode = "RENDER_FAILED"
)

// PipeError is the aggregated error surfaced when a pipeline run aborts.
type PipeError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *PipeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *PipeError) Unwrap() error {
	return e.Cause
}

// NewPipeError creates a coded pipeline error.
func NewPipeError(code ErrorCode, message string, cause error) *PipeError {
	return &PipeError{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// NewInputNotFoundError marks a missing or absent input.
func NewInputNotFoundError(message string) *PipeError {
	return NewPipeError(INPUT_NOT_FOUND, message, nil)
}

// NewModelUnavailableError marks a failed external model call.
func NewModelUnavailableError(stage string, cause error) *PipeError {
	return NewPipeError(MODEL_UNAVAILABLE, stage+" model call failed", cause)
}

// NewRenderError marks a failed artifact render.
func NewRenderError(cause error) *PipeError {
	return NewPipeError(RENDER_FAILED, "failed to render report artifact", cause)
}
