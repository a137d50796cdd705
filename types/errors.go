package types

import (
	"errors"
	"fmt"
)

// Error codes for the failure classes the pipeline distinguishes.
const (
	CodeSubmission    = "submission_failed"
	CodeStream        = "stream_failed"
	CodeProgressFetch = "progress_fetch_failed"
	CodeRender        = "render_failed"
	CodeStalled       = "generation_stalled"
)

// PipelineError carries a stable code alongside the human-readable message so
// callers can branch on the failure class without string matching.
type PipelineError struct {
	Code    string
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewSubmissionError reports that a query could not be started.
func NewSubmissionError(message string, err error) *PipelineError {
	return &PipelineError{Code: CodeSubmission, Message: message, Err: err}
}

// NewStreamError reports that the generation event stream dropped or errored.
// Streams are not reconnected; the error is surfaced to the caller.
func NewStreamError(message string, err error) *PipelineError {
	return &PipelineError{Code: CodeStream, Message: message, Err: err}
}

// NewProgressFetchError reports a failed one-shot progress poll.
func NewProgressFetchError(message string, err error) *PipelineError {
	return &PipelineError{Code: CodeProgressFetch, Message: message, Err: err}
}

// NewRenderError reports a malformed rendering payload (e.g. a diagram
// response without a usable diagram). Render errors never abort the pipeline.
func NewRenderError(message string, err error) *PipelineError {
	return &PipelineError{Code: CodeRender, Message: message, Err: err}
}

// NewStalledError reports that no observable generation progress happened
// within the configured stall window.
func NewStalledError(message string) *PipelineError {
	return &PipelineError{Code: CodeStalled, Message: message}
}

// HasCode reports whether err is (or wraps) a PipelineError with the given code.
func HasCode(err error, code string) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}
