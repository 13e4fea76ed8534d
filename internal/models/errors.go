package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies terminal job failures for clients.
type ErrorKind string

const (
	ErrKindInvalidRequest    ErrorKind = "invalid_request"
	ErrKindUnavailableSource ErrorKind = "unavailable_source"
	ErrKindEmptyTranscript   ErrorKind = "empty_transcript"
	ErrKindReviewMismatch    ErrorKind = "review_mismatch"
	ErrKindStageFailure      ErrorKind = "stage_failure"
	ErrKindTimeout           ErrorKind = "timeout"
	ErrKindNotFound          ErrorKind = "not_found"
)

// ErrNotFound is returned for lookups of unknown or already evicted job ids.
var ErrNotFound = errors.New("job not found")

// ErrEmptyTranscript marks a transcription that produced zero usable segments.
// Always fatal to the job.
var ErrEmptyTranscript = errors.New("transcription produced no segments")

// JobError is the terminal error surfaced on a failed job. Message is an
// actionable, specific string, never a stack trace.
type JobError struct {
	Kind    ErrorKind `json:"kind"`
	Stage   Stage     `json:"stage,omitempty"`
	Message string    `json:"message"`
}

func (e *JobError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// InvalidRequestError rejects a malformed generation or review request.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return "invalid request: " + e.Reason
}

// ReviewMismatchError reports a resume payload that does not line up with the
// keyword list the job exposes. The job stays in awaiting_review.
type ReviewMismatchError struct {
	Want int
	Got  int
}

func (e *ReviewMismatchError) Error() string {
	return fmt.Sprintf("review payload has %d keywords but the job exposes %d; lengths must match", e.Got, e.Want)
}

// StageError wraps a collaborator failure with the stage it happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
