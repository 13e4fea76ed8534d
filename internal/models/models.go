package models

import (
	"time"

	"github.com/google/uuid"
)

// Enums

type JobMode string

const (
	ModeDirectSource      JobMode = "direct_source"
	ModeSynthesizedScript JobMode = "synthesized_script"
)

type JobStatus string

const (
	JobStatusCreated        JobStatus = "created"
	JobStatusRunning        JobStatus = "running"
	JobStatusAwaitingReview JobStatus = "awaiting_review"
	JobStatusReviewComplete JobStatus = "reviewing_complete"
	JobStatusCompleted      JobStatus = "completed"
	JobStatusError          JobStatus = "error"
)

// Terminal reports whether a job in this status will never transition again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// ValidTransition reports whether moving between two statuses is legal.
// The lifecycle is one-directional: created → running → {completed | error},
// with the optional review detour running → awaiting_review →
// reviewing_complete → running. Any non-terminal status may move to error
// (stage failures, the wall-clock watchdog). There is no retry-from-error.
func ValidTransition(from, to JobStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == JobStatusError {
		return true
	}
	switch from {
	case JobStatusCreated:
		return to == JobStatusRunning
	case JobStatusRunning:
		return to == JobStatusAwaitingReview || to == JobStatusCompleted
	case JobStatusAwaitingReview:
		return to == JobStatusReviewComplete
	case JobStatusReviewComplete:
		return to == JobStatusRunning
	}
	return false
}

// Stage identifies one pipeline stage. Stages run in a fixed order; each maps
// to a fixed progress percentage owned by the orchestrator.
type Stage string

const (
	StageFetchAudio      Stage = "fetch_audio"
	StageTranscribe      Stage = "transcribe"
	StageExtractKeywords Stage = "extract_keywords"
	StageMatchAssets     Stage = "match_assets"
	StageExpandSegments  Stage = "expand_segments"
	StageRenderFrames    Stage = "render_frames"
	StageComposeVideo    Stage = "compose_video"
)

// Models

// TimeRange is a span in seconds, relative to the trimmed source clip.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (r TimeRange) Duration() float64 {
	return r.End - r.Start
}

// Valid reports whether the range is non-negative and strictly ordered.
func (r TimeRange) Valid() bool {
	return r.Start >= 0 && r.Start < r.End
}

// LyricSegment is one transcribed line with its time range. Immutable once
// produced by the transcription service.
type LyricSegment struct {
	TimeRange
	Text string `json:"text"`
}

// KeywordAssignment pairs a lyric segment with its extracted search keyword.
// One assignment per segment, order preserved.
type KeywordAssignment struct {
	Segment LyricSegment `json:"segment"`
	Keyword string       `json:"keyword"`
}

// MatchedAsset is a keyword assignment resolved to a concrete image URL.
// Within one job no two matched assets share a URL unless the unique-asset
// pool for the keyword ran dry.
type MatchedAsset struct {
	KeywordAssignment
	AssetURL string `json:"asset_url"`
}

// VisualSlot is the unit the renderer consumes. Produced only by the segment
// expander; duration never exceeds the max slot duration.
type VisualSlot struct {
	Start         float64 `json:"start"`
	End           float64 `json:"end"`
	AssetURL      string  `json:"asset_url"`
	SegmentIndex  int     `json:"segment_index"` // 1-based within the expanded group
	TotalSegments int     `json:"total_segments"`
}

func (s VisualSlot) Duration() float64 {
	return s.End - s.Start
}

// JobResult references the finished output artifact.
type JobResult struct {
	VideoPath   string  `json:"video_path"`
	DurationSec float64 `json:"duration_sec"`
	ByteSize    int64   `json:"byte_size"`
}

// Job is the canonical state of one generation request. Owned by the job
// store; mutated only through its transition API.
type Job struct {
	ID          uuid.UUID           `json:"id"`
	Mode        JobMode             `json:"mode"`
	Status      JobStatus           `json:"status"`
	Stage       Stage               `json:"stage,omitempty"` // current or last pipeline stage
	Progress    int                 `json:"progress"`        // 0-100, monotonically non-decreasing within a run
	Message     string              `json:"message"`
	SourceURL   *string             `json:"source_url,omitempty"`
	Trim        *TimeRange          `json:"trim,omitempty"`
	ScriptText  *string             `json:"script_text,omitempty"`
	VoiceStyle  *string             `json:"voice_style,omitempty"`
	Detailed    bool                `json:"detailed"`
	Keywords    []KeywordAssignment `json:"keywords,omitempty"` // exposed from awaiting_review onward
	Result      *JobResult          `json:"result,omitempty"`
	Error       *JobError           `json:"error,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

// Clone returns a deep copy safe to hand to readers while the original keeps
// mutating under the store's lock.
func (j *Job) Clone() Job {
	out := *j
	if j.SourceURL != nil {
		v := *j.SourceURL
		out.SourceURL = &v
	}
	if j.Trim != nil {
		v := *j.Trim
		out.Trim = &v
	}
	if j.ScriptText != nil {
		v := *j.ScriptText
		out.ScriptText = &v
	}
	if j.VoiceStyle != nil {
		v := *j.VoiceStyle
		out.VoiceStyle = &v
	}
	if j.Keywords != nil {
		out.Keywords = append([]KeywordAssignment(nil), j.Keywords...)
	}
	if j.Result != nil {
		v := *j.Result
		out.Result = &v
	}
	if j.Error != nil {
		v := *j.Error
		out.Error = &v
	}
	if j.CompletedAt != nil {
		v := *j.CompletedAt
		out.CompletedAt = &v
	}
	return out
}

// DTOs for API requests and responses

type CreateJobRequest struct {
	SourceURL  *string  `json:"source_url,omitempty"`
	TrimStart  *float64 `json:"trim_start,omitempty"`
	TrimEnd    *float64 `json:"trim_end,omitempty"`
	ScriptText *string  `json:"script_text,omitempty"`
	VoiceStyle *string  `json:"voice_style,omitempty"`
	Detailed   bool     `json:"detailed,omitempty"`
}

// ReviewRequest carries the (possibly edited) keyword list back into an
// awaiting_review job. Must match the exposed list in length.
type ReviewRequest struct {
	Keywords []KeywordAssignment `json:"keywords"`
}

type ListJobsResponse struct {
	Jobs  []Job `json:"jobs"`
	Total int   `json:"total"`
}

type CleanupResponse struct {
	Evicted int `json:"evicted"`
}
