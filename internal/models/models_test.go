package models

import (
	"errors"
	"strings"
	"testing"
)

func TestValidTransition(t *testing.T) {
	cases := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusCreated, JobStatusRunning, true},
		{JobStatusRunning, JobStatusCompleted, true},
		{JobStatusRunning, JobStatusAwaitingReview, true},
		{JobStatusAwaitingReview, JobStatusReviewComplete, true},
		{JobStatusReviewComplete, JobStatusRunning, true},
		{JobStatusRunning, JobStatusError, true},
		{JobStatusAwaitingReview, JobStatusError, true},
		{JobStatusCreated, JobStatusError, true},

		{JobStatusCreated, JobStatusCompleted, false},
		{JobStatusCreated, JobStatusAwaitingReview, false},
		{JobStatusAwaitingReview, JobStatusRunning, false},
		{JobStatusAwaitingReview, JobStatusCompleted, false},
		{JobStatusCompleted, JobStatusRunning, false},
		{JobStatusError, JobStatusRunning, false},
		{JobStatusError, JobStatusError, false},
		{JobStatusCompleted, JobStatusError, false},
	}

	for _, c := range cases {
		if got := ValidTransition(c.from, c.to); got != c.want {
			t.Errorf("ValidTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	terminal := []JobStatus{JobStatusCompleted, JobStatusError}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}

	live := []JobStatus{JobStatusCreated, JobStatusRunning, JobStatusAwaitingReview, JobStatusReviewComplete}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}

func TestTimeRange(t *testing.T) {
	r := TimeRange{Start: 2.5, End: 8.0}
	if d := r.Duration(); d != 5.5 {
		t.Errorf("expected duration 5.5, got %v", d)
	}
	if !r.Valid() {
		t.Error("expected range to be valid")
	}

	bad := []TimeRange{
		{Start: 5, End: 5},
		{Start: 6, End: 5},
		{Start: -1, End: 5},
	}
	for _, r := range bad {
		if r.Valid() {
			t.Errorf("expected %+v to be invalid", r)
		}
	}
}

func TestJobErrorMessage(t *testing.T) {
	e := &JobError{Kind: ErrKindStageFailure, Stage: StageComposeVideo, Message: "ffmpeg exited with status 1"}
	msg := e.Error()
	if !strings.Contains(msg, string(StageComposeVideo)) {
		t.Errorf("expected stage name in message, got %q", msg)
	}
	if !strings.Contains(msg, "ffmpeg exited") {
		t.Errorf("expected cause in message, got %q", msg)
	}

	plain := &JobError{Kind: ErrKindTimeout, Message: "job exceeded its 10m budget"}
	if strings.Contains(plain.Error(), "()") {
		t.Errorf("unexpected empty stage formatting: %q", plain.Error())
	}
}

func TestStageErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	e := &StageError{Stage: StageFetchAudio, Err: cause}

	if !errors.Is(e, cause) {
		t.Error("expected StageError to unwrap to its cause")
	}

	var se *StageError
	if !errors.As(error(e), &se) || se.Stage != StageFetchAudio {
		t.Errorf("expected errors.As to recover the stage, got %+v", se)
	}
}

func TestJobClone(t *testing.T) {
	src := "https://example.com/watch?v=abc"
	job := &Job{
		Mode:      ModeDirectSource,
		Status:    JobStatusAwaitingReview,
		SourceURL: &src,
		Keywords: []KeywordAssignment{
			{Segment: LyricSegment{TimeRange: TimeRange{Start: 0, End: 4}, Text: "hello"}, Keyword: "wave"},
		},
	}

	clone := job.Clone()
	clone.Keywords[0].Keyword = "edited"
	*clone.SourceURL = "mutated"

	if job.Keywords[0].Keyword != "wave" {
		t.Error("clone shares keyword slice with original")
	}
	if *job.SourceURL != src {
		t.Error("clone shares source URL pointer with original")
	}
}
