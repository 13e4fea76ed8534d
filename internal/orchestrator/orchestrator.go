package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mondo989/MemeSync/internal/jobstore"
	"github.com/mondo989/MemeSync/internal/models"
	"github.com/mondo989/MemeSync/internal/services"
	"github.com/mondo989/MemeSync/internal/timeline"
	"github.com/mondo989/MemeSync/internal/workspace"
)

// Dispatcher hands job IDs to the worker pool. Queue messages carry only the
// ID; all job state lives in the store.
type Dispatcher interface {
	EnqueueRun(ctx context.Context, jobID uuid.UUID) error
	EnqueueResume(ctx context.Context, jobID uuid.UUID) error
}

// AudioFetcher resolves a source reference into a local audio file under
// destDir.
type AudioFetcher interface {
	Fetch(ctx context.Context, ref, destDir string) (string, error)
}

// Transcriber turns an audio file into timed lyric segments.
type Transcriber interface {
	TranscribeAudio(ctx context.Context, audioPath string) ([]models.LyricSegment, error)
}

// KeywordExtractor assigns a search keyword to one lyric segment. It never
// fails: a segment the model cannot place gets a heuristic keyword.
type KeywordExtractor interface {
	ExtractKeyword(ctx context.Context, segment models.LyricSegment) models.KeywordAssignment
}

// AssetMatcher finds one asset URL for a keyword, avoiding the excluded
// URLs when the pool allows it.
type AssetMatcher interface {
	PickAsset(ctx context.Context, keyword string, exclude []string) (string, error)
}

// AssetDownloader fetches asset bytes for rendering.
type AssetDownloader interface {
	Download(ctx context.Context, assetURL string) ([]byte, string, error)
}

// SlideRenderer produces styled slide stills. A render failure is never
// fatal; the pipeline degrades to plain ffmpeg frames.
type SlideRenderer interface {
	RenderSlide(ctx context.Context, spec services.SlideSpec, outputPath string) error
	RenderTitleCard(ctx context.Context, title, outputPath string) error
}

// VideoComposer covers the ffmpeg surface the pipeline needs.
type VideoComposer interface {
	TrimAudio(ctx context.Context, inputPath, outputPath string, trim models.TimeRange) error
	ComposeSlideshow(ctx context.Context, slides []services.Slide, audioPath, outputPath string) error
	RenderFallbackFrame(ctx context.Context, imagePath, outputPath string) error
	RenderBlackFrame(ctx context.Context, outputPath string) error
	GetVideoDuration(ctx context.Context, videoPath string) (float64, error)
}

// SpeechSynthesizer narrates script text for synthesized-script jobs. May be
// nil when no TTS provider is configured.
type SpeechSynthesizer interface {
	GenerateSpeech(ctx context.Context, text, voiceStyle string) (*services.TTSResponse, error)
}

// pausedRun holds the on-disk artifacts a detailed job needs to re-enter the
// pipeline after keyword review. Kept in memory only: cleanup or a process
// restart discards it, and resuming such a job fails with an actionable
// message instead of recomputing stale stages.
type pausedRun struct {
	audioPath string
}

// Orchestrator owns the job lifecycle: it validates requests, dispatches
// work, drives the stage pipeline and records every outcome in the store.
type Orchestrator struct {
	store     *jobstore.Store
	dispatch  Dispatcher
	workspace *workspace.Workspace
	expander  *timeline.Expander

	fetcher     AudioFetcher
	transcriber Transcriber
	extractor   KeywordExtractor
	matcher     AssetMatcher
	downloader  AssetDownloader
	renderer    SlideRenderer
	composer    VideoComposer
	tts         SpeechSynthesizer

	mu     sync.Mutex
	paused map[uuid.UUID]pausedRun
}

func New(
	store *jobstore.Store,
	dispatch Dispatcher,
	ws *workspace.Workspace,
	expander *timeline.Expander,
	fetcher AudioFetcher,
	transcriber Transcriber,
	extractor KeywordExtractor,
	matcher AssetMatcher,
	downloader AssetDownloader,
	renderer SlideRenderer,
	composer VideoComposer,
	tts SpeechSynthesizer,
) *Orchestrator {
	return &Orchestrator{
		store:       store,
		dispatch:    dispatch,
		workspace:   ws,
		expander:    expander,
		fetcher:     fetcher,
		transcriber: transcriber,
		extractor:   extractor,
		matcher:     matcher,
		downloader:  downloader,
		renderer:    renderer,
		composer:    composer,
		tts:         tts,
		paused:      make(map[uuid.UUID]pausedRun),
	}
}

// CreateJob validates the request, registers the job and dispatches it to a
// worker. The returned snapshot is what the caller should show immediately;
// everything after that arrives via GetJob or Watch.
func (o *Orchestrator) CreateJob(ctx context.Context, req models.CreateJobRequest) (models.Job, error) {
	job, err := buildJob(req)
	if err != nil {
		return models.Job{}, err
	}

	o.store.Create(*job)
	if err := o.dispatch.EnqueueRun(ctx, job.ID); err != nil {
		// The job never reached a worker; drop it rather than leave a
		// permanently queued entry behind.
		o.store.Evict(job.ID)
		return models.Job{}, fmt.Errorf("failed to dispatch job: %w", err)
	}

	log.Printf("[Orchestrator] Created job %s (mode=%s, detailed=%v)", job.ID, job.Mode, job.Detailed)
	return o.store.Get(job.ID)
}

// buildJob turns a create request into a job, rejecting malformed input
// before anything is stored or queued.
func buildJob(req models.CreateJobRequest) (*models.Job, error) {
	sourceURL := ""
	if req.SourceURL != nil {
		sourceURL = strings.TrimSpace(*req.SourceURL)
	}
	scriptText := ""
	if req.ScriptText != nil {
		scriptText = strings.TrimSpace(*req.ScriptText)
	}

	switch {
	case sourceURL == "" && scriptText == "":
		return nil, &models.InvalidRequestError{Reason: "either source_url or script_text is required"}
	case sourceURL != "" && scriptText != "":
		return nil, &models.InvalidRequestError{Reason: "send exactly one of source_url or script_text, not both"}
	}

	job := &models.Job{
		ID:        uuid.New(),
		Status:    models.JobStatusCreated,
		Message:   "Queued",
		Detailed:  req.Detailed,
		CreatedAt: time.Now(),
	}

	if scriptText != "" {
		if req.TrimStart != nil || req.TrimEnd != nil {
			return nil, &models.InvalidRequestError{Reason: "trim_start/trim_end apply to source audio only; shorten the script text instead"}
		}
		job.Mode = models.ModeSynthesizedScript
		job.ScriptText = &scriptText
		if req.VoiceStyle != nil {
			if v := strings.TrimSpace(*req.VoiceStyle); v != "" {
				job.VoiceStyle = &v
			}
		}
		return job, nil
	}

	job.Mode = models.ModeDirectSource
	job.SourceURL = &sourceURL
	if req.TrimStart != nil || req.TrimEnd != nil {
		if req.TrimStart == nil || req.TrimEnd == nil {
			return nil, &models.InvalidRequestError{Reason: "trim_start and trim_end must be given together"}
		}
		trim := models.TimeRange{Start: *req.TrimStart, End: *req.TrimEnd}
		if !trim.Valid() {
			return nil, &models.InvalidRequestError{
				Reason: fmt.Sprintf("trim range %.2f-%.2f is malformed; need 0 <= start < end", trim.Start, trim.End),
			}
		}
		job.Trim = &trim
	}
	return job, nil
}

// GetJob returns a point-in-time snapshot of one job.
func (o *Orchestrator) GetJob(id uuid.UUID) (models.Job, error) {
	return o.store.Get(id)
}

// ListJobs returns snapshots of every tracked job, newest first.
func (o *Orchestrator) ListJobs() []models.Job {
	return o.store.List()
}

// Watch streams job snapshots until the job reaches a terminal state or ctx
// is cancelled.
func (o *Orchestrator) Watch(ctx context.Context, id uuid.UUID) (<-chan models.Job, error) {
	return o.store.Watch(ctx, id)
}

// Resume applies reviewed keywords to a job paused at the review gate and
// dispatches the remainder of the pipeline. The edited list must match the
// stored assignments one-to-one; segment timings are taken from the stored
// canonical list, never from the caller.
func (o *Orchestrator) Resume(ctx context.Context, id uuid.UUID, edited []models.KeywordAssignment) (models.Job, error) {
	job, err := o.store.Get(id)
	if err != nil {
		return models.Job{}, err
	}
	if job.Status != models.JobStatusAwaitingReview {
		return models.Job{}, &models.InvalidRequestError{
			Reason: fmt.Sprintf("job is %s; only jobs awaiting review accept keyword edits", job.Status),
		}
	}
	if len(edited) != len(job.Keywords) {
		return models.Job{}, &models.ReviewMismatchError{Want: len(job.Keywords), Got: len(edited)}
	}

	merged := make([]models.KeywordAssignment, len(job.Keywords))
	for i, stored := range job.Keywords {
		keyword := strings.TrimSpace(edited[i].Keyword)
		if keyword == "" {
			return models.Job{}, &models.InvalidRequestError{
				Reason: fmt.Sprintf("keyword %d is empty; every segment needs a keyword", i+1),
			}
		}
		merged[i] = models.KeywordAssignment{Segment: stored.Segment, Keyword: keyword}
	}

	if err := o.store.MarkReviewed(id, merged); err != nil {
		return models.Job{}, err
	}
	if err := o.dispatch.EnqueueResume(ctx, id); err != nil {
		// The reviewed keywords are recorded but no worker will pick the job
		// up; fail it so the caller is not left watching a stuck job.
		o.fail(id, models.StageMatchAssets, fmt.Errorf("failed to dispatch reviewed job: %w", err))
		return models.Job{}, fmt.Errorf("failed to dispatch reviewed job: %w", err)
	}

	log.Printf("[Orchestrator] Job %s review accepted (%d keywords)", id, len(merged))
	return o.store.Get(id)
}

// Cleanup discards every tracked job, all paused review artifacts and the
// whole scratch workspace. In-flight runs are abandoned: their next store
// update is refused and they exit at the following stage boundary.
func (o *Orchestrator) Cleanup() int {
	o.mu.Lock()
	o.paused = make(map[uuid.UUID]pausedRun)
	o.mu.Unlock()

	n := o.store.Reset()
	o.workspace.PurgeAll()
	log.Printf("[Orchestrator] Cleanup evicted %d jobs", n)
	return n
}

func (o *Orchestrator) stashPaused(id uuid.UUID, audioPath string) {
	o.mu.Lock()
	o.paused[id] = pausedRun{audioPath: audioPath}
	o.mu.Unlock()
}

func (o *Orchestrator) takePaused(id uuid.UUID) (pausedRun, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	run, ok := o.paused[id]
	if ok {
		delete(o.paused, id)
	}
	return run, ok
}

func (o *Orchestrator) dropPaused(id uuid.UUID) {
	o.mu.Lock()
	delete(o.paused, id)
	o.mu.Unlock()
}
