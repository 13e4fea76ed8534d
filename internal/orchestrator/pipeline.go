package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mondo989/MemeSync/internal/jobstore"
	"github.com/mondo989/MemeSync/internal/models"
	"github.com/mondo989/MemeSync/internal/retrieval"
	"github.com/mondo989/MemeSync/internal/services"
)

// maxParallelDownloads caps concurrent asset fetches per job so a slide-heavy
// job cannot monopolize outbound bandwidth.
const maxParallelDownloads = 4

// gapEpsilon treats sub-50ms timeline gaps as contiguous; the concat demuxer
// cannot meaningfully represent shorter stills anyway.
const gapEpsilon = 0.05

// Execute drives a freshly created job through the pipeline. It is invoked
// from a worker goroutine, never by API callers. Errors are recorded on the
// job instead of returned: the pipeline is a single forward-only path and no
// stage is ever retried once it fails.
func (o *Orchestrator) Execute(ctx context.Context, jobID uuid.UUID) {
	job, err := o.store.Get(jobID)
	if err != nil {
		// Stale queue message: the job was evicted, or redis outlived a
		// restart of this process and its in-memory state.
		log.Printf("[Orchestrator] Dropping run for unknown job %s: %v", jobID, err)
		return
	}

	if err := o.store.Start(jobID); err != nil {
		log.Printf("[Orchestrator] Job %s not startable: %v", jobID, err)
		return
	}
	log.Printf("[Orchestrator] Job %s running (mode=%s)", jobID, job.Mode)

	if !o.enterStage(jobID, models.StageFetchAudio) {
		return
	}
	audioPath, err := o.fetchAudio(ctx, job)
	if err != nil {
		o.fail(jobID, models.StageFetchAudio, err)
		return
	}

	if !o.enterStage(jobID, models.StageTranscribe) {
		return
	}
	segments, err := o.transcriber.TranscribeAudio(ctx, audioPath)
	if err != nil {
		o.fail(jobID, models.StageTranscribe, err)
		return
	}

	if !o.enterStage(jobID, models.StageExtractKeywords) {
		return
	}
	assignments := make([]models.KeywordAssignment, len(segments))
	for i, seg := range segments {
		assignments[i] = o.extractor.ExtractKeyword(ctx, seg)
	}

	if job.Detailed {
		o.stashPaused(jobID, audioPath)
		if err := o.store.AwaitReview(jobID, assignments, reviewPercent, reviewMessage); err != nil {
			o.dropPaused(jobID)
			log.Printf("[Orchestrator] Job %s abandoned before review: %v", jobID, err)
			return
		}
		log.Printf("[Orchestrator] Job %s paused for keyword review (%d assignments)", jobID, len(assignments))
		return
	}

	o.finish(ctx, job, audioPath, assignments)
}

// ExecuteResume re-enters the pipeline at asset matching after a review has
// been accepted.
func (o *Orchestrator) ExecuteResume(ctx context.Context, jobID uuid.UUID) {
	job, err := o.store.Get(jobID)
	if err != nil {
		log.Printf("[Orchestrator] Dropping resume for unknown job %s: %v", jobID, err)
		return
	}

	run, ok := o.takePaused(jobID)
	if !ok {
		// The fetched audio is gone: cleanup ran between review and resume,
		// or the process restarted while redis kept the message alive.
		o.fail(jobID, models.StageMatchAssets, errors.New("review artifacts for this job are no longer available; create a new job"))
		return
	}

	if err := o.store.ResumeRunning(jobID); err != nil {
		log.Printf("[Orchestrator] Job %s not resumable: %v", jobID, err)
		return
	}
	log.Printf("[Orchestrator] Job %s resumed with %d reviewed keywords", jobID, len(job.Keywords))

	o.finish(ctx, job, run.audioPath, job.Keywords)
}

// finish runs the back half of the pipeline, shared by straight-through and
// post-review jobs: match assets, expand the timeline, render slides and
// compose the final video.
func (o *Orchestrator) finish(ctx context.Context, job models.Job, audioPath string, assignments []models.KeywordAssignment) {
	jobID := job.ID

	if !o.enterStage(jobID, models.StageMatchAssets) {
		return
	}
	matched, err := o.matchAssets(ctx, assignments)
	if err != nil {
		o.fail(jobID, models.StageMatchAssets, err)
		return
	}

	if !o.enterStage(jobID, models.StageExpandSegments) {
		return
	}
	slots := o.expander.Expand(ctx, matched)
	if len(slots) == 0 {
		o.fail(jobID, models.StageExpandSegments, errors.New("timeline expansion produced no displayable slots"))
		return
	}

	if !o.enterStage(jobID, models.StageRenderFrames) {
		return
	}
	frames, err := o.renderFrames(ctx, jobID, slots, matched)
	if err != nil {
		o.fail(jobID, models.StageRenderFrames, err)
		return
	}

	if !o.enterStage(jobID, models.StageComposeVideo) {
		return
	}
	result, err := o.composeVideo(ctx, job, frames, audioPath)
	if err != nil {
		o.fail(jobID, models.StageComposeVideo, err)
		return
	}

	if err := o.store.Complete(jobID, *result); err != nil {
		log.Printf("[Orchestrator] Job %s abandoned at completion: %v", jobID, err)
		return
	}

	// Only the output artifact needs to outlive the run.
	stills := make([]string, 0, len(frames))
	for _, f := range frames {
		stills = append(stills, f.frame)
	}
	o.workspace.Cleanup(stills...)

	log.Printf("[Orchestrator] Job %s completed: %s (%.1fs, %d bytes)",
		jobID, result.VideoPath, result.DurationSec, result.ByteSize)
}

// enterStage records the stage boundary on the job. A false return means the
// job was abandoned (evicted or already terminal) and the runner must stop.
func (o *Orchestrator) enterStage(jobID uuid.UUID, stage models.Stage) bool {
	info := stageTable[stage]
	if err := o.store.SetProgress(jobID, stage, info.percent, info.message); err != nil {
		log.Printf("[Orchestrator] Job %s abandoned before %s: %v", jobID, stage, err)
		return false
	}
	return true
}

// fail wraps the error with its stage, records the failure on the job and
// purges its scratch space. Abandoned jobs (evicted or forced terminal
// underneath the runner) are logged and left alone.
func (o *Orchestrator) fail(jobID uuid.UUID, stage models.Stage, err error) {
	stageErr := &models.StageError{Stage: stage, Err: err}
	if isAbandoned(stageErr) {
		log.Printf("[Orchestrator] Job %s abandoned at %s: %v", jobID, stage, err)
		return
	}
	jobErr := classify(stageErr)
	if serr := o.store.Fail(jobID, jobErr); serr != nil {
		log.Printf("[Orchestrator] Job %s gone before its %s failure could be recorded: %v (original: %v)", jobID, stage, serr, err)
		return
	}
	log.Printf("[Orchestrator] Job %s failed: %v", jobID, stageErr)
	o.workspace.Purge(jobID.String())
}

func isAbandoned(err error) bool {
	return errors.Is(err, models.ErrNotFound) || errors.Is(err, jobstore.ErrTerminal)
}

// classify maps a wrapped stage error onto the error taxonomy callers see.
// Classification happens exactly once, here; stage helpers only wrap.
func classify(stageErr *models.StageError) *models.JobError {
	var unavailable *retrieval.UnavailableError
	switch {
	case errors.As(stageErr, &unavailable):
		return &models.JobError{Kind: models.ErrKindUnavailableSource, Stage: stageErr.Stage, Message: stageErr.Err.Error()}
	case errors.Is(stageErr, models.ErrEmptyTranscript):
		return &models.JobError{Kind: models.ErrKindEmptyTranscript, Stage: stageErr.Stage, Message: stageErr.Err.Error()}
	default:
		return &models.JobError{Kind: models.ErrKindStageFailure, Stage: stageErr.Stage, Message: stageErr.Err.Error()}
	}
}

// fetchAudio produces the job's narration audio: downloaded (and optionally
// trimmed) source audio for direct jobs, synthesized speech for script jobs.
func (o *Orchestrator) fetchAudio(ctx context.Context, job models.Job) (string, error) {
	jobDir := job.ID.String()
	dir, err := o.workspace.JobDir(jobDir)
	if err != nil {
		return "", err
	}

	if job.Mode == models.ModeSynthesizedScript {
		return o.synthesizeSpeech(ctx, job, jobDir)
	}

	audioPath, err := o.fetcher.Fetch(ctx, *job.SourceURL, dir)
	if err != nil {
		return "", err
	}
	if job.Trim == nil {
		return audioPath, nil
	}

	trimmedPath := o.workspace.Path(jobDir, "audio_trimmed.mp3")
	if err := o.composer.TrimAudio(ctx, audioPath, trimmedPath, *job.Trim); err != nil {
		return "", fmt.Errorf("failed to trim audio to %.2f-%.2f: %w", job.Trim.Start, job.Trim.End, err)
	}
	// The untrimmed original has served its purpose.
	o.workspace.Cleanup(audioPath)
	return trimmedPath, nil
}

func (o *Orchestrator) synthesizeSpeech(ctx context.Context, job models.Job, jobDir string) (string, error) {
	if o.tts == nil {
		return "", errors.New("no speech provider is configured; synthesized-script jobs are unavailable")
	}
	voiceStyle := ""
	if job.VoiceStyle != nil {
		voiceStyle = *job.VoiceStyle
	}
	resp, err := o.tts.GenerateSpeech(ctx, *job.ScriptText, voiceStyle)
	if err != nil {
		return "", fmt.Errorf("speech synthesis failed: %w", err)
	}
	format := resp.Format
	if format == "" {
		format = "mp3"
	}
	audioPath := o.workspace.Path(jobDir, "speech."+format)
	if err := os.WriteFile(audioPath, resp.AudioData, 0644); err != nil {
		return "", fmt.Errorf("failed to write synthesized speech: %w", err)
	}
	log.Printf("[Orchestrator] Job %s synthesized %d bytes of speech (%s)", job.ID, len(resp.AudioData), format)
	return audioPath, nil
}

// matchAssets picks one asset per assignment, excluding already-used URLs so
// adjacent segments get distinct visuals whenever the pool allows it.
func (o *Orchestrator) matchAssets(ctx context.Context, assignments []models.KeywordAssignment) ([]models.MatchedAsset, error) {
	matched := make([]models.MatchedAsset, 0, len(assignments))
	exclude := make([]string, 0, len(assignments))
	seen := make(map[string]struct{}, len(assignments))

	for i, a := range assignments {
		assetURL, err := o.matcher.PickAsset(ctx, a.Keyword, exclude)
		if err != nil {
			return nil, fmt.Errorf("no asset for keyword %q (segment %d): %w", a.Keyword, i+1, err)
		}
		matched = append(matched, models.MatchedAsset{KeywordAssignment: a, AssetURL: assetURL})
		if _, ok := seen[assetURL]; !ok {
			seen[assetURL] = struct{}{}
			exclude = append(exclude, assetURL)
		}
	}
	return matched, nil
}

// slotFrame pairs a timed slot with its rendered still.
type slotFrame struct {
	slot  models.VisualSlot
	frame string
}

// assetImage is one downloaded asset ready for the slide renderer. A nil
// entry means the download failed and the slot falls back to a black frame.
type assetImage struct {
	data []byte
	mime string
}

// renderFrames downloads every asset and renders one still per slot,
// reporting intra-stage progress as slides complete.
func (o *Orchestrator) renderFrames(ctx context.Context, jobID uuid.UUID, slots []models.VisualSlot, matched []models.MatchedAsset) ([]slotFrame, error) {
	jobDir := jobID.String()
	if _, err := o.workspace.JobDir(jobDir); err != nil {
		return nil, err
	}

	images := o.downloadAssets(ctx, slots)

	frames := make([]slotFrame, 0, len(slots))
	for i, slot := range slots {
		framePath := o.workspace.Path(jobDir, fmt.Sprintf("slide_%03d.png", i+1))
		if err := o.renderFrame(ctx, jobDir, i, images[slot.AssetURL], captionFor(slot, matched), framePath); err != nil {
			return nil, err
		}
		frames = append(frames, slotFrame{slot: slot, frame: framePath})

		msg := fmt.Sprintf("Rendering slides (%d/%d)", i+1, len(slots))
		if err := o.store.SetProgress(jobID, models.StageRenderFrames, renderPercentFor(i+1, len(slots)), msg); err != nil {
			return nil, err
		}
	}
	return frames, nil
}

// downloadAssets fetches every distinct slot asset, a few at a time.
// Failures are tolerated: a slot whose image cannot be fetched degrades to a
// black frame instead of failing the job.
func (o *Orchestrator) downloadAssets(ctx context.Context, slots []models.VisualSlot) map[string]*assetImage {
	urls := make([]string, 0, len(slots))
	index := make(map[string]int, len(slots))
	for _, s := range slots {
		if s.AssetURL == "" {
			continue
		}
		if _, ok := index[s.AssetURL]; !ok {
			index[s.AssetURL] = len(urls)
			urls = append(urls, s.AssetURL)
		}
	}

	results := make([]*assetImage, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelDownloads)
	for i, u := range urls {
		g.Go(func() error {
			data, mime, err := o.downloader.Download(gctx, u)
			if err != nil {
				log.Printf("[Orchestrator] Asset download failed, slot falls back to a black frame: %s: %v", u, err)
				return nil
			}
			results[i] = &assetImage{data: data, mime: mime}
			return nil
		})
	}
	// The goroutines swallow their own errors; Wait only joins them.
	_ = g.Wait()

	images := make(map[string]*assetImage, len(urls))
	for u, i := range index {
		images[u] = results[i]
	}
	return images
}

// renderFrame produces one slide still, degrading from the browser renderer
// to a plain ffmpeg frame to a black frame.
func (o *Orchestrator) renderFrame(ctx context.Context, jobDir string, idx int, img *assetImage, caption, framePath string) error {
	if img != nil && o.renderer != nil {
		spec := services.SlideSpec{ImageData: img.data, MimeType: img.mime, Caption: caption}
		err := o.renderer.RenderSlide(ctx, spec, framePath)
		if err == nil {
			return nil
		}
		log.Printf("[Orchestrator] Browser render for slide %d failed, using plain frame: %v", idx+1, err)
	}

	if img != nil {
		rawPath := o.workspace.Path(jobDir, fmt.Sprintf("asset_%03d%s", idx+1, extensionFor(img.mime)))
		if err := os.WriteFile(rawPath, img.data, 0644); err != nil {
			log.Printf("[Orchestrator] Could not stage asset for slide %d: %v", idx+1, err)
		} else if err := o.composer.RenderFallbackFrame(ctx, rawPath, framePath); err != nil {
			log.Printf("[Orchestrator] Plain frame for slide %d failed: %v", idx+1, err)
		} else {
			return nil
		}
	}

	if err := o.composer.RenderBlackFrame(ctx, framePath); err != nil {
		return fmt.Errorf("could not produce any frame for slide %d: %w", idx+1, err)
	}
	return nil
}

// captionFor finds the lyric text behind a slot. Filler slots inherit the
// caption of the segment they were carved from.
func captionFor(slot models.VisualSlot, matched []models.MatchedAsset) string {
	for _, m := range matched {
		if slot.Start >= m.Segment.Start-gapEpsilon && slot.Start < m.Segment.End {
			return m.Segment.Text
		}
	}
	return ""
}

// composeVideo lays the rendered stills on the timeline, filling the lead-in
// with an opening slide and any inter-slot gaps with black, then muxes them
// with the narration audio.
func (o *Orchestrator) composeVideo(ctx context.Context, job models.Job, frames []slotFrame, audioPath string) (*models.JobResult, error) {
	jobDir := job.ID.String()

	slides := make([]services.Slide, 0, len(frames)+2)
	cursor := 0.0

	if lead := frames[0].slot.Start; lead > gapEpsilon {
		openingPath := o.workspace.Path(jobDir, "slide_opening.png")
		if err := o.renderOpening(ctx, openingTitle(job), openingPath); err != nil {
			return nil, fmt.Errorf("opening slide: %w", err)
		}
		slides = append(slides, services.Slide{ImagePath: openingPath, Duration: lead})
		cursor = lead
	}

	blackPath := "" // rendered lazily, shared by every gap
	for _, f := range frames {
		if gap := f.slot.Start - cursor; gap > gapEpsilon {
			if blackPath == "" {
				blackPath = o.workspace.Path(jobDir, "slide_gap.png")
				if err := o.composer.RenderBlackFrame(ctx, blackPath); err != nil {
					return nil, fmt.Errorf("gap frame: %w", err)
				}
			}
			slides = append(slides, services.Slide{ImagePath: blackPath, Duration: gap})
		}
		slides = append(slides, services.Slide{ImagePath: f.frame, Duration: f.slot.Duration()})
		cursor = f.slot.End
	}

	outputPath := o.workspace.Path(jobDir, "output.mp4")
	if err := o.composer.ComposeSlideshow(ctx, slides, audioPath, outputPath); err != nil {
		return nil, err
	}

	result := &models.JobResult{VideoPath: outputPath}
	if info, err := os.Stat(outputPath); err == nil {
		result.ByteSize = info.Size()
	}
	if dur, err := o.composer.GetVideoDuration(ctx, outputPath); err == nil {
		result.DurationSec = dur
	} else {
		log.Printf("[Orchestrator] Could not probe output duration, using timeline length: %v", err)
		result.DurationSec = cursor
	}
	return result, nil
}

func (o *Orchestrator) renderOpening(ctx context.Context, title, outputPath string) error {
	if o.renderer != nil {
		err := o.renderer.RenderTitleCard(ctx, title, outputPath)
		if err == nil {
			return nil
		}
		log.Printf("[Orchestrator] Opening slide render failed, using black frame: %v", err)
	}
	return o.composer.RenderBlackFrame(ctx, outputPath)
}

// openingTitle picks the text shown while the audio plays before the first
// lyric lands.
func openingTitle(job models.Job) string {
	if job.Mode == models.ModeSynthesizedScript && job.ScriptText != nil {
		words := strings.Fields(*job.ScriptText)
		if len(words) > 6 {
			words = words[:6]
		}
		if len(words) > 0 {
			return strings.Join(words, " ")
		}
	}
	if job.SourceURL != nil {
		return *job.SourceURL
	}
	return "MemeSync"
}

func extensionFor(mime string) string {
	switch {
	case strings.Contains(mime, "jpeg"), strings.Contains(mime, "jpg"):
		return ".jpg"
	case strings.Contains(mime, "gif"):
		return ".gif"
	case strings.Contains(mime, "webp"):
		return ".webp"
	default:
		return ".png"
	}
}
