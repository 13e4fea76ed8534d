package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mondo989/MemeSync/internal/models"
)

// Output constants — 1080p landscape at 30fps.
const (
	outputWidth  = 1920
	outputHeight = 1080
	videoFPS     = 30
)

// scalePad fits any input frame onto the output canvas, centered on black.
// Browser-rendered slides are already 1920x1080; this keeps fallback frames
// and odd-sized inputs from breaking the concat.
var scalePad = fmt.Sprintf(
	"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black",
	outputWidth, outputHeight, outputWidth, outputHeight,
)

// Slide is one rendered still plus how long it stays on screen.
type Slide struct {
	ImagePath string
	Duration  float64
}

type FFmpegService struct{}

func NewFFmpegService() *FFmpegService {
	return &FFmpegService{}
}

// TrimAudio cuts the source audio down to the requested range, re-encoding
// so the cut lands on the exact timestamps.
func (s *FFmpegService) TrimAudio(ctx context.Context, inputPath, outputPath string, trim models.TimeRange) error {
	log.Printf("[FFmpeg] Trimming audio to %.2f-%.2f", trim.Start, trim.End)

	args := []string{
		"-i", inputPath,
		"-ss", fmt.Sprintf("%.3f", trim.Start),
		"-to", fmt.Sprintf("%.3f", trim.End),
		"-c:a", "libmp3lame",
		"-q:a", "2",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg trim failed: %w", err)
	}

	return nil
}

// ComposeSlideshow muxes the rendered slides and the audio track into the
// final video. Slide durations drive the timeline; the result is capped to
// the audio length so the video never runs past silence.
func (s *FFmpegService) ComposeSlideshow(ctx context.Context, slides []Slide, audioPath, outputPath string) error {
	if len(slides) == 0 {
		return fmt.Errorf("no slides to compose")
	}

	var total float64
	for i, slide := range slides {
		if slide.Duration <= 0 {
			return fmt.Errorf("slide %d has non-positive duration %.3f", i, slide.Duration)
		}
		total += slide.Duration
	}

	videoDuration := total
	if audioDur, err := s.GetAudioDuration(ctx, audioPath); err == nil && audioDur > 0 {
		videoDuration = math.Min(total, audioDur)
	} else if err != nil {
		log.Printf("[FFmpeg] Could not probe audio duration, using slide total: %v", err)
	}

	listPath := filepath.Join(filepath.Dir(outputPath), "slides.txt")
	if err := writeConcatList(listPath, slides); err != nil {
		return err
	}
	defer os.Remove(listPath)

	log.Printf("[FFmpeg] Composing %d slides into %s (%.1fs)", len(slides), outputPath, videoDuration)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-i", audioPath,
		"-vf", scalePad + ",format=yuv420p",
		"-r", fmt.Sprintf("%d", videoFPS),
		"-c:v", "libx264",
		"-preset", "slow",
		"-crf", "18",
		"-b:v", "8000k",
		"-profile:v", "high",
		"-level:v", "4.1",
		"-c:a", "aac",
		"-b:a", "320k",
		"-movflags", "+faststart",
		"-t", fmt.Sprintf("%.3f", videoDuration),
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg compose failed: %w", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("compose produced no output at %s", outputPath)
	}

	return nil
}

// writeConcatList emits the concat demuxer input. The demuxer ignores the
// duration of the final entry, so the last file is listed a second time.
func writeConcatList(listPath string, slides []Slide) error {
	f, err := os.Create(listPath)
	if err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}

	for _, slide := range slides {
		fmt.Fprintf(f, "file '%s'\n", slide.ImagePath)
		fmt.Fprintf(f, "duration %.3f\n", slide.Duration)
	}
	fmt.Fprintf(f, "file '%s'\n", slides[len(slides)-1].ImagePath)

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to finish concat list: %w", err)
	}
	return nil
}

// RenderFallbackFrame turns a raw asset image into a full-canvas slide when
// the browser renderer is unavailable: scaled to fit, centered on black, no
// caption.
func (s *FFmpegService) RenderFallbackFrame(ctx context.Context, imagePath, outputPath string) error {
	args := []string{
		"-i", imagePath,
		"-vf", scalePad,
		"-frames:v", "1",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg fallback frame failed: %w", err)
	}

	return nil
}

// RenderBlackFrame produces a plain black slide, used to fill timeline gaps
// before the first lyric and as the last-resort frame.
func (s *FFmpegService) RenderBlackFrame(ctx context.Context, outputPath string) error {
	args := []string{
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=black:s=%dx%d", outputWidth, outputHeight),
		"-frames:v", "1",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg black frame failed: %w", err)
	}

	return nil
}

// GetAudioDuration returns the duration of an audio file in seconds.
func (s *FFmpegService) GetAudioDuration(ctx context.Context, audioPath string) (float64, error) {
	return s.probeDuration(ctx, audioPath)
}

// GetVideoDuration returns the duration of a video file in seconds.
func (s *FFmpegService) GetVideoDuration(ctx context.Context, videoPath string) (float64, error) {
	return s.probeDuration(ctx, videoPath)
}

func (s *FFmpegService) probeDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	var durationSec float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(output)), "%f", &durationSec); err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}

	return durationSec, nil
}
