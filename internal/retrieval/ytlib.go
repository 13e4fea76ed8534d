package retrieval

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kkdai/youtube/v2"
)

var libraryConfigs = []string{
	"highest bitrate audio",
	"lowest bitrate audio",
	"any audio format",
}

// LibraryStrategy downloads through the in-process youtube client. Less
// resilient than the external extractor against upstream changes, but has no
// binary dependency, so it serves as the fallback.
type LibraryStrategy struct {
	client youtube.Client
}

var _ Strategy = (*LibraryStrategy)(nil)

func NewLibrary() *LibraryStrategy {
	return &LibraryStrategy{}
}

func (s *LibraryStrategy) Name() string { return "youtube library" }

func (s *LibraryStrategy) NumConfigs() int { return len(libraryConfigs) }

func (s *LibraryStrategy) ConfigLabel(config int) string {
	if config < 0 || config >= len(libraryConfigs) {
		return fmt.Sprintf("config %d", config)
	}
	return libraryConfigs[config]
}

func (s *LibraryStrategy) Fetch(ctx context.Context, config int, ref, destDir string) (string, error) {
	if config < 0 || config >= len(libraryConfigs) {
		return "", fmt.Errorf("unknown library configuration %d", config)
	}

	video, err := s.client.GetVideoContext(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("failed to resolve video: %w", err)
	}

	formats := video.Formats.WithAudioChannels()
	if len(formats) == 0 {
		return "", fmt.Errorf("no audio-capable formats for %s", ref)
	}
	format := pickFormat(formats, config)

	stream, size, err := s.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return "", fmt.Errorf("failed to open stream: %w", err)
	}
	defer stream.Close()

	path := filepath.Join(destDir, "audio"+extForMime(format.MimeType))
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}

	written, err := io.Copy(out, stream)
	closeErr := out.Close()
	if err != nil {
		return "", fmt.Errorf("download interrupted after %d bytes: %w", written, err)
	}
	if closeErr != nil {
		return "", fmt.Errorf("failed to finish %s: %w", path, closeErr)
	}
	if written == 0 {
		return "", fmt.Errorf("stream for %s was empty", ref)
	}
	if size > 0 && written < size {
		return "", fmt.Errorf("truncated download: got %d of %d bytes", written, size)
	}
	return path, nil
}

func pickFormat(formats youtube.FormatList, config int) *youtube.Format {
	switch config {
	case 0:
		best := 0
		for i := range formats {
			if formats[i].Bitrate > formats[best].Bitrate {
				best = i
			}
		}
		return &formats[best]
	case 1:
		worst := 0
		for i := range formats {
			if formats[i].Bitrate > 0 && formats[i].Bitrate < formats[worst].Bitrate {
				worst = i
			}
		}
		return &formats[worst]
	default:
		return &formats[0]
	}
}

func extForMime(mime string) string {
	switch {
	case strings.HasPrefix(mime, "audio/mp4"):
		return ".m4a"
	case strings.HasPrefix(mime, "audio/webm"):
		return ".webm"
	case strings.HasPrefix(mime, "video/webm"):
		return ".webm"
	default:
		return ".mp4"
	}
}
