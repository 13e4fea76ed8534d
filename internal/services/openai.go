package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mondo989/MemeSync/internal/models"
)

type OpenAIService struct {
	client *openai.Client
}

func NewOpenAIService(apiKey string) *OpenAIService {
	return &OpenAIService{
		client: openai.NewClient(apiKey),
	}
}

// TranscribeAudio sends the local audio file to Whisper and returns
// segment-level timestamps. Timestamps are relative to the file itself, so a
// trimmed clip yields ranges starting near zero.
func (s *OpenAIService) TranscribeAudio(ctx context.Context, audioPath string) ([]models.LyricSegment, error) {
	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularitySegment,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("whisper transcription failed: %w", err)
	}

	segments := make([]models.LyricSegment, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" || seg.End <= seg.Start {
			continue
		}
		segments = append(segments, models.LyricSegment{
			TimeRange: models.TimeRange{Start: seg.Start, End: seg.End},
			Text:      text,
		})
	}

	if len(segments) == 0 {
		return nil, fmt.Errorf("%w (raw text: %q)", models.ErrEmptyTranscript, truncateString(resp.Text, 120))
	}

	log.Printf("[Whisper] Transcribed %d segments (duration: %.1fs, text: %q)",
		len(segments), resp.Duration, truncateString(resp.Text, 80))

	return segments, nil
}

// truncateString truncates a string to maxLen and appends "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
