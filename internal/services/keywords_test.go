package services

import (
	"context"
	"strings"
	"testing"

	"github.com/mondo989/MemeSync/internal/models"
)

func TestHeuristicKeyword(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"the cat sat on a windowsill", "windowsill"},
		{"Money!!!", "money"},
		{"riding a skateboard downhill", "skateboard"},
		{"We are dancing under electric moonlight", "moonlight"},
		{"oh yeah oh yeah", "meme"},
		{"Na na na la la", "meme"},
		{"", "meme"},
		{"   ", "meme"},
		{"(Chorus)", "chorus"},
	}

	for _, tt := range tests {
		if got := heuristicKeyword(tt.text); got != tt.want {
			t.Errorf("heuristicKeyword(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestHeuristicKeywordNeverEmpty(t *testing.T) {
	lines := []string{"", "a", "the the the", "!?.,", "I'm so on it, yeah"}
	for _, line := range lines {
		if got := heuristicKeyword(line); got == "" {
			t.Errorf("heuristicKeyword(%q) returned an empty keyword", line)
		}
	}
}

func TestSanitizeKeyword(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`"Distracted Boyfriend"`, "distracted boyfriend"},
		{"  DOGE  ", "doge"},
		{"'shrug'", "shrug"},
		{"one two three four five", "one two three"},
		{"surprised pikachu\n", "surprised pikachu"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		if got := sanitizeKeyword(tt.raw); got != tt.want {
			t.Errorf("sanitizeKeyword(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

// Without an API key the service must stay off the network and still hand
// every segment a usable keyword.
func TestExtractKeywordWithoutAPIKey(t *testing.T) {
	svc := NewKeywordService("", "")

	segment := models.LyricSegment{
		TimeRange: models.TimeRange{Start: 0, End: 4.2},
		Text:      "riding a skateboard downhill",
	}

	got := svc.ExtractKeyword(context.Background(), segment)
	if got.Keyword != "skateboard" {
		t.Errorf("keyword = %q, want %q", got.Keyword, "skateboard")
	}
	if got.Segment != segment {
		t.Errorf("segment not carried through: %+v", got.Segment)
	}
}

func TestExtractKeywordBlankLineUsesSentinel(t *testing.T) {
	svc := NewKeywordService("", "")

	got := svc.ExtractKeyword(context.Background(), models.LyricSegment{
		TimeRange: models.TimeRange{Start: 10, End: 12},
		Text:      "  ",
	})
	if got.Keyword != sentinelKeyword {
		t.Errorf("keyword = %q, want the sentinel %q", got.Keyword, sentinelKeyword)
	}
}

func TestBuildKeywordPromptEmbedsLine(t *testing.T) {
	prompt := buildKeywordPrompt("never gonna give you up")

	if !strings.Contains(prompt, "never gonna give you up") {
		t.Error("prompt does not contain the lyric line")
	}
	if !strings.Contains(prompt, `{"keyword"`) {
		t.Error("prompt does not pin the JSON response shape")
	}
}
