package retrieval

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
)

// ytDlpConfig is one quality/header profile passed to the extractor binary.
type ytDlpConfig struct {
	label string
	args  []string
}

// Ordered from most desirable to most permissive. The browser headers on the
// first profile get past upstreams that reject bare client requests.
var ytDlpConfigs = []ytDlpConfig{
	{
		label: "bestaudio with browser headers",
		args: []string{
			"-f", "bestaudio/best",
			"--audio-quality", "0",
			"--add-header", "User-Agent: Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			"--add-header", "Accept-Language: en-US,en;q=0.9",
		},
	},
	{
		label: "worstaudio",
		args:  []string{"-f", "worstaudio/worst", "--audio-quality", "5"},
	},
	{
		label: "any audio track",
		args:  []string{"-f", "best"},
	},
}

// YtDlpStrategy shells out to the yt-dlp binary, the most robust extractor
// available. Audio is re-encoded to mp3 so downstream stages see one format.
type YtDlpStrategy struct {
	binPath string
}

var _ Strategy = (*YtDlpStrategy)(nil)

func NewYtDlp(binPath string) *YtDlpStrategy {
	if binPath == "" {
		binPath = "yt-dlp"
	}
	return &YtDlpStrategy{binPath: binPath}
}

func (s *YtDlpStrategy) Name() string { return "yt-dlp" }

func (s *YtDlpStrategy) NumConfigs() int { return len(ytDlpConfigs) }

func (s *YtDlpStrategy) ConfigLabel(config int) string {
	if config < 0 || config >= len(ytDlpConfigs) {
		return fmt.Sprintf("config %d", config)
	}
	return ytDlpConfigs[config].label
}

func (s *YtDlpStrategy) Fetch(ctx context.Context, config int, ref, destDir string) (string, error) {
	if config < 0 || config >= len(ytDlpConfigs) {
		return "", fmt.Errorf("unknown yt-dlp configuration %d", config)
	}
	cfg := ytDlpConfigs[config]

	args := []string{
		"--no-playlist",
		"--no-progress",
		"--socket-timeout", "30",
		"-x", "--audio-format", "mp3",
		"-o", filepath.Join(destDir, "audio.%(ext)s"),
	}
	args = append(args, cfg.args...)
	args = append(args, ref)

	cmd := exec.CommandContext(ctx, s.binPath, args...)
	// Tool output goes into the error so failures stay classifiable
	// ("video unavailable" vs a transient network hiccup).
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("yt-dlp failed: %w\nOutput: %s", err, truncate(string(output), 500))
	}

	matches, err := filepath.Glob(filepath.Join(destDir, "audio.*"))
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("yt-dlp reported success but produced no audio file")
	}
	return matches[0], nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
