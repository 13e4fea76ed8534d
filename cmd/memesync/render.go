package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/mondo989/MemeSync/internal/models"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

func shouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func statusColor(status models.JobStatus) string {
	switch status {
	case models.JobStatusCompleted:
		return ansiGreen
	case models.JobStatusError:
		return ansiRed
	case models.JobStatusAwaitingReview:
		return ansiYellow
	default:
		return ansiBlue
	}
}

// renderProgressLine is one follow-mode line: percent, status, message.
// The status is padded before coloring so escape codes don't skew the column.
func renderProgressLine(job models.Job, colorize bool) string {
	status := fmt.Sprintf("%-16s", job.Status)
	if colorize {
		status = statusColor(job.Status) + status + ansiReset
	}
	return fmt.Sprintf("%3d%%  %s %s", job.Progress, status, job.Message)
}

func renderKeywordTable(keywords []models.KeywordAssignment) string {
	rows := make([][]string, 0, len(keywords))
	for i, kw := range keywords {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			formatTimeRange(kw.Segment.TimeRange),
			truncate(kw.Segment.Text, 48),
			kw.Keyword,
		})
	}
	return renderTable([]string{"#", "Range", "Lyric", "Keyword"}, rows, 1)
}

func formatTimeRange(r models.TimeRange) string {
	return fmt.Sprintf("%.1fs-%.1fs", r.Start, r.End)
}

func formatSeconds(sec float64) string {
	if sec >= 60 {
		m := int(sec) / 60
		return fmt.Sprintf("%dm%04.1fs", m, sec-float64(m*60))
	}
	return fmt.Sprintf("%.1fs", sec)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return string(runes[:max-1]) + "…"
}

func jobSource(job models.Job) string {
	switch {
	case job.SourceURL != nil:
		return truncate(*job.SourceURL, 44)
	case job.ScriptText != nil:
		return truncate("script: "+*job.ScriptText, 44)
	default:
		return ""
	}
}

func splitKeywords(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}
