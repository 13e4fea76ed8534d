package main

import (
	"strings"
	"testing"

	"github.com/mondo989/MemeSync/internal/models"
)

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{2 * 1024 * 1024, "2.0 MiB"},
		{3 * 1024 * 1024 * 1024, "3.0 GiB"},
	}
	for _, tc := range cases {
		if got := formatBytes(tc.in); got != tc.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatSeconds(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{5.2, "5.2s"},
		{59.9, "59.9s"},
		{60, "1m00.0s"},
		{63, "1m03.0s"},
		{125.5, "2m05.5s"},
	}
	for _, tc := range cases {
		if got := formatSeconds(tc.in); got != tc.want {
			t.Errorf("formatSeconds(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate kept-short = %q", got)
	}
	got := truncate("a very long line of text", 10)
	if len([]rune(got)) != 10 || !strings.HasSuffix(got, "…") {
		t.Errorf("truncate long = %q", got)
	}
}

func TestSplitKeywords(t *testing.T) {
	got := splitKeywords(" doge , disco ball,neon ")
	want := []string{"doge", "disco ball", "neon"}
	if len(got) != len(want) {
		t.Fatalf("splitKeywords = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitKeywords[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRenderProgressLinePlain(t *testing.T) {
	job := models.Job{Status: models.JobStatusRunning, Progress: 55, Message: "Matching meme images"}
	got := renderProgressLine(job, false)
	if !strings.Contains(got, "55%") || !strings.Contains(got, "running") || !strings.Contains(got, "Matching meme images") {
		t.Errorf("renderProgressLine = %q", got)
	}
	if strings.Contains(got, "\x1b[") {
		t.Errorf("plain render should carry no escape codes: %q", got)
	}
}

func TestRenderProgressLineColors(t *testing.T) {
	job := models.Job{Status: models.JobStatusError, Progress: 20, Message: "Job failed"}
	got := renderProgressLine(job, true)
	if !strings.Contains(got, ansiRed) || !strings.Contains(got, ansiReset) {
		t.Errorf("colored render missing escape codes: %q", got)
	}
}

func TestRenderKeywordTable(t *testing.T) {
	out := renderKeywordTable(testKeywords())
	for _, want := range []string{"Keyword", "hello world", "1.0s-4.0s", "neon"} {
		if !strings.Contains(out, want) {
			t.Errorf("keyword table missing %q:\n%s", want, out)
		}
	}
}
