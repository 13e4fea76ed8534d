package retrieval

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeStrategy scripts an outcome per (config, attempt) pair. Failed calls
// leave a partial file behind so tests can prove the fetcher removed it.
type fakeStrategy struct {
	name     string
	configs  []string
	outcome  func(config, attempt int) error
	calls    int
	attempts map[int]int
}

func (s *fakeStrategy) Name() string { return s.name }

func (s *fakeStrategy) NumConfigs() int { return len(s.configs) }

func (s *fakeStrategy) ConfigLabel(i int) string { return s.configs[i] }

func (s *fakeStrategy) Fetch(_ context.Context, config int, _, destDir string) (string, error) {
	s.calls++
	if s.attempts == nil {
		s.attempts = make(map[int]int)
	}
	s.attempts[config]++

	if err := s.outcome(config, s.attempts[config]); err != nil {
		if werr := os.WriteFile(filepath.Join(destDir, "partial.part"), []byte("junk"), 0644); werr != nil {
			return "", werr
		}
		return "", err
	}

	path := filepath.Join(destDir, "audio.mp3")
	if err := os.WriteFile(path, []byte("audio-bytes"), 0644); err != nil {
		return "", err
	}
	return path, nil
}

func newQuietFetcher(maxRetries int, strategies ...Strategy) *Fetcher {
	f := NewFetcher(maxRetries, strategies...)
	f.delay = func(int) time.Duration { return 0 }
	return f
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk failed: %v", err)
	}
	return n
}

func TestFetchFirstSuccessShortCircuits(t *testing.T) {
	first := &fakeStrategy{
		name:    "alpha",
		configs: []string{"only"},
		outcome: func(int, int) error { return nil },
	}
	second := &fakeStrategy{
		name:    "beta",
		configs: []string{"only"},
		outcome: func(int, int) error { return nil },
	}

	dir := t.TempDir()
	f := newQuietFetcher(3, first, second)

	path, err := f.Fetch(context.Background(), "ref", dir)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if path == "" {
		t.Fatal("empty path on success")
	}
	if first.calls != 1 {
		t.Errorf("first strategy called %d times, want 1", first.calls)
	}
	if second.calls != 0 {
		t.Errorf("second strategy called %d times, want 0", second.calls)
	}
}

func TestFetchFallsThroughToSecondStrategy(t *testing.T) {
	first := &fakeStrategy{
		name:    "alpha",
		configs: []string{"high", "low"},
		outcome: func(int, int) error { return errors.New("connection reset by peer") },
	}
	second := &fakeStrategy{
		name:    "beta",
		configs: []string{"high"},
		outcome: func(config, attempt int) error {
			if attempt < 2 {
				return errors.New("connection reset by peer")
			}
			return nil
		},
	}

	dir := t.TempDir()
	f := newQuietFetcher(3, first, second)

	path, err := f.Fetch(context.Background(), "ref", dir)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if first.calls != 6 {
		t.Errorf("first strategy called %d times, want 6 (2 configs x 3 retries)", first.calls)
	}
	if second.calls != 2 {
		t.Errorf("second strategy called %d times, want 2", second.calls)
	}

	// Only the winning download may remain on disk.
	if n := countFiles(t, dir); n != 1 {
		t.Errorf("%d files left under destDir, want 1 (no leaked partials)", n)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("returned path does not exist: %v", err)
	}
}

func TestFetchAggregateErrorNamesEveryStrategy(t *testing.T) {
	first := &fakeStrategy{
		name:    "alpha",
		configs: []string{"only"},
		outcome: func(int, int) error { return errors.New("timed out reading stream") },
	}
	second := &fakeStrategy{
		name:    "beta",
		configs: []string{"only"},
		outcome: func(int, int) error { return errors.New("connection reset by peer") },
	}

	dir := t.TempDir()
	f := newQuietFetcher(2, first, second)

	_, err := f.Fetch(context.Background(), "https://song.example/xyz", dir)
	if err == nil {
		t.Fatal("expected aggregate failure")
	}

	var unavail *UnavailableError
	if !errors.As(err, &unavail) {
		t.Fatalf("error is %T, want *UnavailableError", err)
	}
	if len(unavail.Failures) != 2 {
		t.Fatalf("recorded %d failures, want 2", len(unavail.Failures))
	}

	msg := err.Error()
	for _, want := range []string{"alpha", "beta", "timed out reading stream", "connection reset by peer"} {
		if !strings.Contains(msg, want) {
			t.Errorf("aggregate message missing %q: %s", want, msg)
		}
	}

	if n := countFiles(t, dir); n != 0 {
		t.Errorf("%d files left after total failure, want 0", n)
	}
}

func TestFetchPermanentErrorSkipsRemainingRetries(t *testing.T) {
	strat := &fakeStrategy{
		name:    "alpha",
		configs: []string{"high", "low"},
		outcome: func(config, attempt int) error {
			if config == 0 {
				return errors.New("ERROR: Video unavailable")
			}
			return errors.New("connection reset by peer")
		},
	}

	dir := t.TempDir()
	f := newQuietFetcher(3, strat)

	_, err := f.Fetch(context.Background(), "ref", dir)
	if err == nil {
		t.Fatal("expected failure")
	}
	if strat.attempts[0] != 1 {
		t.Errorf("config 0 attempted %d times, want 1 (permanent error)", strat.attempts[0])
	}
	if strat.attempts[1] != 3 {
		t.Errorf("config 1 attempted %d times, want 3 (transient error)", strat.attempts[1])
	}
}

func TestFetchCancelledContext(t *testing.T) {
	strat := &fakeStrategy{
		name:    "alpha",
		configs: []string{"only"},
		outcome: func(int, int) error { return errors.New("never reached") },
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newQuietFetcher(3, strat)
	_, err := f.Fetch(ctx, "ref", t.TempDir())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if strat.calls != 0 {
		t.Errorf("strategy called %d times on cancelled context, want 0", strat.calls)
	}
}

func TestAttemptTimeoutGrows(t *testing.T) {
	wants := map[int]time.Duration{
		1: 90 * time.Second,
		2: 120 * time.Second,
		3: 150 * time.Second,
	}
	for attempt, want := range wants {
		if got := attemptTimeout(attempt); got != want {
			t.Errorf("attemptTimeout(%d) = %s, want %s", attempt, got, want)
		}
	}
}

func TestRetryDelayBackoff(t *testing.T) {
	for attempt, base := range map[int]time.Duration{
		1: 2 * time.Second,
		2: 4 * time.Second,
		3: 8 * time.Second,
	} {
		d := retryDelay(attempt)
		if d < base || d > base+base/4 {
			t.Errorf("retryDelay(%d) = %s, want within [%s, %s]", attempt, d, base, base+base/4)
		}
	}

	// Deep attempts stay capped.
	if d := retryDelay(10); d > maxRetryDelay+maxRetryDelay/4 {
		t.Errorf("retryDelay(10) = %s exceeds cap", d)
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{errors.New("ERROR: Video unavailable"), false},
		{errors.New("This is a private video"), false},
		{errors.New("HTTP Error 403: Forbidden"), false},
		{errors.New("connection reset by peer"), true},
		{errors.New("timed out after 90s"), true},
		{errors.New("truncated download: got 10 of 20 bytes"), true},
	}
	for _, tt := range tests {
		if got := isRetryableError(tt.err); got != tt.want {
			t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
