package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"
)

const (
	baseRetryDelay = 2 * time.Second
	maxRetryDelay  = 30 * time.Second
)

// Strategy is one complete method of obtaining source audio. Each strategy
// carries an ordered list of configurations, tried from most to least
// desirable.
type Strategy interface {
	Name() string
	NumConfigs() int
	ConfigLabel(config int) string
	// Fetch downloads the audio for ref into destDir using the given
	// configuration and returns the path of the finished file.
	Fetch(ctx context.Context, config int, ref, destDir string) (string, error)
}

// StrategyFailure records the last error a fully exhausted strategy produced.
type StrategyFailure struct {
	Strategy string
	LastErr  error
}

// UnavailableError is returned when every strategy, configuration and retry
// has been exhausted. Its message names each attempted strategy so the job's
// failure message stays actionable.
type UnavailableError struct {
	Ref      string
	Failures []StrategyFailure
}

func (e *UnavailableError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Strategy, f.LastErr))
	}
	return fmt.Sprintf("no retrieval strategy could fetch %s (%s)", e.Ref, strings.Join(parts, "; "))
}

// Fetcher walks an ordered list of strategies until one produces a local
// audio file. Attempts within a configuration retry with a per-attempt
// timeout that grows with the attempt number, so a transiently slow upstream
// gets more room while a doomed first attempt fails fast.
type Fetcher struct {
	strategies []Strategy
	maxRetries int

	delay func(attempt int) time.Duration
}

func NewFetcher(maxRetries int, strategies ...Strategy) *Fetcher {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Fetcher{
		strategies: strategies,
		maxRetries: maxRetries,
		delay:      retryDelay,
	}
}

// Fetch obtains a local copy of the source audio for ref, writing under
// destDir. Each attempt runs in its own scratch directory which is removed
// on failure, so no partial download survives into the next attempt. The
// first success short-circuits everything else.
func (f *Fetcher) Fetch(ctx context.Context, ref, destDir string) (string, error) {
	if len(f.strategies) == 0 {
		return "", fmt.Errorf("no retrieval strategies configured")
	}

	var failures []StrategyFailure
	for _, strat := range f.strategies {
		path, err := f.runStrategy(ctx, strat, ref, destDir)
		if err == nil {
			log.Printf("[Retrieval] %s succeeded: %s", strat.Name(), path)
			return path, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		log.Printf("[Retrieval] %s exhausted: %v", strat.Name(), err)
		failures = append(failures, StrategyFailure{Strategy: strat.Name(), LastErr: err})
	}

	return "", &UnavailableError{Ref: ref, Failures: failures}
}

// runStrategy tries every configuration of one strategy in order, returning
// the first successful path or the last attempt's error once everything
// failed.
func (f *Fetcher) runStrategy(ctx context.Context, strat Strategy, ref, destDir string) (string, error) {
	var lastErr error

	for config := 0; config < strat.NumConfigs(); config++ {
		label := strat.ConfigLabel(config)

		for attempt := 1; attempt <= f.maxRetries; attempt++ {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}

			timeout := attemptTimeout(attempt)
			log.Printf("[Retrieval] %s / %s: attempt %d/%d (timeout %s)",
				strat.Name(), label, attempt, f.maxRetries, timeout)

			path, err := f.runAttempt(ctx, strat, config, ref, destDir, timeout)
			if err == nil {
				return path, nil
			}
			lastErr = fmt.Errorf("%s: %w", label, err)

			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if !isRetryableError(err) {
				log.Printf("[Retrieval] %s / %s: permanent failure, skipping remaining attempts: %v",
					strat.Name(), label, err)
				break
			}
			log.Printf("[Retrieval] %s / %s: attempt %d failed: %v", strat.Name(), label, attempt, err)

			if attempt < f.maxRetries {
				if err := sleepCtx(ctx, f.delay(attempt)); err != nil {
					return "", err
				}
			}
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("strategy exposes no configurations")
	}
	return "", lastErr
}

// runAttempt executes one strategy configuration inside a scratch directory
// with the attempt's deadline applied. The scratch directory is removed
// whenever the attempt fails.
func (f *Fetcher) runAttempt(ctx context.Context, strat Strategy, config int, ref, destDir string, timeout time.Duration) (string, error) {
	scratch, err := os.MkdirTemp(destDir, "fetch-")
	if err != nil {
		return "", fmt.Errorf("failed to create scratch dir: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	path, err := strat.Fetch(attemptCtx, config, ref, scratch)
	if err != nil {
		os.RemoveAll(scratch)
		if attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return "", fmt.Errorf("timed out after %s: %w", timeout, err)
		}
		return "", err
	}

	info, statErr := os.Stat(path)
	if statErr != nil || info.Size() == 0 {
		os.RemoveAll(scratch)
		return "", fmt.Errorf("strategy reported %s but no usable file exists", path)
	}
	return path, nil
}

// attemptTimeout grows linearly with the attempt number: 90s, 120s, 150s.
func attemptTimeout(attempt int) time.Duration {
	return time.Duration(60+30*attempt) * time.Second
}

// retryDelay backs off exponentially with up to 25% jitter.
func retryDelay(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<uint(attempt-1))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay / 4)))
	return delay + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isRetryableError reports whether another attempt could plausibly succeed.
// Upstream refusals that will not change are not worth retrying; everything
// else (timeouts, resets, truncated downloads) is.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	msg := strings.ToLower(err.Error())
	permanent := []string{
		"video unavailable",
		"private video",
		"sign in to confirm",
		"age restricted",
		"copyright",
		"404",
		"403",
	}
	for _, p := range permanent {
		if strings.Contains(msg, p) {
			return false
		}
	}
	return true
}
