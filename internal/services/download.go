package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

const (
	downloadTimeout    = 120 * time.Second
	maxDownloadRetries = 4
	baseRetryDelay     = 1 * time.Second
	maxRetryDelay      = 30 * time.Second
	maxAssetSizeBytes  = 25 << 20 // refuse absurdly large "images"
)

// DownloadService fetches matched asset images so the renderer works from
// local bytes instead of hot-linking flaky remote hosts mid-render.
type DownloadService struct {
	client *http.Client
}

func NewDownloadService() *DownloadService {
	return &DownloadService{
		client: &http.Client{
			Timeout: downloadTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Download fetches one asset with retries and exponential backoff, returning
// the raw bytes and the reported content type.
func (s *DownloadService) Download(ctx context.Context, assetURL string) ([]byte, string, error) {
	var lastErr error
	for attempt := 0; attempt <= maxDownloadRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			log.Printf("[Download] Retry %d/%d for %s (waiting %v)...", attempt, maxDownloadRetries, assetURL, delay)

			select {
			case <-ctx.Done():
				return nil, "", fmt.Errorf("download cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		dlCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
		req, err := http.NewRequestWithContext(dlCtx, "GET", assetURL, nil)
		if err != nil {
			cancel()
			return nil, "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", "MemeSync/1.0 (https://github.com/mondo989/MemeSync)")

		resp, err := s.client.Do(req)
		if err != nil {
			cancel()
			lastErr = fmt.Errorf("failed to download: %w", err)
			if isRetryableError(err) {
				log.Printf("[Download] Attempt %d failed (retryable): %v", attempt+1, err)
				continue
			}
			return nil, "", lastErr
		}

		if resp.StatusCode == http.StatusOK {
			data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxAssetSizeBytes+1))
			resp.Body.Close()
			cancel()
			if readErr != nil {
				lastErr = fmt.Errorf("failed to read download body: %w", readErr)
				log.Printf("[Download] Attempt %d read failed: %v", attempt+1, readErr)
				continue
			}
			if len(data) == 0 {
				lastErr = fmt.Errorf("downloaded asset is empty")
				continue
			}
			if len(data) > maxAssetSizeBytes {
				return nil, "", fmt.Errorf("asset exceeds %d bytes", maxAssetSizeBytes)
			}
			return data, contentType(resp, assetURL), nil
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()

		lastErr = fmt.Errorf("download failed with status %d: %s", resp.StatusCode, truncateString(string(body), 200))
		if isRetryableStatus(resp.StatusCode) {
			log.Printf("[Download] Attempt %d returned status %d (retryable)", attempt+1, resp.StatusCode)
			continue
		}
		return nil, "", lastErr
	}

	return nil, "", fmt.Errorf("download failed after %d attempts: %w", maxDownloadRetries+1, lastErr)
}

// contentType resolves the asset's MIME type from the response header, with
// a URL-extension guess as backstop.
func contentType(resp *http.Response, assetURL string) string {
	ct := resp.Header.Get("Content-Type")
	if ct != "" && ct != "application/octet-stream" {
		if i := strings.IndexByte(ct, ';'); i >= 0 {
			ct = ct[:i]
		}
		return strings.TrimSpace(ct)
	}

	lower := strings.ToLower(assetURL)
	switch {
	case strings.Contains(lower, ".png"):
		return "image/png"
	case strings.Contains(lower, ".gif"):
		return "image/gif"
	case strings.Contains(lower, ".webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// retryDelay calculates exponential backoff with jitter: base * 2^attempt + random jitter
func retryDelay(attempt int) time.Duration {
	delay := float64(baseRetryDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	// Add 0–25% jitter to avoid thundering herd
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

// isRetryableError checks if a network-level error is worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe")
}

// isRetryableStatus checks if an HTTP status code is worth retrying
func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || // 429
		status == http.StatusRequestTimeout || // 408
		status == http.StatusBadGateway || // 502
		status == http.StatusServiceUnavailable || // 503
		status == http.StatusGatewayTimeout // 504
}
