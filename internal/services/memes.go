package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	searchTimeout    = 30 * time.Second
	maxSearchRetries = 3
	searchPageSize   = 20
)

// MemeService finds meme images for keywords through the Openverse image
// search API.
type MemeService struct {
	baseURL string
	client  *http.Client
}

func NewMemeService(baseURL string) *MemeService {
	if baseURL == "" {
		baseURL = "https://api.openverse.org"
	}
	return &MemeService{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: searchTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type openverseResult struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Thumbnail string `json:"thumbnail"`
}

type openverseResponse struct {
	ResultCount int               `json:"result_count"`
	Results     []openverseResult `json:"results"`
}

// PickAsset returns an image URL for the keyword, avoiding excluded URLs
// while the result pool allows it. A keyword with no results at all degrades
// to the sentinel query; an exhausted pool knowingly repeats an earlier
// asset rather than failing the job.
func (s *MemeService) PickAsset(ctx context.Context, keyword string, exclude []string) (string, error) {
	excluded := make(map[string]bool, len(exclude))
	for _, u := range exclude {
		excluded[u] = true
	}

	// The meme-suffixed query finds the right register; the bare keyword is
	// the fallback for niche terms with no meme coverage. The sentinel runs
	// only when both yield nothing.
	queries := []string{keyword + " meme", keyword, sentinelKeyword}

	var firstCandidate string
	var lastErr error
	for i, q := range queries {
		if i == len(queries)-1 && firstCandidate != "" {
			// The keyword itself yielded assets; repeating one beats
			// drifting off-topic with a generic result.
			break
		}
		urls, err := s.search(ctx, q)
		if err != nil {
			lastErr = err
			log.Printf("[Memes] Search %q failed: %v", q, err)
			continue
		}
		for _, u := range urls {
			if firstCandidate == "" {
				firstCandidate = u
			}
			if !excluded[u] {
				return u, nil
			}
		}
	}

	if firstCandidate != "" {
		log.Printf("[Memes] Pool for %q exhausted (%d excluded), repeating an earlier asset", keyword, len(exclude))
		return firstCandidate, nil
	}
	if lastErr != nil {
		return "", fmt.Errorf("asset search for %q failed: %w", keyword, lastErr)
	}
	return "", fmt.Errorf("no assets found for keyword %q", keyword)
}

// search runs one Openverse query with retries on transient failures.
func (s *MemeService) search(ctx context.Context, query string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/v1/images/?%s", s.baseURL, url.Values{
		"q":         {query},
		"page_size": {fmt.Sprintf("%d", searchPageSize)},
	}.Encode())

	var lastErr error
	for attempt := 0; attempt <= maxSearchRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			log.Printf("[Memes] Search retry %d/%d for %q (waiting %v)...", attempt, maxSearchRetries, query, delay)

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("search cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", "MemeSync/1.0 (https://github.com/mondo989/MemeSync)")
		req.Header.Set("Accept", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("search request failed: %w", err)
			if isRetryableError(err) {
				log.Printf("[Memes] Search attempt %d failed (retryable): %v", attempt+1, err)
				continue
			}
			return nil, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("failed to read search response: %w", readErr)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("search returned status %d: %s", resp.StatusCode, truncateString(string(body), 200))
			if isRetryableStatus(resp.StatusCode) {
				continue
			}
			return nil, lastErr
		}

		var parsed openverseResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse search response: %w", err)
		}

		urls := make([]string, 0, len(parsed.Results))
		for _, r := range parsed.Results {
			if r.URL != "" {
				urls = append(urls, r.URL)
			}
		}
		return urls, nil
	}

	return nil, fmt.Errorf("search failed after %d attempts: %w", maxSearchRetries+1, lastErr)
}
