package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeOpenverse serves canned result pools keyed by query string and records
// every query it sees.
type fakeOpenverse struct {
	mu      sync.Mutex
	pools   map[string][]string
	queries []string
	status  int
}

func newFakeOpenverse(pools map[string][]string) *fakeOpenverse {
	return &fakeOpenverse{pools: pools, status: http.StatusOK}
}

func (f *fakeOpenverse) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")

		f.mu.Lock()
		f.queries = append(f.queries, q)
		status := f.status
		urls := f.pools[q]
		f.mu.Unlock()

		if status != http.StatusOK {
			http.Error(w, "nope", status)
			return
		}

		results := make([]openverseResult, 0, len(urls))
		for i, u := range urls {
			results = append(results, openverseResult{ID: q + string(rune('a'+i)), URL: u})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openverseResponse{
			ResultCount: len(results),
			Results:     results,
		})
	}
}

func (f *fakeOpenverse) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.queries))
	copy(out, f.queries)
	return out
}

func newTestMemeService(t *testing.T, fake *fakeOpenverse) *MemeService {
	t.Helper()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)
	return NewMemeService(server.URL)
}

func TestPickAssetPrefersMemeQuery(t *testing.T) {
	fake := newFakeOpenverse(map[string][]string{
		"cats meme": {"https://img.test/cat-meme.jpg"},
		"cats":      {"https://img.test/cat-photo.jpg"},
	})
	svc := newTestMemeService(t, fake)

	got, err := svc.PickAsset(context.Background(), "cats", nil)
	if err != nil {
		t.Fatalf("PickAsset failed: %v", err)
	}
	if got != "https://img.test/cat-meme.jpg" {
		t.Errorf("asset = %q, want the meme-suffixed query's result", got)
	}
	if seen := fake.seen(); len(seen) != 1 || seen[0] != "cats meme" {
		t.Errorf("queries = %v, want just [cats meme]", seen)
	}
}

func TestPickAssetHonorsExclusions(t *testing.T) {
	fake := newFakeOpenverse(map[string][]string{
		"cats meme": {"https://img.test/a.jpg", "https://img.test/b.jpg"},
	})
	svc := newTestMemeService(t, fake)

	got, err := svc.PickAsset(context.Background(), "cats", []string{"https://img.test/a.jpg"})
	if err != nil {
		t.Fatalf("PickAsset failed: %v", err)
	}
	if got != "https://img.test/b.jpg" {
		t.Errorf("asset = %q, want the first non-excluded result", got)
	}
}

// A fully excluded pool repeats an earlier asset instead of failing the job
// or drifting to the generic sentinel query.
func TestPickAssetExhaustedPoolRepeats(t *testing.T) {
	fake := newFakeOpenverse(map[string][]string{
		"cats meme": {"https://img.test/a.jpg"},
		"cats":      {"https://img.test/a.jpg"},
	})
	svc := newTestMemeService(t, fake)

	got, err := svc.PickAsset(context.Background(), "cats", []string{"https://img.test/a.jpg"})
	if err != nil {
		t.Fatalf("PickAsset failed: %v", err)
	}
	if got != "https://img.test/a.jpg" {
		t.Errorf("asset = %q, want the repeated pool entry", got)
	}
	for _, q := range fake.seen() {
		if q == sentinelKeyword {
			t.Errorf("sentinel query ran although the keyword had results: %v", fake.seen())
		}
	}
}

// Keywords with zero coverage fall through to the sentinel query.
func TestPickAssetSentinelFallback(t *testing.T) {
	fake := newFakeOpenverse(map[string][]string{
		sentinelKeyword: {"https://img.test/generic.jpg"},
	})
	svc := newTestMemeService(t, fake)

	got, err := svc.PickAsset(context.Background(), "xylotheque", nil)
	if err != nil {
		t.Fatalf("PickAsset failed: %v", err)
	}
	if got != "https://img.test/generic.jpg" {
		t.Errorf("asset = %q, want the sentinel result", got)
	}

	want := []string{"xylotheque meme", "xylotheque", sentinelKeyword}
	seen := fake.seen()
	if len(seen) != len(want) {
		t.Fatalf("queries = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("query %d = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestPickAssetNoResultsAnywhere(t *testing.T) {
	fake := newFakeOpenverse(map[string][]string{})
	svc := newTestMemeService(t, fake)

	_, err := svc.PickAsset(context.Background(), "xylotheque", nil)
	if err == nil {
		t.Fatal("expected an error when every query is empty")
	}
	if !strings.Contains(err.Error(), "no assets found") {
		t.Errorf("error = %v, want a no-assets message", err)
	}
}

// Client errors from the search API are not worth retrying; the failure
// should surface after one attempt per query.
func TestPickAssetNonRetryableStatus(t *testing.T) {
	fake := newFakeOpenverse(nil)
	fake.status = http.StatusUnauthorized
	svc := newTestMemeService(t, fake)

	_, err := svc.PickAsset(context.Background(), "cats", nil)
	if err == nil {
		t.Fatal("expected an error on HTTP 401")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %v, want the status code surfaced", err)
	}
	if seen := fake.seen(); len(seen) != 3 {
		t.Errorf("%d requests sent, want 3 (one per query, no retries)", len(seen))
	}
}

func TestSearchSkipsResultsWithoutURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openverseResponse{
			ResultCount: 2,
			Results: []openverseResult{
				{ID: "no-url", Title: "broken"},
				{ID: "ok", URL: "https://img.test/ok.jpg"},
			},
		})
	}))
	t.Cleanup(server.Close)

	svc := NewMemeService(server.URL)
	urls, err := svc.search(context.Background(), "cats")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(urls) != 1 || urls[0] != "https://img.test/ok.jpg" {
		t.Errorf("urls = %v, want only the entry with a URL", urls)
	}
}
