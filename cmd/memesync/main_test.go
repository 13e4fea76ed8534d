package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mondo989/MemeSync/internal/models"
)

// fakeAPI stands in for the MemeSync server so the CLI can be exercised end
// to end over real HTTP. Tests mutate it only through the locked helpers;
// the server is already serving by then.
type fakeAPI struct {
	server *httptest.Server

	mu       sync.Mutex
	jobs     map[uuid.UUID]models.Job
	events   map[uuid.UUID][]models.Job
	video    []byte
	evicted  int
	created  []models.CreateJobRequest
	reviews  []models.ReviewRequest
	seenKeys []string

	createStatus int
	createError  string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{
		jobs:   make(map[uuid.UUID]models.Job),
		events: make(map[uuid.UUID][]models.Job),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/jobs", f.handleCreate)
	mux.HandleFunc("GET /v1/jobs", f.handleList)
	mux.HandleFunc("DELETE /v1/jobs", f.handleCleanup)
	mux.HandleFunc("GET /v1/jobs/{id}", f.handleGet)
	mux.HandleFunc("POST /v1/jobs/{id}/review", f.handleReview)
	mux.HandleFunc("GET /v1/jobs/{id}/events", f.handleEvents)
	mux.HandleFunc("GET /v1/jobs/{id}/download", f.handleDownload)

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.seenKeys = append(f.seenKeys, r.Header.Get("X-API-Key"))
		f.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAPI) addJob(job models.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = job
}

func (f *fakeAPI) stageEvents(id uuid.UUID, snaps ...models.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[id] = snaps
}

func (f *fakeAPI) setVideo(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.video = data
}

func (f *fakeAPI) setEvicted(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evicted = n
}

func (f *fakeAPI) rejectCreate(status int, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createStatus = status
	f.createError = message
}

func (f *fakeAPI) createdRequests() []models.CreateJobRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.CreateJobRequest(nil), f.created...)
}

func (f *fakeAPI) reviewRequests() []models.ReviewRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ReviewRequest(nil), f.reviews...)
}

func (f *fakeAPI) apiKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seenKeys...)
}

func (f *fakeAPI) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req models.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	f.mu.Lock()
	f.created = append(f.created, req)
	status, msg := f.createStatus, f.createError
	f.mu.Unlock()
	if status != 0 {
		writeAPIError(w, status, msg)
		return
	}
	job := testJob(models.JobStatusCreated, 0, "Queued")
	job.SourceURL = req.SourceURL
	job.ScriptText = req.ScriptText
	job.Detailed = req.Detailed
	f.addJob(job)
	writeAPIJSON(w, http.StatusCreated, job)
}

func (f *fakeAPI) handleList(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	jobs := make([]models.Job, 0, len(f.jobs))
	for _, job := range f.jobs {
		jobs = append(jobs, job)
	}
	f.mu.Unlock()
	writeAPIJSON(w, http.StatusOK, models.ListJobsResponse{Jobs: jobs, Total: len(jobs)})
}

func (f *fakeAPI) handleCleanup(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	n := f.evicted
	f.mu.Unlock()
	writeAPIJSON(w, http.StatusOK, models.CleanupResponse{Evicted: n})
}

func (f *fakeAPI) lookup(w http.ResponseWriter, r *http.Request) (models.Job, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "Invalid job ID")
		return models.Job{}, false
	}
	f.mu.Lock()
	job, ok := f.jobs[id]
	f.mu.Unlock()
	if !ok {
		writeAPIError(w, http.StatusNotFound, "Job not found")
		return models.Job{}, false
	}
	return job, true
}

func (f *fakeAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	job, ok := f.lookup(w, r)
	if !ok {
		return
	}
	writeAPIJSON(w, http.StatusOK, job)
}

func (f *fakeAPI) handleReview(w http.ResponseWriter, r *http.Request) {
	job, ok := f.lookup(w, r)
	if !ok {
		return
	}
	var req models.ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	f.mu.Lock()
	f.reviews = append(f.reviews, req)
	f.mu.Unlock()
	job.Status = models.JobStatusReviewComplete
	job.Keywords = req.Keywords
	writeAPIJSON(w, http.StatusOK, job)
}

func (f *fakeAPI) handleEvents(w http.ResponseWriter, r *http.Request) {
	job, ok := f.lookup(w, r)
	if !ok {
		return
	}
	f.mu.Lock()
	snaps := f.events[job.ID]
	f.mu.Unlock()
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	for _, snap := range snaps {
		data, _ := json.Marshal(snap)
		fmt.Fprintf(w, "data: %s\n\n", data)
	}
}

func (f *fakeAPI) handleDownload(w http.ResponseWriter, r *http.Request) {
	job, ok := f.lookup(w, r)
	if !ok {
		return
	}
	if job.Result == nil {
		writeAPIError(w, http.StatusNotFound, "Video not ready")
		return
	}
	f.mu.Lock()
	video := f.video
	f.mu.Unlock()
	w.Header().Set("Content-Type", "video/mp4")
	w.Write(video)
}

func writeAPIJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	writeAPIJSON(w, status, map[string]string{"error": message})
}

func testJob(status models.JobStatus, progress int, message string) models.Job {
	return models.Job{
		ID:        uuid.New(),
		Mode:      models.ModeDirectSource,
		Status:    status,
		Progress:  progress,
		Message:   message,
		CreatedAt: time.Now(),
	}
}

func testKeywords() []models.KeywordAssignment {
	return []models.KeywordAssignment{
		{Segment: models.LyricSegment{TimeRange: models.TimeRange{Start: 1, End: 4}, Text: "hello world"}, Keyword: "hello"},
		{Segment: models.LyricSegment{TimeRange: models.TimeRange{Start: 4, End: 9}, Text: "neon lights"}, Keyword: "neon"},
	}
}

func runCLI(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--server", server}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func TestCLICreateJob(t *testing.T) {
	f := newFakeAPI(t)

	out, err := runCLI(t, f.server.URL, "create", "--url", "https://youtu.be/abc", "--detailed")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.Contains(out, "Created job ") || !strings.Contains(out, "Follow it with") {
		t.Fatalf("unexpected create output: %q", out)
	}

	created := f.createdRequests()
	if len(created) != 1 {
		t.Fatalf("expected 1 create request, got %d", len(created))
	}
	req := created[0]
	if req.SourceURL == nil || *req.SourceURL != "https://youtu.be/abc" {
		t.Fatalf("source URL not forwarded: %+v", req)
	}
	if !req.Detailed {
		t.Fatal("detailed flag not forwarded")
	}
	if req.TrimStart != nil || req.TrimEnd != nil {
		t.Fatalf("unexpected trim bounds: %+v", req)
	}
}

func TestCLICreateJobForwardsTrim(t *testing.T) {
	f := newFakeAPI(t)

	if _, err := runCLI(t, f.server.URL, "create", "--url", "https://youtu.be/abc", "--start", "30", "--end", "90"); err != nil {
		t.Fatalf("create: %v", err)
	}
	req := f.createdRequests()[0]
	if req.TrimStart == nil || *req.TrimStart != 30 {
		t.Fatalf("trim start not forwarded: %+v", req)
	}
	if req.TrimEnd == nil || *req.TrimEnd != 90 {
		t.Fatalf("trim end not forwarded: %+v", req)
	}
}

func TestCLICreateJobSurfacesServerRejection(t *testing.T) {
	f := newFakeAPI(t)
	f.rejectCreate(http.StatusBadRequest, "invalid request: trim_start and trim_end must be given together")

	_, err := runCLI(t, f.server.URL, "create", "--url", "https://youtu.be/abc", "--start", "30")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "must be given together") || !strings.Contains(err.Error(), "status 400") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCLIListJobs(t *testing.T) {
	f := newFakeAPI(t)
	running := testJob(models.JobStatusRunning, 35, "Extracting keywords")
	url := "https://youtu.be/abc"
	running.SourceURL = &url
	done := testJob(models.JobStatusCompleted, 100, "Video ready")
	f.addJob(running)
	f.addJob(done)

	out, err := runCLI(t, f.server.URL, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, want := range []string{running.ID.String(), done.ID.String(), "running", "completed", "35%", "2 job(s)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("list output missing %q:\n%s", want, out)
		}
	}
}

func TestCLIListJobsEmpty(t *testing.T) {
	f := newFakeAPI(t)

	out, err := runCLI(t, f.server.URL, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "No jobs") {
		t.Fatalf("unexpected empty list output: %q", out)
	}
}

func TestCLIStatusShowsResult(t *testing.T) {
	f := newFakeAPI(t)
	job := testJob(models.JobStatusCompleted, 100, "Video ready")
	job.Result = &models.JobResult{VideoPath: "/tmp/output.mp4", DurationSec: 63, ByteSize: 2 * 1024 * 1024}
	f.addJob(job)

	out, err := runCLI(t, f.server.URL, "status", job.ID.String())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"completed", "100%", "1m03.0s", "2.0 MiB", "memesync download " + job.ID.String()} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestCLIStatusShowsPendingReview(t *testing.T) {
	f := newFakeAPI(t)
	job := testJob(models.JobStatusAwaitingReview, 45, "Waiting for keyword review")
	job.Keywords = testKeywords()
	f.addJob(job)

	out, err := runCLI(t, f.server.URL, "status", job.ID.String())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"awaiting_review", "hello world", "neon", "memesync review " + job.ID.String()} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestCLIStatusUnknownJob(t *testing.T) {
	f := newFakeAPI(t)

	_, err := runCLI(t, f.server.URL, "status", uuid.NewString())
	if err == nil || !strings.Contains(err.Error(), "Job not found") {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestCLIStatusRejectsMalformedID(t *testing.T) {
	f := newFakeAPI(t)

	_, err := runCLI(t, f.server.URL, "status", "not-a-uuid")
	if err == nil || !strings.Contains(err.Error(), "invalid job id") {
		t.Fatalf("expected parse error, got %v", err)
	}
	if n := len(f.apiKeys()); n != 0 {
		t.Fatalf("malformed id should be rejected before any request, saw %d", n)
	}
}

func TestCLIWatchFollowsToCompletion(t *testing.T) {
	f := newFakeAPI(t)
	job := testJob(models.JobStatusRunning, 5, "Fetching source audio")
	f.addJob(job)

	mid := job
	mid.Progress = 70
	mid.Message = "Rendering slides"
	done := job
	done.Status = models.JobStatusCompleted
	done.Progress = 100
	done.Message = "Video ready"
	done.Result = &models.JobResult{VideoPath: "/tmp/output.mp4", DurationSec: 30, ByteSize: 1024}
	f.stageEvents(job.ID, job, mid, mid, done)

	out, err := runCLI(t, f.server.URL, "watch", job.ID.String())
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	for _, want := range []string{"Fetching source audio", "Rendering slides", "Video ready", "Done: 30.0s, 1.0 KiB"} {
		if !strings.Contains(out, want) {
			t.Fatalf("watch output missing %q:\n%s", want, out)
		}
	}
	// The duplicated middle snapshot is a heartbeat and must print once.
	if n := strings.Count(out, "Rendering slides"); n != 1 {
		t.Fatalf("expected 1 line for the repeated snapshot, got %d:\n%s", n, out)
	}
}

func TestCLIWatchReportsFailure(t *testing.T) {
	f := newFakeAPI(t)
	job := testJob(models.JobStatusRunning, 5, "Fetching source audio")
	f.addJob(job)

	failed := job
	failed.Status = models.JobStatusError
	failed.Message = "Job failed"
	failed.Error = &models.JobError{
		Kind:    models.ErrKindUnavailableSource,
		Stage:   models.StageFetchAudio,
		Message: "source unavailable after all strategies",
	}
	f.stageEvents(job.ID, job, failed)

	_, err := runCLI(t, f.server.URL, "watch", job.ID.String())
	if err == nil || !strings.Contains(err.Error(), "source unavailable") {
		t.Fatalf("expected failure error, got %v", err)
	}
}

func TestCLIWatchSuggestsReviewDuringPause(t *testing.T) {
	f := newFakeAPI(t)
	job := testJob(models.JobStatusRunning, 35, "Extracting keywords")
	f.addJob(job)

	paused := job
	paused.Status = models.JobStatusAwaitingReview
	paused.Progress = 45
	paused.Message = "Waiting for keyword review"
	resumed := job
	resumed.Progress = 55
	resumed.Message = "Matching meme images"
	done := job
	done.Status = models.JobStatusCompleted
	done.Progress = 100
	done.Message = "Video ready"
	f.stageEvents(job.ID, job, paused, resumed, done)

	out, err := runCLI(t, f.server.URL, "watch", job.ID.String())
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if !strings.Contains(out, "memesync review "+job.ID.String()) {
		t.Fatalf("watch output missing review hint:\n%s", out)
	}
}

func TestCLIReviewShowsKeywords(t *testing.T) {
	f := newFakeAPI(t)
	job := testJob(models.JobStatusAwaitingReview, 45, "Waiting for keyword review")
	job.Keywords = testKeywords()
	f.addJob(job)

	out, err := runCLI(t, f.server.URL, "review", job.ID.String())
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	for _, want := range []string{"hello world", "neon lights", "Submit with"} {
		if !strings.Contains(out, want) {
			t.Fatalf("review output missing %q:\n%s", want, out)
		}
	}
	if n := len(f.reviewRequests()); n != 0 {
		t.Fatalf("inspection mode must not submit a review, saw %d", n)
	}
}

func TestCLIReviewSubmitsEditedKeywords(t *testing.T) {
	f := newFakeAPI(t)
	job := testJob(models.JobStatusAwaitingReview, 45, "Waiting for keyword review")
	job.Keywords = testKeywords()
	f.addJob(job)

	out, err := runCLI(t, f.server.URL, "review", job.ID.String(), "--keywords", "doge, disco ball")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if !strings.Contains(out, "Review accepted") {
		t.Fatalf("unexpected review output: %q", out)
	}

	reviews := f.reviewRequests()
	if len(reviews) != 1 {
		t.Fatalf("expected 1 review submission, got %d", len(reviews))
	}
	got := reviews[0].Keywords
	if got[0].Keyword != "doge" || got[1].Keyword != "disco ball" {
		t.Fatalf("edited keywords not forwarded: %+v", got)
	}
	// Segment timings ride along untouched; the server keeps its own canon.
	if got[0].Segment.Text != "hello world" || got[0].Segment.Start != 1 {
		t.Fatalf("segment data mangled: %+v", got[0].Segment)
	}
}

func TestCLIReviewApproveKeepsKeywords(t *testing.T) {
	f := newFakeAPI(t)
	job := testJob(models.JobStatusAwaitingReview, 45, "Waiting for keyword review")
	job.Keywords = testKeywords()
	f.addJob(job)

	if _, err := runCLI(t, f.server.URL, "review", job.ID.String(), "--approve"); err != nil {
		t.Fatalf("review --approve: %v", err)
	}
	reviews := f.reviewRequests()
	if len(reviews) != 1 {
		t.Fatalf("expected 1 review submission, got %d", len(reviews))
	}
	got := reviews[0].Keywords
	if got[0].Keyword != "hello" || got[1].Keyword != "neon" {
		t.Fatalf("approve should resubmit keywords unchanged: %+v", got)
	}
}

func TestCLIReviewRejectsCountMismatch(t *testing.T) {
	f := newFakeAPI(t)
	job := testJob(models.JobStatusAwaitingReview, 45, "Waiting for keyword review")
	job.Keywords = testKeywords()
	f.addJob(job)

	_, err := runCLI(t, f.server.URL, "review", job.ID.String(), "--keywords", "doge")
	if err == nil || !strings.Contains(err.Error(), "exposes 2 keywords but the edit has 1") {
		t.Fatalf("expected count mismatch error, got %v", err)
	}
	if n := len(f.reviewRequests()); n != 0 {
		t.Fatalf("mismatched edit must not reach the server, saw %d", n)
	}
}

func TestCLIReviewReadsKeywordsFile(t *testing.T) {
	f := newFakeAPI(t)
	job := testJob(models.JobStatusAwaitingReview, 45, "Waiting for keyword review")
	job.Keywords = testKeywords()
	f.addJob(job)

	path := filepath.Join(t.TempDir(), "keywords.json")
	if err := os.WriteFile(path, []byte(`["doge", "disco ball"]`), 0o644); err != nil {
		t.Fatalf("write keywords file: %v", err)
	}

	if _, err := runCLI(t, f.server.URL, "review", job.ID.String(), "--keywords-file", path); err != nil {
		t.Fatalf("review --keywords-file: %v", err)
	}
	reviews := f.reviewRequests()
	if len(reviews) != 1 {
		t.Fatalf("expected 1 review submission, got %d", len(reviews))
	}
	got := reviews[0].Keywords
	if got[0].Keyword != "doge" || got[1].Keyword != "disco ball" {
		t.Fatalf("file keywords not forwarded: %+v", got)
	}
}

func TestCLIReviewReadsDumpedSnapshotFile(t *testing.T) {
	f := newFakeAPI(t)
	job := testJob(models.JobStatusAwaitingReview, 45, "Waiting for keyword review")
	job.Keywords = testKeywords()
	f.addJob(job)

	// The file format matches the "keywords" array of a job snapshot.
	edited := testKeywords()
	edited[0].Keyword = "doge"
	data, err := json.Marshal(edited)
	if err != nil {
		t.Fatalf("marshal keywords: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keywords.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write keywords file: %v", err)
	}

	if _, err := runCLI(t, f.server.URL, "review", job.ID.String(), "--keywords-file", path); err != nil {
		t.Fatalf("review --keywords-file: %v", err)
	}
	got := f.reviewRequests()[0].Keywords
	if got[0].Keyword != "doge" || got[1].Keyword != "neon" {
		t.Fatalf("snapshot-file keywords not forwarded: %+v", got)
	}
}

func TestCLIDownloadSavesFile(t *testing.T) {
	f := newFakeAPI(t)
	job := testJob(models.JobStatusCompleted, 100, "Video ready")
	job.Result = &models.JobResult{VideoPath: "/tmp/output.mp4", DurationSec: 30, ByteSize: 9}
	f.addJob(job)
	f.setVideo([]byte("mp4-bytes"))

	path := filepath.Join(t.TempDir(), "out.mp4")
	out, err := runCLI(t, f.server.URL, "download", job.ID.String(), "--output", path)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if !strings.Contains(out, "Saved "+path) {
		t.Fatalf("unexpected download output: %q", out)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(data) != "mp4-bytes" {
		t.Fatalf("downloaded bytes mismatch: %q", data)
	}
}

func TestCLIDownloadNotReady(t *testing.T) {
	f := newFakeAPI(t)
	job := testJob(models.JobStatusRunning, 55, "Matching meme images")
	f.addJob(job)

	_, err := runCLI(t, f.server.URL, "download", job.ID.String(), "--output", filepath.Join(t.TempDir(), "out.mp4"))
	if err == nil || !strings.Contains(err.Error(), "Video not ready") {
		t.Fatalf("expected not-ready error, got %v", err)
	}
}

func TestCLICleanup(t *testing.T) {
	f := newFakeAPI(t)
	f.setEvicted(3)

	out, err := runCLI(t, f.server.URL, "cleanup")
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if !strings.Contains(out, "Evicted 3 job(s)") {
		t.Fatalf("unexpected cleanup output: %q", out)
	}
}

func TestCLISendsAPIKey(t *testing.T) {
	f := newFakeAPI(t)

	if _, err := runCLI(t, f.server.URL, "--api-key", "secret-key", "list"); err != nil {
		t.Fatalf("list: %v", err)
	}
	keys := f.apiKeys()
	if len(keys) != 1 || keys[0] != "secret-key" {
		t.Fatalf("API key not sent: %v", keys)
	}
}
