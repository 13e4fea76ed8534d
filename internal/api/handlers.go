package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mondo989/MemeSync/internal/models"
)

// JobService is the surface the HTTP layer needs from the orchestrator.
type JobService interface {
	CreateJob(ctx context.Context, req models.CreateJobRequest) (models.Job, error)
	GetJob(id uuid.UUID) (models.Job, error)
	ListJobs() []models.Job
	Resume(ctx context.Context, id uuid.UUID, edited []models.KeywordAssignment) (models.Job, error)
	Watch(ctx context.Context, id uuid.UUID) (<-chan models.Job, error)
	Cleanup() int
}

type Handler struct {
	jobs JobService
}

func NewHandler(jobs JobService) *Handler {
	return &Handler{jobs: jobs}
}

// CreateJob handles POST /v1/jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req models.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, job)
}

// ListJobs handles GET /v1/jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobs.ListJobs()
	respondJSON(w, http.StatusOK, models.ListJobsResponse{
		Jobs:  jobs,
		Total: len(jobs),
	})
}

// GetJob handles GET /v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := h.jobs.GetJob(jobID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// StreamJob handles GET /v1/jobs/{id}/events. It emits job snapshots as
// server-sent events until the job reaches a terminal state; the final event
// always carries the result or the error.
func (h *Handler) StreamJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	ch, err := h.jobs.Watch(r.Context(), jobID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// The channel closes after the terminal snapshot, or when the client
	// disconnects and r.Context() is cancelled.
	for snap := range ch {
		data, err := json.Marshal(snap)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
}

// ReviewJob handles POST /v1/jobs/{id}/review. The payload must carry exactly
// one keyword per exposed segment; timings in the payload are ignored.
func (h *Handler) ReviewJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	var req models.ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	job, err := h.jobs.Resume(r.Context(), jobID, req.Keywords)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// DownloadJob handles GET /v1/jobs/{id}/download
func (h *Handler) DownloadJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := h.jobs.GetJob(jobID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if job.Result == nil {
		respondError(w, http.StatusNotFound, "Video not ready")
		return
	}
	if _, err := os.Stat(job.Result.VideoPath); err != nil {
		respondError(w, http.StatusNotFound, "Video file no longer available; it may have been cleaned up")
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"memesync_%s.mp4\"", jobID))
	http.ServeFile(w, r, job.Result.VideoPath)
}

// CleanupJobs handles DELETE /v1/jobs
func (h *Handler) CleanupJobs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.CleanupResponse{Evicted: h.jobs.Cleanup()})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondServiceError maps orchestrator errors onto HTTP statuses.
func respondServiceError(w http.ResponseWriter, err error) {
	var invalid *models.InvalidRequestError
	var mismatch *models.ReviewMismatchError
	switch {
	case errors.Is(err, models.ErrNotFound):
		respondError(w, http.StatusNotFound, "Job not found")
	case errors.As(err, &invalid), errors.As(err, &mismatch):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
