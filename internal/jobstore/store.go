package jobstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mondo989/MemeSync/internal/models"
)

const (
	watchInterval = 1 * time.Second
	sweepInterval = 15 * time.Second

	// watchBuffer smooths over a briefly slow subscriber; beyond it ticks
	// are dropped rather than ever queueing unboundedly.
	watchBuffer = 8
)

// ErrTerminal is returned for mutations against a job that already reached a
// terminal state. An abandoned runner sees it (or ErrNotFound after eviction)
// on its next update and stops at the stage boundary.
var ErrTerminal = errors.New("job is in a terminal state")

// Store is the in-memory table of every tracked job. A store-level RWMutex
// guards the map; each tracked job carries its own mutex, so a progress
// update from a running stage and a concurrent status read never race, and
// two jobs never contend with each other. All reads hand out deep copies.
type Store struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*trackedJob

	timeout time.Duration // wall-clock budget per job
	ttl     time.Duration // how long terminal jobs stay queryable

	onEvict func(uuid.UUID) // optional, invoked after a TTL eviction
}

type trackedJob struct {
	mu  sync.Mutex
	job models.Job
}

func New(timeout, ttl time.Duration) *Store {
	return &Store{
		jobs:    make(map[uuid.UUID]*trackedJob),
		timeout: timeout,
		ttl:     ttl,
	}
}

// SetEvictHook registers a callback run after the TTL sweep evicts a job,
// letting the owner release resources tied to the id (scratch directories,
// result files). Set once at startup, before the janitor runs.
func (s *Store) SetEvictHook(fn func(uuid.UUID)) {
	s.onEvict = fn
}

// Create registers a new job. The caller owns the id and created_at.
func (s *Store) Create(job models.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = &trackedJob{job: job}
}

// Get returns a snapshot of one job.
func (s *Store) Get(id uuid.UUID) (models.Job, error) {
	s.mu.RLock()
	t, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return models.Job{}, models.ErrNotFound
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job.Clone(), nil
}

// List returns snapshots of every tracked job, newest first.
func (s *Store) List() []models.Job {
	s.mu.RLock()
	tracked := make([]*trackedJob, 0, len(s.jobs))
	for _, t := range s.jobs {
		tracked = append(tracked, t)
	}
	s.mu.RUnlock()

	jobs := make([]models.Job, 0, len(tracked))
	for _, t := range tracked {
		t.mu.Lock()
		jobs = append(jobs, t.job.Clone())
		t.mu.Unlock()
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

// Len returns the number of tracked jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// update runs fn against one job under its lock. Terminal jobs are frozen.
func (s *Store) update(id uuid.UUID, fn func(*models.Job) error) error {
	s.mu.RLock()
	t, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return models.ErrNotFound
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job.Status.Terminal() {
		return ErrTerminal
	}
	return fn(&t.job)
}

func (s *Store) transition(j *models.Job, to models.JobStatus) error {
	if !models.ValidTransition(j.Status, to) {
		return fmt.Errorf("illegal transition %s -> %s for job %s", j.Status, to, j.ID)
	}
	j.Status = to
	return nil
}

// Start moves a created job into running.
func (s *Store) Start(id uuid.UUID) error {
	return s.update(id, func(j *models.Job) error {
		return s.transition(j, models.JobStatusRunning)
	})
}

// SetProgress records the current stage, percentage and message. Progress is
// clamped so it never decreases within a run.
func (s *Store) SetProgress(id uuid.UUID, stage models.Stage, percent int, message string) error {
	return s.update(id, func(j *models.Job) error {
		if percent < j.Progress {
			percent = j.Progress
		}
		if percent > 100 {
			percent = 100
		}
		j.Stage = stage
		j.Progress = percent
		j.Message = message
		return nil
	})
}

// AwaitReview pauses a running job for keyword review, exposing the extracted
// assignments on the snapshot.
func (s *Store) AwaitReview(id uuid.UUID, keywords []models.KeywordAssignment, percent int, message string) error {
	return s.update(id, func(j *models.Job) error {
		if err := s.transition(j, models.JobStatusAwaitingReview); err != nil {
			return err
		}
		j.Keywords = append([]models.KeywordAssignment(nil), keywords...)
		if percent > j.Progress {
			j.Progress = percent
		}
		j.Message = message
		return nil
	})
}

// MarkReviewed accepts the edited keyword list and moves the job to
// reviewing_complete. Length validation is the orchestrator's job.
func (s *Store) MarkReviewed(id uuid.UUID, keywords []models.KeywordAssignment) error {
	return s.update(id, func(j *models.Job) error {
		if err := s.transition(j, models.JobStatusReviewComplete); err != nil {
			return err
		}
		j.Keywords = append([]models.KeywordAssignment(nil), keywords...)
		j.Message = "Review received, resuming"
		return nil
	})
}

// ResumeRunning re-enters the pipeline after a completed review.
func (s *Store) ResumeRunning(id uuid.UUID) error {
	return s.update(id, func(j *models.Job) error {
		return s.transition(j, models.JobStatusRunning)
	})
}

// Complete finishes a job successfully.
func (s *Store) Complete(id uuid.UUID, result models.JobResult) error {
	return s.update(id, func(j *models.Job) error {
		if err := s.transition(j, models.JobStatusCompleted); err != nil {
			return err
		}
		now := time.Now()
		j.Progress = 100
		j.Message = "Video ready"
		j.Result = &result
		j.CompletedAt = &now
		return nil
	})
}

// Fail moves any non-terminal job to error. The error's message is surfaced
// verbatim as the job message.
func (s *Store) Fail(id uuid.UUID, jobErr *models.JobError) error {
	return s.update(id, func(j *models.Job) error {
		if err := s.transition(j, models.JobStatusError); err != nil {
			return err
		}
		now := time.Now()
		if jobErr.Stage != "" {
			j.Stage = jobErr.Stage
		}
		j.Message = jobErr.Message
		j.Error = jobErr
		j.CompletedAt = &now
		return nil
	})
}

// Evict removes one job from the store.
func (s *Store) Evict(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

// Reset discards every tracked job and returns how many were evicted.
// In-flight runners are abandoned; their next update fails and they stop.
func (s *Store) Reset() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.jobs)
	s.jobs = make(map[uuid.UUID]*trackedJob)
	return n
}

// Watch emits snapshots of one job every second (plus one immediately) until
// the job reaches a terminal state or is evicted, then closes. Subscribers
// only ever take snapshots, so a slow or stuck reader cannot block a writer;
// a reader that falls behind misses ticks instead of queueing them.
func (s *Store) Watch(ctx context.Context, id uuid.UUID) (<-chan models.Job, error) {
	first, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	ch := make(chan models.Job, watchBuffer)
	go func() {
		defer close(ch)

		emit := func(snap models.Job) bool {
			if snap.Status.Terminal() {
				// The terminal snapshot is the one delivery that must not be
				// dropped; wait for the reader or its departure.
				select {
				case ch <- snap:
				case <-ctx.Done():
				}
				return false
			}
			select {
			case ch <- snap:
			default:
			}
			return true
		}

		if !emit(first) {
			return
		}

		ticker := time.NewTicker(watchInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snap, err := s.Get(id)
				if err != nil {
					return // evicted mid-watch
				}
				if !emit(snap) {
					return
				}
			}
		}
	}()

	return ch, nil
}

// StartJanitor runs the background sweep until ctx is cancelled: jobs past
// the wall-clock budget fail with a timeout error, terminal jobs past the TTL
// are evicted.
func (s *Store) StartJanitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				timedOut, evicted := s.sweep(time.Now())
				if timedOut > 0 || evicted > 0 {
					log.Printf("[Store] Janitor: %d timed out, %d evicted", timedOut, evicted)
				}
			}
		}
	}()
}

// sweep applies the wall-clock budget and the terminal TTL as of now.
func (s *Store) sweep(now time.Time) (timedOut, evicted int) {
	s.mu.RLock()
	ids := make([]uuid.UUID, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	var expired []uuid.UUID
	for _, id := range ids {
		snap, err := s.Get(id)
		if err != nil {
			continue
		}

		if !snap.Status.Terminal() {
			if now.Sub(snap.CreatedAt) > s.timeout {
				err := s.Fail(id, &models.JobError{
					Kind:    models.ErrKindTimeout,
					Message: fmt.Sprintf("job exceeded its %s wall-clock budget; create a new job to try again", s.timeout),
				})
				if err == nil {
					timedOut++
				}
			}
			continue
		}

		ref := snap.CreatedAt
		if snap.CompletedAt != nil {
			ref = *snap.CompletedAt
		}
		if now.Sub(ref) > s.ttl {
			expired = append(expired, id)
		}
	}

	for _, id := range expired {
		s.Evict(id)
		evicted++
		if s.onEvict != nil {
			s.onEvict(id)
		}
	}
	return timedOut, evicted
}
