package workspace

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// Workspace manages per-job scratch directories under one root.
// <root>/jobs/<jobID>/ holds the fetched audio, downloaded meme images,
// rendered slides, and the output video for a single job. Completed results
// stay on disk until cleanup or TTL eviction so the download endpoint can
// serve them.
type Workspace struct {
	root string
}

func New(root string) (*Workspace, error) {
	if err := os.MkdirAll(filepath.Join(root, "jobs"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	return &Workspace{root: root}, nil
}

// JobDir returns the scratch directory for one job, creating it if needed.
func (w *Workspace) JobDir(jobID string) (string, error) {
	dir := filepath.Join(w.root, "jobs", jobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create job dir: %w", err)
	}
	return dir, nil
}

// Path returns a file path inside a job's scratch directory.
func (w *Workspace) Path(jobID, filename string) string {
	return filepath.Join(w.root, "jobs", jobID, filename)
}

// Purge removes one job's scratch directory and everything in it.
func (w *Workspace) Purge(jobID string) {
	dir := filepath.Join(w.root, "jobs", jobID)
	if err := os.RemoveAll(dir); err != nil {
		log.Printf("[Workspace] Failed to purge %s: %v", dir, err)
	}
}

// PurgeAll removes every job's scratch directory. Backs operator cleanup.
func (w *Workspace) PurgeAll() {
	dir := filepath.Join(w.root, "jobs")
	if err := os.RemoveAll(dir); err != nil {
		log.Printf("[Workspace] Failed to purge %s: %v", dir, err)
		return
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("[Workspace] Failed to recreate %s: %v", dir, err)
	}
}

// Cleanup removes individual temp files, ignoring errors.
func (w *Workspace) Cleanup(paths ...string) {
	for _, path := range paths {
		os.Remove(path)
	}
}
