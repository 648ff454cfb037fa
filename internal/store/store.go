package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/driftline/narravid/internal/models"
)

const metadataFile = "job.json"

// Store persists jobs on the filesystem: one directory per job id
// under root, holding job.json plus every artifact the pipeline
// produces. The directory is the durable source of truth; the
// in-memory index is a cache rebuilt from disk on startup.
type Store struct {
	root string

	mu   sync.RWMutex
	jobs map[string]*models.Job
}

func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	return &Store{
		root: root,
		jobs: make(map[string]*models.Job),
	}, nil
}

// JobDir returns the working directory owned by the given job.
func (s *Store) JobDir(id string) string {
	return filepath.Join(s.root, id)
}

// Create makes the job directory and persists the initial metadata.
// The job is visible to Get/List only after the write succeeds.
func (s *Store) Create(job *models.Job) error {
	dir := s.JobDir(job.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return models.NewPipelineError(models.CodeStorage, fmt.Errorf("failed to create job dir: %w", err))
	}
	if err := s.writeMetadata(job); err != nil {
		return err
	}

	s.mu.Lock()
	s.jobs[job.ID] = cloneJob(job)
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the job, or ErrJobNotFound.
func (s *Store) Get(id string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, models.ErrJobNotFound
	}
	return cloneJob(job), nil
}

// List returns copies of all tracked jobs, oldest first.
func (s *Store) List() []*models.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, cloneJob(job))
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs
}

// UpdateStatus moves a job to the given status, persisting the
// transition before committing it to the in-memory view. Backward
// transitions are rejected.
func (s *Store) UpdateStatus(id string, status models.JobStatus) error {
	return s.transition(id, func(job *models.Job) error {
		if !job.Status.CanTransitionTo(status) {
			return fmt.Errorf("invalid transition %s → %s for job %s", job.Status, status, id)
		}
		job.Status = status
		return nil
	})
}

// MarkCompleted finishes a job with its result artifact. resultPath
// must be non-empty: a job never appears completed without a result.
func (s *Store) MarkCompleted(id, resultPath string) error {
	if resultPath == "" {
		return fmt.Errorf("refusing to complete job %s without a result path", id)
	}
	return s.transition(id, func(job *models.Job) error {
		if !job.Status.CanTransitionTo(models.JobStatusCompleted) {
			return fmt.Errorf("invalid transition %s → completed for job %s", job.Status, id)
		}
		job.Status = models.JobStatusCompleted
		job.ResultPath = resultPath
		return nil
	})
}

// MarkFailed finishes a job with a diagnostic. errorDetail must be
// non-empty: failures are never silently dropped.
func (s *Store) MarkFailed(id, errorDetail string) error {
	if errorDetail == "" {
		errorDetail = "unknown error"
	}
	return s.transition(id, func(job *models.Job) error {
		if !job.Status.CanTransitionTo(models.JobStatusFailed) {
			return fmt.Errorf("invalid transition %s → failed for job %s", job.Status, id)
		}
		job.Status = models.JobStatusFailed
		job.ErrorDetail = errorDetail
		return nil
	})
}

func (s *Store) transition(id string, mutate func(*models.Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return models.ErrJobNotFound
	}

	updated := cloneJob(job)
	if err := mutate(updated); err != nil {
		return err
	}

	// Durable first: the in-memory view only reflects committed state.
	if err := s.writeMetadata(updated); err != nil {
		return err
	}
	s.jobs[id] = updated
	return nil
}

// Delete removes the job directory and metadata. Calling it again on
// the same id returns ErrJobNotFound.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return models.ErrJobNotFound
	}
	if err := os.RemoveAll(s.JobDir(id)); err != nil {
		return models.NewPipelineError(models.CodeStorage, fmt.Errorf("failed to remove job dir: %w", err))
	}
	delete(s.jobs, id)
	return nil
}

// DeleteAll removes every job, best effort: individual failures are
// logged and the sweep continues. Returns the number removed.
func (s *Store) DeleteAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id := range s.jobs {
		if err := os.RemoveAll(s.JobDir(id)); err != nil {
			log.Printf("[Store] Failed to remove job %s: %v", id, err)
			continue
		}
		delete(s.jobs, id)
		removed++
	}
	return removed
}

// Exists reports whether the job is still tracked. The worker's
// completion handler uses this to detect a mid-flight delete and skip
// finalization instead of resurrecting the job.
func (s *Store) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.jobs[id]
	return ok
}

// LoadAll rebuilds the in-memory index from the job directories on
// disk. Unreadable entries are logged and skipped. Returns the loaded
// jobs, oldest first.
func (s *Store) LoadAll() ([]*models.Job, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, models.NewPipelineError(models.CodeStorage, fmt.Errorf("failed to scan store root: %w", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs = make(map[string]*models.Job)
	var jobs []*models.Job
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()
		job, err := s.readMetadata(id)
		if err != nil {
			log.Printf("[Store] Skipping job %s: %v", id, err)
			continue
		}
		s.jobs[id] = job
		jobs = append(jobs, cloneJob(job))
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// writeMetadata persists job.json atomically: write a temp file in
// the job dir, then rename over the old metadata.
func (s *Store) writeMetadata(job *models.Job) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return models.NewPipelineError(models.CodeStorage, fmt.Errorf("failed to marshal job metadata: %w", err))
	}

	dir := s.JobDir(job.ID)
	tmp := filepath.Join(dir, metadataFile+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return models.NewPipelineError(models.CodeStorage, fmt.Errorf("failed to write job metadata: %w", err))
	}
	if err := os.Rename(tmp, filepath.Join(dir, metadataFile)); err != nil {
		return models.NewPipelineError(models.CodeStorage, fmt.Errorf("failed to commit job metadata: %w", err))
	}
	return nil
}

func (s *Store) readMetadata(id string) (*models.Job, error) {
	data, err := os.ReadFile(filepath.Join(s.JobDir(id), metadataFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read job metadata: %w", err)
	}
	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to parse job metadata: %w", err)
	}
	if job.ID == "" {
		job.ID = id
	}
	return &job, nil
}

func cloneJob(job *models.Job) *models.Job {
	c := *job
	return &c
}
