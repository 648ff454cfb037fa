package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/driftline/narravid/internal/models"
	"github.com/driftline/narravid/internal/store"
)

// Processor runs one job's full pipeline and returns the final
// artifact path. It must not touch the scheduler's state; status
// transitions belong to the scheduler.
type Processor interface {
	Process(ctx context.Context, job *models.Job) (resultPath string, err error)
}

// Scheduler admits jobs under a concurrency cap. The FIFO backlog and
// the processing set are the only shared mutable state, guarded by a
// single mutex; workers never hold it across adapter or subprocess
// calls.
type Scheduler struct {
	store      *store.Store
	proc       Processor
	maxJobs    int
	jobTimeout time.Duration // 0 = no per-job timeout
	baseCtx    context.Context

	mu         sync.Mutex
	backlog    []string
	queued     map[string]struct{} // ids currently in backlog
	processing map[string]struct{}

	wg sync.WaitGroup
}

func New(ctx context.Context, st *store.Store, proc Processor, maxJobs int, jobTimeout time.Duration) *Scheduler {
	if maxJobs < 1 {
		maxJobs = 1
	}
	return &Scheduler{
		store:      st,
		proc:       proc,
		maxJobs:    maxJobs,
		jobTimeout: jobTimeout,
		baseCtx:    ctx,
		queued:     make(map[string]struct{}),
		processing: make(map[string]struct{}),
	}
}

// Enqueue adds a job to the backlog and dispatches immediately when a
// worker slot is free. Ids already in the backlog or processing are
// ignored: exactly one goroutine ever owns a job, even when Enqueue
// races a concurrent TriggerRemaining scan over the same id.
func (s *Scheduler) Enqueue(jobID string) {
	s.mu.Lock()
	if !s.trackedLocked(jobID) {
		s.backlog = append(s.backlog, jobID)
		s.queued[jobID] = struct{}{}
		s.dispatchLocked()
	}
	s.mu.Unlock()
}

// trackedLocked reports whether the id is already in the backlog or
// being processed. Caller holds s.mu.
func (s *Scheduler) trackedLocked(id string) bool {
	if _, ok := s.processing[id]; ok {
		return true
	}
	_, ok := s.queued[id]
	return ok
}

// Readiness reports whether a new job would start immediately, and
// how many are currently processing.
func (s *Scheduler) Readiness() (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processing) < s.maxJobs, len(s.processing)
}

// TriggerRemaining re-scans the store for queued jobs the backlog lost
// track of (after a restart or a failed dispatch) and dispatches up to
// the free capacity. Returns the number of jobs dispatched; zero means
// there was nothing to do. Safe to call repeatedly.
func (s *Scheduler) TriggerRemaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	// store.List is oldest-first, preserving FIFO by admission time.
	for _, job := range s.store.List() {
		if job.Status != models.JobStatusQueued {
			continue
		}
		if s.trackedLocked(job.ID) {
			continue
		}
		s.backlog = append(s.backlog, job.ID)
		s.queued[job.ID] = struct{}{}
	}

	return s.dispatchLocked()
}

// Recover rebuilds scheduler state from disk after a restart. Jobs
// left processing by a prior crash cannot be resumed safely and are
// failed with InterruptedByRestart; queued jobs are re-enqueued in
// admission order and dispatching resumes.
func (s *Scheduler) Recover() error {
	jobs, err := s.store.LoadAll()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range jobs {
		switch job.Status {
		case models.JobStatusProcessing:
			detail := models.NewPipelineError(models.CodeInterruptedByRestart,
				errors.New("job was processing when the server stopped")).Error()
			if err := s.store.MarkFailed(job.ID, detail); err != nil {
				log.Printf("[Scheduler] Failed to mark orphaned job %s: %v", job.ID, err)
				continue
			}
			log.Printf("[Scheduler] Job %s orphaned by restart, marked failed", job.ID)
		case models.JobStatusQueued:
			if s.trackedLocked(job.ID) {
				continue
			}
			s.backlog = append(s.backlog, job.ID)
			s.queued[job.ID] = struct{}{}
			log.Printf("[Scheduler] Job %s restored to backlog", job.ID)
		}
	}

	s.dispatchLocked()
	return nil
}

// Wait blocks until all in-flight workers have finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// dispatchLocked starts queued jobs while capacity allows. Caller
// holds s.mu.
func (s *Scheduler) dispatchLocked() int {
	dispatched := 0
	for len(s.processing) < s.maxJobs && len(s.backlog) > 0 {
		id := s.backlog[0]
		s.backlog = s.backlog[1:]
		delete(s.queued, id)

		// Deleted while queued: nothing to run.
		if !s.store.Exists(id) {
			continue
		}
		// Already owned by a worker: never double-dispatch.
		if _, ok := s.processing[id]; ok {
			continue
		}

		s.processing[id] = struct{}{}
		s.wg.Add(1)
		go s.runJob(id)
		dispatched++
	}
	return dispatched
}

// runJob owns exactly one job for its full lifetime. The processing
// transition is persisted before the pipeline starts; the terminal
// transition is persisted before the slot is released.
func (s *Scheduler) runJob(id string) {
	defer s.wg.Done()
	defer s.onJobDone(id)

	job, err := s.store.Get(id)
	if err != nil {
		log.Printf("[Scheduler] Job %s vanished before dispatch: %v", id, err)
		return
	}

	if err := s.store.UpdateStatus(id, models.JobStatusProcessing); err != nil {
		// Fatal to this job only, never the scheduler. Store I/O errors
		// already carry the StorageError code; state-machine rejections
		// surface as-is.
		log.Printf("[Scheduler] Failed to persist processing transition for %s: %v", id, err)
		detail := err.Error()
		if ferr := s.store.MarkFailed(id, detail); ferr != nil {
			log.Printf("[Scheduler] Failed to mark job %s failed: %v", id, ferr)
		}
		return
	}

	ctx := s.baseCtx
	var cancel context.CancelFunc
	if s.jobTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.jobTimeout)
		defer cancel()
	}

	log.Printf("[Scheduler] Job %s processing", id)
	resultPath, procErr := s.proc.Process(ctx, job)

	// A delete while processing removes the job directory; the job must
	// not be resurrected by its own completion handler.
	if !s.store.Exists(id) {
		log.Printf("[Scheduler] Job %s deleted mid-flight, skipping finalization", id)
		return
	}

	if procErr != nil {
		detail := procErr.Error()
		if errors.Is(procErr, context.DeadlineExceeded) {
			detail = models.NewPipelineError(models.CodeTimeout, procErr).Error()
		}
		log.Printf("[Scheduler] Job %s failed: %s", id, detail)
		if err := s.store.MarkFailed(id, detail); err != nil {
			log.Printf("[Scheduler] Failed to persist failure for %s: %v", id, err)
		}
		return
	}

	if err := s.store.MarkCompleted(id, resultPath); err != nil {
		log.Printf("[Scheduler] Failed to persist completion for %s: %v", id, err)
		return
	}
	log.Printf("[Scheduler] Job %s completed: %s", id, resultPath)
}

// onJobDone frees the worker slot and dispatches the next queued job.
func (s *Scheduler) onJobDone(id string) {
	s.mu.Lock()
	delete(s.processing, id)
	s.dispatchLocked()
	s.mu.Unlock()
}
