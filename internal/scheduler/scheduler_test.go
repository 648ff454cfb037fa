package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/narravid/internal/models"
	"github.com/driftline/narravid/internal/store"
)

// fakeProcessor records dispatch order and can block until released,
// standing in for the full pipeline.
type fakeProcessor struct {
	mu      sync.Mutex
	order   []string
	started chan string   // receives each job id as it starts, if set
	release chan struct{} // blocks Process until closed or signaled, if set
	result  string
	err     error
}

func (p *fakeProcessor) Process(ctx context.Context, job *models.Job) (string, error) {
	p.mu.Lock()
	p.order = append(p.order, job.ID)
	p.mu.Unlock()

	if p.started != nil {
		p.started <- job.ID
	}
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return p.result, p.err
}

func (p *fakeProcessor) dispatchOrder() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.order...)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	return st
}

func createJob(t *testing.T, st *store.Store, id string, createdAt time.Time) {
	t.Helper()
	require.NoError(t, st.Create(&models.Job{
		ID:        id,
		Text:      "text",
		Status:    models.JobStatusQueued,
		CreatedAt: createdAt,
		Params: models.JobParams{
			Language: "en-us", Voice: "af_nova", SpeechRate: 1.0,
			VideoType: "Horizontal", VideoQuality: "1080p",
		},
	}))
}

func waitForStatus(t *testing.T, st *store.Store, id string, want models.JobStatus) *models.Job {
	t.Helper()
	var job *models.Job
	require.Eventually(t, func() bool {
		j, err := st.Get(id)
		if err != nil {
			return false
		}
		job = j
		return j.Status == want
	}, 2*time.Second, 5*time.Millisecond, "job %s never reached %s", id, want)
	return job
}

func TestJobRunsToCompletion(t *testing.T) {
	st := newTestStore(t)
	proc := &fakeProcessor{result: "/tmp/a_Final.mp4"}
	s := New(context.Background(), st, proc, 1, 0)

	createJob(t, st, "a", time.Now())
	s.Enqueue("a")

	job := waitForStatus(t, st, "a", models.JobStatusCompleted)
	assert.Equal(t, "/tmp/a_Final.mp4", job.ResultPath)
	assert.Empty(t, job.ErrorDetail)
}

func TestJobFailureRecordsDetail(t *testing.T) {
	st := newTestStore(t)
	proc := &fakeProcessor{
		err: models.NewStepError(models.CodeAssemblyFailed, "merge", errors.New("ffmpeg exited 1")),
	}
	s := New(context.Background(), st, proc, 1, 0)

	createJob(t, st, "a", time.Now())
	s.Enqueue("a")

	job := waitForStatus(t, st, "a", models.JobStatusFailed)
	assert.Contains(t, job.ErrorDetail, "AssemblyFailed")
	assert.Contains(t, job.ErrorDetail, "merge")
	assert.Empty(t, job.ResultPath)
}

func TestFIFOWithSingleSlot(t *testing.T) {
	st := newTestStore(t)
	proc := &fakeProcessor{
		started: make(chan string, 3),
		release: make(chan struct{}),
		result:  "/tmp/r.mp4",
	}
	s := New(context.Background(), st, proc, 1, 0)

	base := time.Now()
	for i, id := range []string{"first", "second", "third"} {
		createJob(t, st, id, base.Add(time.Duration(i)*time.Second))
		s.Enqueue(id)
	}

	// Only one job may start while the slot is held
	assert.Equal(t, "first", <-proc.started)
	ready, inProgress := s.Readiness()
	assert.False(t, ready)
	assert.Equal(t, 1, inProgress)
	assert.Len(t, proc.dispatchOrder(), 1)

	proc.release <- struct{}{}
	assert.Equal(t, "second", <-proc.started)
	proc.release <- struct{}{}
	assert.Equal(t, "third", <-proc.started)
	proc.release <- struct{}{}

	waitForStatus(t, st, "third", models.JobStatusCompleted)
	assert.Equal(t, []string{"first", "second", "third"}, proc.dispatchOrder())
}

func TestConcurrencyCap(t *testing.T) {
	st := newTestStore(t)
	proc := &fakeProcessor{
		started: make(chan string, 4),
		release: make(chan struct{}),
		result:  "/tmp/r.mp4",
	}
	s := New(context.Background(), st, proc, 2, 0)

	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		createJob(t, st, id, base.Add(time.Duration(i)*time.Second))
		s.Enqueue(id)
	}

	<-proc.started
	<-proc.started
	ready, inProgress := s.Readiness()
	assert.False(t, ready)
	assert.Equal(t, 2, inProgress)
	assert.Len(t, proc.dispatchOrder(), 2)

	proc.release <- struct{}{}
	<-proc.started
	proc.release <- struct{}{}
	proc.release <- struct{}{}
	waitForStatus(t, st, "c", models.JobStatusCompleted)
}

func TestTriggerRemaining(t *testing.T) {
	st := newTestStore(t)
	proc := &fakeProcessor{result: "/tmp/r.mp4"}
	s := New(context.Background(), st, proc, 1, 0)

	// Nothing queued: distinct zero result
	assert.Equal(t, 0, s.TriggerRemaining())

	// Jobs persisted but never enqueued, as after a failed dispatch
	base := time.Now()
	createJob(t, st, "x", base)
	createJob(t, st, "y", base.Add(time.Second))

	dispatched := s.TriggerRemaining()
	assert.Equal(t, 1, dispatched) // capacity is one slot

	waitForStatus(t, st, "x", models.JobStatusCompleted)
	waitForStatus(t, st, "y", models.JobStatusCompleted)
	assert.Equal(t, 0, s.TriggerRemaining())
}

func TestRecoverFailsOrphansAndResumesQueued(t *testing.T) {
	root := t.TempDir()
	st, err := store.New(root)
	require.NoError(t, err)

	base := time.Now()
	createJob(t, st, "orphan", base)
	require.NoError(t, st.UpdateStatus("orphan", models.JobStatusProcessing))
	createJob(t, st, "waiting", base.Add(time.Second))

	// Restart: fresh store over the same directory
	st2, err := store.New(root)
	require.NoError(t, err)
	proc := &fakeProcessor{result: "/tmp/r.mp4"}
	s := New(context.Background(), st2, proc, 1, 0)
	require.NoError(t, s.Recover())

	orphan := waitForStatus(t, st2, "orphan", models.JobStatusFailed)
	assert.Contains(t, orphan.ErrorDetail, "InterruptedByRestart")

	waitForStatus(t, st2, "waiting", models.JobStatusCompleted)
}

func TestJobTimeout(t *testing.T) {
	st := newTestStore(t)
	proc := &fakeProcessor{release: make(chan struct{})} // never released
	s := New(context.Background(), st, proc, 1, 20*time.Millisecond)

	createJob(t, st, "slow", time.Now())
	s.Enqueue("slow")

	job := waitForStatus(t, st, "slow", models.JobStatusFailed)
	assert.Contains(t, job.ErrorDetail, "Timeout")
}

func TestDuplicateEnqueueIsIgnored(t *testing.T) {
	st := newTestStore(t)
	proc := &fakeProcessor{
		started: make(chan string, 2),
		release: make(chan struct{}),
		result:  "/tmp/dup_Final.mp4",
	}
	s := New(context.Background(), st, proc, 1, 0)

	// Persisted job picked up by a scan before the submitter's own
	// Enqueue call lands
	createJob(t, st, "dup", time.Now())
	assert.Equal(t, 1, s.TriggerRemaining())
	assert.Equal(t, "dup", <-proc.started)

	s.Enqueue("dup")
	assert.Equal(t, 0, s.TriggerRemaining())

	proc.release <- struct{}{}
	job := waitForStatus(t, st, "dup", models.JobStatusCompleted)
	s.Wait()

	// The one run's completion stands; no second dispatch happened
	assert.Equal(t, "/tmp/dup_Final.mp4", job.ResultPath)
	assert.Empty(t, job.ErrorDetail)
	assert.Equal(t, []string{"dup"}, proc.dispatchOrder())
}

func TestDuplicateIdInBacklogDispatchesOnce(t *testing.T) {
	st := newTestStore(t)
	proc := &fakeProcessor{
		started: make(chan string, 3),
		release: make(chan struct{}),
		result:  "/tmp/r.mp4",
	}
	s := New(context.Background(), st, proc, 1, 0)

	base := time.Now()
	createJob(t, st, "a", base)
	createJob(t, st, "b", base.Add(time.Second))
	s.Enqueue("a")
	s.Enqueue("a")
	s.Enqueue("b")
	s.Enqueue("b")

	<-proc.started
	proc.release <- struct{}{}
	<-proc.started
	proc.release <- struct{}{}

	waitForStatus(t, st, "b", models.JobStatusCompleted)
	s.Wait()
	assert.Equal(t, []string{"a", "b"}, proc.dispatchOrder())
}

func TestRejectedDispatchKeepsPlainDetail(t *testing.T) {
	st := newTestStore(t)
	proc := &fakeProcessor{result: "/tmp/r.mp4"}
	s := New(context.Background(), st, proc, 1, 0)

	// Job already processing on disk, e.g. metadata altered out of band
	createJob(t, st, "odd", time.Now())
	require.NoError(t, st.UpdateStatus("odd", models.JobStatusProcessing))

	s.Enqueue("odd")
	job := waitForStatus(t, st, "odd", models.JobStatusFailed)

	// A state-machine rejection is not an I/O failure
	assert.Contains(t, job.ErrorDetail, "invalid transition")
	assert.NotContains(t, job.ErrorDetail, "StorageError")
}

func TestDeleteMidProcessingSkipsFinalization(t *testing.T) {
	st := newTestStore(t)
	proc := &fakeProcessor{
		started: make(chan string, 1),
		release: make(chan struct{}),
		result:  "/tmp/r.mp4",
	}
	s := New(context.Background(), st, proc, 1, 0)

	createJob(t, st, "doomed", time.Now())
	s.Enqueue("doomed")
	<-proc.started

	require.NoError(t, st.Delete("doomed"))
	proc.release <- struct{}{}
	s.Wait()

	// The finished pipeline must not resurrect the deleted job
	assert.False(t, st.Exists("doomed"))
	_, err := st.Get("doomed")
	assert.ErrorIs(t, err, models.ErrJobNotFound)
}

func TestDeleteWhileQueuedIsSkippedAtDispatch(t *testing.T) {
	st := newTestStore(t)
	proc := &fakeProcessor{
		started: make(chan string, 2),
		release: make(chan struct{}),
		result:  "/tmp/r.mp4",
	}
	s := New(context.Background(), st, proc, 1, 0)

	base := time.Now()
	createJob(t, st, "running", base)
	createJob(t, st, "queued-gone", base.Add(time.Second))
	createJob(t, st, "survivor", base.Add(2*time.Second))
	s.Enqueue("running")
	s.Enqueue("queued-gone")
	s.Enqueue("survivor")

	<-proc.started
	require.NoError(t, st.Delete("queued-gone"))
	proc.release <- struct{}{}

	assert.Equal(t, "survivor", <-proc.started)
	proc.release <- struct{}{}
	waitForStatus(t, st, "survivor", models.JobStatusCompleted)
	assert.Equal(t, []string{"running", "survivor"}, proc.dispatchOrder())
}
