package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/narravid/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(t.TempDir())
	require.NoError(t, err)
	return st
}

func newTestJob(id string, createdAt time.Time) *models.Job {
	return &models.Job{
		ID:        id,
		Text:      "some narration text",
		Status:    models.JobStatusQueued,
		CreatedAt: createdAt,
		Params: models.JobParams{
			Language:     "en-us",
			Voice:        "af_nova",
			SpeechRate:   1.0,
			VideoType:    "Horizontal",
			VideoQuality: "1080p",
		},
	}
}

func TestCreateAndGet(t *testing.T) {
	st := newTestStore(t)
	job := newTestJob("job-1", time.Now())

	require.NoError(t, st.Create(job))

	got, err := st.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, got.Status)
	assert.Equal(t, "some narration text", got.Text)

	// job.json must exist on disk immediately after Create
	_, err = os.Stat(filepath.Join(st.JobDir("job-1"), "job.json"))
	assert.NoError(t, err)
}

func TestGetUnknownJob(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Get("nope")
	assert.ErrorIs(t, err, models.ErrJobNotFound)
}

func TestListOrderedByCreation(t *testing.T) {
	st := newTestStore(t)
	base := time.Now()
	require.NoError(t, st.Create(newTestJob("b", base.Add(time.Second))))
	require.NoError(t, st.Create(newTestJob("a", base)))
	require.NoError(t, st.Create(newTestJob("c", base.Add(2*time.Second))))

	jobs := st.List()
	require.Len(t, jobs, 3)
	assert.Equal(t, "a", jobs[0].ID)
	assert.Equal(t, "b", jobs[1].ID)
	assert.Equal(t, "c", jobs[2].ID)
}

func TestLifecycleTransitions(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Create(newTestJob("j", time.Now())))

	require.NoError(t, st.UpdateStatus("j", models.JobStatusProcessing))
	require.NoError(t, st.MarkCompleted("j", "/tmp/j_Final.mp4"))

	got, err := st.Get("j")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, "/tmp/j_Final.mp4", got.ResultPath)

	// Terminal states accept no further transitions
	assert.Error(t, st.UpdateStatus("j", models.JobStatusProcessing))
	assert.Error(t, st.MarkFailed("j", "too late"))
}

func TestBackwardTransitionRejected(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Create(newTestJob("j", time.Now())))
	require.NoError(t, st.UpdateStatus("j", models.JobStatusProcessing))

	assert.Error(t, st.UpdateStatus("j", models.JobStatusQueued))

	got, err := st.Get("j")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, got.Status)
}

func TestMarkCompletedRequiresResultPath(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Create(newTestJob("j", time.Now())))
	require.NoError(t, st.UpdateStatus("j", models.JobStatusProcessing))

	assert.Error(t, st.MarkCompleted("j", ""))
}

func TestMarkFailedDefaultsDetail(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Create(newTestJob("j", time.Now())))

	require.NoError(t, st.MarkFailed("j", ""))
	got, err := st.Get("j")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.NotEmpty(t, got.ErrorDetail)
}

func TestDeleteIsIdempotentlyNotFound(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Create(newTestJob("j", time.Now())))

	require.NoError(t, st.Delete("j"))
	assert.False(t, st.Exists("j"))

	_, err := os.Stat(st.JobDir("j"))
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, st.Delete("j"), models.ErrJobNotFound)
}

func TestDeleteAll(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Create(newTestJob("a", time.Now())))
	require.NoError(t, st.Create(newTestJob("b", time.Now())))

	assert.Equal(t, 2, st.DeleteAll())
	assert.Empty(t, st.List())
	assert.Equal(t, 0, st.DeleteAll())
}

func TestLoadAllRebuildsIndex(t *testing.T) {
	root := t.TempDir()
	st, err := New(root)
	require.NoError(t, err)

	base := time.Now()
	require.NoError(t, st.Create(newTestJob("a", base)))
	require.NoError(t, st.Create(newTestJob("b", base.Add(time.Second))))
	require.NoError(t, st.UpdateStatus("b", models.JobStatusProcessing))

	// Fresh store over the same root simulates a restart
	st2, err := New(root)
	require.NoError(t, err)
	jobs, err := st2.LoadAll()
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].ID)
	assert.Equal(t, models.JobStatusProcessing, jobs[1].Status)
}

func TestLoadAllSkipsUnreadableEntries(t *testing.T) {
	root := t.TempDir()
	st, err := New(root)
	require.NoError(t, err)
	require.NoError(t, st.Create(newTestJob("good", time.Now())))

	// A job dir with corrupt metadata must not poison the rescan
	badDir := filepath.Join(root, "bad")
	require.NoError(t, os.MkdirAll(badDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(badDir, "job.json"), []byte("{not json"), 0644))

	jobs, err := st.LoadAll()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "good", jobs[0].ID)
}

func TestGetReturnsCopy(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Create(newTestJob("j", time.Now())))

	got, err := st.Get("j")
	require.NoError(t, err)
	got.Status = models.JobStatusFailed

	again, err := st.Get("j")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, again.Status)
}
