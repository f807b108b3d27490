package jobs

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/scriptweave/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestFileQueue(t *testing.T) *FileQueue {
	t.Helper()
	q, err := NewFileQueue(filepath.Join(t.TempDir(), "jobs.json"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestFileQueueLifecycle(t *testing.T) {
	q := newTestFileQueue(t)

	job, err := q.Enqueue(models.Job{
		Type:     models.JobTypeGenerateScript,
		ScriptID: "script-1",
		Prompt:   "a calming descent",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.False(t, job.CreatedAt.IsZero())

	listed, err := q.List()
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, job.ID, listed[0].ID)

	require.NoError(t, q.Update(job.ID, models.JobStatusProcessing))
	listed, err = q.List()
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, listed[0].Status)
	assert.True(t, listed[0].Active())

	require.NoError(t, q.Remove(job.ID))
	listed, err = q.List()
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestFileQueueUnknownJob(t *testing.T) {
	q := newTestFileQueue(t)

	assert.True(t, errors.Is(q.Update("missing", models.JobStatusFailed), ErrJobNotFound))
	assert.True(t, errors.Is(q.Remove("missing"), ErrJobNotFound))
}

func TestFileQueueSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")

	q1, err := NewFileQueue(path, testLogger())
	require.NoError(t, err)
	job, err := q1.Enqueue(models.Job{Type: models.JobTypeRegenerateSection, ScriptID: "s", SectionID: "sec"})
	require.NoError(t, err)
	require.NoError(t, q1.Close())

	q2, err := NewFileQueue(path, testLogger())
	require.NoError(t, err)
	defer q2.Close()

	listed, err := q2.List()
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, job.ID, listed[0].ID)
	assert.True(t, listed[0].TargetsSection("s", "sec"))
}

func TestFileQueueCorruptFileResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	q, err := NewFileQueue(path, testLogger())
	require.NoError(t, err)
	defer q.Close()

	listed, err := q.List()
	require.NoError(t, err)
	assert.Empty(t, listed)

	_, err = q.Enqueue(models.Job{Type: models.JobTypeGenerateScript, ScriptID: "s"})
	require.NoError(t, err)
}

func TestFileQueueSubscribeSignalsChange(t *testing.T) {
	q := newTestFileQueue(t)
	ch := q.Subscribe()

	_, err := q.Enqueue(models.Job{Type: models.JobTypeGenerateScript, ScriptID: "s"})
	require.NoError(t, err)

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no change signal after enqueue")
	}
}

func TestMemoryQueueSubscribeCoalesces(t *testing.T) {
	q := NewMemoryQueue()
	ch := q.Subscribe()

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(models.Job{Type: models.JobTypeGenerateScript, ScriptID: "s"})
		require.NoError(t, err)
	}

	select {
	case <-ch:
	default:
		t.Fatal("expected a pending signal")
	}
	select {
	case <-ch:
		t.Fatal("signals should coalesce to one pending notification")
	default:
	}

	listed, err := q.List()
	require.NoError(t, err)
	assert.Len(t, listed, 3)
}
