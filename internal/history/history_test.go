package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	rec, err := Open(filepath.Join(t.TempDir(), "history.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })
	return rec
}

func TestRecordAndRecent(t *testing.T) {
	rec := openTestRecorder(t)

	err := rec.Record(Entry{
		ScanRoot:    "/tmp/project",
		MappingPath: "mapping.json",
		Mode:        "force",
		JournalPath: "/tmp/project/planned_transactions.json",
		Completed:   7,
		Failed:      0,
		Skipped:     1,
		Stats:       map[string]any{"planned": 8},
		StartedAt:   time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	runs, err := rec.Recent(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	run := runs[0]
	assert.Equal(t, "/tmp/project", run.ScanRoot)
	assert.Equal(t, "force", run.Mode)
	assert.Equal(t, 7, run.Completed)
	assert.Equal(t, 1, run.Skipped)
	assert.Equal(t, "completed", run.Status)
	assert.NotEmpty(t, run.ID)
	require.NotNil(t, run.FinishedAt)
}

func TestFailedRunStatus(t *testing.T) {
	rec := openTestRecorder(t)

	require.NoError(t, rec.Record(Entry{
		ScanRoot:  "/tmp/p",
		Mode:      "force",
		Failed:    2,
		StartedAt: time.Now(),
	}))

	runs, err := rec.Recent(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "failed", runs[0].Status)
}

func TestRecentOrderingNewestFirst(t *testing.T) {
	rec := openTestRecorder(t)

	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	require.NoError(t, rec.Record(Entry{ScanRoot: "old", Mode: "force", StartedAt: older}))
	require.NoError(t, rec.Record(Entry{ScanRoot: "new", Mode: "force", StartedAt: newer}))

	runs, err := rec.Recent(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ScanRoot)
	assert.Equal(t, "old", runs[1].ScanRoot)
}
