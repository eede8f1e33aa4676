package task

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMonitor_OneRunPerTask(t *testing.T) {
	m := newRunMonitor(time.Hour)

	require.True(t, m.Start("r1", 7, "nightly", "manual_task"))
	assert.False(t, m.Start("r2", 7, "nightly", "manual_task"))
	assert.True(t, m.IsRunning(7))

	m.Finish("r1", "success", "done", 3, 3, 0, "s-1")
	assert.False(t, m.IsRunning(7))
	assert.True(t, m.Start("r2", 7, "nightly", "manual_task"))

	run, ok := m.GetRun("r1")
	require.True(t, ok)
	assert.Equal(t, "success", run.Status)
	assert.Equal(t, "s-1", run.SessionID)
	assert.Equal(t, 3, run.Successful)
	require.NotNil(t, run.EndTime)

	_, ok = m.GetRun("missing")
	assert.False(t, ok)
}

func TestRunMonitor_GetRunsPaginated(t *testing.T) {
	tests := []struct {
		name      string
		runs      int
		page      int
		pageSize  int
		wantLen   int
		wantPages int
		wantPage  int
	}{
		{"empty", 0, 1, 10, 0, 0, 1},
		{"single page", 5, 1, 10, 5, 1, 1},
		{"last partial page", 25, 3, 10, 5, 3, 3},
		{"past the end", 5, 4, 2, 0, 3, 4},
		{"invalid values fall back", 12, 0, 0, 10, 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newRunMonitor(time.Hour)
			base := time.Now()
			for i := 0; i < tt.runs; i++ {
				id := fmt.Sprintf("r%02d", i)
				m.runs[id] = &RunInfo{RunID: id, TaskID: uint(i), StartTime: base.Add(time.Duration(i) * time.Second)}
			}

			got := m.GetRunsPaginated(tt.page, tt.pageSize)
			assert.Equal(t, tt.runs, got.Total)
			assert.Len(t, got.Runs, tt.wantLen)
			assert.Equal(t, tt.wantPages, got.TotalPages)
			assert.Equal(t, tt.wantPage, got.Page)
			assert.NotNil(t, got.Runs)
		})
	}
}

func TestRunMonitor_NewestFirst(t *testing.T) {
	m := newRunMonitor(time.Hour)
	base := time.Now()
	m.runs["old"] = &RunInfo{RunID: "old", StartTime: base}
	m.runs["new"] = &RunInfo{RunID: "new", StartTime: base.Add(time.Minute)}

	got := m.GetRunsPaginated(1, 10)
	require.Len(t, got.Runs, 2)
	assert.Equal(t, "new", got.Runs[0].RunID)
}

func TestRunMonitor_CleanupDropsOnlyExpiredFinishedRuns(t *testing.T) {
	m := newRunMonitor(time.Minute)
	now := time.Now()
	old := now.Add(-2 * time.Minute)
	recent := now.Add(-10 * time.Second)
	m.runs["expired"] = &RunInfo{RunID: "expired", EndTime: &old}
	m.runs["recent"] = &RunInfo{RunID: "recent", EndTime: &recent}
	m.runs["running"] = &RunInfo{RunID: "running", StartTime: old}

	assert.Equal(t, 1, m.cleanup(now))
	_, ok := m.GetRun("expired")
	assert.False(t, ok)
	_, ok = m.GetRun("recent")
	assert.True(t, ok)
	_, ok = m.GetRun("running")
	assert.True(t, ok)

	m.Stop()
	m.Stop()
}
