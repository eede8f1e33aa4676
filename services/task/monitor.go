package task

import (
	"sort"
	"sync"
	"time"

	"dbaccountsync/pkg/logger"
)

// RunInfo stores information about one task execution.
type RunInfo struct {
	RunID      string     `json:"run_id"`
	TaskID     uint       `json:"task_id"`
	TaskName   string     `json:"task_name"`
	SyncType   string     `json:"sync_type"`
	SessionID  string     `json:"session_id,omitempty"`
	Status     string     `json:"status"` // running, success, failed, timeout, cancelled, skipped
	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	Message    string     `json:"message"`
	Total      int        `json:"total"`
	Successful int        `json:"successful"`
	Failed     int        `json:"failed"`
}

// RunStatusRunning marks an execution still in flight.
const RunStatusRunning = "running"

// RunMonitor tracks in-flight and recently finished task runs. At most one run
// per task is in flight.
type RunMonitor struct {
	runs      map[string]*RunInfo
	running   map[uint]string // task id -> run id
	mu        sync.RWMutex
	retention time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewRunMonitor creates a monitor that forgets finished runs after retention.
// A janitor goroutine runs until Stop.
func NewRunMonitor(retention time.Duration) *RunMonitor {
	m := newRunMonitor(retention)
	go m.startCleanup()
	return m
}

func newRunMonitor(retention time.Duration) *RunMonitor {
	if retention <= 0 {
		retention = time.Hour
	}
	return &RunMonitor{
		runs:      make(map[string]*RunInfo),
		running:   make(map[uint]string),
		retention: retention,
		stopCh:    make(chan struct{}),
	}
}

// Start registers a run. It returns false when the task already has a run in flight.
func (m *RunMonitor) Start(runID string, taskID uint, taskName, syncType string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.running[taskID]; busy {
		return false
	}
	m.runs[runID] = &RunInfo{
		RunID:     runID,
		TaskID:    taskID,
		TaskName:  taskName,
		SyncType:  syncType,
		Status:    RunStatusRunning,
		StartTime: time.Now(),
		Message:   "Task started",
	}
	m.running[taskID] = runID
	logger.Infof("Added run %s of task %s to monitoring", runID, taskName)
	return true
}

// Finish records the terminal state of a run and frees its task.
func (m *RunMonitor) Finish(runID, status, message string, total, successful, failed int, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return
	}
	now := time.Now()
	run.Status = status
	run.Message = message
	run.EndTime = &now
	run.Total = total
	run.Successful = successful
	run.Failed = failed
	if sessionID != "" {
		run.SessionID = sessionID
	}
	if m.running[run.TaskID] == runID {
		delete(m.running, run.TaskID)
	}
}

// GetRun returns a copy of run information.
func (m *RunMonitor) GetRun(runID string) (*RunInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[runID]
	if !ok {
		return nil, false
	}
	c := *run
	return &c, true
}

// IsRunning reports whether taskID has a run in flight.
func (m *RunMonitor) IsRunning(taskID uint) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.running[taskID]
	return ok
}

// PaginatedRuns contains paginated run data with metadata.
type PaginatedRuns struct {
	Runs       []RunInfo `json:"runs"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	TotalPages int       `json:"total_pages"`
}

// GetRunsPaginated returns runs newest first. A page past the end yields an
// empty slice.
func (m *RunMonitor) GetRunsPaginated(page, pageSize int) *PaginatedRuns {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	all := make([]RunInfo, 0, len(m.runs))
	for _, r := range m.runs {
		all = append(all, *r)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].StartTime.Equal(all[j].StartTime) {
			return all[i].StartTime.After(all[j].StartTime)
		}
		return all[i].RunID < all[j].RunID
	})

	total := len(all)
	result := &PaginatedRuns{
		Runs:       []RunInfo{},
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}
	start := (page - 1) * pageSize
	if start >= total {
		return result
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	result.Runs = all[start:end]
	return result
}

// Stop halts the janitor goroutine.
func (m *RunMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *RunMonitor) startCleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.cleanup(time.Now())
		case <-m.stopCh:
			logger.Debugf("Run monitor stopped")
			return
		}
	}
}

// cleanup drops finished runs older than the retention window.
func (m *RunMonitor) cleanup(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, r := range m.runs {
		if r.EndTime != nil && now.Sub(*r.EndTime) > m.retention {
			delete(m.runs, id)
			removed++
		}
	}
	if removed > 0 {
		logger.Debugf("Run monitor removed %d finished runs", removed)
	}
	return removed
}
