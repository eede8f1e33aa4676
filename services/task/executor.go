// Package task runs named account syncs on demand and on cron schedules.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dbaccountsync/config"
	"dbaccountsync/models"
	"dbaccountsync/pkg/errs"
	"dbaccountsync/pkg/logger"
	"dbaccountsync/pkg/metrics"
	"dbaccountsync/repository"
	"dbaccountsync/services/accountsync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// DefaultTimeout bounds one task execution when no timeout is configured.
const DefaultTimeout = 300 * time.Second

// Executor runs tasks.
type Executor interface {
	// ExecuteTask syncs every instance matched by the task, one after another,
	// under the executor's deadline. On deadline the run is recorded as timeout
	// and errs.ErrTaskTimeout is returned; a cancelled ctx records cancelled.
	ExecuteTask(ctx context.Context, taskID uint, syncType string) (*RunInfo, error)
	// RunDueTasks executes tasks concurrently on a bounded set of workers.
	RunDueTasks(ctx context.Context, tasks []models.Task, syncType string) error
	Monitor() *RunMonitor
}

type executor struct {
	taskRepo     repository.TaskRepository
	instanceRepo repository.InstanceRepository
	syncer       accountsync.Service
	monitor      *RunMonitor
	timeout      time.Duration
	workers      int
	now          func() time.Time
}

// NewExecutor creates an executor configured from config.Cfg.
func NewExecutor(syncer accountsync.Service, monitor *RunMonitor) Executor {
	return NewExecutorWithDeps(
		repository.NewTaskRepository(),
		repository.NewInstanceRepository(),
		syncer,
		monitor,
		config.Cfg.TaskTimeout,
		config.Cfg.TaskWorkers,
	)
}

// NewExecutorWithDeps creates an executor with injected dependencies.
func NewExecutorWithDeps(
	taskRepo repository.TaskRepository,
	instanceRepo repository.InstanceRepository,
	syncer accountsync.Service,
	monitor *RunMonitor,
	timeout time.Duration,
	workers int,
) Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if workers <= 0 {
		workers = 1
	}
	if monitor == nil {
		monitor = newRunMonitor(time.Hour)
	}
	return &executor{
		taskRepo:     taskRepo,
		instanceRepo: instanceRepo,
		syncer:       syncer,
		monitor:      monitor,
		timeout:      timeout,
		workers:      workers,
		now:          time.Now,
	}
}

func (e *executor) Monitor() *RunMonitor {
	return e.monitor
}

type sessionResult struct {
	session *models.SyncSession
	err     error
}

func (e *executor) ExecuteTask(ctx context.Context, taskID uint, syncType string) (*RunInfo, error) {
	if syncType != models.SyncTypeManualTask && syncType != models.SyncTypeScheduledTask {
		return nil, fmt.Errorf("%w: tasks run as manual_task or scheduled_task, got %q", errs.ErrValidationFailed, syncType)
	}
	t, err := e.taskRepo.GetByID(nil, taskID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: task %d", errs.ErrNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load task %d: %w", errs.ErrPersistence, taskID, err)
	}
	if t.TaskType != models.TaskTypeSyncAccounts {
		return nil, fmt.Errorf("%w: task %s has unsupported type %q", errs.ErrValidationFailed, t.Name, t.TaskType)
	}

	instances, skip, err := e.matchInstances(t)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	if !e.monitor.Start(runID, t.ID, t.Name, syncType) {
		return nil, fmt.Errorf("%w: task %s is already running", errs.ErrLockNotAcquired, t.Name)
	}
	if skip != "" {
		logger.Warnf("Task %s skipped: %s", t.Name, skip)
		e.monitor.Finish(runID, models.TaskStatusSkipped, skip, 0, 0, 0, "")
		e.record(t, models.TaskStatusSkipped, skip)
		metrics.TaskRuns.WithLabelValues(models.TaskStatusSkipped).Inc()
		run, _ := e.monitor.GetRun(runID)
		return run, nil
	}
	logger.Infof("Task %s started (%s) over %d %s instances", t.Name, syncType, len(instances), t.DBType)

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan sessionResult, 1)
	go func() {
		session, _, err := e.syncer.RunSession(runCtx, instances, syncType, nil)
		done <- sessionResult{session: session, err: err}
	}()

	var (
		status, message string
		total           = len(instances)
		successful      int
		failed          int
		sessionID       string
		runErr          error
	)
	select {
	case res := <-done:
		switch {
		case res.err != nil:
			status, message, runErr = models.TaskStatusFailed, res.err.Error(), res.err
		default:
			sessionID = res.session.SessionID
			successful, failed = res.session.SuccessfulInstances, res.session.FailedInstances
			status = models.TaskStatusSuccess
			if failed > 0 || res.session.Status != models.SyncStatusCompleted {
				status = models.TaskStatusFailed
			}
			message = fmt.Sprintf("synced %d/%d instances, %d failed", successful, total, failed)
		}
	case <-runCtx.Done():
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			status = models.TaskStatusTimeout
			message = fmt.Sprintf("task exceeded %s", e.timeout)
			runErr = fmt.Errorf("%w: task %s after %s", errs.ErrTaskTimeout, t.Name, e.timeout)
		} else {
			status = models.TaskStatusCancelled
			message = "task cancelled"
			runErr = fmt.Errorf("task %s: %w", t.Name, runCtx.Err())
		}
	}

	e.monitor.Finish(runID, status, message, total, successful, failed, sessionID)
	e.record(t, status, message)
	metrics.TaskRuns.WithLabelValues(status).Inc()

	if status == models.TaskStatusSuccess {
		logger.Infof("Task %s finished: %s", t.Name, message)
	} else {
		logger.Errorf("Task %s finished with status %s: %s", t.Name, status, message)
	}
	run, _ := e.monitor.GetRun(runID)
	return run, runErr
}

// matchInstances returns the bound instance or every active instance of the
// task's dialect. A bound instance that is inactive or of another dialect
// yields a skip reason instead.
func (e *executor) matchInstances(t *models.Task) ([]models.Instance, string, error) {
	if t.InstanceID != nil {
		inst, err := e.instanceRepo.GetByID(nil, *t.InstanceID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", fmt.Errorf("%w: instance %d of task %s", errs.ErrNotFound, *t.InstanceID, t.Name)
		}
		if err != nil {
			return nil, "", fmt.Errorf("%w: %w", errs.ErrPersistence, err)
		}
		if !inst.IsActive {
			return nil, fmt.Sprintf("instance %s is inactive", inst.Name), nil
		}
		if inst.DBType != t.DBType {
			return nil, fmt.Sprintf("instance %s is %s, task expects %s", inst.Name, inst.DBType, t.DBType), nil
		}
		return []models.Instance{*inst}, "", nil
	}
	insts, err := e.instanceRepo.GetActiveByDBType(nil, t.DBType)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", errs.ErrPersistence, err)
	}
	return insts, "", nil
}

func (e *executor) record(t *models.Task, status, message string) {
	lastRun := e.now().UTC()
	t.LastRun = &lastRun
	t.LastStatus = status
	t.LastMessage = message
	t.RunCount++
	if status == models.TaskStatusSuccess {
		t.SuccessCount++
	}
	if err := e.taskRepo.Save(nil, t); err != nil {
		logger.Errorf("Failed to record run of task %s: %v", t.Name, err)
	}
}

func (e *executor) RunDueTasks(ctx context.Context, tasks []models.Task, syncType string) error {
	var (
		g        errgroup.Group
		mu       sync.Mutex
		failures []error
	)
	g.SetLimit(e.workers)
	for _, t := range tasks {
		g.Go(func() error {
			if _, err := e.ExecuteTask(ctx, t.ID, syncType); err != nil {
				mu.Lock()
				failures = append(failures, fmt.Errorf("task %s: %w", t.Name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(failures...)
}
