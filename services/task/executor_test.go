package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"dbaccountsync/models"
	"dbaccountsync/pkg/errs"
	"dbaccountsync/pkg/storetest"
	"dbaccountsync/repository"
	"dbaccountsync/services/accountsync"
	"dbaccountsync/services/connection"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeSyncer records RunSession calls. Instances named in fail are reported as
// failed; block holds RunSession until closed.
type fakeSyncer struct {
	accountsync.Service
	mu    sync.Mutex
	calls [][]string
	fail  map[string]bool
	block chan struct{}
}

func (f *fakeSyncer) RunSession(ctx context.Context, instances []models.Instance, syncType string, createdBy *uint) (*models.SyncSession, []accountsync.Outcome, error) {
	names := make([]string, len(instances))
	for i, inst := range instances {
		names[i] = inst.Name
	}
	f.mu.Lock()
	f.calls = append(f.calls, names)
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}
	s := &models.SyncSession{SessionID: "session-" + syncType, SyncType: syncType, Status: models.SyncStatusCompleted, TotalInstances: len(instances)}
	for _, n := range names {
		if f.fail[n] {
			s.FailedInstances++
		} else {
			s.SuccessfulInstances++
		}
	}
	return s, nil, nil
}

func (f *fakeSyncer) TestConnection(context.Context, uint) (*connection.TestResult, error) {
	return &connection.TestResult{Success: true}, nil
}

type taskEnv struct {
	db    *gorm.DB
	tasks repository.TaskRepository
	sync  *fakeSyncer
	exec  *executor
}

func newTaskEnv(t *testing.T, timeout time.Duration) *taskEnv {
	t.Helper()
	db := storetest.New(t)
	e := &taskEnv{db: db, tasks: repository.NewTaskRepositoryWithDB(db), sync: &fakeSyncer{fail: map[string]bool{}}}
	e.exec = NewExecutorWithDeps(e.tasks, repository.NewInstanceRepositoryWithDB(db), e.sync, nil, timeout, 2).(*executor)
	return e
}

func (e *taskEnv) task(t *testing.T, name, dbType string, instanceID *uint) *models.Task {
	t.Helper()
	task := &models.Task{Name: name, TaskType: models.TaskTypeSyncAccounts, DBType: dbType, InstanceID: instanceID, IsActive: true}
	require.NoError(t, e.tasks.Create(nil, task))
	return task
}

func TestExecuteTask_MatchesActiveInstancesOfDialect(t *testing.T) {
	e := newTaskEnv(t, time.Minute)
	storetest.Instance(t, e.db, "my-1", models.DBTypeMySQL)
	storetest.Instance(t, e.db, "my-2", models.DBTypeMySQL)
	storetest.Instance(t, e.db, "pg-1", models.DBTypePostgreSQL)
	off := storetest.Instance(t, e.db, "my-off", models.DBTypeMySQL)
	require.NoError(t, e.db.Model(off).Update("is_active", false).Error)
	task := e.task(t, "mysql nightly", models.DBTypeMySQL, nil)

	run, err := e.exec.ExecuteTask(context.Background(), task.ID, models.SyncTypeManualTask)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSuccess, run.Status)
	assert.Equal(t, 2, run.Successful)
	assert.Equal(t, "session-manual_task", run.SessionID)
	assert.Equal(t, [][]string{{"my-1", "my-2"}}, e.sync.calls)

	stored, err := e.tasks.GetByID(nil, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSuccess, stored.LastStatus)
	assert.Equal(t, 1, stored.RunCount)
	assert.Equal(t, 1, stored.SuccessCount)
	assert.NotNil(t, stored.LastRun)
}

func TestExecuteTask_BoundInstanceFailure(t *testing.T) {
	e := newTaskEnv(t, time.Minute)
	inst := storetest.Instance(t, e.db, "my-1", models.DBTypeMySQL)
	storetest.Instance(t, e.db, "my-2", models.DBTypeMySQL)
	e.sync.fail["my-1"] = true
	task := e.task(t, "bound", models.DBTypeMySQL, &inst.ID)

	run, err := e.exec.ExecuteTask(context.Background(), task.ID, models.SyncTypeScheduledTask)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, run.Status)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, [][]string{{"my-1"}}, e.sync.calls)

	stored, err := e.tasks.GetByID(nil, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, stored.LastStatus)
	assert.Equal(t, 1, stored.RunCount)
	assert.Zero(t, stored.SuccessCount)
}

func TestExecuteTask_Timeout(t *testing.T) {
	e := newTaskEnv(t, 50*time.Millisecond)
	e.sync.block = make(chan struct{})
	t.Cleanup(func() { close(e.sync.block) })
	storetest.Instance(t, e.db, "slow", models.DBTypeOracle)
	task := e.task(t, "slow task", models.DBTypeOracle, nil)

	run, err := e.exec.ExecuteTask(context.Background(), task.ID, models.SyncTypeManualTask)
	assert.ErrorIs(t, err, errs.ErrTaskTimeout)
	require.NotNil(t, run)
	assert.Equal(t, models.TaskStatusTimeout, run.Status)

	stored, err := e.tasks.GetByID(nil, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusTimeout, stored.LastStatus)
	assert.False(t, e.exec.Monitor().IsRunning(task.ID))
}

func TestExecuteTask_ParentCancelled(t *testing.T) {
	e := newTaskEnv(t, time.Minute)
	e.sync.block = make(chan struct{})
	t.Cleanup(func() { close(e.sync.block) })
	storetest.Instance(t, e.db, "busy", models.DBTypeMySQL)
	task := e.task(t, "cancelled task", models.DBTypeMySQL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	run, err := e.exec.ExecuteTask(ctx, task.ID, models.SyncTypeManualTask)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, errs.ErrTaskTimeout)
	require.NotNil(t, run)
	assert.Equal(t, models.TaskStatusCancelled, run.Status)

	stored, err := e.tasks.GetByID(nil, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCancelled, stored.LastStatus)
}

func TestExecuteTask_InactiveBoundInstanceSkipped(t *testing.T) {
	e := newTaskEnv(t, time.Minute)
	inst := storetest.Instance(t, e.db, "retired", models.DBTypeMySQL)
	require.NoError(t, e.db.Model(inst).Update("is_active", false).Error)
	task := e.task(t, "bound to retired", models.DBTypeMySQL, &inst.ID)

	run, err := e.exec.ExecuteTask(context.Background(), task.ID, models.SyncTypeManualTask)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSkipped, run.Status)
	assert.Contains(t, run.Message, "retired is inactive")
	assert.Empty(t, e.sync.calls)

	stored, err := e.tasks.GetByID(nil, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSkipped, stored.LastStatus)
	assert.Equal(t, 1, stored.RunCount)
	assert.Zero(t, stored.SuccessCount)
	assert.False(t, e.exec.Monitor().IsRunning(task.ID))
}

func TestExecuteTask_Rejects(t *testing.T) {
	e := newTaskEnv(t, time.Minute)
	task := e.task(t, "t", models.DBTypeMySQL, nil)

	_, err := e.exec.ExecuteTask(context.Background(), task.ID, models.SyncTypeManualSingle)
	assert.ErrorIs(t, err, errs.ErrValidationFailed)

	_, err = e.exec.ExecuteTask(context.Background(), task.ID+10, models.SyncTypeManualTask)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	require.True(t, e.exec.Monitor().Start("other-run", task.ID, task.Name, models.SyncTypeManualTask))
	_, err = e.exec.ExecuteTask(context.Background(), task.ID, models.SyncTypeManualTask)
	assert.ErrorIs(t, err, errs.ErrLockNotAcquired)
}

func TestRunDueTasks_RunsEveryTask(t *testing.T) {
	e := newTaskEnv(t, time.Minute)
	storetest.Instance(t, e.db, "my-1", models.DBTypeMySQL)
	storetest.Instance(t, e.db, "pg-1", models.DBTypePostgreSQL)
	a := e.task(t, "mysql", models.DBTypeMySQL, nil)
	b := e.task(t, "pg", models.DBTypePostgreSQL, nil)
	missing := models.Task{ID: 999, Name: "gone"}

	err := e.exec.RunDueTasks(context.Background(), []models.Task{*a, *b, missing}, models.SyncTypeScheduledTask)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.ErrorContains(t, err, "task gone")
	assert.ElementsMatch(t, [][]string{{"my-1"}, {"pg-1"}}, e.sync.calls)
}
