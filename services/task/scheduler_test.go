package task

import (
	"context"
	"testing"
	"time"

	"dbaccountsync/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_ReloadGroupsBySchedule(t *testing.T) {
	e := newTaskEnv(t, time.Minute)
	for _, tt := range []struct {
		name, schedule string
		active         bool
	}{
		{"mysql", "0 2 * * *", true},
		{"pg", "0 2 * * *", true},
		{"oracle", "*/15 * * * *", true},
		{"manual only", "", true},
		{"disabled", "0 3 * * *", false},
		{"broken", "not a cron", true},
	} {
		task := &models.Task{Name: tt.name, TaskType: models.TaskTypeSyncAccounts, DBType: models.DBTypeMySQL, Schedule: tt.schedule, IsActive: true}
		require.NoError(t, e.tasks.Create(nil, task))
		if !tt.active {
			require.NoError(t, e.db.Model(task).Update("is_active", false).Error)
		}
	}

	s := NewScheduler(e.exec, e.tasks)
	n, err := s.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"*/15 * * * *", "0 2 * * *"}, s.Schedules())

	s.mu.Lock()
	group := s.groups["0 2 * * *"]
	s.mu.Unlock()
	require.Len(t, group, 2)
	assert.Equal(t, "mysql", group[0].Name)
	assert.Equal(t, "pg", group[1].Name)
}

func TestScheduler_FireRunsGroup(t *testing.T) {
	e := newTaskEnv(t, time.Minute)
	task := &models.Task{Name: "every minute", TaskType: models.TaskTypeSyncAccounts, DBType: models.DBTypeMySQL, Schedule: "* * * * *", IsActive: true}
	require.NoError(t, e.tasks.Create(nil, task))

	s := NewScheduler(e.exec, e.tasks)
	_, err := s.Reload(context.Background())
	require.NoError(t, err)

	s.fire(context.Background(), "* * * * *")

	stored, err := e.tasks.GetByID(nil, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.RunCount)
	assert.Equal(t, models.TaskStatusSuccess, stored.LastStatus)
	assert.Equal(t, [][]string{{}}, e.sync.calls)
}
