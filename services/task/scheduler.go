package task

import (
	"context"
	"sort"
	"sync"
	"time"

	"dbaccountsync/models"
	"dbaccountsync/pkg/logger"
	"dbaccountsync/repository"

	"github.com/go-co-op/gocron"
)

// Scheduler fires active tasks on their cron schedule. Tasks sharing one
// expression fire together and fan out over the executor's workers.
type Scheduler struct {
	cron     *gocron.Scheduler
	executor Executor
	taskRepo repository.TaskRepository
	mu       sync.Mutex
	groups   map[string][]models.Task // schedule -> tasks
}

// NewScheduler creates a UTC scheduler. Call Reload to register the tasks.
func NewScheduler(executor Executor, taskRepo repository.TaskRepository) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		cron:     s,
		executor: executor,
		taskRepo: taskRepo,
		groups:   map[string][]models.Task{},
	}
}

// Reload replaces every registered job with the active scheduled tasks. A task
// with an invalid expression is skipped and logged.
func (s *Scheduler) Reload(ctx context.Context) (int, error) {
	tasks, err := s.taskRepo.ListActive(nil)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cron.Clear()
	s.groups = map[string][]models.Task{}

	for _, t := range tasks {
		if t.Schedule == "" || t.TaskType != models.TaskTypeSyncAccounts {
			continue
		}
		s.groups[t.Schedule] = append(s.groups[t.Schedule], t)
	}

	schedules := make([]string, 0, len(s.groups))
	for expr := range s.groups {
		schedules = append(schedules, expr)
	}
	sort.Strings(schedules)

	registered := 0
	for _, expr := range schedules {
		group := s.groups[expr]
		if _, err := s.cron.Cron(expr).Tag(expr).Do(s.fire, ctx, expr); err != nil {
			for _, t := range group {
				logger.Errorf("Task %s has invalid schedule %q: %v", t.Name, expr, err)
			}
			delete(s.groups, expr)
			continue
		}
		registered += len(group)
	}
	logger.Infof("Scheduler loaded %d tasks on %d schedules", registered, len(s.groups))
	return registered, nil
}

func (s *Scheduler) fire(ctx context.Context, expr string) {
	s.mu.Lock()
	due := append([]models.Task(nil), s.groups[expr]...)
	s.mu.Unlock()

	logger.Debugf("Schedule %q fired for %d tasks", expr, len(due))
	if err := s.executor.RunDueTasks(ctx, due, models.SyncTypeScheduledTask); err != nil {
		logger.Warnf("Scheduled run of %q finished with errors: %v", expr, err)
	}
}

// Schedules returns the registered cron expressions.
func (s *Scheduler) Schedules() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.groups))
	for expr := range s.groups {
		out = append(out, expr)
	}
	sort.Strings(out)
	return out
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.StartAsync()
}

// Stop halts the scheduler. Runs in flight are not interrupted.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
