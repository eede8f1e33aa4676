package models

import (
	"time"

	"gorm.io/datatypes"
)

// TaskTypeSyncAccounts is the only task type run by the executor.
const TaskTypeSyncAccounts = "sync_accounts"

// Task last_status values.
const (
	TaskStatusSuccess   = "success"
	TaskStatusFailed    = "failed"
	TaskStatusTimeout   = "timeout"
	TaskStatusCancelled = "cancelled"
	TaskStatusSkipped   = "skipped"
)

// Task is a named, optionally scheduled account sync over instances of one dialect.
type Task struct {
	ID           uint       `gorm:"primaryKey;column:id" json:"id"`
	Name         string     `gorm:"column:name;size:100;not null;uniqueIndex" json:"name"`
	Description  string     `gorm:"column:description;type:text" json:"description"`
	TaskType     string     `gorm:"column:task_type;size:50;not null" json:"task_type"` // sync_accounts
	DBType       string     `gorm:"column:db_type;size:20;not null" json:"db_type"`
	InstanceID   *uint      `gorm:"column:instance_id" json:"instance_id"`         // Bind to one instance; nil = every active instance of db_type
	Schedule     string     `gorm:"column:schedule;size:100" json:"schedule"`      // Cron expression, empty = manual only
	IsActive     bool       `gorm:"column:is_active;not null" json:"is_active"`
	IsBuiltin    bool       `gorm:"column:is_builtin;not null" json:"is_builtin"`
	LastRun      *time.Time `gorm:"column:last_run" json:"last_run"`
	LastStatus   string     `gorm:"column:last_status;size:20" json:"last_status"` // success, failed, timeout, cancelled, skipped
	LastMessage  string     `gorm:"column:last_message;type:text" json:"last_message"`
	RunCount     int        `gorm:"column:run_count;not null" json:"run_count"`
	SuccessCount int        `gorm:"column:success_count;not null" json:"success_count"`
	CreatedAt    time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

// TableName specifies the static table name for GORM.
func (Task) TableName() string {
	return "tasks"
}

// EventFailure is a change event that could not be delivered to a sink.
type EventFailure struct {
	ID        uint           `gorm:"primaryKey;column:id" json:"id"`
	EventID   string         `gorm:"column:event_id;size:36;not null;index" json:"event_id"`
	EventType string         `gorm:"column:event_type;size:100;not null" json:"event_type"`
	Sink      string         `gorm:"column:sink;size:50;not null" json:"sink"`
	Payload   datatypes.JSON `gorm:"column:payload" json:"payload"`
	Error     string         `gorm:"column:error;type:text" json:"error"`
	Attempts  int            `gorm:"column:attempts;not null" json:"attempts"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
}

// TableName specifies the static table name for GORM.
func (EventFailure) TableName() string {
	return "events_failed"
}

// AllModels lists every table managed by migrations.
func AllModels() []any {
	return []any{
		&User{},
		&Credential{},
		&Instance{},
		&CurrentAccountSyncData{},
		&AccountChangeLog{},
		&SyncSession{},
		&SyncInstanceRecord{},
		&AccountClassification{},
		&ClassificationRule{},
		&AccountClassificationAssignment{},
		&ClassificationBatch{},
		&Task{},
		&EventFailure{},
	}
}
