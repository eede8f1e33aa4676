package models

import (
	"time"

	"gorm.io/datatypes"
)

// Sync types accepted by the orchestrator.
const (
	SyncTypeManualSingle  = "manual_single"
	SyncTypeManualBatch   = "manual_batch"
	SyncTypeManualTask    = "manual_task"
	SyncTypeScheduledTask = "scheduled_task"
)

// SyncCategoryAccount is the only sync category produced by the account engine.
const SyncCategoryAccount = "account"

// Session and record statuses.
const (
	SyncStatusPending   = "pending"
	SyncStatusRunning   = "running"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
	SyncStatusCancelled = "cancelled"
)

// IsValidSyncType reports whether t is one of the four sync types.
func IsValidSyncType(t string) bool {
	switch t {
	case SyncTypeManualSingle, SyncTypeManualBatch, SyncTypeManualTask, SyncTypeScheduledTask:
		return true
	}
	return false
}

// SyncSession groups the instance records of one fleet or task run.
type SyncSession struct {
	ID                  uint       `gorm:"primaryKey;column:id" json:"id"`
	SessionID           string     `gorm:"column:session_id;size:36;not null;uniqueIndex" json:"session_id"` // uuid
	SyncType            string     `gorm:"column:sync_type;size:20;not null" json:"sync_type"`              // manual_batch, manual_task, scheduled_task
	SyncCategory        string     `gorm:"column:sync_category;size:20;not null" json:"sync_category"`      // account
	Status              string     `gorm:"column:status;size:20;not null;index" json:"status"`              // running, completed, failed, cancelled
	StartedAt           time.Time  `gorm:"column:started_at;not null" json:"started_at"`
	CompletedAt         *time.Time `gorm:"column:completed_at" json:"completed_at"`
	TotalInstances      int        `gorm:"column:total_instances;not null" json:"total_instances"`
	SuccessfulInstances int        `gorm:"column:successful_instances;not null" json:"successful_instances"`
	FailedInstances     int        `gorm:"column:failed_instances;not null" json:"failed_instances"`
	CreatedBy           *uint      `gorm:"column:created_by" json:"created_by"` // users.id, nil for scheduled runs
	CreatedAt           time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"column:updated_at" json:"updated_at"`

	Records []SyncInstanceRecord `gorm:"foreignKey:SessionID;references:SessionID" json:"records,omitempty"`
}

// TableName specifies the static table name for GORM.
func (SyncSession) TableName() string {
	return "sync_sessions"
}

// SyncInstanceRecord is the outcome of one instance inside a session.
type SyncInstanceRecord struct {
	ID              uint           `gorm:"primaryKey;column:id" json:"id"`
	SessionID       string         `gorm:"column:session_id;size:36;not null;index" json:"session_id"`
	InstanceID      uint           `gorm:"column:instance_id;not null;index" json:"instance_id"`
	InstanceName    string         `gorm:"column:instance_name;size:255" json:"instance_name"`
	SyncCategory    string         `gorm:"column:sync_category;size:20;not null" json:"sync_category"`
	Status          string         `gorm:"column:status;size:20;not null" json:"status"` // pending, running, completed, failed
	StartedAt       *time.Time     `gorm:"column:started_at" json:"started_at"`
	CompletedAt     *time.Time     `gorm:"column:completed_at" json:"completed_at"`
	AccountsSynced  int            `gorm:"column:accounts_synced;not null" json:"accounts_synced"`
	AccountsCreated int            `gorm:"column:accounts_created;not null" json:"accounts_created"`
	AccountsUpdated int            `gorm:"column:accounts_updated;not null" json:"accounts_updated"`
	AccountsDeleted int            `gorm:"column:accounts_deleted;not null" json:"accounts_deleted"`
	ErrorMessage    string         `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	SyncDetails     datatypes.JSON `gorm:"column:sync_details" json:"sync_details,omitempty"` // before/after counts, version
	CreatedAt       time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

// TableName specifies the static table name for GORM.
func (SyncInstanceRecord) TableName() string {
	return "sync_instance_records"
}

// IsTerminal reports whether the record reached completed or failed.
func (r SyncInstanceRecord) IsTerminal() bool {
	return r.Status == SyncStatusCompleted || r.Status == SyncStatusFailed
}
