package models

import (
	"time"

	"gorm.io/datatypes"
)

// Assignment types.
const (
	AssignmentTypeAuto   = "auto"
	AssignmentTypeManual = "manual"
)

// Classification batch statuses and types.
const (
	BatchStatusRunning   = "running"
	BatchStatusCompleted = "completed"
	BatchStatusFailed    = "failed"

	BatchTypeManual    = "manual"
	BatchTypeScheduled = "scheduled"
)

// AccountClassification is a tag attached to accounts by rules or by hand.
type AccountClassification struct {
	ID          uint      `gorm:"primaryKey;column:id" json:"id"`
	Name        string    `gorm:"column:name;size:100;not null;uniqueIndex" json:"name"`
	Description string    `gorm:"column:description;type:text" json:"description"`
	RiskLevel   string    `gorm:"column:risk_level;size:20" json:"risk_level"` // low, medium, high, critical
	Color       string    `gorm:"column:color;size:20" json:"color"`
	Priority    int       `gorm:"column:priority;not null;default:0" json:"priority"` // Higher first
	IsSystem    bool      `gorm:"column:is_system;not null" json:"is_system"`         // Seeded at bootstrap
	IsActive    bool      `gorm:"column:is_active;not null" json:"is_active"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`

	Rules []ClassificationRule `gorm:"foreignKey:ClassificationID" json:"rules,omitempty"`
}

// TableName specifies the static table name for GORM.
func (AccountClassification) TableName() string {
	return "account_classifications"
}

// ClassificationRule attaches its classification to every account its expression matches.
type ClassificationRule struct {
	ID               uint                  `gorm:"primaryKey;column:id" json:"id"`
	ClassificationID uint                  `gorm:"column:classification_id;not null;index" json:"classification_id"`
	Classification   *AccountClassification `gorm:"foreignKey:ClassificationID" json:"-"`
	RuleName         string                `gorm:"column:rule_name;size:100;not null" json:"rule_name"`
	DBType           string                `gorm:"column:db_type;size:20;not null" json:"db_type"`
	RuleExpression   datatypes.JSON        `gorm:"column:rule_expression;not null" json:"rule_expression"` // Tagged union or legacy dotted string
	Description      string                `gorm:"column:description;type:text" json:"description"`
	IsActive         bool                  `gorm:"column:is_active;not null" json:"is_active"`
	CreatedAt        time.Time             `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time             `gorm:"column:updated_at" json:"updated_at"`
}

// TableName specifies the static table name for GORM.
func (ClassificationRule) TableName() string {
	return "classification_rules"
}

// AccountClassificationAssignment links an account to a classification.
// At most one row exists per (account_id, classification_id); reassignment reactivates it.
type AccountClassificationAssignment struct {
	ID               uint      `gorm:"primaryKey;column:id" json:"id"`
	AccountID        uint      `gorm:"column:account_id;not null;uniqueIndex:uk_account_classification,priority:1" json:"account_id"`
	ClassificationID uint      `gorm:"column:classification_id;not null;uniqueIndex:uk_account_classification,priority:2;index" json:"classification_id"`
	AssignmentType   string    `gorm:"column:assignment_type;size:20;not null" json:"assignment_type"` // auto, manual
	AssignedBy       *uint     `gorm:"column:assigned_by" json:"assigned_by"`                          // users.id
	BatchID          string    `gorm:"column:batch_id;size:36;index" json:"batch_id"`                  // Last batch that (re)activated the row
	Notes            string    `gorm:"column:notes;type:text" json:"notes"`
	IsActive         bool      `gorm:"column:is_active;not null" json:"is_active"`
	CreatedAt        time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName specifies the static table name for GORM.
func (AccountClassificationAssignment) TableName() string {
	return "account_classification_assignments"
}

// ClassificationBatch records one AutoClassify run.
type ClassificationBatch struct {
	ID                        uint           `gorm:"primaryKey;column:id" json:"id"`
	BatchID                   string         `gorm:"column:batch_id;size:36;not null;uniqueIndex" json:"batch_id"`
	BatchType                 string         `gorm:"column:batch_type;size:20;not null" json:"batch_type"` // manual, scheduled
	Status                    string         `gorm:"column:status;size:20;not null" json:"status"`         // running, completed, failed
	InstanceID                *uint          `gorm:"column:instance_id" json:"instance_id"`                // nil = whole fleet
	CreatedBy                 *uint          `gorm:"column:created_by" json:"created_by"`
	TotalRules                int            `gorm:"column:total_rules;not null" json:"total_rules"`
	ActiveRules               int            `gorm:"column:active_rules;not null" json:"active_rules"`
	TotalAccounts             int            `gorm:"column:total_accounts;not null" json:"total_accounts"`
	TotalMatches              int            `gorm:"column:total_matches;not null" json:"total_matches"`
	TotalClassificationsAdded int            `gorm:"column:total_classifications_added;not null" json:"total_classifications_added"`
	FailedCount               int            `gorm:"column:failed_count;not null" json:"failed_count"`
	BatchDetails              datatypes.JSON `gorm:"column:batch_details" json:"batch_details,omitempty"` // Per-rule counters and errors
	ErrorMessage              string         `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	StartedAt                 time.Time      `gorm:"column:started_at;not null" json:"started_at"`
	CompletedAt               *time.Time     `gorm:"column:completed_at" json:"completed_at"`
}

// TableName specifies the static table name for GORM.
func (ClassificationBatch) TableName() string {
	return "classification_batches"
}
