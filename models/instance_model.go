package models

import (
	"time"

	"gorm.io/gorm"
)

// Instance is one registered target database server.
// Soft-deleted instances keep their account, change-log and record rows.
type Instance struct {
	ID              uint           `gorm:"primaryKey;column:id" json:"id"`
	Name            string         `gorm:"column:name;size:255;not null;uniqueIndex" json:"name"`                // Display name
	DBType          string         `gorm:"column:db_type;size:20;not null;index" json:"db_type"`                 // mysql, postgresql, sqlserver, oracle
	Host            string         `gorm:"column:host;size:255;not null" json:"host"`                            // Target host or IP
	Port            int            `gorm:"column:port;not null" json:"port"`                                     // Target port
	DatabaseName    string         `gorm:"column:database_name;size:255" json:"database_name"`                   // Default database / Oracle service name
	CredentialID    *uint          `gorm:"column:credential_id" json:"credential_id"`                            // Login used by the sync
	Credential      *Credential    `gorm:"foreignKey:CredentialID" json:"-"`
	DatabaseVersion string         `gorm:"column:database_version;size:1000" json:"database_version"`           // Raw version probe output
	MainVersion     string         `gorm:"column:main_version;size:20" json:"main_version"`                      // e.g. 8.0, 14.0
	DetailedVersion string         `gorm:"column:detailed_version;size:50" json:"detailed_version"`              // e.g. 8.0.32
	Environment     string         `gorm:"column:environment;size:20" json:"environment"`                        // production, testing, development
	Description     string         `gorm:"column:description;type:text" json:"description"`
	IsActive        bool           `gorm:"column:is_active;not null" json:"is_active"`                           // Inactive instances are skipped by fleet syncs
	LastConnectedAt *time.Time     `gorm:"column:last_connected_at" json:"last_connected_at"`                    // Set by a successful version probe
	SyncCount       int            `gorm:"column:sync_count;not null;default:0" json:"sync_count"`               // Incremented by manual_single syncs only
	CreatedAt       time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"column:deleted_at;index" json:"deleted_at,omitempty" swaggertype:"string"` // Tombstone
}

// TableName specifies the static table name for GORM.
func (Instance) TableName() string {
	return "instances"
}

// Credential holds the login used to reach an instance.
// Secret management is delegated to whatever populates this table.
type Credential struct {
	ID        uint      `gorm:"primaryKey;column:id" json:"id"`
	Name      string    `gorm:"column:name;size:255;not null;uniqueIndex" json:"name"`
	DBType    string    `gorm:"column:db_type;size:20" json:"db_type"`
	Username  string    `gorm:"column:username;size:255;not null" json:"username"`
	Password  string    `gorm:"column:password;size:512" json:"-"`
	IsActive  bool      `gorm:"column:is_active;not null" json:"is_active"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName specifies the static table name for GORM.
func (Credential) TableName() string {
	return "credentials"
}

// User is an operator of the system. Only referenced as creator of sessions,
// batches and manual assignments.
type User struct {
	ID           uint      `gorm:"primaryKey;column:id" json:"id"`
	Username     string    `gorm:"column:username;size:100;not null;uniqueIndex" json:"username"`
	PasswordHash string    `gorm:"column:password_hash;size:255;not null" json:"-"`
	Role         string    `gorm:"column:role;size:20;not null" json:"role"`
	IsActive     bool      `gorm:"column:is_active;not null" json:"is_active"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName specifies the static table name for GORM.
func (User) TableName() string {
	return "users"
}
