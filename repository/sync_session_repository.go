package repository

import (
	"dbaccountsync/config"
	"dbaccountsync/models"

	"gorm.io/gorm"
)

// SyncSessionRepository provides data access operations for sync sessions and their instance records.
type SyncSessionRepository interface {
	Create(tx *gorm.DB, session *models.SyncSession) error
	GetBySessionID(tx *gorm.DB, sessionID string) (*models.SyncSession, error)
	Update(tx *gorm.DB, session *models.SyncSession) error
	CreateRecords(tx *gorm.DB, records []models.SyncInstanceRecord) error
	UpdateRecord(tx *gorm.DB, record *models.SyncInstanceRecord) error
	GetRecord(tx *gorm.DB, sessionID string, instanceID uint) (*models.SyncInstanceRecord, error)
	ListRecords(tx *gorm.DB, sessionID string) ([]models.SyncInstanceRecord, error)
	MarkPendingRecords(tx *gorm.DB, sessionID, status, message string) (int64, error)
}

type syncSessionRepository struct {
	db *gorm.DB
}

// NewSyncSessionRepository creates a new sync session repository instance.
func NewSyncSessionRepository() SyncSessionRepository {
	return NewSyncSessionRepositoryWithDB(config.DB)
}

// NewSyncSessionRepositoryWithDB creates a sync session repository bound to db.
func NewSyncSessionRepositoryWithDB(db *gorm.DB) SyncSessionRepository {
	return &syncSessionRepository{db: db}
}

func (r *syncSessionRepository) Create(tx *gorm.DB, session *models.SyncSession) error {
	db := tx
	if db == nil {
		db = r.db
	}
	return db.Omit("Records").Create(session).Error
}

func (r *syncSessionRepository) GetBySessionID(tx *gorm.DB, sessionID string) (*models.SyncSession, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var session models.SyncSession
	if err := db.Preload("Records", func(q *gorm.DB) *gorm.DB { return q.Order("id") }).
		Where("session_id = ?", sessionID).
		First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *syncSessionRepository) Update(tx *gorm.DB, session *models.SyncSession) error {
	db := tx
	if db == nil {
		db = r.db
	}
	return db.Omit("Records").Save(session).Error
}

func (r *syncSessionRepository) CreateRecords(tx *gorm.DB, records []models.SyncInstanceRecord) error {
	if len(records) == 0 {
		return nil
	}
	db := tx
	if db == nil {
		db = r.db
	}
	return db.Create(&records).Error
}

func (r *syncSessionRepository) UpdateRecord(tx *gorm.DB, record *models.SyncInstanceRecord) error {
	db := tx
	if db == nil {
		db = r.db
	}
	return db.Save(record).Error
}

func (r *syncSessionRepository) GetRecord(tx *gorm.DB, sessionID string, instanceID uint) (*models.SyncInstanceRecord, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var record models.SyncInstanceRecord
	if err := db.Where("session_id = ? AND instance_id = ? AND sync_category = ?",
		sessionID, instanceID, models.SyncCategoryAccount).
		First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *syncSessionRepository) ListRecords(tx *gorm.DB, sessionID string) ([]models.SyncInstanceRecord, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var records []models.SyncInstanceRecord
	if err := db.Where("session_id = ?", sessionID).Order("id").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// MarkPendingRecords moves every pending or running record of the session to status.
func (r *syncSessionRepository) MarkPendingRecords(tx *gorm.DB, sessionID, status, message string) (int64, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.SyncInstanceRecord{}).
		Where("session_id = ? AND status IN ?", sessionID, []string{models.SyncStatusPending, models.SyncStatusRunning}).
		Updates(map[string]any{"status": status, "error_message": message})
	return res.RowsAffected, res.Error
}
