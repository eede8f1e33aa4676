package repository

import (
	"dbaccountsync/config"
	"dbaccountsync/models"

	"gorm.io/gorm"
)

// AccountRepository provides data access operations for current account state and its change log.
type AccountRepository interface {
	// ListByInstance returns every row of (instanceID, dbType), deleted ones included, ordered by username.
	ListByInstance(tx *gorm.DB, instanceID uint, dbType string) ([]models.CurrentAccountSyncData, error)
	CountLive(tx *gorm.DB, instanceID uint) (int64, error)
	GetByID(tx *gorm.DB, id uint) (*models.CurrentAccountSyncData, error)
	GetByUsername(tx *gorm.DB, instanceID uint, dbType, username string) (*models.CurrentAccountSyncData, error)
	// ListTargets returns live accounts on active, non-deleted instances. A nil
	// instanceID selects the whole fleet.
	ListTargets(tx *gorm.DB, instanceID *uint) ([]models.CurrentAccountSyncData, error)
	// TargetIDs is the subquery form of ListTargets.
	TargetIDs(tx *gorm.DB, instanceID *uint) *gorm.DB
	Create(tx *gorm.DB, row *models.CurrentAccountSyncData) error
	Save(tx *gorm.DB, row *models.CurrentAccountSyncData) error
	CreateChangeLogs(tx *gorm.DB, logs []models.AccountChangeLog) error
	ListChangeLogs(tx *gorm.DB, instanceID uint, username string) ([]models.AccountChangeLog, error)
}

type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new account repository instance.
func NewAccountRepository() AccountRepository {
	return NewAccountRepositoryWithDB(config.DB)
}

// NewAccountRepositoryWithDB creates an account repository bound to db.
func NewAccountRepositoryWithDB(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) ListByInstance(tx *gorm.DB, instanceID uint, dbType string) ([]models.CurrentAccountSyncData, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var rows []models.CurrentAccountSyncData
	if err := db.Where("instance_id = ? AND db_type = ?", instanceID, dbType).
		Order("username").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *accountRepository) CountLive(tx *gorm.DB, instanceID uint) (int64, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var count int64
	err := db.Model(&models.CurrentAccountSyncData{}).
		Where("instance_id = ? AND is_deleted = ?", instanceID, false).
		Count(&count).Error
	return count, err
}

func (r *accountRepository) GetByID(tx *gorm.DB, id uint) (*models.CurrentAccountSyncData, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var row models.CurrentAccountSyncData
	if err := db.Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *accountRepository) GetByUsername(tx *gorm.DB, instanceID uint, dbType, username string) (*models.CurrentAccountSyncData, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var row models.CurrentAccountSyncData
	if err := db.Where("instance_id = ? AND db_type = ? AND username = ?", instanceID, dbType, username).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *accountRepository) targets(db *gorm.DB, instanceID *uint) *gorm.DB {
	q := db.Model(&models.CurrentAccountSyncData{}).
		Joins("JOIN instances ON instances.id = current_account_sync_data.instance_id").
		Where("current_account_sync_data.is_deleted = ?", false).
		Where("instances.is_active = ? AND instances.deleted_at IS NULL", true)
	if instanceID != nil {
		q = q.Where("current_account_sync_data.instance_id = ?", *instanceID)
	}
	return q
}

func (r *accountRepository) ListTargets(tx *gorm.DB, instanceID *uint) ([]models.CurrentAccountSyncData, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var rows []models.CurrentAccountSyncData
	if err := r.targets(db, instanceID).
		Select("current_account_sync_data.*").
		Order("current_account_sync_data.id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *accountRepository) TargetIDs(tx *gorm.DB, instanceID *uint) *gorm.DB {
	db := tx
	if db == nil {
		db = r.db
	}
	return r.targets(db.Session(&gorm.Session{NewDB: true}), instanceID).
		Select("current_account_sync_data.id")
}

func (r *accountRepository) Create(tx *gorm.DB, row *models.CurrentAccountSyncData) error {
	db := tx
	if db == nil {
		db = r.db
	}
	return db.Create(row).Error
}

// Save writes every column, including NULL slot columns.
func (r *accountRepository) Save(tx *gorm.DB, row *models.CurrentAccountSyncData) error {
	db := tx
	if db == nil {
		db = r.db
	}
	return db.Save(row).Error
}

func (r *accountRepository) CreateChangeLogs(tx *gorm.DB, logs []models.AccountChangeLog) error {
	if len(logs) == 0 {
		return nil
	}
	db := tx
	if db == nil {
		db = r.db
	}
	return db.CreateInBatches(logs, 200).Error
}

func (r *accountRepository) ListChangeLogs(tx *gorm.DB, instanceID uint, username string) ([]models.AccountChangeLog, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	q := db.Where("instance_id = ?", instanceID)
	if username != "" {
		q = q.Where("username = ?", username)
	}
	var logs []models.AccountChangeLog
	if err := q.Order("change_time, id").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
