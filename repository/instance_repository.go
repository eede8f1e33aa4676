package repository

import (
	"time"

	"dbaccountsync/config"
	"dbaccountsync/models"

	"gorm.io/gorm"
)

// InstanceRepository provides data access operations for target instances.
type InstanceRepository interface {
	GetByID(tx *gorm.DB, id uint) (*models.Instance, error)
	GetByIDs(tx *gorm.DB, ids []uint) ([]models.Instance, error)
	GetActive(tx *gorm.DB) ([]models.Instance, error)
	GetActiveByDBType(tx *gorm.DB, dbType string) ([]models.Instance, error)
	Create(tx *gorm.DB, inst *models.Instance) error
	TouchConnected(tx *gorm.DB, id uint, at time.Time) error
	UpdateVersion(tx *gorm.DB, id uint, raw, main, detailed string) error
	IncrementSyncCount(tx *gorm.DB, id uint) error
}

type instanceRepository struct {
	db *gorm.DB
}

// NewInstanceRepository creates a new instance repository instance.
func NewInstanceRepository() InstanceRepository {
	return NewInstanceRepositoryWithDB(config.DB)
}

// NewInstanceRepositoryWithDB creates an instance repository bound to db.
func NewInstanceRepositoryWithDB(db *gorm.DB) InstanceRepository {
	return &instanceRepository{db: db}
}

// GetByID loads a non-deleted instance with its credential.
func (r *instanceRepository) GetByID(tx *gorm.DB, id uint) (*models.Instance, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var inst models.Instance
	if err := db.Preload("Credential").Where("id = ?", id).First(&inst).Error; err != nil {
		return nil, err
	}
	return &inst, nil
}

func (r *instanceRepository) GetByIDs(tx *gorm.DB, ids []uint) ([]models.Instance, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var insts []models.Instance
	if err := db.Preload("Credential").Where("id IN ?", ids).Order("id").Find(&insts).Error; err != nil {
		return nil, err
	}
	return insts, nil
}

func (r *instanceRepository) GetActive(tx *gorm.DB) ([]models.Instance, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var insts []models.Instance
	if err := db.Preload("Credential").Where("is_active = ?", true).Order("id").Find(&insts).Error; err != nil {
		return nil, err
	}
	return insts, nil
}

func (r *instanceRepository) GetActiveByDBType(tx *gorm.DB, dbType string) ([]models.Instance, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var insts []models.Instance
	if err := db.Preload("Credential").
		Where("is_active = ? AND db_type = ?", true, dbType).
		Order("id").
		Find(&insts).Error; err != nil {
		return nil, err
	}
	return insts, nil
}

func (r *instanceRepository) Create(tx *gorm.DB, inst *models.Instance) error {
	db := tx
	if db == nil {
		db = r.db
	}
	return db.Create(inst).Error
}

func (r *instanceRepository) TouchConnected(tx *gorm.DB, id uint, at time.Time) error {
	db := tx
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Instance{}).Where("id = ?", id).Update("last_connected_at", at).Error
}

func (r *instanceRepository) UpdateVersion(tx *gorm.DB, id uint, raw, main, detailed string) error {
	db := tx
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Instance{}).Where("id = ?", id).Updates(map[string]any{
		"database_version": raw,
		"main_version":     main,
		"detailed_version": detailed,
	}).Error
}

func (r *instanceRepository) IncrementSyncCount(tx *gorm.DB, id uint) error {
	db := tx
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Instance{}).Where("id = ?", id).
		UpdateColumn("sync_count", gorm.Expr("sync_count + ?", 1)).Error
}
