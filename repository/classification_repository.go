package repository

import (
	"dbaccountsync/config"
	"dbaccountsync/models"

	"gorm.io/gorm"
)

// ClassificationRepository provides data access operations for classifications and their rules.
type ClassificationRepository interface {
	GetByID(tx *gorm.DB, id uint) (*models.AccountClassification, error)
	GetByName(tx *gorm.DB, name string) (*models.AccountClassification, error)
	Count(tx *gorm.DB) (int64, error)
	Create(tx *gorm.DB, c *models.AccountClassification) error
	CreateRule(tx *gorm.DB, rule *models.ClassificationRule) error
	GetRule(tx *gorm.DB, id uint) (*models.ClassificationRule, error)
	SetRuleActive(tx *gorm.DB, id uint, active bool) error
	CountRules(tx *gorm.DB) (int64, error)
	// ListActiveRules returns active rules of active classifications ordered by
	// classification priority (desc), rule creation time and id.
	ListActiveRules(tx *gorm.DB) ([]models.ClassificationRule, error)
}

type classificationRepository struct {
	db *gorm.DB
}

// NewClassificationRepository creates a new classification repository instance.
func NewClassificationRepository() ClassificationRepository {
	return NewClassificationRepositoryWithDB(config.DB)
}

// NewClassificationRepositoryWithDB creates a classification repository bound to db.
func NewClassificationRepositoryWithDB(db *gorm.DB) ClassificationRepository {
	return &classificationRepository{db: db}
}

func (r *classificationRepository) GetByID(tx *gorm.DB, id uint) (*models.AccountClassification, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var c models.AccountClassification
	if err := db.Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *classificationRepository) GetByName(tx *gorm.DB, name string) (*models.AccountClassification, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var c models.AccountClassification
	if err := db.Where("name = ?", name).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *classificationRepository) Count(tx *gorm.DB) (int64, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.AccountClassification{}).Count(&n).Error
	return n, err
}

func (r *classificationRepository) Create(tx *gorm.DB, c *models.AccountClassification) error {
	db := tx
	if db == nil {
		db = r.db
	}
	return db.Omit("Rules").Create(c).Error
}

func (r *classificationRepository) CreateRule(tx *gorm.DB, rule *models.ClassificationRule) error {
	db := tx
	if db == nil {
		db = r.db
	}
	return db.Omit("Classification").Create(rule).Error
}

func (r *classificationRepository) GetRule(tx *gorm.DB, id uint) (*models.ClassificationRule, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var rule models.ClassificationRule
	if err := db.Preload("Classification").Where("id = ?", id).First(&rule).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *classificationRepository) SetRuleActive(tx *gorm.DB, id uint, active bool) error {
	db := tx
	if db == nil {
		db = r.db
	}
	return db.Model(&models.ClassificationRule{}).Where("id = ?", id).Update("is_active", active).Error
}

func (r *classificationRepository) CountRules(tx *gorm.DB) (int64, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.ClassificationRule{}).Count(&n).Error
	return n, err
}

func (r *classificationRepository) ListActiveRules(tx *gorm.DB) ([]models.ClassificationRule, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var rules []models.ClassificationRule
	if err := db.Preload("Classification").
		Joins("JOIN account_classifications ac ON ac.id = classification_rules.classification_id").
		Where("classification_rules.is_active = ? AND ac.is_active = ?", true, true).
		Order("ac.priority DESC").
		Order("classification_rules.created_at ASC").
		Order("classification_rules.id ASC").
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}
