package repository

import (
	"dbaccountsync/config"
	"dbaccountsync/models"

	"gorm.io/gorm"
)

// AssignmentRepository provides data access operations for classification assignments and batches.
type AssignmentRepository interface {
	// DeactivateFor sets is_active=false on every assignment whose account is in accountIDs
	// (a value list or a subquery) in one statement.
	DeactivateFor(tx *gorm.DB, accountIDs any) (int64, error)
	ListByClassification(tx *gorm.DB, classificationID uint, accountIDs []uint) ([]models.AccountClassificationAssignment, error)
	Reactivate(tx *gorm.DB, ids []uint, batchID string) error
	CreateBatchRows(tx *gorm.DB, rows []models.AccountClassificationAssignment) error
	Get(tx *gorm.DB, accountID, classificationID uint) (*models.AccountClassificationAssignment, error)
	Save(tx *gorm.DB, a *models.AccountClassificationAssignment) error
	ListActive(tx *gorm.DB) ([]models.AccountClassificationAssignment, error)
	ListByAccount(tx *gorm.DB, accountID uint) ([]models.AccountClassificationAssignment, error)

	CreateBatch(tx *gorm.DB, b *models.ClassificationBatch) error
	UpdateBatch(tx *gorm.DB, b *models.ClassificationBatch) error
	GetBatch(tx *gorm.DB, batchID string) (*models.ClassificationBatch, error)
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository creates a new assignment repository instance.
func NewAssignmentRepository() AssignmentRepository {
	return NewAssignmentRepositoryWithDB(config.DB)
}

// NewAssignmentRepositoryWithDB creates an assignment repository bound to db.
func NewAssignmentRepositoryWithDB(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) DeactivateFor(tx *gorm.DB, accountIDs any) (int64, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.AccountClassificationAssignment{}).
		Where("account_id IN (?)", accountIDs).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}

func (r *assignmentRepository) ListByClassification(tx *gorm.DB, classificationID uint, accountIDs []uint) ([]models.AccountClassificationAssignment, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var rows []models.AccountClassificationAssignment
	if len(accountIDs) == 0 {
		return rows, nil
	}
	if err := db.Where("classification_id = ? AND account_id IN ?", classificationID, accountIDs).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *assignmentRepository) Reactivate(tx *gorm.DB, ids []uint, batchID string) error {
	if len(ids) == 0 {
		return nil
	}
	db := tx
	if db == nil {
		db = r.db
	}
	return db.Model(&models.AccountClassificationAssignment{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"is_active": true, "batch_id": batchID}).Error
}

func (r *assignmentRepository) CreateBatchRows(tx *gorm.DB, rows []models.AccountClassificationAssignment) error {
	if len(rows) == 0 {
		return nil
	}
	db := tx
	if db == nil {
		db = r.db
	}
	return db.CreateInBatches(rows, 500).Error
}

func (r *assignmentRepository) Get(tx *gorm.DB, accountID, classificationID uint) (*models.AccountClassificationAssignment, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var a models.AccountClassificationAssignment
	if err := db.Where("account_id = ? AND classification_id = ?", accountID, classificationID).
		First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *assignmentRepository) Save(tx *gorm.DB, a *models.AccountClassificationAssignment) error {
	db := tx
	if db == nil {
		db = r.db
	}
	return db.Save(a).Error
}

func (r *assignmentRepository) ListActive(tx *gorm.DB) ([]models.AccountClassificationAssignment, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var rows []models.AccountClassificationAssignment
	if err := db.Where("is_active = ?", true).
		Order("account_id, classification_id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *assignmentRepository) ListByAccount(tx *gorm.DB, accountID uint) ([]models.AccountClassificationAssignment, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var rows []models.AccountClassificationAssignment
	if err := db.Where("account_id = ?", accountID).Order("classification_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *assignmentRepository) CreateBatch(tx *gorm.DB, b *models.ClassificationBatch) error {
	db := tx
	if db == nil {
		db = r.db
	}
	return db.Create(b).Error
}

func (r *assignmentRepository) UpdateBatch(tx *gorm.DB, b *models.ClassificationBatch) error {
	db := tx
	if db == nil {
		db = r.db
	}
	return db.Save(b).Error
}

func (r *assignmentRepository) GetBatch(tx *gorm.DB, batchID string) (*models.ClassificationBatch, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var b models.ClassificationBatch
	if err := db.Where("batch_id = ?", batchID).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}
