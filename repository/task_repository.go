package repository

import (
	"dbaccountsync/config"
	"dbaccountsync/models"

	"gorm.io/gorm"
)

// TaskRepository provides data access operations for scheduled tasks.
type TaskRepository interface {
	GetByID(tx *gorm.DB, id uint) (*models.Task, error)
	GetByName(tx *gorm.DB, name string) (*models.Task, error)
	ListActive(tx *gorm.DB) ([]models.Task, error)
	Create(tx *gorm.DB, task *models.Task) error
	Save(tx *gorm.DB, task *models.Task) error
}

type taskRepository struct {
	db *gorm.DB
}

// NewTaskRepository creates a new task repository instance.
func NewTaskRepository() TaskRepository {
	return NewTaskRepositoryWithDB(config.DB)
}

// NewTaskRepositoryWithDB creates a task repository bound to db.
func NewTaskRepositoryWithDB(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

func (r *taskRepository) GetByID(tx *gorm.DB, id uint) (*models.Task, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var task models.Task
	if err := db.Where("id = ?", id).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *taskRepository) GetByName(tx *gorm.DB, name string) (*models.Task, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var task models.Task
	if err := db.Where("name = ?", name).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *taskRepository) ListActive(tx *gorm.DB) ([]models.Task, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var tasks []models.Task
	if err := db.Where("is_active = ?", true).Order("id").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *taskRepository) Create(tx *gorm.DB, task *models.Task) error {
	db := tx
	if db == nil {
		db = r.db
	}
	return db.Create(task).Error
}

func (r *taskRepository) Save(tx *gorm.DB, task *models.Task) error {
	db := tx
	if db == nil {
		db = r.db
	}
	return db.Save(task).Error
}
