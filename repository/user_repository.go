package repository

import (
	"dbaccountsync/config"
	"dbaccountsync/models"

	"gorm.io/gorm"
)

// UserRepository provides data access operations for operators.
type UserRepository interface {
	GetByUsername(tx *gorm.DB, username string) (*models.User, error)
	Create(tx *gorm.DB, user *models.User) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance.
func NewUserRepository() UserRepository {
	return NewUserRepositoryWithDB(config.DB)
}

// NewUserRepositoryWithDB creates a user repository bound to db.
func NewUserRepositoryWithDB(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByUsername(tx *gorm.DB, username string) (*models.User, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var user models.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Create(tx *gorm.DB, user *models.User) error {
	db := tx
	if db == nil {
		db = r.db
	}
	return db.Create(user).Error
}

// EventFailureRepository stores undeliverable change events.
type EventFailureRepository interface {
	Create(tx *gorm.DB, f *models.EventFailure) error
	List(tx *gorm.DB, limit int) ([]models.EventFailure, error)
}

type eventFailureRepository struct {
	db *gorm.DB
}

// NewEventFailureRepository creates a new event failure repository instance.
func NewEventFailureRepository() EventFailureRepository {
	return NewEventFailureRepositoryWithDB(config.DB)
}

// NewEventFailureRepositoryWithDB creates an event failure repository bound to db.
func NewEventFailureRepositoryWithDB(db *gorm.DB) EventFailureRepository {
	return &eventFailureRepository{db: db}
}

func (r *eventFailureRepository) Create(tx *gorm.DB, f *models.EventFailure) error {
	db := tx
	if db == nil {
		db = r.db
	}
	return db.Create(f).Error
}

func (r *eventFailureRepository) List(tx *gorm.DB, limit int) ([]models.EventFailure, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var rows []models.EventFailure
	q := db.Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
