package bootstrap

import (
	"errors"
	"fmt"

	"dbaccountsync/config"
	"dbaccountsync/models"
	"dbaccountsync/pkg/logger"
	"dbaccountsync/repository"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AdminUsername is the operator created on first start.
const AdminUsername = "admin"

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	if err := repository.AutoMigrate(db, models.AllModels()...); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}
	logger.Infof("Store schema migrated (%d tables)", len(models.AllModels()))
	return nil
}

// LoadData seeds the global store. See LoadDataWithDB.
func LoadData() error {
	return LoadDataWithDB(config.DB, config.Cfg.DefaultAdminPassword)
}

// LoadDataWithDB seeds the admin user, the builtin tasks and the default
// classifications. Rows that already exist are left as they are.
func LoadDataWithDB(db *gorm.DB, adminPassword string) error {
	logger.Infof("Starting bootstrap data loading...")

	if err := seedAdmin(repository.NewUserRepositoryWithDB(db), adminPassword); err != nil {
		return err
	}
	if err := seedTasks(repository.NewTaskRepositoryWithDB(db)); err != nil {
		return err
	}
	if err := seedClassifications(db, repository.NewClassificationRepositoryWithDB(db)); err != nil {
		return err
	}

	logger.Infof("Bootstrap data loading completed successfully")
	return nil
}

func seedAdmin(repo repository.UserRepository, password string) error {
	_, err := repo.GetByUsername(nil, AdminUsername)
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to look up admin user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	admin := &models.User{Username: AdminUsername, PasswordHash: string(hash), Role: "admin", IsActive: true}
	if err := repo.Create(nil, admin); err != nil {
		logger.Errorf("Failed to create admin user: %v", err)
		return fmt.Errorf("failed to create admin user: %w", err)
	}
	logger.Infof("Created admin user (id %d)", admin.ID)
	return nil
}

// builtinTasks is one inactive nightly sync per dialect.
func builtinTasks() []models.Task {
	tasks := make([]models.Task, 0, len(models.SupportedDBTypes))
	for _, dbType := range models.SupportedDBTypes {
		tasks = append(tasks, models.Task{
			Name:        "sync_accounts_" + dbType,
			Description: fmt.Sprintf("Sync accounts of every active %s instance", dbType),
			TaskType:    models.TaskTypeSyncAccounts,
			DBType:      dbType,
			Schedule:    "0 2 * * *",
			IsBuiltin:   true,
		})
	}
	return tasks
}

func seedTasks(repo repository.TaskRepository) error {
	created := 0
	for _, t := range builtinTasks() {
		_, err := repo.GetByName(nil, t.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to look up task %s: %w", t.Name, err)
		}
		if err := repo.Create(nil, &t); err != nil {
			return fmt.Errorf("failed to create task %s: %w", t.Name, err)
		}
		created++
	}
	logger.Infof("Seeded %d builtin tasks", created)
	return nil
}
