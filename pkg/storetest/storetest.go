// Package storetest opens throwaway in-memory stores for package tests.
package storetest

import (
	"fmt"
	"strings"
	"testing"

	"dbaccountsync/config"
	"dbaccountsync/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// New returns a migrated sqlite store private to t. The pool holds a single
// connection, so code under test must route queries through an open transaction.
func New(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString()[:8])

	db, err := config.OpenStore(sqlite.Open(dsn))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Instance inserts an active instance with a credential.
func Instance(t testing.TB, db *gorm.DB, name, dbType string) *models.Instance {
	t.Helper()
	cred := &models.Credential{Name: name + "-cred", DBType: dbType, Username: "monitor", Password: "secret", IsActive: true}
	if err := db.Create(cred).Error; err != nil {
		t.Fatalf("create credential: %v", err)
	}
	inst := &models.Instance{
		Name:         name,
		DBType:       dbType,
		Host:         "127.0.0.1",
		Port:         3306,
		CredentialID: &cred.ID,
		Credential:   cred,
		IsActive:     true,
	}
	if err := db.Omit("Credential").Create(inst).Error; err != nil {
		t.Fatalf("create instance: %v", err)
	}
	return inst
}
