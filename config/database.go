package config

import (
	"fmt"
	"time"

	"dbaccountsync/pkg/logger"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DB is the global GORM database instance used throughout the application.
var DB *gorm.DB

// ConnectDB opens the store with the configured dialector and pool settings.
func ConnectDB() error {
	dialector, err := storeDialector()
	if err != nil {
		return err
	}
	logger.Infof("Connecting to %s store %s@%s:%d/%s", Cfg.StoreDriver, Cfg.DBUser, Cfg.DBHost, Cfg.DBPort, Cfg.DBName)

	db, err := OpenStore(dialector)
	if err != nil {
		logger.Errorf("GORM connection failed: %v", err)
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get store pool: %w", err)
	}
	if Cfg.DBPoolSize > 0 {
		sqlDB.SetMaxOpenConns(Cfg.DBPoolSize)
		sqlDB.SetMaxIdleConns(Cfg.DBPoolSize)
	}
	if Cfg.DBPoolTimeout > 0 {
		sqlDB.SetConnMaxIdleTime(Cfg.DBPoolTimeout)
	}
	logger.Infof("GORM connected successfully to %s store", Cfg.StoreDriver)

	DB = db
	return nil
}

// OpenStore opens a gorm handle that stores every timestamp in UTC.
func OpenStore(dialector gorm.Dialector) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Warn),
	})
}

func storeDialector() (gorm.Dialector, error) {
	switch Cfg.StoreDriver {
	case "", "mysql":
		dsn := Cfg.StoreDSN
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
				Cfg.DBUser, Cfg.DBPass, Cfg.DBHost, Cfg.DBPort, Cfg.DBName)
		}
		return mysql.Open(dsn), nil
	case "postgres", "postgresql":
		dsn := Cfg.StoreDSN
		if dsn == "" {
			dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
				Cfg.DBHost, Cfg.DBPort, Cfg.DBUser, Cfg.DBPass, Cfg.DBName)
		}
		return postgres.Open(dsn), nil
	case "sqlite":
		dsn := Cfg.StoreDSN
		if dsn == "" {
			dsn = Cfg.DBName + ".db"
		}
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", Cfg.StoreDriver)
	}
}
