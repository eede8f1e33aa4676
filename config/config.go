package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds application configuration loaded from environment variables and .env file.
type AppConfig struct {
	// Store config
	StoreDriver   string // mysql, postgres, sqlite
	StoreDSN      string // Overrides the DSN composed from DB_*
	DBHost        string
	DBPort        int
	DBUser        string
	DBPass        string
	DBName        string
	DBPoolSize    int
	DBPoolTimeout time.Duration // Max idle time of a pooled store connection

	// Logging config
	LogLevel      string
	LogFile       string
	LogMaxSize    int // MB
	LogMaxBackups int
	LogMaxAge     int // days
	LogCompress   bool

	// Target connection timeouts
	ConnectTimeout time.Duration
	QueryTimeout   time.Duration

	// Sync engine
	TaskTimeout                  time.Duration // ExecuteTask deadline
	MaxDatabasesPerSQLServerSync int
	FilterRulesFile              string // Optional yaml override of the exclusion lists

	// Classification
	RedisURL              string // Empty = in-process scope lock
	ClassificationLockTTL time.Duration

	// Events
	EventsConfigFile string

	// Scheduler
	SchedulerEnabled bool
	TaskWorkers      int

	// Bootstrap
	DefaultAdminPassword string

	// Presentation
	Timezone string
	Location *time.Location

	Port string
}

// Cfg is the global application configuration instance.
var Cfg AppConfig

// LoadConfig loads application configuration from .env file and environment variables.
func LoadConfig() error {
	err := godotenv.Load()
	if err != nil {
		// Use standard log here since logger is not initialized yet
		log.Printf("[WARN] .env file not found or cannot be loaded: %v", err)
	} else {
		log.Printf("[INFO] .env file loaded successfully")
	}

	Cfg.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", "mysql"))
	Cfg.StoreDSN = getEnv("STORE_DSN", "")
	Cfg.DBHost = getEnv("DB_HOST", "127.0.0.1")
	Cfg.DBPort = getEnvInt("DB_PORT", 3306)
	Cfg.DBUser = getEnv("DB_USER", "root")
	Cfg.DBPass = getEnv("DB_PASS", "")
	Cfg.DBName = getEnv("DB_NAME", "dbaccountsync")
	Cfg.DBPoolSize = getEnvInt("DB_POOL_SIZE", 10)
	Cfg.DBPoolTimeout = time.Duration(getEnvInt("DB_POOL_TIMEOUT", 30)) * time.Second

	Cfg.LogLevel = getEnv("LOG_LEVEL", "INFO")
	Cfg.LogFile = getEnv("LOG_FILE", "")
	Cfg.LogMaxSize = getEnvInt("LOG_MAX_SIZE", 10)
	Cfg.LogMaxBackups = getEnvInt("LOG_MAX_BACKUPS", 3)
	Cfg.LogMaxAge = getEnvInt("LOG_MAX_AGE", 28)
	Cfg.LogCompress = getEnvBool("LOG_COMPRESS", true)

	Cfg.ConnectTimeout = time.Duration(getEnvInt("CONNECT_TIMEOUT_SECONDS", 30)) * time.Second
	Cfg.QueryTimeout = time.Duration(getEnvInt("QUERY_TIMEOUT_SECONDS", 60)) * time.Second

	Cfg.TaskTimeout = time.Duration(getEnvInt("TASK_TIMEOUT_SECONDS", 300)) * time.Second
	Cfg.MaxDatabasesPerSQLServerSync = getEnvInt("MAX_DATABASES_PER_SQLSERVER_SYNC", 50)
	Cfg.FilterRulesFile = getEnv("FILTER_RULES_FILE", "config/database_filters.yaml")

	Cfg.RedisURL = getEnv("REDIS_URL", "")
	Cfg.ClassificationLockTTL = time.Duration(getEnvInt("CLASSIFICATION_LOCK_TTL_SECONDS", 300)) * time.Second

	Cfg.EventsConfigFile = getEnv("EVENTS_CONFIG_FILE", "")

	Cfg.SchedulerEnabled = getEnvBool("SCHEDULER_ENABLED", true)
	Cfg.TaskWorkers = getEnvInt("TASK_WORKERS", 4)

	Cfg.DefaultAdminPassword = getEnv("DEFAULT_ADMIN_PASSWORD", "admin123")

	Cfg.Timezone = getEnv("TIMEZONE", "Asia/Shanghai")
	loc, err := time.LoadLocation(Cfg.Timezone)
	if err != nil {
		log.Printf("[WARN] unknown TIMEZONE %q, using UTC: %v", Cfg.Timezone, err)
		loc = time.UTC
	}
	Cfg.Location = loc

	Cfg.Port = getEnv("PORT", "8081")

	log.Printf("[INFO] Config loaded - Store: %s %s@%s:%d/%s, LogLevel: %s",
		Cfg.StoreDriver, Cfg.DBUser, Cfg.DBHost, Cfg.DBPort, Cfg.DBName, Cfg.LogLevel)
	log.Printf("[INFO] Sync config - ConnectTimeout: %v, QueryTimeout: %v, TaskTimeout: %v, MaxSQLServerDatabases: %d",
		Cfg.ConnectTimeout, Cfg.QueryTimeout, Cfg.TaskTimeout, Cfg.MaxDatabasesPerSQLServerSync)
	log.Printf("[INFO] Scheduler config - Enabled: %v, Workers: %d, Timezone: %s",
		Cfg.SchedulerEnabled, Cfg.TaskWorkers, Cfg.Timezone)

	return nil
}

// DisplayTime converts a stored UTC time into the configured display zone.
func DisplayTime(t time.Time) time.Time {
	if Cfg.Location == nil {
		return t
	}
	return t.In(Cfg.Location)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}
