package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
)

// Config holds all configuration for the ops engine
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Storage
	StoreDriver string // postgres | sqlite
	Database    DatabaseConfig
	SQLite      SQLiteConfig

	// Redis
	Redis RedisConfig

	// Ops
	Ops OpsConfig

	// Scheduler
	Schedule ScheduleConfig

	// API
	API APIConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// SQLiteConfig holds lite-mode storage configuration
type SQLiteConfig struct {
	Path string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
	Prefix   string

	PriceCacheTTL time.Duration
	RunLockTTL    time.Duration
}

// OpsConfig holds run-level switches that are not part of the policy file
type OpsConfig struct {
	ArtifactsDir         string
	PolicyPath           string
	TradesEnabled        bool // 사이징 엔진 활성화 (false면 DRYRUN_TRADES_DISABLED)
	ReconcileMaxAgeDays  int  // -1 이면 policy 값 사용
	BaseCurrency         string
	VerifiedMarker       string
	Cadence              string
	RetentionRunDays     int
	RetentionReportDays  int
	RetentionKeepCadence string
}

// ScheduleConfig holds cron expressions (seconds field included, optional CRON_TZ= prefix)
type ScheduleConfig struct {
	OpsRun               string
	ConfirmationDeadline string
	Retention            string
}

// APIConfig holds operator API settings
type APIConfig struct {
	RateLimit float64 // requests per second
	RateBurst int
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		StoreDriver: getEnv("STORE_DRIVER", StoreDriverPostgres),
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},
		SQLite: SQLiteConfig{
			Path: getEnv("SQLITE_PATH", "tradeops.db"),
		},

		Redis: RedisConfig{
			Host:          getEnv("REDIS_HOST", "localhost"),
			Port:          getEnv("REDIS_PORT", "6379"),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvAsInt("REDIS_DB", 0),
			Enabled:       getEnvAsBool("REDIS_ENABLED", false),
			Prefix:        getEnv("REDIS_PREFIX", "tradeops"),
			PriceCacheTTL: getEnvAsDuration("REDIS_PRICE_CACHE_TTL", "24h"),
			RunLockTTL:    getEnvAsDuration("REDIS_RUN_LOCK_TTL", "15m"),
		},

		Ops: OpsConfig{
			ArtifactsDir:         getEnv("ARTIFACTS_DIR", "artifacts"),
			PolicyPath:           getEnv("POLICY_PATH", "config/policy.yaml"),
			TradesEnabled:        getEnvAsBool("TRADES_ENABLED", false),
			ReconcileMaxAgeDays:  getEnvAsInt("RECONCILE_MAX_AGE_DAYS", -1),
			BaseCurrency:         getEnv("BASE_CURRENCY", "GBP"),
			VerifiedMarker:       getEnv("UNIVERSE_VERIFIED_MARKER", "ETORO_VERIFIED"),
			Cadence:              getEnv("OPS_CADENCE", "ops"),
			RetentionRunDays:     getEnvAsInt("RETENTION_RUN_DAYS", 14),
			RetentionReportDays:  getEnvAsInt("RETENTION_REPORT_DAYS", 30),
			RetentionKeepCadence: getEnv("RETENTION_PRUNE_CADENCE", "0800"),
		},

		Schedule: ScheduleConfig{
			OpsRun:               getEnv("SCHEDULE_OPS_RUN", "CRON_TZ=Europe/London 0 0 14 * * 1-5"),
			ConfirmationDeadline: getEnv("SCHEDULE_CONFIRMATION_DEADLINE", "CRON_TZ=Europe/London 0 55 13 * * 1-5"),
			Retention:            getEnv("SCHEDULE_RETENTION", "CRON_TZ=Europe/London 0 30 3 * * *"),
		},

		API: APIConfig{
			RateLimit: getEnvAsFloat("API_RATE_LIMIT", 5),
			RateBurst: getEnvAsInt("API_RATE_BURST", 10),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case StoreDriverSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be one of: postgres, sqlite")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Ops.ArtifactsDir == "" {
		return fmt.Errorf("ARTIFACTS_DIR is required")
	}

	if c.Ops.RetentionRunDays < 0 || c.Ops.RetentionReportDays < 0 {
		return fmt.Errorf("RETENTION_*_DAYS must be >= 0")
	}

	if c.API.RateLimit <= 0 || c.API.RateBurst <= 0 {
		return fmt.Errorf("API_RATE_LIMIT and API_RATE_BURST must be > 0")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
		"backend/.env",
		filepath.Join("config", "secrets.env"),
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
