package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration, loaded once at startup.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string

	HTTPAddr string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	// LedgerBackend selects where usage counters live: "sql" or "redis".
	LedgerBackend string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// StoreTimeoutMillis bounds every ledger store call. A store call that
	// misses this deadline is reported as unavailable, never as zero usage.
	StoreTimeoutMillis int64

	// PlanCatalogPath optionally points at a plans.yml overriding the
	// built-in catalog. Read once; a redeploy is required to change limits.
	PlanCatalogPath string

	Flags FlagConfig
}

// FlagConfig carries deployment-wide kill switches. Immutable after Load;
// changing one requires a restart.
type FlagConfig struct {
	DisablePDFExport      bool
	DisableAISuggestions  bool
	DisableResumeCreation bool
}

const (
	LedgerBackendSQL   = "sql"
	LedgerBackendRedis = "redis"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "entitled"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "entitled"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 25)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),

		LedgerBackend: normalizeLedgerBackend(getenv("LEDGER_BACKEND", LedgerBackendSQL)),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
		RedisDB:       int(getenvInt64("REDIS_DB", 0)),

		StoreTimeoutMillis: getenvInt64("STORE_TIMEOUT_MS", 2000),

		PlanCatalogPath: strings.TrimSpace(getenv("PLAN_CATALOG_PATH", "")),

		Flags: FlagConfig{
			DisablePDFExport:      getenvBool("FLAG_DISABLE_PDF_EXPORT", false),
			DisableAISuggestions:  getenvBool("FLAG_DISABLE_AI_SUGGESTIONS", false),
			DisableResumeCreation: getenvBool("FLAG_DISABLE_RESUME_CREATION", false),
		},
	}
}

func normalizeLedgerBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case LedgerBackendRedis:
		return LedgerBackendRedis
	default:
		return LedgerBackendSQL
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

var Module = fx.Module("config",
	fx.Provide(Load),
)
