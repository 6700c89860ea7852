package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN builds the connection string for lib/pq.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Config crisis engine configuration.
// All severity thresholds, timeouts and caps are tunable via environment
// variables so they never have to be changed in code.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig

	// Lexicon configuration
	Lexicon struct {
		Path        string // YAML lexicon file; empty means built-in lexicon
		WatchReload bool   // hot-reload the lexicon file on change
	}

	// Analyzer configuration
	Analyzer struct {
		ScanLimit         int     // max characters scanned per text (cost control)
		MediumThreshold   float64 // aggregate score >= this -> medium
		HighThreshold     float64 // aggregate score >= this -> high
		CriticalThreshold float64 // aggregate score >= this -> critical
	}

	// Dispatcher configuration
	Dispatcher struct {
		GatewayURL     string        // notification gateway endpoint
		MaxContacts    int           // contacts attempted per alert
		AttemptTimeout time.Duration // per-contact dispatch timeout
	}

	// Lifecycle configuration
	Lifecycle struct {
		ActionTimeout time.Duration // per-action budget during Execute
		TotalBudget   time.Duration // wall-clock budget for one Execute pass
		ResolutionSLA time.Duration // criticals unresolved past this are flagged
		WatchInterval time.Duration // escalation watchdog poll interval
	}

	// Cache configuration
	Cache struct {
		ActiveAlertKeyPrefix string // key prefix for the per-user active alert index
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "wellness")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Lexicon.Path = getEnv("LEXICON_PATH", "")
	cfg.Lexicon.WatchReload = getEnv("LEXICON_WATCH", "true") == "true"

	cfg.Analyzer.ScanLimit = getEnvInt("ANALYZER_SCAN_LIMIT", 2000)
	cfg.Analyzer.MediumThreshold = getEnvFloat("ANALYZER_MEDIUM_THRESHOLD", 3)
	cfg.Analyzer.HighThreshold = getEnvFloat("ANALYZER_HIGH_THRESHOLD", 5)
	cfg.Analyzer.CriticalThreshold = getEnvFloat("ANALYZER_CRITICAL_THRESHOLD", 8)

	cfg.Dispatcher.GatewayURL = getEnv("NOTIFY_GATEWAY_URL", "http://localhost:8090/notify")
	cfg.Dispatcher.MaxContacts = getEnvInt("DISPATCH_MAX_CONTACTS", 3)
	cfg.Dispatcher.AttemptTimeout = getEnvDuration("DISPATCH_ATTEMPT_TIMEOUT", 5*time.Second)

	cfg.Lifecycle.ActionTimeout = getEnvDuration("LIFECYCLE_ACTION_TIMEOUT", 5*time.Second)
	cfg.Lifecycle.TotalBudget = getEnvDuration("LIFECYCLE_TOTAL_BUDGET", 15*time.Second)
	cfg.Lifecycle.ResolutionSLA = getEnvDuration("LIFECYCLE_RESOLUTION_SLA", 4*time.Hour)
	cfg.Lifecycle.WatchInterval = getEnvDuration("LIFECYCLE_WATCH_INTERVAL", 60*time.Second)

	cfg.Cache.ActiveAlertKeyPrefix = getEnv("CACHE_ACTIVE_ALERT_PREFIX", "crisis:active:")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	// Thresholds must stay ordered or classification becomes ambiguous.
	if !(cfg.Analyzer.MediumThreshold < cfg.Analyzer.HighThreshold &&
		cfg.Analyzer.HighThreshold < cfg.Analyzer.CriticalThreshold) {
		return nil, fmt.Errorf("analyzer thresholds must be strictly increasing: medium=%v high=%v critical=%v",
			cfg.Analyzer.MediumThreshold, cfg.Analyzer.HighThreshold, cfg.Analyzer.CriticalThreshold)
	}
	if cfg.Analyzer.ScanLimit <= 0 {
		return nil, fmt.Errorf("ANALYZER_SCAN_LIMIT must be positive, got %d", cfg.Analyzer.ScanLimit)
	}
	if cfg.Dispatcher.MaxContacts <= 0 {
		return nil, fmt.Errorf("DISPATCH_MAX_CONTACTS must be positive, got %d", cfg.Dispatcher.MaxContacts)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
