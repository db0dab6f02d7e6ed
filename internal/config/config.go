package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Config holds all configuration
type Config struct {
	MySQL    MySQLConfig
	Redis    RedisConfig
	Migrate  bool
	HTTPAddr string
	Sync     SyncConfig
	Watchdog WatchdogConfig
	Notifier NotifierConfig
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	DSN string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// SyncConfig holds sync-layer configuration
type SyncConfig struct {
	PollSec int
	MaxJobs int
}

// WatchdogConfig holds cascade watchdog configuration
type WatchdogConfig struct {
	Enabled     bool
	IntervalSec int
	BatchSize   int
}

// NotifierConfig holds notification dispatch configuration
type NotifierConfig struct {
	Channel string
}

// Load loads configuration from environment variables, with .env support
func Load() (*Config, error) {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: os.Getenv("MYSQL_DSN"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASS", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Migrate:  getEnvBool("MIGRATE", false),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		Sync: SyncConfig{
			PollSec: getEnvInt("SYNC_POLL_SEC", 10),
			MaxJobs: getEnvInt("SYNC_MAX_JOBS", 200),
		},
		Watchdog: WatchdogConfig{
			Enabled:     getEnvBool("WATCHDOG_ENABLED", true),
			IntervalSec: getEnvInt("WATCHDOG_INTERVAL_SEC", 60),
			BatchSize:   getEnvInt("WATCHDOG_BATCH_SIZE", 50),
		},
		Notifier: NotifierConfig{
			Channel: getEnv("NOTIFY_CHANNEL", "fleetops:job-status"),
		},
	}

	if cfg.MySQL.DSN == "" {
		return nil, fmt.Errorf("MYSQL_DSN is required")
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
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "1" || value == "true"
	}
	return defaultValue
}

// LoadFromINI loads configuration from an INI file with environment
// variable override. Priority: ENV > INI > default.
func LoadFromINI(iniPath string) (*Config, error) {
	cfgFile, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load INI file: %w", err)
	}

	getValue := func(envKey, iniSection, iniKey, defaultValue string) string {
		if value := os.Getenv(envKey); value != "" {
			return value
		}
		if value := cfgFile.Section(iniSection).Key(iniKey).String(); value != "" {
			return value
		}
		return defaultValue
	}

	getValueInt := func(envKey, iniSection, iniKey string, defaultValue int) int {
		if value := os.Getenv(envKey); value != "" {
			if intValue, err := strconv.Atoi(value); err == nil {
				return intValue
			}
		}
		if cfgFile.Section(iniSection).HasKey(iniKey) {
			if value, err := cfgFile.Section(iniSection).Key(iniKey).Int(); err == nil {
				return value
			}
		}
		return defaultValue
	}

	getValueBool := func(envKey, iniSection, iniKey string, defaultValue bool) bool {
		if value := os.Getenv(envKey); value != "" {
			return value == "1" || value == "true"
		}
		if value, err := cfgFile.Section(iniSection).Key(iniKey).Bool(); err == nil {
			return value
		}
		return defaultValue
	}

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getValue("MYSQL_DSN", "mysql", "dsn", ""),
		},
		Redis: RedisConfig{
			Enabled:  getValueBool("REDIS_ENABLED", "redis", "enabled", true),
			Addr:     getValue("REDIS_ADDR", "redis", "addr", "localhost:6379"),
			Password: getValue("REDIS_PASS", "redis", "pass", ""),
			DB:       getValueInt("REDIS_DB", "redis", "db", 0),
		},
		Migrate:  getValueBool("MIGRATE", "app", "migrate", false),
		HTTPAddr: getValue("HTTP_ADDR", "http", "addr", ":8080"),
		Sync: SyncConfig{
			PollSec: getValueInt("SYNC_POLL_SEC", "sync", "poll_sec", 10),
			MaxJobs: getValueInt("SYNC_MAX_JOBS", "sync", "max_jobs", 200),
		},
		Watchdog: WatchdogConfig{
			Enabled:     getValueBool("WATCHDOG_ENABLED", "watchdog", "enabled", true),
			IntervalSec: getValueInt("WATCHDOG_INTERVAL_SEC", "watchdog", "interval_sec", 60),
			BatchSize:   getValueInt("WATCHDOG_BATCH_SIZE", "watchdog", "batch_size", 50),
		},
		Notifier: NotifierConfig{
			Channel: getValue("NOTIFY_CHANNEL", "notify", "channel", "fleetops:job-status"),
		},
	}

	if cfg.MySQL.DSN == "" {
		return nil, fmt.Errorf("MYSQL_DSN is required")
	}

	return cfg, nil
}
