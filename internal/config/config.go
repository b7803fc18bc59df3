package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"circulation/internal/lending"
	"circulation/internal/models"
)

type StorageDriver string

const (
	StoragePostgres StorageDriver = "postgres"
	StorageFile     StorageDriver = "file"
	StorageMemory   StorageDriver = "memory"
)

type Config struct {
	ServerAddr    string
	Storage       StorageDriver
	DatabaseURL   string
	AutoMigrate   bool
	DataDir       string
	NotifyLogPath string
	NotifyStore   bool
	SweepInterval time.Duration
	Policy        lending.Policy
}

// Load reads a .env file when present, then the process environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		log.Println("[INFO] config: no .env file, using process environment")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function such as os.Getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		ServerAddr:    withDefault(getenv("SERVER_ADDR"), ":8080"),
		Storage:       StorageDriver(strings.ToLower(withDefault(getenv("STORAGE_DRIVER"), string(StorageMemory)))),
		DatabaseURL:   getenv("DATABASE_URL"),
		DataDir:       withDefault(getenv("DATA_DIR"), "data"),
		NotifyLogPath: withDefault(getenv("NOTIFY_LOG_PATH"), "logs/notifications.log"),
	}

	var err error
	if cfg.AutoMigrate, err = parseBool(getenv, "DB_AUTO_MIGRATE", false); err != nil {
		return nil, err
	}
	if cfg.NotifyStore, err = parseBool(getenv, "NOTIFY_STORE", true); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = parseDuration(getenv, "SWEEP_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}

	switch cfg.Storage {
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER=postgres")
		}
	case StorageFile, StorageMemory:
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.Storage)
	}

	if cfg.Policy, err = loadPolicy(getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadPolicy starts from the default loan terms and applies <CATEGORY>_LOAN_DAYS and
// <CATEGORY>_FINE_PER_DAY overrides.
func loadPolicy(getenv func(string) string) (lending.Policy, error) {
	policy := lending.DefaultPolicy()
	for category, current := range policy {
		prefix := string(category)

		days := current.BorrowPeriodDays()
		if v := getenv(prefix + "_LOAN_DAYS"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("%s_LOAN_DAYS: %w", prefix, err)
			}
			days = n
		}

		rate := current.RatePerDay()
		if v := getenv(prefix + "_FINE_PER_DAY"); v != "" {
			d, err := decimal.NewFromString(v)
			if err != nil {
				return nil, fmt.Errorf("%s_FINE_PER_DAY: %w", prefix, err)
			}
			rate = d
		}

		strategy, err := lending.NewFineStrategy(days, rate)
		if err != nil {
			return nil, fmt.Errorf("%s loan terms: %w", prefix, err)
		}
		policy[models.ItemCategory(prefix)] = strategy
	}
	return policy, nil
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func parseBool(getenv func(string) string, key string, def bool) (bool, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func parseDuration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
