package config_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circulation/internal/config"
	"circulation/internal/models"
)

func envOf(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func Test_FromEnv_Defaults(t *testing.T) {
	cfg, err := config.FromEnv(envOf(nil))

	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, config.StorageMemory, cfg.Storage)
	assert.Equal(t, 24*time.Hour, cfg.SweepInterval)
	assert.True(t, cfg.NotifyStore)

	book, err := cfg.Policy.StrategyFor(models.ItemCategoryBook)
	require.NoError(t, err)
	assert.Equal(t, 28, book.BorrowPeriodDays())
	assert.True(t, decimal.NewFromInt(10).Equal(book.RatePerDay()))
}

func Test_FromEnv_PolicyOverrides(t *testing.T) {
	cfg, err := config.FromEnv(envOf(map[string]string{
		"CD_LOAN_DAYS":         "3",
		"CD_FINE_PER_DAY":      "1.5",
		"JOURNAL_FINE_PER_DAY": "0",
	}))
	require.NoError(t, err)

	cd, err := cfg.Policy.StrategyFor(models.ItemCategoryCD)
	require.NoError(t, err)
	assert.Equal(t, 3, cd.BorrowPeriodDays())
	assert.Equal(t, "1.5", cd.RatePerDay().String())

	journal, err := cfg.Policy.StrategyFor(models.ItemCategoryJournal)
	require.NoError(t, err)
	assert.True(t, journal.RatePerDay().IsZero())
}

func Test_FromEnv_RejectsInvalidValues(t *testing.T) {
	testCases := map[string]map[string]string{
		"postgres without url": {"STORAGE_DRIVER": "postgres"},
		"unknown driver":       {"STORAGE_DRIVER": "mongo"},
		"bad loan days":        {"BOOK_LOAN_DAYS": "many"},
		"zero loan days":       {"BOOK_LOAN_DAYS": "0"},
		"negative fine":        {"CD_FINE_PER_DAY": "-2"},
		"bad interval":         {"SWEEP_INTERVAL": "soon"},
		"bad bool":             {"NOTIFY_STORE": "perhaps"},
	}

	for name, env := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := config.FromEnv(envOf(env))
			assert.Error(t, err)
		})
	}
}

func Test_FromEnv_Postgres(t *testing.T) {
	cfg, err := config.FromEnv(envOf(map[string]string{
		"STORAGE_DRIVER":  "Postgres",
		"DATABASE_URL":    "postgres://localhost/lending",
		"DB_AUTO_MIGRATE": "true",
	}))

	require.NoError(t, err)
	assert.Equal(t, config.StoragePostgres, cfg.Storage)
	assert.True(t, cfg.AutoMigrate)
}
