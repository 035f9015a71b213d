package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := fromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "postgres", cfg.App.Store)
	assert.Equal(t, "FIFO", cfg.Ledger.AllocationStrategy)
	assert.True(t, cfg.Ledger.CostFallbackToPrice)
	assert.Equal(t, 3, cfg.Ledger.MaxConsumeRetries)
	assert.Equal(t, []string{"pos_sale", "credit_sale"}, cfg.Ledger.VoucherReasons)
	assert.Equal(t, 3*time.Second, cfg.Ledger.VoucherTimeout)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.PubSub.Enabled())
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
}

func TestFromViper_Overrides(t *testing.T) {
	v := viper.New()
	v.Set("APP_STORE", "MEMORY")
	v.Set("LEDGER_ALLOCATION_STRATEGY", "lifo")
	v.Set("LEDGER_COST_FALLBACK_TO_PRICE", "false")
	v.Set("LEDGER_VOUCHER_REASONS", "pos_sale, layaway ,")
	v.Set("LEDGER_MAX_CONSUME_RETRIES", "-2")
	v.Set("REDIS_ADDRESS", "localhost:6379")

	cfg, err := fromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.App.Store)
	assert.Equal(t, "LIFO", cfg.Ledger.AllocationStrategy)
	assert.False(t, cfg.Ledger.CostFallbackToPrice)
	assert.Equal(t, []string{"pos_sale", "layaway"}, cfg.Ledger.VoucherReasons)
	assert.Equal(t, 0, cfg.Ledger.MaxConsumeRetries)
	assert.True(t, cfg.Redis.Enabled())
}

func TestFromViper_RejectsUnknownStrategy(t *testing.T) {
	v := viper.New()
	v.Set("LEDGER_ALLOCATION_STRATEGY", "RANDOM")
	_, err := fromViper(v)
	assert.Error(t, err)
}

func TestDBConfig_DSNEscapesPassword(t *testing.T) {
	c := DBConfig{Host: "db", Port: 5432, User: "ledger", Password: "p@ss:w/rd", DBName: "kardex", SSLMode: "disable"}
	assert.Equal(t, "postgres://ledger:p%40ss%3Aw%2Frd@db:5432/kardex?sslmode=disable", c.DSN())

	c.DatabaseURL = "postgres://x@y/z"
	assert.Equal(t, "postgres://x@y/z", c.ConnectionString())
}
