package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, ModeDevelopment, c.Mode)
	assert.Empty(t, c.DBDSN)
	assert.True(t, c.InitialBalance.Equal(mustDec("10000")))
	assert.True(t, c.CommissionRate.Equal(mustDec("0.001")))
	assert.True(t, c.SlippagePercent.IsZero())
	assert.Equal(t, 5*time.Second, c.SweepInterval)
	assert.Equal(t, time.Minute, c.RecalcInterval)
	assert.Equal(t, 5, c.RetryMaxAttempts)
	assert.Equal(t, 5*time.Millisecond, c.RetryMinBackoff)
	assert.Equal(t, 200*time.Millisecond, c.RetryMaxBackoff)
	assert.Equal(t, 24*time.Hour, c.IdempotencyTTL)
	assert.Equal(t, time.Minute, c.IdempotencySweep)
	assert.Equal(t, time.Second, c.QuoteInterval)
	assert.Equal(t, 30*time.Second, c.QuoteMaxAge)
	assert.NotEmpty(t, c.Symbols)
	assert.Contains(t, c.SeedPrices, "BTCUSDT")
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("COMMISSION_RATE", "0.002")
	t.Setenv("SWEEP_INTERVAL", "250ms")
	t.Setenv("RETRY_MAX_ATTEMPTS", "9")
	t.Setenv("IDEMPOTENCY_TTL", "10m")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", c.HTTPAddr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.KafkaBrokers)
	assert.True(t, c.CommissionRate.Equal(mustDec("0.002")))
	assert.Equal(t, 250*time.Millisecond, c.SweepInterval)
	assert.Equal(t, 9, c.RetryMaxAttempts)
	assert.Equal(t, 10*time.Minute, c.IdempotencyTTL)
}

func TestLoadReportsEveryProblem(t *testing.T) {
	t.Setenv("PAPER_MODE", "production")
	t.Setenv("INITIAL_BALANCE", "lots")
	t.Setenv("SWEEP_INTERVAL", "often")

	_, err := Load()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "DB_DSN is required in production mode")
	assert.Contains(t, msg, "INITIAL_BALANCE must be a number")
	assert.Contains(t, msg, "SWEEP_INTERVAL must be a duration")
}

func TestLoadSymbolsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
symbols:
  - symbol: ADAUSDT
    step_size: "1"
    min_qty: "1"
    min_notional: "5"
    status: active
seed_prices:
  ADAUSDT: "0.45"
`), 0o644))
	t.Setenv("CONFIG_FILE", path)

	c, err := Load()
	require.NoError(t, err)
	require.Len(t, c.Symbols, 1)
	assert.Equal(t, "ADAUSDT", c.Symbols[0].Symbol)
	assert.Equal(t, "5", c.Symbols[0].MinNotional)
	require.Contains(t, c.SeedPrices, "ADAUSDT")
	assert.True(t, c.SeedPrices["ADAUSDT"].Equal(mustDec("0.45")))
}
