package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

type Config struct {
	HTTPAddr     string
	DBDSN        string
	RedisAddr    string
	KafkaBrokers []string
	KafkaTopic   string
	Mode         string

	InitialBalance  decimal.Decimal
	CommissionRate  decimal.Decimal
	SlippagePercent decimal.Decimal

	SweepInterval    time.Duration
	RecalcInterval   time.Duration
	RetryMaxAttempts int
	RetryMinBackoff  time.Duration
	RetryMaxBackoff  time.Duration
	PriceTimeout     time.Duration
	SymbolCacheTTL   time.Duration
	IdempotencyTTL   time.Duration
	IdempotencySweep time.Duration
	QuoteInterval    time.Duration
	QuoteMaxAge      time.Duration

	LogLevel  string
	LogFormat string
	LogFile   string

	Symbols    []Symbol
	SeedPrices map[string]decimal.Decimal
}

// Symbol is a trading rule as written in the config file.
type Symbol struct {
	Symbol      string `mapstructure:"symbol"`
	StepSize    string `mapstructure:"step_size"`
	MinQty      string `mapstructure:"min_qty"`
	MinNotional string `mapstructure:"min_notional"`
	Status      string `mapstructure:"status"`
}

var defaultSymbols = []Symbol{
	{Symbol: "BTCUSDT", StepSize: "0.00001", MinQty: "0.00001", MinNotional: "10", Status: "active"},
	{Symbol: "ETHUSDT", StepSize: "0.0001", MinQty: "0.0001", MinNotional: "10", Status: "active"},
	{Symbol: "SOLUSDT", StepSize: "0.01", MinQty: "0.01", MinNotional: "5", Status: "active"},
}

var defaultSeedPrices = map[string]string{
	"BTCUSDT": "50000",
	"ETHUSDT": "3000",
	"SOLUSDT": "150",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("kafka_topic", "paper-ledger.events")
	v.SetDefault("paper_mode", ModeDevelopment)
	v.SetDefault("initial_balance", "10000")
	v.SetDefault("commission_rate", "0.001")
	v.SetDefault("slippage_percent", "0")
	v.SetDefault("sweep_interval", "5s")
	v.SetDefault("recalc_interval", "1m")
	v.SetDefault("retry_max_attempts", 5)
	v.SetDefault("retry_min_backoff", "5ms")
	v.SetDefault("retry_max_backoff", "200ms")
	v.SetDefault("price_timeout", "2s")
	v.SetDefault("symbol_cache_ttl", "5m")
	v.SetDefault("idempotency_ttl", "24h")
	v.SetDefault("idempotency_sweep_interval", "1m")
	v.SetDefault("quote_interval", "1s")
	v.SetDefault("quote_max_age", "30s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// Load reads the environment and, when CONFIG_FILE is set, a YAML file for
// symbol rules and seed prices. Every problem found is reported in one error.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var c Config
	var problems []string
	c.HTTPAddr = strings.TrimSpace(v.GetString("http_addr"))
	if c.HTTPAddr == "" {
		problems = append(problems, "HTTP_ADDR is empty")
	}
	c.DBDSN = strings.TrimSpace(v.GetString("db_dsn"))
	c.RedisAddr = strings.TrimSpace(v.GetString("redis_addr"))
	c.KafkaBrokers = splitList(v.GetString("kafka_brokers"))
	c.KafkaTopic = strings.TrimSpace(v.GetString("kafka_topic"))
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		problems = append(problems, "KAFKA_TOPIC is required with KAFKA_BROKERS")
	}

	c.Mode = strings.ToLower(strings.TrimSpace(v.GetString("paper_mode")))
	switch c.Mode {
	case ModeDevelopment:
	case ModeProduction:
		if c.DBDSN == "" {
			problems = append(problems, "DB_DSN is required in production mode")
		}
	default:
		problems = append(problems, "PAPER_MODE must be development or production")
	}

	c.InitialBalance = decimalKey(v, "initial_balance", &problems)
	if !c.InitialBalance.IsPositive() {
		problems = append(problems, "INITIAL_BALANCE must be positive")
	}
	c.CommissionRate = decimalKey(v, "commission_rate", &problems)
	c.SlippagePercent = decimalKey(v, "slippage_percent", &problems)

	c.SweepInterval = durationKey(v, "sweep_interval", &problems)
	c.RecalcInterval = durationKey(v, "recalc_interval", &problems)
	c.RetryMinBackoff = durationKey(v, "retry_min_backoff", &problems)
	c.RetryMaxBackoff = durationKey(v, "retry_max_backoff", &problems)
	c.PriceTimeout = durationKey(v, "price_timeout", &problems)
	c.SymbolCacheTTL = durationKey(v, "symbol_cache_ttl", &problems)
	c.IdempotencyTTL = durationKey(v, "idempotency_ttl", &problems)
	c.IdempotencySweep = durationKey(v, "idempotency_sweep_interval", &problems)
	if c.IdempotencyTTL <= 0 || c.IdempotencySweep <= 0 {
		problems = append(problems, "IDEMPOTENCY_TTL and IDEMPOTENCY_SWEEP_INTERVAL must be positive")
	}
	c.QuoteInterval = durationKey(v, "quote_interval", &problems)
	c.QuoteMaxAge = durationKey(v, "quote_max_age", &problems)
	if c.QuoteInterval <= 0 {
		problems = append(problems, "QUOTE_INTERVAL must be positive")
	}
	if c.SweepInterval <= 0 || c.RecalcInterval <= 0 {
		problems = append(problems, "SWEEP_INTERVAL and RECALC_INTERVAL must be positive")
	}
	if c.RetryMaxBackoff < c.RetryMinBackoff {
		problems = append(problems, "RETRY_MAX_BACKOFF must not be below RETRY_MIN_BACKOFF")
	}
	c.RetryMaxAttempts = v.GetInt("retry_max_attempts")
	if c.RetryMaxAttempts < 1 {
		problems = append(problems, "RETRY_MAX_ATTEMPTS must be at least 1")
	}

	c.LogLevel = v.GetString("log_level")
	c.LogFormat = v.GetString("log_format")
	c.LogFile = v.GetString("log_file")

	c.Symbols = defaultSymbols
	if v.IsSet("symbols") {
		var syms []Symbol
		if err := v.UnmarshalKey("symbols", &syms); err != nil {
			problems = append(problems, "symbols: "+err.Error())
		} else {
			c.Symbols = syms
		}
	}
	seeds := defaultSeedPrices
	if v.IsSet("seed_prices") {
		seeds = v.GetStringMapString("seed_prices")
	}
	c.SeedPrices = make(map[string]decimal.Decimal, len(seeds))
	for sym, raw := range seeds {
		price, err := decimal.NewFromString(raw)
		if err != nil || !price.IsPositive() {
			problems = append(problems, fmt.Sprintf("seed price for %s must be a positive number, got %q", sym, raw))
			continue
		}
		// Viper lower-cases map keys.
		c.SeedPrices[strings.ToUpper(sym)] = price
	}

	if len(problems) > 0 {
		return c, errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return c, nil
}

func decimalKey(v *viper.Viper, key string, problems *[]string) decimal.Decimal {
	raw := strings.TrimSpace(v.GetString(key))
	d, err := decimal.NewFromString(raw)
	if err != nil {
		*problems = append(*problems, fmt.Sprintf("%s must be a number, got %q", strings.ToUpper(key), raw))
		return decimal.Zero
	}
	return d
}

func durationKey(v *viper.Viper, key string, problems *[]string) time.Duration {
	raw := strings.TrimSpace(v.GetString(key))
	d, err := time.ParseDuration(raw)
	if err != nil {
		*problems = append(*problems, fmt.Sprintf("%s must be a duration, got %q", strings.ToUpper(key), raw))
		return 0
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
