// Package config loads the engine configuration from a JSON file with
// environment variable overrides. Environment values take precedence so
// deployments can keep credentials out of the file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"upbit-trading-bot/internal/api"
	"upbit-trading-bot/internal/database"
	"upbit-trading-bot/internal/logging"
	"upbit-trading-bot/internal/money"
	"upbit-trading-bot/internal/risk"
)

type Config struct {
	UpbitConfig    UpbitConfig    `json:"upbit"`
	TradingConfig  TradingConfig  `json:"trading"`
	RiskConfig     RiskConfig     `json:"risk"`
	FeesConfig     FeesConfig     `json:"fees"`
	StateConfig    StateConfig    `json:"state"`
	DatabaseConfig DatabaseConfig `json:"database"`
	ServerConfig   ServerConfig   `json:"server"`
	AdvisorConfig  AdvisorConfig  `json:"advisor"`
	VaultConfig    VaultConfig    `json:"vault"`
	LoggingConfig  logging.Config `json:"logging"`
}

// UpbitConfig holds venue credentials and endpoints. Keys may come from
// the file, the environment or Vault; Vault wins when enabled.
type UpbitConfig struct {
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	BaseURL   string `json:"base_url"`
	WSURL     string `json:"ws_url"`
}

type TradingConfig struct {
	Ticker          string  `json:"ticker"`
	IntervalSeconds int     `json:"interval_seconds"`
	CandleUnitMins  int     `json:"candle_unit_minutes"`
	DryRun          bool    `json:"dry_run"` // simulated fills, no venue orders
	MinConfidence   float64 `json:"min_confidence"`
	SlippagePct     float64 `json:"slippage_pct"` // simulated fills only
	AdoptHolding    bool    `json:"adopt_holding"`
}

// RiskConfig mirrors risk.Limits with JSON-friendly scalar fields.
// Percentages are decimal ratios: -0.05 means -5%.
type RiskConfig struct {
	StopLossPct           float64 `json:"stop_loss_pct"`
	TakeProfitPct         float64 `json:"take_profit_pct"`
	UseATRStops           bool    `json:"use_atr_stops"`
	ATRStopMultiplier     float64 `json:"atr_stop_multiplier"`
	ATRProfitMultiplier   float64 `json:"atr_profit_multiplier"`
	DailyLossLimitPct     float64 `json:"daily_loss_limit_pct"`
	WeeklyLossLimitPct    float64 `json:"weekly_loss_limit_pct"`
	MinTradeIntervalHours float64 `json:"min_trade_interval_hours"`
	MaxTradesPerDay       int     `json:"max_trades_per_day"`
	MinPositionSizePct    float64 `json:"min_position_size_pct"`
	MaxPositionSizePct    float64 `json:"max_position_size_pct"`
	RiskPerTradePct       float64 `json:"risk_per_trade_pct"`
	TrailingStopEnabled   bool    `json:"trailing_stop_enabled"`
	TrailingATRMultiplier float64 `json:"trailing_atr_multiplier"`
	PartialTP1Pct         float64 `json:"partial_tp1_pct"`
	PartialTP2Pct         float64 `json:"partial_tp2_pct"`
	PartialSellRatio      float64 `json:"partial_sell_ratio"`
}

// ToLimits converts the scalar risk config into a validated policy.
func (rc RiskConfig) ToLimits() (risk.Limits, error) {
	ratio, err := money.RatioFromFloat(rc.PartialSellRatio)
	if err != nil {
		return risk.Limits{}, fmt.Errorf("invalid partial sell ratio: %w", err)
	}

	limits := risk.Limits{
		StopLossPct:           money.PctFromFloat(rc.StopLossPct),
		TakeProfitPct:         money.PctFromFloat(rc.TakeProfitPct),
		UseATRStops:           rc.UseATRStops,
		ATRStopMultiplier:     rc.ATRStopMultiplier,
		ATRProfitMultiplier:   rc.ATRProfitMultiplier,
		DailyLossLimitPct:     money.PctFromFloat(rc.DailyLossLimitPct),
		WeeklyLossLimitPct:    money.PctFromFloat(rc.WeeklyLossLimitPct),
		MinTradeIntervalHours: rc.MinTradeIntervalHours,
		MaxTradesPerDay:       rc.MaxTradesPerDay,
		MinPositionSizePct:    money.PctFromFloat(rc.MinPositionSizePct),
		MaxPositionSizePct:    money.PctFromFloat(rc.MaxPositionSizePct),
		RiskPerTradePct:       money.PctFromFloat(rc.RiskPerTradePct),
		TrailingStopEnabled:   rc.TrailingStopEnabled,
		TrailingATRMultiplier: rc.TrailingATRMultiplier,
		PartialTP1Pct:         money.PctFromFloat(rc.PartialTP1Pct),
		PartialTP2Pct:         money.PctFromFloat(rc.PartialTP2Pct),
		PartialSellRatio:      ratio,
	}
	if err := limits.Validate(); err != nil {
		return risk.Limits{}, err
	}
	return limits, nil
}

type FeesConfig struct {
	Rate   float64 `json:"rate"`    // e.g. 0.0005 for Upbit KRW markets
	MinKRW int64   `json:"min_krw"` // minimum fee floor
}

// StateConfig selects the risk state backend.
type StateConfig struct {
	Backend  string `json:"backend"` // "file" or "redis"
	FilePath string `json:"file_path"`
	Redis    struct {
		Address  string `json:"address"`
		Password string `json:"password"`
		DB       int    `json:"db"`
	} `json:"redis"`
}

type DatabaseConfig struct {
	Enabled bool `json:"enabled"`
	database.Config
}

type ServerConfig struct {
	Enabled bool `json:"enabled"`
	api.ServerConfig
}

type AdvisorConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// VaultConfig holds HashiCorp Vault configuration for API key storage.
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
}

// Load reads config.json (when present) and applies environment
// overrides and defaults.
func Load(filename string) (*Config, error) {
	cfg, err := loadFromFile(filename)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return &config, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.UpbitConfig.AccessKey = getEnvOrDefault("UPBIT_ACCESS_KEY", cfg.UpbitConfig.AccessKey)
	cfg.UpbitConfig.SecretKey = getEnvOrDefault("UPBIT_SECRET_KEY", cfg.UpbitConfig.SecretKey)
	cfg.UpbitConfig.BaseURL = getEnvOrDefault("UPBIT_BASE_URL", cfg.UpbitConfig.BaseURL)

	cfg.TradingConfig.Ticker = getEnvOrDefault("TRADING_TICKER", cfg.TradingConfig.Ticker)
	if os.Getenv("TRADING_DRY_RUN") != "" {
		cfg.TradingConfig.DryRun = getEnvOrDefault("TRADING_DRY_RUN", "false") == "true"
	}

	cfg.StateConfig.Backend = getEnvOrDefault("STATE_BACKEND", cfg.StateConfig.Backend)
	cfg.StateConfig.FilePath = getEnvOrDefault("STATE_FILE_PATH", cfg.StateConfig.FilePath)
	cfg.StateConfig.Redis.Address = getEnvOrDefault("REDIS_ADDR", cfg.StateConfig.Redis.Address)
	cfg.StateConfig.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.StateConfig.Redis.Password)

	if os.Getenv("DATABASE_ENABLED") != "" {
		cfg.DatabaseConfig.Enabled = getEnvOrDefault("DATABASE_ENABLED", "false") == "true"
	}
	cfg.DatabaseConfig.Host = getEnvOrDefault("DATABASE_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DATABASE_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DATABASE_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DATABASE_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DATABASE_NAME", cfg.DatabaseConfig.Database)

	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)

	cfg.AdvisorConfig.BaseURL = getEnvOrDefault("ADVISOR_BASE_URL", cfg.AdvisorConfig.BaseURL)

	if os.Getenv("VAULT_ENABLED") != "" {
		cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	}
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
}

func applyDefaults(cfg *Config) {
	if cfg.TradingConfig.Ticker == "" {
		cfg.TradingConfig.Ticker = "KRW-BTC"
	}
	if cfg.TradingConfig.IntervalSeconds <= 0 {
		cfg.TradingConfig.IntervalSeconds = 60
	}
	if cfg.TradingConfig.CandleUnitMins <= 0 {
		cfg.TradingConfig.CandleUnitMins = 60
	}
	if cfg.TradingConfig.MinConfidence <= 0 {
		cfg.TradingConfig.MinConfidence = 0.6
	}

	if cfg.RiskConfig == (RiskConfig{}) {
		cfg.RiskConfig = defaultRiskConfig()
	}
	if cfg.FeesConfig.Rate <= 0 {
		cfg.FeesConfig.Rate = 0.0005
	}
	if cfg.FeesConfig.MinKRW <= 0 {
		cfg.FeesConfig.MinKRW = 100
	}

	if cfg.StateConfig.Backend == "" {
		cfg.StateConfig.Backend = "file"
	}
	if cfg.StateConfig.FilePath == "" {
		cfg.StateConfig.FilePath = "data/risk_state"
	}
	if cfg.StateConfig.Redis.Address == "" {
		cfg.StateConfig.Redis.Address = "localhost:6379"
	}

	if cfg.DatabaseConfig.Host == "" {
		cfg.DatabaseConfig.Host = "localhost"
	}
	if cfg.DatabaseConfig.Port <= 0 {
		cfg.DatabaseConfig.Port = 5432
	}
	if cfg.DatabaseConfig.SSLMode == "" {
		cfg.DatabaseConfig.SSLMode = "disable"
	}

	if cfg.ServerConfig.Host == "" {
		cfg.ServerConfig.Host = "0.0.0.0"
	}
	if cfg.ServerConfig.Port <= 0 {
		cfg.ServerConfig.Port = 8080
	}

	if cfg.AdvisorConfig.TimeoutSeconds <= 0 {
		cfg.AdvisorConfig.TimeoutSeconds = 30
	}

	if cfg.VaultConfig.Address == "" {
		cfg.VaultConfig.Address = "http://localhost:8200"
	}
	if cfg.VaultConfig.MountPath == "" {
		cfg.VaultConfig.MountPath = "secret"
	}
	if cfg.VaultConfig.SecretPath == "" {
		cfg.VaultConfig.SecretPath = "upbit-bot/api-keys"
	}

	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "info"
	}
}

func defaultRiskConfig() RiskConfig {
	return RiskConfig{
		StopLossPct:           -0.05,
		TakeProfitPct:         0.10,
		ATRStopMultiplier:     2.0,
		ATRProfitMultiplier:   3.0,
		DailyLossLimitPct:     -0.10,
		WeeklyLossLimitPct:    -0.20,
		MinTradeIntervalHours: 1.0,
		MaxTradesPerDay:       10,
		MinPositionSizePct:    0.05,
		MaxPositionSizePct:    0.30,
		RiskPerTradePct:       0.01,
		TrailingATRMultiplier: 2.0,
		PartialTP1Pct:         0.05,
		PartialTP2Pct:         0.10,
		PartialSellRatio:      0.5,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// GenerateSampleConfig writes a starter configuration file.
func GenerateSampleConfig(filename string) error {
	cfg := &Config{
		UpbitConfig: UpbitConfig{
			AccessKey: "your_access_key_here",
			SecretKey: "your_secret_key_here",
		},
		TradingConfig: TradingConfig{
			Ticker:          "KRW-BTC",
			IntervalSeconds: 60,
			CandleUnitMins:  60,
			DryRun:          true,
			MinConfidence:   0.6,
		},
		RiskConfig: defaultRiskConfig(),
		FeesConfig: FeesConfig{Rate: 0.0005, MinKRW: 100},
		AdvisorConfig: AdvisorConfig{
			BaseURL:        "http://localhost:9000",
			TimeoutSeconds: 30,
		},
		LoggingConfig: logging.Config{Level: "info", Pretty: true},
	}
	applyDefaults(cfg)

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
