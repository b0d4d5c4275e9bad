package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"nofx/logger"
)

// RiskConfig 风控相关的可配置项，对应 spec §6 "Configuration (recognized options)"
type RiskConfig struct {
	MinTradeUSD           float64    `json:"min_trade"`
	MaxTradeUSD           float64    `json:"max_trade"`
	MaxOpenPositions      int        `json:"max_open_positions"`
	MaxPositionsPerSymbol int        `json:"max_positions_per_symbol"`
	MaxLeverage           int        `json:"max_leverage"`
	FeeRate               float64    `json:"fee_rate"`
	StopLossRangePct      [2]float64 `json:"stop_loss_range_pct"`
	TakeProfitRangePct    [2]float64 `json:"take_profit_range_pct"`
	GridLevelMin          int        `json:"grid_level_min"`
	GridLevelMax          int        `json:"grid_level_max"`
	GridInvestmentMin     float64    `json:"grid_investment_min"`
	GridInvestmentMax     float64    `json:"grid_investment_max"`
}

// SetDefaults 设置风控默认值
func (r *RiskConfig) SetDefaults() {
	if r.MaxOpenPositions == 0 {
		r.MaxOpenPositions = 5
	}
	if r.MaxPositionsPerSymbol == 0 {
		r.MaxPositionsPerSymbol = 1
	}
	if r.MaxLeverage == 0 {
		r.MaxLeverage = 10
	}
	if r.MaxTradeUSD == 0 {
		r.MaxTradeUSD = 100000
	}
	if r.GridLevelMax == 0 {
		r.GridLevelMax = 50
	}
	if r.GridLevelMin == 0 {
		r.GridLevelMin = 3
	}
}

// SchedulerConfig 调度相关的可配置项
type SchedulerConfig struct {
	DecisionIntervalSeconds    int `json:"decision_interval_seconds"`
	ReconcileIntervalSeconds   int `json:"reconcile_interval_seconds"`
	GridMonitorIntervalSeconds int `json:"grid_monitor_interval_seconds"`
	MarketCacheTTLSeconds      int `json:"market_cache_ttl_seconds"`
}

// SetDefaults 设置调度默认值（决策周期默认5分钟，对账默认分钟级）
func (s *SchedulerConfig) SetDefaults() {
	if s.DecisionIntervalSeconds == 0 {
		s.DecisionIntervalSeconds = 300
	}
	if s.ReconcileIntervalSeconds == 0 {
		s.ReconcileIntervalSeconds = 120
	}
	if s.GridMonitorIntervalSeconds == 0 {
		s.GridMonitorIntervalSeconds = 30
	}
	if s.MarketCacheTTLSeconds == 0 {
		s.MarketCacheTTLSeconds = 30
	}
}

// DecisionIntervalDuration returns the decision cycle period as a Duration.
func (s SchedulerConfig) DecisionIntervalDuration() time.Duration {
	return time.Duration(s.DecisionIntervalSeconds) * time.Second
}

// ReconcileIntervalDuration returns the reconcile cycle period as a Duration.
func (s SchedulerConfig) ReconcileIntervalDuration() time.Duration {
	return time.Duration(s.ReconcileIntervalSeconds) * time.Second
}

// GridMonitorIntervalDuration returns the grid-monitor tick period as a Duration.
func (s SchedulerConfig) GridMonitorIntervalDuration() time.Duration {
	return time.Duration(s.GridMonitorIntervalSeconds) * time.Second
}

// MarketCacheTTLDuration returns the market snapshot cache TTL as a Duration.
func (s SchedulerConfig) MarketCacheTTLDuration() time.Duration {
	return time.Duration(s.MarketCacheTTLSeconds) * time.Second
}

// Config 总配置
type Config struct {
	TraderIDs                []string        `json:"trader_ids"`
	InitialBalancePerTrader  float64         `json:"initial_balance_per_trader"`
	AllowedSymbols           []string        `json:"allowed_symbols"`
	KlineInterval            string          `json:"kline_interval"`
	StrictProviderValidation bool            `json:"strict_provider_validation"`
	Risk                     RiskConfig      `json:"risk"`
	Scheduler                SchedulerConfig `json:"scheduler"`
	Log                      *logger.Config  `json:"log"`

	// Secrets, never read from the JSON file — populated from the
	// environment (via .env in development) at LoadConfig time.
	BinanceAPIKey    string `json:"-"`
	BinanceAPISecret string `json:"-"`
	BinanceTestnet   bool   `json:"binance_testnet"`
	DatabasePath     string `json:"database_path"`
}

// SetDefaults 设置默认值
func (c *Config) SetDefaults() {
	c.Risk.SetDefaults()
	c.Scheduler.SetDefaults()
	if c.KlineInterval == "" {
		c.KlineInterval = "1h"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "nofx.db"
	}
	if c.Log == nil {
		c.Log = &logger.Config{}
	}
	c.Log.SetDefaults()
}

// LoadConfig 从文件加载配置，并用环境变量覆盖敏感信息（API key/secret）。
// 文件不存在时回退到默认配置，而非报错 —— 方便本地开发不带配置文件启动。
func LoadConfig(filename string) (*Config, error) {
	_ = godotenv.Load() // .env is optional; missing file is not an error

	cfg := &Config{}

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		logger.Infof("config: %s not found, using defaults", filename)
	} else {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", filename, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", filename, err)
		}
	}

	cfg.SetDefaults()

	cfg.BinanceAPIKey = os.Getenv("BINANCE_API_KEY")
	cfg.BinanceAPISecret = os.Getenv("BINANCE_API_SECRET")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the Configuration error class in spec §7
// requires to be fatal at boot: missing trader ids, no allowed symbols, or a
// non-positive initial balance per trader. Exchange credentials are not
// checked here.
func (c *Config) Validate() error {
	if len(c.TraderIDs) == 0 {
		return fmt.Errorf("config: trader_ids must not be empty")
	}
	if len(c.AllowedSymbols) == 0 {
		return fmt.Errorf("config: allowed_symbols must not be empty")
	}
	if c.InitialBalancePerTrader <= 0 {
		return fmt.Errorf("config: initial_balance_per_trader must be positive")
	}
	return nil
}
