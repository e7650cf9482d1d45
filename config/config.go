// Package config loads and validates the engine configuration from YAML
// or JSON files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Account  AccountConfig  `json:"account" yaml:"account"`
	Risk     RiskConfig     `json:"risk" yaml:"risk"`
	Limits   LimitsConfig   `json:"limits" yaml:"limits"`
	Orders   OrdersConfig   `json:"orders" yaml:"orders"`
	Exchange ExchangeConfig `json:"exchange" yaml:"exchange"`
	Feed     FeedConfig     `json:"feed" yaml:"feed"`
	Strategy StrategyConfig `json:"strategy" yaml:"strategy"`
	Store    StoreConfig    `json:"store" yaml:"store"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// AccountConfig contains account initialization parameters. The initial
// capital only applies when no account row exists yet.
type AccountConfig struct {
	ID             string  `json:"id" yaml:"id"`
	InitialCapital float64 `json:"initial_capital" yaml:"initial_capital"`
}

// RiskConfig contains per-trade sizing parameters, percentages on a
// 0-100 scale.
type RiskConfig struct {
	RiskPerTradePct      float64 `json:"risk_per_trade_pct" yaml:"risk_per_trade_pct"`
	DefaultStopLossPct   float64 `json:"default_stop_loss_pct" yaml:"default_stop_loss_pct"`
	DefaultTakeProfitPct float64 `json:"default_take_profit_pct" yaml:"default_take_profit_pct"`
	MinStopDistancePct   float64 `json:"min_stop_distance_pct" yaml:"min_stop_distance_pct"`
	MinStopLossPct       float64 `json:"min_stop_loss_pct" yaml:"min_stop_loss_pct"`
}

// LimitsConfig contains the hard caps the validator and ledger enforce.
type LimitsConfig struct {
	MaxPositionSizePerTrade int64   `json:"max_position_size_per_trade" yaml:"max_position_size_per_trade"`
	MaxPositionPctOfCapital float64 `json:"max_position_pct_of_capital" yaml:"max_position_pct_of_capital"`
	MaxOpenPositions        int     `json:"max_open_positions" yaml:"max_open_positions"`
	MaxTotalExposurePct     float64 `json:"max_total_exposure_pct" yaml:"max_total_exposure_pct"`
	MaxQtyPerOrder          int64   `json:"max_qty_per_order" yaml:"max_qty_per_order"`
	AbsoluteMaxQty          int64   `json:"absolute_max_qty" yaml:"absolute_max_qty"`
	DailyLossLimit          float64 `json:"daily_loss_limit" yaml:"daily_loss_limit"`
	MaxDailyLossPct         float64 `json:"max_daily_loss_pct" yaml:"max_daily_loss_pct"`
	CooldownCandles         int64   `json:"cooldown_candles" yaml:"cooldown_candles"`
	CooldownSeconds         int     `json:"cooldown_seconds" yaml:"cooldown_seconds"`
	KillSwitch              bool    `json:"kill_switch" yaml:"kill_switch"`
}

// OrdersConfig contains order lifecycle tunables.
type OrdersConfig struct {
	TimeoutSec int `json:"order_timeout_sec" yaml:"order_timeout_sec"`
}

// ExchangeConfig tunes the simulated venue.
type ExchangeConfig struct {
	MinLatencyMs  int     `json:"min_latency_ms" yaml:"min_latency_ms"`
	MaxLatencyMs  int     `json:"max_latency_ms" yaml:"max_latency_ms"`
	SlippagePct   float64 `json:"slippage_pct" yaml:"slippage_pct"`
	RejectPct     float64 `json:"reject_pct" yaml:"reject_pct"`
	PartialPct    float64 `json:"partial_fill_pct" yaml:"partial_fill_pct"`
	PartialMinQty int64   `json:"partial_min_qty" yaml:"partial_min_qty"`
	Seed          int64   `json:"seed" yaml:"seed"`
}

// FeedConfig drives the demo market data generator.
type FeedConfig struct {
	Symbols        map[string]float64 `json:"symbols" yaml:"symbols"`
	TickIntervalMs int                `json:"tick_interval_ms" yaml:"tick_interval_ms"`
	DriftPct       float64            `json:"drift_pct" yaml:"drift_pct"`
	VolPct         float64            `json:"vol_pct" yaml:"vol_pct"`
	Seed           int64              `json:"seed" yaml:"seed"`
}

// StrategyConfig names the strategy and passes its numeric parameters
// through untyped; each strategy picks what it recognizes.
type StrategyConfig struct {
	Name   string             `json:"name" yaml:"name"`
	Params map[string]float64 `json:"params,omitempty" yaml:"params,omitempty"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `json:"path" yaml:"path"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

// LoadFromFile loads configuration from a file, trying YAML first and
// falling back to JSON.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration, format chosen by extension.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// OrderTimeout returns the stale-order timeout as a duration.
func (c *Config) OrderTimeout() time.Duration {
	return time.Duration(c.Orders.TimeoutSec) * time.Second
}

// EffectiveDailyLossLimit resolves the absolute limit, deriving it from
// max_daily_loss_pct when no absolute figure is set.
func (c *Config) EffectiveDailyLossLimit() float64 {
	if c.Limits.DailyLossLimit > 0 {
		return c.Limits.DailyLossLimit
	}
	if c.Limits.MaxDailyLossPct > 0 {
		return c.Account.InitialCapital * c.Limits.MaxDailyLossPct / 100
	}
	return 0
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Account.ID == "" {
		return fmt.Errorf("account.id is required")
	}
	if c.Account.InitialCapital <= 0 {
		return fmt.Errorf("account.initial_capital must be positive")
	}
	if c.Risk.RiskPerTradePct <= 0 || c.Risk.RiskPerTradePct > 100 {
		return fmt.Errorf("risk.risk_per_trade_pct must be in (0, 100]")
	}
	if c.Risk.DefaultStopLossPct <= 0 {
		return fmt.Errorf("risk.default_stop_loss_pct must be positive")
	}
	if c.Risk.DefaultTakeProfitPct <= 0 {
		return fmt.Errorf("risk.default_take_profit_pct must be positive")
	}
	if c.Limits.MaxOpenPositions <= 0 {
		return fmt.Errorf("limits.max_open_positions must be positive")
	}
	if c.Limits.MaxTotalExposurePct <= 0 || c.Limits.MaxTotalExposurePct > 100 {
		return fmt.Errorf("limits.max_total_exposure_pct must be in (0, 100]")
	}
	if c.Limits.MaxPositionPctOfCapital < 0 || c.Limits.MaxPositionPctOfCapital > 100 {
		return fmt.Errorf("limits.max_position_pct_of_capital must be in [0, 100]")
	}
	if c.Limits.MaxQtyPerOrder <= 0 {
		return fmt.Errorf("limits.max_qty_per_order must be positive")
	}
	if c.Orders.TimeoutSec <= 0 {
		return fmt.Errorf("orders.order_timeout_sec must be positive")
	}
	if c.Exchange.MaxLatencyMs < c.Exchange.MinLatencyMs {
		return fmt.Errorf("exchange.max_latency_ms must be >= min_latency_ms")
	}
	if len(c.Feed.Symbols) == 0 {
		return fmt.Errorf("feed.symbols must name at least one symbol")
	}
	for sym, px := range c.Feed.Symbols {
		if px <= 0 {
			return fmt.Errorf("feed.symbols[%s] starting price must be positive", sym)
		}
	}
	if c.Strategy.Name == "" {
		return fmt.Errorf("strategy.name is required")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	return nil
}

// Default returns a configuration with workable defaults.
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			ID:             "SIM-001",
			InitialCapital: 1_000_000,
		},
		Risk: RiskConfig{
			RiskPerTradePct:      1,
			DefaultStopLossPct:   2,
			DefaultTakeProfitPct: 4,
			MinStopDistancePct:   0.1,
			MinStopLossPct:       0.5,
		},
		Limits: LimitsConfig{
			MaxPositionSizePerTrade: 500,
			MaxPositionPctOfCapital: 50,
			MaxOpenPositions:        10,
			MaxTotalExposurePct:     80,
			MaxQtyPerOrder:          10_000,
			DailyLossLimit:          50_000,
			CooldownCandles:         5,
			CooldownSeconds:         30,
		},
		Orders: OrdersConfig{
			TimeoutSec: 60,
		},
		Exchange: ExchangeConfig{
			MinLatencyMs:  200,
			MaxLatencyMs:  800,
			SlippagePct:   0.05,
			RejectPct:     5,
			PartialPct:    30,
			PartialMinQty: 10,
		},
		Feed: FeedConfig{
			Symbols:        map[string]float64{"ACME": 100, "BETA": 250, "GAMA": 50},
			TickIntervalMs: 1000,
			VolPct:         0.3,
		},
		Strategy: StrategyConfig{
			Name: "sma_crossover",
		},
		Store: StoreConfig{
			Path: "./paperdesk.db",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
