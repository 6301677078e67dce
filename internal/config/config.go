// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	Venue     VenueConfig     `yaml:"venue"`
	Portfolio PortfolioConfig `yaml:"portfolio"`
	Guards    GuardsConfig    `yaml:"guards"`
	Feed      FeedConfig      `yaml:"feed"`
	System    SystemConfig    `yaml:"system"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// VenueConfig contains the trading venue connection settings
type VenueConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Spender string `yaml:"spender"` // router contract for allowance checks, empty for custodial venues
}

// PortfolioConfig defines the tradeable universe and rebalance cadence
type PortfolioConfig struct {
	Symbols          []string           `yaml:"symbols"`
	ReserveSymbol    string             `yaml:"reserve_symbol"`
	CycleInterval    int                `yaml:"cycle_interval_seconds"`
	RebalanceBandPct float64            `yaml:"rebalance_band_pct"` // skip trades below this drift
	DatabasePath     string             `yaml:"database_path"`
	Strategy         string             `yaml:"strategy"`       // static (default) or momentum
	TargetWeights    map[string]float64 `yaml:"target_weights"` // empty means equal weight across symbols
	MomentumTilt     float64            `yaml:"momentum_tilt"`  // max weight tilt for the momentum strategy
}

// GuardsConfig carries every pre-trade safety threshold
type GuardsConfig struct {
	MaxPerAsset            float64 `yaml:"max_per_asset"`
	ReserveFloor           float64 `yaml:"reserve_floor"`
	MaxTurnover            float64 `yaml:"max_turnover"`
	MaxSlippagePct         float64 `yaml:"max_slippage_pct"`
	MaxPriceAgeSeconds     int     `yaml:"max_price_age_seconds"`
	MinNotionalQuote       float64 `yaml:"min_notional_quote"`
	MaxPriceImpactPct      float64 `yaml:"max_price_impact_pct"`
	VolatilityHalt         float64 `yaml:"volatility_halt"`
	SplitThresholdQuote    float64 `yaml:"split_threshold_quote"`
	SplitParts             int     `yaml:"split_parts"`
	MaxRetries             int     `yaml:"max_retries"`
	BackoffMillis          int     `yaml:"backoff_millis"`
	MaxConsecutiveFailures int     `yaml:"max_consecutive_failures"`
	BreakerCooloffSeconds  int     `yaml:"breaker_cooloff_seconds"`
	MinTradeGapSeconds     int     `yaml:"min_trade_gap_seconds"`
	MaxTradesPerHour       int     `yaml:"max_trades_per_hour"`
	StopLossPct            float64 `yaml:"stop_loss_pct"`
	TakeProfitPct          float64 `yaml:"take_profit_pct"`
	TrailingStopPct        float64 `yaml:"trailing_stop_pct"`
}

// FeedConfig contains market data stream settings
type FeedConfig struct {
	WebsocketURL string            `yaml:"websocket_url"`
	Tickers      map[string]string `yaml:"tickers"` // portfolio symbol -> stream ticker
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level"`
	DryRun   bool   `yaml:"dry_run"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errors []string

	if err := c.validateVenueConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validatePortfolioConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateGuardsConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateSystemConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}

func (c *Config) validateVenueConfig() error {
	if c.Venue.BaseURL == "" {
		return ValidationError{
			Field:   "venue.base_url",
			Message: "venue base URL is required",
		}
	}
	if c.Venue.APIKey == "" && !c.System.DryRun {
		return ValidationError{
			Field:   "venue.api_key",
			Message: "API key is required outside dry-run mode",
		}
	}
	return nil
}

func (c *Config) validatePortfolioConfig() error {
	if len(c.Portfolio.Symbols) == 0 {
		return ValidationError{
			Field:   "portfolio.symbols",
			Message: "at least one symbol is required",
		}
	}
	if c.Portfolio.ReserveSymbol == "" {
		return ValidationError{
			Field:   "portfolio.reserve_symbol",
			Message: "reserve symbol is required",
		}
	}
	if !contains(c.Portfolio.Symbols, c.Portfolio.ReserveSymbol) {
		return ValidationError{
			Field:   "portfolio.reserve_symbol",
			Value:   c.Portfolio.ReserveSymbol,
			Message: "reserve symbol must be part of the symbol allow-list",
		}
	}
	if c.Portfolio.CycleInterval <= 0 {
		return ValidationError{
			Field:   "portfolio.cycle_interval_seconds",
			Value:   c.Portfolio.CycleInterval,
			Message: "cycle interval must be positive",
		}
	}
	switch strings.ToLower(c.Portfolio.Strategy) {
	case "", "static", "momentum":
	default:
		return ValidationError{
			Field:   "portfolio.strategy",
			Value:   c.Portfolio.Strategy,
			Message: "must be 'static' or 'momentum'",
		}
	}
	for symbol := range c.Portfolio.TargetWeights {
		if !contains(c.Portfolio.Symbols, symbol) {
			return ValidationError{
				Field:   "portfolio.target_weights",
				Value:   symbol,
				Message: "target weight symbol must be part of the symbol allow-list",
			}
		}
	}
	return nil
}

func (c *Config) validateGuardsConfig() error {
	g := c.Guards
	if g.MaxPerAsset <= 0 || g.MaxPerAsset > 1 {
		return ValidationError{
			Field:   "guards.max_per_asset",
			Value:   g.MaxPerAsset,
			Message: "must be in (0,1]",
		}
	}
	if g.ReserveFloor < 0 || g.ReserveFloor >= 1 {
		return ValidationError{
			Field:   "guards.reserve_floor",
			Value:   g.ReserveFloor,
			Message: "must be in [0,1)",
		}
	}
	if g.MaxTurnover <= 0 || g.MaxTurnover > 1 {
		return ValidationError{
			Field:   "guards.max_turnover",
			Value:   g.MaxTurnover,
			Message: "must be in (0,1]",
		}
	}
	if g.MaxSlippagePct <= 0 || g.MaxSlippagePct >= 1 {
		return ValidationError{
			Field:   "guards.max_slippage_pct",
			Value:   g.MaxSlippagePct,
			Message: "must be in (0,1)",
		}
	}
	if g.MaxTradesPerHour <= 0 {
		return ValidationError{
			Field:   "guards.max_trades_per_hour",
			Value:   g.MaxTradesPerHour,
			Message: "must be positive",
		}
	}
	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

// CycleInterval returns the rebalance cadence as a duration.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Portfolio.CycleInterval) * time.Second
}

// String returns a string representation of the configuration (with sensitive data masked)
func (c *Config) String() string {
	configCopy := *c
	configCopy.Venue.APIKey = maskString(configCopy.Venue.APIKey)

	data, _ := yaml.Marshal(configCopy)
	return string(data)
}

// Helper functions

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func maskString(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

// DefaultConfig returns a default configuration for testing
func DefaultConfig() *Config {
	return &Config{
		Venue: VenueConfig{
			BaseURL: "https://api.competitions.recall.network",
			APIKey:  "test_api_key",
		},
		Portfolio: PortfolioConfig{
			Symbols:          []string{"USDC", "WETH", "WBTC"},
			ReserveSymbol:    "USDC",
			CycleInterval:    900,
			RebalanceBandPct: 0.02,
			DatabasePath:     "rebalancer.db",
			Strategy:         "static",
			TargetWeights: map[string]float64{
				"USDC": 0.2,
				"WETH": 0.4,
				"WBTC": 0.4,
			},
			MomentumTilt: 0.08,
		},
		Guards: GuardsConfig{
			MaxPerAsset:            0.45,
			ReserveFloor:           0.15,
			MaxTurnover:            0.25,
			MaxSlippagePct:         0.01,
			MaxPriceAgeSeconds:     30,
			MinNotionalQuote:       10.0,
			MaxPriceImpactPct:      0.02,
			VolatilityHalt:         0.05,
			SplitThresholdQuote:    2000.0,
			SplitParts:             3,
			MaxRetries:             3,
			BackoffMillis:          1500,
			MaxConsecutiveFailures: 3,
			BreakerCooloffSeconds:  600,
			MinTradeGapSeconds:     300,
			MaxTradesPerHour:       6,
			StopLossPct:            0.07,
			TakeProfitPct:          0.10,
			TrailingStopPct:        0.05,
		},
		Feed: FeedConfig{
			WebsocketURL: "wss://stream.binance.com:9443",
			Tickers: map[string]string{
				"WETH": "ETHUSDT",
				"WBTC": "BTCUSDT",
			},
		},
		System: SystemConfig{
			LogLevel: "INFO",
			DryRun:   true,
		},
		Telemetry: TelemetryConfig{
			MetricsPort:   9090,
			EnableMetrics: true,
		},
	}
}
