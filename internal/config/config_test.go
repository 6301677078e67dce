package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validYAML = `
venue:
  base_url: https://api.competitions.recall.network
  api_key: ${REBALANCER_API_KEY}
portfolio:
  symbols: [USDC, WETH, WBTC]
  reserve_symbol: USDC
  cycle_interval_seconds: 900
  rebalance_band_pct: 0.02
  database_path: rebalancer.db
guards:
  max_per_asset: 0.45
  reserve_floor: 0.15
  max_turnover: 0.25
  max_slippage_pct: 0.01
  max_price_age_seconds: 30
  min_notional_quote: 10
  max_price_impact_pct: 0.02
  volatility_halt: 0.05
  split_threshold_quote: 2000
  split_parts: 3
  max_retries: 3
  backoff_millis: 1500
  max_consecutive_failures: 3
  breaker_cooloff_seconds: 600
  min_trade_gap_seconds: 300
  max_trades_per_hour: 6
system:
  log_level: INFO
telemetry:
  metrics_port: 9090
  enable_metrics: true
`

func TestLoadConfigExpandsEnvVars(t *testing.T) {
	t.Setenv("REBALANCER_API_KEY", "secret-key-12345")
	path := writeConfigFile(t, validYAML)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-key-12345", cfg.Venue.APIKey)
	assert.Equal(t, []string{"USDC", "WETH", "WBTC"}, cfg.Portfolio.Symbols)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsReserveOutsideAllowList(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Portfolio.ReserveSymbol = "DAI"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserve_symbol")
}

func TestValidateRejectsUnknownStrategy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Portfolio.Strategy = "martingale"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strategy")
}

func TestValidateRejectsTargetWeightOutsideAllowList(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Portfolio.TargetWeights["DOGE"] = 0.1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target_weights")
}

func TestValidateRejectsBadGuardRanges(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"max_per_asset", func(c *Config) { c.Guards.MaxPerAsset = 1.5 }, "max_per_asset"},
		{"reserve_floor", func(c *Config) { c.Guards.ReserveFloor = 1.0 }, "reserve_floor"},
		{"max_turnover", func(c *Config) { c.Guards.MaxTurnover = 0 }, "max_turnover"},
		{"max_slippage", func(c *Config) { c.Guards.MaxSlippagePct = 1.0 }, "max_slippage_pct"},
		{"trades_per_hour", func(c *Config) { c.Guards.MaxTradesPerHour = 0 }, "max_trades_per_hour"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}

func TestValidateRequiresAPIKeyOutsideDryRun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.System.DryRun = false
	cfg.Venue.APIKey = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

func TestStringMasksAPIKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Venue.APIKey = "super-secret-api-key"

	s := cfg.String()
	assert.NotContains(t, s, "super-secret-api-key")
	assert.True(t, strings.Contains(s, "*"))
}

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}
