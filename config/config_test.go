package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileFallsBackToDefaults(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.Error(t, err) // trader_ids is required and absent from the zero-value default
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"trader_ids": ["LLM-A", "LLM-B"],
		"initial_balance_per_trader": 10000,
		"allowed_symbols": ["BTCUSDT"]
	}`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, []string{"LLM-A", "LLM-B"}, cfg.TraderIDs)
	require.Equal(t, 300, cfg.Scheduler.DecisionIntervalSeconds)
	require.Equal(t, 5, cfg.Risk.MaxOpenPositions)
	require.Equal(t, "1h", cfg.KlineInterval)
}

func TestValidateRejectsEmptyTraderIDs(t *testing.T) {
	cfg := &Config{AllowedSymbols: []string{"BTCUSDT"}, InitialBalancePerTrader: 100}
	require.Error(t, cfg.Validate())
}
