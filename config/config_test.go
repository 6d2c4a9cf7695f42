package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestGetYaml(t *testing.T) {
	path := writeConfig(t, `
instruments:
  - name: Northbridge Systems
    ticker: NBS
    sector: Technology
    price: "125.00"
    volatility: "1.2"
  - ticker: ARGO
    sector: Energy
    price: "64.50"
starting_cash: "25000"
speed: 2.5
open_at_start: false
web_addr: "0.0.0.0:9090"
journal_dir: "/tmp/journal"
`)

	cfg, err := getYaml(path)
	require.NoError(t, err)

	require.Len(t, cfg.Instruments, 2)
	require.Equal(t, "NBS", cfg.Instruments[0].Ticker)
	require.True(t, cfg.Instruments[0].Price.Equal(decimal.NewFromFloat(125.0)))
	require.True(t, cfg.Instruments[0].Volatility.Equal(decimal.NewFromFloat(1.2)))

	// name defaults to ticker, volatility defaults to 1
	require.Equal(t, "ARGO", cfg.Instruments[1].Name)
	require.True(t, cfg.Instruments[1].Volatility.Equal(decimal.NewFromInt(1)))

	require.True(t, cfg.StartingCash.Equal(decimal.NewFromInt(25000)))
	require.Equal(t, 2.5, cfg.Speed)
	require.False(t, cfg.OpenAtStart)
	require.Equal(t, "0.0.0.0:9090", cfg.WebAddr)
	require.Equal(t, "/tmp/journal", cfg.JournalDir)
}

func TestGetYamlDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)

	cfg, err := getYaml(path)
	require.NoError(t, err)
	require.NotEmpty(t, cfg.Instruments, "empty config falls back to the default universe")
	require.True(t, cfg.StartingCash.Equal(decimal.NewFromInt(10000)))
	require.Equal(t, 1.0, cfg.Speed)
	require.True(t, cfg.OpenAtStart)
}

func TestGetYamlRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing ticker", "instruments:\n  - price: \"10\"\n"},
		{"bad price", "instruments:\n  - ticker: NBS\n    price: \"free\"\n"},
		{"negative price", "instruments:\n  - ticker: NBS\n    price: \"-5\"\n"},
		{"bad volatility", "instruments:\n  - ticker: NBS\n    price: \"10\"\n    volatility: \"-1\"\n"},
		{"negative cash", "starting_cash: \"-100\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := getYaml(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}

func TestGetYamlClampsSpeed(t *testing.T) {
	cfg, err := getYaml(writeConfig(t, "speed: 100\n"))
	require.NoError(t, err)
	require.Equal(t, 10.0, cfg.Speed)
}

func TestDefaultUniverse(t *testing.T) {
	universe := DefaultUniverse()
	require.NotEmpty(t, universe)

	seen := make(map[string]struct{})
	for _, ins := range universe {
		require.NotEmpty(t, ins.Ticker)
		require.NotEmpty(t, ins.Sector)
		require.True(t, ins.Price.IsPositive())
		require.True(t, ins.Volatility.IsPositive())
		_, dup := seen[ins.Ticker]
		require.False(t, dup, "duplicate ticker %s", ins.Ticker)
		seen[ins.Ticker] = struct{}{}
	}
}
