package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tariff-receipt/internal/common"
	"github.com/Veraticus/tariff-receipt/internal/tariff"
)

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("TARIFF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if yaml != "" {
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(strings.NewReader(yaml)))
	}
	return v
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newViper(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 20, cfg.World.BatchSize)
	assert.Equal(t, 4, cfg.World.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Data.Timeout)
	assert.Equal(t, 2, cfg.Display.Decimals)
	assert.NotContains(t, cfg.Database.Path, "$HOME")

	opts := cfg.StoreOptions()
	assert.Equal(t, tariff.ModeTariffChange, opts.Mode)
	assert.Equal(t, 1.0, opts.PassThroughRate)
	assert.Equal(t, 0.5, cfg.CalculatorConfig().IndirectMultiplier)
}

func TestLoad_FileAndEnv(t *testing.T) {
	t.Setenv("TARIFF_WORLD_CONCURRENCY", "8")

	cfg, err := Load(newViper(t, `
scenario:
  mode: original-current
  pass_through: 60
world:
  batch_size: 50
data:
  url: https://example.invalid/data/
  timeout: 5s
`))
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.World.BatchSize)
	assert.Equal(t, 8, cfg.World.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.Data.Timeout)
	assert.Equal(t, "https://example.invalid/data/", cfg.Data.URL)

	opts := cfg.StoreOptions()
	assert.Equal(t, tariff.ModeOriginalCurrent, opts.Mode)
	assert.InDelta(t, 0.6, opts.PassThroughRate, 1e-12)

	called := false
	so := cfg.StateOptions(func(int, int) { called = true })
	assert.Equal(t, 50, so.Receipt.BatchSize)
	so.Receipt.OnBatch(1, 1)
	assert.True(t, called)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{name: "bad mode", yaml: "scenario:\n  mode: sideways\n", errMsg: "scenario.mode"},
		{name: "pass through too high", yaml: "scenario:\n  pass_through: 150\n", errMsg: "pass_through"},
		{name: "zero batch", yaml: "world:\n  batch_size: 0\n", errMsg: "batch_size"},
		{name: "zero concurrency", yaml: "world:\n  concurrency: 0\n", errMsg: "concurrency"},
		{name: "bad log level", yaml: "logging:\n  level: loud\n", errMsg: "log level"},
		{name: "too many decimals", yaml: "display:\n  decimals: 9\n", errMsg: "decimals"},
		{name: "negative multiplier", yaml: "calc:\n  indirect_multiplier: -1\n", errMsg: "indirect_multiplier"},
		{name: "no data source", yaml: "data:\n  path: \"\"\n  url: \"\"\n", errMsg: "data.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newViper(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad_InvalidIsConfigError(t *testing.T) {
	_, err := Load(newViper(t, "world:\n  batch_size: -1\n"))
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("TARIFF_TEST_DIR", "/data")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "tilde", in: "~", want: home},
		{name: "tilde prefix", in: "~/tariff.db", want: filepath.Join(home, "tariff.db")},
		{name: "env var", in: "$TARIFF_TEST_DIR/rates", want: "/data/rates"},
		{name: "plain", in: "/tmp/x.db", want: "/tmp/x.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}

func TestLoadSheetsConfig(t *testing.T) {
	for _, k := range []string{
		"TARIFF_SHEETS_CLIENT_ID", "TARIFF_SHEETS_CLIENT_SECRET",
		"TARIFF_SHEETS_REFRESH_TOKEN", "TARIFF_SHEETS_SERVICE_ACCOUNT_PATH",
		"TARIFF_SHEETS_SPREADSHEET_ID", "TARIFF_SHEETS_SPREADSHEET_NAME",
	} {
		t.Setenv(k, "")
	}

	t.Run("from config", func(t *testing.T) {
		v := newViper(t, `
sheets:
  service_account_path: /keys/sa.json
  spreadsheet_id: abc
  sheet_title: Steel
`)
		cfg, err := LoadSheetsConfig(v)
		require.NoError(t, err)
		assert.Equal(t, "/keys/sa.json", cfg.ServiceAccountPath)
		assert.Equal(t, "abc", cfg.SpreadsheetID)
		assert.Equal(t, "Steel", cfg.SheetTitle)
		assert.Equal(t, "Tariff Receipt", cfg.SpreadsheetName)
	})

	t.Run("from environment", func(t *testing.T) {
		t.Setenv("TARIFF_SHEETS_CLIENT_ID", "id")
		t.Setenv("TARIFF_SHEETS_CLIENT_SECRET", "secret")
		t.Setenv("TARIFF_SHEETS_REFRESH_TOKEN", "token")

		cfg, err := LoadSheetsConfig(newViper(t, ""))
		require.NoError(t, err)
		assert.Equal(t, "id", cfg.ClientID)
		assert.Empty(t, cfg.ServiceAccountPath)
	})

	t.Run("no credentials", func(t *testing.T) {
		_, err := LoadSheetsConfig(newViper(t, ""))
		assert.Error(t, err)
	})
}

func TestXDGDirs(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	t.Setenv("XDG_DATA_HOME", "/xdg/data")

	dir, err := ConfigDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/xdg/config", "tariff"), dir)

	file, err := DefaultConfigFile()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/xdg/config", "tariff", "config.yaml"), file)

	dir, err = DataDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/xdg/data", "tariff"), dir)

	t.Setenv("XDG_DATA_HOME", "")
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	dir, err = DataDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".local", "share", "tariff"), dir)
}
