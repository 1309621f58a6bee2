// Package config provides configuration utilities for the application.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/tariff-receipt/internal/calc"
	"github.com/Veraticus/tariff-receipt/internal/common"
	"github.com/Veraticus/tariff-receipt/internal/receipt"
	"github.com/Veraticus/tariff-receipt/internal/scenario"
	"github.com/Veraticus/tariff-receipt/internal/tariff"
)

// Config is the application configuration.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Data     DataConfig     `mapstructure:"data"`
	Scenario ScenarioConfig `mapstructure:"scenario"`
	Display  DisplayConfig  `mapstructure:"display"`
	World    WorldConfig    `mapstructure:"world"`
	Calc     CalcConfig     `mapstructure:"calc"`
}

// LoggingConfig selects the slog level and handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig locates the scenario database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// DataConfig locates the reference data. URL wins over Path when both are
// set.
type DataConfig struct {
	Path    string        `mapstructure:"path"`
	URL     string        `mapstructure:"url"`
	Year    string        `mapstructure:"year"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ScenarioConfig holds the defaults for new scenarios. PassThrough is in
// percent.
type ScenarioConfig struct {
	Mode        string  `mapstructure:"mode"`
	PassThrough float64 `mapstructure:"pass_through"`
}

// DisplayConfig controls terminal output.
type DisplayConfig struct {
	Theme    string `mapstructure:"theme"`
	Decimals int    `mapstructure:"decimals"`
}

// WorldConfig tunes the rest-of-world computation.
type WorldConfig struct {
	BatchSize   int `mapstructure:"batch_size"`
	Concurrency int `mapstructure:"concurrency"`
}

// CalcConfig holds the calculator parameters.
type CalcConfig struct {
	IndirectMultiplier float64 `mapstructure:"indirect_multiplier"`
}

// SetDefaults registers every key with its default so that environment
// variables are picked up for keys absent from the config file.
func SetDefaults(v *viper.Viper) {
	rc := receipt.DefaultConfig()
	dataDir, err := DataDir()
	if err != nil {
		dataDir = filepath.Join("$HOME", ".local", "share", appName)
	}
	configDir, err := ConfigDir()
	if err != nil {
		configDir = filepath.Join("$HOME", ".config", appName)
	}

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("database.path", filepath.Join(dataDir, "tariff.db"))
	v.SetDefault("data.path", filepath.Join(dataDir, "data"))
	v.SetDefault("data.url", "")
	v.SetDefault("data.year", "")
	v.SetDefault("data.timeout", 30*time.Second)
	v.SetDefault("scenario.mode", tariff.ModeTariffChange.String())
	v.SetDefault("scenario.pass_through", 100.0)
	v.SetDefault("display.theme", "default")
	v.SetDefault("display.decimals", 2)
	v.SetDefault("world.batch_size", rc.BatchSize)
	v.SetDefault("world.concurrency", rc.Concurrency)
	v.SetDefault("calc.indirect_multiplier", calc.DefaultConfig().IndirectMultiplier)

	v.SetDefault("sheets.service_account_path", "")
	v.SetDefault("sheets.client_id", "")
	v.SetDefault("sheets.client_secret", "")
	v.SetDefault("sheets.refresh_token", "")
	v.SetDefault("sheets.spreadsheet_id", "")
	v.SetDefault("sheets.spreadsheet_name", "")
	v.SetDefault("sheets.sheet_title", "")
	v.SetDefault("sheets.token_file", filepath.Join(configDir, "sheets_token.json"))
}

// Load reads and validates the configuration from v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}

	cfg.Database.Path = ExpandPath(cfg.Database.Path)
	cfg.Data.Path = ExpandPath(cfg.Data.Path)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if _, err := tariff.ParseMode(c.Scenario.Mode); err != nil {
		return fmt.Errorf("%w: scenario.mode: %w", common.ErrInvalidConfig, err)
	}
	if c.Scenario.PassThrough < 0 || c.Scenario.PassThrough > 100 {
		return fmt.Errorf("%w: scenario.pass_through must be within [0, 100], got %v", common.ErrInvalidConfig, c.Scenario.PassThrough)
	}
	if c.World.BatchSize <= 0 {
		return fmt.Errorf("%w: world.batch_size must be positive", common.ErrInvalidConfig)
	}
	if c.World.Concurrency <= 0 {
		return fmt.Errorf("%w: world.concurrency must be positive", common.ErrInvalidConfig)
	}
	if c.Display.Decimals < 0 || c.Display.Decimals > 6 {
		return fmt.Errorf("%w: display.decimals must be within [0, 6]", common.ErrInvalidConfig)
	}
	if c.Calc.IndirectMultiplier < 0 {
		return fmt.Errorf("%w: calc.indirect_multiplier cannot be negative", common.ErrInvalidConfig)
	}
	if c.Data.URL == "" && c.Data.Path == "" {
		return fmt.Errorf("%w: data.path or data.url", common.ErrMissingConfig)
	}
	return nil
}

// StoreOptions returns the store options for new scenarios.
func (c Config) StoreOptions() tariff.Options {
	mode, _ := tariff.ParseMode(c.Scenario.Mode)
	return tariff.Options{
		Mode:            mode,
		PassThroughRate: c.Scenario.PassThrough / 100,
	}
}

// StateOptions returns the options for a scenario.State. onBatch may be nil.
func (c Config) StateOptions(onBatch func(done, total int)) scenario.Options {
	return scenario.Options{
		Store: c.StoreOptions(),
		Receipt: receipt.Config{
			BatchSize:   c.World.BatchSize,
			Concurrency: c.World.Concurrency,
			OnBatch:     onBatch,
		},
	}
}

// CalculatorConfig returns the calculator parameters.
func (c Config) CalculatorConfig() calc.Config {
	return calc.Config{IndirectMultiplier: c.Calc.IndirectMultiplier}
}
