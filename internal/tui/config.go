package tui

import "github.com/Veraticus/tariff-receipt/internal/tui/themes"

// Config holds TUI configuration.
type Config struct {
	Theme     themes.Theme
	Title     string
	Width     int
	Height    int
	Decimals  int
	AltScreen bool
}

// Option is a functional option for configuring the TUI.
type Option func(*Config)

func defaultConfig() Config {
	return Config{
		Theme:     themes.Default,
		Width:     80,
		Height:    24,
		Decimals:  2,
		AltScreen: true,
	}
}

// WithTheme sets the visual theme.
func WithTheme(theme themes.Theme) Option {
	return func(c *Config) {
		c.Theme = theme
	}
}

// WithSize sets the initial terminal size.
func WithSize(width, height int) Option {
	return func(c *Config) {
		c.Width = width
		c.Height = height
	}
}

// WithDecimals sets how many decimals percentages are shown with.
func WithDecimals(n int) Option {
	return func(c *Config) {
		c.Decimals = n
	}
}

// WithTitle sets the scenario name shown in the header.
func WithTitle(title string) Option {
	return func(c *Config) {
		c.Title = title
	}
}

// WithAltScreen toggles the alternate screen buffer.
func WithAltScreen(enabled bool) Option {
	return func(c *Config) {
		c.AltScreen = enabled
	}
}
