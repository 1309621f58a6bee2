// Package tui is an interactive receipt browser built on bubbletea.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/tariff-receipt/internal/cli"
	"github.com/Veraticus/tariff-receipt/internal/model"
	"github.com/Veraticus/tariff-receipt/internal/tui/themes"
)

// Backend is the receipt the browser shows and edits. Calls never overlap.
type Backend interface {
	Report() model.ReceiptReport
	RemoveCountry(ctx context.Context, iso string) error
	SetWorldRate(ctx context.Context, rate float64) error
}

// State represents the current input state of the TUI.
type State int

const (
	StateBrowse State = iota
	StateWorldRate
	StateBusy
)

// chromeHeight is the number of lines around the table.
const chromeHeight = 8

// Model holds the main TUI state.
type Model struct {
	ctx     context.Context
	backend Backend
	err     error
	theme   themes.Theme
	report  model.ReceiptReport
	status  string
	config  Config
	keymap  KeyMap
	help    help.Model
	input   textinput.Model
	table   table.Model
	width   int
	height  int
	state   State
}

var _ tea.Model = Model{}

// NewModel creates a browser over backend. The first report is read
// immediately.
func NewModel(ctx context.Context, backend Backend, opts ...Option) Model {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	input := textinput.New()
	input.Placeholder = "10"
	input.CharLimit = 8
	input.Prompt = "World rate (%): "

	t := table.New(
		table.WithColumns(columns(nil)),
		table.WithFocused(true),
		table.WithHeight(max(cfg.Height-chromeHeight, 3)),
	)
	styles := table.DefaultStyles()
	styles.Header = cfg.Theme.Header
	styles.Selected = cfg.Theme.Selected
	t.SetStyles(styles)

	m := Model{
		ctx:     ctx,
		backend: backend,
		config:  cfg,
		theme:   cfg.Theme,
		keymap:  DefaultKeyMap(),
		help:    help.New(),
		input:   input,
		table:   t,
		width:   cfg.Width,
		height:  cfg.Height,
		state:   StateBrowse,
	}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.table.SetHeight(max(msg.Height-chromeHeight, 3))
		return m, nil

	case countryRemovedMsg:
		m.state = StateBrowse
		if msg.err != nil {
			m.err = fmt.Errorf("remove %s: %w", msg.iso, msg.err)
			return m, nil
		}
		m.err = nil
		m.status = "Removed " + msg.iso
		m.refresh()
		return m, nil

	case worldRateSetMsg:
		m.state = StateBrowse
		if msg.err != nil {
			m.err = fmt.Errorf("world rate: %w", msg.err)
			return m, nil
		}
		m.err = nil
		m.status = "Rest of world at " + strconv.FormatFloat(msg.rate, 'f', -1, 64) + "%"
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case StateWorldRate:
			return m.updateWorldRate(msg)
		case StateBusy:
			if key.Matches(msg, m.keymap.Quit) && msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			return m, nil
		}
		return m.updateBrowse(msg)
	}

	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keymap.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keymap.Refresh):
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keymap.Remove):
		iso, ok := m.selectedCountry()
		if !ok {
			m.status = "Only country lines can be removed"
			return m, nil
		}
		m.state = StateBusy
		m.status = "Removing " + iso + "..."
		return m, m.removeCountry(iso)

	case key.Matches(msg, m.keymap.WorldRate):
		m.state = StateWorldRate
		m.err = nil
		m.input.SetValue("")
		return m, m.input.Focus()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) updateWorldRate(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Cancel):
		m.state = StateBrowse
		m.input.Blur()
		return m, nil

	case key.Matches(msg, m.keymap.Confirm):
		raw := strings.TrimSuffix(strings.TrimSpace(m.input.Value()), "%")
		rate, err := strconv.ParseFloat(raw, 64)
		if err != nil || !(rate >= 0 && rate <= 100) {
			m.err = fmt.Errorf("world rate must be a number between 0 and 100, got %q", m.input.Value())
			return m, nil
		}
		m.input.Blur()
		m.state = StateBusy
		m.status = "Computing rest of world..."
		return m, m.setWorldRate(rate)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) removeCountry(iso string) tea.Cmd {
	return func() tea.Msg {
		return countryRemovedMsg{iso: iso, err: m.backend.RemoveCountry(m.ctx, iso)}
	}
}

func (m Model) setWorldRate(rate float64) tea.Cmd {
	return func() tea.Msg {
		return worldRateSetMsg{rate: rate, err: m.backend.SetWorldRate(m.ctx, rate)}
	}
}

// selectedCountry returns the ISO of the highlighted line when it is a
// country rather than a totals row.
func (m Model) selectedCountry() (string, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.report.Lines) {
		return "", false
	}
	return m.report.Lines[i].ISO, true
}

func (m *Model) refresh() {
	m.report = m.backend.Report()

	rows := cli.ReceiptRows(m.report, m.config.Decimals)
	tableRows := make([]table.Row, len(rows))
	for i, r := range rows {
		tableRows[i] = table.Row(r)
	}

	m.table.SetColumns(columns(rows))
	m.table.SetRows(tableRows)
	if c := m.table.Cursor(); c >= len(tableRows) {
		m.table.SetCursor(max(len(tableRows)-1, 0))
	}
}

// columns sizes the receipt columns to fit rows.
func columns(rows [][]string) []table.Column {
	widths := make([]int, len(cli.ReceiptHeaders))
	for i, h := range cli.ReceiptHeaders {
		widths[i] = max(lipgloss.Width(h), 9)
	}
	for _, r := range rows {
		for i, cell := range r {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}

	cols := make([]table.Column, len(widths))
	for i, w := range widths {
		cols[i] = table.Column{Title: cli.ReceiptHeaders[i], Width: w}
	}
	return cols
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	title := "Receipt"
	if m.config.Title != "" {
		title += ": " + m.config.Title
	}
	b.WriteString(m.theme.Title.Render(cli.ReceiptIcon + " " + title))
	b.WriteString("\n")

	if len(m.report.Lines) == 0 {
		b.WriteString(m.theme.Subtitle.Render("The receipt is empty."))
		b.WriteString("\n")
	} else {
		b.WriteString(m.table.View())
		b.WriteString("\n")
	}

	if m.report.WorldRate != nil && !m.report.HasWorld {
		b.WriteString(m.theme.Subtitle.Render("Rest of world rate is set but not computed."))
		b.WriteString("\n")
	}

	switch {
	case m.err != nil:
		b.WriteString(m.theme.StatusError.Render(m.err.Error()))
	case m.status != "":
		b.WriteString(m.theme.StatusInfo.Render(m.status))
	}
	b.WriteString("\n")

	if m.state == StateWorldRate {
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}

	b.WriteString(m.help.View(m.keymap))
	return b.String()
}

// Report returns the report currently displayed.
func (m Model) Report() model.ReceiptReport {
	return m.report
}

// State returns the current input state.
func (m Model) State() State {
	return m.state
}
