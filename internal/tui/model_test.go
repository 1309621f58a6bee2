package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tariff-receipt/internal/model"
)

type fakeBackend struct {
	removeErr error
	lines     []model.ReceiptLine
	removed   []string
	rates     []float64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{lines: []model.ReceiptLine{
		{ISO: "CAN", Name: "Canada", Direct: 0.004, Indirect: 0.002, Total: 0.006},
		{ISO: "MEX", Name: "Mexico", Direct: 0.001, Indirect: 0.0005, Total: 0.0015},
	}}
}

func (f *fakeBackend) Report() model.ReceiptReport {
	r := model.ReceiptReport{Scenario: "test", Lines: append([]model.ReceiptLine(nil), f.lines...)}
	for _, l := range f.lines {
		r.Subtotal.Direct += l.Direct
		r.Subtotal.Indirect += l.Indirect
		r.Subtotal.Total += l.Total
		r.Subtotal.Countries++
	}
	r.Total = r.Subtotal
	if n := len(f.rates); n > 0 {
		rate := f.rates[n-1]
		r.WorldRate = &rate
		r.HasWorld = true
		r.RestOfWorld = model.EffectTotals{Direct: 0.01, Indirect: 0.005, Total: 0.015, Countries: 40}
	}
	return r
}

func (f *fakeBackend) RemoveCountry(_ context.Context, iso string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, iso)
	for i, l := range f.lines {
		if l.ISO == iso {
			f.lines = append(f.lines[:i], f.lines[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeBackend) SetWorldRate(_ context.Context, rate float64) error {
	f.rates = append(f.rates, rate)
	return nil
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

// press sends a key and, when it yields a backend command, runs it and
// feeds the result back.
func press(t *testing.T, m Model, msg tea.KeyMsg) Model {
	t.Helper()
	m, cmd := update(t, m, msg)
	if cmd == nil {
		return m
	}
	out := cmd()
	switch out.(type) {
	case countryRemovedMsg, worldRateSetMsg:
		m, _ = update(t, m, out)
	}
	return m
}

func TestModel_InitialReport(t *testing.T) {
	m := NewModel(context.Background(), newFakeBackend(), WithTitle("test"))

	assert.Nil(t, m.Init())
	assert.Len(t, m.table.Rows(), 4)
	assert.Equal(t, "CAN", m.table.Rows()[0][0])
	assert.Equal(t, "Subtotal", m.table.Rows()[2][0])
	assert.Contains(t, m.View(), "Receipt: test")
}

func TestModel_Navigation(t *testing.T) {
	m := NewModel(context.Background(), newFakeBackend())

	m, _ = update(t, m, runes("j"))
	assert.Equal(t, 1, m.table.Cursor())
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, m.table.Cursor())
}

func TestModel_RemoveCountry(t *testing.T) {
	backend := newFakeBackend()
	m := NewModel(context.Background(), backend)

	m, _ = update(t, m, runes("j"))
	m = press(t, m, runes("d"))

	assert.Equal(t, []string{"MEX"}, backend.removed)
	assert.Equal(t, StateBrowse, m.State())
	require.Len(t, m.Report().Lines, 1)
	assert.Len(t, m.table.Rows(), 3)
	assert.Contains(t, m.View(), "Removed MEX")
}

func TestModel_RemoveIgnoresTotalsRows(t *testing.T) {
	backend := newFakeBackend()
	m := NewModel(context.Background(), backend)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, cmd := update(t, m, runes("d"))

	assert.Nil(t, cmd)
	assert.Empty(t, backend.removed)
	assert.Contains(t, m.View(), "Only country lines can be removed")
}

func TestModel_RemoveError(t *testing.T) {
	backend := newFakeBackend()
	backend.removeErr = errors.New("boom")
	m := NewModel(context.Background(), backend)

	m = press(t, m, runes("d"))
	assert.Equal(t, StateBrowse, m.State())
	assert.Len(t, m.Report().Lines, 2)
	assert.Contains(t, m.View(), "remove CAN: boom")
}

func TestModel_SetWorldRate(t *testing.T) {
	backend := newFakeBackend()
	m := NewModel(context.Background(), backend)

	m, _ = update(t, m, runes("w"))
	require.Equal(t, StateWorldRate, m.State())
	for _, r := range "12.5" {
		m, _ = update(t, m, runes(string(r)))
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, []float64{12.5}, backend.rates)
	assert.Equal(t, StateBrowse, m.State())
	assert.True(t, m.Report().HasWorld)
	assert.Len(t, m.table.Rows(), 5)
	assert.Contains(t, m.table.Rows()[3][0], "12.50%")
}

func TestModel_SetWorldRateRejectsBadInput(t *testing.T) {
	backend := newFakeBackend()
	m := NewModel(context.Background(), backend)

	m, _ = update(t, m, runes("w"))
	m, _ = update(t, m, runes("abc"))
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Nil(t, cmd)
	assert.Empty(t, backend.rates)
	assert.Equal(t, StateWorldRate, m.State())
	assert.Contains(t, m.View(), "between 0 and 100")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, StateBrowse, m.State())
}

func TestModel_Quit(t *testing.T) {
	m := NewModel(context.Background(), newFakeBackend())

	_, cmd := update(t, m, runes("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_WindowResize(t *testing.T) {
	m := NewModel(context.Background(), newFakeBackend())

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	assert.Equal(t, 120, m.width)
	assert.Equal(t, 40, m.height)
	assert.Equal(t, 120, m.help.Width)
}

func TestModel_EmptyReceipt(t *testing.T) {
	backend := &fakeBackend{}
	m := NewModel(context.Background(), backend)

	assert.Contains(t, m.View(), "The receipt is empty.")
	_, cmd := update(t, m, runes("d"))
	assert.Nil(t, cmd)
}
