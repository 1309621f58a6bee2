package scenario

import (
	"context"
	"math"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Veraticus/tariff-receipt/internal/calc"
	"github.com/Veraticus/tariff-receipt/internal/model"
	"github.com/Veraticus/tariff-receipt/internal/tariff"
	"github.com/Veraticus/tariff-receipt/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newState(t *testing.T) *State {
	t.Helper()
	ref := testutil.BasicReference(t)
	return New(ref, calc.NewLinearModel(ref, calc.DefaultConfig()), DefaultOptions(), nil)
}

func TestState_CanadaExample(t *testing.T) {
	ctx := context.Background()
	s := newState(t)

	_, err := s.OpenCountry("CAN")
	require.NoError(t, err)
	v, err := s.Edit("CAN", tariff.LevelSection, tariff.SectionPath("1"), 10, tariff.KindCurrent)
	require.NoError(t, err)
	assert.Equal(t, 10.0, v)

	store := s.Store()
	assert.Equal(t, 10.0, store.GetTariffValue(tariff.LevelSection, tariff.SectionPath("1"), "CAN", tariff.KindCurrent))
	assert.Equal(t, 10.0, store.GetTariffValue(tariff.LevelHS4, tariff.HS4Path("1", "01", "0101"), "CAN", tariff.KindCurrent))

	sub, err := s.SubmitCountry(ctx, "CAN")
	require.NoError(t, err)
	require.NoError(t, sub.WorldErr)
	require.Len(t, sub.Edits, 1)
	assert.Equal(t, "section", sub.Edits[0].Level)
	assert.Equal(t, "tariff-change", sub.Edits[0].Mode)
	assert.Equal(t, 1.0, sub.Edits[0].PassThrough)
	assert.Len(t, sub.Bundle.SectionTariffs, 21)
	assert.Greater(t, sub.Result.TotalSum, 0.0)

	totals := s.Totals()
	require.False(t, totals.Empty)
	assert.Equal(t, sub.Result.TotalSum, totals.Subtotal.Total)

	removed, err := s.RemoveCountry(ctx, "CAN")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.True(t, s.Totals().Empty)
	assert.Equal(t, 0.0, s.Receipt().Subtotal().Total)

	// Edits outlive removal from the receipt.
	assert.Equal(t, 10.0, store.GetTariffValue(tariff.LevelSection, tariff.SectionPath("1"), "CAN", tariff.KindCurrent))
}

func TestState_CancelEditRollsBack(t *testing.T) {
	s := newState(t)

	_, err := s.OpenCountry("MEX")
	require.NoError(t, err)
	_, err = s.Edit("MEX", tariff.LevelSection, tariff.SectionPath("1"), 40, tariff.KindCurrent)
	require.NoError(t, err)

	s.CancelEdit()

	assert.False(t, s.Store().IsInitialized("MEX"))
	assert.Zero(t, s.Store().GetTariffValue(tariff.LevelSection, tariff.SectionPath("1"), "MEX", tariff.KindCurrent))
	_, open := s.EditingCountry()
	assert.False(t, open)

	_, err = s.Edit("MEX", tariff.LevelSection, tariff.SectionPath("1"), 40, tariff.KindCurrent)
	require.ErrorIs(t, err, ErrNoSession)
}

func TestState_OpeningAnotherCountryRollsBackFirst(t *testing.T) {
	s := newState(t)

	_, err := s.OpenCountry("CAN")
	require.NoError(t, err)
	_, err = s.Edit("CAN", tariff.LevelSection, tariff.SectionPath("2"), 30, tariff.KindCurrent)
	require.NoError(t, err)

	same, err := s.OpenCountry("can")
	require.NoError(t, err)
	assert.Equal(t, "CAN", same.Country())
	assert.Equal(t, 30.0, s.Store().GetTariffValue(tariff.LevelSection, tariff.SectionPath("2"), "CAN", tariff.KindCurrent))

	_, err = s.OpenCountry("CHN")
	require.NoError(t, err)
	assert.False(t, s.Store().IsInitialized("CAN"))
	iso, open := s.EditingCountry()
	assert.True(t, open)
	assert.Equal(t, "CHN", iso)
}

func TestState_RejectsBadCountries(t *testing.T) {
	s := newState(t)

	_, err := s.OpenCountry("  ")
	require.ErrorIs(t, err, ErrNoCountry)
	_, err = s.OpenCountry("wld")
	require.ErrorIs(t, err, ErrWorldSentinel)
	_, err = s.SubmitCountry(context.Background(), "WRLD")
	require.ErrorIs(t, err, ErrWorldSentinel)
}

func TestState_WorldRate(t *testing.T) {
	ctx := context.Background()
	s := newState(t)

	// Without countries the rate is only remembered.
	require.NoError(t, s.SetWorldRate(ctx, 150))
	require.NotNil(t, s.WorldRate())
	assert.Equal(t, 100.0, *s.WorldRate())
	assert.True(t, s.Totals().Empty)

	require.NoError(t, s.SetWorldRate(ctx, 10))
	_, err := s.SubmitCountry(ctx, "CAN")
	require.NoError(t, err)

	totals := s.Totals()
	require.True(t, totals.HasWorld)
	assert.Equal(t, 2, totals.RestOfWorld.Countries)
	assert.Equal(t, []string{"CHN", "MEX"}, s.Receipt().RestOfWorldCountries(s.Receipt().Selected()))
	assert.NotZero(t, totals.RestOfWorld.Total)
	assert.InDelta(t, totals.Subtotal.Direct+totals.RestOfWorld.Direct, totals.Total.Direct, 1e-15)

	_, err = s.SubmitCountry(ctx, "MEX")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Totals().RestOfWorld.Countries)

	// NaN is refused and the previous rate stays.
	err = s.SetWorldRate(ctx, math.NaN())
	require.ErrorIs(t, err, tariff.ErrInvalidValue)
	require.NotNil(t, s.WorldRate())
	assert.Equal(t, 10.0, *s.WorldRate())
	assert.False(t, math.IsNaN(s.Totals().Total.Total))

	s.ClearWorldRate()
	assert.Nil(t, s.WorldRate())
}

func TestState_Reset(t *testing.T) {
	ctx := context.Background()
	s := newState(t)

	_, err := s.OpenCountry("CAN")
	require.NoError(t, err)
	_, err = s.Edit("CAN", tariff.LevelChapter, tariff.ChapterPath("1", "01"), 15, tariff.KindCurrent)
	require.NoError(t, err)
	_, err = s.SubmitCountry(ctx, "CAN")
	require.NoError(t, err)
	require.NoError(t, s.SetWorldRate(ctx, 5))

	s.Reset()

	p := tariff.ChapterPath("1", "01")
	assert.Zero(t, s.Store().GetTariffValue(tariff.LevelChapter, p, "CAN", tariff.KindCurrent))
	assert.False(t, s.Store().IsDirectlySet(tariff.LevelChapter, p, "CAN", tariff.KindCurrent))
	assert.True(t, s.Totals().Empty)
	assert.Nil(t, s.WorldRate())
}

func TestState_ReplayReproducesState(t *testing.T) {
	ctx := context.Background()
	live := newState(t)

	var snap Snapshot
	live.Store().SetPassThroughRate(0.5)
	_, err := live.OpenCountry("CAN")
	require.NoError(t, err)
	_, err = live.Edit("CAN", tariff.LevelSection, tariff.SectionPath("16"), 12, tariff.KindCurrent)
	require.NoError(t, err)
	_, err = live.Edit("CAN", tariff.LevelHS4, tariff.HS4Path("16", "85", "8517"), 30, tariff.KindCurrent)
	require.NoError(t, err)
	sub, err := live.SubmitCountry(ctx, "CAN")
	require.NoError(t, err)
	snap.Edits = append(snap.Edits, sub.Edits...)

	live.Store().SetMode(tariff.ModeOriginalCurrent)
	_, err = live.OpenCountry("CHN")
	require.NoError(t, err)
	_, err = live.Edit("CHN", tariff.LevelSection, tariff.SectionPath("1"), 8, tariff.KindCurrent)
	require.NoError(t, err)
	sub, err = live.SubmitCountry(ctx, "CHN")
	require.NoError(t, err)
	snap.Edits = append(snap.Edits, sub.Edits...)

	rate := 7.5
	require.NoError(t, live.SetWorldRate(ctx, rate))

	snap.Mode = tariff.ModeOriginalCurrent
	snap.PassThrough = 0.5
	snap.Receipt = live.Receipt().Selected()
	snap.WorldRate = &rate

	replayed := newState(t)
	require.NoError(t, replayed.Replay(ctx, snap))

	paths := []struct {
		level tariff.Level
		path  tariff.Path
	}{
		{tariff.LevelSection, tariff.SectionPath("16")},
		{tariff.LevelChapter, tariff.ChapterPath("16", "85")},
		{tariff.LevelHS4, tariff.HS4Path("16", "85", "8517")},
		{tariff.LevelHS4, tariff.HS4Path("16", "85", "8542")},
		{tariff.LevelSection, tariff.SectionPath("1")},
		{tariff.LevelHS4, tariff.HS4Path("1", "02", "0201")},
	}
	for _, iso := range []string{"CAN", "CHN"} {
		for _, p := range paths {
			assert.Equal(t,
				live.Store().GetTariffValue(p.level, p.path, iso, tariff.KindCurrent),
				replayed.Store().GetTariffValue(p.level, p.path, iso, tariff.KindCurrent),
				"%s %s", iso, p.path)
		}
	}

	// CHN section 1: 10 + 8·0.5.
	assert.Equal(t, 14.0, replayed.Store().GetTariffValue(tariff.LevelSection, tariff.SectionPath("1"), "CHN", tariff.KindCurrent))
	assert.Equal(t, tariff.ModeOriginalCurrent, replayed.Store().Options().Mode)

	if diff := cmp.Diff(live.Totals(), replayed.Totals(), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("replayed totals mismatch (-live +replayed):\n%s", diff)
	}
}

func TestState_ReplayRejectsBadEdits(t *testing.T) {
	s := newState(t)
	snap := Snapshot{Mode: tariff.ModeTariffChange, PassThrough: 1}
	snap.Edits = append(snap.Edits, editFor("CAN", "province", "1"))

	err := s.Replay(context.Background(), snap)
	require.ErrorIs(t, err, tariff.ErrInvalidLevel)

	snap.Edits[0] = editFor("CAN", "section", "99")
	err = s.Replay(context.Background(), snap)
	require.ErrorIs(t, err, tariff.ErrUnknownPath)
}

func editFor(iso, level, section string) model.TariffEdit {
	return model.TariffEdit{
		Country:     iso,
		Level:       level,
		Section:     section,
		Kind:        "current",
		Mode:        "tariff-change",
		Value:       10,
		PassThrough: 1,
	}
}

func TestState_Report(t *testing.T) {
	ctx := context.Background()
	s := newState(t)

	empty := s.Report("empty")
	assert.Empty(t, empty.Lines)
	assert.Nil(t, empty.WorldRate)

	for _, iso := range []string{"MEX", "CAN"} {
		_, err := s.OpenCountry(iso)
		require.NoError(t, err)
		_, err = s.Edit(iso, tariff.LevelSection, tariff.SectionPath("1"), 12, tariff.KindCurrent)
		require.NoError(t, err)
		_, err = s.SubmitCountry(ctx, iso)
		require.NoError(t, err)
	}
	require.NoError(t, s.SetWorldRate(ctx, 5))

	report := s.Report("steel")
	assert.Equal(t, "steel", report.Scenario)
	require.Len(t, report.Lines, 2)
	assert.Equal(t, "MEX", report.Lines[0].ISO)
	assert.Equal(t, "Mexico", report.Lines[0].Name)
	assert.Equal(t, "Canada", report.Lines[1].Name)
	require.NotNil(t, report.WorldRate)
	assert.Equal(t, 5.0, *report.WorldRate)
	assert.True(t, report.HasWorld)

	res, ok := s.Receipt().Result("CAN")
	require.True(t, ok)
	assert.Equal(t, res.TotalSum, report.Lines[1].Total)
	assert.InDelta(t, report.Lines[0].Total+report.Lines[1].Total, report.Subtotal.Total, 1e-12)
	assert.False(t, report.GeneratedAt.IsZero())
}

type countingCalculator struct {
	calc.Calculator
	calls atomic.Int64
}

func (c *countingCalculator) Calculate(ctx context.Context, bundle tariff.Bundle) (model.EffectResult, error) {
	c.calls.Add(1)
	return c.Calculator.Calculate(ctx, bundle)
}

func TestState_AddCountriesRefreshesWorldOnce(t *testing.T) {
	ctx := context.Background()
	ref := testutil.BasicReference(t)
	counter := &countingCalculator{Calculator: calc.NewLinearModel(ref, calc.DefaultConfig())}
	s := New(ref, counter, DefaultOptions(), nil)

	require.NoError(t, s.SetWorldRate(ctx, 10))
	assert.Zero(t, counter.calls.Load())

	worldErr, err := s.AddCountries(ctx, "can", "MEX")
	require.NoError(t, err)
	require.NoError(t, worldErr)

	// One call per country plus a single rest-of-world pass over CHN.
	assert.Equal(t, int64(3), counter.calls.Load())
	assert.Equal(t, []string{"CAN", "MEX"}, s.Receipt().Selected())

	totals := s.Totals()
	require.True(t, totals.HasWorld)
	assert.Equal(t, 1, totals.RestOfWorld.Countries)

	_, err = s.AddCountries(ctx, "WLD")
	require.Error(t, err)
}

func TestState_AddCountriesMatchesSubmitCountry(t *testing.T) {
	ctx := context.Background()

	batched := newState(t)
	require.NoError(t, batched.SetWorldRate(ctx, 25))
	_, err := batched.AddCountries(ctx, "CAN", "MEX")
	require.NoError(t, err)

	single := newState(t)
	require.NoError(t, single.SetWorldRate(ctx, 25))
	for _, iso := range []string{"CAN", "MEX"} {
		_, err := single.SubmitCountry(ctx, iso)
		require.NoError(t, err)
	}

	assert.InDelta(t, single.Totals().Total.Total, batched.Totals().Total.Total, 1e-12)
	assert.InDelta(t, single.Totals().RestOfWorld.Total, batched.Totals().RestOfWorld.Total, 1e-12)
}

func TestState_DiscardCountry(t *testing.T) {
	ctx := context.Background()
	s := newState(t)
	store := s.Store()

	_, err := s.OpenCountry("CAN")
	require.NoError(t, err)
	_, err = s.Edit("CAN", tariff.LevelSection, tariff.SectionPath("1"), 40, tariff.KindCurrent)
	require.NoError(t, err)
	_, err = s.SubmitCountry(ctx, "CAN")
	require.NoError(t, err)
	_, err = s.SubmitCountry(ctx, "MEX")
	require.NoError(t, err)

	removed, err := s.DiscardCountry(ctx, "can")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []string{"MEX"}, s.Receipt().Selected())
	assert.False(t, store.IsInitialized("CAN"))
	assert.False(t, store.IsDirectlySet(tariff.LevelSection, tariff.SectionPath("1"), "CAN", tariff.KindCurrent))

	// Adding it back starts from the statutory rates.
	sub, err := s.SubmitCountry(ctx, "CAN")
	require.NoError(t, err)
	assert.Equal(t, sub.Bundle.OriginalSectionTariffs[0], sub.Bundle.SectionTariffs[0])
	assert.Equal(t, 0.0, sub.Bundle.TauC[0])

	// An open session is rolled back and the country need not be on the
	// receipt.
	_, err = s.OpenCountry("CHN")
	require.NoError(t, err)
	_, err = s.Edit("CHN", tariff.LevelSection, tariff.SectionPath("1"), 40, tariff.KindCurrent)
	require.NoError(t, err)
	removed, err = s.DiscardCountry(ctx, "CHN")
	require.NoError(t, err)
	assert.False(t, removed)
	_, editing := s.EditingCountry()
	assert.False(t, editing)
	assert.False(t, store.IsInitialized("CHN"))
}
