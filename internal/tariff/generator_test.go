package tariff

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tariff-receipt/internal/model"
	"github.com/Veraticus/tariff-receipt/internal/testutil"
)

func newTestGenerator(t *testing.T) (*Store, *Generator) {
	t.Helper()
	ref := testutil.BasicReference(t)
	s := NewStore(ref, DefaultOptions(), nil)
	return s, NewGenerator(s, ref, ref)
}

func sectionVector(values map[int]float64) []float64 {
	v := make([]float64, model.SectionCount)
	for sec, rate := range values {
		v[sec-1] = rate
	}
	return v
}

func TestPercentChange(t *testing.T) {
	assert.InDelta(t, 7.5/102.5, PercentChange(10, 2.5), 1e-15)
	assert.Equal(t, 0.0, PercentChange(5, 5))
	assert.InDelta(t, 0.1, PercentChange(10, 0), 1e-15)
}

func TestGenerator_GenerateTariffData(t *testing.T) {
	s, g := newTestGenerator(t)
	_, err := s.UpdateTariff(LevelSection, SectionPath("1"), 10, "CAN", KindCurrent)
	require.NoError(t, err)

	got := g.GenerateTariffData("CAN")

	tau0 := PercentChange(10, 2.5)
	want := Bundle{
		ISOList:                []string{"CAN"},
		BEACodes:               []string{"111CA", "311FT", "334"},
		SectionTariffs:         sectionVector(map[int]float64{1: 10, 2: 1}),
		OriginalSectionTariffs: sectionVector(map[int]float64{1: 2.5, 2: 1}),
		TauC:                   sectionVector(map[int]float64{1: tau0}),
		TauCForCalculations: map[string]float64{
			"111CA": 0.7 * tau0,
			"311FT": 0.3 * tau0,
			"334":   0,
		},
		PassThroughRate: 1,
		AverageTariff:   (10*10 + 20*1) / 100.0,
	}

	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("GenerateTariffData() mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerator_AlwaysTwentyOneSections(t *testing.T) {
	_, g := newTestGenerator(t)

	for _, iso := range []string{"CAN", "CHN", "XXX"} {
		b := g.GenerateTariffData(iso)
		assert.Len(t, b.SectionTariffs, model.SectionCount, iso)
		assert.Len(t, b.OriginalSectionTariffs, model.SectionCount, iso)
		assert.Len(t, b.TauC, model.SectionCount, iso)
	}
}

func TestGenerator_UninitializedCountryUsesStatutoryRates(t *testing.T) {
	s, g := newTestGenerator(t)

	b := g.GenerateTariffData("CHN")
	assert.Equal(t, sectionVector(map[int]float64{1: 10, 2: 8, 16: 25}), b.SectionTariffs)
	assert.Equal(t, b.SectionTariffs, b.OriginalSectionTariffs)
	for _, v := range b.TauC {
		assert.Zero(t, v)
	}
	assert.False(t, s.IsInitialized("CHN"), "generating must not initialize the country")
}

func TestGenerator_NaNEditLeavesBundleFinite(t *testing.T) {
	s, g := newTestGenerator(t)
	_, err := s.UpdateTariff(LevelSection, SectionPath("1"), math.NaN(), "CAN", KindCurrent)
	require.ErrorIs(t, err, ErrInvalidValue)

	for _, b := range []Bundle{g.GenerateTariffData("CAN"), g.UniformTariffData("CAN", math.NaN())} {
		for i := range b.SectionTariffs {
			assert.False(t, math.IsNaN(b.SectionTariffs[i]), "section %d", i+1)
			assert.False(t, math.IsNaN(b.TauC[i]), "tau %d", i+1)
		}
		assert.False(t, math.IsNaN(b.AverageTariff))
	}
}

func TestGenerator_UniformTariffData(t *testing.T) {
	s, g := newTestGenerator(t)
	_, err := s.UpdateTariff(LevelSection, SectionPath("1"), 50, "CHN", KindCurrent)
	require.NoError(t, err)

	b := g.UniformTariffData("CHN", 15)

	for i, v := range b.SectionTariffs {
		assert.Equal(t, 15.0, v, "section %d", i+1)
	}
	assert.InDelta(t, 5.0/110, b.TauC[0], 1e-15)
	assert.InDelta(t, 7.0/108, b.TauC[1], 1e-15)
	assert.InDelta(t, -10.0/125, b.TauC[15], 1e-15)
	assert.InDelta(t, 15.0/100, b.TauC[2], 1e-15)
	assert.InDelta(t, -10.0/125, b.TauCForCalculations["334"], 1e-15)

	// The scenario edit is still in place.
	assert.Equal(t, 50.0, s.GetTariffValue(LevelSection, SectionPath("1"), "CHN", KindCurrent))
}

func TestGenerator_PassThroughCarried(t *testing.T) {
	s, g := newTestGenerator(t)
	s.SetPassThroughRate(0.6)
	assert.Equal(t, 0.6, g.GenerateTariffData("CAN").PassThroughRate)

	s.SetPassThroughRate(4)
	assert.Equal(t, 1.0, g.GenerateTariffData("CAN").PassThroughRate)
}
