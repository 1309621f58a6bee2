package tariff

import (
	"strconv"

	"github.com/Veraticus/tariff-receipt/internal/model"
)

// Bundle is the request shape handed to the calculation module.
type Bundle struct {
	TauCForCalculations    map[string]float64 `json:"tauCForCalculations"`
	ISOList                []string           `json:"iso_list"`
	BEACodes               []string           `json:"bea_codes"`
	SectionTariffs         []float64          `json:"sectionTariffs"`
	OriginalSectionTariffs []float64          `json:"originalSectionTariffs"`
	TauC                   []float64          `json:"tau_c"`
	PassThroughRate        float64            `json:"passThroughRate"`
	AverageTariff          float64            `json:"averageTariff"`
}

// Generator flattens store contents into calculation bundles.
type Generator struct {
	store *Store
	ref   Reference
	bea   BEAReference
}

// NewGenerator creates a generator reading from store.
func NewGenerator(store *Store, ref Reference, bea BEAReference) *Generator {
	return &Generator{store: store, ref: ref, bea: bea}
}

// SectionIDs returns the canonical section identifiers "1" through "21".
func SectionIDs() []string {
	ids := make([]string, model.SectionCount)
	for i := range ids {
		ids[i] = strconv.Itoa(i + 1)
	}
	return ids
}

// PercentChange converts a rate move into the fractional price change the
// calculation module expects. The original rate sits in the denominator:
// tariffs compound on the tariff-inclusive price.
func PercentChange(current, original float64) float64 {
	return (current - original) / (100 + original)
}

// GenerateTariffData builds the bundle for iso from its latest current
// values. Sections the country has no data for fall back to the statutory
// rate, or zero when that is unknown too.
func (g *Generator) GenerateTariffData(iso string) Bundle {
	iso = model.NormalizeISO(iso)

	current := g.store.sectionValues(iso, KindCurrent)
	original := g.store.sectionValues(iso, KindOriginal)
	statutory, _ := g.ref.OriginalRates(iso)

	b := g.newBundle(iso)
	for i, id := range SectionIDs() {
		orig, ok := original[id]
		if !ok {
			orig, _ = statutory.SectionRate(id)
			orig = clamp(orig, 0, 100)
		}
		cur, ok := current[id]
		if !ok {
			cur = orig
		}
		b.OriginalSectionTariffs[i] = orig
		b.SectionTariffs[i] = cur
	}
	g.finish(iso, &b)
	return b
}

// UniformTariffData builds the bundle for iso as if rate were applied to
// every section, without touching the store.
func (g *Generator) UniformTariffData(iso string, rate float64) Bundle {
	iso = model.NormalizeISO(iso)
	rate = clamp(rate, 0, 100)

	original := g.store.sectionValues(iso, KindOriginal)
	statutory, _ := g.ref.OriginalRates(iso)

	b := g.newBundle(iso)
	for i, id := range SectionIDs() {
		orig, ok := original[id]
		if !ok {
			orig, _ = statutory.SectionRate(id)
			orig = clamp(orig, 0, 100)
		}
		b.OriginalSectionTariffs[i] = orig
		b.SectionTariffs[i] = rate
	}
	g.finish(iso, &b)
	return b
}

func (g *Generator) newBundle(iso string) Bundle {
	return Bundle{
		ISOList:                []string{iso},
		SectionTariffs:         make([]float64, model.SectionCount),
		OriginalSectionTariffs: make([]float64, model.SectionCount),
		TauC:                   make([]float64, model.SectionCount),
		PassThroughRate:        g.store.Options().PassThroughRate,
	}
}

func (g *Generator) finish(iso string, b *Bundle) {
	ids := SectionIDs()
	for i := range ids {
		b.TauC[i] = PercentChange(b.SectionTariffs[i], b.OriginalSectionTariffs[i])
	}

	weights := g.bea.SectionWeights(iso)
	var wsum, avg float64
	for i, id := range ids {
		w := weights[id]
		wsum += w
		avg += w * b.SectionTariffs[i]
	}
	if wsum > 0 {
		b.AverageTariff = avg / wsum
	} else {
		var sum float64
		for _, v := range b.SectionTariffs {
			sum += v
		}
		b.AverageTariff = sum / float64(len(b.SectionTariffs))
	}

	codes := g.bea.BEACodes()
	b.BEACodes = append([]string(nil), codes...)
	b.TauCForCalculations = make(map[string]float64, len(codes))
	for _, code := range codes {
		sw := g.bea.BEASectionWeights(code)
		var num, den float64
		for i, id := range ids {
			w := sw[id]
			num += w * b.TauC[i]
			den += w
		}
		if den > 0 {
			b.TauCForCalculations[code] = num / den
		} else {
			b.TauCForCalculations[code] = 0
		}
	}
}
