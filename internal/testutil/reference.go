// Package testutil provides shared test fixtures: an in-memory reference
// dataset builder and SQLite helpers.
package testutil

import (
	"testing"

	"github.com/Veraticus/tariff-receipt/internal/model"
	"github.com/Veraticus/tariff-receipt/internal/refdata"
)

// BasicSections is a three-section slice of the HS hierarchy:
//
//	1  → 01 (0101, 0102), 02 (0201)
//	2  → 07 (0701, 0702)
//	16 → 84 (8471), 85 (8517, 8542)
func BasicSections() []model.Section {
	return []model.Section{
		{ID: "1", Title: "Live animals; animal products", Chapters: []model.Chapter{
			{ID: "01", Title: "Live animals", HS4: []model.HS4{{ID: "0101"}, {ID: "0102"}}},
			{ID: "02", Title: "Meat", HS4: []model.HS4{{ID: "0201"}}},
		}},
		{ID: "2", Title: "Vegetable products", Chapters: []model.Chapter{
			{ID: "07", Title: "Edible vegetables", HS4: []model.HS4{{ID: "0701"}, {ID: "0702"}}},
		}},
		{ID: "16", Title: "Machinery", Chapters: []model.Chapter{
			{ID: "84", Title: "Machinery", HS4: []model.HS4{{ID: "8471"}}},
			{ID: "85", Title: "Electrical machinery", HS4: []model.HS4{{ID: "8517"}, {ID: "8542"}}},
		}},
	}
}

// ReferenceBuilder assembles a refdata.Dataset for tests.
//
// Example:
//
//	ref := testutil.NewReferenceBuilder(t).
//		WithBasicHierarchy().
//		WithCountry("CAN", "Canada").
//		WithSectionRate("CAN", "1", 2.5).
//		Build()
type ReferenceBuilder struct {
	t    *testing.T
	raw  refdata.Raw
	year string
}

// NewReferenceBuilder creates an empty builder.
func NewReferenceBuilder(t *testing.T) *ReferenceBuilder {
	t.Helper()
	return &ReferenceBuilder{
		t:    t,
		year: "2024",
		raw: refdata.Raw{
			SectionWeights:   map[string]map[string]float64{},
			BEAImportWeights: map[string]map[string]float64{},
			HS4ImportWeights: map[string]map[string]float64{},
			BilateralTariffs: map[string]map[string]model.RateTable{},
		},
	}
}

// WithBasicHierarchy uses BasicSections as the HS tree.
func (b *ReferenceBuilder) WithBasicHierarchy() *ReferenceBuilder {
	b.raw.Mapping.Sections = BasicSections()
	return b
}

// WithSections uses a custom HS tree.
func (b *ReferenceBuilder) WithSections(sections ...model.Section) *ReferenceBuilder {
	b.raw.Mapping.Sections = sections
	return b
}

// WithCountry registers a country.
func (b *ReferenceBuilder) WithCountry(iso, name string) *ReferenceBuilder {
	b.raw.Countries = append(b.raw.Countries, model.Country{ISO: iso, Name: name})
	return b
}

// WithCountries registers countries named after their ISO code.
func (b *ReferenceBuilder) WithCountries(isos ...string) *ReferenceBuilder {
	for _, iso := range isos {
		b.WithCountry(iso, iso)
	}
	return b
}

func (b *ReferenceBuilder) table(iso string) model.RateTable {
	byYear, ok := b.raw.BilateralTariffs[iso]
	if !ok {
		byYear = map[string]model.RateTable{}
		b.raw.BilateralTariffs[iso] = byYear
	}
	t := byYear[b.year]
	if t.Sections == nil {
		t.Sections = map[string]float64{}
		t.Chapters = map[string]float64{}
		t.HS4 = map[string]float64{}
	}
	return t
}

// WithSectionRate sets a statutory section rate.
func (b *ReferenceBuilder) WithSectionRate(iso, section string, rate float64) *ReferenceBuilder {
	t := b.table(iso)
	t.Sections[section] = rate
	b.raw.BilateralTariffs[iso][b.year] = t
	return b
}

// WithChapterRate sets a statutory chapter rate.
func (b *ReferenceBuilder) WithChapterRate(iso, chapter string, rate float64) *ReferenceBuilder {
	t := b.table(iso)
	t.Chapters[chapter] = rate
	b.raw.BilateralTariffs[iso][b.year] = t
	return b
}

// WithHS4Rate sets a statutory HS4 rate.
func (b *ReferenceBuilder) WithHS4Rate(iso, hs4 string, rate float64) *ReferenceBuilder {
	t := b.table(iso)
	t.HS4[hs4] = rate
	b.raw.BilateralTariffs[iso][b.year] = t
	return b
}

// WithHS4Weights sets per-heading import weights for iso.
func (b *ReferenceBuilder) WithHS4Weights(iso string, weights map[string]float64) *ReferenceBuilder {
	b.raw.HS4ImportWeights[iso] = weights
	return b
}

// WithSectionWeights sets per-section import weights for iso.
func (b *ReferenceBuilder) WithSectionWeights(iso string, weights map[string]float64) *ReferenceBuilder {
	b.raw.SectionWeights[iso] = weights
	return b
}

// WithBEA sets the BEA sector order and concordance weights.
func (b *ReferenceBuilder) WithBEA(codes []string, weights map[string]map[string]float64) *ReferenceBuilder {
	b.raw.BEASectionWeights = refdata.BEASectionWeights{Codes: codes, Weights: weights}
	return b
}

// WithBEAImportWeights sets iso's import shares by BEA sector.
func (b *ReferenceBuilder) WithBEAImportWeights(iso string, weights map[string]float64) *ReferenceBuilder {
	b.raw.BEAImportWeights[iso] = weights
	return b
}

// Raw returns the assembled raw tables.
func (b *ReferenceBuilder) Raw() refdata.Raw {
	return b.raw
}

// Build validates the tables or fails the test.
func (b *ReferenceBuilder) Build() *refdata.Dataset {
	b.t.Helper()
	ds, err := refdata.NewDataset(b.raw, b.year)
	if err != nil {
		b.t.Fatalf("failed to build reference dataset: %v", err)
	}
	return ds
}

// BasicReference mirrors internal/refdata/testdata/basic.
func BasicReference(t *testing.T) *refdata.Dataset {
	t.Helper()
	return NewReferenceBuilder(t).
		WithBasicHierarchy().
		WithCountry("CAN", "Canada").
		WithCountry("MEX", "Mexico").
		WithCountry("CHN", "China").
		WithCountry("WLD", "World").
		WithSectionRate("CAN", "1", 2.5).
		WithSectionRate("CAN", "2", 1.0).
		WithSectionRate("CAN", "16", 0).
		WithChapterRate("CAN", "02", 5).
		WithHS4Rate("CAN", "0102", 4).
		WithSectionRate("MEX", "1", 3).
		WithSectionRate("MEX", "16", 1).
		WithSectionRate("CHN", "1", 10).
		WithSectionRate("CHN", "2", 8).
		WithSectionRate("CHN", "16", 25).
		WithSectionRate("WLD", "1", 5).
		WithHS4Weights("CAN", map[string]float64{
			"0101": 3, "0102": 1, "0201": 4, "0701": 1, "0702": 1, "8471": 5, "8517": 3, "8542": 2,
		}).
		WithSectionWeights("CAN", map[string]float64{"1": 10, "2": 20, "16": 70}).
		WithSectionWeights("MEX", map[string]float64{"1": 30, "16": 70}).
		WithBEA([]string{"111CA", "311FT", "334"}, map[string]map[string]float64{
			"111CA": {"1": 0.7, "2": 0.3},
			"311FT": {"1": 0.3, "2": 0.7},
			"334":   {"16": 1.0},
		}).
		WithBEAImportWeights("CAN", map[string]float64{"111CA": 0.02, "311FT": 0.03, "334": 0.05}).
		WithBEAImportWeights("MEX", map[string]float64{"111CA": 0.04, "311FT": 0.01, "334": 0.10}).
		WithBEAImportWeights("CHN", map[string]float64{"111CA": 0.01, "311FT": 0.02, "334": 0.30}).
		Build()
}
