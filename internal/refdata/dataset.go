// Package refdata loads the read-only reference tables the tariff engine
// runs on: the HS hierarchy, statutory bilateral rates and the import
// weights used for aggregation.
package refdata

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/Veraticus/tariff-receipt/internal/common"
	"github.com/Veraticus/tariff-receipt/internal/model"
)

// Raw mirrors the on-disk JSON files before validation.
type Raw struct {
	SectionWeights    map[string]map[string]float64         `json:"section_weights"`
	BEAImportWeights  map[string]map[string]float64         `json:"bea_import_weights"`
	HS4ImportWeights  map[string]map[string]float64         `json:"hs4_import_weights"`
	BilateralTariffs  map[string]map[string]model.RateTable `json:"bilateral_tariffs"`
	BEASectionWeights BEASectionWeights                     `json:"bea_section_weights"`
	Mapping           Mapping                               `json:"section_to_hs4_mapping"`
	Countries         []model.Country                       `json:"countries"`
}

// Mapping is the section → chapter → HS4 tree.
type Mapping struct {
	Sections []model.Section `json:"sections"`
}

// BEASectionWeights maps BEA sector codes to per-section weights. Codes
// fixes the sector order of every effect vector.
type BEASectionWeights struct {
	Weights map[string]map[string]float64 `json:"weights"`
	Codes   []string                      `json:"bea_codes"`
}

// Dataset is a validated, immutable set of reference tables.
type Dataset struct {
	sectionWeights    map[string]map[string]float64
	beaSectionWeights map[string]map[string]float64
	beaImportWeights  map[string]map[string]float64
	hs4Weights        map[string]map[string]float64
	rates             map[string]model.RateTable
	names             map[string]string
	year              string
	sections          []model.Section
	beaCodes          []string
	isos              []string
}

// NewDataset validates raw and resolves statutory rates for year. An empty
// year selects the latest year available per country.
func NewDataset(raw Raw, year string) (*Dataset, error) {
	if err := validateMapping(raw.Mapping); err != nil {
		return nil, err
	}
	if err := validateBEA(raw.BEASectionWeights); err != nil {
		return nil, err
	}

	d := &Dataset{
		sections:          raw.Mapping.Sections,
		sectionWeights:    normalizeKeys(raw.SectionWeights),
		beaSectionWeights: raw.BEASectionWeights.Weights,
		beaImportWeights:  normalizeKeys(raw.BEAImportWeights),
		hs4Weights:        normalizeKeys(raw.HS4ImportWeights),
		rates:             make(map[string]model.RateTable),
		names:             make(map[string]string),
		beaCodes:          append([]string(nil), raw.BEASectionWeights.Codes...),
		year:              year,
	}
	if d.beaSectionWeights == nil {
		d.beaSectionWeights = map[string]map[string]float64{}
	}

	known := make(map[string]struct{})
	for _, c := range raw.Countries {
		iso := model.NormalizeISO(c.ISO)
		if iso == "" {
			return nil, fmt.Errorf("%w: country with empty ISO code", common.ErrInvalidConfig)
		}
		d.names[iso] = c.Name
		known[iso] = struct{}{}
	}

	for iso, byYear := range raw.BilateralTariffs {
		iso = model.NormalizeISO(iso)
		known[iso] = struct{}{}
		if table, ok := pickYear(byYear, year); ok {
			d.rates[iso] = table
		}
	}
	for iso := range d.beaImportWeights {
		known[iso] = struct{}{}
	}

	for iso := range known {
		d.isos = append(d.isos, iso)
	}
	sort.Strings(d.isos)

	return d, nil
}

func validateMapping(m Mapping) error {
	if len(m.Sections) == 0 {
		return fmt.Errorf("%w: section mapping has no sections", common.ErrMissingData)
	}
	if len(m.Sections) > model.SectionCount {
		return fmt.Errorf("%w: section mapping has %d sections, at most %d allowed",
			common.ErrInvalidConfig, len(m.Sections), model.SectionCount)
	}

	seen := make(map[string]bool)
	for _, s := range m.Sections {
		n, err := strconv.Atoi(s.ID)
		if err != nil || n < 1 || n > model.SectionCount {
			return fmt.Errorf("%w: section id %q must be 1-%d", common.ErrInvalidConfig, s.ID, model.SectionCount)
		}
		if seen["s"+s.ID] {
			return fmt.Errorf("%w: duplicate section %q", common.ErrInvalidConfig, s.ID)
		}
		seen["s"+s.ID] = true

		for _, ch := range s.Chapters {
			if ch.ID == "" || seen["c"+ch.ID] {
				return fmt.Errorf("%w: invalid or duplicate chapter %q", common.ErrInvalidConfig, ch.ID)
			}
			seen["c"+ch.ID] = true
			for _, h := range ch.HS4 {
				if h.ID == "" || seen["h"+h.ID] {
					return fmt.Errorf("%w: invalid or duplicate hs4 %q", common.ErrInvalidConfig, h.ID)
				}
				seen["h"+h.ID] = true
			}
		}
	}
	return nil
}

func validateBEA(b BEASectionWeights) error {
	seen := make(map[string]bool, len(b.Codes))
	for _, c := range b.Codes {
		if c == "" || seen[c] {
			return fmt.Errorf("%w: invalid or duplicate BEA code %q", common.ErrInvalidConfig, c)
		}
		seen[c] = true
	}
	for code := range b.Weights {
		if !seen[code] {
			return fmt.Errorf("%w: BEA weights for unlisted code %q", common.ErrInvalidConfig, code)
		}
	}
	return nil
}

func pickYear(byYear map[string]model.RateTable, year string) (model.RateTable, bool) {
	if year != "" {
		t, ok := byYear[year]
		return t, ok
	}
	latest := ""
	for y := range byYear {
		if y > latest {
			latest = y
		}
	}
	if latest == "" {
		return model.RateTable{}, false
	}
	return byYear[latest], true
}

func normalizeKeys(m map[string]map[string]float64) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(m))
	for k, v := range m {
		out[model.NormalizeISO(k)] = v
	}
	return out
}

// Sections returns the HS hierarchy.
func (d *Dataset) Sections() []model.Section {
	return d.sections
}

// OriginalRates returns iso's statutory rates for the dataset year.
func (d *Dataset) OriginalRates(iso string) (model.RateTable, bool) {
	t, ok := d.rates[model.NormalizeISO(iso)]
	return t, ok
}

// HS4ImportWeights returns iso's import values by HS4 heading.
func (d *Dataset) HS4ImportWeights(iso string) map[string]float64 {
	return d.hs4Weights[model.NormalizeISO(iso)]
}

// SectionWeights returns iso's import weights by section.
func (d *Dataset) SectionWeights(iso string) map[string]float64 {
	return d.sectionWeights[model.NormalizeISO(iso)]
}

// BEACodes returns the BEA sector order shared by every effect vector.
func (d *Dataset) BEACodes() []string {
	return d.beaCodes
}

// BEASectionWeights returns the concordance weights from sections to code.
func (d *Dataset) BEASectionWeights(code string) map[string]float64 {
	return d.beaSectionWeights[code]
}

// BEAImportWeights returns iso's import shares by BEA sector.
func (d *Dataset) BEAImportWeights(iso string) map[string]float64 {
	return d.beaImportWeights[model.NormalizeISO(iso)]
}

// CountryISOs returns every known country code, sorted.
func (d *Dataset) CountryISOs() []string {
	return append([]string(nil), d.isos...)
}

// CountryName returns the display name for iso, or iso itself.
func (d *Dataset) CountryName(iso string) string {
	iso = model.NormalizeISO(iso)
	if n, ok := d.names[iso]; ok && n != "" {
		return n
	}
	return iso
}

// Year returns the configured rate year; empty means latest.
func (d *Dataset) Year() string {
	return d.year
}
