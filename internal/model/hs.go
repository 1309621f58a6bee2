// Package model contains the domain types shared across the tariff engine.
package model

// SectionCount is the number of Harmonized System sections.
const SectionCount = 21

// HS4 is a four-digit heading, the leaf of the product hierarchy.
type HS4 struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Chapter is a two-digit HS chapter.
type Chapter struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	HS4   []HS4  `json:"hs4"`
}

// Section is one of the 21 HS sections.
type Section struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Chapters []Chapter `json:"chapters"`
}

// RateTable holds statutory rates, in percent, for one country and year.
// Any level may be missing; lookups fall back to the enclosing level.
type RateTable struct {
	Sections map[string]float64 `json:"sections"`
	Chapters map[string]float64 `json:"chapters"`
	HS4      map[string]float64 `json:"hs4"`
}

// SectionRate returns the explicit section rate.
func (r RateTable) SectionRate(sectionID string) (float64, bool) {
	v, ok := r.Sections[sectionID]
	return v, ok
}

// ChapterRate returns the explicit chapter rate.
func (r RateTable) ChapterRate(chapterID string) (float64, bool) {
	v, ok := r.Chapters[chapterID]
	return v, ok
}

// HS4Rate returns the explicit HS4 rate.
func (r RateTable) HS4Rate(hs4ID string) (float64, bool) {
	v, ok := r.HS4[hs4ID]
	return v, ok
}
