// Package tariff implements the per-country tariff value store, the
// hierarchical propagation engine that keeps section, chapter and HS4 levels
// consistent, and the generator that flattens a country's rates into the
// 21-section bundle consumed by the calculation module.
//
// All rates inside this package are percentages. Read operations never fail:
// an unknown country or address reads as zero.
package tariff

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Veraticus/tariff-receipt/internal/model"
)

// Errors returned by write operations.
var (
	ErrUnknownPath  = errors.New("unknown tariff path")
	ErrInvalidLevel = errors.New("invalid tariff level")
	ErrInvalidKind  = errors.New("invalid value kind")
	ErrInvalidMode  = errors.New("invalid propagation mode")
	ErrInvalidValue = errors.New("invalid tariff value")
)

// Level is the depth of a node in the HS hierarchy.
type Level int

// Hierarchy levels.
const (
	LevelSection Level = iota + 1
	LevelChapter
	LevelHS4
)

func (l Level) String() string {
	switch l {
	case LevelSection:
		return "section"
	case LevelChapter:
		return "chapter"
	case LevelHS4:
		return "hs4"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel parses "section", "chapter" or "hs4".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "section":
		return LevelSection, nil
	case "chapter":
		return LevelChapter, nil
	case "hs4":
		return LevelHS4, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
}

// Kind selects which of the two parallel trees a value belongs to.
type Kind int

// Value kinds.
const (
	KindCurrent Kind = iota
	KindOriginal
)

func (k Kind) String() string {
	if k == KindOriginal {
		return "original"
	}
	return "current"
}

// ParseKind parses "current" or "original". An empty string means current.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "current":
		return KindCurrent, nil
	case "original":
		return KindOriginal, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// Mode controls how a current-rate write is interpreted.
type Mode int

// Propagation modes.
const (
	// ModeTariffChange stores the written value as the new rate.
	ModeTariffChange Mode = iota
	// ModeOriginalCurrent treats the written value as a delta applied on top
	// of each node's original rate, scaled by the pass-through rate.
	ModeOriginalCurrent
)

func (m Mode) String() string {
	if m == ModeOriginalCurrent {
		return "original-current"
	}
	return "tariff-change"
}

// ParseMode parses "tariff-change" or "original-current".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tariff-change":
		return ModeTariffChange, nil
	case "original-current":
		return ModeOriginalCurrent, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Path addresses a node. Chapter and HS4 are empty above their level.
type Path struct {
	Section string
	Chapter string
	HS4     string
}

// SectionPath addresses a section.
func SectionPath(section string) Path {
	return Path{Section: section}
}

// ChapterPath addresses a chapter.
func ChapterPath(section, chapter string) Path {
	return Path{Section: section, Chapter: chapter}
}

// HS4Path addresses an HS4 heading.
func HS4Path(section, chapter, hs4 string) Path {
	return Path{Section: section, Chapter: chapter, HS4: hs4}
}

func (p Path) String() string {
	parts := []string{p.Section}
	if p.Chapter != "" {
		parts = append(parts, p.Chapter)
	}
	if p.HS4 != "" {
		parts = append(parts, p.HS4)
	}
	return strings.Join(parts, "/")
}

// ParsePath parses "section", "section/chapter" or
// "section/chapter/hs4" and returns the level it addresses.
func ParsePath(s string) (Level, Path, error) {
	parts := strings.Split(s, "/")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
		if parts[i] == "" {
			return 0, Path{}, fmt.Errorf("%w: %q", ErrUnknownPath, s)
		}
	}
	switch len(parts) {
	case 1:
		return LevelSection, SectionPath(parts[0]), nil
	case 2:
		return LevelChapter, ChapterPath(parts[0], parts[1]), nil
	case 3:
		return LevelHS4, HS4Path(parts[0], parts[1], parts[2]), nil
	}
	return 0, Path{}, fmt.Errorf("%w: %q", ErrUnknownPath, s)
}

// key returns the index key for p at level l, or false when p does not
// carry the fields level l needs.
func (p Path) key(l Level) (Path, bool) {
	switch l {
	case LevelSection:
		if p.Section == "" {
			return Path{}, false
		}
		return Path{Section: p.Section}, true
	case LevelChapter:
		if p.Section == "" || p.Chapter == "" {
			return Path{}, false
		}
		return Path{Section: p.Section, Chapter: p.Chapter}, true
	case LevelHS4:
		if p.Section == "" || p.Chapter == "" || p.HS4 == "" {
			return Path{}, false
		}
		return p, true
	}
	return Path{}, false
}

// Reference supplies the read-only inputs the store needs.
type Reference interface {
	Sections() []model.Section
	OriginalRates(iso string) (model.RateTable, bool)
	HS4ImportWeights(iso string) map[string]float64
}

// BEAReference supplies the inputs the generator needs on top of Reference.
type BEAReference interface {
	BEACodes() []string
	BEASectionWeights(beaCode string) map[string]float64
	SectionWeights(iso string) map[string]float64
}

// clamp maps NaN to lo.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
