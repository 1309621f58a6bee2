// Package scenariofile reads scenario definitions from YAML.
//
// A scenario file looks like:
//
//	name: steel-2025
//	mode: original-current
//	pass_through: 80
//	world_rate: 10
//	edits:
//	  - country: CAN
//	    section: "15"
//	    value: 25
//	  - country: MEX
//	    section: "16"
//	    chapter: "84"
//	    hs4: "8471"
//	    value: 5
//	receipt: [CAN, MEX]
//
// pass_through and world_rate are percentages. An edit's level is the most
// specific of section, chapter and hs4 it names unless level is given.
package scenariofile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Veraticus/tariff-receipt/internal/model"
	"github.com/Veraticus/tariff-receipt/internal/scenario"
	"github.com/Veraticus/tariff-receipt/internal/tariff"
)

// ErrInvalidFile wraps every validation failure.
var ErrInvalidFile = errors.New("invalid scenario file")

// File is the YAML document.
type File struct {
	PassThrough *float64 `yaml:"pass_through"`
	WorldRate   *float64 `yaml:"world_rate"`
	Name        string   `yaml:"name"`
	Mode        string   `yaml:"mode"`
	Edits       []Edit   `yaml:"edits"`
	Receipt     []string `yaml:"receipt"`
}

// Edit is one rate change.
type Edit struct {
	Country string  `yaml:"country"`
	Level   string  `yaml:"level"`
	Section string  `yaml:"section"`
	Chapter string  `yaml:"chapter"`
	HS4     string  `yaml:"hs4"`
	Kind    string  `yaml:"kind"`
	Value   float64 `yaml:"value"`
}

// Load reads and validates the scenario file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	f, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a single YAML document, rejecting unknown keys, and
// validates it.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidFile)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}

	var extra any
	if err := dec.Decode(&extra); err == nil {
		return nil, fmt.Errorf("%w: multiple YAML documents are not supported", ErrInvalidFile)
	} else if !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks values and fills in derived fields: normalized country
// codes and edit levels.
func (f *File) Validate() error {
	f.Name = strings.TrimSpace(f.Name)
	if _, err := tariff.ParseMode(f.Mode); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
	if f.PassThrough != nil && !(*f.PassThrough >= 0 && *f.PassThrough <= 100) {
		return fmt.Errorf("%w: pass_through must be between 0 and 100", ErrInvalidFile)
	}
	if f.WorldRate != nil && !(*f.WorldRate >= 0 && *f.WorldRate <= 100) {
		return fmt.Errorf("%w: world_rate must be between 0 and 100", ErrInvalidFile)
	}

	for i := range f.Edits {
		if err := f.Edits[i].normalize(); err != nil {
			return fmt.Errorf("%w: edit %d: %w", ErrInvalidFile, i+1, err)
		}
	}

	seen := make(map[string]struct{}, len(f.Receipt))
	for i, iso := range f.Receipt {
		iso = model.NormalizeISO(iso)
		switch {
		case iso == "":
			return fmt.Errorf("%w: receipt entry %d is empty", ErrInvalidFile, i+1)
		case model.IsWorldSentinel(iso):
			return fmt.Errorf("%w: receipt entry %d: %s is the world aggregate", ErrInvalidFile, i+1, iso)
		}
		if _, dup := seen[iso]; dup {
			return fmt.Errorf("%w: %s appears twice on the receipt", ErrInvalidFile, iso)
		}
		seen[iso] = struct{}{}
		f.Receipt[i] = iso
	}
	return nil
}

func (e *Edit) normalize() error {
	e.Country = model.NormalizeISO(e.Country)
	if e.Country == "" {
		return errors.New("missing country")
	}
	if model.IsWorldSentinel(e.Country) {
		return fmt.Errorf("%s is the world aggregate", e.Country)
	}
	if e.Section == "" {
		return errors.New("missing section")
	}
	if e.HS4 != "" && e.Chapter == "" {
		return errors.New("hs4 given without chapter")
	}
	if math.IsNaN(e.Value) || math.IsInf(e.Value, 0) {
		return fmt.Errorf("value %v is not a number", e.Value)
	}

	inferred := tariff.LevelSection
	switch {
	case e.HS4 != "":
		inferred = tariff.LevelHS4
	case e.Chapter != "":
		inferred = tariff.LevelChapter
	}
	if e.Level == "" {
		e.Level = inferred.String()
	}
	level, err := tariff.ParseLevel(e.Level)
	if err != nil {
		return err
	}
	if level != inferred {
		return fmt.Errorf("level %s does not match address %s", level, e.path())
	}
	e.Level = level.String()

	kind, err := tariff.ParseKind(e.Kind)
	if err != nil {
		return err
	}
	e.Kind = kind.String()
	return nil
}

func (e Edit) path() tariff.Path {
	return tariff.Path{Section: e.Section, Chapter: e.Chapter, HS4: e.HS4}
}

// CheckHierarchy reports every edit whose address the hierarchy does not
// contain.
func (f *File) CheckHierarchy(sections []model.Section) error {
	known := make(map[tariff.Path]struct{})
	for _, s := range sections {
		known[tariff.SectionPath(s.ID)] = struct{}{}
		for _, c := range s.Chapters {
			known[tariff.ChapterPath(s.ID, c.ID)] = struct{}{}
			for _, h := range c.HS4 {
				known[tariff.HS4Path(s.ID, c.ID, h.ID)] = struct{}{}
			}
		}
	}

	var errs []error
	for i, e := range f.Edits {
		if _, ok := known[e.path()]; !ok {
			errs = append(errs, fmt.Errorf("edit %d: %w: %s", i+1, tariff.ErrUnknownPath, e.path()))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidFile, errors.Join(errs...))
	}
	return nil
}

// PassThroughRate returns the pass-through as a fraction, or fallback when
// the file does not set one.
func (f *File) PassThroughRate(fallback float64) float64 {
	if f.PassThrough == nil {
		return fallback
	}
	return *f.PassThrough / 100
}

// TariffEdits converts the file's edits into edit-log entries recorded
// under the file's mode and pass-through.
func (f *File) TariffEdits(fallbackPassThrough float64) []model.TariffEdit {
	mode, _ := tariff.ParseMode(f.Mode)
	pt := f.PassThroughRate(fallbackPassThrough)

	out := make([]model.TariffEdit, len(f.Edits))
	for i, e := range f.Edits {
		out[i] = model.TariffEdit{
			Country:     e.Country,
			Level:       e.Level,
			Section:     e.Section,
			Chapter:     e.Chapter,
			HS4:         e.HS4,
			Kind:        e.Kind,
			Mode:        mode.String(),
			Value:       e.Value,
			PassThrough: pt,
		}
	}
	return out
}

// Snapshot returns the file as a replayable scenario.
func (f *File) Snapshot(fallbackPassThrough float64) scenario.Snapshot {
	mode, _ := tariff.ParseMode(f.Mode)
	return scenario.Snapshot{
		Mode:        mode,
		PassThrough: f.PassThroughRate(fallbackPassThrough),
		Edits:       f.TariffEdits(fallbackPassThrough),
		Receipt:     append([]string(nil), f.Receipt...),
		WorldRate:   f.WorldRate,
	}
}
