package tariff

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/Veraticus/tariff-receipt/internal/model"
)

// Options configures how the store interprets current-rate writes.
type Options struct {
	Mode            Mode
	PassThroughRate float64
}

// DefaultOptions returns tariff-change mode with full pass-through.
func DefaultOptions() Options {
	return Options{
		Mode:            ModeTariffChange,
		PassThroughRate: 1.0,
	}
}

// Store holds the original and current rate trees of every country and
// propagates writes through the hierarchy.
type Store struct {
	ref    Reference
	trees  map[string]*countryTree
	logger *slog.Logger
	opts   Options
	mu     sync.RWMutex
}

// NewStore creates an empty store backed by ref.
func NewStore(ref Reference, opts Options, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	opts.PassThroughRate = clamp(opts.PassThroughRate, 0, 1)
	return &Store{
		ref:    ref,
		trees:  make(map[string]*countryTree),
		logger: logger,
		opts:   opts,
	}
}

// Options returns the active options.
func (s *Store) Options() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// SetMode switches the propagation mode for subsequent writes.
func (s *Store) SetMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Mode = m
}

// SetPassThroughRate sets the pass-through fraction, clamped to [0, 1]. NaN
// reads as 0.
func (s *Store) SetPassThroughRate(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.PassThroughRate = clamp(rate, 0, 1)
}

// PreCalculateWeights builds the country's trees and caches the normalized
// import weights used for parent averages. Calling it again for an
// initialized country is a no-op.
func (s *Store) PreCalculateWeights(iso string) {
	iso = model.NormalizeISO(iso)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureTree(iso)
}

// IsInitialized reports whether the country's trees have been built.
func (s *Store) IsInitialized(iso string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.trees[model.NormalizeISO(iso)]
	return ok
}

// Countries returns the ISO codes of every initialized country.
func (s *Store) Countries() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.trees))
	for iso := range s.trees {
		out = append(out, iso)
	}
	return out
}

// ensureTree must be called with the write lock held.
func (s *Store) ensureTree(iso string) *countryTree {
	if t, ok := s.trees[iso]; ok {
		return t
	}

	rates, ok := s.ref.OriginalRates(iso)
	if !ok {
		s.logger.Debug("no statutory rates for country, defaulting to zero", "country", iso)
	}
	t := buildTree(iso, s.ref.Sections(), rates, s.ref.HS4ImportWeights(iso))
	s.trees[iso] = t

	s.logger.Debug("pre-calculated tariff weights", "country", iso, "nodes", len(t.index))
	return t
}

// GetTariffValue returns the rate at the addressed node. Unknown countries,
// uninitialized countries and unknown paths read as zero.
func (s *Store) GetTariffValue(level Level, p Path, iso string, kind Kind) float64 {
	iso = model.NormalizeISO(iso)

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.trees[iso]
	if !ok {
		return 0
	}
	n, ok := t.lookup(level, p)
	if !ok {
		s.logger.Debug("tariff lookup for unknown path", "country", iso, "level", level, "path", p)
		return 0
	}
	return n.value(kind)
}

// IsDirectlySet reports whether the node's value of the given kind was
// entered by a user rather than derived by propagation.
func (s *Store) IsDirectlySet(level Level, p Path, iso string, kind Kind) bool {
	iso = model.NormalizeISO(iso)

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.trees[iso]
	if !ok {
		return false
	}
	n, ok := t.lookup(level, p)
	if !ok {
		return false
	}
	return n.isDirect(kind)
}

// UpdateTariff writes value at the addressed node and propagates it.
//
// For KindCurrent in tariff-change mode the value is clamped to [0, 100]
// and copied to every descendant. In original-current mode the value is a
// delta clamped to [-100, 100]; each affected node stores its own original
// rate plus delta times the pass-through rate. KindOriginal writes always
// use the override model. Ancestors that were not set directly are then
// recomputed from their children.
//
// It returns the value stored at the addressed node.
func (s *Store) UpdateTariff(level Level, p Path, value float64, iso string, kind Kind) (float64, error) {
	iso = model.NormalizeISO(iso)
	if iso == "" {
		return 0, fmt.Errorf("%w: empty country", ErrUnknownPath)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: %v for %s %s", ErrInvalidValue, value, level, p)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.ensureTree(iso)
	n, ok := t.lookup(level, p)
	if !ok {
		s.logger.Warn("ignoring tariff write for unknown path", "country", iso, "level", level, "path", p)
		return 0, fmt.Errorf("%w: %s %s for %s", ErrUnknownPath, level, p, iso)
	}

	var stored float64
	switch {
	case kind == KindOriginal:
		stored = clamp(value, 0, 100)
		n.original = stored
		n.directOriginal = true
		n.walkDescendants(func(d *node) {
			d.original = stored
			d.directOriginal = false
		})
	case s.opts.Mode == ModeOriginalCurrent:
		delta := clamp(value, -100, 100) * s.opts.PassThroughRate
		stored = setCurrent(n, clamp(n.original+delta, 0, 100))
		n.walkDescendants(func(d *node) {
			setCurrent(d, clamp(d.original+delta, 0, 100))
		})
	default:
		stored = setCurrent(n, clamp(value, 0, 100))
		n.walkDescendants(func(d *node) {
			setCurrent(d, stored)
		})
	}
	n.setDirect(kind)

	refreshAncestors(n)

	s.logger.Debug("tariff updated",
		"country", iso,
		"level", level,
		"path", p,
		"kind", kind,
		"mode", s.opts.Mode,
		"stored", stored)

	return stored, nil
}

func setCurrent(n *node, v float64) float64 {
	n.current = v
	n.hasCurrent = true
	n.directCurrent = false
	return v
}

func (n *node) setDirect(kind Kind) {
	if kind == KindOriginal {
		n.directOriginal = true
		return
	}
	n.directCurrent = true
}

// refreshAncestors recomputes derived values above n. Directly set
// ancestors keep their value.
func refreshAncestors(n *node) {
	for a := n.parent; a != nil; a = a.parent {
		if !a.directOriginal {
			a.original = a.average(KindOriginal)
		}
		if !a.directCurrent && anyCurrent(a) {
			a.current = a.average(KindCurrent)
			a.hasCurrent = true
		}
	}
}

func anyCurrent(n *node) bool {
	for _, c := range n.children {
		if c.hasCurrent {
			return true
		}
	}
	return false
}

// ClearCountry discards every value held for iso.
func (s *Store) ClearCountry(iso string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trees, model.NormalizeISO(iso))
}

// ClearAllData resets every country. It is safe on an empty store.
func (s *Store) ClearAllData() {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.trees)
	s.trees = make(map[string]*countryTree)
	s.logger.Debug("cleared tariff data", "countries", n)
}

// sectionValues returns the section-level values of kind for iso in the
// hierarchy's section order.
func (s *Store) sectionValues(iso string, kind Kind) map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.trees[iso]
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(t.sections))
	for _, sn := range t.sections {
		out[sn.path.Section] = sn.value(kind)
	}
	return out
}

func (s *Store) snapshot(iso string) (*countryTree, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trees[iso]
	if !ok {
		return nil, false
	}
	return t.clone(), true
}

func (s *Store) restore(iso string, t *countryTree) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t == nil {
		delete(s.trees, iso)
		return
	}
	s.trees[iso] = t
}
