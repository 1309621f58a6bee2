// Package scenario holds the application state of one tariff scenario: the
// rate store, the bundle generator, the receipt and the calculator, wired
// together behind the operations a user performs.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Veraticus/tariff-receipt/internal/calc"
	"github.com/Veraticus/tariff-receipt/internal/model"
	"github.com/Veraticus/tariff-receipt/internal/receipt"
	"github.com/Veraticus/tariff-receipt/internal/tariff"
)

// Errors returned by State.
var (
	ErrNoCountry     = errors.New("no country given")
	ErrWorldSentinel = errors.New("world aggregate cannot be edited as a country")
	ErrNoSession     = errors.New("no open edit session for country")
)

// Reference is everything State needs from the reference dataset.
type Reference interface {
	tariff.Reference
	tariff.BEAReference
	calc.ImportWeights
	receipt.CountrySource
	CountryName(iso string) string
}

// Options configures a State.
type Options struct {
	Receipt receipt.Config
	Store   tariff.Options
}

// DefaultOptions returns the default store and receipt options.
func DefaultOptions() Options {
	return Options{
		Store:   tariff.DefaultOptions(),
		Receipt: receipt.DefaultConfig(),
	}
}

// Snapshot is the persisted form of a scenario that Replay rebuilds from.
type Snapshot struct {
	WorldRate   *float64
	Mode        tariff.Mode
	Edits       []model.TariffEdit
	Receipt     []string
	PassThrough float64
}

// Submission is the outcome of submitting a country.
type Submission struct {
	Bundle tariff.Bundle
	// Edits are the edits made during the session, in order.
	Edits  []model.TariffEdit
	Result model.EffectResult
	// WorldErr is set when the rest of world could not be refreshed. The
	// country itself was still added.
	WorldErr error
}

// State is the explicit application state of a scenario. It is not safe
// for concurrent use; the store and receipt underneath are.
type State struct {
	ref        Reference
	store      *tariff.Store
	generator  *tariff.Generator
	aggregator *receipt.Aggregator
	calculator calc.Calculator
	session    *tariff.EditSession
	logger     *slog.Logger
	worldRate  *float64
	pending    []model.TariffEdit
	now        func() time.Time
}

// New creates an empty scenario state.
func New(ref Reference, calculator calc.Calculator, opts Options, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}
	store := tariff.NewStore(ref, opts.Store, logger)
	generator := tariff.NewGenerator(store, ref, ref)
	return &State{
		ref:        ref,
		store:      store,
		generator:  generator,
		aggregator: receipt.NewAggregator(ref, generator, calculator, opts.Receipt, logger),
		calculator: calculator,
		logger:     logger,
		now:        time.Now,
	}
}

// Store returns the underlying rate store.
func (s *State) Store() *tariff.Store { return s.store }

// Generator returns the bundle generator.
func (s *State) Generator() *tariff.Generator { return s.generator }

// Receipt returns the receipt aggregator.
func (s *State) Receipt() *receipt.Aggregator { return s.aggregator }

// WorldRate returns the rest-of-world rate, nil when unset.
func (s *State) WorldRate() *float64 {
	if s.worldRate == nil {
		return nil
	}
	r := *s.worldRate
	return &r
}

// OpenCountry starts editing iso. An edit session already open for a
// different country is rolled back first; reopening the same country keeps
// the open session.
func (s *State) OpenCountry(iso string) (*tariff.EditSession, error) {
	iso, err := checkCountry(iso)
	if err != nil {
		return nil, err
	}

	if s.session != nil {
		if s.session.Country() == iso {
			return s.session, nil
		}
		s.CancelEdit()
	}

	s.session = s.store.BeginEdit(iso)
	s.pending = nil
	s.logger.Debug("opened country for editing", "country", iso)
	return s.session, nil
}

// EditingCountry returns the country of the open session, if any.
func (s *State) EditingCountry() (string, bool) {
	if s.session == nil {
		return "", false
	}
	return s.session.Country(), true
}

// Edit writes a rate through the open session for iso and returns the
// stored value.
func (s *State) Edit(iso string, level tariff.Level, p tariff.Path, value float64, kind tariff.Kind) (float64, error) {
	iso = model.NormalizeISO(iso)
	if s.session == nil || s.session.Country() != iso {
		return 0, fmt.Errorf("%w: %s", ErrNoSession, iso)
	}

	opts := s.store.Options()
	stored, err := s.session.Update(level, p, value, kind)
	if err != nil {
		return 0, err
	}

	s.pending = append(s.pending, model.TariffEdit{
		CreatedAt:   s.now().UTC(),
		Country:     iso,
		Level:       level.String(),
		Section:     p.Section,
		Chapter:     p.Chapter,
		HS4:         p.HS4,
		Kind:        kind.String(),
		Mode:        opts.Mode.String(),
		Value:       value,
		PassThrough: opts.PassThroughRate,
	})
	return stored, nil
}

// CancelEdit closes the open session without keeping its edits and
// discards any in-flight rest-of-world result.
func (s *State) CancelEdit() {
	if s.session == nil {
		return
	}
	iso := s.session.Country()
	if s.session.Close() {
		s.logger.Info("discarded unsaved edits", "country", iso, "edits", len(s.pending))
	}
	s.session = nil
	s.pending = nil
	s.aggregator.Invalidate()
}

// SubmitCountry keeps the open session's edits for iso (if any), builds the
// country's bundle, runs the calculator and folds the result into the
// receipt. When a world rate is set the rest of world is recomputed for
// the new selection.
func (s *State) SubmitCountry(ctx context.Context, iso string) (Submission, error) {
	iso, err := checkCountry(iso)
	if err != nil {
		return Submission{}, err
	}

	var edits []model.TariffEdit
	if s.session != nil && s.session.Country() == iso {
		s.session.Submit()
		s.session.Close()
		edits = s.pending
		s.session = nil
		s.pending = nil
	}

	bundle, res, err := s.add(ctx, iso)
	if err != nil {
		return Submission{}, err
	}

	s.logger.Info("added country to receipt",
		"country", iso,
		"edits", len(edits),
		"total_effect", res.TotalSum)

	sub := Submission{Bundle: bundle, Result: res, Edits: edits}
	sub.WorldErr = s.refreshWorld(ctx)
	return sub, nil
}

// AddCountries puts every iso on the receipt and then refreshes the rest of
// world once. An open session for one of them is rolled back. The first
// return is the rest-of-world failure, if any; the countries are still
// added. A country that fails to calculate stops the loop, leaving the
// earlier ones on the receipt.
func (s *State) AddCountries(ctx context.Context, isos ...string) (worldErr error, err error) {
	for _, raw := range isos {
		iso, err := checkCountry(raw)
		if err != nil {
			return nil, err
		}
		if s.session != nil && s.session.Country() == iso {
			s.CancelEdit()
		}
		if _, _, err := s.add(ctx, iso); err != nil {
			return nil, err
		}
	}

	s.logger.Info("added countries to receipt", "countries", len(isos))
	return s.refreshWorld(ctx), nil
}

func (s *State) add(ctx context.Context, iso string) (tariff.Bundle, model.EffectResult, error) {
	bundle, res, err := s.calculate(ctx, iso)
	if err != nil {
		return tariff.Bundle{}, model.EffectResult{}, err
	}
	if err := s.aggregator.AddCountryResult(iso, res); err != nil {
		return tariff.Bundle{}, model.EffectResult{}, fmt.Errorf("add %s to receipt: %w", iso, err)
	}
	return bundle, res, nil
}

func (s *State) calculate(ctx context.Context, iso string) (tariff.Bundle, model.EffectResult, error) {
	bundle := s.generator.GenerateTariffData(iso)
	res, err := s.calculator.Calculate(ctx, bundle)
	if err != nil {
		return tariff.Bundle{}, model.EffectResult{}, fmt.Errorf("calculate effects for %s: %w", iso, err)
	}
	return bundle, res, nil
}

// RemoveCountry takes iso off the receipt. Its tariff edits are kept.
func (s *State) RemoveCountry(ctx context.Context, iso string) (bool, error) {
	if !s.aggregator.RemoveCountryResult(iso) {
		return false, nil
	}
	s.logger.Info("removed country from receipt", "country", model.NormalizeISO(iso))
	return true, s.refreshWorld(ctx)
}

// DiscardCountry drops every tariff edit held for iso, including an open
// session, and takes it off the receipt. Later reads fall back to the
// statutory rates. It reports whether iso was on the receipt; the error is
// a rest-of-world refresh failure.
func (s *State) DiscardCountry(ctx context.Context, iso string) (bool, error) {
	iso = model.NormalizeISO(iso)
	if s.session != nil && s.session.Country() == iso {
		s.CancelEdit()
	}
	s.store.ClearCountry(iso)

	removed := s.aggregator.RemoveCountryResult(iso)
	s.logger.Info("discarded country edits", "country", iso, "on_receipt", removed)
	if !removed {
		return false, nil
	}
	return true, s.refreshWorld(ctx)
}

// SetWorldRate sets the uniform rest-of-world rate, clamped to [0, 100],
// and recomputes the rest of world when the receipt has countries. NaN is
// rejected and leaves the current rate in place.
func (s *State) SetWorldRate(ctx context.Context, rate float64) error {
	if math.IsNaN(rate) {
		return fmt.Errorf("%w: world rate %v", tariff.ErrInvalidValue, rate)
	}
	rate = min(max(rate, 0), 100)
	s.worldRate = &rate
	return s.refreshWorld(ctx)
}

// ClearWorldRate removes the rest-of-world rate.
func (s *State) ClearWorldRate() {
	s.worldRate = nil
	s.aggregator.Invalidate()
}

func (s *State) refreshWorld(ctx context.Context) error {
	if s.worldRate == nil || len(s.aggregator.Selected()) == 0 {
		return nil
	}
	if _, err := s.aggregator.RefreshRestOfWorld(ctx, *s.worldRate); err != nil {
		if errors.Is(err, receipt.ErrStaleResult) {
			s.logger.Debug("rest of world superseded", "rate", *s.worldRate)
			return nil
		}
		return fmt.Errorf("rest of world at %.2f%%: %w", *s.worldRate, err)
	}
	return nil
}

// Totals returns the receipt totals.
func (s *State) Totals() receipt.Totals {
	return s.aggregator.ComputeTotal()
}

// Report snapshots the receipt for display or export. Lines follow the
// order countries were added; every value is unrounded.
func (s *State) Report(name string) model.ReceiptReport {
	totals := s.aggregator.ComputeTotal()
	report := model.ReceiptReport{
		GeneratedAt: s.now().UTC(),
		Scenario:    name,
		WorldRate:   s.WorldRate(),
		Subtotal:    totals.Subtotal,
		RestOfWorld: totals.RestOfWorld,
		Total:       totals.Total,
		HasWorld:    totals.HasWorld,
	}
	for _, iso := range s.aggregator.Selected() {
		res, ok := s.aggregator.Result(iso)
		if !ok {
			continue
		}
		report.Lines = append(report.Lines, model.ReceiptLine{
			ISO:      iso,
			Name:     s.ref.CountryName(iso),
			Direct:   res.DirectSum,
			Indirect: res.IndirectSum,
			Total:    res.TotalSum,
		})
	}
	return report
}

// Reset drops every edit, the receipt and the world rate.
func (s *State) Reset() {
	if s.session != nil {
		s.session.Close()
		s.session = nil
	}
	s.pending = nil
	s.store.ClearAllData()
	s.aggregator.Clear()
	s.worldRate = nil
	s.logger.Debug("scenario state reset")
}

// Replay resets the state and rebuilds it from a persisted scenario. Each
// edit is applied under the mode and pass-through it was recorded with;
// afterwards the scenario's own options take effect.
func (s *State) Replay(ctx context.Context, snap Snapshot) error {
	s.Reset()

	for i, e := range snap.Edits {
		if err := s.applyEdit(e); err != nil {
			return fmt.Errorf("replay edit %d: %w", i, err)
		}
	}
	s.store.SetMode(snap.Mode)
	s.store.SetPassThroughRate(snap.PassThrough)

	for _, iso := range snap.Receipt {
		iso, err := checkCountry(iso)
		if err != nil {
			return fmt.Errorf("replay receipt: %w", err)
		}
		if _, _, err := s.add(ctx, iso); err != nil {
			return fmt.Errorf("replay receipt: %w", err)
		}
	}

	if snap.WorldRate != nil {
		if err := s.SetWorldRate(ctx, *snap.WorldRate); err != nil {
			return err
		}
	}

	s.logger.Debug("replayed scenario",
		"edits", len(snap.Edits),
		"countries", len(snap.Receipt))
	return nil
}

func (s *State) applyEdit(e model.TariffEdit) error {
	level, err := tariff.ParseLevel(e.Level)
	if err != nil {
		return err
	}
	kind, err := tariff.ParseKind(e.Kind)
	if err != nil {
		return err
	}
	mode, err := tariff.ParseMode(e.Mode)
	if err != nil {
		return err
	}
	iso, err := checkCountry(e.Country)
	if err != nil {
		return err
	}

	s.store.SetMode(mode)
	s.store.SetPassThroughRate(e.PassThrough)
	_, err = s.store.UpdateTariff(level, tariff.Path{Section: e.Section, Chapter: e.Chapter, HS4: e.HS4}, e.Value, iso, kind)
	return err
}

func checkCountry(iso string) (string, error) {
	iso = model.NormalizeISO(iso)
	switch {
	case iso == "":
		return "", ErrNoCountry
	case model.IsWorldSentinel(iso):
		return "", fmt.Errorf("%w: %s", ErrWorldSentinel, iso)
	}
	return iso, nil
}
