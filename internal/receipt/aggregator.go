// Package receipt accumulates per-country effect results into the running
// receipt: a subtotal over the selected countries, a rest-of-world
// aggregate over everyone else, and their total.
package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/tariff-receipt/internal/calc"
	"github.com/Veraticus/tariff-receipt/internal/model"
	"github.com/Veraticus/tariff-receipt/internal/tariff"
)

// Errors returned by the aggregator.
var (
	ErrVectorLength = errors.New("effect vector length mismatch")
	ErrStaleResult  = errors.New("result computed for an outdated receipt")
	ErrEmptyISO     = errors.New("empty country code")
)

// CountrySource lists every known trading partner.
type CountrySource interface {
	CountryISOs() []string
}

// BundleSource builds a uniform-rate bundle for a country.
type BundleSource interface {
	UniformTariffData(iso string, rate float64) tariff.Bundle
}

// Config holds rest-of-world batching options.
type Config struct {
	// OnBatch is called after each rest-of-world batch with the number of
	// countries finished so far.
	OnBatch     func(done, total int)
	BatchSize   int
	Concurrency int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:   20,
		Concurrency: 4,
	}
}

// Totals is a point-in-time view of the receipt.
type Totals struct {
	Subtotal    model.EffectTotals
	RestOfWorld model.EffectTotals
	Total       model.EffectTotals
	Empty       bool
	HasWorld    bool
	WorldRate   float64
}

// Aggregator holds the receipt's canonical, unrounded numeric state.
type Aggregator struct {
	entries    map[string]model.EffectResult
	subtotal   model.EffectTotals
	world      *model.EffectTotals
	countries  CountrySource
	bundles    BundleSource
	calculator calc.Calculator
	logger     *slog.Logger
	order      []string
	config     Config
	worldRate  float64
	vectorLen  int
	generation uint64
	mu         sync.Mutex
	hasRate    bool
}

// NewAggregator creates an empty aggregator.
func NewAggregator(countries CountrySource, bundles BundleSource, calculator calc.Calculator, config Config, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConfig().Concurrency
	}
	return &Aggregator{
		entries:    make(map[string]model.EffectResult),
		countries:  countries,
		bundles:    bundles,
		calculator: calculator,
		config:     config,
		logger:     logger,
	}
}

// AddCountryResult folds iso's result into the subtotal, replacing any
// earlier result for iso. All results must share one vector length.
func (a *Aggregator) AddCountryResult(iso string, res model.EffectResult) error {
	iso = model.NormalizeISO(iso)
	if iso == "" {
		return ErrEmptyISO
	}
	if err := checkVectors(res); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	_, exists := a.entries[iso]
	others := len(a.entries)
	if exists {
		others--
	}
	switch {
	case others == 0:
		// The vector length is set by whichever entry is alone on the
		// receipt, so a rest of world built for another length goes too.
		if res.Len() != a.vectorLen {
			a.dropWorldLocked()
		}
		a.vectorLen = res.Len()
	case res.Len() != a.vectorLen:
		return fmt.Errorf("%w: %s has %d sectors, receipt has %d", ErrVectorLength, iso, res.Len(), a.vectorLen)
	}

	if !exists {
		a.order = append(a.order, iso)
		a.dropWorldLocked()
	}
	a.entries[iso] = cloneResult(res)
	a.recomputeSubtotal()

	a.logger.Debug("added country to receipt", "country", iso, "countries", len(a.entries))
	return nil
}

// RemoveCountryResult drops iso. The subtotal is rebuilt from the
// remaining countries so repeated add/remove cycles cannot drift. Removing
// the last country resets the receipt entirely. It reports whether iso was
// present.
func (a *Aggregator) RemoveCountryResult(iso string) bool {
	iso = model.NormalizeISO(iso)

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.entries[iso]; !ok {
		return false
	}
	delete(a.entries, iso)
	for i, o := range a.order {
		if o == iso {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}

	if len(a.entries) == 0 {
		a.resetLocked()
		return true
	}
	a.dropWorldLocked()
	a.recomputeSubtotal()
	return true
}

// Clear removes every country and the rest-of-world aggregate.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = make(map[string]model.EffectResult)
	a.order = nil
	a.resetLocked()
}

// Invalidate discards any in-flight rest-of-world computation.
func (a *Aggregator) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.generation++
}

// dropWorldLocked discards the rest-of-world aggregate after the selection
// changed, since it was computed against a different exclusion set. The
// rate is kept so callers can refresh.
func (a *Aggregator) dropWorldLocked() {
	a.world = nil
	a.generation++
}

// WorldRate returns the rate of the last published rest-of-world
// computation and whether one was published since the last reset.
func (a *Aggregator) WorldRate() (float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.worldRate, a.hasRate
}

// HasRestOfWorld reports whether an aggregate is available for the current
// selection.
func (a *Aggregator) HasRestOfWorld() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.world != nil
}

func (a *Aggregator) resetLocked() {
	a.subtotal = model.EffectTotals{}
	a.world = nil
	a.worldRate = 0
	a.hasRate = false
	a.vectorLen = 0
	a.generation++
}

// recomputeSubtotal sums entries in ISO order so the result does not depend
// on insertion history.
func (a *Aggregator) recomputeSubtotal() {
	isos := make([]string, 0, len(a.entries))
	for iso := range a.entries {
		isos = append(isos, iso)
	}
	sort.Strings(isos)

	sub := model.NewEffectTotals(a.vectorLen)
	for _, iso := range isos {
		sub.Add(a.entries[iso])
	}
	a.subtotal = sub
}

// Selected returns the receipt's countries in the order they were added.
func (a *Aggregator) Selected() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.order...)
}

// Result returns the stored result for iso.
func (a *Aggregator) Result(iso string) (model.EffectResult, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.entries[model.NormalizeISO(iso)]
	if !ok {
		return model.EffectResult{}, false
	}
	return cloneResult(r), true
}

// Subtotal returns the sum over the selected countries.
func (a *Aggregator) Subtotal() model.EffectTotals {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.subtotal.Clone()
}

// RestOfWorldCountries returns every known country that is not excluded and
// not a world sentinel, sorted.
func (a *Aggregator) RestOfWorldCountries(excluded []string) []string {
	skip := make(map[string]struct{}, len(excluded))
	for _, iso := range excluded {
		skip[model.NormalizeISO(iso)] = struct{}{}
	}

	var out []string
	seen := make(map[string]struct{})
	for _, iso := range a.countries.CountryISOs() {
		iso = model.NormalizeISO(iso)
		if iso == "" || model.IsWorldSentinel(iso) {
			continue
		}
		if _, ok := skip[iso]; ok {
			continue
		}
		if _, ok := seen[iso]; ok {
			continue
		}
		seen[iso] = struct{}{}
		out = append(out, iso)
	}
	sort.Strings(out)
	return out
}

// RefreshRestOfWorld recomputes the rest of world against the receipt's
// current selection.
func (a *Aggregator) RefreshRestOfWorld(ctx context.Context, rate float64) (model.EffectTotals, error) {
	return a.ComputeRestOfWorld(ctx, rate, nil)
}

// ComputeRestOfWorld applies rate uniformly to every section for every
// country outside excluded, sums the effects and publishes the aggregate.
// Countries already on the receipt are always excluded. The exclusion set
// is read once up front. Countries are processed in
// batches; the sum is taken in ISO order after all batches finish, so the
// result is independent of scheduling. If the receipt was invalidated
// while the computation ran, the result is discarded and ErrStaleResult
// returned.
func (a *Aggregator) ComputeRestOfWorld(ctx context.Context, rate float64, excluded []string) (model.EffectTotals, error) {
	a.mu.Lock()
	gen := a.generation
	skip := append(append([]string(nil), a.order...), excluded...)
	a.mu.Unlock()

	isos := a.RestOfWorldCountries(skip)
	results := make([]model.EffectResult, len(isos))

	a.logger.Info("computing rest of world",
		"countries", len(isos),
		"rate", rate,
		"batch_size", a.config.BatchSize)

	for start := 0; start < len(isos); start += a.config.BatchSize {
		end := min(start+a.config.BatchSize, len(isos))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(a.config.Concurrency)
		for i := start; i < end; i++ {
			g.Go(func() error {
				res, err := a.calculator.Calculate(gctx, a.bundles.UniformTariffData(isos[i], rate))
				if err != nil {
					return fmt.Errorf("rest of world %s: %w", isos[i], err)
				}
				if err := checkVectors(res); err != nil {
					return fmt.Errorf("rest of world %s: %w", isos[i], err)
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return model.EffectTotals{}, err
		}

		if a.config.OnBatch != nil {
			a.config.OnBatch(end, len(isos))
		}
	}

	n := 0
	if len(results) > 0 {
		n = results[0].Len()
	}
	world := model.NewEffectTotals(n)
	for i, res := range results {
		if res.Len() != n {
			return model.EffectTotals{}, fmt.Errorf("%w: %s", ErrVectorLength, isos[i])
		}
		world.Add(res)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.generation != gen {
		a.logger.Debug("discarding stale rest-of-world result", "generation", gen, "current", a.generation)
		return model.EffectTotals{}, ErrStaleResult
	}
	if a.vectorLen != 0 && n != 0 && n != a.vectorLen {
		return model.EffectTotals{}, fmt.Errorf("%w: rest of world has %d sectors, receipt has %d", ErrVectorLength, n, a.vectorLen)
	}

	a.world = &world
	a.worldRate = rate
	a.hasRate = true
	return world.Clone(), nil
}

// ComputeTotal returns subtotal, rest of world and their sum. Direct and
// indirect totals are summed independently; the grand total is their sum.
// With no selected countries the receipt is Empty.
func (a *Aggregator) ComputeTotal() Totals {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.entries) == 0 {
		return Totals{Empty: true}
	}

	t := Totals{
		Subtotal:  a.subtotal.Clone(),
		WorldRate: a.worldRate,
	}

	total := a.subtotal.Clone()
	if a.world != nil {
		t.HasWorld = true
		t.RestOfWorld = a.world.Clone()
		total.Combine(*a.world)
	} else {
		t.RestOfWorld = model.NewEffectTotals(a.vectorLen)
	}
	total.Total = total.Direct + total.Indirect
	t.Total = total
	return t
}

func checkVectors(r model.EffectResult) error {
	n := len(r.TotalEffectVector)
	if len(r.DirectEffectVector) != n || len(r.IndirectEffectVector) != n {
		return fmt.Errorf("%w: direct %d, indirect %d, total %d",
			ErrVectorLength, len(r.DirectEffectVector), len(r.IndirectEffectVector), n)
	}
	return nil
}

func cloneResult(r model.EffectResult) model.EffectResult {
	c := r
	c.DirectEffectVector = append([]float64(nil), r.DirectEffectVector...)
	c.IndirectEffectVector = append([]float64(nil), r.IndirectEffectVector...)
	c.TotalEffectVector = append([]float64(nil), r.TotalEffectVector...)
	return c
}
