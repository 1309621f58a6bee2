// Package calc defines the boundary to the price-effect calculation and
// ships a linear stand-in model for it.
package calc

import (
	"context"
	"errors"
	"fmt"

	"github.com/Veraticus/tariff-receipt/internal/model"
	"github.com/Veraticus/tariff-receipt/internal/tariff"
)

// ErrEmptyBundle is returned for a bundle without a country.
var ErrEmptyBundle = errors.New("bundle has no country")

// Calculator turns a tariff bundle into per-sector price effects.
type Calculator interface {
	Calculate(ctx context.Context, bundle tariff.Bundle) (model.EffectResult, error)
}

// ImportWeights supplies the per-country BEA import shares.
type ImportWeights interface {
	BEAImportWeights(iso string) map[string]float64
}

// Config holds the linear model's parameters.
type Config struct {
	// IndirectMultiplier scales direct effects into indirect
	// (input-cost) effects.
	IndirectMultiplier float64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{IndirectMultiplier: 0.5}
}

// LinearModel estimates effects as pass-through times the BEA-level
// tariff change times the country's import share of that sector.
type LinearModel struct {
	weights ImportWeights
	config  Config
}

// NewLinearModel creates a model reading import shares from weights.
func NewLinearModel(weights ImportWeights, config Config) *LinearModel {
	return &LinearModel{weights: weights, config: config}
}

// Calculate implements Calculator. Vectors follow bundle.BEACodes.
func (m *LinearModel) Calculate(ctx context.Context, bundle tariff.Bundle) (model.EffectResult, error) {
	if err := ctx.Err(); err != nil {
		return model.EffectResult{}, err
	}
	if len(bundle.ISOList) == 0 {
		return model.EffectResult{}, ErrEmptyBundle
	}

	n := len(bundle.BEACodes)
	res := model.EffectResult{
		DirectEffectVector:   make([]float64, n),
		IndirectEffectVector: make([]float64, n),
		TotalEffectVector:    make([]float64, n),
	}

	for _, iso := range bundle.ISOList {
		shares := m.weights.BEAImportWeights(iso)
		for i, code := range bundle.BEACodes {
			tau, ok := bundle.TauCForCalculations[code]
			if !ok {
				return model.EffectResult{}, fmt.Errorf("bundle for %s lacks tau for BEA code %s", iso, code)
			}
			direct := bundle.PassThroughRate * tau * shares[code]
			indirect := m.config.IndirectMultiplier * direct

			res.DirectEffectVector[i] += direct
			res.IndirectEffectVector[i] += indirect
			res.TotalEffectVector[i] += direct + indirect
		}
	}

	for i := 0; i < n; i++ {
		res.DirectSum += res.DirectEffectVector[i]
		res.IndirectSum += res.IndirectEffectVector[i]
		res.TotalSum += res.TotalEffectVector[i]
	}
	return res, nil
}
