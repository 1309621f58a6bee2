// Package storage persists scenarios, their edit logs and receipt
// selections in SQLite.
package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Veraticus/tariff-receipt/internal/model"
)

// Validation errors.
var (
	ErrNilContext      = errors.New("context cannot be nil")
	ErrEmptyString     = errors.New("string parameter cannot be empty")
	ErrNilParameter    = errors.New("parameter cannot be nil")
	ErrEmptySlice      = errors.New("slice cannot be empty")
	ErrInvalidScenario = errors.New("invalid scenario")
	ErrInvalidEdit     = errors.New("invalid tariff edit")
)

// Accepted spellings of the edit log's enumerated columns.
var (
	validModes  = map[string]bool{"tariff-change": true, "original-current": true}
	validKinds  = map[string]bool{"": true, "current": true, "original": true}
	levelDepths = map[string]int{"section": 1, "chapter": 2, "hs4": 3}
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateScenario(sc *model.Scenario) error {
	if sc == nil {
		return fmt.Errorf("%w: scenario", ErrNilParameter)
	}
	if strings.TrimSpace(sc.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidScenario)
	}
	if err := validateOptions(sc.Mode, sc.PassThroughRate); err != nil {
		return err
	}
	return validateWorldRate(sc.WorldRate)
}

func validateOptions(mode string, passThrough float64) error {
	if !validModes[mode] {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidScenario, mode)
	}
	if passThrough < 0 || passThrough > 1 {
		return fmt.Errorf("%w: pass-through must be between 0 and 1", ErrInvalidScenario)
	}
	return nil
}

func validateWorldRate(rate *float64) error {
	if rate != nil && (*rate < 0 || *rate > 100) {
		return fmt.Errorf("%w: world rate must be between 0 and 100", ErrInvalidScenario)
	}
	return nil
}

func validateEdits(edits []model.TariffEdit) error {
	if edits == nil {
		return fmt.Errorf("%w: edits", ErrNilParameter)
	}
	if len(edits) == 0 {
		return fmt.Errorf("%w: edits", ErrEmptySlice)
	}
	for i := range edits {
		if err := validateEdit(&edits[i]); err != nil {
			return fmt.Errorf("edit at index %d: %w", i, err)
		}
	}
	return nil
}

func validateEdit(e *model.TariffEdit) error {
	if strings.TrimSpace(e.Country) == "" {
		return fmt.Errorf("%w: missing country", ErrInvalidEdit)
	}
	depth, ok := levelDepths[e.Level]
	if !ok {
		return fmt.Errorf("%w: unknown level %q", ErrInvalidEdit, e.Level)
	}
	if !validKinds[e.Kind] {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEdit, e.Kind)
	}
	if !validModes[e.Mode] {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidEdit, e.Mode)
	}
	if e.Section == "" {
		return fmt.Errorf("%w: missing section", ErrInvalidEdit)
	}
	if depth >= 2 && e.Chapter == "" {
		return fmt.Errorf("%w: missing chapter", ErrInvalidEdit)
	}
	if depth == 3 && e.HS4 == "" {
		return fmt.Errorf("%w: missing hs4", ErrInvalidEdit)
	}
	if math.IsNaN(e.Value) || math.IsInf(e.Value, 0) {
		return fmt.Errorf("%w: value %v is not a number", ErrInvalidEdit, e.Value)
	}
	if !(e.PassThrough >= 0 && e.PassThrough <= 1) {
		return fmt.Errorf("%w: pass-through must be between 0 and 1", ErrInvalidEdit)
	}
	return nil
}
