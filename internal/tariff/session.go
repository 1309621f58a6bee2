package tariff

import (
	"sync"

	"github.com/Veraticus/tariff-receipt/internal/model"
)

// EditSession scopes a burst of edits to one country. Closing a session
// that was never submitted rolls the country back to its state at
// BeginEdit.
type EditSession struct {
	store     *Store
	before    *countryTree
	iso       string
	mu        sync.Mutex
	submitted bool
	closed    bool
}

// BeginEdit snapshots iso and initializes its trees.
func (s *Store) BeginEdit(iso string) *EditSession {
	iso = model.NormalizeISO(iso)
	before, _ := s.snapshot(iso)
	s.PreCalculateWeights(iso)
	return &EditSession{
		store:  s,
		iso:    iso,
		before: before,
	}
}

// Country returns the ISO code the session edits.
func (e *EditSession) Country() string {
	return e.iso
}

// Update writes through to the store.
func (e *EditSession) Update(level Level, p Path, value float64, kind Kind) (float64, error) {
	return e.store.UpdateTariff(level, p, value, e.iso, kind)
}

// Submit marks the session's edits as kept.
func (e *EditSession) Submit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.submitted = true
}

// Submitted reports whether Submit was called.
func (e *EditSession) Submitted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.submitted
}

// Close ends the session, rolling back unless it was submitted. It reports
// whether a rollback happened. Closing twice is a no-op.
func (e *EditSession) Close() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false
	}
	e.closed = true

	if e.submitted {
		return false
	}

	// before is nil when the country had no trees, which removes them.
	e.store.restore(e.iso, e.before)
	e.store.logger.Debug("rolled back unsaved tariff edits", "country", e.iso)
	return true
}
