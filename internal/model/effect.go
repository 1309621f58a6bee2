package model

// EffectResult is the calculation output for a single country.
// All values are decimal fractions (0.01 is one percent). The three vectors
// share one sector ordering and are only ever combined by index.
type EffectResult struct {
	DirectEffectVector   []float64 `json:"direct_effect_vector"`
	IndirectEffectVector []float64 `json:"indirect_effect_vector"`
	TotalEffectVector    []float64 `json:"total_effect_vector"`
	DirectSum            float64   `json:"direct_sum"`
	IndirectSum          float64   `json:"indirect_sum"`
	TotalSum             float64   `json:"total_sum"`
}

// Len returns the sector vector length of the result.
func (r EffectResult) Len() int {
	return len(r.TotalEffectVector)
}

// EffectTotals is an unrounded accumulation of effect results.
type EffectTotals struct {
	DirectVector   []float64 `json:"direct_vector"`
	IndirectVector []float64 `json:"indirect_vector"`
	TotalVector    []float64 `json:"total_vector"`
	Direct         float64   `json:"direct"`
	Indirect       float64   `json:"indirect"`
	Total          float64   `json:"total"`
	Countries      int       `json:"countries"`
}

// NewEffectTotals returns zeroed totals with vectors of length n.
func NewEffectTotals(n int) EffectTotals {
	return EffectTotals{
		DirectVector:   make([]float64, n),
		IndirectVector: make([]float64, n),
		TotalVector:    make([]float64, n),
	}
}

// Add folds a single result into the totals element-wise.
// The caller guarantees r has the same vector length as t.
func (t *EffectTotals) Add(r EffectResult) {
	t.Direct += r.DirectSum
	t.Indirect += r.IndirectSum
	t.Total += r.TotalSum
	addInto(t.DirectVector, r.DirectEffectVector)
	addInto(t.IndirectVector, r.IndirectEffectVector)
	addInto(t.TotalVector, r.TotalEffectVector)
	t.Countries++
}

// Combine folds other totals into t.
func (t *EffectTotals) Combine(other EffectTotals) {
	t.Direct += other.Direct
	t.Indirect += other.Indirect
	t.Total += other.Total
	addInto(t.DirectVector, other.DirectVector)
	addInto(t.IndirectVector, other.IndirectVector)
	addInto(t.TotalVector, other.TotalVector)
	t.Countries += other.Countries
}

// Clone returns a deep copy.
func (t EffectTotals) Clone() EffectTotals {
	c := t
	c.DirectVector = append([]float64(nil), t.DirectVector...)
	c.IndirectVector = append([]float64(nil), t.IndirectVector...)
	c.TotalVector = append([]float64(nil), t.TotalVector...)
	return c
}

func addInto(dst, src []float64) {
	for i := range dst {
		if i < len(src) {
			dst[i] += src[i]
		}
	}
}
