package model

import "time"

// ReceiptLine is one country's row on a receipt.
type ReceiptLine struct {
	ISO      string
	Name     string
	Direct   float64
	Indirect float64
	Total    float64
}

// ReceiptReport is a receipt ready for display or export. Values are
// unrounded decimal fractions.
type ReceiptReport struct {
	GeneratedAt time.Time
	WorldRate   *float64
	Scenario    string
	Lines       []ReceiptLine
	Subtotal    EffectTotals
	RestOfWorld EffectTotals
	Total       EffectTotals
	HasWorld    bool
}
