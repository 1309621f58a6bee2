package receipt

import (
	"math"
	"strconv"
)

// FormatPercent renders a decimal fraction as a percentage string with the
// given number of decimals, e.g. 0.01234 at 2 decimals is "1.23%".
// Formatting is display-only; aggregation never reads these strings back.
func FormatPercent(fraction float64, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	v := fraction * 100
	// Avoid "-0.00%" for values that round to zero.
	if math.Abs(v) < 0.5*math.Pow10(-decimals) {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', decimals, 64) + "%"
}

// FormatRate renders a tariff rate that is already in percent.
func FormatRate(percent float64, decimals int) string {
	return FormatPercent(percent/100, decimals)
}
