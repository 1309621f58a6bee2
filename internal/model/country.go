package model

import "strings"

// Country is a trading partner identified by its ISO3 code.
type Country struct {
	ISO  string `json:"iso"`
	Name string `json:"name"`
}

// IsWorldSentinel reports whether iso is one of the aggregate "world" codes
// that must never be treated as an individual trading partner.
func IsWorldSentinel(iso string) bool {
	switch strings.ToUpper(iso) {
	case "WLD", "WRLD":
		return true
	}
	return false
}

// NormalizeISO upper-cases and trims an ISO code.
func NormalizeISO(iso string) string {
	return strings.ToUpper(strings.TrimSpace(iso))
}
