package tui

// countryRemovedMsg reports the outcome of removing a receipt line.
type countryRemovedMsg struct {
	err error
	iso string
}

// worldRateSetMsg reports the outcome of a world rate change.
type worldRateSetMsg struct {
	err  error
	rate float64
}
