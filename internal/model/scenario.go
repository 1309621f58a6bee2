package model

import "time"

// Scenario is a persisted, named set of tariff edits and receipt selections.
type Scenario struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	// WorldRate is the uniform rest-of-world rate in percent, nil until set.
	WorldRate       *float64
	ID              string
	Name            string
	Mode            string
	PassThroughRate float64
}

// TariffEdit is a single entry of a scenario's append-only edit log.
type TariffEdit struct {
	CreatedAt   time.Time
	Country     string
	Level       string
	Section     string
	Chapter     string
	HS4         string
	Kind        string
	Mode        string
	Value       float64
	PassThrough float64
	Seq         int64
}
