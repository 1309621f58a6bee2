// Package service defines the interfaces shared between the application's
// layers.
package service

import (
	"context"

	"github.com/Veraticus/tariff-receipt/internal/model"
)

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Scenario operations
	CreateScenario(ctx context.Context, scenario *model.Scenario) error
	GetScenario(ctx context.Context, idOrName string) (*model.Scenario, error)
	ListScenarios(ctx context.Context) ([]model.Scenario, error)
	UpdateScenarioOptions(ctx context.Context, id, mode string, passThrough float64) error
	SetWorldRate(ctx context.Context, id string, rate *float64) error
	CopyScenario(ctx context.Context, id, newName string) (*model.Scenario, error)
	ResetScenario(ctx context.Context, id string) error
	DeleteScenario(ctx context.Context, id string) error

	// Edit log operations
	AppendEdits(ctx context.Context, scenarioID string, edits []model.TariffEdit) error
	ListEdits(ctx context.Context, scenarioID string) ([]model.TariffEdit, error)
	DeleteCountryEdits(ctx context.Context, scenarioID, iso string) (int64, error)

	// Receipt operations
	AddReceiptCountry(ctx context.Context, scenarioID, iso string) error
	RemoveReceiptCountry(ctx context.Context, scenarioID, iso string) (bool, error)
	ListReceiptCountries(ctx context.Context, scenarioID string) ([]string, error)
	ClearReceipt(ctx context.Context, scenarioID string) error

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// ReceiptExporter writes a rendered receipt to an external destination.
type ReceiptExporter interface {
	Export(ctx context.Context, report model.ReceiptReport) error
}
