package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/tariff-receipt/internal/model"
	"github.com/Veraticus/tariff-receipt/internal/storage"
)

// TestDB is a migrated in-memory database.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// SetupTestDB creates a new in-memory test database. It automatically
// handles migrations and cleanup.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{Storage: store, t: t}
}

// MustCreateScenario creates a tariff-change scenario with full
// pass-through or fails the test.
func (db *TestDB) MustCreateScenario(name string) *model.Scenario {
	db.t.Helper()
	sc := &model.Scenario{Name: name, Mode: "tariff-change", PassThroughRate: 1}
	if err := db.Storage.CreateScenario(context.Background(), sc); err != nil {
		db.t.Fatalf("failed to create scenario %q: %v", name, err)
	}
	return sc
}

// SectionEdit returns a tariff-change section edit for iso.
func SectionEdit(iso, section string, value float64) model.TariffEdit {
	return model.TariffEdit{
		Country:     iso,
		Level:       "section",
		Section:     section,
		Kind:        "current",
		Mode:        "tariff-change",
		Value:       value,
		PassThrough: 1,
	}
}
