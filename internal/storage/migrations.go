package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS scenarios (
					id TEXT PRIMARY KEY,
					name TEXT UNIQUE NOT NULL,
					mode TEXT NOT NULL DEFAULT 'tariff-change',
					pass_through REAL NOT NULL DEFAULT 1,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,

				`CREATE TABLE IF NOT EXISTS scenario_edits (
					scenario_id TEXT NOT NULL,
					seq INTEGER NOT NULL,
					country TEXT NOT NULL,
					level TEXT NOT NULL,
					section TEXT NOT NULL,
					chapter TEXT NOT NULL DEFAULT '',
					hs4 TEXT NOT NULL DEFAULT '',
					kind TEXT NOT NULL DEFAULT 'current',
					mode TEXT NOT NULL,
					value REAL NOT NULL,
					pass_through REAL NOT NULL,
					created_at DATETIME NOT NULL,
					PRIMARY KEY (scenario_id, seq),
					FOREIGN KEY (scenario_id) REFERENCES scenarios(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_scenario_edits_country ON scenario_edits(scenario_id, country)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add receipt countries",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS receipt_countries (
					scenario_id TEXT NOT NULL,
					iso TEXT NOT NULL,
					position INTEGER NOT NULL,
					added_at DATETIME NOT NULL,
					PRIMARY KEY (scenario_id, iso),
					FOREIGN KEY (scenario_id) REFERENCES scenarios(id) ON DELETE CASCADE
				)
			`)
			return err
		},
	},
	{
		Version:     3,
		Description: "Add rest-of-world rate to scenarios",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`ALTER TABLE scenarios ADD COLUMN world_rate REAL`)
			if err != nil {
				return fmt.Errorf("failed to add world_rate column: %w", err)
			}
			return nil
		},
	},
}

// SchemaVersion returns the database's current schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Debug("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
