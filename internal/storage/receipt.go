package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Veraticus/tariff-receipt/internal/model"
)

// AddReceiptCountry appends iso to the scenario's receipt. Adding a country
// that is already on the receipt keeps its position.
func (s *SQLiteStorage) AddReceiptCountry(ctx context.Context, scenarioID, iso string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(scenarioID, "scenarioID"); err != nil {
		return err
	}
	if err := validateString(iso, "iso"); err != nil {
		return err
	}
	iso = model.NormalizeISO(iso)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := scenarioExists(ctx, tx, scenarioID); err != nil {
			return err
		}

		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO receipt_countries (scenario_id, iso, position, added_at)
			SELECT ?, ?, COALESCE(MAX(position), 0) + 1, ?
			FROM receipt_countries WHERE scenario_id = ?
		`, scenarioID, iso, now, scenarioID)
		if err != nil {
			return fmt.Errorf("failed to add receipt country: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		_, err = tx.ExecContext(ctx, `UPDATE scenarios SET updated_at = ? WHERE id = ?`, now, scenarioID)
		if err != nil {
			return fmt.Errorf("failed to update scenario: %w", err)
		}
		return nil
	})
}

// RemoveReceiptCountry takes iso off the receipt and reports whether it
// was there.
func (s *SQLiteStorage) RemoveReceiptCountry(ctx context.Context, scenarioID, iso string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(scenarioID, "scenarioID"); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM receipt_countries WHERE scenario_id = ? AND iso = ?`,
		scenarioID, model.NormalizeISO(iso))
	if err != nil {
		return false, fmt.Errorf("failed to remove receipt country: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// ListReceiptCountries returns the receipt's countries in the order they
// were added.
func (s *SQLiteStorage) ListReceiptCountries(ctx context.Context, scenarioID string) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(scenarioID, "scenarioID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT iso FROM receipt_countries
		WHERE scenario_id = ?
		ORDER BY position
	`, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipt countries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var isos []string
	for rows.Next() {
		var iso string
		if err := rows.Scan(&iso); err != nil {
			return nil, fmt.Errorf("failed to scan receipt country: %w", err)
		}
		isos = append(isos, iso)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating receipt countries: %w", err)
	}
	return isos, nil
}

// ClearReceipt removes every country from the receipt.
func (s *SQLiteStorage) ClearReceipt(ctx context.Context, scenarioID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(scenarioID, "scenarioID"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM receipt_countries WHERE scenario_id = ?`, scenarioID)
	if err != nil {
		return fmt.Errorf("failed to clear receipt: %w", err)
	}
	return nil
}
