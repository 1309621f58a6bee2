package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Veraticus/tariff-receipt/internal/model"
)

// AppendEdits adds edits to the end of a scenario's log. Sequence numbers
// are assigned in order and written back into edits.
func (s *SQLiteStorage) AppendEdits(ctx context.Context, scenarioID string, edits []model.TariffEdit) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(scenarioID, "scenarioID"); err != nil {
		return err
	}
	if err := validateEdits(edits); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := scenarioExists(ctx, tx, scenarioID); err != nil {
			return err
		}

		var last int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), 0) FROM scenario_edits WHERE scenario_id = ?`, scenarioID,
		).Scan(&last); err != nil {
			return fmt.Errorf("failed to read edit sequence: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO scenario_edits (scenario_id, seq, country, level, section, chapter, hs4, kind, mode, value, pass_through, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		now := time.Now().UTC()
		for i := range edits {
			e := &edits[i]
			last++
			e.Seq = last
			if e.CreatedAt.IsZero() {
				e.CreatedAt = now
			}
			if e.Kind == "" {
				e.Kind = "current"
			}
			if _, err := stmt.ExecContext(ctx,
				scenarioID, e.Seq, model.NormalizeISO(e.Country), e.Level, e.Section, e.Chapter, e.HS4,
				e.Kind, e.Mode, e.Value, e.PassThrough, e.CreatedAt,
			); err != nil {
				return fmt.Errorf("failed to insert edit %d: %w", i, err)
			}
		}

		_, err = tx.ExecContext(ctx, `UPDATE scenarios SET updated_at = ? WHERE id = ?`, now, scenarioID)
		if err != nil {
			return fmt.Errorf("failed to update scenario: %w", err)
		}
		return nil
	})
}

// ListEdits returns a scenario's edit log in the order it was written.
func (s *SQLiteStorage) ListEdits(ctx context.Context, scenarioID string) ([]model.TariffEdit, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(scenarioID, "scenarioID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, country, level, section, chapter, hs4, kind, mode, value, pass_through, created_at
		FROM scenario_edits
		WHERE scenario_id = ?
		ORDER BY seq
	`, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list edits: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var edits []model.TariffEdit
	for rows.Next() {
		var e model.TariffEdit
		if err := rows.Scan(
			&e.Seq, &e.Country, &e.Level, &e.Section, &e.Chapter, &e.HS4,
			&e.Kind, &e.Mode, &e.Value, &e.PassThrough, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan edit: %w", err)
		}
		edits = append(edits, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating edits: %w", err)
	}
	return edits, nil
}

// DeleteCountryEdits removes every edit of iso from a scenario's log and
// returns how many were removed. The remaining edits keep their sequence
// numbers.
func (s *SQLiteStorage) DeleteCountryEdits(ctx context.Context, scenarioID, iso string) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(scenarioID, "scenarioID"); err != nil {
		return 0, err
	}
	if err := validateString(iso, "iso"); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM scenario_edits WHERE scenario_id = ? AND country = ?`,
		scenarioID, model.NormalizeISO(iso))
	if err != nil {
		return 0, fmt.Errorf("failed to delete edits: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
