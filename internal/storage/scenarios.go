package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/tariff-receipt/internal/common"
	"github.com/Veraticus/tariff-receipt/internal/model"
)

const scenarioColumns = `id, name, mode, pass_through, world_rate, created_at, updated_at`

// CreateScenario inserts a new scenario. An empty ID is filled with a
// random UUID; timestamps default to now.
func (s *SQLiteStorage) CreateScenario(ctx context.Context, sc *model.Scenario) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if sc != nil && sc.Mode == "" {
		sc.Mode = "tariff-change"
	}
	if err := validateScenario(sc); err != nil {
		return err
	}

	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = now
	}
	sc.UpdatedAt = sc.CreatedAt
	sc.Name = strings.TrimSpace(sc.Name)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scenarios (id, name, mode, pass_through, world_rate, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sc.ID, sc.Name, sc.Mode, sc.PassThroughRate, nullFloat(sc.WorldRate), sc.CreatedAt, sc.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: scenario %q", common.ErrDuplicateEntry, sc.Name)
		}
		return fmt.Errorf("failed to create scenario: %w", err)
	}
	return nil
}

// GetScenario looks a scenario up by ID, falling back to its name.
func (s *SQLiteStorage) GetScenario(ctx context.Context, idOrName string) (*model.Scenario, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(idOrName, "idOrName"); err != nil {
		return nil, err
	}
	return s.getScenarioTx(ctx, s.db, strings.TrimSpace(idOrName))
}

func (s *SQLiteStorage) getScenarioTx(ctx context.Context, q queryable, idOrName string) (*model.Scenario, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+scenarioColumns+`
		FROM scenarios
		WHERE id = ? OR name = ?
		ORDER BY id = ? DESC
		LIMIT 1
	`, idOrName, idOrName, idOrName)

	sc, err := scanScenario(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: scenario %q", common.ErrNotFound, idOrName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scenario: %w", err)
	}
	return sc, nil
}

// ListScenarios returns every scenario, most recently updated first.
func (s *SQLiteStorage) ListScenarios(ctx context.Context) ([]model.Scenario, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+scenarioColumns+`
		FROM scenarios
		ORDER BY updated_at DESC, name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Scenario
	for rows.Next() {
		sc, err := scanScenario(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scenario: %w", err)
		}
		out = append(out, *sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scenarios: %w", err)
	}
	return out, nil
}

// UpdateScenarioOptions changes a scenario's propagation mode and
// pass-through rate.
func (s *SQLiteStorage) UpdateScenarioOptions(ctx context.Context, id, mode string, passThrough float64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateOptions(mode, passThrough); err != nil {
		return err
	}

	return s.touch(ctx, s.db, id, `UPDATE scenarios SET mode = ?, pass_through = ?, updated_at = ? WHERE id = ?`,
		mode, passThrough)
}

// SetWorldRate stores the rest-of-world rate; nil clears it.
func (s *SQLiteStorage) SetWorldRate(ctx context.Context, id string, rate *float64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateWorldRate(rate); err != nil {
		return err
	}
	return s.touch(ctx, s.db, id, `UPDATE scenarios SET world_rate = ?, updated_at = ? WHERE id = ?`,
		nullFloat(rate))
}

// touch runs an UPDATE whose trailing parameters are updated_at and id,
// failing with ErrNotFound when no scenario matched.
func (s *SQLiteStorage) touch(ctx context.Context, q queryable, id, query string, args ...any) error {
	if err := validateString(id, "id"); err != nil {
		return err
	}
	args = append(args, time.Now().UTC(), id)
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update scenario: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: scenario %q", common.ErrNotFound, id)
	}
	return nil
}

// CopyScenario duplicates a scenario with its edit log and receipt under a
// new name.
func (s *SQLiteStorage) CopyScenario(ctx context.Context, id, newName string) (*model.Scenario, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(newName, "newName"); err != nil {
		return nil, err
	}

	var copied *model.Scenario
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		src, err := s.getScenarioTx(ctx, tx, id)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		dst := *src
		dst.ID = uuid.NewString()
		dst.Name = strings.TrimSpace(newName)
		dst.CreatedAt = now
		dst.UpdatedAt = now

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO scenarios (id, name, mode, pass_through, world_rate, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, dst.ID, dst.Name, dst.Mode, dst.PassThroughRate, nullFloat(dst.WorldRate), dst.CreatedAt, dst.UpdatedAt); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: scenario %q", common.ErrDuplicateEntry, dst.Name)
			}
			return fmt.Errorf("failed to copy scenario: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO scenario_edits (scenario_id, seq, country, level, section, chapter, hs4, kind, mode, value, pass_through, created_at)
			SELECT ?, seq, country, level, section, chapter, hs4, kind, mode, value, pass_through, created_at
			FROM scenario_edits WHERE scenario_id = ?
		`, dst.ID, src.ID); err != nil {
			return fmt.Errorf("failed to copy edits: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO receipt_countries (scenario_id, iso, position, added_at)
			SELECT ?, iso, position, added_at
			FROM receipt_countries WHERE scenario_id = ?
		`, dst.ID, src.ID); err != nil {
			return fmt.Errorf("failed to copy receipt: %w", err)
		}

		copied = &dst
		return nil
	})
	if err != nil {
		return nil, err
	}
	return copied, nil
}

// ResetScenario drops a scenario's edits, receipt and world rate while
// keeping the scenario itself.
func (s *SQLiteStorage) ResetScenario(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.touch(ctx, tx, id, `UPDATE scenarios SET world_rate = NULL, updated_at = ? WHERE id = ?`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM scenario_edits WHERE scenario_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete edits: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM receipt_countries WHERE scenario_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete receipt: %w", err)
		}
		return nil
	})
}

// DeleteScenario removes a scenario with its edits and receipt.
func (s *SQLiteStorage) DeleteScenario(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM scenarios WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete scenario: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: scenario %q", common.ErrNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanScenario(row scanner) (*model.Scenario, error) {
	var (
		sc    model.Scenario
		world sql.NullFloat64
	)
	if err := row.Scan(&sc.ID, &sc.Name, &sc.Mode, &sc.PassThroughRate, &world, &sc.CreatedAt, &sc.UpdatedAt); err != nil {
		return nil, err
	}
	if world.Valid {
		rate := world.Float64
		sc.WorldRate = &rate
	}
	return &sc, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// scenarioExists fails with ErrNotFound for an unknown scenario ID.
func scenarioExists(ctx context.Context, q queryable, id string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM scenarios WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: scenario %q", common.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to look up scenario: %w", err)
	}
	return nil
}
