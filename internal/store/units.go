package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/storyloom/storyloom/internal/models"
)

// UnitState tracks one unit of work inside a stage generation.
type UnitState string

const (
	UnitPending   UnitState = "pending"
	UnitSucceeded UnitState = "succeeded"
	UnitFailed    UnitState = "failed"
)

// StageCounts aggregates unit bookkeeping for the transition policy.
type StageCounts struct {
	Total     int
	Succeeded int
	Failed    int
}

// Settled reports whether every enqueued unit has been acknowledged.
func (c StageCounts) Settled() bool {
	return c.Succeeded+c.Failed >= c.Total
}

// RegisterUnits records the units enqueued for a stage. Insert-or-ignore:
// a redelivered fan-out message must not reset units that already settled.
func (s *Store) RegisterUnits(ctx context.Context, projectID string, generation uint64, stage models.Stage, unitIDs []string) error {
	for _, unitID := range unitIDs {
		query, args, err := s.sb.
			Insert("stage_units").
			Columns("project_id", "generation", "stage", "unit_id", "state").
			Values(projectID, generation, string(stage), unitID, string(UnitPending)).
			Suffix("ON CONFLICT(project_id, generation, stage, unit_id) DO NOTHING").
			ToSql()
		if err != nil {
			return fmt.Errorf("build register unit: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("register unit %s: %w", unitID, err)
		}
	}
	return nil
}

// MarkUnit settles one unit. Returns false when the unit was never
// registered for this generation (stale redelivery or an ad-hoc message
// outside a stage run).
func (s *Store) MarkUnit(ctx context.Context, projectID string, generation uint64, stage models.Stage, unitID string, success bool, errMsg string) (bool, error) {
	state := UnitSucceeded
	if !success {
		state = UnitFailed
	}
	query, args, err := s.sb.
		Update("stage_units").
		Set("state", string(state)).
		Set("error_message", errMsg).
		Where("project_id = ? AND generation = ? AND stage = ? AND unit_id = ?",
			projectID, generation, string(stage), unitID).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build mark unit: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("mark unit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark unit rows: %w", err)
	}
	return n > 0, nil
}

// StageUnitCounts aggregates the stage's units for the current generation.
func (s *Store) StageUnitCounts(ctx context.Context, projectID string, generation uint64, stage models.Stage) (StageCounts, error) {
	query, args, err := s.sb.
		Select(
			"COUNT(*)",
			"COALESCE(SUM(CASE WHEN state = 'succeeded' THEN 1 ELSE 0 END), 0)",
			"COALESCE(SUM(CASE WHEN state = 'failed' THEN 1 ELSE 0 END), 0)",
		).
		From("stage_units").
		Where("project_id = ? AND generation = ? AND stage = ?", projectID, generation, string(stage)).
		ToSql()
	if err != nil {
		return StageCounts{}, fmt.Errorf("build stage counts: %w", err)
	}

	var c StageCounts
	row := s.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&c.Total, &c.Succeeded, &c.Failed); err != nil {
		return StageCounts{}, fmt.Errorf("scan stage counts: %w", err)
	}
	return c, nil
}

// FirstFailure returns the first recorded unit error for the stage, if any.
func (s *Store) FirstFailure(ctx context.Context, projectID string, generation uint64, stage models.Stage) (string, error) {
	query, args, err := s.sb.
		Select("error_message").
		From("stage_units").
		Where("project_id = ? AND generation = ? AND stage = ? AND state = 'failed'",
			projectID, generation, string(stage)).
		OrderBy("unit_id").
		Limit(1).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build first failure: %w", err)
	}
	var msg string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&msg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("scan first failure: %w", err)
	}
	return msg, nil
}

// TryMarkTransitioned claims the stage's transition exactly once per
// generation. Returns true only for the first caller; redelivered
// completions get false and must not advance the project again.
func (s *Store) TryMarkTransitioned(ctx context.Context, projectID string, generation uint64, stage models.Stage) (bool, error) {
	query, args, err := s.sb.
		Insert("stage_transitions").
		Columns("project_id", "generation", "stage", "transitioned_at").
		Values(projectID, generation, string(stage), time.Now().UTC()).
		Suffix("ON CONFLICT(project_id, generation, stage) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build mark transitioned: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("mark transitioned: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark transitioned rows: %w", err)
	}
	return n > 0, nil
}
