package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/storyloom/storyloom/internal/models"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether err means a missing row.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// EnsureProject inserts the project if it does not exist and returns the
// current row either way.
func (s *Store) EnsureProject(ctx context.Context, id, name string) (*models.Project, error) {
	now := time.Now().UTC()
	query, args, err := s.sb.
		Insert("projects").
		Columns("id", "name", "status", "generation", "config", "created_at", "updated_at").
		Values(id, name, string(models.StatusNew), 1, "{}", now, now).
		Suffix("ON CONFLICT(id) DO NOTHING").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert project: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return s.GetProject(ctx, id)
}

// GetProject fetches one project.
func (s *Store) GetProject(ctx context.Context, id string) (*models.Project, error) {
	query, args, err := s.sb.
		Select("id", "name", "status", "generation", "config", "created_at", "updated_at").
		From("projects").
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select project: %w", err)
	}

	var p models.Project
	row := s.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&p.ID, &p.Name, &p.Status, &p.Generation, &p.Config, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("scan project: %w", err)
	}
	return &p, nil
}

// UpdateProjectStatus moves the project forward. The transition policy is
// the only caller; it guards ordering with the generation counter.
func (s *Store) UpdateProjectStatus(ctx context.Context, id string, status models.ProjectStatus) error {
	query, args, err := s.sb.
		Update("projects").
		Set("status", string(status)).
		Set("updated_at", time.Now().UTC()).
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update status: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update project status: %w", err)
	}
	return nil
}

// BumpGeneration invalidates all in-flight work for the project and returns
// the new generation.
func (s *Store) BumpGeneration(ctx context.Context, id string) (uint64, error) {
	query, args, err := s.sb.
		Update("projects").
		Set("generation", sq.Expr("generation + 1")).
		Set("status", string(models.StatusNew)).
		Set("updated_at", time.Now().UTC()).
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build bump generation: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("bump generation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return 0, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}

	p, err := s.GetProject(ctx, id)
	if err != nil {
		return 0, err
	}
	return p.Generation, nil
}
