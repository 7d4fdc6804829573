package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/storyloom/storyloom/internal/models"
)

// UpsertNarrative writes generated prose for a content item. The content id
// is the natural key: the first successful generation inserts version 1,
// every later one overwrites the text and increments the version. This is
// what makes redelivered write messages safe.
func (s *Store) UpsertNarrative(ctx context.Context, contentID, projectID, text string) (*models.Narrative, error) {
	query, args, err := s.sb.
		Insert("narratives").
		Columns("content_id", "project_id", "text", "version", "updated_at").
		Values(contentID, projectID, text, 1, time.Now().UTC()).
		Suffix("ON CONFLICT(content_id) DO UPDATE SET text = excluded.text, version = narratives.version + 1, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build upsert narrative: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("upsert narrative: %w", err)
	}
	return s.GetNarrative(ctx, contentID)
}

// GetNarrative returns the current narrative for a content item.
func (s *Store) GetNarrative(ctx context.Context, contentID string) (*models.Narrative, error) {
	query, args, err := s.sb.
		Select("content_id", "project_id", "text", "version", "updated_at").
		From("narratives").
		Where("content_id = ?", contentID).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select narrative: %w", err)
	}

	var n models.Narrative
	row := s.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&n.ContentID, &n.ProjectID, &n.Text, &n.Version, &n.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("narrative for %s: %w", contentID, ErrNotFound)
		}
		return nil, fmt.Errorf("scan narrative: %w", err)
	}
	return &n, nil
}

// ListNarratives returns all current narratives of a project.
func (s *Store) ListNarratives(ctx context.Context, projectID string) ([]models.Narrative, error) {
	query, args, err := s.sb.
		Select("content_id", "project_id", "text", "version", "updated_at").
		From("narratives").
		Where("project_id = ?", projectID).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list narratives: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list narratives: %w", err)
	}
	defer rows.Close()

	var narratives []models.Narrative
	for rows.Next() {
		var n models.Narrative
		if err := rows.Scan(&n.ContentID, &n.ProjectID, &n.Text, &n.Version, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan narrative: %w", err)
		}
		narratives = append(narratives, n)
	}
	return narratives, rows.Err()
}
