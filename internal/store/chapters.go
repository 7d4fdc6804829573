package store

import (
	"context"
	"fmt"
	"time"

	"github.com/storyloom/storyloom/internal/models"
)

// UpsertChapter inserts the chapter keyed by (project_id, position) and
// returns the stored id. A redelivered curate message overwrites the title
// and keeps the original id and generated intro.
func (s *Store) UpsertChapter(ctx context.Context, ch *models.Chapter) (string, error) {
	query, args, err := s.sb.
		Insert("chapters").
		Columns("id", "project_id", "position", "title", "created_at").
		Values(ch.ID, ch.ProjectID, ch.Position, ch.Title, time.Now().UTC()).
		Suffix("ON CONFLICT(project_id, position) DO UPDATE SET title = excluded.title").
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build upsert chapter: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("upsert chapter: %w", err)
	}

	idQuery, idArgs, err := s.sb.
		Select("id").
		From("chapters").
		Where("project_id = ? AND position = ?", ch.ProjectID, ch.Position).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build chapter id lookup: %w", err)
	}
	var id string
	if err := s.db.QueryRowContext(ctx, idQuery, idArgs...).Scan(&id); err != nil {
		return "", fmt.Errorf("lookup chapter id: %w", err)
	}
	return id, nil
}

// SetChapterIntro stores the generated intro text.
func (s *Store) SetChapterIntro(ctx context.Context, id, intro string) error {
	query, args, err := s.sb.
		Update("chapters").
		Set("intro", intro).
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set intro: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set chapter intro: %w", err)
	}
	return nil
}

// ListChapters returns a project's chapters in order.
func (s *Store) ListChapters(ctx context.Context, projectID string) ([]models.Chapter, error) {
	query, args, err := s.sb.
		Select("id", "project_id", "position", "title", "intro", "created_at").
		From("chapters").
		Where("project_id = ?", projectID).
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list chapters: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()

	var chapters []models.Chapter
	for rows.Next() {
		var ch models.Chapter
		if err := rows.Scan(&ch.ID, &ch.ProjectID, &ch.Position, &ch.Title, &ch.Intro, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		chapters = append(chapters, ch)
	}
	return chapters, rows.Err()
}
