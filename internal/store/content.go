package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/storyloom/storyloom/internal/models"
)

var contentColumns = []string{
	"id", "project_id", "file_id", "position", "type", "text", "metadata", "summary",
	"keywords", "is_selected", "chapter_id", "sort_order", "created_at", "updated_at",
}

func scanContent(row interface{ Scan(...any) error }) (models.ContentItem, error) {
	var c models.ContentItem
	err := row.Scan(&c.ID, &c.ProjectID, &c.FileID, &c.Position, &c.Type, &c.Text,
		&c.Metadata, &c.Summary, &c.Keywords, &c.IsSelected, &c.ChapterID, &c.SortOrder,
		&c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func metadataOrEmpty(m string) string {
	if m == "" {
		return "{}"
	}
	return m
}

// UpsertContentItem inserts the item keyed by (file_id, position). A
// redelivered parse message overwrites type/text and keeps the original row
// id, analysis fields, and chapter assignment.
func (s *Store) UpsertContentItem(ctx context.Context, c *models.ContentItem) (string, error) {
	now := time.Now().UTC()
	query, args, err := s.sb.
		Insert("content_items").
		Columns("id", "project_id", "file_id", "position", "type", "text", "metadata", "sort_order", "created_at", "updated_at").
		Values(c.ID, c.ProjectID, c.FileID, c.Position, string(c.Type), c.Text, metadataOrEmpty(c.Metadata), c.SortOrder, now, now).
		Suffix("ON CONFLICT(file_id, position) DO UPDATE SET type = excluded.type, text = excluded.text, metadata = excluded.metadata, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build upsert content: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("upsert content item: %w", err)
	}

	// The stored id wins over the candidate id on conflict.
	idQuery, idArgs, err := s.sb.
		Select("id").
		From("content_items").
		Where("file_id = ? AND position = ?", c.FileID, c.Position).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build content id lookup: %w", err)
	}
	var id string
	if err := s.db.QueryRowContext(ctx, idQuery, idArgs...).Scan(&id); err != nil {
		return "", fmt.Errorf("lookup content id: %w", err)
	}
	return id, nil
}

// GetContentItem fetches one content item.
func (s *Store) GetContentItem(ctx context.Context, id string) (*models.ContentItem, error) {
	query, args, err := s.sb.
		Select(contentColumns...).
		From("content_items").
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select content: %w", err)
	}
	c, err := scanContent(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("content item %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("scan content item: %w", err)
	}
	return &c, nil
}

// ListContentItems returns every content item of a project, ordered.
func (s *Store) ListContentItems(ctx context.Context, projectID string) ([]models.ContentItem, error) {
	return s.listContent(ctx, projectID, false)
}

// ListSelectedItems returns the items the curate/write stages operate on.
func (s *Store) ListSelectedItems(ctx context.Context, projectID string) ([]models.ContentItem, error) {
	return s.listContent(ctx, projectID, true)
}

func (s *Store) listContent(ctx context.Context, projectID string, selectedOnly bool) ([]models.ContentItem, error) {
	builder := s.sb.
		Select(contentColumns...).
		From("content_items").
		Where("project_id = ?", projectID).
		OrderBy("sort_order", "file_id", "position")
	if selectedOnly {
		builder = builder.Where("is_selected = 1")
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list content: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list content items: %w", err)
	}
	defer rows.Close()

	var items []models.ContentItem
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content item: %w", err)
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// UpdateAnalysis records the analyzer output. Idempotent per item: a
// redelivered analyze message recomputes and overwrites the same fields.
func (s *Store) UpdateAnalysis(ctx context.Context, id, summary, keywords string, selected bool) error {
	query, args, err := s.sb.
		Update("content_items").
		Set("summary", summary).
		Set("keywords", keywords).
		Set("is_selected", selected).
		Set("updated_at", time.Now().UTC()).
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update analysis: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update analysis: %w", err)
	}
	return nil
}

// AssignChapter places a content item in a chapter.
func (s *Store) AssignChapter(ctx context.Context, id, chapterID string, sortOrder int) error {
	query, args, err := s.sb.
		Update("content_items").
		Set("chapter_id", chapterID).
		Set("sort_order", sortOrder).
		Set("updated_at", time.Now().UTC()).
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return fmt.Errorf("build assign chapter: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("assign chapter: %w", err)
	}
	return nil
}
