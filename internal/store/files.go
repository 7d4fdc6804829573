package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/storyloom/storyloom/internal/models"
)

// InsertSourceFile records an uploaded file.
func (s *Store) InsertSourceFile(ctx context.Context, f *models.SourceFile) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	query, args, err := s.sb.
		Insert("source_files").
		Columns("id", "project_id", "object_key", "filename", "mime_type", "size", "status", "error_message", "created_at").
		Values(f.ID, f.ProjectID, f.ObjectKey, f.Filename, f.MimeType, f.Size, string(models.FilePending), "", f.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert file: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert source file: %w", err)
	}
	return nil
}

// GetSourceFile fetches one file row.
func (s *Store) GetSourceFile(ctx context.Context, id string) (*models.SourceFile, error) {
	query, args, err := s.sb.
		Select("id", "project_id", "object_key", "filename", "mime_type", "size", "status", "error_message", "created_at").
		From("source_files").
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select file: %w", err)
	}

	var f models.SourceFile
	row := s.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&f.ID, &f.ProjectID, &f.ObjectKey, &f.Filename, &f.MimeType, &f.Size, &f.Status, &f.ErrorMessage, &f.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("source file %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("scan source file: %w", err)
	}
	return &f, nil
}

// ListFiles returns all files of a project in upload order.
func (s *Store) ListFiles(ctx context.Context, projectID string) ([]models.SourceFile, error) {
	query, args, err := s.sb.
		Select("id", "project_id", "object_key", "filename", "mime_type", "size", "status", "error_message", "created_at").
		From("source_files").
		Where("project_id = ?", projectID).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list files: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []models.SourceFile
	for rows.Next() {
		var f models.SourceFile
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.ObjectKey, &f.Filename, &f.MimeType, &f.Size, &f.Status, &f.ErrorMessage, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// MarkFileParsed flags the file as successfully parsed.
func (s *Store) MarkFileParsed(ctx context.Context, id string) error {
	return s.setFileStatus(ctx, id, models.FileParsed, "")
}

// MarkFileFailed records a permanent parse failure on the file row.
func (s *Store) MarkFileFailed(ctx context.Context, id, errMsg string) error {
	return s.setFileStatus(ctx, id, models.FileFailed, errMsg)
}

func (s *Store) setFileStatus(ctx context.Context, id string, status models.FileStatus, errMsg string) error {
	query, args, err := s.sb.
		Update("source_files").
		Set("status", string(status)).
		Set("error_message", errMsg).
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return fmt.Errorf("build file status: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set file status: %w", err)
	}
	return nil
}
