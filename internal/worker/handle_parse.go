package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/storyloom/storyloom/internal/models"
	"github.com/storyloom/storyloom/internal/pipeline"
	"github.com/storyloom/storyloom/internal/store"
	"github.com/storyloom/storyloom/pkg/logger"
)

// HandleParseFile extracts content items from one uploaded file. The unit id
// is the file id. Malformed or unsupported input is a permanent failure
// recorded on the file row; object storage and database trouble is transient.
func (h *Handlers) HandleParseFile(ctx context.Context, t *asynq.Task) error {
	msg, err := h.decode(t)
	if err != nil {
		return err
	}
	body := msg.Body.(pipeline.ParseFile)

	if _, ok, err := h.currentProject(ctx, msg); err != nil || !ok {
		return err
	}

	file, err := h.store.GetSourceFile(ctx, body.FileID)
	if err != nil {
		if store.IsNotFound(err) {
			return h.unitFailed(ctx, msg, body.FileID, fmt.Errorf("source file missing: %w", err))
		}
		return pipeline.Transient("load source file", err)
	}

	obj, err := h.objects.Get(ctx, file.ObjectKey)
	if err != nil {
		return pipeline.Transient("fetch object", err)
	}
	defer obj.Close()

	parser, err := h.parsers.ForMIME(file.MimeType)
	if err != nil {
		return h.parseFailed(ctx, msg, file.ID, err)
	}

	items, err := parser.Parse(ctx, obj)
	if err != nil {
		if ctx.Err() != nil {
			return pipeline.Transient("parse file", err)
		}
		// The bytes themselves are bad; redelivery reads the same bytes.
		return h.parseFailed(ctx, msg, file.ID, err)
	}

	for i, item := range items {
		meta := "{}"
		if len(item.Metadata) > 0 {
			raw, err := json.Marshal(item.Metadata)
			if err != nil {
				return pipeline.Permanent("encode metadata", err)
			}
			meta = string(raw)
		}
		_, err := h.store.UpsertContentItem(ctx, &models.ContentItem{
			ID:        uuid.New().String(),
			ProjectID: msg.ProjectID,
			FileID:    file.ID,
			Position:  i,
			Type:      item.Type,
			Text:      item.Text,
			Metadata:  meta,
		})
		if err != nil {
			return pipeline.Transient("upsert content item", err)
		}
	}

	if err := h.store.MarkFileParsed(ctx, file.ID); err != nil {
		return pipeline.Transient("mark file parsed", err)
	}

	coord := h.registry.Get(msg.ProjectID)
	coord.Discovery("file", fmt.Sprintf("%s: %d items", file.Filename, len(items)))
	for _, item := range items {
		if item.Type == models.ContentText && item.Text != "" {
			coord.Discovery("text", snippet(item.Text, 120))
			break
		}
	}

	h.log.Info("file parsed",
		logger.String("projectId", msg.ProjectID),
		logger.String("fileId", file.ID),
		logger.Int("items", len(items)),
	)
	return h.unitDone(ctx, msg, file.ID)
}

// parseFailed records the failure on the file row before settling the unit.
func (h *Handlers) parseFailed(ctx context.Context, msg pipeline.Message, fileID string, cause error) error {
	if err := h.store.MarkFileFailed(ctx, fileID, cause.Error()); err != nil {
		return pipeline.Transient("mark file failed", err)
	}
	return h.unitFailed(ctx, msg, fileID, cause)
}
