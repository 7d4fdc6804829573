package worker

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/storyloom/storyloom/internal/models"
	"github.com/storyloom/storyloom/internal/pipeline"
	"github.com/storyloom/storyloom/pkg/logger"
)

// HandleCurateProject groups the selected items into ordered chapters. The
// whole stage is one project-level unit. Chapters upsert by (project,
// position), so a redelivery rebuilds the same structure instead of
// duplicating it.
func (h *Handlers) HandleCurateProject(ctx context.Context, t *asynq.Task) error {
	msg, err := h.decode(t)
	if err != nil {
		return err
	}

	if _, ok, err := h.currentProject(ctx, msg); err != nil || !ok {
		return err
	}

	items, err := h.store.ListSelectedItems(ctx, msg.ProjectID)
	if err != nil {
		return pipeline.Transient("list selected items", err)
	}

	coord := h.registry.Get(msg.ProjectID)
	size := h.cfg.ChapterSize
	total := (len(items) + size - 1) / size

	for pos := 0; pos*size < len(items); pos++ {
		group := items[pos*size : min(len(items), (pos+1)*size)]

		chapterID, err := h.store.UpsertChapter(ctx, &models.Chapter{
			ID:        uuid.New().String(),
			ProjectID: msg.ProjectID,
			Position:  pos,
			Title:     chapterTitle(pos, group),
		})
		if err != nil {
			return pipeline.Transient("upsert chapter", err)
		}

		for j, item := range group {
			if err := h.store.AssignChapter(ctx, item.ID, chapterID, pos*size+j); err != nil {
				return pipeline.Transient("assign chapter", err)
			}
		}

		coord.Update(msg.Body.Stage(), (pos+1)*100/total,
			stageMessage(pos+1, total, "chapters curated"))
	}

	h.log.Info("project curated",
		logger.String("projectId", msg.ProjectID),
		logger.Int("items", len(items)),
		logger.Int("chapters", total),
	)
	return h.unitDone(ctx, msg, pipeline.ProjectUnit)
}

// chapterTitle derives a human title from the group's strongest keyword.
func chapterTitle(pos int, group []models.ContentItem) string {
	for _, item := range group {
		kw := splitKeywords(item.Keywords)
		if len(kw) == 0 {
			continue
		}
		word := []rune(strings.TrimSpace(kw[0]))
		if len(word) == 0 {
			continue
		}
		word[0] = unicode.ToUpper(word[0])
		return fmt.Sprintf("Chapter %d: %s", pos+1, string(word))
	}
	return fmt.Sprintf("Chapter %d", pos+1)
}
