package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/storyloom/storyloom/internal/agent/narrative"
	"github.com/storyloom/storyloom/internal/pipeline"
	"github.com/storyloom/storyloom/internal/store"
	"github.com/storyloom/storyloom/pkg/logger"
)

// HandleWriteProject generates prose for every selected item and an intro for
// every chapter, as one project-level unit. The degrade chain only errors on
// a dead context, so a single slow provider never turns the whole unit into a
// redelivery; narrative upserts make the redeliveries that do happen safe.
func (h *Handlers) HandleWriteProject(ctx context.Context, t *asynq.Task) error {
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
	chapters, err := h.store.ListChapters(ctx, msg.ProjectID)
	if err != nil {
		return pipeline.Transient("list chapters", err)
	}
	titles := make(map[string]string, len(chapters))
	for _, ch := range chapters {
		titles[ch.ID] = ch.Title
	}

	coord := h.registry.Get(msg.ProjectID)
	total := len(items) + len(chapters)
	done := 0

	for _, item := range items {
		text, source, err := h.writer.Generate(ctx, narrative.Request{
			ContentType:  item.Type,
			Text:         item.Text,
			Summary:      item.Summary,
			Keywords:     splitKeywords(item.Keywords),
			ChapterTitle: titles[item.ChapterID],
		})
		if err != nil {
			return pipeline.Transient("generate narrative", err)
		}
		if _, err := h.store.UpsertNarrative(ctx, item.ID, msg.ProjectID, text); err != nil {
			return pipeline.Transient("upsert narrative", err)
		}

		done++
		coord.Update(msg.Body.Stage(), done*100/total,
			stageMessage(done, total, "passages written"))
		if source == narrative.SourcePlaceholder {
			coord.Discovery("degraded", snippet(text, 120))
		} else {
			coord.Discovery("narrative", snippet(text, 120))
		}
	}

	for _, ch := range chapters {
		intro, _, err := h.writer.Generate(ctx, narrative.Request{
			ChapterTitle: ch.Title,
			Intro:        true,
		})
		if err != nil {
			return pipeline.Transient("generate intro", err)
		}
		if err := h.store.SetChapterIntro(ctx, ch.ID, intro); err != nil {
			return pipeline.Transient("set chapter intro", err)
		}
		done++
		coord.Update(msg.Body.Stage(), done*100/total,
			stageMessage(done, total, "passages written"))
	}

	h.log.Info("narratives written",
		logger.String("projectId", msg.ProjectID),
		logger.Int("items", len(items)),
		logger.Int("chapters", len(chapters)),
	)
	return h.unitDone(ctx, msg, pipeline.ProjectUnit)
}

// HandleWriteNarrative regenerates prose for a single content item, outside a
// stage run. Settling an unregistered unit is a recorded no-op in the policy,
// so this handler reuses the same completion path.
func (h *Handlers) HandleWriteNarrative(ctx context.Context, t *asynq.Task) error {
	msg, err := h.decode(t)
	if err != nil {
		return err
	}
	body := msg.Body.(pipeline.WriteNarrative)

	if _, ok, err := h.currentProject(ctx, msg); err != nil || !ok {
		return err
	}

	item, err := h.store.GetContentItem(ctx, body.ContentID)
	if err != nil {
		if store.IsNotFound(err) {
			return h.unitFailed(ctx, msg, body.ContentID, fmt.Errorf("content item missing: %w", err))
		}
		return pipeline.Transient("load content item", err)
	}

	title := ""
	if item.ChapterID != "" {
		chapters, err := h.store.ListChapters(ctx, msg.ProjectID)
		if err != nil {
			return pipeline.Transient("list chapters", err)
		}
		for _, ch := range chapters {
			if ch.ID == item.ChapterID {
				title = ch.Title
				break
			}
		}
	}

	text, _, err := h.writer.Generate(ctx, narrative.Request{
		ContentType:  item.Type,
		Text:         item.Text,
		Summary:      item.Summary,
		Keywords:     splitKeywords(item.Keywords),
		ChapterTitle: title,
	})
	if err != nil {
		return pipeline.Transient("generate narrative", err)
	}

	n, err := h.store.UpsertNarrative(ctx, item.ID, msg.ProjectID, text)
	if err != nil {
		return pipeline.Transient("upsert narrative", err)
	}

	h.log.Info("narrative regenerated",
		logger.String("projectId", msg.ProjectID),
		logger.String("contentId", item.ID),
		logger.Int("version", n.Version),
	)
	return h.unitDone(ctx, msg, item.ID)
}
