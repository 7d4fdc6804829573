package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/storyloom/storyloom/internal/pipeline"
	"github.com/storyloom/storyloom/internal/store"
	"github.com/storyloom/storyloom/pkg/logger"
)

// HandleAnalyzeProject fans the analyze stage out: one analyze_content
// message per content item. The fan-out message is not itself a unit of work;
// when there is nothing to analyze it settles the stage directly so the
// pipeline keeps moving.
func (h *Handlers) HandleAnalyzeProject(ctx context.Context, t *asynq.Task) error {
	msg, err := h.decode(t)
	if err != nil {
		return err
	}

	project, ok, err := h.currentProject(ctx, msg)
	if err != nil || !ok {
		return err
	}

	items, err := h.store.ListContentItems(ctx, msg.ProjectID)
	if err != nil {
		return pipeline.Transient("list content items", err)
	}
	if len(items) == 0 {
		h.log.Info("nothing to analyze, advancing",
			logger.String("projectId", msg.ProjectID))
		if err := h.policy.Evaluate(ctx, project, msg.Generation, msg.Body.Stage()); err != nil {
			return pipeline.Transient("evaluate empty stage", err)
		}
		return nil
	}

	unitIDs := make([]string, 0, len(items))
	for _, item := range items {
		unitIDs = append(unitIDs, item.ID)
	}
	// Units first, messages second: a crash in between redelivers this
	// message and the insert-or-ignore makes the second pass harmless.
	if err := h.store.RegisterUnits(ctx, msg.ProjectID, msg.Generation, msg.Body.Stage(), unitIDs); err != nil {
		return pipeline.Transient("register units", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, item := range items {
		contentID := item.ID
		g.Go(func() error {
			child := pipeline.NewMessage(msg.ProjectID, msg.Generation, pipeline.AnalyzeContent{ContentID: contentID})
			return h.queue.Enqueue(gctx, child)
		})
	}
	if err := g.Wait(); err != nil {
		return pipeline.Transient("enqueue analyze units", err)
	}

	h.log.Info("analyze stage fanned out",
		logger.String("projectId", msg.ProjectID),
		logger.Int("units", len(items)),
	)
	return nil
}

// HandleAnalyzeContent analyzes one content item. The unit id is the content
// item id.
func (h *Handlers) HandleAnalyzeContent(ctx context.Context, t *asynq.Task) error {
	msg, err := h.decode(t)
	if err != nil {
		return err
	}
	body := msg.Body.(pipeline.AnalyzeContent)

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

	res, err := h.analyzer.Analyze(ctx, *item)
	if err != nil {
		if ctx.Err() != nil {
			return pipeline.Transient("analyze content", err)
		}
		return h.unitFailed(ctx, msg, item.ID, err)
	}

	if err := h.store.UpdateAnalysis(ctx, item.ID, res.Summary, joinKeywords(res.Keywords), res.Selected); err != nil {
		return pipeline.Transient("store analysis", err)
	}

	if res.Selected && res.Summary != "" {
		h.registry.Get(msg.ProjectID).Discovery("insight", snippet(res.Summary, 120))
	}
	return h.unitDone(ctx, msg, item.ID)
}
