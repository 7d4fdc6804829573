package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/storyloom/storyloom/internal/models"
	"github.com/storyloom/storyloom/internal/pipeline"
	"github.com/storyloom/storyloom/pkg/logger"
)

// HandleBuildAndPublish renders the site and takes it live as one unit.
// Rendering reads only durable state and publishing overwrites the same
// object keys, so the whole unit is safe to redeliver end to end.
func (h *Handlers) HandleBuildAndPublish(ctx context.Context, t *asynq.Task) error {
	msg, err := h.decode(t)
	if err != nil {
		return err
	}

	if _, ok, err := h.currentProject(ctx, msg); err != nil || !ok {
		return err
	}

	coord := h.registry.Get(msg.ProjectID)
	coord.Update(models.StageBuild, 10, "rendering site")

	pages, err := h.builder.Build(ctx, msg.ProjectID)
	if err != nil {
		return pipeline.Transient("build site", err)
	}
	coord.Update(models.StageBuild, 90, fmt.Sprintf("%d pages rendered", len(pages)))

	coord.Update(models.StagePublish, 0, "uploading site")
	url, err := h.publisher.Publish(ctx, msg.ProjectID, pages)
	if err != nil {
		return pipeline.Transient("publish site", err)
	}
	coord.Update(models.StagePublish, 100, url)
	coord.Discovery("published", url)

	h.log.Info("site published",
		logger.String("projectId", msg.ProjectID),
		logger.Int("pages", len(pages)),
		logger.String("url", url),
	)
	return h.unitDone(ctx, msg, pipeline.ProjectUnit)
}
