package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/storyloom/storyloom/config"
	"github.com/storyloom/storyloom/internal/agent/analyze"
	"github.com/storyloom/storyloom/internal/agent/narrative"
	"github.com/storyloom/storyloom/internal/agent/parse"
	"github.com/storyloom/storyloom/internal/agent/site"
	"github.com/storyloom/storyloom/internal/models"
	"github.com/storyloom/storyloom/internal/pipeline"
	"github.com/storyloom/storyloom/internal/progress"
	"github.com/storyloom/storyloom/internal/store"
	"github.com/storyloom/storyloom/pkg/logger"
	"github.com/storyloom/storyloom/pkg/storage"
)

// NarrativeWriter is the degrade-path boundary; satisfied by narrative.Chain.
type NarrativeWriter interface {
	Generate(ctx context.Context, req narrative.Request) (string, narrative.Source, error)
}

// SiteBuilder renders a project snapshot; satisfied by site.Builder.
type SiteBuilder interface {
	Build(ctx context.Context, projectID string) ([]site.Page, error)
}

// Handlers holds every collaborator the stage handlers need. One instance is
// shared across the asynq worker pool; all fields must be safe for concurrent
// use.
type Handlers struct {
	store     *store.Store
	queue     pipeline.Enqueuer
	registry  *progress.Registry
	policy    *pipeline.Policy
	objects   storage.Storage
	parsers   *parse.Factory
	analyzer  analyze.Analyzer
	writer    NarrativeWriter
	builder   SiteBuilder
	publisher site.Publisher
	cfg       *config.PipelineConfig
	log       logger.Logger
}

// NewHandlers wires the stage handlers.
func NewHandlers(
	st *store.Store,
	queue pipeline.Enqueuer,
	registry *progress.Registry,
	policy *pipeline.Policy,
	objects storage.Storage,
	parsers *parse.Factory,
	analyzer analyze.Analyzer,
	writer NarrativeWriter,
	builder SiteBuilder,
	publisher site.Publisher,
	cfg *config.PipelineConfig,
	log logger.Logger,
) *Handlers {
	return &Handlers{
		store:     st,
		queue:     queue,
		registry:  registry,
		policy:    policy,
		objects:   objects,
		parsers:   parsers,
		analyzer:  analyzer,
		writer:    writer,
		builder:   builder,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

// decode rebuilds the message envelope. A payload that cannot be decoded can
// never succeed, so the error is permanent.
func (h *Handlers) decode(t *asynq.Task) (pipeline.Message, error) {
	var msg pipeline.Message
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		return msg, pipeline.Permanent("decode message", err)
	}
	return msg, nil
}

// currentProject loads the project and checks the message's generation
// against it. ok is false for a stale message, which the handler must
// acknowledge without touching any state.
func (h *Handlers) currentProject(ctx context.Context, msg pipeline.Message) (*models.Project, bool, error) {
	project, err := h.store.GetProject(ctx, msg.ProjectID)
	if err != nil {
		if store.IsNotFound(err) {
			// The project is gone; nothing to retry against.
			return nil, false, pipeline.Permanent("load project", err)
		}
		return nil, false, pipeline.Transient("load project", err)
	}
	if project.Generation != msg.Generation {
		h.log.Info("dropping message from stale generation",
			logger.String("kind", string(msg.Body.Kind())),
			logger.String("projectId", msg.ProjectID),
			logger.Uint64("got", msg.Generation),
			logger.Uint64("current", project.Generation),
		)
		return nil, false, nil
	}
	return project, true, nil
}

// unitFailed records a permanent unit failure and acknowledges the message.
// The returned error is always nil so asynq does not redeliver.
func (h *Handlers) unitFailed(ctx context.Context, msg pipeline.Message, unitID string, cause error) error {
	coord := h.registry.Get(msg.ProjectID)
	coord.Discovery("error", cause.Error())

	if err := h.policy.UnitFinished(ctx, msg.ProjectID, msg.Generation, msg.Body.Stage(), unitID, false, cause.Error()); err != nil {
		// The completion itself must be retried or the stage never settles.
		return pipeline.Transient("settle failed unit", err)
	}
	h.log.Warn("unit of work failed permanently",
		logger.String("kind", string(msg.Body.Kind())),
		logger.String("projectId", msg.ProjectID),
		logger.String("unitId", unitID),
		logger.Error(cause),
	)
	return nil
}

// unitDone settles a successful unit.
func (h *Handlers) unitDone(ctx context.Context, msg pipeline.Message, unitID string) error {
	if err := h.policy.UnitFinished(ctx, msg.ProjectID, msg.Generation, msg.Body.Stage(), unitID, true, ""); err != nil {
		return pipeline.Transient("settle unit", err)
	}
	return nil
}

// snippet shortens text for a discovery preview.
func snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}

// joinKeywords and splitKeywords translate between the analyzer's slice and
// the comma-joined column.
func joinKeywords(kw []string) string { return strings.Join(kw, ",") }

func splitKeywords(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func stageMessage(done, total int, what string) string {
	return fmt.Sprintf("%d of %d %s", done, total, what)
}
