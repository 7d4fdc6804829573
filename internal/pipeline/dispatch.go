package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/storyloom/storyloom/internal/models"
	"github.com/storyloom/storyloom/internal/progress"
	"github.com/storyloom/storyloom/internal/store"
	"github.com/storyloom/storyloom/pkg/logger"
)

// Dispatcher implements the external enqueue contract: it turns a trigger
// request into stage-start messages for the project's current generation.
type Dispatcher struct {
	store    *store.Store
	launcher *Launcher
	registry *progress.Registry
	log      logger.Logger
}

// NewDispatcher wires the dispatcher.
func NewDispatcher(st *store.Store, launcher *Launcher, registry *progress.Registry, log logger.Logger) *Dispatcher {
	return &Dispatcher{store: st, launcher: launcher, registry: registry, log: log}
}

// TriggerResult reports what a trigger actually queued.
type TriggerResult struct {
	JobID      string   `json:"jobId"`
	Generation uint64   `json:"generation"`
	Stages     []string `json:"stages"`
}

// Trigger queues the requested stages' initial messages. Unknown stage names
// are rejected; stages with nothing to do (parse without files) are skipped
// and omitted from the result.
func (d *Dispatcher) Trigger(ctx context.Context, projectID string, stageNames []string) (*TriggerResult, error) {
	if len(stageNames) == 0 {
		return nil, fmt.Errorf("no stages requested")
	}

	requested := make(map[models.Stage]bool, len(stageNames))
	for _, name := range stageNames {
		stage, ok := models.ParseStage(name)
		if !ok {
			return nil, fmt.Errorf("unknown stage %q", name)
		}
		requested[stage] = true
	}

	project, err := d.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	result := &TriggerResult{
		JobID:      uuid.New().String(),
		Generation: project.Generation,
	}

	// Queue in pipeline order so progress reads sensibly when several
	// stages are requested at once.
	var firstQueued models.Stage
	for _, stage := range models.QueueStages() {
		if !requested[stage] {
			continue
		}
		n, err := d.launcher.StartStage(ctx, project, project.Generation, stage)
		if err != nil {
			return nil, fmt.Errorf("start stage %s: %w", stage, err)
		}
		if n == 0 {
			d.log.Info("stage skipped, nothing to do",
				logger.String("projectId", projectID),
				logger.String("stage", string(stage)),
			)
			continue
		}
		if firstQueued == "" {
			firstQueued = stage
		}
		result.Stages = append(result.Stages, string(stage))
	}

	if firstQueued != "" {
		if err := d.store.UpdateProjectStatus(ctx, projectID, models.StageStatus(firstQueued)); err != nil {
			return nil, fmt.Errorf("update status: %w", err)
		}
		d.registry.Get(projectID).Update(firstQueued, 0, "queued")
	}

	d.log.Info("pipeline triggered",
		logger.String("projectId", projectID),
		logger.String("jobId", result.JobID),
		logger.Any("stages", result.Stages),
	)
	return result, nil
}

// Reset bumps the generation counter. In-flight work from the old generation
// keeps running but its completions are ignored by the transition policy.
func (d *Dispatcher) Reset(ctx context.Context, projectID string) (uint64, error) {
	generation, err := d.store.BumpGeneration(ctx, projectID)
	if err != nil {
		return 0, err
	}
	d.log.Info("project generation bumped",
		logger.String("projectId", projectID),
		logger.Uint64("generation", generation),
	)
	return generation, nil
}
