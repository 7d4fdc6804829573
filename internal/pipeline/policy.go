package pipeline

import (
	"context"
	"fmt"

	"github.com/storyloom/storyloom/internal/models"
	"github.com/storyloom/storyloom/internal/progress"
	"github.com/storyloom/storyloom/internal/store"
	"github.com/storyloom/storyloom/pkg/logger"
)

// Policy decides, from a stage's aggregate unit state, whether to advance
// the project and enqueue the next stage. Transitions are claimed exactly
// once per (project, generation, stage) so redelivered completions are
// no-ops, and completions tagged with a stale generation are ignored.
type Policy struct {
	store    *store.Store
	launcher *Launcher
	registry *progress.Registry
	log      logger.Logger
}

// NewPolicy wires the transition policy.
func NewPolicy(st *store.Store, launcher *Launcher, registry *progress.Registry, log logger.Logger) *Policy {
	return &Policy{store: st, launcher: launcher, registry: registry, log: log}
}

// UnitFinished settles one unit of work and evaluates the stage. Workers
// call this after acknowledging success or recording a permanent failure;
// transient failures never reach it.
func (p *Policy) UnitFinished(ctx context.Context, projectID string, generation uint64, stage models.Stage, unitID string, success bool, errMsg string) error {
	project, err := p.store.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	if project.Generation != generation {
		p.log.Info("ignoring completion from stale generation",
			logger.String("projectId", projectID),
			logger.Uint64("got", generation),
			logger.Uint64("current", project.Generation),
		)
		return nil
	}

	found, err := p.store.MarkUnit(ctx, projectID, generation, stage, unitID, success, errMsg)
	if err != nil {
		return fmt.Errorf("mark unit: %w", err)
	}
	if !found {
		// Ad-hoc message outside a stage run (e.g. a single narrative
		// regeneration); nothing to evaluate.
		return nil
	}

	counts, err := p.store.StageUnitCounts(ctx, projectID, generation, stage)
	if err != nil {
		return fmt.Errorf("stage counts: %w", err)
	}

	if !counts.Settled() {
		// Once the stage settles the worker may already have moved the feed
		// on; only Evaluate speaks for a settled stage.
		p.registry.Get(projectID).Update(stage, stagePercent(counts),
			fmt.Sprintf("%d of %d %s units done", counts.Succeeded+counts.Failed, counts.Total, stage))
		return nil
	}
	return p.Evaluate(ctx, project, generation, stage)
}

// Evaluate advances the project when the stage is done. Safe to call more
// than once; only the first caller per generation transitions.
func (p *Policy) Evaluate(ctx context.Context, project *models.Project, generation uint64, stage models.Stage) error {
	counts, err := p.store.StageUnitCounts(ctx, project.ID, generation, stage)
	if err != nil {
		return fmt.Errorf("stage counts: %w", err)
	}
	if !counts.Settled() {
		return nil
	}

	first, err := p.store.TryMarkTransitioned(ctx, project.ID, generation, stage)
	if err != nil {
		return fmt.Errorf("claim transition: %w", err)
	}
	if !first {
		return nil
	}

	coord := p.registry.Get(project.ID)

	if counts.Total > 0 && counts.Succeeded == 0 {
		// Every unit failed permanently: fatal for the whole project.
		firstErr, err := p.store.FirstFailure(ctx, project.ID, generation, stage)
		if err != nil {
			return fmt.Errorf("first failure: %w", err)
		}
		if err := p.store.UpdateProjectStatus(ctx, project.ID, models.StatusFailed); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		coord.Complete("error", "", firstErr, true)
		p.log.Warn("project failed: no unit of work succeeded",
			logger.String("projectId", project.ID),
			logger.String("stage", string(stage)),
		)
		return nil
	}

	if stage == models.StageBuild {
		// Publish happens inside the build unit; a settled build stage
		// means the site is live.
		if err := p.store.UpdateProjectStatus(ctx, project.ID, models.StatusPublished); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		coord.Complete("success", "", "", true)
		p.log.Info("project published", logger.String("projectId", project.ID))
		return nil
	}

	next := stage.Next()
	if err := p.store.UpdateProjectStatus(ctx, project.ID, models.StageStatus(next)); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	coord.Complete("success", next, "", false)
	// The observed percent drops to 0 at the handoff, before the next
	// stage's workers start reporting.
	coord.Update(next, 0, "queued")

	if _, err := p.launcher.StartStage(ctx, project, generation, next); err != nil {
		return fmt.Errorf("start stage %s: %w", next, err)
	}
	p.log.Info("stage transition",
		logger.String("projectId", project.ID),
		logger.String("from", string(stage)),
		logger.String("to", string(next)),
	)
	return nil
}

func stagePercent(c store.StageCounts) int {
	if c.Total == 0 {
		return 100
	}
	return (c.Succeeded + c.Failed) * 100 / c.Total
}
