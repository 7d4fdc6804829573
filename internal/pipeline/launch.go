package pipeline

import (
	"context"
	"fmt"

	"github.com/storyloom/storyloom/internal/models"
	"github.com/storyloom/storyloom/internal/store"
	"github.com/storyloom/storyloom/pkg/logger"
)

// Enqueuer abstracts the stage queues; satisfied by pkg/queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg Message) error
}

// Launcher turns "start this stage" into the stage's initial messages and
// unit bookkeeping. Shared by the external trigger and the transition policy.
type Launcher struct {
	store *store.Store
	queue Enqueuer
	log   logger.Logger
}

// NewLauncher wires a launcher.
func NewLauncher(st *store.Store, queue Enqueuer, log logger.Logger) *Launcher {
	return &Launcher{store: st, queue: queue, log: log}
}

// ProjectUnit is the unit id used by stages that run as a single
// project-level unit of work.
const ProjectUnit = "project"

// StartStage registers the stage's units and enqueues its initial
// message(s). Returns the number of messages enqueued; zero means the stage
// had nothing to do (e.g. parse with no files).
func (l *Launcher) StartStage(ctx context.Context, project *models.Project, generation uint64, stage models.Stage) (int, error) {
	switch stage {
	case models.StageParse:
		return l.startParse(ctx, project, generation)
	case models.StageAnalyze:
		return 1, l.enqueue(ctx, project.ID, generation, AnalyzeProject{})
	case models.StageCurate:
		if err := l.store.RegisterUnits(ctx, project.ID, generation, stage, []string{ProjectUnit}); err != nil {
			return 0, err
		}
		return 1, l.enqueue(ctx, project.ID, generation, CurateProject{})
	case models.StageWrite:
		if err := l.store.RegisterUnits(ctx, project.ID, generation, stage, []string{ProjectUnit}); err != nil {
			return 0, err
		}
		return 1, l.enqueue(ctx, project.ID, generation, WriteProject{})
	case models.StageBuild:
		if err := l.store.RegisterUnits(ctx, project.ID, generation, stage, []string{ProjectUnit}); err != nil {
			return 0, err
		}
		return 1, l.enqueue(ctx, project.ID, generation, BuildAndPublish{})
	default:
		return 0, fmt.Errorf("stage %q has no start message", stage)
	}
}

func (l *Launcher) startParse(ctx context.Context, project *models.Project, generation uint64) (int, error) {
	files, err := l.store.ListFiles(ctx, project.ID)
	if err != nil {
		return 0, fmt.Errorf("list files: %w", err)
	}
	if len(files) == 0 {
		return 0, nil
	}

	unitIDs := make([]string, 0, len(files))
	for _, f := range files {
		unitIDs = append(unitIDs, f.ID)
	}
	if err := l.store.RegisterUnits(ctx, project.ID, generation, models.StageParse, unitIDs); err != nil {
		return 0, err
	}

	for _, f := range files {
		if err := l.enqueue(ctx, project.ID, generation, ParseFile{FileID: f.ID}); err != nil {
			return 0, err
		}
	}
	return len(files), nil
}

func (l *Launcher) enqueue(ctx context.Context, projectID string, generation uint64, body Body) error {
	msg := NewMessage(projectID, generation, body)
	if err := l.queue.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueue %s: %w", body.Kind(), err)
	}
	l.log.Debug("enqueued unit of work",
		logger.String("kind", string(body.Kind())),
		logger.String("projectId", projectID),
		logger.Uint64("generation", generation),
	)
	return nil
}
