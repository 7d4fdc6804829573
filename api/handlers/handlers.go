package handlers

import (
	"github.com/storyloom/storyloom/config"
	"github.com/storyloom/storyloom/internal/pipeline"
	"github.com/storyloom/storyloom/internal/progress"
	"github.com/storyloom/storyloom/internal/store"
	"github.com/storyloom/storyloom/pkg/logger"
	"github.com/storyloom/storyloom/pkg/storage"
)

type Handlers struct {
	Project *ProjectHandler
}

func NewHandlers(
	st *store.Store,
	objects storage.Storage,
	dispatcher *pipeline.Dispatcher,
	registry *progress.Registry,
	cfg *config.PipelineConfig,
	log logger.Logger,
) *Handlers {
	return &Handlers{
		Project: NewProjectHandler(st, objects, dispatcher, registry, cfg, log),
	}
}
