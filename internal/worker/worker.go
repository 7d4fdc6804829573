// Package worker consumes the stage queues. Every message outcome becomes
// ack or retry plus a state mutation; nothing is thrown across the queue
// boundary.
package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/storyloom/storyloom/internal/pipeline"
	"github.com/storyloom/storyloom/pkg/logger"
)

// Worker runs the asynq server with one handler per message kind.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    logger.Logger
}

// New registers all handlers and fails loudly if a message kind is left
// unhandled, so adding a stage without wiring it cannot ship.
func New(server *asynq.Server, h *Handlers, log logger.Logger) (*Worker, error) {
	handlers := map[pipeline.Kind]asynq.HandlerFunc{
		pipeline.KindParseFile:       h.HandleParseFile,
		pipeline.KindAnalyzeContent:  h.HandleAnalyzeContent,
		pipeline.KindAnalyzeProject:  h.HandleAnalyzeProject,
		pipeline.KindCurateProject:   h.HandleCurateProject,
		pipeline.KindWriteNarrative:  h.HandleWriteNarrative,
		pipeline.KindWriteProject:    h.HandleWriteProject,
		pipeline.KindBuildAndPublish: h.HandleBuildAndPublish,
	}

	mux := asynq.NewServeMux()
	for _, kind := range pipeline.AllKinds {
		fn, ok := handlers[kind]
		if !ok {
			return nil, fmt.Errorf("message kind %s has no handler", kind)
		}
		mux.HandleFunc(string(kind), fn)
	}

	return &Worker{server: server, mux: mux, log: log}, nil
}

// Start runs the server until the context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	go func() {
		if err := w.server.Run(w.mux); err != nil {
			w.log.Error("worker server stopped", logger.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		w.Stop()
	}()

	return nil
}

// Stop shuts the server down, letting in-flight handlers finish.
func (w *Worker) Stop() {
	w.server.Stop()
	w.server.Shutdown()
}
