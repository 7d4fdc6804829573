package handlers

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/storyloom/storyloom/config"
	"github.com/storyloom/storyloom/internal/agent/parse"
	"github.com/storyloom/storyloom/internal/models"
	"github.com/storyloom/storyloom/internal/pipeline"
	"github.com/storyloom/storyloom/internal/progress"
	"github.com/storyloom/storyloom/internal/store"
	"github.com/storyloom/storyloom/pkg/logger"
	"github.com/storyloom/storyloom/pkg/storage"
)

type ProjectHandler struct {
	store      *store.Store
	objects    storage.Storage
	dispatcher *pipeline.Dispatcher
	registry   *progress.Registry
	cfg        *config.PipelineConfig
	logger     logger.Logger
}

// UploadResponse describes one accepted file.
type UploadResponse struct {
	FileID    string `json:"fileId"`
	ProjectID string `json:"projectId"`
	Filename  string `json:"filename"`
	FileSize  int64  `json:"fileSize"`
	MimeType  string `json:"mimeType"`
	CreatedAt string `json:"createdAt"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
}

func NewProjectHandler(
	st *store.Store,
	objects storage.Storage,
	dispatcher *pipeline.Dispatcher,
	registry *progress.Registry,
	cfg *config.PipelineConfig,
	log logger.Logger,
) *ProjectHandler {
	return &ProjectHandler{
		store:      st,
		objects:    objects,
		dispatcher: dispatcher,
		registry:   registry,
		cfg:        cfg,
		logger:     log,
	}
}

// UploadFile stores one uploaded file and records it against the project,
// creating the project on first contact.
func (h *ProjectHandler) UploadFile(c *gin.Context) {
	projectID := c.Param("projectId")

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid file upload", err)
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		if byName := parse.MIMEForFilename(header.Filename); byName != "" {
			mimeType = byName
		}
	}

	project, err := h.store.EnsureProject(c.Request.Context(), projectID, c.PostForm("projectName"))
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to ensure project", err)
		return
	}

	fileID := uuid.New().String()
	key := fmt.Sprintf("%s/%s/%s", project.ID, fileID, header.Filename)
	if _, err := h.objects.Store(c.Request.Context(), file, key, header.Size, mimeType); err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to store file", err)
		return
	}

	now := time.Now().UTC()
	source := &models.SourceFile{
		ID:        fileID,
		ProjectID: project.ID,
		ObjectKey: key,
		Filename:  header.Filename,
		MimeType:  mimeType,
		Size:      header.Size,
		CreatedAt: now,
	}
	if err := h.store.InsertSourceFile(c.Request.Context(), source); err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to record file", err)
		return
	}

	c.JSON(http.StatusOK, UploadResponse{
		FileID:    fileID,
		ProjectID: project.ID,
		Filename:  header.Filename,
		FileSize:  header.Size,
		MimeType:  mimeType,
		CreatedAt: now.Format(time.RFC3339),
	})
}

// triggerRequest selects which stages to queue; empty means a full run,
// which starts at parse and cascades through the transition policy.
type triggerRequest struct {
	Stages []string `json:"stages"`
}

// StartPipeline queues the requested stages for the project's current
// generation.
func (h *ProjectHandler) StartPipeline(c *gin.Context) {
	projectID := c.Param("projectId")

	var req triggerRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.handleError(c, http.StatusBadRequest, "Invalid trigger request", err)
			return
		}
	}
	if len(req.Stages) == 0 {
		req.Stages = []string{string(models.StageParse)}
	}

	result, err := h.dispatcher.Trigger(c.Request.Context(), projectID, req.Stages)
	if err != nil {
		if store.IsNotFound(err) {
			h.handleError(c, http.StatusNotFound, "Project not found", err)
			return
		}
		h.handleError(c, http.StatusBadRequest, "Failed to trigger pipeline", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ResetPipeline bumps the project generation so in-flight work from the old
// run can no longer advance the project.
func (h *ProjectHandler) ResetPipeline(c *gin.Context) {
	projectID := c.Param("projectId")

	generation, err := h.dispatcher.Reset(c.Request.Context(), projectID)
	if err != nil {
		if store.IsNotFound(err) {
			h.handleError(c, http.StatusNotFound, "Project not found", err)
			return
		}
		h.handleError(c, http.StatusInternalServerError, "Failed to reset pipeline", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"projectId":  projectID,
		"generation": generation,
	})
}

// GetProgress returns current progress: live coordinator state when the
// project is active, the durable snapshot otherwise.
func (h *ProjectHandler) GetProgress(c *gin.Context) {
	projectID := c.Param("projectId")

	state, ok := h.registry.State(c.Request.Context(), projectID)
	if !ok {
		h.handleError(c, http.StatusNotFound, "No progress recorded", nil)
		return
	}
	c.JSON(http.StatusOK, state)
}

// StreamEvents is the SSE live feed. The subscriber only sees events from
// this point on; the first frame carries the current state so the client
// does not need a separate progress call.
func (h *ProjectHandler) StreamEvents(c *gin.Context) {
	projectID := c.Param("projectId")

	coord := h.registry.Get(projectID)
	sub := coord.Subscribe()
	if sub == nil {
		// Raced a finishing coordinator; the next Get creates a fresh one.
		// The deferred unsubscribe and the state read below must use the
		// coordinator that issued the subscriber.
		coord = h.registry.Get(projectID)
		sub = coord.Subscribe()
	}
	if sub == nil {
		h.handleError(c, http.StatusServiceUnavailable, "Live feed unavailable", nil)
		return
	}
	defer coord.Unsubscribe(sub)

	c.Writer.Header().Set("Content-Type", sse.ContentType)
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	heartbeat := time.NewTicker(h.cfg.Heartbeat())
	defer heartbeat.Stop()

	state := coord.GetState()
	c.Render(http.StatusOK, sse.Event{Event: "state", Data: state})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return false
			}
			sse.Encode(w, sse.Event{Event: string(ev.Type), Data: ev})
			return true
		case <-heartbeat.C:
			sse.Encode(w, sse.Event{Event: "heartbeat", Data: time.Now().UTC().Format(time.RFC3339)})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *ProjectHandler) handleError(c *gin.Context, status int, message string, err error) {
	h.logger.Error(message,
		logger.String("path", c.Request.URL.Path),
		logger.Error(err),
	)

	response := ErrorResponse{Message: message}
	if err != nil {
		response.Error = err.Error()
	}
	c.JSON(status, response)
}
