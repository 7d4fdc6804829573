package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/storyloom/storyloom/api/handlers"
	"github.com/storyloom/storyloom/api/middleware"
)

// SetupRoutes wires all HTTP routes.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers) {
	r.Use(middleware.CORS())

	v1 := r.Group("/api/v1")

	projects := v1.Group("/projects/:projectId")
	{
		projects.POST("/files", h.Project.UploadFile)
		projects.POST("/pipeline", h.Project.StartPipeline)
		projects.POST("/reset", h.Project.ResetPipeline)
		projects.GET("/progress", h.Project.GetProgress)
		projects.GET("/events", h.Project.StreamEvents)
	}
}
