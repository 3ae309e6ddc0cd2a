package api

import (
	"github.com/gin-gonic/gin"

	"github.com/coderclaw/coderclaw/internal/common/logger"
	"github.com/coderclaw/coderclaw/internal/runtime"
	"github.com/coderclaw/coderclaw/internal/security"
)

// SetupRoutes configures the runtime wire protocol routes on the router.
func SetupRoutes(router *gin.Engine, rt *runtime.Runtime, sec *security.Service, log *logger.Logger) {
	handler := NewHandler(rt, sec, log)

	router.Use(Recovery(log))
	router.Use(RequestLogger(log))
	router.Use(ErrorHandler(log))

	router.GET("/health", handler.HealthCheck)

	api := router.Group("/api/runtime")
	{
		api.POST("/sessions", handler.CreateSession)

		tasks := api.Group("/tasks")
		{
			tasks.POST("/submit", handler.SubmitTask)
			tasks.GET("/:id/state", handler.GetTaskState)
			tasks.POST("/:id/cancel", handler.CancelTask)
			tasks.GET("/:id/stream", handler.StreamTask)
		}

		api.GET("/agents", handler.ListAgents)
		api.GET("/skills", handler.ListSkills)
	}
}
