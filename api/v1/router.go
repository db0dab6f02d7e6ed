package v1

import (
	"github.com/gin-gonic/gin"

	"fleetops/api/v1/executor"
	"fleetops/api/v1/jobs"
	"fleetops/internal/cascade"
	"fleetops/internal/httpx"
	"fleetops/internal/store"
)

// SetupRouter sets up the API v1 routes
func SetupRouter(r *gin.Engine, st *store.Store, engine *cascade.Engine, feed cascade.Feed) {
	v1 := r.Group("/api/v1")
	{
		v1.GET("/ping", pingHandler)

		// Jobs routes
		jobsHandler := jobs.NewHandler(st, engine, feed)
		jobsGroup := v1.Group("/jobs")
		{
			jobsGroup.GET("", jobsHandler.List)
			jobsGroup.POST("", jobsHandler.Create)
			jobsGroup.GET("/:id", jobsHandler.Get)
			jobsGroup.POST("/:id/cancel", jobsHandler.Cancel)
			jobsGroup.GET("/:id/progress", jobsHandler.Progress)
			jobsGroup.GET("/:id/activity", jobsHandler.Activity)
		}

		// Executor update contract
		executorHandler := executor.NewHandler(st, engine)
		v1.POST("/executor/update", executorHandler.Update)
	}
}

// pingHandler handles the ping request using unified response
func pingHandler(c *gin.Context) {
	httpx.OK(c, gin.H{
		"pong": true,
	})
}
