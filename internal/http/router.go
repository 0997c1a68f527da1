package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"task-sync/internal/handlers"
	"task-sync/internal/logging"
	"task-sync/internal/middleware"
)

func NewRouter(log *logging.Logger, th *handlers.TaskHandler, sh *handlers.SyncHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	api := r.Group("/api")
	{
		api.GET("/health", sh.Health)
		api.GET("/tasks", th.ListTasks)
		api.POST("/tasks", th.CreateTask)
		api.GET("/tasks/:id", th.GetTask)
		api.PUT("/tasks/:id", th.UpdateTask)
		api.DELETE("/tasks/:id", th.DeleteTask)
		api.POST("/sync", sh.TriggerSync)
		api.GET("/status", sh.SyncStatus)
		api.POST("/batch", sh.ProcessBatchRequest)
	}
	return r
}
