package api

import (
	"rawwebapi/config"
	"rawwebapi/task"

	"github.com/gin-gonic/gin"
)

func SetupRouter(m *task.Manager, cfg *config.Config, status ConverterStatus) *gin.Engine {
	r := gin.Default()
	h := NewHandler(m, cfg, status)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(cfg))
	{
		v1.GET("/converter", h.handleConverterStatus)

		// Blocks until every file has been converted.
		v1.POST("/convert", h.handleConvert)

		v1.POST("/batches", h.handleCreateBatch)
		v1.GET("/batches", h.handleListBatches)
		v1.GET("/batches/:batchId", h.handleGetBatch)

		v1.GET("/files/:filename", h.handleGetFile)
	}
	return r
}
