package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes wires the API onto a gin engine.
func RegisterRoutes(r *gin.Engine, h *Handler) {
	api := r.Group("/api")

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	files := api.Group("/files")
	{
		files.POST("", h.Upload)
		files.GET("/:id", h.GetFile)
		files.POST("/:id/parse", h.Parse)
		files.POST("/:id/reparse", h.Reparse)
		files.POST("/:id/retry", h.Retry)
		files.GET("/:id/summary", h.GetSummary)
		files.POST("/:id/import", h.ImportItems)
	}

	tx := api.Group("/transactions")
	{
		tx.GET("", h.ListTransactions)
		tx.GET("/export", h.ExportTransactions)
	}
}
