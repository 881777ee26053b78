// Package api exposes the HTTP surface over the search and AI collaborators.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the gin engine with all routes registered.
func NewRouter(h *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")
	{
		api.GET("/emails", h.ListEmails)
		api.GET("/emails/:id", h.GetEmail)
		api.PUT("/emails/:id/category", h.UpdateCategory)
		api.POST("/emails/:id/suggest-reply", h.SuggestReply)
		api.GET("/stats/categories", h.CategoryCounts)
		api.GET("/product-info", h.ListProductInfo)
		api.POST("/product-info", h.AddProductInfo)
	}

	router.GET("/healthz", h.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
