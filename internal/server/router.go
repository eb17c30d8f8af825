package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/intentbase-backend/internal/handlers"
	"github.com/yungbote/intentbase-backend/internal/middleware"
)

type RouterConfig struct {
	TaxonomyHandler  *handlers.TaxonomyHandler
	PhraseHandler    *handlers.PhraseHandler
	TenantMiddleware *middleware.TenantMiddleware
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Customer-ID", "X-Application-ID"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)

	// ===============
	// || Tenant    ||
	// ===============
	api := router.Group("/api")
	api.Use(cfg.TenantMiddleware.RequireTenant())
	// Taxonomy
	api.GET("/taxonomy", cfg.TaxonomyHandler.ListTaxonomy)
	api.POST("/taxonomy/nodes", cfg.TaxonomyHandler.CreateNode)
	api.POST("/taxonomy/nodes/rename", cfg.TaxonomyHandler.RenameNode)
	api.POST("/taxonomy/nodes/delete", cfg.TaxonomyHandler.DeleteNode)
	api.POST("/taxonomy/reconcile", cfg.TaxonomyHandler.ReconcileSnapshot)
	// Phrases
	api.POST("/phrases", cfg.PhraseHandler.UpsertPhrases)
	api.PATCH("/phrases/:id", cfg.PhraseHandler.EditPhrase)
	api.DELETE("/phrases/:id", cfg.PhraseHandler.DeletePhrase)

	return router
}
