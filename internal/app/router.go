package app

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/intentbase-backend/internal/server"
)

func wireRouter(handlerset Handlers, middlewareset Middleware) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		TaxonomyHandler:  handlerset.Taxonomy,
		PhraseHandler:    handlerset.Phrase,
		TenantMiddleware: middlewareset.Tenant,
	})
}
