package app

import (
	"github.com/yungbote/intentbase-backend/internal/middleware"
	"github.com/yungbote/intentbase-backend/internal/pkg/logger"
)

type Middleware struct {
	Tenant *middleware.TenantMiddleware
}

func wireMiddleware(log *logger.Logger) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Tenant: middleware.NewTenantMiddleware(log),
	}
}
