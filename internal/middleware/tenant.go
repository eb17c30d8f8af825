package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/intentbase-backend/internal/pkg/logger"
	"github.com/yungbote/intentbase-backend/internal/requestdata"
	"github.com/yungbote/intentbase-backend/internal/types"
)

type TenantMiddleware struct {
	log *logger.Logger
}

func NewTenantMiddleware(log *logger.Logger) *TenantMiddleware {
	return &TenantMiddleware{log: log.With("middleware", "TenantMiddleware")}
}

// RequireTenant resolves the tenant scope from the X-Customer-ID and
// X-Application-ID headers and rejects requests missing either one. Every
// taxonomy and phrase route is tenant-scoped, so this runs before all of
// them.
func (tm *TenantMiddleware) RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		customerID, err := uuid.Parse(c.GetHeader("X-Customer-ID"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid X-Customer-ID header"})
			return
		}
		applicationID, err := uuid.Parse(c.GetHeader("X-Application-ID"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid X-Application-ID header"})
			return
		}

		rd := &requestdata.RequestData{
			Tenant: types.Tenant{CustomerID: customerID, ApplicationID: applicationID},
		}
		c.Request = c.Request.WithContext(requestdata.WithRequestData(c.Request.Context(), rd))
		c.Next()
	}
}
