package requestdata

import (
	"context"

	"github.com/yungbote/intentbase-backend/internal/types"
)

var requestDataKey = struct{}{}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	val := ctx.Value(requestDataKey)
	if rd, ok := val.(*RequestData); ok {
		return rd
	}
	return nil
}

// RequestData carries the per-request tenant scope resolved by the tenant
// middleware. Every taxonomy and phrase route requires it.
type RequestData struct {
	Tenant types.Tenant
}
