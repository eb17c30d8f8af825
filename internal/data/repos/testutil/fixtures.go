package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/intentbase-backend/internal/types"
)

func PtrUUID(id uuid.UUID) *uuid.UUID { return &id }

func NewTenant() types.Tenant {
	return types.Tenant{CustomerID: uuid.New(), ApplicationID: uuid.New()}
}

func SeedNode(tb testing.TB, ctx context.Context, tx *gorm.DB, name string, parentID *uuid.UUID) *types.TaxonomyNode {
	tb.Helper()
	n := &types.TaxonomyNode{
		ID:       uuid.New(),
		Name:     name,
		ParentID: parentID,
	}
	if err := tx.WithContext(ctx).Create(n).Error; err != nil {
		tb.Fatalf("seed node: %v", err)
	}
	return n
}

func SeedBinding(tb testing.TB, ctx context.Context, tx *gorm.DB, nodeID uuid.UUID, tenant types.Tenant) *types.TaxonomyBinding {
	tb.Helper()
	b := &types.TaxonomyBinding{
		ID:            uuid.New(),
		NodeID:        nodeID,
		CustomerID:    tenant.CustomerID,
		ApplicationID: tenant.ApplicationID,
		Active:        true,
	}
	if err := tx.WithContext(ctx).Create(b).Error; err != nil {
		tb.Fatalf("seed binding: %v", err)
	}
	return b
}
