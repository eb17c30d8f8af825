package taxonomy

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/intentbase-backend/internal/pkg/dbctx"
	"github.com/yungbote/intentbase-backend/internal/pkg/logger"
	"github.com/yungbote/intentbase-backend/internal/types"
)

type BindingRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.TaxonomyBinding, error)
	GetByNodeAndTenant(dbc dbctx.Context, nodeID uuid.UUID, tenant types.Tenant) (*types.TaxonomyBinding, error)
	// GetActiveByTenant returns every active binding for the tenant with
	// Node preloaded, for reconciliation and taxonomy listings.
	GetActiveByTenant(dbc dbctx.Context, tenant types.Tenant) ([]*types.TaxonomyBinding, error)
	Create(dbc dbctx.Context, binding *types.TaxonomyBinding) error
	UpdateDescription(dbc dbctx.Context, id uuid.UUID, description string) error
	// Repoint moves a binding onto another node row. Used when a rename
	// must split a node shared with other tenants.
	Repoint(dbc dbctx.Context, id uuid.UUID, nodeID uuid.UUID) error
	// UpdateStats replaces the binding's freeform stats JSON.
	UpdateStats(dbc dbctx.Context, id uuid.UUID, stats map[string]any) error
	// ApplyPhraseCountDeltas adjusts phrase counters with one
	// "phrase_count = phrase_count + delta" statement per binding, inside
	// the caller's transaction. Counters are never recomputed by scan.
	ApplyPhraseCountDeltas(dbc dbctx.Context, deltas map[uuid.UUID]int) error
	// CountActiveByNode reports how many tenants still reference a node;
	// the node row itself is only deleted when this drops to zero.
	CountActiveByNode(dbc dbctx.Context, nodeID uuid.UUID) (int64, error)
	DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
}

type bindingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBindingRepo(db *gorm.DB, baseLog *logger.Logger) BindingRepo {
	return &bindingRepo{db: db, log: baseLog.With("repo", "TaxonomyBindingRepo")}
}

func (r *bindingRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.TaxonomyBinding, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.TaxonomyBinding
	if err := t.WithContext(dbc.Ctx).
		Preload("Node").
		Where("id = ?", id).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *bindingRepo) GetByNodeAndTenant(dbc dbctx.Context, nodeID uuid.UUID, tenant types.Tenant) (*types.TaxonomyBinding, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if nodeID == uuid.Nil || !tenant.Valid() {
		return nil, nil
	}
	var row types.TaxonomyBinding
	if err := t.WithContext(dbc.Ctx).
		Preload("Node").
		Where("node_id = ? AND customer_id = ? AND application_id = ?",
			nodeID, tenant.CustomerID, tenant.ApplicationID).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *bindingRepo) GetActiveByTenant(dbc dbctx.Context, tenant types.Tenant) ([]*types.TaxonomyBinding, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.TaxonomyBinding
	if !tenant.Valid() {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Preload("Node").
		Where("customer_id = ? AND application_id = ? AND active = true",
			tenant.CustomerID, tenant.ApplicationID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *bindingRepo) Create(dbc dbctx.Context, binding *types.TaxonomyBinding) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if binding == nil || binding.NodeID == uuid.Nil {
		return nil
	}
	if binding.ID == uuid.Nil {
		binding.ID = uuid.New()
	}
	now := time.Now().UTC()
	if binding.CreatedAt.IsZero() {
		binding.CreatedAt = now
	}
	binding.UpdatedAt = now
	binding.Active = true
	return t.WithContext(dbc.Ctx).Create(binding).Error
}

func (r *bindingRepo) UpdateDescription(dbc dbctx.Context, id uuid.UUID, description string) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.TaxonomyBinding{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"description": strings.TrimSpace(description),
			"updated_at":  time.Now().UTC(),
		}).Error
}

func (r *bindingRepo) Repoint(dbc dbctx.Context, id uuid.UUID, nodeID uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil || nodeID == uuid.Nil {
		return nil
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.TaxonomyBinding{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"node_id":    nodeID,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *bindingRepo) UpdateStats(dbc dbctx.Context, id uuid.UUID, stats map[string]any) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil || stats == nil {
		return nil
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.TaxonomyBinding{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"stats":      datatypes.JSON(raw),
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *bindingRepo) ApplyPhraseCountDeltas(dbc dbctx.Context, deltas map[uuid.UUID]int) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	now := time.Now().UTC()
	for id, delta := range deltas {
		if id == uuid.Nil || delta == 0 {
			continue
		}
		if err := t.WithContext(dbc.Ctx).
			Model(&types.TaxonomyBinding{}).
			Where("id = ?", id).
			Updates(map[string]any{
				// GREATEST guards against drift below zero under the
				// accepted weak-consistency window for concurrent
				// writers to the same node.
				"phrase_count": gorm.Expr("GREATEST(phrase_count + ?, 0)", delta),
				"updated_at":   now,
			}).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *bindingRepo) CountActiveByNode(dbc dbctx.Context, nodeID uuid.UUID) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if nodeID == uuid.Nil {
		return 0, nil
	}
	var n int64
	if err := t.WithContext(dbc.Ctx).
		Model(&types.TaxonomyBinding{}).
		Where("node_id = ? AND active = true", nodeID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *bindingRepo) DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	if err := t.WithContext(dbc.Ctx).
		Model(&types.TaxonomyBinding{}).
		Where("id IN ?", ids).
		Update("active", false).Error; err != nil {
		return err
	}
	return t.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Delete(&types.TaxonomyBinding{}).Error
}
