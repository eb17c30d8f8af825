package taxonomy

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/intentbase-backend/internal/pkg/dbctx"
	"github.com/yungbote/intentbase-backend/internal/pkg/logger"
	"github.com/yungbote/intentbase-backend/internal/types"
)

type NodeRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.TaxonomyNode, error)
	// GetByNameInScope resolves a node by case-insensitive name within its
	// parent scope (nil parentID = root scope).
	GetByNameInScope(dbc dbctx.Context, name string, parentID *uuid.UUID) (*types.TaxonomyNode, error)
	ChildrenOf(dbc dbctx.Context, parentID uuid.UUID) ([]*types.TaxonomyNode, error)
	Create(dbc dbctx.Context, node *types.TaxonomyNode) error
	Rename(dbc dbctx.Context, id uuid.UUID, newName string) error
	DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
}

type nodeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNodeRepo(db *gorm.DB, baseLog *logger.Logger) NodeRepo {
	return &nodeRepo{db: db, log: baseLog.With("repo", "TaxonomyNodeRepo")}
}

func (r *nodeRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.TaxonomyNode, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.TaxonomyNode
	if err := t.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *nodeRepo) GetByNameInScope(dbc dbctx.Context, name string, parentID *uuid.UUID) (*types.TaxonomyNode, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	q := t.WithContext(dbc.Ctx).Where("LOWER(name) = LOWER(?)", name)
	if parentID == nil {
		q = q.Where("parent_id IS NULL")
	} else {
		q = q.Where("parent_id = ?", *parentID)
	}
	var row types.TaxonomyNode
	if err := q.Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *nodeRepo) ChildrenOf(dbc dbctx.Context, parentID uuid.UUID) ([]*types.TaxonomyNode, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.TaxonomyNode
	if parentID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("parent_id = ?", parentID).
		Order("name ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *nodeRepo) Create(dbc dbctx.Context, node *types.TaxonomyNode) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if node == nil || strings.TrimSpace(node.Name) == "" {
		return nil
	}
	if node.ID == uuid.Nil {
		node.ID = uuid.New()
	}
	now := time.Now().UTC()
	if node.CreatedAt.IsZero() {
		node.CreatedAt = now
	}
	node.UpdatedAt = now
	return t.WithContext(dbc.Ctx).Create(node).Error
}

func (r *nodeRepo) Rename(dbc dbctx.Context, id uuid.UUID, newName string) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	newName = strings.TrimSpace(newName)
	if id == uuid.Nil || newName == "" {
		return nil
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.TaxonomyNode{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"name":       newName,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *nodeRepo) DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return t.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Delete(&types.TaxonomyNode{}).Error
}
