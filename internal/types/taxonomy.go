package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TaxonomyNode is one entry of the two-level classification taxonomy. A nil
// ParentID marks a root node (intent); a set ParentID marks a child node
// (sub-intent) one level below its parent. Node names are unique within their
// parent scope, case-insensitively; the repo enforces that because Postgres
// unique indexes are case-sensitive.
type TaxonomyNode struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	Name string `gorm:"column:name;not null;index" json:"name"`

	ParentID *uuid.UUID    `gorm:"type:uuid;index:idx_taxonomy_node_parent" json:"parent_id,omitempty"`
	Parent   *TaxonomyNode `gorm:"constraint:OnDelete:CASCADE;foreignKey:ParentID;references:ID" json:"parent,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (TaxonomyNode) TableName() string { return "taxonomy_node" }

// TaxonomyBinding is the per-tenant occurrence of a TaxonomyNode. PhraseCount
// is owned exclusively by the sync engine: it is adjusted through
// ApplyPhraseCountDeltas and never recomputed by a full vector-store scan.
type TaxonomyBinding struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	NodeID uuid.UUID     `gorm:"type:uuid;not null;index:idx_taxonomy_binding_scope,unique,priority:1" json:"node_id"`
	Node   *TaxonomyNode `gorm:"constraint:OnDelete:CASCADE;foreignKey:NodeID;references:ID" json:"node,omitempty"`

	CustomerID    uuid.UUID `gorm:"type:uuid;not null;index:idx_taxonomy_binding_scope,unique,priority:2;index:idx_taxonomy_binding_tenant,priority:1" json:"customer_id"`
	ApplicationID uuid.UUID `gorm:"type:uuid;not null;index:idx_taxonomy_binding_scope,unique,priority:3;index:idx_taxonomy_binding_tenant,priority:2" json:"application_id"`

	Description string `gorm:"column:description;type:text" json:"description"`

	PhraseCount int  `gorm:"column:phrase_count;not null;default:0" json:"phrase_count"`
	Active      bool `gorm:"column:active;not null;default:true" json:"active"`

	// Stats is freeform JSON for observability (last reconcile, import source).
	Stats datatypes.JSON `gorm:"column:stats;type:jsonb" json:"stats,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (TaxonomyBinding) TableName() string { return "taxonomy_binding" }

// Tenant identifies one customer+application pair. Every vector-store
// namespace and every binding row is scoped to exactly one tenant.
type Tenant struct {
	CustomerID    uuid.UUID `json:"customer_id"`
	ApplicationID uuid.UUID `json:"application_id"`
}

func (t Tenant) Namespace() string {
	return t.CustomerID.String() + ":" + t.ApplicationID.String()
}

func (t Tenant) Valid() bool {
	return t.CustomerID != uuid.Nil && t.ApplicationID != uuid.Nil
}
