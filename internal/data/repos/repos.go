package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/intentbase-backend/internal/data/repos/taxonomy"
	"github.com/yungbote/intentbase-backend/internal/pkg/logger"
)

type TaxonomyNodeRepo = taxonomy.NodeRepo
type TaxonomyBindingRepo = taxonomy.BindingRepo

type Set struct {
	TaxonomyNodes    TaxonomyNodeRepo
	TaxonomyBindings TaxonomyBindingRepo
}

func NewSet(db *gorm.DB, log *logger.Logger) Set {
	return Set{
		TaxonomyNodes:    taxonomy.NewNodeRepo(db, log),
		TaxonomyBindings: taxonomy.NewBindingRepo(db, log),
	}
}
