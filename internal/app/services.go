package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/intentbase-backend/internal/data/repos"
	"github.com/yungbote/intentbase-backend/internal/pkg/logger"
	"github.com/yungbote/intentbase-backend/internal/services"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/coordinator"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/engine"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/match"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/reconcile"
)

type Services struct {
	Taxonomy services.TaxonomyService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet repos.Set, clients Clients) Services {
	log.Info("Wiring services...")

	matcher := match.New(log, clients.OpenaiClient, clients.VectorStore, match.Config{
		TopK:     cfg.MatchTopK,
		MinScore: cfg.MatchMinScore,
	})
	eng := engine.New(log, matcher, clients.VectorStore)
	coord := coordinator.New(log, clients.VectorStore, reposet.TaxonomyNodes, reposet.TaxonomyBindings)
	reconciler := reconcile.New(log, cfg.SnapshotLimits, coord, eng, clients.VectorStore, reposet.TaxonomyBindings)

	return Services{
		Taxonomy: services.NewTaxonomyService(db, log, reposet, coord, eng, reconciler, clients.Leases),
	}
}
