package app

import (
	"time"

	"github.com/yungbote/intentbase-backend/internal/pkg/logger"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/reconcile"
	"github.com/yungbote/intentbase-backend/internal/utils"
)

type Config struct {
	MatchTopK         int
	MatchMinScore     float64
	SnapshotLimits    reconcile.Limits
	ReconcileLeaseTTL time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		MatchTopK:         utils.GetEnvAsInt("TAXONOMY_MATCH_TOP_K", 5, log),
		MatchMinScore:     utils.GetEnvAsFloat("TAXONOMY_MATCH_MIN_SCORE", 0.95, log),
		SnapshotLimits:    reconcile.LimitsFromEnv(log),
		ReconcileLeaseTTL: time.Duration(utils.GetEnvAsInt("TAXONOMY_RECONCILE_LEASE_SECONDS", 300, log)) * time.Second,
	}
}
