package db

import (
	"fmt"

	"github.com/yungbote/intentbase-backend/internal/types"
)

// AutoMigrateAll creates/updates the relational schema. Child-before-parent
// ordering does not matter because FK constraints are disabled at migration
// time (see NewPostgresService).
func (s *PostgresService) AutoMigrateAll() error {
	models := []any{
		&types.TaxonomyNode{},
		&types.TaxonomyBinding{},
	}
	if err := s.db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	// Case-insensitive uniqueness for node names within a parent scope.
	stmts := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_taxonomy_node_parent_lower_name
		   ON taxonomy_node (COALESCE(parent_id, '00000000-0000-0000-0000-000000000000'::uuid), LOWER(name))
		   WHERE deleted_at IS NULL;`,
	}
	for _, stmt := range stmts {
		if err := s.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migrate index: %w", err)
		}
	}
	return nil
}
