package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/intentbase-backend/internal/clients/redis"
	"github.com/yungbote/intentbase-backend/internal/data/repos"
	"github.com/yungbote/intentbase-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/intentbase-backend/internal/pkg/errors"
	"github.com/yungbote/intentbase-backend/internal/pkg/logger"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/coordinator"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/engine"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/reconcile"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/tags"
	"github.com/yungbote/intentbase-backend/internal/types"
	"github.com/yungbote/intentbase-backend/internal/utils"
)

// TaxonomyService is the transactional facade over the coordinator, the
// upsert engine and the bulk reconciler. Every method runs its relational
// work in one transaction that commits only after the corresponding vector
// writes have succeeded; the reverse order is never used.
type TaxonomyService interface {
	CreateNode(ctx context.Context, tenant types.Tenant, name string, parent *string, description string) (*types.TaxonomyBinding, error)
	RenameNode(ctx context.Context, tenant types.Tenant, name string, parent *string, newName string) error
	DeleteNode(ctx context.Context, tenant types.Tenant, name string, parent *string) error
	ListTaxonomy(ctx context.Context, tenant types.Tenant) ([]*IntentView, error)

	UpsertPhrases(ctx context.Context, tenant types.Tenant, parent *string, children []string, phrases []string) (*engine.UpsertResult, error)
	EditPhrase(ctx context.Context, tenant types.Tenant, phraseID string, parent *string, children []string) (*engine.EditResult, error)
	DeletePhrase(ctx context.Context, tenant types.Tenant, phraseID string) error

	ReconcileSnapshot(ctx context.Context, tenant types.Tenant, snap reconcile.Snapshot) (*reconcile.Result, error)
}

// IntentView is the listing shape: one root binding with its children.
type IntentView struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	PhraseCount int             `json:"phrase_count"`
	SubIntents  []SubIntentView `json:"sub_intents"`
}

type SubIntentView struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	PhraseCount int    `json:"phrase_count"`
}

type taxonomyService struct {
	db         *gorm.DB
	log        *logger.Logger
	nodes      repos.TaxonomyNodeRepo
	bindings   repos.TaxonomyBindingRepo
	coord      *coordinator.Coordinator
	engine     *engine.Engine
	reconciler *reconcile.Reconciler
	leases     redis.LeaseStore
	leaseTTL   time.Duration
}

func NewTaxonomyService(
	db *gorm.DB,
	log *logger.Logger,
	set repos.Set,
	coord *coordinator.Coordinator,
	eng *engine.Engine,
	reconciler *reconcile.Reconciler,
	leases redis.LeaseStore,
) TaxonomyService {
	serviceLog := log.With("service", "TaxonomyService")
	return &taxonomyService{
		db:         db,
		log:        serviceLog,
		nodes:      set.TaxonomyNodes,
		bindings:   set.TaxonomyBindings,
		coord:      coord,
		engine:     eng,
		reconciler: reconciler,
		leases:     leases,
		leaseTTL:   time.Duration(utils.GetEnvAsInt("TAXONOMY_RECONCILE_LEASE_SECONDS", 300, serviceLog)) * time.Second,
	}
}

// inTx runs fn inside one transaction with rollback on error. Vector-store
// writes issued by fn happen before the commit, which is the ordering the
// counters rely on.
func (s *taxonomyService) inTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	if err := fn(dbctx.WithTx(ctx, tx)); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

func (s *taxonomyService) CreateNode(ctx context.Context, tenant types.Tenant, name string, parent *string, description string) (*types.TaxonomyBinding, error) {
	if !tenant.Valid() {
		return nil, apperrors.Validationf("missing tenant")
	}
	var out *types.TaxonomyBinding
	err := s.inTx(ctx, func(dbc dbctx.Context) error {
		binding, err := s.coord.Create(dbc, tenant, name, parent, description)
		if err != nil {
			return err
		}
		out = binding
		return nil
	})
	return out, err
}

func (s *taxonomyService) RenameNode(ctx context.Context, tenant types.Tenant, name string, parent *string, newName string) error {
	if !tenant.Valid() {
		return apperrors.Validationf("missing tenant")
	}
	return s.inTx(ctx, func(dbc dbctx.Context) error {
		return s.coord.Rename(ctx, dbc, tenant, tenant.Namespace(), name, parent, newName)
	})
}

func (s *taxonomyService) DeleteNode(ctx context.Context, tenant types.Tenant, name string, parent *string) error {
	if !tenant.Valid() {
		return apperrors.Validationf("missing tenant")
	}
	return s.inTx(ctx, func(dbc dbctx.Context) error {
		return s.coord.Delete(ctx, dbc, tenant, tenant.Namespace(), name, parent)
	})
}

func (s *taxonomyService) ListTaxonomy(ctx context.Context, tenant types.Tenant) ([]*IntentView, error) {
	if !tenant.Valid() {
		return nil, apperrors.Validationf("missing tenant")
	}
	bindings, err := s.bindings.GetActiveByTenant(dbctx.New(ctx), tenant)
	if err != nil {
		return nil, err
	}

	roots := map[uuid.UUID]*IntentView{}
	var order []uuid.UUID
	for _, b := range bindings {
		if b.Node == nil || b.Node.ParentID != nil {
			continue
		}
		roots[b.NodeID] = &IntentView{
			Name:        b.Node.Name,
			Description: b.Description,
			PhraseCount: b.PhraseCount,
			SubIntents:  []SubIntentView{},
		}
		order = append(order, b.NodeID)
	}
	for _, b := range bindings {
		if b.Node == nil || b.Node.ParentID == nil {
			continue
		}
		root, ok := roots[*b.Node.ParentID]
		if !ok {
			continue
		}
		root.SubIntents = append(root.SubIntents, SubIntentView{
			Name:        b.Node.Name,
			Description: b.Description,
			PhraseCount: b.PhraseCount,
		})
	}

	out := make([]*IntentView, 0, len(order))
	for _, id := range order {
		out = append(out, roots[id])
	}
	return out, nil
}

func (s *taxonomyService) UpsertPhrases(ctx context.Context, tenant types.Tenant, parent *string, children []string, phrases []string) (*engine.UpsertResult, error) {
	if !tenant.Valid() {
		return nil, apperrors.Validationf("missing tenant")
	}

	// The target bindings must exist before anything is embedded or
	// written, so a typo never mints untracked tags.
	targetKeys := tags.Of(tags.Encode(parent, children))
	if _, err := s.bindingsForKeys(dbctx.New(ctx), tenant, targetKeys, false); err != nil {
		return nil, err
	}

	res, err := s.engine.UpsertBatch(ctx, tenant.Namespace(), parent, children, phrases)
	if err != nil {
		return nil, err
	}
	if err := s.applyDeltas(ctx, tenant, res.Deltas); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *taxonomyService) EditPhrase(ctx context.Context, tenant types.Tenant, phraseID string, parent *string, children []string) (*engine.EditResult, error) {
	if !tenant.Valid() {
		return nil, apperrors.Validationf("missing tenant")
	}
	targetKeys := tags.Of(tags.Encode(parent, children))
	if _, err := s.bindingsForKeys(dbctx.New(ctx), tenant, targetKeys, false); err != nil {
		return nil, err
	}

	res, err := s.engine.EditPhrase(ctx, tenant.Namespace(), phraseID, parent, children)
	if err != nil {
		return nil, err
	}
	if err := s.applyDeltas(ctx, tenant, res.Deltas); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *taxonomyService) DeletePhrase(ctx context.Context, tenant types.Tenant, phraseID string) error {
	if !tenant.Valid() {
		return apperrors.Validationf("missing tenant")
	}
	deltas, err := s.engine.DeletePhrase(ctx, tenant.Namespace(), phraseID)
	if err != nil {
		return err
	}
	return s.applyDeltas(ctx, tenant, deltas)
}

func (s *taxonomyService) ReconcileSnapshot(ctx context.Context, tenant types.Tenant, snap reconcile.Snapshot) (*reconcile.Result, error) {
	if !tenant.Valid() {
		return nil, apperrors.Validationf("missing tenant")
	}

	// Without redis the deployment is single-instance and the lease is
	// unnecessary.
	if s.leases != nil {
		release, ok, err := s.leases.Acquire(ctx, "reconcile:"+tenant.Namespace(), s.leaseTTL)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperrors.Conflictf("reconciliation already running for tenant")
		}
		defer release()
	}

	var out *reconcile.Result
	err := s.inTx(ctx, func(dbc dbctx.Context) error {
		res, err := s.reconciler.Reconcile(ctx, dbc, tenant, tenant.Namespace(), snap)
		if err != nil {
			return err
		}
		ids, err := s.deltasToBindingIDs(dbc, tenant, res.Deltas)
		if err != nil {
			return err
		}
		if err := s.bindings.ApplyPhraseCountDeltas(dbc, ids); err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

// applyDeltas maps tag-keyed counter deltas onto binding rows and applies
// them in one short transaction, after the vector writes that produced them.
func (s *taxonomyService) applyDeltas(ctx context.Context, tenant types.Tenant, deltas engine.Deltas) error {
	if len(deltas) == 0 {
		return nil
	}
	return s.inTx(ctx, func(dbc dbctx.Context) error {
		ids, err := s.deltasToBindingIDs(dbc, tenant, deltas)
		if err != nil {
			return err
		}
		return s.bindings.ApplyPhraseCountDeltas(dbc, ids)
	})
}

func (s *taxonomyService) deltasToBindingIDs(dbc dbctx.Context, tenant types.Tenant, deltas engine.Deltas) (map[uuid.UUID]int, error) {
	keys := make([]tags.Key, 0, len(deltas))
	for k := range deltas {
		keys = append(keys, k)
	}
	found, err := s.bindingsForKeys(dbc, tenant, keys, true)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]int, len(found))
	for k, b := range found {
		out[b.ID] += deltas[k]
	}
	return out, nil
}

// bindingsForKeys resolves tag keys to the tenant's bindings. With tolerant
// set, keys with no live binding are skipped (a record can briefly carry a
// tag whose binding was deleted by a concurrent writer); otherwise a missing
// binding is a NotFound for the caller's target.
func (s *taxonomyService) bindingsForKeys(dbc dbctx.Context, tenant types.Tenant, keys []tags.Key, tolerant bool) (map[tags.Key]*types.TaxonomyBinding, error) {
	out := make(map[tags.Key]*types.TaxonomyBinding, len(keys))
	for _, key := range keys {
		node, err := s.resolveNode(dbc, key)
		if err != nil {
			return nil, err
		}
		if node == nil {
			if tolerant {
				s.log.Warn("No node for tag key, skipping counter", "key", key.String())
				continue
			}
			return nil, apperrors.NotFoundf("taxonomy node for %q", key.String())
		}
		binding, err := s.bindings.GetByNodeAndTenant(dbc, node.ID, tenant)
		if err != nil {
			return nil, err
		}
		if binding == nil || !binding.Active {
			if tolerant {
				continue
			}
			return nil, apperrors.NotFoundf("taxonomy node %q not bound for tenant", key.Name())
		}
		out[key] = binding
	}
	return out, nil
}

func (s *taxonomyService) resolveNode(dbc dbctx.Context, key tags.Key) (*types.TaxonomyNode, error) {
	if key.IsRoot() {
		return s.nodes.GetByNameInScope(dbc, key.Name(), nil)
	}
	parent, err := s.nodes.GetByNameInScope(dbc, key.ParentName(), nil)
	if err != nil || parent == nil {
		return nil, err
	}
	return s.nodes.GetByNameInScope(dbc, key.Name(), &parent.ID)
}
