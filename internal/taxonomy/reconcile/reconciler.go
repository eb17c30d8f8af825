package reconcile

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/intentbase-backend/internal/clients/pinecone"
	"github.com/yungbote/intentbase-backend/internal/data/repos"
	"github.com/yungbote/intentbase-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/intentbase-backend/internal/pkg/errors"
	"github.com/yungbote/intentbase-backend/internal/pkg/logger"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/coordinator"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/engine"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/record"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/tags"
	"github.com/yungbote/intentbase-backend/internal/types"
)

// Result summarizes one snapshot replay. Deltas carries the phrase-counter
// adjustments for bindings that survive the replay; bindings deleted by the
// replay need no adjustment because their rows are gone.
type Result struct {
	Created    []string
	Updated    []string
	Deleted    []string
	Inserted   int
	Merged     int
	Duplicates []string
	Deltas     engine.Deltas
}

// Reconciler replays a full snapshot against a tenant's current taxonomy:
// missing intents are created, present ones have their description and
// phrase list overwritten, and intents absent from the snapshot are deleted
// with their cascade. Phrase lists use full overwrite, not incremental diff;
// diffing free text against itself is not attempted.
type Reconciler struct {
	log      *logger.Logger
	limits   Limits
	coord    *coordinator.Coordinator
	engine   *engine.Engine
	store    pinecone.VectorStore
	bindings repos.TaxonomyBindingRepo
}

func New(log *logger.Logger, limits Limits, coord *coordinator.Coordinator, eng *engine.Engine, store pinecone.VectorStore, bindings repos.TaxonomyBindingRepo) *Reconciler {
	return &Reconciler{
		log:      log.With("service", "BulkReconciler"),
		limits:   limits,
		coord:    coord,
		engine:   eng,
		store:    store,
		bindings: bindings,
	}
}

// Reconcile validates the whole snapshot before touching anything, then
// replays it sheet by sheet. Validation is all-or-nothing; the replay itself
// is not, but every step is idempotent so a failed run can simply be re-run.
func (r *Reconciler) Reconcile(ctx context.Context, dbc dbctx.Context, tenant types.Tenant, namespace string, snap Snapshot) (*Result, error) {
	if err := Validate(snap, r.limits); err != nil {
		return nil, err
	}

	existing, err := r.bindings.GetActiveByTenant(dbc, tenant)
	if err != nil {
		return nil, err
	}
	remaining := map[string]*types.TaxonomyBinding{}
	for _, b := range existing {
		if b.Node == nil || b.Node.ParentID != nil {
			continue
		}
		remaining[tags.Normalize(b.Node.Name)] = b
	}

	res := &Result{Deltas: engine.Deltas{}}
	for _, sheet := range snap.Sheets {
		name := strings.TrimSpace(sheet.Name)
		key := tags.Normalize(name)

		var bindingID uuid.UUID
		if binding, ok := remaining[key]; ok {
			delete(remaining, key)
			bindingID = binding.ID
			if strings.TrimSpace(sheet.Description) != binding.Description {
				if err := r.bindings.UpdateDescription(dbc, binding.ID, sheet.Description); err != nil {
					return nil, err
				}
			}
			deltas, err := r.clearIntentTags(ctx, namespace, name)
			if err != nil {
				return nil, err
			}
			mergeDeltas(res.Deltas, deltas)
			res.Updated = append(res.Updated, name)
		} else {
			created, err := r.coord.Create(dbc, tenant, name, nil, sheet.Description)
			if err != nil {
				return nil, err
			}
			bindingID = created.ID
			res.Created = append(res.Created, name)
		}

		up, err := r.engine.UpsertBatch(ctx, namespace, &name, nil, sheet.Phrases)
		if err != nil {
			return nil, err
		}
		res.Inserted += up.Inserted
		res.Merged += up.Merged
		res.Duplicates = append(res.Duplicates, up.Duplicates...)
		mergeDeltas(res.Deltas, up.Deltas)

		if err := r.bindings.UpdateStats(dbc, bindingID, map[string]any{
			"last_reconcile_at": time.Now().UTC().Format(time.RFC3339),
			"inserted":          up.Inserted,
			"merged":            up.Merged,
			"duplicates":        len(up.Duplicates),
		}); err != nil {
			return nil, err
		}
	}

	for _, binding := range remaining {
		name := binding.Node.Name
		if err := r.coord.Delete(ctx, dbc, tenant, namespace, name, nil); err != nil {
			return nil, err
		}
		// The binding rows are gone; drop any deltas accumulated for the
		// deleted subtree so the caller does not update missing rows.
		for k := range res.Deltas {
			if k.IsRoot() && k.Name() == tags.Normalize(name) {
				delete(res.Deltas, k)
			}
			if k.IsChild() && k.ParentName() == tags.Normalize(name) {
				delete(res.Deltas, k)
			}
		}
		res.Deleted = append(res.Deleted, name)
	}
	return res, nil
}

// clearIntentTags strips the intent's root tag and every child tag beneath
// it from all records carrying the root tag, deleting records left tag-less.
// The sheet's phrase list is then re-upserted by the caller, which makes the
// overwrite idempotent end to end.
func (r *Reconciler) clearIntentTags(ctx context.Context, namespace, name string) (engine.Deltas, error) {
	root := tags.Root(name)
	lower := tags.Normalize(name)

	matches, err := r.store.FetchByFilter(ctx, namespace, map[string]any{root.String(): true})
	if err != nil {
		return nil, apperrors.ExternalStore("fetch by tag", err)
	}

	deltas := engine.Deltas{}
	for _, m := range matches {
		var remove []tags.Key
		for _, k := range tags.Of(m.Metadata) {
			if k == root || (k.IsChild() && k.ParentName() == lower) {
				remove = append(remove, k)
			}
		}
		stripped, removed, left := record.StripTags(m.Metadata, remove)
		for _, k := range removed {
			deltas[k]--
		}
		if left == 0 {
			if err := r.store.DeleteIDs(ctx, namespace, []string{m.ID}); err != nil {
				return nil, apperrors.ExternalStore("delete", err)
			}
			continue
		}
		if err := r.store.Upsert(ctx, namespace, []pinecone.Vector{{
			ID:       m.ID,
			Values:   m.Values,
			Metadata: stripped,
		}}); err != nil {
			return nil, apperrors.ExternalStore("upsert", err)
		}
	}
	return deltas, nil
}

func mergeDeltas(dst, src engine.Deltas) {
	for k, v := range src {
		dst[k] += v
	}
}
