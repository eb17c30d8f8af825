package coordinator

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/intentbase-backend/internal/clients/pinecone"
	"github.com/yungbote/intentbase-backend/internal/data/repos"
	"github.com/yungbote/intentbase-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/intentbase-backend/internal/pkg/errors"
	"github.com/yungbote/intentbase-backend/internal/pkg/logger"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/naming"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/record"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/tags"
	"github.com/yungbote/intentbase-backend/internal/types"
)

// patchWorkers bounds the rename/delete cascade fan-out against the vector
// store. Per-record patches are idempotent, so a partial cascade is safe to
// re-run.
const patchWorkers = 8

// Coordinator owns taxonomy-node lifecycle: create, rename and delete, with
// the cascading tag rewrites and record cleanup each implies in the vector
// store. Vector writes always run before the relational rows are touched, so
// a crash leaves extra tagged records ahead of the counters rather than
// counters promising records that were never written.
type Coordinator struct {
	log      *logger.Logger
	store    pinecone.VectorStore
	nodes    repos.TaxonomyNodeRepo
	bindings repos.TaxonomyBindingRepo
}

func New(log *logger.Logger, store pinecone.VectorStore, nodes repos.TaxonomyNodeRepo, bindings repos.TaxonomyBindingRepo) *Coordinator {
	return &Coordinator{
		log:      log.With("service", "TaxonomyCoordinator"),
		store:    store,
		nodes:    nodes,
		bindings: bindings,
	}
}

// Create allocates (or finds) the node for (name, parent) and creates the
// tenant's binding with a zero phrase counter. The parent, when named, must
// already be bound for the tenant.
func (c *Coordinator) Create(dbc dbctx.Context, tenant types.Tenant, name string, parentName *string, description string) (*types.TaxonomyBinding, error) {
	name = strings.TrimSpace(name)
	if !naming.IsValidName(name) {
		return nil, apperrors.Validationf("invalid taxonomy name %q", name)
	}

	var parentID *uuid.UUID
	if parentName != nil {
		parent, _, err := c.resolveBound(dbc, tenant, *parentName, nil)
		if err != nil {
			return nil, err
		}
		parentID = &parent.ID
	}

	node, err := c.findOrCreateNode(dbc, name, parentID)
	if err != nil {
		return nil, err
	}

	existing, err := c.bindings.GetByNodeAndTenant(dbc, node.ID, tenant)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Active {
		return nil, apperrors.Duplicatef("%q already exists in scope", name)
	}

	binding := &types.TaxonomyBinding{
		NodeID:        node.ID,
		CustomerID:    tenant.CustomerID,
		ApplicationID: tenant.ApplicationID,
		Description:   strings.TrimSpace(description),
	}
	if err := c.bindings.Create(dbc, binding); err != nil {
		return nil, err
	}
	binding.Node = node
	return binding, nil
}

// Rename rewrites every record carrying the node's tag to the new name via
// in-place tag substitution (same id, same embedding, never delete+reinsert)
// and then renames the relational node. For a parent, the children's
// SUBINTENT tags are rewritten in the same pass. Counters are untouched:
// the tag-set cardinality does not change.
//
// Node rows are shared across tenants, so the row is only renamed in place
// when the caller is its sole reference. Otherwise the caller's binding is
// split onto a fresh node and the shared row keeps its name for everyone
// else.
func (c *Coordinator) Rename(ctx context.Context, dbc dbctx.Context, tenant types.Tenant, namespace, oldName string, parentName *string, newName string) error {
	newName = strings.TrimSpace(newName)
	if !naming.IsValidName(newName) {
		return apperrors.Validationf("invalid taxonomy name %q", newName)
	}

	node, binding, err := c.resolveBound(dbc, tenant, oldName, parentName)
	if err != nil {
		return err
	}

	if clash, err := c.nodes.GetByNameInScope(dbc, newName, node.ParentID); err != nil {
		return err
	} else if clash != nil && clash.ID != node.ID {
		if b, err := c.bindings.GetByNodeAndTenant(dbc, clash.ID, tenant); err != nil {
			return err
		} else if b != nil && b.Active {
			return apperrors.Duplicatef("%q already exists in scope", newName)
		}
	}

	oldTag, newTag := c.tagPair(node, parentName, oldName, newName)
	matches, err := c.store.FetchByFilter(ctx, namespace, map[string]any{oldTag.String(): true})
	if err != nil {
		return apperrors.ExternalStore("fetch by tag", err)
	}

	if err := c.forEachRecord(ctx, matches, func(m pinecone.VectorMatch) error {
		rewritten := rewriteTags(m.Metadata, oldTag, newTag)
		return c.store.Upsert(ctx, namespace, []pinecone.Vector{{
			ID:       m.ID,
			Values:   m.Values,
			Metadata: rewritten,
		}})
	}); err != nil {
		return apperrors.ExternalStore("rewrite tags", err)
	}

	refs, err := c.bindings.CountActiveByNode(dbc, node.ID)
	if err != nil {
		return err
	}
	if refs > 1 {
		return c.splitRename(dbc, tenant, node, binding, newName)
	}
	return c.nodes.Rename(dbc, node.ID, newName)
}

// splitRename detaches the renaming tenant from a shared node: its binding
// moves onto a node carrying the new name, and for a root rename the
// tenant's child bindings move onto nodes under the new root. The shared
// row and every other tenant's tags stay exactly as they were.
func (c *Coordinator) splitRename(dbc dbctx.Context, tenant types.Tenant, node *types.TaxonomyNode, binding *types.TaxonomyBinding, newName string) error {
	fresh, err := c.findOrCreateNode(dbc, newName, node.ParentID)
	if err != nil {
		return err
	}
	if err := c.bindings.Repoint(dbc, binding.ID, fresh.ID); err != nil {
		return err
	}

	children, err := c.nodes.ChildrenOf(dbc, node.ID)
	if err != nil {
		return err
	}
	for _, child := range children {
		childBinding, err := c.bindings.GetByNodeAndTenant(dbc, child.ID, tenant)
		if err != nil {
			return err
		}
		if childBinding == nil || !childBinding.Active {
			continue
		}
		moved, err := c.findOrCreateNode(dbc, child.Name, &fresh.ID)
		if err != nil {
			return err
		}
		if err := c.bindings.Repoint(dbc, childBinding.ID, moved.ID); err != nil {
			return err
		}
		left, err := c.bindings.CountActiveByNode(dbc, child.ID)
		if err != nil {
			return err
		}
		if left == 0 {
			if err := c.nodes.DeleteByIDs(dbc, []uuid.UUID{child.ID}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Coordinator) findOrCreateNode(dbc dbctx.Context, name string, parentID *uuid.UUID) (*types.TaxonomyNode, error) {
	node, err := c.nodes.GetByNameInScope(dbc, name, parentID)
	if err != nil {
		return nil, err
	}
	if node != nil {
		return node, nil
	}
	node = &types.TaxonomyNode{Name: name, ParentID: parentID}
	if err := c.nodes.Create(dbc, node); err != nil {
		return nil, err
	}
	return node, nil
}

// Delete removes the tenant's binding for the node, cascading to child
// bindings first, and cleans the node's tag off every record. A record whose
// last tag goes away is deleted outright rather than left tag-less. The
// relational node row itself only goes away once no tenant references it.
func (c *Coordinator) Delete(ctx context.Context, dbc dbctx.Context, tenant types.Tenant, namespace, name string, parentName *string) error {
	node, binding, err := c.resolveBound(dbc, tenant, name, parentName)
	if err != nil {
		return err
	}

	if parentName == nil {
		children, err := c.nodes.ChildrenOf(dbc, node.ID)
		if err != nil {
			return err
		}
		for _, child := range children {
			childBinding, err := c.bindings.GetByNodeAndTenant(dbc, child.ID, tenant)
			if err != nil {
				return err
			}
			if childBinding == nil || !childBinding.Active {
				continue
			}
			if err := c.deleteOne(ctx, dbc, namespace, tags.Child(node.Name, child.Name), child, childBinding); err != nil {
				return err
			}
		}
	}

	tag := tags.Root(node.Name)
	if parentName != nil {
		tag = tags.Child(*parentName, node.Name)
	}
	return c.deleteOne(ctx, dbc, namespace, tag, node, binding)
}

func (c *Coordinator) deleteOne(ctx context.Context, dbc dbctx.Context, namespace string, tag tags.Key, node *types.TaxonomyNode, binding *types.TaxonomyBinding) error {
	matches, err := c.store.FetchByFilter(ctx, namespace, map[string]any{tag.String(): true})
	if err != nil {
		return apperrors.ExternalStore("fetch by tag", err)
	}

	if err := c.forEachRecord(ctx, matches, func(m pinecone.VectorMatch) error {
		stripped, _, remaining := record.StripTags(m.Metadata, []tags.Key{tag})
		if remaining == 0 {
			return c.store.DeleteIDs(ctx, namespace, []string{m.ID})
		}
		return c.store.Upsert(ctx, namespace, []pinecone.Vector{{
			ID:       m.ID,
			Values:   m.Values,
			Metadata: stripped,
		}})
	}); err != nil {
		return apperrors.ExternalStore("strip tag", err)
	}

	if err := c.bindings.DeleteByIDs(dbc, []uuid.UUID{binding.ID}); err != nil {
		return err
	}
	refs, err := c.bindings.CountActiveByNode(dbc, node.ID)
	if err != nil {
		return err
	}
	if refs == 0 {
		return c.nodes.DeleteByIDs(dbc, []uuid.UUID{node.ID})
	}
	return nil
}

// resolveBound looks a node up by name within its parent scope and requires
// the tenant to hold an active binding on it.
func (c *Coordinator) resolveBound(dbc dbctx.Context, tenant types.Tenant, name string, parentName *string) (*types.TaxonomyNode, *types.TaxonomyBinding, error) {
	var parentID *uuid.UUID
	if parentName != nil {
		parent, err := c.nodes.GetByNameInScope(dbc, *parentName, nil)
		if err != nil {
			return nil, nil, err
		}
		if parent == nil {
			return nil, nil, apperrors.NotFoundf("parent %q", *parentName)
		}
		parentID = &parent.ID
	}
	node, err := c.nodes.GetByNameInScope(dbc, name, parentID)
	if err != nil {
		return nil, nil, err
	}
	if node == nil {
		return nil, nil, apperrors.NotFoundf("taxonomy node %q", name)
	}
	binding, err := c.bindings.GetByNodeAndTenant(dbc, node.ID, tenant)
	if err != nil {
		return nil, nil, err
	}
	if binding == nil || !binding.Active {
		return nil, nil, apperrors.NotFoundf("taxonomy node %q not bound for tenant", name)
	}
	return node, binding, nil
}

func (c *Coordinator) tagPair(node *types.TaxonomyNode, parentName *string, oldName, newName string) (tags.Key, tags.Key) {
	if parentName != nil {
		return tags.Child(*parentName, oldName), tags.Child(*parentName, newName)
	}
	return tags.Root(oldName), tags.Root(newName)
}

func (c *Coordinator) forEachRecord(ctx context.Context, matches []pinecone.VectorMatch, fn func(pinecone.VectorMatch) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(patchWorkers)
	for _, m := range matches {
		m := m
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			return fn(m)
		})
	}
	return g.Wait()
}

// rewriteTags substitutes the renamed node's tag key for its successor. For
// a root rename it also rewrites the parent segment of every child key under
// the old name. Idempotent: re-running on an already-renamed record changes
// nothing.
func rewriteTags(meta map[string]any, oldTag, newTag tags.Key) map[string]any {
	oldName := oldTag.Name()
	newName := newTag.Name()
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		key, ok := tags.Parse(k)
		if !ok {
			out[k] = v
			continue
		}
		switch {
		case key == oldTag:
			out[newTag.String()] = v
		case oldTag.IsRoot() && key.IsChild() && key.ParentName() == oldName:
			out[tags.Child(newName, key.Name()).String()] = v
		default:
			out[k] = v
		}
	}
	return out
}
