package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/intentbase-backend/internal/clients/pinecone"
	"github.com/yungbote/intentbase-backend/internal/data/repos"
	"github.com/yungbote/intentbase-backend/internal/data/repos/testutil"
	"github.com/yungbote/intentbase-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/intentbase-backend/internal/pkg/errors"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/record"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/tags"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/taxotest"
)

const testNS = "cust:app"

func newCoordinator(t *testing.T) (*Coordinator, *taxotest.FakeVectorStore, dbctx.Context) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	tx := testutil.Tx(t, db)
	store := taxotest.NewFakeVectorStore()
	set := repos.NewSet(db, log)
	return New(log, store, set.TaxonomyNodes, set.TaxonomyBindings), store, dbctx.WithTx(context.Background(), tx)
}

func seedRecord(t *testing.T, store *taxotest.FakeVectorStore, id, text string, parent *string, children []string) {
	t.Helper()
	seedRecordNS(t, store, testNS, id, text, parent, children)
}

func seedRecordNS(t *testing.T, store *taxotest.FakeVectorStore, ns, id, text string, parent *string, children []string) {
	t.Helper()
	vec := []float32{1, 0, 0, 0, 0, 0, 0, 0}
	meta := record.NewMetadata(text, tags.Encode(parent, children), time.Now().UTC())
	if err := store.Upsert(context.Background(), ns, []pinecone.Vector{{ID: id, Values: vec, Metadata: meta}}); err != nil {
		t.Fatalf("seed record: %v", err)
	}
}

func ptr(s string) *string { return &s }

func TestCreateRootAndChild(t *testing.T) {
	c, _, dbc := newCoordinator(t)
	tenant := testutil.NewTenant()

	root, err := c.Create(dbc, tenant, "ORDER_STATUS", nil, "order lifecycle")
	if err != nil {
		t.Fatalf("create root: %v", err)
	}
	if root.PhraseCount != 0 || !root.Active {
		t.Fatalf("unexpected binding: %+v", root)
	}

	child, err := c.Create(dbc, tenant, "TRACK", ptr("ORDER_STATUS"), "")
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	if child.Node.ParentID == nil || *child.Node.ParentID != root.NodeID {
		t.Fatalf("child not parented: %+v", child.Node)
	}

	// Same name, same scope, same tenant: duplicate.
	if _, err := c.Create(dbc, tenant, "order_status", nil, ""); !errors.Is(err, apperrors.ErrDuplicateTaxonomy) {
		t.Fatalf("error = %v, want ErrDuplicateTaxonomy", err)
	}
}

func TestCreateValidation(t *testing.T) {
	c, _, dbc := newCoordinator(t)
	tenant := testutil.NewTenant()

	if _, err := c.Create(dbc, tenant, "a", nil, ""); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("short name error = %v, want ErrValidation", err)
	}
	if _, err := c.Create(dbc, tenant, "bad--name", nil, ""); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("doubled separator error = %v, want ErrValidation", err)
	}
	if _, err := c.Create(dbc, tenant, "TRACK", ptr("NOPE"), ""); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("missing parent error = %v, want ErrNotFound", err)
	}
}

func TestCreateSharedNodeAcrossTenants(t *testing.T) {
	c, _, dbc := newCoordinator(t)
	a := testutil.NewTenant()
	b := testutil.NewTenant()

	first, err := c.Create(dbc, a, "BILLING", nil, "")
	if err != nil {
		t.Fatalf("tenant a: %v", err)
	}
	second, err := c.Create(dbc, b, "BILLING", nil, "")
	if err != nil {
		t.Fatalf("tenant b: %v", err)
	}
	if first.NodeID != second.NodeID {
		t.Fatalf("tenants should share the node row: %s vs %s", first.NodeID, second.NodeID)
	}
}

func TestRenameSharedNodeSplitsPerTenant(t *testing.T) {
	c, store, dbc := newCoordinator(t)
	ctx := context.Background()
	a := testutil.NewTenant()
	b := testutil.NewTenant()
	nsA, nsB := a.Namespace(), b.Namespace()

	if _, err := c.Create(dbc, a, "BILLING", nil, ""); err != nil {
		t.Fatalf("tenant a root: %v", err)
	}
	shared, err := c.Create(dbc, b, "BILLING", nil, "")
	if err != nil {
		t.Fatalf("tenant b root: %v", err)
	}
	if _, err := c.Create(dbc, a, "REFUND", ptr("BILLING"), ""); err != nil {
		t.Fatalf("tenant a child: %v", err)
	}

	seedRecordNS(t, store, nsA, "pa", "refund my invoice", ptr("BILLING"), []string{"REFUND"})
	seedRecordNS(t, store, nsB, "pb", "question about my bill", ptr("BILLING"), nil)

	if err := c.Rename(ctx, dbc, a, nsA, "BILLING", nil, "PAYMENTS"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	// Tenant B keeps the shared row, its name and its tags.
	nodeB, _, err := c.resolveBound(dbc, b, "BILLING", nil)
	if err != nil {
		t.Fatalf("tenant b lost BILLING: %v", err)
	}
	if nodeB.ID != shared.NodeID {
		t.Fatalf("tenant b moved off the shared row: %s vs %s", nodeB.ID, shared.NodeID)
	}
	metaB := store.Records(nsB)["pb"]
	if metaB[tags.Root("BILLING").String()] != true {
		t.Fatalf("tenant b record lost its tag: %v", metaB)
	}
	if _, ok := metaB[tags.Root("PAYMENTS").String()]; ok {
		t.Fatalf("tenant b record picked up the rename: %v", metaB)
	}

	// Tenant A resolves the new name on a node of its own.
	nodeA, _, err := c.resolveBound(dbc, a, "PAYMENTS", nil)
	if err != nil {
		t.Fatalf("tenant a resolve PAYMENTS: %v", err)
	}
	if nodeA.ID == shared.NodeID {
		t.Fatalf("rename touched the shared row")
	}
	if _, _, err := c.resolveBound(dbc, a, "BILLING", nil); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("tenant a BILLING error = %v, want ErrNotFound", err)
	}

	// The child binding followed the split.
	child, _, err := c.resolveBound(dbc, a, "REFUND", ptr("PAYMENTS"))
	if err != nil {
		t.Fatalf("tenant a resolve REFUND: %v", err)
	}
	if child.ParentID == nil || *child.ParentID != nodeA.ID {
		t.Fatalf("child not reparented: %+v", child)
	}

	// Tenant A's record carries only the new tags.
	metaA := store.Records(nsA)["pa"]
	if metaA[tags.Root("PAYMENTS").String()] != true || metaA[tags.Child("PAYMENTS", "REFUND").String()] != true {
		t.Fatalf("tenant a record not rewritten: %v", metaA)
	}
	if _, ok := metaA[tags.Root("BILLING").String()]; ok {
		t.Fatalf("stale root tag survived: %v", metaA)
	}
	if _, ok := metaA[tags.Child("BILLING", "REFUND").String()]; ok {
		t.Fatalf("stale child tag survived: %v", metaA)
	}
}

func TestRenameRootRewritesChildTags(t *testing.T) {
	c, store, dbc := newCoordinator(t)
	tenant := testutil.NewTenant()

	if _, err := c.Create(dbc, tenant, "ORDER_STATUS", nil, ""); err != nil {
		t.Fatalf("create root: %v", err)
	}
	if _, err := c.Create(dbc, tenant, "TRACK", ptr("ORDER_STATUS"), ""); err != nil {
		t.Fatalf("create child: %v", err)
	}
	seedRecord(t, store, "p1", "where is my order", ptr("ORDER_STATUS"), []string{"TRACK"})
	seedRecord(t, store, "p2", "order status please", ptr("ORDER_STATUS"), nil)

	if err := c.Rename(context.Background(), dbc, tenant, testNS, "ORDER_STATUS", nil, "ORDERS"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	recs := store.Records(testNS)
	if len(recs) != 2 {
		t.Fatalf("record count = %d, want 2", len(recs))
	}
	p1 := recs["p1"]
	if p1[tags.Root("ORDERS").String()] != true || p1[tags.Child("ORDERS", "TRACK").String()] != true {
		t.Fatalf("p1 tags not rewritten: %v", p1)
	}
	if _, stale := p1[tags.Root("ORDER_STATUS").String()]; stale {
		t.Fatalf("p1 kept old root tag: %v", p1)
	}
	if _, stale := p1[tags.Child("ORDER_STATUS", "TRACK").String()]; stale {
		t.Fatalf("p1 kept old child tag: %v", p1)
	}

	// Relational side follows.
	n, err := c.nodes.GetByNameInScope(dbc, "orders", nil)
	if err != nil || n == nil {
		t.Fatalf("renamed node lookup: %v %v", n, err)
	}
	if old, _ := c.nodes.GetByNameInScope(dbc, "order_status", nil); old != nil {
		t.Fatalf("old node name still resolves: %+v", old)
	}
}

func TestRenameChildLeavesSiblings(t *testing.T) {
	c, store, dbc := newCoordinator(t)
	tenant := testutil.NewTenant()

	if _, err := c.Create(dbc, tenant, "ORDER_STATUS", nil, ""); err != nil {
		t.Fatalf("create root: %v", err)
	}
	for _, name := range []string{"TRACK", "RETURN"} {
		if _, err := c.Create(dbc, tenant, name, ptr("ORDER_STATUS"), ""); err != nil {
			t.Fatalf("create child %s: %v", name, err)
		}
	}
	seedRecord(t, store, "p1", "where is it", ptr("ORDER_STATUS"), []string{"TRACK", "RETURN"})

	if err := c.Rename(context.Background(), dbc, tenant, testNS, "TRACK", ptr("ORDER_STATUS"), "TRACE"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	p1 := store.Records(testNS)["p1"]
	if p1[tags.Child("ORDER_STATUS", "TRACE").String()] != true {
		t.Fatalf("new child tag missing: %v", p1)
	}
	if _, stale := p1[tags.Child("ORDER_STATUS", "TRACK").String()]; stale {
		t.Fatalf("old child tag survived: %v", p1)
	}
	if p1[tags.Child("ORDER_STATUS", "RETURN").String()] != true {
		t.Fatalf("sibling tag touched: %v", p1)
	}
}

func TestRenameConflicts(t *testing.T) {
	c, _, dbc := newCoordinator(t)
	tenant := testutil.NewTenant()

	for _, name := range []string{"BILLING", "ORDERS"} {
		if _, err := c.Create(dbc, tenant, name, nil, ""); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	if err := c.Rename(context.Background(), dbc, tenant, testNS, "BILLING", nil, "orders"); !errors.Is(err, apperrors.ErrDuplicateTaxonomy) {
		t.Fatalf("error = %v, want ErrDuplicateTaxonomy", err)
	}
	if err := c.Rename(context.Background(), dbc, tenant, testNS, "NOPE", nil, "ANYTHING"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestDeleteChildStripsOnlyItsTag(t *testing.T) {
	c, store, dbc := newCoordinator(t)
	tenant := testutil.NewTenant()

	if _, err := c.Create(dbc, tenant, "ORDER_STATUS", nil, ""); err != nil {
		t.Fatalf("create root: %v", err)
	}
	if _, err := c.Create(dbc, tenant, "TRACK", ptr("ORDER_STATUS"), ""); err != nil {
		t.Fatalf("create child: %v", err)
	}
	seedRecord(t, store, "p1", "where is my order", ptr("ORDER_STATUS"), []string{"TRACK"})

	if err := c.Delete(context.Background(), dbc, tenant, testNS, "TRACK", ptr("ORDER_STATUS")); err != nil {
		t.Fatalf("delete: %v", err)
	}

	p1 := store.Records(testNS)["p1"]
	if p1 == nil {
		t.Fatal("record should survive, it still carries the root tag")
	}
	if _, stale := p1[tags.Child("ORDER_STATUS", "TRACK").String()]; stale {
		t.Fatalf("deleted child tag survived: %v", p1)
	}
	if p1[tags.Root("ORDER_STATUS").String()] != true {
		t.Fatalf("root tag lost: %v", p1)
	}

	if _, _, err := c.resolveBound(dbc, tenant, "TRACK", ptr("ORDER_STATUS")); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("binding should be gone, got %v", err)
	}
}

func TestDeleteRootCascades(t *testing.T) {
	c, store, dbc := newCoordinator(t)
	tenant := testutil.NewTenant()

	if _, err := c.Create(dbc, tenant, "ORDER_STATUS", nil, ""); err != nil {
		t.Fatalf("create root: %v", err)
	}
	if _, err := c.Create(dbc, tenant, "TRACK", ptr("ORDER_STATUS"), ""); err != nil {
		t.Fatalf("create child: %v", err)
	}
	if _, err := c.Create(dbc, tenant, "BILLING", nil, ""); err != nil {
		t.Fatalf("create other root: %v", err)
	}

	// p1 only lives under the doomed tree; p2 also belongs to BILLING and
	// must survive with that single tag.
	seedRecord(t, store, "p1", "where is my order", ptr("ORDER_STATUS"), []string{"TRACK"})
	seedRecord(t, store, "p3", "billing question", ptr("BILLING"), nil)
	meta2 := record.NewMetadata("cancel and refund my order", tags.Encode(ptr("ORDER_STATUS"), nil), time.Now().UTC())
	for k, v := range tags.Encode(ptr("BILLING"), nil) {
		meta2[k] = v
	}
	if err := store.Upsert(context.Background(), testNS, []pinecone.Vector{{ID: "p2", Values: []float32{1, 0, 0, 0, 0, 0, 0, 0}, Metadata: meta2}}); err != nil {
		t.Fatalf("seed p2: %v", err)
	}

	if err := c.Delete(context.Background(), dbc, tenant, testNS, "ORDER_STATUS", nil); err != nil {
		t.Fatalf("delete: %v", err)
	}

	recs := store.Records(testNS)
	if _, ok := recs["p1"]; ok {
		t.Fatalf("p1 lost every tag and should be deleted: %v", recs["p1"])
	}
	if recs["p2"] == nil {
		t.Fatal("p2 should survive under BILLING")
	}
	if _, stale := recs["p2"][tags.Root("ORDER_STATUS").String()]; stale {
		t.Fatalf("p2 kept deleted root tag: %v", recs["p2"])
	}
	if recs["p2"][tags.Root("BILLING").String()] != true {
		t.Fatalf("p2 lost its surviving tag: %v", recs["p2"])
	}
	if recs["p3"] == nil {
		t.Fatal("unrelated record deleted")
	}

	// Child binding went with the parent.
	if _, _, err := c.resolveBound(dbc, tenant, "TRACK", ptr("ORDER_STATUS")); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("child binding should be gone, got %v", err)
	}
	if _, _, err := c.resolveBound(dbc, tenant, "ORDER_STATUS", nil); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("root binding should be gone, got %v", err)
	}
}

func TestDeleteKeepsNodeForOtherTenants(t *testing.T) {
	c, _, dbc := newCoordinator(t)
	a := testutil.NewTenant()
	b := testutil.NewTenant()

	if _, err := c.Create(dbc, a, "BILLING", nil, ""); err != nil {
		t.Fatalf("tenant a: %v", err)
	}
	if _, err := c.Create(dbc, b, "BILLING", nil, ""); err != nil {
		t.Fatalf("tenant b: %v", err)
	}

	if err := c.Delete(context.Background(), dbc, a, testNS, "BILLING", nil); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// Node survives because tenant b still binds it.
	n, err := c.nodes.GetByNameInScope(dbc, "billing", nil)
	if err != nil || n == nil {
		t.Fatalf("node lookup after delete: %v %v", n, err)
	}
	if _, _, err := c.resolveBound(dbc, b, "BILLING", nil); err != nil {
		t.Fatalf("tenant b binding should survive: %v", err)
	}
}
