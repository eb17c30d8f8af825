package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/yungbote/intentbase-backend/internal/data/repos"
	"github.com/yungbote/intentbase-backend/internal/data/repos/testutil"
	"github.com/yungbote/intentbase-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/intentbase-backend/internal/pkg/errors"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/coordinator"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/engine"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/match"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/record"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/tags"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/taxotest"
	"github.com/yungbote/intentbase-backend/internal/types"
)

const testNS = "cust:app"

var testLimits = Limits{MinPhrases: 1, MaxPhraseLen: 256}

func TestValidateRejectsBadSheets(t *testing.T) {
	limits := Limits{MinPhrases: 3, MaxPhraseLen: 16}

	cases := []struct {
		name string
		snap Snapshot
		want string
	}{
		{
			name: "empty snapshot",
			snap: Snapshot{},
			want: "no sheets",
		},
		{
			name: "invalid name",
			snap: Snapshot{Sheets: []Sheet{{Name: "--bad", Phrases: []string{"a b", "c d", "e f"}}}},
			want: "invalid name",
		},
		{
			name: "duplicate name",
			snap: Snapshot{Sheets: []Sheet{
				{Name: "BILLING", Phrases: []string{"a b", "c d", "e f"}},
				{Name: "billing", Phrases: []string{"a b", "c d", "e f"}},
			}},
			want: "duplicate sheet name",
		},
		{
			name: "too few phrases",
			snap: Snapshot{Sheets: []Sheet{{Name: "BILLING", Phrases: []string{"a b", "  "}}}},
			want: "need at least 3",
		},
		{
			name: "phrase too long",
			snap: Snapshot{Sheets: []Sheet{{Name: "BILLING", Phrases: []string{"this phrase is much too long", "a b", "c d"}}}},
			want: "exceeds 16 characters",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.snap, limits)
			if !errors.Is(err, apperrors.ErrValidation) {
				t.Fatalf("error = %v, want ErrValidation", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidateReportsEveryViolation(t *testing.T) {
	snap := Snapshot{Sheets: []Sheet{
		{Name: "x", Phrases: nil},
		{Name: "ORDERS", Phrases: nil},
	}}
	err := Validate(snap, Limits{MinPhrases: 2, MaxPhraseLen: 256})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"sheet 1", "sheet 2"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
}

func TestValidateAcceptsGoodSnapshot(t *testing.T) {
	snap := Snapshot{Sheets: []Sheet{
		{Name: "ORDER_STATUS", Description: "orders", Phrases: []string{"where is my order", "track my package", "order status please"}},
	}}
	if err := Validate(snap, Limits{MinPhrases: 3, MaxPhraseLen: 256}); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func newReconciler(t *testing.T) (*Reconciler, *taxotest.FakeVectorStore, repos.Set, dbctx.Context) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	tx := testutil.Tx(t, db)
	store := taxotest.NewFakeVectorStore()
	emb := taxotest.NewFakeEmbedder()
	set := repos.NewSet(db, log)
	m := match.New(log, emb, store, match.Config{TopK: 5, MinScore: 0.95})
	eng := engine.New(log, m, store)
	coord := coordinator.New(log, store, set.TaxonomyNodes, set.TaxonomyBindings)
	return New(log, testLimits, coord, eng, store, set.TaxonomyBindings), store, set, dbctx.WithTx(context.Background(), tx)
}

func rootNames(t *testing.T, set repos.Set, dbc dbctx.Context, tenant types.Tenant) map[string]*types.TaxonomyBinding {
	t.Helper()
	bindings, err := set.TaxonomyBindings.GetActiveByTenant(dbc, tenant)
	if err != nil {
		t.Fatalf("list bindings: %v", err)
	}
	out := map[string]*types.TaxonomyBinding{}
	for _, b := range bindings {
		if b.Node != nil && b.Node.ParentID == nil {
			out[tags.Normalize(b.Node.Name)] = b
		}
	}
	return out
}

func TestReconcileFromEmpty(t *testing.T) {
	r, store, set, dbc := newReconciler(t)
	tenant := testutil.NewTenant()

	snap := Snapshot{Sheets: []Sheet{
		{Name: "ORDER_STATUS", Description: "orders", Phrases: []string{"where is my order", "track my package"}},
		{Name: "BILLING", Description: "money", Phrases: []string{"cancel my plan"}},
	}}

	res, err := r.Reconcile(context.Background(), dbc, tenant, testNS, snap)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(res.Created) != 2 || len(res.Updated) != 0 || len(res.Deleted) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Inserted != 3 {
		t.Fatalf("inserted = %d, want 3", res.Inserted)
	}
	if res.Deltas[tags.Root("ORDER_STATUS")] != 2 || res.Deltas[tags.Root("BILLING")] != 1 {
		t.Fatalf("deltas = %v", res.Deltas)
	}
	if got := len(store.Records(testNS)); got != 3 {
		t.Fatalf("record count = %d, want 3", got)
	}
	if got := rootNames(t, set, dbc, tenant); len(got) != 2 {
		t.Fatalf("bindings = %v", got)
	}
}

func TestReconcileRecordsRunStats(t *testing.T) {
	r, _, set, dbc := newReconciler(t)
	tenant := testutil.NewTenant()

	snap := Snapshot{Sheets: []Sheet{
		{Name: "ORDER_STATUS", Phrases: []string{"where is my order", "track my package"}},
	}}
	if _, err := r.Reconcile(context.Background(), dbc, tenant, testNS, snap); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	binding := rootNames(t, set, dbc, tenant)["order_status"]
	if binding == nil {
		t.Fatal("binding missing")
	}
	if len(binding.Stats) == 0 {
		t.Fatal("stats not persisted")
	}
	var stats map[string]any
	if err := json.Unmarshal(binding.Stats, &stats); err != nil {
		t.Fatalf("stats json: %v", err)
	}
	if got, ok := stats["inserted"].(float64); !ok || int(got) != 2 {
		t.Fatalf("stats inserted = %v", stats["inserted"])
	}
	if s, _ := stats["last_reconcile_at"].(string); s == "" {
		t.Fatalf("stats timestamp missing: %v", stats)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	r, store, _, dbc := newReconciler(t)
	tenant := testutil.NewTenant()

	snap := Snapshot{Sheets: []Sheet{
		{Name: "ORDER_STATUS", Phrases: []string{"where is my order", "track my package"}},
	}}

	if _, err := r.Reconcile(context.Background(), dbc, tenant, testNS, snap); err != nil {
		t.Fatalf("first: %v", err)
	}
	res, err := r.Reconcile(context.Background(), dbc, tenant, testNS, snap)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if len(res.Created) != 0 || len(res.Updated) != 1 || len(res.Deleted) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	// The overwrite strips two tags and the re-upsert restores them.
	if res.Deltas[tags.Root("ORDER_STATUS")] != 0 {
		t.Fatalf("net delta = %v", res.Deltas)
	}
	if got := len(store.Records(testNS)); got != 2 {
		t.Fatalf("record count = %d, want 2", got)
	}
}

func TestReconcileDeletesOmittedIntent(t *testing.T) {
	r, store, set, dbc := newReconciler(t)
	tenant := testutil.NewTenant()

	seed := Snapshot{Sheets: []Sheet{
		{Name: "ORDER_STATUS", Phrases: []string{"where is my order"}},
		{Name: "FEEDBACK", Phrases: []string{"i love this product"}},
	}}
	if _, err := r.Reconcile(context.Background(), dbc, tenant, testNS, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Tag the ORDER_STATUS phrase under FEEDBACK as well; it must survive
	// the FEEDBACK delete with its ORDER_STATUS tag intact.
	var sharedID string
	for id, meta := range store.Records(testNS) {
		if record.Text(meta) == "where is my order" {
			sharedID = id
		}
	}
	if sharedID == "" {
		t.Fatal("seeded phrase not found")
	}
	if err := store.UpdateMetadata(context.Background(), testNS, sharedID, tags.Encode(ptr("FEEDBACK"), nil)); err != nil {
		t.Fatalf("tag shared record: %v", err)
	}

	next := Snapshot{Sheets: []Sheet{
		{Name: "ORDER_STATUS", Phrases: []string{"where is my order"}},
	}}
	res, err := r.Reconcile(context.Background(), dbc, tenant, testNS, next)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(res.Deleted) != 1 || res.Deleted[0] != "FEEDBACK" {
		t.Fatalf("deleted = %v", res.Deleted)
	}

	recs := store.Records(testNS)
	for id, meta := range recs {
		if _, stale := meta[tags.Root("FEEDBACK").String()]; stale {
			t.Fatalf("record %s kept deleted tag: %v", id, meta)
		}
	}
	var sharedMeta map[string]any
	for _, meta := range recs {
		if record.Text(meta) == "where is my order" {
			sharedMeta = meta
		}
	}
	if sharedMeta == nil {
		t.Fatal("dual-tagged record should survive")
	}
	if sharedMeta[tags.Root("ORDER_STATUS").String()] != true {
		t.Fatalf("surviving tag lost: %v", sharedMeta)
	}
	// The FEEDBACK-only phrase is gone with its intent.
	for id, meta := range recs {
		if record.Text(meta) == "i love this product" {
			t.Fatalf("record %s should be deleted with its intent", id)
		}
	}

	if got := rootNames(t, set, dbc, tenant); len(got) != 1 {
		t.Fatalf("bindings = %v", got)
	}
}

func TestReconcileRejectsInvalidSnapshotBeforeMutation(t *testing.T) {
	r, store, set, dbc := newReconciler(t)
	tenant := testutil.NewTenant()

	snap := Snapshot{Sheets: []Sheet{
		{Name: "GOOD_NAME", Phrases: []string{"a valid phrase"}},
		{Name: "--bad", Phrases: []string{"another phrase"}},
	}}
	if _, err := r.Reconcile(context.Background(), dbc, tenant, testNS, snap); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if got := len(store.Records(testNS)); got != 0 {
		t.Fatalf("no vector write expected, got %d records", got)
	}
	if got := rootNames(t, set, dbc, tenant); len(got) != 0 {
		t.Fatalf("no binding expected, got %v", got)
	}
}

func ptr(s string) *string { return &s }
