package taxonomy

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/intentbase-backend/internal/data/repos/testutil"
	"github.com/yungbote/intentbase-backend/internal/pkg/dbctx"
)

func TestBindingRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.WithTx(ctx, tx)
	repo := NewBindingRepo(db, testutil.Logger(t))

	tenant := testutil.NewTenant()
	otherTenant := testutil.NewTenant()

	node := testutil.SeedNode(t, ctx, tx, "FEEDBACK", nil)
	b := testutil.SeedBinding(t, ctx, tx, node.ID, tenant)
	testutil.SeedBinding(t, ctx, tx, node.ID, otherTenant)

	if got, err := repo.GetByID(dbc, b.ID); err != nil || got == nil || got.Node == nil || got.Node.Name != "FEEDBACK" {
		t.Fatalf("GetByID: got=%v err=%v", got, err)
	}
	if got, err := repo.GetByNodeAndTenant(dbc, node.ID, tenant); err != nil || got == nil || got.ID != b.ID {
		t.Fatalf("GetByNodeAndTenant: got=%v err=%v", got, err)
	}
	if rows, err := repo.GetActiveByTenant(dbc, tenant); err != nil || len(rows) != 1 {
		t.Fatalf("GetActiveByTenant: err=%v len=%d", err, len(rows))
	}

	if err := repo.UpdateDescription(dbc, b.ID, "customer feedback"); err != nil {
		t.Fatalf("UpdateDescription: %v", err)
	}

	deltas := map[uuid.UUID]int{b.ID: 3}
	if err := repo.ApplyPhraseCountDeltas(dbc, deltas); err != nil {
		t.Fatalf("ApplyPhraseCountDeltas(+3): %v", err)
	}
	if got, _ := repo.GetByID(dbc, b.ID); got == nil || got.PhraseCount != 3 {
		t.Fatalf("phrase_count after +3: %v", got)
	}
	if err := repo.ApplyPhraseCountDeltas(dbc, map[uuid.UUID]int{b.ID: -1}); err != nil {
		t.Fatalf("ApplyPhraseCountDeltas(-1): %v", err)
	}
	if got, _ := repo.GetByID(dbc, b.ID); got == nil || got.PhraseCount != 2 {
		t.Fatalf("phrase_count after -1: %v", got)
	}
	// Decrements never push the counter below zero.
	if err := repo.ApplyPhraseCountDeltas(dbc, map[uuid.UUID]int{b.ID: -10}); err != nil {
		t.Fatalf("ApplyPhraseCountDeltas(-10): %v", err)
	}
	if got, _ := repo.GetByID(dbc, b.ID); got == nil || got.PhraseCount != 0 {
		t.Fatalf("phrase_count floor: %v", got)
	}

	if n, err := repo.CountActiveByNode(dbc, node.ID); err != nil || n != 2 {
		t.Fatalf("CountActiveByNode: n=%d err=%v", n, err)
	}

	if err := repo.DeleteByIDs(dbc, []uuid.UUID{b.ID}); err != nil {
		t.Fatalf("DeleteByIDs: %v", err)
	}
	if n, _ := repo.CountActiveByNode(dbc, node.ID); n != 1 {
		t.Fatalf("CountActiveByNode after delete: %d", n)
	}
	if rows, _ := repo.GetActiveByTenant(dbc, tenant); len(rows) != 0 {
		t.Fatalf("binding still active for tenant: %v", rows)
	}
}
