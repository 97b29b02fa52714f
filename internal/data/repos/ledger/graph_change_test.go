package ledger

import (
	"context"
	"sort"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/atlasgraph-backend/internal/data/repos/testutil"
	types "github.com/yungbote/atlasgraph-backend/internal/domain"
	"github.com/yungbote/atlasgraph-backend/internal/pkg/dbctx"
)

func TestGraphChangeRepo_DistinctTargetsChangedSince(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewGraphChangeRepo(db, testutil.Logger(t))

	tenantID := uuid.New()
	rows := []*types.GraphChange{
		{TenantID: tenantID, GraphVersion: 1, TargetID: "T1"},
		{TenantID: tenantID, GraphVersion: 2, TargetID: "T1"},
		{TenantID: tenantID, GraphVersion: 2, TargetID: "T2"},
		{TenantID: tenantID, GraphVersion: 3, TargetID: "T3"},
		{TenantID: uuid.New(), GraphVersion: 3, TargetID: "other-tenant"},
	}
	if err := repo.Create(dbc, rows); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.DistinctTargetsChangedSince(dbc, tenantID, 1)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	sort.Strings(got)
	want := []string{"T1", "T2", "T3"}
	if len(got) != len(want) {
		t.Fatalf("targets = %#v, want %#v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("targets = %#v, want %#v", got, want)
		}
	}

	// Strictly greater than: changes at the base version itself do not count.
	got, err = repo.DistinctTargetsChangedSince(dbc, tenantID, 3)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no targets past version 3, got %#v", got)
	}
}

func TestGraphChangeRepo_ReplayedRowsAreAbsorbed(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewGraphChangeRepo(db, testutil.Logger(t))

	tenantID := uuid.New()
	first := []*types.GraphChange{{TenantID: tenantID, GraphVersion: 7, TargetID: "T1"}}
	if err := repo.Create(dbc, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	// A crashed ledger commit re-inserts the same tuple on replay.
	replay := []*types.GraphChange{{TenantID: tenantID, GraphVersion: 7, TargetID: "T1"}}
	if err := repo.Create(dbc, replay); err != nil {
		t.Fatalf("replay create: %v", err)
	}

	rows, err := repo.ListByVersion(dbc, tenantID, 7)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected a single change record, got %d", len(rows))
	}
}
