package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/atlasgraph-backend/internal/data/repos/testutil"
	types "github.com/yungbote/atlasgraph-backend/internal/domain"
	"github.com/yungbote/atlasgraph-backend/internal/pkg/dbctx"
)

func TestGraphVersionRepo_UpsertBumpsCounter(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewGraphVersionRepo(db, testutil.Logger(t))

	tenantID := uuid.New()

	got, err := repo.Get(dbc, tenantID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for fresh tenant, got %+v", got)
	}

	if err := repo.Upsert(dbc, &types.TenantGraphVersion{TenantID: tenantID, Version: 1}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := repo.Upsert(dbc, &types.TenantGraphVersion{TenantID: tenantID, Version: 2}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err = repo.Get(dbc, tenantID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Version != 2 {
		t.Fatalf("expected version 2, got %+v", got)
	}
}

func TestGraphVersionRepo_LockForTenantReadsLatest(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewGraphVersionRepo(db, testutil.Logger(t))

	tenantID := uuid.New()
	if err := repo.Upsert(dbc, &types.TenantGraphVersion{TenantID: tenantID, Version: 9}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := repo.LockForTenant(dbc, tenantID)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if got == nil || got.Version != 9 {
		t.Fatalf("expected locked row at version 9, got %+v", got)
	}
}
