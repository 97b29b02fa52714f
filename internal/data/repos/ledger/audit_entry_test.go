package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/atlasgraph-backend/internal/data/repos/testutil"
	types "github.com/yungbote/atlasgraph-backend/internal/domain"
	"github.com/yungbote/atlasgraph-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/atlasgraph-backend/internal/pkg/errors"
)

func TestAuditEntryRepo_SecondAppendIsDuplicate(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewAuditEntryRepo(db, testutil.Logger(t))

	proposalID := uuid.New()
	row := &types.AuditEntry{
		TenantID:     uuid.New(),
		ProposalID:   proposalID,
		GraphVersion: 4,
		OpsApplied:   datatypes.JSON(`[]`),
	}
	if err := repo.Create(dbc, row); err != nil {
		t.Fatalf("create: %v", err)
	}

	again := &types.AuditEntry{
		TenantID:     row.TenantID,
		ProposalID:   proposalID,
		GraphVersion: 5,
		OpsApplied:   datatypes.JSON(`[]`),
	}
	// Savepoint keeps the outer test transaction usable past the violation.
	err := tx.Transaction(func(inner *gorm.DB) error {
		return repo.Create(dbctx.Context{Ctx: context.Background(), Tx: inner}, again)
	})
	if !errors.Is(err, pkgerrors.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	got, err := repo.GetByProposalID(dbc, proposalID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.GraphVersion != 4 {
		t.Fatalf("first entry must win: %+v", got)
	}
}

func TestAuditEntryRepo_GetByProposalIDMissing(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewAuditEntryRepo(db, testutil.Logger(t))

	got, err := repo.GetByProposalID(dbc, uuid.New())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing entry, got %+v", got)
	}
}
