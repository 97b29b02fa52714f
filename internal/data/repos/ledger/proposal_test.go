package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/atlasgraph-backend/internal/data/repos/testutil"
	types "github.com/yungbote/atlasgraph-backend/internal/domain"
	"github.com/yungbote/atlasgraph-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/atlasgraph-backend/internal/pkg/errors"
)

func seedProposalRow(t *testing.T, repo ProposalRepo, dbc dbctx.Context, status string) *types.Proposal {
	t.Helper()
	row := &types.Proposal{
		TenantID:         uuid.New(),
		BaseGraphVersion: 1,
		Checksum:         uuid.NewString(),
		Status:           status,
		Ops:              datatypes.JSON(`[]`),
	}
	if err := repo.Create(dbc, row); err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	return row
}

func TestProposalRepo_CreateAndGetByID(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewProposalRepo(db, testutil.Logger(t))

	row := seedProposalRow(t, repo, dbc, types.ProposalStatusDraft)
	if row.ID == uuid.Nil {
		t.Fatal("expected generated id")
	}

	got, err := repo.GetByID(dbc, row.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Checksum != row.Checksum || got.Status != types.ProposalStatusDraft {
		t.Fatalf("unexpected row: %+v", got)
	}

	missing, err := repo.GetByID(dbc, uuid.New())
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing row, got %+v", missing)
	}
}

func TestProposalRepo_GetByTenantAndChecksum(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewProposalRepo(db, testutil.Logger(t))

	row := seedProposalRow(t, repo, dbc, types.ProposalStatusDraft)

	got, err := repo.GetByTenantAndChecksum(dbc, row.TenantID, row.Checksum)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.ID != row.ID {
		t.Fatalf("unexpected row: %+v", got)
	}

	other, err := repo.GetByTenantAndChecksum(dbc, uuid.New(), row.Checksum)
	if err != nil {
		t.Fatalf("get other tenant: %v", err)
	}
	if other != nil {
		t.Fatalf("checksum must not cross tenants, got %+v", other)
	}
}

func TestProposalRepo_UpdateStatusEnforcesStateMachine(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewProposalRepo(db, testutil.Logger(t))

	row := seedProposalRow(t, repo, dbc, types.ProposalStatusDraft)

	if err := repo.UpdateStatus(dbc, row.ID, types.ProposalStatusDraft, types.ProposalStatusApproved); err != nil {
		t.Fatalf("draft -> approved: %v", err)
	}

	// Second mover loses the compare-and-swap.
	err := repo.UpdateStatus(dbc, row.ID, types.ProposalStatusDraft, types.ProposalStatusApproved)
	if !errors.Is(err, pkgerrors.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on stale from-status, got %v", err)
	}

	// Transitions outside the state machine fail before touching the row.
	err = repo.UpdateStatus(dbc, row.ID, types.ProposalStatusApproved, types.ProposalStatusRejected)
	if !errors.Is(err, pkgerrors.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on forbidden edge, got %v", err)
	}

	if err := repo.UpdateStatus(dbc, row.ID, types.ProposalStatusApproved, types.ProposalStatusDone); err != nil {
		t.Fatalf("approved -> done: %v", err)
	}
	got, err := repo.GetByID(dbc, row.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != types.ProposalStatusDone {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestProposalRepo_ListByStatus(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewProposalRepo(db, testutil.Logger(t))

	deferred := seedProposalRow(t, repo, dbc, types.ProposalStatusAsyncCheckRequired)
	seedProposalRow(t, repo, dbc, types.ProposalStatusDraft)

	rows, err := repo.ListByStatus(dbc, types.ProposalStatusAsyncCheckRequired, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	found := false
	for _, row := range rows {
		if row.Status != types.ProposalStatusAsyncCheckRequired {
			t.Fatalf("wrong status in listing: %+v", row)
		}
		if row.ID == deferred.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("deferred proposal missing from listing")
	}
}
