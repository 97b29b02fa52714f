package recheck

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/atlasgraph-backend/internal/domain"
	"github.com/yungbote/atlasgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/atlasgraph-backend/internal/platform/logger"
	"github.com/yungbote/atlasgraph-backend/internal/services"
)

type fakeProposalLister struct {
	rows []*types.Proposal
}

func (f *fakeProposalLister) Create(dbc dbctx.Context, row *types.Proposal) error { return nil }

func (f *fakeProposalLister) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Proposal, error) {
	return nil, nil
}

func (f *fakeProposalLister) GetByTenantAndChecksum(dbc dbctx.Context, tenantID uuid.UUID, checksum string) (*types.Proposal, error) {
	return nil, nil
}

func (f *fakeProposalLister) ListByStatus(dbc dbctx.Context, status string, limit int) ([]*types.Proposal, error) {
	if status != types.ProposalStatusAsyncCheckRequired {
		return nil, nil
	}
	if len(f.rows) > limit {
		return f.rows[:limit], nil
	}
	return f.rows, nil
}

func (f *fakeProposalLister) UpdateStatus(dbc dbctx.Context, id uuid.UUID, from, to string) error {
	return nil
}

type fakeCommitter struct {
	committed []uuid.UUID
	failOn    map[uuid.UUID]bool
}

func (f *fakeCommitter) Create(ctx context.Context, tenantID uuid.UUID, baseVersion int64, rawOps []byte, correlationID string) (*types.Proposal, error) {
	return nil, nil
}

func (f *fakeCommitter) Get(ctx context.Context, tenantID, proposalID uuid.UUID) (*types.Proposal, error) {
	return nil, nil
}

func (f *fakeCommitter) Approve(ctx context.Context, tenantID, proposalID uuid.UUID) (*services.CommitResult, error) {
	return nil, nil
}

func (f *fakeCommitter) Reject(ctx context.Context, tenantID, proposalID uuid.UUID) error {
	return nil
}

func (f *fakeCommitter) Commit(ctx context.Context, tenantID, proposalID uuid.UUID) (*services.CommitResult, error) {
	if f.failOn[proposalID] {
		return nil, fmt.Errorf("transient failure")
	}
	f.committed = append(f.committed, proposalID)
	return &services.CommitResult{OK: true, Status: types.ProposalStatusDone}, nil
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

func TestWorker_RunOnceResumesDeferredProposals(t *testing.T) {
	first := &types.Proposal{ID: uuid.New(), TenantID: uuid.New(), Status: types.ProposalStatusAsyncCheckRequired}
	second := &types.Proposal{ID: uuid.New(), TenantID: uuid.New(), Status: types.ProposalStatusAsyncCheckRequired}
	lister := &fakeProposalLister{rows: []*types.Proposal{first, second}}
	committer := &fakeCommitter{}

	w := NewWorker(lister, committer, time.Second, 10, newTestLogger(t))
	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(committer.committed) != 2 {
		t.Fatalf("expected both proposals resumed, got %#v", committer.committed)
	}
}

func TestWorker_OneFailureDoesNotStopTheBatch(t *testing.T) {
	first := &types.Proposal{ID: uuid.New(), TenantID: uuid.New(), Status: types.ProposalStatusAsyncCheckRequired}
	second := &types.Proposal{ID: uuid.New(), TenantID: uuid.New(), Status: types.ProposalStatusAsyncCheckRequired}
	lister := &fakeProposalLister{rows: []*types.Proposal{first, second}}
	committer := &fakeCommitter{failOn: map[uuid.UUID]bool{first.ID: true}}

	w := NewWorker(lister, committer, time.Second, 10, newTestLogger(t))
	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(committer.committed) != 1 || committer.committed[0] != second.ID {
		t.Fatalf("expected only the healthy proposal committed, got %#v", committer.committed)
	}
}
