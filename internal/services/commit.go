package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	types "github.com/yungbote/atlasgraph-backend/internal/domain"
	"github.com/yungbote/atlasgraph-backend/internal/observability"
	"github.com/yungbote/atlasgraph-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/atlasgraph-backend/internal/pkg/errors"
	"github.com/yungbote/atlasgraph-backend/internal/platform/logger"

	ledgerrepos "github.com/yungbote/atlasgraph-backend/internal/data/repos/ledger"
)

// GraphWriter is the graph-store half of the commit: a single atomic apply of
// the full operation batch.
type GraphWriter interface {
	ApplyOperations(ctx context.Context, tenantID uuid.UUID, ops []types.Operation) error
}

// CommitResult is the commit verdict returned to the transport layer. Exactly
// one of GraphVersion, Violations or ConflictingTargets is populated for the
// terminal DONE / FAILED / CONFLICT outcomes.
type CommitResult struct {
	OK                 bool              `json:"ok"`
	Status             string            `json:"status"`
	GraphVersion       *int64            `json:"graph_version,omitempty"`
	Violations         *types.Violations `json:"violations,omitempty"`
	ConflictingTargets []string          `json:"conflicting_targets,omitempty"`
	ElapsedMS          int64             `json:"elapsed_ms"`
	Error              string            `json:"error,omitempty"`
}

type ProposalService interface {
	Create(ctx context.Context, tenantID uuid.UUID, baseVersion int64, rawOps []byte, correlationID string) (*types.Proposal, error)
	Get(ctx context.Context, tenantID, proposalID uuid.UUID) (*types.Proposal, error)
	Approve(ctx context.Context, tenantID, proposalID uuid.UUID) (*CommitResult, error)
	Reject(ctx context.Context, tenantID, proposalID uuid.UUID) error
	Commit(ctx context.Context, tenantID, proposalID uuid.UUID) (*CommitResult, error)
}

type proposalService struct {
	log       *logger.Logger
	proposals ledgerrepos.ProposalRepo
	ledger    Ledger
	gate      IntegrityGate
	writer    GraphWriter
	retry     retryPolicy
	tracer    trace.Tracer
}

func NewProposalService(
	proposals ledgerrepos.ProposalRepo,
	ledger Ledger,
	gate IntegrityGate,
	writer GraphWriter,
	retryAttempts int,
	retryBackoff time.Duration,
	baseLog *logger.Logger,
) ProposalService {
	return &proposalService{
		log:       baseLog.With("service", "ProposalService"),
		proposals: proposals,
		ledger:    ledger,
		gate:      gate,
		writer:    writer,
		retry:     newRetryPolicy(retryAttempts, retryBackoff),
		tracer:    otel.Tracer("atlasgraph/proposal"),
	}
}

// Create drafts a proposal: decodes and validates the operation batch, stamps
// the checksum, and persists it at DRAFT.
func (s *proposalService) Create(ctx context.Context, tenantID uuid.UUID, baseVersion int64, rawOps []byte, correlationID string) (*types.Proposal, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	ops, err := types.DecodeOperations(rawOps)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrInvalidArgument, err)
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("%w: proposal has no operations", pkgerrors.ErrInvalidArgument)
	}
	checksum, err := ChecksumOperations(ops)
	if err != nil {
		return nil, err
	}
	encoded, err := types.EncodeOperations(ops)
	if err != nil {
		return nil, err
	}
	row := &types.Proposal{
		TenantID:         tenantID,
		BaseGraphVersion: baseVersion,
		Checksum:         checksum,
		Status:           types.ProposalStatusDraft,
		Ops:              encoded,
		CorrelationID:    correlationID,
	}
	if err := s.proposals.Create(dbctx.Context{Ctx: ctx}, row); err != nil {
		return nil, err
	}
	s.log.Info("proposal drafted",
		"tenant_id", tenantID.String(),
		"proposal_id", row.ID.String(),
		"base_graph_version", baseVersion,
		"op_count", len(ops),
	)
	return row, nil
}

func (s *proposalService) Get(ctx context.Context, tenantID, proposalID uuid.UUID) (*types.Proposal, error) {
	return s.load(ctx, tenantID, proposalID)
}

// Approve moves a draft to APPROVED and immediately runs the commit pipeline.
func (s *proposalService) Approve(ctx context.Context, tenantID, proposalID uuid.UUID) (*CommitResult, error) {
	if _, err := s.load(ctx, tenantID, proposalID); err != nil {
		return nil, err
	}
	if err := s.proposals.UpdateStatus(dbctx.Context{Ctx: ctx}, proposalID, types.ProposalStatusDraft, types.ProposalStatusApproved); err != nil {
		return nil, err
	}
	return s.Commit(ctx, tenantID, proposalID)
}

func (s *proposalService) Reject(ctx context.Context, tenantID, proposalID uuid.UUID) error {
	if _, err := s.load(ctx, tenantID, proposalID); err != nil {
		return err
	}
	return s.proposals.UpdateStatus(dbctx.Context{Ctx: ctx}, proposalID, types.ProposalStatusDraft, types.ProposalStatusRejected)
}

// Commit runs the full pipeline on an APPROVED (or deferred) proposal: rebase
// check, integrity gate, atomic graph apply, then the ledger transaction.
func (s *proposalService) Commit(ctx context.Context, tenantID, proposalID uuid.UUID) (*CommitResult, error) {
	ctx, span := s.tracer.Start(ctx, "proposal.commit", trace.WithAttributes(
		attribute.String("proposal.id", proposalID.String()),
	))
	defer span.End()

	start := time.Now()
	result := func(res *CommitResult) (*CommitResult, error) {
		res.ElapsedMS = time.Since(start).Milliseconds()
		span.SetAttributes(attribute.String("proposal.status", res.Status))
		if m := observability.Current(); m != nil {
			m.CountCommit(res.Status)
		}
		return res, nil
	}

	prop, err := s.load(ctx, tenantID, proposalID)
	if err != nil {
		return nil, err
	}
	log := s.log.With(
		"tenant_id", tenantID.String(),
		"proposal_id", proposalID.String(),
		"correlation_id", prop.CorrelationID,
	)

	// A proposal that already committed replays its recorded outcome.
	if prop.Status == types.ProposalStatusDone {
		version, found, err := s.ledger.RecordedVersion(ctx, proposalID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("proposal %s: DONE without audit entry", proposalID)
		}
		log.Info("replaying recorded commit", "graph_version", version)
		return result(&CommitResult{OK: true, Status: types.ProposalStatusDone, GraphVersion: &version})
	}

	fromStatus := prop.Status
	if fromStatus != types.ProposalStatusApproved && fromStatus != types.ProposalStatusAsyncCheckRequired {
		return nil, fmt.Errorf("%w: cannot commit from %s", pkgerrors.ErrInvalidTransition, fromStatus)
	}

	ops, err := types.DecodeOperations(prop.Ops)
	if err != nil {
		log.Error("stored operations undecodable", "error", err)
		return result(s.fail(ctx, prop, fromStatus, fmt.Sprintf("operations undecodable: %v", err)))
	}
	if !VerifyChecksum(ops, prop.Checksum) {
		log.Error("checksum mismatch on stored operations")
		return result(s.fail(ctx, prop, fromStatus, "checksum mismatch"))
	}

	targets := map[string]bool{}
	for _, op := range ops {
		for _, t := range op.Targets() {
			targets[t] = true
		}
	}

	// Rebase check: any target changed past the base version is a conflict.
	var changed []string
	if err := s.retry.Do(ctx, func() error {
		var rerr error
		changed, rerr = s.ledger.ChangedTargetsSince(ctx, tenantID, prop.BaseGraphVersion)
		return rerr
	}); err != nil {
		return nil, err
	}
	var conflicting []string
	for _, t := range changed {
		if targets[t] {
			conflicting = append(conflicting, t)
		}
	}
	if len(conflicting) > 0 {
		log.Warn("rebase check found conflicting targets", "conflicts", len(conflicting))
		if err := s.proposals.UpdateStatus(dbctx.Context{Ctx: ctx}, proposalID, fromStatus, types.ProposalStatusConflict); err != nil {
			return nil, err
		}
		return result(&CommitResult{Status: types.ProposalStatusConflict, ConflictingTargets: conflicting})
	}
	if current, err := s.ledger.CurrentVersion(ctx, tenantID); err == nil && current > prop.BaseGraphVersion {
		// The graph moved but nothing overlapped; the proposal rides forward.
		if m := observability.Current(); m != nil {
			m.CountAutoRebase()
		}
		log.Info("auto-rebased past non-overlapping changes",
			"base_graph_version", prop.BaseGraphVersion,
			"current_version", current,
		)
	}

	report, err := s.gate.Check(ctx, tenantID, ops)
	if err != nil {
		return nil, err
	}
	if report.Deferred {
		if fromStatus != types.ProposalStatusAsyncCheckRequired {
			if err := s.proposals.UpdateStatus(dbctx.Context{Ctx: ctx}, proposalID, fromStatus, types.ProposalStatusAsyncCheckRequired); err != nil {
				return nil, err
			}
		}
		log.Warn("integrity check deferred", "elapsed_ms", report.Elapsed.Milliseconds())
		return result(&CommitResult{Status: types.ProposalStatusAsyncCheckRequired})
	}
	if !report.OK {
		log.Warn("integrity violations found",
			"prereq_cycles", len(report.Violations.PrereqCycles),
			"missing_basis", len(report.Violations.MissingBasis),
			"basis_too_few", len(report.Violations.BasisTooFew),
			"basis_too_many", len(report.Violations.BasisTooMany),
		)
		res := s.fail(ctx, prop, fromStatus, "integrity violations")
		v := report.Violations
		res.Violations = &v
		return result(res)
	}

	revertOps := buildRevertOperations(ops)

	// The graph apply is all-or-nothing; it is not retried because a failed
	// driver call may still have committed server-side.
	if err := s.writer.ApplyOperations(ctx, tenantID, ops); err != nil {
		log.Error("graph apply failed", "error", err)
		return result(s.fail(ctx, prop, fromStatus, fmt.Sprintf("graph apply failed: %v", err)))
	}

	changedTargets := make([]string, 0, len(targets))
	for t := range targets {
		changedTargets = append(changedTargets, t)
	}

	var version int64
	if err := s.retry.Do(ctx, func() error {
		var lerr error
		version, lerr = s.ledger.CommitSideEffects(ctx, LedgerCommitInput{
			TenantID:       tenantID,
			ProposalID:     proposalID,
			BaseVersion:    prop.BaseGraphVersion,
			FromStatus:     fromStatus,
			Ops:            ops,
			RevertOps:      revertOps,
			ChangedTargets: changedTargets,
			CorrelationID:  prop.CorrelationID,
		})
		return lerr
	}); err != nil {
		// The graph already holds the batch; the audit trail has the revert
		// operations for manual reconciliation.
		log.Error("ledger commit failed after graph apply; reconciliation needed", "error", err)
		return result(s.fail(ctx, prop, fromStatus, fmt.Sprintf("ledger commit failed: %v", err)))
	}

	log.Info("proposal committed", "graph_version", version, "changed_targets", len(changedTargets))
	return result(&CommitResult{OK: true, Status: types.ProposalStatusDone, GraphVersion: &version})
}

func (s *proposalService) load(ctx context.Context, tenantID, proposalID uuid.UUID) (*types.Proposal, error) {
	prop, err := s.proposals.GetByID(dbctx.Context{Ctx: ctx}, proposalID)
	if err != nil {
		return nil, err
	}
	if prop == nil || prop.TenantID != tenantID {
		// A foreign tenant's proposal is indistinguishable from a missing one.
		return nil, pkgerrors.ErrNotFound
	}
	return prop, nil
}

func (s *proposalService) fail(ctx context.Context, prop *types.Proposal, fromStatus, reason string) *CommitResult {
	if err := s.proposals.UpdateStatus(dbctx.Context{Ctx: ctx}, prop.ID, fromStatus, types.ProposalStatusFailed); err != nil {
		s.log.Error("failed to mark proposal FAILED", "proposal_id", prop.ID.String(), "error", err)
	}
	return &CommitResult{Status: types.ProposalStatusFailed, Error: reason}
}

// buildRevertOperations derives the inverse batch recorded alongside the audit
// entry. Creates and merges invert to detach-deletes; updates and deletes keep
// no inverse because the prior property values are not captured.
func buildRevertOperations(ops []types.Operation) []types.Operation {
	var out []types.Operation
	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		switch op.Kind {
		case types.OpCreateNode, types.OpMergeNode:
			out = append(out, types.Operation{
				OpID:     uuid.NewString(),
				Kind:     types.OpDeleteNode,
				TargetID: op.TargetID,
				Detach:   true,
			})
		case types.OpCreateRel, types.OpMergeRel:
			out = append(out, types.Operation{
				OpID:     uuid.NewString(),
				Kind:     types.OpDeleteRel,
				TargetID: op.TargetID,
				Rel:      op.Rel,
			})
		}
	}
	return out
}
