package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	ledgerrepos "github.com/yungbote/atlasgraph-backend/internal/data/repos/ledger"
	types "github.com/yungbote/atlasgraph-backend/internal/domain"
	"github.com/yungbote/atlasgraph-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/atlasgraph-backend/internal/pkg/errors"
	"github.com/yungbote/atlasgraph-backend/internal/platform/logger"
)

// LedgerCommitInput carries everything the side-effect transaction records
// after the graph apply succeeded.
type LedgerCommitInput struct {
	TenantID       uuid.UUID
	ProposalID     uuid.UUID
	BaseVersion    int64
	FromStatus     string
	Ops            []types.Operation
	RevertOps      []types.Operation
	ChangedTargets []string
	CorrelationID  string
}

// Ledger is the relational half of the pipeline: the rebase read, the version
// counter, and the post-apply side-effect write.
type Ledger interface {
	ChangedTargetsSince(ctx context.Context, tenantID uuid.UUID, baseVersion int64) ([]string, error)
	CurrentVersion(ctx context.Context, tenantID uuid.UUID) (int64, error)
	// CommitSideEffects runs the single transaction that bumps the version
	// counter and writes change records, the audit entry, the outbox event and
	// the proposal's DONE transition. Replays keyed on proposal_id return the
	// already-recorded version without bumping anything.
	CommitSideEffects(ctx context.Context, in LedgerCommitInput) (int64, error)
	// RecordedVersion reports whether a proposal already has an audit entry.
	RecordedVersion(ctx context.Context, proposalID uuid.UUID) (int64, bool, error)
}

type ledgerService struct {
	log       *logger.Logger
	db        *gorm.DB
	proposals ledgerrepos.ProposalRepo
	versions  ledgerrepos.GraphVersionRepo
	changes   ledgerrepos.GraphChangeRepo
	audits    ledgerrepos.AuditEntryRepo
	outbox    ledgerrepos.OutboxEventRepo
}

func NewLedger(
	db *gorm.DB,
	proposals ledgerrepos.ProposalRepo,
	versions ledgerrepos.GraphVersionRepo,
	changes ledgerrepos.GraphChangeRepo,
	audits ledgerrepos.AuditEntryRepo,
	outbox ledgerrepos.OutboxEventRepo,
	baseLog *logger.Logger,
) Ledger {
	return &ledgerService{
		log:       baseLog.With("service", "Ledger"),
		db:        db,
		proposals: proposals,
		versions:  versions,
		changes:   changes,
		audits:    audits,
		outbox:    outbox,
	}
}

func (s *ledgerService) ChangedTargetsSince(ctx context.Context, tenantID uuid.UUID, baseVersion int64) ([]string, error) {
	return s.changes.DistinctTargetsChangedSince(dbctx.Context{Ctx: ctx}, tenantID, baseVersion)
}

func (s *ledgerService) CurrentVersion(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	row, err := s.versions.Get(dbctx.Context{Ctx: ctx}, tenantID)
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, nil
	}
	return row.Version, nil
}

func (s *ledgerService) RecordedVersion(ctx context.Context, proposalID uuid.UUID) (int64, bool, error) {
	entry, err := s.audits.GetByProposalID(dbctx.Context{Ctx: ctx}, proposalID)
	if err != nil {
		return 0, false, err
	}
	if entry == nil {
		return 0, false, nil
	}
	return entry.GraphVersion, true, nil
}

func (s *ledgerService) CommitSideEffects(ctx context.Context, in LedgerCommitInput) (int64, error) {
	if in.TenantID == uuid.Nil || in.ProposalID == uuid.Nil {
		return 0, fmt.Errorf("ledger commit requires tenant_id and proposal_id")
	}

	opsJSON, err := types.EncodeOperations(in.Ops)
	if err != nil {
		return 0, err
	}
	var revertJSON []byte
	if len(in.RevertOps) > 0 {
		if revertJSON, err = types.EncodeOperations(in.RevertOps); err != nil {
			return 0, err
		}
	}

	var version int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		locked, err := s.versions.LockForTenant(dbc, in.TenantID)
		if err != nil {
			return err
		}
		var current int64
		if locked != nil {
			current = locked.Version
		}
		version = current + 1
		if in.BaseVersion >= version {
			version = in.BaseVersion + 1
		}

		// The audit insert is the idempotency gate: a replay of an
		// already-recorded proposal trips the unique proposal_id index here,
		// before the counter moved.
		auditErr := s.audits.Create(dbc, &types.AuditEntry{
			TenantID:      in.TenantID,
			ProposalID:    in.ProposalID,
			GraphVersion:  version,
			OpsApplied:    opsJSON,
			RevertOps:     revertJSON,
			CorrelationID: in.CorrelationID,
		})
		if errors.Is(auditErr, pkgerrors.ErrDuplicate) {
			prior, err := s.audits.GetByProposalID(dbc, in.ProposalID)
			if err != nil {
				return err
			}
			if prior == nil {
				return fmt.Errorf("proposal %s: duplicate audit entry not readable", in.ProposalID)
			}
			version = prior.GraphVersion
			// The proposal may already sit at DONE from the first pass.
			if err := s.proposals.UpdateStatus(dbc, in.ProposalID, in.FromStatus, types.ProposalStatusDone); err != nil &&
				!errors.Is(err, pkgerrors.ErrInvalidTransition) {
				return err
			}
			return nil
		}
		if auditErr != nil {
			return auditErr
		}

		if err := s.versions.Upsert(dbc, &types.TenantGraphVersion{
			TenantID: in.TenantID,
			Version:  version,
		}); err != nil {
			return err
		}

		rows := make([]*types.GraphChange, 0, len(in.ChangedTargets))
		for _, target := range in.ChangedTargets {
			rows = append(rows, &types.GraphChange{
				TenantID:     in.TenantID,
				GraphVersion: version,
				TargetID:     target,
			})
		}
		if err := s.changes.Create(dbc, rows); err != nil {
			return err
		}

		payload, err := json.Marshal(map[string]any{
			"proposal_id":     in.ProposalID,
			"graph_version":   version,
			"changed_targets": in.ChangedTargets,
			"correlation_id":  in.CorrelationID,
		})
		if err != nil {
			return err
		}
		if err := s.outbox.Create(dbc, &types.OutboxEvent{
			TenantID:  in.TenantID,
			EventType: types.EventGraphCommitted,
			Payload:   payload,
		}); err != nil {
			return err
		}

		return s.proposals.UpdateStatus(dbc, in.ProposalID, in.FromStatus, types.ProposalStatusDone)
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("ledger commit recorded",
		"tenant_id", in.TenantID.String(),
		"proposal_id", in.ProposalID.String(),
		"graph_version", version,
		"changed_targets", len(in.ChangedTargets),
	)
	return version, nil
}
