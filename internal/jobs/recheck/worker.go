package recheck

import (
	"context"
	"time"

	ledgerrepos "github.com/yungbote/atlasgraph-backend/internal/data/repos/ledger"
	types "github.com/yungbote/atlasgraph-backend/internal/domain"
	"github.com/yungbote/atlasgraph-backend/internal/observability"
	"github.com/yungbote/atlasgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/atlasgraph-backend/internal/platform/logger"
	"github.com/yungbote/atlasgraph-backend/internal/services"
)

// Worker resumes proposals parked at ASYNC_CHECK_REQUIRED. The commit service
// it holds is wired with an unbudgeted integrity gate, so the deferred checks
// run to completion here.
type Worker struct {
	log       *logger.Logger
	proposals ledgerrepos.ProposalRepo
	commits   services.ProposalService
	interval  time.Duration
	batchSize int
}

func NewWorker(proposals ledgerrepos.ProposalRepo, commits services.ProposalService, interval time.Duration, batchSize int, baseLog *logger.Logger) *Worker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Worker{
		log:       baseLog.With("component", "RecheckWorker"),
		proposals: proposals,
		commits:   commits,
		interval:  interval,
		batchSize: batchSize,
	}
}

func (w *Worker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.RunOnce(ctx); err != nil {
					w.log.Warn("recheck pass failed", "error", err)
				}
			}
		}
	}()
}

func (w *Worker) RunOnce(ctx context.Context) error {
	rows, err := w.proposals.ListByStatus(dbctx.Context{Ctx: ctx}, types.ProposalStatusAsyncCheckRequired, w.batchSize)
	if err != nil {
		return err
	}
	for _, row := range rows {
		res, err := w.commits.Commit(ctx, row.TenantID, row.ID)
		if err != nil {
			w.log.Warn("recheck commit failed", "proposal_id", row.ID.String(), "error", err)
			continue
		}
		if m := observability.Current(); m != nil {
			m.CountRecheck(res.Status)
		}
		w.log.Info("deferred proposal resolved",
			"proposal_id", row.ID.String(),
			"status", res.Status,
		)
	}
	return nil
}
