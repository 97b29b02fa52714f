package app

import (
	"context"

	"gorm.io/gorm"

	redisbus "github.com/yungbote/atlasgraph-backend/internal/clients/redis"
	"github.com/yungbote/atlasgraph-backend/internal/data/graph"
	"github.com/yungbote/atlasgraph-backend/internal/jobs/outbox"
	"github.com/yungbote/atlasgraph-backend/internal/jobs/recheck"
	"github.com/yungbote/atlasgraph-backend/internal/platform/logger"
	"github.com/yungbote/atlasgraph-backend/internal/platform/neo4jdb"
	"github.com/yungbote/atlasgraph-backend/internal/services"
)

type Services struct {
	Ledger   services.Ledger
	Gate     services.IntegrityGate
	Proposal services.ProposalService

	// RecheckProposal runs the same pipeline with an unbudgeted gate, used
	// only by the recheck worker.
	RecheckProposal services.ProposalService

	EventBus         redisbus.EventBus
	OutboxDispatcher *outbox.Dispatcher
	RecheckWorker    *recheck.Worker
}

func wireServices(db *gorm.DB, neo *neo4jdb.Client, log *logger.Logger, cfg Config, repos Repos) Services {
	log.Info("Wiring services...")

	applier := graph.NewApplier(neo, log)
	applier.EnsureSchema(context.Background())
	reader := graph.NewReader(neo, log)

	rules := services.LoadIntegrityRules(cfg.IntegrityRulesPath, log)
	gate := services.NewIntegrityGate(reader, rules, cfg.IntegrityBudget, log)
	asyncGate := services.NewIntegrityGate(reader, rules, 0, log)

	ledgerService := services.NewLedger(db, repos.Proposal, repos.GraphVersion, repos.GraphChange, repos.AuditEntry, repos.OutboxEvent, log)

	proposalService := services.NewProposalService(repos.Proposal, ledgerService, gate, applier, cfg.RetryAttempts, cfg.RetryBackoff, log)
	recheckService := services.NewProposalService(repos.Proposal, ledgerService, asyncGate, applier, cfg.RetryAttempts, cfg.RetryBackoff, log)

	out := Services{
		Ledger:          ledgerService,
		Gate:            gate,
		Proposal:        proposalService,
		RecheckProposal: recheckService,
		RecheckWorker:   recheck.NewWorker(repos.Proposal, recheckService, cfg.RecheckInterval, cfg.RecheckBatchSize, log),
	}

	bus, err := redisbus.NewEventBus(log)
	if err != nil {
		// Commits still work without the bus; outbox rows queue up until a
		// dispatcher comes back.
		log.Warn("Could not init EventBus, outbox dispatch disabled", "error", err)
		return out
	}
	out.EventBus = bus
	out.OutboxDispatcher = outbox.NewDispatcher(repos.OutboxEvent, bus, cfg.OutboxInterval, cfg.OutboxBatchSize, log)
	return out
}
