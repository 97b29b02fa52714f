package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/atlasgraph-backend/internal/data/repos/ledger"
	"github.com/yungbote/atlasgraph-backend/internal/platform/logger"
)

type Repos struct {
	Proposal     ledger.ProposalRepo
	GraphVersion ledger.GraphVersionRepo
	GraphChange  ledger.GraphChangeRepo
	AuditEntry   ledger.AuditEntryRepo
	OutboxEvent  ledger.OutboxEventRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Proposal:     ledger.NewProposalRepo(db, log),
		GraphVersion: ledger.NewGraphVersionRepo(db, log),
		GraphChange:  ledger.NewGraphChangeRepo(db, log),
		AuditEntry:   ledger.NewAuditEntryRepo(db, log),
		OutboxEvent:  ledger.NewOutboxEventRepo(db, log),
	}
}
