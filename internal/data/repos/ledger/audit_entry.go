package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	types "github.com/yungbote/atlasgraph-backend/internal/domain"
	"github.com/yungbote/atlasgraph-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/atlasgraph-backend/internal/pkg/errors"
	"github.com/yungbote/atlasgraph-backend/internal/platform/logger"
)

type AuditEntryRepo interface {
	// Create appends one entry. A second append for the same proposal returns
	// ErrDuplicate; the entry is never updated.
	Create(dbc dbctx.Context, row *types.AuditEntry) error
	GetByProposalID(dbc dbctx.Context, proposalID uuid.UUID) (*types.AuditEntry, error)
}

type auditEntryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAuditEntryRepo(db *gorm.DB, baseLog *logger.Logger) AuditEntryRepo {
	return &auditEntryRepo{db: db, log: baseLog.With("repo", "AuditEntryRepo")}
}

func (r *auditEntryRepo) Create(dbc dbctx.Context, row *types.AuditEntry) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil || row.ProposalID == uuid.Nil {
		return fmt.Errorf("audit entry requires proposal_id")
	}
	now := time.Now().UTC()
	if row.TxID == uuid.Nil {
		row.TxID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	if err := t.WithContext(dbc.Ctx).Create(row).Error; err != nil {
		if isUniqueViolation(err) {
			return pkgerrors.ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *auditEntryRepo) GetByProposalID(dbc dbctx.Context, proposalID uuid.UUID) (*types.AuditEntry, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if proposalID == uuid.Nil {
		return nil, nil
	}
	row := &types.AuditEntry{}
	if err := t.WithContext(dbc.Ctx).
		Where("proposal_id = ?", proposalID).
		Limit(1).
		Find(row).Error; err != nil {
		return nil, err
	}
	if row.TxID == uuid.Nil {
		return nil, nil
	}
	return row, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
