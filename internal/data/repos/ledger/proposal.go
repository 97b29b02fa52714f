package ledger

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/atlasgraph-backend/internal/domain"
	"github.com/yungbote/atlasgraph-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/atlasgraph-backend/internal/pkg/errors"
	"github.com/yungbote/atlasgraph-backend/internal/platform/logger"
)

type ProposalRepo interface {
	Create(dbc dbctx.Context, row *types.Proposal) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Proposal, error)
	GetByTenantAndChecksum(dbc dbctx.Context, tenantID uuid.UUID, checksum string) (*types.Proposal, error)
	ListByStatus(dbc dbctx.Context, status string, limit int) ([]*types.Proposal, error)
	UpdateStatus(dbc dbctx.Context, id uuid.UUID, from, to string) error
}

type proposalRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProposalRepo(db *gorm.DB, baseLog *logger.Logger) ProposalRepo {
	return &proposalRepo{db: db, log: baseLog.With("repo", "ProposalRepo")}
}

func (r *proposalRepo) Create(dbc dbctx.Context, row *types.Proposal) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		return nil
	}
	now := time.Now().UTC()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.Status == "" {
		row.Status = types.ProposalStatusDraft
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = now
	}
	return t.WithContext(dbc.Ctx).Create(row).Error
}

func (r *proposalRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Proposal, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	row := &types.Proposal{}
	if err := t.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return row, nil
}

func (r *proposalRepo) GetByTenantAndChecksum(dbc dbctx.Context, tenantID uuid.UUID, checksum string) (*types.Proposal, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	checksum = strings.TrimSpace(checksum)
	if tenantID == uuid.Nil || checksum == "" {
		return nil, nil
	}
	row := &types.Proposal{}
	if err := t.WithContext(dbc.Ctx).
		Where("tenant_id = ? AND checksum = ?", tenantID, checksum).
		Order("created_at DESC").
		Limit(1).
		Find(row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return row, nil
}

func (r *proposalRepo) ListByStatus(dbc dbctx.Context, status string, limit int) ([]*types.Proposal, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	status = strings.TrimSpace(status)
	if status == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	var out []*types.Proposal
	if err := t.WithContext(dbc.Ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStatus enforces the state machine: the row only moves when its current
// status is the expected one, so two racing commits cannot both win.
func (r *proposalRepo) UpdateStatus(dbc dbctx.Context, id uuid.UUID, from, to string) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return errors.New("missing proposal id")
	}
	if !types.TransitionAllowed(from, to) {
		return pkgerrors.ErrInvalidTransition
	}
	res := t.WithContext(dbc.Ctx).
		Model(&types.Proposal{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.ErrInvalidTransition
	}
	return nil
}
