package ledger

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/atlasgraph-backend/internal/domain"
	"github.com/yungbote/atlasgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/atlasgraph-backend/internal/platform/logger"
)

type GraphVersionRepo interface {
	Get(dbc dbctx.Context, tenantID uuid.UUID) (*types.TenantGraphVersion, error)
	// LockForTenant takes a row lock (FOR UPDATE) so concurrent ledger commits
	// for one tenant serialize on the version counter. Requires dbc.Tx.
	LockForTenant(dbc dbctx.Context, tenantID uuid.UUID) (*types.TenantGraphVersion, error)
	Upsert(dbc dbctx.Context, row *types.TenantGraphVersion) error
}

type graphVersionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGraphVersionRepo(db *gorm.DB, baseLog *logger.Logger) GraphVersionRepo {
	return &graphVersionRepo{db: db, log: baseLog.With("repo", "GraphVersionRepo")}
}

func (r *graphVersionRepo) Get(dbc dbctx.Context, tenantID uuid.UUID) (*types.TenantGraphVersion, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if tenantID == uuid.Nil {
		return nil, nil
	}
	row := &types.TenantGraphVersion{}
	if err := t.WithContext(dbc.Ctx).
		Where("tenant_id = ?", tenantID).
		Limit(1).
		Find(row).Error; err != nil {
		return nil, err
	}
	if row.TenantID == uuid.Nil {
		return nil, nil
	}
	return row, nil
}

func (r *graphVersionRepo) LockForTenant(dbc dbctx.Context, tenantID uuid.UUID) (*types.TenantGraphVersion, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if tenantID == uuid.Nil {
		return nil, nil
	}
	row := &types.TenantGraphVersion{}
	if err := t.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ?", tenantID).
		Limit(1).
		Find(row).Error; err != nil {
		return nil, err
	}
	if row.TenantID == uuid.Nil {
		return nil, nil
	}
	return row, nil
}

func (r *graphVersionRepo) Upsert(dbc dbctx.Context, row *types.TenantGraphVersion) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil || row.TenantID == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	row.UpdatedAt = now
	return t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"version":    row.Version,
				"updated_at": now,
			}),
		}).
		Create(row).Error
}
