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

type GraphChangeRepo interface {
	Create(dbc dbctx.Context, rows []*types.GraphChange) error
	// DistinctTargetsChangedSince returns every target that has a change record
	// at a version strictly greater than baseVersion for the tenant.
	DistinctTargetsChangedSince(dbc dbctx.Context, tenantID uuid.UUID, baseVersion int64) ([]string, error)
	ListByVersion(dbc dbctx.Context, tenantID uuid.UUID, version int64) ([]*types.GraphChange, error)
}

type graphChangeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGraphChangeRepo(db *gorm.DB, baseLog *logger.Logger) GraphChangeRepo {
	return &graphChangeRepo{db: db, log: baseLog.With("repo", "GraphChangeRepo")}
}

func (r *graphChangeRepo) Create(dbc dbctx.Context, rows []*types.GraphChange) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
	}
	// Replayed ledger writes re-insert the same (tenant, version, target)
	// tuples; DoNothing keeps the replay idempotent.
	return t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "graph_version"}, {Name: "target_id"}},
			DoNothing: true,
		}).
		Create(&rows).Error
}

func (r *graphChangeRepo) DistinctTargetsChangedSince(dbc dbctx.Context, tenantID uuid.UUID, baseVersion int64) ([]string, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if tenantID == uuid.Nil {
		return nil, nil
	}
	var out []string
	if err := t.WithContext(dbc.Ctx).
		Model(&types.GraphChange{}).
		Distinct("target_id").
		Where("tenant_id = ? AND graph_version > ?", tenantID, baseVersion).
		Pluck("target_id", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *graphChangeRepo) ListByVersion(dbc dbctx.Context, tenantID uuid.UUID, version int64) ([]*types.GraphChange, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if tenantID == uuid.Nil {
		return nil, nil
	}
	var out []*types.GraphChange
	if err := t.WithContext(dbc.Ctx).
		Where("tenant_id = ? AND graph_version = ?", tenantID, version).
		Order("target_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
