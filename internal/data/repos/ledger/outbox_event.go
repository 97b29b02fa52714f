package ledger

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/atlasgraph-backend/internal/domain"
	"github.com/yungbote/atlasgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/atlasgraph-backend/internal/platform/logger"
)

type OutboxEventRepo interface {
	Create(dbc dbctx.Context, row *types.OutboxEvent) error
	ListUnpublished(dbc dbctx.Context, limit int) ([]*types.OutboxEvent, error)
	MarkPublished(dbc dbctx.Context, ids []uuid.UUID) error
}

type outboxEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOutboxEventRepo(db *gorm.DB, baseLog *logger.Logger) OutboxEventRepo {
	return &outboxEventRepo{db: db, log: baseLog.With("repo", "OutboxEventRepo")}
}

func (r *outboxEventRepo) Create(dbc dbctx.Context, row *types.OutboxEvent) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		return nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return t.WithContext(dbc.Ctx).Create(row).Error
}

func (r *outboxEventRepo) ListUnpublished(dbc dbctx.Context, limit int) ([]*types.OutboxEvent, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var out []*types.OutboxEvent
	if err := t.WithContext(dbc.Ctx).
		Where("published = ?", false).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *outboxEventRepo) MarkPublished(dbc dbctx.Context, ids []uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return t.WithContext(dbc.Ctx).
		Model(&types.OutboxEvent{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"published":    true,
			"published_at": now,
		}).Error
}
