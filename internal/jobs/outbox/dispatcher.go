package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"

	redisbus "github.com/yungbote/atlasgraph-backend/internal/clients/redis"
	ledgerrepos "github.com/yungbote/atlasgraph-backend/internal/data/repos/ledger"
	"github.com/yungbote/atlasgraph-backend/internal/observability"
	"github.com/yungbote/atlasgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/atlasgraph-backend/internal/platform/logger"
)

// Dispatcher drains unpublished outbox rows onto the event bus. Publishing is
// at-least-once: a crash between Publish and MarkPublished replays the event.
type Dispatcher struct {
	log       *logger.Logger
	outbox    ledgerrepos.OutboxEventRepo
	bus       redisbus.EventBus
	interval  time.Duration
	batchSize int
}

func NewDispatcher(outbox ledgerrepos.OutboxEventRepo, bus redisbus.EventBus, interval time.Duration, batchSize int, baseLog *logger.Logger) *Dispatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Dispatcher{
		log:       baseLog.With("component", "OutboxDispatcher"),
		outbox:    outbox,
		bus:       bus,
		interval:  interval,
		batchSize: batchSize,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := d.RunOnce(ctx); err != nil {
					d.log.Warn("outbox drain failed", "error", err)
				}
			}
		}
	}()
}

// RunOnce drains one batch. Events that fail to publish stay unpublished and
// retry on the next tick.
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	rows, err := d.outbox.ListUnpublished(dbctx.Context{Ctx: ctx}, d.batchSize)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	published := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		err := d.bus.Publish(ctx, redisbus.Event{
			ID:        row.ID,
			TenantID:  row.TenantID,
			EventType: row.EventType,
			Payload:   []byte(row.Payload),
		})
		if err != nil {
			d.log.Warn("outbox publish failed", "event_id", row.ID.String(), "error", err)
			if m := observability.Current(); m != nil {
				m.CountOutboxPublishFailed()
			}
			continue
		}
		published = append(published, row.ID)
	}
	if len(published) == 0 {
		return nil
	}
	if err := d.outbox.MarkPublished(dbctx.Context{Ctx: ctx}, published); err != nil {
		return err
	}
	if m := observability.Current(); m != nil {
		m.CountOutboxPublished(len(published))
	}
	d.log.Info("outbox events published", "count", len(published))
	return nil
}
