package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// TenantGraphVersion is the per-tenant monotonic counter, bumped exactly once
// per successful commit inside the ledger transaction.
type TenantGraphVersion struct {
	TenantID  uuid.UUID `gorm:"column:tenant_id;type:uuid;primaryKey" json:"tenant_id"`
	Version   int64     `gorm:"column:version;not null;default:0" json:"version"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (TenantGraphVersion) TableName() string { return "tenant_graph_version" }

// GraphChange records that a target identifier changed at a version. A change
// at version > a proposal's base version on an overlapping target is the sole
// conflict signal.
type GraphChange struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TenantID     uuid.UUID `gorm:"column:tenant_id;type:uuid;not null;index;uniqueIndex:ux_graph_change,priority:1" json:"tenant_id"`
	GraphVersion int64     `gorm:"column:graph_version;not null;index;uniqueIndex:ux_graph_change,priority:2" json:"graph_version"`
	TargetID     string    `gorm:"column:target_id;type:text;not null;uniqueIndex:ux_graph_change,priority:3" json:"target_id"`
	CreatedAt    time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (GraphChange) TableName() string { return "graph_change" }

// AuditEntry is append-only; the unique proposal_id index is the idempotency
// key that makes the ledger step safe to replay after a crash between the
// graph write and the ledger write.
type AuditEntry struct {
	TxID         uuid.UUID      `gorm:"column:tx_id;type:uuid;primaryKey" json:"tx_id"`
	TenantID     uuid.UUID      `gorm:"column:tenant_id;type:uuid;not null;index" json:"tenant_id"`
	ProposalID   uuid.UUID      `gorm:"column:proposal_id;type:uuid;not null;uniqueIndex" json:"proposal_id"`
	GraphVersion int64          `gorm:"column:graph_version;not null" json:"graph_version"`
	OpsApplied   datatypes.JSON `gorm:"column:ops_applied;type:jsonb" json:"ops_applied"`

	// Inverse operations, recorded for rollback tooling but never auto-applied.
	RevertOps datatypes.JSON `gorm:"column:revert_ops;type:jsonb" json:"revert_ops,omitempty"`

	CorrelationID string    `gorm:"column:correlation_id;type:text" json:"correlation_id,omitempty"`
	CreatedAt     time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (AuditEntry) TableName() string { return "audit_entry" }

const EventGraphCommitted = "graph.committed"

// OutboxEvent is written in the same transaction as the audit entry and
// consumed by the dispatcher, which publishes it and flips the flag.
type OutboxEvent struct {
	ID          uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TenantID    uuid.UUID      `gorm:"column:tenant_id;type:uuid;not null;index" json:"tenant_id"`
	EventType   string         `gorm:"column:event_type;type:text;not null" json:"event_type"`
	Payload     datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	Published   bool           `gorm:"column:published;not null;default:false;index" json:"published"`
	CreatedAt   time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	PublishedAt *time.Time     `gorm:"column:published_at" json:"published_at,omitempty"`
}

func (OutboxEvent) TableName() string { return "outbox_event" }
