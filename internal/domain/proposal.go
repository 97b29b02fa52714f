package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Proposal status state machine:
// DRAFT -> {APPROVED, REJECTED}; APPROVED -> {DONE, FAILED, CONFLICT,
// ASYNC_CHECK_REQUIRED}. REJECTED and DONE are terminal. FAILED/CONFLICT/
// ASYNC_CHECK_REQUIRED end this proposal instance but a corrected proposal
// may always be drafted against the current version.
const (
	ProposalStatusDraft              = "DRAFT"
	ProposalStatusApproved           = "APPROVED"
	ProposalStatusRejected           = "REJECTED"
	ProposalStatusDone               = "DONE"
	ProposalStatusFailed             = "FAILED"
	ProposalStatusConflict           = "CONFLICT"
	ProposalStatusAsyncCheckRequired = "ASYNC_CHECK_REQUIRED"
)

// AllowedTransitions maps a status to the statuses the commit pipeline (or an
// explicit approve/reject) may move it to.
var AllowedTransitions = map[string][]string{
	ProposalStatusDraft:    {ProposalStatusApproved, ProposalStatusRejected},
	ProposalStatusApproved: {ProposalStatusDone, ProposalStatusFailed, ProposalStatusConflict, ProposalStatusAsyncCheckRequired},
	// Deferred checks resume through the recheck worker.
	ProposalStatusAsyncCheckRequired: {ProposalStatusDone, ProposalStatusFailed, ProposalStatusConflict},
}

func TransitionAllowed(from, to string) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Proposal struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TenantID uuid.UUID `gorm:"column:tenant_id;type:uuid;not null;index" json:"tenant_id"`

	// Graph version the author observed while drafting; the OCC token.
	BaseGraphVersion int64  `gorm:"column:base_graph_version;not null;default:0" json:"base_graph_version"`
	Checksum         string `gorm:"column:checksum;type:text;not null;index" json:"checksum"`
	Status           string `gorm:"column:status;type:text;not null;default:'DRAFT';index" json:"status"`

	// Ordered operation list, serialized with the wire shape of Operation.
	Ops datatypes.JSON `gorm:"column:ops;type:jsonb;not null" json:"ops"`

	CorrelationID string `gorm:"column:correlation_id;type:text" json:"correlation_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Proposal) TableName() string { return "proposal" }

// Violations is the structured payload of a failed integrity gate. The three
// cardinality-adjacent kinds stay distinct to support differentiated alerting.
type Violations struct {
	PrereqCycles [][]string `json:"prereq_cycles,omitempty"`
	MissingBasis []string   `json:"missing_basis,omitempty"`
	BasisTooFew  []string   `json:"basis_too_few,omitempty"`
	BasisTooMany []string   `json:"basis_too_many,omitempty"`
}

func (v Violations) Empty() bool {
	return len(v.PrereqCycles) == 0 &&
		len(v.MissingBasis) == 0 &&
		len(v.BasisTooFew) == 0 &&
		len(v.BasisTooMany) == 0
}

// EdgePair is a directed edge between two node uids, as read back from the
// graph store for integrity checks.
type EdgePair struct {
	FromUID string
	ToUID   string
}
