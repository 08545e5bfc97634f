package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MilestoneStatus represents the escrow state of a payment milestone
type MilestoneStatus string

const (
	MilestoneStatusPending    MilestoneStatus = "PENDING"     // Awaiting customer escrow deposit
	MilestoneStatusEscrowPaid MilestoneStatus = "ESCROW_PAID" // Funds held by the platform
	MilestoneStatusReleased   MilestoneStatus = "RELEASED"    // Funds owed to the contractor
	MilestoneStatusRefunded   MilestoneStatus = "REFUNDED"    // Funds returned to the customer
	MilestoneStatusDisputed   MilestoneStatus = "DISPUTED"    // Frozen until admin resolution
)

// milestoneTransitions is the full transition relation of the settlement state
// machine. Every status write must travel one of these edges through a
// conditional update; no handler writes milestone status directly.
var milestoneTransitions = map[MilestoneStatus][]MilestoneStatus{
	MilestoneStatusPending:    {MilestoneStatusEscrowPaid},
	MilestoneStatusEscrowPaid: {MilestoneStatusReleased, MilestoneStatusRefunded, MilestoneStatusDisputed},
	MilestoneStatusReleased:   {MilestoneStatusDisputed}, // only within the release grace window
	MilestoneStatusDisputed:   {MilestoneStatusReleased, MilestoneStatusRefunded},
	MilestoneStatusRefunded:   {},
}

// CanTransition reports whether the state machine permits moving from one
// status to another.
func CanTransition(from, to MilestoneStatus) bool {
	for _, next := range milestoneTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Milestone is a discrete, sequenced portion of a quote's total payment,
// escrowed and released independently of its siblings.
type Milestone struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_milestones_uuid" json:"uuid"`

	QuoteID  uint   `gorm:"not null;index:idx_milestones_quote_id" json:"quote_id"`
	Name     string `gorm:"size:255;not null" json:"name"`
	Sequence int    `gorm:"not null" json:"sequence"`

	Amount decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"amount"` // VND

	Status       MilestoneStatus `gorm:"type:varchar(20);not null;default:'PENDING';index:idx_milestones_status" json:"status"`
	StatusReason *string         `gorm:"type:text" json:"status_reason,omitempty"`

	// A REFUNDED outcome on a milestone that had already been released is a
	// clawback: the status flips but actual money recovery from the
	// contractor is manual reconciliation, tracked by this flag.
	ClawbackPending *bool `gorm:"default:false" json:"clawback_pending"`

	PaidAt     *time.Time `json:"paid_at,omitempty"`
	ReleasedAt *time.Time `json:"released_at,omitempty"`
	RefundedAt *time.Time `json:"refunded_at,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Quote Quote `gorm:"foreignKey:QuoteID;constraint:OnDelete:CASCADE" json:"quote,omitempty"`
}

func (Milestone) TableName() string {
	return "milestones"
}

// BeforeCreate ensures UUID is set
func (m *Milestone) BeforeCreate(tx *gorm.DB) error {
	if m.UUID == uuid.Nil {
		m.UUID = uuid.New()
	}
	return nil
}

// IsTerminal reports whether the milestone has reached a settled state that
// only a dispute inside the grace window can reopen.
func (m *Milestone) IsTerminal() bool {
	return m.Status == MilestoneStatusReleased || m.Status == MilestoneStatusRefunded
}

// IsHeld reports whether the platform currently holds the milestone's funds.
func (m *Milestone) IsHeld() bool {
	return m.Status == MilestoneStatusEscrowPaid || m.Status == MilestoneStatusDisputed
}

// MilestoneFilter represents filter criteria for milestone queries
type MilestoneFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	QuoteID       *uint
	Status        *MilestoneStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
