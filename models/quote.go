package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// QuoteStatus represents the lifecycle status of a contractor quote
type QuoteStatus string

const (
	QuoteStatusDraft     QuoteStatus = "DRAFT"
	QuoteStatusSent      QuoteStatus = "SENT"
	QuoteStatusAccepted  QuoteStatus = "ACCEPTED"
	QuoteStatusRejected  QuoteStatus = "REJECTED"
	QuoteStatusCompleted QuoteStatus = "COMPLETED"
)

// Quote is a contractor work quote for a customer. Once accepted it carries an
// ordered milestone payment schedule; the escrow ledger over those milestones
// is derived, never stored.
type Quote struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_quotes_uuid" json:"uuid"`

	CustomerID   uint `gorm:"not null;index:idx_quotes_customer_id" json:"customer_id"`
	ContractorID uint `gorm:"not null;index:idx_quotes_contractor_id" json:"contractor_id"`

	Details     string          `gorm:"type:text;not null" json:"details"`
	Location    *string         `gorm:"size:255" json:"location,omitempty"`
	TotalBudget decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"total_budget"` // VND

	Status QuoteStatus `gorm:"type:varchar(20);not null;default:'DRAFT';index:idx_quotes_status" json:"status"`

	StartDate  *time.Time `json:"start_date,omitempty"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`

	Milestones []Milestone `gorm:"foreignKey:QuoteID" json:"milestones,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_quotes_created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Customer   Customer `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Contractor Customer `gorm:"foreignKey:ContractorID" json:"contractor,omitempty"`
}

func (Quote) TableName() string {
	return "quotes"
}

// BeforeCreate ensures UUID is set
func (q *Quote) BeforeCreate(tx *gorm.DB) error {
	if q.UUID == uuid.Nil {
		q.UUID = uuid.New()
	}
	return nil
}

// IsParty reports whether the given customer id is the quote's customer or
// contractor.
func (q *Quote) IsParty(customerID uint) bool {
	return q.CustomerID == customerID || q.ContractorID == customerID
}

// ScheduledTotal sums the amounts of all milestones on the quote.
func (q *Quote) ScheduledTotal() decimal.Decimal {
	total := decimal.Zero
	for i := range q.Milestones {
		total = total.Add(q.Milestones[i].Amount)
	}
	return total
}

// IsOverBudget reports whether the milestone schedule exceeds the quote's
// total budget. This is a soft check: quotes get adjusted manually, so the
// condition is surfaced, never enforced.
func (q *Quote) IsOverBudget() bool {
	return q.ScheduledTotal().GreaterThan(q.TotalBudget)
}

// QuoteFilter represents filter criteria for quote queries
type QuoteFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	CustomerID    *uint
	ContractorID  *uint
	Status        *QuoteStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
