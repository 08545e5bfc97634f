package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DisputeStatus represents the handling status of a dispute
type DisputeStatus string

const (
	DisputeStatusOpen       DisputeStatus = "OPEN"
	DisputeStatusInProgress DisputeStatus = "IN_PROGRESS"
	DisputeStatusWaiting    DisputeStatus = "WAITING"
	DisputeStatusResolved   DisputeStatus = "RESOLVED"
)

// DisputeOutcome is the admin's binding ruling over the frozen milestone.
type DisputeOutcome string

const (
	DisputeOutcomeReleased DisputeOutcome = "RELEASED"
	DisputeOutcomeRefunded DisputeOutcome = "REFUNDED"
)

// Dispute is a formal contestation of a milestone's fund movement. Opening
// one freezes the milestone; only an admin resolution unfreezes it. The
// OPEN -> IN_PROGRESS -> WAITING progression is advisory bookkeeping, the
// binding side effect lives entirely in resolution.
type Dispute struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_disputes_uuid" json:"uuid"`

	MilestoneID uint `gorm:"not null;index:idx_disputes_milestone_id" json:"milestone_id"`
	QuoteID     uint `gorm:"not null;index:idx_disputes_quote_id" json:"quote_id"`
	OpenerID    uint `gorm:"not null;index:idx_disputes_opener_id" json:"opener_id"`

	Reason string        `gorm:"type:text;not null" json:"reason"`
	Status DisputeStatus `gorm:"type:varchar(20);not null;default:'OPEN';index:idx_disputes_status" json:"status"`

	Outcome         *DisputeOutcome `gorm:"type:varchar(20)" json:"outcome,omitempty"`
	ResolutionNotes *string         `gorm:"type:text" json:"resolution_notes,omitempty"`
	ResolvedBy      *uint           `json:"resolved_by,omitempty"` // admin id
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`

	Comments []DisputeComment  `gorm:"foreignKey:DisputeID" json:"comments,omitempty"`
	Evidence []DisputeEvidence `gorm:"foreignKey:DisputeID" json:"evidence,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_disputes_created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Milestone Milestone `gorm:"foreignKey:MilestoneID;constraint:OnDelete:CASCADE" json:"milestone,omitempty"`
}

func (Dispute) TableName() string {
	return "disputes"
}

// BeforeCreate ensures UUID is set
func (d *Dispute) BeforeCreate(tx *gorm.DB) error {
	if d.UUID == uuid.Nil {
		d.UUID = uuid.New()
	}
	return nil
}

// IsOpen reports whether the dispute still accepts comments and evidence.
func (d *Dispute) IsOpen() bool {
	return d.Status != DisputeStatusResolved
}

// CanBeResolved reports whether an admin ruling is still permitted.
func (d *Dispute) CanBeResolved() bool {
	return d.Status == DisputeStatusOpen || d.Status == DisputeStatusInProgress
}

// DisputeComment is an append-only log entry on a dispute, tagged with its
// author.
type DisputeComment struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	DisputeID uint `gorm:"not null;index:idx_dispute_comments_dispute_id" json:"dispute_id"`

	AuthorID uint   `gorm:"not null" json:"author_id"`
	IsAdmin  bool   `gorm:"not null;default:false" json:"is_admin"`
	Body     string `gorm:"type:text;not null" json:"body"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (DisputeComment) TableName() string {
	return "dispute_comments"
}

// DisputeEvidence is an append-only evidence attachment record. The file
// itself lives in external storage; only the reference is kept here.
type DisputeEvidence struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	DisputeID uint `gorm:"not null;index:idx_dispute_evidence_dispute_id" json:"dispute_id"`

	UploaderID  uint    `gorm:"not null" json:"uploader_id"`
	FileURL     string  `gorm:"size:512;not null" json:"file_url"`
	Description *string `gorm:"type:text" json:"description,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (DisputeEvidence) TableName() string {
	return "dispute_evidence"
}

// DisputeFilter represents filter criteria for dispute queries
type DisputeFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	MilestoneID   *uint
	QuoteID       *uint
	OpenerID      *uint
	Status        *DisputeStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
