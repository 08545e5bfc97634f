package dto

// MilestoneDTO is the API shape of a payment milestone.
type MilestoneDTO struct {
	UUID            string  `json:"uuid"`
	QuoteUUID       string  `json:"quote_uuid,omitempty"`
	Name            string  `json:"name"`
	Sequence        int     `json:"sequence"`
	Amount          string  `json:"amount"`
	Currency        string  `json:"currency"`
	Status          string  `json:"status"`
	StatusReason    *string `json:"status_reason,omitempty"`
	ClawbackPending bool    `json:"clawback_pending,omitempty"`
	PaidAt          *string `json:"paid_at,omitempty"`
	ReleasedAt      *string `json:"released_at,omitempty"`
	RefundedAt      *string `json:"refunded_at,omitempty"`
}

// PayMilestoneRequest funds a milestone into escrow. The payer must be the
// buyer on the quote.
type PayMilestoneRequest struct {
	MilestoneUUID string `json:"-"`
	CustomerID    uint   `json:"-"`
	PaymentRef    string `json:"payment_ref,omitempty" validate:"omitempty,max=128"`
}

type PayMilestoneResponse struct {
	Message   string       `json:"message"`
	Milestone MilestoneDTO `json:"milestone"`
}

// ReleaseMilestoneRequest releases held funds to the contractor. Only the
// buyer may release.
type ReleaseMilestoneRequest struct {
	MilestoneUUID string `json:"-"`
	CustomerID    uint   `json:"-"`
	Reason        string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

type ReleaseMilestoneResponse struct {
	Message   string       `json:"message"`
	Milestone MilestoneDTO `json:"milestone"`
}

// RefundMilestoneRequest returns held funds to the buyer. Issued by the
// buyer as a pre-dispute cancellation, or by an administrator.
type RefundMilestoneRequest struct {
	MilestoneUUID string `json:"-"`
	CustomerID    uint   `json:"-"`
	AdminID       uint   `json:"-"`
	Reason        string `json:"reason" validate:"required,min=3,max=500"`
}

type RefundMilestoneResponse struct {
	Message   string       `json:"message"`
	Milestone MilestoneDTO `json:"milestone"`
}

type GetMilestoneRequest struct {
	MilestoneUUID string `json:"-"`
	CustomerID    uint   `json:"-"`
}

type GetMilestoneResponse struct {
	Message   string       `json:"message"`
	Milestone MilestoneDTO `json:"milestone"`
}
