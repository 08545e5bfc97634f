package dto

// ScheduleItemRequest is one milestone of an explicit payment schedule.
type ScheduleItemRequest struct {
	Name   string `json:"name" validate:"required,min=2,max=255"`
	Amount string `json:"amount" validate:"required"`
}

// AcceptQuoteRequest moves a quote to ACCEPTED and creates its payment
// schedule. When milestones are omitted the default deposit/progress/final
// split is applied.
type AcceptQuoteRequest struct {
	QuoteUUID  string                `json:"-"`
	CustomerID uint                  `json:"-"` // from auth token
	Milestones []ScheduleItemRequest `json:"milestones,omitempty" validate:"omitempty,min=1,max=20,dive"`
}

type AcceptQuoteResponse struct {
	Message string   `json:"message"`
	Quote   QuoteDTO `json:"quote"`
}

// QuoteDTO is the API shape of a project quote.
type QuoteDTO struct {
	UUID         string         `json:"uuid"`
	CustomerID   uint           `json:"customer_id"`
	ContractorID uint           `json:"contractor_id"`
	Details      string         `json:"details"`
	Location     *string        `json:"location,omitempty"`
	TotalBudget  string         `json:"total_budget"`
	Currency     string         `json:"currency"`
	Status       string         `json:"status"`
	StartDate    *string        `json:"start_date,omitempty"`
	AcceptedAt   *string        `json:"accepted_at,omitempty"`
	CreatedAt    string         `json:"created_at"`
	Milestones   []MilestoneDTO `json:"milestones,omitempty"`
}

type GetQuoteRequest struct {
	QuoteUUID  string `json:"-"`
	CustomerID uint   `json:"-"`
}

type GetQuoteResponse struct {
	Message string   `json:"message"`
	Quote   QuoteDTO `json:"quote"`
}

type ListQuotesRequest struct {
	CustomerID uint `json:"-"`
	Pagination
}

type ListQuotesResponse struct {
	Message string     `json:"message"`
	Items   []QuoteDTO `json:"items"`
	Total   int64      `json:"total"`
}

// GetEscrowLedgerRequest asks for the derived escrow position of a quote.
type GetEscrowLedgerRequest struct {
	QuoteUUID  string `json:"-"`
	CustomerID uint   `json:"-"`
}

// EscrowLedgerDTO is the derived escrow position of a quote. Figures are
// recomputed from milestone states on every read, never stored.
type EscrowLedgerDTO struct {
	TotalCommitted  string `json:"total_committed"`
	Pending         string `json:"pending"`
	Held            string `json:"held"`
	Released        string `json:"released"`
	Refunded        string `json:"refunded"`
	ClawbackPending string `json:"clawback_pending"`
	Currency        string `json:"currency"`
	OverBudget      bool   `json:"over_budget"`
}

type GetEscrowLedgerResponse struct {
	Message string          `json:"message"`
	Ledger  EscrowLedgerDTO `json:"ledger"`
}
