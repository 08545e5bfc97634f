package dto

// OpenDisputeRequest freezes a held milestone pending resolution.
type OpenDisputeRequest struct {
	MilestoneUUID string `json:"-"`
	CustomerID    uint   `json:"-"`
	Reason        string `json:"reason" validate:"required,min=10,max=2000"`
}

type OpenDisputeResponse struct {
	Message string     `json:"message"`
	Dispute DisputeDTO `json:"dispute"`
}

// ResolveDisputeRequest settles a dispute with a terminal outcome. Admin only.
type ResolveDisputeRequest struct {
	DisputeUUID     string `json:"-"`
	AdminID         uint   `json:"-"`
	Outcome         string `json:"outcome" validate:"required,oneof=RELEASED REFUNDED"`
	ResolutionNotes string `json:"resolution_notes" validate:"required,min=10,max=2000"`
}

type ResolveDisputeResponse struct {
	Message string     `json:"message"`
	Dispute DisputeDTO `json:"dispute"`
}

type AddDisputeCommentRequest struct {
	DisputeUUID string `json:"-"`
	AuthorID    uint   `json:"-"`
	IsAdmin     bool   `json:"-"`
	Body        string `json:"body" validate:"required,min=1,max=4000"`
}

type AddDisputeCommentResponse struct {
	Message string            `json:"message"`
	Comment DisputeCommentDTO `json:"comment"`
}

type AddDisputeEvidenceRequest struct {
	DisputeUUID string `json:"-"`
	UploaderID  uint   `json:"-"`
	FileURL     string `json:"file_url" validate:"required,url,max=2048"`
	Description string `json:"description,omitempty" validate:"omitempty,max=1000"`
}

type AddDisputeEvidenceResponse struct {
	Message  string             `json:"message"`
	Evidence DisputeEvidenceDTO `json:"evidence"`
}

type GetDisputeRequest struct {
	DisputeUUID string `json:"-"`
	CustomerID  uint   `json:"-"`
	IsAdmin     bool   `json:"-"`
}

type GetDisputeResponse struct {
	Message string     `json:"message"`
	Dispute DisputeDTO `json:"dispute"`
}

// DisputeDTO is the API shape of a dispute and its thread.
type DisputeDTO struct {
	UUID            string               `json:"uuid"`
	MilestoneUUID   string               `json:"milestone_uuid"`
	QuoteUUID       string               `json:"quote_uuid,omitempty"`
	OpenerID        uint                 `json:"opener_id"`
	Reason          string               `json:"reason"`
	Status          string               `json:"status"`
	Outcome         *string              `json:"outcome,omitempty"`
	ResolutionNotes *string              `json:"resolution_notes,omitempty"`
	ResolvedBy      *uint                `json:"resolved_by,omitempty"`
	ResolvedAt      *string              `json:"resolved_at,omitempty"`
	CreatedAt       string               `json:"created_at"`
	Comments        []DisputeCommentDTO  `json:"comments,omitempty"`
	Evidence        []DisputeEvidenceDTO `json:"evidence,omitempty"`
}

type DisputeCommentDTO struct {
	ID        uint   `json:"id"`
	AuthorID  uint   `json:"author_id"`
	IsAdmin   bool   `json:"is_admin"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

type DisputeEvidenceDTO struct {
	ID          uint    `json:"id"`
	UploaderID  uint    `json:"uploader_id"`
	FileURL     string  `json:"file_url"`
	Description *string `json:"description,omitempty"`
	CreatedAt   string  `json:"created_at"`
}
