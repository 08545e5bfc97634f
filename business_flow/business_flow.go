// Package businessflow contains the business logic for the application.
package businessflow

import (
	"context"
	"fmt"
	"time"

	"github.com/trungvq/vatlieu-marketplace/app/dto"
	"github.com/trungvq/vatlieu-marketplace/config"
	"github.com/trungvq/vatlieu-marketplace/models"
	"github.com/trungvq/vatlieu-marketplace/repository"
	"github.com/trungvq/vatlieu-marketplace/utils"
)


// ClientMetadata holds all client-related information for audit logging and session tracking
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address"`
	UserAgent  string            `json:"user_agent"`
	DeviceInfo map[string]string `json:"device_info,omitempty"`
	Location   *LocationInfo     `json:"location,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	SessionID  string            `json:"session_id,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// LocationInfo holds geographical location information
type LocationInfo struct {
	Country   string `json:"country,omitempty"`
	Region    string `json:"region,omitempty"`
	City      string `json:"city,omitempty"`
	Latitude  string `json:"latitude,omitempty"`
	Longitude string `json:"longitude,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		DeviceInfo: make(map[string]string),
		Additional: make(map[string]string),
	}
}

// AddDeviceInfo adds device information to the metadata
func (cm *ClientMetadata) AddDeviceInfo(key, value string) {
	if cm.DeviceInfo == nil {
		cm.DeviceInfo = make(map[string]string)
	}
	cm.DeviceInfo[key] = value
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

// SetLocation sets location information
func (cm *ClientMetadata) SetLocation(location *LocationInfo) {
	cm.Location = location
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// SetSessionID sets the session ID
func (cm *ClientMetadata) SetSessionID(sessionID string) {
	cm.SessionID = sessionID
}

// getCustomer loads an active customer by ID or fails with the matching
// sentinel error.
func getCustomer(ctx context.Context, repo repository.CustomerRepository, customerID uint) (models.Customer, error) {
	customer, err := repo.ByID(ctx, customerID)
	if err != nil {
		return models.Customer{}, err
	}
	if customer == nil {
		return models.Customer{}, ErrCustomerNotFound
	}
	if !utils.IsTrue(customer.IsActive) {
		return models.Customer{}, ErrAccountInactive
	}
	return *customer, nil
}

func getAdmin(ctx context.Context, repo repository.AdminRepository, adminID uint) (models.Admin, error) {
	admin, err := repo.ByID(ctx, adminID)
	if err != nil {
		return models.Admin{}, err
	}
	if admin == nil {
		return models.Admin{}, ErrAdminNotFound
	}
	if !utils.IsTrue(admin.IsActive) {
		return models.Admin{}, ErrAdminNotFound
	}
	return *admin, nil
}

// createAuditLog records an audit entry. Failures are swallowed by callers;
// auditing never blocks a settlement operation.
func createAuditLog(ctx context.Context, auditRepo repository.AuditLogRepository, customer *models.Customer, action, description string, success bool, errorMsg *string, metadata *ClientMetadata) error {
	var customerID *uint
	if customer != nil {
		customerID = &customer.ID
	}

	ipAddress := "127.0.0.1"
	userAgent := ""
	if metadata != nil {
		ipAddress = metadata.IPAddress
		userAgent = metadata.UserAgent
	}

	audit := &models.AuditLog{
		CustomerID:   customerID,
		Action:       action,
		Description:  &description,
		Success:      utils.ToPtr(success),
		IPAddress:    &ipAddress,
		UserAgent:    &userAgent,
		ErrorMessage: errorMsg,
	}

	// Extract request ID from context if available
	requestID := ctx.Value(utils.RequestIDKey)
	if requestID != nil {
		requestIDStr, ok := requestID.(string)
		if ok {
			audit.RequestID = &requestIDStr
		}
	}

	return auditRepo.Save(ctx, audit)
}

// redisKey namespaces a cache key with the configured prefix.
func redisKey(cfg config.CacheConfig, key string) string {
	return fmt.Sprintf("%s%s", cfg.RedisPrefix, key)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

// ToQuoteDTO converts a quote model to its API shape, milestones included
// when loaded.
func ToQuoteDTO(quote models.Quote) dto.QuoteDTO {
	out := dto.QuoteDTO{
		UUID:         quote.UUID.String(),
		CustomerID:   quote.CustomerID,
		ContractorID: quote.ContractorID,
		Details:      quote.Details,
		Location:     quote.Location,
		TotalBudget:  quote.TotalBudget.StringFixed(2),
		Currency:     utils.VNDCurrency,
		Status:       string(quote.Status),
		StartDate:    formatTimePtr(quote.StartDate),
		AcceptedAt:   formatTimePtr(quote.AcceptedAt),
		CreatedAt:    quote.CreatedAt.Format(time.RFC3339),
	}

	for _, m := range quote.Milestones {
		out.Milestones = append(out.Milestones, ToMilestoneDTO(m))
	}

	return out
}

func ToMilestoneDTO(m models.Milestone) dto.MilestoneDTO {
	return dto.MilestoneDTO{
		UUID:            m.UUID.String(),
		Name:            m.Name,
		Sequence:        m.Sequence,
		Amount:          m.Amount.StringFixed(2),
		Currency:        utils.VNDCurrency,
		Status:          string(m.Status),
		StatusReason:    m.StatusReason,
		ClawbackPending: utils.IsTrue(m.ClawbackPending),
		PaidAt:          formatTimePtr(m.PaidAt),
		ReleasedAt:      formatTimePtr(m.ReleasedAt),
		RefundedAt:      formatTimePtr(m.RefundedAt),
	}
}

func ToEscrowLedgerDTO(ledger models.EscrowLedger) dto.EscrowLedgerDTO {
	return dto.EscrowLedgerDTO{
		TotalCommitted:  ledger.TotalCommitted.StringFixed(2),
		Pending:         ledger.TotalPending.StringFixed(2),
		Held:            ledger.TotalHeld.StringFixed(2),
		Released:        ledger.TotalReleased.StringFixed(2),
		Refunded:        ledger.TotalRefunded.StringFixed(2),
		ClawbackPending: ledger.ClawbackPending.StringFixed(2),
		Currency:        utils.VNDCurrency,
		OverBudget:      ledger.OverBudget,
	}
}

func ToDisputeDTO(d models.Dispute, milestoneUUID, quoteUUID string) dto.DisputeDTO {
	out := dto.DisputeDTO{
		UUID:            d.UUID.String(),
		MilestoneUUID:   milestoneUUID,
		QuoteUUID:       quoteUUID,
		OpenerID:        d.OpenerID,
		Reason:          d.Reason,
		Status:          string(d.Status),
		ResolutionNotes: d.ResolutionNotes,
		ResolvedBy:      d.ResolvedBy,
		ResolvedAt:      formatTimePtr(d.ResolvedAt),
		CreatedAt:       d.CreatedAt.Format(time.RFC3339),
	}

	if d.Outcome != nil {
		s := string(*d.Outcome)
		out.Outcome = &s
	}

	for _, c := range d.Comments {
		out.Comments = append(out.Comments, dto.DisputeCommentDTO{
			ID:        c.ID,
			AuthorID:  c.AuthorID,
			IsAdmin:   c.IsAdmin,
			Body:      c.Body,
			CreatedAt: c.CreatedAt.Format(time.RFC3339),
		})
	}
	for _, e := range d.Evidence {
		out.Evidence = append(out.Evidence, dto.DisputeEvidenceDTO{
			ID:          e.ID,
			UploaderID:  e.UploaderID,
			FileURL:     e.FileURL,
			Description: e.Description,
			CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		})
	}

	return out
}
