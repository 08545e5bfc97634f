// Package businessflow contains the core business logic for milestone escrow settlement
package businessflow

import (
	"context"
	"fmt"

	"github.com/trungvq/vatlieu-marketplace/app/dto"
	"github.com/trungvq/vatlieu-marketplace/app/services"
	"github.com/trungvq/vatlieu-marketplace/models"
	"github.com/trungvq/vatlieu-marketplace/repository"
	"github.com/trungvq/vatlieu-marketplace/utils"
	"gorm.io/gorm"
)

// MilestoneFlow drives milestone escrow transitions. Every mutation goes
// through a guarded compare-and-set so concurrent calls settle each
// milestone exactly once.
type MilestoneFlow interface {
	PayMilestone(ctx context.Context, req *dto.PayMilestoneRequest, metadata *ClientMetadata) (*dto.PayMilestoneResponse, error)
	ReleaseMilestone(ctx context.Context, req *dto.ReleaseMilestoneRequest, metadata *ClientMetadata) (*dto.ReleaseMilestoneResponse, error)
	RefundMilestone(ctx context.Context, req *dto.RefundMilestoneRequest, metadata *ClientMetadata) (*dto.RefundMilestoneResponse, error)
	GetMilestone(ctx context.Context, req *dto.GetMilestoneRequest, metadata *ClientMetadata) (*dto.GetMilestoneResponse, error)
}

// MilestoneFlowImpl implements the milestone business flow
type MilestoneFlowImpl struct {
	milestoneRepo repository.MilestoneRepository
	quoteRepo     repository.QuoteRepository
	customerRepo  repository.CustomerRepository
	disputeRepo   repository.DisputeRepository
	adminRepo     repository.AdminRepository
	auditRepo     repository.AuditLogRepository
	notifier      services.NotificationService
	db            *gorm.DB
}

// NewMilestoneFlow creates a new milestone flow instance
func NewMilestoneFlow(
	milestoneRepo repository.MilestoneRepository,
	quoteRepo repository.QuoteRepository,
	customerRepo repository.CustomerRepository,
	disputeRepo repository.DisputeRepository,
	adminRepo repository.AdminRepository,
	auditRepo repository.AuditLogRepository,
	notifier services.NotificationService,
	db *gorm.DB,
) MilestoneFlow {
	return &MilestoneFlowImpl{
		milestoneRepo: milestoneRepo,
		quoteRepo:     quoteRepo,
		customerRepo:  customerRepo,
		disputeRepo:   disputeRepo,
		adminRepo:     adminRepo,
		auditRepo:     auditRepo,
		notifier:      notifier,
		db:            db,
	}
}

// PayMilestone funds a pending milestone into escrow. Only the buyer on the
// quote may pay.
func (m *MilestoneFlowImpl) PayMilestone(ctx context.Context, req *dto.PayMilestoneRequest, metadata *ClientMetadata) (*dto.PayMilestoneResponse, error) {
	customer, milestone, quote, err := m.loadForTransition(ctx, req.MilestoneUUID, req.CustomerID)
	if err != nil {
		return nil, err
	}
	if quote.CustomerID != customer.ID {
		return nil, NewBusinessError(CodeForbidden, "Only the buyer may fund a milestone", ErrOnlyBuyerMayPay)
	}
	if quote.Status != models.QuoteStatusAccepted {
		return nil, NewBusinessError(CodeInvalidOperation, "Quote is not accepted", ErrMilestoneNotPayable)
	}

	now := utils.UTCNow()
	changes := map[string]any{"paid_at": now}
	if req.PaymentRef != "" {
		changes["status_reason"] = fmt.Sprintf("payment ref %s", req.PaymentRef)
	}

	updated, err := m.milestoneRepo.UpdateStatusIf(ctx, milestone.ID, models.MilestoneStatusPending, models.MilestoneStatusEscrowPaid, changes)
	if err != nil {
		milestoneTransitionsTotal.WithLabelValues(string(models.MilestoneStatusEscrowPaid), "error").Inc()
		return nil, NewBusinessError(CodeInternal, "Failed to record milestone payment", err)
	}
	if !updated {
		milestoneTransitionsTotal.WithLabelValues(string(models.MilestoneStatusEscrowPaid), "conflict").Inc()
		errMsg := fmt.Sprintf("milestone %s not in PENDING", milestone.UUID)
		_ = createAuditLog(ctx, m.auditRepo, &customer, models.AuditActionMilestonePayFailed, "Milestone payment rejected", false, &errMsg, metadata)
		return nil, NewBusinessError(CodeInvalidOperation, "Milestone is not payable in its current status", ErrMilestoneNotPayable)
	}
	milestoneTransitionsTotal.WithLabelValues(string(models.MilestoneStatusEscrowPaid), "ok").Inc()

	milestone.Status = models.MilestoneStatusEscrowPaid
	milestone.PaidAt = &now

	msg := fmt.Sprintf("Milestone %s funded: %s", milestone.UUID, utils.FormatVND(milestone.Amount))
	_ = createAuditLog(ctx, m.auditRepo, &customer, models.AuditActionMilestonePaid, msg, true, nil, metadata)

	m.notifyParty(ctx, quote.ContractorID, fmt.Sprintf("Khách hàng đã thanh toán %s vào ký quỹ cho hạng mục \"%s\".", utils.FormatVND(milestone.Amount), milestone.Name))

	return &dto.PayMilestoneResponse{
		Message:   "Milestone funded successfully",
		Milestone: ToMilestoneDTO(*milestone),
	}, nil
}

// ReleaseMilestone pays held escrow out to the contractor. Only the buyer
// may release, and only from ESCROW_PAID.
func (m *MilestoneFlowImpl) ReleaseMilestone(ctx context.Context, req *dto.ReleaseMilestoneRequest, metadata *ClientMetadata) (*dto.ReleaseMilestoneResponse, error) {
	customer, milestone, quote, err := m.loadForTransition(ctx, req.MilestoneUUID, req.CustomerID)
	if err != nil {
		return nil, err
	}
	if quote.CustomerID != customer.ID {
		return nil, NewBusinessError(CodeForbidden, "Only the buyer may release a milestone", ErrOnlyBuyerMayRelease)
	}

	now := utils.UTCNow()
	changes := map[string]any{"released_at": now}
	if req.Reason != "" {
		changes["status_reason"] = req.Reason
	}

	updated, err := m.milestoneRepo.UpdateStatusIf(ctx, milestone.ID, models.MilestoneStatusEscrowPaid, models.MilestoneStatusReleased, changes)
	if err != nil {
		milestoneTransitionsTotal.WithLabelValues(string(models.MilestoneStatusReleased), "error").Inc()
		return nil, NewBusinessError(CodeInternal, "Failed to release milestone", err)
	}
	if !updated {
		milestoneTransitionsTotal.WithLabelValues(string(models.MilestoneStatusReleased), "conflict").Inc()
		return nil, NewBusinessError(CodeInvalidOperation, "Milestone funds are not held in escrow", ErrMilestoneNotHeld)
	}
	milestoneTransitionsTotal.WithLabelValues(string(models.MilestoneStatusReleased), "ok").Inc()

	milestone.Status = models.MilestoneStatusReleased
	milestone.ReleasedAt = &now

	msg := fmt.Sprintf("Milestone %s released: %s", milestone.UUID, utils.FormatVND(milestone.Amount))
	_ = createAuditLog(ctx, m.auditRepo, &customer, models.AuditActionMilestoneReleased, msg, true, nil, metadata)

	m.notifyParty(ctx, quote.ContractorID, fmt.Sprintf("Khoản ký quỹ %s cho hạng mục \"%s\" đã được giải ngân.", utils.FormatVND(milestone.Amount), milestone.Name))

	return &dto.ReleaseMilestoneResponse{
		Message:   "Milestone released successfully",
		Milestone: ToMilestoneDTO(*milestone),
	}, nil
}

// RefundMilestone returns held escrow to the buyer. The actor is either the
// buyer cancelling before any dispute, or an administrator. Only ESCROW_PAID
// milestones qualify; released funds are recovered through dispute
// resolution, never here.
func (m *MilestoneFlowImpl) RefundMilestone(ctx context.Context, req *dto.RefundMilestoneRequest, metadata *ClientMetadata) (*dto.RefundMilestoneResponse, error) {
	var (
		milestone *models.Milestone
		quote     *models.Quote
		actor     *models.Customer
	)
	switch {
	case req.AdminID != 0:
		if _, err := getAdmin(ctx, m.adminRepo, req.AdminID); err != nil {
			return nil, NewBusinessError(CodeForbidden, "Administrator not found or inactive", err)
		}
		loadedMilestone, loadedQuote, err := m.loadMilestone(ctx, req.MilestoneUUID)
		if err != nil {
			return nil, err
		}
		milestone, quote = loadedMilestone, loadedQuote
	case req.CustomerID != 0:
		customer, loadedMilestone, loadedQuote, err := m.loadForTransition(ctx, req.MilestoneUUID, req.CustomerID)
		if err != nil {
			return nil, err
		}
		if loadedQuote.CustomerID != customer.ID {
			return nil, NewBusinessError(CodeForbidden, "Only the buyer may cancel a milestone", ErrOnlyBuyerMayRefund)
		}
		milestone, quote, actor = loadedMilestone, loadedQuote, &customer
	default:
		return nil, NewBusinessError(CodeForbidden, "Refunds require the buyer or an administrator", ErrAdminRequired)
	}

	now := utils.UTCNow()
	changes := map[string]any{
		"refunded_at":   now,
		"status_reason": req.Reason,
	}

	updated, err := m.milestoneRepo.UpdateStatusIf(ctx, milestone.ID, models.MilestoneStatusEscrowPaid, models.MilestoneStatusRefunded, changes)
	if err != nil {
		milestoneTransitionsTotal.WithLabelValues(string(models.MilestoneStatusRefunded), "error").Inc()
		return nil, NewBusinessError(CodeInternal, "Failed to refund milestone", err)
	}
	if !updated {
		milestoneTransitionsTotal.WithLabelValues(string(models.MilestoneStatusRefunded), "conflict").Inc()
		return nil, NewBusinessError(CodeInvalidOperation, "Milestone cannot be refunded in its current status", ErrMilestoneStateChanged)
	}
	milestoneTransitionsTotal.WithLabelValues(string(models.MilestoneStatusRefunded), "ok").Inc()

	milestone.Status = models.MilestoneStatusRefunded
	milestone.RefundedAt = &now
	milestone.StatusReason = &req.Reason

	msg := fmt.Sprintf("Milestone %s refunded: %s", milestone.UUID, req.Reason)
	if req.AdminID != 0 {
		msg = fmt.Sprintf("Milestone %s refunded by admin %d: %s", milestone.UUID, req.AdminID, req.Reason)
	}
	_ = createAuditLog(ctx, m.auditRepo, actor, models.AuditActionMilestoneRefunded, msg, true, nil, metadata)

	m.notifyParty(ctx, quote.CustomerID, fmt.Sprintf("Khoản ký quỹ %s cho hạng mục \"%s\" đã được hoàn trả.", utils.FormatVND(milestone.Amount), milestone.Name))

	return &dto.RefundMilestoneResponse{
		Message:   "Milestone refunded successfully",
		Milestone: ToMilestoneDTO(*milestone),
	}, nil
}

// GetMilestone returns one milestone. The caller must be a party on the quote.
func (m *MilestoneFlowImpl) GetMilestone(ctx context.Context, req *dto.GetMilestoneRequest, metadata *ClientMetadata) (*dto.GetMilestoneResponse, error) {
	milestone, quote, err := m.loadMilestone(ctx, req.MilestoneUUID)
	if err != nil {
		return nil, err
	}
	if req.CustomerID != 0 && !quote.IsParty(req.CustomerID) {
		return nil, NewBusinessError(CodeForbidden, "Milestone access denied", ErrMilestoneAccessDenied)
	}

	out := ToMilestoneDTO(*milestone)
	out.QuoteUUID = quote.UUID.String()

	return &dto.GetMilestoneResponse{
		Message:   "Milestone retrieved successfully",
		Milestone: out,
	}, nil
}

func (m *MilestoneFlowImpl) loadForTransition(ctx context.Context, milestoneUUID string, customerID uint) (models.Customer, *models.Milestone, *models.Quote, error) {
	customer, err := getCustomer(ctx, m.customerRepo, customerID)
	if err != nil {
		code := CodeNotFound
		if err == ErrAccountInactive {
			code = CodeForbidden
		}
		return models.Customer{}, nil, nil, NewBusinessError(code, "Customer not found or inactive", err)
	}

	milestone, quote, err := m.loadMilestone(ctx, milestoneUUID)
	if err != nil {
		return models.Customer{}, nil, nil, err
	}

	if !quote.IsParty(customer.ID) {
		return models.Customer{}, nil, nil, NewBusinessError(CodeForbidden, "Milestone access denied", ErrMilestoneAccessDenied)
	}

	return customer, milestone, quote, nil
}

func (m *MilestoneFlowImpl) loadMilestone(ctx context.Context, milestoneUUID string) (*models.Milestone, *models.Quote, error) {
	milestone, err := m.milestoneRepo.ByUUID(ctx, milestoneUUID)
	if err != nil {
		return nil, nil, NewBusinessError(CodeInternal, "Failed to load milestone", err)
	}
	if milestone == nil {
		return nil, nil, NewBusinessError(CodeNotFound, "Milestone not found", ErrMilestoneNotFound)
	}

	quote, err := m.quoteRepo.ByID(ctx, milestone.QuoteID)
	if err != nil {
		return nil, nil, NewBusinessError(CodeInternal, "Failed to load quote", err)
	}
	if quote == nil {
		return nil, nil, NewBusinessError(CodeNotFound, "Quote not found", ErrQuoteNotFound)
	}

	return milestone, quote, nil
}

// notifyParty sends an SMS to a quote party. Notification failures never
// roll back a settlement transition.
func (m *MilestoneFlowImpl) notifyParty(ctx context.Context, customerID uint, message string) {
	party, err := m.customerRepo.ByID(ctx, customerID)
	if err != nil || party == nil {
		return
	}
	_ = m.notifier.SendSMS(party.Mobile, message)
}
