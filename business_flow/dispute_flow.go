// Package businessflow contains the core business logic for milestone dispute resolution
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

// DisputeFlow overlays dispute handling on the milestone state machine.
// Opening a dispute freezes the milestone; only an admin resolution moves
// it again.
type DisputeFlow interface {
	OpenDispute(ctx context.Context, req *dto.OpenDisputeRequest, metadata *ClientMetadata) (*dto.OpenDisputeResponse, error)
	ResolveDispute(ctx context.Context, req *dto.ResolveDisputeRequest, metadata *ClientMetadata) (*dto.ResolveDisputeResponse, error)
	AddComment(ctx context.Context, req *dto.AddDisputeCommentRequest, metadata *ClientMetadata) (*dto.AddDisputeCommentResponse, error)
	AddEvidence(ctx context.Context, req *dto.AddDisputeEvidenceRequest, metadata *ClientMetadata) (*dto.AddDisputeEvidenceResponse, error)
	GetDispute(ctx context.Context, req *dto.GetDisputeRequest, metadata *ClientMetadata) (*dto.GetDisputeResponse, error)
}

// DisputeFlowImpl implements the dispute business flow
type DisputeFlowImpl struct {
	disputeRepo   repository.DisputeRepository
	milestoneRepo repository.MilestoneRepository
	quoteRepo     repository.QuoteRepository
	customerRepo  repository.CustomerRepository
	adminRepo     repository.AdminRepository
	auditRepo     repository.AuditLogRepository
	notifier      services.NotificationService
	db            *gorm.DB
}

// NewDisputeFlow creates a new dispute flow instance
func NewDisputeFlow(
	disputeRepo repository.DisputeRepository,
	milestoneRepo repository.MilestoneRepository,
	quoteRepo repository.QuoteRepository,
	customerRepo repository.CustomerRepository,
	adminRepo repository.AdminRepository,
	auditRepo repository.AuditLogRepository,
	notifier services.NotificationService,
	db *gorm.DB,
) DisputeFlow {
	return &DisputeFlowImpl{
		disputeRepo:   disputeRepo,
		milestoneRepo: milestoneRepo,
		quoteRepo:     quoteRepo,
		customerRepo:  customerRepo,
		adminRepo:     adminRepo,
		auditRepo:     auditRepo,
		notifier:      notifier,
		db:            db,
	}
}

// OpenDispute contests a milestone. Allowed while funds are held, or within
// the grace window after a release. The milestone is frozen at DISPUTED in
// the same transaction that records the dispute.
func (d *DisputeFlowImpl) OpenDispute(ctx context.Context, req *dto.OpenDisputeRequest, metadata *ClientMetadata) (*dto.OpenDisputeResponse, error) {
	customer, err := getCustomer(ctx, d.customerRepo, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError(CodeNotFound, "Customer not found or inactive", err)
	}

	var dispute *models.Dispute
	var milestone *models.Milestone
	var quote *models.Quote

	err = repository.WithTransaction(ctx, d.db, func(txCtx context.Context) error {
		var err error
		milestone, quote, err = d.loadMilestone(txCtx, req.MilestoneUUID)
		if err != nil {
			return err
		}
		if !quote.IsParty(customer.ID) {
			return NewBusinessError(CodeForbidden, "Milestone access denied", ErrMilestoneAccessDenied)
		}

		exists, err := d.disputeRepo.ExistsUnresolvedForMilestone(txCtx, milestone.ID)
		if err != nil {
			return NewBusinessError(CodeInternal, "Failed to check existing disputes", err)
		}
		if exists {
			return NewBusinessError(CodeConflict, "Milestone already has an unresolved dispute", ErrDisputeAlreadyOpen)
		}

		expected := milestone.Status
		switch expected {
		case models.MilestoneStatusEscrowPaid:
			// always contestable while held
		case models.MilestoneStatusReleased:
			if milestone.ReleasedAt == nil || utils.UTCNow().Sub(*milestone.ReleasedAt) > utils.ReleaseDisputeGraceWindow {
				return NewBusinessError(CodeInvalidOperation, "Dispute window for the released milestone has closed", ErrDisputeWindowClosed)
			}
		default:
			return NewBusinessError(CodeInvalidOperation, "Milestone cannot be disputed in its current status", ErrMilestoneNotHeld)
		}

		dispute = &models.Dispute{
			MilestoneID: milestone.ID,
			QuoteID:     quote.ID,
			OpenerID:    customer.ID,
			Reason:      req.Reason,
			Status:      models.DisputeStatusOpen,
		}
		if err := d.disputeRepo.Save(txCtx, dispute); err != nil {
			return NewBusinessError(CodeInternal, "Failed to record dispute", err)
		}

		changes := map[string]any{"status_reason": fmt.Sprintf("disputed: %s", req.Reason)}
		updated, err := d.milestoneRepo.UpdateStatusIf(txCtx, milestone.ID, expected, models.MilestoneStatusDisputed, changes)
		if err != nil {
			return NewBusinessError(CodeInternal, "Failed to freeze milestone", err)
		}
		if !updated {
			return NewBusinessError(CodeConflict, "Milestone was modified concurrently", ErrMilestoneStateChanged)
		}

		milestone.Status = models.MilestoneStatusDisputed
		return nil
	})
	if err != nil {
		errMsg := err.Error()
		_ = createAuditLog(ctx, d.auditRepo, &customer, models.AuditActionDisputeOpened, "Dispute opening failed", false, &errMsg, metadata)
		return nil, err
	}

	disputeEventsTotal.WithLabelValues("opened").Inc()

	msg := fmt.Sprintf("Dispute %s opened on milestone %s", dispute.UUID, milestone.UUID)
	_ = createAuditLog(ctx, d.auditRepo, &customer, models.AuditActionDisputeOpened, msg, true, nil, metadata)

	d.notifyCounterparty(ctx, quote, customer.ID, fmt.Sprintf("Hạng mục \"%s\" đã bị khiếu nại và tạm khóa cho đến khi được xử lý.", milestone.Name))

	return &dto.OpenDisputeResponse{
		Message: "Dispute opened successfully",
		Dispute: ToDisputeDTO(*dispute, milestone.UUID.String(), quote.UUID.String()),
	}, nil
}

// ResolveDispute applies the admin ruling. RELEASED pays the contractor,
// REFUNDED returns the funds to the buyer; a refund after an earlier
// release marks the milestone for manual clawback.
func (d *DisputeFlowImpl) ResolveDispute(ctx context.Context, req *dto.ResolveDisputeRequest, metadata *ClientMetadata) (*dto.ResolveDisputeResponse, error) {
	if req.AdminID == 0 {
		return nil, NewBusinessError(CodeForbidden, "Dispute resolution requires an administrator", ErrAdminRequired)
	}
	if _, err := getAdmin(ctx, d.adminRepo, req.AdminID); err != nil {
		return nil, NewBusinessError(CodeForbidden, "Administrator not found or inactive", err)
	}

	outcome := models.DisputeOutcome(req.Outcome)
	if outcome != models.DisputeOutcomeReleased && outcome != models.DisputeOutcomeRefunded {
		return nil, NewBusinessError(CodeValidation, "Dispute outcome is invalid", ErrDisputeOutcomeInvalid)
	}

	var dispute *models.Dispute
	var milestone *models.Milestone
	var quote *models.Quote

	err := repository.WithTransaction(ctx, d.db, func(txCtx context.Context) error {
		var err error
		dispute, err = d.loadDispute(txCtx, req.DisputeUUID)
		if err != nil {
			return err
		}
		if !dispute.IsOpen() {
			return NewBusinessError(CodeInvalidOperation, "Dispute has already been resolved", ErrDisputeResolvedAlready)
		}

		milestone, err = d.milestoneRepo.ByID(txCtx, dispute.MilestoneID)
		if err != nil {
			return NewBusinessError(CodeInternal, "Failed to load milestone", err)
		}
		if milestone == nil {
			return NewBusinessError(CodeNotFound, "Milestone not found", ErrMilestoneNotFound)
		}
		quote, err = d.quoteRepo.ByID(txCtx, milestone.QuoteID)
		if err != nil {
			return NewBusinessError(CodeInternal, "Failed to load quote", err)
		}
		if quote == nil {
			return NewBusinessError(CodeNotFound, "Quote not found", ErrQuoteNotFound)
		}

		now := utils.UTCNow()
		next := models.MilestoneStatusReleased
		changes := map[string]any{"status_reason": req.ResolutionNotes}
		if outcome == models.DisputeOutcomeRefunded {
			next = models.MilestoneStatusRefunded
			changes["refunded_at"] = now
			// A refund ruling over funds already paid out cannot move money
			// here; it flags the milestone for manual clawback instead.
			if milestone.ReleasedAt != nil {
				changes["clawback_pending"] = true
			}
		} else if milestone.ReleasedAt == nil {
			changes["released_at"] = now
		}

		updated, err := d.milestoneRepo.UpdateStatusIf(txCtx, milestone.ID, models.MilestoneStatusDisputed, next, changes)
		if err != nil {
			return NewBusinessError(CodeInternal, "Failed to settle milestone", err)
		}
		if !updated {
			return NewBusinessError(CodeConflict, "Milestone was modified concurrently", ErrMilestoneStateChanged)
		}

		disputeChanges := map[string]any{
			"outcome":          outcome,
			"resolution_notes": req.ResolutionNotes,
			"resolved_by":      req.AdminID,
			"resolved_at":      now,
		}
		expected := []models.DisputeStatus{models.DisputeStatusOpen, models.DisputeStatusInProgress, models.DisputeStatusWaiting}
		resolved, err := d.disputeRepo.UpdateStatusIf(txCtx, dispute.ID, expected, models.DisputeStatusResolved, disputeChanges)
		if err != nil {
			return NewBusinessError(CodeInternal, "Failed to resolve dispute", err)
		}
		if !resolved {
			return NewBusinessError(CodeConflict, "Dispute was modified concurrently", ErrDisputeResolvedAlready)
		}

		milestone.Status = next
		dispute.Status = models.DisputeStatusResolved
		dispute.Outcome = &outcome
		dispute.ResolutionNotes = &req.ResolutionNotes
		dispute.ResolvedBy = &req.AdminID
		dispute.ResolvedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	disputeEventsTotal.WithLabelValues("resolved_" + string(outcome)).Inc()
	milestoneTransitionsTotal.WithLabelValues(string(milestone.Status), "ok").Inc()

	msg := fmt.Sprintf("Dispute %s resolved as %s by admin %d", dispute.UUID, outcome, req.AdminID)
	_ = createAuditLog(ctx, d.auditRepo, nil, models.AuditActionDisputeResolved, msg, true, nil, metadata)

	outcomeMsg := fmt.Sprintf("Khiếu nại cho hạng mục \"%s\" đã được xử lý: %s.", milestone.Name, outcome)
	d.notifyCounterparty(ctx, quote, 0, outcomeMsg)

	return &dto.ResolveDisputeResponse{
		Message: "Dispute resolved successfully",
		Dispute: ToDisputeDTO(*dispute, milestone.UUID.String(), quote.UUID.String()),
	}, nil
}

// AddComment appends to the dispute thread. The first comment by someone
// other than the opener advances OPEN to IN_PROGRESS.
func (d *DisputeFlowImpl) AddComment(ctx context.Context, req *dto.AddDisputeCommentRequest, metadata *ClientMetadata) (*dto.AddDisputeCommentResponse, error) {
	dispute, err := d.loadDispute(ctx, req.DisputeUUID)
	if err != nil {
		return nil, err
	}
	if !dispute.IsOpen() {
		return nil, NewBusinessError(CodeInvalidOperation, "Dispute is closed to new comments", ErrDisputeNotOpen)
	}
	if err := d.checkThreadAccess(ctx, dispute, req.AuthorID, req.IsAdmin); err != nil {
		return nil, err
	}

	comment := &models.DisputeComment{
		DisputeID: dispute.ID,
		AuthorID:  req.AuthorID,
		IsAdmin:   req.IsAdmin,
		Body:      req.Body,
	}
	if err := d.disputeRepo.AddComment(ctx, comment); err != nil {
		return nil, NewBusinessError(CodeInternal, "Failed to add dispute comment", err)
	}

	if dispute.Status == models.DisputeStatusOpen && (req.IsAdmin || req.AuthorID != dispute.OpenerID) {
		_, _ = d.disputeRepo.UpdateStatusIf(ctx, dispute.ID, []models.DisputeStatus{models.DisputeStatusOpen}, models.DisputeStatusInProgress, nil)
	}

	_ = createAuditLog(ctx, d.auditRepo, nil, models.AuditActionDisputeCommented, fmt.Sprintf("Comment added to dispute %s", dispute.UUID), true, nil, metadata)

	return &dto.AddDisputeCommentResponse{
		Message: "Comment added successfully",
		Comment: dto.DisputeCommentDTO{
			ID:        comment.ID,
			AuthorID:  comment.AuthorID,
			IsAdmin:   comment.IsAdmin,
			Body:      comment.Body,
			CreatedAt: comment.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		},
	}, nil
}

// AddEvidence attaches an external file reference to the dispute.
func (d *DisputeFlowImpl) AddEvidence(ctx context.Context, req *dto.AddDisputeEvidenceRequest, metadata *ClientMetadata) (*dto.AddDisputeEvidenceResponse, error) {
	dispute, err := d.loadDispute(ctx, req.DisputeUUID)
	if err != nil {
		return nil, err
	}
	if !dispute.IsOpen() {
		return nil, NewBusinessError(CodeInvalidOperation, "Dispute is closed to new evidence", ErrDisputeNotOpen)
	}
	if err := d.checkThreadAccess(ctx, dispute, req.UploaderID, false); err != nil {
		return nil, err
	}

	evidence := &models.DisputeEvidence{
		DisputeID:  dispute.ID,
		UploaderID: req.UploaderID,
		FileURL:    req.FileURL,
	}
	if req.Description != "" {
		evidence.Description = &req.Description
	}
	if err := d.disputeRepo.AddEvidence(ctx, evidence); err != nil {
		return nil, NewBusinessError(CodeInternal, "Failed to add dispute evidence", err)
	}

	_ = createAuditLog(ctx, d.auditRepo, nil, models.AuditActionEvidenceAttached, fmt.Sprintf("Evidence attached to dispute %s", dispute.UUID), true, nil, metadata)

	return &dto.AddDisputeEvidenceResponse{
		Message: "Evidence attached successfully",
		Evidence: dto.DisputeEvidenceDTO{
			ID:          evidence.ID,
			UploaderID:  evidence.UploaderID,
			FileURL:     evidence.FileURL,
			Description: evidence.Description,
			CreatedAt:   evidence.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		},
	}, nil
}

// GetDispute returns a dispute with its full thread.
func (d *DisputeFlowImpl) GetDispute(ctx context.Context, req *dto.GetDisputeRequest, metadata *ClientMetadata) (*dto.GetDisputeResponse, error) {
	dispute, err := d.disputeRepo.ByUUIDWithThread(ctx, req.DisputeUUID)
	if err != nil {
		return nil, NewBusinessError(CodeInternal, "Failed to load dispute", err)
	}
	if dispute == nil {
		return nil, NewBusinessError(CodeNotFound, "Dispute not found", ErrDisputeNotFound)
	}
	if !req.IsAdmin {
		if err := d.checkThreadAccess(ctx, dispute, req.CustomerID, false); err != nil {
			return nil, err
		}
	}

	milestone, quote, err := d.milestoneAndQuote(ctx, dispute)
	if err != nil {
		return nil, err
	}

	return &dto.GetDisputeResponse{
		Message: "Dispute retrieved successfully",
		Dispute: ToDisputeDTO(*dispute, milestone.UUID.String(), quote.UUID.String()),
	}, nil
}

func (d *DisputeFlowImpl) loadDispute(ctx context.Context, disputeUUID string) (*models.Dispute, error) {
	dispute, err := d.disputeRepo.ByUUID(ctx, disputeUUID)
	if err != nil {
		return nil, NewBusinessError(CodeInternal, "Failed to load dispute", err)
	}
	if dispute == nil {
		return nil, NewBusinessError(CodeNotFound, "Dispute not found", ErrDisputeNotFound)
	}
	return dispute, nil
}

func (d *DisputeFlowImpl) loadMilestone(ctx context.Context, milestoneUUID string) (*models.Milestone, *models.Quote, error) {
	milestone, err := d.milestoneRepo.ByUUID(ctx, milestoneUUID)
	if err != nil {
		return nil, nil, NewBusinessError(CodeInternal, "Failed to load milestone", err)
	}
	if milestone == nil {
		return nil, nil, NewBusinessError(CodeNotFound, "Milestone not found", ErrMilestoneNotFound)
	}

	quote, err := d.quoteRepo.ByID(ctx, milestone.QuoteID)
	if err != nil {
		return nil, nil, NewBusinessError(CodeInternal, "Failed to load quote", err)
	}
	if quote == nil {
		return nil, nil, NewBusinessError(CodeNotFound, "Quote not found", ErrQuoteNotFound)
	}

	return milestone, quote, nil
}

func (d *DisputeFlowImpl) milestoneAndQuote(ctx context.Context, dispute *models.Dispute) (*models.Milestone, *models.Quote, error) {
	milestone, err := d.milestoneRepo.ByID(ctx, dispute.MilestoneID)
	if err != nil {
		return nil, nil, NewBusinessError(CodeInternal, "Failed to load milestone", err)
	}
	if milestone == nil {
		return nil, nil, NewBusinessError(CodeNotFound, "Milestone not found", ErrMilestoneNotFound)
	}
	quote, err := d.quoteRepo.ByID(ctx, milestone.QuoteID)
	if err != nil {
		return nil, nil, NewBusinessError(CodeInternal, "Failed to load quote", err)
	}
	if quote == nil {
		return nil, nil, NewBusinessError(CodeNotFound, "Quote not found", ErrQuoteNotFound)
	}
	return milestone, quote, nil
}

// checkThreadAccess allows the quote parties to touch the thread; admins
// pass via the isAdmin flag upstream.
func (d *DisputeFlowImpl) checkThreadAccess(ctx context.Context, dispute *models.Dispute, customerID uint, isAdmin bool) error {
	if isAdmin {
		return nil
	}
	quote, err := d.quoteRepo.ByID(ctx, dispute.QuoteID)
	if err != nil {
		return NewBusinessError(CodeInternal, "Failed to load quote", err)
	}
	if quote == nil {
		return NewBusinessError(CodeNotFound, "Quote not found", ErrQuoteNotFound)
	}
	if !quote.IsParty(customerID) {
		return NewBusinessError(CodeForbidden, "Dispute access denied", ErrDisputeAccessDenied)
	}
	return nil
}

// notifyCounterparty SMSes quote parties other than excludeID.
func (d *DisputeFlowImpl) notifyCounterparty(ctx context.Context, quote *models.Quote, excludeID uint, message string) {
	for _, id := range []uint{quote.CustomerID, quote.ContractorID} {
		if id == excludeID {
			continue
		}
		party, err := d.customerRepo.ByID(ctx, id)
		if err != nil || party == nil {
			continue
		}
		_ = d.notifier.SendSMS(party.Mobile, message)
	}
}
