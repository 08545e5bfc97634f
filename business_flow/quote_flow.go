// Package businessflow contains the core business logic for quote acceptance and escrow reporting
package businessflow

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/trungvq/vatlieu-marketplace/app/dto"
	"github.com/trungvq/vatlieu-marketplace/app/services"
	"github.com/trungvq/vatlieu-marketplace/models"
	"github.com/trungvq/vatlieu-marketplace/repository"
	"github.com/trungvq/vatlieu-marketplace/utils"
	"gorm.io/gorm"
)

// QuoteFlow handles quote acceptance and the derived escrow ledger.
type QuoteFlow interface {
	AcceptQuote(ctx context.Context, req *dto.AcceptQuoteRequest, metadata *ClientMetadata) (*dto.AcceptQuoteResponse, error)
	GetQuote(ctx context.Context, req *dto.GetQuoteRequest, metadata *ClientMetadata) (*dto.GetQuoteResponse, error)
	ListQuotes(ctx context.Context, req *dto.ListQuotesRequest, metadata *ClientMetadata) (*dto.ListQuotesResponse, error)
	GetEscrowLedger(ctx context.Context, req *dto.GetEscrowLedgerRequest, metadata *ClientMetadata) (*dto.GetEscrowLedgerResponse, error)
}

// QuoteFlowImpl implements the quote business flow
type QuoteFlowImpl struct {
	quoteRepo     repository.QuoteRepository
	milestoneRepo repository.MilestoneRepository
	customerRepo  repository.CustomerRepository
	auditRepo     repository.AuditLogRepository
	notifier      services.NotificationService
	db            *gorm.DB
}

// NewQuoteFlow creates a new quote flow instance
func NewQuoteFlow(
	quoteRepo repository.QuoteRepository,
	milestoneRepo repository.MilestoneRepository,
	customerRepo repository.CustomerRepository,
	auditRepo repository.AuditLogRepository,
	notifier services.NotificationService,
	db *gorm.DB,
) QuoteFlow {
	return &QuoteFlowImpl{
		quoteRepo:     quoteRepo,
		milestoneRepo: milestoneRepo,
		customerRepo:  customerRepo,
		auditRepo:     auditRepo,
		notifier:      notifier,
		db:            db,
	}
}

// AcceptQuote moves a SENT quote to ACCEPTED and writes its payment
// schedule in the same transaction. Without an explicit schedule the
// default deposit/progress/final split is applied.
func (q *QuoteFlowImpl) AcceptQuote(ctx context.Context, req *dto.AcceptQuoteRequest, metadata *ClientMetadata) (*dto.AcceptQuoteResponse, error) {
	customer, err := getCustomer(ctx, q.customerRepo, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError(CodeNotFound, "Customer not found", err)
	}

	var accepted *models.Quote

	err = repository.WithTransaction(ctx, q.db, func(txCtx context.Context) error {
		quote, err := q.quoteRepo.ByUUIDWithMilestones(txCtx, req.QuoteUUID)
		if err != nil {
			return NewBusinessError(CodeInternal, "Failed to load quote", err)
		}
		if quote == nil {
			return NewBusinessError(CodeNotFound, "Quote not found", ErrQuoteNotFound)
		}
		if quote.CustomerID != customer.ID {
			return NewBusinessError(CodeForbidden, "Only the buyer may accept the quote", ErrQuoteAccessDenied)
		}
		if quote.Status != models.QuoteStatusSent {
			return NewBusinessError(CodeInvalidOperation, "Quote cannot be accepted in its current status", ErrQuoteNotAcceptable)
		}
		if len(quote.Milestones) > 0 {
			return NewBusinessError(CodeInvalidOperation, "Quote already has a payment schedule", ErrQuoteNotAcceptable)
		}

		milestones, err := buildSchedule(quote, req.Milestones)
		if err != nil {
			return err
		}

		now := utils.UTCNow()
		updated, err := q.quoteRepo.UpdateStatusIf(txCtx, quote.ID, models.QuoteStatusSent, models.QuoteStatusAccepted, &now)
		if err != nil {
			return NewBusinessError(CodeInternal, "Failed to accept quote", err)
		}
		if !updated {
			return NewBusinessError(CodeInvalidOperation, "Quote was modified concurrently", ErrQuoteNotAcceptable)
		}

		if err := q.milestoneRepo.SaveBatch(txCtx, milestones); err != nil {
			return NewBusinessError(CodeInternal, "Failed to create payment schedule", err)
		}

		quote.Status = models.QuoteStatusAccepted
		quote.AcceptedAt = &now
		quote.Milestones = make([]models.Milestone, 0, len(milestones))
		for _, m := range milestones {
			quote.Milestones = append(quote.Milestones, *m)
		}
		accepted = quote

		return nil
	})
	if err != nil {
		errMsg := err.Error()
		_ = createAuditLog(ctx, q.auditRepo, &customer, models.AuditActionQuoteAccepted, "Quote acceptance failed", false, &errMsg, metadata)
		return nil, err
	}

	msg := fmt.Sprintf("Quote %s accepted with %d milestones", accepted.UUID, len(accepted.Milestones))
	_ = createAuditLog(ctx, q.auditRepo, &customer, models.AuditActionQuoteAccepted, msg, true, nil, metadata)
	_ = createAuditLog(ctx, q.auditRepo, &customer, models.AuditActionScheduleDefined, msg, true, nil, metadata)

	q.notifyContractor(ctx, accepted)

	return &dto.AcceptQuoteResponse{
		Message: "Quote accepted successfully",
		Quote:   ToQuoteDTO(*accepted),
	}, nil
}

// GetQuote returns a quote with its schedule. Only the buyer, the
// contractor, or an admin may read it.
func (q *QuoteFlowImpl) GetQuote(ctx context.Context, req *dto.GetQuoteRequest, metadata *ClientMetadata) (*dto.GetQuoteResponse, error) {
	quote, err := q.loadQuoteForParty(ctx, req.QuoteUUID, req.CustomerID)
	if err != nil {
		return nil, err
	}

	return &dto.GetQuoteResponse{
		Message: "Quote retrieved successfully",
		Quote:   ToQuoteDTO(*quote),
	}, nil
}

// ListQuotes returns quotes where the caller is buyer or contractor.
func (q *QuoteFlowImpl) ListQuotes(ctx context.Context, req *dto.ListQuotesRequest, metadata *ClientMetadata) (*dto.ListQuotesResponse, error) {
	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	quotes, err := q.quoteRepo.ListByParty(ctx, req.CustomerID, limit, req.Offset)
	if err != nil {
		return nil, NewBusinessError(CodeInternal, "Failed to list quotes", err)
	}

	items := make([]dto.QuoteDTO, 0, len(quotes))
	for _, quote := range quotes {
		items = append(items, ToQuoteDTO(*quote))
	}

	return &dto.ListQuotesResponse{
		Message: "Quotes retrieved successfully",
		Items:   items,
		Total:   int64(len(items)),
	}, nil
}

// GetEscrowLedger recomputes the escrow position of a quote from its
// milestone states.
func (q *QuoteFlowImpl) GetEscrowLedger(ctx context.Context, req *dto.GetEscrowLedgerRequest, metadata *ClientMetadata) (*dto.GetEscrowLedgerResponse, error) {
	quote, err := q.loadQuoteForParty(ctx, req.QuoteUUID, req.CustomerID)
	if err != nil {
		return nil, err
	}

	ledger := models.ComputeEscrowLedger(quote)

	return &dto.GetEscrowLedgerResponse{
		Message: "Escrow ledger computed successfully",
		Ledger:  ToEscrowLedgerDTO(ledger),
	}, nil
}

func (q *QuoteFlowImpl) loadQuoteForParty(ctx context.Context, quoteUUID string, customerID uint) (*models.Quote, error) {
	quote, err := q.quoteRepo.ByUUIDWithMilestones(ctx, quoteUUID)
	if err != nil {
		return nil, NewBusinessError(CodeInternal, "Failed to load quote", err)
	}
	if quote == nil {
		return nil, NewBusinessError(CodeNotFound, "Quote not found", ErrQuoteNotFound)
	}
	if customerID != 0 && !quote.IsParty(customerID) {
		return nil, NewBusinessError(CodeForbidden, "Quote access denied", ErrQuoteAccessDenied)
	}
	return quote, nil
}

// buildSchedule turns a requested schedule into milestone rows, or applies
// the default split. Explicit amounts need not match the budget; any excess
// shows up on the escrow ledger as an over-budget commitment.
func buildSchedule(quote *models.Quote, items []dto.ScheduleItemRequest) ([]*models.Milestone, error) {
	if len(items) == 0 {
		return defaultSchedule(quote), nil
	}
	if len(items) > utils.MaxMilestonesPerQuote {
		return nil, NewBusinessError(CodeValidation, "Payment schedule has too many milestones", ErrScheduleTooLong)
	}

	milestones := make([]*models.Milestone, 0, len(items))
	for i, item := range items {
		amount, err := decimal.NewFromString(item.Amount)
		if err != nil || !amount.IsPositive() {
			return nil, NewBusinessErrorf(CodeValidation, "Milestone %d amount must be a positive decimal", ErrScheduleAmountInvalid, i+1)
		}
		amount = amount.Round(2)

		milestones = append(milestones, &models.Milestone{
			QuoteID:  quote.ID,
			Name:     item.Name,
			Sequence: i + 1,
			Amount:   amount,
			Status:   models.MilestoneStatusPending,
		})
	}

	// A schedule that does not match the budget is accepted; the discrepancy
	// surfaces as the escrow ledger's over-budget warning.
	return milestones, nil
}

// defaultSchedule splits the budget per the default ratios. Rounding
// remainders land on the final milestone so the sum always matches.
func defaultSchedule(quote *models.Quote) []*models.Milestone {
	splits := utils.DefaultMilestoneSplits
	names := utils.DefaultMilestoneNames

	milestones := make([]*models.Milestone, 0, len(splits))
	allocated := decimal.Zero
	for i, split := range splits {
		var amount decimal.Decimal
		if i == len(splits)-1 {
			amount = quote.TotalBudget.Sub(allocated)
		} else {
			amount = quote.TotalBudget.Mul(decimal.NewFromFloat(split)).Round(2)
			allocated = allocated.Add(amount)
		}

		milestones = append(milestones, &models.Milestone{
			QuoteID:  quote.ID,
			Name:     names[i],
			Sequence: i + 1,
			Amount:   amount,
			Status:   models.MilestoneStatusPending,
		})
	}

	return milestones
}

// notifyContractor tells the contractor the quote was accepted. Failures are
// logged to audit only; notifications never block acceptance.
func (q *QuoteFlowImpl) notifyContractor(ctx context.Context, quote *models.Quote) {
	contractor, err := q.customerRepo.ByID(ctx, quote.ContractorID)
	if err != nil || contractor == nil {
		return
	}

	message := fmt.Sprintf("Báo giá %s đã được chấp nhận. Tổng ngân sách: %s", quote.UUID, utils.FormatVND(quote.TotalBudget))
	if err := q.notifier.SendSMS(contractor.Mobile, message); err != nil {
		errMsg := err.Error()
		_ = createAuditLog(ctx, q.auditRepo, contractor, models.AuditActionQuoteAccepted, "Contractor notification failed", false, &errMsg, nil)
	}
}
