// Package businessflow contains admin reporting flows
package businessflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/trungvq/vatlieu-marketplace/app/dto"
	"github.com/trungvq/vatlieu-marketplace/models"
	"github.com/trungvq/vatlieu-marketplace/repository"
	"github.com/trungvq/vatlieu-marketplace/utils"
	"github.com/xuri/excelize/v2"
)

// AdminReportFlow produces spreadsheet exports for back-office review.
type AdminReportFlow interface {
	ExportSettlementReport(ctx context.Context, req *dto.ExportSettlementReportRequest, metadata *ClientMetadata) (*dto.FileExportResponse, error)
	ExportPriceLists(ctx context.Context, req *dto.ExportPriceListsRequest, metadata *ClientMetadata) (*dto.FileExportResponse, error)
}

// AdminReportFlowImpl implements the admin reporting flow
type AdminReportFlowImpl struct {
	milestoneRepo repository.MilestoneRepository
	quoteRepo     repository.QuoteRepository
	priceListRepo repository.PriceListRepository
	auditRepo     repository.AuditLogRepository
}

// NewAdminReportFlow creates a new admin report flow instance
func NewAdminReportFlow(
	milestoneRepo repository.MilestoneRepository,
	quoteRepo repository.QuoteRepository,
	priceListRepo repository.PriceListRepository,
	auditRepo repository.AuditLogRepository,
) AdminReportFlow {
	return &AdminReportFlowImpl{
		milestoneRepo: milestoneRepo,
		quoteRepo:     quoteRepo,
		priceListRepo: priceListRepo,
		auditRepo:     auditRepo,
	}
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportSettlementReport builds a workbook of milestones that moved money in
// the window, plus the raw settlement audit trail.
func (f *AdminReportFlowImpl) ExportSettlementReport(ctx context.Context, req *dto.ExportSettlementReportRequest, metadata *ClientMetadata) (*dto.FileExportResponse, error) {
	if req.AdminID == 0 {
		return nil, NewBusinessError(CodeForbidden, "Settlement export requires an administrator", ErrAdminRequired)
	}

	from, err := parseTimePtr(req.From)
	if err != nil {
		return nil, NewBusinessError(CodeValidation, "Invalid 'from' timestamp", err)
	}
	to, err := parseTimePtr(req.To)
	if err != nil {
		return nil, NewBusinessError(CodeValidation, "Invalid 'to' timestamp", err)
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, NewBusinessError(CodeValidation, "'to' must not precede 'from'", nil)
	}

	milestones, err := f.milestoneRepo.ByFilter(ctx, models.MilestoneFilter{}, "quote_id ASC, sequence ASC", 0, 0)
	if err != nil {
		return nil, NewBusinessError(CodeInternal, "Failed to fetch milestones", err)
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	sheet := "Settlements"
	xl.SetSheetName(xl.GetSheetName(0), sheet)
	header := []string{"quote_uuid", "milestone_uuid", "name", "sequence", "amount_vnd", "status", "paid_at", "released_at", "refunded_at", "clawback_pending"}
	_ = xl.SetSheetRow(sheet, "A1", &header)

	quoteUUIDs := make(map[uint]string)
	ri := 0
	for _, m := range milestones {
		if !settledInWindow(m, from, to) {
			continue
		}
		quoteUUID, ok := quoteUUIDs[m.QuoteID]
		if !ok {
			quote, err := f.quoteRepo.ByID(ctx, m.QuoteID)
			if err != nil {
				return nil, NewBusinessError(CodeInternal, "Failed to load quote", err)
			}
			if quote != nil {
				quoteUUID = quote.UUID.String()
			}
			quoteUUIDs[m.QuoteID] = quoteUUID
		}
		record := []string{
			quoteUUID,
			m.UUID.String(),
			m.Name,
			strconv.Itoa(m.Sequence),
			m.Amount.StringFixed(2),
			string(m.Status),
			formatTimeCell(m.PaidAt),
			formatTimeCell(m.ReleasedAt),
			formatTimeCell(m.RefundedAt),
			strconv.FormatBool(utils.IsTrue(m.ClawbackPending)),
		}
		cellRef, _ := excelize.CoordinatesToCellName(1, ri+2)
		_ = xl.SetSheetRow(sheet, cellRef, &record)
		ri++
	}

	if err := f.writeAuditSheet(ctx, xl, from, to); err != nil {
		return nil, err
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, NewBusinessError(CodeInternal, "Failed to write Excel file", err)
	}

	_ = createAuditLog(ctx, f.auditRepo, nil, models.AuditActionSettlementExported, fmt.Sprintf("Settlement report exported by admin %d (%d rows)", req.AdminID, ri), true, nil, metadata)

	return &dto.FileExportResponse{
		FileName:    fmt.Sprintf("settlement_report_%s.xlsx", utils.UTCNow().Format("20060102_150405")),
		ContentType: xlsxContentType,
		Content:     buf.Bytes(),
	}, nil
}

// ExportPriceLists dumps every price list and its tier ladder, one sheet per
// list, for pricing review.
func (f *AdminReportFlowImpl) ExportPriceLists(ctx context.Context, req *dto.ExportPriceListsRequest, metadata *ClientMetadata) (*dto.FileExportResponse, error) {
	if req.AdminID == 0 {
		return nil, NewBusinessError(CodeForbidden, "Price list export requires an administrator", ErrAdminRequired)
	}

	lists, err := f.priceListRepo.ByFilter(ctx, models.PriceListFilter{}, "priority DESC, id ASC", 0, 0)
	if err != nil {
		return nil, NewBusinessError(CodeInternal, "Failed to fetch price lists", err)
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	usedNames := map[string]bool{}
	for i, pl := range lists {
		baseName := sanitizeSheetName(pl.Code)
		name := baseName
		idx := 1
		for usedNames[name] {
			idx++
			name = truncateSheetName(fmt.Sprintf("%s_%d", baseName, idx))
		}
		usedNames[name] = true
		if i == 0 {
			xl.SetSheetName(xl.GetSheetName(0), name)
		} else {
			_, _ = xl.NewSheet(name)
		}

		meta := []string{pl.Code, pl.Name, strings.Join(pl.CustomerTypes, ","), strconv.Itoa(pl.Priority), strconv.FormatBool(utils.IsTrue(pl.IsActive)), formatTimeCell(pl.ValidFrom), formatTimeCell(pl.ValidTo)}
		metaHeader := []string{"code", "name", "customer_types", "priority", "is_active", "valid_from", "valid_to"}
		_ = xl.SetSheetRow(name, "A1", &metaHeader)
		_ = xl.SetSheetRow(name, "A2", &meta)

		tierHeader := []string{"min_quantity", "discount_percent", "fixed_unit_price"}
		_ = xl.SetSheetRow(name, "A4", &tierHeader)
		for ti, tier := range pl.Tiers {
			discount := ""
			if tier.DiscountPercent != nil {
				discount = strconv.FormatFloat(*tier.DiscountPercent, 'f', -1, 64)
			}
			fixed := ""
			if tier.FixedUnitPrice != nil {
				fixed = tier.FixedUnitPrice.StringFixed(2)
			}
			record := []string{strconv.FormatFloat(tier.MinQuantity, 'f', -1, 64), discount, fixed}
			cellRef, _ := excelize.CoordinatesToCellName(1, ti+5)
			_ = xl.SetSheetRow(name, cellRef, &record)
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, NewBusinessError(CodeInternal, "Failed to write Excel file", err)
	}

	return &dto.FileExportResponse{
		FileName:    fmt.Sprintf("price_lists_%s.xlsx", utils.UTCNow().Format("20060102_150405")),
		ContentType: xlsxContentType,
		Content:     buf.Bytes(),
	}, nil
}

func (f *AdminReportFlowImpl) writeAuditSheet(ctx context.Context, xl *excelize.File, from, to *time.Time) error {
	events, err := f.auditRepo.ListSettlementEvents(ctx, 10000, 0)
	if err != nil {
		return NewBusinessError(CodeInternal, "Failed to fetch settlement events", err)
	}

	sheet := "Audit Trail"
	if _, err := xl.NewSheet(sheet); err != nil {
		return NewBusinessError(CodeInternal, "Failed to create audit sheet", err)
	}
	header := []string{"created_at", "action", "customer_id", "description", "success"}
	_ = xl.SetSheetRow(sheet, "A1", &header)

	ri := 0
	for _, e := range events {
		if from != nil && e.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && e.CreatedAt.After(*to) {
			continue
		}
		customerID := ""
		if e.CustomerID != nil {
			customerID = strconv.FormatUint(uint64(*e.CustomerID), 10)
		}
		description := ""
		if e.Description != nil {
			description = *e.Description
		}
		record := []string{
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.Action,
			customerID,
			description,
			strconv.FormatBool(utils.IsTrue(e.Success)),
		}
		cellRef, _ := excelize.CoordinatesToCellName(1, ri+2)
		_ = xl.SetSheetRow(sheet, cellRef, &record)
		ri++
	}
	return nil
}

// settledInWindow reports whether any settlement timestamp of the milestone
// falls inside [from, to].
func settledInWindow(m *models.Milestone, from, to *time.Time) bool {
	for _, ts := range []*time.Time{m.PaidAt, m.ReleasedAt, m.RefundedAt} {
		if ts == nil {
			continue
		}
		if from != nil && ts.Before(*from) {
			continue
		}
		if to != nil && ts.After(*to) {
			continue
		}
		return true
	}
	return false
}

func formatTimeCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Excel sheet names cannot contain : \ / ? * [ ] and must be <= 31 chars.
func sanitizeSheetName(name string) string {
	replacer := strings.NewReplacer(":", "_", "\\", "_", "/", "_", "?", "_", "*", "_", "[", "_", "]", "_")
	return truncateSheetName(strings.TrimSpace(replacer.Replace(name)))
}

func truncateSheetName(name string) string {
	if len(name) > 31 {
		return name[:31]
	}
	if name == "" {
		return "Sheet"
	}
	return name
}
