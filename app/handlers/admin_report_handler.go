package handlers

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/trungvq/vatlieu-marketplace/app/dto"
	"github.com/trungvq/vatlieu-marketplace/app/middleware"
	businessflow "github.com/trungvq/vatlieu-marketplace/business_flow"
	"github.com/trungvq/vatlieu-marketplace/utils"
	"github.com/gofiber/fiber/v3"
)

type AdminReportHandlerInterface interface {
	ExportSettlementReport(c fiber.Ctx) error
	ExportPriceLists(c fiber.Ctx) error
}

type AdminReportHandler struct {
	reportFlow businessflow.AdminReportFlow
}

func NewAdminReportHandler(reportFlow businessflow.AdminReportFlow) AdminReportHandlerInterface {
	return &AdminReportHandler{reportFlow: reportFlow}
}

func (h *AdminReportHandler) ErrorResponse(c fiber.Ctx, status int, message, code string, details any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: false, Message: message, Error: dto.ErrorDetail{Code: code, Details: details}})
}

// ExportSettlementReport downloads the settlement workbook
// @Summary Export Settlement Report
// @Description Download an Excel workbook of milestone settlements and the audit trail for a window
// @Tags Admin Reports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param from query string false "Window start (RFC3339)"
// @Param to query string false "Window end (RFC3339)"
// @Success 200 {file} binary "Excel file"
// @Failure 400 {object} dto.APIResponse "Invalid window"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 500 {object} dto.APIResponse "Export failed"
// @Router /api/v1/admin/reports/settlements [get]
func (h *AdminReportHandler) ExportSettlementReport(c fiber.Ctx) error {
	adminID, ok := middleware.GetAdminIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Admin ID not found in context", "MISSING_ADMIN_ID", nil)
	}

	req := dto.ExportSettlementReportRequest{AdminID: adminID}
	if from := c.Query("from"); from != "" {
		req.From = &from
	}
	if to := c.Query("to"); to != "" {
		req.To = &to
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.reportFlow.ExportSettlementReport(h.createRequestContext(c, "/api/v1/admin/reports/settlements"), &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Settlement report export failed", "SETTLEMENT_EXPORT_FAILED")
	}

	c.Set("Content-Type", result.ContentType)
	c.Set("Content-Disposition", "attachment; filename="+result.FileName)
	return c.Send(result.Content)
}

// ExportPriceLists downloads all price lists as a workbook
// @Summary Export Price Lists
// @Description Download an Excel workbook with one sheet per price list and its tier ladder
// @Tags Admin Reports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Success 200 {file} binary "Excel file"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 500 {object} dto.APIResponse "Export failed"
// @Router /api/v1/admin/reports/price-lists [get]
func (h *AdminReportHandler) ExportPriceLists(c fiber.Ctx) error {
	adminID, ok := middleware.GetAdminIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Admin ID not found in context", "MISSING_ADMIN_ID", nil)
	}

	req := dto.ExportPriceListsRequest{AdminID: adminID}
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.reportFlow.ExportPriceLists(h.createRequestContext(c, "/api/v1/admin/reports/price-lists"), &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Price list export failed", "PRICE_LIST_EXPORT_FAILED")
	}

	c.Set("Content-Type", result.ContentType)
	c.Set("Content-Disposition", "attachment; filename="+result.FileName)
	return c.Send(result.Content)
}

func (h *AdminReportHandler) flowError(c fiber.Ctx, err error, fallbackMessage, fallbackCode string) error {
	var bizErr *businessflow.BusinessError
	if errors.As(err, &bizErr) {
		return h.ErrorResponse(c, statusForCode(bizErr.Code), bizErr.Message, bizErr.Code, nil)
	}
	log.Println(fallbackMessage+":", err)
	return h.ErrorResponse(c, fiber.StatusInternalServerError, fallbackMessage, fallbackCode, nil)
}

func (h *AdminReportHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 60*time.Second)
}

func (h *AdminReportHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
