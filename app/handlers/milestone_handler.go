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
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type MilestoneHandlerInterface interface {
	PayMilestone(c fiber.Ctx) error
	ReleaseMilestone(c fiber.Ctx) error
	RefundMilestone(c fiber.Ctx) error
	GetMilestone(c fiber.Ctx) error
}

type MilestoneHandler struct {
	milestoneFlow businessflow.MilestoneFlow
	validator     *validator.Validate
}

func NewMilestoneHandler(milestoneFlow businessflow.MilestoneFlow) MilestoneHandlerInterface {
	return &MilestoneHandler{
		milestoneFlow: milestoneFlow,
		validator:     validator.New(),
	}
}

func (h *MilestoneHandler) ErrorResponse(c fiber.Ctx, status int, message, code string, details any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: false, Message: message, Error: dto.ErrorDetail{Code: code, Details: details}})
}

func (h *MilestoneHandler) SuccessResponse(c fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: true, Message: message, Data: data})
}

// PayMilestone pays a pending milestone into escrow
// @Summary Pay Milestone
// @Description Fund a pending milestone into escrow; only the buyer may pay
// @Tags Milestones
// @Accept json
// @Produce json
// @Param uuid path string true "Milestone UUID"
// @Param request body dto.PayMilestoneRequest false "Optional payment reference"
// @Success 200 {object} dto.APIResponse{data=dto.PayMilestoneResponse} "Milestone paid into escrow"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 403 {object} dto.APIResponse "Only the buyer may pay"
// @Failure 404 {object} dto.APIResponse "Milestone not found"
// @Failure 409 {object} dto.APIResponse "Milestone is not payable"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/milestones/{uuid}/pay [post]
func (h *MilestoneHandler) PayMilestone(c fiber.Ctx) error {
	var req dto.PayMilestoneRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
		}
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	customerID, ok := middleware.GetCustomerIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}
	req.CustomerID = customerID
	req.MilestoneUUID = c.Params("uuid")

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.milestoneFlow.PayMilestone(h.createRequestContext(c, "/api/v1/milestones/:uuid/pay"), &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Milestone payment failed", "MILESTONE_PAYMENT_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Milestone paid into escrow", result)
}

// ReleaseMilestone releases held funds to the contractor
// @Summary Release Milestone
// @Description Release escrowed funds to the contractor; only the buyer may release
// @Tags Milestones
// @Accept json
// @Produce json
// @Param uuid path string true "Milestone UUID"
// @Param request body dto.ReleaseMilestoneRequest false "Optional release reason"
// @Success 200 {object} dto.APIResponse{data=dto.ReleaseMilestoneResponse} "Milestone released"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 403 {object} dto.APIResponse "Only the buyer may release"
// @Failure 404 {object} dto.APIResponse "Milestone not found"
// @Failure 409 {object} dto.APIResponse "Funds are not held"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/milestones/{uuid}/release [post]
func (h *MilestoneHandler) ReleaseMilestone(c fiber.Ctx) error {
	var req dto.ReleaseMilestoneRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
		}
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	customerID, ok := middleware.GetCustomerIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}
	req.CustomerID = customerID
	req.MilestoneUUID = c.Params("uuid")

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.milestoneFlow.ReleaseMilestone(h.createRequestContext(c, "/api/v1/milestones/:uuid/release"), &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Milestone release failed", "MILESTONE_RELEASE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Milestone released", result)
}

// RefundMilestone refunds a milestone back to the buyer
// @Summary Refund Milestone
// @Description Refund escrowed funds to the buyer; the buyer may cancel their own held milestone, admins may refund any
// @Tags Milestones
// @Accept json
// @Produce json
// @Param uuid path string true "Milestone UUID"
// @Param request body dto.RefundMilestoneRequest true "Refund reason"
// @Success 200 {object} dto.APIResponse{data=dto.RefundMilestoneResponse} "Milestone refunded"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 404 {object} dto.APIResponse "Milestone not found"
// @Failure 409 {object} dto.APIResponse "Milestone cannot be refunded"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/milestones/{uuid}/refund [post]
func (h *MilestoneHandler) RefundMilestone(c fiber.Ctx) error {
	var req dto.RefundMilestoneRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	if adminID, ok := middleware.GetAdminIDFromContext(c); ok {
		req.AdminID = adminID
	} else if customerID, ok := middleware.GetCustomerIDFromContext(c); ok {
		req.CustomerID = customerID
	} else {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Caller identity not found in context", "MISSING_CALLER_ID", nil)
	}
	req.MilestoneUUID = c.Params("uuid")

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.milestoneFlow.RefundMilestone(h.createRequestContext(c, "/api/v1/milestones/:uuid/refund"), &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Milestone refund failed", "MILESTONE_REFUND_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Milestone refunded", result)
}

// GetMilestone returns one milestone
// @Summary Get Milestone
// @Description Retrieve a milestone; only the quote parties may read it
// @Tags Milestones
// @Produce json
// @Param uuid path string true "Milestone UUID"
// @Success 200 {object} dto.APIResponse{data=dto.GetMilestoneResponse} "Milestone retrieved successfully"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 403 {object} dto.APIResponse "Milestone access denied"
// @Failure 404 {object} dto.APIResponse "Milestone not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/milestones/{uuid} [get]
func (h *MilestoneHandler) GetMilestone(c fiber.Ctx) error {
	customerID, ok := middleware.GetCustomerIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}

	req := dto.GetMilestoneRequest{MilestoneUUID: c.Params("uuid"), CustomerID: customerID}
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.milestoneFlow.GetMilestone(h.createRequestContext(c, "/api/v1/milestones/:uuid"), &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Milestone retrieval failed", "MILESTONE_RETRIEVAL_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Milestone retrieved successfully", result)
}

func (h *MilestoneHandler) flowError(c fiber.Ctx, err error, fallbackMessage, fallbackCode string) error {
	var bizErr *businessflow.BusinessError
	if errors.As(err, &bizErr) {
		return h.ErrorResponse(c, statusForCode(bizErr.Code), bizErr.Message, bizErr.Code, nil)
	}
	log.Println(fallbackMessage+":", err)
	return h.ErrorResponse(c, fiber.StatusInternalServerError, fallbackMessage, fallbackCode, nil)
}

func (h *MilestoneHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

func (h *MilestoneHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
