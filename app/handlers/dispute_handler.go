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

type DisputeHandlerInterface interface {
	OpenDispute(c fiber.Ctx) error
	ResolveDispute(c fiber.Ctx) error
	AddComment(c fiber.Ctx) error
	AddEvidence(c fiber.Ctx) error
	GetDispute(c fiber.Ctx) error
}

type DisputeHandler struct {
	disputeFlow businessflow.DisputeFlow
	validator   *validator.Validate
}

func NewDisputeHandler(disputeFlow businessflow.DisputeFlow) DisputeHandlerInterface {
	return &DisputeHandler{
		disputeFlow: disputeFlow,
		validator:   validator.New(),
	}
}

func (h *DisputeHandler) ErrorResponse(c fiber.Ctx, status int, message, code string, details any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: false, Message: message, Error: dto.ErrorDetail{Code: code, Details: details}})
}

func (h *DisputeHandler) SuccessResponse(c fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: true, Message: message, Data: data})
}

// OpenDispute contests a milestone and freezes it
// @Summary Open Dispute
// @Description Open a dispute on an escrowed or recently released milestone; the milestone is frozen until resolution
// @Tags Disputes
// @Accept json
// @Produce json
// @Param uuid path string true "Milestone UUID"
// @Param request body dto.OpenDisputeRequest true "Dispute reason"
// @Success 201 {object} dto.APIResponse{data=dto.OpenDisputeResponse} "Dispute opened successfully"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 403 {object} dto.APIResponse "Not a party to the quote"
// @Failure 404 {object} dto.APIResponse "Milestone not found"
// @Failure 409 {object} dto.APIResponse "Dispute window closed or already open"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/milestones/{uuid}/disputes [post]
func (h *DisputeHandler) OpenDispute(c fiber.Ctx) error {
	var req dto.OpenDisputeRequest
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

	customerID, ok := middleware.GetCustomerIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}
	req.CustomerID = customerID
	req.MilestoneUUID = c.Params("uuid")

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.disputeFlow.OpenDispute(h.createRequestContext(c, "/api/v1/milestones/:uuid/disputes"), &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Dispute opening failed", "DISPUTE_OPEN_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Dispute opened successfully", result)
}

// ResolveDispute settles a dispute with a terminal outcome
// @Summary Resolve Dispute
// @Description Resolve a dispute as RELEASED or REFUNDED and settle the frozen milestone; admin only
// @Tags Disputes
// @Accept json
// @Produce json
// @Param uuid path string true "Dispute UUID"
// @Param request body dto.ResolveDisputeRequest true "Outcome and resolution notes"
// @Success 200 {object} dto.APIResponse{data=dto.ResolveDisputeResponse} "Dispute resolved successfully"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 404 {object} dto.APIResponse "Dispute not found"
// @Failure 409 {object} dto.APIResponse "Dispute already resolved"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/disputes/{uuid}/resolve [post]
func (h *DisputeHandler) ResolveDispute(c fiber.Ctx) error {
	var req dto.ResolveDisputeRequest
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

	adminID, ok := middleware.GetAdminIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Admin ID not found in context", "MISSING_ADMIN_ID", nil)
	}
	req.AdminID = adminID
	req.DisputeUUID = c.Params("uuid")

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.disputeFlow.ResolveDispute(h.createRequestContext(c, "/api/v1/admin/disputes/:uuid/resolve"), &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Dispute resolution failed", "DISPUTE_RESOLUTION_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Dispute resolved successfully", result)
}

// AddComment appends a comment to the dispute thread
// @Summary Add Dispute Comment
// @Description Append a comment to an unresolved dispute; parties and admins may comment
// @Tags Disputes
// @Accept json
// @Produce json
// @Param uuid path string true "Dispute UUID"
// @Param request body dto.AddDisputeCommentRequest true "Comment body"
// @Success 201 {object} dto.APIResponse{data=dto.AddDisputeCommentResponse} "Comment added successfully"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 403 {object} dto.APIResponse "Not a party to the dispute"
// @Failure 404 {object} dto.APIResponse "Dispute not found"
// @Failure 409 {object} dto.APIResponse "Dispute is resolved"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/disputes/{uuid}/comments [post]
func (h *DisputeHandler) AddComment(c fiber.Ctx) error {
	var req dto.AddDisputeCommentRequest
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

	if customerID, ok := middleware.GetCustomerIDFromContext(c); ok {
		req.AuthorID = customerID
	} else if adminID, ok := middleware.GetAdminIDFromContext(c); ok {
		req.AuthorID = adminID
		req.IsAdmin = true
	} else {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Authentication required", "AUTHENTICATION_REQUIRED", nil)
	}
	req.DisputeUUID = c.Params("uuid")

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.disputeFlow.AddComment(h.createRequestContext(c, "/api/v1/disputes/:uuid/comments"), &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Comment creation failed", "DISPUTE_COMMENT_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Comment added successfully", result)
}

// AddEvidence attaches evidence to the dispute thread
// @Summary Add Dispute Evidence
// @Description Attach an evidence file reference to an unresolved dispute
// @Tags Disputes
// @Accept json
// @Produce json
// @Param uuid path string true "Dispute UUID"
// @Param request body dto.AddDisputeEvidenceRequest true "Evidence file reference"
// @Success 201 {object} dto.APIResponse{data=dto.AddDisputeEvidenceResponse} "Evidence attached successfully"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 403 {object} dto.APIResponse "Not a party to the dispute"
// @Failure 404 {object} dto.APIResponse "Dispute not found"
// @Failure 409 {object} dto.APIResponse "Dispute is resolved"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/disputes/{uuid}/evidence [post]
func (h *DisputeHandler) AddEvidence(c fiber.Ctx) error {
	var req dto.AddDisputeEvidenceRequest
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

	customerID, ok := middleware.GetCustomerIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}
	req.UploaderID = customerID
	req.DisputeUUID = c.Params("uuid")

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.disputeFlow.AddEvidence(h.createRequestContext(c, "/api/v1/disputes/:uuid/evidence"), &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Evidence attachment failed", "DISPUTE_EVIDENCE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Evidence attached successfully", result)
}

// GetDispute returns a dispute with its thread
// @Summary Get Dispute
// @Description Retrieve a dispute with its comments and evidence; parties and admins may read it
// @Tags Disputes
// @Produce json
// @Param uuid path string true "Dispute UUID"
// @Success 200 {object} dto.APIResponse{data=dto.GetDisputeResponse} "Dispute retrieved successfully"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 403 {object} dto.APIResponse "Not a party to the dispute"
// @Failure 404 {object} dto.APIResponse "Dispute not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/disputes/{uuid} [get]
func (h *DisputeHandler) GetDispute(c fiber.Ctx) error {
	var req dto.GetDisputeRequest
	if customerID, ok := middleware.GetCustomerIDFromContext(c); ok {
		req.CustomerID = customerID
	} else if _, ok := middleware.GetAdminIDFromContext(c); ok {
		req.IsAdmin = true
	} else {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Authentication required", "AUTHENTICATION_REQUIRED", nil)
	}
	req.DisputeUUID = c.Params("uuid")

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.disputeFlow.GetDispute(h.createRequestContext(c, "/api/v1/disputes/:uuid"), &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Dispute retrieval failed", "DISPUTE_RETRIEVAL_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Dispute retrieved successfully", result)
}

func (h *DisputeHandler) flowError(c fiber.Ctx, err error, fallbackMessage, fallbackCode string) error {
	var bizErr *businessflow.BusinessError
	if errors.As(err, &bizErr) {
		return h.ErrorResponse(c, statusForCode(bizErr.Code), bizErr.Message, bizErr.Code, nil)
	}
	log.Println(fallbackMessage+":", err)
	return h.ErrorResponse(c, fiber.StatusInternalServerError, fallbackMessage, fallbackCode, nil)
}

func (h *DisputeHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

func (h *DisputeHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
