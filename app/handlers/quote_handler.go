package handlers

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/trungvq/vatlieu-marketplace/app/dto"
	"github.com/trungvq/vatlieu-marketplace/app/middleware"
	businessflow "github.com/trungvq/vatlieu-marketplace/business_flow"
	"github.com/trungvq/vatlieu-marketplace/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type QuoteHandlerInterface interface {
	AcceptQuote(c fiber.Ctx) error
	GetQuote(c fiber.Ctx) error
	ListQuotes(c fiber.Ctx) error
	GetEscrowLedger(c fiber.Ctx) error
}

type QuoteHandler struct {
	quoteFlow businessflow.QuoteFlow
	validator *validator.Validate
}

func NewQuoteHandler(quoteFlow businessflow.QuoteFlow) QuoteHandlerInterface {
	return &QuoteHandler{
		quoteFlow: quoteFlow,
		validator: validator.New(),
	}
}

func (h *QuoteHandler) ErrorResponse(c fiber.Ctx, status int, message, code string, details any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: false, Message: message, Error: dto.ErrorDetail{Code: code, Details: details}})
}

func (h *QuoteHandler) SuccessResponse(c fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: true, Message: message, Data: data})
}

// AcceptQuote accepts a quote and creates its payment schedule
// @Summary Accept Quote
// @Description Accept a sent quote and create its milestone payment schedule
// @Tags Quotes
// @Accept json
// @Produce json
// @Param uuid path string true "Quote UUID"
// @Param request body dto.AcceptQuoteRequest true "Optional explicit payment schedule"
// @Success 200 {object} dto.APIResponse{data=dto.AcceptQuoteResponse} "Quote accepted successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid schedule"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 403 {object} dto.APIResponse "Only the buyer may accept"
// @Failure 404 {object} dto.APIResponse "Quote not found"
// @Failure 409 {object} dto.APIResponse "Quote is not acceptable"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/quotes/{uuid}/accept [post]
func (h *QuoteHandler) AcceptQuote(c fiber.Ctx) error {
	var req dto.AcceptQuoteRequest
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
	req.QuoteUUID = c.Params("uuid")

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.quoteFlow.AcceptQuote(h.createRequestContext(c, "/api/v1/quotes/:uuid/accept"), &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Quote acceptance failed", "QUOTE_ACCEPTANCE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Quote accepted successfully", result)
}

// GetQuote returns one quote with its payment schedule
// @Summary Get Quote
// @Description Retrieve a quote with its milestones; only the quote parties may read it
// @Tags Quotes
// @Produce json
// @Param uuid path string true "Quote UUID"
// @Success 200 {object} dto.APIResponse{data=dto.GetQuoteResponse} "Quote retrieved successfully"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 403 {object} dto.APIResponse "Quote access denied"
// @Failure 404 {object} dto.APIResponse "Quote not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/quotes/{uuid} [get]
func (h *QuoteHandler) GetQuote(c fiber.Ctx) error {
	customerID, ok := middleware.GetCustomerIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}

	req := dto.GetQuoteRequest{QuoteUUID: c.Params("uuid"), CustomerID: customerID}
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.quoteFlow.GetQuote(h.createRequestContext(c, "/api/v1/quotes/:uuid"), &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Quote retrieval failed", "QUOTE_RETRIEVAL_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Quote retrieved successfully", result)
}

// ListQuotes lists the authenticated customer's quotes
// @Summary List Quotes
// @Description List quotes where the customer is buyer or contractor
// @Tags Quotes
// @Produce json
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Page offset" default(0)
// @Success 200 {object} dto.APIResponse{data=dto.ListQuotesResponse} "Quotes retrieved successfully"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/quotes [get]
func (h *QuoteHandler) ListQuotes(c fiber.Ctx) error {
	customerID, ok := middleware.GetCustomerIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}

	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	req := dto.ListQuotesRequest{CustomerID: customerID, Pagination: dto.Pagination{Limit: limit, Offset: offset}}
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.quoteFlow.ListQuotes(h.createRequestContext(c, "/api/v1/quotes"), &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Quote listing failed", "QUOTE_LISTING_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Quotes retrieved successfully", result)
}

// GetEscrowLedger returns the derived escrow position of a quote
// @Summary Get Escrow Ledger
// @Description Compute the escrow ledger of a quote from its milestone states
// @Tags Quotes
// @Produce json
// @Param uuid path string true "Quote UUID"
// @Success 200 {object} dto.APIResponse{data=dto.GetEscrowLedgerResponse} "Ledger computed successfully"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 403 {object} dto.APIResponse "Quote access denied"
// @Failure 404 {object} dto.APIResponse "Quote not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/quotes/{uuid}/escrow [get]
func (h *QuoteHandler) GetEscrowLedger(c fiber.Ctx) error {
	customerID, ok := middleware.GetCustomerIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}

	req := dto.GetEscrowLedgerRequest{QuoteUUID: c.Params("uuid"), CustomerID: customerID}
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.quoteFlow.GetEscrowLedger(h.createRequestContext(c, "/api/v1/quotes/:uuid/escrow"), &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Escrow ledger computation failed", "ESCROW_LEDGER_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Escrow ledger computed successfully", result)
}

func (h *QuoteHandler) flowError(c fiber.Ctx, err error, fallbackMessage, fallbackCode string) error {
	var bizErr *businessflow.BusinessError
	if errors.As(err, &bizErr) {
		return h.ErrorResponse(c, statusForCode(bizErr.Code), bizErr.Message, bizErr.Code, nil)
	}
	log.Println(fallbackMessage+":", err)
	return h.ErrorResponse(c, fiber.StatusInternalServerError, fallbackMessage, fallbackCode, nil)
}

func (h *QuoteHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

func (h *QuoteHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
