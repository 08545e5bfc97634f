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

type PricingHandlerInterface interface {
	ResolvePrice(c fiber.Ctx) error
	EvaluateCart(c fiber.Ctx) error
	UpsertPriceList(c fiber.Ctx) error
	SetPriceOverride(c fiber.Ctx) error
}

type PricingHandler struct {
	pricingFlow businessflow.PricingFlow
	validator   *validator.Validate
}

func NewPricingHandler(pricingFlow businessflow.PricingFlow) PricingHandlerInterface {
	return &PricingHandler{
		pricingFlow: pricingFlow,
		validator:   validator.New(),
	}
}

func (h *PricingHandler) ErrorResponse(c fiber.Ctx, status int, message, code string, details any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: false, Message: message, Error: dto.ErrorDetail{Code: code, Details: details}})
}

func (h *PricingHandler) SuccessResponse(c fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: true, Message: message, Data: data})
}

// ResolvePrice resolves the effective unit price for a customer, product and quantity
// @Summary Resolve Price
// @Description Resolve the effective unit price for a customer, product and quantity
// @Tags Pricing
// @Accept json
// @Produce json
// @Param request body dto.ResolvePriceRequest true "Price resolution parameters"
// @Success 200 {object} dto.APIResponse{data=dto.ResolvePriceResponse} "Price resolved successfully"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Customer or product not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/pricing/resolve [post]
func (h *PricingHandler) ResolvePrice(c fiber.Ctx) error {
	var req dto.ResolvePriceRequest
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

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.pricingFlow.ResolvePrice(h.createRequestContext(c, "/api/v1/pricing/resolve"), &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Price resolution failed", "PRICE_RESOLUTION_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Price resolved successfully", result)
}

// EvaluateCart prices every cart line and totals the cart
// @Summary Evaluate Cart
// @Description Price each cart line for the customer and compute the subtotal with next-tier suggestions
// @Tags Pricing
// @Accept json
// @Produce json
// @Param request body dto.EvaluateCartRequest true "Cart contents"
// @Success 200 {object} dto.APIResponse{data=dto.EvaluateCartResponse} "Cart evaluated successfully"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Customer or product not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/cart/evaluate [post]
func (h *PricingHandler) EvaluateCart(c fiber.Ctx) error {
	var req dto.EvaluateCartRequest
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

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.pricingFlow.EvaluateCart(h.createRequestContext(c, "/api/v1/cart/evaluate"), &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Cart evaluation failed", "CART_EVALUATION_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Cart evaluated successfully", result)
}

// UpsertPriceList creates or replaces a segment price list
// @Summary Upsert Price List
// @Description Create or replace a segment price list and its quantity tiers (admin)
// @Tags Pricing
// @Accept json
// @Produce json
// @Param request body dto.UpsertPriceListRequest true "Price list definition"
// @Success 200 {object} dto.APIResponse{data=dto.UpsertPriceListResponse} "Price list saved successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid tier ladder"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/price-lists [post]
func (h *PricingHandler) UpsertPriceList(c fiber.Ctx) error {
	var req dto.UpsertPriceListRequest
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

	if _, ok := middleware.GetAdminIDFromContext(c); !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Admin ID not found in context", "MISSING_ADMIN_ID", nil)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.pricingFlow.UpsertPriceList(h.createRequestContext(c, "/api/v1/admin/price-lists"), &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Price list save failed", "PRICE_LIST_SAVE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Price list saved successfully", result)
}

// SetPriceOverride pins a contract unit price for one customer and product
// @Summary Set Price Override
// @Description Pin a negotiated unit price for one customer and product (admin)
// @Tags Pricing
// @Accept json
// @Produce json
// @Param request body dto.SetPriceOverrideRequest true "Override definition"
// @Success 200 {object} dto.APIResponse{data=dto.SetPriceOverrideResponse} "Override saved successfully"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 404 {object} dto.APIResponse "Customer or product not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/price-overrides [post]
func (h *PricingHandler) SetPriceOverride(c fiber.Ctx) error {
	var req dto.SetPriceOverrideRequest
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

	if _, ok := middleware.GetAdminIDFromContext(c); !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Admin ID not found in context", "MISSING_ADMIN_ID", nil)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.pricingFlow.SetPriceOverride(h.createRequestContext(c, "/api/v1/admin/price-overrides"), &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Price override save failed", "PRICE_OVERRIDE_SAVE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Price override saved successfully", result)
}

func (h *PricingHandler) flowError(c fiber.Ctx, err error, fallbackMessage, fallbackCode string) error {
	var bizErr *businessflow.BusinessError
	if errors.As(err, &bizErr) {
		return h.ErrorResponse(c, statusForCode(bizErr.Code), bizErr.Message, bizErr.Code, nil)
	}
	log.Println(fallbackMessage+":", err)
	return h.ErrorResponse(c, fiber.StatusInternalServerError, fallbackMessage, fallbackCode, nil)
}

func (h *PricingHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

func (h *PricingHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
