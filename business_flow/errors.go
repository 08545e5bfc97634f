// Package businessflow contains the core business logic for pricing and settlement workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Error kind codes carried on BusinessError.Code. Handlers map these to
// HTTP statuses.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeValidation       = "VALIDATION_ERROR"
	CodeForbidden        = "FORBIDDEN"
	CodeInvalidOperation = "INVALID_OPERATION"
	CodeConflict         = "CONFLICT"
	CodeInternal         = "INTERNAL_ERROR"
)

// Business flow error constants
var (
	// Customer-related errors
	ErrCustomerNotFound = errors.New("customer not found")
	ErrAccountInactive  = errors.New("account is inactive")

	// Pricing-related errors
	ErrProductNotFound      = errors.New("product not found")
	ErrProductInactive      = errors.New("product is inactive")
	ErrInvalidQuantity      = errors.New("quantity must be greater than zero")
	ErrCartEmpty            = errors.New("cart must contain at least one item")
	ErrCartTooLarge         = errors.New("cart exceeds the maximum number of items")
	ErrPriceListNotFound    = errors.New("price list not found")
	ErrTierConfigInvalid    = errors.New("tier configuration is invalid")
	ErrUnitPriceInvalid     = errors.New("unit price is invalid")
	ErrPriceOverrideInvalid = errors.New("price override is invalid")

	// Quote-related errors
	ErrQuoteNotFound         = errors.New("quote not found")
	ErrQuoteAccessDenied     = errors.New("quote access denied")
	ErrQuoteNotAcceptable    = errors.New("quote cannot be accepted in its current status")
	ErrScheduleEmpty         = errors.New("payment schedule must contain at least one milestone")
	ErrScheduleTooLong       = errors.New("payment schedule has too many milestones")
	ErrScheduleAmountInvalid = errors.New("milestone amount must be greater than zero")

	// Milestone-related errors
	ErrMilestoneNotFound      = errors.New("milestone not found")
	ErrMilestoneAccessDenied  = errors.New("milestone access denied")
	ErrMilestoneNotPayable    = errors.New("milestone is not payable in its current status")
	ErrMilestoneNotHeld       = errors.New("milestone funds are not held in escrow")
	ErrMilestoneStateChanged  = errors.New("milestone was modified concurrently")
	ErrOnlyBuyerMayPay        = errors.New("only the buyer may fund a milestone")
	ErrOnlyBuyerMayRelease    = errors.New("only the buyer may release a milestone")
	ErrOnlyBuyerMayRefund     = errors.New("only the buyer may cancel a held milestone")
	ErrAdminRequired          = errors.New("operation requires an administrator")
	ErrAdminNotFound          = errors.New("administrator not found or inactive")

	// Dispute-related errors
	ErrDisputeNotFound        = errors.New("dispute not found")
	ErrDisputeAccessDenied    = errors.New("dispute access denied")
	ErrDisputeAlreadyOpen     = errors.New("milestone already has an unresolved dispute")
	ErrDisputeNotOpen         = errors.New("dispute is not open for this operation")
	ErrDisputeWindowClosed    = errors.New("dispute window for the released milestone has closed")
	ErrDisputeOutcomeInvalid  = errors.New("dispute outcome is invalid")
	ErrDisputeResolvedAlready = errors.New("dispute has already been resolved")

	// Filter errors
	ErrInvalidPage           = errors.New("page must be at least 1")
	ErrInvalidPageSize       = errors.New("page size must be between 1 and 100")
	ErrStartDateAfterEndDate = errors.New("start date cannot be after end date")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

// ErrorCode extracts the kind code from an error chain, defaulting to
// INTERNAL_ERROR for unclassified failures.
func ErrorCode(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return CodeInternal
}

func IsCustomerNotFound(err error) bool {
	return errors.Is(err, ErrCustomerNotFound)
}

func IsAccountInactive(err error) bool {
	return errors.Is(err, ErrAccountInactive)
}

func IsProductNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound)
}

func IsInvalidQuantity(err error) bool {
	return errors.Is(err, ErrInvalidQuantity)
}

func IsQuoteNotFound(err error) bool {
	return errors.Is(err, ErrQuoteNotFound)
}

func IsQuoteAccessDenied(err error) bool {
	return errors.Is(err, ErrQuoteAccessDenied)
}

func IsMilestoneNotFound(err error) bool {
	return errors.Is(err, ErrMilestoneNotFound)
}

func IsMilestoneStateChanged(err error) bool {
	return errors.Is(err, ErrMilestoneStateChanged)
}

func IsDisputeAlreadyOpen(err error) bool {
	return errors.Is(err, ErrDisputeAlreadyOpen)
}

func IsDisputeWindowClosed(err error) bool {
	return errors.Is(err, ErrDisputeWindowClosed)
}
