// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trungvq/vatlieu-marketplace/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// CustomerRepository defines operations for customers
type CustomerRepository interface {
	Repository[models.Customer, models.CustomerFilter]
	ByEmail(ctx context.Context, email string) (*models.Customer, error)
	ByMobile(ctx context.Context, mobile string) (*models.Customer, error)
	ByUUID(ctx context.Context, uuid string) (*models.Customer, error)
	ListActiveCustomers(ctx context.Context, limit, offset int) ([]*models.Customer, error)
}

// ProductRepository defines operations for catalog products
type ProductRepository interface {
	Repository[models.Product, models.ProductFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Product, error)
	BySKU(ctx context.Context, sku string) (*models.Product, error)
	ListActive(ctx context.Context, limit, offset int) ([]*models.Product, error)
}

// PriceListRepository defines operations for segment price lists and their tiers
type PriceListRepository interface {
	Repository[models.PriceList, models.PriceListFilter]
	ByCode(ctx context.Context, code string) (*models.PriceList, error)
	// ListActiveForSegment returns price lists applicable to the segment at
	// the given instant, tiers preloaded, highest priority first.
	ListActiveForSegment(ctx context.Context, segment string, at time.Time) ([]*models.PriceList, error)
	ReplaceTiers(ctx context.Context, priceListID uint, tiers []models.PriceTier) error
}

// CustomerPriceOverrideRepository defines operations for per-customer contract prices
type CustomerPriceOverrideRepository interface {
	Repository[models.CustomerPriceOverride, models.CustomerPriceOverrideFilter]
	ActiveForCustomerProduct(ctx context.Context, customerID, productID uint, at time.Time) (*models.CustomerPriceOverride, error)
	Upsert(ctx context.Context, override *models.CustomerPriceOverride) error
}

// QuoteRepository defines operations for project quotes
type QuoteRepository interface {
	Repository[models.Quote, models.QuoteFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Quote, error)
	// ByUUIDWithMilestones loads a quote and its full payment schedule
	// ordered by milestone sequence.
	ByUUIDWithMilestones(ctx context.Context, uuid string) (*models.Quote, error)
	ListByParty(ctx context.Context, customerID uint, limit, offset int) ([]*models.Quote, error)
	UpdateStatusIf(ctx context.Context, quoteID uint, expected, next models.QuoteStatus, acceptedAt *time.Time) (bool, error)
}

// MilestoneRepository defines operations for payment milestones
type MilestoneRepository interface {
	Repository[models.Milestone, models.MilestoneFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Milestone, error)
	ListByQuote(ctx context.Context, quoteID uint) ([]*models.Milestone, error)
	// UpdateStatusIf performs a compare-and-set on milestone status. It
	// reports whether the row was updated; false means the milestone was
	// not in the expected status.
	UpdateStatusIf(ctx context.Context, milestoneID uint, expected, next models.MilestoneStatus, changes map[string]any) (bool, error)
	SumAmountByStatus(ctx context.Context, quoteID uint, status models.MilestoneStatus) (decimal.Decimal, error)
}

// DisputeRepository defines operations for milestone disputes
type DisputeRepository interface {
	Repository[models.Dispute, models.DisputeFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Dispute, error)
	ByUUIDWithThread(ctx context.Context, uuid string) (*models.Dispute, error)
	ExistsUnresolvedForMilestone(ctx context.Context, milestoneID uint) (bool, error)
	ListByQuote(ctx context.Context, quoteID uint, limit, offset int) ([]*models.Dispute, error)
	AddComment(ctx context.Context, comment *models.DisputeComment) error
	AddEvidence(ctx context.Context, evidence *models.DisputeEvidence) error
	UpdateStatusIf(ctx context.Context, disputeID uint, expected []models.DisputeStatus, next models.DisputeStatus, changes map[string]any) (bool, error)
}

// AdminRepository defines operations for back-office admins
type AdminRepository interface {
	Repository[models.Admin, models.AdminFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Admin, error)
	ByUsername(ctx context.Context, username string) (*models.Admin, error)
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListByCustomer(ctx context.Context, customerID uint, limit, offset int) ([]*models.AuditLog, error)
	ListByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error)
	ListFailedActions(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)
	ListSettlementEvents(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)
}
