package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/trungvq/vatlieu-marketplace/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CustomerPriceOverrideRepositoryImpl implements CustomerPriceOverrideRepository interface
type CustomerPriceOverrideRepositoryImpl struct {
	*BaseRepository[models.CustomerPriceOverride, models.CustomerPriceOverrideFilter]
}

// NewCustomerPriceOverrideRepository creates a new customer price override repository
func NewCustomerPriceOverrideRepository(db *gorm.DB) CustomerPriceOverrideRepository {
	return &CustomerPriceOverrideRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CustomerPriceOverride, models.CustomerPriceOverrideFilter](db),
	}
}

// ActiveForCustomerProduct returns the override in effect for a customer and
// product at the given instant, or nil when none applies.
func (r *CustomerPriceOverrideRepositoryImpl) ActiveForCustomerProduct(ctx context.Context, customerID, productID uint, at time.Time) (*models.CustomerPriceOverride, error) {
	db := r.getDB(ctx)

	var override models.CustomerPriceOverride
	err := db.Where("customer_id = ? AND product_id = ?", customerID, productID).
		Where("is_active = ?", true).
		Where("(valid_from IS NULL OR valid_from <= ?)", at).
		Where("(valid_to IS NULL OR valid_to >= ?)", at).
		Order("id DESC").
		First(&override).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find price override for customer %d product %d: %w", customerID, productID, err)
	}

	return &override, nil
}

// Upsert inserts the override or updates the existing (customer, product) row
func (r *CustomerPriceOverrideRepositoryImpl) Upsert(ctx context.Context, override *models.CustomerPriceOverride) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "customer_id"}, {Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"unit_price", "is_active", "valid_from", "valid_to", "updated_at",
		}),
	}).Create(override).Error
	if err != nil {
		return fmt.Errorf("failed to upsert price override: %w", err)
	}

	return nil
}

// applyFilter applies filter conditions to the GORM query
func (r *CustomerPriceOverrideRepositoryImpl) applyFilter(query *gorm.DB, filter models.CustomerPriceOverrideFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	return query
}

// ByFilter retrieves price overrides based on filter criteria
func (r *CustomerPriceOverrideRepositoryImpl) ByFilter(ctx context.Context, filter models.CustomerPriceOverrideFilter, orderBy string, limit, offset int) ([]*models.CustomerPriceOverride, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.CustomerPriceOverride{})

	query = r.applyFilter(query, filter)

	if orderBy == "" {
		orderBy = "id DESC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var overrides []*models.CustomerPriceOverride
	if err := query.Find(&overrides).Error; err != nil {
		return nil, err
	}
	return overrides, nil
}

// Count returns the number of price overrides matching the filter
func (r *CustomerPriceOverrideRepositoryImpl) Count(ctx context.Context, filter models.CustomerPriceOverrideFilter) (int64, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.CustomerPriceOverride{})
	query = r.applyFilter(query, filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any price override matching the filter exists
func (r *CustomerPriceOverrideRepositoryImpl) Exists(ctx context.Context, filter models.CustomerPriceOverrideFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
