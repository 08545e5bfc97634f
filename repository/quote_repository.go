package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/trungvq/vatlieu-marketplace/models"
	"github.com/trungvq/vatlieu-marketplace/utils"
	"gorm.io/gorm"
)

// QuoteRepositoryImpl implements QuoteRepository interface
type QuoteRepositoryImpl struct {
	*BaseRepository[models.Quote, models.QuoteFilter]
}

// NewQuoteRepository creates a new quote repository
func NewQuoteRepository(db *gorm.DB) QuoteRepository {
	return &QuoteRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Quote, models.QuoteFilter](db),
	}
}

// ByUUID retrieves a quote by UUID
func (r *QuoteRepositoryImpl) ByUUID(ctx context.Context, uuidStr string) (*models.Quote, error) {
	parsed, err := utils.ParseUUID(uuidStr)
	if err != nil {
		return nil, err
	}

	filter := models.QuoteFilter{UUID: &parsed}
	quotes, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find quote by uuid: %w", err)
	}

	if len(quotes) == 0 {
		return nil, nil
	}

	return quotes[0], nil
}

// ByUUIDWithMilestones loads a quote and its payment schedule ordered by sequence
func (r *QuoteRepositoryImpl) ByUUIDWithMilestones(ctx context.Context, uuidStr string) (*models.Quote, error) {
	parsed, err := utils.ParseUUID(uuidStr)
	if err != nil {
		return nil, err
	}

	db := r.getDB(ctx)

	var quote models.Quote
	err = db.Where("uuid = ?", parsed).
		Preload("Milestones", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		First(&quote).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find quote with milestones: %w", err)
	}

	return &quote, nil
}

// ListByParty retrieves quotes where the customer is buyer or contractor
func (r *QuoteRepositoryImpl) ListByParty(ctx context.Context, customerID uint, limit, offset int) ([]*models.Quote, error) {
	db := r.getDB(ctx)

	var quotes []*models.Quote
	query := db.Where("customer_id = ? OR contractor_id = ?", customerID, customerID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&quotes).Error; err != nil {
		return nil, fmt.Errorf("failed to list quotes by party: %w", err)
	}

	return quotes, nil
}

// UpdateStatusIf performs a compare-and-set on quote status. It reports
// whether the row was updated.
func (r *QuoteRepositoryImpl) UpdateStatusIf(ctx context.Context, quoteID uint, expected, next models.QuoteStatus, acceptedAt *time.Time) (bool, error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return false, err
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

	changes := map[string]any{
		"status":     next,
		"updated_at": utils.UTCNow(),
	}
	if acceptedAt != nil {
		changes["accepted_at"] = *acceptedAt
	}

	result := db.Model(&models.Quote{}).
		Where("id = ? AND status = ?", quoteID, expected).
		Updates(changes)
	if result.Error != nil {
		err = fmt.Errorf("failed to update quote status: %w", result.Error)
		return false, err
	}

	return result.RowsAffected > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *QuoteRepositoryImpl) applyFilter(query *gorm.DB, filter models.QuoteFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.ContractorID != nil {
		query = query.Where("contractor_id = ?", *filter.ContractorID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}

// ByFilter retrieves quotes based on filter criteria
func (r *QuoteRepositoryImpl) ByFilter(ctx context.Context, filter models.QuoteFilter, orderBy string, limit, offset int) ([]*models.Quote, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Quote{})

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

	var quotes []*models.Quote
	if err := query.Find(&quotes).Error; err != nil {
		return nil, err
	}
	return quotes, nil
}

// Count returns the number of quotes matching the filter
func (r *QuoteRepositoryImpl) Count(ctx context.Context, filter models.QuoteFilter) (int64, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Quote{})
	query = r.applyFilter(query, filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any quote matching the filter exists
func (r *QuoteRepositoryImpl) Exists(ctx context.Context, filter models.QuoteFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
