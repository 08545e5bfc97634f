package repository

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/trungvq/vatlieu-marketplace/models"
	"github.com/trungvq/vatlieu-marketplace/utils"
	"gorm.io/gorm"
)

// MilestoneRepositoryImpl implements MilestoneRepository interface
type MilestoneRepositoryImpl struct {
	*BaseRepository[models.Milestone, models.MilestoneFilter]
}

// NewMilestoneRepository creates a new milestone repository
func NewMilestoneRepository(db *gorm.DB) MilestoneRepository {
	return &MilestoneRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Milestone, models.MilestoneFilter](db),
	}
}

// ByUUID retrieves a milestone by UUID
func (r *MilestoneRepositoryImpl) ByUUID(ctx context.Context, uuidStr string) (*models.Milestone, error) {
	parsed, err := utils.ParseUUID(uuidStr)
	if err != nil {
		return nil, err
	}

	filter := models.MilestoneFilter{UUID: &parsed}
	milestones, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find milestone by uuid: %w", err)
	}

	if len(milestones) == 0 {
		return nil, nil
	}

	return milestones[0], nil
}

// ListByQuote retrieves all milestones of a quote ordered by sequence
func (r *MilestoneRepositoryImpl) ListByQuote(ctx context.Context, quoteID uint) ([]*models.Milestone, error) {
	db := r.getDB(ctx)

	var milestones []*models.Milestone
	err := db.Where("quote_id = ?", quoteID).
		Order("sequence ASC").
		Find(&milestones).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones by quote: %w", err)
	}

	return milestones, nil
}

// UpdateStatusIf is the single mutation point for milestone status. The
// UPDATE is guarded by the expected status so concurrent transitions race on
// the row: exactly one writer sees RowsAffected == 1, every other sees 0.
func (r *MilestoneRepositoryImpl) UpdateStatusIf(ctx context.Context, milestoneID uint, expected, next models.MilestoneStatus, changes map[string]any) (bool, error) {
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

	updates := map[string]any{
		"status":     next,
		"updated_at": utils.UTCNow(),
	}
	for k, v := range changes {
		updates[k] = v
	}

	result := db.Model(&models.Milestone{}).
		Where("id = ? AND status = ?", milestoneID, expected).
		Updates(updates)
	if result.Error != nil {
		err = fmt.Errorf("failed to update milestone status: %w", result.Error)
		return false, err
	}

	return result.RowsAffected > 0, nil
}

// SumAmountByStatus totals milestone amounts of a quote in the given status
func (r *MilestoneRepositoryImpl) SumAmountByStatus(ctx context.Context, quoteID uint, status models.MilestoneStatus) (decimal.Decimal, error) {
	db := r.getDB(ctx)

	var sum decimal.NullDecimal
	err := db.Model(&models.Milestone{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("quote_id = ? AND status = ?", quoteID, status).
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum milestone amounts: %w", err)
	}

	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *MilestoneRepositoryImpl) applyFilter(query *gorm.DB, filter models.MilestoneFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.QuoteID != nil {
		query = query.Where("quote_id = ?", *filter.QuoteID)
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

// ByFilter retrieves milestones based on filter criteria
func (r *MilestoneRepositoryImpl) ByFilter(ctx context.Context, filter models.MilestoneFilter, orderBy string, limit, offset int) ([]*models.Milestone, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Milestone{})

	query = r.applyFilter(query, filter)

	if orderBy == "" {
		orderBy = "sequence ASC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var milestones []*models.Milestone
	if err := query.Find(&milestones).Error; err != nil {
		return nil, err
	}
	return milestones, nil
}

// Count returns the number of milestones matching the filter
func (r *MilestoneRepositoryImpl) Count(ctx context.Context, filter models.MilestoneFilter) (int64, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Milestone{})
	query = r.applyFilter(query, filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any milestone matching the filter exists
func (r *MilestoneRepositoryImpl) Exists(ctx context.Context, filter models.MilestoneFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
