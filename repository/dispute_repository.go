package repository

import (
	"context"
	"fmt"

	"github.com/trungvq/vatlieu-marketplace/models"
	"github.com/trungvq/vatlieu-marketplace/utils"
	"gorm.io/gorm"
)

// DisputeRepositoryImpl implements DisputeRepository interface
type DisputeRepositoryImpl struct {
	*BaseRepository[models.Dispute, models.DisputeFilter]
}

// NewDisputeRepository creates a new dispute repository
func NewDisputeRepository(db *gorm.DB) DisputeRepository {
	return &DisputeRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Dispute, models.DisputeFilter](db),
	}
}

// ByUUID retrieves a dispute by UUID
func (r *DisputeRepositoryImpl) ByUUID(ctx context.Context, uuidStr string) (*models.Dispute, error) {
	parsed, err := utils.ParseUUID(uuidStr)
	if err != nil {
		return nil, err
	}

	filter := models.DisputeFilter{UUID: &parsed}
	disputes, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find dispute by uuid: %w", err)
	}

	if len(disputes) == 0 {
		return nil, nil
	}

	return disputes[0], nil
}

// ByUUIDWithThread loads a dispute together with its comments and evidence
// in chronological order.
func (r *DisputeRepositoryImpl) ByUUIDWithThread(ctx context.Context, uuidStr string) (*models.Dispute, error) {
	parsed, err := utils.ParseUUID(uuidStr)
	if err != nil {
		return nil, err
	}

	db := r.getDB(ctx)

	var dispute models.Dispute
	err = db.Where("uuid = ?", parsed).
		Preload("Comments", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Preload("Evidence", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		First(&dispute).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find dispute with thread: %w", err)
	}

	return &dispute, nil
}

// ExistsUnresolvedForMilestone checks whether the milestone already has a
// dispute that has not reached RESOLVED.
func (r *DisputeRepositoryImpl) ExistsUnresolvedForMilestone(ctx context.Context, milestoneID uint) (bool, error) {
	db := r.getDB(ctx)

	var count int64
	err := db.Model(&models.Dispute{}).
		Where("milestone_id = ? AND status <> ?", milestoneID, models.DisputeStatusResolved).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check open disputes for milestone %d: %w", milestoneID, err)
	}

	return count > 0, nil
}

// ListByQuote retrieves disputes raised against milestones of a quote
func (r *DisputeRepositoryImpl) ListByQuote(ctx context.Context, quoteID uint, limit, offset int) ([]*models.Dispute, error) {
	db := r.getDB(ctx)

	var disputes []*models.Dispute
	query := db.Where("quote_id = ?", quoteID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&disputes).Error; err != nil {
		return nil, fmt.Errorf("failed to list disputes by quote: %w", err)
	}

	return disputes, nil
}

// AddComment appends a comment to the dispute thread. Comments are never
// updated or deleted.
func (r *DisputeRepositoryImpl) AddComment(ctx context.Context, comment *models.DisputeComment) error {
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

	if err = db.Create(comment).Error; err != nil {
		return fmt.Errorf("failed to add dispute comment: %w", err)
	}

	return nil
}

// AddEvidence appends an evidence record to the dispute
func (r *DisputeRepositoryImpl) AddEvidence(ctx context.Context, evidence *models.DisputeEvidence) error {
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

	if err = db.Create(evidence).Error; err != nil {
		return fmt.Errorf("failed to add dispute evidence: %w", err)
	}

	return nil
}

// UpdateStatusIf moves a dispute to the next status only when it is in one
// of the expected statuses. It reports whether the row was updated.
func (r *DisputeRepositoryImpl) UpdateStatusIf(ctx context.Context, disputeID uint, expected []models.DisputeStatus, next models.DisputeStatus, changes map[string]any) (bool, error) {
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

	result := db.Model(&models.Dispute{}).
		Where("id = ? AND status IN ?", disputeID, expected).
		Updates(updates)
	if result.Error != nil {
		err = fmt.Errorf("failed to update dispute status: %w", result.Error)
		return false, err
	}

	return result.RowsAffected > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *DisputeRepositoryImpl) applyFilter(query *gorm.DB, filter models.DisputeFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.MilestoneID != nil {
		query = query.Where("milestone_id = ?", *filter.MilestoneID)
	}
	if filter.QuoteID != nil {
		query = query.Where("quote_id = ?", *filter.QuoteID)
	}
	if filter.OpenerID != nil {
		query = query.Where("opener_id = ?", *filter.OpenerID)
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

// ByFilter retrieves disputes based on filter criteria
func (r *DisputeRepositoryImpl) ByFilter(ctx context.Context, filter models.DisputeFilter, orderBy string, limit, offset int) ([]*models.Dispute, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Dispute{})

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

	var disputes []*models.Dispute
	if err := query.Find(&disputes).Error; err != nil {
		return nil, err
	}
	return disputes, nil
}

// Count returns the number of disputes matching the filter
func (r *DisputeRepositoryImpl) Count(ctx context.Context, filter models.DisputeFilter) (int64, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Dispute{})
	query = r.applyFilter(query, filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any dispute matching the filter exists
func (r *DisputeRepositoryImpl) Exists(ctx context.Context, filter models.DisputeFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
