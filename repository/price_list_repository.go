package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/trungvq/vatlieu-marketplace/models"
	"gorm.io/gorm"
)

// PriceListRepositoryImpl implements PriceListRepository interface
type PriceListRepositoryImpl struct {
	*BaseRepository[models.PriceList, models.PriceListFilter]
}

// NewPriceListRepository creates a new price list repository
func NewPriceListRepository(db *gorm.DB) PriceListRepository {
	return &PriceListRepositoryImpl{
		BaseRepository: NewBaseRepository[models.PriceList, models.PriceListFilter](db),
	}
}

// ByCode retrieves a price list by its unique code, tiers preloaded
func (r *PriceListRepositoryImpl) ByCode(ctx context.Context, code string) (*models.PriceList, error) {
	db := r.getDB(ctx)

	var pl models.PriceList
	err := db.Where("code = ?", code).
		Preload("Tiers", func(db *gorm.DB) *gorm.DB {
			return db.Order("min_quantity ASC")
		}).
		First(&pl).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find price list by code: %w", err)
	}

	return &pl, nil
}

// ListActiveForSegment returns price lists applicable to the segment at the
// given instant, tiers preloaded in ascending min_quantity order.
//
// Ordering is the resolution order: priority DESC, then created_at DESC and
// id DESC so ties resolve deterministically to the newest list.
func (r *PriceListRepositoryImpl) ListActiveForSegment(ctx context.Context, segment string, at time.Time) ([]*models.PriceList, error) {
	db := r.getDB(ctx)

	var lists []*models.PriceList
	err := db.Where("is_active = ?", true).
		Where("? = ANY(customer_types)", segment).
		Where("(valid_from IS NULL OR valid_from <= ?)", at).
		Where("(valid_to IS NULL OR valid_to >= ?)", at).
		Order("priority DESC, created_at DESC, id DESC").
		Preload("Tiers", func(db *gorm.DB) *gorm.DB {
			return db.Order("min_quantity ASC")
		}).
		Find(&lists).Error

	if err != nil {
		return nil, fmt.Errorf("failed to list active price lists for segment %s: %w", segment, err)
	}

	return lists, nil
}

// ReplaceTiers swaps out the full tier set of a price list
func (r *PriceListRepositoryImpl) ReplaceTiers(ctx context.Context, priceListID uint, tiers []models.PriceTier) error {
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

	err = db.Where("price_list_id = ?", priceListID).Delete(&models.PriceTier{}).Error
	if err != nil {
		return fmt.Errorf("failed to clear tiers for price list %d: %w", priceListID, err)
	}

	for i := range tiers {
		tiers[i].ID = 0
		tiers[i].PriceListID = priceListID
	}
	if len(tiers) > 0 {
		if err = db.Create(&tiers).Error; err != nil {
			return fmt.Errorf("failed to insert tiers for price list %d: %w", priceListID, err)
		}
	}

	return nil
}

// applyFilter applies filter conditions to the GORM query
func (r *PriceListRepositoryImpl) applyFilter(query *gorm.DB, filter models.PriceListFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.Code != nil {
		query = query.Where("code = ?", *filter.Code)
	}
	if filter.CustomerType != nil {
		query = query.Where("? = ANY(customer_types)", *filter.CustomerType)
	}
	if filter.Priority != nil {
		query = query.Where("priority = ?", *filter.Priority)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.EffectiveAt != nil {
		query = query.Where("(valid_from IS NULL OR valid_from <= ?)", *filter.EffectiveAt).
			Where("(valid_to IS NULL OR valid_to >= ?)", *filter.EffectiveAt)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}

// ByFilter retrieves price lists based on filter criteria
func (r *PriceListRepositoryImpl) ByFilter(ctx context.Context, filter models.PriceListFilter, orderBy string, limit, offset int) ([]*models.PriceList, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.PriceList{})

	query = r.applyFilter(query, filter)

	if orderBy == "" {
		orderBy = "priority DESC, created_at DESC, id DESC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var lists []*models.PriceList
	if err := query.Preload("Tiers", func(db *gorm.DB) *gorm.DB {
		return db.Order("min_quantity ASC")
	}).Find(&lists).Error; err != nil {
		return nil, err
	}
	return lists, nil
}

// Count returns the number of price lists matching the filter
func (r *PriceListRepositoryImpl) Count(ctx context.Context, filter models.PriceListFilter) (int64, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.PriceList{})
	query = r.applyFilter(query, filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any price list matching the filter exists
func (r *PriceListRepositoryImpl) Exists(ctx context.Context, filter models.PriceListFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
