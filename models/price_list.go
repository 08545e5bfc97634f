package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PriceList is a named, prioritized set of quantity-break discount rules
// applicable to one or more customer segments within a date range. When
// several lists match a request, the highest priority wins; equal priorities
// are broken by most recent creation, then highest id, so resolution is
// deterministic.
type PriceList struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_price_lists_uuid" json:"uuid"`
	Code string    `gorm:"size:64;not null;uniqueIndex:uk_price_lists_code" json:"code"`

	Name        string  `gorm:"size:255;not null" json:"name"`
	Description *string `gorm:"type:text" json:"description,omitempty"`

	// Customer segments this list applies to (REGULAR, VIP, WHOLESALE, CONTRACTOR)
	CustomerTypes pq.StringArray `gorm:"type:text[];not null" json:"customer_types"`

	Priority int   `gorm:"not null;default:0;index:idx_price_lists_priority" json:"priority"`
	IsActive *bool `gorm:"default:true;index:idx_price_lists_is_active" json:"is_active"`

	ValidFrom *time.Time `json:"valid_from,omitempty"`
	ValidTo   *time.Time `json:"valid_to,omitempty"`

	Tiers []PriceTier `gorm:"foreignKey:PriceListID" json:"tiers,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_price_lists_created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (PriceList) TableName() string {
	return "price_lists"
}

// BeforeCreate ensures UUID is set
func (pl *PriceList) BeforeCreate(tx *gorm.DB) error {
	if pl.UUID == uuid.Nil {
		pl.UUID = uuid.New()
	}
	return nil
}

// AppliesToSegment reports whether the list covers the given customer segment.
func (pl *PriceList) AppliesToSegment(segment string) bool {
	for _, t := range pl.CustomerTypes {
		if t == segment {
			return true
		}
	}
	return false
}

// IsEffectiveAt reports whether the list is active and its date range covers t.
// A nil bound is open-ended.
func (pl *PriceList) IsEffectiveAt(t time.Time) bool {
	if pl.IsActive == nil || !*pl.IsActive {
		return false
	}
	if pl.ValidFrom != nil && t.Before(*pl.ValidFrom) {
		return false
	}
	if pl.ValidTo != nil && t.After(*pl.ValidTo) {
		return false
	}
	return true
}

// TierFor returns the tier with the greatest MinQuantity that is <= quantity,
// or nil when no tier applies. Tiers are kept ordered ascending by MinQuantity.
func (pl *PriceList) TierFor(quantity float64) *PriceTier {
	var match *PriceTier
	for i := range pl.Tiers {
		if pl.Tiers[i].MinQuantity <= quantity {
			match = &pl.Tiers[i]
		} else {
			break
		}
	}
	return match
}

// NextTierAbove returns the tier with the smallest MinQuantity strictly greater
// than quantity, or nil when the quantity is already in the top tier.
func (pl *PriceList) NextTierAbove(quantity float64) *PriceTier {
	for i := range pl.Tiers {
		if pl.Tiers[i].MinQuantity > quantity {
			return &pl.Tiers[i]
		}
	}
	return nil
}

// ValidateTiers enforces the structural invariants of the tier ladder:
// at least one tier, MinQuantity strictly increasing, and exactly one of
// DiscountPercent / FixedUnitPrice set per tier.
func (pl *PriceList) ValidateTiers() error {
	if len(pl.Tiers) == 0 {
		return fmt.Errorf("price list %s has no tiers", pl.Code)
	}
	prev := -1.0
	for i, tier := range pl.Tiers {
		if tier.MinQuantity < 0 {
			return fmt.Errorf("tier %d: min quantity must not be negative", i)
		}
		if tier.MinQuantity <= prev {
			return fmt.Errorf("tier %d: min quantity %v not strictly increasing", i, tier.MinQuantity)
		}
		prev = tier.MinQuantity
		hasDiscount := tier.DiscountPercent != nil
		hasFixed := tier.FixedUnitPrice != nil
		if hasDiscount == hasFixed {
			return fmt.Errorf("tier %d: exactly one of discount percent or fixed unit price must be set", i)
		}
		if hasDiscount && (*tier.DiscountPercent < 0 || *tier.DiscountPercent > 100) {
			return fmt.Errorf("tier %d: discount percent %v out of range", i, *tier.DiscountPercent)
		}
		if hasFixed && tier.FixedUnitPrice.IsNegative() {
			return fmt.Errorf("tier %d: fixed unit price must not be negative", i)
		}
	}
	return nil
}

// PriceTier is a quantity breakpoint within a price list. Exactly one of
// DiscountPercent (applied against the product base price) or FixedUnitPrice
// (absolute override) is set.
type PriceTier struct {
	ID          uint `gorm:"primaryKey" json:"id"`
	PriceListID uint `gorm:"not null;index:idx_price_tiers_price_list_id" json:"price_list_id"`

	MinQuantity     float64          `gorm:"not null" json:"min_quantity"`
	DiscountPercent *float64         `json:"discount_percent,omitempty"`
	FixedUnitPrice  *decimal.Decimal `gorm:"type:numeric(15,2)" json:"fixed_unit_price,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (PriceTier) TableName() string {
	return "price_tiers"
}

// UnitPrice computes the effective unit price this tier yields for basePrice.
func (t *PriceTier) UnitPrice(basePrice decimal.Decimal) decimal.Decimal {
	if t.FixedUnitPrice != nil {
		return *t.FixedUnitPrice
	}
	if t.DiscountPercent != nil {
		factor := decimal.NewFromFloat(1).Sub(decimal.NewFromFloat(*t.DiscountPercent).Div(decimal.NewFromInt(100)))
		return basePrice.Mul(factor).Round(2)
	}
	return basePrice
}

// PriceListFilter represents filter criteria for price list queries
type PriceListFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	Code          *string
	CustomerType  *string
	Priority      *int
	IsActive      *bool
	EffectiveAt   *time.Time
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
