package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CustomerPriceOverride is a negotiated per-customer per-product unit price.
// When effective it wins over every price list regardless of quantity; tiers
// are never stacked on top of an override.
type CustomerPriceOverride struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_price_overrides_uuid" json:"uuid"`

	CustomerID uint `gorm:"not null;uniqueIndex:uk_price_overrides_customer_product;index:idx_price_overrides_customer_id" json:"customer_id"`
	ProductID  uint `gorm:"not null;uniqueIndex:uk_price_overrides_customer_product;index:idx_price_overrides_product_id" json:"product_id"`

	UnitPrice decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"unit_price"`
	Notes     *string         `gorm:"type:text" json:"notes,omitempty"`

	IsActive  *bool      `gorm:"default:true" json:"is_active"`
	ValidFrom *time.Time `json:"valid_from,omitempty"`
	ValidTo   *time.Time `json:"valid_to,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Customer Customer `gorm:"foreignKey:CustomerID;constraint:OnDelete:CASCADE" json:"customer,omitempty"`
	Product  Product  `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"product,omitempty"`
}

func (CustomerPriceOverride) TableName() string {
	return "customer_price_overrides"
}

// BeforeCreate ensures UUID is set
func (o *CustomerPriceOverride) BeforeCreate(tx *gorm.DB) error {
	if o.UUID == uuid.Nil {
		o.UUID = uuid.New()
	}
	return nil
}

// IsEffectiveAt reports whether the override is active and covers t.
func (o *CustomerPriceOverride) IsEffectiveAt(t time.Time) bool {
	if o.IsActive == nil || !*o.IsActive {
		return false
	}
	if o.ValidFrom != nil && t.Before(*o.ValidFrom) {
		return false
	}
	if o.ValidTo != nil && t.After(*o.ValidTo) {
		return false
	}
	return true
}

// CustomerPriceOverrideFilter represents filter criteria for override queries
type CustomerPriceOverrideFilter struct {
	ID         *uint
	UUID       *uuid.UUID
	CustomerID *uint
	ProductID  *uint
	IsActive   *bool
}
