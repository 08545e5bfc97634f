package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product represents a catalog item. BasePrice is the listed unit price that
// every price list discount is computed against. A product referenced by a
// price tier is treated as immutable; repricing happens through price lists.
type Product struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_products_uuid" json:"uuid"`
	SKU  string    `gorm:"size:64;not null;uniqueIndex:uk_products_sku" json:"sku"`

	Name     string          `gorm:"size:255;not null" json:"name"`
	Unit     string          `gorm:"size:20;not null" json:"unit"` // bao, m3, vien, kg, ...
	Category *string         `gorm:"size:100;index:idx_products_category" json:"category,omitempty"`

	BasePrice decimal.Decimal  `gorm:"type:numeric(15,2);not null" json:"base_price"` // VND per unit
	CostPrice *decimal.Decimal `gorm:"type:numeric(15,2)" json:"cost_price,omitempty"`

	IsActive *bool `gorm:"default:true;index:idx_products_is_active" json:"is_active"`

	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Product) TableName() string {
	return "products"
}

// BeforeCreate ensures UUID is set
func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.UUID == uuid.Nil {
		p.UUID = uuid.New()
	}
	return nil
}

// ProductFilter represents filter criteria for product queries
type ProductFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	SKU           *string
	Name          *string
	Category      *string
	IsActive      *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
