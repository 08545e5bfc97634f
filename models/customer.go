// Package models contains domain entities and business models for the marketplace
package models

import (
	"time"

	"github.com/google/uuid"
)

// Customer types map one-to-one onto pricing segments. A contractor is a
// customer too; the flag only unlocks the contractor portal surface.
const (
	CustomerTypeRegular    = "REGULAR"
	CustomerTypeVIP        = "VIP"
	CustomerTypeWholesale  = "WHOLESALE"
	CustomerTypeContractor = "CONTRACTOR"
)

// ValidCustomerTypes lists every accepted customer type value.
var ValidCustomerTypes = []string{
	CustomerTypeRegular,
	CustomerTypeVIP,
	CustomerTypeWholesale,
	CustomerTypeContractor,
}

// IsValidCustomerType reports whether the value is an accepted customer type.
func IsValidCustomerType(t string) bool {
	for _, v := range ValidCustomerTypes {
		if t == v {
			return true
		}
	}
	return false
}

type Customer struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_customers_uuid;index:idx_customers_uuid" json:"uuid"`

	CustomerType string `gorm:"size:20;not null;default:'REGULAR';index:idx_customers_customer_type" json:"customer_type"`

	// Company fields (required for wholesale and contractor accounts)
	CompanyName    *string `gorm:"size:60" json:"company_name,omitempty"`
	TaxCode        *string `gorm:"size:14" json:"tax_code,omitempty"`
	CompanyPhone   *string `gorm:"size:20" json:"company_phone,omitempty"`
	CompanyAddress *string `gorm:"size:255" json:"company_address,omitempty"`

	FirstName string `gorm:"size:255;not null" json:"first_name"`
	LastName  string `gorm:"size:255;not null" json:"last_name"`
	Mobile    string `gorm:"size:15;not null;uniqueIndex:idx_customers_mobile" json:"mobile"`

	Email        string `gorm:"size:255;not null;uniqueIndex:idx_customers_email" json:"email"`
	PasswordHash string `gorm:"size:255;not null" json:"-"` // Never serialize password hash

	IsContractorVerified *bool `gorm:"default:false" json:"is_contractor_verified"`
	IsActive             *bool `gorm:"default:true;index:idx_customers_is_active" json:"is_active"`

	CreatedAt   time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_customers_created_at" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
	LastLoginAt *time.Time `gorm:"index:idx_customers_last_login_at" json:"last_login_at,omitempty"`

	// Relations
	AuditLogs      []AuditLog              `gorm:"foreignKey:CustomerID" json:"-"`
	PriceOverrides []CustomerPriceOverride `gorm:"foreignKey:CustomerID" json:"price_overrides,omitempty"`
}

func (Customer) TableName() string {
	return "customers"
}

// Segment returns the pricing segment this customer belongs to. Missing or
// unknown types fall back to the guest/regular segment rather than failing.
func (c *Customer) Segment() string {
	for _, t := range ValidCustomerTypes {
		if c.CustomerType == t {
			return c.CustomerType
		}
	}
	return CustomerTypeRegular
}

func (c *Customer) RequiresCompanyFields() bool {
	return c.CustomerType == CustomerTypeWholesale || c.CustomerType == CustomerTypeContractor
}

// CustomerFilter represents filter criteria for customer queries
type CustomerFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	CustomerType  *string
	Email         *string
	Mobile        *string
	CompanyName   *string
	TaxCode       *string
	IsActive      *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
