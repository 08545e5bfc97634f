// Package testing provides test utilities and database setup for the settlement service
package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/trungvq/vatlieu-marketplace/models"
	"github.com/trungvq/vatlieu-marketplace/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestCustomer creates a test customer of the given segment
func (tf *TestFixtures) CreateTestCustomer(customerType string) (*models.Customer, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("TestPass123!"), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// random 9-digit local part for a unique Vietnamese mobile
	randomDigits := fmt.Sprintf("%09d", rand.Intn(900000000)+100000000)

	customer := &models.Customer{
		UUID:         uuid.New(),
		CustomerType: customerType,
		FirstName:    "Nguyen",
		LastName:     "Van A",
		Mobile:       fmt.Sprintf("+84%s", randomDigits),
		Email:        fmt.Sprintf("nguyen.van.a.%s@example.com", randomDigits),
		PasswordHash: string(hashedPassword),
		IsActive:     utils.ToPtr(true),
	}

	if customer.RequiresCompanyFields() {
		companyName := "Cong Ty TNHH Vat Lieu Xay Dung"
		taxCode := fmt.Sprintf("%010d", rand.Intn(9000000000)+1000000000)
		companyPhone := "02812345678"
		companyAddress := "123 Duong Le Loi, Quan 1, TP.HCM"

		customer.CompanyName = &companyName
		customer.TaxCode = &taxCode
		customer.CompanyPhone = &companyPhone
		customer.CompanyAddress = &companyAddress
	}
	if customer.CustomerType == models.CustomerTypeContractor {
		customer.IsContractorVerified = utils.ToPtr(true)
	}

	if err := tf.DB.DB.Create(customer).Error; err != nil {
		return nil, fmt.Errorf("failed to create test customer: %w", err)
	}

	return customer, nil
}

// CreateTestAdmin creates a test platform administrator
func (tf *TestFixtures) CreateTestAdmin() (*models.Admin, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("AdminPass123!"), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &models.Admin{
		UUID:         uuid.New(),
		Username:     fmt.Sprintf("admin_%d", rand.Intn(10000000)),
		PasswordHash: string(hashedPassword),
		IsActive:     utils.ToPtr(true),
	}

	if err := tf.DB.DB.Create(admin).Error; err != nil {
		return nil, fmt.Errorf("failed to create test admin: %w", err)
	}

	return admin, nil
}

// CreateTestProduct creates a catalog product with the given base price in VND
func (tf *TestFixtures) CreateTestProduct(basePrice int64) (*models.Product, error) {
	n := rand.Intn(10000000)
	category := "cement"

	product := &models.Product{
		SKU:       fmt.Sprintf("XM-PC40-%07d", n),
		Name:      fmt.Sprintf("Xi mang PC40 %07d", n),
		Unit:      "bao",
		Category:  &category,
		BasePrice: decimal.NewFromInt(basePrice),
		IsActive:  utils.ToPtr(true),
	}

	if err := tf.DB.DB.Create(product).Error; err != nil {
		return nil, fmt.Errorf("failed to create test product: %w", err)
	}

	return product, nil
}

// CreateTestPriceList creates an active price list covering the given
// segments, with a percentage-discount tier ladder keyed by min quantity.
func (tf *TestFixtures) CreateTestPriceList(customerTypes []string, priority int, tiers map[float64]float64) (*models.PriceList, error) {
	n := rand.Intn(10000000)

	list := &models.PriceList{
		Code:          fmt.Sprintf("PL-TEST-%07d", n),
		Name:          fmt.Sprintf("Test price list %07d", n),
		CustomerTypes: customerTypes,
		Priority:      priority,
		IsActive:      utils.ToPtr(true),
	}

	if err := tf.DB.DB.Create(list).Error; err != nil {
		return nil, fmt.Errorf("failed to create test price list: %w", err)
	}

	for minQty, discount := range tiers {
		tier := &models.PriceTier{
			PriceListID:     list.ID,
			MinQuantity:     minQty,
			DiscountPercent: utils.ToPtr(discount),
		}
		if err := tf.DB.DB.Create(tier).Error; err != nil {
			return nil, fmt.Errorf("failed to create test price tier: %w", err)
		}
	}

	// Reload with tiers ordered by min quantity
	if err := tf.DB.DB.Preload("Tiers", func(db *gorm.DB) *gorm.DB {
		return db.Order("min_quantity ASC")
	}).First(list, list.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload test price list: %w", err)
	}

	return list, nil
}

// CreateTestOverride creates an active negotiated price for one customer/product pair
func (tf *TestFixtures) CreateTestOverride(customerID, productID uint, unitPrice int64) (*models.CustomerPriceOverride, error) {
	override := &models.CustomerPriceOverride{
		CustomerID: customerID,
		ProductID:  productID,
		UnitPrice:  decimal.NewFromInt(unitPrice),
		IsActive:   utils.ToPtr(true),
	}

	if err := tf.DB.DB.Create(override).Error; err != nil {
		return nil, fmt.Errorf("failed to create test price override: %w", err)
	}

	return override, nil
}

// CreateTestQuote creates an accepted quote between the customer and
// contractor with a milestone schedule. amounts are VND per milestone, in
// sequence order; pass nil for a quote without a schedule.
func (tf *TestFixtures) CreateTestQuote(customerID, contractorID uint, amounts []int64) (*models.Quote, error) {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(decimal.NewFromInt(a))
	}

	now := time.Now().UTC()
	status := models.QuoteStatusSent
	if len(amounts) > 0 {
		status = models.QuoteStatusAccepted
	}

	quote := &models.Quote{
		CustomerID:   customerID,
		ContractorID: contractorID,
		Details:      "Xay nha cap 4, 80m2",
		TotalBudget:  total,
		Status:       status,
	}
	if len(amounts) > 0 {
		quote.AcceptedAt = &now
	}

	if err := tf.DB.DB.Create(quote).Error; err != nil {
		return nil, fmt.Errorf("failed to create test quote: %w", err)
	}

	for i, amount := range amounts {
		milestone := &models.Milestone{
			QuoteID:  quote.ID,
			Name:     fmt.Sprintf("Giai doan %d", i+1),
			Sequence: i + 1,
			Amount:   decimal.NewFromInt(amount),
			Status:   models.MilestoneStatusPending,
		}
		if err := tf.DB.DB.Create(milestone).Error; err != nil {
			return nil, fmt.Errorf("failed to create test milestone: %w", err)
		}
		quote.Milestones = append(quote.Milestones, *milestone)
	}

	return quote, nil
}

// SetMilestoneStatus force-sets a milestone's status and the matching
// timestamp, bypassing the state machine. Test setup only.
func (tf *TestFixtures) SetMilestoneStatus(milestoneID uint, status models.MilestoneStatus) error {
	now := time.Now().UTC()
	changes := map[string]any{"status": status}
	switch status {
	case models.MilestoneStatusEscrowPaid:
		changes["paid_at"] = now
	case models.MilestoneStatusReleased:
		changes["paid_at"] = now
		changes["released_at"] = now
	case models.MilestoneStatusRefunded:
		changes["paid_at"] = now
		changes["refunded_at"] = now
	case models.MilestoneStatusDisputed:
		changes["paid_at"] = now
	}
	return tf.DB.DB.Model(&models.Milestone{}).Where("id = ?", milestoneID).Updates(changes).Error
}

// GetMilestoneByID reloads a milestone straight from the database.
func (tf *TestFixtures) GetMilestoneByID(milestoneID uint) (*models.Milestone, error) {
	var milestone models.Milestone
	if err := tf.DB.DB.First(&milestone, milestoneID).Error; err != nil {
		return nil, err
	}
	return &milestone, nil
}

// CreateTestDispute opens a dispute record directly, without freezing the
// milestone. Use SetMilestoneStatus to arrange the milestone state.
func (tf *TestFixtures) CreateTestDispute(milestoneID, quoteID, openerID uint) (*models.Dispute, error) {
	dispute := &models.Dispute{
		MilestoneID: milestoneID,
		QuoteID:     quoteID,
		OpenerID:    openerID,
		Reason:      "Hang giao thieu so luong",
		Status:      models.DisputeStatusOpen,
	}

	if err := tf.DB.DB.Create(dispute).Error; err != nil {
		return nil, fmt.Errorf("failed to create test dispute: %w", err)
	}

	return dispute, nil
}

// CreateTestAuditLog creates a test audit log entry
func (tf *TestFixtures) CreateTestAuditLog(customerID *uint, action string, success bool) (*models.AuditLog, error) {
	description := fmt.Sprintf("Test %s action", action)
	ipAddress := "127.0.0.1"
	userAgent := "Test User Agent"

	audit := &models.AuditLog{
		CustomerID:  customerID,
		Action:      action,
		Description: &description,
		Success:     &success,
		IPAddress:   &ipAddress,
		UserAgent:   &userAgent,
	}

	if !success {
		errorMessage := "Test failed action"
		audit.ErrorMessage = &errorMessage
	}

	if err := tf.DB.DB.Create(audit).Error; err != nil {
		return nil, fmt.Errorf("failed to create test audit log: %w", err)
	}

	return audit, nil
}
