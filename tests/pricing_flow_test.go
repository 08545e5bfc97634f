// Package tests contains integration tests for price resolution and cart evaluation
package tests

import (
	"context"
	"testing"

	"github.com/trungvq/vatlieu-marketplace/app/dto"
	businessflow "github.com/trungvq/vatlieu-marketplace/business_flow"
	"github.com/trungvq/vatlieu-marketplace/models"
	"github.com/trungvq/vatlieu-marketplace/repository"
	testingutil "github.com/trungvq/vatlieu-marketplace/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPricingFlow(testDB *testingutil.TestDB) businessflow.PricingFlow {
	return businessflow.NewPricingFlow(
		repository.NewCustomerRepository(testDB.DB),
		repository.NewProductRepository(testDB.DB),
		repository.NewPriceListRepository(testDB.DB),
		repository.NewCustomerPriceOverrideRepository(testDB.DB),
		repository.NewAuditLogRepository(testDB.DB),
		nil, // no cache in tests, resolution falls through to the database
		nil,
	)
}

func TestPriceResolution(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		pricingFlow := newPricingFlow(testDB)
		metadata := businessflow.NewClientMetadata("127.0.0.1", "Test User Agent")
		ctx := context.Background()

		t.Run("BasePriceWhenNoListMatches", func(t *testing.T) {
			customer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			product, err := fixtures.CreateTestProduct(100000)
			require.NoError(t, err)

			resp, err := pricingFlow.ResolvePrice(ctx, &dto.ResolvePriceRequest{
				CustomerUUID: customer.UUID.String(),
				ProductUUID:  product.UUID.String(),
				Quantity:     10,
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, businessflow.PriceSourceBase, resp.Price.Source)
			assert.Equal(t, "100000.00", resp.Price.UnitPrice)
		})

		t.Run("TieredSegmentListDiscount", func(t *testing.T) {
			customer, err := fixtures.CreateTestCustomer(models.CustomerTypeWholesale)
			require.NoError(t, err)
			product, err := fixtures.CreateTestProduct(100000)
			require.NoError(t, err)

			_, err = fixtures.CreateTestPriceList(
				[]string{models.CustomerTypeWholesale},
				10,
				map[float64]float64{0: 0, 50: 5, 100: 10},
			)
			require.NoError(t, err)

			resp, err := pricingFlow.ResolvePrice(ctx, &dto.ResolvePriceRequest{
				CustomerUUID: customer.UUID.String(),
				ProductUUID:  product.UUID.String(),
				Quantity:     60,
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, businessflow.PriceSourcePriceList, resp.Price.Source)
			assert.Equal(t, "95000.00", resp.Price.UnitPrice)
			require.NotNil(t, resp.Price.TierMinQuantity)
			assert.Equal(t, 50.0, *resp.Price.TierMinQuantity)
			require.NotNil(t, resp.Price.DiscountPercent)
			assert.Equal(t, 5.0, *resp.Price.DiscountPercent)
		})

		t.Run("HigherPriorityListWins", func(t *testing.T) {
			customer, err := fixtures.CreateTestCustomer(models.CustomerTypeVIP)
			require.NoError(t, err)
			product, err := fixtures.CreateTestProduct(200000)
			require.NoError(t, err)

			_, err = fixtures.CreateTestPriceList([]string{models.CustomerTypeVIP}, 1, map[float64]float64{0: 2})
			require.NoError(t, err)
			_, err = fixtures.CreateTestPriceList([]string{models.CustomerTypeVIP}, 100, map[float64]float64{0: 8})
			require.NoError(t, err)

			resp, err := pricingFlow.ResolvePrice(ctx, &dto.ResolvePriceRequest{
				CustomerUUID: customer.UUID.String(),
				ProductUUID:  product.UUID.String(),
				Quantity:     1,
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, "184000.00", resp.Price.UnitPrice)
			require.NotNil(t, resp.Price.DiscountPercent)
			assert.Equal(t, 8.0, *resp.Price.DiscountPercent)
		})

		t.Run("OverrideBeatsEveryList", func(t *testing.T) {
			customer, err := fixtures.CreateTestCustomer(models.CustomerTypeWholesale)
			require.NoError(t, err)
			product, err := fixtures.CreateTestProduct(100000)
			require.NoError(t, err)

			_, err = fixtures.CreateTestOverride(customer.ID, product.ID, 87000)
			require.NoError(t, err)

			resp, err := pricingFlow.ResolvePrice(ctx, &dto.ResolvePriceRequest{
				CustomerUUID: customer.UUID.String(),
				ProductUUID:  product.UUID.String(),
				Quantity:     1000,
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, businessflow.PriceSourceOverride, resp.Price.Source)
			assert.Equal(t, "87000.00", resp.Price.UnitPrice)
			assert.Nil(t, resp.Price.DiscountPercent, "overrides never stack tier discounts")
		})

		t.Run("GuestResolvesAtRegularSegment", func(t *testing.T) {
			product, err := fixtures.CreateTestProduct(100000)
			require.NoError(t, err)

			_, err = fixtures.CreateTestPriceList([]string{models.CustomerTypeRegular}, 10, map[float64]float64{0: 5})
			require.NoError(t, err)
			_, err = fixtures.CreateTestPriceList([]string{models.CustomerTypeWholesale}, 20, map[float64]float64{0: 20})
			require.NoError(t, err)

			// No customer UUID at all: the caller prices as a REGULAR buyer.
			resp, err := pricingFlow.ResolvePrice(ctx, &dto.ResolvePriceRequest{
				ProductUUID: product.UUID.String(),
				Quantity:    10,
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, businessflow.PriceSourcePriceList, resp.Price.Source)
			assert.Equal(t, "95000.00", resp.Price.UnitPrice)
		})

		t.Run("GuestNeverSeesOverrides", func(t *testing.T) {
			customer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			product, err := fixtures.CreateTestProduct(100000)
			require.NoError(t, err)

			_, err = fixtures.CreateTestOverride(customer.ID, product.ID, 87000)
			require.NoError(t, err)

			// The guest falls back to the REGULAR segment list, never the
			// customer's negotiated price.
			resp, err := pricingFlow.ResolvePrice(ctx, &dto.ResolvePriceRequest{
				ProductUUID: product.UUID.String(),
				Quantity:    1,
			}, metadata)
			require.NoError(t, err)
			assert.NotEqual(t, businessflow.PriceSourceOverride, resp.Price.Source)
			assert.Equal(t, "95000.00", resp.Price.UnitPrice)
		})

		t.Run("ZeroQuantityRejected", func(t *testing.T) {
			customer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			product, err := fixtures.CreateTestProduct(100000)
			require.NoError(t, err)

			_, err = pricingFlow.ResolvePrice(ctx, &dto.ResolvePriceRequest{
				CustomerUUID: customer.UUID.String(),
				ProductUUID:  product.UUID.String(),
				Quantity:     0,
			}, metadata)
			require.Error(t, err)
			assert.Equal(t, businessflow.CodeValidation, businessflow.ErrorCode(err))
		})

		t.Run("UnknownProductRejected", func(t *testing.T) {
			customer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)

			_, err = pricingFlow.ResolvePrice(ctx, &dto.ResolvePriceRequest{
				CustomerUUID: customer.UUID.String(),
				ProductUUID:  "3f1d7e44-6a6e-4c7a-9b1a-1df6f3a2b001",
				Quantity:     5,
			}, metadata)
			require.Error(t, err)
			assert.Equal(t, businessflow.CodeNotFound, businessflow.ErrorCode(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestCartEvaluation(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		pricingFlow := newPricingFlow(testDB)
		metadata := businessflow.NewClientMetadata("127.0.0.1", "Test User Agent")
		ctx := context.Background()

		t.Run("LinesAndSubtotalWithNextTierSuggestion", func(t *testing.T) {
			customer, err := fixtures.CreateTestCustomer(models.CustomerTypeWholesale)
			require.NoError(t, err)
			cement, err := fixtures.CreateTestProduct(100000)
			require.NoError(t, err)
			sand, err := fixtures.CreateTestProduct(350000)
			require.NoError(t, err)

			_, err = fixtures.CreateTestPriceList(
				[]string{models.CustomerTypeWholesale},
				10,
				map[float64]float64{0: 0, 50: 5, 100: 10},
			)
			require.NoError(t, err)

			resp, err := pricingFlow.EvaluateCart(ctx, &dto.EvaluateCartRequest{
				CustomerUUID: customer.UUID.String(),
				Items: []dto.CartItemRequest{
					{ProductUUID: cement.UUID.String(), Quantity: 60},
					{ProductUUID: sand.UUID.String(), Quantity: 10},
				},
			}, metadata)
			require.NoError(t, err)
			require.Len(t, resp.Items, 2)

			// 60 bao at the 5% tier: 95.000 x 60
			assert.Equal(t, "95000.00", resp.Items[0].UnitPrice)
			assert.Equal(t, "5700000.00", resp.Items[0].LineTotal)
			require.NotNil(t, resp.Items[0].NextTier)
			assert.Equal(t, 40.0, resp.Items[0].NextTier.AdditionalQuantity)
			assert.Equal(t, 100.0, resp.Items[0].NextTier.MinQuantity)
			assert.Equal(t, "90000.00", resp.Items[0].NextTier.UnitPrice)

			// 10 units at the zero-discount tier: full base price
			assert.Equal(t, "350000.00", resp.Items[1].UnitPrice)

			assert.Equal(t, "9200000.00", resp.Subtotal)
			assert.Equal(t, "VND", resp.Currency)
		})

		t.Run("TopTierGetsNoSuggestion", func(t *testing.T) {
			customer, err := fixtures.CreateTestCustomer(models.CustomerTypeWholesale)
			require.NoError(t, err)
			product, err := fixtures.CreateTestProduct(100000)
			require.NoError(t, err)

			_, err = fixtures.CreateTestPriceList(
				[]string{models.CustomerTypeWholesale},
				20,
				map[float64]float64{0: 0, 100: 10},
			)
			require.NoError(t, err)

			resp, err := pricingFlow.EvaluateCart(ctx, &dto.EvaluateCartRequest{
				CustomerUUID: customer.UUID.String(),
				Items:        []dto.CartItemRequest{{ProductUUID: product.UUID.String(), Quantity: 150}},
			}, metadata)
			require.NoError(t, err)
			require.Len(t, resp.Items, 1)
			assert.Equal(t, "90000.00", resp.Items[0].UnitPrice)
			assert.Nil(t, resp.Items[0].NextTier)
		})

		t.Run("GuestCartPricesAtBase", func(t *testing.T) {
			product, err := fixtures.CreateTestProduct(120000)
			require.NoError(t, err)

			// Anonymous cart: no wholesale list applies, base price stands.
			resp, err := pricingFlow.EvaluateCart(ctx, &dto.EvaluateCartRequest{
				Items: []dto.CartItemRequest{{ProductUUID: product.UUID.String(), Quantity: 200}},
			}, metadata)
			require.NoError(t, err)
			require.Len(t, resp.Items, 1)
			assert.Equal(t, "120000.00", resp.Items[0].UnitPrice)
			assert.Equal(t, "24000000.00", resp.Items[0].LineTotal)
		})

		t.Run("EmptyCartRejected", func(t *testing.T) {
			customer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)

			_, err = pricingFlow.EvaluateCart(ctx, &dto.EvaluateCartRequest{
				CustomerUUID: customer.UUID.String(),
				Items:        []dto.CartItemRequest{},
			}, metadata)
			require.Error(t, err)
			assert.Equal(t, businessflow.CodeValidation, businessflow.ErrorCode(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestPriceListAdministration(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		pricingFlow := newPricingFlow(testDB)
		metadata := businessflow.NewClientMetadata("127.0.0.1", "Test User Agent")
		ctx := context.Background()

		t.Run("UpsertThenResolveThroughNewList", func(t *testing.T) {
			customer, err := fixtures.CreateTestCustomer(models.CustomerTypeContractor)
			require.NoError(t, err)
			product, err := fixtures.CreateTestProduct(100000)
			require.NoError(t, err)

			discount := 12.0
			resp, err := pricingFlow.UpsertPriceList(ctx, &dto.UpsertPriceListRequest{
				Code:          "PL-CONTRACTOR-Q4",
				Name:          "Contractor Q4 volume pricing",
				CustomerTypes: []string{models.CustomerTypeContractor},
				Priority:      50,
				IsActive:      true,
				Tiers: []dto.PriceTierRequest{
					{MinQuantity: 0, DiscountPercent: &discount},
				},
			}, metadata)
			require.NoError(t, err)
			assert.NotEmpty(t, resp.PriceListUUID)

			priced, err := pricingFlow.ResolvePrice(ctx, &dto.ResolvePriceRequest{
				CustomerUUID: customer.UUID.String(),
				ProductUUID:  product.UUID.String(),
				Quantity:     5,
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, "88000.00", priced.Price.UnitPrice)
		})

		t.Run("UpsertRejectsBrokenTierLadder", func(t *testing.T) {
			discount := 5.0
			fixed := "90000"
			_, err := pricingFlow.UpsertPriceList(ctx, &dto.UpsertPriceListRequest{
				Code:          "PL-BROKEN",
				Name:          "Broken ladder",
				CustomerTypes: []string{models.CustomerTypeRegular},
				IsActive:      true,
				Tiers: []dto.PriceTierRequest{
					{MinQuantity: 0, DiscountPercent: &discount, FixedUnitPrice: &fixed},
				},
			}, metadata)
			require.Error(t, err)
			assert.Equal(t, businessflow.CodeValidation, businessflow.ErrorCode(err))
		})

		t.Run("SetOverrideThenResolve", func(t *testing.T) {
			customer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			product, err := fixtures.CreateTestProduct(100000)
			require.NoError(t, err)

			_, err = pricingFlow.SetPriceOverride(ctx, &dto.SetPriceOverrideRequest{
				CustomerUUID: customer.UUID.String(),
				ProductUUID:  product.UUID.String(),
				UnitPrice:    "81000",
				IsActive:     true,
			}, metadata)
			require.NoError(t, err)

			resp, err := pricingFlow.ResolvePrice(ctx, &dto.ResolvePriceRequest{
				CustomerUUID: customer.UUID.String(),
				ProductUUID:  product.UUID.String(),
				Quantity:     1,
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, businessflow.PriceSourceOverride, resp.Price.Source)
			assert.Equal(t, "81000.00", resp.Price.UnitPrice)
		})

		return nil
	})
	require.NoError(t, err)
}
