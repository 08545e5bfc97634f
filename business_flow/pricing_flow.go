// Package businessflow contains the core business logic for price resolution and cart evaluation
package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/trungvq/vatlieu-marketplace/app/dto"
	"github.com/trungvq/vatlieu-marketplace/config"
	"github.com/trungvq/vatlieu-marketplace/models"
	"github.com/trungvq/vatlieu-marketplace/repository"
	"github.com/trungvq/vatlieu-marketplace/utils"
)

// Price source labels reported back to clients and metrics.
const (
	PriceSourceOverride  = "CUSTOMER_OVERRIDE"
	PriceSourcePriceList = "PRICE_LIST"
	PriceSourceBase      = "BASE_PRICE"
)

// EffectivePrice is the outcome of a single price resolution.
type EffectivePrice struct {
	UnitPrice       decimal.Decimal
	Source          string
	PriceList       *models.PriceList
	Tier            *models.PriceTier
	DiscountPercent *float64
}

// PricingFlow resolves effective prices and evaluates carts.
type PricingFlow interface {
	ResolvePrice(ctx context.Context, req *dto.ResolvePriceRequest, metadata *ClientMetadata) (*dto.ResolvePriceResponse, error)
	EvaluateCart(ctx context.Context, req *dto.EvaluateCartRequest, metadata *ClientMetadata) (*dto.EvaluateCartResponse, error)
	UpsertPriceList(ctx context.Context, req *dto.UpsertPriceListRequest, metadata *ClientMetadata) (*dto.UpsertPriceListResponse, error)
	SetPriceOverride(ctx context.Context, req *dto.SetPriceOverrideRequest, metadata *ClientMetadata) (*dto.SetPriceOverrideResponse, error)
}

// PricingFlowImpl implements the pricing business flow
type PricingFlowImpl struct {
	customerRepo  repository.CustomerRepository
	productRepo   repository.ProductRepository
	priceListRepo repository.PriceListRepository
	overrideRepo  repository.CustomerPriceOverrideRepository
	auditRepo     repository.AuditLogRepository
	rc            *redis.Client
	cacheConfig   *config.CacheConfig
}

// NewPricingFlow creates a new pricing flow instance
func NewPricingFlow(
	customerRepo repository.CustomerRepository,
	productRepo repository.ProductRepository,
	priceListRepo repository.PriceListRepository,
	overrideRepo repository.CustomerPriceOverrideRepository,
	auditRepo repository.AuditLogRepository,
	rc *redis.Client,
	cacheConfig *config.CacheConfig,
) PricingFlow {
	return &PricingFlowImpl{
		customerRepo:  customerRepo,
		productRepo:   productRepo,
		priceListRepo: priceListRepo,
		overrideRepo:  overrideRepo,
		auditRepo:     auditRepo,
		rc:            rc,
		cacheConfig:   cacheConfig,
	}
}

// ResolvePrice returns the effective unit price of one product at the
// requested quantity. The customer is optional; guests are priced on the
// REGULAR segment with no override lookup.
func (p *PricingFlowImpl) ResolvePrice(ctx context.Context, req *dto.ResolvePriceRequest, metadata *ClientMetadata) (*dto.ResolvePriceResponse, error) {
	if req.Quantity <= 0 {
		return nil, NewBusinessError(CodeValidation, "Quantity must be greater than zero", ErrInvalidQuantity)
	}

	customer, err := p.optionalCustomer(ctx, req.CustomerUUID)
	if err != nil {
		return nil, err
	}

	product, err := p.getActiveProduct(ctx, req.ProductUUID)
	if err != nil {
		return nil, err
	}

	price, err := p.resolve(ctx, customer, product, req.Quantity, utils.UTCNow())
	if err != nil {
		return nil, err
	}

	return &dto.ResolvePriceResponse{
		Message: "Price resolved successfully",
		Price:   toPriceResolutionDTO(price),
	}, nil
}

// EvaluateCart prices every line of a cart independently and totals it. For
// lines priced from a tiered list the next cheaper tier is suggested.
func (p *PricingFlowImpl) EvaluateCart(ctx context.Context, req *dto.EvaluateCartRequest, metadata *ClientMetadata) (*dto.EvaluateCartResponse, error) {
	if len(req.Items) == 0 {
		return nil, NewBusinessError(CodeValidation, "Cart must contain at least one item", ErrCartEmpty)
	}
	if len(req.Items) > 200 {
		return nil, NewBusinessError(CodeValidation, "Cart exceeds the maximum number of items", ErrCartTooLarge)
	}

	customer, err := p.optionalCustomer(ctx, req.CustomerUUID)
	if err != nil {
		return nil, err
	}

	now := utils.UTCNow()
	subtotal := decimal.Zero
	items := make([]dto.CartItemDTO, 0, len(req.Items))

	for _, line := range req.Items {
		if line.Quantity <= 0 {
			return nil, NewBusinessErrorf(CodeValidation, "Quantity for product %s must be greater than zero", ErrInvalidQuantity, line.ProductUUID)
		}

		product, err := p.getActiveProduct(ctx, line.ProductUUID)
		if err != nil {
			return nil, err
		}

		price, err := p.resolve(ctx, customer, product, line.Quantity, now)
		if err != nil {
			return nil, err
		}

		lineTotal := price.UnitPrice.Mul(decimal.NewFromFloat(line.Quantity)).Round(2)
		subtotal = subtotal.Add(lineTotal)

		item := dto.CartItemDTO{
			ProductUUID:     product.UUID.String(),
			SKU:             product.SKU,
			Name:            product.Name,
			Unit:            product.Unit,
			Quantity:        line.Quantity,
			UnitPrice:       price.UnitPrice.StringFixed(2),
			LineTotal:       lineTotal.StringFixed(2),
			Source:          price.Source,
			DiscountPercent: price.DiscountPercent,
		}
		if price.PriceList != nil {
			item.PriceListCode = &price.PriceList.Code

			// Suggest the next tier only when it actually lowers the unit price.
			if next := price.PriceList.NextTierAbove(line.Quantity); next != nil {
				nextUnit := next.UnitPrice(product.BasePrice)
				if nextUnit.LessThan(price.UnitPrice) {
					item.NextTier = &dto.NextTierSuggestionDTO{
						AdditionalQuantity: next.MinQuantity - line.Quantity,
						MinQuantity:        next.MinQuantity,
						DiscountPercent:    next.DiscountPercent,
						UnitPrice:          nextUnit.StringFixed(2),
					}
				}
			}
		}

		items = append(items, item)
	}

	return &dto.EvaluateCartResponse{
		Message:  "Cart evaluated successfully",
		Items:    items,
		Subtotal: subtotal.StringFixed(2),
		Currency: utils.VNDCurrency,
	}, nil
}

// UpsertPriceList creates or replaces a price list and its tiers, then
// invalidates cached lists for the affected segments.
func (p *PricingFlowImpl) UpsertPriceList(ctx context.Context, req *dto.UpsertPriceListRequest, metadata *ClientMetadata) (*dto.UpsertPriceListResponse, error) {
	tiers, err := parseTierRequests(req.Tiers)
	if err != nil {
		return nil, err
	}

	validFrom, err := parseTimePtr(req.ValidFrom)
	if err != nil {
		return nil, NewBusinessError(CodeValidation, "Invalid valid_from timestamp", err)
	}
	validTo, err := parseTimePtr(req.ValidTo)
	if err != nil {
		return nil, NewBusinessError(CodeValidation, "Invalid valid_to timestamp", err)
	}
	if validFrom != nil && validTo != nil && validFrom.After(*validTo) {
		return nil, NewBusinessError(CodeValidation, "valid_from must not be after valid_to", ErrStartDateAfterEndDate)
	}

	for _, segment := range req.CustomerTypes {
		if !models.IsValidCustomerType(segment) {
			return nil, NewBusinessErrorf(CodeValidation, "Unknown customer segment %s", nil, segment)
		}
	}

	var saved *models.PriceList
	existing, err := p.priceListRepo.ByCode(ctx, req.Code)
	if err != nil {
		return nil, NewBusinessError(CodeInternal, "Failed to look up price list", err)
	}

	if existing != nil {
		existing.Name = req.Name
		existing.CustomerTypes = req.CustomerTypes
		existing.Priority = req.Priority
		existing.IsActive = utils.ToPtr(req.IsActive)
		existing.ValidFrom = validFrom
		existing.ValidTo = validTo
		existing.Tiers = tiers
		if err := existing.ValidateTiers(); err != nil {
			return nil, NewBusinessError(CodeValidation, "Tier configuration is invalid", err)
		}
		if err := p.priceListRepo.ReplaceTiers(ctx, existing.ID, tiers); err != nil {
			return nil, NewBusinessError(CodeInternal, "Failed to replace price list tiers", err)
		}
		if err := p.priceListRepo.Save(ctx, existing); err != nil {
			return nil, NewBusinessError(CodeInternal, "Failed to save price list", err)
		}
		saved = existing
	} else {
		pl := &models.PriceList{
			Code:          req.Code,
			Name:          req.Name,
			CustomerTypes: req.CustomerTypes,
			Priority:      req.Priority,
			IsActive:      utils.ToPtr(req.IsActive),
			ValidFrom:     validFrom,
			ValidTo:       validTo,
			Tiers:         tiers,
		}
		if err := pl.ValidateTiers(); err != nil {
			return nil, NewBusinessError(CodeValidation, "Tier configuration is invalid", err)
		}
		if err := p.priceListRepo.Save(ctx, pl); err != nil {
			return nil, NewBusinessError(CodeInternal, "Failed to save price list", err)
		}
		saved = pl
	}

	p.invalidateSegmentCache(ctx, req.CustomerTypes)
	_ = createAuditLog(ctx, p.auditRepo, nil, models.AuditActionPriceListUpserted, fmt.Sprintf("Price list %s saved", req.Code), true, nil, metadata)

	return &dto.UpsertPriceListResponse{
		Message:       "Price list saved successfully",
		PriceListUUID: saved.UUID.String(),
	}, nil
}

// SetPriceOverride pins a contract price for one customer and product.
func (p *PricingFlowImpl) SetPriceOverride(ctx context.Context, req *dto.SetPriceOverrideRequest, metadata *ClientMetadata) (*dto.SetPriceOverrideResponse, error) {
	unitPrice, err := decimal.NewFromString(req.UnitPrice)
	if err != nil || unitPrice.IsNegative() || unitPrice.IsZero() {
		return nil, NewBusinessError(CodeValidation, "Unit price must be a positive decimal", ErrUnitPriceInvalid)
	}

	customer, err := p.getActiveCustomer(ctx, req.CustomerUUID)
	if err != nil {
		return nil, err
	}
	product, err := p.getActiveProduct(ctx, req.ProductUUID)
	if err != nil {
		return nil, err
	}

	validFrom, err := parseTimePtr(req.ValidFrom)
	if err != nil {
		return nil, NewBusinessError(CodeValidation, "Invalid valid_from timestamp", err)
	}
	validTo, err := parseTimePtr(req.ValidTo)
	if err != nil {
		return nil, NewBusinessError(CodeValidation, "Invalid valid_to timestamp", err)
	}
	if validFrom != nil && validTo != nil && validFrom.After(*validTo) {
		return nil, NewBusinessError(CodeValidation, "valid_from must not be after valid_to", ErrStartDateAfterEndDate)
	}

	override := &models.CustomerPriceOverride{
		CustomerID: customer.ID,
		ProductID:  product.ID,
		UnitPrice:  unitPrice.Round(2),
		IsActive:   utils.ToPtr(req.IsActive),
		ValidFrom:  validFrom,
		ValidTo:    validTo,
	}

	if err := p.overrideRepo.Upsert(ctx, override); err != nil {
		return nil, NewBusinessError(CodeInternal, "Failed to save price override", err)
	}

	_ = createAuditLog(ctx, p.auditRepo, &customer, models.AuditActionPriceOverrideSet, fmt.Sprintf("Override set for product %s", product.SKU), true, nil, metadata)

	return &dto.SetPriceOverrideResponse{
		Message: "Price override saved successfully",
	}, nil
}

// resolve applies the precedence chain: customer override, then the highest
// priority applicable price list with a matching tier, then base price. An
// override wins outright and never stacks with tier discounts.
func (p *PricingFlowImpl) resolve(ctx context.Context, customer *models.Customer, product models.Product, quantity float64, at time.Time) (EffectivePrice, error) {
	if customer != nil {
		override, err := p.overrideRepo.ActiveForCustomerProduct(ctx, customer.ID, product.ID, at)
		if err != nil {
			return EffectivePrice{}, NewBusinessError(CodeInternal, "Failed to look up price override", err)
		}
		if override != nil {
			priceResolutionsTotal.WithLabelValues(PriceSourceOverride).Inc()
			return EffectivePrice{
				UnitPrice: override.UnitPrice,
				Source:    PriceSourceOverride,
			}, nil
		}
	}

	segment := models.CustomerTypeRegular
	if customer != nil {
		segment = customer.Segment()
	}
	lists, err := p.activeListsForSegment(ctx, segment, at)
	if err != nil {
		return EffectivePrice{}, NewBusinessError(CodeInternal, "Failed to load price lists", err)
	}

	if price, ok := ResolveFromPriceLists(lists, product.BasePrice, quantity); ok {
		priceResolutionsTotal.WithLabelValues(PriceSourcePriceList).Inc()
		return price, nil
	}

	priceResolutionsTotal.WithLabelValues(PriceSourceBase).Inc()
	return EffectivePrice{
		UnitPrice: product.BasePrice,
		Source:    PriceSourceBase,
	}, nil
}

// ResolveFromPriceLists walks price lists in priority order and returns the
// price of the first list holding a tier that covers the quantity. Lists are
// expected presorted by priority DESC, created_at DESC, id DESC.
func ResolveFromPriceLists(lists []*models.PriceList, basePrice decimal.Decimal, quantity float64) (EffectivePrice, bool) {
	for _, pl := range lists {
		tier := pl.TierFor(quantity)
		if tier == nil {
			continue
		}
		return EffectivePrice{
			UnitPrice:       tier.UnitPrice(basePrice),
			Source:          PriceSourcePriceList,
			PriceList:       pl,
			Tier:            tier,
			DiscountPercent: tier.DiscountPercent,
		}, true
	}
	return EffectivePrice{}, false
}

// activeListsForSegment reads price lists through the Redis cache. Cache
// problems fall back to the database silently.
func (p *PricingFlowImpl) activeListsForSegment(ctx context.Context, segment string, at time.Time) ([]*models.PriceList, error) {
	if p.rc == nil || p.cacheConfig == nil || !p.cacheConfig.Enabled {
		return p.priceListRepo.ListActiveForSegment(ctx, segment, at)
	}

	cacheKey := redisKey(*p.cacheConfig, priceListCacheKey(segment))
	if bs, err := p.rc.Get(ctx, cacheKey).Bytes(); err == nil && len(bs) > 0 {
		var cached []*models.PriceList
		if err := json.Unmarshal(bs, &cached); err == nil {
			priceListCacheTotal.WithLabelValues("hit").Inc()

			// Effective windows are rechecked here; the cache only scopes
			// by segment.
			out := make([]*models.PriceList, 0, len(cached))
			for _, pl := range cached {
				if pl.IsEffectiveAt(at) {
					out = append(out, pl)
				}
			}
			return out, nil
		}
	}
	priceListCacheTotal.WithLabelValues("miss").Inc()

	lists, err := p.priceListRepo.ListActiveForSegment(ctx, segment, at)
	if err != nil {
		return nil, err
	}

	if bs, err := json.Marshal(lists); err == nil {
		_ = p.rc.Set(ctx, cacheKey, bs, utils.PriceListCacheTTL).Err()
	}

	return lists, nil
}

func (p *PricingFlowImpl) invalidateSegmentCache(ctx context.Context, segments []string) {
	if p.rc == nil || p.cacheConfig == nil || !p.cacheConfig.Enabled {
		return
	}
	for _, segment := range segments {
		_ = p.rc.Del(ctx, redisKey(*p.cacheConfig, priceListCacheKey(segment))).Err()
	}
}

func priceListCacheKey(segment string) string {
	return fmt.Sprintf("price_lists:%s", segment)
}

// optionalCustomer loads the customer when a UUID was supplied; a blank
// UUID means a guest and resolves to nil.
func (p *PricingFlowImpl) optionalCustomer(ctx context.Context, customerUUID string) (*models.Customer, error) {
	if customerUUID == "" {
		return nil, nil
	}
	customer, err := p.getActiveCustomer(ctx, customerUUID)
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (p *PricingFlowImpl) getActiveCustomer(ctx context.Context, customerUUID string) (models.Customer, error) {
	customer, err := p.customerRepo.ByUUID(ctx, customerUUID)
	if err != nil {
		return models.Customer{}, NewBusinessError(CodeInternal, "Failed to look up customer", err)
	}
	if customer == nil {
		return models.Customer{}, NewBusinessError(CodeNotFound, "Customer not found", ErrCustomerNotFound)
	}
	if !utils.IsTrue(customer.IsActive) {
		return models.Customer{}, NewBusinessError(CodeForbidden, "Account is inactive", ErrAccountInactive)
	}
	return *customer, nil
}

func (p *PricingFlowImpl) getActiveProduct(ctx context.Context, productUUID string) (models.Product, error) {
	product, err := p.productRepo.ByUUID(ctx, productUUID)
	if err != nil {
		return models.Product{}, NewBusinessError(CodeInternal, "Failed to look up product", err)
	}
	if product == nil {
		return models.Product{}, NewBusinessError(CodeNotFound, "Product not found", ErrProductNotFound)
	}
	if !utils.IsTrue(product.IsActive) {
		return models.Product{}, NewBusinessError(CodeNotFound, "Product is inactive", ErrProductInactive)
	}
	return *product, nil
}

func toPriceResolutionDTO(price EffectivePrice) dto.PriceResolutionDTO {
	out := dto.PriceResolutionDTO{
		UnitPrice:       price.UnitPrice.StringFixed(2),
		Currency:        utils.VNDCurrency,
		Source:          price.Source,
		DiscountPercent: price.DiscountPercent,
	}
	if price.PriceList != nil {
		out.PriceListCode = &price.PriceList.Code
	}
	if price.Tier != nil {
		out.TierMinQuantity = &price.Tier.MinQuantity
	}
	return out
}

func parseTierRequests(reqs []dto.PriceTierRequest) ([]models.PriceTier, error) {
	tiers := make([]models.PriceTier, 0, len(reqs))
	for _, tr := range reqs {
		tier := models.PriceTier{
			MinQuantity:     tr.MinQuantity,
			DiscountPercent: tr.DiscountPercent,
		}
		if tr.FixedUnitPrice != nil {
			fixed, err := decimal.NewFromString(*tr.FixedUnitPrice)
			if err != nil || !fixed.IsPositive() {
				return nil, NewBusinessError(CodeValidation, "Fixed unit price must be a positive decimal", ErrTierConfigInvalid)
			}
			rounded := fixed.Round(2)
			tier.FixedUnitPrice = &rounded
		}
		tiers = append(tiers, tier)
	}
	return tiers, nil
}

func parseTimePtr(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, err
	}
	utc := t.UTC()
	return &utc, nil
}
