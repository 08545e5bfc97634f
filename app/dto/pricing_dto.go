package dto

// ResolvePriceRequest asks for the effective unit price of a product at a
// given quantity. Without a customer the guest REGULAR segment applies.
type ResolvePriceRequest struct {
	CustomerUUID string  `json:"customer_uuid,omitempty" validate:"omitempty,uuid4"`
	ProductUUID  string  `json:"product_uuid" validate:"required,uuid4"`
	Quantity     float64 `json:"quantity" validate:"required,gt=0"`
}

// PriceResolutionDTO describes the resolved price and where it came from.
type PriceResolutionDTO struct {
	UnitPrice       string   `json:"unit_price"`
	Currency        string   `json:"currency"`
	Source          string   `json:"source"` // CUSTOMER_OVERRIDE, PRICE_LIST, BASE_PRICE
	PriceListCode   *string  `json:"price_list_code,omitempty"`
	TierMinQuantity *float64 `json:"tier_min_quantity,omitempty"`
	DiscountPercent *float64 `json:"discount_percent,omitempty"`
}

type ResolvePriceResponse struct {
	Message string             `json:"message"`
	Price   PriceResolutionDTO `json:"price"`
}

// CartItemRequest is one line of a cart evaluation request.
type CartItemRequest struct {
	ProductUUID string  `json:"product_uuid" validate:"required,uuid4"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
}

type EvaluateCartRequest struct {
	CustomerUUID string            `json:"customer_uuid,omitempty" validate:"omitempty,uuid4"`
	Items        []CartItemRequest `json:"items" validate:"required,min=1,max=200,dive"`
}

// NextTierSuggestionDTO tells the buyer how much more volume unlocks a
// better unit price.
type NextTierSuggestionDTO struct {
	AdditionalQuantity float64  `json:"additional_quantity"`
	MinQuantity        float64  `json:"min_quantity"`
	DiscountPercent    *float64 `json:"discount_percent,omitempty"`
	UnitPrice          string   `json:"unit_price"`
}

// CartItemDTO is one evaluated cart line.
type CartItemDTO struct {
	ProductUUID     string                 `json:"product_uuid"`
	SKU             string                 `json:"sku"`
	Name            string                 `json:"name"`
	Unit            string                 `json:"unit"`
	Quantity        float64                `json:"quantity"`
	UnitPrice       string                 `json:"unit_price"`
	LineTotal       string                 `json:"line_total"`
	Source          string                 `json:"source"`
	PriceListCode   *string                `json:"price_list_code,omitempty"`
	DiscountPercent *float64               `json:"discount_percent,omitempty"`
	NextTier        *NextTierSuggestionDTO `json:"next_tier,omitempty"`
}

type EvaluateCartResponse struct {
	Message  string        `json:"message"`
	Items    []CartItemDTO `json:"items"`
	Subtotal string        `json:"subtotal"`
	Currency string        `json:"currency"`
}

// UpsertPriceListRequest creates or replaces a segment price list and its tiers.
type UpsertPriceListRequest struct {
	Code          string                  `json:"code" validate:"required,min=2,max=64"`
	Name          string                  `json:"name" validate:"required,min=2,max=255"`
	CustomerTypes []string                `json:"customer_types" validate:"required,min=1,dive,oneof=REGULAR VIP WHOLESALE CONTRACTOR"`
	Priority      int                     `json:"priority" validate:"min=0,max=1000"`
	IsActive      bool                    `json:"is_active"`
	ValidFrom     *string                 `json:"valid_from,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	ValidTo       *string                 `json:"valid_to,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Tiers         []PriceTierRequest      `json:"tiers" validate:"required,min=1,max=20,dive"`
}

// PriceTierRequest defines one quantity tier. Exactly one of discount_percent
// and fixed_unit_price must be set.
type PriceTierRequest struct {
	MinQuantity     float64  `json:"min_quantity" validate:"min=0"`
	DiscountPercent *float64 `json:"discount_percent,omitempty" validate:"omitempty,gt=0,lte=100"`
	FixedUnitPrice  *string  `json:"fixed_unit_price,omitempty"`
}

type UpsertPriceListResponse struct {
	Message       string `json:"message"`
	PriceListUUID string `json:"price_list_uuid"`
}

// SetPriceOverrideRequest pins a contract unit price for one customer and product.
type SetPriceOverrideRequest struct {
	CustomerUUID string  `json:"customer_uuid" validate:"required,uuid4"`
	ProductUUID  string  `json:"product_uuid" validate:"required,uuid4"`
	UnitPrice    string  `json:"unit_price" validate:"required"`
	IsActive     bool    `json:"is_active"`
	ValidFrom    *string `json:"valid_from,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	ValidTo      *string `json:"valid_to,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

type SetPriceOverrideResponse struct {
	Message string `json:"message"`
}
