// Package tests contains unit tests for domain model behavior
package tests

import (
	"testing"
	"time"

	"github.com/trungvq/vatlieu-marketplace/models"
	"github.com/trungvq/vatlieu-marketplace/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMilestoneTransitions(t *testing.T) {
	t.Run("AllowedEdges", func(t *testing.T) {
		allowed := [][2]models.MilestoneStatus{
			{models.MilestoneStatusPending, models.MilestoneStatusEscrowPaid},
			{models.MilestoneStatusEscrowPaid, models.MilestoneStatusReleased},
			{models.MilestoneStatusEscrowPaid, models.MilestoneStatusRefunded},
			{models.MilestoneStatusEscrowPaid, models.MilestoneStatusDisputed},
			{models.MilestoneStatusReleased, models.MilestoneStatusDisputed},
			{models.MilestoneStatusDisputed, models.MilestoneStatusReleased},
			{models.MilestoneStatusDisputed, models.MilestoneStatusRefunded},
		}
		for _, edge := range allowed {
			assert.True(t, models.CanTransition(edge[0], edge[1]), "expected %s -> %s to be allowed", edge[0], edge[1])
		}
	})

	t.Run("ForbiddenEdges", func(t *testing.T) {
		forbidden := [][2]models.MilestoneStatus{
			{models.MilestoneStatusPending, models.MilestoneStatusReleased},
			{models.MilestoneStatusPending, models.MilestoneStatusRefunded},
			{models.MilestoneStatusPending, models.MilestoneStatusDisputed},
			{models.MilestoneStatusReleased, models.MilestoneStatusEscrowPaid},
			{models.MilestoneStatusReleased, models.MilestoneStatusRefunded},
			{models.MilestoneStatusRefunded, models.MilestoneStatusEscrowPaid},
			{models.MilestoneStatusRefunded, models.MilestoneStatusReleased},
			{models.MilestoneStatusRefunded, models.MilestoneStatusDisputed},
			{models.MilestoneStatusDisputed, models.MilestoneStatusPending},
		}
		for _, edge := range forbidden {
			assert.False(t, models.CanTransition(edge[0], edge[1]), "expected %s -> %s to be forbidden", edge[0], edge[1])
		}
	})

	t.Run("MilestoneStatePredicates", func(t *testing.T) {
		held := models.Milestone{Status: models.MilestoneStatusEscrowPaid}
		assert.True(t, held.IsHeld())
		assert.False(t, held.IsTerminal())

		disputed := models.Milestone{Status: models.MilestoneStatusDisputed}
		assert.True(t, disputed.IsHeld())

		released := models.Milestone{Status: models.MilestoneStatusReleased}
		assert.True(t, released.IsTerminal())
		assert.False(t, released.IsHeld())
	})
}

func TestPriceListTierSelection(t *testing.T) {
	discount5 := 5.0
	discount10 := 10.0
	list := &models.PriceList{
		Code:     "PL-WHOLESALE",
		IsActive: utils.ToPtr(true),
		Tiers: []models.PriceTier{
			{MinQuantity: 0, DiscountPercent: utils.ToPtr(0.0)},
			{MinQuantity: 50, DiscountPercent: &discount5},
			{MinQuantity: 100, DiscountPercent: &discount10},
		},
	}

	t.Run("TierForPicksHighestApplicableBreak", func(t *testing.T) {
		tier := list.TierFor(60)
		require.NotNil(t, tier)
		assert.Equal(t, 50.0, tier.MinQuantity)

		tier = list.TierFor(100)
		require.NotNil(t, tier)
		assert.Equal(t, 100.0, tier.MinQuantity)

		tier = list.TierFor(10)
		require.NotNil(t, tier)
		assert.Equal(t, 0.0, tier.MinQuantity)
	})

	t.Run("NextTierAboveFindsUpgrade", func(t *testing.T) {
		next := list.NextTierAbove(60)
		require.NotNil(t, next)
		assert.Equal(t, 100.0, next.MinQuantity)

		assert.Nil(t, list.NextTierAbove(100), "top tier has no upgrade")
	})

	t.Run("NoTierBelowFirstBreak", func(t *testing.T) {
		steep := &models.PriceList{Tiers: []models.PriceTier{{MinQuantity: 500, DiscountPercent: &discount10}}}
		assert.Nil(t, steep.TierFor(499))
	})

	t.Run("TierUnitPriceFromDiscount", func(t *testing.T) {
		base := decimal.NewFromInt(100000)
		tier := list.TierFor(60)
		require.NotNil(t, tier)
		assert.True(t, tier.UnitPrice(base).Equal(decimal.NewFromInt(95000)))
	})

	t.Run("TierUnitPriceFromFixedPrice", func(t *testing.T) {
		fixed := decimal.NewFromInt(88000)
		tier := models.PriceTier{MinQuantity: 10, FixedUnitPrice: &fixed}
		assert.True(t, tier.UnitPrice(decimal.NewFromInt(100000)).Equal(fixed))
	})
}

func TestPriceListValidation(t *testing.T) {
	discount := 5.0
	fixed := decimal.NewFromInt(90000)

	t.Run("ValidLadder", func(t *testing.T) {
		list := &models.PriceList{
			Code: "PL-OK",
			Tiers: []models.PriceTier{
				{MinQuantity: 0, DiscountPercent: &discount},
				{MinQuantity: 50, FixedUnitPrice: &fixed},
			},
		}
		assert.NoError(t, list.ValidateTiers())
	})

	t.Run("EmptyLadderRejected", func(t *testing.T) {
		list := &models.PriceList{Code: "PL-EMPTY"}
		assert.Error(t, list.ValidateTiers())
	})

	t.Run("NonIncreasingBreaksRejected", func(t *testing.T) {
		list := &models.PriceList{
			Code: "PL-DUP",
			Tiers: []models.PriceTier{
				{MinQuantity: 50, DiscountPercent: &discount},
				{MinQuantity: 50, FixedUnitPrice: &fixed},
			},
		}
		assert.Error(t, list.ValidateTiers())
	})

	t.Run("BothRulesOnOneTierRejected", func(t *testing.T) {
		list := &models.PriceList{
			Code: "PL-BOTH",
			Tiers: []models.PriceTier{
				{MinQuantity: 0, DiscountPercent: &discount, FixedUnitPrice: &fixed},
			},
		}
		assert.Error(t, list.ValidateTiers())
	})

	t.Run("NoRuleOnTierRejected", func(t *testing.T) {
		list := &models.PriceList{
			Code:  "PL-NONE",
			Tiers: []models.PriceTier{{MinQuantity: 0}},
		}
		assert.Error(t, list.ValidateTiers())
	})

	t.Run("DiscountOutOfRangeRejected", func(t *testing.T) {
		over := 101.0
		list := &models.PriceList{
			Code:  "PL-OVER",
			Tiers: []models.PriceTier{{MinQuantity: 0, DiscountPercent: &over}},
		}
		assert.Error(t, list.ValidateTiers())
	})
}

func TestPriceListEffectiveWindow(t *testing.T) {
	now := time.Now().UTC()
	yesterday := now.Add(-24 * time.Hour)
	tomorrow := now.Add(24 * time.Hour)

	t.Run("OpenEndedActiveList", func(t *testing.T) {
		list := &models.PriceList{IsActive: utils.ToPtr(true)}
		assert.True(t, list.IsEffectiveAt(now))
	})

	t.Run("InactiveListNeverEffective", func(t *testing.T) {
		list := &models.PriceList{IsActive: utils.ToPtr(false)}
		assert.False(t, list.IsEffectiveAt(now))
	})

	t.Run("DateBounds", func(t *testing.T) {
		list := &models.PriceList{IsActive: utils.ToPtr(true), ValidFrom: &yesterday, ValidTo: &tomorrow}
		assert.True(t, list.IsEffectiveAt(now))

		expired := &models.PriceList{IsActive: utils.ToPtr(true), ValidTo: &yesterday}
		assert.False(t, expired.IsEffectiveAt(now))

		future := &models.PriceList{IsActive: utils.ToPtr(true), ValidFrom: &tomorrow}
		assert.False(t, future.IsEffectiveAt(now))
	})

	t.Run("SegmentMembership", func(t *testing.T) {
		list := &models.PriceList{CustomerTypes: []string{models.CustomerTypeWholesale, models.CustomerTypeContractor}}
		assert.True(t, list.AppliesToSegment(models.CustomerTypeWholesale))
		assert.False(t, list.AppliesToSegment(models.CustomerTypeRegular))
	})
}

func TestEscrowLedgerDerivation(t *testing.T) {
	amount := func(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

	t.Run("ConservationAcrossStates", func(t *testing.T) {
		quote := &models.Quote{
			TotalBudget: amount(10000000),
			Milestones: []models.Milestone{
				{Amount: amount(3000000), Status: models.MilestoneStatusReleased},
				{Amount: amount(4000000), Status: models.MilestoneStatusEscrowPaid},
				{Amount: amount(3000000), Status: models.MilestoneStatusPending},
			},
		}

		ledger := models.ComputeEscrowLedger(quote)
		assert.True(t, ledger.TotalCommitted.Equal(amount(10000000)))
		assert.True(t, ledger.TotalReleased.Equal(amount(3000000)))
		assert.True(t, ledger.TotalHeld.Equal(amount(4000000)))
		assert.True(t, ledger.TotalPending.Equal(amount(3000000)))
		assert.True(t, ledger.Conserves())
		assert.False(t, ledger.OverBudget)
	})

	t.Run("DisputedCountsAsHeld", func(t *testing.T) {
		quote := &models.Quote{
			TotalBudget: amount(5000000),
			Milestones: []models.Milestone{
				{Amount: amount(5000000), Status: models.MilestoneStatusDisputed},
			},
		}
		ledger := models.ComputeEscrowLedger(quote)
		assert.True(t, ledger.TotalHeld.Equal(amount(5000000)))
		assert.True(t, ledger.Conserves())
	})

	t.Run("ClawbackTracksReleasedThenRefunded", func(t *testing.T) {
		quote := &models.Quote{
			TotalBudget: amount(2000000),
			Milestones: []models.Milestone{
				{Amount: amount(2000000), Status: models.MilestoneStatusRefunded, ClawbackPending: utils.ToPtr(true)},
			},
		}
		ledger := models.ComputeEscrowLedger(quote)
		assert.True(t, ledger.TotalRefunded.Equal(amount(2000000)))
		assert.True(t, ledger.ClawbackPending.Equal(amount(2000000)))
		assert.True(t, ledger.Conserves())
	})

	t.Run("OverBudgetFlagged", func(t *testing.T) {
		quote := &models.Quote{
			TotalBudget: amount(1000000),
			Milestones: []models.Milestone{
				{Amount: amount(1500000), Status: models.MilestoneStatusPending},
			},
		}
		ledger := models.ComputeEscrowLedger(quote)
		assert.True(t, ledger.OverBudget)
		assert.True(t, quote.IsOverBudget())
	})
}

func TestCustomerSegment(t *testing.T) {
	t.Run("KnownTypesPassThrough", func(t *testing.T) {
		for _, ct := range models.ValidCustomerTypes {
			c := models.Customer{CustomerType: ct}
			assert.Equal(t, ct, c.Segment())
		}
	})

	t.Run("UnknownTypeFallsBackToRegular", func(t *testing.T) {
		c := models.Customer{CustomerType: "LEGACY"}
		assert.Equal(t, models.CustomerTypeRegular, c.Segment())
	})

	t.Run("CompanyFieldRequirement", func(t *testing.T) {
		wholesale := models.Customer{CustomerType: models.CustomerTypeWholesale}
		assert.True(t, wholesale.RequiresCompanyFields())

		regular := models.Customer{CustomerType: models.CustomerTypeRegular}
		assert.False(t, regular.RequiresCompanyFields())
	})
}

func TestQuoteHelpers(t *testing.T) {
	quote := &models.Quote{
		CustomerID:   7,
		ContractorID: 9,
		TotalBudget:  decimal.NewFromInt(1000000),
	}

	assert.True(t, quote.IsParty(7))
	assert.True(t, quote.IsParty(9))
	assert.False(t, quote.IsParty(11))

	quote.Milestones = []models.Milestone{
		{Amount: decimal.NewFromInt(600000)},
		{Amount: decimal.NewFromInt(400000)},
	}
	assert.True(t, quote.ScheduledTotal().Equal(decimal.NewFromInt(1000000)))
}

func TestFormatVND(t *testing.T) {
	cases := map[string]string{
		"0":        "0đ",
		"1500":     "1.500đ",
		"95000":    "95.000đ",
		"1500000":  "1.500.000đ",
		"10000000": "10.000.000đ",
		"-250000":  "-250.000đ",
	}
	for in, want := range cases {
		amount, err := decimal.NewFromString(in)
		require.NoError(t, err)
		assert.Equal(t, want, utils.FormatVND(amount))
	}
}
