// Package tests contains integration tests for quote acceptance and the escrow ledger
package tests

import (
	"context"
	"testing"

	"github.com/trungvq/vatlieu-marketplace/app/dto"
	"github.com/trungvq/vatlieu-marketplace/app/services"
	businessflow "github.com/trungvq/vatlieu-marketplace/business_flow"
	"github.com/trungvq/vatlieu-marketplace/models"
	"github.com/trungvq/vatlieu-marketplace/repository"
	testingutil "github.com/trungvq/vatlieu-marketplace/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQuoteFlow(testDB *testingutil.TestDB) businessflow.QuoteFlow {
	notificationService := services.NewNotificationService(
		services.NewMockSMSProvider(),
		services.NewMockEmailProvider(),
	)
	return businessflow.NewQuoteFlow(
		repository.NewQuoteRepository(testDB.DB),
		repository.NewMilestoneRepository(testDB.DB),
		repository.NewCustomerRepository(testDB.DB),
		repository.NewAuditLogRepository(testDB.DB),
		notificationService,
		testDB.DB,
	)
}

func newMilestoneFlow(testDB *testingutil.TestDB) businessflow.MilestoneFlow {
	notificationService := services.NewNotificationService(
		services.NewMockSMSProvider(),
		services.NewMockEmailProvider(),
	)
	return businessflow.NewMilestoneFlow(
		repository.NewMilestoneRepository(testDB.DB),
		repository.NewQuoteRepository(testDB.DB),
		repository.NewCustomerRepository(testDB.DB),
		repository.NewDisputeRepository(testDB.DB),
		repository.NewAdminRepository(testDB.DB),
		repository.NewAuditLogRepository(testDB.DB),
		notificationService,
		testDB.DB,
	)
}

func TestQuoteAcceptance(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		quoteFlow := newQuoteFlow(testDB)
		metadata := businessflow.NewClientMetadata("127.0.0.1", "Test User Agent")
		ctx := context.Background()

		t.Run("DefaultScheduleSplit", func(t *testing.T) {
			buyer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			contractor, err := fixtures.CreateTestCustomer(models.CustomerTypeContractor)
			require.NoError(t, err)
			quote, err := fixtures.CreateTestQuote(buyer.ID, contractor.ID, nil)
			require.NoError(t, err)

			// SENT quote with no schedule; budget fixed for the split check
			require.NoError(t, testDB.DB.Model(quote).Update("total_budget", 10000000).Error)

			resp, err := quoteFlow.AcceptQuote(ctx, &dto.AcceptQuoteRequest{
				QuoteUUID:  quote.UUID.String(),
				CustomerID: buyer.ID,
			}, metadata)
			require.NoError(t, err)

			assert.Equal(t, string(models.QuoteStatusAccepted), resp.Quote.Status)
			require.Len(t, resp.Quote.Milestones, 3)
			assert.Equal(t, "3000000.00", resp.Quote.Milestones[0].Amount)
			assert.Equal(t, "4000000.00", resp.Quote.Milestones[1].Amount)
			assert.Equal(t, "3000000.00", resp.Quote.Milestones[2].Amount)
			for i, m := range resp.Quote.Milestones {
				assert.Equal(t, i+1, m.Sequence)
				assert.Equal(t, string(models.MilestoneStatusPending), m.Status)
			}
		})

		t.Run("OverBudgetScheduleAcceptedAndFlagged", func(t *testing.T) {
			buyer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			contractor, err := fixtures.CreateTestCustomer(models.CustomerTypeContractor)
			require.NoError(t, err)
			quote, err := fixtures.CreateTestQuote(buyer.ID, contractor.ID, nil)
			require.NoError(t, err)
			require.NoError(t, testDB.DB.Model(quote).Update("total_budget", 5000000).Error)

			// The schedule exceeds the budget; acceptance still goes through
			// and the ledger flags the overrun.
			resp, err := quoteFlow.AcceptQuote(ctx, &dto.AcceptQuoteRequest{
				QuoteUUID:  quote.UUID.String(),
				CustomerID: buyer.ID,
				Milestones: []dto.ScheduleItemRequest{
					{Name: "Tạm ứng", Amount: "3000000"},
					{Name: "Nghiệm thu", Amount: "4000000"},
				},
			}, metadata)
			require.NoError(t, err)
			require.Len(t, resp.Quote.Milestones, 2)

			ledgerResp, err := quoteFlow.GetEscrowLedger(ctx, &dto.GetEscrowLedgerRequest{
				QuoteUUID:  quote.UUID.String(),
				CustomerID: buyer.ID,
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, "7000000.00", ledgerResp.Ledger.TotalCommitted)
			assert.True(t, ledgerResp.Ledger.OverBudget)
		})

		t.Run("OnlyBuyerMayAccept", func(t *testing.T) {
			buyer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			contractor, err := fixtures.CreateTestCustomer(models.CustomerTypeContractor)
			require.NoError(t, err)
			quote, err := fixtures.CreateTestQuote(buyer.ID, contractor.ID, nil)
			require.NoError(t, err)

			_, err = quoteFlow.AcceptQuote(ctx, &dto.AcceptQuoteRequest{
				QuoteUUID:  quote.UUID.String(),
				CustomerID: contractor.ID,
			}, metadata)
			require.Error(t, err)
			assert.Equal(t, businessflow.CodeForbidden, businessflow.ErrorCode(err))
		})

		t.Run("AcceptedQuoteCannotBeAcceptedAgain", func(t *testing.T) {
			buyer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			contractor, err := fixtures.CreateTestCustomer(models.CustomerTypeContractor)
			require.NoError(t, err)
			quote, err := fixtures.CreateTestQuote(buyer.ID, contractor.ID, []int64{3000000, 2000000})
			require.NoError(t, err)

			_, err = quoteFlow.AcceptQuote(ctx, &dto.AcceptQuoteRequest{
				QuoteUUID:  quote.UUID.String(),
				CustomerID: buyer.ID,
			}, metadata)
			require.Error(t, err)
			assert.Equal(t, businessflow.CodeInvalidOperation, businessflow.ErrorCode(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestEscrowLedger(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		quoteFlow := newQuoteFlow(testDB)
		milestoneFlow := newMilestoneFlow(testDB)
		metadata := businessflow.NewClientMetadata("127.0.0.1", "Test User Agent")
		ctx := context.Background()

		t.Run("LedgerFollowsMilestoneLifecycle", func(t *testing.T) {
			buyer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			contractor, err := fixtures.CreateTestCustomer(models.CustomerTypeContractor)
			require.NoError(t, err)
			quote, err := fixtures.CreateTestQuote(buyer.ID, contractor.ID, []int64{3000000, 4000000, 3000000})
			require.NoError(t, err)

			// Everything starts pending
			ledger, err := quoteFlow.GetEscrowLedger(ctx, &dto.GetEscrowLedgerRequest{
				QuoteUUID:  quote.UUID.String(),
				CustomerID: buyer.ID,
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, "10000000.00", ledger.Ledger.TotalCommitted)
			assert.Equal(t, "10000000.00", ledger.Ledger.Pending)
			assert.Equal(t, "0.00", ledger.Ledger.Held)

			// Fund the first milestone, release it, then fund the second
			first := quote.Milestones[0]
			second := quote.Milestones[1]

			_, err = milestoneFlow.PayMilestone(ctx, &dto.PayMilestoneRequest{
				MilestoneUUID: first.UUID.String(),
				CustomerID:    buyer.ID,
			}, metadata)
			require.NoError(t, err)

			_, err = milestoneFlow.ReleaseMilestone(ctx, &dto.ReleaseMilestoneRequest{
				MilestoneUUID: first.UUID.String(),
				CustomerID:    buyer.ID,
			}, metadata)
			require.NoError(t, err)

			_, err = milestoneFlow.PayMilestone(ctx, &dto.PayMilestoneRequest{
				MilestoneUUID: second.UUID.String(),
				CustomerID:    buyer.ID,
			}, metadata)
			require.NoError(t, err)

			ledger, err = quoteFlow.GetEscrowLedger(ctx, &dto.GetEscrowLedgerRequest{
				QuoteUUID:  quote.UUID.String(),
				CustomerID: buyer.ID,
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, "10000000.00", ledger.Ledger.TotalCommitted)
			assert.Equal(t, "3000000.00", ledger.Ledger.Released)
			assert.Equal(t, "4000000.00", ledger.Ledger.Held)
			assert.Equal(t, "3000000.00", ledger.Ledger.Pending)
			assert.Equal(t, "0.00", ledger.Ledger.Refunded)
		})

		t.Run("OnlyPartiesMayReadTheLedger", func(t *testing.T) {
			buyer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			contractor, err := fixtures.CreateTestCustomer(models.CustomerTypeContractor)
			require.NoError(t, err)
			stranger, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			quote, err := fixtures.CreateTestQuote(buyer.ID, contractor.ID, []int64{1000000})
			require.NoError(t, err)

			_, err = quoteFlow.GetEscrowLedger(ctx, &dto.GetEscrowLedgerRequest{
				QuoteUUID:  quote.UUID.String(),
				CustomerID: stranger.ID,
			}, metadata)
			require.Error(t, err)
			assert.Equal(t, businessflow.CodeForbidden, businessflow.ErrorCode(err))

			// The contractor may read it
			_, err = quoteFlow.GetEscrowLedger(ctx, &dto.GetEscrowLedgerRequest{
				QuoteUUID:  quote.UUID.String(),
				CustomerID: contractor.ID,
			}, metadata)
			require.NoError(t, err)
		})

		return nil
	})
	require.NoError(t, err)
}
