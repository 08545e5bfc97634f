// Package tests contains integration tests for the milestone settlement state machine
package tests

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/trungvq/vatlieu-marketplace/app/dto"
	businessflow "github.com/trungvq/vatlieu-marketplace/business_flow"
	"github.com/trungvq/vatlieu-marketplace/models"
	testingutil "github.com/trungvq/vatlieu-marketplace/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMilestonePayment(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		milestoneFlow := newMilestoneFlow(testDB)
		metadata := businessflow.NewClientMetadata("127.0.0.1", "Test User Agent")
		ctx := context.Background()

		t.Run("BuyerFundsPendingMilestone", func(t *testing.T) {
			buyer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			contractor, err := fixtures.CreateTestCustomer(models.CustomerTypeContractor)
			require.NoError(t, err)
			quote, err := fixtures.CreateTestQuote(buyer.ID, contractor.ID, []int64{3000000})
			require.NoError(t, err)
			milestone := quote.Milestones[0]

			resp, err := milestoneFlow.PayMilestone(ctx, &dto.PayMilestoneRequest{
				MilestoneUUID: milestone.UUID.String(),
				CustomerID:    buyer.ID,
				PaymentRef:    "VNPAY-20260901-001",
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, string(models.MilestoneStatusEscrowPaid), resp.Milestone.Status)
			assert.NotNil(t, resp.Milestone.PaidAt)
		})

		t.Run("ContractorMayNotFund", func(t *testing.T) {
			buyer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			contractor, err := fixtures.CreateTestCustomer(models.CustomerTypeContractor)
			require.NoError(t, err)
			quote, err := fixtures.CreateTestQuote(buyer.ID, contractor.ID, []int64{3000000})
			require.NoError(t, err)

			_, err = milestoneFlow.PayMilestone(ctx, &dto.PayMilestoneRequest{
				MilestoneUUID: quote.Milestones[0].UUID.String(),
				CustomerID:    contractor.ID,
			}, metadata)
			require.Error(t, err)
			assert.Equal(t, businessflow.CodeForbidden, businessflow.ErrorCode(err))
		})

		t.Run("DoublePaymentRejected", func(t *testing.T) {
			buyer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			contractor, err := fixtures.CreateTestCustomer(models.CustomerTypeContractor)
			require.NoError(t, err)
			quote, err := fixtures.CreateTestQuote(buyer.ID, contractor.ID, []int64{3000000})
			require.NoError(t, err)
			milestone := quote.Milestones[0]

			_, err = milestoneFlow.PayMilestone(ctx, &dto.PayMilestoneRequest{
				MilestoneUUID: milestone.UUID.String(),
				CustomerID:    buyer.ID,
			}, metadata)
			require.NoError(t, err)

			_, err = milestoneFlow.PayMilestone(ctx, &dto.PayMilestoneRequest{
				MilestoneUUID: milestone.UUID.String(),
				CustomerID:    buyer.ID,
			}, metadata)
			require.Error(t, err)
			assert.Equal(t, businessflow.CodeInvalidOperation, businessflow.ErrorCode(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestMilestoneRelease(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		milestoneFlow := newMilestoneFlow(testDB)
		metadata := businessflow.NewClientMetadata("127.0.0.1", "Test User Agent")
		ctx := context.Background()

		t.Run("BuyerReleasesHeldFunds", func(t *testing.T) {
			buyer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			contractor, err := fixtures.CreateTestCustomer(models.CustomerTypeContractor)
			require.NoError(t, err)
			quote, err := fixtures.CreateTestQuote(buyer.ID, contractor.ID, []int64{3000000})
			require.NoError(t, err)
			milestone := quote.Milestones[0]
			require.NoError(t, fixtures.SetMilestoneStatus(milestone.ID, models.MilestoneStatusEscrowPaid))

			resp, err := milestoneFlow.ReleaseMilestone(ctx, &dto.ReleaseMilestoneRequest{
				MilestoneUUID: milestone.UUID.String(),
				CustomerID:    buyer.ID,
				Reason:        "Hoàn thành hạng mục đúng tiến độ",
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, string(models.MilestoneStatusReleased), resp.Milestone.Status)
			assert.NotNil(t, resp.Milestone.ReleasedAt)
		})

		t.Run("PendingMilestoneCannotBeReleased", func(t *testing.T) {
			buyer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			contractor, err := fixtures.CreateTestCustomer(models.CustomerTypeContractor)
			require.NoError(t, err)
			quote, err := fixtures.CreateTestQuote(buyer.ID, contractor.ID, []int64{3000000})
			require.NoError(t, err)

			_, err = milestoneFlow.ReleaseMilestone(ctx, &dto.ReleaseMilestoneRequest{
				MilestoneUUID: quote.Milestones[0].UUID.String(),
				CustomerID:    buyer.ID,
			}, metadata)
			require.Error(t, err)
			assert.Equal(t, businessflow.CodeInvalidOperation, businessflow.ErrorCode(err))
		})

		t.Run("ContractorMayNotRelease", func(t *testing.T) {
			buyer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			contractor, err := fixtures.CreateTestCustomer(models.CustomerTypeContractor)
			require.NoError(t, err)
			quote, err := fixtures.CreateTestQuote(buyer.ID, contractor.ID, []int64{3000000})
			require.NoError(t, err)
			milestone := quote.Milestones[0]
			require.NoError(t, fixtures.SetMilestoneStatus(milestone.ID, models.MilestoneStatusEscrowPaid))

			_, err = milestoneFlow.ReleaseMilestone(ctx, &dto.ReleaseMilestoneRequest{
				MilestoneUUID: milestone.UUID.String(),
				CustomerID:    contractor.ID,
			}, metadata)
			require.Error(t, err)
			assert.Equal(t, businessflow.CodeForbidden, businessflow.ErrorCode(err))
		})

		t.Run("ConcurrentReleaseHasExactlyOneWinner", func(t *testing.T) {
			buyer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			contractor, err := fixtures.CreateTestCustomer(models.CustomerTypeContractor)
			require.NoError(t, err)
			quote, err := fixtures.CreateTestQuote(buyer.ID, contractor.ID, []int64{3000000})
			require.NoError(t, err)
			milestone := quote.Milestones[0]
			require.NoError(t, fixtures.SetMilestoneStatus(milestone.ID, models.MilestoneStatusEscrowPaid))

			req := &dto.ReleaseMilestoneRequest{
				MilestoneUUID: milestone.UUID.String(),
				CustomerID:    buyer.ID,
				Reason:        "Giải ngân song song",
			}

			results := make([]error, 2)
			var wg sync.WaitGroup
			for i := range results {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, results[i] = milestoneFlow.ReleaseMilestone(ctx, req, metadata)
				}(i)
			}
			wg.Wait()

			var wins, losses int
			for _, err := range results {
				if err == nil {
					wins++
				} else {
					losses++
					assert.Equal(t, businessflow.CodeInvalidOperation, businessflow.ErrorCode(err))
				}
			}
			assert.Equal(t, 1, wins, "exactly one caller may release the milestone")
			assert.Equal(t, 1, losses)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestMilestoneRefund(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		milestoneFlow := newMilestoneFlow(testDB)
		metadata := businessflow.NewClientMetadata("127.0.0.1", "Test User Agent")
		ctx := context.Background()

		t.Run("AdminRefundsHeldFunds", func(t *testing.T) {
			buyer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			contractor, err := fixtures.CreateTestCustomer(models.CustomerTypeContractor)
			require.NoError(t, err)
			admin, err := fixtures.CreateTestAdmin()
			require.NoError(t, err)
			quote, err := fixtures.CreateTestQuote(buyer.ID, contractor.ID, []int64{3000000})
			require.NoError(t, err)
			milestone := quote.Milestones[0]
			require.NoError(t, fixtures.SetMilestoneStatus(milestone.ID, models.MilestoneStatusEscrowPaid))

			resp, err := milestoneFlow.RefundMilestone(ctx, &dto.RefundMilestoneRequest{
				MilestoneUUID: milestone.UUID.String(),
				AdminID:       admin.ID,
				Reason:        "Nhà thầu không thi công",
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, string(models.MilestoneStatusRefunded), resp.Milestone.Status)
			assert.False(t, resp.Milestone.ClawbackPending)
			assert.NotNil(t, resp.Milestone.RefundedAt)
		})

		t.Run("RefundWithoutActorRejected", func(t *testing.T) {
			buyer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			contractor, err := fixtures.CreateTestCustomer(models.CustomerTypeContractor)
			require.NoError(t, err)
			quote, err := fixtures.CreateTestQuote(buyer.ID, contractor.ID, []int64{3000000})
			require.NoError(t, err)
			milestone := quote.Milestones[0]
			require.NoError(t, fixtures.SetMilestoneStatus(milestone.ID, models.MilestoneStatusEscrowPaid))

			_, err = milestoneFlow.RefundMilestone(ctx, &dto.RefundMilestoneRequest{
				MilestoneUUID: milestone.UUID.String(),
				Reason:        "Khách yêu cầu hoàn tiền",
			}, metadata)
			require.Error(t, err)
			assert.Equal(t, businessflow.CodeForbidden, businessflow.ErrorCode(err))
			assert.True(t, errors.Is(err, businessflow.ErrAdminRequired))
		})

		t.Run("BuyerCancelsOwnHeldMilestone", func(t *testing.T) {
			buyer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			contractor, err := fixtures.CreateTestCustomer(models.CustomerTypeContractor)
			require.NoError(t, err)
			quote, err := fixtures.CreateTestQuote(buyer.ID, contractor.ID, []int64{3000000})
			require.NoError(t, err)
			milestone := quote.Milestones[0]
			require.NoError(t, fixtures.SetMilestoneStatus(milestone.ID, models.MilestoneStatusEscrowPaid))

			resp, err := milestoneFlow.RefundMilestone(ctx, &dto.RefundMilestoneRequest{
				MilestoneUUID: milestone.UUID.String(),
				CustomerID:    buyer.ID,
				Reason:        "Khách hủy đơn trước khi thi công",
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, string(models.MilestoneStatusRefunded), resp.Milestone.Status)
			assert.False(t, resp.Milestone.ClawbackPending)
		})

		t.Run("ContractorCannotCancelMilestone", func(t *testing.T) {
			buyer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			contractor, err := fixtures.CreateTestCustomer(models.CustomerTypeContractor)
			require.NoError(t, err)
			quote, err := fixtures.CreateTestQuote(buyer.ID, contractor.ID, []int64{3000000})
			require.NoError(t, err)
			milestone := quote.Milestones[0]
			require.NoError(t, fixtures.SetMilestoneStatus(milestone.ID, models.MilestoneStatusEscrowPaid))

			_, err = milestoneFlow.RefundMilestone(ctx, &dto.RefundMilestoneRequest{
				MilestoneUUID: milestone.UUID.String(),
				CustomerID:    contractor.ID,
				Reason:        "Nhà thầu đòi hoàn tiền",
			}, metadata)
			require.Error(t, err)
			assert.Equal(t, businessflow.CodeForbidden, businessflow.ErrorCode(err))
			assert.True(t, errors.Is(err, businessflow.ErrOnlyBuyerMayRefund))
		})

		t.Run("ReleasedMilestoneCannotBeRefundedDirectly", func(t *testing.T) {
			buyer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			contractor, err := fixtures.CreateTestCustomer(models.CustomerTypeContractor)
			require.NoError(t, err)
			admin, err := fixtures.CreateTestAdmin()
			require.NoError(t, err)
			quote, err := fixtures.CreateTestQuote(buyer.ID, contractor.ID, []int64{3000000})
			require.NoError(t, err)
			milestone := quote.Milestones[0]
			require.NoError(t, fixtures.SetMilestoneStatus(milestone.ID, models.MilestoneStatusReleased))

			// Released funds only come back through dispute resolution.
			_, err = milestoneFlow.RefundMilestone(ctx, &dto.RefundMilestoneRequest{
				MilestoneUUID: milestone.UUID.String(),
				AdminID:       admin.ID,
				Reason:        "Hoàn tiền sau giải ngân",
			}, metadata)
			require.Error(t, err)
			assert.Equal(t, businessflow.CodeInvalidOperation, businessflow.ErrorCode(err))

			reloaded, err := fixtures.GetMilestoneByID(milestone.ID)
			require.NoError(t, err)
			assert.Equal(t, models.MilestoneStatusReleased, reloaded.Status)
		})

		t.Run("RefundedMilestoneIsTerminal", func(t *testing.T) {
			buyer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			contractor, err := fixtures.CreateTestCustomer(models.CustomerTypeContractor)
			require.NoError(t, err)
			admin, err := fixtures.CreateTestAdmin()
			require.NoError(t, err)
			quote, err := fixtures.CreateTestQuote(buyer.ID, contractor.ID, []int64{3000000})
			require.NoError(t, err)
			milestone := quote.Milestones[0]
			require.NoError(t, fixtures.SetMilestoneStatus(milestone.ID, models.MilestoneStatusRefunded))

			_, err = milestoneFlow.RefundMilestone(ctx, &dto.RefundMilestoneRequest{
				MilestoneUUID: milestone.UUID.String(),
				AdminID:       admin.ID,
				Reason:        "Hoàn tiền lần hai",
			}, metadata)
			require.Error(t, err)
			assert.Equal(t, businessflow.CodeInvalidOperation, businessflow.ErrorCode(err))

			_, err = milestoneFlow.PayMilestone(ctx, &dto.PayMilestoneRequest{
				MilestoneUUID: milestone.UUID.String(),
				CustomerID:    buyer.ID,
			}, metadata)
			require.Error(t, err)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestGetMilestone(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		milestoneFlow := newMilestoneFlow(testDB)
		metadata := businessflow.NewClientMetadata("127.0.0.1", "Test User Agent")
		ctx := context.Background()

		buyer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
		require.NoError(t, err)
		contractor, err := fixtures.CreateTestCustomer(models.CustomerTypeContractor)
		require.NoError(t, err)
		stranger, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
		require.NoError(t, err)
		quote, err := fixtures.CreateTestQuote(buyer.ID, contractor.ID, []int64{3000000})
		require.NoError(t, err)
		milestone := quote.Milestones[0]

		t.Run("PartiesMayRead", func(t *testing.T) {
			for _, party := range []uint{buyer.ID, contractor.ID} {
				resp, err := milestoneFlow.GetMilestone(ctx, &dto.GetMilestoneRequest{
					MilestoneUUID: milestone.UUID.String(),
					CustomerID:    party,
				}, metadata)
				require.NoError(t, err)
				assert.Equal(t, milestone.UUID.String(), resp.Milestone.UUID)
			}
		})

		t.Run("StrangersMayNot", func(t *testing.T) {
			_, err := milestoneFlow.GetMilestone(ctx, &dto.GetMilestoneRequest{
				MilestoneUUID: milestone.UUID.String(),
				CustomerID:    stranger.ID,
			}, metadata)
			require.Error(t, err)
			assert.Equal(t, businessflow.CodeForbidden, businessflow.ErrorCode(err))
		})

		return nil
	})
	require.NoError(t, err)
}
