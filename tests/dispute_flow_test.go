// Package tests contains integration tests for the dispute resolution overlay
package tests

import (
	"context"
	"testing"
	"time"

	"github.com/trungvq/vatlieu-marketplace/app/dto"
	"github.com/trungvq/vatlieu-marketplace/app/services"
	businessflow "github.com/trungvq/vatlieu-marketplace/business_flow"
	"github.com/trungvq/vatlieu-marketplace/models"
	"github.com/trungvq/vatlieu-marketplace/repository"
	testingutil "github.com/trungvq/vatlieu-marketplace/testing"
	"github.com/trungvq/vatlieu-marketplace/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDisputeFlow(testDB *testingutil.TestDB) businessflow.DisputeFlow {
	notificationService := services.NewNotificationService(
		services.NewMockSMSProvider(),
		services.NewMockEmailProvider(),
	)
	return businessflow.NewDisputeFlow(
		repository.NewDisputeRepository(testDB.DB),
		repository.NewMilestoneRepository(testDB.DB),
		repository.NewQuoteRepository(testDB.DB),
		repository.NewCustomerRepository(testDB.DB),
		repository.NewAdminRepository(testDB.DB),
		repository.NewAuditLogRepository(testDB.DB),
		notificationService,
		testDB.DB,
	)
}

func TestOpenDispute(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		disputeFlow := newDisputeFlow(testDB)
		metadata := businessflow.NewClientMetadata("127.0.0.1", "Test User Agent")
		ctx := context.Background()

		t.Run("DisputingHeldMilestoneFreezesIt", func(t *testing.T) {
			buyer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			contractor, err := fixtures.CreateTestCustomer(models.CustomerTypeContractor)
			require.NoError(t, err)
			quote, err := fixtures.CreateTestQuote(buyer.ID, contractor.ID, []int64{3000000})
			require.NoError(t, err)
			milestone := quote.Milestones[0]
			require.NoError(t, fixtures.SetMilestoneStatus(milestone.ID, models.MilestoneStatusEscrowPaid))

			resp, err := disputeFlow.OpenDispute(ctx, &dto.OpenDisputeRequest{
				MilestoneUUID: milestone.UUID.String(),
				CustomerID:    buyer.ID,
				Reason:        "Vật liệu giao không đúng chủng loại đã báo giá",
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, string(models.DisputeStatusOpen), resp.Dispute.Status)

			var frozen models.Milestone
			require.NoError(t, testDB.DB.First(&frozen, milestone.ID).Error)
			assert.Equal(t, models.MilestoneStatusDisputed, frozen.Status)
		})

		t.Run("SecondDisputeOnSameMilestoneRejected", func(t *testing.T) {
			buyer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			contractor, err := fixtures.CreateTestCustomer(models.CustomerTypeContractor)
			require.NoError(t, err)
			quote, err := fixtures.CreateTestQuote(buyer.ID, contractor.ID, []int64{3000000})
			require.NoError(t, err)
			milestone := quote.Milestones[0]
			require.NoError(t, fixtures.SetMilestoneStatus(milestone.ID, models.MilestoneStatusEscrowPaid))

			_, err = disputeFlow.OpenDispute(ctx, &dto.OpenDisputeRequest{
				MilestoneUUID: milestone.UUID.String(),
				CustomerID:    buyer.ID,
				Reason:        "Vật liệu giao không đúng chủng loại đã báo giá",
			}, metadata)
			require.NoError(t, err)

			_, err = disputeFlow.OpenDispute(ctx, &dto.OpenDisputeRequest{
				MilestoneUUID: milestone.UUID.String(),
				CustomerID:    contractor.ID,
				Reason:        "Khách hàng từ chối nghiệm thu không lý do",
			}, metadata)
			require.Error(t, err)
			assert.Equal(t, businessflow.CodeConflict, businessflow.ErrorCode(err))
		})

		t.Run("ReleasedMilestoneDisputableWithinGraceWindow", func(t *testing.T) {
			buyer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			contractor, err := fixtures.CreateTestCustomer(models.CustomerTypeContractor)
			require.NoError(t, err)
			quote, err := fixtures.CreateTestQuote(buyer.ID, contractor.ID, []int64{3000000})
			require.NoError(t, err)
			milestone := quote.Milestones[0]
			require.NoError(t, fixtures.SetMilestoneStatus(milestone.ID, models.MilestoneStatusReleased))

			resp, err := disputeFlow.OpenDispute(ctx, &dto.OpenDisputeRequest{
				MilestoneUUID: milestone.UUID.String(),
				CustomerID:    buyer.ID,
				Reason:        "Phát hiện lỗi thi công ngay sau khi giải ngân",
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, string(models.DisputeStatusOpen), resp.Dispute.Status)
		})

		t.Run("GraceWindowExpiryRejected", func(t *testing.T) {
			buyer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			contractor, err := fixtures.CreateTestCustomer(models.CustomerTypeContractor)
			require.NoError(t, err)
			quote, err := fixtures.CreateTestQuote(buyer.ID, contractor.ID, []int64{3000000})
			require.NoError(t, err)
			milestone := quote.Milestones[0]

			stale := time.Now().UTC().Add(-utils.ReleaseDisputeGraceWindow - time.Hour)
			require.NoError(t, testDB.DB.Model(&models.Milestone{}).Where("id = ?", milestone.ID).Updates(map[string]any{
				"status":      models.MilestoneStatusReleased,
				"paid_at":     stale,
				"released_at": stale,
			}).Error)

			_, err = disputeFlow.OpenDispute(ctx, &dto.OpenDisputeRequest{
				MilestoneUUID: milestone.UUID.String(),
				CustomerID:    buyer.ID,
				Reason:        "Khiếu nại muộn sau khi giải ngân nhiều ngày",
			}, metadata)
			require.Error(t, err)
			assert.Equal(t, businessflow.CodeInvalidOperation, businessflow.ErrorCode(err))
			assert.True(t, businessflow.IsDisputeWindowClosed(err))
		})

		t.Run("PendingMilestoneNotDisputable", func(t *testing.T) {
			buyer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			contractor, err := fixtures.CreateTestCustomer(models.CustomerTypeContractor)
			require.NoError(t, err)
			quote, err := fixtures.CreateTestQuote(buyer.ID, contractor.ID, []int64{3000000})
			require.NoError(t, err)

			_, err = disputeFlow.OpenDispute(ctx, &dto.OpenDisputeRequest{
				MilestoneUUID: quote.Milestones[0].UUID.String(),
				CustomerID:    buyer.ID,
				Reason:        "Chưa thanh toán nhưng vẫn muốn khiếu nại",
			}, metadata)
			require.Error(t, err)
			assert.Equal(t, businessflow.CodeInvalidOperation, businessflow.ErrorCode(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestResolveDispute(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		disputeFlow := newDisputeFlow(testDB)
		metadata := businessflow.NewClientMetadata("127.0.0.1", "Test User Agent")
		ctx := context.Background()

		setupDisputed := func(t *testing.T) (*models.Quote, models.Milestone, *models.Dispute, uint) {
			buyer, err := fixtures.CreateTestCustomer(models.CustomerTypeRegular)
			require.NoError(t, err)
			contractor, err := fixtures.CreateTestCustomer(models.CustomerTypeContractor)
			require.NoError(t, err)
			quote, err := fixtures.CreateTestQuote(buyer.ID, contractor.ID, []int64{3000000})
			require.NoError(t, err)
			milestone := quote.Milestones[0]
			require.NoError(t, fixtures.SetMilestoneStatus(milestone.ID, models.MilestoneStatusEscrowPaid))

			resp, err := disputeFlow.OpenDispute(ctx, &dto.OpenDisputeRequest{
				MilestoneUUID: milestone.UUID.String(),
				CustomerID:    buyer.ID,
				Reason:        "Vật liệu giao không đúng chủng loại đã báo giá",
			}, metadata)
			require.NoError(t, err)

			var dispute models.Dispute
			require.NoError(t, testDB.DB.Where("uuid = ?", resp.Dispute.UUID).First(&dispute).Error)
			return quote, milestone, &dispute, buyer.ID
		}

		t.Run("ResolveReleasedPaysContractor", func(t *testing.T) {
			_, milestone, dispute, _ := setupDisputed(t)
			admin, err := fixtures.CreateTestAdmin()
			require.NoError(t, err)

			resp, err := disputeFlow.ResolveDispute(ctx, &dto.ResolveDisputeRequest{
				DisputeUUID:     dispute.UUID.String(),
				AdminID:         admin.ID,
				Outcome:         string(models.DisputeOutcomeReleased),
				ResolutionNotes: "Biên bản nghiệm thu hợp lệ, giải ngân cho nhà thầu",
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, string(models.DisputeStatusResolved), resp.Dispute.Status)

			var settled models.Milestone
			require.NoError(t, testDB.DB.First(&settled, milestone.ID).Error)
			assert.Equal(t, models.MilestoneStatusReleased, settled.Status)
			assert.NotNil(t, settled.ReleasedAt)
		})

		t.Run("ResolveRefundedReturnsFundsToBuyer", func(t *testing.T) {
			_, milestone, dispute, _ := setupDisputed(t)
			admin, err := fixtures.CreateTestAdmin()
			require.NoError(t, err)

			_, err = disputeFlow.ResolveDispute(ctx, &dto.ResolveDisputeRequest{
				DisputeUUID:     dispute.UUID.String(),
				AdminID:         admin.ID,
				Outcome:         string(models.DisputeOutcomeRefunded),
				ResolutionNotes: "Nhà thầu thừa nhận giao sai vật liệu, hoàn tiền",
			}, metadata)
			require.NoError(t, err)

			var settled models.Milestone
			require.NoError(t, testDB.DB.First(&settled, milestone.ID).Error)
			assert.Equal(t, models.MilestoneStatusRefunded, settled.Status)
			assert.False(t, utils.IsTrue(settled.ClawbackPending), "no clawback when funds were never released")
		})

		t.Run("RefundAfterReleaseMarksClawback", func(t *testing.T) {
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

			// Dispute the release within the grace window, then rule for the
			// buyer. Funds already left escrow, so the refund carries the
			// manual clawback flag.
			_, err = disputeFlow.OpenDispute(ctx, &dto.OpenDisputeRequest{
				MilestoneUUID: milestone.UUID.String(),
				CustomerID:    buyer.ID,
				Reason:        "Giải ngân nhầm, vật liệu chưa giao đủ",
			}, metadata)
			require.NoError(t, err)

			var dispute models.Dispute
			require.NoError(t, testDB.DB.Where("milestone_id = ?", milestone.ID).First(&dispute).Error)

			_, err = disputeFlow.ResolveDispute(ctx, &dto.ResolveDisputeRequest{
				DisputeUUID:     dispute.UUID.String(),
				AdminID:         admin.ID,
				Outcome:         string(models.DisputeOutcomeRefunded),
				ResolutionNotes: "Hoàn tiền cho khách, thu hồi từ nhà thầu",
			}, metadata)
			require.NoError(t, err)

			var settled models.Milestone
			require.NoError(t, testDB.DB.First(&settled, milestone.ID).Error)
			assert.Equal(t, models.MilestoneStatusRefunded, settled.Status)
			assert.True(t, utils.IsTrue(settled.ClawbackPending), "released funds await recovery from the contractor")
		})

		t.Run("ResolutionRequiresAdmin", func(t *testing.T) {
			_, _, dispute, _ := setupDisputed(t)

			_, err := disputeFlow.ResolveDispute(ctx, &dto.ResolveDisputeRequest{
				DisputeUUID:     dispute.UUID.String(),
				AdminID:         0,
				Outcome:         string(models.DisputeOutcomeReleased),
				ResolutionNotes: "Tự ý giải quyết tranh chấp",
			}, metadata)
			require.Error(t, err)
			assert.Equal(t, businessflow.CodeForbidden, businessflow.ErrorCode(err))
		})

		t.Run("ResolvedDisputeCannotBeResolvedAgain", func(t *testing.T) {
			_, _, dispute, _ := setupDisputed(t)
			admin, err := fixtures.CreateTestAdmin()
			require.NoError(t, err)

			req := &dto.ResolveDisputeRequest{
				DisputeUUID:     dispute.UUID.String(),
				AdminID:         admin.ID,
				Outcome:         string(models.DisputeOutcomeReleased),
				ResolutionNotes: "Giải quyết lần thứ nhất, giải ngân",
			}
			_, err = disputeFlow.ResolveDispute(ctx, req, metadata)
			require.NoError(t, err)

			_, err = disputeFlow.ResolveDispute(ctx, req, metadata)
			require.Error(t, err)
			assert.Equal(t, businessflow.CodeInvalidOperation, businessflow.ErrorCode(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestDisputeThread(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		disputeFlow := newDisputeFlow(testDB)
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
		require.NoError(t, fixtures.SetMilestoneStatus(milestone.ID, models.MilestoneStatusEscrowPaid))

		opened, err := disputeFlow.OpenDispute(ctx, &dto.OpenDisputeRequest{
			MilestoneUUID: milestone.UUID.String(),
			CustomerID:    buyer.ID,
			Reason:        "Vật liệu giao không đúng chủng loại đã báo giá",
		}, metadata)
		require.NoError(t, err)
		disputeUUID := opened.Dispute.UUID

		t.Run("OpenerCommentKeepsStatusOpen", func(t *testing.T) {
			_, err := disputeFlow.AddComment(ctx, &dto.AddDisputeCommentRequest{
				DisputeUUID: disputeUUID,
				AuthorID:    buyer.ID,
				Body:        "Đính kèm thêm hình ảnh vật liệu sai chủng loại.",
			}, metadata)
			require.NoError(t, err)

			var dispute models.Dispute
			require.NoError(t, testDB.DB.Where("uuid = ?", disputeUUID).First(&dispute).Error)
			assert.Equal(t, models.DisputeStatusOpen, dispute.Status)
		})

		t.Run("CounterpartyCommentAdvancesToInProgress", func(t *testing.T) {
			_, err := disputeFlow.AddComment(ctx, &dto.AddDisputeCommentRequest{
				DisputeUUID: disputeUUID,
				AuthorID:    contractor.ID,
				Body:        "Vật liệu giao đúng theo hợp đồng đã ký.",
			}, metadata)
			require.NoError(t, err)

			var dispute models.Dispute
			require.NoError(t, testDB.DB.Where("uuid = ?", disputeUUID).First(&dispute).Error)
			assert.Equal(t, models.DisputeStatusInProgress, dispute.Status)
		})

		t.Run("StrangerMayNotComment", func(t *testing.T) {
			_, err := disputeFlow.AddComment(ctx, &dto.AddDisputeCommentRequest{
				DisputeUUID: disputeUUID,
				AuthorID:    stranger.ID,
				Body:        "Cho tôi tham gia với.",
			}, metadata)
			require.Error(t, err)
			assert.Equal(t, businessflow.CodeForbidden, businessflow.ErrorCode(err))
		})

		t.Run("EvidenceAttachment", func(t *testing.T) {
			resp, err := disputeFlow.AddEvidence(ctx, &dto.AddDisputeEvidenceRequest{
				DisputeUUID: disputeUUID,
				UploaderID:  buyer.ID,
				FileURL:     "https://files.vatlieu.vn/disputes/photo-001.jpg",
				Description: "Ảnh chụp lô xi măng sai nhãn hiệu",
			}, metadata)
			require.NoError(t, err)
			assert.NotZero(t, resp.Evidence.ID)
		})

		t.Run("ThreadVisibleToPartiesAndAdmin", func(t *testing.T) {
			resp, err := disputeFlow.GetDispute(ctx, &dto.GetDisputeRequest{
				DisputeUUID: disputeUUID,
				CustomerID:  contractor.ID,
			}, metadata)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, len(resp.Dispute.Comments), 2)
			assert.Len(t, resp.Dispute.Evidence, 1)

			adminView, err := disputeFlow.GetDispute(ctx, &dto.GetDisputeRequest{
				DisputeUUID: disputeUUID,
				IsAdmin:     true,
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, resp.Dispute.UUID, adminView.Dispute.UUID)

			_, err = disputeFlow.GetDispute(ctx, &dto.GetDisputeRequest{
				DisputeUUID: disputeUUID,
				CustomerID:  stranger.ID,
			}, metadata)
			require.Error(t, err)
			assert.Equal(t, businessflow.CodeForbidden, businessflow.ErrorCode(err))
		})

		t.Run("ResolvedThreadIsClosed", func(t *testing.T) {
			admin, err := fixtures.CreateTestAdmin()
			require.NoError(t, err)

			_, err = disputeFlow.ResolveDispute(ctx, &dto.ResolveDisputeRequest{
				DisputeUUID:     disputeUUID,
				AdminID:         admin.ID,
				Outcome:         string(models.DisputeOutcomeRefunded),
				ResolutionNotes: "Hoàn tiền cho khách sau khi xem xét chứng cứ",
			}, metadata)
			require.NoError(t, err)

			_, err = disputeFlow.AddComment(ctx, &dto.AddDisputeCommentRequest{
				DisputeUUID: disputeUUID,
				AuthorID:    buyer.ID,
				Body:        "Bình luận sau khi đã giải quyết.",
			}, metadata)
			require.Error(t, err)
			assert.Equal(t, businessflow.CodeInvalidOperation, businessflow.ErrorCode(err))
		})

		return nil
	})
	require.NoError(t, err)
}
