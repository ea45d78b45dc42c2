package service_test

import (
	"context"
	stderrors "errors"
	"math/big"
	"sync"
	"testing"

	"github.com/Blackspectre-tech/u4c-backends/internal/models"
	"github.com/Blackspectre-tech/u4c-backends/internal/service"
	"github.com/Blackspectre-tech/u4c-backends/internal/testutil"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestCampaignCreatedDeploysProject(t *testing.T) {
	f := newFixture(t, false)
	p := f.project("1000", "60", "100")

	report := f.deliver(f.campaignLog(7, "1000"))
	require.Len(t, report.Results, 1)
	require.Equal(t, service.OutcomeApplied, report.Results[0].Outcome)
	require.Equal(t, "CampaignCreated", report.Results[0].Kind)

	got := f.reload(p)
	require.True(t, got.Deployed)
	require.Equal(t, uint64(7), *got.ContractID)
	require.Equal(t, int64(1735689600), got.Deadline.Unix())

	ms := f.milestones(p)
	require.Equal(t, models.MilestoneActive, ms[0].Status)
	require.Equal(t, models.MilestoneNotStarted, ms[1].Status)
}

func TestCampaignCreatedWithoutMatchingProject(t *testing.T) {
	f := newFixture(t, false)
	f.project("1000", "100")

	report := f.deliver(f.campaignLog(1, "999"))
	require.Equal(t, service.OutcomeFailed, report.Results[0].Outcome)
	require.NotEmpty(t, report.Results[0].ReplayKey)
	require.Equal(t, int64(1), f.auditCount())
}

func TestCampaignCreatedAmbiguous(t *testing.T) {
	f := newFixture(t, false)
	first := f.project("1000", "100")
	f.project("1000", "100")

	report := f.deliver(f.campaignLog(1, "1000"))
	require.Equal(t, service.OutcomeFailed, report.Results[0].Outcome)
	require.Contains(t, report.Results[0].Error, service.ErrAmbiguousCampaign.Error())
	require.False(t, f.reload(first).Deployed)
}

func TestPledgesAdvanceMilestones(t *testing.T) {
	f := newFixture(t, true)
	p := f.project("1000", "60", "100")
	f.deploy(p, 1)

	intent := f.intent(backerA, p, "600", "5")
	report := f.deliver(f.pledgeLog(1, backerA, "600", "5"))
	require.Equal(t, service.OutcomeApplied, report.Results[0].Outcome, report.Results[0].Error)

	got := f.reload(p)
	requireDecimal(t, "600", got.TotalFunds)
	requireDecimal(t, "60", got.Progress)
	ms := f.milestones(p)
	require.Equal(t, models.MilestoneCompleted, ms[0].Status)
	require.Equal(t, models.MilestoneActive, ms[1].Status)

	settled, err := f.store.Transactions.GetByID(context.Background(), intent.ID)
	require.NoError(t, err)
	require.Equal(t, models.TxStatusSuccessful, settled.Status)
	require.Equal(t, report.Results[0].TxHash, settled.TxHash)
	require.Empty(t, f.finalizer.calls)

	f.intent(backerA, p, "400", "0")
	report = f.deliver(f.pledgeLog(1, backerA, "400", "0"))
	require.Equal(t, service.OutcomeApplied, report.Results[0].Outcome, report.Results[0].Error)

	got = f.reload(p)
	requireDecimal(t, "1000", got.TotalFunds)
	requireDecimal(t, "100", got.Progress)
	ms = f.milestones(p)
	require.Equal(t, models.MilestoneCompleted, ms[1].Status)

	requireDecimal(t, "1000", f.donation(p, backerA).Amount)
	require.Len(t, f.finalizer.calls, 1)
	require.Equal(t, int64(1), f.finalizer.calls[0].Int64())
}

func TestPledgeCascadesThroughMilestones(t *testing.T) {
	f := newFixture(t, false)
	p := f.project("1000", "25", "50", "100")
	f.deploy(p, 1)

	f.intent(backerA, p, "500", "0")
	report := f.deliver(f.pledgeLog(1, backerA, "500", "0"))
	require.Equal(t, service.OutcomeApplied, report.Results[0].Outcome, report.Results[0].Error)

	ms := f.milestones(p)
	require.Equal(t, models.MilestoneCompleted, ms[0].Status)
	require.Equal(t, models.MilestoneCompleted, ms[1].Status)
	require.Equal(t, models.MilestoneActive, ms[2].Status)
	require.Empty(t, f.finalizer.calls)
}

func TestConcurrentPledgesAccumulate(t *testing.T) {
	f := newFixture(t, false)
	p := f.project("1000", "60", "100")
	f.deploy(p, 1)

	f.intent(backerA, p, "300", "0")
	f.intent(backerB, p, "300", "0")
	bodies := [][]byte{
		testutil.Delivery(t, 2001, f.pledgeLog(1, backerA, "300", "0")),
		testutil.Delivery(t, 2002, f.pledgeLog(1, backerB, "300", "0")),
	}

	reports := make([]service.BatchReport, len(bodies))
	var wg sync.WaitGroup
	for i, body := range bodies {
		wg.Add(1)
		go func(i int, body []byte) {
			defer wg.Done()
			reports[i] = f.deliverBody(body)
		}(i, body)
	}
	wg.Wait()

	for _, r := range reports {
		require.Equal(t, service.OutcomeApplied, r.Results[0].Outcome, r.Results[0].Error)
	}
	got := f.reload(p)
	requireDecimal(t, "600", got.TotalFunds)
	require.Equal(t, models.MilestoneCompleted, f.milestones(p)[0].Status)
}

func TestRedeliveryIsDuplicate(t *testing.T) {
	f := newFixture(t, false)
	p := f.project("1000", "100")
	f.deploy(p, 1)
	f.intent(backerA, p, "250", "0")

	body := testutil.Delivery(t, 3000, f.pledgeLog(1, backerA, "250", "0"))
	first := f.deliverBody(body)
	require.Equal(t, service.OutcomeApplied, first.Results[0].Outcome)

	second := f.deliverBody(body)
	require.Equal(t, service.OutcomeDuplicate, second.Results[0].Outcome)
	require.Empty(t, second.Results[0].ReplayKey)

	requireDecimal(t, "250", f.reload(p).TotalFunds)
	require.Zero(t, f.auditCount())
}

func TestUnmatchedPledgeIsAuditedOnce(t *testing.T) {
	f := newFixture(t, false)
	p := f.project("1000", "100")
	f.deploy(p, 1)

	report := f.deliver(f.pledgeLog(1, backerA, "100", "0"))
	res := report.Results[0]
	require.Equal(t, service.OutcomeFailed, res.Outcome)
	require.Contains(t, res.Error, service.ErrTransactionNotFound.Error())
	require.NotEmpty(t, res.ReplayKey)
	require.Equal(t, int64(1), f.auditCount())

	record, err := f.audit.Get(context.Background(), res.ReplayKey)
	require.NoError(t, err)
	require.Equal(t, models.AuditStageHandle, record.Stage)
	require.Equal(t, "Pledged", record.EventKind)
	require.Equal(t, res.TxHash, record.TxHash)
	require.NotEmpty(t, record.Data)

	requireDecimal(t, "0", f.reload(p).TotalFunds)

	// The failed log must not have claimed its dedup key.
	processed, err := f.store.Events.IsProcessed(context.Background(), res.TxHash, 0)
	require.NoError(t, err)
	require.False(t, processed)
}

func TestReplayAppliesAfterFix(t *testing.T) {
	f := newFixture(t, false)
	p := f.project("1000", "100")
	f.deploy(p, 1)

	failed := f.deliver(f.pledgeLog(1, backerA, "100", "0"))
	key := failed.Results[0].ReplayKey
	require.NotEmpty(t, key)

	f.intent(backerA, p, "100", "0")
	report, err := f.reconciler.Replay(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, service.OutcomeApplied, report.Results[0].Outcome)
	requireDecimal(t, "100", f.reload(p).TotalFunds)

	report, err = f.reconciler.Replay(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, service.OutcomeDuplicate, report.Results[0].Outcome)

	_, err = f.reconciler.Replay(context.Background(), "missing")
	require.ErrorIs(t, err, service.ErrAuditRecordNotFound)
}

func TestFailedCampaignUnlocksRefunds(t *testing.T) {
	f := newFixture(t, false)
	p := f.project("1000", "100")
	f.deploy(p, 1)
	f.intent(backerA, p, "300", "0")
	f.deliver(f.pledgeLog(1, backerA, "300", "0"))

	// Refund before the campaign failed is rejected.
	early := f.deliver(f.log("Refunded", big.NewInt(1), backerA, units("300")))
	require.Equal(t, service.OutcomeFailed, early.Results[0].Outcome)
	require.Contains(t, early.Results[0].Error, service.ErrNotRefundable.Error())

	report := f.deliver(f.log("CampaignStateChanged", big.NewInt(1), uint8(2)))
	require.Equal(t, service.OutcomeApplied, report.Results[0].Outcome)
	require.Equal(t, models.ProjectFailed, f.reload(p).Status)
	require.True(t, f.donation(p, backerA).Refundable)

	report = f.deliver(f.log("Refunded", big.NewInt(1), backerA, units("300")))
	require.Equal(t, service.OutcomeApplied, report.Results[0].Outcome, report.Results[0].Error)
	require.True(t, f.donation(p, backerA).Refunded)

	again := f.deliver(f.log("Refunded", big.NewInt(1), backerA, units("300")))
	require.Equal(t, service.OutcomeIgnored, again.Results[0].Outcome)

	var refunds int64
	require.NoError(t, f.db.Model(&models.Transaction{}).Where("event = ?", models.TxKindRefund).Count(&refunds).Error)
	require.Equal(t, int64(1), refunds)
}

func TestRefundWithoutDonation(t *testing.T) {
	f := newFixture(t, false)
	p := f.project("1000", "100")
	f.deploy(p, 1)

	report := f.deliver(f.log("Refunded", big.NewInt(1), backerB, units("1")))
	require.Equal(t, service.OutcomeFailed, report.Results[0].Outcome)
	require.Contains(t, report.Results[0].Error, service.ErrDonationNotFound.Error())
}

func TestCampaignStateChanges(t *testing.T) {
	f := newFixture(t, false)
	p := f.project("1000", "100")
	f.deploy(p, 1)

	report := f.deliver(f.log("CampaignStateChanged", big.NewInt(1), uint8(5)))
	require.Equal(t, service.OutcomeIgnored, report.Results[0].Outcome)
	require.Equal(t, models.ProjectFunding, f.reload(p).Status)

	report = f.deliver(f.log("CampaignStateChanged", big.NewInt(1), uint8(1)))
	require.Equal(t, service.OutcomeApplied, report.Results[0].Outcome)
	require.Equal(t, models.ProjectCompleted, f.reload(p).Status)

	report = f.deliver(f.log("CampaignStateChanged", big.NewInt(99), uint8(1)))
	require.Equal(t, service.OutcomeFailed, report.Results[0].Outcome)
}

func TestMilestoneFlagsAreIdempotent(t *testing.T) {
	f := newFixture(t, false)
	p := f.project("1000", "60", "100")
	f.deploy(p, 1)

	approve := f.deliver(f.approvalLog(1, 0, "600"))
	require.Equal(t, service.OutcomeApplied, approve.Results[0].Outcome, approve.Results[0].Error)
	require.True(t, f.milestones(p)[0].Approved)

	approve = f.deliver(f.approvalLog(1, 0, "600"))
	require.Equal(t, service.OutcomeIgnored, approve.Results[0].Outcome)

	withdraw := f.log("MilestoneWithdrawn", big.NewInt(1), big.NewInt(0), units("600"))
	withdraw.From = orgWallet
	report := f.deliver(withdraw)
	require.Equal(t, service.OutcomeApplied, report.Results[0].Outcome, report.Results[0].Error)
	require.True(t, f.milestones(p)[0].Withdrawn)

	report = f.deliver(f.log("MilestoneWithdrawn", big.NewInt(1), big.NewInt(0), units("600")))
	require.Equal(t, service.OutcomeIgnored, report.Results[0].Outcome)

	var withdrawals []models.Transaction
	require.NoError(t, f.db.Preload("Wallet").Where("event = ?", models.TxKindMilestoneWithdrawal).Find(&withdrawals).Error)
	require.Len(t, withdrawals, 1)
	requireDecimal(t, "600", withdrawals[0].Amount)
	require.Equal(t, "0x00000000000000000000000000000000000a11ce", withdrawals[0].Wallet.Address)

	unknown := f.deliver(f.approvalLog(1, 5, "123"))
	require.Equal(t, service.OutcomeFailed, unknown.Results[0].Outcome)
	require.Contains(t, unknown.Results[0].Error, service.ErrMilestoneNotFound.Error())
}

func TestAdminEventsAreAcknowledged(t *testing.T) {
	f := newFixture(t, false)

	report := f.deliver(
		f.log("Paused", orgWallet),
		f.log("FeeUpdated", big.NewInt(300)),
		f.log("OwnershipTransferred", orgWallet, backerA),
		f.log("Unpledged", big.NewInt(1), backerA, units("1")),
	)
	require.Len(t, report.Results, 4)
	for _, r := range report.Results {
		require.Equal(t, service.OutcomeIgnored, r.Outcome)
	}
	require.Zero(t, f.auditCount())

	// Acknowledged events still claim their key.
	again := f.deliver(f.events.Log(testutil.TxHash(1), 0, "Paused", orgWallet))
	require.Equal(t, service.OutcomeDuplicate, again.Results[0].Outcome)
}

func TestBatchIsolatesFailures(t *testing.T) {
	f := newFixture(t, false)
	p := f.project("1000", "100")
	f.deploy(p, 1)
	f.intent(backerA, p, "50", "0")

	unknown := testutil.WebhookLog{
		Topics: []common.Hash{common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")},
		TxHash: testutil.TxHash(900),
	}
	truncated := f.pledgeLog(1, backerA, "50", "0")
	truncated.Data = truncated.Data[:10]
	removed := f.pledgeLog(1, backerA, "50", "0")
	removed.Removed = true

	report := f.deliver(unknown, truncated, removed, f.pledgeLog(1, backerA, "50", "0"))

	require.Len(t, report.Results, 4)
	require.Equal(t, service.OutcomeSkipped, report.Results[0].Outcome)
	require.Empty(t, report.Results[0].ReplayKey)
	require.Equal(t, service.OutcomeFailed, report.Results[1].Outcome)
	require.NotEmpty(t, report.Results[1].ReplayKey)
	require.Equal(t, service.OutcomeSkipped, report.Results[2].Outcome)
	require.Equal(t, service.OutcomeApplied, report.Results[3].Outcome, report.Results[3].Error)

	require.Equal(t, int64(1), f.auditCount())
	requireDecimal(t, "50", f.reload(p).TotalFunds)
}

func TestMalformedLogIsAuditedAndSkipped(t *testing.T) {
	f := newFixture(t, false)

	body := []byte(`{"webhookId":"wh_test","id":"whevt_bad","event":{"data":{"block":{"number":1,"logs":[{"topics":["0x12"],"data":"0x"}]}}}}`)
	report := f.deliverBody(body)

	require.Len(t, report.Results, 1)
	require.Equal(t, service.OutcomeSkipped, report.Results[0].Outcome)
	require.NotEmpty(t, report.Results[0].ReplayKey)

	record, err := f.audit.Get(context.Background(), report.Results[0].ReplayKey)
	require.NoError(t, err)
	require.Equal(t, models.AuditStageNormalize, record.Stage)
	require.Equal(t, string(body), record.Data)
}

func TestFinalizeFailureIsAudited(t *testing.T) {
	f := newFixture(t, true)
	f.finalizer.err = stderrors.New("insufficient funds for gas")
	p := f.project("100", "100")
	f.deploy(p, 1)
	f.intent(backerA, p, "100", "0")

	report := f.deliver(f.pledgeLog(1, backerA, "100", "0"))
	require.Equal(t, service.OutcomeApplied, report.Results[0].Outcome)
	require.Len(t, f.finalizer.calls, 1)

	records, err := f.audit.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, models.AuditStageFollowUp, records[0].Stage)
	requireDecimal(t, "100", f.reload(p).TotalFunds)
}

func TestAutoFinalizeDisabled(t *testing.T) {
	f := newFixture(t, false)
	p := f.project("100", "100")
	f.deploy(p, 1)
	f.intent(backerA, p, "100", "0")

	f.deliver(f.pledgeLog(1, backerA, "100", "0"))
	require.Empty(t, f.finalizer.calls)
}
