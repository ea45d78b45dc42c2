package service_test

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/Blackspectre-tech/u4c-backends/internal/blockchain"
	"github.com/Blackspectre-tech/u4c-backends/internal/models"
	"github.com/Blackspectre-tech/u4c-backends/internal/repository"
	"github.com/Blackspectre-tech/u4c-backends/internal/service"
	"github.com/Blackspectre-tech/u4c-backends/internal/testutil"
	"github.com/Blackspectre-tech/u4c-backends/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const tokenDecimals = 6

var (
	orgWallet = common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	backerA   = common.HexToAddress("0x000000000000000000000000000000000000bEEF")
	backerB   = common.HexToAddress("0x000000000000000000000000000000000000CAfE")
	usdc      = common.HexToAddress("0x0000000000000000000000000000000000005dC0")
)

func init() {
	logger.Discard()
}

type fakeFinalizer struct {
	mu    sync.Mutex
	calls []*big.Int
	err   error
}

func (f *fakeFinalizer) Finalize(_ context.Context, id *big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	if f.err != nil {
		return "", f.err
	}
	return "0xfinal", nil
}

type fixture struct {
	t          *testing.T
	db         *gorm.DB
	store      *repository.Store
	audit      *service.AuditSink
	reconciler *service.Reconciler
	pledges    *service.PledgeService
	finalizer  *fakeFinalizer
	events     *testutil.EventLogs
	block      uint64
	nextTx     int64
}

func newFixture(t *testing.T, autoFinalize bool) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	store := repository.NewStore(db)
	decoder, err := blockchain.NewDecoder()
	require.NoError(t, err)

	audit := service.NewAuditSink(store.Audit)
	finalizer := &fakeFinalizer{}
	return &fixture{
		t:     t,
		db:    db,
		store: store,
		audit: audit,
		reconciler: service.NewReconciler(store, decoder, audit, finalizer, service.ReconcilerConfig{
			TokenDecimals: tokenDecimals,
			AutoFinalize:  autoFinalize,
		}),
		pledges:   service.NewPledgeService(store),
		finalizer: finalizer,
		events:    testutil.NewEventLogs(t),
		block:     1000,
	}
}

func units(amount string) *big.Int {
	return service.ToBaseUnits(decimal.RequireFromString(amount), tokenDecimals)
}

// project stores an approved, undeployed project with cumulative milestones
// at the given percentages of goal.
func (f *fixture) project(goal string, percents ...string) *models.Project {
	f.t.Helper()
	ctx := context.Background()
	g := decimal.RequireFromString(goal)
	p := &models.Project{
		OrganizationID: 1,
		Title:          "Clean water",
		Goal:           g,
		ApprovalStatus: models.ApprovalApproved,
		Status:         models.ProjectFunding,
		WalletAddress:  orgWallet.Hex(),
	}
	require.NoError(f.t, f.store.Projects.Create(ctx, p))
	for i, pct := range percents {
		percentage := decimal.RequireFromString(pct)
		require.NoError(f.t, f.store.Milestones.Create(ctx, &models.Milestone{
			ProjectID:   p.ID,
			MilestoneNo: i + 1,
			Percentage:  percentage,
			Goal:        g.Mul(percentage).Div(decimal.NewFromInt(100)).Round(2),
			Status:      models.MilestoneNotStarted,
		}))
	}
	return p
}

// log builds the next log in its own transaction.
func (f *fixture) log(name string, args ...interface{}) testutil.WebhookLog {
	f.nextTx++
	return f.events.Log(testutil.TxHash(f.nextTx), 0, name, args...)
}

func (f *fixture) deliver(logs ...testutil.WebhookLog) service.BatchReport {
	f.t.Helper()
	f.block++
	return f.deliverBody(testutil.Delivery(f.t, f.block, logs...))
}

func (f *fixture) deliverBody(body []byte) service.BatchReport {
	f.t.Helper()
	d, err := blockchain.ParseDelivery(body)
	require.NoError(f.t, err)
	return f.reconciler.ProcessDelivery(context.Background(), body, d)
}

// deploy confirms p on chain as campaign id.
func (f *fixture) deploy(p *models.Project, id int64) {
	f.t.Helper()
	report := f.deliver(f.campaignLog(id, p.Goal.String()))
	require.Equal(f.t, service.OutcomeApplied, report.Results[0].Outcome, report.Results[0].Error)
}

func (f *fixture) intent(wallet common.Address, p *models.Project, amount, tip string) *models.Transaction {
	f.t.Helper()
	tx, _, err := f.pledges.CreateIntent(context.Background(), service.PledgeIntent{
		WalletAddress: wallet.Hex(),
		ProjectID:     p.ID,
		Amount:        decimal.RequireFromString(amount),
		Tip:           decimal.RequireFromString(tip),
	})
	require.NoError(f.t, err)
	return tx
}

func (f *fixture) campaignLog(id int64, goal string) testutil.WebhookLog {
	return f.log("CampaignCreated", big.NewInt(id), orgWallet, uint8(2), usdc, units(goal), big.NewInt(1735689600))
}

// pledgeLog emits a fee-free pledge, so gross equals net.
func (f *fixture) pledgeLog(id int64, wallet common.Address, amount, tip string) testutil.WebhookLog {
	return f.log("Pledged", big.NewInt(id), wallet, units(amount), big.NewInt(0), units(amount), units(tip), uint8(0))
}

func (f *fixture) approvalLog(id, index int64, amount string) testutil.WebhookLog {
	return f.log("MilestoneApproved", big.NewInt(id), big.NewInt(index), fmt.Sprintf("milestone %d", index+1), units(amount))
}

func (f *fixture) reload(p *models.Project) *models.Project {
	f.t.Helper()
	got, err := f.store.Projects.GetByID(context.Background(), p.ID)
	require.NoError(f.t, err)
	require.NotNil(f.t, got)
	return got
}

func (f *fixture) milestones(p *models.Project) []models.Milestone {
	f.t.Helper()
	ms, err := f.store.Milestones.ListByProject(context.Background(), p.ID)
	require.NoError(f.t, err)
	return ms
}

func (f *fixture) auditCount() int64 {
	f.t.Helper()
	n, err := f.store.Audit.CountAll(context.Background())
	require.NoError(f.t, err)
	return n
}

func (f *fixture) donation(p *models.Project, wallet common.Address) *models.Donation {
	f.t.Helper()
	d, err := f.store.Donations.GetByProjectAddress(context.Background(), p.ID, wallet.Hex())
	require.NoError(f.t, err)
	return d
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}
