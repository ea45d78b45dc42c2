package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Blackspectre-tech/u4c-backends/internal/models"
	"github.com/Blackspectre-tech/u4c-backends/internal/repository"
	"github.com/Blackspectre-tech/u4c-backends/internal/service"
	"github.com/Blackspectre-tech/u4c-backends/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCreateIntentSupersedesPending(t *testing.T) {
	f := newFixture(t, false)
	p := f.project("1000", "100")
	f.deploy(p, 1)

	first := f.intent(backerA, p, "10", "1")
	require.Equal(t, models.TxStatusPending, first.Status)

	second, superseded, err := f.pledges.CreateIntent(context.Background(), service.PledgeIntent{
		WalletAddress: backerA.Hex(),
		ProjectID:     p.ID,
		Amount:        decimal.RequireFromString("20.005"),
		Tip:           decimal.Zero,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), superseded)
	requireDecimal(t, "20.01", second.Amount)

	old, err := f.store.Transactions.GetByID(context.Background(), first.ID)
	require.NoError(t, err)
	require.Equal(t, models.TxStatusFailed, old.Status)

	pending, err := f.store.Transactions.FindPending(context.Background(), backerA.Hex(), p.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, second.ID, pending[0].ID)
}

func TestCreateIntentValidation(t *testing.T) {
	f := newFixture(t, false)
	deployed := f.project("1000", "100")
	f.deploy(deployed, 1)
	draft := f.project("500", "100")

	tests := []struct {
		name   string
		intent service.PledgeIntent
		err    error
	}{
		{
			name:   "bad wallet",
			intent: service.PledgeIntent{WalletAddress: "0x123", ProjectID: deployed.ID, Amount: decimal.NewFromInt(1)},
			err:    service.ErrInvalidWallet,
		},
		{
			name:   "zero amount",
			intent: service.PledgeIntent{WalletAddress: backerA.Hex(), ProjectID: deployed.ID},
			err:    service.ErrInvalidAmount,
		},
		{
			name:   "negative tip",
			intent: service.PledgeIntent{WalletAddress: backerA.Hex(), ProjectID: deployed.ID, Amount: decimal.NewFromInt(1), Tip: decimal.NewFromInt(-1)},
			err:    service.ErrInvalidAmount,
		},
		{
			name:   "unknown project",
			intent: service.PledgeIntent{WalletAddress: backerA.Hex(), ProjectID: 999, Amount: decimal.NewFromInt(1)},
			err:    service.ErrProjectNotFound,
		},
		{
			name:   "not deployed",
			intent: service.PledgeIntent{WalletAddress: backerA.Hex(), ProjectID: draft.ID, Amount: decimal.NewFromInt(1)},
			err:    service.ErrProjectNotDeployed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.pledges.CreateIntent(context.Background(), tt.intent)
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestConcurrentIntentsLeaveOnePending(t *testing.T) {
	ctx := context.Background()
	store := repository.NewStore(testutil.NewFileTestDB(t, 4, "_txlock=immediate"))
	pledges := service.NewPledgeService(store)

	p := &models.Project{
		OrganizationID: 1,
		Title:          "Clinic",
		Goal:           decimal.NewFromInt(1000),
		ApprovalStatus: models.ApprovalApproved,
		Status:         models.ProjectFunding,
		WalletAddress:  orgWallet.Hex(),
	}
	require.NoError(t, store.Projects.Create(ctx, p))
	require.NoError(t, store.Projects.MarkDeployed(ctx, p.ID, 1, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)))

	const n = 6
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := pledges.CreateIntent(ctx, service.PledgeIntent{
				WalletAddress: backerA.Hex(),
				ProjectID:     p.ID,
				Amount:        decimal.NewFromInt(int64(10 + i)),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	pending, err := store.Transactions.FindPending(ctx, backerA.Hex(), p.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}
