package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Blackspectre-tech/u4c-backends/internal/models"
	"github.com/Blackspectre-tech/u4c-backends/internal/repository"
	"github.com/Blackspectre-tech/u4c-backends/internal/testutil"
	"github.com/Blackspectre-tech/u4c-backends/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func init() {
	logger.Discard()
}

func TestCursorNeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	cursors := repository.NewCursorRepository(testutil.NewTestDB(t))

	got, err := cursors.Get(ctx, "logs:a")
	require.NoError(t, err)
	require.Zero(t, got)

	require.NoError(t, cursors.Save(ctx, "logs:a", 120))
	require.NoError(t, cursors.Save(ctx, "logs:a", 80))
	require.NoError(t, cursors.Save(ctx, "logs:b", 7))

	got, err = cursors.Get(ctx, "logs:a")
	require.NoError(t, err)
	require.Equal(t, uint64(120), got)

	require.NoError(t, cursors.Save(ctx, "logs:a", 121))
	got, err = cursors.Get(ctx, "logs:a")
	require.NoError(t, err)
	require.Equal(t, uint64(121), got)

	got, err = cursors.Get(ctx, "logs:b")
	require.NoError(t, err)
	require.Equal(t, uint64(7), got)
}

func TestEventClaim(t *testing.T) {
	ctx := context.Background()
	events := repository.NewEventRepository(testutil.NewTestDB(t))
	block := uint64(42)

	last, err := events.GetLastProcessedBlock(ctx)
	require.NoError(t, err)
	require.Zero(t, last)

	require.NoError(t, events.Claim(ctx, &models.ProcessedEvent{TxHash: "0xaa", LogIndex: 0, EventKind: "Pledged", BlockNumber: &block}))
	require.ErrorIs(t, events.Claim(ctx, &models.ProcessedEvent{TxHash: "0xaa", LogIndex: 0, EventKind: "Pledged"}), repository.ErrAlreadyProcessed)
	require.NoError(t, events.Claim(ctx, &models.ProcessedEvent{TxHash: "0xaa", LogIndex: 1, EventKind: "Refunded"}))

	ok, err := events.IsProcessed(ctx, "0xaa", 1)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = events.IsProcessed(ctx, "0xbb", 0)
	require.NoError(t, err)
	require.False(t, ok)

	last, err = events.GetLastProcessedBlock(ctx)
	require.NoError(t, err)
	require.Equal(t, block, last)
}

func TestTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	store := repository.NewStore(testutil.NewTestDB(t))

	err := store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Events.Claim(ctx, &models.ProcessedEvent{TxHash: "0xcc", LogIndex: 3, EventKind: "Pledged"}); err != nil {
			return err
		}
		return context.Canceled
	})
	require.ErrorIs(t, err, context.Canceled)

	ok, err := store.Events.IsProcessed(ctx, "0xcc", 3)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestProjectDeployment(t *testing.T) {
	ctx := context.Background()
	projects := repository.NewProjectRepository(testutil.NewTestDB(t))
	wallet := "0x1000000000000000000000000000000000000001"

	for _, status := range []models.ApprovalStatus{models.ApprovalApproved, models.ApprovalPending} {
		require.NoError(t, projects.Create(ctx, &models.Project{
			OrganizationID: 1,
			Title:          "Well",
			Goal:           decimal.NewFromInt(500),
			ApprovalStatus: status,
			Status:         models.ProjectFunding,
			WalletAddress:  wallet,
		}))
	}

	candidates, err := projects.FindDeployCandidates(ctx, wallet)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, models.ApprovalApproved, candidates[0].ApprovalStatus)

	deadline := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, projects.MarkDeployed(ctx, candidates[0].ID, 9, deadline))

	p, err := projects.GetByContractID(ctx, 9)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.True(t, p.Deployed)
	require.True(t, deadline.Equal(p.Deadline.UTC()))

	missing, err := projects.GetByContractID(ctx, 10)
	require.NoError(t, err)
	require.Nil(t, missing)

	count, err := projects.CountDeployed(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestAddFundsConcurrentTransactions(t *testing.T) {
	ctx := context.Background()
	store := repository.NewStore(testutil.NewFileTestDB(t, 4))

	p := &models.Project{
		OrganizationID: 1,
		Title:          "Library",
		Goal:           decimal.NewFromInt(1000),
		ApprovalStatus: models.ApprovalApproved,
		Status:         models.ProjectFunding,
		WalletAddress:  "0x1000000000000000000000000000000000000001",
	}
	require.NoError(t, store.Projects.Create(ctx, p))

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.Transaction(ctx, func(tx *repository.Store) error {
				return tx.Projects.AddFunds(ctx, p.ID, decimal.RequireFromString("12.5"))
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := store.Projects.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(100).Equal(got.TotalFunds), got.TotalFunds.String())
}

func TestWalletLockIssuesSelectForUpdate(t *testing.T) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=u4c dbname=u4c sslmode=disable",
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)

	var statement string
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("test:capture", func(tx *gorm.DB) {
		statement = tx.Statement.SQL.String()
	}))

	_, err = repository.NewWalletRepository(db).LockByID(context.Background(), 7)
	require.NoError(t, err)
	require.Contains(t, statement, `FROM "wallets"`)
	require.Contains(t, statement, "FOR UPDATE")
}
