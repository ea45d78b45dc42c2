package service

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/Blackspectre-tech/u4c-backends/internal/models"
	"github.com/Blackspectre-tech/u4c-backends/internal/repository"
	"github.com/Blackspectre-tech/u4c-backends/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidWallet      = stderrors.New("invalid wallet address")
	ErrInvalidAmount      = stderrors.New("amount must be positive and tip non-negative")
	ErrProjectNotFound    = stderrors.New("project not found")
	ErrProjectNotDeployed = stderrors.New("project is not deployed")
)

type PledgeIntent struct {
	WalletAddress string
	ProjectID     uint64
	Amount        decimal.Decimal
	Tip           decimal.Decimal
}

// PledgeService stages pledge intents that reconciliation later settles.
type PledgeService struct {
	store *repository.Store
}

func NewPledgeService(store *repository.Store) *PledgeService {
	return &PledgeService{store: store}
}

// CreateIntent records a Pending pledge transaction. Other pending
// transactions of the wallet become Failed; the count is returned.
func (s *PledgeService) CreateIntent(ctx context.Context, intent PledgeIntent) (*models.Transaction, int64, error) {
	if !common.IsHexAddress(intent.WalletAddress) {
		return nil, 0, ErrInvalidWallet
	}
	amount := intent.Amount.Round(2)
	tip := intent.Tip.Round(2)
	if !amount.IsPositive() || tip.IsNegative() {
		return nil, 0, ErrInvalidAmount
	}

	var (
		created *models.Transaction
		failed  int64
	)
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		project, err := tx.Projects.GetByID(ctx, intent.ProjectID)
		if err != nil {
			return err
		}
		if project == nil {
			return ErrProjectNotFound
		}
		if !project.Deployed {
			return ErrProjectNotDeployed
		}

		wallet, err := tx.Wallets.GetOrCreate(ctx, strings.ToLower(intent.WalletAddress))
		if err != nil {
			return err
		}
		// Held until commit; intents of one wallet are staged one at a time.
		if _, err := tx.Wallets.LockByID(ctx, wallet.ID); err != nil {
			return err
		}

		created = &models.Transaction{
			WalletID:  wallet.ID,
			ProjectID: &project.ID,
			Kind:      models.TxKindPledge,
			Amount:    amount,
			Tip:       tip,
		}
		failed, err = tx.Transactions.CreatePending(ctx, created)
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	logger.WithFields(map[string]interface{}{
		"transaction_id": created.ID,
		"project_id":     intent.ProjectID,
		"wallet":         strings.ToLower(intent.WalletAddress),
		"amount":         amount.String(),
		"superseded":     failed,
	}).Info("pledge intent staged")
	return created, failed, nil
}
