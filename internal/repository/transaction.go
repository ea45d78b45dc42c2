package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/Blackspectre-tech/u4c-backends/internal/models"

	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

// CreatePending stages a pending transaction. Any other pending transaction
// of the same wallet is marked failed in the same database transaction, so a
// wallet never has more than one unsettled intent.
func (r *TransactionRepository) CreatePending(ctx context.Context, tx *models.Transaction) (int64, error) {
	var failed int64
	err := r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		result := db.Model(&models.Transaction{}).
			Where("wallet_id = ? AND status = ?", tx.WalletID, models.TxStatusPending).
			Update("status", models.TxStatusFailed)
		if result.Error != nil {
			return result.Error
		}
		failed = result.RowsAffected

		tx.Status = models.TxStatusPending
		return db.Create(tx).Error
	})
	return failed, err
}

// FindPending returns the pending transactions of a wallet against a project.
func (r *TransactionRepository) FindPending(ctx context.Context, walletAddress string, projectID uint64) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.WithContext(ctx).
		Preload("Wallet").
		Where("project_id = ? AND status = ? AND wallet_id IN (?)", projectID, models.TxStatusPending,
			r.db.Model(&models.Wallet{}).Select("id").Where("LOWER(address) = ?", strings.ToLower(walletAddress))).
		Order("id ASC").
		Find(&txs).Error
	return txs, err
}

// MarkSuccessful settles a pending transaction. It fails if the row is no
// longer pending.
func (r *TransactionRepository) MarkSuccessful(ctx context.Context, id uint64, txHash string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, models.TxStatusPending).
		Updates(map[string]interface{}{
			"status":  models.TxStatusSuccessful,
			"tx_hash": txHash,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return errors.New("transaction is no longer pending")
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uint64) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).First(&tx, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &tx, err
}

func (r *TransactionRepository) ListByWallet(ctx context.Context, walletID uint64, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	query := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC, id DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&txs).Error
	return txs, err
}
