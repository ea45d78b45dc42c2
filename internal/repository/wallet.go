package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/Blackspectre-tech/u4c-backends/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) GetByAddress(ctx context.Context, address string) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.WithContext(ctx).
		Where("LOWER(address) = ?", strings.ToLower(address)).
		First(&wallet).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &wallet, err
}

// GetOrCreate returns the wallet for address, creating it if needed.
func (r *WalletRepository) GetOrCreate(ctx context.Context, address string) (*models.Wallet, error) {
	addr := strings.ToLower(address)
	wallet := &models.Wallet{Address: addr}
	err := r.db.WithContext(ctx).
		Where("LOWER(address) = ?", addr).
		FirstOrCreate(wallet).Error
	return wallet, err
}

// LockByID takes a row lock on the wallet until the surrounding transaction
// ends. Pending intents of one wallet are staged under this lock.
func (r *WalletRepository) LockByID(ctx context.Context, id uint64) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&wallet).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &wallet, err
}
