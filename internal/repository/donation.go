package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/Blackspectre-tech/u4c-backends/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type DonationRepository struct {
	db *gorm.DB
}

func NewDonationRepository(db *gorm.DB) *DonationRepository {
	return &DonationRepository{db: db}
}

func (r *DonationRepository) Create(ctx context.Context, donation *models.Donation) error {
	return r.db.WithContext(ctx).Create(donation).Error
}

func (r *DonationRepository) GetByProjectWallet(ctx context.Context, projectID, walletID uint64) (*models.Donation, error) {
	var donation models.Donation
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND wallet_id = ?", projectID, walletID).
		First(&donation).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &donation, err
}

// GetByProjectAddress finds the donation by the backer's address, ignoring case.
func (r *DonationRepository) GetByProjectAddress(ctx context.Context, projectID uint64, address string) (*models.Donation, error) {
	var donation models.Donation
	err := r.db.WithContext(ctx).
		Preload("Wallet").
		Where("project_id = ? AND wallet_id IN (?)", projectID,
			r.db.Model(&models.Wallet{}).Select("id").Where("LOWER(address) = ?", strings.ToLower(address))).
		First(&donation).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &donation, err
}

// AddAmount increments the donation amount in SQL.
func (r *DonationRepository) AddAmount(ctx context.Context, id uint64, amount decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Donation{}).
		Where("id = ? AND refunded = ?", id, false).
		Update("amount", gorm.Expr("amount + ?", amount)).Error
}

// MarkAllRefundable unlocks refunds for every donation of a failed project.
func (r *DonationRepository) MarkAllRefundable(ctx context.Context, projectID uint64) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Donation{}).
		Where("project_id = ? AND refunded = ?", projectID, false).
		Update("refundable", true)
	return result.RowsAffected, result.Error
}

func (r *DonationRepository) MarkRefunded(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).
		Model(&models.Donation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"refundable": false,
			"refunded":   true,
		}).Error
}

func (r *DonationRepository) ListByProject(ctx context.Context, projectID uint64) ([]models.Donation, error) {
	var donations []models.Donation
	err := r.db.WithContext(ctx).
		Preload("Wallet").
		Where("project_id = ?", projectID).
		Order("id ASC").
		Find(&donations).Error
	return donations, err
}
