package repository

import (
	"context"
	"errors"

	"github.com/Blackspectre-tech/u4c-backends/internal/models"

	"gorm.io/gorm"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, record *models.AuditRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *AuditRepository) GetByReplayKey(ctx context.Context, key string) (*models.AuditRecord, error) {
	var record models.AuditRecord
	err := r.db.WithContext(ctx).
		Where("replay_key = ?", key).
		First(&record).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &record, err
}

func (r *AuditRepository) GetRecent(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	var records []models.AuditRecord
	if limit <= 0 {
		limit = 20
	}
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

func (r *AuditRepository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.AuditRecord{}).
		Count(&count).Error
	return count, err
}
