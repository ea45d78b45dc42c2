package repository

import (
	"context"
	"errors"

	"github.com/Blackspectre-tech/u4c-backends/internal/models"

	"gorm.io/gorm"
)

var ErrAlreadyProcessed = errors.New("event already processed")

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Claim inserts the dedup key for a log. It returns ErrAlreadyProcessed when
// the key exists, including when a concurrent transaction committed it first.
func (r *EventRepository) Claim(ctx context.Context, event *models.ProcessedEvent) error {
	processed, err := r.IsProcessed(ctx, event.TxHash, event.LogIndex)
	if err != nil {
		return err
	}
	if processed {
		return ErrAlreadyProcessed
	}

	err = r.db.WithContext(ctx).Create(event).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyProcessed
	}
	return err
}

func (r *EventRepository) IsProcessed(ctx context.Context, txHash string, logIndex uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ProcessedEvent{}).
		Where("tx_hash = ? AND log_index = ?", txHash, logIndex).
		Count(&count).Error
	return count > 0, err
}

// GetLastProcessedBlock returns the highest block with a claimed event.
func (r *EventRepository) GetLastProcessedBlock(ctx context.Context) (uint64, error) {
	var event models.ProcessedEvent
	err := r.db.WithContext(ctx).
		Where("block_number IS NOT NULL").
		Order("block_number DESC").
		First(&event).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return *event.BlockNumber, nil
}
