package repository

import (
	"context"
	"errors"

	"github.com/Blackspectre-tech/u4c-backends/internal/models"

	"gorm.io/gorm"
)

type CursorRepository struct {
	db *gorm.DB
}

func NewCursorRepository(db *gorm.DB) *CursorRepository {
	return &CursorRepository{db: db}
}

// Get returns the stored block for name, or 0 when nothing was synced yet.
func (r *CursorRepository) Get(ctx context.Context, name string) (uint64, error) {
	var cursor models.SyncCursor
	err := r.db.WithContext(ctx).
		Where("name = ?", name).
		First(&cursor).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return cursor.BlockNumber, nil
}

// Save moves the cursor for name to blockNumber. It never moves backwards.
func (r *CursorRepository) Save(ctx context.Context, name string, blockNumber uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.SyncCursor
		err := tx.Where("name = ?", name).First(&existing).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&models.SyncCursor{
				Name:        name,
				BlockNumber: blockNumber,
			}).Error
		}
		if err != nil {
			return err
		}
		if blockNumber <= existing.BlockNumber {
			return nil
		}
		return tx.Model(&existing).Update("block_number", blockNumber).Error
	})
}
