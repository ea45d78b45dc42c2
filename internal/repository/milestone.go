package repository

import (
	"context"
	"errors"

	"github.com/Blackspectre-tech/u4c-backends/internal/models"

	"gorm.io/gorm"
)

type MilestoneRepository struct {
	db *gorm.DB
}

func NewMilestoneRepository(db *gorm.DB) *MilestoneRepository {
	return &MilestoneRepository{db: db}
}

func (r *MilestoneRepository) Create(ctx context.Context, milestone *models.Milestone) error {
	return r.db.WithContext(ctx).Create(milestone).Error
}

// ListByProject returns the project's milestones in ascending milestone_no.
func (r *MilestoneRepository) ListByProject(ctx context.Context, projectID uint64) ([]models.Milestone, error) {
	var milestones []models.Milestone
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("milestone_no ASC").
		Find(&milestones).Error
	return milestones, err
}

func (r *MilestoneRepository) GetActive(ctx context.Context, projectID uint64) (*models.Milestone, error) {
	var milestone models.Milestone
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND status = ?", projectID, models.MilestoneActive).
		Order("milestone_no ASC").
		First(&milestone).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &milestone, err
}

func (r *MilestoneRepository) GetByNumber(ctx context.Context, projectID uint64, milestoneNo int) (*models.Milestone, error) {
	var milestone models.Milestone
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND milestone_no = ?", projectID, milestoneNo).
		First(&milestone).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &milestone, err
}

func (r *MilestoneRepository) SetStatus(ctx context.Context, id uint64, status models.MilestoneStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Milestone{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *MilestoneRepository) SetApproved(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).
		Model(&models.Milestone{}).
		Where("id = ?", id).
		Update("approved", true).Error
}

func (r *MilestoneRepository) SetWithdrawn(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).
		Model(&models.Milestone{}).
		Where("id = ?", id).
		Update("withdrawn", true).Error
}
