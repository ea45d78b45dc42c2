package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Blackspectre-tech/u4c-backends/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrAlreadyDeployed = errors.New("project already deployed")

type ProjectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) Create(ctx context.Context, project *models.Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

func (r *ProjectRepository) GetByID(ctx context.Context, id uint64) (*models.Project, error) {
	var project models.Project
	err := r.db.WithContext(ctx).First(&project, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &project, err
}

// GetByContractID looks up a project by its on-chain campaign id.
func (r *ProjectRepository) GetByContractID(ctx context.Context, contractID uint64) (*models.Project, error) {
	var project models.Project
	err := r.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		First(&project).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &project, err
}

// LockByContractID is GetByContractID with a row lock held until the
// surrounding transaction ends.
func (r *ProjectRepository) LockByContractID(ctx context.Context, contractID uint64) (*models.Project, error) {
	var project models.Project
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("contract_id = ?", contractID).
		First(&project).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &project, err
}

// FindDeployCandidates returns approved, undeployed projects paid out to the
// given wallet. The address comparison is case-insensitive.
func (r *ProjectRepository) FindDeployCandidates(ctx context.Context, walletAddress string) ([]models.Project, error) {
	var projects []models.Project
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("approval_status = ? AND deployed = ? AND LOWER(wallet_address) = ?",
			models.ApprovalApproved, false, strings.ToLower(walletAddress)).
		Order("id ASC").
		Find(&projects).Error
	return projects, err
}

// MarkDeployed sets the contract id exactly once.
func (r *ProjectRepository) MarkDeployed(ctx context.Context, id, contractID uint64, deadline time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("id = ? AND deployed = ? AND contract_id IS NULL", id, false).
		Updates(map[string]interface{}{
			"contract_id": contractID,
			"deployed":    true,
			"deadline":    deadline,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return ErrAlreadyDeployed
	}
	return nil
}

// AddFunds increments total_funds in SQL, never read-modify-write.
func (r *ProjectRepository) AddFunds(ctx context.Context, id uint64, amount decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("id = ?", id).
		Update("total_funds", gorm.Expr("total_funds + ?", amount)).Error
}

func (r *ProjectRepository) UpdateProgress(ctx context.Context, id uint64, progress decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("id = ?", id).
		Update("progress", progress).Error
}

func (r *ProjectRepository) UpdateStatus(ctx context.Context, id uint64, status models.ProjectStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// ListDeployed pages through deployed projects.
func (r *ProjectRepository) ListDeployed(ctx context.Context, offset, limit int) ([]models.Project, error) {
	var projects []models.Project
	err := r.db.WithContext(ctx).
		Where("deployed = ? AND contract_id IS NOT NULL", true).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&projects).Error
	return projects, err
}

func (r *ProjectRepository) CountDeployed(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("deployed = ?", true).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count deployed projects: %w", err)
	}
	return count, nil
}
