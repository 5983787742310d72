package repository

import (
	"learnai_backend/internal/model"

	"gorm.io/gorm"
)

type NodeResultRepository struct {
	DB *gorm.DB
}

func NewNodeResultRepository(db *gorm.DB) *NodeResultRepository {
	return &NodeResultRepository{DB: db}
}

func (r *NodeResultRepository) Create(result *model.NodeResult) error {
	return r.DB.Create(result).Error
}

func (r *NodeResultRepository) ListByAttempt(attemptID uint) ([]model.NodeResult, error) {
	var results []model.NodeResult
	err := r.DB.Where("attempt_id = ?", attemptID).Order("id ASC").Find(&results).Error
	return results, err
}
