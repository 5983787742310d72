package repository

import (
	"encoding/json"

	"learnai_backend/internal/model"

	"gorm.io/gorm"
)

// SubRoadmapRepository 子路线图缓存，键为 (attempt_id, module_index)
type SubRoadmapRepository struct {
	DB *gorm.DB
}

func NewSubRoadmapRepository(db *gorm.DB) *SubRoadmapRepository {
	return &SubRoadmapRepository{DB: db}
}

func (r *SubRoadmapRepository) Exists(attemptID uint, moduleIndex int) bool {
	var count int64
	if err := r.DB.Model(&model.SubRoadmap{}).
		Where("attempt_id = ? AND module_index = ?", attemptID, moduleIndex).
		Count(&count).Error; err != nil {
		return false
	}
	return count > 0
}

func (r *SubRoadmapRepository) Get(attemptID uint, moduleIndex int) (*model.SubRoadmap, error) {
	var sub model.SubRoadmap
	err := r.DB.Where("attempt_id = ? AND module_index = ?", attemptID, moduleIndex).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *SubRoadmapRepository) Put(attemptID uint, moduleIndex int, nodes []model.RoadmapNode) error {
	data, err := json.Marshal(nodes)
	if err != nil {
		return err
	}

	sub := &model.SubRoadmap{
		AttemptID:   attemptID,
		ModuleIndex: moduleIndex,
		Data:        string(data),
	}
	return r.DB.Create(sub).Error
}

// Invalidate 删除损坏的缓存行
func (r *SubRoadmapRepository) Invalidate(attemptID uint, moduleIndex int) error {
	return r.DB.Unscoped().
		Where("attempt_id = ? AND module_index = ?", attemptID, moduleIndex).
		Delete(&model.SubRoadmap{}).Error
}
