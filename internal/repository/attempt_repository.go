package repository

import (
	"encoding/json"
	"errors"

	"learnai_backend/internal/model"

	"gorm.io/gorm"
)

// AttemptRepository 学习会话的存取。编排器只依赖其中的
// Exists（存活检查）与只读查询，写路径全部走短事务。
type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

func (r *AttemptRepository) Create(attempt *model.TopicAttempt) error {
	if attempt.CompletedModules == "" {
		attempt.CompletedModules = "[]"
	}
	return r.DB.Create(attempt).Error
}

func (r *AttemptRepository) FindByID(id uint) (*model.TopicAttempt, error) {
	var attempt model.TopicAttempt
	err := r.DB.First(&attempt, id).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// Exists 存活检查：会话被删除后所有生成任务都应放弃
func (r *AttemptRepository) Exists(id uint) bool {
	var count int64
	if err := r.DB.Model(&model.TopicAttempt{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false
	}
	return count > 0
}

// FindByUser 按创建时间倒序返回用户的会话，limit 不为正时返回全部
func (r *AttemptRepository) FindByUser(userID uint, limit int) ([]model.TopicAttempt, error) {
	if limit <= 0 {
		limit = -1
	}
	var attempts []model.TopicAttempt
	err := r.DB.Where("user_id = ?", userID).Order("id DESC").Limit(limit).Find(&attempts).Error
	return attempts, err
}

func (r *AttemptRepository) CountByUser(userID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.TopicAttempt{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (r *AttemptRepository) UpdateRoadmap(id uint, roadmap []model.RoadmapNode) error {
	data, err := json.Marshal(roadmap)
	if err != nil {
		return err
	}
	return r.DB.Model(&model.TopicAttempt{}).Where("id = ?", id).
		Update("roadmap_data", string(data)).Error
}

func (r *AttemptRepository) UpdateIntro(id uint, intro *model.TopicIntro) error {
	data, err := json.Marshal(intro)
	if err != nil {
		return err
	}
	return r.DB.Model(&model.TopicAttempt{}).Where("id = ?", id).
		Update("intro_data", string(data)).Error
}

// AppendCompletedModule 追加已完成模块下标，幂等：重复下标不再追加
func (r *AttemptRepository) AppendCompletedModule(id uint, moduleIndex int) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var attempt model.TopicAttempt
		if err := tx.First(&attempt, id).Error; err != nil {
			return err
		}

		indices := attempt.CompletedIndices()
		for _, idx := range indices {
			if idx == moduleIndex {
				return nil
			}
		}
		indices = append(indices, moduleIndex)

		data, err := json.Marshal(indices)
		if err != nil {
			return err
		}
		return tx.Model(&attempt).Update("completed_modules", string(data)).Error
	})
}

// DeleteCascade 删除会话及其全部派生内容。没有外键级联，手动逐表删除；
// 删除完成后该会话即墓碑化
func (r *AttemptRepository) DeleteCascade(id uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var attempt model.TopicAttempt
		if err := tx.First(&attempt, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		if err := tx.Unscoped().Where("attempt_id = ?", id).Delete(&model.ChatMessage{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("attempt_id = ?", id).Delete(&model.Lesson{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("attempt_id = ?", id).Delete(&model.SubRoadmap{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("attempt_id = ?", id).Delete(&model.NodeResult{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&attempt).Error
	})
}
