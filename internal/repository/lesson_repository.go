package repository

import (
	"encoding/json"
	"errors"
	"strings"

	"learnai_backend/internal/model"

	"gorm.io/gorm"
)

// LessonRepository 课程内容缓存。键为 (attempt_id, node_title)，
// 数据库唯一索引兜底防止并发下重复落库。
type LessonRepository struct {
	DB *gorm.DB
}

func NewLessonRepository(db *gorm.DB) *LessonRepository {
	return &LessonRepository{DB: db}
}

func (r *LessonRepository) Exists(attemptID uint, nodeTitle string) bool {
	var count int64
	if err := r.DB.Model(&model.Lesson{}).
		Where("attempt_id = ? AND node_title = ?", attemptID, nodeTitle).
		Count(&count).Error; err != nil {
		return false
	}
	return count > 0
}

func (r *LessonRepository) Get(attemptID uint, nodeTitle string) (*model.Lesson, error) {
	var lesson model.Lesson
	err := r.DB.Where("attempt_id = ? AND node_title = ?", attemptID, nodeTitle).
		First(&lesson).Error
	if err != nil {
		return nil, err
	}
	return &lesson, nil
}

// Put 写入生成产物。并发重复写时命中唯一索引报错，调用方按已存在处理
func (r *LessonRepository) Put(attemptID uint, nodeIndex int, nodeTitle string, content *model.LessonContent) error {
	quizData, err := json.Marshal(content.Quiz)
	if err != nil {
		return err
	}

	lesson := &model.Lesson{
		AttemptID: attemptID,
		NodeIndex: nodeIndex,
		NodeTitle: nodeTitle,
		Content:   content.Content,
		ImageURL:  content.ImageURL,
		QuizData:  string(quizData),
	}
	return r.DB.Create(lesson).Error
}

// MarkComplete 测验通过后的完成标记
func (r *LessonRepository) MarkComplete(attemptID uint, nodeTitle string) error {
	return r.DB.Model(&model.Lesson{}).
		Where("attempt_id = ? AND node_title = ?", attemptID, nodeTitle).
		Update("completed", true).Error
}

// Invalidate 删除损坏的缓存行，后续访问按缓存未命中重新生成
func (r *LessonRepository) Invalidate(attemptID uint, nodeTitle string) error {
	return r.DB.Unscoped().
		Where("attempt_id = ? AND node_title = ?", attemptID, nodeTitle).
		Delete(&model.Lesson{}).Error
}

func (r *LessonRepository) CountByAttempt(attemptID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.Lesson{}).Where("attempt_id = ?", attemptID).Count(&count).Error
	return count, err
}

// IsDuplicateKey 判断写入失败是否由唯一索引冲突导致
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// mysql 1062 / sqlite UNIQUE constraint 的驱动错误文本兜底
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}
