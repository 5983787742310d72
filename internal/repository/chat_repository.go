package repository

import (
	"learnai_backend/internal/model"

	"gorm.io/gorm"
)

type ChatRepository struct {
	DB *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{DB: db}
}

func (r *ChatRepository) ListByNode(attemptID uint, nodeTitle string) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	err := r.DB.Where("attempt_id = ? AND node_title = ?", attemptID, nodeTitle).
		Order("id ASC").Find(&messages).Error
	return messages, err
}

func (r *ChatRepository) Create(msg *model.ChatMessage) error {
	return r.DB.Create(msg).Error
}

// DeleteInteraction 删除一条用户消息；若紧随其后的一条是 AI 回复则一并删除
func (r *ChatRepository) DeleteInteraction(messageID uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var next model.ChatMessage
		hasNext := tx.Where("id > ?", messageID).Order("id ASC").First(&next).Error == nil

		if err := tx.Unscoped().Delete(&model.ChatMessage{}, messageID).Error; err != nil {
			return err
		}

		if hasNext && next.Sender == "ai" {
			return tx.Unscoped().Delete(&model.ChatMessage{}, next.ID).Error
		}
		return nil
	})
}
