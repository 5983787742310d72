package service

import (
	"learnai_backend/internal/model"
	"learnai_backend/internal/repository"
	"learnai_backend/internal/util"
	"learnai_backend/pkg/logger"

	"go.uber.org/zap"
)

// DoubtAnswerer 课程节点下的即时答疑能力
type DoubtAnswerer interface {
	AnswerDoubt(topic, nodeTitle, question string) string
}

// ChatService 课程节点答疑对话
type ChatService struct {
	Messages *repository.ChatRepository
	Attempts *repository.AttemptRepository
	Answerer DoubtAnswerer
}

func NewChatService(messages *repository.ChatRepository, attempts *repository.AttemptRepository, answerer DoubtAnswerer) *ChatService {
	return &ChatService{
		Messages: messages,
		Attempts: attempts,
		Answerer: answerer,
	}
}

// History 返回节点下的全部消息，按时间正序
func (s *ChatService) History(attemptID uint, nodeTitle string) ([]model.ChatMessage, error) {
	return s.Messages.ListByNode(attemptID, nodeTitle)
}

// Send 记录用户提问并生成回答。回答生成失败时返回兜底文案，提问本身不丢。
func (s *ChatService) Send(attemptID uint, nodeTitle, message string) (*model.ChatMessage, *model.ChatMessage, error) {
	attempt, err := s.Attempts.FindByID(attemptID)
	if err != nil {
		return nil, nil, err
	}

	userMsg := &model.ChatMessage{
		AttemptID: attemptID,
		NodeTitle: nodeTitle,
		Sender:    util.SenderUser,
		Message:   message,
	}
	if err := s.Messages.Create(userMsg); err != nil {
		return nil, nil, err
	}

	answer := s.Answerer.AnswerDoubt(attempt.TopicName, nodeTitle, message)

	aiMsg := &model.ChatMessage{
		AttemptID: attemptID,
		NodeTitle: nodeTitle,
		Sender:    util.SenderAI,
		Message:   answer,
	}
	if err := s.Messages.Create(aiMsg); err != nil {
		logger.Log.Error("failed to persist ai reply",
			zap.Uint("attemptId", attemptID), zap.Error(err))
		return userMsg, aiMsg, nil
	}

	return userMsg, aiMsg, nil
}

// DeleteInteraction 删除一次问答：用户消息连同紧随其后的 AI 回复
func (s *ChatService) DeleteInteraction(messageID uint) error {
	return s.Messages.DeleteInteraction(messageID)
}
