package service

import (
	"fmt"

	"learnai_backend/internal/model"
	"learnai_backend/internal/repository"
	"learnai_backend/internal/util"
	"learnai_backend/pkg/logger"
	"learnai_backend/pkg/monitoring"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// TopicGenerator 主题级内容生成能力，课程级生成走编排器
type TopicGenerator interface {
	GenerateTopicIntro(topic string) (*model.TopicIntro, error)
	GenerateRoadmap(topic string) ([]model.RoadmapNode, error)
	GenerateRemedialLesson(topic, nodeTitle string, failedConcepts []string) (*model.LessonContent, error)
}

// TopicService 学习会话的业务入口：开题、路线图、课程节点、测验提交
type TopicService struct {
	attempts *repository.AttemptRepository
	lessons  *repository.LessonRepository
	results  *repository.NodeResultRepository
	users    *repository.UserRepository
	gen      TopicGenerator
	orch     *Orchestrator
	flight   singleflight.Group
}

func NewTopicService(
	attempts *repository.AttemptRepository,
	lessons *repository.LessonRepository,
	results *repository.NodeResultRepository,
	users *repository.UserRepository,
	gen TopicGenerator,
	orch *Orchestrator,
) *TopicService {
	return &TopicService{
		attempts: attempts,
		lessons:  lessons,
		results:  results,
		users:    users,
		gen:      gen,
		orch:     orch,
	}
}

// StartTopicResult 开题响应：新会话 ID 与主题引言
type StartTopicResult struct {
	AttemptID uint              `json:"attemptId"`
	Intro     *model.TopicIntro `json:"definition"`
}

// StartTopic 创建学习会话。引言生成失败时用兜底文案，开题本身不失败。
func (s *TopicService) StartTopic(userID uint, topic string) (*StartTopicResult, error) {
	intro, err := s.gen.GenerateTopicIntro(topic)
	if err != nil {
		logger.Log.Warn("topic intro generation failed, using fallback",
			zap.String("topic", topic), zap.Error(err))
		intro = &model.TopicIntro{
			Topic: topic,
			Intro: fmt.Sprintf("让我们开始学习 **%s**。", topic),
			Hook:  "",
		}
	}

	attempt := &model.TopicAttempt{
		UserID:           userID,
		TopicName:        intro.Topic,
		CompletedModules: "[]",
	}
	if err := s.attempts.Create(attempt); err != nil {
		return nil, err
	}
	if err := s.attempts.UpdateIntro(attempt.ID, intro); err != nil {
		logger.Log.Error("failed to cache topic intro",
			zap.Uint("attemptId", attempt.ID), zap.Error(err))
	}

	return &StartTopicResult{AttemptID: attempt.ID, Intro: intro}, nil
}

// RoadmapResult 路线图响应
type RoadmapResult struct {
	Roadmap          []model.RoadmapNode `json:"roadmap"`
	CompletedIndices []int               `json:"completedIndices"`
	Intro            *model.TopicIntro   `json:"definition,omitempty"`
}

// GetRoadmap 返回会话的顶层路线图，未生成或缓存损坏时同步生成一次并缓存。
// 无论命中与否都重新触发模块 0 的链式预取，预取本身幂等。
func (s *TopicService) GetRoadmap(attemptID uint) (*RoadmapResult, error) {
	attempt, err := s.attempts.FindByID(attemptID)
	if err != nil {
		return nil, err
	}

	roadmap := attempt.Roadmap()
	if roadmap != nil {
		monitoring.CacheHits.WithLabelValues("roadmap").Inc()
	} else {
		key := fmt.Sprintf("roadmap:%d", attemptID)
		v, err, _ := s.flight.Do(key, func() (interface{}, error) {
			nodes, err := s.gen.GenerateRoadmap(attempt.TopicName)
			if err != nil {
				monitoring.GenerationTotal.WithLabelValues("roadmap", "failed").Inc()
				return nil, err
			}
			if len(nodes) > 0 {
				if err := s.attempts.UpdateRoadmap(attemptID, nodes); err != nil {
					logger.Log.Error("failed to cache roadmap",
						zap.Uint("attemptId", attemptID), zap.Error(err))
				}
			}
			monitoring.GenerationTotal.WithLabelValues("roadmap", "success").Inc()
			return nodes, nil
		})
		if err != nil {
			logger.Log.Warn("roadmap generation failed",
				zap.Uint("attemptId", attemptID), zap.Error(err))
			roadmap = []model.RoadmapNode{}
		} else {
			roadmap, _ = v.([]model.RoadmapNode)
		}
	}

	s.orch.CascadeFromRoadmap(attemptID, attempt.TopicName, roadmap)

	return &RoadmapResult{
		Roadmap:          roadmap,
		CompletedIndices: attempt.CompletedIndices(),
		Intro:            attempt.Intro(),
	}, nil
}

// GetSubRoadmap 返回某模块的子路线图并触发链式预取：
// 当前模块全部课程横向铺开，随后预取下一模块结构
func (s *TopicService) GetSubRoadmap(attemptID uint, moduleIndex int, moduleTitle string) ([]model.RoadmapNode, error) {
	attempt, err := s.attempts.FindByID(attemptID)
	if err != nil {
		return nil, err
	}

	nodes, err := s.orch.EnsureSubRoadmap(attemptID, moduleIndex, attempt.TopicName, moduleTitle)
	if err != nil {
		return nil, err
	}
	if nodes == nil {
		return nil, util.ErrAttemptDeleted
	}

	s.orch.CascadeFromSubRoadmap(attemptID, moduleIndex, attempt.TopicName, nodes, attempt.Roadmap())
	return nodes, nil
}

// GetNode 返回单节课程内容，缓存未命中时同步生成（含降级占位）
func (s *TopicService) GetNode(attemptID uint, nodeIndex int, nodeTitle string) (*model.LessonContent, error) {
	attempt, err := s.attempts.FindByID(attemptID)
	if err != nil {
		return nil, err
	}

	content, err := s.orch.EnsureLesson(attemptID, nodeIndex, attempt.TopicName, nodeTitle)
	if err != nil {
		return nil, err
	}
	if content == nil {
		return nil, util.ErrAttemptDeleted
	}
	return content, nil
}

// QuizResult 测验提交响应
type QuizResult struct {
	Passed         bool                 `json:"passed"`
	XPGained       int                  `json:"xpGained"`
	TotalXP        int                  `json:"totalXp"`
	Level          int                  `json:"level"`
	RemedialLesson *model.LessonContent `json:"remedialLesson,omitempty"`
}

// SubmitQuiz 记录测验结果。通过时发经验、标记课程完成、
// 记录模块进度；未通过时生成简化版补救课程。
func (s *TopicService) SubmitQuiz(attemptID uint, nodeIndex, moduleIndex int, nodeTitle string, score int, passed bool, failedConcepts []string) (*QuizResult, error) {
	attempt, err := s.attempts.FindByID(attemptID)
	if err != nil {
		return nil, err
	}

	if err := s.results.Create(&model.NodeResult{
		AttemptID: attemptID,
		NodeIndex: nodeIndex,
		NodeTitle: nodeTitle,
		Score:     score,
		Passed:    passed,
	}); err != nil {
		logger.Log.Error("failed to record quiz result",
			zap.Uint("attemptId", attemptID), zap.Error(err))
	}

	result := &QuizResult{Passed: passed}

	if passed {
		if err := s.lessons.MarkComplete(attemptID, nodeTitle); err != nil {
			logger.Log.Error("failed to mark lesson complete",
				zap.Uint("attemptId", attemptID), zap.String("nodeTitle", nodeTitle), zap.Error(err))
		}
		if moduleIndex >= 0 {
			if err := s.attempts.AppendCompletedModule(attemptID, moduleIndex); err != nil {
				logger.Log.Error("failed to record module progress",
					zap.Uint("attemptId", attemptID), zap.Error(err))
			}
		}

		user, err := s.users.AddXP(attempt.UserID, util.QuizPassXP)
		if err != nil {
			logger.Log.Error("failed to award xp",
				zap.Uint("userId", attempt.UserID), zap.Error(err))
		} else {
			result.XPGained = util.QuizPassXP
			result.TotalXP = user.XP
			result.Level = user.Level
		}
		return result, nil
	}

	// 未通过：生成补救课程，失败时只返回结果不附补救内容
	remedial, err := s.gen.GenerateRemedialLesson(attempt.TopicName, nodeTitle, failedConcepts)
	if err != nil {
		logger.Log.Warn("remedial lesson generation failed",
			zap.String("nodeTitle", nodeTitle), zap.Error(err))
	} else {
		result.RemedialLesson = remedial
	}
	return result, nil
}

// History 返回用户的学习会话列表
func (s *TopicService) History(userID uint, limit int) ([]model.TopicAttempt, error) {
	return s.attempts.FindByUser(userID, limit)
}

// DeleteTopic 删除学习会话。先校验归属，再级联删除全部派生数据；
// 删除即墓碑化，在途生成任务随后的存活检查会静默放弃。
func (s *TopicService) DeleteTopic(userID, attemptID uint) error {
	attempt, err := s.attempts.FindByID(attemptID)
	if err != nil {
		return err
	}
	if attempt.UserID != userID {
		return util.ErrAttemptNotFound
	}
	return s.attempts.DeleteCascade(attemptID)
}
