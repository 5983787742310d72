package service

import (
	"fmt"
	"strings"
	"time"

	"learnai_backend/internal/config"
	"learnai_backend/internal/model"
	"learnai_backend/internal/repository"
	"learnai_backend/pkg/logger"
	"learnai_backend/pkg/monitoring"
	"learnai_backend/pkg/workerpool"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ContentGenerator 内容生成的外部能力。调用可能超时、失败或返回坏数据，
// 重试与降级策略由编排器负责。
type ContentGenerator interface {
	GenerateRoadmap(topic string) ([]model.RoadmapNode, error)
	GenerateSubRoadmap(topic, moduleTitle string) ([]model.RoadmapNode, error)
	GenerateLesson(topic, nodeTitle string) (*model.LessonContent, error)
}

// ImageFinder 配图检索的外部能力，找不到时返回空串
type ImageFinder interface {
	Find(topic, subtopic string) string
}

// 生成彻底失败时返回给调用方的占位课程正文，不落库，下次访问可重新生成
const placeholderContent = "## 内容生成失败\n请稍后刷新此节点重试。"

// Orchestrator 内容生成编排器。
//
// 职责：同一键的内容至多生成一次；墓碑化会话的任务静默放弃；
// 生成失败降级为占位内容而不是报错；成功结果先落库再返回。
// 同一 (会话, 键) 的并发请求通过 singleflight 合并为一次生成，
// 后来者直接等待首个请求的结果。
type Orchestrator struct {
	gen      ContentGenerator
	images   ImageFinder
	attempts *repository.AttemptRepository
	lessons  *repository.LessonRepository
	subMaps  *repository.SubRoadmapRepository
	pool     *workerpool.Pool
	cfg      config.PrefetchConfig
	flight   singleflight.Group

	// 测试中替换为空实现以跳过重试等待
	sleep func(time.Duration)
}

func NewOrchestrator(
	gen ContentGenerator,
	images ImageFinder,
	attempts *repository.AttemptRepository,
	lessons *repository.LessonRepository,
	subMaps *repository.SubRoadmapRepository,
	cfg config.PrefetchConfig,
) *Orchestrator {
	config.ApplyPrefetchDefaults(&cfg)

	return &Orchestrator{
		gen:      gen,
		images:   images,
		attempts: attempts,
		lessons:  lessons,
		subMaps:  subMaps,
		pool:     workerpool.New(cfg.Workers, cfg.Workers*32),
		cfg:      cfg,
		sleep:    time.Sleep,
	}
}

// Stop 停止后台工作池，等待在途任务结束
func (o *Orchestrator) Stop() {
	o.pool.Stop()
}

// EnsureLesson 确保 (attemptID, nodeTitle) 的课程内容存在并返回。
// 缓存命中直接返回；未命中则同步生成。会话已删除时返回 (nil, nil)。
func (o *Orchestrator) EnsureLesson(attemptID uint, nodeIndex int, topic, nodeTitle string) (*model.LessonContent, error) {
	key := fmt.Sprintf("lesson:%d:%s", attemptID, nodeTitle)
	v, err, _ := o.flight.Do(key, func() (interface{}, error) {
		return o.ensureLesson(attemptID, nodeIndex, topic, nodeTitle), nil
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	content, _ := v.(*model.LessonContent)
	return content, nil
}

func (o *Orchestrator) ensureLesson(attemptID uint, nodeIndex int, topic, nodeTitle string) *model.LessonContent {
	// 任务开始时的存活检查
	if !o.attempts.Exists(attemptID) {
		monitoring.TombstoneDiscards.Inc()
		return nil
	}

	// 缓存检查；存量数据损坏时按未命中处理并清掉坏行
	if lesson, err := o.lessons.Get(attemptID, nodeTitle); err == nil {
		if content := lesson.ToContent(); content != nil {
			monitoring.CacheHits.WithLabelValues("lesson").Inc()
			return content
		}
		logger.Log.Warn("corrupt cached lesson, regenerating",
			zap.Uint("attemptId", attemptID), zap.String("nodeTitle", nodeTitle))
		if err := o.lessons.Invalidate(attemptID, nodeTitle); err != nil {
			logger.Log.Error("failed to invalidate lesson cache", zap.Error(err))
		}
	}

	// 配图独立于正文生成，失败只意味着没有配图
	imageURL := o.images.Find(topic, cleanNodeTitle(nodeTitle))

	content := o.generateLessonWithRetry(topic, nodeTitle)
	if content == nil {
		// 降级：占位内容不落库，后续访问从头重试
		monitoring.GenerationTotal.WithLabelValues("lesson", "placeholder").Inc()
		return &model.LessonContent{
			Content:  placeholderContent,
			Quiz:     []model.QuizQuestion{},
			ImageURL: imageURL,
		}
	}
	content.ImageURL = imageURL

	// 落库前复查存活：会话在生成期间被删除时丢弃结果
	if !o.attempts.Exists(attemptID) {
		monitoring.TombstoneDiscards.Inc()
		return nil
	}

	if err := o.lessons.Put(attemptID, nodeIndex, nodeTitle, content); err != nil {
		if repository.IsDuplicateKey(err) {
			// 另一写入方先到，以库中版本为准
			if existing, gerr := o.lessons.Get(attemptID, nodeTitle); gerr == nil {
				if c := existing.ToContent(); c != nil {
					return c
				}
			}
		} else {
			// 持久化失败只记日志，本次请求仍返回内存结果
			logger.Log.Error("failed to persist lesson",
				zap.Uint("attemptId", attemptID), zap.String("nodeTitle", nodeTitle), zap.Error(err))
		}
	}

	monitoring.GenerationTotal.WithLabelValues("lesson", "success").Inc()
	return content
}

func (o *Orchestrator) generateLessonWithRetry(topic, nodeTitle string) *model.LessonContent {
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		content, err := o.gen.GenerateLesson(topic, nodeTitle)
		if err == nil && content != nil && len(content.Content) >= o.cfg.MinContentLength {
			return content
		}

		monitoring.GenerationTotal.WithLabelValues("lesson", "failed").Inc()
		if err != nil {
			logger.Log.Warn("lesson generation failed",
				zap.String("nodeTitle", nodeTitle), zap.Int("attempt", attempt), zap.Error(err))
		} else {
			logger.Log.Warn("lesson generation rejected: content too short",
				zap.String("nodeTitle", nodeTitle), zap.Int("attempt", attempt))
		}

		if attempt < o.cfg.MaxAttempts {
			o.sleep(o.cfg.RetryBackoff)
		}
	}
	return nil
}

// EnsureSubRoadmap 确保 (attemptID, moduleIndex) 的子路线图存在并返回。
// 新生成成功后为前 LessonFanout 节课程提交后台预取。
// 会话已删除时返回 (nil, nil)；生成彻底失败时返回空列表。
func (o *Orchestrator) EnsureSubRoadmap(attemptID uint, moduleIndex int, topic, moduleTitle string) ([]model.RoadmapNode, error) {
	key := fmt.Sprintf("submap:%d:%d", attemptID, moduleIndex)
	v, err, _ := o.flight.Do(key, func() (interface{}, error) {
		return o.ensureSubRoadmap(attemptID, moduleIndex, topic, moduleTitle), nil
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	nodes, _ := v.([]model.RoadmapNode)
	return nodes, nil
}

func (o *Orchestrator) ensureSubRoadmap(attemptID uint, moduleIndex int, topic, moduleTitle string) []model.RoadmapNode {
	if !o.attempts.Exists(attemptID) {
		monitoring.TombstoneDiscards.Inc()
		return nil
	}

	if sub, err := o.subMaps.Get(attemptID, moduleIndex); err == nil {
		if nodes := sub.Nodes(); nodes != nil {
			monitoring.CacheHits.WithLabelValues("sub_roadmap").Inc()
			return nodes
		}
		logger.Log.Warn("corrupt cached sub-roadmap, regenerating",
			zap.Uint("attemptId", attemptID), zap.Int("moduleIndex", moduleIndex))
		if err := o.subMaps.Invalidate(attemptID, moduleIndex); err != nil {
			logger.Log.Error("failed to invalidate sub-roadmap cache", zap.Error(err))
		}
	}

	var nodes []model.RoadmapNode
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		result, err := o.gen.GenerateSubRoadmap(topic, moduleTitle)
		if err == nil && len(result) > 0 {
			nodes = result
			break
		}

		monitoring.GenerationTotal.WithLabelValues("sub_roadmap", "failed").Inc()
		if err != nil {
			logger.Log.Warn("sub-roadmap generation failed",
				zap.String("moduleTitle", moduleTitle), zap.Int("attempt", attempt), zap.Error(err))
		}
		if attempt < o.cfg.MaxAttempts {
			o.sleep(o.cfg.RetryBackoff)
		}
	}

	if len(nodes) == 0 {
		monitoring.GenerationTotal.WithLabelValues("sub_roadmap", "placeholder").Inc()
		return []model.RoadmapNode{}
	}

	if !o.attempts.Exists(attemptID) {
		monitoring.TombstoneDiscards.Inc()
		return nil
	}

	if err := o.subMaps.Put(attemptID, moduleIndex, nodes); err != nil {
		if repository.IsDuplicateKey(err) {
			if existing, gerr := o.subMaps.Get(attemptID, moduleIndex); gerr == nil {
				if cached := existing.Nodes(); cached != nil {
					nodes = cached
				}
			}
		} else {
			logger.Log.Error("failed to persist sub-roadmap",
				zap.Uint("attemptId", attemptID), zap.Int("moduleIndex", moduleIndex), zap.Error(err))
		}
	}
	monitoring.GenerationTotal.WithLabelValues("sub_roadmap", "success").Inc()

	// 新生成的模块结构：先把前几节课程排进后台，优先消除打开模块后的首屏等待
	fanout := o.cfg.LessonFanout
	if fanout > len(nodes) {
		fanout = len(nodes)
	}
	for i := 0; i < fanout; i++ {
		o.PrefetchLesson(attemptID, i, topic, nodes[i].Title)
	}

	return nodes
}

// PrefetchLesson 提交课程内容的后台预取。按 nodeIndex 错峰，
// 避免同一模块的多节课程同时打到生成端。
func (o *Orchestrator) PrefetchLesson(attemptID uint, nodeIndex int, topic, nodeTitle string) {
	delay := time.Duration(nodeIndex) * o.cfg.StaggerDelay
	submitted := o.pool.TrySubmit(func() {
		if delay > 0 {
			o.sleep(delay)
		}
		if _, err := o.EnsureLesson(attemptID, nodeIndex, topic, nodeTitle); err != nil {
			logger.Log.Warn("lesson prefetch failed",
				zap.Uint("attemptId", attemptID), zap.String("nodeTitle", nodeTitle), zap.Error(err))
		}
	})
	if !submitted {
		logger.Log.Debug("lesson prefetch dropped, pool saturated",
			zap.Uint("attemptId", attemptID), zap.String("nodeTitle", nodeTitle))
	}
	monitoring.PoolQueueDepth.Set(float64(o.pool.QueueDepth()))
}

// PrefetchSubRoadmap 提交子路线图的后台预取
func (o *Orchestrator) PrefetchSubRoadmap(attemptID uint, moduleIndex int, topic, moduleTitle string) {
	submitted := o.pool.TrySubmit(func() {
		if _, err := o.EnsureSubRoadmap(attemptID, moduleIndex, topic, moduleTitle); err != nil {
			logger.Log.Warn("sub-roadmap prefetch failed",
				zap.Uint("attemptId", attemptID), zap.Int("moduleIndex", moduleIndex), zap.Error(err))
		}
	})
	if !submitted {
		logger.Log.Debug("sub-roadmap prefetch dropped, pool saturated",
			zap.Uint("attemptId", attemptID), zap.Int("moduleIndex", moduleIndex))
	}
	monitoring.PoolQueueDepth.Set(float64(o.pool.QueueDepth()))
}

// CascadeFromRoadmap 顶层路线图可用后，只为第 0 个模块排子路线图预取，
// 更深的模块随用户推进逐层发现
func (o *Orchestrator) CascadeFromRoadmap(attemptID uint, topic string, roadmap []model.RoadmapNode) {
	if len(roadmap) == 0 {
		return
	}
	o.PrefetchSubRoadmap(attemptID, 0, topic, roadmap[0].Title)
}

// CascadeFromSubRoadmap 子路线图可用后的链式预取：
// 先横向铺满当前模块的全部课程，再纵深预取下一个模块的结构
func (o *Orchestrator) CascadeFromSubRoadmap(attemptID uint, moduleIndex int, topic string, subRoadmap, fullRoadmap []model.RoadmapNode) {
	for i, node := range subRoadmap {
		o.PrefetchLesson(attemptID, i, topic, node.Title)
	}

	if next := moduleIndex + 1; next < len(fullRoadmap) {
		o.PrefetchSubRoadmap(attemptID, next, topic, fullRoadmap[next].Title)
	}
}

// cleanNodeTitle 去掉 "Module 3: xxx" 式前缀，得到更聚焦的图片检索词
func cleanNodeTitle(title string) string {
	if idx := strings.LastIndex(title, ":"); idx >= 0 && idx+1 < len(title) {
		return strings.TrimSpace(title[idx+1:])
	}
	return strings.TrimSpace(title)
}
