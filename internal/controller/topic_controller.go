package controller

import (
	"errors"
	"strconv"

	"learnai_backend/internal/service"
	"learnai_backend/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type TopicController struct {
	TopicService *service.TopicService
}

func NewTopicController(topicService *service.TopicService) *TopicController {
	return &TopicController{TopicService: topicService}
}

func attemptIDParam(ctx *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param("attemptId"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid attempt id")
		return 0, false
	}
	return uint(id), true
}

// 会话不存在与会话已删除对外都表现为 404
func isAttemptGone(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) ||
		errors.Is(err, util.ErrAttemptNotFound) ||
		errors.Is(err, util.ErrAttemptDeleted)
}

// StartTopicRequest 开题请求
type StartTopicRequest struct {
	Topic string `json:"topic" binding:"required"`
}

// StartTopic godoc
// @Summary 开始学习新主题
// @Description 创建学习会话并生成主题引言
// @Tags 学习
// @Accept  json
// @Produce  json
// @Param   body body StartTopicRequest true "主题"
// @Success 201 {object} util.Response{data=service.StartTopicResult} "创建成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Security BearerAuth
// @Router /api/topics [post]
func (c *TopicController) StartTopic(ctx *gin.Context) {
	var req StartTopicRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	result, err := c.TopicService.StartTopic(claims.UserID, req.Topic)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Created(ctx, result)
}

// History godoc
// @Summary 学习历史
// @Description 返回当前用户的学习会话列表
// @Tags 学习
// @Produce  json
// @Success 200 {object} util.Response{data=[]model.TopicAttempt}
// @Security BearerAuth
// @Router /api/topics [get]
func (c *TopicController) History(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "50"))
	attempts, err := c.TopicService.History(claims.UserID, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, attempts)
}

// DeleteTopic godoc
// @Summary 删除学习会话
// @Description 级联删除会话及全部派生内容，在途生成任务静默放弃
// @Tags 学习
// @Produce  json
// @Param   attemptId path int true "会话ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response "会话不存在"
// @Security BearerAuth
// @Router /api/topics/{attemptId} [delete]
func (c *TopicController) DeleteTopic(ctx *gin.Context) {
	attemptID, ok := attemptIDParam(ctx)
	if !ok {
		return
	}
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	if err := c.TopicService.DeleteTopic(claims.UserID, attemptID); err != nil {
		if isAttemptGone(err) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, nil)
}

// GetRoadmap godoc
// @Summary 获取顶层路线图
// @Description 返回缓存的路线图，未生成时同步生成；同时触发首模块预取
// @Tags 学习
// @Produce  json
// @Param   attemptId path int true "会话ID"
// @Success 200 {object} util.Response{data=service.RoadmapResult}
// @Failure 404 {object} util.Response "会话不存在"
// @Security BearerAuth
// @Router /api/topics/{attemptId}/roadmap [get]
func (c *TopicController) GetRoadmap(ctx *gin.Context) {
	attemptID, ok := attemptIDParam(ctx)
	if !ok {
		return
	}

	result, err := c.TopicService.GetRoadmap(attemptID)
	if err != nil {
		if isAttemptGone(err) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, result)
}

// GetSubRoadmap godoc
// @Summary 获取模块子路线图
// @Description 返回某模块的课程列表并触发链式预取
// @Tags 学习
// @Produce  json
// @Param   attemptId path int true "会话ID"
// @Param   moduleIndex path int true "模块下标"
// @Param   moduleTitle query string true "模块标题"
// @Success 200 {object} util.Response{data=object}
// @Failure 404 {object} util.Response "会话不存在"
// @Security BearerAuth
// @Router /api/topics/{attemptId}/modules/{moduleIndex}/roadmap [get]
func (c *TopicController) GetSubRoadmap(ctx *gin.Context) {
	attemptID, ok := attemptIDParam(ctx)
	if !ok {
		return
	}
	moduleIndex, err := strconv.Atoi(ctx.Param("moduleIndex"))
	if err != nil || moduleIndex < 0 {
		util.BadRequest(ctx, "invalid module index")
		return
	}
	moduleTitle := ctx.Query("moduleTitle")
	if moduleTitle == "" {
		util.BadRequest(ctx, "moduleTitle is required")
		return
	}

	nodes, err := c.TopicService.GetSubRoadmap(attemptID, moduleIndex, moduleTitle)
	if err != nil {
		if isAttemptGone(err) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, gin.H{"subRoadmap": nodes})
}

// NodeRequest 课程节点请求
type NodeRequest struct {
	NodeIndex int    `json:"nodeIndex"`
	NodeTitle string `json:"nodeTitle" binding:"required"`
}

// GetNode godoc
// @Summary 获取课程内容
// @Description 返回单节课程的正文、配图与测验，未命中缓存时同步生成
// @Tags 学习
// @Accept  json
// @Produce  json
// @Param   attemptId path int true "会话ID"
// @Param   body body NodeRequest true "节点信息"
// @Success 200 {object} util.Response{data=model.LessonContent}
// @Failure 404 {object} util.Response "会话不存在"
// @Security BearerAuth
// @Router /api/topics/{attemptId}/nodes [post]
func (c *TopicController) GetNode(ctx *gin.Context) {
	attemptID, ok := attemptIDParam(ctx)
	if !ok {
		return
	}
	var req NodeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	content, err := c.TopicService.GetNode(attemptID, req.NodeIndex, req.NodeTitle)
	if err != nil {
		if isAttemptGone(err) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, content)
}

// SubmitQuizRequest 测验提交请求。ModuleIndex 缺省时不记模块进度。
type SubmitQuizRequest struct {
	NodeIndex      int      `json:"nodeIndex"`
	ModuleIndex    *int     `json:"moduleIndex"`
	NodeTitle      string   `json:"nodeTitle" binding:"required"`
	Score          int      `json:"score"`
	Passed         bool     `json:"passed"`
	FailedConcepts []string `json:"failedConcepts"`
}

// SubmitQuiz godoc
// @Summary 提交测验结果
// @Description 通过时发放经验并记录进度，未通过时生成简化版补救课程
// @Tags 学习
// @Accept  json
// @Produce  json
// @Param   attemptId path int true "会话ID"
// @Param   body body SubmitQuizRequest true "测验结果"
// @Success 200 {object} util.Response{data=service.QuizResult}
// @Failure 404 {object} util.Response "会话不存在"
// @Security BearerAuth
// @Router /api/topics/{attemptId}/nodes/quiz [post]
func (c *TopicController) SubmitQuiz(ctx *gin.Context) {
	attemptID, ok := attemptIDParam(ctx)
	if !ok {
		return
	}
	var req SubmitQuizRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	moduleIndex := -1
	if req.ModuleIndex != nil {
		moduleIndex = *req.ModuleIndex
	}

	result, err := c.TopicService.SubmitQuiz(attemptID, req.NodeIndex, moduleIndex, req.NodeTitle, req.Score, req.Passed, req.FailedConcepts)
	if err != nil {
		if isAttemptGone(err) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, result)
}
