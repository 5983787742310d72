package controller

import (
	"strconv"

	"learnai_backend/internal/service"
	"learnai_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ChatController struct {
	ChatService *service.ChatService
}

func NewChatController(chatService *service.ChatService) *ChatController {
	return &ChatController{ChatService: chatService}
}

// History godoc
// @Summary 节点答疑历史
// @Description 返回课程节点下的全部问答消息
// @Tags 答疑
// @Produce  json
// @Param   attemptId path int true "会话ID"
// @Param   nodeTitle query string true "节点标题"
// @Success 200 {object} util.Response{data=[]model.ChatMessage}
// @Security BearerAuth
// @Router /api/topics/{attemptId}/chat [get]
func (c *ChatController) History(ctx *gin.Context) {
	attemptID, ok := attemptIDParam(ctx)
	if !ok {
		return
	}
	nodeTitle := ctx.Query("nodeTitle")
	if nodeTitle == "" {
		util.BadRequest(ctx, "nodeTitle is required")
		return
	}

	messages, err := c.ChatService.History(attemptID, nodeTitle)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"messages": messages})
}

// SendMessageRequest 提问请求
type SendMessageRequest struct {
	NodeTitle string `json:"nodeTitle" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

// Send godoc
// @Summary 节点提问
// @Description 在课程节点下提问并获得即时回答
// @Tags 答疑
// @Accept  json
// @Produce  json
// @Param   attemptId path int true "会话ID"
// @Param   body body SendMessageRequest true "提问内容"
// @Success 200 {object} util.Response{data=object}
// @Failure 404 {object} util.Response "会话不存在"
// @Security BearerAuth
// @Router /api/topics/{attemptId}/chat [post]
func (c *ChatController) Send(ctx *gin.Context) {
	attemptID, ok := attemptIDParam(ctx)
	if !ok {
		return
	}
	var req SendMessageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	userMsg, aiMsg, err := c.ChatService.Send(attemptID, req.NodeTitle, req.Message)
	if err != nil {
		if isAttemptGone(err) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, gin.H{"userMessage": userMsg, "aiMessage": aiMsg})
}

// DeleteInteraction godoc
// @Summary 删除一次问答
// @Description 删除用户提问及紧随其后的回答
// @Tags 答疑
// @Produce  json
// @Param   attemptId path int true "会话ID"
// @Param   messageId path int true "用户消息ID"
// @Success 200 {object} util.Response
// @Security BearerAuth
// @Router /api/topics/{attemptId}/chat/{messageId} [delete]
func (c *ChatController) DeleteInteraction(ctx *gin.Context) {
	messageID, err := strconv.ParseUint(ctx.Param("messageId"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid message id")
		return
	}

	if err := c.ChatService.DeleteInteraction(uint(messageID)); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
