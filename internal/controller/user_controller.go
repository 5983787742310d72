package controller

import (
	"learnai_backend/internal/service"
	"learnai_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type UserController struct {
	UserService         *service.UserService
	GamificationService *service.GamificationService
}

func NewUserController(userService *service.UserService, gamificationService *service.GamificationService) *UserController {
	return &UserController{
		UserService:         userService,
		GamificationService: gamificationService,
	}
}

// Stats godoc
// @Summary 学习统计
// @Description 返回当前用户的经验、等级、进度与连续打卡天数
// @Tags 用户
// @Produce  json
// @Success 200 {object} util.Response{data=service.UserStats}
// @Security BearerAuth
// @Router /api/users/stats [get]
func (c *UserController) Stats(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	stats, err := c.UserService.Stats(claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, stats)
}

// UpdateProfileRequest 资料更新请求
type UpdateProfileRequest struct {
	Name string `json:"name" binding:"required"`
}

// UpdateProfile godoc
// @Summary 更新资料
// @Description 修改昵称
// @Tags 用户
// @Accept  json
// @Produce  json
// @Param   body body UpdateProfileRequest true "新资料"
// @Success 200 {object} util.Response{data=model.User}
// @Security BearerAuth
// @Router /api/users/profile [put]
func (c *UserController) UpdateProfile(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	var req UpdateProfileRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	user, err := c.UserService.UpdateProfile(claims.UserID, req.Name)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, user)
}

// UploadAvatar godoc
// @Summary 上传头像
// @Description 上传头像文件并更新用户资料
// @Tags 用户
// @Accept  multipart/form-data
// @Produce  json
// @Param   avatar formData file true "头像文件"
// @Success 200 {object} util.Response{data=object}
// @Security BearerAuth
// @Router /api/users/avatar [post]
func (c *UserController) UploadAvatar(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	file, err := ctx.FormFile("avatar")
	if err != nil {
		util.BadRequest(ctx, "avatar file is required")
		return
	}

	url, err := c.UserService.UploadAvatar(ctx.Request.Context(), claims.UserID, file)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"avatarUrl": url})
}

// Checkin godoc
// @Summary 每日签到
// @Description 记录当日打卡并返回连续天数，重复签到幂等
// @Tags 用户
// @Produce  json
// @Success 200 {object} util.Response{data=service.CheckinResult}
// @Security BearerAuth
// @Router /api/users/checkin [post]
func (c *UserController) Checkin(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	result, err := c.UserService.Checkin(claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// CheckinStats godoc
// @Summary 签到统计
// @Tags 用户
// @Produce  json
// @Success 200 {object} util.Response{data=service.CheckinStats}
// @Security BearerAuth
// @Router /api/users/checkin/stats [get]
func (c *UserController) CheckinStats(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	stats, err := c.UserService.CheckinStats(claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, stats)
}

// Leaderboard godoc
// @Summary 经验值排行榜
// @Description 返回经验值前 20 名，结果有 60 秒缓存
// @Tags 游戏化
// @Produce  json
// @Success 200 {object} util.Response{data=[]service.LeaderboardEntry}
// @Security BearerAuth
// @Router /api/gamification/leaderboard [get]
func (c *UserController) Leaderboard(ctx *gin.Context) {
	entries, err := c.GamificationService.Leaderboard(ctx.Request.Context())
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, entries)
}
