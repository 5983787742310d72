package controller

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"learnai_backend/internal/service"
	"learnai_backend/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type RiskController struct {
	RiskService *service.RiskService
}

func NewRiskController(riskService *service.RiskService) *RiskController {
	return &RiskController{RiskService: riskService}
}

// Predict godoc
// @Summary 流失风险评估
// @Description 返回指定学生的流失概率与风险等级
// @Tags 风险
// @Produce  json
// @Param   userId path int true "用户ID"
// @Success 200 {object} util.Response{data=service.RiskAssessment}
// @Failure 404 {object} util.Response "用户不存在"
// @Failure 409 {object} util.Response "模型未训练"
// @Security BearerAuth
// @Router /api/risk/{userId} [get]
func (c *RiskController) Predict(ctx *gin.Context) {
	userID, err := strconv.ParseUint(ctx.Param("userId"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid user id")
		return
	}

	assessment, err := c.RiskService.Predict(uint(userID))
	if err != nil {
		switch {
		case errors.Is(err, util.ErrModelNotTrained):
			util.Error(ctx, 409, "模型尚未训练")
		case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, util.ErrUserNotFound):
			util.NotFound(ctx)
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, assessment)
}

// Train godoc
// @Summary 重新训练流失模型
// @Description 全量拉取学生特征并重新训练，仅管理员可用
// @Tags 风险
// @Produce  json
// @Success 200 {object} util.Response{data=service.TrainResult}
// @Failure 409 {object} util.Response "没有训练数据"
// @Security BearerAuth
// @Router /api/admin/risk/train [post]
func (c *RiskController) Train(ctx *gin.Context) {
	result, err := c.RiskService.Train()
	if err != nil {
		if errors.Is(err, util.ErrNoTrainingData) {
			util.Error(ctx, 409, "没有训练数据")
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, result)
}

// Seed godoc
// @Summary 播种示例学生数据
// @Description 写入三类典型学生样本并重训流失模型，仅管理员可用
// @Tags 风险
// @Produce  json
// @Success 200 {object} util.Response{data=service.SeedResult}
// @Security BearerAuth
// @Router /api/admin/risk/seed [post]
func (c *RiskController) Seed(ctx *gin.Context) {
	result, err := c.RiskService.SeedDemoData()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// Export godoc
// @Summary 导出风险报表
// @Description 导出全量学生风险评估的 xlsx 文件，仅管理员可用
// @Tags 风险
// @Produce  application/octet-stream
// @Success 200 {file} binary
// @Failure 409 {object} util.Response "模型未训练"
// @Security BearerAuth
// @Router /api/admin/risk/export [get]
func (c *RiskController) Export(ctx *gin.Context) {
	filename := fmt.Sprintf("dropout_risk_%s.xlsx", time.Now().Format("20060102"))
	ctx.Header("Content-Disposition", "attachment; filename="+filename)
	ctx.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")

	if err := c.RiskService.ExportReport(ctx.Writer); err != nil {
		if errors.Is(err, util.ErrModelNotTrained) {
			util.Error(ctx, 409, "模型尚未训练")
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
}
