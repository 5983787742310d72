package app

import (
	"learnai_backend/docs"
	"learnai_backend/internal/config"
	"learnai_backend/internal/middleware"
	"learnai_backend/internal/model"
	"learnai_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}

	// 需要登录的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		topics := authGroup.Group("/topics")
		{
			topics.POST("", c.topic.StartTopic)
			topics.GET("", c.topic.History)
			topics.DELETE("/:attemptId", c.topic.DeleteTopic)
			topics.GET("/:attemptId/roadmap", c.topic.GetRoadmap)
			topics.GET("/:attemptId/modules/:moduleIndex/roadmap", c.topic.GetSubRoadmap)
			topics.POST("/:attemptId/nodes", c.topic.GetNode)
			topics.POST("/:attemptId/nodes/quiz", c.topic.SubmitQuiz)

			topics.GET("/:attemptId/chat", c.chat.History)
			topics.POST("/:attemptId/chat", c.chat.Send)
			topics.DELETE("/:attemptId/chat/:messageId", c.chat.DeleteInteraction)
		}

		users := authGroup.Group("/users")
		{
			users.GET("/stats", c.user.Stats)
			users.PUT("/profile", c.user.UpdateProfile)
			users.POST("/avatar", c.user.UploadAvatar)
			users.POST("/checkin", c.user.Checkin)
			users.GET("/checkin/stats", c.user.CheckinStats)
		}

		authGroup.GET("/gamification/leaderboard", c.user.Leaderboard)
		authGroup.GET("/risk/:userId", c.risk.Predict)
	}

	// 管理员路由
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg), middleware.RoleMiddleware(model.Admin))
	{
		admin.POST("/risk/train", c.risk.Train)
		admin.POST("/risk/seed", c.risk.Seed)
		admin.GET("/risk/export", c.risk.Export)
	}
}
