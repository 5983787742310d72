package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"learnai_backend/internal/config"
	"learnai_backend/internal/controller"
	"learnai_backend/internal/repository"
	"learnai_backend/internal/service"
	"learnai_backend/pkg/database"
	"learnai_backend/pkg/logger"
	"learnai_backend/pkg/monitoring"
	"learnai_backend/pkg/security"
	"learnai_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user       *repository.UserRepository
	attempt    *repository.AttemptRepository
	lesson     *repository.LessonRepository
	subRoadmap *repository.SubRoadmapRepository
	chat       *repository.ChatRepository
	nodeResult *repository.NodeResultRepository
	checkin    *repository.CheckinRepository
}

type services struct {
	auth         *service.AuthService
	storage      *service.StorageService
	ai           *service.AIService
	image        *service.ImageService
	orchestrator *service.Orchestrator
	topic        *service.TopicService
	chat         *service.ChatService
	user         *service.UserService
	gamification *service.GamificationService
	risk         *service.RiskService
}

type controllers struct {
	auth   *controller.AuthController
	topic  *controller.TopicController
	chat   *controller.ChatController
	user   *controller.UserController
	risk   *controller.RiskController
	health *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// OnConfigReload 配置文件热加载入口，逐个执行已注册的回调
func (a *App) OnConfigReload(cfg *config.Config) {
	logger.Log.Info("配置已热加载", zap.String("mode", cfg.Server.Mode))
	for _, callback := range a.configCallbacks {
		callback(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:       repository.NewUserRepository(db),
		attempt:    repository.NewAttemptRepository(db),
		lesson:     repository.NewLessonRepository(db),
		subRoadmap: repository.NewSubRoadmapRepository(db),
		chat:       repository.NewChatRepository(db),
		nodeResult: repository.NewNodeResultRepository(db),
		checkin:    repository.NewCheckinRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) (*services, error) {
	s := &services{}

	storage, err := service.NewStorageService(cfg)
	if err != nil {
		return nil, err
	}
	s.storage = storage

	s.auth = service.NewAuthService(repos.user, cfg)
	s.ai = service.NewAIService(cfg.AI)
	s.image = service.NewImageService(cfg.Image)

	s.orchestrator = service.NewOrchestrator(
		s.ai,
		s.image,
		repos.attempt,
		repos.lesson,
		repos.subRoadmap,
		cfg.Prefetch,
	)

	s.topic = service.NewTopicService(
		repos.attempt,
		repos.lesson,
		repos.nodeResult,
		repos.user,
		s.ai,
		s.orchestrator,
	)

	s.chat = service.NewChatService(repos.chat, repos.attempt, s.ai)
	s.user = service.NewUserService(repos.user, repos.attempt, repos.checkin, s.storage)
	s.gamification = service.NewGamificationService(repos.user, rdb)
	s.risk = service.NewRiskService(repos.user, cfg.Risk)

	return s, nil
}

func (a *App) initControllers(s *services, db *gorm.DB) *controllers {
	return &controllers{
		auth:   controller.NewAuthController(s.auth),
		topic:  controller.NewTopicController(s.topic),
		chat:   controller.NewChatController(s.chat),
		user:   controller.NewUserController(s.user, s.gamification),
		risk:   controller.NewRiskController(s.risk),
		health: controller.NewHealthController(db),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 100000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) startBackgroundTasks(s *services) {
	if err := s.risk.StartRetrainSchedule(); err != nil {
		logger.Log.Error("failed to start risk retrain schedule", zap.Error(err))
	}
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db)
	services, err := app.initServices(repos, cfg, rdb)
	if err != nil {
		logger.Log.Fatal("Failed to initialize services", zap.Error(err))
	}
	app.services = services
	controllers := app.initControllers(services, db)

	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("learnai-backend", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	app.startBackgroundTasks(services)

	// 重训 cron 支持热更新，其余配置项改动需重启生效
	app.RegisterConfigCallback(func(newCfg *config.Config) {
		if newCfg.Risk.RetrainCron == app.Config.Risk.RetrainCron {
			return
		}
		services.risk.StopRetrainSchedule()
		services.risk.Cfg.RetrainCron = newCfg.Risk.RetrainCron
		if err := services.risk.StartRetrainSchedule(); err != nil {
			logger.Log.Error("failed to restart risk retrain schedule", zap.Error(err))
		}
		app.Config.Risk.RetrainCron = newCfg.Risk.RetrainCron
	})

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// 停掉后台预取与定时重训，等在途任务收尾
	if a.services != nil {
		a.services.orchestrator.Stop()
		a.services.risk.StopRetrainSchedule()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
