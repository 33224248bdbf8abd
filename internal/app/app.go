package app

import (
	"context"
	"ethics_gate_backend/internal/config"
	"ethics_gate_backend/internal/controller"
	"ethics_gate_backend/internal/middleware"
	"ethics_gate_backend/internal/repository"
	"ethics_gate_backend/internal/service"
	"ethics_gate_backend/pkg/configwatcher"
	"ethics_gate_backend/pkg/database"
	"ethics_gate_backend/pkg/logger"
	"ethics_gate_backend/pkg/monitoring"
	"ethics_gate_backend/pkg/security"
	"ethics_gate_backend/pkg/tracing"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config   *config.Config
	Router   *gin.Engine
	DB       *gorm.DB
	Redis    *redis.Client
	services *services
	locks    *repository.KeyLock
	tracer   *sdktrace.TracerProvider
	sweepCtx context.Context
	sweepEnd context.CancelFunc
}

type repositories struct {
	user   *repository.UserRepository
	state  *repository.StateRepository
	audit  *repository.AuditRepository
	config *repository.OrgConfigRepository
	result *repository.ResultRepository
}

type services struct {
	auth      *service.AuthService
	gate      *service.GateService
	audit     *service.AuditService
	orgConfig *service.OrgConfigService
	engine    *service.EngineClient
}

type controllers struct {
	auth      *controller.AuthController
	gate      *controller.GateController
	audit     *controller.AuditController
	orgConfig *controller.OrgConfigController
	health    *controller.HealthController
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *repositories {
	return &repositories{
		user:   repository.NewUserRepository(db),
		state:  repository.NewStateRepository(db),
		audit:  repository.NewAuditRepository(db),
		config: repository.NewOrgConfigRepository(db, rdb, cfg.Gate.ConfigCacheTTL),
		result: repository.NewResultRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	a.locks = repository.NewKeyLock(cfg.Gate.LockShards, time.Duration(cfg.Gate.LockIdleEvictMinutes)*time.Minute)

	s.engine = service.NewEngineClient(cfg.Engine)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.gate = service.NewGateService(
		repos.state,
		repos.audit,
		repos.config,
		repos.user,
		s.engine,
		a.locks,
		service.NewRedisNotifier(rdb, cfg.Gate.NotifyChannel),
	)
	s.audit = service.NewAuditService(repos.audit)
	s.orgConfig = service.NewOrgConfigService(repos.config)

	return s
}

func (a *App) initControllers(s *services, repos *repositories, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:      controller.NewAuthController(s.auth),
		gate:      controller.NewGateController(s.gate, s.engine, repos.result),
		audit:     controller.NewAuditController(s.audit),
		orgConfig: controller.NewOrgConfigController(s.orgConfig),
		health:    controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(middleware.RequestID())
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 1000
	}
	router.Use(security.RateLimiter(maxRequests, window))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startBackgroundTasks runs the session sweeper on a low-frequency ticker.
func (a *App) startBackgroundTasks(s *services) {
	interval := a.Config.Gate.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-a.sweepCtx.Done():
				return
			case <-ticker.C:
				n, err := s.gate.SweepExpiredSessions(a.sweepCtx)
				if err != nil {
					logger.Log.Error("session sweep error", zap.Error(err))
					continue
				}
				if n > 0 {
					logger.Log.Info("expired sessions swept", zap.Int("count", n))
				}
			}
		}
	}()
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

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

	sweepCtx, sweepEnd := context.WithCancel(context.Background())
	app := &App{
		Config:   cfg,
		DB:       db,
		Redis:    rdb,
		sweepCtx: sweepCtx,
		sweepEnd: sweepEnd,
	}

	repos := app.initRepositories(db, rdb, cfg)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services, repos, db, rdb)

	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("ethics-gate", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	app.registerRoutes(router, controllers, repos, cfg)

	app.startBackgroundTasks(services)

	// engine endpoint settings follow the config file without a restart
	go configwatcher.WatchConfig("configs/config.yaml", cfg, func(reloaded interface{}) {
		updated, ok := reloaded.(*config.Config)
		if !ok {
			return
		}
		services.engine.UpdateConfig(updated.Engine)
		logger.Log.Info("engine config reloaded", zap.String("baseUrl", updated.Engine.BaseURL))
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

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	a.sweepEnd()
	if a.locks != nil {
		a.locks.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}

	log.Println("Server exiting")
}
