package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campusplan/timetable-api/api/swagger"
	"github.com/campusplan/timetable-api/internal/handler"
	"github.com/campusplan/timetable-api/internal/middleware"
	"github.com/campusplan/timetable-api/internal/models"
	"github.com/campusplan/timetable-api/internal/repository"
	"github.com/campusplan/timetable-api/internal/service"
	"github.com/campusplan/timetable-api/pkg/cache"
	"github.com/campusplan/timetable-api/pkg/config"
	"github.com/campusplan/timetable-api/pkg/database"
	"github.com/campusplan/timetable-api/pkg/jobs"
	"github.com/campusplan/timetable-api/pkg/logger"
	corsmiddleware "github.com/campusplan/timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campusplan/timetable-api/pkg/middleware/requestid"
)

// @title Campus Timetable API
// @version 0.1.0
// @description Curriculum-aware timetable query and registration service
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	// Repositories.
	curriculumRepo := repository.NewCurriculumRepository(db)
	instanceRepo := repository.NewInstanceRepository(db)
	participationRepo := repository.NewParticipationRepository(db)
	termRepo := repository.NewTermRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Background counter recomputation.
	metricsSvc := service.NewMetricsService()
	queue := jobs.NewQueue("instance-counters", func(ctx context.Context, job jobs.Job) error {
		instanceID, ok := job.Payload.(string)
		if !ok {
			return fmt.Errorf("unexpected payload type %T", job.Payload)
		}
		err := participationRepo.UpdateNumbers(ctx, instanceID)
		metricsSvc.RecordJob(job.Type, err)
		return err
	}, jobs.QueueConfig{
		Workers:    cfg.Availability.WorkerConcurrency,
		MaxRetries: cfg.Availability.WorkerRetries,
		Logger:     logr,
	})

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	queue.Start(rootCtx)
	defer queue.Stop()

	// Services.
	validate := validator.New()
	curriculumSvc := service.NewCurriculumService(curriculumRepo, logr)
	gridSvc := service.NewGridService(termRepo, cfg.Grid, logr)
	instanceSvc := service.NewInstanceService(instanceRepo, curriculumSvc, cacheRepo, cfg.Instances, logr)
	availabilitySvc := service.NewAvailabilityService(instanceRepo, participationRepo, queue, logr)
	termSvc := service.NewTermService(termRepo, logr)
	exportSvc := service.NewExportService(instanceSvc, cfg.Export, logr)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		SingleSession:      cfg.JWT.SingleSession,
	})

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	curriculumHandler := handler.NewCurriculumHandler(curriculumSvc)
	instanceHandler := handler.NewInstanceHandler(instanceSvc, availabilitySvc, gridSvc)
	termHandler := handler.NewTermHandler(termSvc)
	exportHandler := handler.NewExportHandler(exportSvc, instanceHandler)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	curriculum := api.Group("/curriculum")
	{
		curriculum.GET("/ranges", curriculumHandler.RangesFor)
		curriculum.GET("/ranges/:id/children", curriculumHandler.Children)
		curriculum.GET("/ranges/:id/descendants", curriculumHandler.Descendants)
		curriculum.GET("/ranges/:id/ancestors", curriculumHandler.Ancestors)
		curriculum.GET("/subjects", curriculumHandler.Subjects)

		planners := curriculum.Group("", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RolePlanner))
		planners.POST("/ranges", curriculumHandler.Map)
		planners.DELETE("/ranges/:id", curriculumHandler.Unmap)
	}

	instances := api.Group("/instances", middleware.OptionalJWT(authSvc))
	{
		instances.GET("", instanceHandler.List)
		instances.GET("/jump", instanceHandler.Jump)
		instances.GET("/:id", instanceHandler.Get)
		instances.GET("/:id/availability", instanceHandler.Availability)

		registered := instances.Group("", middleware.JWT(authSvc))
		registered.POST("/:id/register", instanceHandler.Register)
		registered.DELETE("/:id/register", instanceHandler.Deregister)
		registered.POST("/:id/bookmark", instanceHandler.Bookmark)
	}

	api.GET("/schedule/busy", middleware.JWT(authSvc), instanceHandler.Busy)

	terms := api.Group("/terms")
	{
		terms.GET("", termHandler.List)
		terms.GET("/current", termHandler.Current)
		terms.GET("/:id", termHandler.Get)
	}

	api.GET("/export/timetable", middleware.OptionalJWT(authSvc), exportHandler.Export)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
