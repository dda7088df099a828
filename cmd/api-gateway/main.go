package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-timetable-api/api/swagger"
	"github.com/noah-isme/sma-timetable-api/internal/handler"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/pkg/cache"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/database"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
	"github.com/noah-isme/sma-timetable-api/pkg/storage"
)

// @title SMA Timetable API
// @version 1.0.0
// @description Weekly timetable slot assignment with per-faculty and per-subject statistics
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var db *sqlx.DB
	if cfg.Database.Enabled {
		db, err = database.NewPostgres(cfg.Database)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect database", "error", err)
		}
		defer db.Close() //nolint:errcheck
		if cfg.Database.AutoMigrate {
			if err := database.RunMigrations(db.DB, logr); err != nil {
				logr.Sugar().Fatalw("failed to run migrations", "error", err)
			}
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "addr", cache.Addr(cfg.Redis), "error", err)
			redisClient = nil
		}
	}

	metricsSvc := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Timetable.CacheTTL, logr, cfg.Timetable.CacheEnabled && redisClient != nil)

	timetableCfg := service.TimetableServiceConfig{
		MaxSubjects:       cfg.Timetable.MaxSubjects,
		MaxWeeklyLectures: cfg.Timetable.MaxWeeklyLectures,
		CacheTTL:          cfg.Timetable.CacheTTL,
	}
	var timetableSvc *service.TimetableService
	if db != nil {
		timetableSvc = service.NewTimetableService(repository.NewTimetableRepository(db), cacheSvc, metricsSvc, validator.New(), logr, timetableCfg)
	} else {
		logr.Info("database disabled, timetables kept in memory")
		timetableSvc = service.NewTimetableService(nil, cacheSvc, metricsSvc, validator.New(), logr, timetableCfg)
	}

	var exportJobSvc *service.ExportJobService
	var exportQueue *jobs.Queue
	switch {
	case !cfg.Exports.Enabled:
		logr.Info("exports disabled")
	case db == nil:
		logr.Warn("exports enabled but database disabled; export endpoints will answer 503")
	default:
		exportJobSvc, exportQueue, err = setupExports(ctx, cfg, db, timetableSvc, metricsSvc, logr)
		if err != nil {
			logr.Sugar().Fatalw("failed to init exports", "error", err)
		}
	}

	checks := map[string]handler.Pinger{}
	if db != nil {
		checks["database"] = handler.PingFunc(db.PingContext)
	}
	if redisClient != nil {
		checks["redis"] = cacheRepo
	}

	r := newRouter(cfg, logr, metricsSvc, routeHandlers{
		timetables: handler.NewTimetableHandler(timetableSvc),
		exports:    handler.NewExportHandler(exportJobSvc),
		metrics:    handler.NewMetricsHandler(metricsSvc, checks),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logr.Info("shutting down", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server shutdown failed", zap.Error(err))
	}
	cancel()
	if exportQueue != nil {
		exportQueue.Stop()
	}
}

func setupExports(ctx context.Context, cfg *config.Config, db *sqlx.DB, timetables *service.TimetableService, metrics *service.MetricsService, logr *zap.Logger) (*service.ExportJobService, *jobs.Queue, error) {
	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return nil, nil, fmt.Errorf("init export storage: %w", err)
	}
	loc, err := time.LoadLocation(cfg.Exports.Timezone)
	if err != nil {
		logr.Sugar().Warnw("unknown export timezone, using UTC", "timezone", cfg.Exports.Timezone, "error", err)
		loc = time.UTC
	}

	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exporter := service.NewExportService(timetables, files, signer, service.ExportConfig{
		APIPrefix:     cfg.APIPrefix,
		ResultTTL:     cfg.Exports.SignedURLTTL,
		CalendarWeeks: cfg.Exports.CalendarWeeks,
		Location:      loc,
	}, logr)

	repo := repository.NewExportJobRepository(db)
	worker := service.NewExportWorker(repo, exporter, metrics, cfg.Exports.WorkerRetries, logr)
	queue := jobs.NewQueue("timetable-exports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		Logger:     logr,
	})
	queue.Start(ctx)

	svc := service.NewExportJobService(repo, timetables, queue, exporter, metrics, logr, service.ExportJobServiceConfig{
		ResultTTL:       cfg.Exports.SignedURLTTL,
		CleanupInterval: cfg.Exports.CleanupInterval,
		Location:        loc,
	})
	svc.RecoverPendingJobs(ctx)
	svc.StartCleanup(ctx)
	return svc, queue, nil
}
