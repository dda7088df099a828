package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/requestid"
)

type routeHandlers struct {
	timetables *handler.TimetableHandler
	exports    *handler.ExportHandler
	metrics    *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, metricsSvc *service.MetricsService, h routeHandlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		timetables := api.Group("/timetables")
		timetables.POST("", h.timetables.Generate)
		timetables.GET("", h.timetables.List)
		timetables.GET("/latest", h.timetables.Latest)
		timetables.GET("/grid", h.timetables.Grid)
		timetables.GET("/:id", h.timetables.Get)
		timetables.GET("/:id/stats", h.timetables.Stats)
		timetables.DELETE("/:id", h.timetables.Delete)
		timetables.POST("/:id/exports", h.exports.Create)

		api.GET("/exports/:id", h.exports.Status)
		api.GET("/export/:token", h.exports.Download)
		api.GET("/system/metrics", h.metrics.Snapshot)
	}

	return r
}
