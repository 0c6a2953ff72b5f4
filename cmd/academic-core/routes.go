package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/tc-academic-api/api/swagger"
	"github.com/noah-isme/tc-academic-api/internal/handler"
	internalmiddleware "github.com/noah-isme/tc-academic-api/internal/middleware"
	"github.com/noah-isme/tc-academic-api/internal/models"
	"github.com/noah-isme/tc-academic-api/internal/service"
	"github.com/noah-isme/tc-academic-api/pkg/config"
	"github.com/noah-isme/tc-academic-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tc-academic-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tc-academic-api/pkg/middleware/requestid"
)

type handlers struct {
	requests  *handler.StudentRequestHandler
	academic  *handler.AcademicHandler
	scheduler *handler.SchedulerHandler
	policies  *handler.PolicyHandler
	metrics   *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService, h handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(internalmiddleware.Metrics(metrics))

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.JWT(cfg.JWT.Secret))

	requests := api.Group("/student-requests")
	requests.POST("", h.requests.Submit)
	requests.GET("", h.requests.List)
	requests.GET("/:id", h.requests.Get)
	requests.POST("/:id/cancel", h.requests.Cancel)
	staff := requests.Group("", internalmiddleware.StaffOnly())
	staff.POST("/on-behalf", h.requests.SubmitOnBehalf)
	staff.POST("/:id/approve", h.requests.Approve)
	staff.POST("/:id/reject", h.requests.Reject)

	students := api.Group("/students/:id", internalmiddleware.StaffOrSelf())
	students.GET("/missed-sessions", h.academic.MissedSessions)
	students.GET("/transfer-eligibility", h.academic.TransferEligibility)
	students.GET("/transfer-options", h.academic.TransferOptions)

	api.GET("/sessions/:id/makeup-options", h.academic.MakeupOptions)

	policies := api.Group("/policies", internalmiddleware.StaffOnly())
	policies.GET("", h.policies.List)
	policies.GET("/:key", h.policies.Get)
	policies.POST("/refresh", internalmiddleware.RequireRoles(models.RoleAdmin), h.policies.Refresh)

	jobs := api.Group("/scheduler/jobs", internalmiddleware.RequireRoles(models.RoleAdmin))
	jobs.GET("", h.scheduler.List)
	jobs.POST("/:name/run", h.scheduler.Run)

	return r
}
