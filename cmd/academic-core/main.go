package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/tc-academic-api/internal/handler"
	"github.com/noah-isme/tc-academic-api/internal/repository"
	"github.com/noah-isme/tc-academic-api/internal/scheduler"
	"github.com/noah-isme/tc-academic-api/internal/service"
	"github.com/noah-isme/tc-academic-api/pkg/cache"
	"github.com/noah-isme/tc-academic-api/pkg/clock"
	"github.com/noah-isme/tc-academic-api/pkg/config"
	"github.com/noah-isme/tc-academic-api/pkg/database"
	"github.com/noah-isme/tc-academic-api/pkg/email"
	"github.com/noah-isme/tc-academic-api/pkg/jobs"
	"github.com/noah-isme/tc-academic-api/pkg/logger"
)

// @title Training Center Academic API
// @version 1.0.0
// @description Student requests, makeup and transfer lookups, and session lifecycle jobs
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching and job locks are process-local", zap.Error(err))
	} else {
		defer redisClient.Close() //nolint:errcheck
	}

	loc := cfg.Location()
	clk := clock.Real()
	metrics := service.NewMetricsService()
	validate := validator.New()
	tx := database.NewTransactor(db)

	requests := repository.NewStudentRequestRepository(db)
	teacherRequests := repository.NewTeacherRequestRepository(db)
	sessions := repository.NewSessionRepository(db)
	classes := repository.NewClassRepository(db)
	enrollments := repository.NewEnrollmentRepository(db)
	attendance := repository.NewAttendanceRepository(db)
	reports := repository.NewQAReportRepository(db)
	notificationsRepo := repository.NewNotificationRepository(db)
	users := repository.NewUserRepository(db)

	cacheService := service.NewCacheService(repository.NewCacheRepository(redisClient, logr), metrics, cfg.Policy.CacheTTL, logr, redisClient != nil)
	policies := service.NewPolicyService(repository.NewPolicyRepository(db), cacheService, logr, service.PolicyServiceConfig{
		Defaults: cfg.Policy.Defaults,
		CacheTTL: cfg.Policy.CacheTTL,
	})

	notifier := service.NewNotificationService(notificationsRepo, users, email.NewSender(cfg.Email, logr), metrics, logr)
	queue := jobs.NewQueue("notifications", notifier.Handle, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		Logger:     logr,
		OnDiscard:  notifier.OnDiscard,
	})
	notifier.UseQueue(queue)
	queue.Start(ctx)

	requestService := service.NewRequestService(service.RequestServiceDeps{
		Requests:    requests,
		Sessions:    sessions,
		Classes:     classes,
		Enrollments: enrollments,
		Attendance:  attendance,
		Tx:          tx,
		Policies:    policies,
		Notifier:    notifier,
		Metrics:     metrics,
		Clock:       clk,
		Location:    loc,
		Validator:   validate,
		Logger:      logr,
	})
	missedService := service.NewMissedSessionService(attendance, policies, clk, loc, logr)
	makeupService := service.NewMakeupService(sessions, enrollments, attendance, policies, clk, loc, logr)
	transferService := service.NewTransferService(requests, enrollments, classes, sessions, attendance, policies, clk, loc, logr)
	lifecycleService := service.NewLifecycleService(service.LifecycleDeps{
		Sessions:     sessions,
		Attendance:   attendance,
		Reports:      reports,
		Tx:           tx,
		Policies:     policies,
		Notifier:     notifier,
		Metrics:      metrics,
		Clock:        clk,
		Location:     loc,
		QAWindowDays: cfg.Scheduler.QAWindowDays,
		Logger:       logr,
	})
	reminderService := service.NewReminderService(sessions, repository.NewWatermarkRepository(redisClient, "watermark:"), policies, notifier, clk, loc, logr)
	expiryService := service.NewExpiryService(requests, teacherRequests, tx, policies, notifier, metrics, clk, logr)

	runner := scheduler.NewRunner(scheduler.Config{
		Clock:        clk,
		Location:     loc,
		Locks:        repository.NewLockRepository(redisClient, "lock:"),
		LockTTL:      cfg.Scheduler.LockTTL,
		Metrics:      metrics,
		Logger:       logr,
		RetryBackoff: cfg.Scheduler.RetryBackoff,
	})
	if err := registerJobs(runner, cfg.Scheduler, lifecycleService, reminderService, expiryService); err != nil {
		logr.Fatal("failed to register jobs", zap.Error(err))
	}
	if cfg.Scheduler.Enabled {
		if cfg.Scheduler.StartupCatchUp {
			runner.CatchUp(ctx)
		}
		runner.Start(ctx)
	} else {
		logr.Info("scheduler disabled; jobs run only on demand")
	}

	checks := map[string]handler.Pinger{"postgres": db}
	if redisClient != nil {
		checks["redis"] = redisPinger{client: redisClient}
	}

	router := newRouter(cfg, logr, metrics, handlers{
		requests:  handler.NewStudentRequestHandler(requestService),
		academic:  handler.NewAcademicHandler(missedService, makeupService, transferService),
		scheduler: handler.NewSchedulerHandler(runner),
		policies:  handler.NewPolicyHandler(policies),
		metrics:   handler.NewMetricsHandler(metrics, checks),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "timezone", loc.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown incomplete", zap.Error(err))
	}
	runner.Wait()
	queue.Stop()
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
