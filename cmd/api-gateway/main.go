package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/studio-class-api/api/swagger"
	"github.com/noah-isme/studio-class-api/internal/handler"
	"github.com/noah-isme/studio-class-api/internal/repository"
	"github.com/noah-isme/studio-class-api/internal/router"
	"github.com/noah-isme/studio-class-api/internal/service"
	"github.com/noah-isme/studio-class-api/pkg/broker"
	"github.com/noah-isme/studio-class-api/pkg/cache"
	"github.com/noah-isme/studio-class-api/pkg/config"
	"github.com/noah-isme/studio-class-api/pkg/database"
	"github.com/noah-isme/studio-class-api/pkg/export"
	"github.com/noah-isme/studio-class-api/pkg/logger"
)

// @title Studio Class API
// @version 1.0.0
// @description Class scheduling, bookings and waitlists for fitness studios
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Cache.Enabled || cfg.RateLimit.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, running without cache and rate limiting", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	publisher := newPublisher(cfg, logr)
	defer publisher.Close()

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	sessionRepo := repository.NewSessionRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	waitlistRepo := repository.NewWaitlistRepository(db)
	blockedRepo := repository.NewBlockedTimeRepository(db)
	settingsRepo := repository.NewStudioSettingsRepository(db)
	reportRepo := repository.NewReportRepository(db)
	locker := repository.NewSessionLocker(db, cfg.Booking.LockTimeout)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, "studio", logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled)

	notificationSvc := service.NewNotificationService(publisher, service.NotificationConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
	}, metricsSvc, logr)

	settingsSvc := service.NewStudioSettingsService(settingsRepo, cfg.Studio.DefaultTimezone, cfg.Studio.NotificationWindow, validate, logr)
	conflictSvc := service.NewConflictService(sessionRepo, blockedRepo, logr)
	waitlistSvc := service.NewWaitlistService(service.WaitlistServiceParams{
		Sessions:  sessionRepo,
		Bookings:  bookingRepo,
		Waitlist:  waitlistRepo,
		Locker:    locker,
		Settings:  settingsSvc,
		Notifier:  notificationSvc,
		Metrics:   metricsSvc,
		Validator: validate,
		Logger:    logr,
	})
	bookingSvc := service.NewBookingService(service.BookingServiceParams{
		Sessions:             sessionRepo,
		Bookings:             bookingRepo,
		Waitlist:             waitlistRepo,
		Locker:               locker,
		Promoter:             waitlistSvc,
		Notifier:             notificationSvc,
		Metrics:              metricsSvc,
		Validator:            validate,
		Logger:               logr,
		PreventClientOverlap: cfg.Booking.PreventClientOverlap,
	})
	sessionSvc := service.NewSessionService(service.SessionServiceParams{
		Sessions:  sessionRepo,
		Bookings:  bookingRepo,
		Waitlist:  waitlistRepo,
		Conflicts: conflictSvc,
		Locker:    locker,
		Canceller: bookingSvc,
		Promoter:  waitlistSvc,
		Notifier:  notificationSvc,
		Cache:     cacheSvc,
		CacheTTL:  cfg.Cache.TTL,
		Metrics:   metricsSvc,
		Validator: validate,
		Logger:    logr,
	})
	recurrenceSvc := service.NewRecurrenceService(service.RecurrenceServiceParams{
		Sessions:  sessionRepo,
		Conflicts: conflictSvc,
		Settings:  settingsSvc,
		Cache:     cacheSvc,
		Validator: validate,
		Logger:    logr,
		MaxDays:   cfg.Booking.MaxRecurrenceDays,
	})
	seriesSvc := service.NewSeriesService(sessionRepo, sessionSvc, settingsSvc, metricsSvc, validate, logr)
	reportSvc := service.NewReportService(reportRepo, settingsSvc, export.NewCSVExporter(), export.NewPDFExporter(), validate, logr)
	authSvc := service.NewAuthService(service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Requests draining after the signal still enqueue notifications.
	notificationSvc.Start(context.Background())
	defer notificationSvc.Stop()

	if cfg.Waitlist.SweepEnabled {
		sweeper := service.NewWaitlistSweeper(waitlistRepo, waitlistSvc, service.WaitlistSweeperConfig{
			Interval:  cfg.Waitlist.SweepInterval,
			BatchSize: cfg.Waitlist.SweepBatchSize,
		}, logr)
		go sweeper.Start(ctx)
		defer sweeper.Stop()
	}

	engine := router.New(router.Deps{
		Config:  cfg,
		Logger:  logr,
		Auth:    authSvc,
		Metrics: metricsSvc,
		Redis:   redisClient,
	}, router.Handlers{
		Sessions: handler.NewSessionHandler(sessionSvc, recurrenceSvc),
		Series:   handler.NewSeriesHandler(seriesSvc),
		Bookings: handler.NewBookingHandler(bookingSvc),
		Waitlist: handler.NewWaitlistHandler(waitlistSvc),
		Reports:  handler.NewReportHandler(reportSvc),
		Settings: handler.NewSettingsHandler(settingsSvc),
		Metrics:  handler.NewMetricsHandler(metricsSvc, db),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		logr.Fatal("failed to listen", zap.String("addr", srv.Addr), zap.Error(err))
	}
	logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
	if err := serve(ctx, srv, ln, shutdownTimeout, logr); err != nil {
		logr.Error("server failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

const shutdownTimeout = 10 * time.Second

// serve runs srv on ln until ctx is done and returns only after Shutdown has
// drained in-flight requests.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, timeout time.Duration, logr *zap.Logger) error {
	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-serveCtx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), timeout)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logr.Error("server shutdown failed", zap.Error(err))
		}
	}()

	err := srv.Serve(ln)
	cancel()
	<-shutdownDone
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func newPublisher(cfg *config.Config, logr *zap.Logger) broker.Publisher {
	switch cfg.Notifications.Driver {
	case "amqp", "rabbitmq":
		return broker.NewAMQPPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, logr)
	default:
		return broker.NewLogPublisher(logr)
	}
}
