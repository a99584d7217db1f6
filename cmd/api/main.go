package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apihttp "github.com/spec-kit/case-service/internal/api/http"
	"github.com/spec-kit/case-service/internal/api/http/handlers"
	"github.com/spec-kit/case-service/internal/auth"
	"github.com/spec-kit/case-service/internal/config"
	"github.com/spec-kit/case-service/internal/events"
	"github.com/spec-kit/case-service/internal/observability"
	"github.com/spec-kit/case-service/internal/persistence"
	"github.com/spec-kit/case-service/internal/realtime"
	"github.com/spec-kit/case-service/internal/repository"
	"github.com/spec-kit/case-service/internal/service"
	"github.com/spec-kit/case-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	postgres, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("postgres connection failed", zap.Error(err))
	}
	defer postgres.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, postgres.PoolHandle(), logger); err != nil {
			logger.Fatal("migrations failed", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := postgres.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	staffRepo := repository.NewStaffRepository(pool)
	caseRepo := repository.NewCaseRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)
	otpStore := repository.NewRedisOTPStore(redis.Client)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	registry := realtime.NewRegistry()
	router := realtime.NewRouter(registry, caseRepo, messageRepo, logger)

	otpService := service.NewOTPService(otpStore, service.NewLoggingCodeSender(logger, cfg.Notification), cfg.OTP)
	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:  userRepo,
		StaffRepo: staffRepo,
		OTP:       otpService,
	})
	caseService := service.NewCaseService(service.CaseDependencies{
		CaseRepo:   caseRepo,
		StaffRepo:  staffRepo,
		Dispatcher: dispatcher,
	})
	messageService := service.NewMessageService(service.MessageDependencies{
		CaseRepo:    caseRepo,
		MessageRepo: messageRepo,
		Dispatcher:  dispatcher,
		Broadcaster: router,
	})
	notificationService := service.NewNotificationService(notificationRepo, dispatcher, registry, logger)

	worker.StartNotificationWorker(notificationService, logger)

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo, staffRepo)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: cfg.App.Env == "production",
	})

	apihttp.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	apihttp.RegisterRoutes(app, apihttp.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, postgres, redis),
		Users:          handlers.NewUsersHandler(authService, otpService),
		Staff:          handlers.NewStaffHandler(authService),
		Cases:          handlers.NewCasesHandler(caseService, messageService),
		StaffCases:     handlers.NewStaffCasesHandler(caseService),
		Notifications:  handlers.NewNotificationsHandler(notificationService),
		WS:             handlers.NewWSHandler(registry, router, messageService, logger),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
