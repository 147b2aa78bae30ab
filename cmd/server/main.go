package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/beereshbc/influencaa-backend/internal/config"
	"github.com/beereshbc/influencaa-backend/internal/db"
	"github.com/beereshbc/influencaa-backend/internal/gateway"
	"github.com/beereshbc/influencaa-backend/internal/goroutine"
	httpHandlers "github.com/beereshbc/influencaa-backend/internal/http/handlers"
	httpRouter "github.com/beereshbc/influencaa-backend/internal/http/router"
	"github.com/beereshbc/influencaa-backend/internal/logger"
	"github.com/beereshbc/influencaa-backend/internal/metrics"
	"github.com/beereshbc/influencaa-backend/internal/redis"
	"github.com/beereshbc/influencaa-backend/internal/repository"
	"github.com/beereshbc/influencaa-backend/internal/service"
	"github.com/beereshbc/influencaa-backend/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	logger.Init(cfg.LogLevel, cfg.IsProduction())

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Log.WithError(err).Fatal("main: ошибка подключения к базе")
	}
	if err := db.RunMigrations(ctx, dbConn); err != nil {
		logger.Log.WithError(err).Fatal("main: ошибка миграций")
	}

	cache := service.NewCacheService(ctx)

	// Ключи идемпотентности вебхуков: Redis, если задан, иначе память процесса.
	var (
		idempotencyStore service.IdempotencyStore = service.NewMemoryIdempotencyStore(cache)
		redisClient      *redis.Client
	)
	if cfg.RedisURL != "" {
		redisClient, err = redis.New(ctx, cfg.RedisURL)
		if err != nil {
			logger.Log.WithError(err).Fatal("main: ошибка подключения к redis")
		}
		idempotencyStore = redisClient
	} else {
		logger.Log.Warn("main: REDIS_URL не задан, дедупликация вебхуков только в памяти процесса")
	}
	webhookGuard, err := service.NewIdempotencyGuard(idempotencyStore, cfg.Payment.WebhookDedupTTL, "razorpay_webhook")
	if err != nil {
		logger.Log.WithError(err).Fatal("main: ошибка инициализации дедупликации")
	}

	// Метрики.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	if cfg.Payment.KeyID == "" || cfg.Payment.KeySecret == "" {
		logger.Alert("main: ключи Razorpay не заданы, оплата недоступна", logrus.Fields{"env": cfg.Env})
	}
	razorpay := gateway.NewRazorpayGateway(cfg.Payment.KeyID, cfg.Payment.KeySecret, cfg.Payment.GatewayTimeout)

	// Вебсокеты и фоновые задачи.
	hub := ws.NewHub(logger.Log)
	go hub.Run(ctx)
	runner := goroutine.NewRunner(logger.Log)

	// Репозитории.
	userRepo := repository.NewUserRepository(dbConn)
	orderRepo := repository.NewOrderRepository(dbConn)
	paymentRepo := repository.NewPaymentRepository(dbConn)
	catalogRepo := repository.NewCatalogRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)

	// Сервисы.
	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	authService := service.NewAuthService(userRepo, tokenManager)
	notificationService := service.NewNotificationService(notificationRepo, hub, runner)
	catalogService := service.NewCatalogService(catalogRepo, cache)
	orderService := service.NewOrderService(orderRepo, paymentRepo, razorpay, notificationService, paymentMetrics, service.PaymentSettings{
		Currency:  cfg.Payment.Currency,
		KeyID:     razorpay.KeyID(),
		KeySecret: cfg.Payment.KeySecret,
	})

	// HTTP хэндлеры.
	healthHandler := httpHandlers.NewHealthHandler(dbConn)
	if redisClient != nil {
		healthHandler.With("redis", httpHandlers.PingFunc(redisClient.Ping))
	}

	handlers := httpRouter.Handlers{
		Auth:          httpHandlers.NewAuthHandler(authService),
		Orders:        httpHandlers.NewOrderHandler(orderService),
		Payments:      httpHandlers.NewPaymentHandler(orderService),
		Webhooks:      httpHandlers.NewWebhookHandler(orderService, webhookGuard, cfg.Payment.WebhookSecret),
		Catalog:       httpHandlers.NewCatalogHandler(catalogService),
		Notifications: httpHandlers.NewNotificationHandler(notificationService),
		Health:        healthHandler,
		WS:            httpHandlers.NewWSHandler(hub, authService, cfg.AllowedOrigins),
	}
	if !cfg.IsProduction() {
		seedService := service.NewSeedService(userRepo, catalogService, orderService, time.Now().UnixNano())
		handlers.Seed = httpHandlers.NewSeedHandler(seedService)
	}

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, handlers, authService, registry)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Log.WithField("port", cfg.HTTPPort).Info("main: HTTP сервер запущен")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Log.WithError(err).Error("main: сервер завершился с ошибкой")
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	shutdownErr = multierr.Append(shutdownErr, server.Shutdown(shutdownCtx))
	shutdownErr = multierr.Append(shutdownErr, runner.Wait(shutdownCtx))
	if redisClient != nil {
		shutdownErr = multierr.Append(shutdownErr, redisClient.Close())
	}
	shutdownErr = multierr.Append(shutdownErr, dbConn.Close())

	if shutdownErr != nil {
		for _, err := range multierr.Errors(shutdownErr) {
			logger.Log.WithError(err).Error("main: ошибка при остановке")
		}
		return
	}
	logger.Log.Info("main: сервер остановлен")
}
