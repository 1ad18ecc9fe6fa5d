package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/notifygov/delivery-engine/internal/callbacks"
	"github.com/notifygov/delivery-engine/internal/config"
	"github.com/notifygov/delivery-engine/internal/delivery"
	"github.com/notifygov/delivery-engine/internal/handler"
	"github.com/notifygov/delivery-engine/internal/infra/postgresql"
	"github.com/notifygov/delivery-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/notifygov/delivery-engine/internal/infra/redis"
	"github.com/notifygov/delivery-engine/internal/observability"
	"github.com/notifygov/delivery-engine/internal/provider"
	"github.com/notifygov/delivery-engine/internal/queue"
	"github.com/notifygov/delivery-engine/internal/reconciler"
	"github.com/notifygov/delivery-engine/internal/repository"
	"github.com/notifygov/delivery-engine/internal/service"
	"github.com/notifygov/delivery-engine/internal/signer"
	"github.com/notifygov/delivery-engine/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("delivery-engine stopped with error", zap.Error(err))
	}
	logger.Info("delivery-engine stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	lanes, err := queue.NewLanes(rdb, queue.AllLanes())
	if err != nil {
		return fmt.Errorf("lane setup failed: %w", err)
	}

	payloadSigner, err := signer.New(cfg.SecretKey, cfg.LegacySecretKeys...)
	if err != nil {
		return fmt.Errorf("signer initialization failed: %w", err)
	}

	notifications := repository.NewGormNotificationRepo(db)
	attempts := repository.NewGormAttemptRepo(db)
	serviceCallbacks := repository.NewGormServiceCallbackRepo(db)
	complaints := repository.NewGormComplaintRepo(db)

	router, err := buildRouter(ctx, cfg)
	if err != nil {
		return fmt.Errorf("provider setup failed: %w", err)
	}

	rateLimiter, err := infraredis.NewRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		return fmt.Errorf("rate limiter setup failed: %w", err)
	}

	metrics := observability.NewMetrics()

	worker, err := delivery.NewWorker(notifications, attempts, lanes, router, rateLimiter, delivery.DefaultRetryPolicy(), cfg.WorkerConcurrency, logger)
	if err != nil {
		return fmt.Errorf("delivery worker setup failed: %w", err)
	}
	worker.SetMetrics(metrics)

	retryScanner, err := delivery.NewRetryScanner(notifications, lanes, time.Duration(cfg.RetryScanIntervalSec)*time.Second, 0, logger)
	if err != nil {
		return fmt.Errorf("retry scanner setup failed: %w", err)
	}

	receiptReconciler, err := reconciler.NewReconciler(notifications, complaints, serviceCallbacks, lanes, payloadSigner, logger)
	if err != nil {
		return fmt.Errorf("reconciler setup failed: %w", err)
	}
	receiptReconciler.SetMetrics(metrics)

	dispatcher, err := callbacks.NewDispatcher(serviceCallbacks, payloadSigner, lanes, logger)
	if err != nil {
		return fmt.Errorf("callback dispatcher setup failed: %w", err)
	}
	dispatcher.SetMetrics(metrics)

	reclaimer, err := queue.NewReclaimer(lanes.All(), time.Duration(cfg.VisibilityTimeoutSec)*time.Second, 0, logger)
	if err != nil {
		return fmt.Errorf("reclaimer setup failed: %w", err)
	}

	notificationService, err := service.NewNotificationService(notifications, lanes, logger)
	if err != nil {
		return fmt.Errorf("notification service setup failed: %w", err)
	}
	callbackService, err := service.NewCallbackService(serviceCallbacks, payloadSigner)
	if err != nil {
		return fmt.Errorf("callback service setup failed: %w", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())
	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if err := handler.RegisterNotificationRoutes(app, notificationService, callbackService); err != nil {
		return fmt.Errorf("route setup failed: %w", err)
	}
	if err := handler.RegisterReceiptRoutes(app, lanes, logger); err != nil {
		return fmt.Errorf("route setup failed: %w", err)
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Start(groupCtx) })
	g.Go(func() error { return retryScanner.Start(groupCtx) })
	g.Go(func() error { return receiptReconciler.Start(groupCtx) })
	g.Go(func() error { return dispatcher.Start(groupCtx) })
	g.Go(func() error { return reclaimer.Start(groupCtx) })
	g.Go(func() error {
		logger.Info("delivery-engine api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-groupCtx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	return g.Wait()
}

// buildRouter wires a provider client per channel. Pinpoint is optional; with
// no origination identity configured every SMS rides the SNS pool.
func buildRouter(ctx context.Context, cfg *config.Config) (*delivery.Router, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	email, err := provider.NewSESClient(awsCfg, cfg.SESSource)
	if err != nil {
		return nil, err
	}
	sms, err := provider.NewSNSClient(awsCfg)
	if err != nil {
		return nil, err
	}
	letter, err := provider.NewPrintClient(cfg.PrintEndpoint, cfg.PrintAPIKey)
	if err != nil {
		return nil, err
	}

	var shortcodeSMS provider.Client
	if cfg.PinpointOriginationIdentity != "" {
		pinpoint, err := provider.NewPinpointClient(awsCfg, cfg.PinpointOriginationIdentity)
		if err != nil {
			return nil, err
		}
		shortcodeSMS = pinpoint
	}

	return delivery.NewRouter(email, sms, shortcodeSMS, letter, cfg.ShortcodeTemplateIDs)
}
