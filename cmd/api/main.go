package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	config "github.com/anjiri1684/tutor_marketplace/configs"
	"github.com/anjiri1684/tutor_marketplace/database"
	"github.com/anjiri1684/tutor_marketplace/events"
	"github.com/anjiri1684/tutor_marketplace/handlers"
	"github.com/anjiri1684/tutor_marketplace/jobs"
	"github.com/anjiri1684/tutor_marketplace/lock"
	"github.com/anjiri1684/tutor_marketplace/logging"
	"github.com/anjiri1684/tutor_marketplace/models"
	"github.com/anjiri1684/tutor_marketplace/payments"
	"github.com/anjiri1684/tutor_marketplace/routes"
	"github.com/anjiri1684/tutor_marketplace/services"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.Database, logger)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}
	store := database.NewStore(db)
	now := services.SystemClock

	var locker services.Locker = lock.NewKeyedMutex()
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
		defer client.Close()
		locker = lock.NewRedisLocker(client, cfg.Redis.LockTTL, 50*time.Millisecond, 100, logger)
		logger.Info("using redis account locks", zap.String("addr", cfg.Redis.Addr))
	}

	sandbox := payments.NewSandboxGateway(logger)
	gateway := payments.MethodRouter{
		models.PaymentCard:   sandbox,
		models.PaymentPayPal: sandbox,
	}
	if cfg.PayPal.Enabled() {
		gateway[models.PaymentPayPal] = payments.NewPayPalGateway(cfg.PayPal, logger)
	}

	bookingCfg := services.BookingConfig{
		PlatformFeeRate: decimal.NewFromFloat(cfg.Business.PlatformFeeRate),
		LessonMinutes:   cfg.Business.LessonMinutes,
		Currency:        cfg.Business.Currency,
		PaymentTimeout:  cfg.Business.PaymentTimeout,
		ReconcileGrace:  cfg.Business.ReconcileGrace,
		GatewayRetries:  cfg.Business.GatewayRetries,
		GatewayBackoff:  cfg.Business.GatewayBackoff,
		SweepBatchSize:  cfg.Business.SweepBatchSize,
	}
	ledger := services.NewLedgerService(store, locker, now, logger)
	approval := services.NewApprovalService(store, now, logger)
	bookings := services.NewBookingService(store, ledger, gateway, locker, now, bookingCfg, logger)
	payouts := services.NewPayoutService(store, ledger, locker, now, cfg.Business.Currency, logger)
	accounts := services.NewAccountService(store, approval, now, cfg.Business.Currency, logger)

	if cfg.Admin.Email != "" {
		if _, err := accounts.EnsureAdmin(ctx, cfg.Admin.FullName, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			return err
		}
	}

	publisher, err := events.New(cfg.Events, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()
	relay := jobs.NewOutboxRelay(store, publisher, jobs.RelayConfig{
		BatchSize:   cfg.Events.RelayBatch,
		MaxRetries:  cfg.Events.MaxRetries,
		Parallelism: cfg.Events.PublishLimit,
	}, now, logger)

	scheduler := jobs.NewScheduler(logger, time.Minute)
	if err := jobs.Register(scheduler, cfg.Jobs, bookings, relay); err != nil {
		return err
	}

	h := handlers.New(accounts, approval, bookings, ledger, payouts, handlers.Options{
		JWTSecret:     cfg.Auth.JWTSecret,
		TokenTTL:      cfg.Auth.TokenTTL,
		WebhookSecret: cfg.Auth.WebhookSecret,
		Now:           now,
	}, logger)
	app := routes.NewApp(routes.AppConfig{
		AppName:   cfg.Server.AppName,
		JWTSecret: cfg.Auth.JWTSecret,
		AccessLog: cfg.LogLevel == "debug",
	}, h, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		return app.Listen(":" + cfg.Server.Port)
	})
	g.Go(func() error {
		scheduler.Start()
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		scheduler.Stop(shutdownCtx)
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
