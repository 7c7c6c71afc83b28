package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	cartsvc "github.com/shoplight/shoplight-backend/internal/cart"
	"github.com/shoplight/shoplight-backend/internal/catalog"
	checkoutsvc "github.com/shoplight/shoplight-backend/internal/checkout"
	inventorysvc "github.com/shoplight/shoplight-backend/internal/inventory"
	"github.com/shoplight/shoplight-backend/internal/notifications"
	ordersvc "github.com/shoplight/shoplight-backend/internal/orders"
	"github.com/shoplight/shoplight-backend/internal/payments"
	"github.com/shoplight/shoplight-backend/pkg/config"
	"github.com/shoplight/shoplight-backend/pkg/db"
	"github.com/shoplight/shoplight-backend/pkg/logger"
	"github.com/shoplight/shoplight-backend/pkg/metrics"
	"github.com/shoplight/shoplight-backend/pkg/migrate"
	"github.com/shoplight/shoplight-backend/pkg/outbox"
	"github.com/shoplight/shoplight-backend/pkg/outbox/idempotency"
	"github.com/shoplight/shoplight-backend/pkg/redis"
	"github.com/shoplight/shoplight-backend/pkg/sendgrid"
	"github.com/shoplight/shoplight-backend/pkg/stripe"
)

const (
	expireSweepInterval = time.Minute
	recoverInterval     = 5 * time.Minute
	recoverWindow       = time.Hour

	idempotencyTTL = 72 * time.Hour
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	jobMetrics := metrics.NewJobMetrics(prometheus.DefaultRegisterer)
	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)

	gormDB := dbClient.DB()
	catalogRepo := catalog.NewRepository(gormDB)
	outboxRepo := outbox.NewRepository(gormDB)
	outboxService := outbox.NewService(outboxRepo, logg)

	cartService, err := cartsvc.NewService(cartsvc.NewRepository(gormDB), dbClient, catalogRepo, cfg.Checkout)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	checkoutRepo := checkoutsvc.NewRepository(gormDB)
	checkoutService, err := checkoutsvc.NewService(checkoutRepo, dbClient, cartService, catalogRepo, cfg.Checkout, logg, pipelineMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	inventoryService, err := inventorysvc.NewService(inventorysvc.NewRepository(gormDB), dbClient, logg, pipelineMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	paymentProvider, err := payments.NewStripeProvider(stripeClient, pipelineMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment provider", err)
		os.Exit(1)
	}

	orderService, err := ordersvc.NewService(ordersvc.NewRepository(gormDB), dbClient, checkoutRepo, checkoutService, cartService, inventoryService, paymentProvider, outboxService, logg, pipelineMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	mailClient, err := sendgrid.NewClient(cfg.Sendgrid.APIKey, cfg.Sendgrid.DefaultFrom)
	if err != nil {
		logg.Error(context.Background(), "failed to create sendgrid client", err)
		os.Exit(1)
	}

	notificationService, err := notifications.NewService(mailClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification service", err)
		os.Exit(1)
	}

	idemManager, err := idempotency.NewManager(redisClient, idempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}

	dispatcher, err := notifications.NewDispatcher(outboxRepo, notificationService, idemManager, logg, cfg.Outbox)
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox dispatcher", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting worker")

	go runExpireSweep(ctx, checkoutService, jobMetrics, logg)
	go runOrderRecovery(ctx, orderService, jobMetrics, logg)

	pollInterval := time.Duration(cfg.Outbox.PollIntervalMS) * time.Millisecond
	if err := dispatcher.Run(ctx, pollInterval); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox dispatcher stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}

// runExpireSweep flips lapsed checkout sessions to expired on a timer.
func runExpireSweep(ctx context.Context, svc checkoutsvc.Service, jobMetrics *metrics.JobMetrics, logg *logger.Logger) {
	ticker := time.NewTicker(expireSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			expired, err := svc.ExpireStale(ctx)
			jobMetrics.ObserveDuration("checkout_expire", time.Since(start))
			if err != nil {
				jobMetrics.IncFailure("checkout_expire")
				logg.Error(ctx, "checkout expiry sweep failed", err)
				continue
			}
			jobMetrics.IncSuccess("checkout_expire")
			if expired > 0 {
				logg.Info(logg.WithFields(ctx, map[string]any{"count": expired}), "expired stale checkout sessions")
			}
		}
	}
}

// runOrderRecovery replays unfinished post-payment side effects.
func runOrderRecovery(ctx context.Context, svc ordersvc.Service, jobMetrics *metrics.JobMetrics, logg *logger.Logger) {
	ticker := time.NewTicker(recoverInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			recovered, err := svc.RecoverRecent(ctx, recoverWindow)
			jobMetrics.ObserveDuration("order_recovery", time.Since(start))
			if err != nil {
				jobMetrics.IncFailure("order_recovery")
				logg.Error(ctx, "order recovery pass failed", err)
				continue
			}
			jobMetrics.IncSuccess("order_recovery")
			if recovered > 0 {
				logg.Info(logg.WithFields(ctx, map[string]any{"count": recovered}), "recovered order side effects")
			}
		}
	}
}
