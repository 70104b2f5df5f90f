package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-wms/meridian/internal/app"
	"github.com/meridian-wms/meridian/internal/ledger"
	"github.com/meridian-wms/meridian/internal/masterdata"
	"github.com/meridian-wms/meridian/internal/masterdata/locations"
	"github.com/meridian-wms/meridian/internal/masterdata/products"
	"github.com/meridian-wms/meridian/internal/observability"
	"github.com/meridian-wms/meridian/internal/orders"
	"github.com/meridian-wms/meridian/internal/platform/cache"
	"github.com/meridian-wms/meridian/internal/platform/db"
	"github.com/meridian-wms/meridian/internal/receiving"
	"github.com/meridian-wms/meridian/internal/shared"
	"github.com/meridian-wms/meridian/internal/shipping"
	"github.com/meridian-wms/meridian/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	metrics := observability.NewMetrics()

	productService := products.NewService(products.NewRepository(pool))
	locationService := locations.NewService(locations.NewRepository(pool))
	reference := masterdata.NewReference(productService, locationService)

	strategy := ledger.NewStrategy(ledger.NewRepository(pool), reference, auditLogger, idempotencyStore, logger, ledger.StrategyConfig{Metrics: metrics})

	shipper := shipping.NewFlatRateProvider(shipping.FlatRateConfig{
		BaseFee:  decimal.RequireFromString("5.00"),
		PerKgFee: decimal.RequireFromString("1.25"),
	})

	orderService := orders.NewService(orders.NewRepository(pool), strategy, shipper, reference, auditLogger, metrics, logger, orders.ServiceConfig{})
	receivingService := receiving.NewService(receiving.NewRepository(pool), strategy, auditLogger, logger, receiving.ServiceConfig{})

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		LedgerHandler:    ledger.NewHandler(logger, strategy),
		OrdersHandler:    orders.NewHandler(logger, orderService),
		ReceivingHandler: receiving.NewHandler(logger, receivingService),
		ProductsHandler:  products.NewHandler(logger, productService),
		LocationsHandler: locations.NewHandler(logger, locationService),
		JobsHandler:      jobs.NewHandler(inspector, redisClient, logger),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("run", slog.Any("error", err))
		os.Exit(1)
	}
}
