package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/partsdepot/partsdepot-backend/api/routes"
	"github.com/partsdepot/partsdepot-backend/internal/addresses"
	"github.com/partsdepot/partsdepot-backend/internal/cart"
	"github.com/partsdepot/partsdepot-backend/internal/catalog"
	"github.com/partsdepot/partsdepot-backend/internal/orders"
	"github.com/partsdepot/partsdepot-backend/internal/payments"
	"github.com/partsdepot/partsdepot-backend/internal/stock"
	webhooktap "github.com/partsdepot/partsdepot-backend/internal/webhooks/tap"
	"github.com/partsdepot/partsdepot-backend/pkg/config"
	"github.com/partsdepot/partsdepot-backend/pkg/db"
	"github.com/partsdepot/partsdepot-backend/pkg/enums"
	"github.com/partsdepot/partsdepot-backend/pkg/logger"
	"github.com/partsdepot/partsdepot-backend/pkg/metrics"
	"github.com/partsdepot/partsdepot-backend/pkg/migrate"
	"github.com/partsdepot/partsdepot-backend/pkg/redis"
	"github.com/partsdepot/partsdepot-backend/pkg/tap"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	tapClient, err := tap.NewClient(context.Background(), cfg.Tap, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create tap client", err)
		os.Exit(1)
	}

	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)

	stockValidator, err := stock.NewValidator(logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stock validator", err)
		os.Exit(1)
	}

	currency, err := enums.ParseCurrency(cfg.Orders.Currency)
	if err != nil {
		logg.Error(context.Background(), "invalid orders currency", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(orders.ServiceParams{
		TxRunner:  dbClient,
		Repo:      orders.NewRepository(dbClient.DB()),
		Catalog:   catalog.NewRepository(dbClient.DB()),
		Carts:     cart.NewRepository(dbClient.DB()),
		Addresses: addresses.NewRepository(dbClient.DB()),
		Stock:     stockValidator,
		Currency:  currency,
		Metrics:   paymentMetrics,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(payments.ServiceParams{
		TxRunner:    dbClient,
		Repo:        payments.NewRepository(dbClient.DB()),
		OrdersRepo:  orders.NewRepository(dbClient.DB()),
		Engine:      ordersService,
		Gateway:     tapClient,
		Metrics:     paymentMetrics,
		Logger:      logg,
		RedirectURL: cfg.Tap.RedirectURL,
		WebhookURL:  cfg.Tap.WebhookURL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	tapWebhookService, err := webhooktap.NewService(webhooktap.ServiceParams{
		TxRunner: dbClient,
		Payments: paymentsService,
		Store:    redisClient,
		Secret:   cfg.Tap.WebhookSecret,
		DedupTTL: cfg.Tap.WebhookDedupTTL,
		Metrics:  paymentMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create tap webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":     cfg.App.Env,
		"addr":    addr,
		"tap_env": tapClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, ordersService, paymentsService, tapWebhookService),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
