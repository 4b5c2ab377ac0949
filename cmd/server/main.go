package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/broker"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// markers outlive any plausible redelivery of the same event
const projectionMarkerTTL = 24 * time.Hour

func main() {
	app := &cli.App{
		Name:  "storefront",
		Usage: "order and payment service",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API, outbox relay and stock projection",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations and exit",
				Action: migrate,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := util.InitLogger(cfg.Env); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, util.GetLogger(), nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	return store.NewStore(cfg.DatabaseURL, store.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: 5 * time.Minute,
	})
}

func migrate(c *cli.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer util.SyncLogger()

	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return err
	}
	logger.Info("Migrations applied")
	return nil
}

func serve(c *cli.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer util.SyncLogger()
	logger.Info("Starting storefront service", zap.String("env", cfg.Env))

	tp, err := util.InitTracer(util.ServiceName, cfg.JaegerEndpoint)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	logger.Info("Database connected")

	if cfg.MigrateOnStart {
		if err := db.Migrate(); err != nil {
			return err
		}
	}

	redisClient, err := redisclient.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()
	logger.Info("Kafka producer initialized")

	ledger := service.NewInventoryLedger()
	orderService := service.NewOrderService(db, ledger)
	paymentService := service.NewPaymentService(db, ledger)
	catalogService := service.NewCatalogService(db, redisClient, cfg.StockCacheTTL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := catalogService.SyncStockToCache(ctx); err != nil {
		logger.Warn("Failed to sync stock to Redis", zap.Error(err))
	}

	relay := worker.NewOutboxRelay(db, broker.NewEventPublisher(producer), cfg.OutboxBatchSize, cfg.OutboxPollInterval)
	consumer := broker.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaConsumerGroup)
	projection := worker.NewStockProjectionWorker(consumer, redisClient, projectionMarkerTTL)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	handler := api.NewHandler(orderService, paymentService, catalogService, cfg.MaxProofBytes)
	handler.AddReadinessCheck("postgres", db.Ping)
	handler.AddReadinessCheck("redis", redisClient.Ping)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return relay.Start(gctx)
	})
	g.Go(func() error {
		err := projection.Start(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", zap.Error(err))
		}
		return projection.Stop()
	})

	err = g.Wait()
	logger.Info("Server exited")
	return err
}
