package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/pricing-service/internal/cache"
	"github.com/fjod/go_cart/pricing-service/internal/catalog"
	"github.com/fjod/go_cart/pricing-service/internal/config"
	"github.com/fjod/go_cart/pricing-service/internal/consumer"
	h "github.com/fjod/go_cart/pricing-service/internal/http"
	"github.com/fjod/go_cart/pricing-service/internal/pricing"
	"github.com/fjod/go_cart/pricing-service/internal/readiness"
	"github.com/fjod/go_cart/pricing-service/internal/repository"
	s "github.com/fjod/go_cart/pricing-service/internal/service"
	"github.com/fjod/go_cart/pricing-service/pkg/circuitbreaker"
	"github.com/fjod/go_cart/pricing-service/pkg/logger"
	"github.com/fjod/go_cart/pricing-service/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const serviceName = "pricing-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("pricing service stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, telemetry.TracerConfig{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			zlog.Warn("tracer shutdown error", zap.Error(err))
		}
	}()

	// Carts live in MongoDB
	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return err
	}
	defer func() { _ = mongoDB.Client().Disconnect(context.Background()) }()
	cartRepo := repository.NewMongoRepository(mongoDB)
	if err := cartRepo.CreateIndexes(ctx); err != nil {
		return err
	}
	zlog.Info("connected to mongodb", zap.String("database", cfg.MongoDatabase))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	zlog.Info("redis ping succeeded", zap.String("addr", cfg.RedisAddr))

	// Discount codes and the usage ledger live in Postgres
	creds := &repository.Credentials{
		Host:              cfg.PostgresHost,
		Port:              cfg.PostgresPort,
		User:              cfg.PostgresUser,
		Password:          cfg.PostgresPassword,
		DBName:            cfg.PostgresDB,
		MigrationsDirPath: cfg.PostgresMigrationsPath,
	}
	pgRepo, err := repository.NewPostgresRepository(creds, zlog)
	if err != nil {
		return err
	}
	defer pgRepo.Close()
	if err := pgRepo.RunMigrations(creds); err != nil {
		return err
	}

	breakerSettings := circuitbreaker.DefaultSettings("postgres-discounts")
	breakerSettings.ConsecutiveFailures = uint32(cfg.BreakerFailures)
	breakerSettings.OpenTimeout = cfg.BreakerOpenTimeout
	discounts := repository.NewBreakerRepository(pgRepo, breakerSettings, zlog)

	products, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		return err
	}
	defer products.Close()
	if err := products.RunMigrations(cfg.CatalogMigrationsPath); err != nil {
		return err
	}

	cartService := s.NewCartService(cartRepo, cache.NewRedisCache(redisClient), products, zlog)
	evaluator := pricing.NewEvaluator(discounts, zlog)
	aggregator := pricing.NewAggregator(
		pricing.NewFlatRateVAT(cfg.VATRate),
		pricing.NewThresholdShipping(cfg.FreeShippingThreshold, cfg.ShippingFee),
		evaluator,
	)
	promoStore := cache.NewRedisPromoStore(redisClient)
	promoService := s.NewPromoService(cartService, discounts, promoStore, evaluator, aggregator, zlog)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)

	handler := h.NewCartHandler(cartService, promoService, metrics, cfg.RequestTimeout, cfg.MaxRequestBodySize, zlog)
	limits := h.PerMinuteLimits(cfg.PromoApplyPerMinute, cfg.AddItemPerMinute, cfg.CartSyncPerMinute)
	router := h.NewRouter(handler, metrics, telemetry.Handler(reg), limits)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// gRPC only carries health checks and reflection for the orchestrator
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port: %w", err)
	}
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	watcher := readiness.NewWatcher(healthServer, "", []readiness.Check{
		{Name: "postgres", Ping: pgRepo.Ping},
		{Name: "mongodb", Ping: func(ctx context.Context) error { return mongoDB.Client().Ping(ctx, nil) }},
		{Name: "redis", Ping: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
	}, zlog)
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		watcher.Run(watchCtx)
	}()

	errCh := make(chan error, 2)
	go func() {
		zlog.Info("http server starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		zlog.Info("grpc health server starting", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var checkout *consumer.Consumer
	if len(cfg.KafkaBrokers) > 0 {
		checkout = consumer.NewConsumer(consumer.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, discounts, promoStore, cartService, zlog)
		go checkout.Run(ctx)
		zlog.Info("checkout consumer started", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	} else {
		zlog.Warn("KAFKA_BROKERS not set, promo usage will not be recorded")
	}

	var runErr error
	select {
	case <-ctx.Done():
		zlog.Info("shutting down pricing service")
	case runErr = <-errCh:
		zlog.Error("server failed, shutting down", zap.Error(runErr))
	}

	stopWatch()
	<-watchDone
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("http server forced to shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
	stop()
	if checkout != nil {
		checkout.Close()
	}

	zlog.Info("pricing service stopped")
	return runErr
}
