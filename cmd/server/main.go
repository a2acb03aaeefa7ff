package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bloodlink/service-delivery/internal/application"
	"github.com/bloodlink/service-delivery/internal/auth"
	"github.com/bloodlink/service-delivery/internal/config"
	"github.com/bloodlink/service-delivery/internal/database"
	"github.com/bloodlink/service-delivery/internal/domain/route"
	"github.com/bloodlink/service-delivery/internal/events"
	"github.com/bloodlink/service-delivery/internal/handler"
	"github.com/bloodlink/service-delivery/internal/health"
	"github.com/bloodlink/service-delivery/internal/logger"
	"github.com/bloodlink/service-delivery/internal/middleware"
	"github.com/bloodlink/service-delivery/internal/osrm"
	"github.com/bloodlink/service-delivery/internal/realtime"
	"github.com/bloodlink/service-delivery/internal/repository"
	"github.com/bloodlink/service-delivery/internal/routecache"
)

const serviceName = "service-delivery"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewNamed(cfg.AppEnv, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("service-delivery exited with error", zap.Error(err))
	}
	log.Info("service-delivery stopped")
}

func run(cfg *config.ServiceConfig, log *zap.Logger) error {
	log.Info("starting service-delivery",
		zap.String("port", cfg.Port),
		zap.String("routing_url", cfg.Routing.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := database.Connect(cfg.DB, log)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	// Run database migrations
	if cfg.IsDevelopment() {
		if err := db.AutoMigrate(&repository.DeliveryModel{}, &repository.RouteSnapshotModel{}); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
		log.Info("database migration completed (dev auto-migrate)")
	} else if err := database.RunMigrations(cfg.DB.URL(), log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)

	// Initialize Kafka producer
	producer := events.NewProducer(cfg.Kafka.Brokers, log)
	defer func() { _ = producer.Close() }()

	// Routing service, optionally behind the Redis route cache
	var fetcher route.Fetcher = osrm.NewClient(osrm.Config{
		BaseURL: cfg.Routing.BaseURL,
		Profile: cfg.Routing.Profile,
		Timeout: cfg.Routing.Timeout,
	}, log.Named("osrm"))

	healthHandler := health.NewHandler(db, serviceName)
	if cfg.Redis.Enabled {
		redisClient, err := routecache.NewRedisClient(ctx, routecache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer func() { _ = redisClient.Close() }()

		fetcher = routecache.NewCachingFetcher(fetcher, routecache.NewRedisStore(redisClient),
			cfg.Redis.TTL, cfg.Redis.Precision, log.Named("routecache"))
		healthHandler.AddCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
		log.Info("route cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	// Initialize repositories
	deliveryRepo := repository.NewGormDeliveryRepository(db)
	snapshotRepo := repository.NewGormRouteSnapshotRepository(db)

	// Initialize application services
	hub := realtime.NewHub(log.Named("realtime"))

	trackingService := application.NewTrackingService(
		fetcher,
		deliveryRepo,
		snapshotRepo,
		producer,
		hub,
		application.TrackingConfig{
			Debounce:         cfg.Routing.Debounce,
			CancelSuperseded: cfg.Routing.CancelSuperseded,
			EventsTopic:      cfg.Kafka.EventsTopic,
		},
		log.Named("tracking"),
	)
	defer trackingService.Shutdown()

	deliveryService := application.NewDeliveryService(
		deliveryRepo,
		trackingService,
		producer,
		cfg.Kafka.EventsTopic,
		log,
	)

	// Courier location consumer
	locationConsumer := events.NewCourierLocationConsumer(
		cfg.Kafka.Brokers,
		cfg.Kafka.GroupPrefix+"delivery-service",
		cfg.Kafka.LocationsTopic,
		trackingService,
		log.Named("locations"),
	)
	defer func() { _ = locationConsumer.Close() }()

	// Setup Gin router
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(middleware.SecurityHeadersMiddleware())

	// Register routes
	healthHandler.RegisterRoutes(router)
	handler.NewDeliveryHandler(deliveryService, trackingService).RegisterRoutes(&router.RouterGroup, jwtManager)
	handler.NewRouteHandler(deliveryService, trackingService, hub, log.Named("routes")).RegisterRoutes(&router.RouterGroup, jwtManager)
	handler.NewAdminHandler(deliveryService, trackingService).RegisterRoutes(&router.RouterGroup, jwtManager)

	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting courier location consumer", zap.String("topic", cfg.Kafka.LocationsTopic))
		if err := locationConsumer.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("location consumer: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		log.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down service-delivery...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server forced shutdown", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}
