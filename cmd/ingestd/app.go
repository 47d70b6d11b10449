package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"mailsink/internal/blobstore"
	"mailsink/internal/broker"
	"mailsink/internal/config"
	"mailsink/internal/constants"
	"mailsink/internal/ingest"
	"mailsink/internal/logger"
	"mailsink/internal/stats"
	"mailsink/pkg/bootstrap"
	"mailsink/pkg/health"
	"mailsink/pkg/metrics"
	"mailsink/pkg/middleware"
	"mailsink/pkg/ratelimit"
)

type App struct {
	config      *config.Config
	logger      logger.Logger
	dbConnector *bootstrap.DatabaseConnector
	mongoClient *mongo.Client
	redisClient *redis.Client
	blobs       blobstore.BlobStore
	producer    broker.Producer
	server      *http.Server
	router      *gin.Engine
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		config:      cfg,
		logger:      log,
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.initBlobStore(); err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}

	if err := a.initRouter(ctx); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	if err := a.initServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		return err
	}
	a.mongoClient = mongoClient

	// Redis only backs the per-recipient ingestion counters, so a missing
	// configuration disables stats rather than failing startup.
	if a.config.Database.Redis.Host != "" {
		redisClient, err := a.dbConnector.InitRedis(ctx)
		if err != nil {
			a.logger.WarnwCtx(ctx, "Redis connection failed, ingestion stats disabled", "error", err)
		} else {
			a.redisClient = redisClient
		}
	}

	return nil
}

func (a *App) initBlobStore() error {
	switch a.config.Blob.Backend {
	case "", "filesystem":
		store, err := blobstore.NewFilesystemStore(a.config.Blob.Root)
		if err != nil {
			return err
		}
		a.blobs = store
		return nil
	default:
		return fmt.Errorf("unsupported blob backend: %s", a.config.Blob.Backend)
	}
}

func (a *App) initRouter(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.LoggerMiddleware(a.logger))
	router.Use(middleware.RequestIDMiddleware())

	if a.config.RateLimit.Enabled {
		rateLimitConfig := ratelimit.RateLimitConfig{
			RPS:             a.config.RateLimit.RPS,
			Burst:           a.config.RateLimit.Burst,
			CleanupInterval: time.Duration(a.config.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.config.RateLimit.MaxAge) * time.Second,
		}
		router.Use(ratelimit.RateLimitMiddleware(rateLimitConfig))
		a.logger.InfowCtx(ctx, "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	dbName := a.config.Database.MongoDB.Database
	if dbName == "" {
		dbName = constants.DefaultMongoDBName
	}
	mongoDB := a.mongoClient.Database(dbName)

	var repo ingest.Repository = ingest.NewRepository(mongoDB, a.config.Ingest.MessageKind, a.config.Ingest.AttachmentKind)
	if err := repo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to ensure indexes: %w", err)
	}
	if a.config.CircuitBreaker.Enabled {
		repo = ingest.NewCircuitBreakerRepository(repo, a.config.CircuitBreaker)
		a.logger.InfowCtx(ctx, "Record store circuit breaker enabled")
	}

	opts := []ingest.ServiceOption{}

	if a.config.Broker.Type == "kafka" {
		producer, err := broker.NewProducer(a.config.Broker, a.logger)
		if err != nil {
			a.logger.WarnwCtx(ctx, "Failed to create event producer, ingest events disabled", "error", err)
		} else {
			a.producer = producer
			topic := a.config.Broker.Kafka.IngestTopic
			if topic == "" {
				topic = constants.DefaultIngestTopic
			}
			opts = append(opts, ingest.WithEventProducer(ingest.NewEventProducer(producer, topic)))
			a.logger.InfowCtx(ctx, "Ingest event producer initialized", "topic", topic)
		}
	}

	if a.redisClient != nil {
		ttl := constants.DefaultStatsTTL
		if a.config.Database.Redis.TTLSeconds > 0 {
			ttl = time.Duration(a.config.Database.Redis.TTLSeconds) * time.Second
		}
		opts = append(opts, ingest.WithStatsRecorder(stats.NewRedisRecorder(a.redisClient, ttl)))
	}

	svc := ingest.NewService(repo, a.blobs, a.config.Blob.Bucket, a.logger, opts...)

	handler := ingest.NewHandler(svc, a.logger, a.config.Ingest.SpoolDir, a.config.Ingest.MaxBodyBytes)
	handler.RegisterRoutes(router)

	metrics.RegisterIngestMetrics()
	metrics.RegisterRateLimitMetrics()
	metrics.RegisterCircuitBreakerMetrics()
	if a.producer != nil {
		metrics.RegisterBrokerMetrics()
	}

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewMongoDBChecker(a.mongoClient))
	if a.redisClient != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redisClient))
	}
	if fs, ok := a.blobs.(*blobstore.FilesystemStore); ok {
		healthRegistry.Register(health.NewFuncChecker("blobstore", fs.Check))
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.router = router
	return nil
}

func (a *App) initServer() error {
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.config.Server.ReadTimeoutSeconds * time.Second,
		WriteTimeout: a.config.Server.WriteTimeoutSeconds * time.Second,
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		a.logger.InfowCtx(ctx, "Server listening", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return a.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.InfowCtx(ctx, "Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer shutdown error: %w", err))
		}
	}

	dbErrs := a.dbConnector.ShutdownDatabases(ctx, a.redisClient, a.mongoClient)
	errs = append(errs, dbErrs...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	a.logger.InfowCtx(ctx, "Server exited successfully")
	return nil
}
