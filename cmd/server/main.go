package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"docvision-service/internal/handler"
	mid "docvision-service/internal/middleware"
	"docvision-service/internal/service/ai"
	"docvision-service/pkg/config"
	"docvision-service/pkg/database"
	"docvision-service/pkg/jwtutil"
	"docvision-service/pkg/logger"
	"docvision-service/pkg/queue"
	"docvision-service/pkg/storage"
	"docvision-service/prometheus"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	appConfig, err := config.Load()
	if err != nil {
		// Can't use structured logger yet since it's not initialized
		panic("Failed to load configuration: " + err.Error())
	}

	logger.InitLogger(appConfig)
	log := logger.GetLogger()
	defer log.Sync()

	log.Info("Starting docvision-service", appConfig.LogConfig()...)

	prometheus.InitMetrics(appConfig.Metrics.Prefix)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jwtutil.Initialize(&appConfig.JWT)
	log.Info("JWT utility initialized")

	if err := database.Initialize(appConfig.DB); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer database.Close()
	log.Info("Database connection established")

	store, err := storage.NewS3Store(ctx, appConfig.S3)
	if err != nil {
		log.Fatal("Failed to initialize object storage", zap.Error(err))
	}

	deps := handler.Dependencies{
		Storage:        store,
		PresignTTL:     appConfig.S3.PresignTTL,
		MaxUploadBytes: appConfig.Server.MaxUploadBytes,
	}

	// Redis backs the detection cache and the extraction queue; both are optional
	var cache ai.Cache
	if appConfig.Redis.URL != "" {
		opts, err := redis.ParseURL(appConfig.Redis.URL)
		if err != nil {
			log.Fatal("Invalid REDIS_URL", zap.Error(err))
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("Redis is not reachable, continuing", zap.Error(err))
		}
		cache = ai.NewRedisCache(rdb, appConfig.AI.CacheTTL, log)
		deps.Queue = queue.NewRedisProducer(rdb, appConfig.Extraction.Stream, log)
	} else {
		log.Warn("REDIS_URL not set, detection cache and document extraction are disabled")
	}

	registry, err := ai.NewRegistryFromConfig(ctx, appConfig.AI, &http.Client{Timeout: 2 * time.Minute}, cache, log)
	if err != nil {
		log.Fatal("Failed to initialize AI providers", zap.Error(err))
	}
	deps.AI = registry
	log.Info("AI providers registered", zap.Strings("providers", registry.Providers()))

	handler.Initialize(deps)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: appConfig.Server.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	// Leave room for the multipart envelope around the file itself
	e.Use(middleware.BodyLimit(bodyLimit(appConfig.Server.MaxUploadBytes + 1<<20)))
	e.Use(mid.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	handler.RegisterRoutes(e)

	go func() {
		port := appConfig.Server.Port
		log.Info("Starting server", zap.String("port", port))
		if err := e.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", zap.Error(err))
	}
	if deps.Queue != nil {
		_ = deps.Queue.Close()
	}
}

// bodyLimit renders a byte count in the unit syntax BodyLimit expects
func bodyLimit(n int64) string {
	return strconv.FormatInt(n/1024, 10) + "K"
}
