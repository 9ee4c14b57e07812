package main

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"

	"docvision-service/internal/service/extraction"
	"docvision-service/pkg/config"
	"docvision-service/pkg/database"
	"docvision-service/pkg/logger"
	"docvision-service/pkg/queue"
	"docvision-service/pkg/storage"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	appConfig, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logger.InitLogger(appConfig)
	log := logger.GetLogger().With(zap.String("component", "extraction-worker"))
	defer log.Sync()

	if appConfig.Redis.URL == "" {
		log.Fatal("REDIS_URL is required by the extraction worker")
	}
	if appConfig.Extraction.ProcessorURL == "" {
		log.Fatal("DOCUMENT_PROCESSOR_URL is required by the extraction worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Initialize(appConfig.DB); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer database.Close()

	store, err := storage.NewS3Store(ctx, appConfig.S3)
	if err != nil {
		log.Fatal("Failed to initialize object storage", zap.Error(err))
	}

	opts, err := redis.ParseURL(appConfig.Redis.URL)
	if err != nil {
		log.Fatal("Invalid REDIS_URL", zap.Error(err))
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	consumer, err := queue.NewRedisConsumer(ctx, rdb, queue.ConsumerConfig{
		Stream:      appConfig.Extraction.Stream,
		Group:       appConfig.Extraction.Group,
		Consumer:    appConfig.Extraction.Consumer,
		Block:       appConfig.Extraction.Block,
		MaxAttempts: appConfig.Extraction.MaxAttempts,
	}, log)
	if err != nil {
		log.Fatal("Failed to join consumer group", zap.Error(err))
	}

	extractor := extraction.NewExtractor(database.GetDB(), store, extraction.Config{
		ProcessorURL: appConfig.Extraction.ProcessorURL,
		AuthToken:    appConfig.Extraction.AuthToken,
		Timeout:      appConfig.Extraction.Timeout,
		PresignTTL:   appConfig.S3.PresignTTL,
	}, log)

	log.Info("Joined extraction consumer group",
		zap.String("stream", appConfig.Extraction.Stream),
		zap.String("group", appConfig.Extraction.Group),
		zap.String("consumer", appConfig.Extraction.Consumer))

	worker := extraction.NewWorker(consumer, extractor, log)
	reclaimer := extraction.NewReclaimer(consumer, worker, extraction.ReclaimerConfig{
		MinIdle:  appConfig.Extraction.ReclaimMinIdle,
		Interval: appConfig.Extraction.ReclaimInterval,
	}, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reclaimer.Run(ctx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Extraction worker failed", zap.Error(err))
	}
	wg.Wait()
}
