// Package queue moves document extraction jobs through a Redis stream.
package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ExtractionJob asks the worker to extract the text of one file
type ExtractionJob struct {
	FileID  uuid.UUID
	Attempt int
}

type Producer interface {
	Enqueue(ctx context.Context, job ExtractionJob) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *zap.Logger) Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, job ExtractionJob) error {
	attempt := job.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: jobValues(job.FileID, attempt),
	}).Err(); err != nil {
		return fmt.Errorf("enqueue extraction job: %w", err)
	}

	p.logger.Info("Enqueued extraction job",
		zap.String("file_id", job.FileID.String()),
		zap.Int("attempt", attempt))
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}

func jobValues(fileID uuid.UUID, attempt int) map[string]any {
	return map[string]any{
		"file_id": fileID.String(),
		"attempt": attempt,
	}
}
