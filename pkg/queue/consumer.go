package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type ConsumerConfig struct {
	Stream      string        // Redis stream name
	Group       string        // Redis consumer group name
	Consumer    string        // Redis consumer name
	DLQStream   string        // Dead letter stream for jobs that ran out of attempts
	BatchSize   int64         // Number of messages to read per call
	Block       time.Duration // How long to block waiting for new messages
	MaxAttempts int           // Attempts before a job goes to the DLQ
}

// Message is a parsed stream entry. Deliveries counts how often this entry
// was handed to a consumer; it only grows past 1 when a stale entry is claimed.
type Message struct {
	ID         string
	Job        ExtractionJob
	Raw        redis.XMessage
	Deliveries int64
}

type RedisConsumer struct {
	client *redis.Client
	cfg    ConsumerConfig
	logger *zap.Logger
}

func NewRedisConsumer(ctx context.Context, client *redis.Client, cfg ConsumerConfig, logger *zap.Logger) (*RedisConsumer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DLQStream == "" {
		cfg.DLQStream = cfg.Stream + "_dlq"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	// A zero Block would make XREADGROUP wait forever
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}

	consumer := &RedisConsumer{
		client: client,
		cfg:    cfg,
		logger: logger.With(zap.String("stream", cfg.Stream), zap.String("consumer", cfg.Consumer)),
	}

	if err := consumer.ensureGroup(ctx); err != nil {
		return nil, err
	}
	return consumer, nil
}

// MaxAttempts is the number of tries a job gets before it is dead lettered
func (c *RedisConsumer) MaxAttempts() int {
	return c.cfg.MaxAttempts
}

func (c *RedisConsumer) ensureGroup(ctx context.Context) error {
	// Start from "0" so jobs queued before the group existed are not lost.
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating consumer group: %w", err)
	}
	return nil
}

func (c *RedisConsumer) Read(ctx context.Context) ([]Message, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.BatchSize,
		Block:    c.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Message{}, nil
		}
		return nil, fmt.Errorf("reading from stream: %w", err)
	}

	var messages []Message
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			job, parseErr := ParseJob(msg.Values)
			if parseErr != nil {
				c.logger.Error("Dropping malformed message",
					zap.String("message_id", msg.ID),
					zap.Error(parseErr))
				_ = c.Ack(ctx, Message{ID: msg.ID, Raw: msg})
				continue
			}
			messages = append(messages, Message{ID: msg.ID, Job: job, Raw: msg, Deliveries: 1})
		}
	}

	return messages, nil
}

// ClaimStale takes over entries that have been pending for at least minIdle,
// left behind by a consumer that crashed or stopped before settling them.
func (c *RedisConsumer) ClaimStale(ctx context.Context, minIdle time.Duration) ([]Message, error) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.cfg.Stream,
		Group:  c.cfg.Group,
		Idle:   minIdle,
		Start:  "-",
		End:    "+",
		Count:  c.cfg.BatchSize,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xpending (stream=%s): %w", c.cfg.Stream, err)
	}
	if len(pending) == 0 {
		return []Message{}, nil
	}

	deliveries := make(map[string]int64, len(pending))
	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		deliveries[p.ID] = p.RetryCount
		ids = append(ids, p.ID)
	}

	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.cfg.Stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xclaim (stream=%s): %w", c.cfg.Stream, err)
	}

	messages := make([]Message, 0, len(claimed))
	for _, msg := range claimed {
		job, parseErr := ParseJob(msg.Values)
		if parseErr != nil {
			c.logger.Error("Dropping malformed claimed message",
				zap.String("message_id", msg.ID),
				zap.Error(parseErr))
			_ = c.Ack(ctx, Message{ID: msg.ID, Raw: msg})
			continue
		}
		c.logger.Info("Claimed stale extraction job",
			zap.String("message_id", msg.ID),
			zap.String("file_id", job.FileID.String()),
			zap.Int64("previous_deliveries", deliveries[msg.ID]))
		// XCLAIM counts as one more delivery
		messages = append(messages, Message{ID: msg.ID, Job: job, Raw: msg, Deliveries: deliveries[msg.ID] + 1})
	}
	return messages, nil
}

func (c *RedisConsumer) Ack(ctx context.Context, msg Message) error {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
		return fmt.Errorf("xack (stream=%s): %w", c.cfg.Stream, err)
	}
	return nil
}

// Requeue acks the message and appends it again with the attempt counter bumped
func (c *RedisConsumer) Requeue(ctx context.Context, msg Message, errMsg string) error {
	if err := c.Ack(ctx, msg); err != nil {
		return fmt.Errorf("acking failed message for requeue: %w", err)
	}

	values := jobValues(msg.Job.FileID, msg.Job.Attempt+1)
	if errMsg != "" {
		values["last_error"] = errMsg
	}

	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.Stream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("xadd requeue: %w", err)
	}

	c.logger.Info("Extraction job requeued",
		zap.String("file_id", msg.Job.FileID.String()),
		zap.Int("next_attempt", msg.Job.Attempt+1),
		zap.String("reason", errMsg))
	return nil
}

func (c *RedisConsumer) SendDLQ(ctx context.Context, msg Message, errMsg string) error {
	if err := c.Ack(ctx, msg); err != nil {
		return fmt.Errorf("acking failed message for dlq: %w", err)
	}

	values := jobValues(msg.Job.FileID, msg.Job.Attempt)
	values["error"] = errMsg

	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.DLQStream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("xadd dlq (stream=%s): %w", c.cfg.DLQStream, err)
	}

	c.logger.Error("Extraction job sent to DLQ",
		zap.String("file_id", msg.Job.FileID.String()),
		zap.String("dlq_stream", c.cfg.DLQStream),
		zap.String("final_error", errMsg))
	return nil
}

// ParseJob decodes the fields written by the producer
func ParseJob(values map[string]any) (ExtractionJob, error) {
	raw, ok := values["file_id"]
	if !ok {
		return ExtractionJob{}, errors.New("missing file_id")
	}
	fileID, err := uuid.Parse(fmt.Sprint(raw))
	if err != nil {
		return ExtractionJob{}, fmt.Errorf("parsing file_id: %w", err)
	}

	attempt := 1
	if rawAttempt, ok := values["attempt"]; ok {
		attempt, err = strconv.Atoi(fmt.Sprint(rawAttempt))
		if err != nil {
			return ExtractionJob{}, fmt.Errorf("parsing attempt: %w", err)
		}
		if attempt <= 0 {
			attempt = 1
		}
	}

	return ExtractionJob{FileID: fileID, Attempt: attempt}, nil
}
