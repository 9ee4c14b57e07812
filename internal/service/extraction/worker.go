package extraction

import (
	"context"
	"errors"
	"time"

	"docvision-service/pkg/queue"
	"docvision-service/prometheus"

	"go.uber.org/zap"
)

// Consumer is the part of queue.RedisConsumer the worker drives
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
	MaxAttempts() int
}

// Worker pulls extraction jobs until its context is cancelled
type Worker struct {
	consumer  Consumer
	extractor *Extractor
	logger    *zap.Logger
	backoff   time.Duration
}

func NewWorker(consumer Consumer, extractor *Extractor, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		consumer:  consumer,
		extractor: extractor,
		logger:    logger,
		backoff:   time.Second,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Extraction worker started")
	for {
		if ctx.Err() != nil {
			w.logger.Info("Extraction worker stopping")
			return nil
		}

		messages, err := w.consumer.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("Failed to read extraction jobs", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(w.backoff):
			}
			continue
		}

		for _, msg := range messages {
			w.Handle(ctx, msg)
		}
	}
}

// Handle processes one message and settles it: ack on success or when the
// file is gone, requeue while attempts remain, dead letter otherwise.
// A job interrupted by shutdown stays pending so the reclaimer can retry it.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) {
	log := w.logger.With(
		zap.String("message_id", msg.ID),
		zap.String("file_id", msg.Job.FileID.String()),
		zap.Int("attempt", msg.Job.Attempt))

	// Settling must reach Redis even when ctx is already cancelled
	settleCtx := context.WithoutCancel(ctx)

	if msg.Deliveries > int64(w.consumer.MaxAttempts()) {
		log.Error("Extraction job keeps getting stranded, giving up", zap.Int64("deliveries", msg.Deliveries))
		prometheus.RecordExtractionJob("dead_lettered")
		if qErr := w.consumer.SendDLQ(settleCtx, msg, "delivered too many times without being settled"); qErr != nil {
			log.Error("Failed to dead letter extraction job", zap.Error(qErr))
		}
		return
	}

	err := w.extractor.Extract(ctx, msg.Job.FileID)
	switch {
	case err == nil:
		prometheus.RecordExtractionJob("processed")
		if ackErr := w.consumer.Ack(settleCtx, msg); ackErr != nil {
			log.Error("Failed to ack extraction job", zap.Error(ackErr))
		}
	case errors.Is(err, ErrFileGone):
		log.Info("File deleted before extraction, skipping")
		prometheus.RecordExtractionJob("skipped")
		if ackErr := w.consumer.Ack(settleCtx, msg); ackErr != nil {
			log.Error("Failed to ack extraction job", zap.Error(ackErr))
		}
	case ctx.Err() != nil:
		log.Info("Extraction interrupted, leaving job pending", zap.Error(err))
		prometheus.RecordExtractionJob("interrupted")
	case msg.Job.Attempt < w.consumer.MaxAttempts():
		log.Warn("Extraction failed, requeueing", zap.Error(err))
		prometheus.RecordExtractionJob("requeued")
		if qErr := w.consumer.Requeue(settleCtx, msg, err.Error()); qErr != nil {
			log.Error("Failed to requeue extraction job", zap.Error(qErr))
		}
	default:
		log.Error("Extraction failed, giving up", zap.Error(err))
		prometheus.RecordExtractionJob("dead_lettered")
		if qErr := w.consumer.SendDLQ(settleCtx, msg, err.Error()); qErr != nil {
			log.Error("Failed to dead letter extraction job", zap.Error(qErr))
		}
	}
}
