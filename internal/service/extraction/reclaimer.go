package extraction

import (
	"context"
	"time"

	"docvision-service/pkg/queue"

	"go.uber.org/zap"
)

// StaleClaimer is the part of queue.RedisConsumer the reclaimer drives
type StaleClaimer interface {
	ClaimStale(ctx context.Context, minIdle time.Duration) ([]queue.Message, error)
}

type ReclaimerConfig struct {
	MinIdle  time.Duration
	Interval time.Duration
}

// Reclaimer periodically takes over jobs left pending by a worker that
// crashed or shut down after reading them, and runs them through the worker.
type Reclaimer struct {
	claimer StaleClaimer
	worker  *Worker
	cfg     ReclaimerConfig
	logger  *zap.Logger
}

func NewReclaimer(claimer StaleClaimer, worker *Worker, cfg ReclaimerConfig, logger *zap.Logger) *Reclaimer {
	if cfg.MinIdle <= 0 {
		cfg.MinIdle = 5 * time.Minute
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reclaimer{
		claimer: claimer,
		worker:  worker,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "reclaimer")),
	}
}

// Run reclaims once at start, then on every tick until ctx is cancelled
func (r *Reclaimer) Run(ctx context.Context) {
	r.logger.Info("Reclaimer started",
		zap.Duration("interval", r.cfg.Interval),
		zap.Duration("min_idle", r.cfg.MinIdle))

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		if ctx.Err() == nil {
			if _, err := r.ReclaimOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("Reclaim cycle failed", zap.Error(err))
			}
		}

		select {
		case <-ctx.Done():
			r.logger.Info("Reclaimer stopping")
			return
		case <-ticker.C:
		}
	}
}

// ReclaimOnce claims the stale jobs and handles them, returning how many it took
func (r *Reclaimer) ReclaimOnce(ctx context.Context) (int, error) {
	messages, err := r.claimer.ClaimStale(ctx, r.cfg.MinIdle)
	if err != nil {
		return 0, err
	}
	for _, msg := range messages {
		if ctx.Err() != nil {
			break
		}
		r.worker.Handle(ctx, msg)
	}
	return len(messages), nil
}
