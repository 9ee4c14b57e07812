package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache stores provider answers so repeated detections skip the vendor call
type Cache interface {
	Get(ctx context.Context, key string) (*DetectedObjectList, bool)
	Set(ctx context.Context, key string, result *DetectedObjectList)
}

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisCache{client: client, ttl: ttl, logger: logger}
}

func (c *redisCache) Get(ctx context.Context, key string) (*DetectedObjectList, bool) {
	data, err := c.client.Get(ctx, "detections:"+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Detection cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var result DetectedObjectList
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false
	}
	return &result, true
}

func (c *redisCache) Set(ctx context.Context, key string, result *DetectedObjectList) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, "detections:"+key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Detection cache write failed", zap.Error(err))
	}
}

// CacheKey hashes the inputs that determine a detection answer
func CacheKey(objectKey string, req DetectionRequest) string {
	names := make([]string, 0, len(req.DocumentContents))
	for name := range req.DocumentContents {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, part := range []string{objectKey, req.SystemPrompt, req.AssistantPrompt} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(req.DocumentContents[name]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
