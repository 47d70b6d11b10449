package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mailsink/internal/constants"
)

// Recorder tracks per-recipient ingestion counts. All writes are
// best-effort; callers log failures and move on.
type Recorder interface {
	RecordIngestion(ctx context.Context, recipient string, at time.Time) error
	IngestionCount(ctx context.Context, recipient string, day time.Time) (int64, error)
}

type RedisRecorder struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRecorder(client *redis.Client, ttl time.Duration) *RedisRecorder {
	if ttl <= 0 {
		ttl = constants.DefaultStatsTTL
	}
	return &RedisRecorder{client: client, ttl: ttl}
}

func (r *RedisRecorder) RecordIngestion(ctx context.Context, recipient string, at time.Time) error {
	key := statsKey(recipient, at)

	pipe := r.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis incr failed: %w", err)
	}
	return nil
}

func (r *RedisRecorder) IngestionCount(ctx context.Context, recipient string, day time.Time) (int64, error) {
	count, err := r.client.Get(ctx, statsKey(recipient, day)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get failed: %w", err)
	}
	return count, nil
}

func statsKey(recipient string, at time.Time) string {
	return constants.StatsKeyPrefix + recipient + ":" + at.UTC().Format("2006-01-02")
}
