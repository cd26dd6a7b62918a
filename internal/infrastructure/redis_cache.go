package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"adreport/internal/domain"
	"adreport/pkg/config"
	"adreport/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisSnapshotCache shares realtime snapshots between server instances.
type RedisSnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewRedisSnapshotCache connects and pings Redis.
func NewRedisSnapshotCache(ctx context.Context, cfg config.RedisConfig, ttl time.Duration, logger *logger.Logger) (*RedisSnapshotCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: 20,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.WithFields(map[string]any{"addr": cfg.Addr, "db": cfg.DB}).Info("Connected to Redis")
	return &RedisSnapshotCache{client: client, ttl: ttl, logger: logger}, nil
}

func (c *RedisSnapshotCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *RedisSnapshotCache) Get(ctx context.Context, projectID string, date time.Time) (*domain.Snapshot, bool, error) {
	data, err := c.client.Get(ctx, snapshotKey(projectID, date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get snapshot: %w", err)
	}

	var s domain.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		// a corrupt entry is treated as a miss and overwritten on the next Set
		c.logger.WithContext(ctx).WithError(err).Warn("Discarding unreadable cached snapshot")
		return nil, false, nil
	}
	return &s, true, nil
}

func (c *RedisSnapshotCache) Set(ctx context.Context, snapshot *domain.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	key := snapshotKey(snapshot.ProjectID, snapshot.Date)
	pipe := c.client.Pipeline()
	pipe.Set(ctx, key, data, c.ttl)
	pipe.SAdd(ctx, "snapshots:"+snapshot.ProjectID, key)
	pipe.Expire(ctx, "snapshots:"+snapshot.ProjectID, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set snapshot: %w", err)
	}
	return nil
}
