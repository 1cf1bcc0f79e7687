// internal/db/redis.go
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisDB struct {
	Client *redis.Client
	logger *zap.Logger
}

func NewRedisDB(ctx context.Context, redisURL string, logger *zap.Logger) (*RedisDB, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("connected to Redis", zap.String("addr", opt.Addr))
	return &RedisDB{Client: client, logger: logger}, nil
}

// NewRedisDBFromClient wraps an existing client; used by tests against miniredis.
func NewRedisDBFromClient(client *redis.Client, logger *zap.Logger) *RedisDB {
	return &RedisDB{Client: client, logger: logger}
}

func (r *RedisDB) Close() {
	if r.Client != nil {
		r.Client.Close()
		r.logger.Info("Redis connection closed")
	}
}

// Session management
func (r *RedisDB) SetSession(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, "session:"+key, data, expiration).Err()
}

func (r *RedisDB) GetSession(ctx context.Context, key string, dest interface{}) error {
	data, err := r.Client.Get(ctx, "session:"+key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (r *RedisDB) DeleteSession(ctx context.Context, key string) error {
	return r.Client.Del(ctx, "session:"+key).Err()
}

// Pub/sub used by the realtime relay
func (r *RedisDB) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.Client.Publish(ctx, channel, payload).Err()
}

func (r *RedisDB) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return r.Client.Subscribe(ctx, channel)
}
