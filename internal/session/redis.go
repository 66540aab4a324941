package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dugoutai/dugout/config"
)

// RedisHistory keeps conversation history in a redis list per user, trimmed
// to the configured maximum and expiring after the configured TTL.
type RedisHistory struct {
	client *redis.Client
	ttl    time.Duration
	max    int
}

// NewRedisHistory connects to redis with the given config.
func NewRedisHistory(cfg config.RedisConfig) (*RedisHistory, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	max := cfg.HistoryMax
	if max <= 0 {
		max = 20
	}
	return &RedisHistory{client: client, ttl: cfg.HistoryTTL, max: max}, nil
}

func historyKey(userID string) string {
	return fmt.Sprintf("history:%s", userID)
}

// Append pushes a turn onto the user's history and trims to the maximum.
func (h *RedisHistory) Append(ctx context.Context, userID string, turn Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return err
	}
	key := historyKey(userID)
	pipe := h.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-h.max), -1)
	if h.ttl > 0 {
		pipe.Expire(ctx, key, h.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Recent returns the user's stored turns, oldest first.
func (h *RedisHistory) Recent(ctx context.Context, userID string) ([]Turn, error) {
	vals, err := h.client.LRange(ctx, historyKey(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	turns := make([]Turn, 0, len(vals))
	for _, v := range vals {
		var t Turn
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Clear drops the user's history.
func (h *RedisHistory) Clear(ctx context.Context, userID string) error {
	return h.client.Del(ctx, historyKey(userID)).Err()
}

// Close releases the redis connection.
func (h *RedisHistory) Close() error {
	return h.client.Close()
}
