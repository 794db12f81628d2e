// Package presence reconciles the online flag of users with client
// heartbeats, so a client that disconnects without saying so is eventually
// marked offline.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Heartbeats stores short-lived liveness keys.
type Heartbeats interface {
	Beat(ctx context.Context, userID string, ttl time.Duration) error
	// Alive reports which of userIDs still hold a live key.
	Alive(ctx context.Context, userIDs []string) (map[string]bool, error)
	Close() error
}

// RedisHeartbeats keeps one expiring key per user in Redis.
type RedisHeartbeats struct {
	rdb    *redis.Client
	prefix string
}

// DialRedis connects to the Redis server at url and verifies the connection.
func DialRedis(ctx context.Context, url string) (*RedisHeartbeats, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisHeartbeats(rdb), nil
}

func NewRedisHeartbeats(rdb *redis.Client) *RedisHeartbeats {
	return &RedisHeartbeats{rdb: rdb, prefix: "relay:presence:"}
}

func (r *RedisHeartbeats) key(userID string) string { return r.prefix + userID }

func (r *RedisHeartbeats) Beat(ctx context.Context, userID string, ttl time.Duration) error {
	return r.rdb.Set(ctx, r.key(userID), time.Now().UnixMilli(), ttl).Err()
}

func (r *RedisHeartbeats) Alive(ctx context.Context, userIDs []string) (map[string]bool, error) {
	alive := make(map[string]bool, len(userIDs))
	if len(userIDs) == 0 {
		return alive, nil
	}
	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(userIDs))
	for i, id := range userIDs {
		cmds[i] = pipe.Exists(ctx, r.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("heartbeat lookup: %w", err)
	}
	for i, id := range userIDs {
		alive[id] = cmds[i].Val() > 0
	}
	return alive, nil
}

func (r *RedisHeartbeats) Close() error { return r.rdb.Close() }
