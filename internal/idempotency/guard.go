package idempotency

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Guard 通知去重保护
type Guard interface {
	// Acquire 首次出现的 key 返回 true；已处理过的返回 false
	Acquire(ctx context.Context, key string) (bool, error)
}

// Key 由 (设备, 事件, 目标状态, 前像, 后像) 计算去重 key
func Key(deviceID, eventID string, targetActive, before, after bool) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%s",
		deviceID,
		eventID,
		strconv.FormatBool(targetActive),
		strconv.FormatBool(before),
		strconv.FormatBool(after),
	)
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// RedisGuard 基于 Redis SETNX + TTL 的去重
type RedisGuard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisGuard 创建 Redis 去重保护
func NewRedisGuard(client *redis.Client, prefix string, ttl time.Duration) *RedisGuard {
	return &RedisGuard{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Acquire 实现 Guard
func (g *RedisGuard) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.prefix+key, time.Now().UnixMilli(), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set idempotency key: %w", err)
	}
	return ok, nil
}

// NoopGuard 不做去重（默认）
type NoopGuard struct{}

// Acquire 总是返回 true
func (NoopGuard) Acquire(ctx context.Context, key string) (bool, error) {
	return true, nil
}
