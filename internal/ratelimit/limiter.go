// Package ratelimit throttles outgoing chat lines with a fixed window per
// sender. A Redis-backed limiter shares the window between every client
// using the same Redis (INCR + EXPIRE); the local limiter keeps it in
// process memory.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Rule defines a rate limiting policy: the key prefix, maximum number of
// requests allowed in the window, and the window duration.
type Rule struct {
	Key    string        // key prefix (e.g., "rl:chat:")
	Limit  int           // max count in the window
	Window time.Duration // time window
}

// RuleChatSend allows 5 chat lines per 10 seconds per sender.
var RuleChatSend = Rule{Key: "rl:chat:", Limit: 5, Window: 10 * time.Second}

// Limiter decides whether identifier may act now.
type Limiter interface {
	Allow(ctx context.Context, identifier string) (bool, error)
}

// RedisLimiter performs rate limiting checks against Redis.
type RedisLimiter struct {
	client *redis.Client
	rule   Rule
	log    zerolog.Logger
}

// NewRedisLimiter creates a limiter for rule backed by the given Redis client.
func NewRedisLimiter(client *redis.Client, rule Rule, log zerolog.Logger) *RedisLimiter {
	return &RedisLimiter{client: client, rule: rule, log: log}
}

// Allow increments the identifier's counter and sets the expiry on first
// access. On Redis errors it fails open so an outage never silences a member.
func (l *RedisLimiter) Allow(ctx context.Context, identifier string) (bool, error) {
	key := l.rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("redis INCR failed, failing open")
		return true, err
	}

	// On the first increment, set the expiry to define the window boundary.
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.rule.Window).Err(); err != nil {
			l.log.Warn().Err(err).Str("key", key).Msg("redis EXPIRE failed, failing open")
			// A key without TTL would block the identifier forever.
			l.client.Del(ctx, key)
			return true, err
		}
	}

	return int(count) <= l.rule.Limit, nil
}

// Remaining returns how many requests identifier has left in the current
// window. On Redis errors it returns the full limit.
func (l *RedisLimiter) Remaining(ctx context.Context, identifier string) (int, error) {
	key := l.rule.Key + identifier

	count, err := l.client.Get(ctx, key).Int()
	if err == redis.Nil {
		return l.rule.Limit, nil
	}
	if err != nil {
		return l.rule.Limit, err
	}
	return max(l.rule.Limit-count, 0), nil
}

// LocalLimiter is an in-memory fixed window limiter.
type LocalLimiter struct {
	rule Rule
	now  func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	start time.Time
	count int
}

// NewLocalLimiter creates an in-memory limiter for rule.
func NewLocalLimiter(rule Rule) *LocalLimiter {
	return &LocalLimiter{rule: rule, now: time.Now, windows: make(map[string]*window)}
}

// Allow counts the request and reports whether it is within the limit.
func (l *LocalLimiter) Allow(_ context.Context, identifier string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[identifier]
	if !ok || now.Sub(w.start) >= l.rule.Window {
		w = &window{start: now}
		l.windows[identifier] = w
	}
	w.count++
	return w.count <= l.rule.Limit, nil
}
