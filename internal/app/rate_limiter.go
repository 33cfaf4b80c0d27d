/**
 * @description
 * Daily per-user rate limiting backed by Redis. Each authenticated user gets
 * a counter keyed by (user id, calendar day); the key expires at midnight
 * UTC, so day rollover needs no background sweep. The check, increment and
 * expiry run in one Lua script to keep the read-modify-write atomic.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Redis client and Lua script support.
 */

package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var dailyRateLimitScript = redis.NewScript(`
local limit = tonumber(ARGV[2])
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current >= limit then
  return {current, 0}
end
current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {current, 1}
`)

// RateLimitDecision is the outcome of consuming one request from a user's
// daily budget.
type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Count     int
	Remaining int
	// Reset is the start of the next calendar day, when the counter expires.
	Reset time.Time
}

// RateLimiter caps daily request volume per authenticated user.
type RateLimiter interface {
	Consume(ctx context.Context, userID string, now time.Time) (RateLimitDecision, error)
}

// RedisRateLimiter implements the daily counter against Redis.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string, limit int) *RedisRateLimiter {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		trimmed = "banque"
	}
	if limit <= 0 {
		limit = 10
	}
	return &RedisRateLimiter{client: client, prefix: trimmed, limit: limit}
}

// Consume checks the caller's counter for the current day and increments it
// only while under budget. A rejected request leaves the counter untouched,
// so the reported count never exceeds the limit.
func (r *RedisRateLimiter) Consume(ctx context.Context, userID string, now time.Time) (RateLimitDecision, error) {
	day := now.UTC()
	reset := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	ttlMs := reset.Sub(day).Milliseconds()
	if ttlMs < 1000 {
		ttlMs = 1000
	}

	key := fmt.Sprintf("%s:rate_limit:%s:%s", r.prefix, userID, day.Format("2006-01-02"))
	result, err := dailyRateLimitScript.Run(ctx, r.client, []string{key}, ttlMs, r.limit).Int64Slice()
	if err != nil {
		return RateLimitDecision{}, err
	}
	if len(result) != 2 {
		return RateLimitDecision{}, fmt.Errorf("rate limit script returned %d values", len(result))
	}
	count := int(result[0])
	allowed := result[1] == 1

	remaining := r.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitDecision{
		Allowed:   allowed,
		Limit:     r.limit,
		Count:     count,
		Remaining: remaining,
		Reset:     reset,
	}, nil
}
