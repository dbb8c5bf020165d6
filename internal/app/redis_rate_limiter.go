package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const claimWindow = time.Minute

// Counts one attempt in the participant's window and decides in the same round trip.
// Returns {1, 0} when admitted and {0, ttl_ms} once the window's budget is spent.
var claimWindowScript = redis.NewScript(`
local attempts = redis.call("INCR", KEYS[1])
if attempts == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if attempts <= tonumber(ARGV[2]) then
  return {1, 0}
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {0, ttl}
`)

// RedisClaimRateLimiter caps claim attempts per participant per minute across every
// service instance sharing the Redis.
type RedisClaimRateLimiter struct {
	client    redis.UniversalClient
	prefix    string
	perMinute int
}

func NewRedisClaimRateLimiter(client redis.UniversalClient, prefix string, perMinute int) *RedisClaimRateLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "prize:rate_limit"
	}
	return &RedisClaimRateLimiter{client: client, prefix: prefix, perMinute: perMinute}
}

func (l *RedisClaimRateLimiter) key(participantID int64) string {
	return l.prefix + ":claims:" + strconv.FormatInt(participantID, 10)
}

// AllowClaim records one attempt by participantID. A disabled limiter admits everything.
func (l *RedisClaimRateLimiter) AllowClaim(ctx context.Context, participantID int64) (bool, int, error) {
	if l == nil || l.client == nil || l.perMinute <= 0 {
		return true, 0, nil
	}
	raw, err := claimWindowScript.Run(ctx, l.client, []string{l.key(participantID)}, claimWindow.Milliseconds(), l.perMinute).Result()
	if err != nil {
		return false, 0, fmt.Errorf("claim rate limit for %d: %w", participantID, err)
	}
	return parseClaimWindow(raw)
}

func parseClaimWindow(raw interface{}) (allowed bool, retryAfterSeconds int, err error) {
	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return false, 0, fmt.Errorf("unexpected claim limiter reply %T", raw)
	}
	admitted, ok := values[0].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected claim limiter flag %T", values[0])
	}
	if admitted == 1 {
		return true, 0, nil
	}
	ttlMs, ok := values[1].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected claim limiter ttl %T", values[1])
	}
	// Round up so clients never retry inside the window.
	retryAfterSeconds = int((ttlMs + 999) / 1000)
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	return false, retryAfterSeconds, nil
}
