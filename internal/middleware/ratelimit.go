package middleware

import (
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sakif/todo-api/internal/config"
	"github.com/sakif/todo-api/internal/metrics"
)

// tokenBucketScript refills and takes one token atomically.
//
// KEYS[1] = bucket key
// ARGV    = now_ms, capacity, interval_ms, ttl_seconds
// returns { allowed (0|1), tokens_left, retry_after_ms }
//
// One token is added back per interval, up to capacity. The bucket hash
// expires once it would be full again anyway.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local interval_ms = tonumber(ARGV[3])
local ttl_seconds = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if tokens == nil or last_refill == nil then
	tokens = capacity
	last_refill = now_ms
end

if interval_ms > 0 then
	local elapsed = math.max(0, now_ms - last_refill)
	local intervals = math.floor(elapsed / interval_ms)
	if intervals > 0 then
		tokens = math.min(capacity, tokens + intervals)
		last_refill = last_refill + (intervals * interval_ms)
	end
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
	allowed = 1
	tokens = tokens - 1
else
	retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)

return { allowed, tokens, retry_after_ms }
`)

// bucketResult is the decoded script reply.
type bucketResult struct {
	allowed   bool
	remaining int64
	retryMs   int64
}

// RateLimit applies a per-client token bucket stored in Redis.
//
// Buckets are keyed by client IP and request path, so login attempts
// and registrations are limited independently. Run chimiddleware.RealIP
// first when behind a proxy.
//
// A nil client or a disabled config yields a pass-through middleware.
// If Redis fails mid-request the request is let through: an outage of
// the limiter must not take authentication down with it.
func RateLimit(cfg config.RateLimitConfig, rdb *redis.Client, logger zerolog.Logger) func(http.Handler) http.Handler {
	if !cfg.Enabled || rdb == nil || cfg.Capacity <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	ttl := int64(math.Ceil((time.Duration(cfg.Capacity) * cfg.RefillInterval).Seconds()))
	if ttl < 1 {
		ttl = 1
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := bucketKey(cfg.Prefix, r)

			vals, err := tokenBucketScript.Run(r.Context(), rdb, []string{key},
				time.Now().UnixMilli(),
				cfg.Capacity,
				cfg.RefillInterval.Milliseconds(),
				ttl,
			).Result()
			if err != nil {
				logger.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			res, err := parseBucketResult(vals)
			if err != nil {
				logger.Warn().Err(err).Str("key", key).Msg("rate limiter returned an unexpected reply")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.remaining, 10))

			if !res.allowed {
				rejectTooManyRequests(w, r, res.retryMs)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rejectTooManyRequests(w http.ResponseWriter, r *http.Request, retryMs int64) {
	secs := int64(math.Ceil(float64(retryMs) / 1000.0))
	if secs < 1 {
		secs = 1
	}
	metrics.RateLimitedTotal.WithLabelValues(routePattern(r)).Inc()
	zerolog.Ctx(r.Context()).Info().Str("path", r.URL.Path).Int64("retry_after", secs).Msg("rate limited")

	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Too many requests"})
}

// bucketKey builds "<prefix>:ip:<ip>:route:<METHOD> <path>".
func bucketKey(prefix string, r *http.Request) string {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	if ip == "" {
		ip = "unknown"
	}
	return strings.Join([]string{prefix, "ip", ip, "route", r.Method + " " + r.URL.Path}, ":")
}

func parseBucketResult(vals any) (bucketResult, error) {
	arr, ok := vals.([]any)
	if !ok || len(arr) != 3 {
		return bucketResult{}, fmt.Errorf("middleware: unexpected script result %#v", vals)
	}
	return bucketResult{
		allowed:   asInt64(arr[0]) == 1,
		remaining: asInt64(arr[1]),
		retryMs:   asInt64(arr[2]),
	}, nil
}

// asInt64 accepts the integer shapes a Lua reply can decode into.
func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
