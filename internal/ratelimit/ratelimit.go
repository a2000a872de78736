// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

// Package ratelimit implements a Redis-backed token bucket shared by every
// API replica.
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// KeyPrefix namespaces bucket keys.
const KeyPrefix = "natours:ratelimit:"

// tokenBucketLua refills at limit tokens per period, caps at limit, and takes
// one token when available. Timestamps are milliseconds.
//
// Returns {allowed, remaining, wait_ms}.
const tokenBucketLua = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local period_ms = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local data = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])
if tokens == nil then
  tokens = limit
end
if ts == nil or ts > now then
  ts = now
end

tokens = math.min(limit, tokens + (now - ts) * limit / period_ms)

local allowed = 0
local wait_ms = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
else
  wait_ms = math.ceil((1 - tokens) * period_ms / limit)
end

redis.call("HMSET", key, "tokens", tostring(tokens), "ts", now)
redis.call("PEXPIRE", key, period_ms)

return {allowed, math.floor(tokens), wait_ms}
`

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter is a per-key token bucket.
type Limiter struct {
	rdb    redis.Scripter
	script *redis.Script
	limit  int
	period time.Duration
	now    func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter allowing limit requests per period per key.
func New(rdb redis.Scripter, limit int, period time.Duration, opts ...Option) (*Limiter, error) {
	if rdb == nil {
		return nil, oops.Code("RATELIMIT_INVALID_CONFIG").Errorf("redis client is required")
	}
	if limit <= 0 || period < time.Millisecond {
		return nil, oops.Code("RATELIMIT_INVALID_CONFIG").
			With("limit", limit).
			With("period", period.String()).
			Errorf("limit and period must be positive")
	}
	l := &Limiter{
		rdb:    rdb,
		script: redis.NewScript(tokenBucketLua),
		limit:  limit,
		period: period,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Allow takes a token from key's bucket.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := l.script.Run(ctx, l.rdb, []string{KeyPrefix + key},
		l.limit, l.period.Milliseconds(), l.now().UnixMilli()).Int64Slice()
	if err != nil {
		return Decision{}, oops.Code("RATELIMIT_EVAL_FAILED").With("key", key).Wrap(err)
	}
	if len(res) != 3 {
		return Decision{}, oops.Code("RATELIMIT_EVAL_FAILED").
			With("key", key).
			Errorf("unexpected script result of length %d", len(res))
	}

	return Decision{
		Allowed:    res[0] == 1,
		Limit:      l.limit,
		Remaining:  int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

// RetryAfterSeconds renders RetryAfter for a Retry-After header, rounding up.
func (d Decision) RetryAfterSeconds() string {
	secs := (d.RetryAfter + time.Second - 1) / time.Second
	return strconv.FormatInt(int64(secs), 10)
}
