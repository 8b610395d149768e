// Package ratelimit throttles calls to the paid blockchain vendors. A shared
// Redis window keeps concurrent batch processes under the vendor quota; a
// local minimum interval spaces calls inside one process.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter blocks until a call under key may proceed.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

var windowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// Window is a fixed-window counter shared through Redis.
type Window struct {
	client redis.UniversalClient
	prefix string
	limit  int64
	window time.Duration
}

// NewWindow allows limit calls per window for each key. A nil client or a
// non-positive limit disables the window.
func NewWindow(client redis.UniversalClient, prefix string, limit int64, window time.Duration) *Window {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "batch:rate_limit"
	}
	return &Window{client: client, prefix: prefix, limit: limit, window: window}
}

// Wait consumes one slot, sleeping out the rest of the window when it is full.
func (w *Window) Wait(ctx context.Context, key string) error {
	if w == nil || w.client == nil || w.limit <= 0 || w.window <= 0 {
		return nil
	}
	windowMs := w.window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}
	redisKey := fmt.Sprintf("%s:%s", w.prefix, key)

	for {
		raw, err := windowScript.Run(ctx, w.client, []string{redisKey}, windowMs).Result()
		if err != nil {
			return fmt.Errorf("rate limit %s: %w", key, err)
		}
		count, ttl, err := parseWindow(raw, windowMs)
		if err != nil {
			return err
		}
		if count <= w.limit {
			return nil
		}
		if err := sleep(ctx, ttl); err != nil {
			return err
		}
	}
}

func parseWindow(raw any, windowMs int64) (count int64, ttl time.Duration, err error) {
	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected redis limiter response shape: %T", raw)
	}
	count, ok = values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected redis limiter count type: %T", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok {
		return count, 0, fmt.Errorf("unexpected redis limiter ttl type: %T", values[1])
	}
	if ttlMs < 0 {
		ttlMs = windowMs
	}
	return count, time.Duration(ttlMs) * time.Millisecond, nil
}

// Interval spaces calls for the same key at least min apart within the process.
type Interval struct {
	min  time.Duration
	mu   sync.Mutex
	next map[string]time.Time
	now  func() time.Time
}

func NewInterval(min time.Duration) *Interval {
	return &Interval{min: min, next: make(map[string]time.Time), now: time.Now}
}

func (l *Interval) Wait(ctx context.Context, key string) error {
	if l == nil || l.min <= 0 {
		return nil
	}
	l.mu.Lock()
	now := l.now()
	slot := l.next[key]
	if slot.Before(now) {
		slot = now
	}
	l.next[key] = slot.Add(l.min)
	l.mu.Unlock()

	return sleep(ctx, slot.Sub(now))
}

// Chain waits on each limiter in order.
type Chain []Limiter

func (c Chain) Wait(ctx context.Context, key string) error {
	for _, l := range c {
		if err := l.Wait(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
