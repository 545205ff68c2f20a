// Package usage keeps per-day request counters in Redis. Only outcome
// counts are stored, never audio or transcript text.
package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "stt:usage"
	dayLayout = "2006-01-02"
	// counters outlive the day they describe by this much
	retention = 35 * 24 * time.Hour
)

type Counter struct {
	client *redis.Client
	now    func() time.Time
}

func NewCounter(client *redis.Client) *Counter {
	return &Counter{client: client, now: time.Now}
}

// Key returns the Redis key holding the count for outcome on day (UTC).
func Key(day time.Time, outcome string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, day.UTC().Format(dayLayout), outcome)
}

// Record increments today's counter for outcome.
func (c *Counter) Record(ctx context.Context, outcome string) error {
	key := Key(c.now(), outcome)
	_, err := c.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, key)
		p.Expire(ctx, key, retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("usage incr %s: %w", key, err)
	}
	return nil
}

// Day returns the counters for the given outcomes on day. Outcomes with no
// requests are reported as zero.
func (c *Counter) Day(ctx context.Context, day time.Time, outcomes []string) (map[string]int64, error) {
	keys := make([]string, len(outcomes))
	for i, o := range outcomes {
		keys[i] = Key(day, o)
	}

	out := make(map[string]int64, len(outcomes))
	if len(keys) == 0 {
		return out, nil
	}

	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("usage mget: %w", err)
	}
	for i, o := range outcomes {
		out[o] = 0
		if i >= len(vals) || vals[i] == nil {
			continue
		}
		s, ok := vals[i].(string)
		if !ok {
			continue
		}
		var n int64
		if _, err := fmt.Sscan(s, &n); err == nil {
			out[o] = n
		}
	}
	return out, nil
}

// ParseDay parses a YYYY-MM-DD query value; empty means today.
func ParseDay(v string, now time.Time) (time.Time, error) {
	if v == "" {
		return now.UTC(), nil
	}
	return time.Parse(dayLayout, v)
}
