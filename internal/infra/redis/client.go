// Package redis wraps Redis operations for the reconcile pipeline: the
// missing-range queue the gap detector feeds and the reconcile worker
// drains, plus the cache generation counter the read-side cache consumes.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps Redis operations for the reconcile pipeline.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks if Redis is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Key helpers
const (
	queueKey      = "reconcile:ranges"
	retryKey      = "reconcile:retries"
	generationKey = "cache:generation"
)

// PushRange adds a missing range to the reconcile queue. The score is the
// negated range start, so the most recent gap pops first.
func (c *Client) PushRange(ctx context.Context, from, to int64) error {
	member := fmt.Sprintf("%d-%d", from, to)
	score := -float64(from)

	if err := c.rdb.ZAdd(ctx, queueKey, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("zadd failed: %w", err)
	}
	return nil
}

// PopRange pops the next range from the queue (most recent gap first).
func (c *Client) PopRange(ctx context.Context) (from, to int64, found bool, err error) {
	results, err := c.rdb.ZRangeWithScores(ctx, queueKey, 0, 0).Result()
	if err != nil {
		return 0, 0, false, fmt.Errorf("zrange failed: %w", err)
	}
	if len(results) == 0 {
		return 0, 0, false, nil
	}

	member := results[0].Member.(string)
	from, to, err = ParseRangeString(member)
	if err != nil {
		return 0, 0, false, fmt.Errorf("invalid range format: %w", err)
	}

	// Remove from queue
	if err := c.rdb.ZRem(ctx, queueKey, member).Err(); err != nil {
		return 0, 0, false, fmt.Errorf("zrem failed: %w", err)
	}

	return from, to, true, nil
}

// QueueLen returns the number of ranges waiting for reconciliation.
func (c *Client) QueueLen(ctx context.Context) (int64, error) {
	return c.rdb.ZCard(ctx, queueKey).Result()
}

// IncrRetry bumps and returns the retry count for a range.
func (c *Client) IncrRetry(ctx context.Context, from, to int64) (int64, error) {
	field := fmt.Sprintf("%d-%d", from, to)
	return c.rdb.HIncrBy(ctx, retryKey, field, 1).Result()
}

// ClearRetry drops the retry count for a range once it completes.
func (c *Client) ClearRetry(ctx context.Context, from, to int64) error {
	field := fmt.Sprintf("%d-%d", from, to)
	return c.rdb.HDel(ctx, retryKey, field).Err()
}

// BumpGeneration advances the cache generation counter. Called after every
// successful write batch; downstream read caches key their entries by the
// current generation and drop stale ones.
func (c *Client) BumpGeneration(ctx context.Context) (int64, error) {
	return c.rdb.Incr(ctx, generationKey).Result()
}

// Generation returns the current cache generation.
func (c *Client) Generation(ctx context.Context) (int64, error) {
	val, err := c.rdb.Get(ctx, generationKey).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

// ParseRangeString parses "12000-12500" format.
func ParseRangeString(s string) (from, to int64, err error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid range format: %s", s)
	}

	from, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid start: %w", err)
	}

	to, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid end: %w", err)
	}

	if from > to {
		return 0, 0, fmt.Errorf("start > end: %d > %d", from, to)
	}

	return from, to, nil
}
