package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCountTTL keeps cached aggregates fresh enough for a dashboard that
// polls every few seconds.
const DefaultCountTTL = 5 * time.Second

// CountCache is a read-through Redis cache for the today-counts aggregate.
// The SQL count scans a day of rows on every dashboard poll; the cache
// absorbs that. A cache failure is never an error, only a miss.
type CountCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCountCache connects to Redis and verifies the connection.
func NewCountCache(ctx context.Context, addr string, ttl time.Duration) (*CountCache, error) {
	if ttl <= 0 {
		ttl = DefaultCountTTL
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}
	return &CountCache{rdb: rdb, ttl: ttl}, nil
}

// Close releases the Redis client.
func (c *CountCache) Close() error {
	return c.rdb.Close()
}

// The key carries the calendar day so a stale entry can never bleed across
// midnight.
func todayKey(now time.Time) string {
	return "detections:counts:" + now.Format("2006-01-02")
}

// TodayCounts returns the cached counts for today, ok=false on miss or error.
func (c *CountCache) TodayCounts(ctx context.Context) (fire, smoke int64, ok bool) {
	val, err := c.rdb.Get(ctx, todayKey(time.Now())).Result()
	if err != nil {
		return 0, 0, false
	}
	if _, err := fmt.Sscanf(val, "%d:%d", &fire, &smoke); err != nil {
		return 0, 0, false
	}
	return fire, smoke, true
}

// SetTodayCounts stores the counts with the cache TTL, best effort.
func (c *CountCache) SetTodayCounts(ctx context.Context, fire, smoke int64) {
	val := fmt.Sprintf("%d:%d", fire, smoke)
	_ = c.rdb.Set(ctx, todayKey(time.Now()), val, c.ttl).Err()
}
