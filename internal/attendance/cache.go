package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ms-fest/internal/logger"
	"ms-fest/internal/models"

	"github.com/go-redis/redis/v8"
)

const statsKeyPrefix = "attendance_stats:"

// StatsCache holds recently computed counts per event. A miss or a cache
// failure always falls back to the database.
type StatsCache interface {
	Get(ctx context.Context, eventID string) (models.AttendanceStats, bool)
	Set(ctx context.Context, stats models.AttendanceStats)
	Invalidate(ctx context.Context, eventID string)
}

// StatsRefresher is told after a commit that changes which registrations of
// an event count toward attendance.
type StatsRefresher interface {
	RefreshStats(ctx context.Context, eventID string)
}

type RedisStatsCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

func NewRedisStatsCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisStatsCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisStatsCache{client: client, ttl: ttl, logger: log}
}

func StatsKey(eventID string) string {
	return statsKeyPrefix + eventID
}

func (c *RedisStatsCache) Get(ctx context.Context, eventID string) (models.AttendanceStats, bool) {
	var stats models.AttendanceStats
	raw, err := c.client.Get(ctx, StatsKey(eventID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return stats, false
	}
	if err != nil {
		c.logger.Warn("CACHE", fmt.Sprintf("Failed to read stats for %s: %v", eventID, err))
		return stats, false
	}
	if err := json.Unmarshal(raw, &stats); err != nil {
		c.logger.Warn("CACHE", fmt.Sprintf("Discarding malformed stats for %s: %v", eventID, err))
		return stats, false
	}
	return stats, true
}

func (c *RedisStatsCache) Set(ctx context.Context, stats models.AttendanceStats) {
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, StatsKey(stats.EventID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("CACHE", fmt.Sprintf("Failed to cache stats for %s: %v", stats.EventID, err))
	}
}

func (c *RedisStatsCache) Invalidate(ctx context.Context, eventID string) {
	if err := c.client.Del(ctx, StatsKey(eventID)).Err(); err != nil {
		c.logger.Warn("CACHE", fmt.Sprintf("Failed to invalidate stats for %s: %v", eventID, err))
	}
}

// RefreshStats drops the cached tally so the next read recounts. Processes
// without live subscribers use the cache directly.
func (c *RedisStatsCache) RefreshStats(ctx context.Context, eventID string) {
	c.Invalidate(ctx, eventID)
}

// NoCache always misses.
type NoCache struct{}

func (NoCache) Get(context.Context, string) (models.AttendanceStats, bool) {
	return models.AttendanceStats{}, false
}
func (NoCache) Set(context.Context, models.AttendanceStats) {}
func (NoCache) Invalidate(context.Context, string)          {}
func (NoCache) RefreshStats(context.Context, string)        {}
