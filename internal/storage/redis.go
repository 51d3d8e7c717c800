package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/alerting"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/telemetry"
)

const (
	redisEventsKey = "scrapewatch:events"
	redisAlertsKey = "scrapewatch:alerts"
)

// RedisBackend keeps events and alerts as JSON members of sorted sets
// scored by unix timestamp. It serves as the fallback behind SQLite.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend wraps a configured redis client
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Name() string { return "redis" }

func (b *RedisBackend) StoreEvent(ctx context.Context, event *telemetry.TelemetryEvent) error {
	return b.store(ctx, redisEventsKey, event, event.Timestamp)
}

func (b *RedisBackend) StoreAlert(ctx context.Context, alert *alerting.Alert) error {
	return b.store(ctx, redisAlertsKey, alert, alert.Timestamp)
}

func (b *RedisBackend) store(ctx context.Context, key string, record interface{}, ts time.Time) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := b.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(ts.UnixNano()),
		Member: payload,
	}).Err(); err != nil {
		return fmt.Errorf("redis zadd failed: %w", err)
	}
	return nil
}

func (b *RedisBackend) EventsByTimeRange(ctx context.Context, from, to time.Time) ([]*telemetry.TelemetryEvent, error) {
	members, err := b.rangeByTime(ctx, redisEventsKey, from, to)
	if err != nil {
		return nil, err
	}
	events := make([]*telemetry.TelemetryEvent, 0, len(members))
	for _, member := range members {
		var event telemetry.TelemetryEvent
		if err := json.Unmarshal([]byte(member), &event); err != nil {
			return nil, fmt.Errorf("failed to decode event: %w", err)
		}
		events = append(events, &event)
	}
	return events, nil
}

func (b *RedisBackend) AlertsByTimeRange(ctx context.Context, from, to time.Time) ([]*alerting.Alert, error) {
	members, err := b.rangeByTime(ctx, redisAlertsKey, from, to)
	if err != nil {
		return nil, err
	}
	alerts := make([]*alerting.Alert, 0, len(members))
	for _, member := range members {
		var alert alerting.Alert
		if err := json.Unmarshal([]byte(member), &alert); err != nil {
			return nil, fmt.Errorf("failed to decode alert: %w", err)
		}
		alerts = append(alerts, &alert)
	}
	return alerts, nil
}

func (b *RedisBackend) rangeByTime(ctx context.Context, key string, from, to time.Time) ([]string, error) {
	members, err := b.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", from.UnixNano()),
		Max: fmt.Sprintf("%d", to.UnixNano()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrangebyscore failed: %w", err)
	}
	return members, nil
}

// ApplyRetentionPolicy removes aged events unconditionally. Aged alerts
// are fetched and inspected first: only resolved alerts are removed, open
// alerts stay regardless of age.
func (b *RedisBackend) ApplyRetentionPolicy(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := fmt.Sprintf("%d", time.Now().Add(-maxAge).UnixNano())

	total, err := b.client.ZRemRangeByScore(ctx, redisEventsKey, "-inf", cutoff).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zremrangebyscore failed: %w", err)
	}

	aged, err := b.client.ZRangeByScore(ctx, redisAlertsKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: cutoff,
	}).Result()
	if err != nil {
		return total, fmt.Errorf("redis zrangebyscore failed: %w", err)
	}
	expired := expiredAlertMembers(aged)
	if len(expired) == 0 {
		return total, nil
	}

	removed, err := b.client.ZRem(ctx, redisAlertsKey, expired...).Result()
	if err != nil {
		return total, fmt.Errorf("redis zrem failed: %w", err)
	}
	return total + removed, nil
}

// expiredAlertMembers selects the members eligible for deletion from a set
// of aged alert payloads. Undecodable members are kept.
func expiredAlertMembers(members []string) []interface{} {
	var expired []interface{}
	for _, member := range members {
		var alert alerting.Alert
		if err := json.Unmarshal([]byte(member), &alert); err != nil {
			continue
		}
		if alert.Status == alerting.StatusResolved {
			expired = append(expired, member)
		}
	}
	return expired
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
