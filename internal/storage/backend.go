package storage

import (
	"context"
	"errors"
	"time"

	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/alerting"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/telemetry"
)

// ErrStorageUnavailable is returned only when the primary backend and every
// fallback have failed.
var ErrStorageUnavailable = errors.New("all storage backends unavailable")

// Backend persists telemetry events and alerts. Implementations must be
// safe for concurrent use.
type Backend interface {
	Name() string
	StoreEvent(ctx context.Context, event *telemetry.TelemetryEvent) error
	StoreAlert(ctx context.Context, alert *alerting.Alert) error
	EventsByTimeRange(ctx context.Context, from, to time.Time) ([]*telemetry.TelemetryEvent, error)
	AlertsByTimeRange(ctx context.Context, from, to time.Time) ([]*alerting.Alert, error)
	ApplyRetentionPolicy(ctx context.Context, maxAge time.Duration) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}
