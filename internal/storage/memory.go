package storage

import (
	"context"
	"sync"
	"time"

	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/alerting"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/telemetry"
)

// MemoryBackend is an in-process backend used in tests and as a last-resort
// fallback so alerts survive a transient outage of the real backends.
type MemoryBackend struct {
	events []*telemetry.TelemetryEvent
	alerts map[string]*alerting.Alert
	mu     sync.Mutex

	// FailWrites makes every write fail, for fallback-chain tests
	FailWrites bool
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{alerts: make(map[string]*alerting.Alert)}
}

func (b *MemoryBackend) Name() string { return "memory" }

func (b *MemoryBackend) StoreEvent(_ context.Context, event *telemetry.TelemetryEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailWrites {
		return ErrStorageUnavailable
	}
	b.events = append(b.events, event)
	return nil
}

func (b *MemoryBackend) StoreAlert(_ context.Context, alert *alerting.Alert) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailWrites {
		return ErrStorageUnavailable
	}
	b.alerts[alert.ID] = alert
	return nil
}

func (b *MemoryBackend) EventsByTimeRange(_ context.Context, from, to time.Time) ([]*telemetry.TelemetryEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*telemetry.TelemetryEvent
	for _, event := range b.events {
		if !event.Timestamp.Before(from) && !event.Timestamp.After(to) {
			out = append(out, event)
		}
	}
	return out, nil
}

func (b *MemoryBackend) AlertsByTimeRange(_ context.Context, from, to time.Time) ([]*alerting.Alert, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*alerting.Alert
	for _, alert := range b.alerts {
		if !alert.Timestamp.Before(from) && !alert.Timestamp.After(to) {
			out = append(out, alert)
		}
	}
	return out, nil
}

func (b *MemoryBackend) ApplyRetentionPolicy(_ context.Context, maxAge time.Duration) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	var deleted int64

	kept := b.events[:0]
	for _, event := range b.events {
		if event.Timestamp.After(cutoff) {
			kept = append(kept, event)
		} else {
			deleted++
		}
	}
	b.events = kept

	for id, alert := range b.alerts {
		if alert.Timestamp.Before(cutoff) && alert.Status == alerting.StatusResolved {
			delete(b.alerts, id)
			deleted++
		}
	}
	return deleted, nil
}

func (b *MemoryBackend) Ping(context.Context) error { return nil }

func (b *MemoryBackend) Close() error { return nil }
