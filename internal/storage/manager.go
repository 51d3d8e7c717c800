package storage

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/alerting"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/telemetry"
)

// ManagerStats counts per-backend successes and failures
type ManagerStats struct {
	Writes    int64            `json:"writes"`
	Fallbacks int64            `json:"fallbacks"`
	Failures  int64            `json:"failures"`
	ByBackend map[string]int64 `json:"by_backend"`
}

// Manager persists through a primary backend with an ordered fallback
// chain. A write fails only when every backend in the chain has failed.
type Manager struct {
	backends []Backend
	stats    ManagerStats
	mu       sync.Mutex
	logger   *logrus.Logger
}

// NewManager creates a storage manager; the first backend is the primary
func NewManager(logger *logrus.Logger, primary Backend, fallbacks ...Backend) *Manager {
	backends := append([]Backend{primary}, fallbacks...)
	return &Manager{
		backends: backends,
		stats:    ManagerStats{ByBackend: make(map[string]int64)},
		logger:   logger,
	}
}

// StoreEvent persists an event through the backend chain
func (m *Manager) StoreEvent(ctx context.Context, event *telemetry.TelemetryEvent) error {
	return m.write(ctx, "event", func(b Backend) error {
		return b.StoreEvent(ctx, event)
	})
}

// StoreAlert persists an alert through the backend chain
func (m *Manager) StoreAlert(ctx context.Context, alert *alerting.Alert) error {
	return m.write(ctx, "alert", func(b Backend) error {
		return b.StoreAlert(ctx, alert)
	})
}

// EventsByTimeRange reads from the first backend that answers
func (m *Manager) EventsByTimeRange(ctx context.Context, from, to time.Time) ([]*telemetry.TelemetryEvent, error) {
	var lastErr error
	for _, b := range m.backends {
		events, err := b.EventsByTimeRange(ctx, from, to)
		if err == nil {
			return events, nil
		}
		lastErr = err
		m.logger.WithError(err).Warnf("Backend %s failed to read events", b.Name())
	}
	if lastErr != nil {
		return nil, ErrStorageUnavailable
	}
	return nil, nil
}

// AlertsByTimeRange reads from the first backend that answers
func (m *Manager) AlertsByTimeRange(ctx context.Context, from, to time.Time) ([]*alerting.Alert, error) {
	var lastErr error
	for _, b := range m.backends {
		alerts, err := b.AlertsByTimeRange(ctx, from, to)
		if err == nil {
			return alerts, nil
		}
		lastErr = err
		m.logger.WithError(err).Warnf("Backend %s failed to read alerts", b.Name())
	}
	if lastErr != nil {
		return nil, ErrStorageUnavailable
	}
	return nil, nil
}

// ApplyRetentionPolicy prunes aged rows on every reachable backend and
// returns the total number of records deleted.
func (m *Manager) ApplyRetentionPolicy(ctx context.Context, maxAge time.Duration) (int64, error) {
	var total int64
	var anyOK bool
	for _, b := range m.backends {
		deleted, err := b.ApplyRetentionPolicy(ctx, maxAge)
		if err != nil {
			m.logger.WithError(err).Warnf("Backend %s failed retention pass", b.Name())
			continue
		}
		anyOK = true
		total += deleted
	}
	if !anyOK {
		return 0, ErrStorageUnavailable
	}
	return total, nil
}

// Close closes every backend in the chain
func (m *Manager) Close() error {
	var firstErr error
	for _, b := range m.backends {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stats returns the manager's counter snapshot
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := ManagerStats{
		Writes:    m.stats.Writes,
		Fallbacks: m.stats.Fallbacks,
		Failures:  m.stats.Failures,
		ByBackend: make(map[string]int64, len(m.stats.ByBackend)),
	}
	for k, v := range m.stats.ByBackend {
		stats.ByBackend[k] = v
	}
	return stats
}

func (m *Manager) write(ctx context.Context, what string, op func(Backend) error) error {
	for i, b := range m.backends {
		err := op(b)
		if err == nil {
			m.mu.Lock()
			m.stats.Writes++
			m.stats.ByBackend[b.Name()]++
			if i > 0 {
				m.stats.Fallbacks++
			}
			m.mu.Unlock()
			return nil
		}
		m.logger.WithError(err).WithFields(logrus.Fields{
			"backend": b.Name(),
			"record":  what,
		}).Warn("Storage backend write failed, trying next")
	}

	m.mu.Lock()
	m.stats.Failures++
	m.mu.Unlock()
	return ErrStorageUnavailable
}
