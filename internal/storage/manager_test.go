package storage

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/alerting"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/telemetry"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func testEvent(source string, at time.Time) *telemetry.TelemetryEvent {
	event := telemetry.NewEvent(source)
	event.Timestamp = at
	return event
}

func testAlert(id string, status alerting.AlertStatus, at time.Time) *alerting.Alert {
	return &alerting.Alert{
		ID:        id,
		Type:      alerting.AlertTypeThreshold,
		Severity:  alerting.SeverityError,
		Status:    status,
		Title:     "test",
		Timestamp: at,
	}
}

func TestWriteUsesPrimaryWhenHealthy(t *testing.T) {
	primary := NewMemoryBackend()
	fallback := NewMemoryBackend()
	manager := NewManager(testLogger(), primary, fallback)

	require.NoError(t, manager.StoreEvent(context.Background(), testEvent("s1", time.Now())))

	stats := manager.Stats()
	assert.Equal(t, int64(1), stats.Writes)
	assert.Zero(t, stats.Fallbacks)
	assert.Equal(t, int64(1), stats.ByBackend["memory"])

	events, err := primary.EventsByTimeRange(context.Background(), time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestWriteFallsBackWhenPrimaryFails(t *testing.T) {
	primary := NewMemoryBackend()
	primary.FailWrites = true
	fallback := NewMemoryBackend()
	manager := NewManager(testLogger(), primary, fallback)

	now := time.Now()
	require.NoError(t, manager.StoreAlert(context.Background(), testAlert("a1", alerting.StatusActive, now)))

	stats := manager.Stats()
	assert.Equal(t, int64(1), stats.Writes)
	assert.Equal(t, int64(1), stats.Fallbacks)

	alerts, err := fallback.AlertsByTimeRange(context.Background(), now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestWriteFailsOnlyWhenAllBackendsFail(t *testing.T) {
	primary := NewMemoryBackend()
	primary.FailWrites = true
	fallback := NewMemoryBackend()
	fallback.FailWrites = true
	manager := NewManager(testLogger(), primary, fallback)

	err := manager.StoreEvent(context.Background(), testEvent("s1", time.Now()))
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Equal(t, int64(1), manager.Stats().Failures)
}

func TestReadsTryBackendsInOrder(t *testing.T) {
	primary := NewMemoryBackend()
	fallback := NewMemoryBackend()
	manager := NewManager(testLogger(), primary, fallback)

	now := time.Now()
	require.NoError(t, fallback.StoreAlert(context.Background(), testAlert("a1", alerting.StatusActive, now)))

	// Primary answers with an empty result, which is still an answer.
	alerts, err := manager.AlertsByTimeRange(context.Background(), now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestRetentionPrunesAgedRecordsAcrossBackends(t *testing.T) {
	primary := NewMemoryBackend()
	fallback := NewMemoryBackend()
	manager := NewManager(testLogger(), primary, fallback)

	old := time.Now().Add(-48 * time.Hour)
	fresh := time.Now()
	require.NoError(t, primary.StoreEvent(context.Background(), testEvent("s1", old)))
	require.NoError(t, primary.StoreEvent(context.Background(), testEvent("s1", fresh)))
	require.NoError(t, primary.StoreAlert(context.Background(), testAlert("done", alerting.StatusResolved, old)))
	require.NoError(t, primary.StoreAlert(context.Background(), testAlert("open", alerting.StatusActive, old)))
	require.NoError(t, fallback.StoreEvent(context.Background(), testEvent("s2", old)))

	deleted, err := manager.ApplyRetentionPolicy(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	// Unresolved alerts survive retention regardless of age.
	alerts, err := primary.AlertsByTimeRange(context.Background(), old.Add(-time.Minute), fresh)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "open", alerts[0].ID)
}
