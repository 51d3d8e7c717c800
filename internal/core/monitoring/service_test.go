package monitoring

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/alerting"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/telemetry"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/notifications"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/storage"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

type recordingBroadcaster struct {
	transitions []string
	mu          sync.Mutex
}

func (b *recordingBroadcaster) BroadcastAlert(_ *alerting.Alert, transition string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitions = append(b.transitions, transition)
}

func (b *recordingBroadcaster) seen() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.transitions))
	copy(out, b.transitions)
	return out
}

func newTestService(t *testing.T) (*Service, *storage.MemoryBackend, *recordingBroadcaster) {
	t.Helper()
	log := testLogger()

	monitor := alerting.NewThresholdMonitor(alerting.DefaultThresholdMonitorConfig(), log)
	detector := alerting.NewAnomalyDetector(alerting.DefaultAnomalyDetectorConfig(), log)
	performance := alerting.NewPerformanceEvaluator(alerting.DefaultPerformanceEvaluatorConfig(), log)
	quality := alerting.NewQualityMonitor(alerting.DefaultQualityMonitorConfig(), log)
	classifier := alerting.NewSeverityClassifier(alerting.DefaultSeverityClassifierConfig(), log)
	engine := alerting.NewAlertEngine(alerting.DefaultAlertEngineConfig(), monitor, classifier, log)
	lifecycle := alerting.NewLifecycleManager(alerting.DefaultLifecycleConfig(), log)
	notifier := notifications.NewNotifier(log)

	backend := storage.NewMemoryBackend()
	store := storage.NewManager(log, backend)
	broadcaster := &recordingBroadcaster{}

	service, err := NewService(DefaultServiceConfig(), Deps{
		Monitor:     monitor,
		Detector:    detector,
		Performance: performance,
		Quality:     quality,
		Classifier:  classifier,
		Engine:      engine,
		Lifecycle:   lifecycle,
		Notifier:    notifier,
		Store:       store,
		Broadcaster: broadcaster,
	}, log)
	require.NoError(t, err)
	return service, backend, broadcaster
}

func TestProcessEventThresholdAlertFlowsThroughPipeline(t *testing.T) {
	service, backend, broadcaster := newTestService(t)
	require.NoError(t, service.Engine().AddRule(&alerting.ThresholdRule{
		ID:         "latency",
		Metric:     "response_time_ms",
		Comparison: alerting.CompareGreater,
		Threshold:  10000,
		Severity:   alerting.SeverityError,
		Enabled:    true,
	}))

	event := telemetry.NewEvent("scraper-7")
	event.SetMetric(telemetry.GroupPerformance, "response_time_ms", 12000)

	alerts := service.ProcessEvent(context.Background(), event)
	require.Len(t, alerts, 1)
	alert := alerts[0]
	assert.Equal(t, alerting.AlertTypeThreshold, alert.Type)

	// The alert is tracked, persisted and broadcast.
	tracked, ok := service.Alert(alert.ID)
	require.True(t, ok)
	assert.Equal(t, alerting.StatusActive, tracked.Status)

	stored, err := backend.AlertsByTimeRange(context.Background(), alert.Timestamp.Add(-time.Minute), alert.Timestamp.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	assert.Contains(t, broadcaster.seen(), "created")
}

func TestAlertLifecycleRoundTrip(t *testing.T) {
	service, _, broadcaster := newTestService(t)

	alert := service.CreateManualAlert(context.Background(), "Selector drift", "checkout page changed", alerting.SeverityError, "scraper-7", nil)
	require.NotNil(t, alert)

	assert.True(t, service.Acknowledge(alert.ID, "alice", "on it"))
	assert.True(t, service.Resolve(context.Background(), alert.ID, "alice", "fixed_selector", "updated xpath"))
	assert.False(t, service.Resolve(context.Background(), alert.ID, "bob", "manual", ""))

	resolved, _ := service.Alert(alert.ID)
	assert.Equal(t, alerting.StatusResolved, resolved.Status)

	transitions := broadcaster.seen()
	assert.Contains(t, transitions, "created")
	assert.Contains(t, transitions, "acknowledged")
	assert.Contains(t, transitions, "resolved")
}

func TestProcessBatchRejectsMalformedWithoutFailingBatch(t *testing.T) {
	service, _, _ := newTestService(t)

	good := telemetry.NewEvent("scraper-1")
	batch := []*telemetry.TelemetryEvent{good, nil, {ID: "orphan"}}
	service.ProcessBatch(context.Background(), batch)

	stats := service.GetStatistics()
	assert.Equal(t, int64(1), stats.Processor.EventsValidated)
	assert.Equal(t, int64(2), stats.Processor.EventsRejected)
}

func TestStorageFailureDegradesWithoutStoppingEvaluation(t *testing.T) {
	service, backend, _ := newTestService(t)
	backend.FailWrites = true

	require.NoError(t, service.Engine().AddRule(&alerting.ThresholdRule{
		ID:         "latency",
		Metric:     "response_time_ms",
		Comparison: alerting.CompareGreater,
		Threshold:  100,
		Severity:   alerting.SeverityWarning,
		Enabled:    true,
	}))

	event := telemetry.NewEvent("scraper-7")
	event.SetMetric(telemetry.GroupPerformance, "response_time_ms", 500)

	alerts := service.ProcessEvent(context.Background(), event)
	require.Len(t, alerts, 1)

	// Alert generation and tracking survive the storage outage.
	_, ok := service.Alert(alerts[0].ID)
	assert.True(t, ok)
	assert.Positive(t, service.GetStatistics().Storage.Failures)
}

func TestIngestAndDrainLoop(t *testing.T) {
	service, _, _ := newTestService(t)
	service.config.DrainInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	service.Start(ctx)

	event := telemetry.NewEvent("scraper-1")
	event.SetMetric(telemetry.GroupPerformance, "response_time_ms", 200)
	require.True(t, service.Ingest(event))

	assert.Eventually(t, func() bool {
		return service.GetStatistics().Processor.EventsValidated >= 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	service.Stop()
}

func TestEvaluateThresholdOneOff(t *testing.T) {
	service, _, _ := newTestService(t)

	alert := service.EvaluateThreshold(context.Background(), "error_rate", 0.9, alerting.CompareGreater, 0.5, alerting.SeverityCritical, "scraper-7")
	require.NotNil(t, alert)
	assert.Equal(t, alerting.SeverityCritical, alert.Severity)

	assert.Nil(t, service.EvaluateThreshold(context.Background(), "error_rate", 0.1, alerting.CompareGreater, 0.5, alerting.SeverityCritical, "scraper-7"))
}

func TestSendNotificationsUnknownAlert(t *testing.T) {
	service, _, _ := newTestService(t)
	_, err := service.SendNotifications(context.Background(), "missing", nil, "")
	assert.Error(t, err)
}
