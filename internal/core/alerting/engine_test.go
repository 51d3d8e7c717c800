package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/telemetry"
)

func newTestEngine(t *testing.T) *AlertEngine {
	t.Helper()
	monitor := NewThresholdMonitor(DefaultThresholdMonitorConfig(), testLogger())
	classifier := NewSeverityClassifier(DefaultSeverityClassifierConfig(), testLogger())
	return NewAlertEngine(DefaultAlertEngineConfig(), monitor, classifier, testLogger())
}

func TestAddRuleValidatesAndDefaults(t *testing.T) {
	engine := newTestEngine(t)

	err := engine.AddRule(&ThresholdRule{Metric: "x", Comparison: "~", Severity: SeverityInfo})
	require.Error(t, err)

	rule := &ThresholdRule{
		ID:         "latency",
		Metric:     "response_time_ms",
		Comparison: CompareGreater,
		Threshold:  1000,
		Severity:   SeverityError,
		Enabled:    true,
	}
	require.NoError(t, engine.AddRule(rule))
	assert.Equal(t, 5*time.Minute, rule.Cooldown)
	assert.Equal(t, ThresholdStatic, rule.Mode)

	got, ok := engine.Rule("latency")
	require.True(t, ok)
	assert.Same(t, rule, got)
	assert.Len(t, engine.Rules(), 1)
}

func TestHandleEventGeneratesAlert(t *testing.T) {
	engine := newTestEngine(t)
	require.NoError(t, engine.AddRule(&ThresholdRule{
		ID:         "latency",
		Metric:     "response_time_ms",
		Comparison: CompareGreater,
		Threshold:  10000,
		Severity:   SeverityError,
		Enabled:    true,
	}))

	var generated []*Alert
	engine.OnGenerate(func(alert *Alert) {
		generated = append(generated, alert)
	})

	event := telemetry.NewEvent("scraper-7")
	event.SetMetric(telemetry.GroupPerformance, "response_time_ms", 12000)
	now := time.Now()

	alerts := engine.HandleEvent(event, map[string]float64{"response_time_ms": 12000}, now)
	require.Len(t, alerts, 1)
	require.Len(t, generated, 1)

	alert := alerts[0]
	assert.Equal(t, AlertTypeThreshold, alert.Type)
	assert.Equal(t, SeverityError, alert.Severity)
	assert.Equal(t, StatusActive, alert.Status)
	assert.Equal(t, "latency", alert.RuleID)
	assert.Equal(t, "scraper-7", alert.Source)
	assert.Equal(t, event.CorrelationID, alert.CorrelationID)
	assert.Equal(t, 12000.0, alert.Value)
	assert.Equal(t, 10000.0, alert.Threshold)
	assert.Equal(t, AlertID("latency", event.ID, now), alert.ID)
}

func TestHandleEventRespectsCooldown(t *testing.T) {
	engine := newTestEngine(t)
	require.NoError(t, engine.AddRule(&ThresholdRule{
		ID:         "latency",
		Metric:     "response_time_ms",
		Comparison: CompareGreater,
		Threshold:  1000,
		Severity:   SeverityError,
		Enabled:    true,
		Cooldown:   5 * time.Minute,
	}))

	event := telemetry.NewEvent("scraper-7")
	metrics := map[string]float64{"response_time_ms": 2000}
	now := time.Now()

	first := engine.HandleEvent(event, metrics, now)
	assert.Len(t, first, 1)

	muted := engine.HandleEvent(event, metrics, now.Add(time.Minute))
	assert.Empty(t, muted)

	later := engine.HandleEvent(event, metrics, now.Add(6*time.Minute))
	assert.Len(t, later, 1)

	rule, _ := engine.Rule("latency")
	assert.Equal(t, int64(2), rule.TriggerCount)
}

func TestHandleEventSkipsDisabledRulesAndAbsentMetrics(t *testing.T) {
	engine := newTestEngine(t)
	require.NoError(t, engine.AddRule(&ThresholdRule{
		ID:         "disabled",
		Metric:     "response_time_ms",
		Comparison: CompareGreater,
		Threshold:  1,
		Severity:   SeverityError,
		Enabled:    false,
	}))
	require.NoError(t, engine.AddRule(&ThresholdRule{
		ID:         "other",
		Metric:     "items_scraped",
		Comparison: CompareLess,
		Threshold:  10,
		Severity:   SeverityWarning,
		Enabled:    true,
	}))

	event := telemetry.NewEvent("scraper-7")
	alerts := engine.HandleEvent(event, map[string]float64{"response_time_ms": 99999}, time.Now())
	assert.Empty(t, alerts)
}

func TestEvaluateThresholdAdHoc(t *testing.T) {
	engine := newTestEngine(t)
	now := time.Now()

	alert := engine.EvaluateThreshold("error_rate", 0.9, CompareGreater, 0.5, SeverityCritical, "scraper-7", now)
	require.NotNil(t, alert)
	assert.Equal(t, AlertTypeThreshold, alert.Type)
	assert.Equal(t, SeverityCritical, alert.Severity)
	assert.Equal(t, "adhoc_error_rate", alert.RuleID)

	assert.Nil(t, engine.EvaluateThreshold("error_rate", 0.1, CompareGreater, 0.5, SeverityCritical, "scraper-7", now))
}

func TestCreateManualAlert(t *testing.T) {
	engine := newTestEngine(t)
	now := time.Now()

	alert := engine.CreateManualAlert("Proxy pool exhausted", "rotate providers", SeverityWarning, "ops", []string{"proxy"}, now)
	require.NotNil(t, alert)
	assert.Equal(t, AlertTypeManual, alert.Type)
	assert.Equal(t, []string{"proxy"}, alert.Tags)
	assert.Equal(t, AlertID("manual:ops", "Proxy pool exhausted", now), alert.ID)

	// Same inputs produce the same deterministic ID.
	again := engine.CreateManualAlert("Proxy pool exhausted", "rotate providers", SeverityWarning, "ops", []string{"proxy"}, now)
	assert.Equal(t, alert.ID, again.ID)
}

func TestCreateFromFindingClassifierUpgrade(t *testing.T) {
	monitor := NewThresholdMonitor(DefaultThresholdMonitorConfig(), testLogger())
	classifier := NewSeverityClassifier(DefaultSeverityClassifierConfig(), testLogger())
	require.NoError(t, classifier.AddRule(SeverityRule{
		Metric: "error_rate", Comparison: CompareGreater, Value: 0.5, Severity: SeverityCritical, Weight: 2,
	}))
	engine := NewAlertEngine(DefaultAlertEngineConfig(), monitor, classifier, testLogger())

	finding := &Finding{
		Metric:     "error_rate",
		Value:      0.9,
		Expected:   0.1,
		Deviation:  3,
		Triggered:  true,
		Severity:   SeverityWarning,
		Confidence: 0.4,
	}
	event := telemetry.NewEvent("scraper-7")
	alert := engine.CreateFromFinding(AlertTypeAnomaly, finding, event, time.Now())

	// Classifier is more certain and more severe, so it wins.
	assert.Equal(t, SeverityCritical, alert.Severity)
	assert.Equal(t, 1.0, alert.Confidence)
	assert.Equal(t, AlertTypeAnomaly, alert.Type)
}

func TestStatistics(t *testing.T) {
	engine := newTestEngine(t)
	now := time.Now()

	engine.CreateManualAlert("a", "", SeverityWarning, "ops", nil, now)
	engine.CreateManualAlert("b", "", SeverityWarning, "ops", nil, now.Add(time.Second))
	engine.CreateManualAlert("c", "", SeverityCritical, "ops", nil, now.Add(2*time.Second))

	stats := engine.Statistics()
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(3), stats.ByType[AlertTypeManual])
	assert.Equal(t, int64(2), stats.BySeverity[SeverityWarning])
	assert.Equal(t, AlertTypeManual, stats.MostCommonType)
	assert.Equal(t, SeverityWarning, stats.MostCommonSeverity)
	require.NotNil(t, stats.LastAlertAt)
	assert.Equal(t, now.Add(2*time.Second), *stats.LastAlertAt)
}

func TestCallbackPanicIsContained(t *testing.T) {
	engine := newTestEngine(t)
	engine.OnGenerate(func(*Alert) {
		panic("broken callback")
	})

	assert.NotPanics(t, func() {
		engine.CreateManualAlert("a", "", SeverityInfo, "ops", nil, time.Now())
	})
}

func TestRemoveAndToggleRules(t *testing.T) {
	engine := newTestEngine(t)
	require.NoError(t, engine.AddRule(&ThresholdRule{
		ID:         "latency",
		Metric:     "response_time_ms",
		Comparison: CompareGreater,
		Threshold:  1000,
		Severity:   SeverityError,
	}))

	assert.True(t, engine.SetRuleEnabled("latency", true))
	assert.False(t, engine.SetRuleEnabled("missing", true))

	assert.True(t, engine.RemoveRule("latency"))
	assert.False(t, engine.RemoveRule("latency"))
}
