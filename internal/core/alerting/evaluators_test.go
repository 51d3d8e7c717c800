package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformanceEvaluatorFlagsDegradation(t *testing.T) {
	config := DefaultPerformanceEvaluatorConfig()
	config.MinSamples = 10
	evaluator := NewPerformanceEvaluator(config, testLogger())
	now := time.Now()

	for i := 0; i < 20; i++ {
		value := 99.0
		if i%2 == 0 {
			value = 101
		}
		finding := evaluator.Evaluate("response_time_ms", value, now.Add(time.Duration(i)*time.Second))
		if finding != nil {
			assert.False(t, finding.Triggered, "baseline sample %d should not trigger", i)
		}
	}

	finding := evaluator.Evaluate("response_time_ms", 300, now.Add(time.Minute))
	require.NotNil(t, finding)
	assert.True(t, finding.Triggered)
	assert.Equal(t, "performance_baseline", finding.Algorithm)
	assert.InDelta(t, 100, finding.Expected, 1)
}

func TestPerformanceEvaluatorIgnoresImprovement(t *testing.T) {
	config := DefaultPerformanceEvaluatorConfig()
	config.MinSamples = 10
	evaluator := NewPerformanceEvaluator(config, testLogger())
	now := time.Now()

	for i := 0; i < 20; i++ {
		value := 99.0
		if i%2 == 0 {
			value = 101
		}
		evaluator.Evaluate("response_time_ms", value, now.Add(time.Duration(i)*time.Second))
	}

	// A dramatically faster run is never a performance problem.
	finding := evaluator.Evaluate("response_time_ms", 5, now.Add(time.Minute))
	require.NotNil(t, finding)
	assert.False(t, finding.Triggered)
	assert.Zero(t, finding.Deviation)
}

func TestPerformanceEvaluatorAbstainsBelowMinSamples(t *testing.T) {
	evaluator := NewPerformanceEvaluator(DefaultPerformanceEvaluatorConfig(), testLogger())
	assert.Nil(t, evaluator.Evaluate("response_time_ms", 99999, time.Now()))
}

func TestQualityFloorBreachFiresWithoutBaseline(t *testing.T) {
	monitor := NewQualityMonitor(DefaultQualityMonitorConfig(), testLogger())

	// First sample ever, but completeness 0.1 sits below the 0.5 floor.
	finding := monitor.Evaluate("completeness", 0.1, time.Now())
	require.NotNil(t, finding)
	assert.True(t, finding.Triggered)
	assert.Equal(t, "quality_floor", finding.Algorithm)
	assert.Equal(t, 0.5, finding.Expected)
	assert.GreaterOrEqual(t, finding.Severity.Rank(), SeverityWarning.Rank())
	assert.GreaterOrEqual(t, finding.Confidence, 0.5)
}

func TestQualityBaselineDropDetection(t *testing.T) {
	config := DefaultQualityMonitorConfig()
	config.MinSamples = 10
	monitor := NewQualityMonitor(config, testLogger())
	now := time.Now()

	for i := 0; i < 20; i++ {
		finding := monitor.Evaluate("completeness", 0.95, now.Add(time.Duration(i)*time.Second))
		if finding != nil {
			assert.False(t, finding.Triggered)
		}
	}

	// 0.95 -> 0.6 is a 37% drop, past the 20% drop ratio but above the floor.
	finding := monitor.Evaluate("completeness", 0.6, now.Add(time.Minute))
	require.NotNil(t, finding)
	assert.True(t, finding.Triggered)
	assert.Equal(t, "quality_baseline", finding.Algorithm)
	assert.InDelta(t, 0.95, finding.Expected, 0.001)
}

func TestQualityMonitorAbstainsWithoutFloorOrBaseline(t *testing.T) {
	monitor := NewQualityMonitor(DefaultQualityMonitorConfig(), testLogger())
	assert.Nil(t, monitor.Evaluate("novel_quality_metric", 0.9, time.Now()))
}

func TestQualitySetFloor(t *testing.T) {
	monitor := NewQualityMonitor(DefaultQualityMonitorConfig(), testLogger())
	monitor.SetFloor("novel_quality_metric", 0.8)

	finding := monitor.Evaluate("novel_quality_metric", 0.7, time.Now())
	require.NotNil(t, finding)
	assert.True(t, finding.Triggered)
}

func TestSeverityForDeviationBands(t *testing.T) {
	tests := []struct {
		deviation float64
		severity  AlertSeverity
	}{
		{0.5, SeverityInfo},
		{2.0, SeverityInfo},
		{2.1, SeverityWarning},
		{3.1, SeverityError},
		{4.1, SeverityCritical},
		{-4.1, SeverityCritical},
	}
	for _, tt := range tests {
		severity, confidence := severityForDeviation(tt.deviation)
		assert.Equal(t, tt.severity, severity, "deviation %.1f", tt.deviation)
		assert.LessOrEqual(t, confidence, 1.0)
		assert.GreaterOrEqual(t, confidence, 0.0)
	}
}

func TestPercentileInterpolation(t *testing.T) {
	values := []float64{10, 20, 30, 40}
	assert.Equal(t, 10.0, percentile(values, 0))
	assert.Equal(t, 40.0, percentile(values, 100))
	assert.Equal(t, 25.0, percentile(values, 50))
	assert.Equal(t, 20.0, median([]float64{10, 20, 30}))
	assert.Zero(t, percentile(nil, 50))
}

func TestMetricHistoryEvictsOldest(t *testing.T) {
	history := newMetricHistory(3)
	now := time.Now()
	for i := 1; i <= 5; i++ {
		history.Observe("m", float64(i), now.Add(time.Duration(i)*time.Second))
	}
	assert.Equal(t, []float64{3, 4, 5}, history.Values("m"))
	assert.Equal(t, 3, history.Len("m"))

	history.Reset("m")
	assert.Zero(t, history.Len("m"))
}
