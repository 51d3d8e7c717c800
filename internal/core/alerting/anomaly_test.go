package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZScoreDetectsSpikeAfterStableHistory(t *testing.T) {
	detector := NewAnomalyDetector(DefaultAnomalyDetectorConfig(), testLogger())
	now := time.Now()

	for i := 0; i < 30; i++ {
		value := 99.0
		if i%2 == 0 {
			value = 101
		}
		finding := detector.Detect("response_time_ms", value, now.Add(time.Duration(i)*time.Second))
		if finding != nil {
			assert.False(t, finding.Triggered, "stable sample %d should not trigger", i)
		}
	}

	finding := detector.Detect("response_time_ms", 500, now.Add(time.Minute))
	require.NotNil(t, finding)
	assert.True(t, finding.Triggered)
	assert.Equal(t, SeverityCritical, finding.Severity)
	assert.Equal(t, string(AlgorithmZScore), finding.Algorithm)
	assert.InDelta(t, 100, finding.Expected, 1)
	assert.Equal(t, 1.0, finding.Confidence)
}

func TestZScoreAbstainsBelowMinSamples(t *testing.T) {
	detector := NewAnomalyDetector(DefaultAnomalyDetectorConfig(), testLogger())
	now := time.Now()

	for i := 0; i < 29; i++ {
		detector.Detect("response_time_ms", 100, now.Add(time.Duration(i)*time.Second))
	}
	assert.Nil(t, detector.Detect("response_time_ms", 10000, now.Add(time.Minute)))
}

func TestZScoreAbstainsOnZeroVariance(t *testing.T) {
	config := DefaultAnomalyDetectorConfig()
	config.MinSamples = 5
	detector := NewAnomalyDetector(config, testLogger())
	now := time.Now()

	for i := 0; i < 10; i++ {
		detector.Detect("items_scraped", 42, now.Add(time.Duration(i)*time.Second))
	}
	assert.Nil(t, detector.Detect("items_scraped", 42, now.Add(time.Minute)))
}

func TestIQRDetectsOutlier(t *testing.T) {
	config := DefaultAnomalyDetectorConfig()
	config.MinSamples = 10
	detector := NewAnomalyDetector(config, testLogger())
	detector.SetAlgorithm("response_time_ms", AlgorithmIQR)
	now := time.Now()

	for i := 0; i < 20; i++ {
		detector.Detect("response_time_ms", 100+float64(i%10), now.Add(time.Duration(i)*time.Second))
	}

	finding := detector.Detect("response_time_ms", 1000, now.Add(time.Minute))
	require.NotNil(t, finding)
	assert.True(t, finding.Triggered)
	assert.Equal(t, string(AlgorithmIQR), finding.Algorithm)

	inside := detector.Detect("response_time_ms", 105, now.Add(2*time.Minute))
	require.NotNil(t, inside)
	assert.False(t, inside.Triggered)
	assert.Zero(t, inside.Deviation)
}

func TestMovingAverageUsesTrailingWindow(t *testing.T) {
	config := DefaultAnomalyDetectorConfig()
	config.MinSamples = 10
	config.MovingWindow = 5
	detector := NewAnomalyDetector(config, testLogger())
	detector.SetAlgorithm("response_time_ms", AlgorithmMovingAverage)
	now := time.Now()

	// Old regime at 1000, recent regime near 100. Only the trailing window
	// should define the baseline.
	for i := 0; i < 20; i++ {
		detector.Detect("response_time_ms", 1000, now.Add(time.Duration(i)*time.Second))
	}
	for i := 20; i < 40; i++ {
		value := 99.0
		if i%2 == 0 {
			value = 101
		}
		detector.Detect("response_time_ms", value, now.Add(time.Duration(i)*time.Second))
	}

	finding := detector.Detect("response_time_ms", 150, now.Add(time.Minute))
	require.NotNil(t, finding)
	assert.True(t, finding.Triggered)
	assert.InDelta(t, 100, finding.Expected, 1)
}

func TestTrendDetectorWarmsUpThenFlagsForecastError(t *testing.T) {
	config := DefaultAnomalyDetectorConfig()
	config.MinSamples = 10
	detector := NewAnomalyDetector(config, testLogger())
	detector.SetAlgorithm("response_time_ms", AlgorithmTrend)
	now := time.Now()

	for i := 0; i < 15; i++ {
		value := 99.0
		if i%2 == 0 {
			value = 101
		}
		detector.Detect("response_time_ms", value, now.Add(time.Duration(i)*time.Second))
	}

	finding := detector.Detect("response_time_ms", 500, now.Add(time.Minute))
	require.NotNil(t, finding)
	assert.True(t, finding.Triggered)
	assert.Equal(t, string(AlgorithmTrend), finding.Algorithm)
	assert.Greater(t, finding.Deviation, config.Sensitivity)
}

func TestDetectAttachesTrendContext(t *testing.T) {
	config := DefaultAnomalyDetectorConfig()
	config.MinSamples = 5
	detector := NewAnomalyDetector(config, testLogger())
	now := time.Now()

	for i := 0; i < 10; i++ {
		detector.Detect("response_time_ms", float64(100+i*10), now.Add(time.Duration(i)*time.Minute))
	}
	finding := detector.Detect("response_time_ms", 220, now.Add(11*time.Minute))
	require.NotNil(t, finding)
	require.NotNil(t, finding.Trend)
	assert.Equal(t, "increasing", finding.Trend.Direction)
}
