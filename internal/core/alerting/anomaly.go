package alerting

import (
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// AnomalyAlgorithm selects the detection strategy for a metric
type AnomalyAlgorithm string

const (
	AlgorithmZScore        AnomalyAlgorithm = "zscore"
	AlgorithmIQR           AnomalyAlgorithm = "iqr"
	AlgorithmMovingAverage AnomalyAlgorithm = "moving_average"
	AlgorithmTrend         AnomalyAlgorithm = "trend"
)

// AnomalyDetectorConfig configures the anomaly detector
type AnomalyDetectorConfig struct {
	WindowSize       int              `json:"window_size"`
	MinSamples       int              `json:"min_samples"`
	Sensitivity      float64          `json:"sensitivity"`
	IQRScale         float64          `json:"iqr_scale"`
	SmoothingAlpha   float64          `json:"smoothing_alpha"`
	MovingWindow     int              `json:"moving_window"`
	DefaultAlgorithm AnomalyAlgorithm `json:"default_algorithm"`
}

// DefaultAnomalyDetectorConfig returns sensible anomaly detection defaults
func DefaultAnomalyDetectorConfig() AnomalyDetectorConfig {
	return AnomalyDetectorConfig{
		WindowSize:       DefaultWindowSize,
		MinSamples:       30,
		Sensitivity:      2.5,
		IQRScale:         1.5,
		SmoothingAlpha:   0.3,
		MovingWindow:     20,
		DefaultAlgorithm: AlgorithmZScore,
	}
}

// trendState is the running exponential smoothing state for one metric
type trendState struct {
	forecast float64
	mae      float64
	n        int
}

// AnomalyDetector flags metric samples that deviate from their own rolling
// history. A nil finding means the detector abstained, not that the value
// is normal.
type AnomalyDetector struct {
	config     AnomalyDetectorConfig
	history    *metricHistory
	algorithms map[string]AnomalyAlgorithm
	trends     map[string]*trendState
	mu         sync.Mutex
	logger     *logrus.Logger
}

// NewAnomalyDetector creates an anomaly detector
func NewAnomalyDetector(config AnomalyDetectorConfig, logger *logrus.Logger) *AnomalyDetector {
	if config.WindowSize <= 0 {
		config.WindowSize = DefaultWindowSize
	}
	if config.MinSamples <= 0 {
		config.MinSamples = 30
	}
	if config.Sensitivity <= 0 {
		config.Sensitivity = 2.5
	}
	if config.IQRScale <= 0 {
		config.IQRScale = 1.5
	}
	if config.SmoothingAlpha <= 0 || config.SmoothingAlpha >= 1 {
		config.SmoothingAlpha = 0.3
	}
	if config.MovingWindow <= 0 {
		config.MovingWindow = 20
	}
	if config.DefaultAlgorithm == "" {
		config.DefaultAlgorithm = AlgorithmZScore
	}
	return &AnomalyDetector{
		config:     config,
		history:    newMetricHistory(config.WindowSize),
		algorithms: make(map[string]AnomalyAlgorithm),
		trends:     make(map[string]*trendState),
		logger:     logger,
	}
}

// SetAlgorithm pins a detection algorithm for one metric
func (ad *AnomalyDetector) SetAlgorithm(metric string, algorithm AnomalyAlgorithm) {
	ad.mu.Lock()
	defer ad.mu.Unlock()
	ad.algorithms[metric] = algorithm
}

func (ad *AnomalyDetector) algorithmFor(metric string) AnomalyAlgorithm {
	ad.mu.Lock()
	defer ad.mu.Unlock()
	if alg, ok := ad.algorithms[metric]; ok {
		return alg
	}
	return ad.config.DefaultAlgorithm
}

// Detect evaluates a sample against the metric's history and then records
// it. The current sample never contaminates its own baseline.
func (ad *AnomalyDetector) Detect(metric string, value float64, at time.Time) *Finding {
	algorithm := ad.algorithmFor(metric)

	var finding *Finding
	switch algorithm {
	case AlgorithmIQR:
		finding = ad.detectIQR(metric, value)
	case AlgorithmMovingAverage:
		finding = ad.detectMovingAverage(metric, value)
	case AlgorithmTrend:
		finding = ad.detectTrend(metric, value)
	default:
		finding = ad.detectZScore(metric, value)
	}

	ad.history.Observe(metric, value, at)

	if finding == nil {
		return nil
	}

	finding.Algorithm = string(algorithm)
	slope := ad.history.Slope(metric, at.Add(-time.Hour))
	finding.Trend = &TrendContext{Slope: slope, Direction: trendDirection(slope)}

	if finding.Triggered {
		ad.logger.WithFields(logrus.Fields{
			"metric":    metric,
			"value":     value,
			"expected":  finding.Expected,
			"deviation": finding.Deviation,
			"algorithm": algorithm,
		}).Debug("Anomaly detected")
	}
	return finding
}

func (ad *AnomalyDetector) detectZScore(metric string, value float64) *Finding {
	values := ad.history.Values(metric)
	if len(values) < ad.config.MinSamples || len(values) < 3 {
		return nil
	}
	m := mean(values)
	sd := stddev(values)
	if sd == 0 {
		return nil
	}
	z := math.Abs(value-m) / sd
	severity, confidence := severityForDeviation(z)
	return &Finding{
		Metric:     metric,
		Value:      value,
		Expected:   m,
		Deviation:  z,
		Triggered:  z > ad.config.Sensitivity,
		Severity:   severity,
		Confidence: confidence,
		Stats:      statContext(values),
	}
}

func (ad *AnomalyDetector) detectIQR(metric string, value float64) *Finding {
	values := ad.history.Values(metric)
	if len(values) < ad.config.MinSamples {
		return nil
	}
	q1 := percentile(values, 25)
	q3 := percentile(values, 75)
	iqr := q3 - q1
	if iqr == 0 {
		return nil
	}
	lower := q1 - ad.config.IQRScale*iqr
	upper := q3 + ad.config.IQRScale*iqr

	var distance float64
	switch {
	case value < lower:
		distance = lower - value
	case value > upper:
		distance = value - upper
	}
	deviation := distance / iqr
	severity, confidence := severityForDeviation(deviation)
	return &Finding{
		Metric:     metric,
		Value:      value,
		Expected:   median(values),
		Deviation:  deviation,
		Triggered:  distance > 0,
		Severity:   severity,
		Confidence: confidence,
		Stats:      statContext(values),
	}
}

func (ad *AnomalyDetector) detectMovingAverage(metric string, value float64) *Finding {
	values := ad.history.Values(metric)
	if len(values) < ad.config.MinSamples {
		return nil
	}
	if len(values) > ad.config.MovingWindow {
		values = values[len(values)-ad.config.MovingWindow:]
	}
	m := mean(values)
	sd := stddev(values)
	if sd == 0 {
		return nil
	}
	z := math.Abs(value-m) / sd
	severity, confidence := severityForDeviation(z)
	return &Finding{
		Metric:     metric,
		Value:      value,
		Expected:   m,
		Deviation:  z,
		Triggered:  z > ad.config.Sensitivity,
		Severity:   severity,
		Confidence: confidence,
		Stats:      statContext(values),
	}
}

// detectTrend compares each sample against an exponentially smoothed
// forecast, scaling the error by the running mean absolute error.
func (ad *AnomalyDetector) detectTrend(metric string, value float64) *Finding {
	ad.mu.Lock()
	defer ad.mu.Unlock()

	state, ok := ad.trends[metric]
	if !ok {
		state = &trendState{forecast: value}
		ad.trends[metric] = state
	}

	priorForecast := state.forecast
	priorMAE := state.mae
	priorN := state.n

	absErr := math.Abs(value - priorForecast)
	state.mae = (state.mae*float64(state.n) + absErr) / float64(state.n+1)
	state.n++
	alpha := ad.config.SmoothingAlpha
	state.forecast = alpha*value + (1-alpha)*priorForecast

	if priorN < ad.config.MinSamples || priorMAE == 0 {
		return nil
	}
	deviation := absErr / priorMAE
	severity, confidence := severityForDeviation(deviation)
	return &Finding{
		Metric:     metric,
		Value:      value,
		Expected:   priorForecast,
		Deviation:  deviation,
		Triggered:  deviation > ad.config.Sensitivity,
		Severity:   severity,
		Confidence: confidence,
	}
}
