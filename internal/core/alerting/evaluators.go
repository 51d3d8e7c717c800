package alerting

import (
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PerformanceEvaluatorConfig configures the performance evaluator
type PerformanceEvaluatorConfig struct {
	WindowSize        int     `json:"window_size"`
	MinSamples        int     `json:"min_samples"`
	DegradationFactor float64 `json:"degradation_factor"`
}

// DefaultPerformanceEvaluatorConfig returns performance evaluator defaults
func DefaultPerformanceEvaluatorConfig() PerformanceEvaluatorConfig {
	return PerformanceEvaluatorConfig{
		WindowSize:        DefaultWindowSize,
		MinSamples:        20,
		DegradationFactor: 1.5,
	}
}

// PerformanceEvaluator flags latency-style metrics that degrade past their
// own rolling baseline. Only upward movement counts; a faster scrape is
// never a performance problem.
type PerformanceEvaluator struct {
	config  PerformanceEvaluatorConfig
	history *metricHistory
	logger  *logrus.Logger
}

// NewPerformanceEvaluator creates a performance evaluator
func NewPerformanceEvaluator(config PerformanceEvaluatorConfig, logger *logrus.Logger) *PerformanceEvaluator {
	if config.WindowSize <= 0 {
		config.WindowSize = DefaultWindowSize
	}
	if config.MinSamples <= 0 {
		config.MinSamples = 20
	}
	if config.DegradationFactor <= 1 {
		config.DegradationFactor = 1.5
	}
	return &PerformanceEvaluator{
		config:  config,
		history: newMetricHistory(config.WindowSize),
		logger:  logger,
	}
}

// Evaluate checks one performance sample against its rolling baseline
func (pe *PerformanceEvaluator) Evaluate(metric string, value float64, at time.Time) *Finding {
	values := pe.history.Values(metric)
	pe.history.Observe(metric, value, at)

	if len(values) < pe.config.MinSamples {
		return nil
	}

	baseline := mean(values)
	sd := stddev(values)

	var z float64
	if sd > 0 && value > baseline {
		z = (value - baseline) / sd
	}
	degraded := baseline > 0 && value > baseline*pe.config.DegradationFactor

	severity, confidence := severityForDeviation(z)
	slope := pe.history.Slope(metric, at.Add(-time.Hour))

	return &Finding{
		Metric:     metric,
		Value:      value,
		Expected:   baseline,
		Deviation:  z,
		Triggered:  degraded || z > severityBandWidth/2,
		Severity:   severity,
		Confidence: confidence,
		Algorithm:  "performance_baseline",
		Stats:      statContext(values),
		Trend:      &TrendContext{Slope: slope, Direction: trendDirection(slope)},
	}
}

// QualityMonitorConfig configures the quality monitor
type QualityMonitorConfig struct {
	WindowSize int                `json:"window_size"`
	MinSamples int                `json:"min_samples"`
	DropRatio  float64            `json:"drop_ratio"`
	Floors     map[string]float64 `json:"floors"`
}

// DefaultQualityMonitorConfig returns quality monitor defaults
func DefaultQualityMonitorConfig() QualityMonitorConfig {
	return QualityMonitorConfig{
		WindowSize: DefaultWindowSize,
		MinSamples: 20,
		DropRatio:  0.2,
		Floors: map[string]float64{
			"completeness":     0.5,
			"accuracy":         0.5,
			"confidence_score": 0.3,
		},
	}
}

// QualityMonitor watches extraction quality metrics for hard floor breaches
// and for relative drops from the rolling baseline. Floor breaches fire
// even before the baseline has enough samples.
type QualityMonitor struct {
	config  QualityMonitorConfig
	history *metricHistory
	mu      sync.Mutex
	logger  *logrus.Logger
}

// NewQualityMonitor creates a quality monitor
func NewQualityMonitor(config QualityMonitorConfig, logger *logrus.Logger) *QualityMonitor {
	if config.WindowSize <= 0 {
		config.WindowSize = DefaultWindowSize
	}
	if config.MinSamples <= 0 {
		config.MinSamples = 20
	}
	if config.DropRatio <= 0 {
		config.DropRatio = 0.2
	}
	if config.Floors == nil {
		config.Floors = make(map[string]float64)
	}
	return &QualityMonitor{
		config:  config,
		history: newMetricHistory(config.WindowSize),
		logger:  logger,
	}
}

// SetFloor installs or replaces the hard floor for one quality metric
func (qm *QualityMonitor) SetFloor(metric string, floor float64) {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	qm.config.Floors[metric] = floor
}

func (qm *QualityMonitor) floor(metric string) (float64, bool) {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	f, ok := qm.config.Floors[metric]
	return f, ok
}

// Evaluate checks one quality sample against its floor and baseline
func (qm *QualityMonitor) Evaluate(metric string, value float64, at time.Time) *Finding {
	values := qm.history.Values(metric)
	qm.history.Observe(metric, value, at)

	if floor, ok := qm.floor(metric); ok && value < floor {
		deviation := (floor - value) / math.Abs(floor) * severityBandWidth
		severity, confidence := severityForDeviation(deviation)
		if severity.Rank() < SeverityWarning.Rank() {
			severity = SeverityWarning
		}
		if confidence < 0.5 {
			confidence = 0.5
		}
		qm.logger.WithFields(logrus.Fields{
			"metric": metric,
			"value":  value,
			"floor":  floor,
		}).Warn("Quality metric breached hard floor")
		return &Finding{
			Metric:     metric,
			Value:      value,
			Expected:   floor,
			Deviation:  deviation,
			Triggered:  true,
			Severity:   severity,
			Confidence: confidence,
			Algorithm:  "quality_floor",
			Stats:      statContext(values),
		}
	}

	if len(values) < qm.config.MinSamples {
		return nil
	}

	baseline := mean(values)
	if baseline == 0 {
		return nil
	}
	drop := (baseline - value) / math.Abs(baseline)
	deviation := drop / qm.config.DropRatio * 2
	if deviation < 0 {
		deviation = 0
	}
	severity, confidence := severityForDeviation(deviation)
	return &Finding{
		Metric:     metric,
		Value:      value,
		Expected:   baseline,
		Deviation:  deviation,
		Triggered:  drop > qm.config.DropRatio,
		Severity:   severity,
		Confidence: confidence,
		Algorithm:  "quality_baseline",
		Stats:      statContext(values),
	}
}
