package alerting

import (
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// defaultTrendSensitivity is the minimum slope (units/minute) an adaptive
// trend rule reacts to when the rule does not set its own sensitivity.
const defaultTrendSensitivity = 0.1

// maxExceedance caps the deviation ratio so pathological thresholds near
// zero cannot produce unserializable values.
const maxExceedance = 1e6

// ThresholdMonitorConfig configures the threshold monitor
type ThresholdMonitorConfig struct {
	WindowSize     int           `json:"window_size"`
	MinSamples     int           `json:"min_samples"`
	AdjustInterval time.Duration `json:"adjust_interval"`
}

// DefaultThresholdMonitorConfig returns sensible threshold monitor defaults
func DefaultThresholdMonitorConfig() ThresholdMonitorConfig {
	return ThresholdMonitorConfig{
		WindowSize:     DefaultWindowSize,
		MinSamples:     10,
		AdjustInterval: time.Hour,
	}
}

// ThresholdMonitor evaluates metric samples against threshold rules and
// maintains the rolling history that adaptive rules recompute from.
type ThresholdMonitor struct {
	config  ThresholdMonitorConfig
	history *metricHistory
	logger  *logrus.Logger
}

// NewThresholdMonitor creates a threshold monitor
func NewThresholdMonitor(config ThresholdMonitorConfig, logger *logrus.Logger) *ThresholdMonitor {
	if config.WindowSize <= 0 {
		config.WindowSize = DefaultWindowSize
	}
	if config.MinSamples <= 0 {
		config.MinSamples = 10
	}
	if config.AdjustInterval <= 0 {
		config.AdjustInterval = time.Hour
	}
	return &ThresholdMonitor{
		config:  config,
		history: newMetricHistory(config.WindowSize),
		logger:  logger,
	}
}

// Observe records a metric sample into the rolling history
func (tm *ThresholdMonitor) Observe(metric string, value float64, at time.Time) {
	tm.history.Observe(metric, value, at)
}

// Evaluate checks one sample against one rule. Adaptive rules get a chance
// to recompute their threshold first. The returned finding is always
// non-nil; Triggered tells whether the rule fired.
func (tm *ThresholdMonitor) Evaluate(rule *ThresholdRule, value float64, now time.Time) *Finding {
	tm.maybeAdapt(rule, now)

	triggered := rule.Comparison.Apply(value, rule.Threshold)
	deviation := exceedanceRatio(rule.Comparison, value, rule.Threshold)

	finding := &Finding{
		Metric:     rule.Metric,
		Value:      value,
		Expected:   rule.Threshold,
		Deviation:  deviation,
		Triggered:  triggered,
		Severity:   rule.Severity,
		Confidence: math.Min(1, math.Abs(deviation)),
	}
	if !triggered {
		finding.Severity = SeverityInfo
	}

	if tm.history.Len(rule.Metric) >= tm.config.MinSamples {
		values := tm.history.Values(rule.Metric)
		finding.Stats = statContext(values)
		slope := tm.history.Slope(rule.Metric, now.Add(-time.Hour))
		finding.Trend = &TrendContext{Slope: slope, Direction: trendDirection(slope)}
	}
	return finding
}

// AdjustDynamically scales a dynamic rule's threshold by the given factor
func (tm *ThresholdMonitor) AdjustDynamically(rule *ThresholdRule, factor float64, reason string, now time.Time) bool {
	if rule.Mode != ThresholdDynamic || factor <= 0 {
		return false
	}
	old := rule.Threshold
	rule.Threshold = old * factor
	rule.LastAdjusted = now
	rule.AdjustReason = reason
	tm.logger.WithFields(logrus.Fields{
		"rule_id":       rule.ID,
		"old_threshold": old,
		"new_threshold": rule.Threshold,
		"reason":        reason,
	}).Info("Dynamically adjusted rule threshold")
	return true
}

// maybeAdapt recomputes an adaptive rule's threshold from the rolling
// history, at most once per adjust interval.
func (tm *ThresholdMonitor) maybeAdapt(rule *ThresholdRule, now time.Time) {
	if rule.Mode != ThresholdAdaptive {
		return
	}
	if !rule.LastAdjusted.IsZero() && now.Sub(rule.LastAdjusted) < tm.config.AdjustInterval {
		return
	}
	if tm.history.Len(rule.Metric) < tm.config.MinSamples {
		return
	}

	values := tm.history.Values(rule.Metric)
	old := rule.Threshold

	switch rule.AdaptiveMethod {
	case AdaptPercentile:
		rule.Threshold = percentile(values, rule.Percentile)
		rule.AdjustReason = "percentile recomputation"
	case AdaptStddev:
		rule.Threshold = mean(values) + rule.StddevFactor*stddev(values)
		rule.AdjustReason = "stddev band recomputation"
	case AdaptTrend:
		since := rule.LastAdjusted
		cutoff := now.Add(-time.Hour)
		if since.Before(cutoff) {
			since = cutoff
		}
		slope := tm.history.Slope(rule.Metric, since)
		sensitivity := rule.TrendSensitivity
		if sensitivity <= 0 {
			sensitivity = defaultTrendSensitivity
		}
		if math.Abs(slope) <= sensitivity {
			return
		}
		if slope > 0 {
			rule.Threshold = old * 1.10
		} else {
			rule.Threshold = old * 0.90
		}
		rule.AdjustReason = "trend nudge"
	default:
		return
	}

	rule.LastAdjusted = now
	if rule.Threshold != old {
		tm.logger.WithFields(logrus.Fields{
			"rule_id":       rule.ID,
			"method":        rule.AdaptiveMethod,
			"old_threshold": old,
			"new_threshold": rule.Threshold,
		}).Info("Adapted rule threshold")
	}
}

// exceedanceRatio measures how far past the threshold a value sits, as a
// ratio. For lower-bound comparisons the ratio is inverted so that bigger
// always means worse.
func exceedanceRatio(cmp Comparison, value, threshold float64) float64 {
	var ratio float64
	switch cmp {
	case CompareLess, CompareLessEqual:
		if value == 0 {
			if threshold == 0 {
				return 1
			}
			return maxExceedance
		}
		ratio = threshold / value
	default:
		if threshold == 0 {
			if value == 0 {
				return 1
			}
			return maxExceedance
		}
		ratio = value / threshold
	}
	if math.Abs(ratio) > maxExceedance {
		return math.Copysign(maxExceedance, ratio)
	}
	return ratio
}
