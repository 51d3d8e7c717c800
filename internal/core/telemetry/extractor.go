package telemetry

import "math"

// MetricExtractor flattens the metric groups of a telemetry event into
// named numeric samples for the evaluators. Nil and non-finite values
// are skipped rather than reported as zero.
type MetricExtractor struct{}

// NewMetricExtractor creates a metric extractor
func NewMetricExtractor() *MetricExtractor {
	return &MetricExtractor{}
}

// Extract returns every usable metric from every group of the event
func (me *MetricExtractor) Extract(event *TelemetryEvent) map[string]float64 {
	metrics := make(map[string]float64)
	if event == nil {
		return metrics
	}
	for _, group := range []MetricGroup{GroupPerformance, GroupQuality, GroupStrategy} {
		for name, value := range me.ExtractGroup(event, group) {
			metrics[name] = value
		}
	}
	return metrics
}

// ExtractGroup returns the usable metrics of a single group
func (me *MetricExtractor) ExtractGroup(event *TelemetryEvent, group MetricGroup) map[string]float64 {
	metrics := make(map[string]float64)
	if event == nil {
		return metrics
	}
	for name, value := range event.Group(group) {
		if value == nil {
			continue
		}
		if math.IsNaN(*value) || math.IsInf(*value, 0) {
			continue
		}
		metrics[name] = *value
	}
	return metrics
}

// GroupOf reports which group of the event carries the named metric
func (me *MetricExtractor) GroupOf(event *TelemetryEvent, name string) (MetricGroup, bool) {
	if event == nil {
		return "", false
	}
	for _, group := range []MetricGroup{GroupPerformance, GroupQuality, GroupStrategy} {
		if v, ok := event.Group(group)[name]; ok && v != nil {
			return group, true
		}
	}
	return "", false
}
