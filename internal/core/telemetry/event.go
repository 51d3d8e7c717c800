package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// MetricGroup identifies a group of metrics carried by a telemetry event
type MetricGroup string

const (
	GroupPerformance MetricGroup = "performance"
	GroupQuality     MetricGroup = "quality"
	GroupStrategy    MetricGroup = "strategy"
)

// TelemetryEvent is an immutable record emitted by a scraper run.
// Metric values are nullable; a nil entry means the scraper could not
// measure that metric for this run.
type TelemetryEvent struct {
	ID            string                 `json:"id"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Source        string                 `json:"source"`
	Performance   map[string]*float64    `json:"performance,omitempty"`
	Quality       map[string]*float64    `json:"quality,omitempty"`
	Strategy      map[string]*float64    `json:"strategy,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// NewEvent creates a telemetry event for the given source with a fresh ID
func NewEvent(source string) *TelemetryEvent {
	return &TelemetryEvent{
		ID:            uuid.New().String(),
		Timestamp:     time.Now(),
		CorrelationID: uuid.New().String(),
		Source:        source,
		Performance:   make(map[string]*float64),
		Quality:       make(map[string]*float64),
		Strategy:      make(map[string]*float64),
	}
}

// SetMetric records a metric value in the named group
func (e *TelemetryEvent) SetMetric(group MetricGroup, name string, value float64) {
	v := value
	switch group {
	case GroupPerformance:
		if e.Performance == nil {
			e.Performance = make(map[string]*float64)
		}
		e.Performance[name] = &v
	case GroupQuality:
		if e.Quality == nil {
			e.Quality = make(map[string]*float64)
		}
		e.Quality[name] = &v
	case GroupStrategy:
		if e.Strategy == nil {
			e.Strategy = make(map[string]*float64)
		}
		e.Strategy[name] = &v
	}
}

// Group returns the metric map for the named group
func (e *TelemetryEvent) Group(group MetricGroup) map[string]*float64 {
	switch group {
	case GroupPerformance:
		return e.Performance
	case GroupQuality:
		return e.Quality
	case GroupStrategy:
		return e.Strategy
	}
	return nil
}
