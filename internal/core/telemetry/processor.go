package telemetry

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EventError records why a single event was rejected during batch processing
type EventError struct {
	EventID string `json:"event_id"`
	Index   int    `json:"index"`
	Reason  string `json:"reason"`
}

// BatchResult carries the validated events of one batch plus per-event errors
type BatchResult struct {
	Events []*TelemetryEvent `json:"events"`
	Errors []EventError      `json:"errors,omitempty"`
}

// ProcessorStats is a snapshot of batch processor counters
type ProcessorStats struct {
	BatchesProcessed int64     `json:"batches_processed"`
	EventsValidated  int64     `json:"events_validated"`
	EventsRejected   int64     `json:"events_rejected"`
	MetricsScrubbed  int64     `json:"metrics_scrubbed"`
	LastBatchAt      time.Time `json:"last_batch_at"`
}

// BatchProcessor validates and normalizes drained event batches before they
// reach the alerting core. Rejections are per-event; one malformed event
// never fails the batch.
type BatchProcessor struct {
	maxBatchSize int
	stats        ProcessorStats
	mu           sync.Mutex
	logger       *logrus.Logger
}

// NewBatchProcessor creates a batch processor
func NewBatchProcessor(maxBatchSize int, logger *logrus.Logger) *BatchProcessor {
	if maxBatchSize <= 0 {
		maxBatchSize = 100
	}
	return &BatchProcessor{
		maxBatchSize: maxBatchSize,
		logger:       logger,
	}
}

// Process validates a batch of events. Events without an ID get one assigned,
// zero timestamps are stamped with the current time, and non-finite metric
// values are scrubbed. Events without a source are rejected.
func (p *BatchProcessor) Process(events []*TelemetryEvent) *BatchResult {
	result := &BatchResult{Events: make([]*TelemetryEvent, 0, len(events))}

	for i, event := range events {
		if i >= p.maxBatchSize {
			result.Errors = append(result.Errors, EventError{
				Index:  i,
				Reason: fmt.Sprintf("batch size limit %d exceeded", p.maxBatchSize),
			})
			continue
		}
		if event == nil {
			result.Errors = append(result.Errors, EventError{Index: i, Reason: "nil event"})
			continue
		}
		if event.Source == "" {
			result.Errors = append(result.Errors, EventError{
				EventID: event.ID,
				Index:   i,
				Reason:  "missing source",
			})
			continue
		}

		if event.ID == "" {
			event.ID = uuid.New().String()
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now()
		}

		scrubbed := p.scrubMetrics(event)
		if scrubbed > 0 {
			p.logger.WithFields(logrus.Fields{
				"event_id": event.ID,
				"scrubbed": scrubbed,
			}).Debug("Scrubbed non-finite metric values from event")
		}

		result.Events = append(result.Events, event)

		p.mu.Lock()
		p.stats.MetricsScrubbed += int64(scrubbed)
		p.mu.Unlock()
	}

	p.mu.Lock()
	p.stats.BatchesProcessed++
	p.stats.EventsValidated += int64(len(result.Events))
	p.stats.EventsRejected += int64(len(result.Errors))
	p.stats.LastBatchAt = time.Now()
	p.mu.Unlock()

	return result
}

func (p *BatchProcessor) scrubMetrics(event *TelemetryEvent) int {
	scrubbed := 0
	for _, group := range []MetricGroup{GroupPerformance, GroupQuality, GroupStrategy} {
		metrics := event.Group(group)
		for name, value := range metrics {
			if value != nil && (math.IsNaN(*value) || math.IsInf(*value, 0)) {
				delete(metrics, name)
				scrubbed++
			}
		}
	}
	return scrubbed
}

// Stats returns a snapshot of processor counters
func (p *BatchProcessor) Stats() ProcessorStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
