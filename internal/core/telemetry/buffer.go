package telemetry

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// OverflowPolicy controls what Add does when the buffer is full
type OverflowPolicy string

const (
	OverflowDropOldest OverflowPolicy = "drop_oldest"
	OverflowDropNewest OverflowPolicy = "drop_newest"
	OverflowBlock      OverflowPolicy = "block"
	OverflowError      OverflowPolicy = "error"
)

// BufferStats is a snapshot of buffer counters
type BufferStats struct {
	Size     int   `json:"size"`
	Capacity int   `json:"capacity"`
	Accepted int64 `json:"accepted"`
	Dropped  int64 `json:"dropped"`
	Drained  int64 `json:"drained"`
}

// EventBuffer is the bounded ingestion queue between scraper telemetry
// producers and the alerting pipeline.
type EventBuffer struct {
	capacity int
	policy   OverflowPolicy
	events   []*TelemetryEvent
	accepted int64
	dropped  int64
	drained  int64
	closed   bool
	mu       sync.Mutex
	notFull  *sync.Cond
	logger   *logrus.Logger
}

// NewEventBuffer creates a bounded event buffer with the given overflow policy
func NewEventBuffer(capacity int, policy OverflowPolicy, logger *logrus.Logger) (*EventBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("buffer capacity must be positive, got %d", capacity)
	}
	switch policy {
	case OverflowDropOldest, OverflowDropNewest, OverflowBlock, OverflowError:
	default:
		return nil, fmt.Errorf("unknown overflow policy: %s", policy)
	}

	b := &EventBuffer{
		capacity: capacity,
		policy:   policy,
		events:   make([]*TelemetryEvent, 0, capacity),
		logger:   logger,
	}
	b.notFull = sync.NewCond(&b.mu)
	return b, nil
}

// Add offers an event to the buffer. The return value reports whether the
// event was accepted; under the block policy Add waits for space instead.
func (b *EventBuffer) Add(event *TelemetryEvent) bool {
	if event == nil {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	if len(b.events) >= b.capacity {
		switch b.policy {
		case OverflowDropOldest:
			b.events = b.events[1:]
			b.dropped++
			b.logger.WithField("event_id", event.ID).Debug("Buffer full, dropped oldest event")
		case OverflowDropNewest:
			b.dropped++
			b.logger.WithField("event_id", event.ID).Debug("Buffer full, dropped incoming event")
			return false
		case OverflowError:
			b.dropped++
			return false
		case OverflowBlock:
			for len(b.events) >= b.capacity && !b.closed {
				b.notFull.Wait()
			}
			if b.closed {
				return false
			}
		}
	}

	b.events = append(b.events, event)
	b.accepted++
	return true
}

// Drain removes and returns up to maxCount buffered events in arrival order
func (b *EventBuffer) Drain(maxCount int) []*TelemetryEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	if maxCount <= 0 || maxCount > len(b.events) {
		maxCount = len(b.events)
	}
	if maxCount == 0 {
		return nil
	}

	batch := make([]*TelemetryEvent, maxCount)
	copy(batch, b.events[:maxCount])
	b.events = b.events[maxCount:]
	b.drained += int64(maxCount)
	b.notFull.Broadcast()
	return batch
}

// Size returns the current number of buffered events
func (b *EventBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Close rejects further adds and releases any blocked producers
func (b *EventBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.notFull.Broadcast()
}

// Stats returns a snapshot of the buffer counters
func (b *EventBuffer) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Size:     len(b.events),
		Capacity: b.capacity,
		Accepted: b.accepted,
		Dropped:  b.dropped,
		Drained:  b.drained,
	}
}
