package alerting

import (
	"math"
	"sort"
	"sync"
	"time"
)

// DefaultWindowSize is the rolling history capacity per metric
const DefaultWindowSize = 1000

type sample struct {
	value float64
	at    time.Time
}

// metricHistory holds capped rolling sample windows keyed by metric name.
// The oldest sample is evicted on overflow.
type metricHistory struct {
	capacity int
	windows  map[string][]sample
	mu       sync.Mutex
}

func newMetricHistory(capacity int) *metricHistory {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &metricHistory{
		capacity: capacity,
		windows:  make(map[string][]sample),
	}
}

// Observe appends a sample for the metric, evicting the oldest at capacity
func (h *metricHistory) Observe(metric string, value float64, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	window := h.windows[metric]
	if len(window) >= h.capacity {
		window = window[1:]
	}
	h.windows[metric] = append(window, sample{value: value, at: at})
}

// Values returns a copy of the metric's sample values, oldest first
func (h *metricHistory) Values(metric string) []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	window := h.windows[metric]
	values := make([]float64, len(window))
	for i, s := range window {
		values[i] = s.value
	}
	return values
}

// Len returns the number of samples held for the metric
func (h *metricHistory) Len(metric string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.windows[metric])
}

// RecentValues returns values observed since the cutoff, oldest first
func (h *metricHistory) RecentValues(metric string, since time.Time) []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	var values []float64
	for _, s := range h.windows[metric] {
		if s.at.After(since) {
			values = append(values, s.value)
		}
	}
	return values
}

// Slope computes a least-squares slope (value units per minute) over the
// samples observed since the cutoff. Returns 0 with fewer than 3 samples.
func (h *metricHistory) Slope(metric string, since time.Time) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	var pts []sample
	for _, s := range h.windows[metric] {
		if s.at.After(since) {
			pts = append(pts, s)
		}
	}
	if len(pts) < 3 {
		return 0
	}

	t0 := pts[0].at
	var sumX, sumY, sumXY, sumXX float64
	for _, p := range pts {
		x := p.at.Sub(t0).Minutes()
		sumX += x
		sumY += p.value
		sumXY += x * p.value
		sumXX += x * x
	}
	n := float64(len(pts))
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// Reset discards all samples for the metric
func (h *metricHistory) Reset(metric string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.windows, metric)
}

// Statistics helpers shared by the evaluators.

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var ss float64
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)))
}

func median(values []float64) float64 {
	return percentile(values, 50)
}

// percentile computes the p-th percentile by linear interpolation between
// the closest ranks of a sorted copy of values.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func minMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// statContext builds the statistical snapshot attached to findings
func statContext(values []float64) *StatContext {
	lo, hi := minMax(values)
	return &StatContext{
		Mean:    mean(values),
		Median:  median(values),
		Stddev:  stddev(values),
		Min:     lo,
		Max:     hi,
		P25:     percentile(values, 25),
		P75:     percentile(values, 75),
		P95:     percentile(values, 95),
		Samples: len(values),
	}
}

// severityBandWidth is the deviation at which confidence saturates
const severityBandWidth = 4.0

// severityForDeviation maps a deviation magnitude to the fixed severity
// bands used by all evaluators, and derives the confidence score.
func severityForDeviation(deviation float64) (AlertSeverity, float64) {
	confidence := math.Min(1, math.Abs(deviation)/severityBandWidth)
	switch {
	case math.Abs(deviation) > 4:
		return SeverityCritical, confidence
	case math.Abs(deviation) > 3:
		return SeverityError, confidence
	case math.Abs(deviation) > 2:
		return SeverityWarning, confidence
	}
	return SeverityInfo, confidence
}

func trendDirection(slope float64) string {
	switch {
	case slope > 0:
		return "increasing"
	case slope < 0:
		return "decreasing"
	}
	return "flat"
}
