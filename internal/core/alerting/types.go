package alerting

import (
	"fmt"
	"hash/fnv"
	"time"
)

// AlertSeverity ranks how urgent an alert is
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityError    AlertSeverity = "error"
	SeverityCritical AlertSeverity = "critical"
)

// Rank returns the ordinal position of a severity, info lowest
func (s AlertSeverity) Rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityWarning:
		return 1
	case SeverityError:
		return 2
	case SeverityCritical:
		return 3
	}
	return -1
}

// Valid reports whether the severity is one of the known values
func (s AlertSeverity) Valid() bool {
	return s.Rank() >= 0
}

// AlertType identifies which part of the pipeline produced an alert
type AlertType string

const (
	AlertTypeThreshold   AlertType = "threshold"
	AlertTypeAnomaly     AlertType = "anomaly"
	AlertTypeManual      AlertType = "manual"
	AlertTypePerformance AlertType = "performance"
	AlertTypeQuality     AlertType = "quality"
	AlertTypeStrategy    AlertType = "strategy"
)

// AlertStatus is the lifecycle state of an alert
type AlertStatus string

const (
	StatusActive       AlertStatus = "active"
	StatusAcknowledged AlertStatus = "acknowledged"
	StatusInProgress   AlertStatus = "in_progress"
	StatusResolved     AlertStatus = "resolved"
	StatusSuppressed   AlertStatus = "suppressed"
	StatusEscalated    AlertStatus = "escalated"
)

// EscalationLevel is the ordinal escalation ladder, independent of severity
type EscalationLevel int

const (
	LevelNone EscalationLevel = iota
	Level1
	Level2
	Level3
	LevelCritical
)

func (l EscalationLevel) String() string {
	switch l {
	case LevelNone:
		return "none"
	case Level1:
		return "level_1"
	case Level2:
		return "level_2"
	case Level3:
		return "level_3"
	case LevelCritical:
		return "critical"
	}
	return fmt.Sprintf("level_%d", int(l))
}

// Comparison is the comparison kind of a threshold rule
type Comparison string

const (
	CompareGreater      Comparison = ">"
	CompareLess         Comparison = "<"
	CompareGreaterEqual Comparison = ">="
	CompareLessEqual    Comparison = "<="
	CompareEqual        Comparison = "=="
	CompareNotEqual     Comparison = "!="
)

// Apply evaluates the comparison against a threshold
func (c Comparison) Apply(value, threshold float64) bool {
	switch c {
	case CompareGreater:
		return value > threshold
	case CompareLess:
		return value < threshold
	case CompareGreaterEqual:
		return value >= threshold
	case CompareLessEqual:
		return value <= threshold
	case CompareEqual:
		return value == threshold
	case CompareNotEqual:
		return value != threshold
	}
	return false
}

// Valid reports whether the comparison is one of the six known kinds
func (c Comparison) Valid() bool {
	switch c {
	case CompareGreater, CompareLess, CompareGreaterEqual, CompareLessEqual, CompareEqual, CompareNotEqual:
		return true
	}
	return false
}

// ThresholdMode controls how a rule's threshold value evolves
type ThresholdMode string

const (
	ThresholdStatic   ThresholdMode = "static"
	ThresholdDynamic  ThresholdMode = "dynamic"
	ThresholdAdaptive ThresholdMode = "adaptive"
)

// AdaptiveMethod selects how an adaptive threshold recomputes itself
type AdaptiveMethod string

const (
	AdaptPercentile AdaptiveMethod = "percentile"
	AdaptStddev     AdaptiveMethod = "stddev"
	AdaptTrend      AdaptiveMethod = "trend"
)

// ThresholdRule is a named rule evaluated by the alert engine on every event
type ThresholdRule struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Metric        string        `json:"metric"`
	Comparison    Comparison    `json:"comparison"`
	Threshold     float64       `json:"threshold"`
	Severity      AlertSeverity `json:"severity"`
	Enabled       bool          `json:"enabled"`
	Cooldown      time.Duration `json:"cooldown"`
	LastTriggered time.Time     `json:"last_triggered"`
	TriggerCount  int64         `json:"trigger_count"`

	Mode             ThresholdMode  `json:"mode,omitempty"`
	AdaptiveMethod   AdaptiveMethod `json:"adaptive_method,omitempty"`
	Percentile       float64        `json:"percentile,omitempty"`
	StddevFactor     float64        `json:"stddev_factor,omitempty"`
	TrendSensitivity float64        `json:"trend_sensitivity,omitempty"`
	LastAdjusted     time.Time      `json:"last_adjusted,omitempty"`
	AdjustReason     string         `json:"adjust_reason,omitempty"`
}

// Validate checks a rule definition at registration time
func (r *ThresholdRule) Validate() []error {
	var errs []error
	if r.ID == "" {
		errs = append(errs, fmt.Errorf("rule id is required"))
	}
	if r.Metric == "" {
		errs = append(errs, fmt.Errorf("rule %s: target metric is required", r.ID))
	}
	if !r.Comparison.Valid() {
		errs = append(errs, fmt.Errorf("rule %s: invalid comparison %q", r.ID, r.Comparison))
	}
	if !r.Severity.Valid() {
		errs = append(errs, fmt.Errorf("rule %s: invalid severity %q", r.ID, r.Severity))
	}
	if r.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("rule %s: cooldown must not be negative", r.ID))
	}
	if r.Mode == ThresholdAdaptive {
		switch r.AdaptiveMethod {
		case AdaptPercentile:
			if r.Percentile <= 0 || r.Percentile >= 100 {
				errs = append(errs, fmt.Errorf("rule %s: percentile must be in (0,100)", r.ID))
			}
		case AdaptStddev:
			if r.StddevFactor <= 0 {
				errs = append(errs, fmt.Errorf("rule %s: stddev factor must be positive", r.ID))
			}
		case AdaptTrend:
		default:
			errs = append(errs, fmt.Errorf("rule %s: invalid adaptive method %q", r.ID, r.AdaptiveMethod))
		}
	}
	return errs
}

// InCooldown reports whether the rule is still inside its cooldown window
func (r *ThresholdRule) InCooldown(now time.Time) bool {
	if r.Cooldown <= 0 || r.LastTriggered.IsZero() {
		return false
	}
	return now.Sub(r.LastTriggered) < r.Cooldown
}

// StatContext carries the statistical snapshot behind a finding
type StatContext struct {
	Mean    float64 `json:"mean"`
	Median  float64 `json:"median"`
	Stddev  float64 `json:"stddev"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	P25     float64 `json:"p25"`
	P75     float64 `json:"p75"`
	P95     float64 `json:"p95"`
	Samples int     `json:"samples"`
}

// TrendContext carries the trend snapshot behind a finding
type TrendContext struct {
	Slope     float64 `json:"slope"`
	Direction string  `json:"direction"`
}

// Finding is the result of one evaluator against one metric sample
type Finding struct {
	Metric     string        `json:"metric"`
	Value      float64       `json:"value"`
	Expected   float64       `json:"expected"`
	Deviation  float64       `json:"deviation"`
	Triggered  bool          `json:"triggered"`
	Severity   AlertSeverity `json:"severity"`
	Confidence float64       `json:"confidence"`
	Algorithm  string        `json:"algorithm,omitempty"`
	Stats      *StatContext  `json:"stats,omitempty"`
	Trend      *TrendContext `json:"trend,omitempty"`
}

// Acknowledgment records one acknowledge call on an alert
type Acknowledgment struct {
	By        string    `json:"by"`
	Notes     string    `json:"notes,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EscalationRecord records one escalation step of an alert
type EscalationRecord struct {
	Level     EscalationLevel `json:"level"`
	By        string          `json:"by"`
	Targets   []string        `json:"targets,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// EscalationRule drives the autonomous escalation sweep
type EscalationRule struct {
	ID         string          `json:"id"`
	Severities []AlertSeverity `json:"severities"`
	After      time.Duration   `json:"after"`
	Level      EscalationLevel `json:"level"`
	Targets    []string        `json:"targets,omitempty"`
	Enabled    bool            `json:"enabled"`
}

// MatchesSeverity reports whether the rule's severity filter includes s
func (r *EscalationRule) MatchesSeverity(s AlertSeverity) bool {
	for _, sev := range r.Severities {
		if sev == s {
			return true
		}
	}
	return false
}

// Alert is one materialized trigger instance
type Alert struct {
	ID            string        `json:"id"`
	Type          AlertType     `json:"type"`
	Severity      AlertSeverity `json:"severity"`
	Status        AlertStatus   `json:"status"`
	Title         string        `json:"title"`
	Message       string        `json:"message"`
	Metric        string        `json:"metric,omitempty"`
	Value         float64       `json:"value"`
	Threshold     float64       `json:"threshold"`
	Source        string        `json:"source,omitempty"`
	RuleID        string        `json:"rule_id,omitempty"`
	Tags          []string      `json:"tags,omitempty"`
	CorrelationID string        `json:"correlation_id,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
	Confidence    float64       `json:"confidence,omitempty"`

	EscalationLevel   EscalationLevel    `json:"escalation_level"`
	Acknowledgments   []Acknowledgment   `json:"acknowledgments,omitempty"`
	Escalations       []EscalationRecord `json:"escalations,omitempty"`
	AcknowledgedAt    *time.Time         `json:"acknowledged_at,omitempty"`
	AcknowledgedBy    string             `json:"acknowledged_by,omitempty"`
	ResolvedAt        *time.Time         `json:"resolved_at,omitempty"`
	ResolvedBy        string             `json:"resolved_by,omitempty"`
	ResolutionMethod  string             `json:"resolution_method,omitempty"`
	ResolutionNotes   string             `json:"resolution_notes,omitempty"`
	ResolutionTime    time.Duration      `json:"resolution_time,omitempty"`
	SuppressedUntil   *time.Time         `json:"suppressed_until,omitempty"`
	SuppressionReason string             `json:"suppression_reason,omitempty"`

	Context map[string]interface{} `json:"context,omitempty"`
}

// AlertID derives a deterministic alert ID so creation is idempotent under
// retry: the same rule (or source), event and timestamp always hash to the
// same ID.
func AlertID(ruleOrSource, eventID string, ts time.Time) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%d", ruleOrSource, eventID, ts.UnixNano())
	return fmt.Sprintf("alert_%016x", h.Sum64())
}
