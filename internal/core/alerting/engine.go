package alerting

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/telemetry"
)

// GenerationCallback receives every alert the engine materializes
type GenerationCallback func(*Alert)

// AlertStatistics is an aggregate snapshot of generated alerts
type AlertStatistics struct {
	Total              int64                   `json:"total"`
	ByType             map[AlertType]int64     `json:"by_type"`
	BySeverity         map[AlertSeverity]int64 `json:"by_severity"`
	ByStatus           map[AlertStatus]int64   `json:"by_status,omitempty"`
	MostCommonType     AlertType               `json:"most_common_type,omitempty"`
	MostCommonSeverity AlertSeverity           `json:"most_common_severity,omitempty"`
	LastAlertAt        *time.Time              `json:"last_alert_at,omitempty"`
}

// AlertEngineConfig configures the alert engine
type AlertEngineConfig struct {
	DefaultCooldown time.Duration `json:"default_cooldown"`
}

// DefaultAlertEngineConfig returns alert engine defaults
func DefaultAlertEngineConfig() AlertEngineConfig {
	return AlertEngineConfig{DefaultCooldown: 5 * time.Minute}
}

// AlertEngine owns the threshold rule set and turns evaluator findings into
// alerts, consulting the severity classifier before each one materializes.
type AlertEngine struct {
	config     AlertEngineConfig
	monitor    *ThresholdMonitor
	classifier *SeverityClassifier

	rules     map[string]*ThresholdRule
	callbacks []GenerationCallback

	countsByType     map[AlertType]int64
	countsBySeverity map[AlertSeverity]int64
	total            int64
	lastAlertAt      time.Time

	mu     sync.RWMutex
	logger *logrus.Logger
}

// NewAlertEngine creates an alert engine
func NewAlertEngine(config AlertEngineConfig, monitor *ThresholdMonitor, classifier *SeverityClassifier, logger *logrus.Logger) *AlertEngine {
	if config.DefaultCooldown <= 0 {
		config.DefaultCooldown = 5 * time.Minute
	}
	return &AlertEngine{
		config:           config,
		monitor:          monitor,
		classifier:       classifier,
		rules:            make(map[string]*ThresholdRule),
		countsByType:     make(map[AlertType]int64),
		countsBySeverity: make(map[AlertSeverity]int64),
		logger:           logger,
	}
}

// AddRule validates and registers a threshold rule. Rules without a
// cooldown get the engine default; rules without a mode are static.
func (ae *AlertEngine) AddRule(rule *ThresholdRule) error {
	if errs := rule.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return fmt.Errorf("invalid threshold rule: %s", strings.Join(msgs, "; "))
	}
	if rule.Cooldown == 0 {
		rule.Cooldown = ae.config.DefaultCooldown
	}
	if rule.Mode == "" {
		rule.Mode = ThresholdStatic
	}

	ae.mu.Lock()
	defer ae.mu.Unlock()
	ae.rules[rule.ID] = rule
	ae.logger.WithFields(logrus.Fields{
		"rule_id":  rule.ID,
		"metric":   rule.Metric,
		"severity": rule.Severity,
	}).Info("Registered threshold rule")
	return nil
}

// RemoveRule unregisters a rule, reporting whether it existed
func (ae *AlertEngine) RemoveRule(id string) bool {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	if _, ok := ae.rules[id]; !ok {
		return false
	}
	delete(ae.rules, id)
	return true
}

// Rule returns the rule with the given ID, if registered
func (ae *AlertEngine) Rule(id string) (*ThresholdRule, bool) {
	ae.mu.RLock()
	defer ae.mu.RUnlock()
	rule, ok := ae.rules[id]
	return rule, ok
}

// Rules returns all registered rules
func (ae *AlertEngine) Rules() []*ThresholdRule {
	ae.mu.RLock()
	defer ae.mu.RUnlock()
	rules := make([]*ThresholdRule, 0, len(ae.rules))
	for _, rule := range ae.rules {
		rules = append(rules, rule)
	}
	return rules
}

// SetRuleEnabled toggles a rule, reporting whether it existed
func (ae *AlertEngine) SetRuleEnabled(id string, enabled bool) bool {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	rule, ok := ae.rules[id]
	if !ok {
		return false
	}
	rule.Enabled = enabled
	return true
}

// OnGenerate registers a callback invoked for every materialized alert
func (ae *AlertEngine) OnGenerate(cb GenerationCallback) {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	ae.callbacks = append(ae.callbacks, cb)
}

// HandleEvent evaluates all enabled rules against an event's extracted
// metrics and returns any alerts generated.
func (ae *AlertEngine) HandleEvent(event *telemetry.TelemetryEvent, metrics map[string]float64, now time.Time) []*Alert {
	ae.mu.RLock()
	rules := make([]*ThresholdRule, 0, len(ae.rules))
	for _, rule := range ae.rules {
		if rule.Enabled {
			rules = append(rules, rule)
		}
	}
	ae.mu.RUnlock()

	var alerts []*Alert
	for _, rule := range rules {
		value, ok := metrics[rule.Metric]
		if !ok {
			continue
		}

		ae.mu.Lock()
		if rule.InCooldown(now) {
			ae.mu.Unlock()
			continue
		}
		finding := ae.monitor.Evaluate(rule, value, now)
		if !finding.Triggered {
			ae.mu.Unlock()
			continue
		}
		if now.After(rule.LastTriggered) {
			rule.LastTriggered = now
		}
		rule.TriggerCount++
		ae.mu.Unlock()

		alerts = append(alerts, ae.materialize(rule, finding, event, now))
	}
	return alerts
}

// EvaluateThreshold performs a one-off comparison outside the rule set,
// returning an alert only when the comparison holds.
func (ae *AlertEngine) EvaluateThreshold(metric string, value float64, cmp Comparison, threshold float64, severity AlertSeverity, source string, now time.Time) *Alert {
	if !cmp.Apply(value, threshold) {
		return nil
	}
	rule := &ThresholdRule{
		ID:         "adhoc_" + metric,
		Name:       "Ad-hoc threshold on " + metric,
		Metric:     metric,
		Comparison: cmp,
		Threshold:  threshold,
		Severity:   severity,
	}
	finding := &Finding{
		Metric:     metric,
		Value:      value,
		Expected:   threshold,
		Deviation:  exceedanceRatio(cmp, value, threshold),
		Triggered:  true,
		Severity:   severity,
		Confidence: 1,
	}
	event := &telemetry.TelemetryEvent{Source: source, Timestamp: now}
	return ae.materialize(rule, finding, event, now)
}

// CreateManualAlert records an operator-raised alert
func (ae *AlertEngine) CreateManualAlert(title, message string, severity AlertSeverity, source string, tags []string, now time.Time) *Alert {
	alert := &Alert{
		ID:        AlertID("manual:"+source, title, now),
		Type:      AlertTypeManual,
		Severity:  severity,
		Status:    StatusActive,
		Title:     title,
		Message:   message,
		Source:    source,
		Tags:      tags,
		Timestamp: now,
	}
	ae.record(alert)
	ae.notify(alert)
	return alert
}

// CreateFromFinding turns an evaluator finding into an alert of the given
// type, letting the classifier raise the severity when it is more certain.
func (ae *AlertEngine) CreateFromFinding(alertType AlertType, finding *Finding, event *telemetry.TelemetryEvent, now time.Time) *Alert {
	severity := finding.Severity
	confidence := finding.Confidence
	cls := ae.classifier.Classify(finding.Metric, finding.Value, "")
	if cls.Confidence > 0 && cls.Severity.Rank() > severity.Rank() {
		severity = cls.Severity
	}
	if cls.Confidence > confidence {
		confidence = cls.Confidence
	}

	alert := &Alert{
		ID:            AlertID(string(alertType)+":"+finding.Metric, event.ID, now),
		Type:          alertType,
		Severity:      severity,
		Status:        StatusActive,
		Title:         fmt.Sprintf("%s alert on %s", alertType, finding.Metric),
		Message:       fmt.Sprintf("metric %s at %.2f deviates from expected %.2f", finding.Metric, finding.Value, finding.Expected),
		Metric:        finding.Metric,
		Value:         finding.Value,
		Threshold:     finding.Expected,
		Source:        event.Source,
		CorrelationID: event.CorrelationID,
		Timestamp:     now,
		Confidence:    confidence,
		Context:       findingContext(finding, cls.Reasoning),
	}
	ae.record(alert)
	ae.notify(alert)
	return alert
}

func (ae *AlertEngine) materialize(rule *ThresholdRule, finding *Finding, event *telemetry.TelemetryEvent, now time.Time) *Alert {
	severity := rule.Severity
	confidence := finding.Confidence
	cls := ae.classifier.Classify(rule.Metric, finding.Value, "")
	if cls.Confidence > 0 && cls.Severity.Rank() > severity.Rank() {
		severity = cls.Severity
	}
	if cls.Confidence > confidence {
		confidence = cls.Confidence
	}

	alert := &Alert{
		ID:            AlertID(rule.ID, event.ID, now),
		Type:          AlertTypeThreshold,
		Severity:      severity,
		Status:        StatusActive,
		Title:         fmt.Sprintf("%s: %s %s %.2f", rule.Name, rule.Metric, rule.Comparison, rule.Threshold),
		Message:       fmt.Sprintf("metric %s at %.2f crossed threshold %.2f", rule.Metric, finding.Value, rule.Threshold),
		Metric:        rule.Metric,
		Value:         finding.Value,
		Threshold:     rule.Threshold,
		Source:        event.Source,
		RuleID:        rule.ID,
		CorrelationID: event.CorrelationID,
		Timestamp:     now,
		Confidence:    confidence,
		Context:       findingContext(finding, cls.Reasoning),
	}

	ae.logger.WithFields(logrus.Fields{
		"alert_id": alert.ID,
		"rule_id":  rule.ID,
		"metric":   rule.Metric,
		"value":    finding.Value,
		"severity": severity,
	}).Warn("Threshold alert generated")

	ae.record(alert)
	ae.notify(alert)
	return alert
}

func (ae *AlertEngine) record(alert *Alert) {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	ae.total++
	ae.countsByType[alert.Type]++
	ae.countsBySeverity[alert.Severity]++
	ae.lastAlertAt = alert.Timestamp
}

func (ae *AlertEngine) notify(alert *Alert) {
	ae.mu.RLock()
	callbacks := make([]GenerationCallback, len(ae.callbacks))
	copy(callbacks, ae.callbacks)
	ae.mu.RUnlock()

	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					ae.logger.WithField("panic", r).Error("Alert callback panicked")
				}
			}()
			cb(alert)
		}()
	}
}

// Statistics returns an aggregate snapshot of generated alerts
func (ae *AlertEngine) Statistics() AlertStatistics {
	ae.mu.RLock()
	defer ae.mu.RUnlock()

	stats := AlertStatistics{
		Total:      ae.total,
		ByType:     make(map[AlertType]int64, len(ae.countsByType)),
		BySeverity: make(map[AlertSeverity]int64, len(ae.countsBySeverity)),
	}
	var topType int64
	for t, n := range ae.countsByType {
		stats.ByType[t] = n
		if n > topType {
			topType = n
			stats.MostCommonType = t
		}
	}
	var topSev int64
	for s, n := range ae.countsBySeverity {
		stats.BySeverity[s] = n
		if n > topSev {
			topSev = n
			stats.MostCommonSeverity = s
		}
	}
	if !ae.lastAlertAt.IsZero() {
		at := ae.lastAlertAt
		stats.LastAlertAt = &at
	}
	return stats
}

func findingContext(finding *Finding, reasoning string) map[string]interface{} {
	ctx := map[string]interface{}{
		"deviation": finding.Deviation,
	}
	if finding.Algorithm != "" {
		ctx["algorithm"] = finding.Algorithm
	}
	if finding.Stats != nil {
		ctx["stats"] = finding.Stats
	}
	if finding.Trend != nil {
		ctx["trend"] = finding.Trend
	}
	if reasoning != "" {
		ctx["classification"] = reasoning
	}
	return ctx
}
