package alerting

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SystemActor is the actor recorded for autonomous lifecycle transitions
const SystemActor = "system"

// TransitionCallback receives every lifecycle transition an alert makes
type TransitionCallback func(alert *Alert, transition string)

// LifecycleConfig configures the lifecycle manager
type LifecycleConfig struct {
	SweepInterval time.Duration `json:"sweep_interval"`
	MaxHistory    int           `json:"max_history"`
}

// DefaultLifecycleConfig returns lifecycle manager defaults
func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		SweepInterval: time.Minute,
		MaxHistory:    10000,
	}
}

// DefaultEscalationRules returns the stock auto-escalation ladder
func DefaultEscalationRules() []EscalationRule {
	return []EscalationRule{
		{ID: "critical-5m", Severities: []AlertSeverity{SeverityCritical}, After: 5 * time.Minute, Level: Level1, Enabled: true},
		{ID: "critical-15m", Severities: []AlertSeverity{SeverityCritical}, After: 15 * time.Minute, Level: Level2, Enabled: true},
		{ID: "error-15m", Severities: []AlertSeverity{SeverityError}, After: 15 * time.Minute, Level: Level1, Enabled: true},
		{ID: "warning-30m", Severities: []AlertSeverity{SeverityWarning}, After: 30 * time.Minute, Level: Level1, Enabled: true},
	}
}

// LifecycleManager tracks alert state transitions and runs the periodic
// sweep that auto-escalates unattended alerts and reactivates expired
// suppressions.
type LifecycleManager struct {
	config          LifecycleConfig
	alerts          map[string]*Alert
	escalationRules []EscalationRule
	callbacks       []TransitionCallback

	stopChan chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
	logger   *logrus.Logger
}

// NewLifecycleManager creates a lifecycle manager
func NewLifecycleManager(config LifecycleConfig, logger *logrus.Logger) *LifecycleManager {
	if config.SweepInterval <= 0 {
		config.SweepInterval = time.Minute
	}
	if config.MaxHistory <= 0 {
		config.MaxHistory = 10000
	}
	return &LifecycleManager{
		config:          config,
		alerts:          make(map[string]*Alert),
		escalationRules: DefaultEscalationRules(),
		stopChan:        make(chan struct{}),
		logger:          logger,
	}
}

// OnTransition registers a callback invoked for every lifecycle transition
func (lm *LifecycleManager) OnTransition(cb TransitionCallback) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.callbacks = append(lm.callbacks, cb)
}

// SetEscalationRules replaces the auto-escalation ladder
func (lm *LifecycleManager) SetEscalationRules(rules []EscalationRule) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.escalationRules = rules
}

// Track begins managing an alert's lifecycle
func (lm *LifecycleManager) Track(alert *Alert) {
	if alert == nil {
		return
	}
	lm.mu.Lock()
	if alert.Status == "" {
		alert.Status = StatusActive
	}
	lm.alerts[alert.ID] = alert
	lm.evictLocked()
	lm.mu.Unlock()

	lm.fire(alert, "created")
}

// Get returns a tracked alert by ID
func (lm *LifecycleManager) Get(id string) (*Alert, bool) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	alert, ok := lm.alerts[id]
	return alert, ok
}

// List returns tracked alerts, newest first. An empty status matches all.
func (lm *LifecycleManager) List(status AlertStatus) []*Alert {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	var alerts []*Alert
	for _, alert := range lm.alerts {
		if status == "" || alert.Status == status {
			alerts = append(alerts, alert)
		}
	}
	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].Timestamp.After(alerts[j].Timestamp)
	})
	return alerts
}

// Acknowledge marks an alert acknowledged. Acknowledging an already
// acknowledged alert updates the latest acknowledgment in place.
func (lm *LifecycleManager) Acknowledge(id, who, notes string) bool {
	lm.mu.Lock()
	alert, ok := lm.alerts[id]
	if !ok || alert.Status == StatusResolved {
		lm.mu.Unlock()
		return false
	}

	now := time.Now()
	if alert.Status == StatusAcknowledged && len(alert.Acknowledgments) > 0 {
		last := &alert.Acknowledgments[len(alert.Acknowledgments)-1]
		last.By = who
		last.Notes = notes
		last.Timestamp = now
	} else {
		alert.Acknowledgments = append(alert.Acknowledgments, Acknowledgment{
			By:        who,
			Notes:     notes,
			Timestamp: now,
		})
	}
	alert.Status = StatusAcknowledged
	alert.AcknowledgedAt = &now
	alert.AcknowledgedBy = who
	lm.mu.Unlock()

	lm.fire(alert, "acknowledged")
	return true
}

// StartProgress marks an alert as being worked on
func (lm *LifecycleManager) StartProgress(id, who string) bool {
	lm.mu.Lock()
	alert, ok := lm.alerts[id]
	if !ok || alert.Status == StatusResolved {
		lm.mu.Unlock()
		return false
	}
	alert.Status = StatusInProgress
	lm.mu.Unlock()

	lm.fire(alert, "in_progress")
	return true
}

// Resolve closes out an alert. Resolution time is measured from the latest
// acknowledgment, or from creation when the alert was never acknowledged.
// Resolving twice is a no-op.
func (lm *LifecycleManager) Resolve(id, who, method, notes string) bool {
	lm.mu.Lock()
	alert, ok := lm.alerts[id]
	if !ok || alert.Status == StatusResolved {
		lm.mu.Unlock()
		return false
	}

	now := time.Now()
	since := alert.Timestamp
	if n := len(alert.Acknowledgments); n > 0 {
		since = alert.Acknowledgments[n-1].Timestamp
	}
	alert.Status = StatusResolved
	alert.ResolvedAt = &now
	alert.ResolvedBy = who
	alert.ResolutionMethod = method
	alert.ResolutionNotes = notes
	alert.ResolutionTime = now.Sub(since)
	lm.mu.Unlock()

	lm.fire(alert, "resolved")
	return true
}

// Escalate raises an alert's escalation level. Levels only move up.
func (lm *LifecycleManager) Escalate(id string, level EscalationLevel, who string, targets []string, reason string) bool {
	lm.mu.Lock()
	alert, ok := lm.alerts[id]
	if !ok || alert.Status == StatusResolved || level <= alert.EscalationLevel {
		lm.mu.Unlock()
		return false
	}

	alert.EscalationLevel = level
	alert.Status = StatusEscalated
	alert.Escalations = append(alert.Escalations, EscalationRecord{
		Level:     level,
		By:        who,
		Targets:   targets,
		Reason:    reason,
		Timestamp: time.Now(),
	})
	lm.mu.Unlock()

	lm.logger.WithFields(logrus.Fields{
		"alert_id": id,
		"level":    level.String(),
		"by":       who,
	}).Warn("Alert escalated")

	lm.fire(alert, "escalated")
	return true
}

// Suppress silences an alert for the given duration
func (lm *LifecycleManager) Suppress(id string, duration time.Duration, reason string) bool {
	lm.mu.Lock()
	alert, ok := lm.alerts[id]
	if !ok || alert.Status == StatusResolved {
		lm.mu.Unlock()
		return false
	}
	until := time.Now().Add(duration)
	alert.Status = StatusSuppressed
	alert.SuppressedUntil = &until
	alert.SuppressionReason = reason
	lm.mu.Unlock()

	lm.fire(alert, "suppressed")
	return true
}

// Start launches the background sweep loop
func (lm *LifecycleManager) Start(ctx context.Context) {
	go lm.sweepLoop(ctx)
}

// Stop halts the background sweep loop
func (lm *LifecycleManager) Stop() {
	lm.stopOnce.Do(func() {
		close(lm.stopChan)
	})
}

func (lm *LifecycleManager) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(lm.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-lm.stopChan:
			return
		case <-ticker.C:
			lm.Sweep(time.Now())
		}
	}
}

// Sweep runs one pass of autonomous lifecycle maintenance: expired
// suppressions reactivate and unattended alerts climb the escalation
// ladder.
func (lm *LifecycleManager) Sweep(now time.Time) {
	type pending struct {
		alertID string
		rule    EscalationRule
	}
	var due []pending

	lm.mu.Lock()
	rules := lm.escalationRules
	for _, alert := range lm.alerts {
		if alert.Status == StatusResolved {
			continue
		}
		if alert.Status == StatusSuppressed {
			if alert.SuppressedUntil != nil && now.After(*alert.SuppressedUntil) {
				alert.Status = StatusActive
				alert.SuppressedUntil = nil
				alert.SuppressionReason = ""
			} else {
				continue
			}
		}
		for _, rule := range rules {
			if !rule.Enabled || !rule.MatchesSeverity(alert.Severity) {
				continue
			}
			if now.Sub(alert.Timestamp) >= rule.After && alert.EscalationLevel < rule.Level {
				due = append(due, pending{alertID: alert.ID, rule: rule})
			}
		}
	}
	lm.mu.Unlock()

	for _, p := range due {
		lm.Escalate(p.alertID, p.rule.Level, SystemActor, p.rule.Targets, "auto-escalation: unattended past "+p.rule.After.String())
	}
}

// StatusCounts returns the number of tracked alerts per lifecycle status
func (lm *LifecycleManager) StatusCounts() map[AlertStatus]int {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	counts := make(map[AlertStatus]int)
	for _, alert := range lm.alerts {
		counts[alert.Status]++
	}
	return counts
}

// evictLocked drops the oldest resolved alerts beyond the history cap.
// Caller must hold mu.
func (lm *LifecycleManager) evictLocked() {
	if len(lm.alerts) <= lm.config.MaxHistory {
		return
	}
	var resolved []*Alert
	for _, alert := range lm.alerts {
		if alert.Status == StatusResolved {
			resolved = append(resolved, alert)
		}
	}
	sort.Slice(resolved, func(i, j int) bool {
		return resolved[i].Timestamp.Before(resolved[j].Timestamp)
	})
	excess := len(lm.alerts) - lm.config.MaxHistory
	for i := 0; i < excess && i < len(resolved); i++ {
		delete(lm.alerts, resolved[i].ID)
	}
}

func (lm *LifecycleManager) fire(alert *Alert, transition string) {
	lm.mu.Lock()
	callbacks := make([]TransitionCallback, len(lm.callbacks))
	copy(callbacks, lm.callbacks)
	lm.mu.Unlock()

	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					lm.logger.WithField("panic", r).Error("Transition callback panicked")
				}
			}()
			cb(alert, transition)
		}()
	}
}
