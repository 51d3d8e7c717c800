package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/alerting"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/telemetry"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/notifications"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/storage"
)

// Broadcaster pushes alert lifecycle updates to connected clients. The
// websocket hub satisfies this; a nil broadcaster disables pushes.
type Broadcaster interface {
	BroadcastAlert(alert *alerting.Alert, transition string)
}

// ServiceConfig configures the monitoring service
type ServiceConfig struct {
	BufferCapacity       int                      `json:"buffer_capacity"`
	OverflowPolicy       telemetry.OverflowPolicy `json:"overflow_policy"`
	DrainInterval        time.Duration            `json:"drain_interval"`
	DrainBatchSize       int                      `json:"drain_batch_size"`
	MaxConcurrentBatches int                      `json:"max_concurrent_batches"`
}

// DefaultServiceConfig returns monitoring service defaults
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		BufferCapacity:       10000,
		OverflowPolicy:       telemetry.OverflowDropOldest,
		DrainInterval:        time.Second,
		DrainBatchSize:       100,
		MaxConcurrentBatches: 4,
	}
}

// ServiceStatistics aggregates the counters of every pipeline stage
type ServiceStatistics struct {
	Buffer        telemetry.BufferStats                 `json:"buffer"`
	Processor     telemetry.ProcessorStats              `json:"processor"`
	Alerts        alerting.AlertStatistics              `json:"alerts"`
	Lifecycle     map[alerting.AlertStatus]int          `json:"lifecycle"`
	Notifications map[string]notifications.ChannelStats `json:"notifications"`
	Storage       storage.ManagerStats                  `json:"storage"`
}

// Service is the monitoring façade: it ingests scraper telemetry, runs the
// full evaluation pipeline, tracks alert lifecycles, persists results and
// delivers notifications. Storage failures degrade to logging; they never
// stop evaluation.
type Service struct {
	config ServiceConfig

	buffer      *telemetry.EventBuffer
	processor   *telemetry.BatchProcessor
	extractor   *telemetry.MetricExtractor
	monitor     *alerting.ThresholdMonitor
	detector    *alerting.AnomalyDetector
	performance *alerting.PerformanceEvaluator
	quality     *alerting.QualityMonitor
	classifier  *alerting.SeverityClassifier
	engine      *alerting.AlertEngine
	lifecycle   *alerting.LifecycleManager
	notifier    *notifications.Notifier
	store       *storage.Manager
	metrics     *alerting.Metrics
	broadcaster Broadcaster

	sem      chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *logrus.Logger
}

// Deps carries the collaborators the service wires together. Metrics,
// Store and Broadcaster are optional.
type Deps struct {
	Monitor     *alerting.ThresholdMonitor
	Detector    *alerting.AnomalyDetector
	Performance *alerting.PerformanceEvaluator
	Quality     *alerting.QualityMonitor
	Classifier  *alerting.SeverityClassifier
	Engine      *alerting.AlertEngine
	Lifecycle   *alerting.LifecycleManager
	Notifier    *notifications.Notifier
	Store       *storage.Manager
	Metrics     *alerting.Metrics
	Broadcaster Broadcaster
}

// NewService creates the monitoring service and wires the alert flow:
// generated alerts enter lifecycle tracking and lifecycle transitions fan
// out to the broadcaster.
func NewService(config ServiceConfig, deps Deps, logger *logrus.Logger) (*Service, error) {
	if config.BufferCapacity <= 0 {
		config.BufferCapacity = 10000
	}
	if config.OverflowPolicy == "" {
		config.OverflowPolicy = telemetry.OverflowDropOldest
	}
	if config.DrainInterval <= 0 {
		config.DrainInterval = time.Second
	}
	if config.DrainBatchSize <= 0 {
		config.DrainBatchSize = 100
	}
	if config.MaxConcurrentBatches <= 0 {
		config.MaxConcurrentBatches = 4
	}

	buffer, err := telemetry.NewEventBuffer(config.BufferCapacity, config.OverflowPolicy, logger)
	if err != nil {
		return nil, fmt.Errorf("create event buffer: %w", err)
	}

	s := &Service{
		config:      config,
		buffer:      buffer,
		processor:   telemetry.NewBatchProcessor(config.DrainBatchSize, logger),
		extractor:   telemetry.NewMetricExtractor(),
		monitor:     deps.Monitor,
		detector:    deps.Detector,
		performance: deps.Performance,
		quality:     deps.Quality,
		classifier:  deps.Classifier,
		engine:      deps.Engine,
		lifecycle:   deps.Lifecycle,
		notifier:    deps.Notifier,
		store:       deps.Store,
		metrics:     deps.Metrics,
		broadcaster: deps.Broadcaster,
		sem:         make(chan struct{}, config.MaxConcurrentBatches),
		stopChan:    make(chan struct{}),
		logger:      logger,
	}

	s.engine.OnGenerate(func(alert *alerting.Alert) {
		s.lifecycle.Track(alert)
		if s.metrics != nil {
			s.metrics.AlertsGenerated.WithLabelValues(string(alert.Type), string(alert.Severity)).Inc()
		}
	})
	s.lifecycle.OnTransition(func(alert *alerting.Alert, transition string) {
		if s.broadcaster != nil {
			s.broadcaster.BroadcastAlert(alert, transition)
		}
	})
	return s, nil
}

// Start launches the drain loop and the lifecycle sweep
func (s *Service) Start(ctx context.Context) {
	s.lifecycle.Start(ctx)
	s.wg.Add(1)
	go s.drainLoop(ctx)
	s.logger.Info("Monitoring service started")
}

// Stop halts the drain loop, flushes the buffer and stops the sweep
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
	s.buffer.Close()
	s.lifecycle.Stop()
	s.logger.Info("Monitoring service stopped")
}

// Ingest offers a telemetry event to the buffer. The return value reports
// whether the buffer accepted it.
func (s *Service) Ingest(event *telemetry.TelemetryEvent) bool {
	accepted := s.buffer.Add(event)
	if s.metrics != nil {
		s.metrics.BufferSize.Set(float64(s.buffer.Size()))
	}
	return accepted
}

func (s *Service) drainLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flush(context.Background())
			return
		case <-s.stopChan:
			s.flush(context.Background())
			return
		case <-ticker.C:
			batch := s.buffer.Drain(s.config.DrainBatchSize)
			if len(batch) > 0 {
				s.dispatchBatch(ctx, batch)
			}
		}
	}
}

// flush drains whatever is left in the buffer synchronously
func (s *Service) flush(ctx context.Context) {
	for {
		batch := s.buffer.Drain(s.config.DrainBatchSize)
		if len(batch) == 0 {
			return
		}
		s.ProcessBatch(ctx, batch)
	}
}

// dispatchBatch processes a batch on its own goroutine, bounded by the
// concurrency semaphore.
func (s *Service) dispatchBatch(ctx context.Context, batch []*telemetry.TelemetryEvent) {
	s.sem <- struct{}{}
	s.wg.Add(1)
	go func() {
		defer func() {
			<-s.sem
			s.wg.Done()
		}()
		s.ProcessBatch(ctx, batch)
	}()
}

// ProcessBatch validates a batch and evaluates every surviving event
func (s *Service) ProcessBatch(ctx context.Context, batch []*telemetry.TelemetryEvent) []*alerting.Alert {
	result := s.processor.Process(batch)
	if s.metrics != nil {
		s.metrics.EventsRejected.Add(float64(len(result.Errors)))
	}
	for _, evErr := range result.Errors {
		s.logger.WithFields(logrus.Fields{
			"event_id": evErr.EventID,
			"index":    evErr.Index,
			"reason":   evErr.Reason,
		}).Debug("Rejected telemetry event")
	}

	var alerts []*alerting.Alert
	for _, event := range result.Events {
		alerts = append(alerts, s.ProcessEvent(ctx, event)...)
	}
	return alerts
}

// ProcessEvent runs one event through extraction, threshold rules, anomaly
// detection and the group evaluators, returning any alerts generated.
func (s *Service) ProcessEvent(ctx context.Context, event *telemetry.TelemetryEvent) []*alerting.Alert {
	started := time.Now()
	metrics := s.extractor.Extract(event)
	now := event.Timestamp
	if now.IsZero() {
		now = started
	}

	for name, value := range metrics {
		s.monitor.Observe(name, value, now)
		s.classifier.Observe(name, value, now)
	}

	alerts := s.engine.HandleEvent(event, metrics, now)
	alerts = append(alerts, s.DetectAnomalies(event, metrics, now)...)
	alerts = append(alerts, s.evaluateGroups(event, now)...)

	if s.store != nil {
		if err := s.store.StoreEvent(ctx, event); err != nil {
			s.logger.WithError(err).WithField("event_id", event.ID).Error("Failed to persist telemetry event")
		}
		for _, alert := range alerts {
			if err := s.store.StoreAlert(ctx, alert); err != nil {
				s.logger.WithError(err).WithField("alert_id", alert.ID).Error("Failed to persist alert")
			}
		}
	}

	for _, alert := range alerts {
		s.deliver(ctx, alert)
	}

	if s.metrics != nil {
		s.metrics.EventsProcessed.Inc()
		s.metrics.EvaluationLatency.Observe(time.Since(started).Seconds())
		s.metrics.BufferSize.Set(float64(s.buffer.Size()))
	}
	return alerts
}

// DetectAnomalies runs the anomaly detector over every extracted metric
func (s *Service) DetectAnomalies(event *telemetry.TelemetryEvent, metrics map[string]float64, now time.Time) []*alerting.Alert {
	var alerts []*alerting.Alert
	for name, value := range metrics {
		finding := s.detector.Detect(name, value, now)
		if finding == nil || !finding.Triggered {
			continue
		}
		alerts = append(alerts, s.engine.CreateFromFinding(alerting.AlertTypeAnomaly, finding, event, now))
	}
	return alerts
}

// evaluateGroups routes performance metrics to the performance evaluator
// and quality metrics to the quality monitor.
func (s *Service) evaluateGroups(event *telemetry.TelemetryEvent, now time.Time) []*alerting.Alert {
	var alerts []*alerting.Alert

	for name, value := range s.extractor.ExtractGroup(event, telemetry.GroupPerformance) {
		finding := s.performance.Evaluate(name, value, now)
		if finding == nil || !finding.Triggered {
			continue
		}
		alerts = append(alerts, s.engine.CreateFromFinding(alerting.AlertTypePerformance, finding, event, now))
	}

	for name, value := range s.extractor.ExtractGroup(event, telemetry.GroupQuality) {
		finding := s.quality.Evaluate(name, value, now)
		if finding == nil || !finding.Triggered {
			continue
		}
		alerts = append(alerts, s.engine.CreateFromFinding(alerting.AlertTypeQuality, finding, event, now))
	}
	return alerts
}

// EvaluateThreshold performs a one-off threshold check outside the rule set
func (s *Service) EvaluateThreshold(ctx context.Context, metric string, value float64, cmp alerting.Comparison, threshold float64, severity alerting.AlertSeverity, source string) *alerting.Alert {
	alert := s.engine.EvaluateThreshold(metric, value, cmp, threshold, severity, source, time.Now())
	if alert == nil {
		return nil
	}
	if s.store != nil {
		if err := s.store.StoreAlert(ctx, alert); err != nil {
			s.logger.WithError(err).WithField("alert_id", alert.ID).Error("Failed to persist alert")
		}
	}
	s.deliver(ctx, alert)
	return alert
}

// CreateManualAlert raises an operator alert through the full pipeline
func (s *Service) CreateManualAlert(ctx context.Context, title, message string, severity alerting.AlertSeverity, source string, tags []string) *alerting.Alert {
	alert := s.engine.CreateManualAlert(title, message, severity, source, tags, time.Now())
	if s.store != nil {
		if err := s.store.StoreAlert(ctx, alert); err != nil {
			s.logger.WithError(err).WithField("alert_id", alert.ID).Error("Failed to persist alert")
		}
	}
	s.deliver(ctx, alert)
	return alert
}

func (s *Service) deliver(ctx context.Context, alert *alerting.Alert) {
	results := s.notifier.Send(ctx, alert, nil, "")
	if s.metrics == nil {
		return
	}
	kinds := make(map[string]notifications.ChannelKind)
	for _, c := range s.notifier.Channels() {
		kinds[c.ID] = c.Kind
	}
	for _, r := range results {
		s.metrics.Notifications.WithLabelValues(string(kinds[r.ChannelID]), string(r.Status)).Inc()
	}
}

// SendNotifications delivers an already tracked alert to specific channels
func (s *Service) SendNotifications(ctx context.Context, alertID string, channelIDs []string, templateID string) ([]notifications.NotificationResult, error) {
	alert, ok := s.lifecycle.Get(alertID)
	if !ok {
		return nil, fmt.Errorf("unknown alert %s", alertID)
	}
	return s.notifier.Send(ctx, alert, channelIDs, templateID), nil
}

// Acknowledge marks a tracked alert acknowledged
func (s *Service) Acknowledge(id, who, notes string) bool {
	return s.lifecycle.Acknowledge(id, who, notes)
}

// Resolve closes out a tracked alert
func (s *Service) Resolve(ctx context.Context, id, who, method, notes string) bool {
	if !s.lifecycle.Resolve(id, who, method, notes) {
		return false
	}
	if alert, ok := s.lifecycle.Get(id); ok && s.store != nil {
		if err := s.store.StoreAlert(ctx, alert); err != nil {
			s.logger.WithError(err).WithField("alert_id", id).Error("Failed to persist resolved alert")
		}
	}
	return true
}

// Escalate raises a tracked alert's escalation level
func (s *Service) Escalate(id string, level alerting.EscalationLevel, who string, targets []string, reason string) bool {
	return s.lifecycle.Escalate(id, level, who, targets, reason)
}

// Suppress silences a tracked alert for the given duration
func (s *Service) Suppress(id string, duration time.Duration, reason string) bool {
	return s.lifecycle.Suppress(id, duration, reason)
}

// Alerts lists tracked alerts, optionally filtered by lifecycle status
func (s *Service) Alerts(status alerting.AlertStatus) []*alerting.Alert {
	return s.lifecycle.List(status)
}

// Alert returns one tracked alert
func (s *Service) Alert(id string) (*alerting.Alert, bool) {
	return s.lifecycle.Get(id)
}

// Engine exposes the alert engine for rule administration
func (s *Service) Engine() *alerting.AlertEngine {
	return s.engine
}

// Notifier exposes the notifier for channel administration
func (s *Service) Notifier() *notifications.Notifier {
	return s.notifier
}

// GetStatistics aggregates counters from every pipeline stage
func (s *Service) GetStatistics() ServiceStatistics {
	stats := ServiceStatistics{
		Buffer:        s.buffer.Stats(),
		Processor:     s.processor.Stats(),
		Alerts:        s.engine.Statistics(),
		Lifecycle:     s.lifecycle.StatusCounts(),
		Notifications: s.notifier.Statistics(),
	}
	if s.store != nil {
		stats.Storage = s.store.Stats()
	}
	return stats
}
