package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/scrapewatch/scrapewatch-backend-go/internal/api"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/config"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/alerting"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/monitoring"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/system"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/telemetry"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/database"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/notifications"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/storage"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/websocket"
	"github.com/scrapewatch/scrapewatch-backend-go/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	log.Info("Starting scrapewatch backend")

	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, cfg.Database.MigrationsPath); err != nil {
			log.WithError(err).Fatal("Failed to run migrations")
		}
	}

	backends := []storage.Backend{}
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		backends = append(backends, storage.NewRedisBackend(client))
	}
	backends = append(backends, storage.NewMemoryBackend())
	store := storage.NewManager(log, storage.NewSQLiteBackend(db), backends...)
	defer store.Close()

	monitor := alerting.NewThresholdMonitor(alerting.ThresholdMonitorConfig{
		WindowSize:     cfg.Alerting.Threshold.WindowSize,
		MinSamples:     cfg.Alerting.Threshold.MinSamples,
		AdjustInterval: cfg.Alerting.Threshold.AdjustInterval,
	}, log)
	detector := alerting.NewAnomalyDetector(alerting.AnomalyDetectorConfig{
		WindowSize:       cfg.Alerting.Anomaly.WindowSize,
		MinSamples:       cfg.Alerting.Anomaly.MinSamples,
		Sensitivity:      cfg.Alerting.Anomaly.Sensitivity,
		IQRScale:         cfg.Alerting.Anomaly.IQRScale,
		SmoothingAlpha:   cfg.Alerting.Anomaly.SmoothingAlpha,
		MovingWindow:     cfg.Alerting.Anomaly.MovingWindow,
		DefaultAlgorithm: alerting.AnomalyAlgorithm(cfg.Alerting.Anomaly.DefaultAlgorithm),
	}, log)
	performance := alerting.NewPerformanceEvaluator(alerting.PerformanceEvaluatorConfig{
		WindowSize:        cfg.Alerting.Performance.WindowSize,
		MinSamples:        cfg.Alerting.Performance.MinSamples,
		DegradationFactor: cfg.Alerting.Performance.DegradationFactor,
	}, log)
	quality := alerting.NewQualityMonitor(alerting.QualityMonitorConfig{
		WindowSize: cfg.Alerting.Quality.WindowSize,
		MinSamples: cfg.Alerting.Quality.MinSamples,
		DropRatio:  cfg.Alerting.Quality.DropRatio,
		Floors:     cfg.Alerting.Quality.Floors,
	}, log)
	classifier := alerting.NewSeverityClassifier(alerting.SeverityClassifierConfig{
		WindowSize:    cfg.Alerting.Classifier.WindowSize,
		MinSamples:    cfg.Alerting.Classifier.MinSamples,
		DefaultMethod: alerting.ClassificationMethod(cfg.Alerting.Classifier.DefaultMethod),
	}, log)
	engine := alerting.NewAlertEngine(alerting.AlertEngineConfig{
		DefaultCooldown: cfg.Alerting.DefaultCooldown,
	}, monitor, classifier, log)
	lifecycle := alerting.NewLifecycleManager(alerting.LifecycleConfig{
		SweepInterval: cfg.Alerting.Lifecycle.SweepInterval,
		MaxHistory:    cfg.Alerting.Lifecycle.MaxHistory,
	}, log)
	notifier := notifications.NewNotifier(log)

	if err := loadRules(cfg, engine, classifier, lifecycle, log); err != nil {
		log.WithError(err).Fatal("Failed to load alerting rules")
	}
	if err := loadChannels(cfg, notifier, log); err != nil {
		log.WithError(err).Fatal("Failed to load notification channels")
	}

	metrics := alerting.NewMetrics(prometheus.DefaultRegisterer)

	hub := websocket.NewHub(log)
	go hub.Run()

	service, err := monitoring.NewService(monitoring.ServiceConfig{
		BufferCapacity:       cfg.Buffer.Capacity,
		OverflowPolicy:       telemetry.OverflowPolicy(cfg.Buffer.OverflowPolicy),
		DrainInterval:        cfg.Buffer.DrainInterval,
		DrainBatchSize:       cfg.Buffer.DrainBatchSize,
		MaxConcurrentBatches: cfg.Buffer.MaxConcurrentBatches,
	}, monitoring.Deps{
		Monitor:     monitor,
		Detector:    detector,
		Performance: performance,
		Quality:     quality,
		Classifier:  classifier,
		Engine:      engine,
		Lifecycle:   lifecycle,
		Notifier:    notifier,
		Store:       store,
		Metrics:     metrics,
		Broadcaster: hub,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create monitoring service")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	service.Start(ctx)
	defer service.Stop()

	if cfg.System.SamplerEnabled {
		sampler := system.NewSampler(system.SamplerConfig{
			Interval: cfg.System.SampleInterval,
			Source:   cfg.System.SamplerSource,
		}, service, log)
		sampler.Start(ctx)
		defer sampler.Stop()
	}

	retention := storage.NewRetentionJob(store, cfg.Storage.RetentionDays, cfg.Storage.RetentionSchedule, log)
	if err := retention.Start(); err != nil {
		log.WithError(err).Fatal("Failed to schedule retention job")
	}
	defer retention.Stop()

	router := api.NewRouter(cfg, service, hub, log)
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}
}

func loadRules(cfg *config.Config, engine *alerting.AlertEngine, classifier *alerting.SeverityClassifier, lifecycle *alerting.LifecycleManager, log *logrus.Logger) error {
	rules, err := config.LoadRules(cfg.Alerting.RulesPath)
	if err != nil {
		return err
	}
	for i := range rules.Thresholds {
		rule := rules.Thresholds[i]
		if err := engine.AddRule(&rule); err != nil {
			log.Warnf("Skipping threshold rule %s: %v", rule.ID, err)
		}
	}
	for _, rule := range rules.Severities {
		if err := classifier.AddRule(rule); err != nil {
			log.Warnf("Skipping severity rule on %s: %v", rule.Metric, err)
		}
	}
	if len(rules.Escalations) > 0 {
		lifecycle.SetEscalationRules(rules.Escalations)
	}
	return nil
}

func loadChannels(cfg *config.Config, notifier *notifications.Notifier, log *logrus.Logger) error {
	channels, err := config.LoadChannels(cfg.Notifications.ChannelsPath)
	if err != nil {
		return err
	}
	for i := range channels.Templates {
		tpl := channels.Templates[i]
		if err := notifier.AddTemplate(&tpl); err != nil {
			log.Warnf("Skipping template %s: %v", tpl.ID, err)
		}
	}
	for i := range channels.Channels {
		channel := channels.Channels[i]
		if err := notifier.AddChannel(&channel); err != nil {
			log.Warnf("Skipping channel %s: %v", channel.ID, err)
		}
	}
	return nil
}
