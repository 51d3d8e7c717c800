package system

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"

	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/telemetry"
)

// Ingestor accepts telemetry events; the monitoring service satisfies this
type Ingestor interface {
	Ingest(event *telemetry.TelemetryEvent) bool
}

// SamplerConfig configures the host sampler
type SamplerConfig struct {
	Interval time.Duration `json:"interval"`
	Source   string        `json:"source"`
}

// DefaultSamplerConfig returns host sampler defaults
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		Interval: 30 * time.Second,
		Source:   "scrapewatch-host",
	}
}

// Sampler periodically turns host CPU, memory and load readings into
// telemetry events so the scraping fleet's own host is monitored by the
// same pipeline as the scrapers.
type Sampler struct {
	config   SamplerConfig
	ingestor Ingestor
	stopChan chan struct{}
	stopOnce sync.Once
	logger   *logrus.Logger
}

// NewSampler creates a host sampler
func NewSampler(config SamplerConfig, ingestor Ingestor, logger *logrus.Logger) *Sampler {
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if config.Source == "" {
		config.Source = "scrapewatch-host"
	}
	return &Sampler{
		config:   config,
		ingestor: ingestor,
		stopChan: make(chan struct{}),
		logger:   logger,
	}
}

// Start launches the sampling loop
func (s *Sampler) Start(ctx context.Context) {
	go s.loop(ctx)
	s.logger.WithField("interval", s.config.Interval.String()).Info("Host sampler started")
}

// Stop halts the sampling loop
func (s *Sampler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

func (s *Sampler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sample(ctx)
		}
	}
}

func (s *Sampler) sample(ctx context.Context) {
	event := telemetry.NewEvent(s.config.Source)

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		event.SetMetric(telemetry.GroupPerformance, "host_cpu_percent", percents[0])
	} else if err != nil {
		s.logger.WithError(err).Debug("Failed to sample CPU usage")
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		event.SetMetric(telemetry.GroupPerformance, "host_memory_percent", vm.UsedPercent)
	} else {
		s.logger.WithError(err).Debug("Failed to sample memory usage")
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		event.SetMetric(telemetry.GroupPerformance, "host_load_1m", avg.Load1)
	} else {
		s.logger.WithError(err).Debug("Failed to sample load average")
	}

	if !s.ingestor.Ingest(event) {
		s.logger.Warn("Buffer rejected host telemetry sample")
	}
}
