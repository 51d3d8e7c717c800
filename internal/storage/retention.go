package storage

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// RetentionJob prunes aged telemetry and resolved alerts on a cron schedule
type RetentionJob struct {
	manager  *Manager
	maxAge   time.Duration
	schedule string
	cron     *cron.Cron
	logger   *logrus.Logger
}

// NewRetentionJob creates a retention job. Schedule is a standard cron
// expression; retentionDays bounds how far back records are kept.
func NewRetentionJob(manager *Manager, retentionDays int, schedule string, logger *logrus.Logger) *RetentionJob {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	if schedule == "" {
		schedule = "0 3 * * *"
	}
	return &RetentionJob{
		manager:  manager,
		maxAge:   time.Duration(retentionDays) * 24 * time.Hour,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start schedules and launches the retention job
func (j *RetentionJob) Start() error {
	_, err := j.cron.AddFunc(j.schedule, j.Run)
	if err != nil {
		return err
	}
	j.cron.Start()
	j.logger.WithFields(logrus.Fields{
		"schedule": j.schedule,
		"max_age":  j.maxAge.String(),
	}).Info("Retention job scheduled")
	return nil
}

// Stop halts the retention schedule, waiting for a running pass to finish
func (j *RetentionJob) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

// Run executes one retention pass immediately
func (j *RetentionJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	deleted, err := j.manager.ApplyRetentionPolicy(ctx, j.maxAge)
	if err != nil {
		j.logger.WithError(err).Error("Retention pass failed")
		return
	}
	j.logger.WithField("deleted", deleted).Info("Retention pass completed")
}
