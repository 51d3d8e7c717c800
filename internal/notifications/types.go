package notifications

import (
	"fmt"
	"strings"
	"time"

	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/alerting"
)

// ChannelKind identifies the delivery transport of a channel
type ChannelKind string

const (
	KindConsole ChannelKind = "console"
	KindLog     ChannelKind = "log"
	KindEmail   ChannelKind = "email"
	KindWebhook ChannelKind = "webhook"
	KindSlack   ChannelKind = "slack"
)

// Valid reports whether the kind is one of the known transports
func (k ChannelKind) Valid() bool {
	switch k {
	case KindConsole, KindLog, KindEmail, KindWebhook, KindSlack:
		return true
	}
	return false
}

// DeliveryStatus is the outcome of one delivery attempt chain
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusFailed    DeliveryStatus = "failed"
	StatusCancelled DeliveryStatus = "cancelled"
)

// RetryPolicy controls delivery retries per channel
type RetryPolicy struct {
	MaxAttempts   int           `json:"max_attempts"`
	InitialDelay  time.Duration `json:"initial_delay"`
	BackoffFactor float64       `json:"backoff_factor"`
}

// DefaultRetryPolicy returns the default delivery retry policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  time.Second,
		BackoffFactor: 2.0,
	}
}

// Channel is one configured notification destination
type Channel struct {
	ID               string                   `json:"id"`
	Name             string                   `json:"name"`
	Kind             ChannelKind              `json:"kind"`
	Enabled          bool                     `json:"enabled"`
	Severities       []alerting.AlertSeverity `json:"severities"`
	RateLimitPerHour int                      `json:"rate_limit_per_hour"`
	Retry            RetryPolicy              `json:"retry"`
	TemplateID       string                   `json:"template_id,omitempty"`
	Config           map[string]string        `json:"config,omitempty"`
}

// Accepts reports whether the channel's severity filter includes s
func (c *Channel) Accepts(s alerting.AlertSeverity) bool {
	if len(c.Severities) == 0 {
		return true
	}
	for _, sev := range c.Severities {
		if sev == s {
			return true
		}
	}
	return false
}

// Validate checks a channel definition at registration time
func (c *Channel) Validate() []error {
	var errs []error
	if c.ID == "" {
		errs = append(errs, fmt.Errorf("channel id is required"))
	}
	if !c.Kind.Valid() {
		errs = append(errs, fmt.Errorf("channel %s: unknown kind %q", c.ID, c.Kind))
	}
	if c.RateLimitPerHour < 0 {
		errs = append(errs, fmt.Errorf("channel %s: rate limit must not be negative", c.ID))
	}
	for _, sev := range c.Severities {
		if !sev.Valid() {
			errs = append(errs, fmt.Errorf("channel %s: invalid severity %q in filter", c.ID, sev))
		}
	}
	switch c.Kind {
	case KindWebhook, KindSlack:
		if c.Config["url"] == "" {
			errs = append(errs, fmt.Errorf("channel %s: %s channels require config.url", c.ID, c.Kind))
		}
	case KindEmail:
		for _, key := range []string{"smtp_host", "smtp_port", "from", "to"} {
			if c.Config[key] == "" {
				errs = append(errs, fmt.Errorf("channel %s: email channels require config.%s", c.ID, key))
			}
		}
	}
	return errs
}

// Template renders alert fields into subject and body text
type Template struct {
	ID      string      `json:"id" yaml:"id"`
	Kind    ChannelKind `json:"kind" yaml:"kind"`
	Subject string      `json:"subject" yaml:"subject"`
	Body    string      `json:"body" yaml:"body"`
}

// Validate checks a template definition at registration time
func (t *Template) Validate() []error {
	var errs []error
	if t.ID == "" {
		errs = append(errs, fmt.Errorf("template id is required"))
	}
	if !t.Kind.Valid() {
		errs = append(errs, fmt.Errorf("template %s: unknown kind %q", t.ID, t.Kind))
	}
	if strings.TrimSpace(t.Body) == "" {
		errs = append(errs, fmt.Errorf("template %s: body is required", t.ID))
	}
	return errs
}

// NotificationResult is the outcome of delivering one alert to one channel
type NotificationResult struct {
	ChannelID string         `json:"channel_id"`
	AlertID   string         `json:"alert_id"`
	Status    DeliveryStatus `json:"status"`
	Error     string         `json:"error,omitempty"`
	Attempts  int            `json:"attempts"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
}

// ChannelStats aggregates delivery outcomes for one channel
type ChannelStats struct {
	Sent        int64         `json:"sent"`
	Failed      int64         `json:"failed"`
	Cancelled   int64         `json:"cancelled"`
	SuccessRate float64       `json:"success_rate"`
	AvgLatency  time.Duration `json:"avg_latency"`

	totalLatency time.Duration
}
