package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/alerting"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/notifications"
)

// RulesFile holds the parsed contents of the alerting rules file
type RulesFile struct {
	Thresholds  []alerting.ThresholdRule
	Severities  []alerting.SeverityRule
	Escalations []alerting.EscalationRule
}

// ChannelsFile holds the parsed contents of the notification channels file
type ChannelsFile struct {
	Channels  []notifications.Channel
	Templates []notifications.Template
}

// Wire types mirror the YAML layout. Durations are strings ("5m", "1h")
// and get parsed with time.ParseDuration.

type thresholdRuleYAML struct {
	ID               string                  `yaml:"id"`
	Name             string                  `yaml:"name"`
	Metric           string                  `yaml:"metric"`
	Comparison       alerting.Comparison     `yaml:"comparison"`
	Threshold        float64                 `yaml:"threshold"`
	Severity         alerting.AlertSeverity  `yaml:"severity"`
	Enabled          bool                    `yaml:"enabled"`
	Cooldown         string                  `yaml:"cooldown"`
	Mode             alerting.ThresholdMode  `yaml:"mode"`
	AdaptiveMethod   alerting.AdaptiveMethod `yaml:"adaptive_method"`
	Percentile       float64                 `yaml:"percentile"`
	StddevFactor     float64                 `yaml:"stddev_factor"`
	TrendSensitivity float64                 `yaml:"trend_sensitivity"`
}

type escalationRuleYAML struct {
	ID         string                   `yaml:"id"`
	Severities []alerting.AlertSeverity `yaml:"severities"`
	After      string                   `yaml:"after"`
	Level      int                      `yaml:"level"`
	Targets    []string                 `yaml:"targets"`
	Enabled    bool                     `yaml:"enabled"`
}

type retryPolicyYAML struct {
	MaxAttempts   int     `yaml:"max_attempts"`
	InitialDelay  string  `yaml:"initial_delay"`
	BackoffFactor float64 `yaml:"backoff_factor"`
}

type channelYAML struct {
	ID               string                    `yaml:"id"`
	Name             string                    `yaml:"name"`
	Kind             notifications.ChannelKind `yaml:"kind"`
	Enabled          bool                      `yaml:"enabled"`
	Severities       []alerting.AlertSeverity  `yaml:"severities"`
	RateLimitPerHour int                       `yaml:"rate_limit_per_hour"`
	Retry            *retryPolicyYAML          `yaml:"retry"`
	TemplateID       string                    `yaml:"template_id"`
	Config           map[string]string         `yaml:"config"`
}

type rulesFileYAML struct {
	Thresholds  []thresholdRuleYAML     `yaml:"thresholds"`
	Severities  []alerting.SeverityRule `yaml:"severities"`
	Escalations []escalationRuleYAML    `yaml:"escalations"`
}

type channelsFileYAML struct {
	Channels  []channelYAML            `yaml:"channels"`
	Templates []notifications.Template `yaml:"templates"`
}

func parseDuration(raw, field, owner string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid %s %q: %w", owner, field, raw, err)
	}
	return d, nil
}

// LoadRules parses the YAML rules file at the given path. A missing path
// returns an empty rule set rather than an error.
func LoadRules(path string) (*RulesFile, error) {
	if path == "" {
		return &RulesFile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &RulesFile{}, nil
		}
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var raw rulesFileYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}

	rules := &RulesFile{Severities: raw.Severities}
	for _, t := range raw.Thresholds {
		cooldown, err := parseDuration(t.Cooldown, "cooldown", "threshold rule "+t.ID)
		if err != nil {
			return nil, err
		}
		rules.Thresholds = append(rules.Thresholds, alerting.ThresholdRule{
			ID:               t.ID,
			Name:             t.Name,
			Metric:           t.Metric,
			Comparison:       t.Comparison,
			Threshold:        t.Threshold,
			Severity:         t.Severity,
			Enabled:          t.Enabled,
			Cooldown:         cooldown,
			Mode:             t.Mode,
			AdaptiveMethod:   t.AdaptiveMethod,
			Percentile:       t.Percentile,
			StddevFactor:     t.StddevFactor,
			TrendSensitivity: t.TrendSensitivity,
		})
	}
	for _, e := range raw.Escalations {
		after, err := parseDuration(e.After, "after", "escalation rule "+e.ID)
		if err != nil {
			return nil, err
		}
		rules.Escalations = append(rules.Escalations, alerting.EscalationRule{
			ID:         e.ID,
			Severities: e.Severities,
			After:      after,
			Level:      alerting.EscalationLevel(e.Level),
			Targets:    e.Targets,
			Enabled:    e.Enabled,
		})
	}
	return rules, nil
}

// LoadChannels parses the YAML channels file at the given path. A missing
// path returns an empty channel set rather than an error.
func LoadChannels(path string) (*ChannelsFile, error) {
	if path == "" {
		return &ChannelsFile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ChannelsFile{}, nil
		}
		return nil, fmt.Errorf("failed to read channels file: %w", err)
	}

	var raw channelsFileYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse channels file %s: %w", path, err)
	}

	channels := &ChannelsFile{Templates: raw.Templates}
	for _, c := range raw.Channels {
		channel := notifications.Channel{
			ID:               c.ID,
			Name:             c.Name,
			Kind:             c.Kind,
			Enabled:          c.Enabled,
			Severities:       c.Severities,
			RateLimitPerHour: c.RateLimitPerHour,
			TemplateID:       c.TemplateID,
			Config:           c.Config,
		}
		if c.Retry != nil {
			delay, err := parseDuration(c.Retry.InitialDelay, "retry.initial_delay", "channel "+c.ID)
			if err != nil {
				return nil, err
			}
			channel.Retry = notifications.RetryPolicy{
				MaxAttempts:   c.Retry.MaxAttempts,
				InitialDelay:  delay,
				BackoffFactor: c.Retry.BackoffFactor,
			}
		}
		channels.Channels = append(channels.Channels, channel)
	}
	return channels, nil
}
