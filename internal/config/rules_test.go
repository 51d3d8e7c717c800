package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/alerting"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/notifications"
)

func TestLoadRulesParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
thresholds:
  - id: latency
    name: Slow responses
    metric: response_time_ms
    comparison: ">"
    threshold: 10000
    severity: error
    enabled: true
severities:
  - metric: error_rate
    comparison: ">"
    value: 0.5
    severity: critical
    weight: 2
escalations:
  - id: critical-fast
    severities: [critical]
    after: 5m
    level: 1
    enabled: true
`), 0o644))

	rules, err := LoadRules(path)
	require.NoError(t, err)

	require.Len(t, rules.Thresholds, 1)
	assert.Equal(t, "latency", rules.Thresholds[0].ID)
	assert.Equal(t, alerting.CompareGreater, rules.Thresholds[0].Comparison)
	assert.Equal(t, alerting.SeverityError, rules.Thresholds[0].Severity)

	require.Len(t, rules.Severities, 1)
	assert.Equal(t, 2.0, rules.Severities[0].Weight)

	require.Len(t, rules.Escalations, 1)
	assert.Equal(t, alerting.Level1, rules.Escalations[0].Level)
}

func TestLoadRulesMissingFileReturnsEmptySet(t *testing.T) {
	rules, err := LoadRules("/nonexistent/rules.yaml")
	require.NoError(t, err)
	assert.Empty(t, rules.Thresholds)

	rules, err = LoadRules("")
	require.NoError(t, err)
	assert.Empty(t, rules.Thresholds)
}

func TestLoadRulesRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("thresholds: {not: [valid"), 0o644))

	_, err := LoadRules(path)
	assert.Error(t, err)
}

func TestLoadChannelsParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "channels.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
channels:
  - id: ops-webhook
    name: Ops webhook
    kind: webhook
    enabled: true
    severities: [error, critical]
    rate_limit_per_hour: 30
    config:
      url: https://example.com/hook
templates:
  - id: terse
    kind: webhook
    subject: "{title}"
    body: "{message}"
`), 0o644))

	channels, err := LoadChannels(path)
	require.NoError(t, err)

	require.Len(t, channels.Channels, 1)
	channel := channels.Channels[0]
	assert.Equal(t, notifications.KindWebhook, channel.Kind)
	assert.Equal(t, 30, channel.RateLimitPerHour)
	assert.Empty(t, channel.Validate())

	require.Len(t, channels.Templates, 1)
	assert.Empty(t, channels.Templates[0].Validate())
}
