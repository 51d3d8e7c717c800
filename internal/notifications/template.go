package notifications

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/alerting"
)

var placeholderPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

// alertFields flattens the renderable fields of an alert
func alertFields(alert *alerting.Alert) map[string]string {
	return map[string]string{
		"alert_id":       alert.ID,
		"title":          alert.Title,
		"message":        alert.Message,
		"severity":       string(alert.Severity),
		"status":         string(alert.Status),
		"type":           string(alert.Type),
		"metric":         alert.Metric,
		"value":          fmt.Sprintf("%g", alert.Value),
		"threshold":      fmt.Sprintf("%g", alert.Threshold),
		"source":         alert.Source,
		"rule_id":        alert.RuleID,
		"correlation_id": alert.CorrelationID,
		"tags":           strings.Join(alert.Tags, ","),
		"timestamp":      alert.Timestamp.Format(time.RFC3339),
	}
}

// render substitutes {field} placeholders from the alert. Rendering never
// fails: an unknown placeholder logs a warning and the raw template text is
// returned unchanged.
func render(tpl string, alert *alerting.Alert, logger *logrus.Logger) string {
	fields := alertFields(alert)

	for _, match := range placeholderPattern.FindAllStringSubmatch(tpl, -1) {
		if _, ok := fields[match[1]]; !ok {
			logger.WithFields(logrus.Fields{
				"placeholder": match[1],
				"alert":       alert.ID,
			}).Warn("Unknown template placeholder, using raw template")
			return tpl
		}
	}
	return placeholderPattern.ReplaceAllStringFunc(tpl, func(m string) string {
		name := placeholderPattern.FindStringSubmatch(m)[1]
		return fields[name]
	})
}

// DefaultTemplates returns the built-in per-kind templates used when a
// channel has no explicit template bound.
func DefaultTemplates() []*Template {
	return []*Template{
		{
			ID:      "default-console",
			Kind:    KindConsole,
			Subject: "[{severity}] {title}",
			Body:    "{message} (metric {metric}={value}, threshold {threshold}, source {source})",
		},
		{
			ID:      "default-log",
			Kind:    KindLog,
			Subject: "[{severity}] {title}",
			Body:    "{message}",
		},
		{
			ID:      "default-email",
			Kind:    KindEmail,
			Subject: "[{severity}] ScrapeWatch alert: {title}",
			Body:    "Alert {alert_id}\n\n{message}\n\nMetric: {metric}\nValue: {value}\nThreshold: {threshold}\nSource: {source}\nTime: {timestamp}",
		},
		{
			ID:      "default-webhook",
			Kind:    KindWebhook,
			Subject: "{title}",
			Body:    "{message}",
		},
		{
			ID:      "default-slack",
			Kind:    KindSlack,
			Subject: "{title}",
			Body:    "{message}",
		},
	}
}
