package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/smtp"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/alerting"
)

// Transport delivers a rendered notification over one channel kind
type Transport interface {
	Kind() ChannelKind
	Send(ctx context.Context, channel *Channel, subject, body string, alert *alerting.Alert) error
}

// ConsoleTransport prints notifications to stdout
type ConsoleTransport struct {
	Out io.Writer
}

func (t *ConsoleTransport) Kind() ChannelKind { return KindConsole }

func (t *ConsoleTransport) Send(_ context.Context, _ *Channel, subject, body string, _ *alerting.Alert) error {
	out := t.Out
	if out == nil {
		out = os.Stdout
	}
	_, err := fmt.Fprintf(out, "%s\n%s\n", subject, body)
	return err
}

// LogTransport writes notifications through the shared logger
type LogTransport struct {
	Logger *logrus.Logger
}

func (t *LogTransport) Kind() ChannelKind { return KindLog }

func (t *LogTransport) Send(_ context.Context, _ *Channel, subject, body string, alert *alerting.Alert) error {
	entry := t.Logger.WithFields(logrus.Fields{
		"alert":    alert.ID,
		"severity": alert.Severity,
		"metric":   alert.Metric,
	})
	switch alert.Severity {
	case alerting.SeverityCritical, alerting.SeverityError:
		entry.Errorf("%s: %s", subject, body)
	case alerting.SeverityWarning:
		entry.Warnf("%s: %s", subject, body)
	default:
		entry.Infof("%s: %s", subject, body)
	}
	return nil
}

// EmailTransport sends notifications over SMTP
type EmailTransport struct{}

func (t *EmailTransport) Kind() ChannelKind { return KindEmail }

func (t *EmailTransport) Send(_ context.Context, channel *Channel, subject, body string, _ *alerting.Alert) error {
	host := channel.Config["smtp_host"]
	port := channel.Config["smtp_port"]
	from := channel.Config["from"]
	to := channel.Config["to"]

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", from, to, subject, body)

	var auth smtp.Auth
	if user := channel.Config["username"]; user != "" {
		auth = smtp.PlainAuth("", user, channel.Config["password"], host)
	}
	if err := smtp.SendMail(host+":"+port, auth, from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}

// WebhookTransport POSTs a JSON representation of the alert
type WebhookTransport struct {
	Client *http.Client
}

func (t *WebhookTransport) Kind() ChannelKind { return KindWebhook }

func (t *WebhookTransport) Send(ctx context.Context, channel *Channel, _, _ string, alert *alerting.Alert) error {
	payload := map[string]interface{}{
		"alert_id":  alert.ID,
		"title":     alert.Title,
		"message":   alert.Message,
		"severity":  alert.Severity,
		"timestamp": alert.Timestamp.Format(time.RFC3339),
		"metric":    alert.Metric,
		"value":     alert.Value,
		"threshold": alert.Threshold,
		"tags":      alert.Tags,
		"context":   alert.Context,
	}
	return t.post(ctx, channel.Config["url"], payload)
}

func (t *WebhookTransport) post(ctx context.Context, url string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// SlackTransport posts an attachments payload to a Slack webhook
type SlackTransport struct {
	Client *http.Client
}

func (t *SlackTransport) Kind() ChannelKind { return KindSlack }

func (t *SlackTransport) Send(ctx context.Context, channel *Channel, subject, body string, alert *alerting.Alert) error {
	payload := map[string]interface{}{
		"attachments": []map[string]interface{}{
			{
				"color": slackColor(alert.Severity),
				"title": subject,
				"text":  body,
				"fields": []map[string]interface{}{
					{"title": "Severity", "value": string(alert.Severity), "short": true},
					{"title": "Source", "value": alert.Source, "short": true},
					{"title": "Timestamp", "value": alert.Timestamp.Format(time.RFC3339), "short": true},
				},
			},
		},
	}
	wt := WebhookTransport{Client: t.Client}
	return wt.post(ctx, channel.Config["url"], payload)
}

func slackColor(s alerting.AlertSeverity) string {
	switch s {
	case alerting.SeverityCritical:
		return "#8b0000"
	case alerting.SeverityError:
		return "danger"
	case alerting.SeverityWarning:
		return "warning"
	}
	return "good"
}
