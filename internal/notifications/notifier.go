package notifications

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/alerting"
)

// rateWindow is the rolling send-timestamp window of a single channel
const rateWindowSpan = time.Hour

// Notifier owns the channels and templates and delivers rendered alerts,
// enforcing each channel's rolling-hour rate limit and retry policy.
// Delivery failures are recorded as FAILED results, never raised.
type Notifier struct {
	channels   map[string]*Channel
	templates  map[string]*Template
	transports map[ChannelKind]Transport
	configMu   sync.RWMutex

	windows map[string][]time.Time
	rateMu  sync.Mutex

	stats   map[string]*ChannelStats
	statsMu sync.Mutex

	logger *logrus.Logger
	now    func() time.Time
	sleep  func(time.Duration)
}

// NewNotifier creates a notifier with the default templates installed
func NewNotifier(logger *logrus.Logger) *Notifier {
	n := &Notifier{
		channels:   make(map[string]*Channel),
		templates:  make(map[string]*Template),
		transports: make(map[ChannelKind]Transport),
		windows:    make(map[string][]time.Time),
		stats:      make(map[string]*ChannelStats),
		logger:     logger,
		now:        time.Now,
		sleep:      time.Sleep,
	}
	for _, tpl := range DefaultTemplates() {
		n.templates[tpl.ID] = tpl
	}
	n.RegisterTransport(&ConsoleTransport{})
	n.RegisterTransport(&LogTransport{Logger: logger})
	n.RegisterTransport(&EmailTransport{})
	n.RegisterTransport(&WebhookTransport{})
	n.RegisterTransport(&SlackTransport{})
	return n
}

// RegisterTransport installs (or replaces) the transport for a channel kind
func (n *Notifier) RegisterTransport(t Transport) {
	n.configMu.Lock()
	defer n.configMu.Unlock()
	n.transports[t.Kind()] = t
}

// AddChannel registers a channel; malformed definitions are rejected with
// an aggregated error.
func (n *Notifier) AddChannel(channel *Channel) error {
	if channel == nil {
		return fmt.Errorf("channel must not be nil")
	}
	if errs := channel.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return fmt.Errorf("invalid channel: %s", strings.Join(msgs, "; "))
	}
	if channel.Retry.MaxAttempts <= 0 {
		channel.Retry = DefaultRetryPolicy()
	}

	n.configMu.Lock()
	defer n.configMu.Unlock()
	n.channels[channel.ID] = channel
	n.logger.WithFields(logrus.Fields{
		"channel": channel.ID,
		"kind":    channel.Kind,
	}).Info("Registered notification channel")
	return nil
}

// RemoveChannel drops a channel; returns false for an unknown ID
func (n *Notifier) RemoveChannel(channelID string) bool {
	n.configMu.Lock()
	defer n.configMu.Unlock()
	if _, ok := n.channels[channelID]; !ok {
		return false
	}
	delete(n.channels, channelID)
	return true
}

// Channels returns all registered channels
func (n *Notifier) Channels() []*Channel {
	n.configMu.RLock()
	defer n.configMu.RUnlock()
	channels := make([]*Channel, 0, len(n.channels))
	for _, c := range n.channels {
		channels = append(channels, c)
	}
	return channels
}

// AddTemplate registers a template
func (n *Notifier) AddTemplate(tpl *Template) error {
	if tpl == nil {
		return fmt.Errorf("template must not be nil")
	}
	if errs := tpl.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return fmt.Errorf("invalid template: %s", strings.Join(msgs, "; "))
	}
	n.configMu.Lock()
	defer n.configMu.Unlock()
	n.templates[tpl.ID] = tpl
	return nil
}

// Send delivers the alert to the resolved channel set: the explicit IDs if
// given, otherwise every enabled channel whose severity filter accepts the
// alert. One failing channel never blocks the others.
func (n *Notifier) Send(ctx context.Context, alert *alerting.Alert, channelIDs []string, templateID string) []NotificationResult {
	channels := n.resolveChannels(alert, channelIDs)

	results := make([]NotificationResult, 0, len(channels))
	for _, channel := range channels {
		results = append(results, n.sendToChannel(ctx, alert, channel, templateID))
	}
	return results
}

func (n *Notifier) resolveChannels(alert *alerting.Alert, channelIDs []string) []*Channel {
	n.configMu.RLock()
	defer n.configMu.RUnlock()

	var channels []*Channel
	if len(channelIDs) > 0 {
		for _, id := range channelIDs {
			if c, ok := n.channels[id]; ok {
				channels = append(channels, c)
			} else {
				n.logger.Warnf("Notification requested on unknown channel %s", id)
			}
		}
		return channels
	}
	for _, c := range n.channels {
		if c.Enabled && c.Accepts(alert.Severity) {
			channels = append(channels, c)
		}
	}
	return channels
}

func (n *Notifier) sendToChannel(ctx context.Context, alert *alerting.Alert, channel *Channel, templateID string) NotificationResult {
	started := n.now()
	result := NotificationResult{
		ChannelID: channel.ID,
		AlertID:   alert.ID,
		StartedAt: started,
	}

	if !n.allow(channel, started) {
		result.Status = StatusCancelled
		result.Error = fmt.Sprintf("rate limit of %d/hour exceeded", channel.RateLimitPerHour)
		n.recordResult(channel.ID, &result)
		n.logger.WithFields(logrus.Fields{
			"channel": channel.ID,
			"alert":   alert.ID,
		}).Warn("Notification cancelled by rate limit")
		return result
	}

	subject, body := n.renderFor(channel, alert, templateID)

	transport := n.transportFor(channel.Kind)
	if transport == nil {
		result.Status = StatusFailed
		result.Error = fmt.Sprintf("no transport registered for kind %s", channel.Kind)
		result.Duration = n.now().Sub(started)
		n.recordResult(channel.ID, &result)
		return result
	}

	var err error
	delay := channel.Retry.InitialDelay
	for attempt := 1; attempt <= channel.Retry.MaxAttempts; attempt++ {
		result.Attempts = attempt
		if err = transport.Send(ctx, channel, subject, body, alert); err == nil {
			break
		}
		n.logger.WithError(err).WithFields(logrus.Fields{
			"channel": channel.ID,
			"attempt": attempt,
		}).Warn("Notification delivery attempt failed")
		if attempt < channel.Retry.MaxAttempts {
			n.sleep(delay)
			delay = time.Duration(float64(delay) * channel.Retry.BackoffFactor)
		}
	}

	result.Duration = n.now().Sub(started)
	if err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
	} else {
		result.Status = StatusSent
	}
	n.recordResult(channel.ID, &result)
	return result
}

func (n *Notifier) transportFor(kind ChannelKind) Transport {
	n.configMu.RLock()
	defer n.configMu.RUnlock()
	return n.transports[kind]
}

// renderFor picks the explicit template, the channel's bound template, or
// the default for the channel kind, in that order.
func (n *Notifier) renderFor(channel *Channel, alert *alerting.Alert, templateID string) (string, string) {
	n.configMu.RLock()
	tpl := n.templates[templateID]
	if tpl == nil && channel.TemplateID != "" {
		tpl = n.templates[channel.TemplateID]
	}
	if tpl == nil {
		tpl = n.templates["default-"+string(channel.Kind)]
	}
	n.configMu.RUnlock()

	if tpl == nil {
		return alert.Title, alert.Message
	}
	return render(tpl.Subject, alert, n.logger), render(tpl.Body, alert, n.logger)
}

// allow checks and advances the channel's rolling-hour window. A zero rate
// limit means unlimited.
func (n *Notifier) allow(channel *Channel, now time.Time) bool {
	if channel.RateLimitPerHour <= 0 {
		return true
	}
	n.rateMu.Lock()
	defer n.rateMu.Unlock()

	cutoff := now.Add(-rateWindowSpan)
	window := n.windows[channel.ID]
	pruned := window[:0]
	for _, ts := range window {
		if ts.After(cutoff) {
			pruned = append(pruned, ts)
		}
	}
	if len(pruned) >= channel.RateLimitPerHour {
		n.windows[channel.ID] = pruned
		return false
	}
	n.windows[channel.ID] = append(pruned, now)
	return true
}

func (n *Notifier) recordResult(channelID string, result *NotificationResult) {
	n.statsMu.Lock()
	defer n.statsMu.Unlock()

	stats, ok := n.stats[channelID]
	if !ok {
		stats = &ChannelStats{}
		n.stats[channelID] = stats
	}
	switch result.Status {
	case StatusSent:
		stats.Sent++
		stats.totalLatency += result.Duration
	case StatusFailed:
		stats.Failed++
	case StatusCancelled:
		stats.Cancelled++
	}
	attempted := stats.Sent + stats.Failed
	if attempted > 0 {
		stats.SuccessRate = float64(stats.Sent) / float64(attempted)
	}
	if stats.Sent > 0 {
		stats.AvgLatency = stats.totalLatency / time.Duration(stats.Sent)
	}
}

// Statistics returns per-channel delivery counters
func (n *Notifier) Statistics() map[string]ChannelStats {
	n.statsMu.Lock()
	defer n.statsMu.Unlock()

	out := make(map[string]ChannelStats, len(n.stats))
	for id, stats := range n.stats {
		out[id] = *stats
	}
	return out
}
