package notifications

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/alerting"
)

func TestRenderSubstitutesAlertFields(t *testing.T) {
	alert := testAlert(alerting.SeverityCritical)
	alert.Tags = []string{"proxy", "checkout"}

	out := render("[{severity}] {title}: {metric}={value} (threshold {threshold}) tags={tags}", alert, testLogger())
	assert.Equal(t, "[critical] latency breach: response_time_ms=2500 (threshold 1000) tags=proxy,checkout", out)
}

func TestRenderUnknownPlaceholderFallsBackToRawText(t *testing.T) {
	alert := testAlert(alerting.SeverityError)

	raw := "alert {title} on {nonexistent_field}"
	out := render(raw, alert, testLogger())
	assert.Equal(t, raw, out)
}

func TestRenderTimestampIsRFC3339(t *testing.T) {
	alert := testAlert(alerting.SeverityError)
	out := render("{timestamp}", alert, testLogger())
	assert.Equal(t, "2026-08-01T12:00:00Z", out)
}

func TestDefaultTemplatesCoverEveryKind(t *testing.T) {
	templates := DefaultTemplates()
	kinds := make(map[ChannelKind]bool)
	for _, tpl := range templates {
		require.Empty(t, tpl.Validate(), "default template %s must be valid", tpl.ID)
		kinds[tpl.Kind] = true
	}
	for _, kind := range []ChannelKind{KindConsole, KindLog, KindEmail, KindWebhook, KindSlack} {
		assert.True(t, kinds[kind], "missing default template for %s", kind)
	}
}
