package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/alerting"
)

func alertMember(t *testing.T, id string, status alerting.AlertStatus) string {
	t.Helper()
	payload, err := json.Marshal(testAlert(id, status, time.Now().Add(-48*time.Hour)))
	require.NoError(t, err)
	return string(payload)
}

func TestExpiredAlertMembersKeepsOpenAlerts(t *testing.T) {
	resolved := alertMember(t, "done", alerting.StatusResolved)
	active := alertMember(t, "open", alerting.StatusActive)
	acknowledged := alertMember(t, "seen", alerting.StatusAcknowledged)

	expired := expiredAlertMembers([]string{resolved, active, acknowledged})

	require.Len(t, expired, 1)
	assert.Equal(t, resolved, expired[0])
}

func TestExpiredAlertMembersSkipsUndecodableMembers(t *testing.T) {
	resolved := alertMember(t, "done", alerting.StatusResolved)

	expired := expiredAlertMembers([]string{"not json", resolved})

	require.Len(t, expired, 1)
	assert.Equal(t, resolved, expired[0])
}

func TestExpiredAlertMembersEmptyInput(t *testing.T) {
	assert.Empty(t, expiredAlertMembers(nil))
}
