package websocket

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/alerting"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func testClient(h *Hub, buffer int) *Client {
	return &Client{hub: h, send: make(chan Message, buffer)}
}

func TestBroadcastReachesRegisteredClients(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	client := testClient(hub, sendBufferSize)
	hub.register <- client

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	hub.BroadcastAlert(&alerting.Alert{ID: "a1", Severity: alerting.SeverityError}, "created")

	select {
	case msg := <-client.send:
		assert.Equal(t, "alert_created", msg.Type)
	case <-time.After(time.Second):
		t.Fatal("broadcast never reached the client")
	}
}

func TestSlowClientIsEvictedWithoutDroppingOthers(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	slow := testClient(hub, 1)
	healthy := testClient(hub, sendBufferSize)
	hub.register <- slow
	hub.register <- healthy

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 2
	}, time.Second, 10*time.Millisecond)

	// The slow client's buffer fills after one message; the next broadcast
	// must evict it while the healthy client keeps receiving.
	alert := &alerting.Alert{ID: "a1", Severity: alerting.SeverityError}
	hub.BroadcastAlert(alert, "created")
	hub.BroadcastAlert(alert, "acknowledged")

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	received := 0
	for i := 0; i < 2; i++ {
		select {
		case <-healthy.send:
			received++
		case <-time.After(time.Second):
			t.Fatal("healthy client missed a broadcast")
		}
	}
	assert.Equal(t, 2, received)

	// The evicted client's channel is closed after its buffered message.
	<-slow.send
	_, open := <-slow.send
	assert.False(t, open)
}

func TestUnregisterRemovesClient(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	client := testClient(hub, 1)
	hub.register <- client
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	hub.unregister <- client
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, time.Second, 10*time.Millisecond)

	_, open := <-client.send
	assert.False(t, open)
}
