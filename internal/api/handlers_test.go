package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapewatch/scrapewatch-backend-go/internal/config"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/alerting"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/monitoring"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/notifications"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/storage"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/websocket"
	"github.com/scrapewatch/scrapewatch-backend-go/pkg/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newTestRouter(t *testing.T) (*gin.Engine, *monitoring.Service) {
	t.Helper()
	log := testLogger()

	monitor := alerting.NewThresholdMonitor(alerting.DefaultThresholdMonitorConfig(), log)
	classifier := alerting.NewSeverityClassifier(alerting.DefaultSeverityClassifierConfig(), log)
	service, err := monitoring.NewService(monitoring.DefaultServiceConfig(), monitoring.Deps{
		Monitor:     monitor,
		Detector:    alerting.NewAnomalyDetector(alerting.DefaultAnomalyDetectorConfig(), log),
		Performance: alerting.NewPerformanceEvaluator(alerting.DefaultPerformanceEvaluatorConfig(), log),
		Quality:     alerting.NewQualityMonitor(alerting.DefaultQualityMonitorConfig(), log),
		Classifier:  classifier,
		Engine:      alerting.NewAlertEngine(alerting.DefaultAlertEngineConfig(), monitor, classifier, log),
		Lifecycle:   alerting.NewLifecycleManager(alerting.DefaultLifecycleConfig(), log),
		Notifier:    notifications.NewNotifier(log),
		Store:       storage.NewManager(log, storage.NewMemoryBackend()),
	}, log)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Server.Mode = "test"
	router := NewRouter(cfg, service, websocket.NewHub(log), log)
	return router, service
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) utils.Response {
	t.Helper()
	var resp utils.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestGetAlertUnknownIDReturnsNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/alerts/missing", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeEnvelope(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, "Resource not found: alert missing", resp.Error)
}

func TestManualAlertRoundTripOverHTTP(t *testing.T) {
	router, service := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/alerts", gin.H{
		"title":    "Selector drift",
		"message":  "checkout page changed",
		"severity": "error",
		"source":   "scraper-7",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	alerts := service.Alerts("")
	require.Len(t, alerts, 1)

	w = doJSON(t, router, http.MethodGet, "/api/v1/alerts/"+alerts[0].ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeEnvelope(t, w).Success)
}

func TestAcknowledgeResolvedAlertConflicts(t *testing.T) {
	router, service := newTestRouter(t)

	alert := service.CreateManualAlert(context.Background(), "Selector drift", "", alerting.SeverityError, "scraper-7", nil)
	require.True(t, service.Resolve(context.Background(), alert.ID, "alice", "manual", ""))

	w := doJSON(t, router, http.MethodPost, "/api/v1/alerts/"+alert.ID+"/acknowledge", gin.H{"by": "bob"})

	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decodeEnvelope(t, w)
	assert.Equal(t, "Conflict: alert not found or already resolved", resp.Error)
}

func TestCreateRuleRejectsInvalidDefinition(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/rules", gin.H{
		"id":         "bad",
		"metric":     "response_time_ms",
		"comparison": "~",
		"severity":   "error",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, decodeEnvelope(t, w).Success)
}
