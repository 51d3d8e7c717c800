package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/alerting"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/monitoring"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/telemetry"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/notifications"
	"github.com/scrapewatch/scrapewatch-backend-go/pkg/errors"
	"github.com/scrapewatch/scrapewatch-backend-go/pkg/utils"
)

// Handlers carries the HTTP handlers of the monitoring API
type Handlers struct {
	service *monitoring.Service
	logger  *logrus.Logger
}

// Health reports service liveness
func (h *Handlers) Health(c *gin.Context) {
	utils.SendSuccess(c, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// IngestEvent accepts one telemetry event into the buffer
func (h *Handlers) IngestEvent(c *gin.Context) {
	var event telemetry.TelemetryEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		utils.SendAppError(c, errors.New(http.StatusBadRequest, "invalid event payload: "+err.Error()))
		return
	}
	if !h.service.Ingest(&event) {
		utils.SendAppError(c, errors.New(http.StatusServiceUnavailable, "event buffer rejected the event"))
		return
	}
	utils.SendCreated(c, gin.H{"accepted": true, "event_id": event.ID})
}

// IngestBatch accepts a batch of telemetry events into the buffer
func (h *Handlers) IngestBatch(c *gin.Context) {
	var events []*telemetry.TelemetryEvent
	if err := c.ShouldBindJSON(&events); err != nil {
		utils.SendAppError(c, errors.New(http.StatusBadRequest, "invalid batch payload: "+err.Error()))
		return
	}
	accepted := 0
	for _, event := range events {
		if h.service.Ingest(event) {
			accepted++
		}
	}
	utils.SendCreated(c, gin.H{
		"accepted": accepted,
		"rejected": len(events) - accepted,
	})
}

// ListAlerts lists tracked alerts, optionally filtered by status
func (h *Handlers) ListAlerts(c *gin.Context) {
	status := alerting.AlertStatus(c.Query("status"))
	utils.SendSuccess(c, h.service.Alerts(status))
}

// GetAlert returns one tracked alert
func (h *Handlers) GetAlert(c *gin.Context) {
	alert, ok := h.service.Alert(c.Param("id"))
	if !ok {
		utils.SendAppError(c, errors.WithDetails(errors.ErrNotFound, "alert "+c.Param("id")))
		return
	}
	utils.SendSuccess(c, alert)
}

type manualAlertRequest struct {
	Title    string                 `json:"title" binding:"required"`
	Message  string                 `json:"message"`
	Severity alerting.AlertSeverity `json:"severity" binding:"required"`
	Source   string                 `json:"source"`
	Tags     []string               `json:"tags"`
}

// CreateManualAlert raises an operator alert
func (h *Handlers) CreateManualAlert(c *gin.Context) {
	var req manualAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendAppError(c, errors.New(http.StatusBadRequest, "invalid alert payload: "+err.Error()))
		return
	}
	if !req.Severity.Valid() {
		utils.SendAppError(c, errors.WithDetails(errors.ErrBadRequest, "invalid severity"))
		return
	}
	alert := h.service.CreateManualAlert(c.Request.Context(), req.Title, req.Message, req.Severity, req.Source, req.Tags)
	utils.SendCreated(c, alert)
}

type actorRequest struct {
	By    string `json:"by" binding:"required"`
	Notes string `json:"notes"`
}

// AcknowledgeAlert marks an alert acknowledged
func (h *Handlers) AcknowledgeAlert(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendAppError(c, errors.New(http.StatusBadRequest, "invalid payload: "+err.Error()))
		return
	}
	if !h.service.Acknowledge(c.Param("id"), req.By, req.Notes) {
		utils.SendAppError(c, errors.WithDetails(errors.ErrConflict, "alert not found or already resolved"))
		return
	}
	utils.SendSuccess(c, gin.H{"acknowledged": true})
}

type resolveRequest struct {
	By     string `json:"by" binding:"required"`
	Method string `json:"method"`
	Notes  string `json:"notes"`
}

// ResolveAlert closes out an alert
func (h *Handlers) ResolveAlert(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendAppError(c, errors.New(http.StatusBadRequest, "invalid payload: "+err.Error()))
		return
	}
	if req.Method == "" {
		req.Method = "manual"
	}
	if !h.service.Resolve(c.Request.Context(), c.Param("id"), req.By, req.Method, req.Notes) {
		utils.SendAppError(c, errors.WithDetails(errors.ErrConflict, "alert not found or already resolved"))
		return
	}
	utils.SendSuccess(c, gin.H{"resolved": true})
}

type escalateRequest struct {
	Level   int      `json:"level" binding:"required"`
	By      string   `json:"by" binding:"required"`
	Targets []string `json:"targets"`
	Reason  string   `json:"reason"`
}

// EscalateAlert raises an alert's escalation level
func (h *Handlers) EscalateAlert(c *gin.Context) {
	var req escalateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendAppError(c, errors.New(http.StatusBadRequest, "invalid payload: "+err.Error()))
		return
	}
	if !h.service.Escalate(c.Param("id"), alerting.EscalationLevel(req.Level), req.By, req.Targets, req.Reason) {
		utils.SendAppError(c, errors.WithDetails(errors.ErrConflict, "alert not found, resolved, or level not above current"))
		return
	}
	utils.SendSuccess(c, gin.H{"escalated": true})
}

type suppressRequest struct {
	Duration string `json:"duration" binding:"required"`
	Reason   string `json:"reason"`
}

// SuppressAlert silences an alert for a duration
func (h *Handlers) SuppressAlert(c *gin.Context) {
	var req suppressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendAppError(c, errors.New(http.StatusBadRequest, "invalid payload: "+err.Error()))
		return
	}
	duration, err := time.ParseDuration(req.Duration)
	if err != nil || duration <= 0 {
		utils.SendAppError(c, errors.WithDetails(errors.ErrBadRequest, "invalid duration"))
		return
	}
	if !h.service.Suppress(c.Param("id"), duration, req.Reason) {
		utils.SendAppError(c, errors.WithDetails(errors.ErrConflict, "alert not found or already resolved"))
		return
	}
	utils.SendSuccess(c, gin.H{"suppressed": true})
}

type notifyRequest struct {
	ChannelIDs []string `json:"channel_ids"`
	TemplateID string   `json:"template_id"`
}

// NotifyAlert delivers an alert to specific channels on demand
func (h *Handlers) NotifyAlert(c *gin.Context) {
	var req notifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendAppError(c, errors.New(http.StatusBadRequest, "invalid payload: "+err.Error()))
		return
	}
	results, err := h.service.SendNotifications(c.Request.Context(), c.Param("id"), req.ChannelIDs, req.TemplateID)
	if err != nil {
		utils.SendAppError(c, errors.WithDetails(errors.ErrNotFound, err.Error()))
		return
	}
	utils.SendSuccess(c, results)
}

// ListRules lists the registered threshold rules
func (h *Handlers) ListRules(c *gin.Context) {
	utils.SendSuccess(c, h.service.Engine().Rules())
}

// CreateRule registers a threshold rule
func (h *Handlers) CreateRule(c *gin.Context) {
	var rule alerting.ThresholdRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		utils.SendAppError(c, errors.New(http.StatusBadRequest, "invalid rule payload: "+err.Error()))
		return
	}
	if err := h.service.Engine().AddRule(&rule); err != nil {
		utils.SendAppError(c, errors.WithDetails(errors.ErrBadRequest, err.Error()))
		return
	}
	utils.SendCreated(c, rule)
}

// DeleteRule unregisters a threshold rule
func (h *Handlers) DeleteRule(c *gin.Context) {
	if !h.service.Engine().RemoveRule(c.Param("id")) {
		utils.SendAppError(c, errors.WithDetails(errors.ErrNotFound, "rule "+c.Param("id")))
		return
	}
	utils.SendSuccess(c, gin.H{"deleted": true})
}

// ListChannels lists the registered notification channels
func (h *Handlers) ListChannels(c *gin.Context) {
	utils.SendSuccess(c, h.service.Notifier().Channels())
}

// CreateChannel registers a notification channel
func (h *Handlers) CreateChannel(c *gin.Context) {
	var channel notifications.Channel
	if err := c.ShouldBindJSON(&channel); err != nil {
		utils.SendAppError(c, errors.New(http.StatusBadRequest, "invalid channel payload: "+err.Error()))
		return
	}
	if err := h.service.Notifier().AddChannel(&channel); err != nil {
		utils.SendAppError(c, errors.WithDetails(errors.ErrBadRequest, err.Error()))
		return
	}
	utils.SendCreated(c, channel)
}

// DeleteChannel unregisters a notification channel
func (h *Handlers) DeleteChannel(c *gin.Context) {
	if !h.service.Notifier().RemoveChannel(c.Param("id")) {
		utils.SendAppError(c, errors.WithDetails(errors.ErrNotFound, "channel "+c.Param("id")))
		return
	}
	utils.SendSuccess(c, gin.H{"deleted": true})
}

type evaluateRequest struct {
	Metric     string                 `json:"metric" binding:"required"`
	Value      float64                `json:"value"`
	Comparison alerting.Comparison    `json:"comparison" binding:"required"`
	Threshold  float64                `json:"threshold"`
	Severity   alerting.AlertSeverity `json:"severity" binding:"required"`
	Source     string                 `json:"source"`
}

// EvaluateThreshold performs a one-off threshold check
func (h *Handlers) EvaluateThreshold(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendAppError(c, errors.New(http.StatusBadRequest, "invalid payload: "+err.Error()))
		return
	}
	if !req.Comparison.Valid() || !req.Severity.Valid() {
		utils.SendAppError(c, errors.WithDetails(errors.ErrBadRequest, "invalid comparison or severity"))
		return
	}
	alert := h.service.EvaluateThreshold(c.Request.Context(), req.Metric, req.Value, req.Comparison, req.Threshold, req.Severity, req.Source)
	utils.SendSuccess(c, gin.H{"triggered": alert != nil, "alert": alert})
}

// Statistics returns the aggregate pipeline counters
func (h *Handlers) Statistics(c *gin.Context) {
	utils.SendSuccess(c, h.service.GetStatistics())
}
