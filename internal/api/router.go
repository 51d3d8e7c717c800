package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/scrapewatch/scrapewatch-backend-go/internal/config"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/monitoring"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/websocket"
)

// NewRouter builds the HTTP surface of the monitoring service
func NewRouter(cfg *config.Config, service *monitoring.Service, hub *websocket.Hub, logger *logrus.Logger) *gin.Engine {
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	h := &Handlers{service: service, logger: logger}

	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", func(c *gin.Context) {
		hub.ServeWS(c.Writer, c.Request)
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/events", h.IngestEvent)
		v1.POST("/events/batch", h.IngestBatch)

		v1.GET("/alerts", h.ListAlerts)
		v1.GET("/alerts/:id", h.GetAlert)
		v1.POST("/alerts", h.CreateManualAlert)
		v1.POST("/alerts/:id/acknowledge", h.AcknowledgeAlert)
		v1.POST("/alerts/:id/resolve", h.ResolveAlert)
		v1.POST("/alerts/:id/escalate", h.EscalateAlert)
		v1.POST("/alerts/:id/suppress", h.SuppressAlert)
		v1.POST("/alerts/:id/notify", h.NotifyAlert)

		v1.GET("/rules", h.ListRules)
		v1.POST("/rules", h.CreateRule)
		v1.DELETE("/rules/:id", h.DeleteRule)

		v1.GET("/channels", h.ListChannels)
		v1.POST("/channels", h.CreateChannel)
		v1.DELETE("/channels/:id", h.DeleteChannel)

		v1.POST("/evaluate", h.EvaluateThreshold)
		v1.GET("/statistics", h.Statistics)
	}

	return router
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(started).String(),
		})
		if c.Writer.Status() >= 500 {
			entry.Error("Request failed")
		} else {
			entry.Debug("Request handled")
		}
	}
}
