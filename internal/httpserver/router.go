package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"smartmail/internal/api"
	"smartmail/pkg/otel"
)

// Pinger reports whether a dependency is ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Connectivity interface {
	IsConnected() bool
}

type Router struct {
	Engine *gin.Engine
}

// NewRouter events may be nil when MQ is disabled; jwtSecret empty disables auth.
func NewRouter(h *api.Handler, store Pinger, events Connectivity, jwtSecret string, logger *zap.Logger) *Router {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otel.GinMiddleware())
	r.Use(TraceMiddleware())
	r.Use(MetricsMiddleware())
	r.Use(AccessLog(logger))

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		mqStatus := "disabled"
		if events != nil {
			mqStatus = "connected"
			if !events.IsConnected() {
				mqStatus = "disconnected"
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "mq": mqStatus})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public
	r.GET("/", h.Root)

	// Protected
	auth := r.Group("/")
	if jwtSecret != "" {
		auth.Use(AuthMiddleware(jwtSecret))
	}
	{
		auth.POST("/fetch", h.Fetch)
		auth.POST("/classify", h.Classify)
		auth.GET("/emails", h.ListEmails)
		auth.GET("/classified-emails", h.ListClassified)
		auth.POST("/respond", h.Respond)
		auth.GET("/responded-emails", h.ListResponses)
		auth.POST("/all", h.All)
	}

	return &Router{Engine: r}
}
