package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/farmguard-backend/internal/handlers"
	"github.com/yungbote/farmguard-backend/internal/middleware"
)

type RouterConfig struct {
	ServiceName    string
	AllowedOrigins []string
	AuthMiddleware *middleware.AuthMiddleware
	AlertHandler   *handlers.AlertHandler
	ECallHandler   *handlers.ECallHandler
	SSEHandler     *handlers.SSEHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware(cfg.ServiceName))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)

	// ===============
	// || Protected ||
	// ===============
	protected := router.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())

	// Alerts
	api := protected.Group("/api")
	api.POST("/alerts", cfg.AlertHandler.CreateAlert)
	api.GET("/alerts", cfg.AlertHandler.ListAlerts)
	api.GET("/alerts/:id", cfg.AlertHandler.GetAlertByID)
	api.POST("/alerts/:id/acknowledge", cfg.AlertHandler.AcknowledgeAlert)
	api.POST("/alerts/:id/resolve", cfg.AlertHandler.ResolveAlert)

	// E-Calls
	api.POST("/ecalls", cfg.ECallHandler.OpenECall)
	api.GET("/ecalls", cfg.ECallHandler.ListECalls)
	api.GET("/ecalls/:id", cfg.ECallHandler.GetECallByID)
	api.POST("/ecalls/:id/dispatch", cfg.ECallHandler.DispatchECall)
	api.POST("/ecalls/:id/resolve", cfg.ECallHandler.ResolveECall)
	api.POST("/ecalls/:id/cancel", cfg.ECallHandler.CancelECall)

	// SSE
	protected.GET("/sse/stream", cfg.SSEHandler.SSEStream)
	protected.POST("/sse/subscribe", cfg.SSEHandler.SSESubscribe)
	protected.POST("/sse/unsubscribe", cfg.SSEHandler.SSEUnsubscribe)

	return router
}

// SplitOrigins parses a comma-separated origin list from env config.
func SplitOrigins(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
