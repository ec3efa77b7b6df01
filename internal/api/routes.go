// Package api assembles the HTTP surface of the lead-capture service.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vantage-advisory/lead-capture/internal/handler"
	"github.com/vantage-advisory/lead-capture/internal/middleware"
)

// Handlers groups the route handlers wired into the router.
type Handlers struct {
	Lead    *handler.LeadHandler
	Visit   *handler.VisitHandler
	Chat    *handler.ChatHandler
	Options *handler.OptionsHandler
	Outbox  *handler.OutboxHandler
}

// RouteConfig holds the route-level settings.
type RouteConfig struct {
	MaxSubmissionsPerMinute int
	RateLimitWindow         time.Duration
	OpsAPIKey               string
}

// SetupRoutes configures all API routes. Health routes are registered
// by the server package.
func SetupRoutes(
	router *gin.Engine,
	h Handlers,
	cfg RouteConfig,
	registry *prometheus.Registry,
	done <-chan struct{},
) {
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Form submissions, rate limited per client IP.
	leads := router.Group("/leads")
	leads.Use(middleware.RateLimiter(cfg.MaxSubmissionsPerMinute, cfg.RateLimitWindow, done))
	leads.POST("/contact", h.Lead.HandleContact)
	leads.POST("/booking", h.Lead.HandleBooking)
	leads.POST("/newsletter", h.Lead.HandleNewsletter)

	router.GET("/leads/options", h.Options.HandleOptions)

	// Visit telemetry, bot filtered.
	track := router.Group("/track")
	track.Use(middleware.BotFilter())
	track.POST("/visit", h.Visit.HandleVisit)
	track.GET("/history/:visitor_id", h.Visit.HandleHistory)

	// Chatbot widget integration.
	chat := router.Group("/chat")
	chat.POST("/interaction", h.Chat.HandleInteraction)
	chat.DELETE("/session/:session_id", h.Chat.HandleEndSession)

	// Operator endpoints.
	ops := router.Group("/ops")
	ops.Use(middleware.APIKeyAuth(cfg.OpsAPIKey))
	ops.GET("/outbox/stats", h.Outbox.HandleStats)
	ops.GET("/outbox/:id", h.Outbox.HandleGet)
	ops.POST("/outbox/dispatch", h.Outbox.HandleDispatch)
}
