package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vantage-advisory/lead-capture/internal/config"
	"github.com/vantage-advisory/lead-capture/internal/logger"
	"github.com/vantage-advisory/lead-capture/internal/server"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

// NewServer creates the HTTP server with all routes and health checks
// wired in. dbPing backs the database health check; done stops the rate
// limiter cleanup goroutine.
func NewServer(
	cfg *config.Config,
	h Handlers,
	registry *prometheus.Registry,
	dbPing func() error,
	log logger.Logger,
	done <-chan struct{},
) *server.Server {
	serverCfg := &server.Config{
		Port:           cfg.Service.Port,
		Debug:          cfg.Service.Debug,
		ReadTimeout:    defaultReadTimeout,
		WriteTimeout:   defaultWriteTimeout,
		IdleTimeout:    defaultIdleTimeout,
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
	}

	routeCfg := RouteConfig{
		MaxSubmissionsPerMinute: cfg.RateLimit.MaxSubmissionsPerMinute,
		RateLimitWindow:         time.Duration(cfg.RateLimit.WindowSeconds) * time.Second,
		OpsAPIKey:               cfg.Service.OpsAPIKey,
	}

	return server.New(serverCfg, log, func(router *gin.Engine) {
		server.RegisterHealthRoutes(router, cfg.Service.Name, cfg.Service.Version,
			map[string]server.HealthChecker{
				"database": server.DatabaseHealthChecker(dbPing),
			})
		SetupRoutes(router, h, routeCfg, registry, done)
	})
}
