package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/observability"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/server/handlers"
	servermw "github.com/lvl0lvl/slack-mcp-identity-server/internal/server/middleware"
)

const (
	adminSignalRate  = 10 // requests per minute
	adminSignalBurst = 5
)

func (s *Server) registerRoutes() {
	hm := s.opts.Health
	s.router.Get("/health", hm.HealthHandler)
	s.router.Get("/health/live", hm.LivenessHandler)
	s.router.Get("/health/ready", hm.ReadinessHandler)
	s.router.Get("/health/startup", hm.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler)

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(servermw.BearerAuth(s.opts.AuthToken))
		if s.opts.Throttle.Enabled && s.opts.Throttle.Rate > 0 {
			throttle := servermw.NewThrottle(s.opts.Throttle.Rate, s.opts.Throttle.Burst, nil)
			if s.opts.ThrottleStats != nil {
				throttle.WithStats(s.opts.ThrottleStats)
			}
			r.Use(throttle.Middleware)
		}

		if s.opts.Tools != nil {
			tools := handlers.NewToolsHandler(s.opts.Tools)
			r.Get("/tools", tools.List)
			r.Get("/tools/{name}", tools.Describe)
			r.Post("/tools/{name}", tools.Call)
		}
		if s.opts.Limits != nil {
			r.Get("/limits", handlers.LimitsHandler(s.opts.Limits))
		}
	})

	s.registerAdminEndpoint()
}

// registerAdminEndpoint exposes gofulmen's signal handler for remote
// shutdown and reload when an admin token is configured.
func (s *Server) registerAdminEndpoint() {
	logger := observability.ServerLogger
	if s.opts.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no admin token set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.opts.AdminToken,
		RateLimit: adminSignalRate,
		RateBurst: adminSignalBurst,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.Int("rate_limit_per_minute", adminSignalRate),
			zap.Int("burst", adminSignalBurst))
	}
}
