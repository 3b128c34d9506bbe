package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/config"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/engine"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/store"
	errwrap "github.com/lvl0lvl/slack-mcp-identity-server/internal/errors"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/metrics"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/observability"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/server"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/server/handlers"
	servermw "github.com/lvl0lvl/slack-mcp-identity-server/internal/server/middleware"
)

const telemetryNamespace = "slack_mcp"

var (
	serverPort  int
	serverHost  string
	serverToken string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// schedulerHealthChecker fails while Slack has paused all admissions.
type schedulerHealthChecker struct {
	snapshot func() engine.Stats
	now      func() time.Time
}

func (s schedulerHealthChecker) CheckHealth(ctx context.Context) error {
	stats := s.snapshot()
	now := s.now()
	if stats.Paused(now) {
		return errwrap.NewServiceUnavailableError(
			fmt.Sprintf("slack rate limited for another %s", stats.PausedUntil.Sub(now).Round(time.Second)))
	}
	return nil
}

// storeHealthChecker pings the message log database.
type storeHealthChecker struct {
	db *store.Store
}

func (s storeHealthChecker) CheckHealth(ctx context.Context) error {
	return s.db.DB.PingContext(ctx)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP tool server with graceful shutdown support.

The bot token is verified with auth.test before the listener opens. When no
bearer token is configured one is generated and printed to stderr.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Reload the config file (restart to apply changes)`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return errwrap.WrapConfigInvalid(ctx, err, "configuration invalid")
	}
	if err := validateSlack(cfg); err != nil {
		return err
	}

	observability.InitServerLogger(config.AppName, cfg.Logging.Level, telemetryNamespace)
	logger := observability.ServerLogger

	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(config.AppName, cfg.Metrics.Port, telemetryNamespace); err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
		}
		metrics.SetServerStartTime(time.Now().Unix())
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return errwrap.WrapConfigInvalid(ctx, err, "startup failed")
	}

	auth, err := a.authTest(ctx)
	if err != nil {
		a.close()
		return fmt.Errorf("slack auth.test failed: %w", err)
	}
	logger.Info("Connected to Slack",
		zap.String("team", auth.String("team")),
		zap.String("user", auth.String("user")),
		zap.String("team_id", cfg.Slack.TeamID))

	token := cfg.Auth.Token
	if token == "" {
		token = uuid.NewString()
		fmt.Fprintf(os.Stderr, "Generated auth token: %s\n", token)
		fmt.Fprintf(os.Stderr, "Use this token in the Authorization header: Bearer %s\n", token)
	}

	hm := handlers.NewHealthManager(versionInfo.Version)
	hm.RegisterChecker("scheduler", schedulerHealthChecker{snapshot: a.scheduler.Snapshot, now: time.Now})
	if cfg.Metrics.Enabled {
		hm.RegisterChecker("telemetry", telemetryHealthChecker{})
	}
	if a.store != nil {
		hm.RegisterChecker("message_store", storeHealthChecker{db: a.store})
	}

	var throttleStats *servermw.RedisThrottleStats
	if cfg.Throttle.Enabled && cfg.Throttle.RedisURL != "" {
		throttleStats, err = servermw.OpenRedisThrottleStats(ctx, cfg.Throttle.RedisURL, cfg.Throttle.StatsPrefix, cfg.Throttle.StatsTTL)
		if err != nil {
			a.close()
			return errwrap.WrapConfigInvalid(ctx, err, "throttle stats store unavailable")
		}
		hm.RegisterChecker("throttle_stats", handlers.HealthCheckFunc(throttleStats.Ping))
		logger.Info("Recording throttle decisions in Redis", zap.String("prefix", cfg.Throttle.StatsPrefix))
	}

	opts := server.Options{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		Tools:        timedRunner{Registry: a.registry, timeout: cfg.Scheduler.CallTimeout},
		Limits:       a.scheduler.Snapshot,
		Health:       hm,
		AuthToken:    token,
		AdminToken:   cfg.Auth.AdminToken,
		Throttle:     cfg.Throttle,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	if throttleStats != nil {
		opts.ThrottleStats = throttleStats
	}
	srv := server.New(opts)

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	var once sync.Once
	var shutdownErr error
	shutdown := func(ctx context.Context) error {
		once.Do(func() {
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				shutdownErr = errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}
			a.close()
			if throttleStats != nil {
				_ = throttleStats.Close()
			}
			if err := observability.ShutdownMetrics(); err != nil {
				logger.Warn("Metrics exporter shutdown returned error", zap.Error(err))
			}
			logger.Info("HTTP server stopped gracefully")
			if err := logger.Sync(); err != nil {
				// Sync errors are often benign (stderr already closed)
				logger.Debug("Logger sync returned error", zap.Error(err))
			}
		})
		return shutdownErr
	}

	signals.OnShutdown(func(ctx context.Context) error {
		stop()
		return shutdown(ctx)
	})
	signals.OnReload(func(ctx context.Context) error {
		logger.Info("Received SIGHUP: reloading config file")
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				logger.Info("No config file found - using defaults and environment variables")
				return nil
			}
			logger.Error("Failed to reload config file",
				zap.String("file", viper.ConfigFileUsed()),
				zap.Error(err))
			return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
		}
		logger.Info("Configuration reloaded; restart to apply",
			zap.String("file", viper.ConfigFileUsed()))
		return nil
	})
	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		logger.Info("Starting HTTP server",
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Strings("channel_ids", cfg.Slack.ChannelIDs))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errwrap.WrapInternal(gctx, err, "server error")
		}
		return nil
	})
	g.Go(func() error {
		if err := signals.Listen(gctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Signal handler error", zap.Error(err))
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(ctx)
	})

	return g.Wait()
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 3000, "server port")
	serveCmd.Flags().StringVar(&serverToken, "token", "", "bearer token required on /v1 routes (generated when empty)")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("auth.token", serveCmd.Flags().Lookup("token"))
}
