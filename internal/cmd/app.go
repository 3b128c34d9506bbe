package cmd

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/config"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/engine"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/store"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/transport"
	apperrors "github.com/lvl0lvl/slack-mcp-identity-server/internal/errors"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/identity"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/metrics"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/slack"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/tools"
)

// app holds the components every Slack-facing command shares.
type app struct {
	scheduler *engine.Scheduler
	client    *slack.Client
	registry  *tools.Registry
	store     *store.Store
	agents    *identity.AgentConfig
	logger    core.Logger
}

// validateSlack reports missing workspace credentials.
func validateSlack(cfg *config.Config) error {
	var missing []string
	if strings.TrimSpace(cfg.Slack.BotToken) == "" {
		missing = append(missing, "SLACK_BOT_TOKEN")
	}
	if strings.TrimSpace(cfg.Slack.TeamID) == "" {
		missing = append(missing, "SLACK_TEAM_ID")
	}
	if len(missing) == 0 {
		return nil
	}
	return apperrors.NewConfigInvalidError(
		fmt.Sprintf("missing required Slack settings: %s", strings.Join(missing, ", ")))
}

func newScheduler(cfg *config.Config, logger core.Logger) *engine.Scheduler {
	return engine.NewScheduler(
		engine.WithBudgets(engine.DefaultBudgets.WithOverrides(cfg.RateLimits)),
		engine.WithBudgetMargin(cfg.RateLimitMargin),
		engine.WithDelayThreshold(cfg.Scheduler.DelayThreshold),
		engine.WithSafetyMargin(cfg.Scheduler.SafetyMargin),
		engine.WithLogger(logger),
		engine.WithRecorder(metrics.Scheduler{}),
	)
}

// newApp wires scheduler, transport, client, and tool registry. The message
// store is opened only when enabled; its failure is fatal since the operator
// asked for it.
func newApp(ctx context.Context, cfg *config.Config, logger core.Logger) (*app, error) {
	logger = core.LoggerOrNop(logger)
	a := &app{logger: logger}

	a.scheduler = newScheduler(cfg, logger)
	a.client = &slack.Client{
		BaseURL:     cfg.Slack.BaseURL,
		BotToken:    cfg.Slack.BotToken,
		UserToken:   cfg.Slack.UserToken,
		TeamID:      cfg.Slack.TeamID,
		ChannelIDs:  cfg.Slack.ChannelIDs,
		MaxAttempts: cfg.Transport.MaxAttempts,
		Transport: &transport.Transport{
			Client:    &http.Client{Timeout: cfg.Transport.RequestTimeout},
			Logger:    logger,
			Recorder:  metrics.Transport{},
			BaseDelay: cfg.Transport.BaseDelay,
			MaxDelay:  cfg.Transport.MaxDelay,
		},
		Scheduler: a.scheduler,
	}

	agents, err := identity.Load(cfg.Identity.ConfigPath, logger)
	switch {
	case err != nil:
		logger.Warn("Failed to load agent identity config, continuing without it",
			zap.String("path", cfg.Identity.ConfigPath),
			zap.Error(err))
	case agents != nil:
		logger.Info(fmt.Sprintf("Agent identity config loaded with %d agent(s)", len(agents.Agents)),
			zap.String("path", cfg.Identity.ConfigPath))
	}
	a.agents = agents

	opts := []tools.Option{
		tools.WithAgentConfig(agents),
		tools.WithLogger(logger),
	}
	if cfg.Store.Enabled {
		db, err := openStore(ctx, cfg.Store)
		if err != nil {
			a.scheduler.Close()
			return nil, fmt.Errorf("open message store: %w", err)
		}
		a.store = db
		opts = append(opts, tools.WithMessageLog(db))
	}
	a.registry = tools.NewRegistry(a.client, opts...)

	return a, nil
}

// authTest confirms the bot token against auth.test.
func (a *app) authTest(ctx context.Context) (*slack.Response, error) {
	resp, err := a.client.AuthTest(ctx)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return resp, err
	}
	return resp, nil
}

func (a *app) close() {
	a.scheduler.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close message store", zap.Error(err))
	}
}

// timedRunner bounds each tool call, queueing included.
type timedRunner struct {
	*tools.Registry
	timeout time.Duration
}

func (r timedRunner) Call(ctx context.Context, name string, args tools.Args) (any, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.Registry.Call(ctx, name, args)
}
