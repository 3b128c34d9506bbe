package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	cfg, err := Decode(map[string]any{
		"server": map[string]any{
			"port":             "8081",
			"shutdown_timeout": "5s",
		},
		"slack": map[string]any{
			"channel_ids": "C1,C2",
		},
		"scheduler": map[string]any{
			"delay_threshold": "15s",
		},
		"rate_limits": map[string]any{
			"chat.postMessage": "120",
		},
		"rate_limit_margin": "0.8",
	})
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, []string{"C1", "C2"}, cfg.Slack.ChannelIDs)
	assert.Equal(t, 15*time.Second, cfg.Scheduler.DelayThreshold)
	assert.Equal(t, 120, cfg.RateLimits["chat.postMessage"])
	assert.InDelta(t, 0.8, cfg.RateLimitMargin, 0.0001)
}

func TestLoadUsesLegacyEnvAsFallback(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-legacy")
	t.Setenv("SLACK_TEAM_ID", "T-legacy")
	t.Setenv("SLACK_CHANNEL_IDS", "C1, C2 ,")
	t.Setenv("AUTH_TOKEN", "legacy-auth")

	v := viper.New()
	v.SetDefault("slack.bot_token", "")
	v.SetDefault("slack.team_id", "T-configured")
	v.SetDefault("auth.token", "")

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "xoxb-legacy", cfg.Slack.BotToken)
	assert.Equal(t, "T-configured", cfg.Slack.TeamID)
	assert.Equal(t, []string{"C1", "C2"}, cfg.Slack.ChannelIDs)
	assert.Equal(t, "legacy-auth", cfg.Auth.Token)
	assert.Same(t, cfg, GetConfig())
}

func TestLoadPrefixedEnv(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("SLACK_MCP_SERVER_PORT", "9999")

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("server.port", 3000)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestLoadDefaultsStorePath(t *testing.T) {
	dataHome := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataHome)

	cfg, err := Load(viper.New())
	require.NoError(t, err)
	require.NotEmpty(t, cfg.Store.Path)
	assert.Equal(t, "messages.db", filepath.Base(cfg.Store.Path))
}

func TestFillEmpty(t *testing.T) {
	dst := map[string]any{
		"slack": map[string]any{"bot_token": "", "team_id": "T1"},
		"auth":  "not-a-map",
	}
	fillEmpty(dst, map[string]any{
		"slack":    map[string]any{"bot_token": "xoxb", "team_id": "T2"},
		"auth":     map[string]any{"token": "tok"},
		"identity": map[string]any{"config_path": "/etc/agents.yaml"},
	})

	assert.Equal(t, map[string]any{"bot_token": "xoxb", "team_id": "T1"}, dst["slack"])
	assert.Equal(t, "not-a-map", dst["auth"])
	assert.Equal(t, map[string]any{"config_path": "/etc/agents.yaml"}, dst["identity"])
}
