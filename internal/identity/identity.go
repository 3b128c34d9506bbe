// Package identity loads per-agent display identities and resolves which one
// a posted message should use.
package identity

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core"
)

// SupportedVersion is the only agent config schema version accepted.
const SupportedVersion = "1.0"

// Identity is the display name and avatar a message is posted under.
type Identity struct {
	Username  string `yaml:"username" json:"username"`
	IconEmoji string `yaml:"icon_emoji,omitempty" json:"icon_emoji,omitempty"`
	IconURL   string `yaml:"icon_url,omitempty" json:"icon_url,omitempty"`
}

// AgentConfig maps agent ids to identities.
type AgentConfig struct {
	Version         string              `yaml:"version" json:"version"`
	DefaultIdentity Identity            `yaml:"defaultIdentity" json:"defaultIdentity"`
	Agents          map[string]Identity `yaml:"agents" json:"agents"`
}

// Load reads an agent config from a YAML or JSON file. An empty path or a
// missing file yields a nil config; the latter is logged as a warning.
func Load(path string, logger core.Logger) (*AgentConfig, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		core.LoggerOrNop(logger).Warn("agent config file not readable",
			zap.String("path", path),
			zap.Error(err))
		return nil, nil
	}

	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("agent config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates an agent config document.
func Parse(raw []byte) (*AgentConfig, error) {
	var cfg AgentConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if cfg.Version != SupportedVersion {
		return nil, fmt.Errorf("invalid agent config: expected version %q, got %q", SupportedVersion, cfg.Version)
	}
	if strings.TrimSpace(cfg.DefaultIdentity.Username) == "" {
		return nil, fmt.Errorf("invalid agent config: missing defaultIdentity with username")
	}
	if cfg.Agents == nil {
		cfg.Agents = map[string]Identity{}
	}
	return &cfg, nil
}

// Args are the identity-related arguments of a posting tool.
type Args struct {
	Username  string `json:"username,omitempty"`
	IconEmoji string `json:"icon_emoji,omitempty"`
	IconURL   string `json:"icon_url,omitempty"`
	AgentID   string `json:"agent_id,omitempty"`
}

// Resolve picks an identity in order: explicit username, configured agent,
// configured default. It returns nil when none applies.
func Resolve(args Args, cfg *AgentConfig) *Identity {
	if args.Username != "" {
		return &Identity{
			Username:  args.Username,
			IconEmoji: args.IconEmoji,
			IconURL:   args.IconURL,
		}
	}
	if cfg == nil {
		return nil
	}
	if args.AgentID != "" {
		if agent, ok := cfg.Agents[args.AgentID]; ok {
			return &agent
		}
	}
	def := cfg.DefaultIdentity
	return &def
}
