// Package config provides configuration management for the identity server.
// Settings are layered with viper and decoded into a typed Config with
// mapstructure.
package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// AppName names the XDG config and data directories.
const AppName = "slack-mcp-identity-server"

// EnvPrefix prefixes every environment variable bound through viper.
const EnvPrefix = "SLACK_MCP"

var (
	appConfig *Config
	configMu  sync.RWMutex
)

// EnvVarSpec defines environment variable mappings for config fields.
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// LegacyEnvSpecs maps the unprefixed variables of earlier releases onto
// config paths. They only fill values that are otherwise empty.
func LegacyEnvSpecs() []EnvVarSpec {
	return []EnvVarSpec{
		{Name: "SLACK_BOT_TOKEN", Path: []string{"slack", "bot_token"}, Type: EnvString},
		{Name: "SLACK_USER_TOKEN", Path: []string{"slack", "user_token"}, Type: EnvString},
		{Name: "SLACK_TEAM_ID", Path: []string{"slack", "team_id"}, Type: EnvString},
		{Name: "SLACK_CHANNEL_IDS", Path: []string{"slack", "channel_ids"}, Type: EnvString},
		{Name: "SLACK_AGENT_CONFIG_PATH", Path: []string{"identity", "config_path"}, Type: EnvString},
		{Name: "AUTH_TOKEN", Path: []string{"auth", "token"}, Type: EnvString},
	}
}

// Load decodes the settings held by v, fills empty values from the legacy
// environment variables, and stores the result for GetConfig.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}

	settings := v.AllSettings()
	legacy, err := gfconfig.LoadEnvOverrides(LegacyEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	fillEmpty(settings, legacy)
	if limits, ok := settings["rate_limits"].(map[string]any); ok {
		settings["rate_limits"] = flattenKeys(limits, "")
	}

	cfg, err := Decode(settings)
	if err != nil {
		return nil, err
	}
	normalize(cfg)

	setConfig(cfg)
	return cfg, nil
}

// Decode converts a nested settings map into a Config.
func Decode(settings map[string]any) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(AppName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultStorePath returns the XDG-compliant path to the message log database.
func DefaultStorePath() string {
	dataDir := gfconfig.GetAppDataDir(AppName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, "messages.db")
}

func normalize(cfg *Config) {
	ids := cfg.Slack.ChannelIDs[:0]
	for _, id := range cfg.Slack.ChannelIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	cfg.Slack.ChannelIDs = ids

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}
}

// flattenKeys undoes viper's splitting of dotted keys, so a configured
// "chat.postMessage" limit comes back as one (lowercased) key.
func flattenKeys(m map[string]any, prefix string) map[string]any {
	out := make(map[string]any, len(m))
	for key, value := range m {
		if prefix != "" {
			key = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			for k, v := range flattenKeys(nested, key) {
				out[k] = v
			}
			continue
		}
		out[key] = value
	}
	return out
}

// fillEmpty copies values from src into dst wherever dst has no value or a
// zero value at the same path.
func fillEmpty(dst, src map[string]any) {
	for key, value := range src {
		if nested, ok := value.(map[string]any); ok {
			child, ok := dst[key].(map[string]any)
			if !ok {
				if !isEmpty(dst[key]) {
					continue
				}
				child = map[string]any{}
				dst[key] = child
			}
			fillEmpty(child, nested)
			continue
		}
		if isEmpty(dst[key]) {
			dst[key] = value
		}
	}
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map:
		return rv.Len() == 0
	default:
		return rv.IsZero()
	}
}
