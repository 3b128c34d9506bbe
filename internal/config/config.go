package config

import "time"

// Config is the complete application configuration. Values come from, in
// increasing precedence: defaults, the config file, SLACK_MCP_* environment
// variables, and command-line flags. The unprefixed variables of earlier
// releases (SLACK_BOT_TOKEN, AUTH_TOKEN, ...) fill any value left empty.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Slack     SlackConfig     `mapstructure:"slack"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Transport TransportConfig `mapstructure:"transport"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	Store     StoreConfig     `mapstructure:"store"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Throttle  ThrottleConfig  `mapstructure:"throttle"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Health    HealthConfig    `mapstructure:"health"`

	RateLimits      map[string]int `mapstructure:"rate_limits"`
	RateLimitMargin float64        `mapstructure:"rate_limit_margin"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SlackConfig holds workspace credentials.
type SlackConfig struct {
	BaseURL    string   `mapstructure:"base_url"`
	BotToken   string   `mapstructure:"bot_token"`
	UserToken  string   `mapstructure:"user_token"`
	TeamID     string   `mapstructure:"team_id"`
	ChannelIDs []string `mapstructure:"channel_ids"`
}

// SchedulerConfig tunes outbound admission.
type SchedulerConfig struct {
	DelayThreshold time.Duration `mapstructure:"delay_threshold"`
	SafetyMargin   time.Duration `mapstructure:"safety_margin"`
	CallTimeout    time.Duration `mapstructure:"call_timeout"`
}

// TransportConfig tunes retries of failed HTTP attempts.
type TransportConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// IdentityConfig points at the agent identity file.
type IdentityConfig struct {
	ConfigPath string `mapstructure:"config_path"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// AuthConfig holds the bearer token required on /v1 routes and the token
// guarding the admin signal endpoint.
type AuthConfig struct {
	Token      string `mapstructure:"token"`
	AdminToken string `mapstructure:"admin_token"`
}

// ThrottleConfig limits inbound tool calls per client. When RedisURL is
// set every decision is also counted in Redis.
type ThrottleConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Rate        float64       `mapstructure:"rate"`
	Burst       int           `mapstructure:"burst"`
	RedisURL    string        `mapstructure:"redis_url"`
	StatsPrefix string        `mapstructure:"stats_prefix"`
	StatsTTL    time.Duration `mapstructure:"stats_ttl"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}
