package cmd

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/config"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/observability"
)

var (
	cfgFile string
	verbose bool

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "Slack tools with per-agent identities behind a rate-limited scheduler",
	Long: `slack-mcp-identity-server exposes Slack Web API tools over HTTP.

Every outbound call passes through a priority scheduler that keeps each
Slack method inside its per-minute budget, pauses on rate limit responses,
and retries server errors with backoff. Posting tools can impersonate a
configured agent identity (username and icon).

Use the subcommands to perform specific operations.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Config loading must not emit metrics to stdout; serve installs the
	// real telemetry system later.
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/"+config.AppName+"/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	observability.InitCLILogger(config.AppName, verbose)
	configureViper(viper.GetViper(), cfgFile)

	if err := viper.ReadInConfig(); err == nil {
		observability.CLILogger.Debug("Using config file", zap.String("path", viper.ConfigFileUsed()))
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		observability.CLILogger.Debug("No config file found, using defaults and environment variables")
	} else if cfgFile != "" {
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Error reading config file", err)
	} else {
		observability.CLILogger.Warn("Error reading config file", zap.Error(err))
	}
}

// configureViper sets search paths, environment binding, and defaults on v.
func configureViper(v *viper.Viper, file string) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		if path := config.DefaultConfigPath(); path != "" {
			v.AddConfigPath(filepath.Dir(path))
		} else if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath("./config")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
}

// setDefaults sets default configuration values. Every key needs a default
// so AutomaticEnv can see it during AllSettings.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "2m")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Slack defaults
	v.SetDefault("slack.base_url", "https://slack.com/api")
	v.SetDefault("slack.bot_token", "")
	v.SetDefault("slack.user_token", "")
	v.SetDefault("slack.team_id", "")
	v.SetDefault("slack.channel_ids", "")

	// Scheduler defaults
	v.SetDefault("scheduler.delay_threshold", "10s")
	v.SetDefault("scheduler.safety_margin", "100ms")
	v.SetDefault("scheduler.call_timeout", "90s")

	// Transport defaults
	v.SetDefault("transport.max_attempts", 3)
	v.SetDefault("transport.base_delay", "1s")
	v.SetDefault("transport.max_delay", "30s")
	v.SetDefault("transport.request_timeout", "30s")

	v.SetDefault("identity.config_path", "")

	// Auth and inbound throttle defaults
	v.SetDefault("auth.token", "")
	v.SetDefault("auth.admin_token", "")
	v.SetDefault("throttle.enabled", true)
	v.SetDefault("throttle.rate", 5)
	v.SetDefault("throttle.burst", 20)
	v.SetDefault("throttle.redis_url", "")
	v.SetDefault("throttle.stats_prefix", "slack_mcp:throttle")
	v.SetDefault("throttle.stats_ttl", "24h")

	// Store defaults
	v.SetDefault("store.enabled", false)
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", config.DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	// Rate limit overrides (optional)
	v.SetDefault("rate_limits", map[string]int{})
	v.SetDefault("rate_limit_margin", 1.0)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("health.enabled", true)
}

// loadConfig decodes the global viper state into a typed config.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}
