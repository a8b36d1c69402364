package app

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/leadsync/internal/database"
	"github.com/agentstation/leadsync/pkg/constants"
	"github.com/agentstation/leadsync/pkg/errors"
)

// EnvPrefix prefixes every environment variable read by the CLI.
const EnvPrefix = "LEADSYNC"

// Config holds the application configuration loaded from various sources
// including config files, environment variables, and .env files.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	Format  string

	// Config file
	ConfigFile string

	// Listener
	ListenHost string
	ListenPort int

	// Origins
	UpstreamURL string
	APIURL      string

	// Asset cache
	CacheVersion string
	Manifest     string
	NetworkOnly  []string

	// Durable store
	StoreBackend string
	StoreDSN     string

	// Sync and notification
	Topic         string
	SyncInterval  time.Duration
	ProbeURL      string
	ProbeInterval time.Duration

	// Local API
	RateLimit   int
	CORSOrigins []string
	AdminKey    string

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string
}

// LoadConfig loads configuration from all sources in order of precedence:
// 1. Command-line flags (handled by cobra)
// 2. Environment variables (LEADSYNC_*)
// 3. .env files
// 4. Config file (path, or ~/.leadsync.yaml)
// 5. Defaults
func LoadConfig(path string) (*Config, error) {
	// Load .env files first (before Viper env binding)
	loadEnvFiles()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".leadsync")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// An explicit path must exist; the default location is optional.
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.NewConfigError("config", "cannot read config file", err)
		}
	}

	config := &Config{
		Verbose: v.GetBool("verbose"),
		Quiet:   v.GetBool("quiet"),
		Format:  v.GetString("format"),

		ConfigFile: v.ConfigFileUsed(),

		ListenHost: v.GetString("listen_host"),
		ListenPort: v.GetInt("listen_port"),

		UpstreamURL: v.GetString("upstream_url"),
		APIURL:      v.GetString("api_url"),

		CacheVersion: v.GetString("cache_version"),
		Manifest:     v.GetString("manifest"),
		NetworkOnly:  splitList(v.GetStringSlice("network_only")),

		StoreBackend: v.GetString("store_backend"),
		StoreDSN:     v.GetString("store_dsn"),

		Topic:         v.GetString("topic"),
		SyncInterval:  v.GetDuration("sync_interval"),
		ProbeURL:      v.GetString("probe_url"),
		ProbeInterval: v.GetDuration("probe_interval"),

		RateLimit:   v.GetInt("rate_limit"),
		CORSOrigins: splitList(v.GetStringSlice("cors_origins")),
		AdminKey:    v.GetString("admin_key"),

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
		LogOutput: v.GetString("log_output"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_host", constants.DefaultListenHost)
	v.SetDefault("listen_port", constants.DefaultListenPort)
	v.SetDefault("store_backend", string(database.SQLite))
	v.SetDefault("topic", constants.DefaultTopic)
	v.SetDefault("probe_interval", constants.DefaultProbeInterval)
	v.SetDefault("rate_limit", constants.DefaultRateLimit)
	v.SetDefault("log_format", "auto")
	v.SetDefault("log_output", "stderr")
}

// Validate checks values that would otherwise fail deep inside a command.
func (c *Config) Validate() error {
	if _, err := database.ParseBackend(c.StoreBackend); err != nil {
		return err
	}
	if c.ListenPort < 1 || c.ListenPort > 65535 {
		return errors.NewValidationError("listen_port", c.ListenPort, "must be between 1 and 65535")
	}
	if c.SyncInterval < 0 {
		return errors.NewValidationError("sync_interval", c.SyncInterval, "must not be negative")
	}
	if c.RateLimit < 0 {
		return errors.NewValidationError("rate_limit", c.RateLimit, "must not be negative")
	}
	return nil
}

// UpdateFromFlags updates config values from parsed command flags.
// This should be called after cobra parses flags to ensure flag
// values take precedence over config file and env vars.
func (c *Config) UpdateFromFlags(verbose, quiet bool, format, logLevel string) {
	c.Verbose = c.Verbose || verbose
	c.Quiet = c.Quiet || quiet
	if format != "" {
		c.Format = format
	}
	switch {
	case logLevel != "":
		c.LogLevel = logLevel
	case verbose || quiet:
		// Shortcut flags outrank a level from the environment.
		c.LogLevel = ""
	}
}

// loadEnvFiles loads environment variables from .env files.
func loadEnvFiles() {
	// .env.local overrides .env
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
