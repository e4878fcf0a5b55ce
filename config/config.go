// Package config manages application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all settings for an archive run.
type Config struct {
	// DataDir is the root of the archive tree.
	DataDir string `mapstructure:"data_dir"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
	// LogFile switches to JSON logs written to this file and stdout.
	LogFile string `mapstructure:"log_file"`
	// MetricsFile receives Prometheus text-format counters after each run
	// (empty disables).
	MetricsFile string `mapstructure:"metrics_file"`

	YouTube YouTubeConfig `mapstructure:"youtube"`
	LLM     LLMConfig     `mapstructure:"llm"`
}

// YouTubeConfig configures Data API access.
type YouTubeConfig struct {
	// APIKey is enough for public channels, videos and playlists.
	APIKey string `mapstructure:"api_key"`
	// OAuthClientFile is the OAuth client secret JSON used for
	// subscriptions and ratings.
	OAuthClientFile string `mapstructure:"oauth_client_file"`
	// TokenFile caches the user's OAuth token.
	TokenFile string `mapstructure:"token_file"`
	// RequestsPerSecond paces API calls.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	// DailyQuota is the unit budget used for quota warnings.
	DailyQuota int `mapstructure:"daily_quota"`
	// MaxRetries is the number of retries for a failed API call. Zero
	// makes a failure abort the batch.
	MaxRetries int `mapstructure:"max_retries"`
	// InitialBackoff and MaxBackoff bound the retry delays.
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// LLMConfig configures the text-completion endpoint.
type LLMConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
	ExtractModel string        `mapstructure:"extract_model"`
	FormatModel  string        `mapstructure:"format_model"`
}

// Load reads configuration. Priority: environment (YTARCHIVE_*) >
// ytarchive.yaml > defaults. An explicit path must exist; otherwise the
// file is looked up in the working directory and ~/.config/ytarchive.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("YTARCHIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ytarchive")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "ytarchive"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "data")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("metrics_file", "")

	v.SetDefault("youtube.api_key", "")
	v.SetDefault("youtube.oauth_client_file", "")
	v.SetDefault("youtube.token_file", "var/token.json")
	v.SetDefault("youtube.requests_per_second", 5.0)
	v.SetDefault("youtube.daily_quota", 10000)
	v.SetDefault("youtube.max_retries", 0)
	v.SetDefault("youtube.initial_backoff", time.Second)
	v.SetDefault("youtube.max_backoff", 30*time.Second)

	v.SetDefault("llm.base_url", "http://localhost:11434")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.timeout", 5*time.Minute)
	v.SetDefault("llm.extract_model", "gpt-4.1")
	v.SetDefault("llm.format_model", "gpt-4o")
}

// Validate checks that configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	}
	if c.YouTube.RequestsPerSecond <= 0 {
		return fmt.Errorf("youtube.requests_per_second must be positive")
	}
	if c.YouTube.DailyQuota <= 0 {
		return fmt.Errorf("youtube.daily_quota must be positive")
	}
	if c.YouTube.MaxRetries < 0 {
		return fmt.Errorf("youtube.max_retries must be non-negative")
	}
	if c.YouTube.InitialBackoff <= 0 {
		return fmt.Errorf("youtube.initial_backoff must be positive")
	}
	if c.YouTube.MaxBackoff < c.YouTube.InitialBackoff {
		return fmt.Errorf("youtube.max_backoff must be >= youtube.initial_backoff")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive")
	}
	return nil
}

// HasUserCredentials reports whether OAuth is configured, which the
// subscription and rating commands require.
func (c *Config) HasUserCredentials() bool {
	return c.YouTube.OAuthClientFile != ""
}
