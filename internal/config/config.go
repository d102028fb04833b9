// Package config loads application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.flowagent/config.yaml or ./config.yaml)
//  3. Default values
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidProvider indicates the model provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidOllamaHost indicates the Ollama host is empty while the
	// ollama provider is selected.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidHistorySize indicates a non-positive retention bound.
	ErrInvalidHistorySize = errors.New("invalid history size")

	// ErrInvalidRetrySettings indicates a non-positive attempt count or delay.
	ErrInvalidRetrySettings = errors.New("invalid retry settings")
)

// Model provider identifiers used in Config.Provider.
const (
	ProviderOllama   = "ollama"
	ProviderGoogleAI = "googleai"
)

// Config stores application configuration.
type Config struct {
	// Model provider configuration
	Provider   string `mapstructure:"provider"`
	ModelName  string `mapstructure:"model_name"`
	OllamaHost string `mapstructure:"ollama_host"`

	// Conversation memory bounds
	MaxMessages   int `mapstructure:"max_messages"`
	MaxToolUsages int `mapstructure:"max_tool_usages"`

	// Chain execution settings
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	StepTimeout time.Duration `mapstructure:"step_timeout"`

	// Collaborator query timeout
	QueryTimeout time.Duration `mapstructure:"query_timeout"`

	// Outbound HTTP settings for capability modules
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	RequestsPerSec float64       `mapstructure:"requests_per_sec"`
	WAQIToken      string        `mapstructure:"waqi_token"`
	NominatimAgent string        `mapstructure:"nominatim_agent"`
	ChainFileDir   string        `mapstructure:"chain_file_dir"`
}

// Load reads configuration from file and environment, validating the result.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".flowagent")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderOllama)
	v.SetDefault("model_name", "llama3.2")
	v.SetDefault("ollama_host", "http://localhost:11434")

	v.SetDefault("max_messages", 10)
	v.SetDefault("max_tool_usages", 5)

	v.SetDefault("cache_ttl", 300*time.Second)
	v.SetDefault("max_attempts", 3)
	v.SetDefault("retry_delay", time.Second)
	v.SetDefault("step_timeout", 15*time.Second)

	v.SetDefault("query_timeout", 60*time.Second)

	v.SetDefault("http_timeout", 10*time.Second)
	v.SetDefault("requests_per_sec", 2.0)
	v.SetDefault("nominatim_agent", "flowagent/1.0")
	v.SetDefault("chain_file_dir", "chains")
}

func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "FLOWAGENT_PROVIDER")
	mustBind("model_name", "FLOWAGENT_MODEL_NAME")
	mustBind("ollama_host", "FLOWAGENT_OLLAMA_HOST")
	mustBind("waqi_token", "WAQI_TOKEN")
}

// Validate fails fast on configuration that would break at first use.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOllama:
		if c.OllamaHost == "" {
			return ErrInvalidOllamaHost
		}
	case ProviderGoogleAI:
	default:
		return fmt.Errorf("%w: %q (supported: %s, %s)",
			ErrInvalidProvider, c.Provider, ProviderOllama, ProviderGoogleAI)
	}

	if c.ModelName == "" {
		return ErrInvalidModelName
	}
	if c.MaxMessages <= 0 || c.MaxToolUsages <= 0 {
		return fmt.Errorf("%w: max_messages=%d max_tool_usages=%d",
			ErrInvalidHistorySize, c.MaxMessages, c.MaxToolUsages)
	}
	if c.MaxAttempts < 1 || c.RetryDelay <= 0 || c.StepTimeout <= 0 {
		return fmt.Errorf("%w: max_attempts=%d retry_delay=%s step_timeout=%s",
			ErrInvalidRetrySettings, c.MaxAttempts, c.RetryDelay, c.StepTimeout)
	}
	return nil
}
