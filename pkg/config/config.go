package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingSemanticAPIKey is a deployment defect, not a per-request
// outcome: the authoritative stage cannot run without credentials.
var ErrMissingSemanticAPIKey = errors.New("semantic moderator API key is required")

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Moderation ModerationConfig `mapstructure:"moderation"`
}

type ServerConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ModerationConfig struct {
	Environment     string         `mapstructure:"environment"`
	FailOpen        bool           `mapstructure:"fail_open"`
	TimeoutMs       int            `mapstructure:"timeout_ms"`
	BackoffMs       int            `mapstructure:"backoff_ms"`
	CacheTTLSeconds int            `mapstructure:"cache_ttl_seconds"`
	CacheCapacity   int            `mapstructure:"cache_capacity"`
	Toxicity        ToxicityConfig `mapstructure:"toxicity"`
	Semantic        SemanticConfig `mapstructure:"semantic"`
}

type ToxicityConfig struct {
	APIKey          string  `mapstructure:"api_key"`
	Endpoint        string  `mapstructure:"endpoint"`
	TimeoutMs       int     `mapstructure:"timeout_ms"`
	Threshold       float64 `mapstructure:"threshold"`
	SevereThreshold float64 `mapstructure:"severe_threshold"`
}

type SemanticConfig struct {
	Provider  string `mapstructure:"provider"`
	Model     string `mapstructure:"model"`
	APIKey    string `mapstructure:"api_key"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

func (m ModerationConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutMs) * time.Millisecond
}

func (m ModerationConfig) Backoff() time.Duration {
	return time.Duration(m.BackoffMs) * time.Millisecond
}

func (m ModerationConfig) CacheTTL() time.Duration {
	return time.Duration(m.CacheTTLSeconds) * time.Second
}

func (t ToxicityConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutMs) * time.Millisecond
}

var globalConfig Config

// Load reads config.yaml from the given path (falling back to
// ./config and the working directory) and overlays environment
// variables. A missing file is not an error: environment-only
// deployments are supported.
func Load(configPath string) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaultValues(v)
	bindEnvAliases(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(&globalConfig); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return nil
}

func setDefaultValues(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("moderation.environment", "development")
	v.SetDefault("moderation.fail_open", false)
	v.SetDefault("moderation.timeout_ms", 3000)
	v.SetDefault("moderation.backoff_ms", 500)
	v.SetDefault("moderation.cache_ttl_seconds", 60)
	v.SetDefault("moderation.cache_capacity", 500)

	v.SetDefault("moderation.toxicity.timeout_ms", 2000)
	v.SetDefault("moderation.toxicity.threshold", 0.8)
	v.SetDefault("moderation.toxicity.severe_threshold", 0.7)

	v.SetDefault("moderation.semantic.provider", "openai")
	v.SetDefault("moderation.semantic.model", "gpt-4o-mini")
	v.SetDefault("moderation.semantic.max_tokens", 256)
}

func bindEnvAliases(v *viper.Viper) {
	_ = v.BindEnv("moderation.environment", "ENVIRONMENT")
	_ = v.BindEnv("moderation.fail_open", "MODERATION_FAIL_OPEN")
	_ = v.BindEnv("moderation.timeout_ms", "MODERATION_TIMEOUT_MS")
	_ = v.BindEnv("moderation.semantic.api_key", "SEMANTIC_API_KEY")
	_ = v.BindEnv("moderation.toxicity.api_key", "TOXICITY_API_KEY")
}

// Validate checks for deployment defects that must fail startup. The
// toxicity API key is deliberately not required: its absence disables
// that stage.
func (c *Config) Validate() error {
	if c.Moderation.Semantic.APIKey == "" {
		return ErrMissingSemanticAPIKey
	}
	if c.Moderation.Semantic.Model == "" {
		return errors.New("semantic moderator model is required")
	}
	return nil
}

func GetConfig() *Config {
	return &globalConfig
}
