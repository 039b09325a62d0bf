package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const minSecretLength = 32

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	Path string
}

type TerminalConfig struct {
	BridgeURL string
	Timeout   time.Duration
	PoolSize  int
}

type PipelineConfig struct {
	Workers   int
	QueueSize int
}

type AuthConfig struct {
	JWTSecret          string
	RateLimitPerMinute int
}

type RulesConfig struct {
	// PresetsFile optionally points at a YAML file of named rule presets.
	PresetsFile string
}

type WebhookConfig struct {
	// AllowPrivate permits loopback/private callback targets. Local
	// development only.
	AllowPrivate bool
}

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Terminal TerminalConfig
	Pipeline PipelineConfig
	Auth     AuthConfig
	Rules    RulesConfig
	Webhook  WebhookConfig
	LogLevel string
}

// Load reads configuration from the environment, with .env support.
func Load() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("PROPCHECK_HOST", "127.0.0.1")
	viper.SetDefault("PROPCHECK_PORT", 8000)
	viper.SetDefault("PROPCHECK_DATABASE_PATH", "propcheck.db")
	viper.SetDefault("PROPCHECK_TERMINAL_BRIDGE_URL", "http://127.0.0.1:8787")
	viper.SetDefault("PROPCHECK_TERMINAL_TIMEOUT", "30s")
	viper.SetDefault("PROPCHECK_POOL_SIZE", 3)
	viper.SetDefault("PROPCHECK_WORKERS", 2)
	viper.SetDefault("PROPCHECK_QUEUE_SIZE", 256)
	viper.SetDefault("PROPCHECK_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("PROPCHECK_LOG_LEVEL", "info")

	timeout, err := time.ParseDuration(viper.GetString("PROPCHECK_TERMINAL_TIMEOUT"))
	if err != nil {
		return nil, fmt.Errorf("invalid terminal timeout: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("PROPCHECK_HOST"),
			Port: viper.GetInt("PROPCHECK_PORT"),
		},
		Database: DatabaseConfig{
			Path: viper.GetString("PROPCHECK_DATABASE_PATH"),
		},
		Terminal: TerminalConfig{
			BridgeURL: viper.GetString("PROPCHECK_TERMINAL_BRIDGE_URL"),
			Timeout:   timeout,
			PoolSize:  viper.GetInt("PROPCHECK_POOL_SIZE"),
		},
		Pipeline: PipelineConfig{
			Workers:   viper.GetInt("PROPCHECK_WORKERS"),
			QueueSize: viper.GetInt("PROPCHECK_QUEUE_SIZE"),
		},
		Auth: AuthConfig{
			JWTSecret:          viper.GetString("PROPCHECK_JWT_SECRET"),
			RateLimitPerMinute: viper.GetInt("PROPCHECK_RATE_LIMIT_PER_MINUTE"),
		},
		Rules: RulesConfig{
			PresetsFile: viper.GetString("PROPCHECK_RULES_PRESETS"),
		},
		Webhook: WebhookConfig{
			AllowPrivate: viper.GetBool("PROPCHECK_WEBHOOK_ALLOW_PRIVATE"),
		},
		LogLevel: viper.GetString("PROPCHECK_LOG_LEVEL"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails fast on settings that would only break at runtime.
func (c *Config) Validate() error {
	if c.Terminal.BridgeURL == "" {
		return fmt.Errorf("PROPCHECK_TERMINAL_BRIDGE_URL is required")
	}
	if c.Terminal.PoolSize <= 0 {
		return fmt.Errorf("PROPCHECK_POOL_SIZE must be positive")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("PROPCHECK_WORKERS must be positive")
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < minSecretLength {
		return fmt.Errorf("PROPCHECK_JWT_SECRET must be at least %d characters", minSecretLength)
	}
	return nil
}

// Addr returns the host:port the API listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
