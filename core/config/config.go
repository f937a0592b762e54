package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings that are common for all bots.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	APIHost string `yaml:"api_host" envconfig:"TELEGRAM_API_HOST"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default (60)
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
	// UpdateLimit caps a single getUpdates batch; 0 -> default (100)
	UpdateLimit int `yaml:"update_limit" envconfig:"TELEGRAM_UPDATE_LIMIT"`
	// AllowedUpdates lists update kinds requested from the server
	// (snake_case names). Empty means server defaults.
	AllowedUpdates []string `yaml:"allowed_updates" envconfig:"TELEGRAM_ALLOWED_UPDATES"`
}

// RuntimeConfig tunes the concurrent dispatch layer.
type RuntimeConfig struct {
	// MessageWorkers bounds concurrent message handling across chats; 0 -> default (8)
	MessageWorkers int `yaml:"message_workers" envconfig:"RUNTIME_MESSAGE_WORKERS"`
	// CallbackWorkers bounds concurrent callback handling across chats; 0 -> default (4)
	CallbackWorkers int `yaml:"callback_workers" envconfig:"RUNTIME_CALLBACK_WORKERS"`
	// QueueSize is the capacity of the message and callback queues; 0 -> default (256)
	QueueSize int `yaml:"queue_size" envconfig:"RUNTIME_QUEUE_SIZE"`
	// SessionIdleSeconds expires a chat session after inactivity; 0 disables expiry
	SessionIdleSeconds int `yaml:"session_idle_seconds" envconfig:"RUNTIME_SESSION_IDLE_SECONDS"`
	// ShutdownGraceSeconds bounds per-session teardown at shutdown; 0 -> default (5)
	ShutdownGraceSeconds int `yaml:"shutdown_grace_seconds" envconfig:"RUNTIME_SHUTDOWN_GRACE_SECONDS"`
	// StatsSchedule is a cron spec for the runtime stats report; empty disables it
	StatsSchedule string `yaml:"stats_schedule" envconfig:"RUNTIME_STATS_SCHEDULE"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// DatabaseConfig holds optional checkpoint database settings.
type DatabaseConfig struct {
	Enabled        bool   `yaml:"enabled" envconfig:"DB_ENABLED"`
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// Config aggregates all core settings shared between bots.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Runtime  RuntimeConfig  `yaml:"runtime"`
	Logging  LoggingConfig  `yaml:"logging"`
	Database DatabaseConfig `yaml:"database"`
}

// Load reads the YAML file at path and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("config: env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that cannot be defaulted away.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("config: telegram token is required")
	}
	if c.Telegram.LongPollTimeoutSeconds < 0 {
		return fmt.Errorf("config: longpoll_timeout_seconds must be >= 0")
	}
	if c.Telegram.UpdateLimit < 0 || c.Telegram.UpdateLimit > 100 {
		return fmt.Errorf("config: update_limit must be within [0, 100]")
	}
	return nil
}
