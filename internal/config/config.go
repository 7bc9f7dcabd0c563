package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.yaml.in/yaml/v3"
)

// Config is the startup configuration. Values come from an optional YAML
// file first, then environment variables on top (env wins), then defaults
// for whatever is still zero. Persisted settings (interval, volume, notify
// channel) live in the database afterwards; the values here only seed it.
type Config struct {
	BotToken        string `yaml:"bot_token" env:"AMBUSH_BOT_TOKEN"`
	GuildID         string `yaml:"guild_id" env:"AMBUSH_GUILD_ID"`
	NotifyChannelID string `yaml:"notify_channel_id" env:"AMBUSH_NOTIFY_CHANNEL_ID"`

	DBPath      string        `yaml:"db_path" env:"AMBUSH_DB_PATH"`
	BusyTimeout time.Duration `yaml:"busy_timeout" env:"AMBUSH_DB_BUSY_TIMEOUT"`
	ImportDir   string        `yaml:"import_dir" env:"AMBUSH_IMPORT_DIR"`

	WebHost     string `yaml:"web_host" env:"AMBUSH_WEB_HOST"`
	WebPort     int    `yaml:"web_port" env:"AMBUSH_WEB_PORT"`
	WebRootPath string `yaml:"web_root_path" env:"AMBUSH_WEB_ROOT_PATH"`

	DefaultInterval int `yaml:"default_interval" env:"AMBUSH_INTERVAL"`
	DefaultVolume   int `yaml:"default_volume" env:"AMBUSH_VOLUME"`

	MaxPlayDuration time.Duration `yaml:"max_play_duration" env:"AMBUSH_MAX_PLAY_DURATION"`
	LeaveAfterEmpty int           `yaml:"leave_after_empty" env:"AMBUSH_LEAVE_AFTER_EMPTY"`

	AuditRetention time.Duration `yaml:"audit_retention" env:"AMBUSH_AUDIT_RETENTION"`

	LogLevel string `yaml:"log_level" env:"AMBUSH_LOG_LEVEL"`
	LogFile  string `yaml:"log_file" env:"AMBUSH_LOG_FILE"`
}

// Load reads the optional YAML file at path, overlays the environment and
// fills defaults. The result is validated.
func Load(path string) (Config, error) {
	var cfg Config

	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// Env vars override the file; unset vars leave file values alone.
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "./ambush.db"
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = 5 * time.Second
	}
	if c.WebHost == "" {
		c.WebHost = "0.0.0.0"
	}
	if c.WebPort == 0 {
		c.WebPort = 8000
	}
	if c.DefaultInterval == 0 {
		c.DefaultInterval = 30
	}
	if c.DefaultVolume == 0 {
		c.DefaultVolume = 100
	}
	if c.MaxPlayDuration <= 0 {
		c.MaxPlayDuration = 2 * time.Minute
	}
	if c.AuditRetention <= 0 {
		c.AuditRetention = 90 * 24 * time.Hour
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate rejects a configuration the process cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BotToken) == "" {
		return fmt.Errorf("bot_token (AMBUSH_BOT_TOKEN) is required")
	}
	if strings.TrimSpace(c.GuildID) == "" {
		return fmt.Errorf("guild_id (AMBUSH_GUILD_ID) is required")
	}
	if c.DefaultInterval < 30 || c.DefaultInterval > 3600 {
		return fmt.Errorf("default_interval must be between 30 and 3600 seconds, got %d", c.DefaultInterval)
	}
	if c.DefaultVolume < 0 || c.DefaultVolume > 100 {
		return fmt.Errorf("default_volume must be between 0 and 100, got %d", c.DefaultVolume)
	}
	if c.WebPort < 1 || c.WebPort > 65535 {
		return fmt.Errorf("web_port must be a valid port, got %d", c.WebPort)
	}
	if c.LeaveAfterEmpty < 0 {
		return fmt.Errorf("leave_after_empty must not be negative, got %d", c.LeaveAfterEmpty)
	}
	return nil
}
