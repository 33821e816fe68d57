// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"stockwatch/internal/models"
	"stockwatch/internal/session"
)

// Config holds all application configuration.
type Config struct {
	Database      DatabaseConfig     `mapstructure:"database"`
	Schedule      ScheduleConfig     `mapstructure:"schedule"`
	Market        MarketConfig       `mapstructure:"market"`
	Data          DataConfig         `mapstructure:"data"`
	Retry         RetryConfig        `mapstructure:"retry"`
	UI            UIConfig           `mapstructure:"ui"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Commands      CommandConfig      `mapstructure:"commands"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Credentials   Credentials        `mapstructure:"-"` // Loaded separately
}

// DatabaseConfig holds storage configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ScheduleConfig holds the daemon's cycle timing.
type ScheduleConfig struct {
	IntervalMinutes     int `mapstructure:"interval_minutes"`
	SyncIntervalMinutes int `mapstructure:"sync_interval_minutes"`
}

// MarketConfig describes the monitored market's trading calendar.
type MarketConfig struct {
	Open     string `mapstructure:"open"`     // "HH:MM" wall clock
	Timezone string `mapstructure:"timezone"` // IANA name, e.g. "Europe/Berlin"
}

// DataConfig holds history and averaging parameters.
type DataConfig struct {
	HistoricalDays int   `mapstructure:"historical_days"`
	Windows        []int `mapstructure:"windows"`
}

// RetryConfig holds the retry budget for transient upstream failures.
type RetryConfig struct {
	MaxAttempts    int `mapstructure:"max_attempts"`
	BackoffSeconds int `mapstructure:"backoff_seconds"`
}

// UIConfig holds CLI output configuration.
type UIConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled"`
	DateFormat   string `mapstructure:"date_format"`
	TimeFormat   string `mapstructure:"time_format"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Level    string         `mapstructure:"level"` // all, alerts_only, errors_only
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Email    EmailConfig    `mapstructure:"email"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// TelegramConfig enables the Telegram channel. The bot token and chat ID
// live in credentials.toml, not here.
type TelegramConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// EmailConfig holds email notification configuration.
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
}

// CommandConfig holds the Telegram command listener configuration.
type CommandConfig struct {
	Enabled            bool `mapstructure:"enabled"`
	PollTimeoutSeconds int  `mapstructure:"poll_timeout_seconds"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Credentials holds API credentials.
type Credentials struct {
	Telegram TelegramCredentials `mapstructure:"telegram"`
}

// TelegramCredentials holds the Telegram bot credentials.
type TelegramCredentials struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/stockwatch"
	}
	return filepath.Join(home, ".config", "stockwatch")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	// Load main config
	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	// Load credentials
	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	applyDefaults(cfg, configDir)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, create template
			return createTemplateConfig(configDir, name)
		}
		return err
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STOCKWATCH_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Credentials.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Credentials.Telegram.ChatID = v
	}
}

func applyDefaults(cfg *Config, configDir string) {
	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(configDir, "stockwatch.db")
	}
	if cfg.Schedule.IntervalMinutes == 0 {
		cfg.Schedule.IntervalMinutes = 5
	}
	if cfg.Schedule.SyncIntervalMinutes == 0 {
		cfg.Schedule.SyncIntervalMinutes = 60
	}
	if cfg.Market.Open == "" {
		cfg.Market.Open = "09:00"
	}
	if cfg.Market.Timezone == "" {
		cfg.Market.Timezone = "Europe/Berlin"
	}
	if cfg.Data.HistoricalDays == 0 {
		cfg.Data.HistoricalDays = 150
	}
	if len(cfg.Data.Windows) == 0 {
		for _, w := range models.DefaultWindows() {
			cfg.Data.Windows = append(cfg.Data.Windows, w.Days())
		}
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BackoffSeconds == 0 {
		cfg.Retry.BackoffSeconds = 5
	}
	if cfg.Commands.PollTimeoutSeconds == 0 {
		cfg.Commands.PollTimeoutSeconds = 30
	}
	if cfg.Notifications.Level == "" {
		cfg.Notifications.Level = "all"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.FilePath == "" {
		cfg.Logging.FilePath = filepath.Join(configDir, "logs", "stockwatch.log")
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 100
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 7
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = 30
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Schedule.IntervalMinutes <= 0 {
		return fmt.Errorf("interval_minutes must be positive")
	}
	if c.Schedule.SyncIntervalMinutes <= 0 {
		return fmt.Errorf("sync_interval_minutes must be positive")
	}

	if _, err := session.ParseOpenTime(c.Market.Open); err != nil {
		return fmt.Errorf("market open time: %w", err)
	}
	if _, err := time.LoadLocation(c.Market.Timezone); err != nil {
		return fmt.Errorf("market timezone %q: %w", c.Market.Timezone, err)
	}

	if c.Data.HistoricalDays <= 0 {
		return fmt.Errorf("historical_days must be positive")
	}
	if len(c.Data.Windows) == 0 {
		return fmt.Errorf("at least one averaging window is required")
	}
	for _, w := range c.Data.Windows {
		if w <= 0 {
			return fmt.Errorf("averaging windows must be positive, got %d", w)
		}
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if c.Retry.BackoffSeconds < 0 {
		return fmt.Errorf("backoff_seconds must be non-negative")
	}

	switch c.Notifications.Level {
	case "", "all", "alerts_only", "errors_only":
	default:
		return fmt.Errorf("invalid notification level: %s (must be 'all', 'alerts_only' or 'errors_only')", c.Notifications.Level)
	}

	if c.Notifications.Telegram.Enabled && c.Credentials.Telegram.BotToken == "" {
		return fmt.Errorf("telegram notifications enabled but bot_token is empty")
	}
	if c.Commands.Enabled && c.Credentials.Telegram.BotToken == "" {
		return fmt.Errorf("telegram commands enabled but bot_token is empty")
	}

	return nil
}

// Windows returns the configured averaging windows as models.
func (c *Config) Windows() []models.Window {
	windows := make([]models.Window, 0, len(c.Data.Windows))
	for _, w := range c.Data.Windows {
		windows = append(windows, models.Window(w))
	}
	return windows
}

// MarketLocation returns the configured market timezone. Validate must have
// passed for this to succeed.
func (c *Config) MarketLocation() (*time.Location, error) {
	return time.LoadLocation(c.Market.Timezone)
}

// MarketOpen returns the configured market open time.
func (c *Config) MarketOpen() (session.OpenTime, error) {
	return session.ParseOpenTime(c.Market.Open)
}

// Interval returns the monitoring cycle interval.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Schedule.IntervalMinutes) * time.Minute
}

// SyncInterval returns the history sync interval.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Schedule.SyncIntervalMinutes) * time.Minute
}

// Backoff returns the initial retry backoff.
func (c *Config) Backoff() time.Duration {
	return time.Duration(c.Retry.BackoffSeconds) * time.Second
}
