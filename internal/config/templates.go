package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Stockwatch Configuration

[database]
# SQLite database path. Defaults to <config dir>/stockwatch.db
path = ""

[schedule]
# Minutes between monitoring cycles
interval_minutes = 5
# Minutes between watchlist history syncs
sync_interval_minutes = 60

[market]
# Market open wall-clock time (HH:MM) in the market timezone
open = "09:00"
# IANA timezone of the monitored market
timezone = "Europe/Berlin"

[data]
# Calendar days of daily history to backfill
historical_days = 150
# Averaging windows in trading days
windows = [7, 30, 90]

[retry]
# Attempts per upstream request before giving up
max_attempts = 3
# Initial backoff between attempts in seconds, doubled each retry
backoff_seconds = 5

[ui]
# Enable colored output
color_enabled = true
# Date format
date_format = "02-Jan-2006"
# Time format
time_format = "15:04:05"

[notifications]
# Enable notifications
enabled = false
# Notification level: all, alerts_only, errors_only
level = "all"

[notifications.webhook]
enabled = false
url = ""

[notifications.telegram]
# Bot token and chat ID go in credentials.toml
enabled = false

[notifications.email]
enabled = false
smtp_host = ""
smtp_port = 587
username = ""
password = ""
from = ""
to = ""

[commands]
# Listen for watchlist commands on the Telegram bot
enabled = false
# Long-poll timeout in seconds
poll_timeout_seconds = 30

[logging]
# Log level: debug, info, warn, error
level = "info"
console = true
file = true
# Defaults to <config dir>/logs/stockwatch.log
file_path = ""
max_size_mb = 100
max_backups = 7
max_age_days = 30
`

const credentialsTemplate = `# Stockwatch Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[telegram]
bot_token = ""
chat_id = ""
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return fmt.Errorf("config file not found, created template at %s", path)
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}

	return fmt.Errorf("credentials file not found, created template at %s", path)
}
