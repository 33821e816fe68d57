package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"stockwatch/internal/alert"
	"stockwatch/internal/analysis"
	"stockwatch/internal/config"
	"stockwatch/internal/logging"
	"stockwatch/internal/marketdata"
	"stockwatch/internal/monitor"
	"stockwatch/internal/notify"
	"stockwatch/internal/session"
	"stockwatch/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-07-01"
)

// App holds the application dependencies.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Store    store.DataStore
	Provider marketdata.Provider
	Notifier notify.Notifier
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize SQLite store
	dataStore, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize store, most commands will be unavailable")
	} else {
		app.Store = dataStore
		logger.Debug().Str("path", cfg.Database.Path).Msg("SQLite store initialized")
	}

	app.Provider = marketdata.NewYahooClient(logger,
		marketdata.WithRetryPolicy(cfg.Retry.MaxAttempts, cfg.Backoff()))

	if cfg.Notifications.Enabled {
		app.Notifier = notify.NewMultiNotifier(&cfg.Notifications, cfg.Credentials.Telegram)
		logger.Debug().Msg("Notification channels initialized")
	} else {
		app.Notifier = notify.NewNoOpNotifier()
	}

	rootCmd := &cobra.Command{
		Use:   "stockwatch",
		Short: "Stockwatch - stock price monitoring with session-aware alerts",
		Long: `Stockwatch watches a list of stock symbols and alerts when the current
price drops below its rolling 7, 30 or 90 day average.

Each alert fires at most once per trading session for a given symbol and
window. Alerts go out over Telegram, webhooks or email; the watchlist can
be managed from the CLI or over the Telegram bot.

Use 'stockwatch help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Handle debug flag
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/stockwatch)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	// Add all command groups
	addCoreCommands(rootCmd, app)
	addWatchlistCommands(rootCmd, app)
	addMonitorCommands(rootCmd, app)
	addDataCommands(rootCmd, app)

	return rootCmd
}

// newOrchestrator wires the monitoring pipeline from the app's dependencies.
func (app *App) newOrchestrator() (*monitor.Orchestrator, error) {
	if app.Store == nil {
		return nil, fmt.Errorf("data store is not available")
	}

	loc, err := app.Config.MarketLocation()
	if err != nil {
		return nil, fmt.Errorf("resolving market timezone: %w", err)
	}
	open, err := app.Config.MarketOpen()
	if err != nil {
		return nil, fmt.Errorf("parsing market open time: %w", err)
	}

	calc := analysis.NewCalculator(app.Store, app.Config.Windows())
	sessions := session.NewResolver(loc, open)
	ledger := alert.NewLedger(app.Store, app.Logger)

	return monitor.NewOrchestrator(
		app.Store, app.Provider, app.Notifier, calc, sessions, ledger, app.Logger,
		monitor.WithHistoricalDays(app.Config.Data.HistoricalDays),
	), nil
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Stockwatch v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Schedule")
	output.Printf("  Check Interval:  %d min\n", cfg.Schedule.IntervalMinutes)
	output.Printf("  Sync Interval:   %d min\n", cfg.Schedule.SyncIntervalMinutes)
	output.Println()

	output.Bold("Market")
	output.Printf("  Open:            %s\n", cfg.Market.Open)
	output.Printf("  Timezone:        %s\n", cfg.Market.Timezone)
	output.Println()

	output.Bold("Data")
	output.Printf("  Historical Days: %d\n", cfg.Data.HistoricalDays)
	output.Printf("  Windows:         %v\n", cfg.Data.Windows)
	output.Printf("  Database:        %s\n", cfg.Database.Path)
	output.Println()

	output.Bold("Retry")
	output.Printf("  Max Attempts:    %d\n", cfg.Retry.MaxAttempts)
	output.Printf("  Backoff:         %ds\n", cfg.Retry.BackoffSeconds)
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Enabled:         %v\n", cfg.Notifications.Enabled)
	output.Printf("  Level:           %s\n", cfg.Notifications.Level)
	output.Printf("  Webhook:         %v\n", cfg.Notifications.Webhook.Enabled)
	output.Printf("  Telegram:        %v\n", cfg.Notifications.Telegram.Enabled)
	output.Printf("  Email:           %v\n", cfg.Notifications.Email.Enabled)
	output.Println()

	output.Bold("Commands")
	output.Printf("  Telegram Bot:    %v\n", cfg.Commands.Enabled)
	output.Printf("  Poll Timeout:    %ds\n", cfg.Commands.PollTimeoutSeconds)

	return nil
}
