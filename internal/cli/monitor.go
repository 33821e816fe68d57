package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/spf13/cobra"

	"stockwatch/internal/command"
	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/models"
	"stockwatch/internal/monitor"
	"stockwatch/internal/notify"
	"stockwatch/internal/store"
	"stockwatch/pkg/utils"
)

// addMonitorCommands adds the monitoring commands.
func addMonitorCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newCheckCmd(app))
	rootCmd.AddCommand(newWatchCmd(app))
	rootCmd.AddCommand(newAlertsCmd(app))
}

func newCheckCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run one monitoring cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			orch, err := app.newOrchestrator()
			if err != nil {
				return err
			}

			stats, err := orch.RunCycle(cmd.Context())
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"checked":     stats.Checked,
					"alerted":     stats.Alerted,
					"skipped":     stats.Skipped,
					"duration_ms": stats.Duration.Milliseconds(),
				})
			}

			output.Printf("Checked %d symbols in %s\n", stats.Checked, stats.Duration.Round(time.Millisecond))
			if stats.Alerted > 0 {
				output.Success("%d symbols triggered alerts", stats.Alerted)
			} else {
				output.Println("No alerts triggered")
			}
			if stats.Skipped > 0 {
				output.Warning("%d symbols skipped, see logs", stats.Skipped)
			}
			return nil
		},
	}
}

func newWatchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the monitoring daemon",
		Long: `Runs the monitoring loop until interrupted. Every cycle fetches current
prices for the watchlist, compares them against rolling averages and sends
alerts, at most once per symbol, window and trading session.

Price history is re-synced on its own schedule, and the Telegram command
listener runs alongside when enabled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			orch, err := app.newOrchestrator()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Seed history before the first cycle so averages have data.
			if err := orch.SyncWatchlist(ctx); err != nil {
				app.Logger.Warn().Err(err).Msg("Initial history sync failed")
			}

			symbols, err := app.Store.ActiveSymbols(ctx)
			if err != nil {
				return err
			}
			if err := app.Notifier.SendStartup(ctx, symbols); err != nil {
				app.Logger.Warn().Err(err).Msg("Startup notification failed")
			}

			scheduler := gocron.NewScheduler(time.UTC)

			_, err = scheduler.Every(app.Config.Interval()).
				SingletonMode().
				StartImmediately().
				Do(func() { app.runCycle(ctx, orch) })
			if err != nil {
				return fmt.Errorf("scheduling monitoring cycle: %w", err)
			}

			_, err = scheduler.Every(app.Config.SyncInterval()).
				SingletonMode().
				Do(func() {
					if err := orch.SyncWatchlist(ctx); err != nil {
						app.Logger.Warn().Err(err).Msg("History sync failed")
					}
				})
			if err != nil {
				return fmt.Errorf("scheduling history sync: %w", err)
			}

			if app.Config.Commands.Enabled {
				handler := command.NewHandler(app.Store, app.Logger)
				listener := command.NewListener(
					app.Config.Credentials.Telegram, app.Config.Commands, app.Logger)
				go listener.Run(ctx)
				go handler.Serve(ctx, listener.Commands(), listener.Reply)
			}

			scheduler.StartAsync()
			output.Info("Monitoring %d symbols every %s, press Ctrl-C to stop",
				len(symbols), app.Config.Interval())

			<-ctx.Done()
			scheduler.Stop()
			app.Logger.Info().Msg("Monitoring daemon stopped")
			return nil
		},
	}
}

// runCycle runs one scheduled cycle and reports the outcome.
func (app *App) runCycle(ctx context.Context, orch cycleRunner) {
	stats, err := orch.RunCycle(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrCycleInProgress) {
			app.Logger.Warn().Msg("Previous cycle still running, skipping this tick")
			return
		}
		if ctx.Err() != nil {
			return
		}
		app.Logger.Error().Err(err).Msg("Monitoring cycle failed")
		if nerr := app.Notifier.SendError(ctx, err, "monitoring cycle"); nerr != nil {
			app.Logger.Warn().Err(nerr).Msg("Error notification failed")
		}
		return
	}

	summary := &notify.CycleSummary{
		Checked:  stats.Checked,
		Alerted:  stats.Alerted,
		Skipped:  stats.Skipped,
		Duration: stats.Duration,
	}
	if err := app.Notifier.SendCycleSummary(ctx, summary); err != nil {
		app.Logger.Warn().Err(err).Msg("Cycle summary notification failed")
	}
}

// cycleRunner lets tests substitute the orchestrator.
type cycleRunner interface {
	RunCycle(ctx context.Context) (*monitor.CycleStats, error)
}

func newAlertsCmd(app *App) *cobra.Command {
	var symbol string
	var window int
	var days int
	var limit int

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Show the alert history",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("data store is not available")
			}

			filter := store.AlertFilter{
				Symbol: strings.ToUpper(symbol),
				Window: models.Window(window),
				Limit:  limit,
			}
			if days > 0 {
				filter.StartDate = time.Now().UTC().AddDate(0, 0, -days)
			}

			records, err := app.Store.AlertHistory(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(records)
			}
			if len(records) == 0 {
				output.Dim("No alerts recorded.")
				return nil
			}

			table := NewTable(output, "SENT", "SYMBOL", "WINDOW", "PRICE", "AVERAGE", "BELOW")
			for _, rec := range records {
				table.AddRow(
					rec.SentAt.Format("2006-01-02 15:04"),
					rec.Symbol,
					rec.Window.String(),
					utils.FormatUSD(rec.CurrentPrice),
					utils.FormatUSD(rec.AveragePrice),
					output.Red(fmt.Sprintf("-%.2f%%", rec.PctDiff)),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "filter by symbol")
	cmd.Flags().IntVar(&window, "window", 0, "filter by window in days (7, 30 or 90)")
	cmd.Flags().IntVar(&days, "days", 0, "only alerts from the last N days")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to show")
	return cmd
}
