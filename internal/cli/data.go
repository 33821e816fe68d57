package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"stockwatch/internal/analysis"
	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/models"
	"stockwatch/pkg/utils"
)

// addDataCommands adds market data commands.
func addDataCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newQuoteCmd(app))
	rootCmd.AddCommand(newBackfillCmd(app))
	rootCmd.AddCommand(newAveragesCmd(app))
}

func newQuoteCmd(app *App) *cobra.Command {
	var cached bool

	cmd := &cobra.Command{
		Use:   "quote SYMBOL...",
		Short: "Fetch current quotes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			table := NewTable(output, "SYMBOL", "PRICE", "CHANGE", "STATE", "OBSERVED")
			quotes := make([]*models.Quote, 0, len(args))

			for _, arg := range args {
				symbol := strings.ToUpper(arg)

				quote, err := app.lookupQuote(cmd, symbol, cached)
				if err != nil {
					output.Error("%s: %v", symbol, err)
					continue
				}
				quotes = append(quotes, quote)

				table.AddRow(
					quote.Symbol,
					utils.FormatUSD(quote.Price),
					output.FormatSignedPercent(quote.ChangePercent()),
					string(quote.MarketState),
					quote.ObservedAt.Format("2006-01-02 15:04 MST"),
				)
			}

			if output.IsJSON() {
				return output.JSON(quotes)
			}
			if len(quotes) > 0 {
				table.Render()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&cached, "cached", false, "show the stored quote without fetching")
	return cmd
}

// lookupQuote fetches a live quote, or returns the stored one with --cached.
// Live quotes are persisted so the bot's /status stays current.
func (app *App) lookupQuote(cmd *cobra.Command, symbol string, cached bool) (*models.Quote, error) {
	if cached {
		if app.Store == nil {
			return nil, fmt.Errorf("data store is not available")
		}
		return app.Store.LatestQuote(cmd.Context(), symbol)
	}

	quote, err := app.Provider.FetchQuote(cmd.Context(), symbol)
	if err != nil {
		return nil, err
	}
	if app.Store != nil {
		if err := app.Store.UpsertQuote(cmd.Context(), quote); err != nil {
			app.Logger.Warn().Err(err).Str("symbol", symbol).Msg("Failed to persist quote")
		}
	}
	return quote, nil
}

func newBackfillCmd(app *App) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "backfill [SYMBOL...]",
		Short: "Fetch historical daily prices",
		Long: `Fetches daily price history and stores it for average calculations.
Without arguments the whole active watchlist is backfilled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			orch, err := app.newOrchestrator()
			if err != nil {
				return err
			}

			symbols := make([]string, 0, len(args))
			for _, arg := range args {
				symbols = append(symbols, strings.ToUpper(arg))
			}

			if err := orch.Backfill(cmd.Context(), symbols, days); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"backfilled": symbols, "days": days})
			}
			output.Success("Backfill completed")
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "lookback in calendar days (default: historical_days from config)")
	return cmd
}

func newAveragesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "averages SYMBOL",
		Short: "Show rolling averages for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("data store is not available")
			}

			symbol := strings.ToUpper(args[0])
			has, err := app.Store.HasHistory(cmd.Context(), symbol)
			if err != nil {
				return err
			}
			if !has {
				if output.IsJSON() {
					return output.JSON(map[string]interface{}{"symbol": symbol, "history": false})
				}
				output.Dim("No price history stored for %s. Run 'stockwatch backfill %s' first.", symbol, symbol)
				return nil
			}

			calc := analysis.NewCalculator(app.Store, app.Config.Windows())
			averages, err := calc.Averages(cmd.Context(), symbol)
			if err != nil {
				return err
			}

			var price float64
			if quote, err := app.Store.LatestQuote(cmd.Context(), symbol); err == nil {
				price = quote.Price
			} else if err != apperrors.ErrNoQuote {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"symbol":   symbol,
					"price":    price,
					"averages": averages,
				})
			}

			output.Bold("%s", symbol)
			if price > 0 {
				output.Printf("  Last price: %s\n", utils.FormatUSD(price))
			}
			for _, window := range calc.Windows() {
				avg := averages[window]
				if !avg.OK {
					output.Printf("  %-8s %s\n", window.String(), output.DimText("no data"))
					continue
				}
				line := fmt.Sprintf("  %-8s %s", window.String(), utils.FormatUSD(avg.Value))
				if price > 0 && avg.Value > 0 {
					pct := (price - avg.Value) / avg.Value * 100
					line += "  " + output.FormatSignedPercent(pct)
				}
				output.Println(line)
			}
			return nil
		},
	}
}
