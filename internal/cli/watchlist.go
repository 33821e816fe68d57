package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/models"
	"stockwatch/pkg/utils"
)

// addWatchlistCommands adds watchlist management commands.
func addWatchlistCommands(rootCmd *cobra.Command, app *App) {
	watchlistCmd := &cobra.Command{
		Use:   "watchlist",
		Short: "Manage the monitored watchlist",
	}

	watchlistCmd.AddCommand(newWatchlistAddCmd(app))
	watchlistCmd.AddCommand(newWatchlistRemoveCmd(app))
	watchlistCmd.AddCommand(newWatchlistListCmd(app))

	rootCmd.AddCommand(watchlistCmd)
}

func newWatchlistAddCmd(app *App) *cobra.Command {
	var name, sector, notes string

	cmd := &cobra.Command{
		Use:   "add SYMBOL",
		Short: "Add a symbol to the watchlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("data store is not available")
			}

			symbol := strings.ToUpper(args[0])
			err := app.Store.AddInstrument(cmd.Context(), &models.Instrument{
				Symbol:  symbol,
				Name:    name,
				Sector:  sector,
				Notes:   notes,
				AddedAt: time.Now().UTC(),
			})
			if err == apperrors.ErrSymbolExists {
				output.Warning("%s is already on the watchlist", symbol)
				return nil
			}
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]string{"added": symbol})
			}
			output.Success("Added %s to the watchlist", symbol)
			output.Dim("Run 'stockwatch backfill %s' to seed price history.", symbol)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "company name")
	cmd.Flags().StringVar(&sector, "sector", "", "sector label")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	return cmd
}

func newWatchlistRemoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "remove SYMBOL",
		Short: "Stop monitoring a symbol",
		Long:  "Deactivates the symbol. Its price history and alert ledger are kept.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("data store is not available")
			}

			symbol := strings.ToUpper(args[0])
			err := app.Store.DeactivateInstrument(cmd.Context(), symbol)
			if err == apperrors.ErrSymbolNotFound {
				output.Warning("%s is not on the watchlist", symbol)
				return nil
			}
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]string{"removed": symbol})
			}
			output.Success("Removed %s from the watchlist", symbol)
			return nil
		},
	}
}

func newWatchlistListCmd(app *App) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the watchlist",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("data store is not available")
			}

			instruments, err := app.Store.Watchlist(cmd.Context(), !all)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(instruments)
			}
			if len(instruments) == 0 {
				output.Dim("The watchlist is empty. Use 'stockwatch watchlist add SYMBOL'.")
				return nil
			}

			table := NewTable(output, "SYMBOL", "NAME", "ACTIVE", "LAST PRICE", "ADDED")
			for _, inst := range instruments {
				price := "-"
				if quote, err := app.Store.LatestQuote(cmd.Context(), inst.Symbol); err == nil {
					price = utils.FormatUSD(quote.Price)
				}
				active := "yes"
				if !inst.Active {
					active = output.DimText("no")
				}
				table.AddRow(inst.Symbol, inst.Name, active, price,
					inst.AddedAt.Format("2006-01-02"))
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include deactivated symbols")
	return cmd
}
