package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/models"
	"stockwatch/internal/store"
	"stockwatch/pkg/utils"
)

const helpText = `Commands:
/add SYMBOL - add a symbol to the watchlist
/remove SYMBOL - stop monitoring a symbol
/list - show the watchlist
/status - show latest prices
/help - this message`

// Handler executes parsed commands against the data store and formats a
// reply for the chat.
type Handler struct {
	store  store.DataStore
	logger zerolog.Logger
}

// NewHandler creates a command handler.
func NewHandler(st store.DataStore, logger zerolog.Logger) *Handler {
	return &Handler{
		store:  st,
		logger: logger.With().Str("component", "command").Logger(),
	}
}

// Serve consumes commands until ctx is cancelled or the channel closes,
// executing each against the store and replying on the originating chat.
// This is the only place inbound commands touch the watchlist; the polling
// side never calls the store.
func (h *Handler) Serve(ctx context.Context, commands <-chan Command, reply func(ctx context.Context, chatID, text string)) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-commands:
			if !ok {
				return
			}
			text, err := h.Handle(ctx, cmd)
			if err != nil {
				h.logger.Error().Err(err).Str("action", string(cmd.Action)).Msg("Command failed")
				reply(ctx, cmd.ChatID, "Something went wrong, check the logs.")
				continue
			}
			reply(ctx, cmd.ChatID, text)
		}
	}
}

// Handle executes cmd and returns the reply text. Errors that the chat user
// can act on become replies, not errors.
func (h *Handler) Handle(ctx context.Context, cmd Command) (string, error) {
	switch cmd.Action {
	case ActionAdd:
		return h.add(ctx, cmd.Symbol)
	case ActionRemove:
		return h.remove(ctx, cmd.Symbol)
	case ActionList:
		return h.list(ctx)
	case ActionStatus:
		return h.status(ctx)
	case ActionHelp:
		return helpText, nil
	default:
		return "", fmt.Errorf("unhandled action %q", cmd.Action)
	}
}

func (h *Handler) add(ctx context.Context, symbol string) (string, error) {
	err := h.store.AddInstrument(ctx, &models.Instrument{
		Symbol:  symbol,
		AddedAt: time.Now().UTC(),
	})
	if err == apperrors.ErrSymbolExists {
		return fmt.Sprintf("%s is already on the watchlist", symbol), nil
	}
	if err != nil {
		return "", err
	}

	h.logger.Info().Str("symbol", symbol).Msg("Symbol added via bot command")
	return fmt.Sprintf("Added %s to the watchlist. History will backfill on the next sync.", symbol), nil
}

func (h *Handler) remove(ctx context.Context, symbol string) (string, error) {
	err := h.store.DeactivateInstrument(ctx, symbol)
	if err == apperrors.ErrSymbolNotFound {
		return fmt.Sprintf("%s is not on the watchlist", symbol), nil
	}
	if err != nil {
		return "", err
	}

	h.logger.Info().Str("symbol", symbol).Msg("Symbol removed via bot command")
	return fmt.Sprintf("Removed %s. Its history is kept in case it comes back.", symbol), nil
}

func (h *Handler) list(ctx context.Context) (string, error) {
	instruments, err := h.store.Watchlist(ctx, true)
	if err != nil {
		return "", err
	}
	if len(instruments) == 0 {
		return "The watchlist is empty. Use /add SYMBOL to start monitoring.", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Watching %d symbols:\n", len(instruments)))
	for _, inst := range instruments {
		line := inst.Symbol
		if inst.Name != "" {
			line += " - " + inst.Name
		}
		sb.WriteString(line + "\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (h *Handler) status(ctx context.Context) (string, error) {
	symbols, err := h.store.ActiveSymbols(ctx)
	if err != nil {
		return "", err
	}
	if len(symbols) == 0 {
		return "The watchlist is empty.", nil
	}

	var sb strings.Builder
	for _, symbol := range symbols {
		quote, err := h.store.LatestQuote(ctx, symbol)
		if err == apperrors.ErrNoQuote {
			sb.WriteString(fmt.Sprintf("%s: no quote yet\n", symbol))
			continue
		}
		if err != nil {
			return "", err
		}
		sb.WriteString(fmt.Sprintf("%s: %s (%s)\n",
			symbol, utils.FormatUSD(quote.Price), utils.FormatPercent(quote.ChangePercent())))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
