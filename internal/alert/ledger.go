// Package alert tracks which alerts have already been sent within a trading
// session, so each (symbol, window) condition notifies at most once per session.
package alert

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stockwatch/internal/models"
	"stockwatch/internal/store"
)

// Ledger answers "was this alert already sent this session?" and records
// sent alerts. It persists through the data store; entries are append-only.
type Ledger struct {
	store  store.DataStore
	logger zerolog.Logger
}

// NewLedger creates a ledger over the given store.
func NewLedger(st store.DataStore, logger zerolog.Logger) *Ledger {
	return &Ledger{
		store:  st,
		logger: logger.With().Str("component", "alert").Logger(),
	}
}

// ShouldNotify reports whether no alert for (symbol, window) has been sent
// since sessionStart. A true result is advisory: Record still arbitrates
// concurrent writers.
func (l *Ledger) ShouldNotify(ctx context.Context, symbol string, window models.Window, sessionStart time.Time) (bool, error) {
	sent, err := l.store.AlertSentSince(ctx, symbol, window, sessionStart)
	if err != nil {
		return false, err
	}
	return !sent, nil
}

// Record appends a ledger entry for a sent alert. It returns false when
// another writer already recorded the same (symbol, window, session), in
// which case this send was a duplicate.
func (l *Ledger) Record(ctx context.Context, symbol string, cond models.AlertCondition, price float64, sessionStart, sentAt time.Time) (bool, error) {
	rec := &models.AlertRecord{
		ID:           uuid.NewString(),
		Symbol:       symbol,
		Window:       cond.Window,
		CurrentPrice: price,
		AveragePrice: cond.Average,
		AbsDiff:      cond.AbsDiff,
		PctDiff:      cond.PctDiff,
		SessionStart: sessionStart,
		SentAt:       sentAt,
	}

	inserted, err := l.store.RecordAlert(ctx, rec)
	if err != nil {
		return false, err
	}
	if !inserted {
		l.logger.Debug().
			Str("symbol", symbol).
			Int("window", cond.Window.Days()).
			Time("session_start", sessionStart).
			Msg("Alert already recorded for this session")
	}
	return inserted, nil
}

// History returns recent ledger entries for a symbol, newest first.
func (l *Ledger) History(ctx context.Context, symbol string, limit int) ([]models.AlertRecord, error) {
	return l.store.AlertHistory(ctx, store.AlertFilter{Symbol: symbol, Limit: limit})
}
