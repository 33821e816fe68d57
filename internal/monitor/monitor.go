// Package monitor runs the periodic monitoring cycle: fetch quotes, persist
// them, evaluate below-average conditions and send deduplicated alerts.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stockwatch/internal/alert"
	"stockwatch/internal/analysis"
	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/logging"
	"stockwatch/internal/marketdata"
	"stockwatch/internal/models"
	"stockwatch/internal/notify"
	"stockwatch/internal/session"
	"stockwatch/internal/store"
)

// Clock abstracts time.Now so cycles are testable against fixed instants.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// CycleStats summarizes one monitoring cycle.
type CycleStats struct {
	Checked  int
	Alerted  int
	Skipped  int
	Duration time.Duration
}

// Orchestrator coordinates one monitoring cycle across the active watchlist.
// A single instance never runs two cycles at once: an overlapping RunCycle
// returns ErrCycleInProgress instead of queueing.
type Orchestrator struct {
	store    store.DataStore
	provider marketdata.Provider
	notifier notify.Notifier
	calc     *analysis.Calculator
	sessions *session.Resolver
	ledger   *alert.Ledger
	clock    Clock
	logger   zerolog.Logger

	historicalDays int

	mu sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the wall clock, used in tests.
func WithClock(c Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithHistoricalDays sets the backfill lookback in calendar days.
func WithHistoricalDays(days int) Option {
	return func(o *Orchestrator) {
		if days > 0 {
			o.historicalDays = days
		}
	}
}

// NewOrchestrator creates a monitoring orchestrator.
func NewOrchestrator(
	st store.DataStore,
	provider marketdata.Provider,
	notifier notify.Notifier,
	calc *analysis.Calculator,
	sessions *session.Resolver,
	ledger *alert.Ledger,
	logger zerolog.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		store:          st,
		provider:       provider,
		notifier:       notifier,
		calc:           calc,
		sessions:       sessions,
		ledger:         ledger,
		clock:          SystemClock{},
		logger:         logger.With().Str("component", "monitor").Logger(),
		historicalDays: 150,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunCycle executes one monitoring cycle over all active symbols. Failures
// on one instrument never stop the others; the failed instrument is skipped
// until the next cycle. If a cycle is already running it returns
// ErrCycleInProgress without doing any work.
func (o *Orchestrator) RunCycle(ctx context.Context) (*CycleStats, error) {
	if !o.mu.TryLock() {
		return nil, apperrors.ErrCycleInProgress
	}
	defer o.mu.Unlock()

	start := o.clock.Now()
	stats := &CycleStats{}

	symbols, err := o.store.ActiveSymbols(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "loading watchlist")
	}

	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		stats.Checked++
		alerted, err := o.checkSymbol(ctx, symbol)
		if err != nil {
			stats.Skipped++
			o.logger.Warn().Err(err).Str("symbol", symbol).Msg("Skipping symbol this cycle")
			continue
		}
		if alerted {
			stats.Alerted++
		}
	}

	stats.Duration = o.clock.Now().Sub(start)
	logging.LogCycle(o.logger, stats.Checked, stats.Alerted, stats.Skipped, stats.Duration)
	return stats, nil
}

// checkSymbol fetches, persists and evaluates one instrument. It reports
// whether an alert notification went out.
func (o *Orchestrator) checkSymbol(ctx context.Context, symbol string) (bool, error) {
	quote, err := o.provider.FetchQuote(ctx, symbol)
	if err != nil {
		return false, apperrors.Wrapf(err, "fetching quote for %s", symbol)
	}

	// The quote is still worth evaluating if persistence fails.
	if err := o.store.UpsertQuote(ctx, quote); err != nil {
		o.logger.Warn().Err(err).Str("symbol", symbol).Msg("Failed to persist latest quote")
	}

	averages, err := o.calc.Averages(ctx, symbol)
	if err != nil {
		return false, apperrors.Wrapf(err, "computing averages for %s", symbol)
	}

	conditions := analysis.Evaluate(quote.Price, averages)
	if len(conditions) == 0 {
		return false, nil
	}

	now := o.clock.Now()
	sessionStart := o.sessions.Start(now)

	eligible := make([]models.AlertCondition, 0, len(conditions))
	for _, cond := range conditions {
		ok, err := o.ledger.ShouldNotify(ctx, symbol, cond.Window, sessionStart)
		if err != nil {
			return false, apperrors.Wrapf(err, "checking alert ledger for %s", symbol)
		}
		if ok {
			eligible = append(eligible, cond)
		}
	}
	if len(eligible) == 0 {
		return false, nil
	}

	// Send before recording: an unrecorded send risks one duplicate next
	// cycle, a recorded non-send would silence the session entirely.
	if err := o.notifier.SendAlert(ctx, symbol, quote.Price, eligible, now); err != nil {
		return false, apperrors.Wrapf(err, "sending alert for %s", symbol)
	}

	for _, cond := range eligible {
		inserted, err := o.ledger.Record(ctx, symbol, cond, quote.Price, sessionStart, now)
		if err != nil {
			o.logger.Error().Err(err).
				Str("symbol", symbol).
				Int("window", cond.Window.Days()).
				Msg("Alert sent but not recorded, duplicate possible next cycle")
			continue
		}
		if inserted {
			logging.LogAlert(o.logger, symbol, cond.Window.Days(), quote.Price, cond.Average)
		}
	}

	return true, nil
}

// SyncWatchlist backfills daily history for every active symbol that has
// none yet, or whose stored history has gone stale.
func (o *Orchestrator) SyncWatchlist(ctx context.Context) error {
	symbols, err := o.store.ActiveSymbols(ctx)
	if err != nil {
		return apperrors.Wrap(err, "loading watchlist")
	}

	var failed int
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		if fresh, err := o.historyFresh(ctx, symbol); err == nil && fresh {
			continue
		}
		if err := o.backfillSymbol(ctx, symbol); err != nil {
			failed++
			o.logger.Warn().Err(err).Str("symbol", symbol).Msg("History sync failed")
		}
	}

	o.logger.Info().
		Int("symbols", len(symbols)).
		Int("failed", failed).
		Msg("Watchlist history sync completed")
	return nil
}

// historyFresh reports whether symbol's stored history extends into the
// last two calendar days. The margin covers weekends-adjacent staleness
// without refetching every cycle.
func (o *Orchestrator) historyFresh(ctx context.Context, symbol string) (bool, error) {
	latest, err := o.store.HistoryFreshness(ctx, symbol)
	if err != nil {
		return false, err
	}
	if latest.IsZero() {
		return false, nil
	}
	return o.clock.Now().Sub(latest) < 96*time.Hour, nil
}

// Backfill fetches and stores daily history for the given symbols. With an
// empty list it covers the whole active watchlist.
func (o *Orchestrator) Backfill(ctx context.Context, symbols []string, days int) error {
	if len(symbols) == 0 {
		var err error
		symbols, err = o.store.ActiveSymbols(ctx)
		if err != nil {
			return apperrors.Wrap(err, "loading watchlist")
		}
	}
	if days <= 0 {
		days = o.historicalDays
	}

	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		points, err := o.provider.FetchHistory(ctx, symbol, days)
		if err != nil {
			o.logger.Warn().Err(err).Str("symbol", symbol).Msg("Backfill fetch failed")
			continue
		}
		if err := o.store.SavePricePoints(ctx, points); err != nil {
			o.logger.Error().Err(err).Str("symbol", symbol).Msg("Backfill persist failed")
			continue
		}
		o.logger.Info().
			Str("symbol", symbol).
			Int("points", len(points)).
			Msg("Backfilled price history")
	}
	return nil
}

func (o *Orchestrator) backfillSymbol(ctx context.Context, symbol string) error {
	points, err := o.provider.FetchHistory(ctx, symbol, o.historicalDays)
	if err != nil {
		return err
	}
	return o.store.SavePricePoints(ctx, points)
}
