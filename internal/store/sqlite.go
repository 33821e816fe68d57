// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Watchlist of monitored instruments
	CREATE TABLE IF NOT EXISTS watchlist (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL UNIQUE,
		name TEXT,
		sector TEXT,
		notes TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		added_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Daily OHLCV history, one row per symbol per trading day
	CREATE TABLE IF NOT EXISTS price_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		date DATE NOT NULL,
		open REAL,
		high REAL,
		low REAL,
		close REAL,
		adj_close REAL,
		volume INTEGER,
		fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, date)
	);

	-- Most recent quote per symbol, current state not history
	CREATE TABLE IF NOT EXISTS latest_quote (
		symbol TEXT PRIMARY KEY,
		price REAL NOT NULL,
		bid REAL,
		ask REAL,
		prev_close REAL,
		market_state TEXT,
		observed_at DATETIME NOT NULL,
		fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Append-only alert ledger; the unique key makes the per-session
	-- dedup check atomic with the write
	CREATE TABLE IF NOT EXISTS alert_ledger (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		window INTEGER NOT NULL,
		current_price REAL NOT NULL,
		average_price REAL NOT NULL,
		abs_diff REAL NOT NULL,
		pct_diff REAL NOT NULL,
		session_start DATETIME NOT NULL,
		sent_at DATETIME NOT NULL,
		UNIQUE(symbol, window, session_start)
	);

	-- Create indexes for performance
	CREATE INDEX IF NOT EXISTS idx_price_history_symbol_date ON price_history(symbol, date);
	CREATE INDEX IF NOT EXISTS idx_alert_ledger_symbol_sent ON alert_ledger(symbol, sent_at);
	CREATE INDEX IF NOT EXISTS idx_watchlist_active ON watchlist(active);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Price History Methods
// ============================================================================

// SavePricePoints upserts daily price points. Refetching a (symbol, date)
// already present overwrites the row in place, so corrected closes win.
func (s *SQLiteStore) SavePricePoints(ctx context.Context, points []models.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_history (symbol, date, open, high, low, close, adj_close, volume, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			adj_close = excluded.adj_close,
			volume = excluded.volume,
			fetched_at = excluded.fetched_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		_, err := stmt.ExecContext(ctx, p.Symbol, p.Date, p.Open, p.High, p.Low, p.Close, p.AdjClose, p.Volume, p.FetchedAt)
		if err != nil {
			return fmt.Errorf("failed to insert price point: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// RecentCloses returns up to limit non-null closing prices for symbol,
// most recent trading day first.
func (s *SQLiteStore) RecentCloses(ctx context.Context, symbol string, limit int) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT close FROM price_history
		WHERE symbol = ? AND close IS NOT NULL
		ORDER BY date DESC
		LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query closes: %w", err)
	}
	defer rows.Close()

	var closes []float64
	for rows.Next() {
		var c float64
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan close: %w", err)
		}
		closes = append(closes, c)
	}

	return closes, rows.Err()
}

// HasHistory reports whether any price history exists for symbol.
func (s *SQLiteStore) HasHistory(ctx context.Context, symbol string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM price_history WHERE symbol = ?
	`, symbol).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check history: %w", err)
	}
	return n > 0, nil
}

// HistoryFreshness returns the most recent trading date stored for symbol,
// or the zero time when no history exists.
func (s *SQLiteStore) HistoryFreshness(ctx context.Context, symbol string) (time.Time, error) {
	var latest sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(date) FROM price_history WHERE symbol = ?
	`, symbol).Scan(&latest)
	if err != nil && err != sql.ErrNoRows {
		return time.Time{}, fmt.Errorf("failed to get history freshness: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	return latest.Time, nil
}

// ============================================================================
// Latest Quote Methods
// ============================================================================

// UpsertQuote replaces the stored quote for a symbol with the given one.
func (s *SQLiteStore) UpsertQuote(ctx context.Context, quote *models.Quote) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO latest_quote (symbol, price, bid, ask, prev_close, market_state, observed_at, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, quote.Symbol, quote.Price, quote.Bid, quote.Ask, quote.PrevClose, string(quote.MarketState), quote.ObservedAt, quote.FetchedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert quote: %w", err)
	}
	return nil
}

// LatestQuote returns the stored quote for symbol, or ErrNoQuote if none
// has been persisted yet.
func (s *SQLiteStore) LatestQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	var q models.Quote
	var state string
	err := s.db.QueryRowContext(ctx, `
		SELECT symbol, price, bid, ask, prev_close, market_state, observed_at, fetched_at
		FROM latest_quote WHERE symbol = ?
	`, symbol).Scan(&q.Symbol, &q.Price, &q.Bid, &q.Ask, &q.PrevClose, &state, &q.ObservedAt, &q.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNoQuote
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}
	q.MarketState = models.MarketState(state)
	return &q, nil
}

// ============================================================================
// Watchlist Methods
// ============================================================================

// AddInstrument adds a symbol to the watchlist. Re-adding a deactivated
// symbol reactivates it and keeps its history; adding an already active
// symbol returns ErrSymbolExists.
func (s *SQLiteStore) AddInstrument(ctx context.Context, inst *models.Instrument) error {
	existing, err := s.GetInstrument(ctx, inst.Symbol)
	if err != nil && err != apperrors.ErrSymbolNotFound {
		return err
	}
	if existing != nil {
		if existing.Active {
			return apperrors.ErrSymbolExists
		}
		_, err := s.db.ExecContext(ctx, `
			UPDATE watchlist SET active = 1, added_at = ? WHERE symbol = ?
		`, inst.AddedAt, inst.Symbol)
		if err != nil {
			return fmt.Errorf("failed to reactivate instrument: %w", err)
		}
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO watchlist (symbol, name, sector, notes, active, added_at)
		VALUES (?, ?, ?, ?, 1, ?)
	`, inst.Symbol, inst.Name, inst.Sector, inst.Notes, inst.AddedAt)
	if err != nil {
		return fmt.Errorf("failed to add instrument: %w", err)
	}
	return nil
}

// DeactivateInstrument marks a symbol inactive. The row and its price
// history stay in place so re-adding restores prior averages.
func (s *SQLiteStore) DeactivateInstrument(ctx context.Context, symbol string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE watchlist SET active = 0 WHERE symbol = ? AND active = 1
	`, symbol)
	if err != nil {
		return fmt.Errorf("failed to deactivate instrument: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.ErrSymbolNotFound
	}
	return nil
}

// ActiveSymbols returns the symbols of all active instruments in insertion
// order. This is the set a monitoring cycle iterates over.
func (s *SQLiteStore) ActiveSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol FROM watchlist WHERE active = 1 ORDER BY added_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}

	return symbols, rows.Err()
}

// Watchlist returns instruments, optionally limited to active ones.
func (s *SQLiteStore) Watchlist(ctx context.Context, activeOnly bool) ([]models.Instrument, error) {
	query := `
		SELECT id, symbol, COALESCE(name, ''), COALESCE(sector, ''), COALESCE(notes, ''), active, added_at
		FROM watchlist
	`
	if activeOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY added_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist: %w", err)
	}
	defer rows.Close()

	var instruments []models.Instrument
	for rows.Next() {
		var inst models.Instrument
		var active int
		if err := rows.Scan(&inst.ID, &inst.Symbol, &inst.Name, &inst.Sector, &inst.Notes, &active, &inst.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		inst.Active = active == 1
		instruments = append(instruments, inst)
	}

	return instruments, rows.Err()
}

// GetInstrument returns a single watchlist row, active or not.
func (s *SQLiteStore) GetInstrument(ctx context.Context, symbol string) (*models.Instrument, error) {
	var inst models.Instrument
	var active int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, symbol, COALESCE(name, ''), COALESCE(sector, ''), COALESCE(notes, ''), active, added_at
		FROM watchlist WHERE symbol = ?
	`, symbol).Scan(&inst.ID, &inst.Symbol, &inst.Name, &inst.Sector, &inst.Notes, &active, &inst.AddedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrSymbolNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instrument: %w", err)
	}
	inst.Active = active == 1
	return &inst, nil
}

// ============================================================================
// Alert Ledger Methods
// ============================================================================

// AlertSentSince reports whether an alert for (symbol, window) was recorded
// at or after the given instant. With since set to the session start this is
// the per-session dedup check.
func (s *SQLiteStore) AlertSentSince(ctx context.Context, symbol string, window models.Window, since time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM alert_ledger
		WHERE symbol = ? AND window = ? AND sent_at >= ?
	`, symbol, int(window), since).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check alert ledger: %w", err)
	}
	return n > 0, nil
}

// RecordAlert appends a ledger entry. The insert is conditional on the
// (symbol, window, session_start) key: it returns false with no error when
// an entry for the same session already exists, which makes check-and-record
// atomic even with overlapping cycles.
func (s *SQLiteStore) RecordAlert(ctx context.Context, rec *models.AlertRecord) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO alert_ledger (id, symbol, window, current_price, average_price, abs_diff, pct_diff, session_start, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Symbol, int(rec.Window), rec.CurrentPrice, rec.AveragePrice, rec.AbsDiff, rec.PctDiff, rec.SessionStart, rec.SentAt)
	if err != nil {
		return false, fmt.Errorf("failed to record alert: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to record alert: %w", err)
	}
	return rows > 0, nil
}

// AlertHistory retrieves ledger entries, newest first.
func (s *SQLiteStore) AlertHistory(ctx context.Context, filter AlertFilter) ([]models.AlertRecord, error) {
	query := `
		SELECT id, symbol, window, current_price, average_price, abs_diff, pct_diff, session_start, sent_at
		FROM alert_ledger WHERE 1=1
	`
	args := []interface{}{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.Window != 0 {
		query += " AND window = ?"
		args = append(args, int(filter.Window))
	}
	if !filter.StartDate.IsZero() {
		query += " AND sent_at >= ?"
		args = append(args, filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		query += " AND sent_at <= ?"
		args = append(args, filter.EndDate)
	}

	query += " ORDER BY sent_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert ledger: %w", err)
	}
	defer rows.Close()

	var records []models.AlertRecord
	for rows.Next() {
		var r models.AlertRecord
		var window int
		if err := rows.Scan(&r.ID, &r.Symbol, &window, &r.CurrentPrice, &r.AveragePrice, &r.AbsDiff, &r.PctDiff, &r.SessionStart, &r.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert record: %w", err)
		}
		r.Window = models.Window(window)
		records = append(records, r)
	}

	return records, rows.Err()
}
