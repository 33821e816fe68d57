// Package models defines the core data types shared across the application.
package models

import (
	"fmt"
	"time"
)

// Instrument represents a watched symbol on the watchlist.
type Instrument struct {
	ID      int64
	Symbol  string
	Name    string
	Sector  string
	Notes   string
	Active  bool
	AddedAt time.Time
}

// PricePoint is one trading day's OHLCV record for a symbol.
// The pair (Symbol, Date) is unique; refetching the same date overwrites in place.
type PricePoint struct {
	Symbol    string
	Date      time.Time // trading date, midnight UTC
	Open      float64
	High      float64
	Low       float64
	Close     float64
	AdjClose  float64
	Volume    int64
	FetchedAt time.Time
}

// Quote is the most recent observed price for a symbol. Exactly one row is
// kept per symbol; it represents current state, not history.
type Quote struct {
	Symbol      string
	Price       float64
	Bid         float64
	Ask         float64
	PrevClose   float64
	MarketState MarketState
	ObservedAt  time.Time
	FetchedAt   time.Time
}

// Change returns the price change against the previous close.
func (q *Quote) Change() float64 {
	return q.Price - q.PrevClose
}

// ChangePercent returns the percentage change against the previous close,
// or zero when no previous close is known.
func (q *Quote) ChangePercent() float64 {
	if q.PrevClose <= 0 {
		return 0
	}
	return (q.Price - q.PrevClose) / q.PrevClose * 100
}

// MarketState reports the session state a quote was observed in.
type MarketState string

const (
	MarketStateRegular    MarketState = "REGULAR"
	MarketStatePre        MarketState = "PRE"
	MarketStatePost       MarketState = "POST"
	MarketStateClosed     MarketState = "CLOSED"
	MarketStateUnknown    MarketState = "UNKNOWN"
)

// Window is a rolling averaging period in trading days.
type Window int

// The fixed windows the monitor evaluates.
const (
	Window7  Window = 7
	Window30 Window = 30
	Window90 Window = 90
)

// DefaultWindows returns the standard averaging windows, shortest first.
func DefaultWindows() []Window {
	return []Window{Window7, Window30, Window90}
}

// Days returns the window length in trading days.
func (w Window) Days() int { return int(w) }

func (w Window) String() string {
	return fmt.Sprintf("%d-day", int(w))
}

// AlertCondition is one triggered below-average condition for a symbol.
type AlertCondition struct {
	Window  Window
	Average float64
	AbsDiff float64 // average - current price, always positive
	PctDiff float64 // AbsDiff / average * 100
}

// AlertRecord is an append-only ledger entry recording that a notification
// was sent for (symbol, window, session). Rows are never updated or deleted;
// their existence within a session's time range is the dedup signal.
type AlertRecord struct {
	ID           string
	Symbol       string
	Window       Window
	CurrentPrice float64
	AveragePrice float64
	AbsDiff      float64
	PctDiff      float64
	SessionStart time.Time
	SentAt       time.Time
}
