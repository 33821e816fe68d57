// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"stockwatch/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Price history
	SavePricePoints(ctx context.Context, points []models.PricePoint) error
	RecentCloses(ctx context.Context, symbol string, limit int) ([]float64, error)
	HasHistory(ctx context.Context, symbol string) (bool, error)
	HistoryFreshness(ctx context.Context, symbol string) (time.Time, error)

	// Latest quotes
	UpsertQuote(ctx context.Context, quote *models.Quote) error
	LatestQuote(ctx context.Context, symbol string) (*models.Quote, error)

	// Watchlist
	AddInstrument(ctx context.Context, inst *models.Instrument) error
	DeactivateInstrument(ctx context.Context, symbol string) error
	ActiveSymbols(ctx context.Context) ([]string, error)
	Watchlist(ctx context.Context, activeOnly bool) ([]models.Instrument, error)
	GetInstrument(ctx context.Context, symbol string) (*models.Instrument, error)

	// Alert ledger
	AlertSentSince(ctx context.Context, symbol string, window models.Window, since time.Time) (bool, error)
	RecordAlert(ctx context.Context, rec *models.AlertRecord) (bool, error)
	AlertHistory(ctx context.Context, filter AlertFilter) ([]models.AlertRecord, error)

	// Lifecycle
	Close() error
}

// AlertFilter represents filters for querying the alert ledger.
type AlertFilter struct {
	Symbol    string
	Window    models.Window
	StartDate time.Time
	EndDate   time.Time
	Limit     int
}
