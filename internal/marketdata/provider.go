// Package marketdata fetches quotes and daily price history from the
// upstream market-data API.
package marketdata

import (
	"context"

	"stockwatch/internal/models"
)

// Provider defines the interface for fetching market data.
type Provider interface {
	// FetchQuote returns the current quote for a symbol.
	FetchQuote(ctx context.Context, symbol string) (*models.Quote, error)

	// FetchHistory returns daily price points covering the last lookbackDays
	// calendar days, oldest first. Days without a close are omitted.
	FetchHistory(ctx context.Context, symbol string, lookbackDays int) ([]models.PricePoint, error)
}
