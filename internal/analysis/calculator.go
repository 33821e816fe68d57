// Package analysis computes rolling close averages and evaluates alert
// conditions against them.
package analysis

import (
	"context"

	"stockwatch/internal/models"
)

// Average is a rolling mean over a window. OK is false when no usable
// history exists; callers must treat that as "insufficient history", not as
// a triggered or non-triggered condition.
type Average struct {
	Value float64
	OK    bool
}

// HistorySource provides recent closing prices, most recent trading day
// first. Only non-null closes are returned.
type HistorySource interface {
	RecentCloses(ctx context.Context, symbol string, limit int) ([]float64, error)
}

// Calculator computes arithmetic means of recent closes per window.
// It is a pure read over the history source.
type Calculator struct {
	src     HistorySource
	windows []models.Window
}

// NewCalculator creates a calculator over the given windows.
func NewCalculator(src HistorySource, windows []models.Window) *Calculator {
	if len(windows) == 0 {
		windows = models.DefaultWindows()
	}
	return &Calculator{src: src, windows: windows}
}

// Windows returns the configured averaging windows.
func (c *Calculator) Windows() []models.Window { return c.windows }

// Averages returns the rolling mean per window for symbol. Fewer points than
// a window averages over what is available; zero points yields OK=false for
// every window.
func (c *Calculator) Averages(ctx context.Context, symbol string) (map[models.Window]Average, error) {
	limit := 0
	for _, w := range c.windows {
		if w.Days() > limit {
			limit = w.Days()
		}
	}

	closes, err := c.src.RecentCloses(ctx, symbol, limit)
	if err != nil {
		return nil, err
	}

	averages := make(map[models.Window]Average, len(c.windows))
	for _, w := range c.windows {
		averages[w] = windowMean(closes, w.Days())
	}
	return averages, nil
}

// windowMean averages the first min(n, len(closes)) values. closes is
// ordered most recent first.
func windowMean(closes []float64, n int) Average {
	if len(closes) == 0 {
		return Average{}
	}
	if n > len(closes) {
		n = len(closes)
	}
	var total float64
	for _, c := range closes[:n] {
		total += c
	}
	return Average{Value: total / float64(n), OK: true}
}
