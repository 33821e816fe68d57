package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"stockwatch/internal/models"
)

// Property: for any history, each window's average equals the arithmetic
// mean of the min(window, len(history)) most recent closes, and an empty
// history yields no average for any window.
func TestProperty_AverageIsMeanOfRecentCloses(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	windows := models.DefaultWindows()
	closesGen := gen.SliceOf(gen.Float64Range(0.01, 5000.0))

	properties.Property("Average equals mean of min(window, N) recent closes", prop.ForAll(
		func(closes []float64) bool {
			calc := NewCalculator(sliceHistory(closes), windows)

			averages, err := calc.Averages(context.Background(), "ANY")
			if err != nil {
				t.Logf("Averages failed: %v", err)
				return false
			}

			for _, w := range windows {
				avg := averages[w]

				if len(closes) == 0 {
					if avg.OK {
						t.Logf("Window %s: expected no data for empty history", w)
						return false
					}
					continue
				}

				n := w.Days()
				if n > len(closes) {
					n = len(closes)
				}
				var total float64
				for _, c := range closes[:n] {
					total += c
				}
				want := total / float64(n)

				if !avg.OK {
					t.Logf("Window %s: expected a defined average", w)
					return false
				}
				if !floatEqual(avg.Value, want, 1e-9*want) {
					t.Logf("Window %s: expected %f, got %f", w, want, avg.Value)
					return false
				}
			}
			return true
		},
		closesGen,
	))

	properties.Property("Averages never invent data: OK only with history", prop.ForAll(
		func(closes []float64) bool {
			calc := NewCalculator(sliceHistory(closes), windows)
			averages, err := calc.Averages(context.Background(), "ANY")
			if err != nil {
				return false
			}
			for _, avg := range averages {
				if avg.OK != (len(closes) > 0) {
					return false
				}
			}
			return true
		},
		closesGen,
	))

	properties.TestingRun(t)
}

// sliceHistory serves a fixed list of closes, most recent first.
type sliceHistory []float64

func (s sliceHistory) RecentCloses(_ context.Context, _ string, limit int) ([]float64, error) {
	if limit < len(s) {
		return s[:limit], nil
	}
	return s, nil
}

// floatEqual compares two floats with a tolerance.
func floatEqual(a, b, tolerance float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	if tolerance < 1e-12 {
		tolerance = 1e-12
	}
	return diff <= tolerance
}
