package analysis

import (
	"sort"

	"stockwatch/internal/models"
)

// Evaluate compares the current price to each defined average and returns a
// condition for every window where price sits below the average. Windows
// without data, and averages at or below zero, produce no candidate: a
// non-positive average cannot anchor a percentage gap, so it is treated the
// same as missing history. Results are ordered by percentage gap, widest
// first.
func Evaluate(price float64, averages map[models.Window]Average) []models.AlertCondition {
	var conditions []models.AlertCondition
	for window, avg := range averages {
		if !avg.OK || avg.Value <= 0 {
			continue
		}
		if price >= avg.Value {
			continue
		}
		diff := avg.Value - price
		conditions = append(conditions, models.AlertCondition{
			Window:  window,
			Average: avg.Value,
			AbsDiff: diff,
			PctDiff: diff / avg.Value * 100,
		})
	}

	sort.Slice(conditions, func(i, j int) bool {
		if conditions[i].PctDiff != conditions[j].PctDiff {
			return conditions[i].PctDiff > conditions[j].PctDiff
		}
		return conditions[i].Window < conditions[j].Window
	})
	return conditions
}
