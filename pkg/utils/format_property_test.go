package utils

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestFormatUSD(t *testing.T) {
	assert.Equal(t, "$0.00", FormatUSD(0))
	assert.Equal(t, "$9.50", FormatUSD(9.5))
	assert.Equal(t, "$1,234.57", FormatUSD(1234.567))
	assert.Equal(t, "$1,000,000.00", FormatUSD(1e6))
	assert.Equal(t, "-$182.50", FormatUSD(-182.5))
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "+6.34%", FormatPercent(6.34))
	assert.Equal(t, "-2.00%", FormatPercent(-2))
	assert.Equal(t, "0.00%", FormatPercent(0))
}

func TestFormatVolume(t *testing.T) {
	assert.Equal(t, "999", FormatVolume(999))
	assert.Equal(t, "1.50K", FormatVolume(1500))
	assert.Equal(t, "2.30M", FormatVolume(2_300_000))
	assert.Equal(t, "1.00B", FormatVolume(1_000_000_000))
}

// Property: FormatUSD never loses or reorders digits, only decorates them.
func TestProperty_FormatUSDPreservesDigits(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("Stripping decoration recovers the plain number", prop.ForAll(
		func(cents int64) bool {
			amount := float64(cents) / 100

			formatted := FormatUSD(amount)
			stripped := strings.NewReplacer("$", "", ",", "", "-", "").Replace(formatted)

			plain := strings.TrimPrefix(plainCents(cents), "-")
			return stripped == plain
		},
		gen.Int64Range(-1_000_000_000, 1_000_000_000),
	))

	properties.Property("Comma groups are well formed", prop.ForAll(
		func(cents int64) bool {
			formatted := FormatUSD(float64(cents) / 100)
			intPart := formatted[:strings.Index(formatted, ".")]
			intPart = strings.TrimPrefix(intPart, "-")
			intPart = strings.TrimPrefix(intPart, "$")

			groups := strings.Split(intPart, ",")
			for i, g := range groups {
				if i == 0 {
					if len(g) < 1 || len(g) > 3 {
						return false
					}
					continue
				}
				if len(g) != 3 {
					return false
				}
			}
			return true
		},
		gen.Int64Range(-1_000_000_000, 1_000_000_000),
	))

	properties.TestingRun(t)
}

// plainCents renders a cent count as a decimal string with two places.
func plainCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
