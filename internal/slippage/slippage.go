// Package slippage models the simulated execution slippage band. Every
// market fill draws a random rate from the configured band; the order
// entity applies it unfavorably to the trader (buys fill higher, sells
// lower).
package slippage

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/shopspring/decimal"
)

// ErrInvalidBand is returned when the band bounds are out of range or
// inverted.
var ErrInvalidBand = errors.New("slippage: invalid band")

// maxRate caps both bounds at 10 percent.
var maxRate = decimal.NewFromInt(10)

// Band is an inclusive range of slippage percentages.
type Band struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// DefaultBand is the simulator's stock band: 0.5% to 2.0%.
func DefaultBand() Band {
	return Band{
		Min: decimal.NewFromFloat(0.5),
		Max: decimal.NewFromFloat(2.0),
	}
}

// NewBand validates 0 ≤ min ≤ max ≤ 10 and returns the band.
func NewBand(min, max decimal.Decimal) (Band, error) {
	if min.IsNegative() || max.IsNegative() {
		return Band{}, fmt.Errorf("%w: bounds must be non-negative", ErrInvalidBand)
	}
	if max.GreaterThan(maxRate) {
		return Band{}, fmt.Errorf("%w: max bound exceeds %s%%", ErrInvalidBand, maxRate)
	}
	if min.GreaterThan(max) {
		return Band{}, fmt.Errorf("%w: min exceeds max", ErrInvalidBand)
	}
	return Band{Min: min, Max: max}, nil
}

// Rate draws a uniformly random rate within the band, rounded to 2
// decimal places.
func (b Band) Rate(rng *rand.Rand) decimal.Decimal {
	span := b.Max.Sub(b.Min)
	if span.IsZero() {
		return b.Min.Round(2)
	}
	offset := span.Mul(decimal.NewFromFloat(rng.Float64()))
	return b.Min.Add(offset).Round(2)
}
