// Package risk enforces simple pre-trade limits on paper orders: a cap on
// single-order notional and a cap on the quantity held per instrument
// after the fill. Limits keep challenge leaderboards meaningful by ruling
// out degenerate all-in positions.
package risk

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrOrderValueLimitExceeded is returned when a single order's
	// notional exceeds the per-order maximum.
	ErrOrderValueLimitExceeded = errors.New("risk: order value limit exceeded")

	// ErrPositionLimitExceeded is returned when a buy would push the
	// held quantity of one instrument beyond the per-instrument maximum.
	ErrPositionLimitExceeded = errors.New("risk: per-instrument position limit exceeded")
)

// Limiter holds the pre-trade limits. Zero-valued limits disable the
// corresponding check.
type Limiter struct {
	// MaxOrderValue is the maximum notional (quantity × price) of a
	// single order.
	MaxOrderValue decimal.Decimal

	// MaxPositionQuantity is the maximum quantity of one instrument a
	// session may hold after a buy fill.
	MaxPositionQuantity decimal.Decimal
}

// NewLimiter creates a limiter. Negative limits are treated as disabled.
func NewLimiter(maxOrderValue, maxPositionQuantity decimal.Decimal) *Limiter {
	if maxOrderValue.IsNegative() {
		maxOrderValue = decimal.Zero
	}
	if maxPositionQuantity.IsNegative() {
		maxPositionQuantity = decimal.Zero
	}
	return &Limiter{
		MaxOrderValue:       maxOrderValue,
		MaxPositionQuantity: maxPositionQuantity,
	}
}

// CheckOrder validates an order's notional against the per-order limit.
func (l *Limiter) CheckOrder(orderValue decimal.Decimal) error {
	if l.MaxOrderValue.IsPositive() && orderValue.GreaterThan(l.MaxOrderValue) {
		return ErrOrderValueLimitExceeded
	}
	return nil
}

// CheckPosition validates the post-fill held quantity of one instrument.
// quantityDelta is positive for buys; sells never breach this limit.
func (l *Limiter) CheckPosition(heldQuantity, quantityDelta decimal.Decimal) error {
	if !l.MaxPositionQuantity.IsPositive() {
		return nil
	}
	if heldQuantity.Add(quantityDelta).GreaterThan(l.MaxPositionQuantity) {
		return ErrPositionLimitExceeded
	}
	return nil
}
