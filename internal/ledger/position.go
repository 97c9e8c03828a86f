package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Position is the weighted-average holding of one instrument within one
// session. AveragePrice is a cost-basis average recomputed on every buy
// (total cost ÷ total quantity, 4 decimal places half-up) and never moved
// by sells. When the position fully empties, the basis resets to zero
// rather than carrying rounding residue.
type Position struct {
	ID            int64           `json:"id" db:"id"`
	SessionID     int64           `json:"session_id" db:"session_id"`
	InstrumentKey string          `json:"instrument_key" db:"instrument_key"`
	Quantity      decimal.Decimal `json:"quantity" db:"quantity"`
	AveragePrice  decimal.Decimal `json:"average_price" db:"average_price"`
	TotalCost     decimal.Decimal `json:"total_cost" db:"total_cost"`
}

// NewPosition returns an empty position for the given session and
// instrument.
func NewPosition(sessionID int64, instrumentKey string) (*Position, error) {
	if sessionID <= 0 {
		return nil, fmt.Errorf("%w: session id must be positive", ErrValidation)
	}
	if strings.TrimSpace(instrumentKey) == "" {
		return nil, fmt.Errorf("%w: instrument key is required", ErrValidation)
	}
	return &Position{
		SessionID:     sessionID,
		InstrumentKey: instrumentKey,
		Quantity:      decimal.Zero,
		AveragePrice:  decimal.Zero,
		TotalCost:     decimal.Zero,
	}, nil
}

// Add applies a buy fill: cost accumulates, quantity grows, and the
// average price is recomputed across all historical buys. This is
// cost-basis averaging, not FIFO/LIFO lot tracking.
func (p *Position) Add(buyQuantity, buyPrice decimal.Decimal) error {
	if buyQuantity.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: buy quantity must be positive", ErrValidation)
	}
	if buyPrice.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: buy price must be positive", ErrValidation)
	}

	newTotalCost := p.TotalCost.Add(buyQuantity.Mul(buyPrice))
	newQuantity := p.Quantity.Add(buyQuantity)

	p.Quantity = newQuantity
	p.TotalCost = newTotalCost
	p.AveragePrice = newTotalCost.DivRound(newQuantity, 4)
	return nil
}

// Reduce applies a sell fill and returns the realized P&L booked against
// the average cost basis. Selling leaves the average price untouched; a
// full liquidation resets the basis to zero.
func (p *Position) Reduce(sellQuantity, sellPrice decimal.Decimal) (decimal.Decimal, error) {
	if sellQuantity.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%w: sell quantity must be positive", ErrValidation)
	}
	if sellPrice.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%w: sell price must be positive", ErrValidation)
	}
	if sellQuantity.GreaterThan(p.Quantity) {
		return decimal.Zero, fmt.Errorf("%w: cannot sell more than held", ErrValidation)
	}

	soldCost := sellQuantity.Mul(p.AveragePrice)
	realized := sellQuantity.Mul(sellPrice).Sub(soldCost)

	p.Quantity = p.Quantity.Sub(sellQuantity)
	p.TotalCost = p.TotalCost.Sub(soldCost)

	if p.Quantity.IsZero() {
		p.AveragePrice = decimal.Zero
		p.TotalCost = decimal.Zero
	}
	return realized, nil
}

// UnrealizedPnL returns the paper profit at the given market price, or
// zero when the price is non-positive or nothing is held.
func (p *Position) UnrealizedPnL(currentPrice decimal.Decimal) decimal.Decimal {
	if currentPrice.LessThanOrEqual(decimal.Zero) || p.Quantity.IsZero() {
		return decimal.Zero
	}
	return currentPrice.Sub(p.AveragePrice).Mul(p.Quantity)
}

// CurrentValue returns the mark-to-market value of the holding, under the
// same guards as UnrealizedPnL.
func (p *Position) CurrentValue(currentPrice decimal.Decimal) decimal.Decimal {
	if currentPrice.LessThanOrEqual(decimal.Zero) || p.Quantity.IsZero() {
		return decimal.Zero
	}
	return p.Quantity.Mul(currentPrice)
}

// Held reports whether any quantity remains.
func (p *Position) Held() bool {
	return p.Quantity.GreaterThan(decimal.Zero)
}
