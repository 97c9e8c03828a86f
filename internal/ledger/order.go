// Package ledger implements the paper-trading ledger: orders executed with
// simulated slippage, weighted-average positions with realized and
// unrealized P&L, and challenge sessions that own the cash balance and
// admission gate.
//
// All monetary values use shopspring/decimal — never float64 for money.
// Entities are plain mutable values and are not safe for concurrent use;
// the caller serializes mutations per session (see internal/trade).
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// OrderType distinguishes market from limit orders.
type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
)

// OrderStatus is the lifecycle state of an order. Transitions are one-way:
// PENDING → EXECUTED or PENDING → CANCELLED, never back.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderExecuted  OrderStatus = "EXECUTED"
	OrderCancelled OrderStatus = "CANCELLED"
)

var hundred = decimal.NewFromInt(100)

// Order is one buy/sell instruction within a session and its execution
// outcome. Orders and positions are correlated by (SessionID,
// InstrumentKey) only; routing an executed fill into the matching position
// is the caller's job.
type Order struct {
	ID            string           `json:"id" db:"id"`
	SessionID     int64            `json:"session_id" db:"session_id"`
	InstrumentKey string           `json:"instrument_key" db:"instrument_key"`
	Side          Side             `json:"side" db:"side"`
	Quantity      decimal.Decimal  `json:"quantity" db:"quantity"`
	OrderType     OrderType        `json:"order_type" db:"order_type"`
	LimitPrice    *decimal.Decimal `json:"limit_price,omitempty" db:"limit_price"`
	ExecutedPrice *decimal.Decimal `json:"executed_price,omitempty" db:"executed_price"`
	SlippageRate  *decimal.Decimal `json:"slippage_rate,omitempty" db:"slippage_rate"`
	Status        OrderStatus      `json:"status" db:"status"`
	OrderedAt     time.Time        `json:"ordered_at" db:"ordered_at"`
	ExecutedAt    *time.Time       `json:"executed_at,omitempty" db:"executed_at"`
}

// NewOrder validates the instruction and returns a PENDING order with the
// slippage rate defaulted to zero.
func NewOrder(sessionID int64, instrumentKey string, side Side, quantity decimal.Decimal, orderType OrderType, limitPrice *decimal.Decimal) (*Order, error) {
	if sessionID <= 0 {
		return nil, fmt.Errorf("%w: session id must be positive", ErrValidation)
	}
	if strings.TrimSpace(instrumentKey) == "" {
		return nil, fmt.Errorf("%w: instrument key is required", ErrValidation)
	}
	if side != Buy && side != Sell {
		return nil, fmt.Errorf("%w: side must be BUY or SELL", ErrValidation)
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	switch orderType {
	case Limit:
		if limitPrice == nil || limitPrice.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("%w: limit order requires a positive limit price", ErrValidation)
		}
	case Market:
		if limitPrice != nil {
			return nil, fmt.Errorf("%w: market order must not carry a limit price", ErrValidation)
		}
	default:
		return nil, fmt.Errorf("%w: order type must be MARKET or LIMIT", ErrValidation)
	}

	zero := decimal.Zero
	return &Order{
		SessionID:     sessionID,
		InstrumentKey: instrumentKey,
		Side:          side,
		Quantity:      quantity,
		OrderType:     orderType,
		LimitPrice:    limitPrice,
		SlippageRate:  &zero,
		Status:        OrderPending,
		OrderedAt:     time.Now().UTC(),
	}, nil
}

// Execute fills a pending order at the given market price, adjusted
// unfavorably by slippageRate percent: buys fill higher, sells lower,
// rounded to 2 decimal places half-up. A nil or zero rate passes the
// market price through exactly. The rate pointer is stored verbatim,
// nil included.
func (o *Order) Execute(marketPrice decimal.Decimal, slippageRate *decimal.Decimal) error {
	if o.Status != OrderPending {
		return fmt.Errorf("%w: only pending orders can be executed", ErrState)
	}
	if marketPrice.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: market price must be positive", ErrValidation)
	}

	fill := marketPrice
	if slippageRate != nil && !slippageRate.IsZero() {
		pct := slippageRate.Div(hundred)
		var mult decimal.Decimal
		if o.Side == Buy {
			mult = decimal.NewFromInt(1).Add(pct)
		} else {
			mult = decimal.NewFromInt(1).Sub(pct)
		}
		fill = marketPrice.Mul(mult).Round(2)
	}

	now := time.Now().UTC()
	o.ExecutedPrice = &fill
	o.SlippageRate = slippageRate
	o.Status = OrderExecuted
	o.ExecutedAt = &now
	return nil
}

// Cancel moves a pending order to CANCELLED.
func (o *Order) Cancel() error {
	if o.Status != OrderPending {
		return fmt.Errorf("%w: only pending orders can be cancelled", ErrState)
	}
	o.Status = OrderCancelled
	return nil
}

// TotalValue returns quantity × executed price for an executed order and
// zero otherwise.
func (o *Order) TotalValue() decimal.Decimal {
	if o.Status != OrderExecuted || o.ExecutedPrice == nil {
		return decimal.Zero
	}
	return o.Quantity.Mul(*o.ExecutedPrice)
}
