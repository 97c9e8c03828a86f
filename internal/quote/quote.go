// Package quote is the simulated market-data source. It serves per-ticker
// base prices with a bounded random variation, standing in for the
// historical/real feed the simulator's orders execute against. The ledger
// core never calls this package; the order service supplies its prices.
package quote

import (
	"math/rand"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// fallbackTicker keys the price used for instruments without a base entry.
const fallbackTicker = "DEFAULT"

// defaultBasePrices seeds a Source when no table is configured.
var defaultBasePrices = map[string]decimal.Decimal{
	"AAPL":    decimal.NewFromFloat(180.00),
	"MSFT":    decimal.NewFromFloat(420.00),
	"GOOGL":   decimal.NewFromFloat(140.00),
	"GOOG":    decimal.NewFromFloat(140.00),
	"AMZN":    decimal.NewFromFloat(150.00),
	"TSLA":    decimal.NewFromFloat(250.00),
	"NVDA":    decimal.NewFromFloat(450.00),
	"META":    decimal.NewFromFloat(350.00),
	"NFLX":    decimal.NewFromFloat(400.00),
	"AMD":     decimal.NewFromFloat(120.00),
	"INTC":    decimal.NewFromFloat(35.00),
	"005930":  decimal.NewFromFloat(70000.00),
	"000660":  decimal.NewFromFloat(120000.00),
	"035720":  decimal.NewFromFloat(95000.00),
	fallbackTicker: decimal.NewFromFloat(100.00),
}

// Source produces simulated quotes. Safe for concurrent use.
type Source struct {
	mu        sync.Mutex
	prices    map[string]decimal.Decimal
	variation decimal.Decimal // ± percent applied around the base price
	rng       *rand.Rand
}

// NewSource builds a quote source. A nil or empty price table falls back
// to the built-in defaults; variation is a percentage (e.g. 5 for ±5%)
// and may be zero for deterministic prices.
func NewSource(prices map[string]decimal.Decimal, variation decimal.Decimal, rng *rand.Rand) *Source {
	table := make(map[string]decimal.Decimal)
	if len(prices) == 0 {
		prices = defaultBasePrices
	}
	for ticker, price := range prices {
		table[strings.ToUpper(strings.TrimSpace(ticker))] = price
	}
	if _, ok := table[fallbackTicker]; !ok {
		table[fallbackTicker] = defaultBasePrices[fallbackTicker]
	}
	if variation.IsNegative() {
		variation = decimal.Zero
	}
	return &Source{
		prices:    table,
		variation: variation,
		rng:       rng,
	}
}

// Price returns a simulated market price for the instrument, 2 decimal
// places. Unknown tickers use the fallback base price; this never fails,
// matching the simulator's always-fillable market.
func (s *Source) Price(instrumentKey string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	base, ok := s.prices[strings.ToUpper(strings.TrimSpace(instrumentKey))]
	if !ok {
		base = s.prices[fallbackTicker]
	}
	if s.variation.IsZero() || s.rng == nil {
		return base.Round(2)
	}

	// Uniform factor in [1 − v/100, 1 + v/100].
	v := s.variation.Div(decimal.NewFromInt(100))
	offset := v.Mul(decimal.NewFromFloat(s.rng.Float64()*2 - 1))
	return base.Mul(decimal.NewFromInt(1).Add(offset)).Round(2)
}
