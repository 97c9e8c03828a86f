package slippage

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestNewBand_Valid(t *testing.T) {
	b, err := NewBand(d(0.5), d(2.0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !b.Min.Equal(d(0.5)) || !b.Max.Equal(d(2.0)) {
		t.Errorf("unexpected band: %s..%s", b.Min, b.Max)
	}

	// Degenerate single-point band is fine, zero included.
	if _, err := NewBand(d(0), d(0)); err != nil {
		t.Errorf("zero band should be accepted, got %v", err)
	}
}

func TestNewBand_Invalid(t *testing.T) {
	cases := []struct{ min, max decimal.Decimal }{
		{d(-0.1), d(1)},
		{d(0.5), d(-1)},
		{d(2), d(1)},     // inverted
		{d(1), d(10.01)}, // above cap
	}
	for _, c := range cases {
		if _, err := NewBand(c.min, c.max); !errors.Is(err, ErrInvalidBand) {
			t.Errorf("NewBand(%s, %s): expected ErrInvalidBand, got %v", c.min, c.max, err)
		}
	}
}

func TestRate_WithinBandAndRounded(t *testing.T) {
	b, _ := NewBand(d(0.5), d(2.0))
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 1000; i++ {
		r := b.Rate(rng)
		if r.LessThan(b.Min) || r.GreaterThan(b.Max) {
			t.Fatalf("rate %s outside band %s..%s", r, b.Min, b.Max)
		}
		if r.Exponent() < -2 {
			t.Fatalf("rate %s not rounded to 2dp", r)
		}
	}
}

func TestRate_SinglePointBand(t *testing.T) {
	b, _ := NewBand(d(1.25), d(1.25))
	rng := rand.New(rand.NewSource(1))
	if r := b.Rate(rng); !r.Equal(d(1.25)) {
		t.Errorf("expected 1.25, got %s", r)
	}
}
