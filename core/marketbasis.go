package core

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// MarketBasis is the price discretization and commodity identity shared by a cluster.
// Two bases are interchangeable only when all five fields match exactly.
type MarketBasis struct {
	Commodity    string  `json:"commodity" yaml:"commodity"`
	Currency     string  `json:"currency" yaml:"currency"`
	PriceSteps   int     `json:"price_steps" yaml:"price_steps"`
	MinimumPrice float64 `json:"minimum_price" yaml:"minimum_price"`
	MaximumPrice float64 `json:"maximum_price" yaml:"maximum_price"`
}

// NewMarketBasis validates the parameters and returns the market basis.
func NewMarketBasis(commodity, currency string, priceSteps int, minimumPrice, maximumPrice float64) (MarketBasis, error) {
	mb := MarketBasis{
		Commodity:    commodity,
		Currency:     currency,
		PriceSteps:   priceSteps,
		MinimumPrice: minimumPrice,
		MaximumPrice: maximumPrice,
	}
	if err := mb.Validate(); err != nil {
		return MarketBasis{}, err
	}
	return mb, nil
}

// Validate checks the invariants of the market basis.
func (mb MarketBasis) Validate() error {
	if mb.PriceSteps < 1 {
		return fmt.Errorf("%w: price steps must be at least 1, got %d", ErrInvalidMarketBasis, mb.PriceSteps)
	}
	if !isFinite(mb.MinimumPrice) || !isFinite(mb.MaximumPrice) {
		return fmt.Errorf("%w: prices must be finite", ErrInvalidMarketBasis)
	}
	if mb.MaximumPrice < mb.MinimumPrice {
		return fmt.Errorf("%w: maximum price %.4f below minimum price %.4f", ErrInvalidMarketBasis, mb.MaximumPrice, mb.MinimumPrice)
	}
	if mb.PriceSteps > 1 && mb.MaximumPrice == mb.MinimumPrice {
		return fmt.Errorf("%w: %d price steps need a non-empty price range", ErrInvalidMarketBasis, mb.PriceSteps)
	}
	return nil
}

// Equal reports whether both bases describe the same market.
func (mb MarketBasis) Equal(other MarketBasis) bool {
	return mb == other
}

// PriceIncrement returns the price difference between two adjacent steps.
func (mb MarketBasis) PriceIncrement() float64 {
	inc, _ := mb.increment().Float64()
	return inc
}

func (mb MarketBasis) increment() decimal.Decimal {
	if mb.PriceSteps <= 1 {
		return decimal.Zero
	}
	span := decimal.NewFromFloat(mb.MaximumPrice).Sub(decimal.NewFromFloat(mb.MinimumPrice))
	return span.Div(decimal.NewFromInt(int64(mb.PriceSteps - 1)))
}

// ToPriceStep maps a price onto the nearest price step, clamped to the valid range.
// Uses decimal arithmetic so prices that sit exactly on a step never round to a neighbour.
func (mb MarketBasis) ToPriceStep(price float64) int {
	if mb.PriceSteps <= 1 || math.IsNaN(price) || price <= mb.MinimumPrice {
		return 0
	}
	if price >= mb.MaximumPrice {
		return mb.PriceSteps - 1
	}

	offset := decimal.NewFromFloat(price).Sub(decimal.NewFromFloat(mb.MinimumPrice))
	step := int(offset.Div(mb.increment()).Round(0).IntPart())
	return mb.clampStep(step)
}

// ToPrice returns the price of a price step; out of range steps are clamped.
func (mb MarketBasis) ToPrice(step int) float64 {
	step = mb.clampStep(step)
	price := decimal.NewFromFloat(mb.MinimumPrice).Add(mb.increment().Mul(decimal.NewFromInt(int64(step))))
	result, _ := price.Float64()
	return result
}

func (mb MarketBasis) clampStep(step int) int {
	if step < 0 {
		return 0
	}
	if step > mb.PriceSteps-1 {
		return mb.PriceSteps - 1
	}
	return step
}

func (mb MarketBasis) String() string {
	return fmt.Sprintf("%s/%s[%d steps %.4f..%.4f]", mb.Commodity, mb.Currency, mb.PriceSteps, mb.MinimumPrice, mb.MaximumPrice)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
