package core

import (
	"fmt"
	"math"
	"strings"
)

// Bid is a demand curve over the price steps of a market basis.
// Index 0 holds the demand at the lowest price. Demand never increases with price.
// A Bid is immutable; every operation returns a new value.
type Bid struct {
	basis  MarketBasis
	demand []float64
}

// NewBid validates the demand curve against the market basis.
func NewBid(basis MarketBasis, demand []float64) (Bid, error) {
	if err := basis.Validate(); err != nil {
		return Bid{}, err
	}
	if len(demand) != basis.PriceSteps {
		return Bid{}, fmt.Errorf("%w: expected %d demand values, got %d", ErrInvalidBid, basis.PriceSteps, len(demand))
	}
	for i, d := range demand {
		if !isFinite(d) {
			return Bid{}, fmt.Errorf("%w: demand at step %d is not finite", ErrInvalidBid, i)
		}
		if i > 0 && d > demand[i-1] {
			return Bid{}, fmt.Errorf("%w: demand rises from %.4f to %.4f at step %d", ErrNotDescending, demand[i-1], d, i)
		}
	}

	return Bid{basis: basis, demand: append([]float64(nil), demand...)}, nil
}

// NewZeroBid returns a bid with zero demand at every price.
func NewZeroBid(basis MarketBasis) Bid {
	return NewFlatBid(basis, 0)
}

// NewFlatBid returns a bid with the same demand at every price.
func NewFlatBid(basis MarketBasis, demand float64) Bid {
	steps := basis.PriceSteps
	if steps < 1 {
		steps = 1
	}
	values := make([]float64, steps)
	for i := range values {
		values[i] = demand
	}
	return Bid{basis: basis, demand: values}
}

// IsZero reports whether the bid is the zero value (no curve at all).
func (b Bid) IsZero() bool {
	return b.demand == nil
}

// Basis returns the market basis of the bid.
func (b Bid) Basis() MarketBasis {
	return b.basis
}

// Demand returns a copy of the demand curve.
func (b Bid) Demand() []float64 {
	return append([]float64(nil), b.demand...)
}

// DemandAt returns the demand at a price step, clamped to the valid range.
func (b Bid) DemandAt(step int) float64 {
	if len(b.demand) == 0 {
		return 0
	}
	return b.demand[b.basis.clampStep(step)]
}

// DemandAtPrice returns the demand at the step nearest to price.
func (b Bid) DemandAtPrice(price float64) float64 {
	return b.DemandAt(b.basis.ToPriceStep(price))
}

// MaximumDemand returns the demand at the lowest price.
func (b Bid) MaximumDemand() float64 {
	return b.DemandAt(0)
}

// MinimumDemand returns the demand at the highest price.
func (b Bid) MinimumDemand() float64 {
	return b.DemandAt(len(b.demand) - 1)
}

// Add sums two bids step by step. Both must share the same market basis.
func (b Bid) Add(other Bid) (Bid, error) {
	if !b.basis.Equal(other.basis) {
		return Bid{}, fmt.Errorf("%w: %s vs %s", ErrMarketBasisMismatch, b.basis, other.basis)
	}
	sum := make([]float64, len(b.demand))
	for i := range sum {
		sum[i] = b.demand[i] + other.demand[i]
	}
	return Bid{basis: b.basis, demand: sum}, nil
}

// Shift translates the whole curve by delta.
func (b Bid) Shift(delta float64) Bid {
	shifted := make([]float64, len(b.demand))
	for i, d := range b.demand {
		shifted[i] = d + delta
	}
	return Bid{basis: b.basis, demand: shifted}
}

// Equal reports whether both bids share a basis and have identical demand.
func (b Bid) Equal(other Bid) bool {
	if !b.basis.Equal(other.basis) || len(b.demand) != len(other.demand) {
		return false
	}
	for i := range b.demand {
		if b.demand[i] != other.demand[i] {
			return false
		}
	}
	return true
}

func (b Bid) String() string {
	parts := make([]string, len(b.demand))
	for i, d := range b.demand {
		parts[i] = fmt.Sprintf("%g", d)
	}
	return "Bid[" + strings.Join(parts, ",") + "]"
}

// RestoreDescending forces a demand curve to be non-increasing by carrying the
// running minimum towards higher prices. The input is not modified.
func RestoreDescending(demand []float64) []float64 {
	out := append([]float64(nil), demand...)
	for i := 1; i < len(out); i++ {
		out[i] = math.Min(out[i], out[i-1])
	}
	return out
}
