package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned when a required value (usually a bid) is missing.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidMarketBasis is returned when market basis parameters are inconsistent.
	ErrInvalidMarketBasis = errors.New("invalid market basis")

	// ErrMarketBasisMismatch is returned when values built on different market bases are mixed.
	ErrMarketBasisMismatch = errors.New("market basis mismatch")

	// ErrInvalidBid is returned when a demand curve does not fit its market basis.
	ErrInvalidBid = errors.New("invalid bid")

	// ErrNotDescending is returned when demand increases with price.
	ErrNotDescending = errors.New("demand must be non-increasing in price")
)

// Price is a price expressed on a market basis.
type Price struct {
	Basis MarketBasis
	Value float64
}

// NewPriceFromStep returns the price belonging to a price step.
func NewPriceFromStep(basis MarketBasis, step int) Price {
	return Price{Basis: basis, Value: basis.ToPrice(step)}
}

// Step returns the price step nearest to the price.
func (p Price) Step() int {
	return p.Basis.ToPriceStep(p.Value)
}

func (p Price) String() string {
	return fmt.Sprintf("%.4f %s/%s (step %d)", p.Value, p.Basis.Currency, p.Basis.Commodity, p.Step())
}

// BidUpdate carries a bid together with the sender's sequence number.
// BidNumber is strictly increasing per sending agent.
type BidUpdate struct {
	Bid       Bid
	BidNumber int
}

// PriceUpdate carries a price together with the number of the bid it was computed against.
// BidNumber is 0 when the receiving agent had no bid in the matcher's cache.
type PriceUpdate struct {
	Price     Price
	BidNumber int
}
