package core

import (
	"testing"

	"github.com/peterldowns/testy/assert"
)

// eightStepBasis is the basis used by the peak shaving reference scenario:
// 8 steps from price 0 to 7, so step i has price i.
func eightStepBasis(t *testing.T) MarketBasis {
	t.Helper()
	mb, err := NewMarketBasis("electricity", "EUR", 8, 0, 7)
	assert.NoError(t, err)
	return mb
}

func mustBid(t *testing.T, basis MarketBasis, demand ...float64) Bid {
	t.Helper()
	bid, err := NewBid(basis, demand)
	assert.NoError(t, err)
	return bid
}
