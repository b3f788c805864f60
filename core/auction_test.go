package core

import (
	"testing"

	"github.com/peterldowns/testy/check"
)

func TestEquilibrium(t *testing.T) {
	tests := []struct {
		name     string
		demand   []float64
		expected int
	}{
		{
			name:     "Crossing in the middle",
			demand:   []float64{10, 6, 2, -1, -4, -8, -9, -10},
			expected: 3,
		},
		{
			name:     "Exactly zero counts as cleared",
			demand:   []float64{10, 6, 2, 0, -4, -8, -9, -10},
			expected: 3,
		},
		{
			name:     "Supply surplus clears at the lowest price",
			demand:   []float64{0, -1, -2, -3, -4, -5, -6, -7},
			expected: 0,
		},
		{
			name:     "Negative at the lowest price",
			demand:   []float64{-1, -1, -1, -1, -1, -1, -1, -1},
			expected: 0,
		},
		{
			name:     "Scarcity clears at the highest price",
			demand:   []float64{9, 8, 7, 6, 5, 4, 3, 0.5},
			expected: 7,
		},
		{
			name:     "Flat zero plateau clears at its lowest step",
			demand:   []float64{4, 2, 0, 0, 0, -3, -3, -3},
			expected: 2,
		},
		{
			name:     "All zero",
			demand:   []float64{0, 0, 0, 0, 0, 0, 0, 0},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mb := eightStepBasis(t)
			bid := mustBid(t, mb, tt.demand...)

			check.Equal(t, tt.expected, Equilibrium(bid))

			price := ClearMarket(bid)
			check.Equal(t, float64(tt.expected), price.Value)
			check.Equal(t, tt.expected, price.Step())
		})
	}
}

func TestEquilibrium_ZeroValueBid(t *testing.T) {
	var bid Bid
	check.Equal(t, 0, Equilibrium(bid))
}
