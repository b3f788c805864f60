package core

import (
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/peterldowns/testy/check"
)

func TestClipBid_ReferenceCurve(t *testing.T) {
	mb := eightStepBasis(t)
	original := mustBid(t, mb, 15, 13, 11, 9, 7, 5, 3, 1)

	clipped := ClipBid(original, 2, 14)

	check.Equal(t, []float64{13, 13, 11, 9, 7, 5, 3, 3}, clipped.Demand())
	// Input untouched
	check.Equal(t, []float64{15, 13, 11, 9, 7, 5, 3, 1}, original.Demand())
}

func TestClipDemand(t *testing.T) {
	tests := []struct {
		name     string
		demand   []float64
		floor    float64
		ceiling  float64
		expected []float64
	}{
		{
			name:     "Within bounds is unchanged",
			demand:   []float64{5, 4, 3, 2, 1, 0, -1, -2},
			floor:    -10,
			ceiling:  10,
			expected: []float64{5, 4, 3, 2, 1, 0, -1, -2},
		},
		{
			name:     "Ceiling only",
			demand:   []float64{20, 18, 12, 9, 0, 0, 0, 0},
			floor:    -10,
			ceiling:  10,
			expected: []float64{9, 9, 9, 9, 0, 0, 0, 0},
		},
		{
			name:     "Floor only",
			demand:   []float64{0, 0, -2, -5, -8, -12, -20, -30},
			floor:    -10,
			ceiling:  10,
			expected: []float64{0, 0, -2, -5, -8, -8, -8, -8},
		},
		{
			name:     "Ceiling boundary value is kept",
			demand:   []float64{12, 10, 8, 6, 4, 2, 0, -2},
			floor:    -10,
			ceiling:  10,
			expected: []float64{10, 10, 8, 6, 4, 2, 0, -2},
		},
		{
			name:     "No step under the ceiling flattens to the lowest-price value",
			demand:   []float64{30, 28, 26, 24, 22, 20, 18, 16},
			floor:    -10,
			ceiling:  10,
			expected: []float64{30, 30, 30, 30, 30, 30, 30, 30},
		},
		{
			name:     "No step over the floor flattens to the highest-price value",
			demand:   []float64{-12, -14, -16, -18, -20, -22, -24, -26},
			floor:    -10,
			ceiling:  10,
			expected: []float64{-26, -26, -26, -26, -26, -26, -26, -26},
		},
		{
			name:     "Empty curve",
			demand:   []float64{},
			floor:    -1,
			ceiling:  1,
			expected: []float64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check.Equal(t, tt.expected, ClipDemand(tt.demand, tt.floor, tt.ceiling))
		})
	}
}

func TestClipDemand_PropertiesOnRandomCurves(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		demand := make([]float64, 1+rng.Intn(20))
		value := rng.Float64()*60 - 10
		for j := range demand {
			demand[j] = value
			value -= rng.Float64() * 8
		}
		floor := -rng.Float64() * 30
		ceiling := rng.Float64() * 30

		clipped := ClipDemand(demand, floor, ceiling)

		// Monotonicity preservation
		for j := 1; j < len(clipped); j++ {
			check.True(t, clipped[j] <= clipped[j-1])
		}
		// No spurious values
		for _, v := range clipped {
			check.True(t, slices.Contains(demand, v))
		}
		// Idempotence
		check.Equal(t, clipped, ClipDemand(clipped, floor, ceiling))
	}
}

func TestMapPriceStep_ReferenceCurve(t *testing.T) {
	mb := eightStepBasis(t)
	original := mustBid(t, mb, 15, 13, 11, 9, 7, 5, 3, 1)
	transformed := ClipBid(original, 2, 14)

	tests := []struct {
		name     string
		step     int
		expected int
	}{
		{name: "Ceiling active walks towards higher prices", step: 0, expected: 1},
		{name: "Unclipped step maps to itself", step: 1, expected: 1},
		{name: "Middle of the curve", step: 4, expected: 4},
		{name: "Floor active walks towards lower prices", step: 7, expected: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved := MapPriceStep(tt.step, original, transformed)
			check.Equal(t, tt.expected, resolved)
			// Allocation on the original equals what the clipped curve promised
			check.Equal(t, transformed.DemandAt(tt.step), original.DemandAt(resolved))
		})
	}
}

func TestMapPriceStep_StopsAtCurveEnds(t *testing.T) {
	mb := eightStepBasis(t)
	original := mustBid(t, mb, 30, 28, 26, 24, 22, 20, 18, 16)
	transformed := mustBid(t, mb, 10, 10, 10, 10, 10, 10, 10, 10)

	check.Equal(t, 7, MapPriceStep(0, original, transformed))

	lowOriginal := mustBid(t, mb, -1, -2, -3, -4, -5, -6, -7, -8)
	check.Equal(t, 0, MapPriceStep(7, lowOriginal, transformed))
}

func TestUncontrolledFlow(t *testing.T) {
	check.True(t, math.IsNaN(UncontrolledFlow(math.NaN(), 3)))
	check.True(t, math.IsNaN(UncontrolledFlow(16, math.NaN())))
	check.Equal(t, 5.0, UncontrolledFlow(16, 11))
}
