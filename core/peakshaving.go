package core

import "math"

// ClipBid flattens a demand curve so that it stays within [floor, ceiling].
//
// Processing flow:
//  1. Ceiling: find the first step whose demand is <= ceiling and give every
//     cheaper step that demand. When no step qualifies the whole curve takes
//     its lowest-price value.
//  2. Floor: find the last step whose demand is >= floor and give every more
//     expensive step that demand. When no step qualifies the whole curve takes
//     its highest-price value.
//
// The output only reuses values already present in the input, stays
// non-increasing and is unchanged by a second clip with the same bounds.
func ClipBid(bid Bid, floor, ceiling float64) Bid {
	return Bid{basis: bid.basis, demand: ClipDemand(bid.demand, floor, ceiling)}
}

// ClipDemand is ClipBid on a bare demand curve. The input is not modified.
func ClipDemand(demand []float64, floor, ceiling float64) []float64 {
	out := make([]float64, len(demand))
	copy(out, demand)
	if len(out) == 0 {
		return out
	}
	last := len(out) - 1

	ceilingStep := -1
	for i, d := range out {
		if d <= ceiling {
			ceilingStep = i
			break
		}
	}
	if ceilingStep < 0 {
		flatten(out, 0, last, out[0])
	} else {
		flatten(out, 0, ceilingStep-1, out[ceilingStep])
	}

	floorStep := -1
	for i := last; i >= 0; i-- {
		if out[i] >= floor {
			floorStep = i
			break
		}
	}
	if floorStep < 0 {
		flatten(out, 0, last, out[last])
	} else {
		flatten(out, floorStep+1, last, out[floorStep])
	}

	return out
}

func flatten(demand []float64, from, to int, value float64) {
	for i := from; i <= to; i++ {
		demand[i] = value
	}
}

// MapPriceStep translates a price step computed against a transformed curve into the
// step that yields the same allocation on the original curve.
//
// When the transform lowered demand at step (ceiling active) the step moves towards
// higher prices until the original demand no longer exceeds the transformed demand.
// When it raised demand (floor active) the step moves towards lower prices until the
// original demand is no longer below it. The walk stops at the ends of the curve.
func MapPriceStep(step int, original, transformed Bid) int {
	steps := len(original.demand)
	if steps == 0 || len(transformed.demand) != steps {
		return step
	}
	step = original.basis.clampStep(step)
	target := transformed.demand[step]

	switch {
	case target < original.demand[step]:
		for step < steps-1 && original.demand[step] > target {
			step++
		}
	case target > original.demand[step]:
		for step > 0 && original.demand[step] < target {
			step--
		}
	}
	return step
}

// UncontrolledFlow is the part of a measured flow the market did not allocate.
// It is NaN until both inputs are known.
func UncontrolledFlow(measured, allocated float64) float64 {
	if math.IsNaN(measured) || math.IsNaN(allocated) {
		return math.NaN()
	}
	return measured - allocated
}
